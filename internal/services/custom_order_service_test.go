package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/adunni-couture/api/internal/domain"
)

func seededCustomOrder(status domain.CustomOrderStatus) domain.CustomOrder {
	return domain.CustomOrder{
		ID:     "cord_1",
		UserID: "user-1",
		Contact: domain.CustomOrderContact{
			Name:  "Amaka Obi",
			Email: "amaka@example.com",
			Phone: "+2348012345678",
		},
		Fabric:         "aso-oke",
		Style:          "agbada",
		Measurements:   map[string]string{"chest": "102cm", "length": "150cm"},
		Status:         status,
		DeliveryStatus: domain.DeliveryStatusNotStarted,
		Deposit:        10000,
		CreatedAt:      testInstant,
		UpdatedAt:      testInstant,
	}
}

func newTestCustomOrderService(t *testing.T, repo *memoryCustomOrderRepo, invoices *memoryInvoiceRepo, opts ...func(*CustomOrderServiceDeps)) CustomOrderService {
	t.Helper()
	deps := CustomOrderServiceDeps{
		CustomOrders: repo,
		Invoices:     invoices,
		Clock:        fixedClock(testInstant),
		IDGenerator:  sequenceIDs("id"),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	svc, err := NewCustomOrderService(deps)
	if err != nil {
		t.Fatalf("NewCustomOrderService: %v", err)
	}
	return svc
}

func TestSubmitCreatesPendingOrder(t *testing.T) {
	repo := newMemoryCustomOrderRepo()
	notifier := &captureNotifier{}
	svc := newTestCustomOrderService(t, repo, newMemoryInvoiceRepo(), func(deps *CustomOrderServiceDeps) {
		deps.Notifier = notifier
	})

	order, err := svc.Submit(context.Background(), SubmitCustomOrderCommand{
		UserID: "user-1",
		Contact: CustomOrderContact{
			Name:  "Amaka Obi",
			Email: "amaka@example.com",
		},
		Fabric:       "aso-oke",
		Style:        "agbada",
		Measurements: map[string]string{"chest": "102cm"},
		Notes:        "Please add <script>alert(1)</script> gold embroidery",
		Deposit:      10000,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if order.Status != domain.CustomOrderStatusPending {
		t.Fatalf("expected pending, got %q", order.Status)
	}
	if order.DeliveryStatus != domain.DeliveryStatusNotStarted {
		t.Fatalf("expected not_started delivery, got %q", order.DeliveryStatus)
	}
	if order.Price != nil {
		t.Fatalf("a fresh submission must not carry a price")
	}
	if strings.Contains(order.Notes, "<script>") || strings.Contains(order.Notes, "alert") {
		t.Fatalf("expected markup stripped from notes, got %q", order.Notes)
	}
	if !strings.Contains(order.Notes, "gold embroidery") {
		t.Fatalf("expected text preserved, got %q", order.Notes)
	}
	if len(notifier.Notices()) != 1 {
		t.Fatalf("expected one acknowledgement notice")
	}
}

func TestSubmitValidatesRequiredFields(t *testing.T) {
	svc := newTestCustomOrderService(t, newMemoryCustomOrderRepo(), newMemoryInvoiceRepo())

	_, err := svc.Submit(context.Background(), SubmitCustomOrderCommand{
		UserID:  "user-1",
		Contact: CustomOrderContact{Name: "Amaka Obi", Email: "amaka@example.com"},
		Fabric:  "aso-oke",
		Style:   "agbada",
	})
	if !errors.Is(err, ErrCustomOrderInvalidInput) {
		t.Fatalf("expected ErrCustomOrderInvalidInput for missing measurements, got %v", err)
	}
}

func TestSubmitNormalisesMeasurements(t *testing.T) {
	repo := newMemoryCustomOrderRepo()
	svc := newTestCustomOrderService(t, repo, newMemoryInvoiceRepo())

	order, err := svc.Submit(context.Background(), SubmitCustomOrderCommand{
		UserID:       "user-1",
		Contact:      CustomOrderContact{Name: "Amaka Obi", Email: "amaka@example.com"},
		Fabric:       "aso-oke",
		Style:        "agbada",
		Measurements: map[string]string{" chest ": " 102cm ", "  ": "dropped"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(order.Measurements) != 1 || order.Measurements["chest"] != "102cm" {
		t.Fatalf("expected trimmed measurements, got %v", order.Measurements)
	}

	// A map of blank keys carries no measurements at all.
	_, err = svc.Submit(context.Background(), SubmitCustomOrderCommand{
		UserID:       "user-1",
		Contact:      CustomOrderContact{Name: "Amaka Obi", Email: "amaka@example.com"},
		Fabric:       "aso-oke",
		Style:        "agbada",
		Measurements: map[string]string{" ": "102cm"},
	})
	if !errors.Is(err, ErrCustomOrderInvalidInput) {
		t.Fatalf("expected ErrCustomOrderInvalidInput, got %v", err)
	}
}

func TestSetPriceAndStartRequiresPrice(t *testing.T) {
	repo := newMemoryCustomOrderRepo(seededCustomOrder(domain.CustomOrderStatusPending))
	svc := newTestCustomOrderService(t, repo, newMemoryInvoiceRepo())

	_, err := svc.SetPriceAndStart(context.Background(), SetPriceCommand{
		CustomOrderID: "cord_1",
		ActorID:       "admin-1",
	})
	if !errors.Is(err, ErrCustomOrderMissingPrice) {
		t.Fatalf("expected ErrCustomOrderMissingPrice, got %v", err)
	}
	if repo.orders["cord_1"].Status != domain.CustomOrderStatusPending {
		t.Fatalf("order must stay pending when no price is given")
	}
}

func TestSetPriceAndStartIssuesInvoice(t *testing.T) {
	repo := newMemoryCustomOrderRepo(seededCustomOrder(domain.CustomOrderStatusPending))
	invoices := newMemoryInvoiceRepo()
	docs := &stubDocumentGenerator{}
	notifier := &captureNotifier{}
	svc := newTestCustomOrderService(t, repo, invoices, func(deps *CustomOrderServiceDeps) {
		deps.Documents = docs
		deps.Notifier = notifier
	})

	order, err := svc.SetPriceAndStart(context.Background(), SetPriceCommand{
		CustomOrderID: "cord_1",
		Price:         valuePtr(int64(60000)),
		ActorID:       "admin-1",
	})
	if err != nil {
		t.Fatalf("SetPriceAndStart: %v", err)
	}
	if order.Status != domain.CustomOrderStatusInProgress {
		t.Fatalf("expected in_progress, got %q", order.Status)
	}
	if order.Price == nil || *order.Price != 60000 {
		t.Fatalf("expected price 60000, got %v", order.Price)
	}

	invoice, err := invoices.FindByCustomOrder(context.Background(), "cord_1")
	if err != nil {
		t.Fatalf("expected an invoice: %v", err)
	}
	// The invoice carries the full price; the deposit is snapshotted so the
	// balance can be computed at payment time.
	if invoice.Amount != 60000 {
		t.Fatalf("expected invoice amount 60000, got %d", invoice.Amount)
	}
	if invoice.Deposit != 10000 {
		t.Fatalf("expected invoice deposit 10000, got %d", invoice.Deposit)
	}
	if invoice.Paid {
		t.Fatalf("a fresh invoice must be unpaid")
	}
	if invoice.PDFURL == "" {
		t.Fatalf("expected a generated document path")
	}
	if order.InvoiceRef == nil || *order.InvoiceRef != invoice.ID {
		t.Fatalf("expected the invoice linked back to the order")
	}
	if len(docs.invoices) != 1 {
		t.Fatalf("expected one invoice rendering, got %d", len(docs.invoices))
	}
	if len(notifier.Notices()) != 1 {
		t.Fatalf("expected one priced notice")
	}
}

func TestSetPriceAndStartSurvivesDocumentFailure(t *testing.T) {
	repo := newMemoryCustomOrderRepo(seededCustomOrder(domain.CustomOrderStatusPending))
	invoices := newMemoryInvoiceRepo()
	docs := &stubDocumentGenerator{err: errors.New("renderer down")}
	logger := &captureLogger{}
	svc := newTestCustomOrderService(t, repo, invoices, func(deps *CustomOrderServiceDeps) {
		deps.Documents = docs
		deps.Logger = logger.Log
	})

	order, err := svc.SetPriceAndStart(context.Background(), SetPriceCommand{
		CustomOrderID: "cord_1",
		Price:         valuePtr(int64(60000)),
	})
	if err != nil {
		t.Fatalf("SetPriceAndStart must not fail when documents do: %v", err)
	}
	if order.Status != domain.CustomOrderStatusInProgress {
		t.Fatalf("expected committed in_progress, got %q", order.Status)
	}
	if order.Price == nil || *order.Price != 60000 {
		t.Fatalf("expected the price to persist, got %v", order.Price)
	}

	stored := repo.orders["cord_1"]
	if stored.Status != domain.CustomOrderStatusInProgress {
		t.Fatalf("expected the stored order to keep in_progress, got %q", stored.Status)
	}
	if _, err := invoices.FindByCustomOrder(context.Background(), "cord_1"); !isNotFound(err) {
		t.Fatalf("no invoice row may exist after a rendering failure, got %v", err)
	}
	if len(logger.Events("custom_order.invoice.document.failed")) != 1 {
		t.Fatalf("expected the failure logged")
	}
}

func TestSetPriceAndStartHonoursExpectedStatus(t *testing.T) {
	repo := newMemoryCustomOrderRepo(seededCustomOrder(domain.CustomOrderStatusInProgress))
	svc := newTestCustomOrderService(t, repo, newMemoryInvoiceRepo())

	expected := domain.CustomOrderStatusPending
	_, err := svc.SetPriceAndStart(context.Background(), SetPriceCommand{
		CustomOrderID:  "cord_1",
		Price:          valuePtr(int64(60000)),
		ExpectedStatus: &expected,
	})
	if !errors.Is(err, ErrCustomOrderConflict) {
		t.Fatalf("expected ErrCustomOrderConflict, got %v", err)
	}
}

func TestCustomOrderTransitionRequiresPriceForInProgress(t *testing.T) {
	repo := newMemoryCustomOrderRepo(seededCustomOrder(domain.CustomOrderStatusPending))
	svc := newTestCustomOrderService(t, repo, newMemoryInvoiceRepo())

	_, err := svc.TransitionStatus(context.Background(), CustomOrderTransitionCommand{
		CustomOrderID: "cord_1",
		TargetStatus:  domain.CustomOrderStatusInProgress,
	})
	if !errors.Is(err, ErrCustomOrderMissingPrice) {
		t.Fatalf("expected ErrCustomOrderMissingPrice, got %v", err)
	}
}

func TestCustomOrderCompletion(t *testing.T) {
	order := seededCustomOrder(domain.CustomOrderStatusInProgress)
	order.Price = valuePtr(int64(60000))
	repo := newMemoryCustomOrderRepo(order)
	svc := newTestCustomOrderService(t, repo, newMemoryInvoiceRepo())

	updated, err := svc.TransitionStatus(context.Background(), CustomOrderTransitionCommand{
		CustomOrderID: "cord_1",
		TargetStatus:  domain.CustomOrderStatusCompleted,
		ActorID:       "admin-1",
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if updated.Status != domain.CustomOrderStatusCompleted {
		t.Fatalf("expected completed, got %q", updated.Status)
	}

	// Terminal states accept no further workflow moves.
	if _, err := svc.TransitionStatus(context.Background(), CustomOrderTransitionCommand{
		CustomOrderID: "cord_1",
		TargetStatus:  domain.CustomOrderStatusCancelled,
	}); !errors.Is(err, ErrCustomOrderInvalidState) {
		t.Fatalf("expected ErrCustomOrderInvalidState, got %v", err)
	}
}

func TestAdvanceDeliveryGatedByWorkflow(t *testing.T) {
	repo := newMemoryCustomOrderRepo(seededCustomOrder(domain.CustomOrderStatusPending))
	svc := newTestCustomOrderService(t, repo, newMemoryInvoiceRepo())

	_, err := svc.AdvanceDeliveryStatus(context.Background(), AdvanceDeliveryCommand{
		CustomOrderID: "cord_1",
		Target:        domain.DeliveryStatusInProgress,
	})
	if !errors.Is(err, ErrCustomOrderDeliveryLocked) {
		t.Fatalf("expected ErrCustomOrderDeliveryLocked, got %v", err)
	}
}

func TestAdvanceDeliveryIsMonotonic(t *testing.T) {
	order := seededCustomOrder(domain.CustomOrderStatusInProgress)
	order.Price = valuePtr(int64(60000))
	repo := newMemoryCustomOrderRepo(order)
	svc := newTestCustomOrderService(t, repo, newMemoryInvoiceRepo())

	// Skipping in_progress is rejected.
	if _, err := svc.AdvanceDeliveryStatus(context.Background(), AdvanceDeliveryCommand{
		CustomOrderID: "cord_1",
		Target:        domain.DeliveryStatusDelivered,
	}); !errors.Is(err, ErrCustomOrderInvalidState) {
		t.Fatalf("expected ErrCustomOrderInvalidState, got %v", err)
	}

	updated, err := svc.AdvanceDeliveryStatus(context.Background(), AdvanceDeliveryCommand{
		CustomOrderID: "cord_1",
		Target:        domain.DeliveryStatusInProgress,
	})
	if err != nil {
		t.Fatalf("AdvanceDeliveryStatus: %v", err)
	}
	if updated.DeliveryStatus != domain.DeliveryStatusInProgress {
		t.Fatalf("expected in_progress delivery, got %q", updated.DeliveryStatus)
	}

	updated, err = svc.AdvanceDeliveryStatus(context.Background(), AdvanceDeliveryCommand{
		CustomOrderID: "cord_1",
		Target:        domain.DeliveryStatusDelivered,
	})
	if err != nil {
		t.Fatalf("AdvanceDeliveryStatus to delivered: %v", err)
	}
	if updated.DeliveryStatus != domain.DeliveryStatusDelivered {
		t.Fatalf("expected delivered, got %q", updated.DeliveryStatus)
	}

	// Moving backwards is rejected.
	if _, err := svc.AdvanceDeliveryStatus(context.Background(), AdvanceDeliveryCommand{
		CustomOrderID: "cord_1",
		Target:        domain.DeliveryStatusInProgress,
	}); !errors.Is(err, ErrCustomOrderInvalidState) {
		t.Fatalf("expected ErrCustomOrderInvalidState for backwards move, got %v", err)
	}
}

func TestCancelCustomOrderFromPendingAndInProgress(t *testing.T) {
	for _, status := range []domain.CustomOrderStatus{
		domain.CustomOrderStatusPending,
		domain.CustomOrderStatusInProgress,
	} {
		order := seededCustomOrder(status)
		if status == domain.CustomOrderStatusInProgress {
			order.Price = valuePtr(int64(60000))
		}
		repo := newMemoryCustomOrderRepo(order)
		svc := newTestCustomOrderService(t, repo, newMemoryInvoiceRepo())

		updated, err := svc.Cancel(context.Background(), CancelCustomOrderCommand{
			CustomOrderID: "cord_1",
			ActorID:       "admin-1",
		})
		if err != nil {
			t.Fatalf("Cancel from %s: %v", status, err)
		}
		if updated.Status != domain.CustomOrderStatusCancelled {
			t.Fatalf("expected cancelled, got %q", updated.Status)
		}
	}

	repo := newMemoryCustomOrderRepo(seededCustomOrder(domain.CustomOrderStatusCompleted))
	svc := newTestCustomOrderService(t, repo, newMemoryInvoiceRepo())
	if _, err := svc.Cancel(context.Background(), CancelCustomOrderCommand{CustomOrderID: "cord_1"}); !errors.Is(err, ErrCustomOrderInvalidState) {
		t.Fatalf("expected ErrCustomOrderInvalidState for completed order, got %v", err)
	}
}

func TestGetCustomOrderEnforcesOwnership(t *testing.T) {
	repo := newMemoryCustomOrderRepo(seededCustomOrder(domain.CustomOrderStatusPending))
	svc := newTestCustomOrderService(t, repo, newMemoryInvoiceRepo())

	if _, err := svc.GetCustomOrder(context.Background(), GetCustomOrderCommand{
		CustomOrderID:    "cord_1",
		RequestingUserID: "user-2",
	}); !errors.Is(err, ErrCustomOrderForbidden) {
		t.Fatalf("expected ErrCustomOrderForbidden, got %v", err)
	}

	if _, err := svc.GetCustomOrder(context.Background(), GetCustomOrderCommand{
		CustomOrderID:    "cord_1",
		RequestingUserID: "admin-1",
		IsStaff:          true,
	}); err != nil {
		t.Fatalf("staff read: %v", err)
	}
}
