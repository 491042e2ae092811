package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/adunni-couture/api/internal/domain"
)

func seededOrder(status domain.OrderStatus) domain.Order {
	return domain.Order{
		ID:          "ord_1",
		OrderNumber: "AC-2025-000042",
		UserID:      "user-1",
		Status:      status,
		Currency:    "NGN",
		Totals:      domain.OrderTotals{Subtotal: 10000, Shipping: 1500, Total: 11500},
		Contact:     &domain.OrderContact{Email: "amaka@example.com", Phone: "+2348012345678"},
		CreatedAt:   testInstant,
		UpdatedAt:   testInstant,
	}
}

func newTestOrderService(t *testing.T, repo *memoryOrderRepo, opts ...func(*OrderServiceDeps)) OrderService {
	t.Helper()
	deps := OrderServiceDeps{
		Orders:      repo,
		Clock:       fixedClock(testInstant),
		IDGenerator: sequenceIDs("evt"),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func TestOrderTransitionTable(t *testing.T) {
	cases := []struct {
		from    domain.OrderStatus
		to      domain.OrderStatus
		allowed bool
	}{
		{domain.OrderStatusAwaitingPayment, domain.OrderStatusProcessing, true},
		{domain.OrderStatusAwaitingPayment, domain.OrderStatusCancelled, true},
		{domain.OrderStatusAwaitingPayment, domain.OrderStatusShipped, false},
		{domain.OrderStatusAwaitingPayment, domain.OrderStatusDelivered, false},
		{domain.OrderStatusProcessing, domain.OrderStatusShipped, true},
		{domain.OrderStatusProcessing, domain.OrderStatusCancelled, true},
		{domain.OrderStatusProcessing, domain.OrderStatusDelivered, false},
		{domain.OrderStatusProcessing, domain.OrderStatusAwaitingPayment, false},
		{domain.OrderStatusShipped, domain.OrderStatusDelivered, true},
		{domain.OrderStatusShipped, domain.OrderStatusCancelled, true},
		{domain.OrderStatusShipped, domain.OrderStatusProcessing, false},
		{domain.OrderStatusDelivered, domain.OrderStatusCancelled, false},
		{domain.OrderStatusCancelled, domain.OrderStatusProcessing, false},
	}

	for _, tc := range cases {
		if got := canTransitionOrder(tc.from, tc.to); got != tc.allowed {
			t.Errorf("transition %s to %s: expected allowed=%v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestTransitionStatusStampsTimestamps(t *testing.T) {
	repo := newMemoryOrderRepo(seededOrder(domain.OrderStatusProcessing))
	svc := newTestOrderService(t, repo)

	order, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusShipped,
		ActorID:      "admin-1",
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if order.Status != domain.OrderStatusShipped {
		t.Fatalf("expected shipped, got %q", order.Status)
	}
	if order.ShippedAt == nil || !order.ShippedAt.Equal(testInstant) {
		t.Fatalf("expected ShippedAt stamped at the fixed instant, got %v", order.ShippedAt)
	}
	if order.Audit.UpdatedBy == nil || *order.Audit.UpdatedBy != "admin-1" {
		t.Fatalf("expected actor recorded, got %v", order.Audit.UpdatedBy)
	}

	stored := repo.orders["ord_1"]
	if stored.Status != domain.OrderStatusShipped {
		t.Fatalf("expected status persisted, got %q", stored.Status)
	}
}

func TestTransitionStatusRejectsInvalidMove(t *testing.T) {
	repo := newMemoryOrderRepo(seededOrder(domain.OrderStatusAwaitingPayment))
	svc := newTestOrderService(t, repo)

	_, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusDelivered,
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
	if repo.orders["ord_1"].Status != domain.OrderStatusAwaitingPayment {
		t.Fatalf("order must be untouched after a rejected transition")
	}
	if repo.updates != 0 {
		t.Fatalf("expected no repository writes, got %d", repo.updates)
	}
}

func TestTransitionStatusHonoursExpectedStatus(t *testing.T) {
	repo := newMemoryOrderRepo(seededOrder(domain.OrderStatusShipped))
	svc := newTestOrderService(t, repo)

	expected := domain.OrderStatusProcessing
	_, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:        "ord_1",
		TargetStatus:   domain.OrderStatusShipped,
		ExpectedStatus: &expected,
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
}

func TestTransitionStatusSameStatusIsNoOp(t *testing.T) {
	repo := newMemoryOrderRepo(seededOrder(domain.OrderStatusProcessing))
	publisher := &capturePublisher{}
	svc := newTestOrderService(t, repo, func(deps *OrderServiceDeps) {
		deps.Events = publisher
	})

	order, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusProcessing,
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("unexpected status %q", order.Status)
	}
	if repo.updates != 0 {
		t.Fatalf("expected no writes for a same-status transition")
	}
	if len(publisher.Events()) != 0 {
		t.Fatalf("expected no events for a same-status transition")
	}
}

func TestTransitionStatusNotifiesAfterCommit(t *testing.T) {
	repo := newMemoryOrderRepo(seededOrder(domain.OrderStatusShipped))
	publisher := &capturePublisher{}
	notifier := &captureNotifier{}
	svc := newTestOrderService(t, repo, func(deps *OrderServiceDeps) {
		deps.Events = publisher
		deps.Notifier = notifier
	})

	if _, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusDelivered,
		ActorID:      "admin-1",
	}); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}

	events := publisher.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if events[0].PreviousStatus != "shipped" || events[0].Status != "delivered" {
		t.Fatalf("unexpected event payload %+v", events[0])
	}

	notices := notifier.Notices()
	if len(notices) != 1 {
		t.Fatalf("expected one notice, got %d", len(notices))
	}
	if notices[0].Email != "amaka@example.com" || notices[0].Phone != "+2348012345678" {
		t.Fatalf("expected contact snapshot on notice, got %+v", notices[0])
	}
}

func TestTransitionStatusSkipsNotificationWhenWriteFails(t *testing.T) {
	repo := newMemoryOrderRepo(seededOrder(domain.OrderStatusProcessing))
	repo.updateFn = func(domain.Order, *domain.OrderStatus) error {
		return conflictErr("order", "ord_1")
	}
	publisher := &capturePublisher{}
	notifier := &captureNotifier{}
	svc := newTestOrderService(t, repo, func(deps *OrderServiceDeps) {
		deps.Events = publisher
		deps.Notifier = notifier
	})

	_, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusShipped,
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
	if len(publisher.Events()) != 0 || len(notifier.Notices()) != 0 {
		t.Fatalf("nothing may fan out when the status write fails")
	}
}

func TestCancelFromNonTerminalStates(t *testing.T) {
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusAwaitingPayment,
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
	} {
		repo := newMemoryOrderRepo(seededOrder(status))
		svc := newTestOrderService(t, repo)

		order, err := svc.Cancel(context.Background(), CancelOrderCommand{
			OrderID: "ord_1",
			ActorID: "admin-1",
			Reason:  "customer request",
		})
		if err != nil {
			t.Fatalf("Cancel from %s: %v", status, err)
		}
		if order.Status != domain.OrderStatusCancelled {
			t.Fatalf("expected cancelled, got %q", order.Status)
		}
		if order.CancelReason == nil || *order.CancelReason != "customer request" {
			t.Fatalf("expected cancel reason recorded, got %v", order.CancelReason)
		}
		if order.CancelledAt == nil {
			t.Fatalf("expected CancelledAt stamped")
		}
	}
}

func TestCancelRejectsTerminalStates(t *testing.T) {
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	} {
		repo := newMemoryOrderRepo(seededOrder(status))
		svc := newTestOrderService(t, repo)

		_, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_1"})
		if !errors.Is(err, ErrOrderInvalidState) {
			t.Fatalf("Cancel from %s: expected ErrOrderInvalidState, got %v", status, err)
		}
	}
}

func TestGetOrderEnforcesOwnership(t *testing.T) {
	repo := newMemoryOrderRepo(seededOrder(domain.OrderStatusProcessing))
	svc := newTestOrderService(t, repo)

	if _, err := svc.GetOrder(context.Background(), GetOrderCommand{
		OrderID:          "ord_1",
		RequestingUserID: "user-2",
	}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}

	if _, err := svc.GetOrder(context.Background(), GetOrderCommand{
		OrderID:          "ord_1",
		RequestingUserID: "user-2",
		IsStaff:          true,
	}); err != nil {
		t.Fatalf("staff read: %v", err)
	}

	if _, err := svc.GetOrder(context.Background(), GetOrderCommand{
		OrderID:          "ord_missing",
		RequestingUserID: "user-1",
	}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
