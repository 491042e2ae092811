package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/payments"
	"github.com/adunni-couture/api/internal/repositories"
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentReferenceNotFound indicates no order or invoice matches the reference.
	ErrPaymentReferenceNotFound = errors.New("payment: reference not found")
	// ErrPaymentVerificationFailed indicates the gateway did not confirm the charge.
	ErrPaymentVerificationFailed = errors.New("payment: verification failed")
	// ErrPaymentAmountMismatch indicates the verified amount differs from the amount owed.
	ErrPaymentAmountMismatch = errors.New("payment: amount mismatch")
	// ErrPaymentConflict indicates a concurrent verification won the race.
	ErrPaymentConflict = errors.New("payment: conflict")
)

// transactionVerifier is the slice of the payments manager verification needs.
type transactionVerifier interface {
	VerifyTransaction(ctx context.Context, req payments.VerifyRequest) (payments.VerifyResult, error)
}

// PaymentServiceDeps bundles collaborators for server-side payment verification.
type PaymentServiceDeps struct {
	Orders       repositories.OrderRepository
	CustomOrders repositories.CustomOrderRepository
	Invoices     repositories.InvoiceRepository
	Receipts     repositories.ReceiptRepository
	Gateway      transactionVerifier
	Documents    DocumentGenerator
	Notifier     Notifier
	Events       OrderEventPublisher
	UnitOfWork   repositories.UnitOfWork
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders       repositories.OrderRepository
	customOrders repositories.CustomOrderRepository
	invoices     repositories.InvoiceRepository
	receipts     repositories.ReceiptRepository
	gateway      transactionVerifier
	documents    DocumentGenerator
	notifier     Notifier
	events       OrderEventPublisher
	unitOfWork   repositories.UnitOfWork
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Invoices == nil {
		return nil, errors.New("payment service: invoice repository is required")
	}
	if deps.Receipts == nil {
		return nil, errors.New("payment service: receipt repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: payment gateway is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:       deps.Orders,
		customOrders: deps.CustomOrders,
		invoices:     deps.Invoices,
		receipts:     deps.Receipts,
		gateway:      deps.Gateway,
		documents:    deps.Documents,
		notifier:     deps.Notifier,
		events:       deps.Events,
		unitOfWork:   unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// VerifyOrderPayment confirms a charge with the gateway before any order state
// changes. The receipt table's unique payment reference makes the whole
// operation idempotent: a second verification of the same reference is a no-op.
func (s *paymentService) VerifyOrderPayment(ctx context.Context, cmd VerifyPaymentCommand) (PaymentOutcome, error) {
	reference := strings.TrimSpace(cmd.Reference)
	if reference == "" {
		return PaymentOutcome{}, fmt.Errorf("%w: payment reference is required", ErrPaymentInvalidInput)
	}

	if receipt, err := s.receipts.FindByPaymentReference(ctx, reference); err == nil {
		return PaymentOutcome{Reference: reference, AlreadyProcessed: true, Receipt: receipt}, nil
	} else if !isNotFound(err) {
		return PaymentOutcome{}, err
	}

	order, err := s.orders.FindByPaymentReference(ctx, reference)
	if err != nil {
		if isNotFound(err) {
			return PaymentOutcome{}, fmt.Errorf("%w: %s", ErrPaymentReferenceNotFound, reference)
		}
		return PaymentOutcome{}, err
	}

	verified, err := s.verify(ctx, reference)
	if err != nil {
		return PaymentOutcome{}, err
	}
	if verified.Amount != order.Totals.Total {
		return PaymentOutcome{}, fmt.Errorf("%w: charged %d, owed %d", ErrPaymentAmountMismatch, verified.Amount, order.Totals.Total)
	}

	now := s.clock()
	prevStatus := order.Status
	if err := applyOrderTransition(&order, domain.OrderStatusProcessing, strings.TrimSpace(cmd.ActorID), now); err != nil {
		return PaymentOutcome{}, fmt.Errorf("%w: order is %s", ErrPaymentConflict, prevStatus)
	}

	receipt := domain.Receipt{
		ID:               receiptIDPrefix + s.newID(),
		OrderRef:         valuePtr(order.ID),
		UserID:           order.UserID,
		Amount:           verified.Amount,
		PaymentReference: reference,
		CreatedAt:        now,
	}
	// The document path is resolved before the receipt row is written so the
	// stored row and the notification reference the same URL.
	receipt.PDFURL = s.renderReceipt(ctx, receipt)

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order, &prevStatus); err != nil {
			return mapPaymentRepositoryError(err)
		}
		if err := s.receipts.Insert(txCtx, receipt); err != nil {
			return mapPaymentRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		// A concurrent verification may have inserted the receipt first.
		if errors.Is(err, ErrPaymentConflict) {
			if existing, findErr := s.receipts.FindByPaymentReference(ctx, reference); findErr == nil {
				return PaymentOutcome{Reference: reference, AlreadyProcessed: true, Receipt: existing}, nil
			}
		}
		return PaymentOutcome{}, err
	}

	s.publishEvent(ctx, OrderEventMessage{
		EventID:          s.newID(),
		Type:             orderEventPaymentConfirmed,
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		UserID:           order.UserID,
		PreviousStatus:   string(prevStatus),
		Status:           string(order.Status),
		ActorID:          cmd.ActorID,
		PaymentReference: reference,
		OccurredAt:       now,
	})
	s.notifyOrderPaid(ctx, order, receipt)

	return PaymentOutcome{
		Reference: reference,
		Receipt:   receipt,
		Order:     &order,
	}, nil
}

// VerifyInvoicePayment settles a custom-order balance invoice. On success the
// linked custom order's delivery axis moves to in_progress.
func (s *paymentService) VerifyInvoicePayment(ctx context.Context, cmd VerifyInvoicePaymentCommand) (PaymentOutcome, error) {
	invoiceID := strings.TrimSpace(cmd.InvoiceID)
	reference := strings.TrimSpace(cmd.Reference)
	if invoiceID == "" || reference == "" {
		return PaymentOutcome{}, fmt.Errorf("%w: invoice id and payment reference are required", ErrPaymentInvalidInput)
	}

	if receipt, err := s.receipts.FindByPaymentReference(ctx, reference); err == nil {
		return PaymentOutcome{Reference: reference, AlreadyProcessed: true, Receipt: receipt}, nil
	} else if !isNotFound(err) {
		return PaymentOutcome{}, err
	}

	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		if isNotFound(err) {
			return PaymentOutcome{}, fmt.Errorf("%w: invoice %s", ErrPaymentReferenceNotFound, invoiceID)
		}
		return PaymentOutcome{}, err
	}
	if invoice.Paid {
		return PaymentOutcome{Reference: reference, AlreadyProcessed: true, Invoice: &invoice}, nil
	}

	verified, err := s.verify(ctx, reference)
	if err != nil {
		return PaymentOutcome{}, err
	}
	// The invoice carries the full price; the customer owes the balance after
	// the deposit recorded at issuance.
	balance := invoice.Amount - invoice.Deposit
	if verified.Amount != balance {
		return PaymentOutcome{}, fmt.Errorf("%w: charged %d, owed %d", ErrPaymentAmountMismatch, verified.Amount, balance)
	}

	now := s.clock()
	receipt := domain.Receipt{
		ID:               receiptIDPrefix + s.newID(),
		InvoiceRef:       valuePtr(invoice.ID),
		UserID:           invoice.UserID,
		Amount:           verified.Amount,
		PaymentReference: reference,
		CreatedAt:        now,
	}
	receipt.PDFURL = s.renderReceipt(ctx, receipt)

	var paid domain.Invoice
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		updated, err := s.invoices.MarkPaid(txCtx, invoice.ID, now)
		if err != nil {
			return mapPaymentRepositoryError(err)
		}
		paid = updated
		if err := s.receipts.Insert(txCtx, receipt); err != nil {
			return mapPaymentRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPaymentConflict) {
			if existing, findErr := s.receipts.FindByPaymentReference(ctx, reference); findErr == nil {
				return PaymentOutcome{Reference: reference, AlreadyProcessed: true, Receipt: existing}, nil
			}
		}
		return PaymentOutcome{}, err
	}

	customOrder := s.startDelivery(ctx, paid)

	s.notifyInvoicePaid(ctx, paid, receipt)

	return PaymentOutcome{
		Reference:   reference,
		Receipt:     receipt,
		Invoice:     &paid,
		CustomOrder: customOrder,
	}, nil
}

func (s *paymentService) ListReceipts(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Receipt], error) {
	page, err := s.receipts.ListByUser(ctx, strings.TrimSpace(userID), pager)
	if err != nil {
		return domain.CursorPage[Receipt]{}, mapPaymentRepositoryError(err)
	}
	return page, nil
}

func (s *paymentService) ListInvoices(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Invoice], error) {
	page, err := s.invoices.ListByUser(ctx, strings.TrimSpace(userID), pager)
	if err != nil {
		return domain.CursorPage[Invoice]{}, mapPaymentRepositoryError(err)
	}
	return page, nil
}

// verify asks the gateway for the authoritative charge state. Anything short
// of a succeeded charge is a verification failure.
func (s *paymentService) verify(ctx context.Context, reference string) (payments.VerifyResult, error) {
	result, err := s.gateway.VerifyTransaction(ctx, payments.VerifyRequest{Reference: reference})
	if err != nil {
		return payments.VerifyResult{}, fmt.Errorf("%w: %v", ErrPaymentVerificationFailed, err)
	}
	if !result.Succeeded() {
		return payments.VerifyResult{}, fmt.Errorf("%w: gateway status %q", ErrPaymentVerificationFailed, result.Status)
	}
	return result, nil
}

// renderReceipt is best-effort. A receipt without a PDF is still a receipt.
func (s *paymentService) renderReceipt(ctx context.Context, receipt domain.Receipt) string {
	if s.documents == nil {
		return ""
	}
	path, err := s.documents.GenerateReceipt(ctx, receipt)
	if err != nil {
		s.logger(ctx, "payment.receipt.document.failed", map[string]any{
			"receipt":   receipt.ID,
			"reference": receipt.PaymentReference,
			"error":     err.Error(),
		})
		return ""
	}
	return path
}

// startDelivery nudges the custom order's delivery axis once its balance is
// settled. Best-effort: the payment outcome stands even if this write fails.
func (s *paymentService) startDelivery(ctx context.Context, invoice domain.Invoice) *CustomOrder {
	if s.customOrders == nil {
		return nil
	}
	order, err := s.customOrders.FindByID(ctx, invoice.CustomOrderRef)
	if err != nil {
		s.logger(ctx, "payment.invoice.custom_order.lookup.failed", map[string]any{
			"invoice":     invoice.ID,
			"customOrder": invoice.CustomOrderRef,
			"error":       err.Error(),
		})
		return nil
	}

	if order.DeliveryStatus != domain.DeliveryStatusNotStarted {
		return &order
	}
	if order.Status != domain.CustomOrderStatusInProgress && order.Status != domain.CustomOrderStatusCompleted {
		return &order
	}

	prevStatus := order.Status
	order.DeliveryStatus = domain.DeliveryStatusInProgress
	order.UpdatedAt = s.clock()
	if err := s.customOrders.Update(ctx, order, &prevStatus); err != nil {
		s.logger(ctx, "payment.invoice.delivery.start.failed", map[string]any{
			"invoice":     invoice.ID,
			"customOrder": order.ID,
			"error":       err.Error(),
		})
		return nil
	}
	return &order
}

func (s *paymentService) notifyOrderPaid(ctx context.Context, order domain.Order, receipt domain.Receipt) {
	if s.notifier == nil {
		return
	}
	body := fmt.Sprintf("Payment for order %s has been confirmed. We are preparing your items.", order.OrderNumber)
	if receipt.PDFURL != "" {
		body = fmt.Sprintf("%s Your receipt: %s", body, receipt.PDFURL)
	}
	notice := Notice{
		UserID:  order.UserID,
		Subject: fmt.Sprintf("Payment confirmed for %s", order.OrderNumber),
		Body:    body,
	}
	if order.Contact != nil {
		notice.Email = order.Contact.Email
		notice.Phone = order.Contact.Phone
	}
	s.notifier.Notify(ctx, notice)
}

func (s *paymentService) notifyInvoicePaid(ctx context.Context, invoice domain.Invoice, receipt domain.Receipt) {
	if s.notifier == nil {
		return
	}
	body := "Your custom order balance has been settled. Delivery will be arranged shortly."
	if receipt.PDFURL != "" {
		body = fmt.Sprintf("%s Your receipt: %s", body, receipt.PDFURL)
	}
	s.notifier.Notify(ctx, Notice{
		UserID:  invoice.UserID,
		Subject: "Invoice paid",
		Body:    body,
	})
}

func (s *paymentService) publishEvent(ctx context.Context, event OrderEventMessage) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "payment.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *paymentService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func mapPaymentRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentReferenceNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPaymentConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}
	return err
}
