package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/platform/textutil"
	"github.com/adunni-couture/api/internal/repositories"
)

var (
	// ErrCustomOrderInvalidInput signals the caller provided invalid data.
	ErrCustomOrderInvalidInput = errors.New("custom order: invalid input")
	// ErrCustomOrderNotFound indicates the custom order could not be located.
	ErrCustomOrderNotFound = errors.New("custom order: not found")
	// ErrCustomOrderInvalidState indicates an invalid workflow transition.
	ErrCustomOrderInvalidState = errors.New("custom order: invalid status transition")
	// ErrCustomOrderConflict indicates optimistic concurrency conflicts.
	ErrCustomOrderConflict = errors.New("custom order: conflict")
	// ErrCustomOrderForbidden indicates the caller does not own the order.
	ErrCustomOrderForbidden = errors.New("custom order: forbidden")
	// ErrCustomOrderMissingPrice indicates pricing is required before the move.
	ErrCustomOrderMissingPrice = errors.New("custom order: price is required before work starts")
	// ErrCustomOrderDeliveryLocked indicates the delivery axis cannot move yet.
	ErrCustomOrderDeliveryLocked = errors.New("custom order: delivery cannot advance before work starts")
)

// customOrderStateTransitions governs the workflow axis.
var customOrderStateTransitions = map[domain.CustomOrderStatus][]domain.CustomOrderStatus{
	domain.CustomOrderStatusPending:    {domain.CustomOrderStatusInProgress, domain.CustomOrderStatusCancelled},
	domain.CustomOrderStatusInProgress: {domain.CustomOrderStatusCompleted, domain.CustomOrderStatusCancelled},
}

// deliveryTransitions governs the delivery axis. Strictly forward.
var deliveryTransitions = map[domain.DeliveryStatus]domain.DeliveryStatus{
	domain.DeliveryStatusNotStarted: domain.DeliveryStatusInProgress,
	domain.DeliveryStatusInProgress: domain.DeliveryStatusDelivered,
}

func canTransitionCustomOrder(current, target domain.CustomOrderStatus) bool {
	if current == target {
		return true
	}
	for _, next := range customOrderStateTransitions[current] {
		if next == target {
			return true
		}
	}
	return false
}

// notesPolicy strips all markup from free-text customer input.
var notesPolicy = bluemonday.StrictPolicy()

// CustomOrderServiceDeps bundles collaborators for the bespoke order workflow.
type CustomOrderServiceDeps struct {
	CustomOrders repositories.CustomOrderRepository
	Invoices     repositories.InvoiceRepository
	Documents    DocumentGenerator
	Notifier     Notifier
	UnitOfWork   repositories.UnitOfWork
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type customOrderService struct {
	customOrders repositories.CustomOrderRepository
	invoices     repositories.InvoiceRepository
	documents    DocumentGenerator
	notifier     Notifier
	unitOfWork   repositories.UnitOfWork
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

// NewCustomOrderService wires dependencies into a concrete CustomOrderService.
func NewCustomOrderService(deps CustomOrderServiceDeps) (CustomOrderService, error) {
	if deps.CustomOrders == nil {
		return nil, errors.New("custom order service: custom order repository is required")
	}
	if deps.Invoices == nil {
		return nil, errors.New("custom order service: invoice repository is required")
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

	return &customOrderService{
		customOrders: deps.CustomOrders,
		invoices:     deps.Invoices,
		documents:    deps.Documents,
		notifier:     deps.Notifier,
		unitOfWork:   unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *customOrderService) Submit(ctx context.Context, cmd SubmitCustomOrderCommand) (CustomOrder, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CustomOrder{}, fmt.Errorf("%w: user id is required", ErrCustomOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Contact.Name) == "" {
		return CustomOrder{}, fmt.Errorf("%w: contact name is required", ErrCustomOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Contact.Email) == "" && strings.TrimSpace(cmd.Contact.Phone) == "" {
		return CustomOrder{}, fmt.Errorf("%w: contact email or phone is required", ErrCustomOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Fabric) == "" {
		return CustomOrder{}, fmt.Errorf("%w: fabric is required", ErrCustomOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Style) == "" {
		return CustomOrder{}, fmt.Errorf("%w: style is required", ErrCustomOrderInvalidInput)
	}
	measurements := textutil.NormalizeStringMap(cmd.Measurements)
	if len(measurements) == 0 {
		return CustomOrder{}, fmt.Errorf("%w: measurements are required", ErrCustomOrderInvalidInput)
	}
	if cmd.Deposit < 0 {
		return CustomOrder{}, fmt.Errorf("%w: deposit cannot be negative", ErrCustomOrderInvalidInput)
	}

	now := s.clock()

	order := domain.CustomOrder{
		ID:     customOrderIDPrefix + s.newID(),
		UserID: userID,
		Contact: domain.CustomOrderContact{
			Name:  strings.TrimSpace(cmd.Contact.Name),
			Email: strings.TrimSpace(cmd.Contact.Email),
			Phone: strings.TrimSpace(cmd.Contact.Phone),
		},
		Fabric:          strings.TrimSpace(cmd.Fabric),
		Style:           strings.TrimSpace(cmd.Style),
		Measurements:    measurements,
		Notes:           strings.TrimSpace(notesPolicy.Sanitize(cmd.Notes)),
		DeliveryAddress: cloneAddress(cmd.Address),
		Status:          domain.CustomOrderStatusPending,
		DeliveryStatus:  domain.DeliveryStatusNotStarted,
		Deposit:         cmd.Deposit,
		Audit: domain.OrderAudit{
			CreatedBy: valuePtr(userID),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.customOrders.Insert(ctx, order); err != nil {
		return CustomOrder{}, mapCustomOrderRepositoryError(err)
	}

	s.notify(ctx, order, "Custom order received",
		fmt.Sprintf("Thank you %s. We have received your %s request and will send a quote shortly.", order.Contact.Name, order.Style))

	return order, nil
}

func (s *customOrderService) ListCustomOrders(ctx context.Context, filter CustomOrderListFilter) (domain.CursorPage[CustomOrder], error) {
	page, err := s.customOrders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[CustomOrder]{}, mapCustomOrderRepositoryError(err)
	}
	return page, nil
}

func (s *customOrderService) GetCustomOrder(ctx context.Context, cmd GetCustomOrderCommand) (CustomOrder, error) {
	orderID := strings.TrimSpace(cmd.CustomOrderID)
	if orderID == "" {
		return CustomOrder{}, fmt.Errorf("%w: custom order id is required", ErrCustomOrderInvalidInput)
	}

	order, err := s.customOrders.FindByID(ctx, orderID)
	if err != nil {
		return CustomOrder{}, mapCustomOrderRepositoryError(err)
	}
	if !cmd.IsStaff && order.UserID != strings.TrimSpace(cmd.RequestingUserID) {
		return CustomOrder{}, ErrCustomOrderForbidden
	}
	return order, nil
}

// SetPriceAndStart prices the order and moves it to in_progress in one durable
// write. Invoice and PDF generation happen after the commit and are
// best-effort: their failure never rolls the status back.
func (s *customOrderService) SetPriceAndStart(ctx context.Context, cmd SetPriceCommand) (CustomOrder, error) {
	orderID := strings.TrimSpace(cmd.CustomOrderID)
	if orderID == "" {
		return CustomOrder{}, fmt.Errorf("%w: custom order id is required", ErrCustomOrderInvalidInput)
	}
	if cmd.Price == nil {
		return CustomOrder{}, ErrCustomOrderMissingPrice
	}
	if *cmd.Price <= 0 {
		return CustomOrder{}, fmt.Errorf("%w: price must be positive", ErrCustomOrderInvalidInput)
	}

	order, err := s.customOrders.FindByID(ctx, orderID)
	if err != nil {
		return CustomOrder{}, mapCustomOrderRepositoryError(err)
	}
	if cmd.ExpectedStatus != nil && order.Status != *cmd.ExpectedStatus {
		return CustomOrder{}, fmt.Errorf("%w: expected status %q but was %q", ErrCustomOrderConflict, *cmd.ExpectedStatus, order.Status)
	}
	if order.Status != domain.CustomOrderStatusPending {
		return CustomOrder{}, fmt.Errorf("%w: %s cannot be priced", ErrCustomOrderInvalidState, order.Status)
	}
	if *cmd.Price < order.Deposit {
		return CustomOrder{}, fmt.Errorf("%w: price is below the recorded deposit", ErrCustomOrderInvalidInput)
	}

	now := s.clock()
	prevStatus := order.Status
	order.Status = domain.CustomOrderStatusInProgress
	order.Price = valuePtr(*cmd.Price)
	order.UpdatedAt = now
	if actor := strings.TrimSpace(cmd.ActorID); actor != "" {
		order.Audit.UpdatedBy = valuePtr(actor)
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.customOrders.Update(txCtx, order, &prevStatus); err != nil {
			return mapCustomOrderRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return CustomOrder{}, err
	}

	s.issueInvoice(ctx, &order, now)

	s.notify(ctx, order, "Your custom order has been priced",
		fmt.Sprintf("Good news %s. Your %s order is priced and work has started.", order.Contact.Name, order.Style))

	return order, nil
}

// issueInvoice creates the balance invoice for a freshly started order. Every
// failure is logged and swallowed; the caller already committed the status.
func (s *customOrderService) issueInvoice(ctx context.Context, order *CustomOrder, now time.Time) {
	invoice := domain.Invoice{
		ID:             invoiceIDPrefix + s.newID(),
		CustomOrderRef: order.ID,
		UserID:         order.UserID,
		Amount:         *order.Price,
		Deposit:        order.Deposit,
		CreatedAt:      now,
	}

	if s.documents != nil {
		path, err := s.documents.GenerateInvoice(ctx, invoice)
		if err != nil {
			s.logger(ctx, "custom_order.invoice.document.failed", map[string]any{
				"customOrder": order.ID,
				"invoice":     invoice.ID,
				"error":       err.Error(),
			})
			return
		}
		invoice.PDFURL = path
	}

	if err := s.invoices.Insert(ctx, invoice); err != nil {
		s.logger(ctx, "custom_order.invoice.insert.failed", map[string]any{
			"customOrder": order.ID,
			"invoice":     invoice.ID,
			"error":       err.Error(),
		})
		return
	}

	// Linking the invoice back is best-effort too.
	order.InvoiceRef = valuePtr(invoice.ID)
	if err := s.customOrders.Update(ctx, *order, nil); err != nil {
		s.logger(ctx, "custom_order.invoice.link.failed", map[string]any{
			"customOrder": order.ID,
			"invoice":     invoice.ID,
			"error":       err.Error(),
		})
	}
}

func (s *customOrderService) TransitionStatus(ctx context.Context, cmd CustomOrderTransitionCommand) (CustomOrder, error) {
	orderID := strings.TrimSpace(cmd.CustomOrderID)
	if orderID == "" {
		return CustomOrder{}, fmt.Errorf("%w: custom order id is required", ErrCustomOrderInvalidInput)
	}

	order, err := s.customOrders.FindByID(ctx, orderID)
	if err != nil {
		return CustomOrder{}, mapCustomOrderRepositoryError(err)
	}
	if cmd.ExpectedStatus != nil && order.Status != *cmd.ExpectedStatus {
		return CustomOrder{}, fmt.Errorf("%w: expected status %q but was %q", ErrCustomOrderConflict, *cmd.ExpectedStatus, order.Status)
	}
	if order.Status == cmd.TargetStatus {
		return order, nil
	}
	if !canTransitionCustomOrder(order.Status, cmd.TargetStatus) {
		return CustomOrder{}, fmt.Errorf("%w: %s to %s", ErrCustomOrderInvalidState, order.Status, cmd.TargetStatus)
	}
	if cmd.TargetStatus == domain.CustomOrderStatusInProgress && order.Price == nil {
		return CustomOrder{}, ErrCustomOrderMissingPrice
	}

	now := s.clock()
	prevStatus := order.Status
	order.Status = cmd.TargetStatus
	order.UpdatedAt = now
	if actor := strings.TrimSpace(cmd.ActorID); actor != "" {
		order.Audit.UpdatedBy = valuePtr(actor)
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.customOrders.Update(txCtx, order, &prevStatus); err != nil {
			return mapCustomOrderRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return CustomOrder{}, err
	}

	s.notify(ctx, order, "Custom order update", customOrderStatusMessage(order))

	return order, nil
}

func (s *customOrderService) AdvanceDeliveryStatus(ctx context.Context, cmd AdvanceDeliveryCommand) (CustomOrder, error) {
	orderID := strings.TrimSpace(cmd.CustomOrderID)
	if orderID == "" {
		return CustomOrder{}, fmt.Errorf("%w: custom order id is required", ErrCustomOrderInvalidInput)
	}

	order, err := s.customOrders.FindByID(ctx, orderID)
	if err != nil {
		return CustomOrder{}, mapCustomOrderRepositoryError(err)
	}

	if order.Status != domain.CustomOrderStatusInProgress && order.Status != domain.CustomOrderStatusCompleted {
		return CustomOrder{}, fmt.Errorf("%w: order is %s", ErrCustomOrderDeliveryLocked, order.Status)
	}
	if order.DeliveryStatus == cmd.Target {
		return order, nil
	}
	if next, ok := deliveryTransitions[order.DeliveryStatus]; !ok || next != cmd.Target {
		return CustomOrder{}, fmt.Errorf("%w: delivery %s to %s", ErrCustomOrderInvalidState, order.DeliveryStatus, cmd.Target)
	}

	now := s.clock()
	prevStatus := order.Status
	order.DeliveryStatus = cmd.Target
	order.UpdatedAt = now
	if actor := strings.TrimSpace(cmd.ActorID); actor != "" {
		order.Audit.UpdatedBy = valuePtr(actor)
	}

	if err := s.customOrders.Update(ctx, order, &prevStatus); err != nil {
		return CustomOrder{}, mapCustomOrderRepositoryError(err)
	}

	s.notify(ctx, order, "Delivery update", deliveryStatusMessage(order))

	return order, nil
}

func (s *customOrderService) Cancel(ctx context.Context, cmd CancelCustomOrderCommand) (CustomOrder, error) {
	orderID := strings.TrimSpace(cmd.CustomOrderID)
	if orderID == "" {
		return CustomOrder{}, fmt.Errorf("%w: custom order id is required", ErrCustomOrderInvalidInput)
	}

	order, err := s.customOrders.FindByID(ctx, orderID)
	if err != nil {
		return CustomOrder{}, mapCustomOrderRepositoryError(err)
	}
	if cmd.ExpectedStatus != nil && order.Status != *cmd.ExpectedStatus {
		return CustomOrder{}, fmt.Errorf("%w: expected status %q but was %q", ErrCustomOrderConflict, *cmd.ExpectedStatus, order.Status)
	}
	if !canTransitionCustomOrder(order.Status, domain.CustomOrderStatusCancelled) {
		return CustomOrder{}, fmt.Errorf("%w: %s cannot be cancelled", ErrCustomOrderInvalidState, order.Status)
	}

	now := s.clock()
	prevStatus := order.Status
	order.Status = domain.CustomOrderStatusCancelled
	order.UpdatedAt = now
	if actor := strings.TrimSpace(cmd.ActorID); actor != "" {
		order.Audit.UpdatedBy = valuePtr(actor)
	}

	if err := s.customOrders.Update(ctx, order, &prevStatus); err != nil {
		return CustomOrder{}, mapCustomOrderRepositoryError(err)
	}

	s.notify(ctx, order, "Custom order cancelled",
		fmt.Sprintf("Your %s order has been cancelled.", order.Style))

	return order, nil
}

func (s *customOrderService) notify(ctx context.Context, order CustomOrder, subject, body string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, Notice{
		UserID:  order.UserID,
		Email:   order.Contact.Email,
		Phone:   order.Contact.Phone,
		Subject: subject,
		Body:    body,
	})
}

func customOrderStatusMessage(order CustomOrder) string {
	switch order.Status {
	case domain.CustomOrderStatusInProgress:
		return fmt.Sprintf("Work has started on your %s order.", order.Style)
	case domain.CustomOrderStatusCompleted:
		return fmt.Sprintf("Your %s order is ready.", order.Style)
	case domain.CustomOrderStatusCancelled:
		return fmt.Sprintf("Your %s order has been cancelled.", order.Style)
	default:
		return fmt.Sprintf("Your %s order is now %s.", order.Style, order.Status)
	}
}

func deliveryStatusMessage(order CustomOrder) string {
	switch order.DeliveryStatus {
	case domain.DeliveryStatusInProgress:
		return fmt.Sprintf("Your %s order is out for delivery.", order.Style)
	case domain.DeliveryStatusDelivered:
		return fmt.Sprintf("Your %s order has been delivered. Thank you.", order.Style)
	default:
		return fmt.Sprintf("Delivery for your %s order is %s.", order.Style, order.DeliveryStatus)
	}
}

func mapCustomOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCustomOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCustomOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("custom order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *customOrderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}
