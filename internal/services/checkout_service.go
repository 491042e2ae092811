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
	// ErrCheckoutEmptyCart indicates checkout was attempted on an empty cart.
	ErrCheckoutEmptyCart = errors.New("checkout: cart is empty")
	// ErrCheckoutInvalidAddress indicates no usable delivery address was supplied.
	ErrCheckoutInvalidAddress = errors.New("checkout: invalid delivery address")
	// ErrCheckoutInvalidInput signals the caller provided invalid data.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutProductChanged indicates a cart item no longer matches the catalog.
	ErrCheckoutProductChanged = errors.New("checkout: product no longer available")
	// ErrCheckoutGatewayUnavailable indicates the payment gateway rejected initialization.
	ErrCheckoutGatewayUnavailable = errors.New("checkout: payment gateway unavailable")
)

const orderCounterID = "orders"

// transactionInitializer is the slice of the payments manager checkout needs.
type transactionInitializer interface {
	InitializeTransaction(ctx context.Context, req payments.InitializeRequest) (payments.InitializeResult, error)
}

// CheckoutServiceDeps bundles collaborators required to construct the checkout service.
type CheckoutServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	Pricing     *PricingEngine
	Gateway     transactionInitializer
	Events      OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	orders   repositories.OrderRepository
	counters repositories.CounterRepository
	pricing  *PricingEngine
	gateway  transactionInitializer
	events   OrderEventPublisher
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("checkout service: product repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("checkout service: counter repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing engine is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("checkout service: payment gateway is required")
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

	return &checkoutService{
		carts:    deps.Carts,
		products: deps.Products,
		orders:   deps.Orders,
		counters: deps.Counters,
		pricing:  deps.Pricing,
		gateway:  deps.Gateway,
		events:   deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *checkoutService) BeginCheckout(ctx context.Context, cmd BeginCheckoutCommand) (CheckoutResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	email := strings.TrimSpace(cmd.Email)
	if email == "" {
		return CheckoutResult{}, fmt.Errorf("%w: email is required", ErrCheckoutInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return CheckoutResult{}, ErrCheckoutEmptyCart
		}
		return CheckoutResult{}, err
	}
	if len(cart.Items) == 0 {
		return CheckoutResult{}, ErrCheckoutEmptyCart
	}

	address := cmd.Address
	if address == nil {
		address = cart.DeliveryAddress
	}
	if address == nil || validateAddress(*address) != nil {
		return CheckoutResult{}, ErrCheckoutInvalidAddress
	}

	items, lines, err := s.snapshotItems(ctx, cart)
	if err != nil {
		return CheckoutResult{}, err
	}

	breakdown, err := s.pricing.Quote(ctx, lines, address.State)
	if err != nil {
		return CheckoutResult{}, err
	}

	if existing, ok := s.reusablePendingOrder(ctx, userID, items, breakdown.Total); ok {
		return s.resumeCheckout(ctx, existing, email, cmd)
	}

	now := s.clock()
	seq, err := s.counters.Next(ctx, orderCounterID, 1)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("checkout: allocating order number: %w", err)
	}

	reference := "AC-" + s.newID()
	order := domain.Order{
		ID:          orderIDPrefix + s.newID(),
		OrderNumber: fmt.Sprintf("AC-%04d-%06d", now.Year(), seq),
		UserID:      userID,
		Status:      domain.OrderStatusAwaitingPayment,
		Currency:    breakdown.Currency,
		Items:       items,
		Totals: domain.OrderTotals{
			Subtotal: breakdown.Subtotal,
			Discount: breakdown.Discount,
			Shipping: breakdown.Shipping,
			Total:    breakdown.Total,
		},
		DeliveryAddress:  cloneAddress(address),
		PaymentReference: valuePtr(reference),
		Contact: &domain.OrderContact{
			Email: email,
			Phone: strings.TrimSpace(cmd.Phone),
		},
		Audit: domain.OrderAudit{
			CreatedBy: valuePtr(userID),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cart.Promotion != nil && cart.Promotion.Applied {
		promo := *cart.Promotion
		order.Promotion = &promo
	}
	if cmd.Coordinates != nil {
		coords := *cmd.Coordinates
		order.Coordinates = &coords
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return CheckoutResult{}, mapOrderRepositoryError(err)
	}

	init, err := s.gateway.InitializeTransaction(ctx, payments.InitializeRequest{
		Amount:      order.Totals.Total,
		Currency:    order.Currency,
		Email:       email,
		Reference:   reference,
		CallbackURL: strings.TrimSpace(cmd.CallbackURL),
		Metadata: map[string]string{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
		},
	})
	if err != nil {
		// The order stays awaiting_payment so the charge can be retried
		// against the same reference.
		s.logger(ctx, "checkout.gateway.failed", map[string]any{
			"order":     order.ID,
			"reference": reference,
			"error":     err.Error(),
		})
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutGatewayUnavailable, err)
	}

	if err := s.carts.ClearCart(ctx, userID); err != nil {
		s.logger(ctx, "checkout.cart.clear.failed", map[string]any{
			"user":  userID,
			"error": err.Error(),
		})
	}

	s.publishCreated(ctx, order, now)

	return CheckoutResult{
		Order:            order,
		Reference:        reference,
		AuthorizationURL: init.AuthorizationURL,
		AccessCode:       init.AccessCode,
	}, nil
}

// reusablePendingOrder looks for an awaiting_payment order from an earlier
// attempt whose snapshot still matches the cart, so a retry after a gateway
// outage resumes that order instead of minting a second order number.
func (s *checkoutService) reusablePendingOrder(ctx context.Context, userID string, items []domain.OrderLineItem, total int64) (domain.Order, bool) {
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     userID,
		Status:     []string{string(domain.OrderStatusAwaitingPayment)},
		Pagination: domain.Pagination{PageSize: 10},
	})
	if err != nil {
		return domain.Order{}, false
	}
	for _, order := range page.Items {
		if order.Status != domain.OrderStatusAwaitingPayment || order.PaymentReference == nil {
			continue
		}
		if order.Totals.Total == total && sameOrderLines(order.Items, items) {
			return order, true
		}
	}
	return domain.Order{}, false
}

func sameOrderLines(a, b []domain.OrderLineItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ProductRef != b[i].ProductRef || a[i].VariantSKU != b[i].VariantSKU ||
			a[i].Quantity != b[i].Quantity || a[i].UnitPrice != b[i].UnitPrice ||
			a[i].DiscountPercent != b[i].DiscountPercent {
			return false
		}
	}
	return true
}

// resumeCheckout reopens the gateway charge for an order persisted by an
// earlier attempt. The order keeps its number and payment reference so a later
// verification matches, and no second created event is published.
func (s *checkoutService) resumeCheckout(ctx context.Context, order domain.Order, email string, cmd BeginCheckoutCommand) (CheckoutResult, error) {
	reference := *order.PaymentReference
	init, err := s.gateway.InitializeTransaction(ctx, payments.InitializeRequest{
		Amount:      order.Totals.Total,
		Currency:    order.Currency,
		Email:       email,
		Reference:   reference,
		CallbackURL: strings.TrimSpace(cmd.CallbackURL),
		Metadata: map[string]string{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
		},
	})
	if err != nil {
		s.logger(ctx, "checkout.gateway.failed", map[string]any{
			"order":     order.ID,
			"reference": reference,
			"error":     err.Error(),
		})
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutGatewayUnavailable, err)
	}

	if err := s.carts.ClearCart(ctx, order.UserID); err != nil {
		s.logger(ctx, "checkout.cart.clear.failed", map[string]any{
			"user":  order.UserID,
			"error": err.Error(),
		})
	}

	return CheckoutResult{
		Order:            order,
		Reference:        reference,
		AuthorizationURL: init.AuthorizationURL,
		AccessCode:       init.AccessCode,
	}, nil
}

// snapshotItems re-reads the catalog so the order freezes current prices and
// verifies stock at checkout time, not cart time.
func (s *checkoutService) snapshotItems(ctx context.Context, cart Cart) ([]domain.OrderLineItem, []QuoteLine, error) {
	items := make([]domain.OrderLineItem, 0, len(cart.Items))
	lines := make([]QuoteLine, 0, len(cart.Items))

	for _, cartItem := range cart.Items {
		product, err := s.products.FindByID(ctx, cartItem.ProductID)
		if err != nil {
			if isNotFound(err) {
				return nil, nil, fmt.Errorf("%w: %s", ErrCheckoutProductChanged, cartItem.ProductID)
			}
			return nil, nil, err
		}
		if !product.IsPublished {
			return nil, nil, fmt.Errorf("%w: %s is not published", ErrCheckoutProductChanged, product.ID)
		}
		variant, err := findVariant(product, cartItem.VariantSKU)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s/%s", ErrCheckoutProductChanged, cartItem.ProductID, cartItem.VariantSKU)
		}
		if variant.Stock < cartItem.Quantity {
			return nil, nil, fmt.Errorf("%w: %s out of stock", ErrCheckoutProductChanged, variant.SKU)
		}

		unitPrice := product.BasePrice + variant.PriceDelta
		discount := product.DiscountPercent
		if cart.Promotion != nil && cart.Promotion.Applied && cart.Promotion.PercentOff > discount {
			discount = cart.Promotion.PercentOff
		}
		lineTotal, err := LineTotal(unitPrice, discount, cartItem.Quantity)
		if err != nil {
			return nil, nil, err
		}

		items = append(items, domain.OrderLineItem{
			ProductRef:      product.ID,
			VariantSKU:      variant.SKU,
			Name:            product.Name,
			Size:            variant.Size,
			Color:           variant.Color,
			Quantity:        cartItem.Quantity,
			UnitPrice:       unitPrice,
			DiscountPercent: discount,
			ImagePath:       firstImagePath(product),
			LineTotal:       lineTotal,
		})
		lines = append(lines, QuoteLine{
			ProductRef:      product.ID,
			VariantSKU:      variant.SKU,
			UnitPrice:       unitPrice,
			DiscountPercent: discount,
			Quantity:        cartItem.Quantity,
		})
	}
	return items, lines, nil
}

func (s *checkoutService) publishCreated(ctx context.Context, order domain.Order, now time.Time) {
	if s.events == nil {
		return
	}
	event := OrderEventMessage{
		EventID:     s.newID(),
		Type:        orderEventCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		OccurredAt:  now,
	}
	if order.PaymentReference != nil {
		event.PaymentReference = *order.PaymentReference
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "checkout.event.publish.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
	}
}
