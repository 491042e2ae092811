package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/payments"
)

type stubGateway struct {
	requests []payments.InitializeRequest
	result   payments.InitializeResult
	err      error
}

func (g *stubGateway) InitializeTransaction(_ context.Context, req payments.InitializeRequest) (payments.InitializeResult, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return payments.InitializeResult{}, g.err
	}
	result := g.result
	if result.Reference == "" {
		result.Reference = req.Reference
	}
	return result, nil
}

func seededCart() domain.Cart {
	return domain.Cart{
		ID:       "crt_1",
		UserID:   "user-1",
		Currency: "NGN",
		DeliveryAddress: &domain.Address{
			Recipient: "Amaka Obi",
			Line1:     "12 Allen Avenue",
			City:      "Ikeja",
			State:     "lagos",
			Country:   "NG",
		},
		Items: []domain.CartItem{
			{
				ID:         "itm_1",
				ProductID:  "prd_ankara",
				VariantSKU: "ANK-M-RED",
				Quantity:   2,
				UnitPrice:  5000,
				AddedAt:    testInstant,
			},
		},
		CreatedAt: testInstant,
		UpdatedAt: testInstant,
	}
}

func newTestCheckoutService(t *testing.T, carts *memoryCartRepo, products *memoryProductRepo, orders *memoryOrderRepo, gateway *stubGateway, opts ...func(*CheckoutServiceDeps)) CheckoutService {
	t.Helper()
	rates := newMemoryShippingRateRepo(domain.ShippingRate{
		ID:       "rate_lagos",
		Zone:     "lagos-mainland",
		States:   []string{"lagos"},
		Fee:      1500,
		IsActive: true,
	})
	engine, err := NewPricingEngine(PricingEngineDeps{
		Rates:      rates,
		DefaultFee: 2000,
		Clock:      fixedClock(testInstant),
	})
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}
	deps := CheckoutServiceDeps{
		Carts:       carts,
		Products:    products,
		Orders:      orders,
		Counters:    newStubCounterRepo(),
		Pricing:     engine,
		Gateway:     gateway,
		Clock:       fixedClock(testInstant),
		IDGenerator: sequenceIDs("id"),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	svc, err := NewCheckoutService(deps)
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	return svc
}

func TestBeginCheckoutCreatesAwaitingPaymentOrder(t *testing.T) {
	carts := newMemoryCartRepo(seededCart())
	orders := newMemoryOrderRepo()
	gateway := &stubGateway{result: payments.InitializeResult{
		AccessCode:       "acc_123",
		AuthorizationURL: "https://checkout.paystack.com/acc_123",
	}}
	publisher := &capturePublisher{}
	svc := newTestCheckoutService(t, carts, newMemoryProductRepo(ankaraProduct()), orders, gateway, func(deps *CheckoutServiceDeps) {
		deps.Events = publisher
	})

	result, err := svc.BeginCheckout(context.Background(), BeginCheckoutCommand{
		UserID:      "user-1",
		Email:       "amaka@example.com",
		Phone:       "+2348012345678",
		CallbackURL: "https://shop.example.com/payments/callback",
	})
	if err != nil {
		t.Fatalf("BeginCheckout: %v", err)
	}

	order := result.Order
	if order.Status != domain.OrderStatusAwaitingPayment {
		t.Fatalf("expected awaiting_payment, got %q", order.Status)
	}
	if order.Totals.Subtotal != 10000 || order.Totals.Shipping != 1500 || order.Totals.Total != 11500 {
		t.Fatalf("unexpected totals %+v", order.Totals)
	}
	if !strings.HasPrefix(order.OrderNumber, "AC-2025-") {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if order.PaymentReference == nil || *order.PaymentReference != result.Reference {
		t.Fatalf("expected payment reference stored on the order")
	}
	if !strings.HasPrefix(result.Reference, "AC-") {
		t.Fatalf("unexpected reference %q", result.Reference)
	}
	if result.AuthorizationURL != "https://checkout.paystack.com/acc_123" {
		t.Fatalf("unexpected authorization URL %q", result.AuthorizationURL)
	}

	if len(gateway.requests) != 1 {
		t.Fatalf("expected one gateway call, got %d", len(gateway.requests))
	}
	req := gateway.requests[0]
	if req.Amount != 11500 || req.Currency != "NGN" || req.Email != "amaka@example.com" {
		t.Fatalf("unexpected gateway request %+v", req)
	}
	if req.Metadata["orderId"] != order.ID || req.Metadata["orderNumber"] != order.OrderNumber {
		t.Fatalf("expected order identifiers in gateway metadata, got %v", req.Metadata)
	}

	// Cart cleared after the charge is opened.
	if _, err := carts.GetCart(context.Background(), "user-1"); !isNotFound(err) {
		t.Fatalf("expected cart cleared, got %v", err)
	}

	events := publisher.Events()
	if len(events) != 1 || events[0].Type != "order.created" {
		t.Fatalf("expected an order.created event, got %+v", events)
	}
}

func TestBeginCheckoutRejectsEmptyCart(t *testing.T) {
	cart := seededCart()
	cart.Items = nil
	svc := newTestCheckoutService(t, newMemoryCartRepo(cart), newMemoryProductRepo(ankaraProduct()), newMemoryOrderRepo(), &stubGateway{})

	_, err := svc.BeginCheckout(context.Background(), BeginCheckoutCommand{UserID: "user-1", Email: "amaka@example.com"})
	if !errors.Is(err, ErrCheckoutEmptyCart) {
		t.Fatalf("expected ErrCheckoutEmptyCart, got %v", err)
	}
}

func TestBeginCheckoutRejectsMissingAddress(t *testing.T) {
	cart := seededCart()
	cart.DeliveryAddress = nil
	svc := newTestCheckoutService(t, newMemoryCartRepo(cart), newMemoryProductRepo(ankaraProduct()), newMemoryOrderRepo(), &stubGateway{})

	_, err := svc.BeginCheckout(context.Background(), BeginCheckoutCommand{UserID: "user-1", Email: "amaka@example.com"})
	if !errors.Is(err, ErrCheckoutInvalidAddress) {
		t.Fatalf("expected ErrCheckoutInvalidAddress, got %v", err)
	}
}

func TestBeginCheckoutRejectsStaleCartItems(t *testing.T) {
	product := ankaraProduct()
	product.IsPublished = false
	svc := newTestCheckoutService(t, newMemoryCartRepo(seededCart()), newMemoryProductRepo(product), newMemoryOrderRepo(), &stubGateway{})

	_, err := svc.BeginCheckout(context.Background(), BeginCheckoutCommand{UserID: "user-1", Email: "amaka@example.com"})
	if !errors.Is(err, ErrCheckoutProductChanged) {
		t.Fatalf("expected ErrCheckoutProductChanged, got %v", err)
	}
}

func TestBeginCheckoutKeepsOrderWhenGatewayFails(t *testing.T) {
	carts := newMemoryCartRepo(seededCart())
	orders := newMemoryOrderRepo()
	gateway := &stubGateway{err: errors.New("gateway down")}
	svc := newTestCheckoutService(t, carts, newMemoryProductRepo(ankaraProduct()), orders, gateway)

	_, err := svc.BeginCheckout(context.Background(), BeginCheckoutCommand{UserID: "user-1", Email: "amaka@example.com"})
	if !errors.Is(err, ErrCheckoutGatewayUnavailable) {
		t.Fatalf("expected ErrCheckoutGatewayUnavailable, got %v", err)
	}

	// Order persisted for retry; cart retained.
	if len(orders.orders) != 1 {
		t.Fatalf("expected the order to persist, got %d", len(orders.orders))
	}
	if _, err := carts.GetCart(context.Background(), "user-1"); err != nil {
		t.Fatalf("expected cart retained, got %v", err)
	}
}

func TestBeginCheckoutRetryResumesPendingOrder(t *testing.T) {
	carts := newMemoryCartRepo(seededCart())
	orders := newMemoryOrderRepo()
	gateway := &stubGateway{err: errors.New("gateway down")}
	svc := newTestCheckoutService(t, carts, newMemoryProductRepo(ankaraProduct()), orders, gateway)

	cmd := BeginCheckoutCommand{UserID: "user-1", Email: "amaka@example.com"}
	if _, err := svc.BeginCheckout(context.Background(), cmd); !errors.Is(err, ErrCheckoutGatewayUnavailable) {
		t.Fatalf("expected gateway failure on first attempt, got %v", err)
	}
	var first domain.Order
	for _, order := range orders.orders {
		first = order
	}

	gateway.err = nil
	gateway.result = payments.InitializeResult{AuthorizationURL: "https://checkout.paystack.com/acc_retry"}
	result, err := svc.BeginCheckout(context.Background(), cmd)
	if err != nil {
		t.Fatalf("retry BeginCheckout: %v", err)
	}

	// Same order, same number, same reference; no second order minted.
	if len(orders.orders) != 1 {
		t.Fatalf("expected one persisted order after retry, got %d", len(orders.orders))
	}
	if result.Order.ID != first.ID || result.Order.OrderNumber != first.OrderNumber {
		t.Fatalf("expected retry to resume order %s, got %s", first.ID, result.Order.ID)
	}
	if first.PaymentReference == nil || result.Reference != *first.PaymentReference {
		t.Fatalf("expected the original payment reference reused")
	}
	if _, err := carts.GetCart(context.Background(), "user-1"); !isNotFound(err) {
		t.Fatalf("expected cart cleared after successful retry, got %v", err)
	}
}

func TestBeginCheckoutReSnapshotsCurrentCatalogPrice(t *testing.T) {
	product := ankaraProduct()
	product.BasePrice = 6000
	svc := newTestCheckoutService(t, newMemoryCartRepo(seededCart()), newMemoryProductRepo(product), newMemoryOrderRepo(), &stubGateway{})

	result, err := svc.BeginCheckout(context.Background(), BeginCheckoutCommand{UserID: "user-1", Email: "amaka@example.com"})
	if err != nil {
		t.Fatalf("BeginCheckout: %v", err)
	}
	if result.Order.Items[0].UnitPrice != 6000 {
		t.Fatalf("expected checkout to re-read the catalog price, got %d", result.Order.Items[0].UnitPrice)
	}
	if result.Order.Totals.Subtotal != 12000 {
		t.Fatalf("expected subtotal 12000, got %d", result.Order.Totals.Subtotal)
	}
}
