package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/adunni-couture/api/internal/notifications"
	"github.com/adunni-couture/api/internal/payments"
	"github.com/adunni-couture/api/internal/platform/config"
	"github.com/adunni-couture/api/internal/repositories"
	"github.com/adunni-couture/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete
// implementations are assembled in NewContainer.
type Services struct {
	Catalog       services.CatalogService
	Promotions    services.PromotionService
	Shipping      services.ShippingService
	Carts         services.CartService
	Checkout      services.CheckoutService
	Orders        services.OrderService
	CustomOrders  services.CustomOrderService
	Payments      services.PaymentService
	Notifications services.NotificationService
	Users         services.UserService
	System        services.SystemService
}

// BuildInfo carries the release metadata surfaced by the health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// Deps lists the external collaborators NewContainer cannot construct itself:
// the repository registry and the gateway, document, notification, and event
// infrastructure built in main.
type Deps struct {
	Registry  repositories.Registry
	Gateway   *payments.Manager
	Documents services.DocumentGenerator
	Notifier  services.Notifier
	Events    services.OrderEventPublisher
	Build     BuildInfo
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// real implementations, while tests can supply in-memory registries and stubbed
// gateway collaborators.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("di: repository registry is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := func() string { return ulid.Make().String() }

	svc, err := buildServices(cfg, deps, clock, newID)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, deps Deps, clock func() time.Time, newID func() string) (Services, error) {
	var svc Services
	reg := deps.Registry

	var gateway *gatewayClient
	if deps.Gateway != nil {
		gateway = &gatewayClient{
			manager: deps.Gateway,
			payment: payments.PaymentContext{Currency: cfg.Gateway.Currency},
		}
	}

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Rates:    reg.ShippingRates(),
		Currency: cfg.Gateway.Currency,
		Clock:    clock,
		Logger:   deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}

	svc.Promotions, err = services.NewPromotionService(services.PromotionServiceDeps{
		Promotions:  reg.Promotions(),
		Clock:       clock,
		IDGenerator: newID,
		Logger:      deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}

	svc.Catalog, err = services.NewCatalogService(services.CatalogServiceDeps{
		Products:    reg.Products(),
		Clock:       clock,
		IDGenerator: newID,
		Logger:      deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}

	svc.Shipping, err = services.NewShippingService(services.ShippingServiceDeps{
		Rates:       reg.ShippingRates(),
		Pricing:     pricing,
		Clock:       clock,
		IDGenerator: newID,
		Logger:      deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping service: %w", err)
	}

	svc.Carts, err = services.NewCartService(services.CartServiceDeps{
		Carts:       reg.Carts(),
		Products:    reg.Products(),
		Promotions:  svc.Promotions,
		Pricing:     pricing,
		Clock:       clock,
		IDGenerator: newID,
		Logger:      deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}

	checkoutDeps := services.CheckoutServiceDeps{
		Carts:       reg.Carts(),
		Products:    reg.Products(),
		Orders:      reg.Orders(),
		Counters:    reg.Counters(),
		Pricing:     pricing,
		Events:      deps.Events,
		Clock:       clock,
		IDGenerator: newID,
		Logger:      deps.Logger,
	}
	if gateway != nil {
		checkoutDeps.Gateway = gateway
	}
	svc.Checkout, err = services.NewCheckoutService(checkoutDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}

	svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders:      reg.Orders(),
		UnitOfWork:  reg,
		Events:      deps.Events,
		Notifier:    deps.Notifier,
		Clock:       clock,
		IDGenerator: newID,
		Logger:      deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	svc.CustomOrders, err = services.NewCustomOrderService(services.CustomOrderServiceDeps{
		CustomOrders: reg.CustomOrders(),
		Invoices:     reg.Invoices(),
		Documents:    deps.Documents,
		Notifier:     deps.Notifier,
		UnitOfWork:   reg,
		Clock:        clock,
		IDGenerator:  newID,
		Logger:       deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build custom order service: %w", err)
	}

	paymentDeps := services.PaymentServiceDeps{
		Orders:       reg.Orders(),
		CustomOrders: reg.CustomOrders(),
		Invoices:     reg.Invoices(),
		Receipts:     reg.Receipts(),
		Documents:    deps.Documents,
		Notifier:     deps.Notifier,
		Events:       deps.Events,
		UnitOfWork:   reg,
		Clock:        clock,
		IDGenerator:  newID,
		Logger:       deps.Logger,
	}
	if gateway != nil {
		paymentDeps.Gateway = gateway
	}
	svc.Payments, err = services.NewPaymentService(paymentDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}

	svc.Notifications, err = services.NewNotificationService(services.NotificationServiceDeps{
		Notifications: reg.Notifications(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}

	svc.Users, err = services.NewUserService(services.UserServiceDeps{
		Users: reg.Users(),
		Clock: clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}

	svc.System, err = services.NewSystemService(services.SystemServiceDeps{
		Health:      reg.Health(),
		Version:     deps.Build.Version,
		CommitSHA:   deps.Build.CommitSHA,
		Environment: deps.Build.Environment,
		StartedAt:   deps.Build.StartedAt,
		Clock:       clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}

	return svc, nil
}

// gatewayClient binds a Manager to a fixed payment context so services see the
// two-argument initialize/verify surface they expect.
type gatewayClient struct {
	manager *payments.Manager
	payment payments.PaymentContext
}

func (g *gatewayClient) InitializeTransaction(ctx context.Context, req payments.InitializeRequest) (payments.InitializeResult, error) {
	return g.manager.InitializeTransaction(ctx, g.payment, req)
}

func (g *gatewayClient) VerifyTransaction(ctx context.Context, req payments.VerifyRequest) (payments.VerifyResult, error) {
	return g.manager.VerifyTransaction(ctx, g.payment, req)
}

// NewFanOutNotifier adapts the channel fan-out dispatcher to the Notifier
// contract used by the order, custom order, and payment services.
func NewFanOutNotifier(fanout *notifications.FanOut) services.Notifier {
	if fanout == nil {
		return nil
	}
	return &fanOutNotifier{fanout: fanout}
}

type fanOutNotifier struct {
	fanout *notifications.FanOut
}

func (n *fanOutNotifier) Notify(ctx context.Context, notice services.Notice) {
	n.fanout.Dispatch(ctx, notifications.Message{
		UserID:   notice.UserID,
		Email:    notice.Email,
		Phone:    notice.Phone,
		Subject:  notice.Subject,
		Body:     notice.Body,
		HTMLBody: notice.HTMLBody,
	})
}
