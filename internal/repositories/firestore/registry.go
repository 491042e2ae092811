package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/adunni-couture/api/internal/platform/firestore"
	"github.com/adunni-couture/api/internal/repositories"
)

// Registry wires every Firestore repository over one shared provider.
type Registry struct {
	provider *pfirestore.Provider

	carts         *CartRepository
	orders        *OrderRepository
	customOrders  *CustomOrderRepository
	invoices      *InvoiceRepository
	receipts      *ReceiptRepository
	notifications *NotificationRepository
	products      *ProductRepository
	promotions    *PromotionRepository
	shippingRates *ShippingRateRepository
	users         *UserRepository
	counters      *CounterRepository
	health        repositories.HealthRepository
}

// NewRegistry constructs all Firestore repositories and the health check set.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	registry := &Registry{provider: provider}

	var err error
	if registry.carts, err = NewCartRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: carts: %w", err)
	}
	if registry.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: orders: %w", err)
	}
	if registry.customOrders, err = NewCustomOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: custom orders: %w", err)
	}
	if registry.invoices, err = NewInvoiceRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: invoices: %w", err)
	}
	if registry.receipts, err = NewReceiptRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: receipts: %w", err)
	}
	if registry.notifications, err = NewNotificationRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: notifications: %w", err)
	}
	if registry.products, err = NewProductRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: products: %w", err)
	}
	if registry.promotions, err = NewPromotionRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: promotions: %w", err)
	}
	if registry.shippingRates, err = NewShippingRateRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: shipping rates: %w", err)
	}
	if registry.users, err = NewUserRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: users: %w", err)
	}
	if registry.counters, err = NewCounterRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: counters: %w", err)
	}

	registry.health, err = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("registry: health: %w", err)
	}

	return registry, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx executes the callback sequentially. Atomicity for the writes that
// need it lives inside the individual repository methods, which use Firestore
// transactions and preconditions; callers rely on those guards rather than a
// cross-repository transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction callback is required")
	}
	return fn(ctx)
}

func (r *Registry) Carts() repositories.CartRepository                 { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) CustomOrders() repositories.CustomOrderRepository   { return r.customOrders }
func (r *Registry) Invoices() repositories.InvoiceRepository           { return r.invoices }
func (r *Registry) Receipts() repositories.ReceiptRepository           { return r.receipts }
func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }
func (r *Registry) Products() repositories.ProductRepository           { return r.products }
func (r *Registry) Promotions() repositories.PromotionRepository       { return r.promotions }
func (r *Registry) ShippingRates() repositories.ShippingRateRepository { return r.shippingRates }
func (r *Registry) Users() repositories.UserRepository                 { return r.users }
func (r *Registry) Counters() repositories.CounterRepository           { return r.counters }
func (r *Registry) Health() repositories.HealthRepository              { return r.health }

var _ repositories.Registry = (*Registry)(nil)
