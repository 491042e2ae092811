package repositories

import (
	"context"
	"time"

	domain "github.com/adunni-couture/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Orders() OrderRepository
	CustomOrders() CustomOrderRepository
	Invoices() InvoiceRepository
	Receipts() ReceiptRepository
	Notifications() NotificationRepository
	Products() ProductRepository
	Promotions() PromotionRepository
	ShippingRates() ShippingRateRepository
	Users() UserRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository owns cart header + item persistence keyed by user ID.
type CartRepository interface {
	UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error)
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// OrderListFilter narrows order listings for user and admin surfaces.
type OrderListFilter struct {
	UserID    string
	Status    []string
	DateRange domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// OrderRepository persists order headers and provides query helpers.
// Insert must reject duplicate IDs with a conflict error; Update with a
// non-nil expectedStatus must fail with a conflict when the stored status
// differs, so concurrent admin transitions cannot double-apply.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order, expectedStatus *domain.OrderStatus) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// CustomOrderListFilter narrows custom-order listings.
type CustomOrderListFilter struct {
	UserID     string
	Status     []string
	Pagination domain.Pagination
}

// CustomOrderRepository persists bespoke order submissions and their two status axes.
type CustomOrderRepository interface {
	Insert(ctx context.Context, order domain.CustomOrder) error
	Update(ctx context.Context, order domain.CustomOrder, expectedStatus *domain.CustomOrderStatus) error
	FindByID(ctx context.Context, orderID string) (domain.CustomOrder, error)
	List(ctx context.Context, filter CustomOrderListFilter) (domain.CursorPage[domain.CustomOrder], error)
}

// InvoiceRepository persists write-once invoices. Insert must reject a second
// invoice for the same custom order with a conflict error.
type InvoiceRepository interface {
	Insert(ctx context.Context, invoice domain.Invoice) error
	MarkPaid(ctx context.Context, invoiceID string, paidAt time.Time) (domain.Invoice, error)
	FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error)
	FindByCustomOrder(ctx context.Context, customOrderID string) (domain.Invoice, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Invoice], error)
}

// ReceiptRepository persists write-once receipts. Insert must reject a second
// receipt for the same payment reference with a conflict error; this is the
// durable guard that keeps payment verification idempotent.
type ReceiptRepository interface {
	Insert(ctx context.Context, receipt domain.Receipt) error
	FindByPaymentReference(ctx context.Context, reference string) (domain.Receipt, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Receipt], error)
}

// NotificationRepository stores in-app notification rows.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
	MarkRead(ctx context.Context, userID string, notificationID string) (domain.Notification, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Notification], error)
}

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	Category      string
	Keyword       string
	PublishedOnly bool
	Pagination    domain.Pagination
}

// ProductRepository manages catalog products with embedded variants.
type ProductRepository interface {
	Upsert(ctx context.Context, product domain.Product) (domain.Product, error)
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	AdjustStock(ctx context.Context, productID string, sku string, delta int) (domain.Product, error)
}

// PromotionRepository manages percentage promotions.
type PromotionRepository interface {
	Upsert(ctx context.Context, promotion domain.Promotion) (domain.Promotion, error)
	Delete(ctx context.Context, promotionID string) error
	FindByCode(ctx context.Context, code string) (domain.Promotion, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Promotion], error)
}

// ShippingRateRepository manages flat delivery fees per state zone.
type ShippingRateRepository interface {
	Upsert(ctx context.Context, rate domain.ShippingRate) (domain.ShippingRate, error)
	Delete(ctx context.Context, rateID string) error
	FindByState(ctx context.Context, state string) (domain.ShippingRate, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.ShippingRate], error)
}

// UserRepository stores the Firestore projection of Firebase Auth users.
type UserRepository interface {
	Upsert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// CounterConfig tunes step size, ceiling, or seed value for a named counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// HealthRepository reports dependency health for readiness endpoints.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
