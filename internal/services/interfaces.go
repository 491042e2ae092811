package services

import (
	"context"
	"time"

	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	SortOrder            = domain.SortOrder
	Address              = domain.Address
	GeoPoint             = domain.GeoPoint
	Cart                 = domain.Cart
	CartPromotion        = domain.CartPromotion
	CartItem             = domain.CartItem
	CartEstimate         = domain.CartEstimate
	PricingBreakdown     = domain.PricingBreakdown
	ItemPricingBreakdown = domain.ItemPricingBreakdown
	ShippingQuote        = domain.ShippingQuote
	Order                = domain.Order
	OrderStatus          = domain.OrderStatus
	OrderTotals          = domain.OrderTotals
	OrderLineItem        = domain.OrderLineItem
	OrderContact         = domain.OrderContact
	OrderAudit           = domain.OrderAudit
	CustomOrder          = domain.CustomOrder
	CustomOrderStatus    = domain.CustomOrderStatus
	CustomOrderContact   = domain.CustomOrderContact
	DeliveryStatus       = domain.DeliveryStatus
	Invoice              = domain.Invoice
	Receipt              = domain.Receipt
	Notification         = domain.Notification
	Product              = domain.Product
	ProductVariant       = domain.ProductVariant
	Promotion            = domain.Promotion
	PromotionResult      = domain.PromotionValidationResult
	ShippingRate         = domain.ShippingRate
	UserProfile          = domain.UserProfile
	SystemHealthReport   = domain.SystemHealthReport
)

// CartService manages mutable cart state and running estimates.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	AddOrUpdateItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	SetDeliveryAddress(ctx context.Context, cmd SetCartAddressCommand) (Cart, error)
	ApplyPromotion(ctx context.Context, cmd CartPromotionCommand) (Cart, error)
	RemovePromotion(ctx context.Context, userID string) (Cart, error)
	Estimate(ctx context.Context, userID string) (CartEstimate, error)
	ClearCart(ctx context.Context, userID string) error
}

// CheckoutService snapshots the cart into an order and opens a gateway charge.
type CheckoutService interface {
	BeginCheckout(ctx context.Context, cmd BeginCheckoutCommand) (CheckoutResult, error)
}

// OrderService encapsulates order reads and the adjacency-checked status writes.
type OrderService interface {
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// CustomOrderService owns the bespoke order workflow and its two status axes.
type CustomOrderService interface {
	Submit(ctx context.Context, cmd SubmitCustomOrderCommand) (CustomOrder, error)
	ListCustomOrders(ctx context.Context, filter CustomOrderListFilter) (domain.CursorPage[CustomOrder], error)
	GetCustomOrder(ctx context.Context, cmd GetCustomOrderCommand) (CustomOrder, error)
	SetPriceAndStart(ctx context.Context, cmd SetPriceCommand) (CustomOrder, error)
	TransitionStatus(ctx context.Context, cmd CustomOrderTransitionCommand) (CustomOrder, error)
	AdvanceDeliveryStatus(ctx context.Context, cmd AdvanceDeliveryCommand) (CustomOrder, error)
	Cancel(ctx context.Context, cmd CancelCustomOrderCommand) (CustomOrder, error)
}

// PaymentService gates all order mutation behind server-side gateway verification.
type PaymentService interface {
	VerifyOrderPayment(ctx context.Context, cmd VerifyPaymentCommand) (PaymentOutcome, error)
	VerifyInvoicePayment(ctx context.Context, cmd VerifyInvoicePaymentCommand) (PaymentOutcome, error)
	ListReceipts(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Receipt], error)
	ListInvoices(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Invoice], error)
}

// CatalogService manages products and variants for public and admin surfaces.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (Product, error)
}

// PromotionService exposes promotion validation and admin lifecycle operations.
type PromotionService interface {
	ValidatePromotion(ctx context.Context, cmd ValidatePromotionCommand) (PromotionResult, error)
	ListPromotions(ctx context.Context, pager Pagination) (domain.CursorPage[Promotion], error)
	UpsertPromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error)
	DeletePromotion(ctx context.Context, promotionID string) error
}

// ShippingService resolves delivery fees and manages the rate table.
type ShippingService interface {
	QuoteForState(ctx context.Context, state string) (ShippingQuote, error)
	ListRates(ctx context.Context, pager Pagination) (domain.CursorPage[ShippingRate], error)
	UpsertRate(ctx context.Context, cmd UpsertShippingRateCommand) (ShippingRate, error)
	DeleteRate(ctx context.Context, rateID string) error
}

// NotificationService serves the in-app notification feed.
type NotificationService interface {
	ListForUser(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Notification], error)
	MarkRead(ctx context.Context, cmd MarkNotificationReadCommand) (Notification, error)
}

// UserService projects Firebase identities into stored profiles.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (UserProfile, error)
	SyncProfile(ctx context.Context, cmd SyncProfileCommand) (UserProfile, error)
}

// SystemService aggregates utility endpoints (health checks, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Notice is the channel-independent payload handed to the notification fan-out.
type Notice struct {
	UserID   string
	Email    string
	Phone    string
	Subject  string
	Body     string
	HTMLBody string
}

// Notifier dispatches a notice to all channels. Implementations are
// best-effort: failures are logged per channel and never returned.
type Notifier interface {
	Notify(ctx context.Context, notice Notice)
}

// DocumentGenerator renders and stores invoice/receipt PDFs.
type DocumentGenerator interface {
	GenerateInvoice(ctx context.Context, invoice Invoice) (string, error)
	GenerateReceipt(ctx context.Context, receipt Receipt) (string, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEventMessage) (string, error)
}

// OrderEventMessage captures metadata for emitted order domain events.
type OrderEventMessage struct {
	EventID          string         `json:"eventId"`
	Type             string         `json:"type"`
	OrderID          string         `json:"orderId"`
	OrderNumber      string         `json:"orderNumber,omitempty"`
	UserID           string         `json:"userId,omitempty"`
	PreviousStatus   string         `json:"previousStatus,omitempty"`
	Status           string         `json:"status,omitempty"`
	ActorID          string         `json:"actorId,omitempty"`
	PaymentReference string         `json:"paymentReference,omitempty"`
	OccurredAt       time.Time      `json:"occurredAt"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Command and DTO definitions ------------------------------------------------

type OrderListFilter = repositories.OrderListFilter

type CustomOrderListFilter = repositories.CustomOrderListFilter

type ProductListFilter = repositories.ProductListFilter

type UpsertCartItemCommand struct {
	UserID     string
	ProductID  string
	VariantSKU string
	Quantity   int
}

type RemoveCartItemCommand struct {
	UserID string
	ItemID string
}

type SetCartAddressCommand struct {
	UserID  string
	Address Address
}

type CartPromotionCommand struct {
	UserID string
	Code   string
}

type BeginCheckoutCommand struct {
	UserID      string
	Email       string
	Phone       string
	Address     *Address
	Coordinates *GeoPoint
	CallbackURL string
}

// CheckoutResult pairs the persisted order with the gateway hand-off details.
type CheckoutResult struct {
	Order            Order
	Reference        string
	AuthorizationURL string
	AccessCode       string
}

type GetOrderCommand struct {
	OrderID          string
	RequestingUserID string
	IsStaff          bool
}

type OrderStatusTransitionCommand struct {
	OrderID        string
	TargetStatus   OrderStatus
	ActorID        string
	Reason         string
	ExpectedStatus *OrderStatus
}

type CancelOrderCommand struct {
	OrderID        string
	ActorID        string
	Reason         string
	ExpectedStatus *OrderStatus
}

type SubmitCustomOrderCommand struct {
	UserID       string
	Contact      CustomOrderContact
	Fabric       string
	Style        string
	Measurements map[string]string
	Notes        string
	Address      *Address
	Deposit      int64
}

type GetCustomOrderCommand struct {
	CustomOrderID    string
	RequestingUserID string
	IsStaff          bool
}

type SetPriceCommand struct {
	CustomOrderID  string
	Price          *int64
	ActorID        string
	ExpectedStatus *CustomOrderStatus
}

type CustomOrderTransitionCommand struct {
	CustomOrderID  string
	TargetStatus   CustomOrderStatus
	ActorID        string
	ExpectedStatus *CustomOrderStatus
}

type AdvanceDeliveryCommand struct {
	CustomOrderID string
	Target        DeliveryStatus
	ActorID       string
}

type CancelCustomOrderCommand struct {
	CustomOrderID  string
	ActorID        string
	Reason         string
	ExpectedStatus *CustomOrderStatus
}

type VerifyPaymentCommand struct {
	Reference string
	ActorID   string
}

type VerifyInvoicePaymentCommand struct {
	InvoiceID string
	Reference string
	ActorID   string
}

// PaymentOutcome reports what a verification call changed.
type PaymentOutcome struct {
	Reference        string
	AlreadyProcessed bool
	Receipt          Receipt
	Order            *Order
	Invoice          *Invoice
	CustomOrder      *CustomOrder
}

type UpsertProductCommand struct {
	Product Product
	ActorID string
}

type DeleteProductCommand struct {
	ProductID string
	ActorID   string
}

type AdjustStockCommand struct {
	ProductID string
	SKU       string
	Delta     int
	ActorID   string
}

type ValidatePromotionCommand struct {
	Code     string
	Category string
}

type UpsertPromotionCommand struct {
	Promotion Promotion
	ActorID   string
}

type UpsertShippingRateCommand struct {
	Rate    ShippingRate
	ActorID string
}

type MarkNotificationReadCommand struct {
	UserID         string
	NotificationID string
}

type SyncProfileCommand struct {
	UserID      string
	DisplayName string
	Email       string
	PhoneNumber string
	Roles       []string
	// AcceptLanguage carries the raw Accept-Language header from the sync
	// request; the service canonicalises it into a BCP 47 tag.
	AcceptLanguage string
}
