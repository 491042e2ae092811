package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Address represents postal address structures shared by user and order layers.
type Address struct {
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      *string
}

// GeoPoint stores resolved delivery coordinates for an address.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// Cart aggregates the mutable shopping cart state for a user.
type Cart struct {
	ID              string
	UserID          string
	Currency        string
	DeliveryAddress *Address
	Promotion       *CartPromotion
	Items           []CartItem
	Estimate        *CartEstimate
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CartPromotion captures the applied promotion snapshot.
type CartPromotion struct {
	Code       string
	PercentOff int
	Applied    bool
}

// CartItem stores a single product/variant entry within a cart.
type CartItem struct {
	ID              string
	ProductID       string
	VariantSKU      string
	Name            string
	Size            string
	Color           string
	Quantity        int
	UnitPrice       int64
	DiscountPercent int
	ImagePath       string
	AddedAt         time.Time
	UpdatedAt       *time.Time
}

// CartEstimate summarizes totals calculated for the cart in kobo.
type CartEstimate struct {
	Subtotal int64
	Discount int64
	Shipping int64
	Total    int64
}

// OrderStatus enumerates valid lifecycle states for product orders.
type OrderStatus string

const (
	// OrderStatusAwaitingPayment indicates the order was placed and awaits gateway confirmation.
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	// OrderStatusProcessing indicates payment was verified and fulfilment has begun.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to the courier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer. Terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before delivery. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order captures a placed purchase with price snapshots frozen at creation time.
type Order struct {
	ID               string
	OrderNumber      string
	UserID           string
	Status           OrderStatus
	Currency         string
	Items            []OrderLineItem
	Totals           OrderTotals
	Promotion        *CartPromotion
	DeliveryAddress  *Address
	Coordinates      *GeoPoint
	Contact          *OrderContact
	PaymentReference *string
	CancelReason     *string
	Audit            OrderAudit
	CreatedAt        time.Time
	UpdatedAt        time.Time
	PaidAt           *time.Time
	ShippedAt        *time.Time
	DeliveredAt      *time.Time
	CancelledAt      *time.Time
}

// OrderTotals holds rolled-up monetary fields in kobo.
type OrderTotals struct {
	Subtotal int64
	Discount int64
	Shipping int64
	Total    int64
}

// OrderLineItem mirrors cart items at the time of checkout. Unit price and
// discount are snapshots; later catalog changes never affect a placed order.
type OrderLineItem struct {
	ProductRef      string
	VariantSKU      string
	Name            string
	Size            string
	Color           string
	Quantity        int
	UnitPrice       int64
	DiscountPercent int
	ImagePath       string
	LineTotal       int64
}

// OrderContact stores the user contact snapshot used for notifications.
type OrderContact struct {
	Email string
	Phone string
}

// OrderAudit records the actors responsible for creating/updating the order.
type OrderAudit struct {
	CreatedBy *string
	UpdatedBy *string
}

// CustomOrderStatus enumerates workflow states for bespoke orders.
type CustomOrderStatus string

const (
	// CustomOrderStatusPending indicates the submission awaits admin pricing.
	CustomOrderStatusPending CustomOrderStatus = "pending"
	// CustomOrderStatusInProgress indicates the admin priced the order and tailoring started.
	CustomOrderStatusInProgress CustomOrderStatus = "in_progress"
	// CustomOrderStatusCompleted indicates tailoring finished. Terminal.
	CustomOrderStatusCompleted CustomOrderStatus = "completed"
	// CustomOrderStatusCancelled indicates the order was withdrawn. Terminal.
	CustomOrderStatusCancelled CustomOrderStatus = "cancelled"
)

// DeliveryStatus tracks the delivery axis of a custom order. The axis is gated
// by the workflow axis: it may only leave not_started once the order is in progress.
type DeliveryStatus string

const (
	// DeliveryStatusNotStarted is the initial delivery state.
	DeliveryStatusNotStarted DeliveryStatus = "not_started"
	// DeliveryStatusInProgress indicates delivery has been arranged.
	DeliveryStatusInProgress DeliveryStatus = "in_progress"
	// DeliveryStatusDelivered indicates the garment reached the customer. Terminal.
	DeliveryStatusDelivered DeliveryStatus = "delivered"
)

// CustomOrder captures a bespoke tailoring request, priced manually by an admin.
type CustomOrder struct {
	ID              string
	UserID          string
	Contact         CustomOrderContact
	Fabric          string
	Style           string
	Measurements    map[string]string
	Notes           string
	DeliveryAddress *Address
	Status          CustomOrderStatus
	DeliveryStatus  DeliveryStatus
	Price           *int64
	Deposit         int64
	InvoiceRef      *string
	Audit           OrderAudit
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CustomOrderContact stores the submitted customer contact fields.
type CustomOrderContact struct {
	Name  string
	Email string
	Phone string
}

// Invoice bills the balance owed on a custom order. Created exactly once, when
// the custom order first enters in_progress; the only later mutation flips Paid.
type Invoice struct {
	ID             string
	CustomOrderRef string
	UserID         string
	// Amount is the full agreed price. The payable balance is Amount minus
	// Deposit, which snapshots the deposit recorded at issuance.
	Amount    int64
	Deposit   int64
	Paid      bool
	PDFURL    string
	CreatedAt time.Time
	PaidAt    *time.Time
}

// Receipt proves a verified payment. Created exactly once per payment reference.
type Receipt struct {
	ID               string
	OrderRef         *string
	InvoiceRef       *string
	UserID           string
	Amount           int64
	PaymentReference string
	PDFURL           string
	CreatedAt        time.Time
}

// Notification is an in-app message row; system append-only, read flag owned by
// the recipient.
type Notification struct {
	ID        string
	UserID    string
	Message   string
	Read      bool
	CreatedAt time.Time
}

// Product represents a catalog item with its variants embedded.
type Product struct {
	ID              string
	Name            string
	Description     string
	Category        string
	BasePrice       int64
	DiscountPercent int
	ImagePaths      []string
	Keywords        []string
	IsPublished     bool
	Variants        []ProductVariant
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProductVariant is a size/colour combination with its own stock and price delta.
type ProductVariant struct {
	SKU        string
	Size       string
	Color      string
	PriceDelta int64
	Stock      int
}

// Promotion describes a percentage discount window managed by admins.
type Promotion struct {
	ID         string
	Code       string
	Name       string
	PercentOff int
	Category   string
	StartsAt   time.Time
	EndsAt     time.Time
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PromotionValidationResult is returned when a promotion is evaluated for a cart.
type PromotionValidationResult struct {
	Code       string
	Eligible   bool
	Reason     string
	PercentOff int
}

// ShippingRate maps delivery states to a flat fee in kobo.
type ShippingRate struct {
	ID        string
	Zone      string
	States    []string
	Fee       int64
	IsActive  bool
	UpdatedAt time.Time
}

// UserProfile captures the canonical projection of a Firebase Auth user.
type UserProfile struct {
	ID              string
	DisplayName     string
	Email           string
	PhoneNumber     string
	Roles           []string
	PreferredLocale string
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of a single dependency check.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
