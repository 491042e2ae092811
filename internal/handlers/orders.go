package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/platform/auth"
	"github.com/adunni-couture/api/internal/platform/httpx"
	"github.com/adunni-couture/api/internal/services"
)

// OrderHandlers exposes order listing and lifecycle endpoints. User routes are
// scoped to the caller; admin routes drive the status workflow.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs the order handlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the customer-facing /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOwnOrders)
	r.Get("/{orderID}", h.getOrder)
}

// AdminRoutes wires the back-office order endpoints onto the provided router.
func (h *OrderHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/", h.listAllOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/status", h.transitionStatus)
	r.Post("/{orderID}/cancel", h.cancelOrder)
}

func (h *OrderHandlers) listOwnOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	h.listOrders(w, r, identity.UID)
}

func (h *OrderHandlers) listAllOrders(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	h.listOrders(w, r, strings.TrimSpace(r.URL.Query().Get("user_id")))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePager(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	from, err := parseTimeParam(r, "created_after")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	to, err := parseTimeParam(r, "created_before")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		UserID:     userID,
		Pagination: pager,
		DateRange:  domain.RangeQuery[time.Time]{From: from, To: to},
	}
	for _, status := range r.URL.Query()["status"] {
		for _, part := range strings.Split(status, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				filter.Status = append(filter.Status, part)
			}
		}
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := orderListResponse{NextPageToken: page.NextPageToken}
	for _, order := range page.Items {
		resp.Items = append(resp.Items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		OrderID:          chi.URLParam(r, "orderID"),
		RequestingUserID: identity.UID,
		IsStaff:          isStaff(identity),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

type orderTransitionRequest struct {
	TargetStatus   string  `json:"targetStatus"`
	ExpectedStatus *string `json:"expectedStatus"`
	Reason         string  `json:"reason"`
}

func (h *OrderHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req orderTransitionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.OrderStatusTransitionCommand{
		OrderID:      chi.URLParam(r, "orderID"),
		TargetStatus: domain.OrderStatus(strings.TrimSpace(req.TargetStatus)),
		ActorID:      identity.UID,
		Reason:       req.Reason,
	}
	if req.ExpectedStatus != nil {
		expected := domain.OrderStatus(strings.TrimSpace(*req.ExpectedStatus))
		cmd.ExpectedStatus = &expected
	}

	order, err := h.orders.TransitionStatus(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

type cancelOrderRequest struct {
	Reason         string  `json:"reason"`
	ExpectedStatus *string `json:"expectedStatus"`
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ActorID: identity.UID,
		Reason:  req.Reason,
	}
	if req.ExpectedStatus != nil {
		expected := domain.OrderStatus(strings.TrimSpace(*req.ExpectedStatus))
		cmd.ExpectedStatus = &expected
	}

	order, err := h.orders.Cancel(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

// Payload shapes -------------------------------------------------------------

type orderSummaryPayload struct {
	ID          string    `json:"id"`
	OrderNumber string    `json:"orderNumber"`
	Status      string    `json:"status"`
	Currency    string    `json:"currency"`
	Total       int64     `json:"total"`
	ItemCount   int       `json:"itemCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

type orderLineItemPayload struct {
	ProductRef      string `json:"productRef"`
	VariantSKU      string `json:"variantSku,omitempty"`
	Name            string `json:"name"`
	Size            string `json:"size,omitempty"`
	Color           string `json:"color,omitempty"`
	Quantity        int    `json:"quantity"`
	UnitPrice       int64  `json:"unitPrice"`
	DiscountPercent int    `json:"discountPercent"`
	ImagePath       string `json:"imagePath,omitempty"`
	LineTotal       int64  `json:"lineTotal"`
}

type orderPayload struct {
	ID               string                 `json:"id"`
	OrderNumber      string                 `json:"orderNumber"`
	UserID           string                 `json:"userId"`
	Status           string                 `json:"status"`
	Currency         string                 `json:"currency"`
	Items            []orderLineItemPayload `json:"items"`
	Subtotal         int64                  `json:"subtotal"`
	Discount         int64                  `json:"discount"`
	Shipping         int64                  `json:"shipping"`
	Total            int64                  `json:"total"`
	Promotion        *cartPromotionPayload  `json:"promotion,omitempty"`
	DeliveryAddress  *addressPayload        `json:"deliveryAddress,omitempty"`
	PaymentReference *string                `json:"paymentReference,omitempty"`
	CancelReason     *string                `json:"cancelReason,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
	PaidAt           *time.Time             `json:"paidAt,omitempty"`
	ShippedAt        *time.Time             `json:"shippedAt,omitempty"`
	DeliveredAt      *time.Time             `json:"deliveredAt,omitempty"`
	CancelledAt      *time.Time             `json:"cancelledAt,omitempty"`
}

func buildOrderSummary(order domain.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Currency:    strings.ToUpper(order.Currency),
		Total:       order.Totals.Total,
		ItemCount:   len(order.Items),
		CreatedAt:   order.CreatedAt,
	}
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		UserID:           order.UserID,
		Status:           string(order.Status),
		Currency:         strings.ToUpper(order.Currency),
		Items:            make([]orderLineItemPayload, 0, len(order.Items)),
		Subtotal:         order.Totals.Subtotal,
		Discount:         order.Totals.Discount,
		Shipping:         order.Totals.Shipping,
		Total:            order.Totals.Total,
		DeliveryAddress:  buildAddressPayload(order.DeliveryAddress),
		PaymentReference: order.PaymentReference,
		CancelReason:     order.CancelReason,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
		PaidAt:           order.PaidAt,
		ShippedAt:        order.ShippedAt,
		DeliveredAt:      order.DeliveredAt,
		CancelledAt:      order.CancelledAt,
	}
	if order.Promotion != nil {
		payload.Promotion = &cartPromotionPayload{
			Code:       order.Promotion.Code,
			PercentOff: order.Promotion.PercentOff,
			Applied:    order.Promotion.Applied,
		}
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderLineItemPayload{
			ProductRef:      item.ProductRef,
			VariantSKU:      item.VariantSKU,
			Name:            item.Name,
			Size:            item.Size,
			Color:           item.Color,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			ImagePath:       item.ImagePath,
			LineTotal:       item.LineTotal,
		})
	}
	return payload
}
