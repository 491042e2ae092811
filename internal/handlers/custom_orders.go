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

// CustomOrderHandlers exposes bespoke tailoring order endpoints. Customers
// submit and track; admins price, drive the workflow, and track delivery.
type CustomOrderHandlers struct {
	authn        *auth.Authenticator
	customOrders services.CustomOrderService
}

// NewCustomOrderHandlers constructs the custom order handlers.
func NewCustomOrderHandlers(authn *auth.Authenticator, customOrders services.CustomOrderService) *CustomOrderHandlers {
	return &CustomOrderHandlers{
		authn:        authn,
		customOrders: customOrders,
	}
}

// Routes wires the customer-facing /custom-orders endpoints.
func (h *CustomOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.submit)
	r.Get("/", h.listOwn)
	r.Get("/{customOrderID}", h.get)
}

// AdminRoutes wires the back-office custom order endpoints.
func (h *CustomOrderHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/", h.listAll)
	r.Get("/{customOrderID}", h.get)
	r.Post("/{customOrderID}/price", h.setPrice)
	r.Post("/{customOrderID}/status", h.transitionStatus)
	r.Post("/{customOrderID}/delivery", h.advanceDelivery)
	r.Post("/{customOrderID}/cancel", h.cancel)
}

type submitCustomOrderRequest struct {
	ContactName  string            `json:"contactName"`
	ContactEmail string            `json:"contactEmail"`
	ContactPhone string            `json:"contactPhone"`
	Fabric       string            `json:"fabric"`
	Style        string            `json:"style"`
	Measurements map[string]string `json:"measurements"`
	Notes        string            `json:"notes"`
	Address      *addressPayload   `json:"address"`
	Deposit      int64             `json:"deposit"`
}

func (h *CustomOrderHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.customOrders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("custom_orders_unavailable", "custom order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req submitCustomOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	email := strings.TrimSpace(req.ContactEmail)
	if email == "" {
		email = identity.Email
	}
	cmd := services.SubmitCustomOrderCommand{
		UserID: identity.UID,
		Contact: domain.CustomOrderContact{
			Name:  strings.TrimSpace(req.ContactName),
			Email: email,
			Phone: strings.TrimSpace(req.ContactPhone),
		},
		Fabric:       req.Fabric,
		Style:        req.Style,
		Measurements: req.Measurements,
		Notes:        req.Notes,
		Deposit:      req.Deposit,
		Address:      req.Address.toDomain(),
	}

	order, err := h.customOrders.Submit(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCustomOrderPayload(order))
}

func (h *CustomOrderHandlers) listOwn(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	h.list(w, r, identity.UID)
}

func (h *CustomOrderHandlers) listAll(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	h.list(w, r, strings.TrimSpace(r.URL.Query().Get("user_id")))
}

func (h *CustomOrderHandlers) list(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	if h.customOrders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("custom_orders_unavailable", "custom order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePager(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.CustomOrderListFilter{
		UserID:     userID,
		Pagination: pager,
	}
	for _, status := range r.URL.Query()["status"] {
		for _, part := range strings.Split(status, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				filter.Status = append(filter.Status, part)
			}
		}
	}

	page, err := h.customOrders.ListCustomOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := customOrderListResponse{NextPageToken: page.NextPageToken}
	for _, order := range page.Items {
		resp.Items = append(resp.Items, buildCustomOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *CustomOrderHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.customOrders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("custom_orders_unavailable", "custom order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	order, err := h.customOrders.GetCustomOrder(ctx, services.GetCustomOrderCommand{
		CustomOrderID:    chi.URLParam(r, "customOrderID"),
		RequestingUserID: identity.UID,
		IsStaff:          isStaff(identity),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomOrderPayload(order))
}

type setPriceRequest struct {
	Price          *int64  `json:"price"`
	ExpectedStatus *string `json:"expectedStatus"`
}

func (h *CustomOrderHandlers) setPrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req setPriceRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.SetPriceCommand{
		CustomOrderID: chi.URLParam(r, "customOrderID"),
		Price:         req.Price,
		ActorID:       identity.UID,
	}
	if req.ExpectedStatus != nil {
		expected := domain.CustomOrderStatus(strings.TrimSpace(*req.ExpectedStatus))
		cmd.ExpectedStatus = &expected
	}

	order, err := h.customOrders.SetPriceAndStart(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomOrderPayload(order))
}

type customOrderTransitionRequest struct {
	TargetStatus   string  `json:"targetStatus"`
	ExpectedStatus *string `json:"expectedStatus"`
}

func (h *CustomOrderHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req customOrderTransitionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.CustomOrderTransitionCommand{
		CustomOrderID: chi.URLParam(r, "customOrderID"),
		TargetStatus:  domain.CustomOrderStatus(strings.TrimSpace(req.TargetStatus)),
		ActorID:       identity.UID,
	}
	if req.ExpectedStatus != nil {
		expected := domain.CustomOrderStatus(strings.TrimSpace(*req.ExpectedStatus))
		cmd.ExpectedStatus = &expected
	}

	order, err := h.customOrders.TransitionStatus(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomOrderPayload(order))
}

type advanceDeliveryRequest struct {
	Target string `json:"target"`
}

func (h *CustomOrderHandlers) advanceDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req advanceDeliveryRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.customOrders.AdvanceDeliveryStatus(ctx, services.AdvanceDeliveryCommand{
		CustomOrderID: chi.URLParam(r, "customOrderID"),
		Target:        domain.DeliveryStatus(strings.TrimSpace(req.Target)),
		ActorID:       identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomOrderPayload(order))
}

type cancelCustomOrderRequest struct {
	Reason         string  `json:"reason"`
	ExpectedStatus *string `json:"expectedStatus"`
}

func (h *CustomOrderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req cancelCustomOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.CancelCustomOrderCommand{
		CustomOrderID: chi.URLParam(r, "customOrderID"),
		ActorID:       identity.UID,
		Reason:        req.Reason,
	}
	if req.ExpectedStatus != nil {
		expected := domain.CustomOrderStatus(strings.TrimSpace(*req.ExpectedStatus))
		cmd.ExpectedStatus = &expected
	}

	order, err := h.customOrders.Cancel(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomOrderPayload(order))
}

type customOrderPayload struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId"`
	ContactName    string            `json:"contactName"`
	ContactEmail   string            `json:"contactEmail"`
	ContactPhone   string            `json:"contactPhone"`
	Fabric         string            `json:"fabric"`
	Style          string            `json:"style"`
	Measurements   map[string]string `json:"measurements,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	Address        *addressPayload   `json:"address,omitempty"`
	Status         string            `json:"status"`
	DeliveryStatus string            `json:"deliveryStatus"`
	Price          *int64            `json:"price,omitempty"`
	Deposit        int64             `json:"deposit"`
	InvoiceRef     *string           `json:"invoiceRef,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

type customOrderListResponse struct {
	Items         []customOrderPayload `json:"items"`
	NextPageToken string               `json:"nextPageToken,omitempty"`
}

func buildCustomOrderPayload(order domain.CustomOrder) customOrderPayload {
	return customOrderPayload{
		ID:             order.ID,
		UserID:         order.UserID,
		ContactName:    order.Contact.Name,
		ContactEmail:   order.Contact.Email,
		ContactPhone:   order.Contact.Phone,
		Fabric:         order.Fabric,
		Style:          order.Style,
		Measurements:   order.Measurements,
		Notes:          order.Notes,
		Address:        buildAddressPayload(order.DeliveryAddress),
		Status:         string(order.Status),
		DeliveryStatus: string(order.DeliveryStatus),
		Price:          order.Price,
		Deposit:        order.Deposit,
		InvoiceRef:     order.InvoiceRef,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
}
