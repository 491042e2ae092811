package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adunni-couture/api/internal/platform/auth"
	"github.com/adunni-couture/api/internal/platform/httpx"
	"github.com/adunni-couture/api/internal/services"
)

// CheckoutHandlers turns a cart into an order and hands off to the payment gateway.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	limiter  rateLimiter
}

// CheckoutOption customises checkout handler behaviour.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutRateLimit throttles checkout attempts per user to keep retry
// storms away from the gateway.
func WithCheckoutRateLimit(limit int, window time.Duration) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewCheckoutHandlers constructs the checkout handlers.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.beginCheckout)
}

type beginCheckoutRequest struct {
	Email       string          `json:"email"`
	Phone       string          `json:"phone"`
	Address     *addressPayload `json:"address"`
	Latitude    *float64        `json:"latitude"`
	Longitude   *float64        `json:"longitude"`
	CallbackURL string          `json:"callbackUrl"`
}

type beginCheckoutResponse struct {
	OrderID          string `json:"orderId"`
	OrderNumber      string `json:"orderNumber"`
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorizationUrl"`
	AccessCode       string `json:"accessCode,omitempty"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
}

func (h *CheckoutHandlers) beginCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many checkout attempts, try again shortly", http.StatusTooManyRequests))
		return
	}

	var req beginCheckoutRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.BeginCheckoutCommand{
		UserID:      identity.UID,
		Email:       req.Email,
		Phone:       req.Phone,
		Address:     req.Address.toDomain(),
		CallbackURL: req.CallbackURL,
	}
	if cmd.Email == "" {
		cmd.Email = identity.Email
	}
	if req.Latitude != nil && req.Longitude != nil {
		cmd.Coordinates = &services.GeoPoint{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	result, err := h.checkout.BeginCheckout(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, beginCheckoutResponse{
		OrderID:          result.Order.ID,
		OrderNumber:      result.Order.OrderNumber,
		Reference:        result.Reference,
		AuthorizationURL: result.AuthorizationURL,
		AccessCode:       result.AccessCode,
		Amount:           result.Order.Totals.Total,
		Currency:         result.Order.Currency,
	})
}
