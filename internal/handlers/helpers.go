package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/platform/auth"
	"github.com/adunni-couture/api/internal/platform/httpx"
	"github.com/adunni-couture/api/internal/platform/pagination"
	"github.com/adunni-couture/api/internal/services"
)

var errBodyTooLarge = errors.New("request body too large")

const defaultBodyLimit = 64 * 1024

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errors.New("request body is required")
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	if len(body) == 0 {
		return nil, errors.New("request body is required")
	}
	return body, nil
}

func decodeJSONBody(r *http.Request, target any) error {
	body, err := readLimitedBody(r, defaultBodyLimit)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("parse request body: %w", err)
	}
	return nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}

// requireIdentity resolves the authenticated principal or writes a 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func isStaff(identity *auth.Identity) bool {
	return identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin)
}

func parsePager(r *http.Request) (domain.Pagination, error) {
	params, err := pagination.FromRequest(r, pagination.Options{MaxPageSize: 200})
	if err != nil {
		return domain.Pagination{}, fmt.Errorf("page_size must be a positive integer")
	}
	return domain.Pagination{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	}, nil
}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC3339 timestamp", name)
	}
	return &parsed, nil
}

// serviceErrorStatus maps service sentinels onto the HTTP error envelope. Every
// handler funnels unexpected errors through here so the envelope stays uniform.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	type mapping struct {
		target error
		code   string
		status int
	}
	mappings := []mapping{
		{services.ErrCartInvalidInput, "invalid_request", http.StatusBadRequest},
		{services.ErrCartItemNotFound, "cart_item_not_found", http.StatusNotFound},
		{services.ErrCartProductUnavailable, "product_unavailable", http.StatusConflict},
		{services.ErrCartInsufficientStock, "insufficient_stock", http.StatusConflict},
		{services.ErrCartPromotionRejected, "promotion_rejected", http.StatusUnprocessableEntity},
		{services.ErrCartConflict, "cart_conflict", http.StatusConflict},
		{services.ErrCheckoutEmptyCart, "cart_empty", http.StatusUnprocessableEntity},
		{services.ErrCheckoutInvalidAddress, "invalid_address", http.StatusBadRequest},
		{services.ErrCheckoutInvalidInput, "invalid_request", http.StatusBadRequest},
		{services.ErrCheckoutProductChanged, "product_changed", http.StatusConflict},
		{services.ErrCheckoutGatewayUnavailable, "gateway_unavailable", http.StatusBadGateway},
		{services.ErrOrderInvalidInput, "invalid_request", http.StatusBadRequest},
		{services.ErrOrderNotFound, "order_not_found", http.StatusNotFound},
		{services.ErrOrderInvalidState, "invalid_transition", http.StatusConflict},
		{services.ErrOrderConflict, "order_conflict", http.StatusConflict},
		{services.ErrOrderForbidden, "forbidden", http.StatusForbidden},
		{services.ErrCustomOrderInvalidInput, "invalid_request", http.StatusBadRequest},
		{services.ErrCustomOrderNotFound, "custom_order_not_found", http.StatusNotFound},
		{services.ErrCustomOrderInvalidState, "invalid_transition", http.StatusConflict},
		{services.ErrCustomOrderConflict, "custom_order_conflict", http.StatusConflict},
		{services.ErrCustomOrderForbidden, "forbidden", http.StatusForbidden},
		{services.ErrCustomOrderMissingPrice, "price_required", http.StatusConflict},
		{services.ErrCustomOrderDeliveryLocked, "delivery_locked", http.StatusConflict},
		{services.ErrPaymentInvalidInput, "invalid_request", http.StatusBadRequest},
		{services.ErrPaymentReferenceNotFound, "reference_not_found", http.StatusNotFound},
		{services.ErrPaymentVerificationFailed, "verification_failed", http.StatusPaymentRequired},
		{services.ErrPaymentAmountMismatch, "amount_mismatch", http.StatusConflict},
		{services.ErrPaymentConflict, "payment_conflict", http.StatusConflict},
		{services.ErrCatalogInvalidInput, "invalid_request", http.StatusBadRequest},
		{services.ErrCatalogNotFound, "product_not_found", http.StatusNotFound},
		{services.ErrCatalogConflict, "catalog_conflict", http.StatusConflict},
		{services.ErrCatalogStockExhausted, "stock_exhausted", http.StatusConflict},
		{services.ErrPromotionInvalidInput, "invalid_request", http.StatusBadRequest},
		{services.ErrPromotionNotFound, "promotion_not_found", http.StatusNotFound},
		{services.ErrPromotionConflict, "promotion_conflict", http.StatusConflict},
		{services.ErrShippingInvalidInput, "invalid_request", http.StatusBadRequest},
		{services.ErrShippingRateNotFound, "shipping_rate_not_found", http.StatusNotFound},
		{services.ErrNotificationInvalidInput, "invalid_request", http.StatusBadRequest},
		{services.ErrNotificationNotFound, "notification_not_found", http.StatusNotFound},
		{services.ErrUserInvalidInput, "invalid_request", http.StatusBadRequest},
		{services.ErrUserNotFound, "user_not_found", http.StatusNotFound},
	}

	for _, m := range mappings {
		if errors.Is(err, m.target) {
			httpx.WriteError(ctx, w, httpx.NewError(m.code, err.Error(), m.status))
			return
		}
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "an unexpected error occurred", http.StatusInternalServerError))
}

// Shared response shapes -----------------------------------------------------

type addressPayload struct {
	Recipient  string  `json:"recipient"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postalCode,omitempty"`
	Country    string  `json:"country,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

func buildAddressPayload(addr *domain.Address) *addressPayload {
	if addr == nil {
		return nil
	}
	return &addressPayload{
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

func (p *addressPayload) toDomain() *domain.Address {
	if p == nil {
		return nil
	}
	return &domain.Address{
		Recipient:  p.Recipient,
		Line1:      p.Line1,
		Line2:      p.Line2,
		City:       p.City,
		State:      p.State,
		PostalCode: p.PostalCode,
		Country:    p.Country,
		Phone:      p.Phone,
	}
}
