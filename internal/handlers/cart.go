package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/platform/auth"
	"github.com/adunni-couture/api/internal/platform/httpx"
	"github.com/adunni-couture/api/internal/services"
)

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Put("/items", h.upsertItem)
	r.Delete("/items/{itemID}", h.removeItem)
	r.Put("/address", h.setAddress)
	r.Post("/promotion", h.applyPromotion)
	r.Delete("/promotion", h.removePromotion)
	r.Get("/estimate", h.estimate)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	cart, err := h.carts.GetOrCreateCart(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.carts.ClearCart(ctx, identity.UID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) upsertItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req struct {
		ProductID  string `json:"productId"`
		VariantSKU string `json:"variantSku"`
		Quantity   int    `json:"quantity"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cart, err := h.carts.AddOrUpdateItem(ctx, services.UpsertCartItemCommand{
		UserID:     identity.UID,
		ProductID:  req.ProductID,
		VariantSKU: req.VariantSKU,
		Quantity:   req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		UserID: identity.UID,
		ItemID: chi.URLParam(r, "itemID"),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) setAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req addressPayload
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	address := req.toDomain()
	if address == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "delivery address is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.SetDeliveryAddress(ctx, services.SetCartAddressCommand{
		UserID:  identity.UID,
		Address: *address,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) applyPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cart, err := h.carts.ApplyPromotion(ctx, services.CartPromotionCommand{
		UserID: identity.UID,
		Code:   req.Code,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) removePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.RemovePromotion(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) estimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	estimate, err := h.carts.Estimate(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartEstimatePayload{
		Subtotal: estimate.Subtotal,
		Discount: estimate.Discount,
		Shipping: estimate.Shipping,
		Total:    estimate.Total,
	})
}

// Payload shapes -------------------------------------------------------------

type cartItemPayload struct {
	ID              string     `json:"id"`
	ProductID       string     `json:"productId"`
	VariantSKU      string     `json:"variantSku,omitempty"`
	Name            string     `json:"name"`
	Size            string     `json:"size,omitempty"`
	Color           string     `json:"color,omitempty"`
	Quantity        int        `json:"quantity"`
	UnitPrice       int64      `json:"unitPrice"`
	DiscountPercent int        `json:"discountPercent"`
	ImagePath       string     `json:"imagePath,omitempty"`
	AddedAt         time.Time  `json:"addedAt"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

type cartPromotionPayload struct {
	Code       string `json:"code"`
	PercentOff int    `json:"percentOff"`
	Applied    bool   `json:"applied"`
}

type cartEstimatePayload struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type cartPayload struct {
	ID              string                `json:"id"`
	Currency        string                `json:"currency"`
	Items           []cartItemPayload     `json:"items"`
	DeliveryAddress *addressPayload       `json:"deliveryAddress,omitempty"`
	Promotion       *cartPromotionPayload `json:"promotion,omitempty"`
	Estimate        *cartEstimatePayload  `json:"estimate,omitempty"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

func buildCartPayload(cart domain.Cart) cartPayload {
	payload := cartPayload{
		ID:              cart.ID,
		Currency:        cart.Currency,
		Items:           make([]cartItemPayload, 0, len(cart.Items)),
		DeliveryAddress: buildAddressPayload(cart.DeliveryAddress),
		UpdatedAt:       cart.UpdatedAt,
	}
	if cart.Promotion != nil {
		payload.Promotion = &cartPromotionPayload{
			Code:       cart.Promotion.Code,
			PercentOff: cart.Promotion.PercentOff,
			Applied:    cart.Promotion.Applied,
		}
	}
	if cart.Estimate != nil {
		payload.Estimate = &cartEstimatePayload{
			Subtotal: cart.Estimate.Subtotal,
			Discount: cart.Estimate.Discount,
			Shipping: cart.Estimate.Shipping,
			Total:    cart.Estimate.Total,
		}
	}
	for _, item := range cart.Items {
		payload.Items = append(payload.Items, cartItemPayload{
			ID:              item.ID,
			ProductID:       item.ProductID,
			VariantSKU:      item.VariantSKU,
			Name:            item.Name,
			Size:            item.Size,
			Color:           item.Color,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			ImagePath:       item.ImagePath,
			AddedAt:         item.AddedAt,
			UpdatedAt:       item.UpdatedAt,
		})
	}
	return payload
}
