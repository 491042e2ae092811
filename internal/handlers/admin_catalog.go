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

// AdminCatalogHandlers exposes the back-office catalog surface: products with
// their variant stock, promotion codes, and the shipping rate table.
type AdminCatalogHandlers struct {
	authn      *auth.Authenticator
	catalog    services.CatalogService
	promotions services.PromotionService
	shipping   services.ShippingService
}

// NewAdminCatalogHandlers constructs the admin catalog handlers.
func NewAdminCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService, promotions services.PromotionService, shipping services.ShippingService) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{
		authn:      authn,
		catalog:    catalog,
		promotions: promotions,
		shipping:   shipping,
	}
}

// Routes wires the admin catalog endpoints onto the provided router.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Get("/{productID}", h.getProduct)
		r.Put("/{productID}", h.updateProduct)
		r.Delete("/{productID}", h.deleteProduct)
		r.Post("/{productID}/stock", h.adjustStock)
	})

	r.Route("/promotions", func(r chi.Router) {
		r.Get("/", h.listPromotions)
		r.Post("/", h.createPromotion)
		r.Put("/{promotionID}", h.updatePromotion)
		r.Delete("/{promotionID}", h.deletePromotion)
	})

	r.Route("/shipping-rates", func(r chi.Router) {
		r.Get("/", h.listShippingRates)
		r.Post("/", h.createShippingRate)
		r.Put("/{rateID}", h.updateShippingRate)
		r.Delete("/{rateID}", h.deleteShippingRate)
	})
}

// Products --------------------------------------------------------------------

func (h *AdminCatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePager(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	// Admins see unpublished products too.
	page, err := h.catalog.ListProducts(ctx, services.ProductListFilter{
		Category:   strings.TrimSpace(r.URL.Query().Get("category")),
		Keyword:    strings.TrimSpace(r.URL.Query().Get("q")),
		Pagination: pager,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := productListResponse{NextPageToken: page.NextPageToken}
	for _, product := range page.Items {
		resp.Items = append(resp.Items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AdminCatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

type productVariantRequest struct {
	SKU        string `json:"sku"`
	Size       string `json:"size"`
	Color      string `json:"color"`
	PriceDelta int64  `json:"priceDelta"`
	Stock      int    `json:"stock"`
}

type productRequest struct {
	Name            string                  `json:"name"`
	Description     string                  `json:"description"`
	Category        string                  `json:"category"`
	BasePrice       int64                   `json:"basePrice"`
	DiscountPercent int                     `json:"discountPercent"`
	ImagePaths      []string                `json:"imagePaths"`
	Keywords        []string                `json:"keywords"`
	IsPublished     bool                    `json:"isPublished"`
	Variants        []productVariantRequest `json:"variants"`
}

func (req productRequest) toDomain(productID string) domain.Product {
	product := domain.Product{
		ID:              productID,
		Name:            strings.TrimSpace(req.Name),
		Description:     req.Description,
		Category:        strings.TrimSpace(req.Category),
		BasePrice:       req.BasePrice,
		DiscountPercent: req.DiscountPercent,
		ImagePaths:      req.ImagePaths,
		Keywords:        req.Keywords,
		IsPublished:     req.IsPublished,
	}
	for _, variant := range req.Variants {
		product.Variants = append(product.Variants, domain.ProductVariant{
			SKU:        strings.TrimSpace(variant.SKU),
			Size:       variant.Size,
			Color:      variant.Color,
			PriceDelta: variant.PriceDelta,
			Stock:      variant.Stock,
		})
	}
	return product
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.upsertProduct(w, r, "", http.StatusCreated)
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	h.upsertProduct(w, r, chi.URLParam(r, "productID"), http.StatusOK)
}

func (h *AdminCatalogHandlers) upsertProduct(w http.ResponseWriter, r *http.Request, productID string, successStatus int) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req productRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	product, err := h.catalog.UpsertProduct(ctx, services.UpsertProductCommand{
		Product: req.toDomain(productID),
		ActorID: identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, successStatus, buildProductPayload(product))
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	err := h.catalog.DeleteProduct(ctx, services.DeleteProductCommand{
		ProductID: chi.URLParam(r, "productID"),
		ActorID:   identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type adjustStockRequest struct {
	SKU   string `json:"sku"`
	Delta int    `json:"delta"`
}

func (h *AdminCatalogHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req adjustStockRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	product, err := h.catalog.AdjustStock(ctx, services.AdjustStockCommand{
		ProductID: chi.URLParam(r, "productID"),
		SKU:       strings.TrimSpace(req.SKU),
		Delta:     req.Delta,
		ActorID:   identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

// Promotions ------------------------------------------------------------------

type promotionRequest struct {
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	PercentOff int       `json:"percentOff"`
	Category   string    `json:"category"`
	StartsAt   time.Time `json:"startsAt"`
	EndsAt     time.Time `json:"endsAt"`
	IsActive   bool      `json:"isActive"`
}

type promotionPayload struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	PercentOff int       `json:"percentOff"`
	Category   string    `json:"category,omitempty"`
	StartsAt   time.Time `json:"startsAt"`
	EndsAt     time.Time `json:"endsAt"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type promotionListResponse struct {
	Items         []promotionPayload `json:"items"`
	NextPageToken string             `json:"nextPageToken,omitempty"`
}

func buildPromotionPayload(promotion domain.Promotion) promotionPayload {
	return promotionPayload{
		ID:         promotion.ID,
		Code:       promotion.Code,
		Name:       promotion.Name,
		PercentOff: promotion.PercentOff,
		Category:   promotion.Category,
		StartsAt:   promotion.StartsAt,
		EndsAt:     promotion.EndsAt,
		IsActive:   promotion.IsActive,
		CreatedAt:  promotion.CreatedAt,
		UpdatedAt:  promotion.UpdatedAt,
	}
}

func (h *AdminCatalogHandlers) listPromotions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("promotions_unavailable", "promotion service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePager(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.promotions.ListPromotions(ctx, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := promotionListResponse{NextPageToken: page.NextPageToken}
	for _, promotion := range page.Items {
		resp.Items = append(resp.Items, buildPromotionPayload(promotion))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AdminCatalogHandlers) createPromotion(w http.ResponseWriter, r *http.Request) {
	h.upsertPromotion(w, r, "", http.StatusCreated)
}

func (h *AdminCatalogHandlers) updatePromotion(w http.ResponseWriter, r *http.Request) {
	h.upsertPromotion(w, r, chi.URLParam(r, "promotionID"), http.StatusOK)
}

func (h *AdminCatalogHandlers) upsertPromotion(w http.ResponseWriter, r *http.Request, promotionID string, successStatus int) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("promotions_unavailable", "promotion service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req promotionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	promotion, err := h.promotions.UpsertPromotion(ctx, services.UpsertPromotionCommand{
		Promotion: domain.Promotion{
			ID:         promotionID,
			Code:       strings.TrimSpace(req.Code),
			Name:       strings.TrimSpace(req.Name),
			PercentOff: req.PercentOff,
			Category:   strings.TrimSpace(req.Category),
			StartsAt:   req.StartsAt,
			EndsAt:     req.EndsAt,
			IsActive:   req.IsActive,
		},
		ActorID: identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, successStatus, buildPromotionPayload(promotion))
}

func (h *AdminCatalogHandlers) deletePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("promotions_unavailable", "promotion service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.promotions.DeletePromotion(ctx, chi.URLParam(r, "promotionID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Shipping rates --------------------------------------------------------------

type shippingRateRequest struct {
	Zone     string   `json:"zone"`
	States   []string `json:"states"`
	Fee      int64    `json:"fee"`
	IsActive bool     `json:"isActive"`
}

type shippingRatePayload struct {
	ID        string    `json:"id"`
	Zone      string    `json:"zone"`
	States    []string  `json:"states"`
	Fee       int64     `json:"fee"`
	IsActive  bool      `json:"isActive"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type shippingRateListResponse struct {
	Items         []shippingRatePayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

func buildShippingRatePayload(rate domain.ShippingRate) shippingRatePayload {
	return shippingRatePayload{
		ID:        rate.ID,
		Zone:      rate.Zone,
		States:    rate.States,
		Fee:       rate.Fee,
		IsActive:  rate.IsActive,
		UpdatedAt: rate.UpdatedAt,
	}
}

func (h *AdminCatalogHandlers) listShippingRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePager(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.shipping.ListRates(ctx, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := shippingRateListResponse{NextPageToken: page.NextPageToken}
	for _, rate := range page.Items {
		resp.Items = append(resp.Items, buildShippingRatePayload(rate))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AdminCatalogHandlers) createShippingRate(w http.ResponseWriter, r *http.Request) {
	h.upsertShippingRate(w, r, "", http.StatusCreated)
}

func (h *AdminCatalogHandlers) updateShippingRate(w http.ResponseWriter, r *http.Request) {
	h.upsertShippingRate(w, r, chi.URLParam(r, "rateID"), http.StatusOK)
}

func (h *AdminCatalogHandlers) upsertShippingRate(w http.ResponseWriter, r *http.Request, rateID string, successStatus int) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req shippingRateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	rate, err := h.shipping.UpsertRate(ctx, services.UpsertShippingRateCommand{
		Rate: domain.ShippingRate{
			ID:       rateID,
			Zone:     strings.TrimSpace(req.Zone),
			States:   req.States,
			Fee:      req.Fee,
			IsActive: req.IsActive,
		},
		ActorID: identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, successStatus, buildShippingRatePayload(rate))
}

func (h *AdminCatalogHandlers) deleteShippingRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.shipping.DeleteRate(ctx, chi.URLParam(r, "rateID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
