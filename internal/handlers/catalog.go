package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/platform/httpx"
	"github.com/adunni-couture/api/internal/services"
)

// CatalogHandlers exposes the unauthenticated storefront surface: published
// products, shipping quotes, and promotion validation.
type CatalogHandlers struct {
	catalog    services.CatalogService
	shipping   services.ShippingService
	promotions services.PromotionService
}

// NewCatalogHandlers constructs the public storefront handlers.
func NewCatalogHandlers(catalog services.CatalogService, shipping services.ShippingService, promotions services.PromotionService) *CatalogHandlers {
	return &CatalogHandlers{
		catalog:    catalog,
		shipping:   shipping,
		promotions: promotions,
	}
}

// Routes wires the public endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/shipping/quote", h.quoteShipping)
	r.Post("/promotions/validate", h.validatePromotion)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePager(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.ProductListFilter{
		Category:      strings.TrimSpace(r.URL.Query().Get("category")),
		Keyword:       strings.TrimSpace(r.URL.Query().Get("q")),
		PublishedOnly: true,
		Pagination:    pager,
	}

	page, err := h.catalog.ListProducts(ctx, filter)
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

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if !product.IsPublished {
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *CatalogHandlers) quoteShipping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping service is unavailable", http.StatusServiceUnavailable))
		return
	}

	state := strings.TrimSpace(r.URL.Query().Get("state"))
	if state == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "state query parameter is required", http.StatusBadRequest))
		return
	}

	quote, err := h.shipping.QuoteForState(ctx, state)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, shippingQuotePayload{
		Zone:  quote.Zone,
		State: quote.State,
		Fee:   quote.Fee,
	})
}

func (h *CatalogHandlers) validatePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("promotions_unavailable", "promotion service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		Code     string `json:"code"`
		Category string `json:"category"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	result, err := h.promotions.ValidatePromotion(ctx, services.ValidatePromotionCommand{
		Code:     req.Code,
		Category: req.Category,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, promotionResultPayload{
		Code:       result.Code,
		Eligible:   result.Eligible,
		Reason:     result.Reason,
		PercentOff: result.PercentOff,
	})
}

// Payload shapes -------------------------------------------------------------

type productVariantPayload struct {
	SKU        string `json:"sku"`
	Size       string `json:"size,omitempty"`
	Color      string `json:"color,omitempty"`
	PriceDelta int64  `json:"priceDelta"`
	Stock      int    `json:"stock"`
}

type productPayload struct {
	ID              string                  `json:"id"`
	Name            string                  `json:"name"`
	Description     string                  `json:"description,omitempty"`
	Category        string                  `json:"category"`
	BasePrice       int64                   `json:"basePrice"`
	DiscountPercent int                     `json:"discountPercent"`
	ImagePaths      []string                `json:"imagePaths,omitempty"`
	Keywords        []string                `json:"keywords,omitempty"`
	IsPublished     bool                    `json:"isPublished"`
	Variants        []productVariantPayload `json:"variants"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

type shippingQuotePayload struct {
	Zone  string `json:"zone"`
	State string `json:"state"`
	Fee   int64  `json:"fee"`
}

type promotionResultPayload struct {
	Code       string `json:"code"`
	Eligible   bool   `json:"eligible"`
	Reason     string `json:"reason,omitempty"`
	PercentOff int    `json:"percentOff,omitempty"`
}

func buildProductPayload(product domain.Product) productPayload {
	payload := productPayload{
		ID:              product.ID,
		Name:            product.Name,
		Description:     product.Description,
		Category:        product.Category,
		BasePrice:       product.BasePrice,
		DiscountPercent: product.DiscountPercent,
		ImagePaths:      product.ImagePaths,
		Keywords:        product.Keywords,
		IsPublished:     product.IsPublished,
		CreatedAt:       product.CreatedAt,
		UpdatedAt:       product.UpdatedAt,
	}
	for _, variant := range product.Variants {
		payload.Variants = append(payload.Variants, productVariantPayload{
			SKU:        variant.SKU,
			Size:       variant.Size,
			Color:      variant.Color,
			PriceDelta: variant.PriceDelta,
			Stock:      variant.Stock,
		})
	}
	return payload
}
