package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/platform/auth"
	"github.com/adunni-couture/api/internal/services"
)

type stubCartService struct {
	getFn             func(context.Context, string) (services.Cart, error)
	addItemFn         func(context.Context, services.UpsertCartItemCommand) (services.Cart, error)
	removeItemFn      func(context.Context, services.RemoveCartItemCommand) (services.Cart, error)
	setAddressFn      func(context.Context, services.SetCartAddressCommand) (services.Cart, error)
	applyPromotionFn  func(context.Context, services.CartPromotionCommand) (services.Cart, error)
	removePromotionFn func(context.Context, string) (services.Cart, error)
	estimateFn        func(context.Context, string) (services.CartEstimate, error)
	clearFn           func(context.Context, string) error
}

func (s *stubCartService) GetOrCreateCart(ctx context.Context, userID string) (services.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) AddOrUpdateItem(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error) {
	if s.addItemFn != nil {
		return s.addItemFn(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	if s.removeItemFn != nil {
		return s.removeItemFn(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) SetDeliveryAddress(ctx context.Context, cmd services.SetCartAddressCommand) (services.Cart, error) {
	if s.setAddressFn != nil {
		return s.setAddressFn(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) ApplyPromotion(ctx context.Context, cmd services.CartPromotionCommand) (services.Cart, error) {
	if s.applyPromotionFn != nil {
		return s.applyPromotionFn(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) RemovePromotion(ctx context.Context, userID string) (services.Cart, error) {
	if s.removePromotionFn != nil {
		return s.removePromotionFn(ctx, userID)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) Estimate(ctx context.Context, userID string) (services.CartEstimate, error) {
	if s.estimateFn != nil {
		return s.estimateFn(ctx, userID)
	}
	return services.CartEstimate{}, errors.New("not implemented")
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, userID)
	}
	return errors.New("not implemented")
}

func TestCartHandlersGetCart(t *testing.T) {
	now := time.Date(2025, 4, 4, 12, 0, 0, 0, time.UTC)

	service := &stubCartService{
		getFn: func(ctx context.Context, userID string) (services.Cart, error) {
			if userID != "user-1" {
				t.Fatalf("expected user-1, got %s", userID)
			}
			return services.Cart{
				ID:       "crt_1",
				UserID:   userID,
				Currency: "NGN",
				Items: []domain.CartItem{
					{ID: "itm_1", ProductID: "prd_1", VariantSKU: "ANK-M-RED", Name: "Ankara Shift Dress", Quantity: 2, UnitPrice: 185000, AddedAt: now},
				},
				Estimate:  &domain.CartEstimate{Subtotal: 370000, Shipping: 25000, Total: 395000},
				UpdatedAt: now,
			}, nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp cartPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.ID != "crt_1" || len(resp.Items) != 1 {
		t.Fatalf("unexpected cart %#v", resp)
	}
	if resp.Estimate == nil || resp.Estimate.Total != 395000 {
		t.Fatalf("unexpected estimate %#v", resp.Estimate)
	}
}

func TestCartHandlersUpsertItem(t *testing.T) {
	var capturedCmd services.UpsertCartItemCommand
	service := &stubCartService{
		addItemFn: func(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error) {
			capturedCmd = cmd
			return services.Cart{ID: "crt_1", UserID: cmd.UserID}, nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := bytes.NewBufferString(`{"productId": "prd_9", "variantSku": "ASO-L-GLD", "quantity": 3}`)
	req := httptest.NewRequest(http.MethodPut, "/cart/items", body)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedCmd.ProductID != "prd_9" || capturedCmd.VariantSKU != "ASO-L-GLD" || capturedCmd.Quantity != 3 {
		t.Fatalf("unexpected command %#v", capturedCmd)
	}
	if capturedCmd.UserID != "user-1" {
		t.Fatalf("expected user-1, got %s", capturedCmd.UserID)
	}
}

func TestCartHandlersUpsertItemInsufficientStockMapped(t *testing.T) {
	service := &stubCartService{
		addItemFn: func(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error) {
			return services.Cart{}, services.ErrCartInsufficientStock
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := bytes.NewBufferString(`{"productId": "prd_9", "quantity": 50}`)
	req := httptest.NewRequest(http.MethodPut, "/cart/items", body)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCartHandlersRemoveItem(t *testing.T) {
	var capturedCmd services.RemoveCartItemCommand
	service := &stubCartService{
		removeItemFn: func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
			capturedCmd = cmd
			return services.Cart{ID: "crt_1"}, nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodDelete, "/cart/items/itm_2", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if capturedCmd.ItemID != "itm_2" {
		t.Fatalf("expected item itm_2, got %s", capturedCmd.ItemID)
	}
}

func TestCartHandlersSetAddress(t *testing.T) {
	var capturedCmd services.SetCartAddressCommand
	service := &stubCartService{
		setAddressFn: func(ctx context.Context, cmd services.SetCartAddressCommand) (services.Cart, error) {
			capturedCmd = cmd
			addr := cmd.Address
			return services.Cart{ID: "crt_1", DeliveryAddress: &addr}, nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := bytes.NewBufferString(`{"recipient": "Ngozi Eze", "line1": "3 Awolowo Rd", "city": "Ikoyi", "state": "Lagos", "country": "NG"}`)
	req := httptest.NewRequest(http.MethodPut, "/cart/address", body)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedCmd.Address.State != "Lagos" || capturedCmd.Address.Recipient != "Ngozi Eze" {
		t.Fatalf("unexpected address %#v", capturedCmd.Address)
	}
}

func TestCartHandlersApplyPromotionRejectedMapped(t *testing.T) {
	service := &stubCartService{
		applyPromotionFn: func(ctx context.Context, cmd services.CartPromotionCommand) (services.Cart, error) {
			return services.Cart{}, services.ErrCartPromotionRejected
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := bytes.NewBufferString(`{"code": "EXPIRED10"}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/promotion", body)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCartHandlersEstimate(t *testing.T) {
	service := &stubCartService{
		estimateFn: func(ctx context.Context, userID string) (services.CartEstimate, error) {
			return services.CartEstimate{Subtotal: 370000, Discount: 37000, Shipping: 25000, Total: 358000}, nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/cart/estimate", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp cartEstimatePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Total != 358000 || resp.Discount != 37000 {
		t.Fatalf("unexpected estimate %#v", resp)
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	cleared := false
	service := &stubCartService{
		clearFn: func(ctx context.Context, userID string) error {
			cleared = true
			return nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodDelete, "/cart", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !cleared {
		t.Fatalf("expected clear to be invoked")
	}
}
