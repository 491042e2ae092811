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

type stubCustomOrderService struct {
	submitFn     func(context.Context, services.SubmitCustomOrderCommand) (services.CustomOrder, error)
	listFn       func(context.Context, services.CustomOrderListFilter) (domain.CursorPage[services.CustomOrder], error)
	getFn        func(context.Context, services.GetCustomOrderCommand) (services.CustomOrder, error)
	priceFn      func(context.Context, services.SetPriceCommand) (services.CustomOrder, error)
	transitionFn func(context.Context, services.CustomOrderTransitionCommand) (services.CustomOrder, error)
	deliveryFn   func(context.Context, services.AdvanceDeliveryCommand) (services.CustomOrder, error)
	cancelFn     func(context.Context, services.CancelCustomOrderCommand) (services.CustomOrder, error)
}

func (s *stubCustomOrderService) Submit(ctx context.Context, cmd services.SubmitCustomOrderCommand) (services.CustomOrder, error) {
	if s.submitFn != nil {
		return s.submitFn(ctx, cmd)
	}
	return services.CustomOrder{}, errors.New("not implemented")
}

func (s *stubCustomOrderService) ListCustomOrders(ctx context.Context, filter services.CustomOrderListFilter) (domain.CursorPage[services.CustomOrder], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.CustomOrder]{}, nil
}

func (s *stubCustomOrderService) GetCustomOrder(ctx context.Context, cmd services.GetCustomOrderCommand) (services.CustomOrder, error) {
	if s.getFn != nil {
		return s.getFn(ctx, cmd)
	}
	return services.CustomOrder{}, errors.New("not implemented")
}

func (s *stubCustomOrderService) SetPriceAndStart(ctx context.Context, cmd services.SetPriceCommand) (services.CustomOrder, error) {
	if s.priceFn != nil {
		return s.priceFn(ctx, cmd)
	}
	return services.CustomOrder{}, errors.New("not implemented")
}

func (s *stubCustomOrderService) TransitionStatus(ctx context.Context, cmd services.CustomOrderTransitionCommand) (services.CustomOrder, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.CustomOrder{}, errors.New("not implemented")
}

func (s *stubCustomOrderService) AdvanceDeliveryStatus(ctx context.Context, cmd services.AdvanceDeliveryCommand) (services.CustomOrder, error) {
	if s.deliveryFn != nil {
		return s.deliveryFn(ctx, cmd)
	}
	return services.CustomOrder{}, errors.New("not implemented")
}

func (s *stubCustomOrderService) Cancel(ctx context.Context, cmd services.CancelCustomOrderCommand) (services.CustomOrder, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.CustomOrder{}, errors.New("not implemented")
}

func TestCustomOrderHandlersSubmit(t *testing.T) {
	now := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)

	var capturedCmd services.SubmitCustomOrderCommand
	service := &stubCustomOrderService{
		submitFn: func(ctx context.Context, cmd services.SubmitCustomOrderCommand) (services.CustomOrder, error) {
			capturedCmd = cmd
			return services.CustomOrder{
				ID:             "cord_1",
				UserID:         cmd.UserID,
				Contact:        cmd.Contact,
				Fabric:         cmd.Fabric,
				Style:          cmd.Style,
				Measurements:   cmd.Measurements,
				Status:         domain.CustomOrderStatusPending,
				DeliveryStatus: domain.DeliveryStatusNotStarted,
				Deposit:        cmd.Deposit,
				CreatedAt:      now,
				UpdatedAt:      now,
			}, nil
		},
	}

	handler := NewCustomOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/custom-orders", handler.Routes)

	body := bytes.NewBufferString(`{
		"contactName": "Adaeze Obi",
		"contactPhone": "+2348012345678",
		"fabric": "aso-oke",
		"style": "agbada",
		"measurements": {"chest": "42", "sleeve": "25"},
		"notes": "gold embroidery on cuffs",
		"address": {"recipient": "Adaeze Obi", "line1": "14 Adeola Odeku St", "city": "Lagos", "state": "Lagos", "country": "NG"},
		"deposit": 250000
	}`)
	req := httptest.NewRequest(http.MethodPost, "/custom-orders", body)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1", Email: "adaeze@example.com"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedCmd.UserID != "user-1" {
		t.Fatalf("expected user-1, got %s", capturedCmd.UserID)
	}
	if capturedCmd.Contact.Email != "adaeze@example.com" {
		t.Fatalf("expected token email fallback, got %s", capturedCmd.Contact.Email)
	}
	if capturedCmd.Contact.Name != "Adaeze Obi" {
		t.Fatalf("unexpected contact name %s", capturedCmd.Contact.Name)
	}
	if capturedCmd.Measurements["chest"] != "42" {
		t.Fatalf("expected chest measurement to pass through, got %#v", capturedCmd.Measurements)
	}
	if capturedCmd.Address == nil || capturedCmd.Address.State != "Lagos" {
		t.Fatalf("expected delivery address with state Lagos, got %#v", capturedCmd.Address)
	}
	if capturedCmd.Deposit != 250000 {
		t.Fatalf("expected deposit 250000, got %d", capturedCmd.Deposit)
	}

	var resp customOrderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != string(domain.CustomOrderStatusPending) {
		t.Fatalf("expected pending, got %s", resp.Status)
	}
	if resp.DeliveryStatus != string(domain.DeliveryStatusNotStarted) {
		t.Fatalf("expected not_started, got %s", resp.DeliveryStatus)
	}
}

func TestCustomOrderHandlersSubmitRejectsUnknownFields(t *testing.T) {
	handler := NewCustomOrderHandlers(nil, &stubCustomOrderService{})
	router := chi.NewRouter()
	router.Route("/custom-orders", handler.Routes)

	body := bytes.NewBufferString(`{"fabric": "ankara", "price": 100}`)
	req := httptest.NewRequest(http.MethodPost, "/custom-orders", body)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCustomOrderHandlersListScopesToCaller(t *testing.T) {
	var capturedFilter services.CustomOrderListFilter
	service := &stubCustomOrderService{
		listFn: func(ctx context.Context, filter services.CustomOrderListFilter) (domain.CursorPage[services.CustomOrder], error) {
			capturedFilter = filter
			return domain.CursorPage[services.CustomOrder]{}, nil
		},
	}

	handler := NewCustomOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/custom-orders", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/custom-orders?status=pending&page_size=5", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-7"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if capturedFilter.UserID != "user-7" {
		t.Fatalf("expected filter scoped to user-7, got %s", capturedFilter.UserID)
	}
	if len(capturedFilter.Status) != 1 || capturedFilter.Status[0] != "pending" {
		t.Fatalf("unexpected status filter %#v", capturedFilter.Status)
	}
	if capturedFilter.Pagination.PageSize != 5 {
		t.Fatalf("expected page size 5, got %d", capturedFilter.Pagination.PageSize)
	}
}

func TestCustomOrderHandlersSetPrice(t *testing.T) {
	var capturedCmd services.SetPriceCommand
	service := &stubCustomOrderService{
		priceFn: func(ctx context.Context, cmd services.SetPriceCommand) (services.CustomOrder, error) {
			capturedCmd = cmd
			return services.CustomOrder{
				ID:     cmd.CustomOrderID,
				Status: domain.CustomOrderStatusInProgress,
				Price:  cmd.Price,
			}, nil
		},
	}

	handler := NewCustomOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/admin/custom-orders", handler.AdminRoutes)

	body := bytes.NewBufferString(`{"price": 1200000, "expectedStatus": "pending"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/custom-orders/cord_9/price", body)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "staff-1", Roles: []string{auth.RoleStaff}}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedCmd.CustomOrderID != "cord_9" {
		t.Fatalf("expected cord_9, got %s", capturedCmd.CustomOrderID)
	}
	if capturedCmd.Price == nil || *capturedCmd.Price != 1200000 {
		t.Fatalf("expected price 1200000, got %#v", capturedCmd.Price)
	}
	if capturedCmd.ExpectedStatus == nil || *capturedCmd.ExpectedStatus != domain.CustomOrderStatusPending {
		t.Fatalf("expected guard pending, got %#v", capturedCmd.ExpectedStatus)
	}
	if capturedCmd.ActorID != "staff-1" {
		t.Fatalf("expected actor staff-1, got %s", capturedCmd.ActorID)
	}
}

func TestCustomOrderHandlersAdvanceDeliveryLockedMapped(t *testing.T) {
	service := &stubCustomOrderService{
		deliveryFn: func(ctx context.Context, cmd services.AdvanceDeliveryCommand) (services.CustomOrder, error) {
			return services.CustomOrder{}, services.ErrCustomOrderDeliveryLocked
		},
	}

	handler := NewCustomOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/admin/custom-orders", handler.AdminRoutes)

	body := bytes.NewBufferString(`{"target": "in_progress"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/custom-orders/cord_2/delivery", body)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "staff-1", Roles: []string{auth.RoleAdmin}}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCustomOrderHandlersCancel(t *testing.T) {
	var capturedCmd services.CancelCustomOrderCommand
	service := &stubCustomOrderService{
		cancelFn: func(ctx context.Context, cmd services.CancelCustomOrderCommand) (services.CustomOrder, error) {
			capturedCmd = cmd
			return services.CustomOrder{
				ID:     cmd.CustomOrderID,
				Status: domain.CustomOrderStatusCancelled,
			}, nil
		},
	}

	handler := NewCustomOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/admin/custom-orders", handler.AdminRoutes)

	body := bytes.NewBufferString(`{"reason": "customer withdrew"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/custom-orders/cord_4/cancel", body)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "staff-2", Roles: []string{auth.RoleStaff}}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedCmd.CustomOrderID != "cord_4" || capturedCmd.Reason != "customer withdrew" {
		t.Fatalf("unexpected command %#v", capturedCmd)
	}
	if capturedCmd.ExpectedStatus != nil {
		t.Fatalf("expected no guard, got %#v", capturedCmd.ExpectedStatus)
	}
}
