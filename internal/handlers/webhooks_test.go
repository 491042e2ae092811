package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/services"
)

func TestWebhookHandlersChargeSuccessVerifiesReference(t *testing.T) {
	var capturedCmd services.VerifyPaymentCommand
	payments := &stubPaymentService{
		verifyOrderFn: func(ctx context.Context, cmd services.VerifyPaymentCommand) (services.PaymentOutcome, error) {
			capturedCmd = cmd
			return services.PaymentOutcome{
				Reference: cmd.Reference,
				Receipt:   services.Receipt{ID: "rcp_1", PaymentReference: cmd.Reference},
				Order:     &services.Order{ID: "ord_1", Status: domain.OrderStatusProcessing},
			}, nil
		},
	}

	handler := NewWebhookHandlers(payments)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	body := bytes.NewBufferString(`{"event": "charge.success", "data": {"reference": "AC-01HYREF", "status": "success"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", body)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedCmd.Reference != "AC-01HYREF" {
		t.Fatalf("expected reference AC-01HYREF, got %s", capturedCmd.Reference)
	}
	if capturedCmd.ActorID != "webhook:gateway" {
		t.Fatalf("expected webhook actor, got %s", capturedCmd.ActorID)
	}
}

func TestWebhookHandlersIgnoresOtherEvents(t *testing.T) {
	called := false
	payments := &stubPaymentService{
		verifyOrderFn: func(ctx context.Context, cmd services.VerifyPaymentCommand) (services.PaymentOutcome, error) {
			called = true
			return services.PaymentOutcome{}, nil
		},
	}

	handler := NewWebhookHandlers(payments)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	body := bytes.NewBufferString(`{"event": "transfer.failed", "data": {"reference": "AC-01HYREF"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", body)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if called {
		t.Fatalf("expected non-charge events to be ignored")
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "ignored" {
		t.Fatalf("expected ignored ack, got %#v", resp)
	}
}

func TestWebhookHandlersMissingReference(t *testing.T) {
	handler := NewWebhookHandlers(&stubPaymentService{})
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	body := bytes.NewBufferString(`{"event": "charge.success", "data": {"status": "success"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", body)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestInternalHandlersReverifyPayment(t *testing.T) {
	var capturedCmd services.VerifyPaymentCommand
	payments := &stubPaymentService{
		verifyOrderFn: func(ctx context.Context, cmd services.VerifyPaymentCommand) (services.PaymentOutcome, error) {
			capturedCmd = cmd
			return services.PaymentOutcome{
				Reference:        cmd.Reference,
				AlreadyProcessed: true,
				Receipt:          services.Receipt{ID: "rcp_1", PaymentReference: cmd.Reference},
			}, nil
		},
	}

	handler := NewInternalHandlers(payments, nil)
	router := chi.NewRouter()
	router.Route("/internal", handler.Routes)

	body := bytes.NewBufferString(`{"reference": "AC-01HYREF"}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/payments/verify", body)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedCmd.ActorID != "internal:ops" {
		t.Fatalf("expected fallback actor internal:ops, got %s", capturedCmd.ActorID)
	}

	var resp paymentOutcomePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.AlreadyProcessed {
		t.Fatalf("expected replay acknowledgement")
	}
}
