package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/adunni-couture/api/internal/platform/httpx"
	"github.com/adunni-couture/api/internal/services"
)

// WebhookHandlers receives gateway event notifications. Events are advisory
// only: the reference they carry is re-verified against the gateway before any
// state changes, so a forged or replayed event cannot move an order on its own.
// Signature checks run as group middleware on the /webhooks mount.
type WebhookHandlers struct {
	payments services.PaymentService
}

// NewWebhookHandlers constructs the webhook handlers.
func NewWebhookHandlers(payments services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{payments: payments}
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/gateway", h.gatewayEvent)
}

type gatewayEventRequest struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

func (h *WebhookHandlers) gatewayEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req gatewayEventRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	// The gateway only signals successful charges worth acting on; other
	// events are acknowledged so the sender stops retrying.
	if !strings.EqualFold(strings.TrimSpace(req.Event), "charge.success") {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	reference := strings.TrimSpace(req.Data.Reference)
	if reference == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "event data is missing the payment reference", http.StatusBadRequest))
		return
	}

	outcome, err := h.payments.VerifyOrderPayment(ctx, services.VerifyPaymentCommand{
		Reference: reference,
		ActorID:   "webhook:gateway",
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPaymentOutcomePayload(outcome))
}
