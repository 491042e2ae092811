package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/adunni-couture/api/internal/platform/auth"
	"github.com/adunni-couture/api/internal/platform/httpx"
	"github.com/adunni-couture/api/internal/services"
)

// InternalHandlers serves service-to-service endpoints. Callers authenticate
// with Google-signed OIDC tokens via group middleware on the /internal mount,
// not with Firebase user credentials.
type InternalHandlers struct {
	payments services.PaymentService
	system   services.SystemService
}

// NewInternalHandlers constructs the internal handlers.
func NewInternalHandlers(payments services.PaymentService, system services.SystemService) *InternalHandlers {
	return &InternalHandlers{
		payments: payments,
		system:   system,
	}
}

// Routes wires the /internal endpoints onto the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/verify", h.reverifyPayment)
	r.Get("/health", h.health)
}

type internalVerifyRequest struct {
	Reference string `json:"reference"`
}

// reverifyPayment lets ops tooling replay verification for a reference that a
// client abandoned mid-callback. The receipt guard makes replays no-ops.
func (h *InternalHandlers) reverifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req internalVerifyRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	actor := "internal:ops"
	if identity, ok := auth.ServiceIdentityFromContext(ctx); ok && identity != nil && identity.Subject != "" {
		actor = "internal:" + identity.Subject
	}

	outcome, err := h.payments.VerifyOrderPayment(ctx, services.VerifyPaymentCommand{
		Reference: strings.TrimSpace(req.Reference),
		ActorID:   actor,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPaymentOutcomePayload(outcome))
}

func (h *InternalHandlers) health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("system_unavailable", "system service is unavailable", http.StatusServiceUnavailable))
		return
	}

	report, err := h.system.HealthReport(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("health_check_failed", "failed to assemble health report", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, buildHealthPayload(report))
}
