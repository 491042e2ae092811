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

// PaymentHandlers exposes the server-side verification endpoints. The client
// returns from the gateway with a reference; nothing changes state until the
// gateway confirms that reference here.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
	limiter  rateLimiter
}

// PaymentOption customizes payment handler construction.
type PaymentOption func(*PaymentHandlers)

// WithVerifyRateLimit caps verification attempts per user inside the window.
func WithVerifyRateLimit(limit int, window time.Duration) PaymentOption {
	return func(h *PaymentHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewPaymentHandlers constructs the payment handlers.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, opts ...PaymentOption) *PaymentHandlers {
	h := &PaymentHandlers{
		authn:    authn,
		payments: payments,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /payments endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/verify", h.verifyOrderPayment)
	r.Post("/invoices/verify", h.verifyInvoicePayment)
}

func (h *PaymentHandlers) allow(w http.ResponseWriter, r *http.Request, uid string) bool {
	if h.limiter == nil || h.limiter.Allow("verify:"+uid) {
		return true
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many verification attempts, try again shortly", http.StatusTooManyRequests))
	return false
}

type verifyPaymentRequest struct {
	Reference string `json:"reference"`
}

func (h *PaymentHandlers) verifyOrderPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if !h.allow(w, r, identity.UID) {
		return
	}

	var req verifyPaymentRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	outcome, err := h.payments.VerifyOrderPayment(ctx, services.VerifyPaymentCommand{
		Reference: strings.TrimSpace(req.Reference),
		ActorID:   identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPaymentOutcomePayload(outcome))
}

type verifyInvoicePaymentRequest struct {
	InvoiceID string `json:"invoiceId"`
	Reference string `json:"reference"`
}

func (h *PaymentHandlers) verifyInvoicePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if !h.allow(w, r, identity.UID) {
		return
	}

	var req verifyInvoicePaymentRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	outcome, err := h.payments.VerifyInvoicePayment(ctx, services.VerifyInvoicePaymentCommand{
		InvoiceID: strings.TrimSpace(req.InvoiceID),
		Reference: strings.TrimSpace(req.Reference),
		ActorID:   identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPaymentOutcomePayload(outcome))
}

type receiptPayload struct {
	ID               string    `json:"id"`
	OrderRef         *string   `json:"orderRef,omitempty"`
	InvoiceRef       *string   `json:"invoiceRef,omitempty"`
	Amount           int64     `json:"amount"`
	PaymentReference string    `json:"paymentReference"`
	PDFURL           string    `json:"pdfUrl,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

type invoicePayload struct {
	ID             string     `json:"id"`
	CustomOrderRef string     `json:"customOrderRef"`
	Amount         int64      `json:"amount"`
	Deposit        int64      `json:"deposit"`
	Balance        int64      `json:"balance"`
	Paid           bool       `json:"paid"`
	PDFURL         string     `json:"pdfUrl,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	PaidAt         *time.Time `json:"paidAt,omitempty"`
}

type paymentOutcomePayload struct {
	Reference        string              `json:"reference"`
	AlreadyProcessed bool                `json:"alreadyProcessed"`
	Receipt          receiptPayload      `json:"receipt"`
	Order            *orderPayload       `json:"order,omitempty"`
	Invoice          *invoicePayload     `json:"invoice,omitempty"`
	CustomOrder      *customOrderPayload `json:"customOrder,omitempty"`
}

func buildReceiptPayload(receipt domain.Receipt) receiptPayload {
	return receiptPayload{
		ID:               receipt.ID,
		OrderRef:         receipt.OrderRef,
		InvoiceRef:       receipt.InvoiceRef,
		Amount:           receipt.Amount,
		PaymentReference: receipt.PaymentReference,
		PDFURL:           receipt.PDFURL,
		CreatedAt:        receipt.CreatedAt,
	}
}

func buildInvoicePayload(invoice domain.Invoice) invoicePayload {
	return invoicePayload{
		ID:             invoice.ID,
		CustomOrderRef: invoice.CustomOrderRef,
		Amount:         invoice.Amount,
		Deposit:        invoice.Deposit,
		Balance:        invoice.Amount - invoice.Deposit,
		Paid:           invoice.Paid,
		PDFURL:         invoice.PDFURL,
		CreatedAt:      invoice.CreatedAt,
		PaidAt:         invoice.PaidAt,
	}
}

func buildPaymentOutcomePayload(outcome services.PaymentOutcome) paymentOutcomePayload {
	payload := paymentOutcomePayload{
		Reference:        outcome.Reference,
		AlreadyProcessed: outcome.AlreadyProcessed,
		Receipt:          buildReceiptPayload(outcome.Receipt),
	}
	if outcome.Order != nil {
		order := buildOrderPayload(*outcome.Order)
		payload.Order = &order
	}
	if outcome.Invoice != nil {
		invoice := buildInvoicePayload(*outcome.Invoice)
		payload.Invoice = &invoice
	}
	if outcome.CustomOrder != nil {
		customOrder := buildCustomOrderPayload(*outcome.CustomOrder)
		payload.CustomOrder = &customOrder
	}
	return payload
}
