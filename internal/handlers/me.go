package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/platform/auth"
	"github.com/adunni-couture/api/internal/platform/httpx"
	"github.com/adunni-couture/api/internal/services"
)

// DocumentURLSigner exchanges a stored object path for a time-limited download
// URL scoped to the requesting identity. Returning false leaves the stored path
// untouched.
type DocumentURLSigner func(ctx context.Context, objectPath string, identity *auth.Identity) (string, bool)

// MeHandlers serves the authenticated user's own surface: profile, in-app
// notification feed, receipts, and invoices.
type MeHandlers struct {
	authn         *auth.Authenticator
	users         services.UserService
	notifications services.NotificationService
	payments      services.PaymentService
	signDocument  DocumentURLSigner
}

// MeOption customises MeHandlers behaviour.
type MeOption func(*MeHandlers)

// WithDocumentURLSigner makes receipt and invoice listings return signed
// download URLs instead of raw storage paths.
func WithDocumentURLSigner(sign DocumentURLSigner) MeOption {
	return func(h *MeHandlers) {
		h.signDocument = sign
	}
}

// NewMeHandlers constructs the /me handlers.
func NewMeHandlers(authn *auth.Authenticator, users services.UserService, notifications services.NotificationService, payments services.PaymentService, opts ...MeOption) *MeHandlers {
	handler := &MeHandlers{
		authn:         authn,
		users:         users,
		notifications: notifications,
		payments:      payments,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	return handler
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getProfile)
	r.Get("/notifications", h.listNotifications)
	r.Post("/notifications/{notificationID}/read", h.markNotificationRead)
	r.Get("/receipts", h.listReceipts)
	r.Get("/invoices", h.listInvoices)
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("users_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
		return
	}

	cmd := services.SyncProfileCommand{
		UserID:         identity.UID,
		Email:          identity.Email,
		Roles:          identity.Roles,
		AcceptLanguage: r.Header.Get("Accept-Language"),
	}
	// The Firebase record carries the display name and phone number; the
	// profile stays usable with token claims alone when the loader is absent.
	if record, err := identity.User(ctx); err == nil && record != nil {
		cmd.DisplayName = record.DisplayName
		cmd.PhoneNumber = record.PhoneNumber
		if cmd.Email == "" {
			cmd.Email = record.Email
		}
	}

	profile, err := h.users.SyncProfile(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProfilePayload(profile))
}

func (h *MeHandlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notifications_unavailable", "notification service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePager(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.notifications.ListForUser(ctx, identity.UID, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := notificationListResponse{NextPageToken: page.NextPageToken}
	for _, notification := range page.Items {
		resp.Items = append(resp.Items, buildNotificationPayload(notification))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *MeHandlers) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notifications_unavailable", "notification service is unavailable", http.StatusServiceUnavailable))
		return
	}

	notification, err := h.notifications.MarkRead(ctx, services.MarkNotificationReadCommand{
		UserID:         identity.UID,
		NotificationID: chi.URLParam(r, "notificationID"),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildNotificationPayload(notification))
}

func (h *MeHandlers) listReceipts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePager(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.payments.ListReceipts(ctx, identity.UID, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := receiptListResponse{NextPageToken: page.NextPageToken}
	for _, receipt := range page.Items {
		payload := buildReceiptPayload(receipt)
		payload.PDFURL = h.documentURL(ctx, payload.PDFURL, identity)
		resp.Items = append(resp.Items, payload)
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *MeHandlers) listInvoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePager(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.payments.ListInvoices(ctx, identity.UID, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := invoiceListResponse{NextPageToken: page.NextPageToken}
	for _, invoice := range page.Items {
		payload := buildInvoicePayload(invoice)
		payload.PDFURL = h.documentURL(ctx, payload.PDFURL, identity)
		resp.Items = append(resp.Items, payload)
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *MeHandlers) documentURL(ctx context.Context, objectPath string, identity *auth.Identity) string {
	if h.signDocument == nil || objectPath == "" {
		return objectPath
	}
	if signed, ok := h.signDocument(ctx, objectPath, identity); ok {
		return signed
	}
	return objectPath
}

type profilePayload struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"displayName,omitempty"`
	Email           string    `json:"email,omitempty"`
	PhoneNumber     string    `json:"phoneNumber,omitempty"`
	Roles           []string  `json:"roles"`
	PreferredLocale string    `json:"preferredLocale,omitempty"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type notificationPayload struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type notificationListResponse struct {
	Items         []notificationPayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

type receiptListResponse struct {
	Items         []receiptPayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

type invoiceListResponse struct {
	Items         []invoicePayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

func buildProfilePayload(profile domain.UserProfile) profilePayload {
	return profilePayload{
		ID:              profile.ID,
		DisplayName:     profile.DisplayName,
		Email:           profile.Email,
		PhoneNumber:     profile.PhoneNumber,
		Roles:           profile.Roles,
		PreferredLocale: profile.PreferredLocale,
		IsActive:        profile.IsActive,
		CreatedAt:       profile.CreatedAt,
		UpdatedAt:       profile.UpdatedAt,
	}
}

func buildNotificationPayload(notification domain.Notification) notificationPayload {
	return notificationPayload{
		ID:        notification.ID,
		Message:   notification.Message,
		Read:      notification.Read,
		CreatedAt: notification.CreatedAt,
	}
}
