package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PaystackLogger defines the logging contract for Paystack provider operations.
type PaystackLogger func(ctx context.Context, event string, fields map[string]any)

const defaultPaystackBaseURL = "https://api.paystack.co"

// PaystackProviderConfig configures the PaystackProvider.
type PaystackProviderConfig struct {
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
	Logger     PaystackLogger
	Clock      func() time.Time
}

// PaystackProvider implements the Provider interface against the Paystack REST API.
type PaystackProvider struct {
	secretKey string
	baseURL   string
	client    *http.Client
	clock     func() time.Time
	logger    PaystackLogger
}

// NewPaystackProvider constructs a Paystack Provider using the given configuration.
func NewPaystackProvider(cfg PaystackProviderConfig) (*PaystackProvider, error) {
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" {
		return nil, &ConfigurationError{Field: "SecretKey"}
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultPaystackBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, &ConfigurationError{Field: "BaseURL"}
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PaystackProvider{
		secretKey: secretKey,
		baseURL:   baseURL,
		client:    client,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackTransactionData struct {
	Status          string         `json:"status"`
	Reference       string         `json:"reference"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	Channel         string         `json:"channel"`
	GatewayResponse string         `json:"gateway_response"`
	PaidAt          string         `json:"paid_at"`
	Customer        map[string]any `json:"customer"`
}

// InitializeTransaction creates a hosted checkout transaction on Paystack.
func (p *PaystackProvider) InitializeTransaction(ctx context.Context, req InitializeRequest) (InitializeResult, error) {
	if p == nil {
		return InitializeResult{}, errors.New("paystack: provider is nil")
	}
	if req.Amount <= 0 {
		return InitializeResult{}, &ValidationError{Field: "amount", Reason: "must be a positive minor-unit amount"}
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return InitializeResult{}, &ValidationError{Field: "email", Reason: "is required"}
	}

	payload := map[string]any{
		"amount": req.Amount,
		"email":  email,
	}
	if currency := strings.ToUpper(strings.TrimSpace(req.Currency)); currency != "" {
		payload["currency"] = currency
	}
	if ref := strings.TrimSpace(req.Reference); ref != "" {
		payload["reference"] = ref
	}
	if cb := strings.TrimSpace(req.CallbackURL); cb != "" {
		payload["callback_url"] = cb
	}
	if len(req.Metadata) > 0 {
		payload["metadata"] = req.Metadata
	}

	var data paystackInitializeData
	if err := p.do(ctx, http.MethodPost, "/transaction/initialize", payload, &data); err != nil {
		return InitializeResult{}, err
	}

	p.logger(ctx, "payments.paystack.transaction.initialized", map[string]any{
		"reference":  data.Reference,
		"accessCode": data.AccessCode,
	})

	return InitializeResult{
		Provider:         "paystack",
		Reference:        data.Reference,
		AccessCode:       data.AccessCode,
		AuthorizationURL: data.AuthorizationURL,
	}, nil
}

// VerifyTransaction fetches the authoritative transaction state from Paystack.
func (p *PaystackProvider) VerifyTransaction(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	if p == nil {
		return VerifyResult{}, errors.New("paystack: provider is nil")
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return VerifyResult{}, &ValidationError{Field: "reference", Reason: "is required"}
	}

	var data paystackTransactionData
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := p.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		var verr *VerificationError
		if errors.As(err, &verr) && verr.Reference == "" {
			verr.Reference = reference
		}
		return VerifyResult{}, err
	}

	result := VerifyResult{
		Provider:        "paystack",
		Reference:       data.Reference,
		Status:          mapPaystackStatus(data.Status),
		Amount:          data.Amount,
		Currency:        strings.ToUpper(data.Currency),
		Channel:         data.Channel,
		GatewayResponse: data.GatewayResponse,
	}
	if result.Reference == "" {
		result.Reference = reference
	}
	if email, ok := data.Customer["email"].(string); ok {
		result.CustomerEmail = email
	}
	if data.PaidAt != "" {
		if paidAt, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
			t := paidAt.UTC()
			result.PaidAt = &t
		}
	}

	raw := map[string]any{}
	if encoded, err := json.Marshal(data); err == nil {
		_ = json.Unmarshal(encoded, &raw)
	}
	result.Raw = raw

	p.logger(ctx, "payments.paystack.transaction.verified", map[string]any{
		"reference": result.Reference,
		"status":    string(result.Status),
		"amount":    result.Amount,
	})

	return result, nil
}

func (p *PaystackProvider) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("paystack: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("paystack: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("paystack: %s %s: %w", method, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("paystack: read response: %w", err)
	}

	var envelope paystackEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &VerificationError{StatusCode: resp.StatusCode, Message: "malformed gateway response"}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.Status {
		message := strings.TrimSpace(envelope.Message)
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &VerificationError{StatusCode: resp.StatusCode, Message: message}
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return &VerificationError{StatusCode: resp.StatusCode, Message: "malformed gateway payload"}
		}
	}
	return nil
}

func mapPaystackStatus(status string) Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success":
		return StatusSucceeded
	case "failed", "reversed":
		return StatusFailed
	case "abandoned":
		return StatusAbandoned
	default:
		return StatusPending
	}
}
