package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised transaction states shared across providers.
type Status string

const (
	// StatusPending indicates the transaction is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the charge as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusAbandoned indicates the customer never completed the checkout flow.
	StatusAbandoned Status = "abandoned"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// ConfigurationError indicates the adapter is missing credentials or endpoints.
type ConfigurationError struct {
	Field string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("payments: missing configuration %s", e.Field)
}

// ValidationError indicates the request payload failed adapter-side validation.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("payments: invalid %s: %s", e.Field, e.Reason)
}

// VerificationError indicates the gateway rejected or could not confirm a transaction.
type VerificationError struct {
	Reference  string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	return fmt.Sprintf("payments: verification failed for %s (http %d): %s", e.Reference, e.StatusCode, e.Message)
}

// InitializeRequest captures the payload required to start a hosted checkout transaction.
// Amount is the charge total in the currency's minor unit (kobo for NGN).
type InitializeRequest struct {
	Amount      int64
	Currency    string
	Email       string
	Reference   string
	CallbackURL string
	Metadata    map[string]string
}

// InitializeResult represents the gateway transaction handed back to the client.
type InitializeResult struct {
	Provider         string
	Reference        string
	AccessCode       string
	AuthorizationURL string
}

// VerifyRequest asks the gateway for the authoritative state of a transaction.
type VerifyRequest struct {
	Reference string
}

// VerifyResult normalises gateway specific fields for storage. Amount is in the
// currency's minor unit as reported by the gateway, not the client.
type VerifyResult struct {
	Provider        string
	Reference       string
	Status          Status
	Amount          int64
	Currency        string
	Channel         string
	GatewayResponse string
	CustomerEmail   string
	PaidAt          *time.Time
	Raw             map[string]any
}

// Succeeded reports whether the gateway confirmed the charge.
func (r VerifyResult) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Provider defines the contract for payment gateway adapters to implement.
// VerifyTransaction must always consult the gateway; a client-reported outcome
// is never trusted on its own.
type Provider interface {
	InitializeTransaction(ctx context.Context, req InitializeRequest) (InitializeResult, error)
	VerifyTransaction(ctx context.Context, req VerifyRequest) (VerifyResult, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["paystack"]; ok {
		m.defaultProvider = "paystack"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
	Metadata          map[string]string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currency]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// InitializeTransaction delegates to the resolved provider.
func (m *Manager) InitializeTransaction(ctx context.Context, paymentCtx PaymentContext, req InitializeRequest) (InitializeResult, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return InitializeResult{}, err
	}
	result, err := provider.InitializeTransaction(ctx, req)
	if err != nil {
		return InitializeResult{}, err
	}
	result.Provider = key
	return result, nil
}

// VerifyTransaction delegates to the resolved provider.
func (m *Manager) VerifyTransaction(ctx context.Context, paymentCtx PaymentContext, req VerifyRequest) (VerifyResult, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return VerifyResult{}, err
	}
	result, err := provider.VerifyTransaction(ctx, req)
	if err != nil {
		return VerifyResult{}, err
	}
	if result.Provider == "" {
		result.Provider = key
	}
	return result, nil
}
