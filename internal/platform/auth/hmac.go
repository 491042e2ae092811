package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Header names and windows used when callers do not override them.
const (
	defaultSignatureHeader = "X-Signature"
	defaultTimestampHeader = "X-Signature-Timestamp"
	defaultNonceHeader     = "X-Signature-Nonce"

	defaultSignatureSkew = 5 * time.Minute
	defaultNonceTTL      = 5 * time.Minute
)

// SecretSource resolves the shared secrets that sign webhook payloads.
type SecretSource interface {
	LookupSecret(ctx context.Context, name string) (string, error)
}

// NonceStore remembers nonces so a captured request cannot be replayed.
type NonceStore interface {
	// Claim records the nonce within the scope until expiry. It returns
	// false when the nonce was already claimed.
	Claim(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error)
}

// MemoryNonceStore keeps claimed nonces in process memory. Good enough for
// a single instance; a shared store is needed once the API scales out.
type MemoryNonceStore struct {
	mu     sync.Mutex
	claims map[string]time.Time
}

// NewMemoryNonceStore builds an empty store.
func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{claims: make(map[string]time.Time)}
}

// Claim implements NonceStore, pruning expired entries as it goes.
func (s *MemoryNonceStore) Claim(_ context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("auth: scope and nonce are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, exp := range s.claims {
		if exp.Before(now) {
			delete(s.claims, key)
		}
	}
	if expiry.Before(now) {
		return false, errors.New("auth: nonce expiry is in the past")
	}

	key := scope + "::" + nonce
	if held, ok := s.claims[key]; ok && held.After(now) {
		return false, nil
	}
	s.claims[key] = expiry
	return true, nil
}

// WebhookVerifier checks the HMAC signature on inbound webhooks, for
// example the payment gateway and the document renderer.
type WebhookVerifier struct {
	secrets SecretSource
	nonces  NonceStore
	logger  Logger
	now     func() time.Time

	signatureHeader string
	timestampHeader string
	nonceHeader     string

	skew     time.Duration
	nonceTTL time.Duration

	secretCache sync.Map
}

// WebhookOption customises a WebhookVerifier.
type WebhookOption func(*WebhookVerifier)

// WithWebhookLogger overrides the verifier logger.
func WithWebhookLogger(logger Logger) WebhookOption {
	return func(v *WebhookVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithWebhookClock injects the time source, for tests.
func WithWebhookClock(now func() time.Time) WebhookOption {
	return func(v *WebhookVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithWebhookHeaders overrides the signature, timestamp, and nonce headers.
func WithWebhookHeaders(signature, timestamp, nonce string) WebhookOption {
	return func(v *WebhookVerifier) {
		if signature != "" {
			v.signatureHeader = signature
		}
		if timestamp != "" {
			v.timestampHeader = timestamp
		}
		if nonce != "" {
			v.nonceHeader = nonce
		}
	}
}

// WithWebhookClockSkew adjusts the accepted timestamp window.
func WithWebhookClockSkew(d time.Duration) WebhookOption {
	return func(v *WebhookVerifier) {
		if d > 0 {
			v.skew = d
		}
	}
}

// WithWebhookNonceTTL adjusts how long nonces stay claimed.
func WithWebhookNonceTTL(d time.Duration) WebhookOption {
	return func(v *WebhookVerifier) {
		if d > 0 {
			v.nonceTTL = d
		}
	}
}

// NewWebhookVerifier builds a verifier over the secret source and nonce store.
func NewWebhookVerifier(secrets SecretSource, nonces NonceStore, opts ...WebhookOption) *WebhookVerifier {
	v := &WebhookVerifier{
		secrets:         secrets,
		nonces:          nonces,
		logger:          log.Default(),
		now:             time.Now,
		signatureHeader: defaultSignatureHeader,
		timestampHeader: defaultTimestampHeader,
		nonceHeader:     defaultNonceHeader,
		skew:            defaultSignatureSkew,
		nonceTTL:        defaultNonceTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// SignatureInfo describes the verified signature for downstream handlers.
type SignatureInfo struct {
	Secret    string
	Timestamp time.Time
	Nonce     string
}

type signatureInfoKey struct{}

// SignatureInfoFromContext returns the info attached after verification.
func SignatureInfoFromContext(ctx context.Context) (*SignatureInfo, bool) {
	info, ok := ctx.Value(signatureInfoKey{}).(*SignatureInfo)
	if !ok || info == nil {
		return nil, false
	}
	return info, true
}

// signatureFailure carries the HTTP response for a rejected request.
type signatureFailure struct {
	status  int
	code    string
	message string
}

// Require verifies each request against the named secret.
func (v *WebhookVerifier) Require(secretName string) func(http.Handler) http.Handler {
	secretName = strings.TrimSpace(secretName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, fail := v.verify(r, secretName)
			if fail != nil {
				denyJSON(w, fail.status, fail.code, fail.message)
				return
			}
			ctx := context.WithValue(r.Context(), signatureInfoKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireResolved picks the secret per request, so one middleware can cover
// several webhook providers.
func (v *WebhookVerifier) RequireResolved(resolve func(*http.Request) (string, bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolve == nil {
				denyJSON(w, http.StatusServiceUnavailable, "verification_unavailable", "webhook secret resolver not configured")
				return
			}
			secretName, ok := resolve(r)
			if !ok || strings.TrimSpace(secretName) == "" {
				denyJSON(w, http.StatusUnauthorized, "unknown_provider", "webhook provider not recognised")
				return
			}
			v.Require(secretName)(next).ServeHTTP(w, r)
		})
	}
}

func (v *WebhookVerifier) verify(r *http.Request, secretName string) (*SignatureInfo, *signatureFailure) {
	ctx := r.Context()

	if secretName == "" {
		return nil, &signatureFailure{http.StatusServiceUnavailable, "verification_unavailable", "webhook secret not configured"}
	}
	secret, err := v.loadSecret(ctx, secretName)
	if err != nil {
		if v.logger != nil {
			v.logger.Printf("auth: webhook secret lookup failed: %v", err)
		}
		return nil, &signatureFailure{http.StatusServiceUnavailable, "verification_unavailable", "webhook secret unavailable"}
	}

	signatureValue := strings.TrimSpace(r.Header.Get(v.signatureHeader))
	if signatureValue == "" {
		return nil, &signatureFailure{http.StatusUnauthorized, "signature_missing", "signature header missing"}
	}
	timestampValue := strings.TrimSpace(r.Header.Get(v.timestampHeader))
	if timestampValue == "" {
		return nil, &signatureFailure{http.StatusUnauthorized, "timestamp_missing", "signature timestamp missing"}
	}
	timestamp, err := parseSignatureTimestamp(timestampValue)
	if err != nil {
		return nil, &signatureFailure{http.StatusUnauthorized, "timestamp_invalid", "signature timestamp invalid"}
	}
	if drift := v.now().Sub(timestamp); drift > v.skew || drift < -v.skew {
		return nil, &signatureFailure{http.StatusUnauthorized, "timestamp_skew", "signature timestamp outside allowed window"}
	}
	nonce := strings.TrimSpace(r.Header.Get(v.nonceHeader))
	if nonce == "" {
		return nil, &signatureFailure{http.StatusUnauthorized, "nonce_missing", "signature nonce missing"}
	}

	body, err := bufferBody(r)
	if err != nil {
		return nil, &signatureFailure{http.StatusBadRequest, "invalid_body", "unable to read body for signature verification"}
	}

	signature, err := decodeSignature(signatureValue)
	if err != nil {
		return nil, &signatureFailure{http.StatusUnauthorized, "signature_invalid", "signature encoding invalid"}
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(signingString(r, body, timestampValue, nonce))
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return nil, &signatureFailure{http.StatusUnauthorized, "signature_mismatch", "signature verification failed"}
	}

	if v.nonces == nil {
		return nil, &signatureFailure{http.StatusServiceUnavailable, "verification_unavailable", "nonce store unavailable"}
	}
	expiry := timestamp.Add(v.nonceTTL)
	if expiry.Before(v.now()) {
		expiry = v.now().Add(v.nonceTTL)
	}
	claimed, err := v.nonces.Claim(ctx, secretName, nonce, expiry)
	if err != nil {
		if v.logger != nil {
			v.logger.Printf("auth: nonce store error: %v", err)
		}
		return nil, &signatureFailure{http.StatusServiceUnavailable, "verification_unavailable", "nonce storage error"}
	}
	if !claimed {
		return nil, &signatureFailure{http.StatusUnauthorized, "nonce_replay", "duplicate signature nonce"}
	}

	return &SignatureInfo{Secret: secretName, Timestamp: timestamp, Nonce: nonce}, nil
}

func (v *WebhookVerifier) loadSecret(ctx context.Context, name string) ([]byte, error) {
	if v == nil || v.secrets == nil {
		return nil, errors.New("auth: secret source not configured")
	}
	if cached, ok := v.secretCache.Load(name); ok {
		if secret, ok := cached.([]byte); ok && len(secret) > 0 {
			return secret, nil
		}
	}

	raw, err := v.secrets.LookupSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, errors.New("auth: secret is empty")
	}

	secret := []byte(raw)
	v.secretCache.Store(name, secret)
	return secret, nil
}

// bufferBody reads the body and restores it so the handler can read it again.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	buf, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

// decodeSignature accepts base64 or hex encoded signatures.
func decodeSignature(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("auth: empty signature")
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("auth: signature must be base64 or hex encoded")
}

// The timestamp header accepts RFC 3339 or Unix seconds.
func parseSignatureTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("auth: timestamp empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("auth: unable to parse timestamp %q", value)
}

// signingString is METHOD, path, timestamp, nonce, and the hex SHA-256 of
// the body, joined with newlines.
func signingString(r *http.Request, body []byte, timestamp, nonce string) []byte {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	bodyHash := sha256.Sum256(body)
	return []byte(strings.ToUpper(r.Method) + "\n" +
		path + "\n" +
		timestamp + "\n" +
		nonce + "\n" +
		hex.EncodeToString(bodyHash[:]))
}
