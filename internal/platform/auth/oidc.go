package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

var (
	// ErrKeyNotFound means the token's kid is absent even after a refresh.
	ErrKeyNotFound = errors.New("auth: signing key not found")
	// ErrKeySetUnavailable wraps transport or decoding failures while
	// fetching the JWKS document.
	ErrKeySetUnavailable = errors.New("auth: key set unavailable")
)

// Logger is the printf-style logging contract used by this package.
type Logger interface {
	Printf(format string, args ...any)
}

const defaultKeySetTTL = 15 * time.Minute

// RemoteKeySet caches the signing keys published at a JWKS URL. Keys are
// fetched on first use and refetched once the cached set expires or a
// lookup misses.
type RemoteKeySet struct {
	url    string
	client *http.Client
	logger Logger
	now    func() time.Time
	ttl    time.Duration

	mu     sync.Mutex
	keys   map[string]jose.JSONWebKey
	expiry time.Time
}

// KeySetOption customises a RemoteKeySet.
type KeySetOption func(*RemoteKeySet)

// WithKeySetHTTPClient overrides the HTTP client used for fetches.
func WithKeySetHTTPClient(client *http.Client) KeySetOption {
	return func(ks *RemoteKeySet) {
		if client != nil {
			ks.client = client
		}
	}
}

// WithKeySetLogger sets the logger for fetch failures and refreshes.
func WithKeySetLogger(logger Logger) KeySetOption {
	return func(ks *RemoteKeySet) {
		if logger != nil {
			ks.logger = logger
		}
	}
}

// WithKeySetClock injects the time source, for tests.
func WithKeySetClock(now func() time.Time) KeySetOption {
	return func(ks *RemoteKeySet) {
		if now != nil {
			ks.now = now
		}
	}
}

// NewRemoteKeySet builds a key set backed by the given JWKS URL.
func NewRemoteKeySet(url string, opts ...KeySetOption) *RemoteKeySet {
	ks := &RemoteKeySet{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: log.Default(),
		now:    time.Now,
		ttl:    defaultKeySetTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ks)
		}
	}
	return ks
}

// Keyfunc adapts the key set to the jwt parser. Only RS256 is accepted.
func (ks *RemoteKeySet) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Method)
		}
		return ks.Key(ctx, kid)
	}
}

// Key returns the public key for kid, refetching the JWKS when the cache
// has expired or the kid is unknown.
func (ks *RemoteKeySet) Key(ctx context.Context, kid string) (any, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if key, ok := ks.keys[kid]; ok && ks.now().Before(ks.expiry) {
		return key.Key, nil
	}
	if err := ks.fetchLocked(ctx); err != nil {
		return nil, err
	}
	if key, ok := ks.keys[kid]; ok {
		return key.Key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
}

func (ks *RemoteKeySet) fetchLocked(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	resp, err := ks.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrKeySetUnavailable, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode jwks: %v", ErrKeySetUnavailable, err)
	}

	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, key := range set.Keys {
		if key.KeyID != "" && key.Valid() {
			keys[key.KeyID] = key
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrKeySetUnavailable)
	}

	ttl := ks.ttl
	if maxAge := cacheMaxAge(resp.Header.Get("Cache-Control")); maxAge > 0 {
		ttl = maxAge
	}

	ks.keys = keys
	ks.expiry = ks.now().Add(ttl)
	if ks.logger != nil {
		ks.logger.Printf("auth: refreshed jwks (%d keys, valid for %s)", len(keys), ttl)
	}
	return nil
}

func cacheMaxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		directive = strings.TrimSpace(strings.ToLower(directive))
		if value, ok := strings.CutPrefix(directive, "max-age="); ok {
			if seconds, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}
	return 0
}

// ServiceIdentity is the service principal behind a verified OIDC token,
// for example Cloud Scheduler or the document renderer calling back in.
type ServiceIdentity struct {
	Subject  string
	Email    string
	Issuer   string
	Audience string
	Claims   map[string]any
}

type serviceIdentityKey struct{}

// WithServiceIdentity attaches the verified service identity to the context.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceIdentityKey{}, identity)
}

// ServiceIdentityFromContext returns the identity attached by Require.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityKey{}).(*ServiceIdentity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// OIDCVerifier validates Google-signed OIDC and IAP tokens on internal routes.
type OIDCVerifier struct {
	keys   *RemoteKeySet
	logger Logger
}

// OIDCOption customises the verifier.
type OIDCOption func(*OIDCVerifier)

// WithOIDCLogger overrides the verifier logger.
func WithOIDCLogger(logger Logger) OIDCOption {
	return func(v *OIDCVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewOIDCVerifier builds a verifier over the key set.
func NewOIDCVerifier(keys *RemoteKeySet, opts ...OIDCOption) *OIDCVerifier {
	v := &OIDCVerifier{keys: keys, logger: log.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Require rejects requests that do not carry a valid token for the audience,
// signed by one of the allowed issuers. The token is read from the
// Authorization header or, for IAP, from X-Goog-Iap-Jwt-Assertion.
func (v *OIDCVerifier) Require(audience string, issuers []string) func(http.Handler) http.Handler {
	audience = strings.TrimSpace(audience)
	allowedIssuers := make(map[string]struct{}, len(issuers))
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			allowedIssuers[issuer] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if audience == "" {
				denyJSON(w, http.StatusServiceUnavailable, "verification_unavailable", "oidc audience not configured")
				return
			}
			if v == nil || v.keys == nil {
				denyJSON(w, http.StatusServiceUnavailable, "verification_unavailable", "oidc verification unavailable")
				return
			}

			tokenStr := serviceToken(r)
			if tokenStr == "" {
				denyJSON(w, http.StatusUnauthorized, "unauthenticated", "oidc token missing")
				return
			}

			ctx := r.Context()
			parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
			claims := jwt.MapClaims{}
			if _, err := parser.ParseWithClaims(tokenStr, claims, v.keys.Keyfunc(ctx)); err != nil {
				if v.logger != nil {
					v.logger.Printf("auth: oidc verification failed: %v", err)
				}
				status := http.StatusUnauthorized
				if errors.Is(err, ErrKeySetUnavailable) {
					status = http.StatusServiceUnavailable
				}
				denyJSON(w, status, "invalid_token", "oidc token verification failed")
				return
			}

			issuer, _ := claims["iss"].(string)
			if len(allowedIssuers) > 0 {
				if _, ok := allowedIssuers[issuer]; !ok {
					if v.logger != nil {
						v.logger.Printf("auth: oidc issuer mismatch, got %q", issuer)
					}
					denyJSON(w, http.StatusUnauthorized, "invalid_token", "oidc issuer mismatch")
					return
				}
			}

			if !claimHasAudience(claims, audience) {
				if v.logger != nil {
					v.logger.Printf("auth: oidc audience mismatch, expected %q", audience)
				}
				denyJSON(w, http.StatusUnauthorized, "invalid_token", "oidc audience mismatch")
				return
			}

			identity := &ServiceIdentity{
				Subject:  stringClaim(claims, "sub"),
				Email:    stringClaim(claims, "email"),
				Issuer:   issuer,
				Audience: audience,
				Claims:   claims,
			}
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
		})
	}
}

func serviceToken(r *http.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Goog-Iap-Jwt-Assertion"))
}

func claimHasAudience(claims jwt.MapClaims, want string) bool {
	switch aud := claims["aud"].(type) {
	case string:
		return strings.TrimSpace(aud) == want
	case []string:
		for _, item := range aud {
			if strings.TrimSpace(item) == want {
				return true
			}
		}
	case []any:
		for _, item := range aud {
			if s, ok := item.(string); ok && strings.TrimSpace(s) == want {
				return true
			}
		}
	}
	return false
}
