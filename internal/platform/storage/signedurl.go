package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/adunni-couture/api/internal/platform/auth"
)

const (
	defaultDownloadExpiry = 5 * time.Minute
	maxDownloadExpiry     = 15 * time.Minute
)

var (
	// ErrAccessDenied means the caller may not read the requested document.
	ErrAccessDenied = errors.New("storage: access denied")

	errSignerRequired = errors.New("storage: signer is required")
	errBucketRequired = errors.New("storage: bucket name is required")
	errObjectRequired = errors.New("storage: object name is required")
	errExpiryTooLong  = errors.New("storage: expiry exceeds permitted maximum")
)

// URLSigner mints V4 signed download URLs for stored documents. Documents
// live in a private bucket; customers only ever see short-lived URLs.
type URLSigner struct {
	signer Signer
	now    func() time.Time
}

// URLSignerOption customises a URLSigner.
type URLSignerOption func(*URLSigner)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) URLSignerOption {
	return func(s *URLSigner) {
		if now != nil {
			s.now = now
		}
	}
}

// NewURLSigner builds a signer for download URLs.
func NewURLSigner(signer Signer, opts ...URLSignerOption) (*URLSigner, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errSignerRequired
	}
	s := &URLSigner{signer: signer, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// DownloadOptions control access and response behaviour for one URL.
type DownloadOptions struct {
	ExpiresIn    time.Duration
	Disposition  string
	CacheControl string
	ResponseType string

	// OwnerUID is the customer the document belongs to. The identity must
	// match it, or carry a staff or admin role, unless AllowPublic is set.
	OwnerUID    string
	Identity    *auth.Identity
	AllowPublic bool
}

// SignedURL is a minted download URL and its expiry.
type SignedURL struct {
	URL       string
	ExpiresAt time.Time
}

// DownloadURL authorizes the caller and mints a signed GET URL for the
// object. Expiry is clamped at maxDownloadExpiry so leaked URLs go stale
// quickly.
func (s *URLSigner) DownloadURL(ctx context.Context, bucket, object string, opts DownloadOptions) (SignedURL, error) {
	if s == nil || s.signer == nil {
		return SignedURL{}, errSignerRequired
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return SignedURL{}, errBucketRequired
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURL{}, errObjectRequired
	}

	if err := authorizeDownload(opts.Identity, opts.OwnerUID, opts.AllowPublic); err != nil {
		return SignedURL{}, err
	}

	expiry := opts.ExpiresIn
	if expiry <= 0 {
		expiry = defaultDownloadExpiry
	}
	if expiry > maxDownloadExpiry {
		return SignedURL{}, errExpiryTooLong
	}
	expiresAt := s.now().Add(expiry)

	signed, err := storage.SignedURL(bucket, object, &storage.SignedURLOptions{
		GoogleAccessID:  s.signer.Email(),
		Scheme:          storage.SigningSchemeV4,
		Method:          "GET",
		Expires:         expiresAt,
		QueryParameters: responseQuery(opts),
		SignBytes: func(payload []byte) ([]byte, error) {
			return s.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return SignedURL{}, fmt.Errorf("storage: sign download url: %w", err)
	}
	return SignedURL{URL: signed, ExpiresAt: expiresAt}, nil
}

func authorizeDownload(identity *auth.Identity, ownerUID string, allowPublic bool) error {
	if allowPublic {
		return nil
	}
	if identity == nil {
		return ErrAccessDenied
	}
	if ownerUID != "" && identity.UID == ownerUID {
		return nil
	}
	if identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin) {
		return nil
	}
	return ErrAccessDenied
}

func responseQuery(opts DownloadOptions) url.Values {
	params := map[string]string{}
	if opts.Disposition != "" {
		params["response-content-disposition"] = opts.Disposition
	}
	if opts.CacheControl != "" {
		params["response-cache-control"] = opts.CacheControl
	}
	if opts.ResponseType != "" {
		params["response-content-type"] = opts.ResponseType
	}
	if len(params) == 0 {
		return nil
	}

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	values := make(url.Values, len(params))
	for _, key := range keys {
		values.Add(key, params[key])
	}
	return values
}
