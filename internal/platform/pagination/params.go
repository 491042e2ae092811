// Package pagination parses the page_size/page_token query parameters shared
// by every list endpoint and encodes the opaque cursor tokens the Firestore
// repositories hand back.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

var (
	// ErrInvalidPageSize signals a page_size that is not a positive integer.
	ErrInvalidPageSize = errors.New("pagination: invalid page_size")
	// ErrInvalidPageToken signals a page token that did not round-trip.
	ErrInvalidPageToken = errors.New("pagination: invalid page_token")
)

// Params carries the paging values extracted from a request. A zero PageSize
// means the caller did not ask for one and the repository default applies.
type Params struct {
	PageSize  int
	PageToken string
}

// Options bounds what a handler accepts.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

// FromRequest parses page_size and page_token. An absent page_size yields the
// configured default; an oversized one is clamped rather than rejected.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	query := r.URL.Query()

	params := Params{
		PageSize:  opts.DefaultPageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}

	raw := strings.TrimSpace(query.Get("page_size"))
	if raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return Params{}, fmt.Errorf("%w: must be a positive integer", ErrInvalidPageSize)
		}
		params.PageSize = size
	}
	if opts.MaxPageSize > 0 && params.PageSize > opts.MaxPageSize {
		params.PageSize = opts.MaxPageSize
	}
	return params, nil
}

// Clamp bounds a repository page size to [1, max], falling back to def when
// the caller did not specify one.
func Clamp(size, def, max int) int {
	if size <= 0 {
		return def
	}
	if max > 0 && size > max {
		return max
	}
	return size
}
