package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RenderRequest identifies the template and data for one document.
type RenderRequest struct {
	Template string         `json:"template"`
	Data     map[string]any `json:"data"`
}

// HTTPRenderer calls an external rendering service that returns PDF bytes.
type HTTPRenderer struct {
	endpoint  string
	authToken string
	client    *http.Client
}

// HTTPRendererConfig configures the HTTPRenderer.
type HTTPRendererConfig struct {
	Endpoint   string
	AuthToken  string
	HTTPClient *http.Client
}

// NewHTTPRenderer constructs a renderer against the configured endpoint.
func NewHTTPRenderer(cfg HTTPRendererConfig) (*HTTPRenderer, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("documents: renderer endpoint is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPRenderer{
		endpoint:  endpoint,
		authToken: strings.TrimSpace(cfg.AuthToken),
		client:    client,
	}, nil
}

// Render posts the request to the rendering service and returns the PDF bytes.
func (r *HTTPRenderer) Render(ctx context.Context, req RenderRequest) ([]byte, error) {
	if r == nil {
		return nil, errors.New("documents: renderer is nil")
	}
	if strings.TrimSpace(req.Template) == "" {
		return nil, errors.New("documents: template is required")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("documents: encode render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("documents: build render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/pdf")
	if r.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.authToken)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("documents: render call: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("documents: renderer returned http %d", resp.StatusCode)
	}

	pdf, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("documents: read rendered document: %w", err)
	}
	if len(pdf) == 0 {
		return nil, errors.New("documents: renderer returned an empty document")
	}
	return pdf, nil
}
