package notifications

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

// EmailChannel delivers messages through a transactional email HTTP API.
type EmailChannel struct {
	apiKey      string
	baseURL     string
	fromAddress string
	fromName    string
	client      *http.Client
}

// EmailChannelConfig configures the EmailChannel.
type EmailChannelConfig struct {
	APIKey      string
	BaseURL     string
	FromAddress string
	FromName    string
	HTTPClient  *http.Client
}

// NewEmailChannel constructs an email channel against the configured provider.
func NewEmailChannel(cfg EmailChannelConfig) (*EmailChannel, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("notifications: email api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("notifications: email base url is required")
	}
	fromAddress := strings.TrimSpace(cfg.FromAddress)
	if fromAddress == "" {
		return nil, errors.New("notifications: email from address is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	return &EmailChannel{
		apiKey:      apiKey,
		baseURL:     baseURL,
		fromAddress: fromAddress,
		fromName:    strings.TrimSpace(cfg.FromName),
		client:      client,
	}, nil
}

// Name identifies the channel in dispatch results and logs.
func (c *EmailChannel) Name() string { return "email" }

// Send posts the message to the email provider. Messages without a recipient
// address are skipped rather than treated as failures.
func (c *EmailChannel) Send(ctx context.Context, msg Message) error {
	if c == nil {
		return errors.New("notifications: email channel is nil")
	}
	to := strings.TrimSpace(msg.Email)
	if to == "" {
		return nil
	}

	payload := map[string]any{
		"from": map[string]string{
			"email": c.fromAddress,
			"name":  c.fromName,
		},
		"to":      []map[string]string{{"email": to}},
		"subject": msg.Subject,
		"text":    msg.Body,
	}
	if msg.HTMLBody != "" {
		payload["html"] = msg.HTMLBody
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notifications: encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("notifications: build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("notifications: send email: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notifications: email provider returned http %d", resp.StatusCode)
	}
	return nil
}
