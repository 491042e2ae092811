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

// MessagingChannel forwards messages to an external chat webhook keyed by the
// customer's phone number.
type MessagingChannel struct {
	webhookURL string
	authToken  string
	client     *http.Client
}

// MessagingChannelConfig configures the MessagingChannel.
type MessagingChannelConfig struct {
	WebhookURL string
	AuthToken  string
	HTTPClient *http.Client
}

// NewMessagingChannel constructs a messaging channel against the configured webhook.
func NewMessagingChannel(cfg MessagingChannelConfig) (*MessagingChannel, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("notifications: messaging webhook url is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &MessagingChannel{
		webhookURL: webhookURL,
		authToken:  strings.TrimSpace(cfg.AuthToken),
		client:     client,
	}, nil
}

// Name identifies the channel in dispatch results and logs.
func (c *MessagingChannel) Name() string { return "messaging" }

// Send posts the message to the webhook. Messages without a phone number are
// skipped rather than treated as failures.
func (c *MessagingChannel) Send(ctx context.Context, msg Message) error {
	if c == nil {
		return errors.New("notifications: messaging channel is nil")
	}
	phone := strings.TrimSpace(msg.Phone)
	if phone == "" {
		return nil
	}

	payload := map[string]string{
		"phone":   phone,
		"message": msg.Body,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notifications: encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("notifications: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("notifications: post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notifications: messaging webhook returned http %d", resp.StatusCode)
	}
	return nil
}
