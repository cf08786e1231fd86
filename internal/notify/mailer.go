// Package notify dispatches OTP codes to claimants out-of-band. Dispatch is an
// external collaborator: failures must reach the caller, never silently pass.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// Notifier sends a one-time code to the claimant. Implementations must not log the code.
type Notifier interface {
	SendOTP(ctx context.Context, email, phone, code string) error
}

// LinkSender delivers single-use auth tokens (password reset, magic link) to a
// user's email. template names the relay template to render the link with.
// Implementations must not log the token.
type LinkSender interface {
	SendLink(ctx context.Context, email, token, template string) error
}

// MailerClient sends OTP codes through an HTTP mail/SMS relay API.
type MailerClient struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewMailerClient returns a client for the given relay endpoint. sender is optional.
func NewMailerClient(apiKey, baseURL, sender string) *MailerClient {
	return &MailerClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// SendOTP posts the code to the relay for delivery to the claimant's email
// (falling back to SMS when a phone is present). Does not log the code.
func (c *MailerClient) SendOTP(ctx context.Context, email, phone, code string) error {
	return c.post(ctx, map[string]any{
		"to":       email,
		"phone":    phone,
		"template": "claim-otp",
		"variables": map[string]string{
			"code": code,
		},
	})
}

// SendLink posts an auth token to the relay, which renders it into a clickable
// link using the named template. Does not log the token.
func (c *MailerClient) SendLink(ctx context.Context, email, token, template string) error {
	return c.post(ctx, map[string]any{
		"to":       email,
		"template": template,
		"variables": map[string]string{
			"token": token,
		},
	})
}

func (c *MailerClient) post(ctx context.Context, body map[string]any) error {
	if c.APIKey == "" || c.BaseURL == "" {
		return fmt.Errorf("notify: mailer not configured")
	}
	if c.Sender != "" {
		body["from"] = c.Sender
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notify: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
