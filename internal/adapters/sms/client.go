// Package sms delivers templated messages through an HTTP SMS gateway.
// Message content lives in gateway-side templates; this client only names the
// template and supplies variables.
package sms

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

	"github.com/tiffinlabs/tiffin-auth/internal/ports"
)

// Config captures the subset of gateway behaviour we need.
type Config struct {
	BaseURL  string
	APIKey   string
	SenderID string
	Timeout  time.Duration
	Client   *http.Client
}

// Client implements ports.MessageSender against the gateway's send endpoint.
type Client struct {
	baseURL  string
	apiKey   string
	senderID string
	client   *http.Client
}

var _ ports.MessageSender = (*Client)(nil)

// NewClient builds a gateway client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("sms gateway base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sms gateway api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		senderID: strings.TrimSpace(cfg.SenderID),
		client:   hc,
	}, nil
}

type sendRequest struct {
	To         string            `json:"to"`
	TemplateID string            `json:"templateId"`
	Vars       map[string]string `json:"vars,omitempty"`
	SenderID   string            `json:"senderId,omitempty"`
}

type sendResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

// Send dispatches one templated message. The delivered flag is false when the
// gateway accepted the request but reported a non-delivered status.
func (c *Client) Send(ctx context.Context, msg ports.Message) (bool, error) {
	body, err := json.Marshal(sendRequest{
		To:         string(msg.To),
		TemplateID: msg.TemplateID,
		Vars:       msg.Vars,
		SenderID:   c.senderID,
	})
	if err != nil {
		return false, fmt.Errorf("encode sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("sms request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return false, fmt.Errorf("read sms response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, summarize(raw))
	}

	var out sendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return false, fmt.Errorf("decode sms response: %w", err)
	}
	switch out.Status {
	case "sent", "queued", "delivered":
		return true, nil
	default:
		return false, nil
	}
}

func summarize(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
