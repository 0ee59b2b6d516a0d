// Package relay talks to the external SMS gateway that owns the patient's
// phone line. It sends texts, receives the active responder mode, and
// exposes the gateway's summarization endpoint.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PabloGalante/clara-companion/internal/domain"
)

const (
	DefaultTimeout = 10 * time.Second

	// maxResponseSize caps how much of a relay response we read.
	maxResponseSize = 1 << 20
)

// Client is a thin JSON client for the relay. A zero BaseURL makes every
// call fail with an Unconfigured error.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient swaps the underlying client (tests, custom transports).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type smsRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type summarizeRequest struct {
	Messages []domain.SummaryLine `json:"messages"`
}

// SendSMS posts {to, message} to /sms. A non-JSON success body yields an
// empty map.
func (c *Client) SendSMS(ctx context.Context, to, message string) (map[string]any, error) {
	body, err := c.post(ctx, "/sms", smsRequest{To: to, Message: message})
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			out = map[string]any{}
		}
	}
	return out, nil
}

// ForwardMode posts the active mode to /mode.
func (c *Client) ForwardMode(ctx context.Context, mode domain.Mode) error {
	_, err := c.post(ctx, "/mode", mode)
	return err
}

// Summarize posts the conversation to /summarize and returns the response
// body verbatim: the relay answers with plain text.
func (c *Client) Summarize(ctx context.Context, lines []domain.SummaryLine) (string, error) {
	body, err := c.post(ctx, "/summarize", summarizeRequest{Messages: lines})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if c.baseURL == "" {
		return nil, domain.Unconfigured("relay base URL is not configured on the server")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Not a domain error: callers answer with their generic message.
		return nil, fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, domain.Upstream(resp.StatusCode, "read relay response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, domain.Upstream(resp.StatusCode, errorMessage(resp, body), nil)
	}
	return body, nil
}

// errorMessage prefers the relay's own {"error": "..."} text and falls back
// to the status line.
func errorMessage(resp *http.Response, body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return fmt.Sprintf("Error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
