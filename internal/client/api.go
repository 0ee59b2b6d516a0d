// Package client is a typed HTTP client for the companion API, used by the
// caregiver console and its background pollers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PabloGalante/clara-companion/internal/domain"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type AlertStatus struct {
	LastAlert   time.Time `json:"lastAlert"`
	CurrentTime time.Time `json:"currentTime"`
}

func (c *Client) AlertStatus(ctx context.Context) (AlertStatus, error) {
	var out AlertStatus
	err := c.do(ctx, http.MethodGet, "/receive_alert", nil, &out)
	return out, err
}

func (c *Client) RaiseAlert(ctx context.Context) (time.Time, error) {
	var out struct {
		Timestamp time.Time `json:"timestamp"`
	}
	err := c.do(ctx, http.MethodPost, "/receive_alert", nil, &out)
	return out.Timestamp, err
}

func (c *Client) ListMessages(ctx context.Context) ([]domain.Message, error) {
	var out struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/message", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// PostMessage records an inbound message and returns its id.
func (c *Client) PostMessage(ctx context.Context, text string, role domain.Role) (domain.MessageID, error) {
	var out struct {
		MessageID string `json:"messageId"`
	}
	err := c.do(ctx, http.MethodPost, "/message", map[string]string{"text": text, "role": string(role)}, &out)
	return domain.MessageID(out.MessageID), err
}

// SendMessage sends a text through the relay and returns the stored id.
func (c *Client) SendMessage(ctx context.Context, recipient, message string, role domain.Role) (domain.MessageID, error) {
	var out struct {
		MessageID string `json:"messageId"`
	}
	err := c.do(ctx, http.MethodPost, "/send_message", map[string]string{
		"recipient": recipient,
		"message":   message,
		"role":      string(role),
	}, &out)
	return domain.MessageID(out.MessageID), err
}

func (c *Client) SetMode(ctx context.Context, agent bool) (domain.Mode, error) {
	var out struct {
		Mode domain.Mode `json:"mode"`
	}
	err := c.do(ctx, http.MethodPost, "/mode", domain.Mode{Agent: agent}, &out)
	return out.Mode, err
}

func (c *Client) GetMode(ctx context.Context) (domain.Mode, error) {
	var out struct {
		Mode domain.Mode `json:"mode"`
	}
	err := c.do(ctx, http.MethodGet, "/mode", nil, &out)
	return out.Mode, err
}

func (c *Client) Summaries(ctx context.Context, limit int) ([]domain.Summary, error) {
	path := "/summaries"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var out struct {
		Summaries []domain.Summary `json:"summaries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Summaries, nil
}

// Chat asks the assistant proxy for a reply.
func (c *Client) Chat(ctx context.Context, msgs []domain.ChatMessage) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	err := c.do(ctx, http.MethodPost, "/gptchat", map[string]any{"messages": msgs}, &out)
	return out.Content, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
