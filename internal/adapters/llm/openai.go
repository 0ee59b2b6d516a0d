package llm

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
	"github.com/PabloGalante/clara-companion/internal/observability"
)

const (
	DefaultOpenAIURL = "https://api.openai.com/v1"
	DefaultModel     = "gpt-4o"

	defaultTimeout  = 60 * time.Second
	maxRetries      = 2
	retryBaseDelay  = 500 * time.Millisecond
	maxResponseSize = 10 * 1024 * 1024
)

// OpenAIClient calls any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

func (c *OpenAIClient) WithHTTPClient(hc *http.Client) *OpenAIClient {
	c.httpClient = hc
	return c
}

type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature float32              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message domain.ChatMessage `json:"message"`
	} `json:"choices"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete implements domain.ChatCompleter. Provider errors come back as
// UpstreamUnavailable with the provider's status code.
func (c *OpenAIClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	log := observability.LoggerFromContext(ctx).With("provider", "openai", "model", c.model)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<(attempt-1))
			log.Warn("retrying chat completion", "attempt", attempt, "delay_ms", delay.Milliseconds(), "error", lastErr)
			select {
			case <-ctx.Done():
				return "", domain.Upstream(0, "chat completion cancelled", ctx.Err())
			case <-time.After(delay):
			}
		}

		text, retry, err := c.do(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return "", lastErr
}

// do performs one request; the bool reports whether the failure is worth
// retrying (transport errors and 5xx).
func (c *OpenAIClient) do(ctx context.Context, body []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", ctx.Err() == nil, domain.Upstream(0, "provider unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", true, domain.Upstream(resp.StatusCode, "read provider response", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("provider returned %d", resp.StatusCode)
		var apiErr apiErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return "", resp.StatusCode >= 500, domain.Upstream(resp.StatusCode, msg, nil)
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", false, domain.Upstream(resp.StatusCode, "decode provider response", err)
	}
	if len(out.Choices) == 0 {
		return "", false, nil
	}
	return out.Choices[0].Message.Content, false, nil
}
