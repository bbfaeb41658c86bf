package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"persona_chat_go_backend/internal/llm"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	maxErrorBodySize = 1 << 20
)

// Client is the Anthropic messages-API adapter. The system prompt travels in
// a dedicated field rather than the message list.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	retryBackoff time.Duration
}

var _ llm.Provider = (*Client)(nil)

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryBackoff sets the pause before the single transient retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryBackoff = d
		}
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:      defaultBaseURL,
		apiKey:       apiKey,
		httpClient:   http.DefaultClient,
		retryBackoff: llm.DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type messagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage wireUsage `json:"usage"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	var out llm.Response
	err := llm.RetryTransient(ctx, c.retryBackoff, func() error {
		resp, err := c.doRequest(ctx, req, false)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var in messagesResponse
		if err := json.NewDecoder(resp.Body).Decode(&in); err != nil {
			return &llm.ProviderError{Vendor: "anthropic", Kind: llm.KindFatal, Message: "decode response", Cause: err}
		}
		if len(in.Content) == 0 {
			return &llm.ProviderError{Vendor: "anthropic", Kind: llm.KindFatal, Message: "empty content in response"}
		}

		out = llm.Response{
			Content: in.Content[0].Text,
			Usage: llm.Usage{
				PromptTokens:     in.Usage.InputTokens,
				CompletionTokens: in.Usage.OutputTokens,
			},
		}
		return nil
	})
	return out, err
}

func (c *Client) CompleteStream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	var resp *http.Response
	err := llm.RetryTransient(ctx, c.retryBackoff, func() error {
		var err error
		resp, err = c.doRequest(ctx, req, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return newStream(resp.Body), nil
}

func (c *Client) doRequest(ctx context.Context, req llm.Request, stream bool) (*http.Response, error) {
	system, msgs := splitSystem(req.Messages)
	payload := messagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      system,
		Messages:    msgs,
		Temperature: req.Temperature,
		Stream:      stream,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &llm.ProviderError{Vendor: "anthropic", Kind: llm.KindTransient, Message: "request failed", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.parseError(resp.StatusCode, resp.Body)
	}
	return resp, nil
}

func (c *Client) parseError(status int, body io.Reader) error {
	raw, _ := io.ReadAll(io.LimitReader(body, maxErrorBodySize))

	pe := &llm.ProviderError{
		Vendor:     "anthropic",
		Kind:       llm.KindFromStatus(status),
		HTTPStatus: status,
	}
	// 529 means the API is overloaded, which is worth one retry.
	if status == 529 {
		pe.Kind = llm.KindTransient
	}
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error.Message != "" {
		pe.Message = er.Error.Message
	}
	return pe
}

// splitSystem extracts the system prompt, which Anthropic takes as a separate
// request field.
func splitSystem(msgs []llm.Message) (string, []wireMessage) {
	var system string
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			system = m.Content
			continue
		}
		out = append(out, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	return system, out
}
