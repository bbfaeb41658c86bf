package openai

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
	defaultBaseURL   = "https://api.openai.com/v1"
	maxErrorBodySize = 1 << 20
)

// Client is the OpenAI chat-completions adapter.
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

type chatRequest struct {
	Model         string        `json:"model"`
	Messages      []wireMessage `json:"messages"`
	MaxTokens     int           `json:"max_tokens,omitempty"`
	Temperature   float64       `json:"temperature,omitempty"`
	Stream        bool          `json:"stream,omitempty"`
	StreamOptions *streamOpts   `json:"stream_options,omitempty"`
}

type streamOpts struct {
	IncludeUsage bool `json:"include_usage"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage wireUsage `json:"usage"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
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

		var in chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&in); err != nil {
			return &llm.ProviderError{Vendor: "openai", Kind: llm.KindFatal, Message: "decode response", Cause: err}
		}
		if len(in.Choices) == 0 {
			return &llm.ProviderError{Vendor: "openai", Kind: llm.KindFatal, Message: "empty choices in response"}
		}

		out = llm.Response{
			Content: in.Choices[0].Message.Content,
			Usage: llm.Usage{
				PromptTokens:     in.Usage.PromptTokens,
				CompletionTokens: in.Usage.CompletionTokens,
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
	payload := chatRequest{
		Model:       req.Model,
		Messages:    toWireMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if stream {
		payload.StreamOptions = &streamOpts{IncludeUsage: true}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &llm.ProviderError{Vendor: "openai", Kind: llm.KindTransient, Message: "request failed", Cause: err}
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
		Vendor:     "openai",
		Kind:       llm.KindFromStatus(status),
		HTTPStatus: status,
	}
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error.Message != "" {
		pe.Message = er.Error.Message
	}
	return pe
}

func toWireMessages(msgs []llm.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
