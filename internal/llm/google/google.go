package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"persona_chat_go_backend/internal/llm"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// Client adapts the Gemini SDK. Gemini takes a single prompt, so the message
// history is flattened into role-prefixed lines.
type Client struct {
	genaiClient  *genai.Client
	retryBackoff time.Duration
}

var _ llm.Provider = (*Client)(nil)

type Option func(*Client)

// WithRetryBackoff sets the pause before the single transient retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryBackoff = d
		}
	}
}

func NewClient(genaiClient *genai.Client, opts ...Option) *Client {
	c := &Client{
		genaiClient:  genaiClient,
		retryBackoff: llm.DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := c.model(req)
	prompt := flattenMessages(req.Messages)

	var out llm.Response
	err := llm.RetryTransient(ctx, c.retryBackoff, func() error {
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return mapError(err)
		}

		content, err := candidateText(resp)
		if err != nil {
			return err
		}

		out = llm.Response{
			Content: content,
			Usage:   usageFrom(resp, prompt, content),
		}
		return nil
	})
	return out, err
}

// CompleteStream opens a Gemini stream. The SDK reports connection failures
// only on the first Next call, so the transient retry has to cover stream
// creation and the first pull together; the pulled response is handed to the
// stream and replayed on the first Recv.
func (c *Client) CompleteStream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	model := c.model(req)
	prompt := flattenMessages(req.Messages)

	var s *stream
	err := llm.RetryTransient(ctx, c.retryBackoff, func() error {
		iter := model.GenerateContentStream(ctx, genai.Text(prompt))
		first, err := iter.Next()
		if err == iterator.Done {
			s = &stream{iter: iter, prompt: prompt, firstDone: true}
			return nil
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return mapError(err)
		}
		s = &stream{iter: iter, prompt: prompt, first: first}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Client) model(req llm.Request) *genai.GenerativeModel {
	model := c.genaiClient.GenerativeModel(req.Model)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.Temperature > 0 {
		model.SetTemperature(float32(req.Temperature))
	}
	return model
}

type stream struct {
	iter      *genai.GenerateContentResponseIterator
	first     *genai.GenerateContentResponse
	firstDone bool
	prompt    string
	content   strings.Builder
	usage     llm.Usage
	done      bool
}

func (s *stream) Recv() (llm.Event, error) {
	if s.done {
		return llm.Event{}, io.EOF
	}

	for {
		var resp *genai.GenerateContentResponse
		var err error
		switch {
		case s.first != nil:
			resp, s.first = s.first, nil
		case s.firstDone:
			s.firstDone = false
			err = iterator.Done
		default:
			resp, err = s.iter.Next()
		}
		if err == iterator.Done {
			s.done = true
			usage := s.usage
			if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
				usage = approximateUsage(s.prompt, s.content.String())
			}
			return llm.Event{Type: llm.EventEnd, Usage: usage}, nil
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return llm.Event{}, err
			}
			return llm.Event{}, mapError(err)
		}

		if resp.UsageMetadata != nil {
			s.usage = llm.Usage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			}
		}

		content, err := candidateText(resp)
		if err != nil {
			continue
		}
		if content != "" {
			s.content.WriteString(content)
			return llm.Event{Type: llm.EventContent, Content: content}, nil
		}
	}
}

func (s *stream) Close() error {
	s.done = true
	return nil
}

func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &llm.ProviderError{Vendor: "google", Kind: llm.KindFatal, Message: "empty candidates in response"}
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

func usageFrom(resp *genai.GenerateContentResponse, prompt, content string) llm.Usage {
	if resp.UsageMetadata != nil {
		return llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return approximateUsage(prompt, content)
}

// approximateUsage falls back to the chars/4 heuristic when the SDK reports
// no usage metadata.
func approximateUsage(prompt, content string) llm.Usage {
	return llm.Usage{
		PromptTokens:     len(prompt) / 4,
		CompletionTokens: len(content) / 4,
	}
}

func flattenMessages(msgs []llm.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

func mapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &llm.ProviderError{
			Vendor:     "google",
			Kind:       llm.KindFromStatus(gerr.Code),
			HTTPStatus: gerr.Code,
			Message:    gerr.Message,
			Cause:      err,
		}
	}
	return &llm.ProviderError{Vendor: "google", Kind: llm.KindTransient, Message: "request failed", Cause: err}
}
