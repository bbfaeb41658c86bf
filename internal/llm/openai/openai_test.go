package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"persona_chat_go_backend/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() llm.Request {
	return llm.Request{
		Model: "gpt-4o",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are helpful."},
			{Role: llm.RoleUser, Content: "Hello"},
		},
		MaxTokens:   100,
		Temperature: 0.7,
	}
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		fmt.Fprint(w, `{
			"choices": [{"message": {"content": "Hi there!"}}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 3}
		}`)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	resp, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", resp.Content)
	assert.Equal(t, 9, resp.Usage.PromptTokens)
	assert.Equal(t, 3, resp.Usage.CompletionTokens)
}

func TestComplete_RetriesTransientOnce(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error": {"message": "server hiccup"}}`)
			return
		}
		fmt.Fprint(w, `{
			"choices": [{"message": {"content": "recovered"}}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 2}
		}`)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL), WithRetryBackoff(time.Millisecond))
	resp, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestComplete_TransientFailsAfterOneRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL), WithRetryBackoff(time.Millisecond))
	_, err := client.Complete(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, llm.IsTransient(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestComplete_RateLimitedNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limit exceeded"}}`)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	_, err := client.Complete(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, llm.IsRateLimited(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	perr, ok := llm.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, perr.HTTPStatus)
	assert.Equal(t, "rate limit exceeded", perr.Message)
}

func TestComplete_AuthErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "invalid api key"}}`)
	}))
	defer server.Close()

	client := NewClient("bad-key", WithBaseURL(server.URL))
	_, err := client.Complete(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, llm.IsAuth(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCompleteStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":7,\"completion_tokens\":2}}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	stream, err := client.CompleteStream(context.Background(), testRequest())
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, llm.EventContent, ev.Type)
	assert.Equal(t, "Hel", ev.Content)

	ev, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "lo", ev.Content)

	ev, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, llm.EventEnd, ev.Type)
	assert.Equal(t, 7, ev.Usage.PromptTokens)
	assert.Equal(t, 2, ev.Usage.CompletionTokens)

	_, err = stream.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestCompleteStream_TruncatedWithoutDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	stream, err := client.CompleteStream(context.Background(), testRequest())
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "partial", ev.Content)

	ev, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, llm.EventEnd, ev.Type)
}
