package llm

import "context"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	Role    Role
	Content string
}

// Request is the normalized chat completion request handed to an adapter.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

type Response struct {
	Content string
	Usage   Usage
}

type EventType string

const (
	EventContent EventType = "content"
	EventEnd     EventType = "end"
)

// Event is one normalized unit of streamed output. Content events carry a
// text fragment; the end event carries the final usage counts.
type Event struct {
	Type    EventType
	Content string
	Usage   Usage
}

// Stream yields normalized events for one completion. Recv returns io.EOF
// after the end event; provider failures surface as a *ProviderError. A
// stream is finite and not restartable.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Provider is the capability set a vendor adapter must implement. Adapters
// treat the request as read-only, honor ctx cancellation, and map vendor
// error shapes to *ProviderError so callers never inspect vendor types.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
	CompleteStream(ctx context.Context, req Request) (Stream, error)
}
