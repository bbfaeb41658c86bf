package anthropic

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"persona_chat_go_backend/internal/llm"
)

type stream struct {
	body  io.ReadCloser
	r     *bufio.Reader
	usage llm.Usage
	done  bool
}

func newStream(body io.ReadCloser) *stream {
	return &stream{body: body, r: bufio.NewReader(body)}
}

// streamEvent covers the subset of Anthropic SSE payloads we consume:
// message_start (input tokens), content_block_delta (text), message_delta
// (output tokens), message_stop and error.
type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage wireUsage `json:"usage"`
	} `json:"message"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *stream) Recv() (llm.Event, error) {
	if s.done {
		return llm.Event{}, io.EOF
	}

	for {
		data, err := s.nextData()
		if err == io.EOF {
			s.done = true
			return llm.Event{Type: llm.EventEnd, Usage: s.usage}, nil
		}
		if err != nil {
			return llm.Event{}, &llm.ProviderError{Vendor: "anthropic", Kind: llm.KindTransient, Message: "read stream", Cause: err}
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return llm.Event{}, &llm.ProviderError{Vendor: "anthropic", Kind: llm.KindFatal, Message: "decode stream event", Cause: err}
		}

		switch ev.Type {
		case "message_start":
			if ev.Message != nil {
				s.usage.PromptTokens = ev.Message.Usage.InputTokens
			}
		case "content_block_delta":
			if ev.Delta.Text != "" {
				return llm.Event{Type: llm.EventContent, Content: ev.Delta.Text}, nil
			}
		case "message_delta":
			if ev.Usage != nil {
				s.usage.CompletionTokens = ev.Usage.OutputTokens
			}
		case "message_stop":
			s.done = true
			return llm.Event{Type: llm.EventEnd, Usage: s.usage}, nil
		case "error":
			s.done = true
			pe := &llm.ProviderError{Vendor: "anthropic", Kind: llm.KindFatal}
			if ev.Error != nil {
				pe.Message = ev.Error.Message
				if ev.Error.Type == "overloaded_error" {
					pe.Kind = llm.KindTransient
				}
			}
			return llm.Event{}, pe
		}
	}
}

func (s *stream) Close() error {
	return s.body.Close()
}

// nextData reads SSE lines and returns the next data payload.
func (s *stream) nextData() (string, error) {
	var buf []string
	for {
		line, err := s.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}

		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(buf) > 0 {
				return strings.Join(buf, "\n"), nil
			}
			if err == io.EOF {
				return "", io.EOF
			}
			continue
		}

		if strings.HasPrefix(line, "data:") {
			buf = append(buf, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}

		if err == io.EOF {
			if len(buf) > 0 {
				return strings.Join(buf, "\n"), nil
			}
			return "", io.EOF
		}
	}
}
