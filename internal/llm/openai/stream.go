package openai

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"persona_chat_go_backend/internal/llm"
)

type stream struct {
	body    io.ReadCloser
	decoder *sseDecoder
	usage   llm.Usage
	done    bool
}

func newStream(body io.ReadCloser) *stream {
	return &stream{body: body, decoder: newSSEDecoder(body)}
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

func (s *stream) Recv() (llm.Event, error) {
	if s.done {
		return llm.Event{}, io.EOF
	}

	for {
		data, err := s.decoder.NextData()
		if err == io.EOF {
			// Upstream closed without [DONE]; finish with whatever usage we saw.
			s.done = true
			return llm.Event{Type: llm.EventEnd, Usage: s.usage}, nil
		}
		if err != nil {
			return llm.Event{}, &llm.ProviderError{Vendor: "openai", Kind: llm.KindTransient, Message: "read stream", Cause: err}
		}

		if data == "[DONE]" {
			s.done = true
			return llm.Event{Type: llm.EventEnd, Usage: s.usage}, nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return llm.Event{}, &llm.ProviderError{Vendor: "openai", Kind: llm.KindFatal, Message: "decode stream chunk", Cause: err}
		}

		if chunk.Usage != nil {
			s.usage = llm.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
			}
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			return llm.Event{Type: llm.EventContent, Content: chunk.Choices[0].Delta.Content}, nil
		}
	}
}

func (s *stream) Close() error {
	return s.body.Close()
}

type sseDecoder struct {
	r   *bufio.Reader
	buf []string
}

func newSSEDecoder(r io.Reader) *sseDecoder {
	return &sseDecoder{r: bufio.NewReader(r)}
}

// NextData returns the next SSE data payload (joined by "\n") and io.EOF when
// the underlying reader ends.
func (d *sseDecoder) NextData() (string, error) {
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}

		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(d.buf) > 0 {
				out := strings.Join(d.buf, "\n")
				d.buf = d.buf[:0]
				return out, nil
			}
			if err == io.EOF {
				return "", io.EOF
			}
			continue
		}

		if strings.HasPrefix(line, "data:") {
			d.buf = append(d.buf, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}

		if err == io.EOF {
			if len(d.buf) > 0 {
				out := strings.Join(d.buf, "\n")
				d.buf = d.buf[:0]
				return out, nil
			}
			return "", io.EOF
		}
	}
}
