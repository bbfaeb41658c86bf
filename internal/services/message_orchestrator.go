package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"persona_chat_go_backend/internal/llm"
	"persona_chat_go_backend/internal/models"
	"persona_chat_go_backend/internal/utils/broker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultHistoryLimit = 20
	defaultStreamBuffer = 32
	defaultSendTimeout  = 15 * time.Second
	defaultTemperature  = 0.7
	balanceTopicPrefix  = "balance_update_"
)

// TokenCounts mirrors the tokens object on the wire.
type TokenCounts struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// StreamChunk is one frame of the streamed completion as delivered to the
// client: start, content fragments, then exactly one end or error.
type StreamChunk struct {
	Type      string       `json:"type"`
	Content   string       `json:"content,omitempty"`
	MessageID string       `json:"message_id,omitempty"`
	Model     string       `json:"model,omitempty"`
	Tokens    *TokenCounts `json:"tokens,omitempty"`
	CostCents *int64       `json:"cost,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// MessageOrchestrator coordinates a completion end to end: model resolution,
// the conservative balance pre-check, the provider call, and the atomic
// persist+debit. A completion is billed only when it completes; cancelled and
// failed calls leave no trace in the database.
type MessageOrchestrator struct {
	providers  map[models.Vendor]llm.Provider
	catalog    ModelCatalog
	accountant Accountant
	chatStore  ChatStore
	accounts   AccountStore
	profiles   ProfileStore
	broker     *broker.Broker
	extractor  *ProfileExtractor
	log        zerolog.Logger

	historyLimit int
	streamBuffer int
	sendTimeout  time.Duration
}

func NewMessageOrchestrator(
	providers map[models.Vendor]llm.Provider,
	catalog ModelCatalog,
	accountant Accountant,
	chatStore ChatStore,
	accounts AccountStore,
	profiles ProfileStore,
	messageBroker *broker.Broker,
	log zerolog.Logger,
) *MessageOrchestrator {
	return &MessageOrchestrator{
		providers:    providers,
		catalog:      catalog,
		accountant:   accountant,
		chatStore:    chatStore,
		accounts:     accounts,
		profiles:     profiles,
		broker:       messageBroker,
		log:          log,
		historyLimit: defaultHistoryLimit,
		streamBuffer: defaultStreamBuffer,
		sendTimeout:  defaultSendTimeout,
	}
}

// SetStreamLimits overrides the streaming backlog bound and the hard send
// timeout. Used by main wiring and tests.
func (o *MessageOrchestrator) SetStreamLimits(buffer int, sendTimeout time.Duration) {
	if buffer > 0 {
		o.streamBuffer = buffer
	}
	if sendTimeout > 0 {
		o.sendTimeout = sendTimeout
	}
}

// SetHistoryLimit overrides how many stored messages are replayed into the
// provider request.
func (o *MessageOrchestrator) SetHistoryLimit(limit int) {
	if limit > 0 {
		o.historyLimit = limit
	}
}

// SetProfileExtractor enables the post-completion profile extraction pass.
// Without it, completions persist and bill exactly the same.
func (o *MessageOrchestrator) SetProfileExtractor(extractor *ProfileExtractor) {
	o.extractor = extractor
}

// SendMessage runs a non-streaming completion. On success the user and
// assistant messages are persisted and the balance debited atomically; on any
// failure nothing is written.
func (o *MessageOrchestrator) SendMessage(ctx context.Context, user *models.User, chatID uuid.UUID, content, modelID string, attachments []byte) (*models.Message, error) {
	model, provider, chat, req, err := o.prepare(ctx, user, chatID, content, modelID)
	if err != nil {
		return nil, err
	}

	resp, err := provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	usage := o.fillUsage(resp.Usage, req, resp.Content)
	assistantMsg, _, err := o.persistCompletion(ctx, chat, model, content, attachments, resp.Content, usage)
	if err != nil {
		return nil, err
	}
	return assistantMsg, nil
}

// StreamMessage runs a streaming completion. Pre-flight failures are returned
// synchronously; after that every outcome travels through the returned
// channel, which is closed after the terminal chunk. A slow consumer hits the
// send timeout and the stream is torn down with a stream-timeout error; a
// consumer disconnect cancels the upstream call.
func (o *MessageOrchestrator) StreamMessage(ctx context.Context, user *models.User, chatID uuid.UUID, content, modelID string, attachments []byte) (<-chan StreamChunk, error) {
	model, provider, chat, req, err := o.prepare(ctx, user, chatID, content, modelID)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := provider.CompleteStream(streamCtx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	// One extra slot beyond the backlog bound, reserved for a terminal error
	// frame; send never fills it with ordinary chunks.
	out := make(chan StreamChunk, o.streamBuffer+1)
	go o.pump(streamCtx, cancel, stream, out, chat, model, content, attachments, req)
	return out, nil
}

// prepare resolves the model, checks ownership and runs the balance
// pre-check. No provider call is made if any step fails.
func (o *MessageOrchestrator) prepare(ctx context.Context, user *models.User, chatID uuid.UUID, content, modelID string) (*models.ProviderModel, llm.Provider, *models.Chat, llm.Request, error) {
	model, err := o.catalog.Get(modelID)
	if err != nil {
		return nil, nil, nil, llm.Request{}, err
	}
	provider, ok := o.providers[model.Vendor]
	if !ok {
		return nil, nil, nil, llm.Request{}, fmt.Errorf("no adapter configured for vendor %s: %w", model.Vendor, ErrUnknownModel)
	}

	chat, err := o.chatStore.GetChat(user.ID, chatID)
	if err != nil {
		return nil, nil, nil, llm.Request{}, err
	}

	req := o.buildRequest(user, chat, model, content)

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += EstimateTokens(m.Content)
	}
	estimate, err := o.accountant.Estimate(model.ModelID, promptTokens)
	if err != nil {
		return nil, nil, nil, llm.Request{}, err
	}
	balance, err := o.accounts.GetBalance(user.ID)
	if err != nil {
		return nil, nil, nil, llm.Request{}, err
	}
	if balance < estimate {
		return nil, nil, nil, llm.Request{}, ErrInsufficientBalance
	}

	return model, provider, chat, req, nil
}

func (o *MessageOrchestrator) buildRequest(user *models.User, chat *models.Chat, model *models.ProviderModel, content string) llm.Request {
	msgs := make([]llm.Message, 0, o.historyLimit+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: o.buildSystemPrompt(user.ID)})

	history := chat.Messages
	if len(history) > o.historyLimit {
		history = history[len(history)-o.historyLimit:]
	}
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: content})

	return llm.Request{
		Model:       model.ModelID,
		Messages:    msgs,
		MaxTokens:   model.MaxOutputTokens,
		Temperature: defaultTemperature,
	}
}

func (o *MessageOrchestrator) pump(ctx context.Context, cancel context.CancelFunc, stream llm.Stream, out chan<- StreamChunk, chat *models.Chat, model *models.ProviderModel, content string, attachments []byte, req llm.Request) {
	defer close(out)
	defer cancel()
	defer stream.Close()

	if !o.send(ctx, out, StreamChunk{Type: "start", Model: model.ModelID}) {
		return
	}

	var accumulated strings.Builder
	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				// Consumer disconnected; the upstream call is already
				// cancelled and nothing gets persisted or billed.
				o.log.Debug().Str("chat_id", chat.ID.String()).Msg("stream cancelled by consumer")
				return
			}
			o.log.Warn().Err(err).Str("chat_id", chat.ID.String()).Msg("provider stream failed")
			o.send(ctx, out, StreamChunk{Type: "error", Error: err.Error()})
			return
		}

		switch ev.Type {
		case llm.EventContent:
			accumulated.WriteString(ev.Content)
			if !o.send(ctx, out, StreamChunk{Type: "content", Content: ev.Content}) {
				return
			}
		case llm.EventEnd:
			usage := o.fillUsage(ev.Usage, req, accumulated.String())
			assistantMsg, newBalance, err := o.persistCompletion(ctx, chat, model, content, attachments, accumulated.String(), usage)
			if err != nil {
				o.log.Error().Err(err).Str("chat_id", chat.ID.String()).Msg("failed to persist completion")
				o.send(ctx, out, StreamChunk{Type: "error", Error: err.Error()})
				return
			}

			cost := assistantMsg.CostCents
			o.send(ctx, out, StreamChunk{
				Type:      "end",
				MessageID: assistantMsg.ID.String(),
				Tokens:    &TokenCounts{Input: usage.PromptTokens, Output: usage.CompletionTokens},
				CostCents: &cost,
			})
			o.log.Info().
				Str("chat_id", chat.ID.String()).
				Str("model", model.ModelID).
				Int("tokens_in", usage.PromptTokens).
				Int("tokens_out", usage.CompletionTokens).
				Int64("cost_cents", cost).
				Int64("balance_cents", newBalance).
				Msg("completion billed")
			return
		}
	}
}

// send delivers a chunk within the bounded backlog. Ordinary chunks never
// occupy the channel's last slot, so when the consumer is too slow and the
// hard timeout fires, the stream-timeout error frame is guaranteed to fit and
// the consumer finds it before the channel closes. The occupancy check is
// safe because the pump is the only sender.
func (o *MessageOrchestrator) send(ctx context.Context, out chan<- StreamChunk, chunk StreamChunk) bool {
	timer := time.NewTimer(o.sendTimeout)
	defer timer.Stop()
	drain := time.NewTicker(5 * time.Millisecond)
	defer drain.Stop()

	for {
		if len(out) < cap(out)-1 {
			out <- chunk
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			o.log.Warn().Msg("stream consumer too slow, closing")
			out <- StreamChunk{Type: "error", Error: ErrStreamTimeout.Error()}
			return false
		case <-drain.C:
		}
	}
}

// fillUsage backfills token counts for providers that close the stream
// without reporting usage.
func (o *MessageOrchestrator) fillUsage(usage llm.Usage, req llm.Request, completion string) llm.Usage {
	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		for _, m := range req.Messages {
			usage.PromptTokens += EstimateTokens(m.Content)
		}
		usage.CompletionTokens = EstimateTokens(completion)
	}
	return usage
}

// persistCompletion finalizes the cost and runs the atomic persist+debit,
// then publishes the new balance for connected websocket clients.
func (o *MessageOrchestrator) persistCompletion(ctx context.Context, chat *models.Chat, model *models.ProviderModel, content string, attachments []byte, completion string, usage llm.Usage) (*models.Message, int64, error) {
	cost, err := o.accountant.Finalize(model.ModelID, usage.PromptTokens, usage.CompletionTokens)
	if err != nil {
		return nil, 0, err
	}

	userMsg := &models.Message{
		ChatID:      chat.ID,
		Role:        models.RoleUser,
		Content:     content,
		Attachments: attachments,
	}
	assistantMsg := &models.Message{
		ChatID:       chat.ID,
		Role:         models.RoleAssistant,
		Content:      completion,
		ModelUsed:    model.ModelID,
		TokensInput:  usage.PromptTokens,
		TokensOutput: usage.CompletionTokens,
		CostCents:    cost,
	}

	newBalance, err := o.chatStore.SaveCompletion(ctx, chat, userMsg, assistantMsg, cost)
	if err != nil {
		return nil, 0, err
	}

	if o.broker != nil {
		o.broker.Publish(balanceTopicPrefix+chat.UserID.String(), newBalance)
	}
	if o.extractor != nil {
		// Off the request path; the caller's context may already be torn down
		// by the time the extraction model answers.
		go o.extractor.ExtractAndMerge(context.Background(), chat.UserID, content)
	}
	return assistantMsg, newBalance, nil
}
