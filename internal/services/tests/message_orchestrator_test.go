package services_test

import (
	"context"
	"testing"
	"time"

	"persona_chat_go_backend/internal/llm"
	"persona_chat_go_backend/internal/models"
	"persona_chat_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type orchestratorFixture struct {
	provider   *MockProvider
	catalog    *MockCatalog
	accountant *MockAccountant
	chatStore  *MockChatStore
	accounts   *MockAccountStore
	profiles   *MockProfileStore
	orch       *services.MessageOrchestrator

	user  *models.User
	chat  *models.Chat
	model *models.ProviderModel
}

func newOrchestratorFixture() *orchestratorFixture {
	f := &orchestratorFixture{
		provider:   new(MockProvider),
		catalog:    new(MockCatalog),
		accountant: new(MockAccountant),
		chatStore:  new(MockChatStore),
		accounts:   new(MockAccountStore),
		profiles:   new(MockProfileStore),
	}
	f.user = &models.User{ID: uuid.New(), Email: "test@example.com", BalanceCents: 100}
	f.chat = &models.Chat{ID: uuid.New(), UserID: f.user.ID, Title: models.DefaultChatTitle}
	f.model = &models.ProviderModel{
		ModelID:            "gpt-4o",
		Vendor:             models.VendorOpenAI,
		InputCentsPerMTok:  500,
		OutputCentsPerMTok: 1500,
		MaxOutputTokens:    4096,
	}

	providers := map[models.Vendor]llm.Provider{models.VendorOpenAI: f.provider}
	f.orch = services.NewMessageOrchestrator(
		providers, f.catalog, f.accountant, f.chatStore, f.accounts, f.profiles, nil, zerolog.Nop(),
	)
	return f
}

// expectPreflight wires the happy path up to (and including) the balance
// check.
func (f *orchestratorFixture) expectPreflight(balance, estimate int64) {
	f.catalog.On("Get", f.model.ModelID).Return(f.model, nil)
	f.chatStore.On("GetChat", f.user.ID, f.chat.ID).Return(f.chat, nil)
	f.profiles.On("GetProfile", f.user.ID).Return(nil, nil)
	f.accountant.On("Estimate", f.model.ModelID, mock.Anything).Return(estimate, nil)
	f.accounts.On("GetBalance", f.user.ID).Return(balance, nil)
}

func collectChunks(t *testing.T, chunks <-chan services.StreamChunk) []services.StreamChunk {
	t.Helper()
	var out []services.StreamChunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return out
			}
			out = append(out, chunk)
		case <-timeout:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

func chunkTypes(chunks []services.StreamChunk) []string {
	types := make([]string, len(chunks))
	for i, c := range chunks {
		types[i] = c.Type
	}
	return types
}

func TestStreamMessage_BillsActualCostOnCompletion(t *testing.T) {
	f := newOrchestratorFixture()
	f.expectPreflight(100, 20)

	stream := &stubStream{events: []llm.Event{
		{Type: llm.EventContent, Content: "Hello"},
		{Type: llm.EventContent, Content: " world"},
		{Type: llm.EventEnd, Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5}},
	}}
	f.provider.On("CompleteStream", mock.Anything, mock.Anything).Return(stream, nil)
	f.accountant.On("Finalize", f.model.ModelID, 10, 5).Return(int64(5), nil)

	assistantID := uuid.New()
	f.chatStore.On("SaveCompletion", mock.Anything, f.chat, mock.Anything, mock.Anything, int64(5)).
		Run(func(args mock.Arguments) {
			userMsg := args.Get(2).(*models.Message)
			assistantMsg := args.Get(3).(*models.Message)
			assert.Equal(t, models.RoleUser, userMsg.Role)
			assert.Equal(t, "What is Go?", userMsg.Content)
			assert.Equal(t, models.RoleAssistant, assistantMsg.Role)
			assert.Equal(t, "Hello world", assistantMsg.Content)
			assert.Equal(t, int64(5), assistantMsg.CostCents)
			assistantMsg.ID = assistantID
		}).
		Return(int64(95), nil)

	chunks, err := f.orch.StreamMessage(context.Background(), f.user, f.chat.ID, "What is Go?", f.model.ModelID, nil)
	require.NoError(t, err)

	received := collectChunks(t, chunks)
	require.Equal(t, []string{"start", "content", "content", "end"}, chunkTypes(received))

	end := received[len(received)-1]
	assert.Equal(t, assistantID.String(), end.MessageID)
	require.NotNil(t, end.Tokens)
	assert.Equal(t, 10, end.Tokens.Input)
	assert.Equal(t, 5, end.Tokens.Output)
	require.NotNil(t, end.CostCents)
	assert.Equal(t, int64(5), *end.CostCents)

	assert.True(t, stream.closed)
	f.chatStore.AssertExpectations(t)
}

func TestStreamMessage_InsufficientBalanceSkipsProvider(t *testing.T) {
	f := newOrchestratorFixture()
	f.expectPreflight(2, 20)

	_, err := f.orch.StreamMessage(context.Background(), f.user, f.chat.ID, "hi", f.model.ModelID, nil)
	require.ErrorIs(t, err, services.ErrInsufficientBalance)

	f.provider.AssertNotCalled(t, "CompleteStream", mock.Anything, mock.Anything)
	f.chatStore.AssertNotCalled(t, "SaveCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStreamMessage_UnknownModel(t *testing.T) {
	f := newOrchestratorFixture()
	f.catalog.On("Get", "no-such-model").Return(nil, services.ErrUnknownModel)

	_, err := f.orch.StreamMessage(context.Background(), f.user, f.chat.ID, "hi", "no-such-model", nil)
	require.ErrorIs(t, err, services.ErrUnknownModel)
	f.accounts.AssertNotCalled(t, "GetBalance", mock.Anything)
}

func TestStreamMessage_ProviderErrorPersistsNothing(t *testing.T) {
	f := newOrchestratorFixture()
	f.expectPreflight(100, 20)

	stream := &stubStream{
		events: []llm.Event{{Type: llm.EventContent, Content: "partial"}},
		err:    &llm.ProviderError{Vendor: "openai", Kind: llm.KindFatal, Message: "model overloaded"},
	}
	f.provider.On("CompleteStream", mock.Anything, mock.Anything).Return(stream, nil)

	chunks, err := f.orch.StreamMessage(context.Background(), f.user, f.chat.ID, "hi", f.model.ModelID, nil)
	require.NoError(t, err)

	received := collectChunks(t, chunks)
	require.Equal(t, []string{"start", "content", "error"}, chunkTypes(received))
	assert.Contains(t, received[2].Error, "model overloaded")

	f.chatStore.AssertNotCalled(t, "SaveCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.True(t, stream.closed)
}

func TestStreamMessage_ConsumerCancelPersistsNothing(t *testing.T) {
	f := newOrchestratorFixture()
	f.expectPreflight(100, 20)

	ctx, cancel := context.WithCancel(context.Background())
	stream := &stubStream{
		events:   []llm.Event{{Type: llm.EventContent, Content: "partial"}},
		blockCtx: ctx,
	}
	f.provider.On("CompleteStream", mock.Anything, mock.Anything).Return(stream, nil)

	chunks, err := f.orch.StreamMessage(ctx, f.user, f.chat.ID, "hi", f.model.ModelID, nil)
	require.NoError(t, err)

	// Read the first frames, then walk away mid-stream.
	<-chunks
	<-chunks
	cancel()

	received := collectChunks(t, chunks)
	assert.NotContains(t, chunkTypes(received), "end")

	f.chatStore.AssertNotCalled(t, "SaveCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.accountant.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything, mock.Anything)
}

func TestStreamMessage_SlowConsumerTimesOut(t *testing.T) {
	f := newOrchestratorFixture()
	f.expectPreflight(100, 20)
	f.orch.SetStreamLimits(1, 50*time.Millisecond)

	events := make([]llm.Event, 0, 6)
	for i := 0; i < 5; i++ {
		events = append(events, llm.Event{Type: llm.EventContent, Content: "chunk"})
	}
	events = append(events, llm.Event{Type: llm.EventEnd, Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5}})
	stream := &stubStream{events: events}
	f.provider.On("CompleteStream", mock.Anything, mock.Anything).Return(stream, nil)

	chunks, err := f.orch.StreamMessage(context.Background(), f.user, f.chat.ID, "hi", f.model.ModelID, nil)
	require.NoError(t, err)

	// Do not read anything until the producer has given up.
	time.Sleep(300 * time.Millisecond)

	received := collectChunks(t, chunks)
	assert.NotContains(t, chunkTypes(received), "end")

	// The channel must close with a stream-timeout error frame the consumer
	// can act on, not silently.
	require.NotEmpty(t, received)
	last := received[len(received)-1]
	assert.Equal(t, "error", last.Type)
	assert.Equal(t, services.ErrStreamTimeout.Error(), last.Error)

	f.chatStore.AssertNotCalled(t, "SaveCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.True(t, stream.closed)
}

func TestSendMessage_Success(t *testing.T) {
	f := newOrchestratorFixture()
	f.expectPreflight(100, 20)

	f.provider.On("Complete", mock.Anything, mock.Anything).Return(llm.Response{
		Content: "Go is a programming language.",
		Usage:   llm.Usage{PromptTokens: 12, CompletionTokens: 8},
	}, nil)
	f.accountant.On("Finalize", f.model.ModelID, 12, 8).Return(int64(7), nil)
	f.chatStore.On("SaveCompletion", mock.Anything, f.chat, mock.Anything, mock.Anything, int64(7)).
		Return(int64(93), nil)

	msg, err := f.orch.SendMessage(context.Background(), f.user, f.chat.ID, "What is Go?", f.model.ModelID, nil)
	require.NoError(t, err)
	assert.Equal(t, "Go is a programming language.", msg.Content)
	assert.Equal(t, int64(7), msg.CostCents)
	assert.Equal(t, 12, msg.TokensInput)
	assert.Equal(t, 8, msg.TokensOutput)
	f.chatStore.AssertExpectations(t)
}

func TestSendMessage_RunsProfileExtractionAfterPersist(t *testing.T) {
	f := newOrchestratorFixture()
	f.expectPreflight(100, 20)

	f.provider.On("Complete", mock.Anything, mock.Anything).Return(llm.Response{
		Content: "answer",
		Usage:   llm.Usage{PromptTokens: 10, CompletionTokens: 4},
	}, nil)
	f.accountant.On("Finalize", f.model.ModelID, 10, 4).Return(int64(3), nil)
	f.chatStore.On("SaveCompletion", mock.Anything, f.chat, mock.Anything, mock.Anything, int64(3)).
		Return(int64(97), nil)

	// Extraction runs on its own cheap model, not the chat model.
	extractProvider := new(MockProvider)
	extractProvider.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Model == "gpt-4o-mini"
	})).Return(llm.Response{Content: `{"interests": ["chess"], "skills": [], "goals": []}`, Usage: llm.Usage{}}, nil)

	saved := make(chan *models.UserProfile, 1)
	f.profiles.On("UpsertProfile", mock.AnythingOfType("*models.UserProfile")).Run(func(args mock.Arguments) {
		saved <- args.Get(0).(*models.UserProfile)
	}).Return(nil)

	f.orch.SetProfileExtractor(services.NewProfileExtractor(extractProvider, "gpt-4o-mini", f.profiles, zerolog.Nop()))

	_, err := f.orch.SendMessage(context.Background(), f.user, f.chat.ID, "I really enjoy playing chess on weekends.", f.model.ModelID, nil)
	require.NoError(t, err)

	select {
	case profile := <-saved:
		assert.Equal(t, f.user.ID, profile.UserID)
		assert.Equal(t, []string{"chess"}, decodeList(t, profile.Interests))
	case <-time.After(2 * time.Second):
		t.Fatal("profile extraction never ran after the completion persisted")
	}
	extractProvider.AssertExpectations(t)
}

func TestSendMessage_HistoryWindowAndPersonalization(t *testing.T) {
	f := newOrchestratorFixture()
	f.orch.SetHistoryLimit(10)

	for i := 0; i < 25; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		f.chat.Messages = append(f.chat.Messages, models.Message{Role: role, Content: "older message"})
	}

	f.catalog.On("Get", f.model.ModelID).Return(f.model, nil)
	f.chatStore.On("GetChat", f.user.ID, f.chat.ID).Return(f.chat, nil)
	f.profiles.On("GetProfile", f.user.ID).Return(&models.UserProfile{
		UserID:    f.user.ID,
		Interests: []byte(`["distributed systems","databases"]`),
	}, nil)
	f.accountant.On("Estimate", f.model.ModelID, mock.Anything).Return(int64(20), nil)
	f.accounts.On("GetBalance", f.user.ID).Return(int64(100), nil)

	var captured llm.Request
	f.provider.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(llm.Request)
		}).
		Return(llm.Response{Content: "ok", Usage: llm.Usage{PromptTokens: 1, CompletionTokens: 1}}, nil)
	f.accountant.On("Finalize", f.model.ModelID, 1, 1).Return(int64(1), nil)
	f.chatStore.On("SaveCompletion", mock.Anything, f.chat, mock.Anything, mock.Anything, int64(1)).
		Return(int64(99), nil)

	_, err := f.orch.SendMessage(context.Background(), f.user, f.chat.ID, "latest question", f.model.ModelID, nil)
	require.NoError(t, err)

	// system prompt + trimmed history + the new message
	require.Len(t, captured.Messages, 12)
	assert.Equal(t, llm.RoleSystem, captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[0].Content, "distributed systems")
	assert.Equal(t, "latest question", captured.Messages[len(captured.Messages)-1].Content)
	assert.Equal(t, f.model.MaxOutputTokens, captured.MaxTokens)
}
