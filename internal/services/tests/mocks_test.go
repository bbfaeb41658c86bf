package services_test

import (
	"context"
	"io"

	"persona_chat_go_backend/internal/llm"
	"persona_chat_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(llm.Response), args.Error(1)
}

func (m *MockProvider) CompleteStream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(llm.Stream), args.Error(1)
}

// stubStream replays a scripted event sequence. With blockCtx set, Recv
// blocks after the script runs out until the context is cancelled, which
// stands in for a provider stream that is still producing.
type stubStream struct {
	events   []llm.Event
	err      error
	blockCtx context.Context
	idx      int
	closed   bool
}

func (s *stubStream) Recv() (llm.Event, error) {
	if s.idx < len(s.events) {
		ev := s.events[s.idx]
		s.idx++
		return ev, nil
	}
	if s.blockCtx != nil {
		<-s.blockCtx.Done()
		return llm.Event{}, s.blockCtx.Err()
	}
	if s.err != nil {
		return llm.Event{}, s.err
	}
	return llm.Event{}, io.EOF
}

func (s *stubStream) Close() error {
	s.closed = true
	return nil
}

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) Get(modelID string) (*models.ProviderModel, error) {
	args := m.Called(modelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProviderModel), args.Error(1)
}

func (m *MockCatalog) List() []models.ProviderModel {
	args := m.Called()
	return args.Get(0).([]models.ProviderModel)
}

type MockAccountant struct {
	mock.Mock
}

func (m *MockAccountant) Estimate(modelID string, promptTokens int) (int64, error) {
	args := m.Called(modelID, promptTokens)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAccountant) Finalize(modelID string, promptTokens, completionTokens int) (int64, error) {
	args := m.Called(modelID, promptTokens, completionTokens)
	return args.Get(0).(int64), args.Error(1)
}

type MockChatStore struct {
	mock.Mock
}

func (m *MockChatStore) CreateChat(userID uuid.UUID, title string) (*models.Chat, error) {
	args := m.Called(userID, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockChatStore) GetChat(userID, chatID uuid.UUID) (*models.Chat, error) {
	args := m.Called(userID, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockChatStore) ListChats(userID uuid.UUID, includeDeleted bool) ([]models.Chat, error) {
	args := m.Called(userID, includeDeleted)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Chat), args.Error(1)
}

func (m *MockChatStore) UpdateChat(userID, chatID uuid.UUID, updates map[string]interface{}) (*models.Chat, error) {
	args := m.Called(userID, chatID, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockChatStore) DeleteChat(userID, chatID uuid.UUID, permanent bool) error {
	args := m.Called(userID, chatID, permanent)
	return args.Error(0)
}

func (m *MockChatStore) ToggleFavorite(userID, chatID uuid.UUID) (*models.Chat, error) {
	args := m.Called(userID, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockChatStore) SaveCompletion(ctx context.Context, chat *models.Chat, userMsg, assistantMsg *models.Message, costCents int64) (int64, error) {
	args := m.Called(ctx, chat, userMsg, assistantMsg, costCents)
	return args.Get(0).(int64), args.Error(1)
}

type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) GetBalance(userID uuid.UUID) (int64, error) {
	args := m.Called(userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAccountStore) CreditBalance(userID uuid.UUID, amountCents int64, provider, paymentID, description string) (int64, error) {
	args := m.Called(userID, amountCents, provider, paymentID, description)
	return args.Get(0).(int64), args.Error(1)
}

type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) GetProfile(userID uuid.UUID) (*models.UserProfile, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserProfile), args.Error(1)
}

func (m *MockProfileStore) UpsertProfile(profile *models.UserProfile) error {
	args := m.Called(profile)
	return args.Error(0)
}
