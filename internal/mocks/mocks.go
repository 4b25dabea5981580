package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/wshchocolatine/ake-api/internal/models"
	"github.com/wshchocolatine/ake-api/internal/repositories"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	var created models.User
	if val := args.Get(0); val != nil {
		created = val.(models.User)
	}
	return created, args.Error(1)
}

func (m *UserRepositoryMock) GetByID(ctx context.Context, id string) (models.User, error) {
	args := m.Called(ctx, id)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetByIdentity(ctx context.Context, username string, tag int) (models.User, error) {
	args := m.Called(ctx, username, tag)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) UpdatePassword(ctx context.Context, id, passwordHash, privateKeyEncrypted string) error {
	args := m.Called(ctx, id, passwordHash, privateKeyEncrypted)
	return args.Error(0)
}

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) CreateConversation(ctx context.Context, nc repositories.NewConversation) error {
	args := m.Called(ctx, nc)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) DirectConversationExists(ctx context.Context, userA, userB string) (bool, error) {
	args := m.Called(ctx, userA, userB)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) GetKey(ctx context.Context, conversationID, ownerID string) (models.Key, error) {
	args := m.Called(ctx, conversationID, ownerID)
	var key models.Key
	if val := args.Get(0); val != nil {
		key = val.(models.Key)
	}
	return key, args.Error(1)
}

func (m *ConversationRepositoryMock) ListParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	args := m.Called(ctx, conversationID)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

func (m *ConversationRepositoryMock) ListConversations(ctx context.Context, userID string, offset, limit int) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID, offset, limit)
	var summaries []models.ConversationSummary
	if val := args.Get(0); val != nil {
		summaries = val.([]models.ConversationSummary)
	}
	return summaries, args.Error(1)
}

func (m *ConversationRepositoryMock) SearchConversations(ctx context.Context, userID, usernamePrefix string, offset, limit int) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID, usernamePrefix, offset, limit)
	var summaries []models.ConversationSummary
	if val := args.Get(0); val != nil {
		summaries = val.([]models.ConversationSummary)
	}
	return summaries, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, nm repositories.NewMessage) error {
	args := m.Called(ctx, nm)
	return args.Error(0)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, conversationID, userID string, offset, limit int) ([]models.MessageView, error) {
	args := m.Called(ctx, conversationID, userID, offset, limit)
	var views []models.MessageView
	if val := args.Get(0); val != nil {
		views = val.([]models.MessageView)
	}
	return views, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, messageID, userID string) error {
	args := m.Called(ctx, messageID, userID)
	return args.Error(0)
}

var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
