package relay

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Jlypx/BetterForward-enhance/internal/model"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) CreateTopic(ctx context.Context, groupID int64, name string) (int64, error) {
	args := m.Called(ctx, groupID, name)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockTransport) CopyMessage(ctx context.Context, req CopyRequest) (int64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockTransport) SendText(ctx context.Context, req TextRequest) (int64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockTransport) PinMessage(ctx context.Context, chatID, messageID int64) error {
	return m.Called(ctx, chatID, messageID).Error(0)
}

func (m *mockTransport) CloseTopic(ctx context.Context, groupID, topicID int64) error {
	return m.Called(ctx, groupID, topicID).Error(0)
}

func (m *mockTransport) EditText(ctx context.Context, chatID, messageID int64, text string) error {
	return m.Called(ctx, chatID, messageID, text).Error(0)
}

func (m *mockTransport) EditCaption(ctx context.Context, chatID, messageID int64, caption string) error {
	return m.Called(ctx, chatID, messageID, caption).Error(0)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) conv(args mock.Arguments) (*model.Conversation, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *mockStore) GetOrCreate(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
	return m.conv(m.Called(ctx, params))
}

func (m *mockStore) FindByChat(ctx context.Context, chatID int64) (*model.Conversation, error) {
	return m.conv(m.Called(ctx, chatID))
}

func (m *mockStore) FindByTopic(ctx context.Context, topicID int64) (*model.Conversation, error) {
	return m.conv(m.Called(ctx, topicID))
}

func (m *mockStore) UpdateLastSeen(ctx context.Context, chatID int64, at time.Time) error {
	return m.Called(ctx, chatID, at).Error(0)
}

func (m *mockStore) SetBlocked(ctx context.Context, chatID int64, blocked bool) error {
	return m.Called(ctx, chatID, blocked).Error(0)
}

func (m *mockStore) AssignTopic(ctx context.Context, chatID, topicID int64) error {
	return m.Called(ctx, chatID, topicID).Error(0)
}

func (m *mockStore) ClearTopic(ctx context.Context, chatID int64) error {
	return m.Called(ctx, chatID).Error(0)
}

type mockLinks struct {
	mock.Mock
}

func (m *mockLinks) Link(ctx context.Context, link model.MessageLink) error {
	return m.Called(ctx, link).Error(0)
}

func (m *mockLinks) GroupMessageFor(ctx context.Context, chatID, userMessageID int64) (int64, error) {
	args := m.Called(ctx, chatID, userMessageID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLinks) UserMessageFor(ctx context.Context, chatID, groupMessageID int64) (int64, error) {
	args := m.Called(ctx, chatID, groupMessageID)
	return args.Get(0).(int64), args.Error(1)
}

type stubLimiter struct {
	allow bool
}

func (s stubLimiter) Allow(context.Context, int64) bool {
	return s.allow
}

// budgetLimiter allows a fixed number of messages and counts every check.
type budgetLimiter struct {
	tokens int
	calls  int
}

func (b *budgetLimiter) Allow(context.Context, int64) bool {
	b.calls++
	if b.tokens == 0 {
		return false
	}
	b.tokens--
	return true
}

// recordingSubmitter collects submitted jobs in order.
type recordingSubmitter struct {
	jobs []model.Job
	err  error
}

func (r *recordingSubmitter) Submit(job model.Job) error {
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}
