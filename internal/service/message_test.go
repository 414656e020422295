package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Jlypx/BetterForward-enhance/internal/errors"
	"github.com/Jlypx/BetterForward-enhance/internal/model"
)

type mockLinkRepo struct {
	mock.Mock
}

func (m *mockLinkRepo) Save(ctx context.Context, link model.MessageLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *mockLinkRepo) FindByUserMessage(ctx context.Context, chatID, userMessageID int64) (*model.MessageLink, error) {
	args := m.Called(ctx, chatID, userMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MessageLink), args.Error(1)
}

func (m *mockLinkRepo) FindByGroupMessage(ctx context.Context, groupMessageID int64) (*model.MessageLink, error) {
	args := m.Called(ctx, groupMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MessageLink), args.Error(1)
}

func (m *mockLinkRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLinkRepo) CountByDirection(ctx context.Context) (map[model.Direction]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.Direction]int64), args.Error(1)
}

func TestMessageService_Link(t *testing.T) {
	ctx := context.Background()

	t.Run("saves link", func(t *testing.T) {
		repo := new(mockLinkRepo)
		svc := NewMessageService(repo)
		link := model.MessageLink{ExternalChatID: 1, UserMessageID: 2, GroupMessageID: 3, Direction: model.DirectionToGroup}

		repo.On("Save", ctx, link).Return(nil)

		assert.NoError(t, svc.Link(ctx, link))
		repo.AssertExpectations(t)
	})

	t.Run("wraps repository failure as storage error", func(t *testing.T) {
		repo := new(mockLinkRepo)
		svc := NewMessageService(repo)

		repo.On("Save", ctx, mock.Anything).Return(errors.New("disk I/O error"))

		err := svc.Link(ctx, model.MessageLink{})
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeStorageUnavailable))
	})
}

func TestMessageService_Lookups(t *testing.T) {
	ctx := context.Background()

	t.Run("GroupMessageFor returns zero when unknown", func(t *testing.T) {
		repo := new(mockLinkRepo)
		svc := NewMessageService(repo)
		repo.On("FindByUserMessage", ctx, int64(1), int64(10)).Return(nil, nil)

		id, err := svc.GroupMessageFor(ctx, 1, 10)
		require.NoError(t, err)
		assert.Zero(t, id)
	})

	t.Run("GroupMessageFor returns linked id", func(t *testing.T) {
		repo := new(mockLinkRepo)
		svc := NewMessageService(repo)
		repo.On("FindByUserMessage", ctx, int64(1), int64(10)).
			Return(&model.MessageLink{ExternalChatID: 1, UserMessageID: 10, GroupMessageID: 900}, nil)

		id, err := svc.GroupMessageFor(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(900), id)
	})

	t.Run("UserMessageFor ignores links of another chat", func(t *testing.T) {
		repo := new(mockLinkRepo)
		svc := NewMessageService(repo)
		repo.On("FindByGroupMessage", ctx, int64(900)).
			Return(&model.MessageLink{ExternalChatID: 2, UserMessageID: 10, GroupMessageID: 900}, nil)

		id, err := svc.UserMessageFor(ctx, 1, 900)
		require.NoError(t, err)
		assert.Zero(t, id)
	})

	t.Run("UserMessageFor wraps storage failures", func(t *testing.T) {
		repo := new(mockLinkRepo)
		svc := NewMessageService(repo)
		repo.On("FindByGroupMessage", ctx, int64(900)).Return(nil, errors.New("locked"))

		_, err := svc.UserMessageFor(ctx, 1, 900)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeStorageUnavailable))
	})
}

func TestMessageService_PruneOlderThan(t *testing.T) {
	ctx := context.Background()
	repo := new(mockLinkRepo)
	svc := NewMessageService(repo)

	repo.On("DeleteOlderThan", ctx, mock.MatchedBy(func(cutoff time.Time) bool {
		return time.Since(cutoff) > 23*time.Hour && time.Since(cutoff) < 25*time.Hour
	})).Return(int64(4), nil)

	n, err := svc.PruneOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	repo.AssertExpectations(t)
}
