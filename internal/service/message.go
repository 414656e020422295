package service

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Jlypx/BetterForward-enhance/internal/errors"
	"github.com/Jlypx/BetterForward-enhance/internal/model"
	"github.com/Jlypx/BetterForward-enhance/internal/repository"
)

// MessageService keeps the user-message/group-message pairs that make reply
// threading and edit relay possible.
type MessageService struct {
	links repository.MessageLinkRepository
}

func NewMessageService(links repository.MessageLinkRepository) *MessageService {
	return &MessageService{links: links}
}

func (s *MessageService) Link(ctx context.Context, link model.MessageLink) error {
	if err := s.links.Save(ctx, link); err != nil {
		return apperrors.StorageUnavailable(fmt.Errorf("save message link: %w", err))
	}
	return nil
}

// GroupMessageFor returns the group-side id for a message in the user's chat,
// or zero when the pair is unknown.
func (s *MessageService) GroupMessageFor(ctx context.Context, chatID, userMessageID int64) (int64, error) {
	link, err := s.links.FindByUserMessage(ctx, chatID, userMessageID)
	if err != nil {
		return 0, apperrors.StorageUnavailable(fmt.Errorf("find link by user message: %w", err))
	}
	if link == nil {
		return 0, nil
	}
	return link.GroupMessageID, nil
}

// UserMessageFor is the inverse lookup. A link that belongs to a different
// chat is treated as unknown.
func (s *MessageService) UserMessageFor(ctx context.Context, chatID, groupMessageID int64) (int64, error) {
	link, err := s.links.FindByGroupMessage(ctx, groupMessageID)
	if err != nil {
		return 0, apperrors.StorageUnavailable(fmt.Errorf("find link by group message: %w", err))
	}
	if link == nil || link.ExternalChatID != chatID {
		return 0, nil
	}
	return link.UserMessageID, nil
}

func (s *MessageService) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	return s.links.DeleteOlderThan(ctx, time.Now().UTC().Add(-age))
}

func (s *MessageService) CountByDirection(ctx context.Context) (map[model.Direction]int64, error) {
	return s.links.CountByDirection(ctx)
}
