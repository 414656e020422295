package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/Jlypx/BetterForward-enhance/internal/cache"
	"github.com/Jlypx/BetterForward-enhance/internal/database"
	apperrors "github.com/Jlypx/BetterForward-enhance/internal/errors"
	"github.com/Jlypx/BetterForward-enhance/internal/model"
	bfredis "github.com/Jlypx/BetterForward-enhance/internal/redis"
	"github.com/Jlypx/BetterForward-enhance/internal/repository"
)

// ConversationService is the mapping store. It is the only writer of the
// conversations table; every mutation invalidates the cached copies.
type ConversationService struct {
	db       *database.DB
	repo     repository.ConversationRepository
	cache    cache.Cache
	cacheTTL time.Duration
	now      func() time.Time
}

func NewConversationService(
	db *database.DB,
	repo repository.ConversationRepository,
	c cache.Cache,
	cacheTTL time.Duration,
) *ConversationService {
	if c == nil {
		c = cache.Nop{}
	}
	return &ConversationService{
		db:       db,
		repo:     repo,
		cache:    c,
		cacheTTL: cacheTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the mapping for a chat, creating it on first contact.
// Calling it again for the same chat returns the same row.
func (s *ConversationService) GetOrCreate(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
	if conv := s.cached(ctx, params.ExternalChatID); conv != nil && !profileChanged(conv, params) {
		return conv, nil
	}

	var conv *model.Conversation
	var created bool
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.repo.WithTx(tx)

		var err error
		created, err = repo.InsertIfAbsent(ctx, params, s.now())
		if err != nil {
			return err
		}

		conv, err = repo.FindByChatID(ctx, params.ExternalChatID)
		if err != nil {
			return err
		}
		if conv == nil {
			return fmt.Errorf("conversation %d vanished after insert", params.ExternalChatID)
		}

		if !created && profileChanged(conv, params) {
			if err := repo.UpdateProfile(ctx, conv.ExternalChatID, params.DisplayName, params.Username); err != nil {
				return err
			}
			conv.DisplayName = params.DisplayName
			conv.Username = params.Username
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.StorageUnavailable(fmt.Errorf("get or create conversation: %w", err))
	}

	if created {
		log.Info().
			Int64("chatId", conv.ExternalChatID).
			Str("displayName", conv.DisplayName).
			Msg("conversation created")
	}

	s.store(ctx, conv)
	return conv, nil
}

func profileChanged(conv *model.Conversation, params model.CreateConversationParams) bool {
	if params.DisplayName == "" {
		return false
	}
	return conv.DisplayName != params.DisplayName || conv.Username != params.Username
}

// FindByChat returns the mapping or a NOT_FOUND error.
func (s *ConversationService) FindByChat(ctx context.Context, chatID int64) (*model.Conversation, error) {
	if conv := s.cached(ctx, chatID); conv != nil {
		return conv, nil
	}

	conv, err := s.repo.FindByChatID(ctx, chatID)
	if err != nil {
		return nil, apperrors.StorageUnavailable(fmt.Errorf("find conversation by chat: %w", err))
	}
	if conv == nil {
		return nil, apperrors.NotFound("Conversation")
	}

	s.store(ctx, conv)
	return conv, nil
}

// FindByTopic resolves the conversation that owns a group topic.
func (s *ConversationService) FindByTopic(ctx context.Context, topicID int64) (*model.Conversation, error) {
	if topicID == 0 {
		return nil, apperrors.NotFound("Conversation")
	}

	if raw, ok, err := s.cache.Get(ctx, bfredis.TopicKey(topicID)); err == nil && ok {
		if chatID, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			if conv := s.cached(ctx, chatID); conv != nil && conv.GroupTopicID == topicID {
				return conv, nil
			}
		}
	}

	conv, err := s.repo.FindByTopicID(ctx, topicID)
	if err != nil {
		return nil, apperrors.StorageUnavailable(fmt.Errorf("find conversation by topic: %w", err))
	}
	if conv == nil {
		return nil, apperrors.NotFound("Conversation")
	}

	s.store(ctx, conv)
	return conv, nil
}

// UpdateLastSeen runs once per relayed message, so the cached copy is
// refreshed from the updated row instead of dropped.
func (s *ConversationService) UpdateLastSeen(ctx context.Context, chatID int64, at time.Time) error {
	n, err := s.repo.UpdateLastSeen(ctx, chatID, at.UTC())
	if err != nil {
		return apperrors.StorageUnavailable(fmt.Errorf("update last seen: %w", err))
	}
	if n == 0 {
		return nil
	}

	conv, err := s.repo.FindByChatID(ctx, chatID)
	if err != nil || conv == nil {
		s.invalidate(ctx, chatID)
		return nil
	}
	s.store(ctx, conv)
	return nil
}

func (s *ConversationService) SetBlocked(ctx context.Context, chatID int64, blocked bool) error {
	n, err := s.repo.SetBlocked(ctx, chatID, blocked)
	if err != nil {
		return apperrors.StorageUnavailable(fmt.Errorf("set blocked: %w", err))
	}
	if n == 0 {
		return apperrors.NotFound("Conversation")
	}
	s.invalidate(ctx, chatID)

	log.Info().
		Int64("chatId", chatID).
		Bool("blocked", blocked).
		Msg("conversation block state updated")

	return nil
}

func (s *ConversationService) AssignTopic(ctx context.Context, chatID, topicID int64) error {
	if _, err := s.repo.SetTopic(ctx, chatID, topicID); err != nil {
		return apperrors.StorageUnavailable(fmt.Errorf("assign topic: %w", err))
	}
	s.invalidate(ctx, chatID, topicID)

	log.Info().
		Int64("chatId", chatID).
		Int64("topicId", topicID).
		Msg("topic assigned")

	return nil
}

// ClearTopic forgets the topic of a conversation whose topic was deleted
// upstream. The next message from the user opens a fresh one.
func (s *ConversationService) ClearTopic(ctx context.Context, chatID int64) error {
	conv, err := s.repo.FindByChatID(ctx, chatID)
	if err != nil {
		return apperrors.StorageUnavailable(fmt.Errorf("clear topic: %w", err))
	}
	if conv == nil || !conv.HasTopic() {
		return nil
	}

	if _, err := s.repo.SetTopic(ctx, chatID, 0); err != nil {
		return apperrors.StorageUnavailable(fmt.Errorf("clear topic: %w", err))
	}
	s.invalidate(ctx, chatID, conv.GroupTopicID)

	log.Warn().
		Int64("chatId", chatID).
		Int64("topicId", conv.GroupTopicID).
		Msg("topic cleared")

	return nil
}

func (s *ConversationService) Stats(ctx context.Context) (*model.ConversationStats, error) {
	return s.repo.Stats(ctx)
}

func (s *ConversationService) cached(ctx context.Context, chatID int64) *model.Conversation {
	raw, ok, err := s.cache.Get(ctx, bfredis.ConversationKey(chatID))
	if err != nil {
		log.Debug().Err(err).Int64("chatId", chatID).Msg("conversation cache read failed")
		return nil
	}
	if !ok {
		return nil
	}

	var conv model.Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil
	}
	return &conv
}

func (s *ConversationService) store(ctx context.Context, conv *model.Conversation) {
	raw, err := json.Marshal(conv)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, bfredis.ConversationKey(conv.ExternalChatID), raw, s.cacheTTL); err != nil {
		log.Debug().Err(err).Int64("chatId", conv.ExternalChatID).Msg("conversation cache write failed")
	}
	if conv.HasTopic() {
		topic := []byte(strconv.FormatInt(conv.ExternalChatID, 10))
		_ = s.cache.Set(ctx, bfredis.TopicKey(conv.GroupTopicID), topic, s.cacheTTL)
	}
}

func (s *ConversationService) invalidate(ctx context.Context, chatID int64, topicIDs ...int64) {
	keys := []string{bfredis.ConversationKey(chatID)}
	for _, id := range topicIDs {
		if id != 0 {
			keys = append(keys, bfredis.TopicKey(id))
		}
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		log.Warn().Err(err).Int64("chatId", chatID).Msg("conversation cache invalidation failed")
	}
}
