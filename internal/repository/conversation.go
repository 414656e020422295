package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Jlypx/BetterForward-enhance/internal/database"
	"github.com/Jlypx/BetterForward-enhance/internal/model"
)

type ConversationRepository interface {
	FindByChatID(ctx context.Context, chatID int64) (*model.Conversation, error)
	FindByTopicID(ctx context.Context, topicID int64) (*model.Conversation, error)
	// InsertIfAbsent reports whether a new row was written.
	InsertIfAbsent(ctx context.Context, params model.CreateConversationParams, now time.Time) (bool, error)
	UpdateProfile(ctx context.Context, chatID int64, displayName, username string) error
	UpdateLastSeen(ctx context.Context, chatID int64, at time.Time) (int64, error)
	SetBlocked(ctx context.Context, chatID int64, blocked bool) (int64, error)
	SetTopic(ctx context.Context, chatID, topicID int64) (int64, error)
	Stats(ctx context.Context) (*model.ConversationStats, error)

	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ConversationRepository
}

type conversationRepo struct {
	db database.DBTX
}

func NewConversationRepository(db *sqlx.DB) ConversationRepository {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) WithTx(tx *sqlx.Tx) ConversationRepository {
	return &conversationRepo{db: tx}
}

func (r *conversationRepo) FindByChatID(ctx context.Context, chatID int64) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, r.db.Rebind(`
		SELECT * FROM conversations WHERE external_chat_id = ?
	`), chatID)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) FindByTopicID(ctx context.Context, topicID int64) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, r.db.Rebind(`
		SELECT * FROM conversations WHERE group_topic_id = ? AND group_topic_id <> 0
	`), topicID)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) InsertIfAbsent(ctx context.Context, params model.CreateConversationParams, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO conversations
			(external_chat_id, group_topic_id, display_name, username, blocked, created_at, last_message_at)
		VALUES (?, 0, ?, ?, ?, ?, ?)
		ON CONFLICT (external_chat_id) DO NOTHING
	`), params.ExternalChatID, params.DisplayName, params.Username, false, now, now)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *conversationRepo) UpdateProfile(ctx context.Context, chatID int64, displayName, username string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE conversations SET
			display_name = ?,
			username = ?
		WHERE external_chat_id = ?
	`), displayName, username, chatID)
	return err
}

func (r *conversationRepo) UpdateLastSeen(ctx context.Context, chatID int64, at time.Time) (int64, error) {
	return r.exec(ctx, `
		UPDATE conversations SET last_message_at = ? WHERE external_chat_id = ?
	`, at, chatID)
}

func (r *conversationRepo) SetBlocked(ctx context.Context, chatID int64, blocked bool) (int64, error) {
	return r.exec(ctx, `
		UPDATE conversations SET blocked = ? WHERE external_chat_id = ?
	`, blocked, chatID)
}

// SetTopic assigns a topic, or clears it when topicID is zero.
func (r *conversationRepo) SetTopic(ctx context.Context, chatID, topicID int64) (int64, error) {
	return r.exec(ctx, `
		UPDATE conversations SET group_topic_id = ? WHERE external_chat_id = ?
	`, topicID, chatID)
}

func (r *conversationRepo) Stats(ctx context.Context) (*model.ConversationStats, error) {
	var stats model.ConversationStats
	err := r.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN blocked THEN 1 ELSE 0 END), 0) AS blocked,
			COALESCE(SUM(CASE WHEN group_topic_id <> 0 THEN 1 ELSE 0 END), 0) AS with_topic
		FROM conversations
	`)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *conversationRepo) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
