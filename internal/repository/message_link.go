package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/Jlypx/BetterForward-enhance/internal/database"
	"github.com/Jlypx/BetterForward-enhance/internal/model"
)

var linkColumns = []string{
	"external_chat_id", "user_message_id", "group_message_id", "direction", "created_at",
}

type MessageLinkRepository interface {
	Save(ctx context.Context, link model.MessageLink) error
	FindByUserMessage(ctx context.Context, chatID, userMessageID int64) (*model.MessageLink, error)
	FindByGroupMessage(ctx context.Context, groupMessageID int64) (*model.MessageLink, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountByDirection(ctx context.Context) (map[model.Direction]int64, error)
}

type messageLinkRepo struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

func NewMessageLinkRepository(db *sqlx.DB) MessageLinkRepository {
	var format sq.PlaceholderFormat = sq.Question
	if db.DriverName() == database.DriverPostgres {
		format = sq.Dollar
	}
	return &messageLinkRepo{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// Save records a link. Re-saving the same user message replaces the group side,
// which happens when a copy is retried after a partial failure.
func (r *messageLinkRepo) Save(ctx context.Context, link model.MessageLink) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	query, args, err := r.sb.
		Insert("message_links").
		Columns(linkColumns...).
		Values(link.ExternalChatID, link.UserMessageID, link.GroupMessageID, link.Direction, link.CreatedAt).
		Suffix(`ON CONFLICT (external_chat_id, user_message_id) DO UPDATE SET
			group_message_id = EXCLUDED.group_message_id,
			direction = EXCLUDED.direction`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build save link sql: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *messageLinkRepo) FindByUserMessage(ctx context.Context, chatID, userMessageID int64) (*model.MessageLink, error) {
	return r.findOne(ctx, sq.Eq{"external_chat_id": chatID, "user_message_id": userMessageID})
}

func (r *messageLinkRepo) FindByGroupMessage(ctx context.Context, groupMessageID int64) (*model.MessageLink, error) {
	return r.findOne(ctx, sq.Eq{"group_message_id": groupMessageID})
}

func (r *messageLinkRepo) findOne(ctx context.Context, where sq.Eq) (*model.MessageLink, error) {
	query, args, err := r.sb.
		Select(linkColumns...).
		From("message_links").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find link sql: %w", err)
	}

	var link model.MessageLink
	err = r.db.GetContext(ctx, &link, query, args...)
	return HandleNotFound(&link, err)
}

func (r *messageLinkRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := r.sb.
		Delete("message_links").
		Where(sq.Lt{"created_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build prune links sql: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *messageLinkRepo) CountByDirection(ctx context.Context) (map[model.Direction]int64, error) {
	query, args, err := r.sb.
		Select("direction", "COUNT(*) AS n").
		From("message_links").
		GroupBy("direction").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count links sql: %w", err)
	}

	var rows []struct {
		Direction model.Direction `db:"direction"`
		N         int64           `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	counts := make(map[model.Direction]int64, len(rows))
	for _, row := range rows {
		counts[row.Direction] = row.N
	}
	return counts, nil
}
