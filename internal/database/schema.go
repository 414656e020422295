package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	apperrors "github.com/Jlypx/BetterForward-enhance/internal/errors"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		external_chat_id INTEGER PRIMARY KEY,
		group_topic_id   INTEGER NOT NULL DEFAULT 0,
		display_name     TEXT NOT NULL DEFAULT '',
		username         TEXT NOT NULL DEFAULT '',
		blocked          BOOLEAN NOT NULL DEFAULT 0,
		created_at       TIMESTAMP NOT NULL,
		last_message_at  TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS conversations_topic_idx
		ON conversations (group_topic_id) WHERE group_topic_id <> 0`,
	`CREATE TABLE IF NOT EXISTS message_links (
		external_chat_id INTEGER NOT NULL REFERENCES conversations (external_chat_id),
		user_message_id  INTEGER NOT NULL,
		group_message_id INTEGER NOT NULL,
		direction        TEXT NOT NULL,
		created_at       TIMESTAMP NOT NULL,
		PRIMARY KEY (external_chat_id, user_message_id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS message_links_group_idx
		ON message_links (group_message_id)`,
	`CREATE INDEX IF NOT EXISTS message_links_created_idx
		ON message_links (created_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		external_chat_id BIGINT PRIMARY KEY,
		group_topic_id   BIGINT NOT NULL DEFAULT 0,
		display_name     TEXT NOT NULL DEFAULT '',
		username         TEXT NOT NULL DEFAULT '',
		blocked          BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMPTZ NOT NULL,
		last_message_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS conversations_topic_idx
		ON conversations (group_topic_id) WHERE group_topic_id <> 0`,
	`CREATE TABLE IF NOT EXISTS message_links (
		external_chat_id BIGINT NOT NULL REFERENCES conversations (external_chat_id),
		user_message_id  BIGINT NOT NULL,
		group_message_id BIGINT NOT NULL,
		direction        TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (external_chat_id, user_message_id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS message_links_group_idx
		ON message_links (group_message_id)`,
	`CREATE INDEX IF NOT EXISTS message_links_created_idx
		ON message_links (created_at)`,
}

// Migrate creates the tables if they are missing. It is safe to run on every start.
func (db *DB) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if db.IsSQLite() {
		stmts = sqliteSchema
	}

	err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("schema statement %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.StorageUnavailable(err)
	}

	log.Info().Str("driver", db.DriverName()).Int("statements", len(stmts)).Msg("schema migrated")
	return nil
}
