package model

import (
	"time"
)

// Conversation maps one external private chat to its topic in the staff group.
// ExternalChatID never changes once the row exists; rows are never deleted.
type Conversation struct {
	ExternalChatID int64     `db:"external_chat_id" json:"externalChatId"`
	GroupTopicID   int64     `db:"group_topic_id" json:"groupTopicId"`
	DisplayName    string    `db:"display_name" json:"displayName"`
	Username       string    `db:"username" json:"username,omitempty"`
	Blocked        bool      `db:"blocked" json:"blocked"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	LastMessageAt  time.Time `db:"last_message_at" json:"lastMessageAt"`
}

// HasTopic reports whether a group topic is currently assigned.
func (c *Conversation) HasTopic() bool {
	return c.GroupTopicID != 0
}

type CreateConversationParams struct {
	ExternalChatID int64
	DisplayName    string
	Username       string
}

// ConversationStats feeds the gauges exported on /metrics.
type ConversationStats struct {
	Total     int64 `db:"total"`
	Blocked   int64 `db:"blocked"`
	WithTopic int64 `db:"with_topic"`
}
