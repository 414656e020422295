package model

import "time"

// MessageLink pairs a message in the user's private chat with its
// counterpart in the group topic. Direction records which side was copied.
type MessageLink struct {
	ExternalChatID int64     `db:"external_chat_id" json:"externalChatId"`
	UserMessageID  int64     `db:"user_message_id" json:"userMessageId"`
	GroupMessageID int64     `db:"group_message_id" json:"groupMessageId"`
	Direction      Direction `db:"direction" json:"direction"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}
