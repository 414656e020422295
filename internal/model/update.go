package model

import (
	"strconv"
	"strings"
)

// Update is the transport-neutral form of one upstream event. The telegram
// package builds these; nothing past the dispatcher sees bot API types.
type Update struct {
	ID           int64
	Message      *Message
	Edited       bool
	MemberChange *MemberChange
}

type Chat struct {
	ID   int64
	Type string
}

type User struct {
	ID        int64
	IsBot     bool
	FirstName string
	LastName  string
	Username  string
}

// DisplayName falls back from full name to username to the numeric id.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return strconv.FormatInt(u.ID, 10)
}

type Message struct {
	ID             int64
	Chat           Chat
	From           *User
	ThreadID       int64
	IsTopicMessage bool
	// ReplyToID is zero when the message is not an explicit reply.
	ReplyToID int64
	Text      string
	Caption   string
	// IsService marks topic bookkeeping and membership notices.
	IsService bool
}

// Body returns the text or caption, whichever is present.
func (m *Message) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

type MemberChange struct {
	Chat   Chat
	From   User
	Status string
}
