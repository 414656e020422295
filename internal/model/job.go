package model

import (
	"fmt"
	"time"
)

// Event is a classified update. Exactly one of the kind-specific fields is
// relevant for a given Kind.
type Event struct {
	Kind     EventKind
	UpdateID int64
	// ChatID is the external chat for ToGroup events and the staff group otherwise.
	ChatID  int64
	TopicID int64
	User    *User
	Message *Message
	Edited  bool
	Command *Command
	// MemberStatus is set for my_chat_member actions.
	MemberStatus string
}

type Command struct {
	Name string
	Args []string
}

// Job is one relay operation. It references messages by id, so the payload
// stays small and the transport copies the content itself.
type Job struct {
	ID            string
	Direction     Direction
	Kind          EventKind
	SourceEventID int64
	Key           string
	Event         Event
	EnqueuedAt    time.Time
	// Attempt is 1 on the first try and grows with each retry.
	Attempt int
}

// FirstAttempt reports whether per-job side effects such as flood
// accounting still have to happen.
func (j Job) FirstAttempt() bool {
	return j.Attempt <= 1
}

// Outcome is the single terminal result recorded for a job.
type Outcome struct {
	JobID     string
	Key       string
	Status    OutcomeStatus
	Attempts  int
	LastError string
	Duration  time.Duration
}

func ChatKey(chatID int64) string {
	return fmt.Sprintf("chat:%d", chatID)
}

func TopicKey(topicID int64) string {
	return fmt.Sprintf("topic:%d", topicID)
}
