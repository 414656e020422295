package relay

import "context"

// Transport is the subset of the bot API the relay needs. Implementations
// return AppErrors classified as transient or permanent so the supervisor can
// decide whether to retry.
type Transport interface {
	CreateTopic(ctx context.Context, groupID int64, name string) (int64, error)
	CopyMessage(ctx context.Context, req CopyRequest) (int64, error)
	SendText(ctx context.Context, req TextRequest) (int64, error)
	PinMessage(ctx context.Context, chatID, messageID int64) error
	CloseTopic(ctx context.Context, groupID, topicID int64) error
	EditText(ctx context.Context, chatID, messageID int64, text string) error
	EditCaption(ctx context.Context, chatID, messageID int64, caption string) error
}

// CopyRequest copies FromChatID/MessageID into ToChatID. ThreadID and
// ReplyToID are optional.
type CopyRequest struct {
	ToChatID   int64
	ThreadID   int64
	FromChatID int64
	MessageID  int64
	ReplyToID  int64
}

type TextRequest struct {
	ChatID    int64
	ThreadID  int64
	Text      string
	ReplyToID int64
}
