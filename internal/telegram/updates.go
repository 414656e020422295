package telegram

import (
	"context"

	"github.com/mymmrac/telego"
	"github.com/rs/zerolog/log"

	"github.com/Jlypx/BetterForward-enhance/internal/model"
)

var allowedUpdates = []string{"message", "edited_message", "my_chat_member"}

// Poll starts long polling and returns the converted update stream. The
// channel is closed once ctx is cancelled.
func (c *Client) Poll(ctx context.Context, timeoutSeconds, buffer int) (<-chan model.Update, error) {
	// getUpdates is refused while a webhook is registered.
	if err := c.DeleteWebhook(ctx); err != nil {
		return nil, err
	}

	raw, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        timeoutSeconds,
		AllowedUpdates: allowedUpdates,
	})
	if err != nil {
		return nil, classify("getUpdates", 0, err)
	}

	out := make(chan model.Update, buffer)
	go func() {
		defer close(out)
		for u := range raw {
			converted, ok := Convert(u)
			if !ok {
				log.Debug().Int("updateId", u.UpdateID).Msg("skipping unsupported update")
				continue
			}
			select {
			case out <- converted:
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info().Int("timeoutSeconds", timeoutSeconds).Msg("long polling started")
	return out, nil
}

// Convert maps a bot API update onto model.Update. It reports false for
// update types the relay does not handle.
func Convert(u telego.Update) (model.Update, bool) {
	out := model.Update{ID: int64(u.UpdateID)}

	switch {
	case u.Message != nil:
		out.Message = convertMessage(u.Message)
	case u.EditedMessage != nil:
		out.Message = convertMessage(u.EditedMessage)
		out.Edited = true
	case u.MyChatMember != nil:
		mc := u.MyChatMember
		out.MemberChange = &model.MemberChange{
			Chat:   convertChat(mc.Chat),
			From:   convertUser(mc.From),
			Status: memberStatus(mc.NewChatMember),
		}
	default:
		return out, false
	}
	return out, true
}

func convertMessage(m *telego.Message) *model.Message {
	msg := &model.Message{
		ID:             int64(m.MessageID),
		Chat:           convertChat(m.Chat),
		ThreadID:       int64(m.MessageThreadID),
		IsTopicMessage: m.IsTopicMessage,
		Text:           m.Text,
		Caption:        m.Caption,
		IsService:      isService(m),
	}
	if m.From != nil {
		from := convertUser(*m.From)
		msg.From = &from
	}
	// Inside a topic every message replies to the topic's opening message;
	// only explicit replies are kept.
	if r := m.ReplyToMessage; r != nil && !(m.IsTopicMessage && r.MessageID == m.MessageThreadID) {
		msg.ReplyToID = int64(r.MessageID)
	}
	return msg
}

func convertChat(c telego.Chat) model.Chat {
	return model.Chat{ID: c.ID, Type: c.Type}
}

func convertUser(u telego.User) model.User {
	return model.User{
		ID:        u.ID,
		IsBot:     u.IsBot,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
	}
}

func memberStatus(m telego.ChatMember) string {
	if m == nil {
		return ""
	}
	return m.MemberStatus()
}

func isService(m *telego.Message) bool {
	return m.ForumTopicCreated != nil ||
		m.ForumTopicEdited != nil ||
		m.ForumTopicClosed != nil ||
		m.ForumTopicReopened != nil ||
		len(m.NewChatMembers) > 0 ||
		m.LeftChatMember != nil ||
		m.PinnedMessage != nil ||
		m.NewChatTitle != ""
}
