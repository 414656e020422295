// Package relay moves messages between external private chats and their
// topics in the staff group.
package relay

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/Jlypx/BetterForward-enhance/internal/audit"
	apperrors "github.com/Jlypx/BetterForward-enhance/internal/errors"
	"github.com/Jlypx/BetterForward-enhance/internal/i18n"
	"github.com/Jlypx/BetterForward-enhance/internal/metrics"
	"github.com/Jlypx/BetterForward-enhance/internal/model"
)

// maxTopicNameLen is the bot API limit for forum topic names, in characters.
const maxTopicNameLen = 128

// MappingStore is the conversation mapping as the relay uses it.
type MappingStore interface {
	GetOrCreate(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error)
	FindByChat(ctx context.Context, chatID int64) (*model.Conversation, error)
	FindByTopic(ctx context.Context, topicID int64) (*model.Conversation, error)
	UpdateLastSeen(ctx context.Context, chatID int64, at time.Time) error
	SetBlocked(ctx context.Context, chatID int64, blocked bool) error
	AssignTopic(ctx context.Context, chatID, topicID int64) error
	ClearTopic(ctx context.Context, chatID int64) error
}

// LinkStore remembers which copy belongs to which original message.
type LinkStore interface {
	Link(ctx context.Context, link model.MessageLink) error
	GroupMessageFor(ctx context.Context, chatID, userMessageID int64) (int64, error)
	UserMessageFor(ctx context.Context, chatID, groupMessageID int64) (int64, error)
}

type FloodLimiter interface {
	Allow(ctx context.Context, chatID int64) bool
}

type Options struct {
	GroupID int64
	// StartMessage overrides the catalog welcome text when set.
	StartMessage string
	// Limiter is optional; nil disables flood limiting.
	Limiter FloodLimiter
}

// Relay performs a single delivery attempt per call. Retrying is the
// supervisor's job, so every step here must be safe to repeat.
type Relay struct {
	groupID      int64
	transport    Transport
	store        MappingStore
	links        LinkStore
	limiter      FloodLimiter
	catalog      *i18n.Catalog
	startMessage string
	now          func() time.Time
}

func New(transport Transport, store MappingStore, links LinkStore, catalog *i18n.Catalog, opts Options) *Relay {
	return &Relay{
		groupID:      opts.GroupID,
		transport:    transport,
		store:        store,
		links:        links,
		limiter:      opts.Limiter,
		catalog:      catalog,
		startMessage: opts.StartMessage,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (r *Relay) Deliver(ctx context.Context, job model.Job) error {
	ev := job.Event
	switch job.Kind {
	case model.EventExternalMessage:
		return r.deliverToGroup(ctx, ev, job.FirstAttempt())
	case model.EventGroupReply:
		return r.deliverToUser(ctx, ev)
	case model.EventGroupCommand:
		return r.runCommand(ctx, ev)
	case model.EventExternalAction:
		return r.handleAction(ctx, ev)
	default:
		return apperrors.ProtocolError(fmt.Sprintf("unknown job kind %q", job.Kind))
	}
}

// deliverToGroup charges the flood limiter on the first attempt only, so a
// retry never turns into a rate-limit drop.
func (r *Relay) deliverToGroup(ctx context.Context, ev model.Event, firstAttempt bool) error {
	msg := ev.Message
	conv, err := r.store.GetOrCreate(ctx, conversationParams(ev))
	if err != nil {
		return err
	}
	if conv.Blocked {
		return apperrors.DeliveryRejected("conversation is blocked")
	}
	if ev.Edited {
		return r.editCopy(ctx, r.groupID, msg, func() (int64, error) {
			return r.links.GroupMessageFor(ctx, conv.ExternalChatID, msg.ID)
		})
	}
	if firstAttempt && r.limiter != nil && !r.limiter.Allow(ctx, conv.ExternalChatID) {
		return apperrors.RateLimitExceeded()
	}

	topicID := conv.GroupTopicID
	if topicID == 0 {
		if topicID, err = r.openTopic(ctx, conv); err != nil {
			return err
		}
	}

	var replyTo int64
	if msg.ReplyToID != 0 {
		if replyTo, err = r.links.GroupMessageFor(ctx, conv.ExternalChatID, msg.ReplyToID); err != nil {
			log.Warn().Err(err).Int64("chatId", conv.ExternalChatID).Msg("reply target lookup failed")
		}
	}

	copied, err := r.transport.CopyMessage(ctx, CopyRequest{
		ToChatID:   r.groupID,
		ThreadID:   topicID,
		FromChatID: conv.ExternalChatID,
		MessageID:  msg.ID,
		ReplyToID:  replyTo,
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCodeTopicNotFound) {
			if cerr := r.store.ClearTopic(ctx, conv.ExternalChatID); cerr != nil {
				return cerr
			}
			return apperrors.TransientTransport("copyMessage", err)
		}
		return err
	}

	r.link(ctx, model.MessageLink{
		ExternalChatID: conv.ExternalChatID,
		UserMessageID:  msg.ID,
		GroupMessageID: copied,
		Direction:      model.DirectionToGroup,
	})
	if err := r.store.UpdateLastSeen(ctx, conv.ExternalChatID, r.now()); err != nil {
		log.Warn().Err(err).Int64("chatId", conv.ExternalChatID).Msg("failed to update last seen")
	}
	return nil
}

func (r *Relay) openTopic(ctx context.Context, conv *model.Conversation) (int64, error) {
	topicID, err := r.transport.CreateTopic(ctx, r.groupID, topicName(conv.DisplayName, conv.ExternalChatID))
	if err != nil {
		return 0, err
	}
	if err := r.store.AssignTopic(ctx, conv.ExternalChatID, topicID); err != nil {
		log.Error().
			Err(err).
			Int64("topicId", topicID).
			Int64("chatId", conv.ExternalChatID).
			Msg("closing unassigned topic")
		if cerr := r.transport.CloseTopic(ctx, r.groupID, topicID); cerr != nil {
			log.Warn().Err(cerr).Int64("topicId", topicID).Msg("failed to close unassigned topic")
		}
		return 0, err
	}
	metrics.IncTopicCreated()
	audit.Log(ctx, audit.Event{
		Type:    audit.EventTopicCreated,
		ChatID:  conv.ExternalChatID,
		TopicID: topicID,
	})

	card := r.catalog.Format(i18n.KeyInfoCard, i18n.Data{
		"Name":     conv.DisplayName,
		"ChatID":   conv.ExternalChatID,
		"Username": usernameOrDash(conv.Username),
	})
	cardID, err := r.transport.SendText(ctx, TextRequest{ChatID: r.groupID, ThreadID: topicID, Text: card})
	if err != nil {
		log.Warn().Err(err).Int64("topicId", topicID).Msg("failed to post info card")
		return topicID, nil
	}
	if err := r.transport.PinMessage(ctx, r.groupID, cardID); err != nil {
		log.Warn().Err(err).Int64("topicId", topicID).Msg("failed to pin info card")
	}
	return topicID, nil
}

func (r *Relay) deliverToUser(ctx context.Context, ev model.Event) error {
	msg := ev.Message
	conv, err := r.store.FindByTopic(ctx, ev.TopicID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCodeNotFound) {
			r.closeOrphanTopic(ctx, ev.TopicID)
		}
		return err
	}
	if conv.Blocked {
		return apperrors.DeliveryRejected("conversation is blocked")
	}
	if ev.Edited {
		return r.editCopy(ctx, conv.ExternalChatID, msg, func() (int64, error) {
			return r.links.UserMessageFor(ctx, conv.ExternalChatID, msg.ID)
		})
	}

	var replyTo int64
	if msg.ReplyToID != 0 {
		if replyTo, err = r.links.UserMessageFor(ctx, conv.ExternalChatID, msg.ReplyToID); err != nil {
			log.Warn().Err(err).Int64("topicId", ev.TopicID).Msg("reply target lookup failed")
		}
	}

	copied, err := r.transport.CopyMessage(ctx, CopyRequest{
		ToChatID:   conv.ExternalChatID,
		FromChatID: r.groupID,
		MessageID:  msg.ID,
		ReplyToID:  replyTo,
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCodePermanentTransport) {
			r.notifyTopic(ctx, ev.TopicID, msg.ID, r.catalog.Format(i18n.KeyDeliveryFailed, i18n.Data{"Reason": reason(err)}))
		}
		return err
	}

	r.link(ctx, model.MessageLink{
		ExternalChatID: conv.ExternalChatID,
		UserMessageID:  copied,
		GroupMessageID: msg.ID,
		Direction:      model.DirectionToUser,
	})
	return nil
}

// editCopy mirrors an edit onto the copy found by lookup.
func (r *Relay) editCopy(ctx context.Context, chatID int64, msg *model.Message, lookup func() (int64, error)) error {
	target, err := lookup()
	if err != nil {
		return err
	}
	if target == 0 {
		return apperrors.NotFound("Message link")
	}

	switch {
	case msg.Text != "":
		return r.transport.EditText(ctx, chatID, target, msg.Text)
	case msg.Caption != "":
		return r.transport.EditCaption(ctx, chatID, target, msg.Caption)
	default:
		return apperrors.Ignored("edit without text or caption")
	}
}

func (r *Relay) runCommand(ctx context.Context, ev model.Event) error {
	conv, err := r.store.FindByTopic(ctx, ev.TopicID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCodeNotFound) {
			r.closeOrphanTopic(ctx, ev.TopicID)
		}
		return err
	}

	var actorID int64
	if ev.User != nil {
		actorID = ev.User.ID
	}
	entry := audit.Event{ActorID: actorID, ChatID: conv.ExternalChatID, TopicID: ev.TopicID}

	var text string
	switch ev.Command.Name {
	case CommandBan, CommandUnban:
		blocked := ev.Command.Name == CommandBan
		if err := r.store.SetBlocked(ctx, conv.ExternalChatID, blocked); err != nil {
			return err
		}
		entry.Type, text = audit.EventUnban, r.catalog.T(i18n.KeyUnbanned)
		if blocked {
			entry.Type, text = audit.EventBan, r.catalog.T(i18n.KeyBanned)
		}
	case CommandStatus:
		entry.Type = audit.EventStatusQuery
		text = r.catalog.Format(i18n.KeyStatus, i18n.Data{
			"ChatID":        conv.ExternalChatID,
			"Name":          conv.DisplayName,
			"Username":      usernameOrDash(conv.Username),
			"Blocked":       conv.Blocked,
			"CreatedAt":     conv.CreatedAt.Format(time.RFC3339),
			"LastMessageAt": conv.LastMessageAt.Format(time.RFC3339),
		})
	default:
		return apperrors.ProtocolError(fmt.Sprintf("unknown command %q", ev.Command.Name))
	}
	audit.Log(ctx, entry)

	_, err = r.transport.SendText(ctx, TextRequest{
		ChatID:    r.groupID,
		ThreadID:  ev.TopicID,
		Text:      text,
		ReplyToID: ev.Message.ID,
	})
	return err
}

func (r *Relay) handleAction(ctx context.Context, ev model.Event) error {
	if isStartCommand(ev.Command) {
		conv, err := r.store.GetOrCreate(ctx, conversationParams(ev))
		if err != nil {
			return err
		}
		if conv.Blocked {
			return apperrors.DeliveryRejected("conversation is blocked")
		}
		text := r.startMessage
		if text == "" {
			text = r.catalog.T(i18n.KeyStart)
		}
		_, err = r.transport.SendText(ctx, TextRequest{ChatID: conv.ExternalChatID, Text: text})
		return err
	}

	var key i18n.Key
	switch ev.MemberStatus {
	case model.MemberStatusKicked:
		key = i18n.KeyUserLeft
	case model.MemberStatusMember:
		key = i18n.KeyUserReturned
	case "":
		return apperrors.ProtocolError("action without command or member status")
	default:
		return apperrors.Ignored(fmt.Sprintf("member status %q", ev.MemberStatus))
	}

	conv, err := r.store.FindByChat(ctx, ev.ChatID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCodeNotFound) {
			return apperrors.Ignored("member update from unknown chat")
		}
		return err
	}
	if !conv.HasTopic() {
		return nil
	}
	if key == i18n.KeyUserLeft {
		audit.Log(ctx, audit.Event{Type: audit.EventUserLeft, ChatID: conv.ExternalChatID, TopicID: conv.GroupTopicID})
	}

	_, err = r.transport.SendText(ctx, TextRequest{ChatID: r.groupID, ThreadID: conv.GroupTopicID, Text: r.catalog.T(key)})
	if apperrors.Is(err, apperrors.ErrCodeTopicNotFound) {
		return r.store.ClearTopic(ctx, conv.ExternalChatID)
	}
	return err
}

// closeOrphanTopic tells staff a topic has no user behind it and closes it.
func (r *Relay) closeOrphanTopic(ctx context.Context, topicID int64) {
	r.notifyTopic(ctx, topicID, 0, r.catalog.T(i18n.KeyChatNotFound))
	if err := r.transport.CloseTopic(ctx, r.groupID, topicID); err != nil {
		log.Warn().Err(err).Int64("topicId", topicID).Msg("failed to close orphan topic")
		return
	}
	audit.Log(ctx, audit.Event{Type: audit.EventTopicClosed, TopicID: topicID})
}

func (r *Relay) notifyTopic(ctx context.Context, topicID, replyTo int64, text string) {
	_, err := r.transport.SendText(ctx, TextRequest{
		ChatID:    r.groupID,
		ThreadID:  topicID,
		Text:      text,
		ReplyToID: replyTo,
	})
	if err != nil {
		log.Warn().Err(err).Int64("topicId", topicID).Msg("failed to post notice")
	}
}

// link logs failures instead of returning them; the copy already went out.
func (r *Relay) link(ctx context.Context, link model.MessageLink) {
	if err := r.links.Link(ctx, link); err != nil {
		log.Warn().
			Err(err).
			Int64("chatId", link.ExternalChatID).
			Str("direction", string(link.Direction)).
			Msg("failed to save message link")
	}
}

func conversationParams(ev model.Event) model.CreateConversationParams {
	params := model.CreateConversationParams{ExternalChatID: ev.ChatID}
	if ev.User != nil {
		params.DisplayName = ev.User.DisplayName()
		params.Username = ev.User.Username
	}
	return params
}

// topicName keeps the chat id intact and shortens the display name instead.
func topicName(displayName string, chatID int64) string {
	suffix := fmt.Sprintf(" | %d", chatID)
	name := strings.TrimSpace(displayName)
	if name == "" {
		return strings.TrimPrefix(suffix, " | ")
	}
	if room := maxTopicNameLen - utf8.RuneCountInString(suffix); utf8.RuneCountInString(name) > room {
		name = string([]rune(name)[:room])
	}
	return name + suffix
}

func usernameOrDash(username string) string {
	if username == "" {
		return "-"
	}
	return "@" + username
}

// reason prefers the upstream description over our own wrapping.
func reason(err error) string {
	if appErr, ok := apperrors.AsAppError(err); ok {
		if cause := appErr.Unwrap(); cause != nil {
			return cause.Error()
		}
		return appErr.Message
	}
	return err.Error()
}
