package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/Jlypx/BetterForward-enhance/internal/errors"
	"github.com/Jlypx/BetterForward-enhance/internal/metrics"
	"github.com/Jlypx/BetterForward-enhance/internal/model"
)

// Submitter accepts jobs without blocking.
type Submitter interface {
	Submit(job model.Job) error
}

// Dispatcher turns updates into relay jobs. It never touches the mapping
// store; resolving conversations is left to the relay.
type Dispatcher struct {
	groupID int64
	selfID  int64
	pool    Submitter
	now     func() time.Time
}

type DispatcherOption func(*Dispatcher)

// WithSelfID drops group messages sent by the relay's own bot account.
// Other bots, including the anonymous admin bot, are relayed.
func WithSelfID(botID int64) DispatcherOption {
	return func(d *Dispatcher) { d.selfID = botID }
}

func NewDispatcher(groupID int64, pool Submitter, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		groupID: groupID,
		pool:    pool,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Classify maps an update onto an event. Updates the relay has nothing to do
// with come back as IGNORED; malformed ones as PROTOCOL_ERROR.
func (d *Dispatcher) Classify(u model.Update) (model.Event, error) {
	if u.MemberChange != nil {
		return d.classifyMemberChange(u)
	}

	msg := u.Message
	if msg == nil {
		return model.Event{}, apperrors.ProtocolError("update carries no message")
	}
	if msg.Chat.ID == 0 {
		return model.Event{}, apperrors.ProtocolError("message has no chat")
	}

	if msg.Chat.ID == d.groupID {
		return d.classifyGroupMessage(u)
	}

	if msg.Chat.Type != model.ChatTypePrivate {
		return model.Event{}, apperrors.ProtocolError(fmt.Sprintf("message from unmanaged %s chat %d", msg.Chat.Type, msg.Chat.ID))
	}
	if msg.From == nil {
		return model.Event{}, apperrors.ProtocolError("private message has no sender")
	}
	if msg.IsService {
		return model.Event{}, apperrors.Ignored("service message")
	}

	ev := model.Event{
		Kind:     model.EventExternalMessage,
		UpdateID: u.ID,
		ChatID:   msg.Chat.ID,
		User:     msg.From,
		Message:  msg,
		Edited:   u.Edited,
	}
	if cmd := ParseCommand(msg.Text); !u.Edited && isStartCommand(cmd) {
		ev.Kind = model.EventExternalAction
		ev.Command = cmd
	}
	return ev, nil
}

func (d *Dispatcher) classifyGroupMessage(u model.Update) (model.Event, error) {
	msg := u.Message
	switch {
	case msg.IsService:
		return model.Event{}, apperrors.Ignored("service message")
	case msg.From == nil:
		return model.Event{}, apperrors.Ignored("message has no sender")
	case d.selfID != 0 && msg.From.ID == d.selfID:
		return model.Event{}, apperrors.Ignored("message from this bot")
	case !msg.IsTopicMessage || msg.ThreadID == 0:
		return model.Event{}, apperrors.Ignored("message in the general topic")
	}

	ev := model.Event{
		Kind:     model.EventGroupReply,
		UpdateID: u.ID,
		ChatID:   d.groupID,
		TopicID:  msg.ThreadID,
		User:     msg.From,
		Message:  msg,
		Edited:   u.Edited,
	}
	if cmd := ParseCommand(msg.Text); !u.Edited && isGroupCommand(cmd) {
		ev.Kind = model.EventGroupCommand
		ev.Command = cmd
	}
	return ev, nil
}

func (d *Dispatcher) classifyMemberChange(u model.Update) (model.Event, error) {
	mc := u.MemberChange
	switch {
	case mc.Chat.ID == 0:
		return model.Event{}, apperrors.ProtocolError("member update has no chat")
	case mc.Chat.ID == d.groupID:
		return model.Event{}, apperrors.Ignored("member update in the staff group")
	case mc.Chat.Type != model.ChatTypePrivate:
		return model.Event{}, apperrors.Ignored("member update in a foreign group")
	}

	from := mc.From
	return model.Event{
		Kind:         model.EventExternalAction,
		UpdateID:     u.ID,
		ChatID:       mc.Chat.ID,
		User:         &from,
		MemberStatus: mc.Status,
	}, nil
}

// Dispatch classifies one update and hands the resulting job to the pool.
func (d *Dispatcher) Dispatch(ctx context.Context, u model.Update) error {
	ev, err := d.Classify(u)
	if err != nil {
		logger := log.Warn()
		kind := "malformed"
		if apperrors.Is(err, apperrors.ErrCodeIgnored) {
			logger = log.Debug()
			kind = "ignored"
		}
		metrics.IncUpdate(kind)
		logger.Err(err).Int64("updateId", u.ID).Msg("update not relayed")
		return err
	}
	metrics.IncUpdate(string(ev.Kind))

	direction := ev.Kind.Direction()
	key := model.ChatKey(ev.ChatID)
	if direction == model.DirectionToUser {
		key = model.TopicKey(ev.TopicID)
	}

	job := model.Job{
		ID:            uuid.NewString(),
		Direction:     direction,
		Kind:          ev.Kind,
		SourceEventID: u.ID,
		Key:           key,
		Event:         ev,
		EnqueuedAt:    d.now(),
	}
	if err := d.pool.Submit(job); err != nil {
		log.Warn().
			Err(err).
			Str("jobId", job.ID).
			Str("key", key).
			Int64("updateId", u.ID).
			Msg("job rejected")
		return err
	}

	log.Debug().
		Str("jobId", job.ID).
		Str("key", key).
		Str("kind", string(job.Kind)).
		Int64("updateId", u.ID).
		Msg("job submitted")
	return nil
}

// Run consumes updates until the channel closes or ctx is cancelled. It is
// the single consumer of the update stream, so submission order per key
// matches arrival order. On cancellation the updates already buffered are
// still dispatched.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan model.Update) error {
	for {
		select {
		case <-ctx.Done():
			d.Drain(updates)
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			_ = d.Dispatch(ctx, u)
		}
	}
}

// Drain dispatches whatever is buffered in updates without waiting for more
// and returns how many updates it took.
func (d *Dispatcher) Drain(updates <-chan model.Update) int {
	n := 0
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return n
			}
			n++
			_ = d.Dispatch(context.Background(), u)
		default:
			if n > 0 {
				log.Info().Int("updates", n).Msg("dispatched buffered updates")
			}
			return n
		}
	}
}
