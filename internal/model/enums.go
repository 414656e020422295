package model

type Direction string

const (
	DirectionToGroup Direction = "to_group"
	DirectionToUser  Direction = "to_user"
)

type EventKind string

const (
	EventGroupReply      EventKind = "group_reply"
	EventGroupCommand    EventKind = "group_command"
	EventExternalMessage EventKind = "external_message"
	EventExternalAction  EventKind = "external_action"
)

// Direction returns the relay direction implied by the event origin.
func (k EventKind) Direction() Direction {
	switch k {
	case EventGroupReply, EventGroupCommand:
		return DirectionToUser
	default:
		return DirectionToGroup
	}
}

type OutcomeStatus string

const (
	OutcomeDelivered OutcomeStatus = "delivered"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeDropped   OutcomeStatus = "dropped"
)

// Chat types as reported by the bot API.
const (
	ChatTypePrivate    = "private"
	ChatTypeSupergroup = "supergroup"
)

// Member statuses carried by my_chat_member updates.
const (
	MemberStatusKicked = "kicked"
	MemberStatusMember = "member"
)
