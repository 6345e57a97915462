package protocol

import (
	"encoding/json"
	"fmt"
)

// Event tags as they appear on the wire.
const (
	EventConfirmSubscription = "confirm_subscription"
	EventJoin                = "join"
	EventLeave               = "leave"
	EventChallengeReceived   = "challenge_received"
	EventChallengeAccepted   = "challenge_accepted"
	EventChallengeExpired    = "challenge_expired"
	EventRoomInfo            = "room_info"
	EventNewQuestion         = "new_question"
	EventAnswerResult        = "answer_result"
	EventSystemMessage       = "system_message"
	EventLeaveRoom           = "leave_room"
	EventGameOver            = "game_over"
)

// Event is the closed union of server->client payloads.
type Event interface {
	isEvent()
	EventName() string
}

// ConfirmSubscription acknowledges a subscribe frame. The client transport
// consumes it to fire the Connected handler; it is never surfaced to channel
// handlers.
type ConfirmSubscription struct{}

type Join struct {
	User User `json:"user"`
}

type Leave struct {
	UserID uint `json:"user"`
}

type ChallengeReceived struct {
	FromID   uint   `json:"from_id"`
	FromName string `json:"from_name"`
}

type ChallengeAccepted struct {
	RoomID string `json:"room_id"`
}

// ChallengeExpired tells the challenger that a pending challenge hit its
// server-side TTL without being accepted.
type ChallengeExpired struct {
	OpponentID uint `json:"opponent_id"`
}

type RoomInfo struct {
	Players         []User       `json:"players"`
	CurrentQuestion *Question    `json:"current_question,omitempty"`
	Scores          map[uint]int `json:"scores,omitempty"`
}

type NewQuestion struct {
	CurrentQuestion Question `json:"current_question"`
}

// AnswerResult reports one player's answer. Scores carries the authoritative
// cumulative totals so clients never have to derive their own.
type AnswerResult struct {
	UserID  uint         `json:"user_id"`
	Correct bool         `json:"correct"`
	Scores  map[uint]int `json:"scores"`
}

type SystemMessage struct {
	Text string `json:"text"`
}

type LeaveRoom struct{}

// GameOver ends a room. Winner is 0 on a tie.
type GameOver struct {
	Winner  uint `json:"winner"`
	P1Score int  `json:"p1_score"`
	P2Score int  `json:"p2_score"`
}

func (ConfirmSubscription) isEvent() {}
func (Join) isEvent()                {}
func (Leave) isEvent()               {}
func (ChallengeReceived) isEvent()   {}
func (ChallengeAccepted) isEvent()   {}
func (ChallengeExpired) isEvent()    {}
func (RoomInfo) isEvent()            {}
func (NewQuestion) isEvent()         {}
func (AnswerResult) isEvent()        {}
func (SystemMessage) isEvent()       {}
func (LeaveRoom) isEvent()           {}
func (GameOver) isEvent()            {}

func (ConfirmSubscription) EventName() string { return EventConfirmSubscription }
func (Join) EventName() string                { return EventJoin }
func (Leave) EventName() string               { return EventLeave }
func (ChallengeReceived) EventName() string   { return EventChallengeReceived }
func (ChallengeAccepted) EventName() string   { return EventChallengeAccepted }
func (ChallengeExpired) EventName() string    { return EventChallengeExpired }
func (RoomInfo) EventName() string            { return EventRoomInfo }
func (NewQuestion) EventName() string         { return EventNewQuestion }
func (AnswerResult) EventName() string        { return EventAnswerResult }
func (SystemMessage) EventName() string       { return EventSystemMessage }
func (LeaveRoom) EventName() string           { return EventLeaveRoom }
func (GameOver) EventName() string            { return EventGameOver }

// ServerEvent is a decoded server->client message: one typed event plus the
// channel it was emitted on.
type ServerEvent struct {
	Channel string
	RoomID  string
	Event   Event
}

type eventEnvelope struct {
	Channel string `json:"channel"`
	RoomID  string `json:"room_id,omitempty"`
	Event   string `json:"event"`
}

// MarshalEvent flattens a typed event into its wire form: the event's own
// fields plus channel/room_id/event tags at the top level.
func MarshalEvent(channel, roomID string, ev Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	flat := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, err
	}
	tag := func(s string) json.RawMessage {
		b, _ := json.Marshal(s)
		return b
	}
	flat["channel"] = tag(channel)
	flat["event"] = tag(ev.EventName())
	if roomID != "" {
		flat["room_id"] = tag(roomID)
	}
	return json.Marshal(flat)
}

// DecodeServerEvent parses a raw server message into a typed event. Unknown
// tags are an error so that new event kinds cannot slip through untyped.
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ServerEvent{}, fmt.Errorf("decode event envelope: %w", err)
	}

	var ev Event
	var err error
	switch env.Event {
	case EventConfirmSubscription:
		ev = ConfirmSubscription{}
	case EventJoin:
		ev, err = decodeAs[Join](data)
	case EventLeave:
		ev, err = decodeAs[Leave](data)
	case EventChallengeReceived:
		ev, err = decodeAs[ChallengeReceived](data)
	case EventChallengeAccepted:
		ev, err = decodeAs[ChallengeAccepted](data)
	case EventChallengeExpired:
		ev, err = decodeAs[ChallengeExpired](data)
	case EventRoomInfo:
		ev, err = decodeAs[RoomInfo](data)
	case EventNewQuestion:
		ev, err = decodeAs[NewQuestion](data)
	case EventAnswerResult:
		ev, err = decodeAs[AnswerResult](data)
	case EventSystemMessage:
		ev, err = decodeAs[SystemMessage](data)
	case EventLeaveRoom:
		ev = LeaveRoom{}
	case EventGameOver:
		ev, err = decodeAs[GameOver](data)
	default:
		return ServerEvent{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if err != nil {
		return ServerEvent{}, err
	}
	return ServerEvent{Channel: env.Channel, RoomID: env.RoomID, Event: ev}, nil
}

func decodeAs[T Event](data []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", v.EventName(), err)
	}
	return v, nil
}
