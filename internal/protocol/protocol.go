// Package protocol defines the wire format shared by the server and the Go
// client: client->server frames (subscribe/unsubscribe/message) and the
// closed set of server->client events, decoded once at the transport
// boundary into typed values.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownEvent = errors.New("unknown event")
var ErrUnknownCommand = errors.New("unknown command")
var ErrUnknownChannel = errors.New("unknown channel")

// Logical channel names, matching the original cable channels.
const (
	ChannelPresence  = "PresenceChannel"
	ChannelChallenge = "ChallengeChannel"
	ChannelQuizRoom  = "QuizRoomChannel"
)

// Transport commands carried in a client frame.
const (
	CommandSubscribe   = "subscribe"
	CommandUnsubscribe = "unsubscribe"
	CommandMessage     = "message"
)

// Channel actions carried in a message frame.
const (
	ActionSendChallenge   = "send_challenge"
	ActionAcceptChallenge = "accept_challenge"
	ActionRoomInfo        = "room_info"
	ActionAnswerQuestion  = "answer_question"
	ActionLeaveRoom       = "leave_room"
)

// User is the identity shape exchanged on the wire. The server fills it from
// the authenticated connection; clients never supply their own id.
type User struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Question is the client-visible question shape; the correct choice never
// leaves the server.
type Question struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
	A    string `json:"a"`
	B    string `json:"b"`
	C    string `json:"c"`
	D    string `json:"d"`
}

// Frame is the client->server transport envelope.
type Frame struct {
	Command string          `json:"command"`
	Channel string          `json:"channel"`
	RoomID  string          `json:"room_id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Action is the payload of a message frame.
type Action struct {
	Action     string `json:"action"`
	OpponentID uint   `json:"opponent_id,omitempty"`
	RoomID     string `json:"room_id,omitempty"`
	QuestionID uint   `json:"question_id,omitempty"`
	Answer     string `json:"answer,omitempty"`
}

// DecodeFrame parses and validates a raw client frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Command {
	case CommandSubscribe, CommandUnsubscribe, CommandMessage:
	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownCommand, f.Command)
	}
	switch f.Channel {
	case ChannelPresence, ChannelChallenge, ChannelQuizRoom:
	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownChannel, f.Channel)
	}
	return f, nil
}

// DecodeAction parses the action payload of a message frame.
func (f Frame) DecodeAction() (Action, error) {
	var a Action
	if err := json.Unmarshal(f.Data, &a); err != nil {
		return Action{}, fmt.Errorf("decode action: %w", err)
	}
	return a, nil
}

// MarshalFrame encodes a message frame with the given action payload.
func MarshalFrame(command, channel, roomID string, action *Action) ([]byte, error) {
	f := Frame{Command: command, Channel: channel, RoomID: roomID}
	if action != nil {
		data, err := json.Marshal(action)
		if err != nil {
			return nil, err
		}
		f.Data = data
	}
	return json.Marshal(f)
}
