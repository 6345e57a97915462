// Package ws terminates the /cable endpoint: one WebSocket per client,
// multiplexing the presence, challenge and quiz-room channels over it. The
// session resolves identity from the connection token once; nothing a client
// sends can change who it is.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tamarabolmanac/hajki-quiz/internal/auth"
	"github.com/tamarabolmanac/hajki-quiz/internal/challenge"
	"github.com/tamarabolmanac/hajki-quiz/internal/hub"
	"github.com/tamarabolmanac/hajki-quiz/internal/presence"
	"github.com/tamarabolmanac/hajki-quiz/internal/protocol"
	"github.com/tamarabolmanac/hajki-quiz/internal/room"
	"github.com/tamarabolmanac/hajki-quiz/internal/store"
)

const writeWait = 10 * time.Second

type Deps struct {
	Auth     *auth.Service
	Presence *presence.Tracker
	Broker   *challenge.Broker
	Hub      *hub.Hub
	Users    store.Users
	Log      *zap.Logger
}

func Handler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := deps.Auth.VerifyToken(r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		user := protocol.User{ID: identity.ID, Name: identity.Name}
		if stored, err := deps.Users.UserByID(r.Context(), identity.ID); err == nil {
			user = protocol.User{ID: stored.ID, Name: stored.Name, Email: stored.Email, AvatarURL: stored.AvatarURL}
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		s := &session{
			connID: uuid.NewString(),
			user:   user,
			conn:   conn,
			out:    make(chan []byte, 32),
			rooms:  make(map[string]*room.Room),
			deps:   deps,
			log: deps.Log.With(
				zap.Uint("user_id", user.ID),
				zap.String("name", user.Name)),
		}
		s.run(r.Context())
	}
}

type session struct {
	connID string
	user   protocol.User
	conn   *websocket.Conn
	out    chan []byte

	presenceOn  bool
	challengeOn bool
	rooms       map[string]*room.Room

	deps Deps
	log  *zap.Logger
}

func (s *session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer s.teardown()

	go s.writeLoop(ctx, cancel)

	s.log.Info("cable connected")
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				s.log.Debug("cable read ended", zap.Error(err))
			}
			return
		}

		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			s.log.Debug("bad frame", zap.Error(err))
			continue
		}

		switch frame.Command {
		case protocol.CommandSubscribe:
			s.subscribe(ctx, frame)
		case protocol.CommandUnsubscribe:
			s.unsubscribe(frame)
		case protocol.CommandMessage:
			s.message(frame)
		}
	}
}

func (s *session) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-s.out:
			writeCtx, writeCancel := context.WithTimeout(ctx, writeWait)
			err := s.conn.Write(writeCtx, websocket.MessageText, payload)
			writeCancel()
			if err != nil {
				cancel()
				return
			}
		}
	}
}

// pump forwards one subscription's events onto the shared writer, tagging
// them with the channel they belong to. It exits when the component closes
// the outbox. Per-channel ordering is the outbox's FIFO order; ordering
// across channels is not defined.
func (s *session) pump(channel, roomID string, events <-chan protocol.Event) {
	for ev := range events {
		payload, err := protocol.MarshalEvent(channel, roomID, ev)
		if err != nil {
			s.log.Error("marshal event", zap.Error(err))
			continue
		}
		select {
		case s.out <- payload:
		default:
			s.log.Warn("outbound buffer full, dropping event", zap.String("channel", channel))
		}
	}
}

func (s *session) confirm(channel, roomID string) {
	payload, err := protocol.MarshalEvent(channel, roomID, protocol.ConfirmSubscription{})
	if err != nil {
		return
	}
	select {
	case s.out <- payload:
	default:
	}
}

func (s *session) subscribe(ctx context.Context, frame protocol.Frame) {
	switch frame.Channel {
	case protocol.ChannelPresence:
		if s.presenceOn {
			s.confirm(frame.Channel, "")
			return
		}
		events := make(chan protocol.Event, 16)
		s.deps.Presence.Subscribe(s.connID, events)
		go s.pump(protocol.ChannelPresence, "", events)
		s.presenceOn = true
		s.confirm(frame.Channel, "")
		s.deps.Presence.Connect(s.user)

	case protocol.ChannelChallenge:
		if s.challengeOn {
			s.confirm(frame.Channel, "")
			return
		}
		events := make(chan protocol.Event, 16)
		s.deps.Broker.Subscribe(s.user.ID, events)
		go s.pump(protocol.ChannelChallenge, "", events)
		s.challengeOn = true
		s.confirm(frame.Channel, "")

	case protocol.ChannelQuizRoom:
		if frame.RoomID == "" {
			return
		}
		if _, joined := s.rooms[frame.RoomID]; joined {
			s.confirm(frame.Channel, frame.RoomID)
			return
		}
		r := s.lookupRoom(frame.RoomID)
		if r == nil {
			s.log.Debug("subscribe to unknown room", zap.String("room_id", frame.RoomID))
			return
		}
		events := make(chan protocol.Event, 16)
		s.rooms[frame.RoomID] = r
		s.confirm(frame.Channel, frame.RoomID)
		go s.pump(protocol.ChannelQuizRoom, frame.RoomID, events)
		sendRoomMsg(r, room.Join{UserID: s.user.ID, Outbox: events})
	}
}

func (s *session) unsubscribe(frame protocol.Frame) {
	switch frame.Channel {
	case protocol.ChannelPresence:
		if !s.presenceOn {
			return
		}
		s.presenceOn = false
		s.deps.Presence.Unsubscribe(s.connID)
		s.deps.Presence.Disconnect(s.user.ID)

	case protocol.ChannelChallenge:
		if !s.challengeOn {
			return
		}
		s.challengeOn = false
		s.deps.Broker.Unsubscribe(s.user.ID)

	case protocol.ChannelQuizRoom:
		r, joined := s.rooms[frame.RoomID]
		if !joined {
			return
		}
		delete(s.rooms, frame.RoomID)
		sendRoomMsg(r, room.Leave{UserID: s.user.ID})
	}
}

func (s *session) message(frame protocol.Frame) {
	action, err := frame.DecodeAction()
	if err != nil {
		s.log.Debug("bad action payload", zap.Error(err))
		return
	}

	switch frame.Channel {
	case protocol.ChannelChallenge:
		switch action.Action {
		case protocol.ActionSendChallenge:
			if err := s.deps.Broker.Send(s.user, action.OpponentID); err != nil {
				// The protocol has no error events; a bad challenge is silence.
				s.log.Debug("challenge dropped", zap.Error(err))
			}
		case protocol.ActionAcceptChallenge:
			if err := s.deps.Broker.Accept(s.user, action.OpponentID); err != nil {
				s.log.Debug("accept dropped", zap.Error(err))
			}
		}

	case protocol.ChannelQuizRoom:
		roomID := frame.RoomID
		if roomID == "" {
			roomID = action.RoomID
		}
		r, joined := s.rooms[roomID]
		if !joined {
			return
		}
		sendRoomMsg(r, room.FromPlayer{UserID: s.user.ID, Action: action})
	}
}

func (s *session) lookupRoom(id string) *room.Room {
	reply := make(chan *room.Room, 1)
	s.deps.Hub.Inbox() <- hub.GetRoom{ID: id, Reply: reply}
	return <-reply
}

func (s *session) teardown() {
	if s.presenceOn {
		s.deps.Presence.Unsubscribe(s.connID)
		s.deps.Presence.Disconnect(s.user.ID)
	}
	if s.challengeOn {
		s.deps.Broker.Unsubscribe(s.user.ID)
	}
	for id, r := range s.rooms {
		delete(s.rooms, id)
		sendRoomMsg(r, room.Leave{UserID: s.user.ID})
	}
	s.log.Info("cable disconnected")
}

// sendRoomMsg must never block the session on a room that already stopped
// consuming its inbox.
func sendRoomMsg(r *room.Room, msg room.Msg) {
	select {
	case r.Inbox() <- msg:
	default:
	}
}
