// Package challenge brokers duel invitations between online users: forward
// the invitation to the target, and on acceptance mint exactly one room for
// the pair. Pending invitations expire server-side so a challenger is never
// left waiting forever without a signal.
package challenge

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tamarabolmanac/hajki-quiz/internal/hub"
	"github.com/tamarabolmanac/hajki-quiz/internal/protocol"
	"github.com/tamarabolmanac/hajki-quiz/internal/quiz"
	"github.com/tamarabolmanac/hajki-quiz/internal/room"
)

var ErrSelfChallenge = errors.New("cannot challenge yourself")
var ErrOpponentOffline = errors.New("opponent is not subscribed to the challenge channel")
var ErrNoPendingChallenge = errors.New("no pending challenge from that user")
var ErrRoomUnavailable = errors.New("could not create a room")

type pendingKey struct {
	fromID uint
	toID   uint
}

type pending struct {
	from  quiz.Player
	timer *time.Timer
}

// Broker routes challenge traffic. Identity always comes from the
// authenticated connection; payloads only name the opponent.
type Broker struct {
	mu      sync.Mutex
	subs    map[uint]chan<- protocol.Event
	pending map[pendingKey]*pending
	hub     *hub.Hub
	ttl     time.Duration
	log     *zap.Logger
}

func NewBroker(h *hub.Hub, ttl time.Duration, log *zap.Logger) *Broker {
	return &Broker{
		subs:    make(map[uint]chan<- protocol.Event),
		pending: make(map[pendingKey]*pending),
		hub:     h,
		ttl:     ttl,
		log:     log,
	}
}

// Subscribe attaches a user's challenge-channel outbox. A later subscription
// for the same user replaces the earlier one, closing it so its reader stops.
func (b *Broker) Subscribe(userID uint, outbox chan<- protocol.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.subs[userID]; ok {
		close(old)
	}
	b.subs[userID] = outbox
}

// Unsubscribe closes the user's outbox. Every deliver happens under b.mu, so
// the close cannot race a send.
func (b *Broker) Unsubscribe(userID uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[userID]; ok {
		close(ch)
		delete(b.subs, userID)
	}
}

// Send delivers challenge_received to the opponent and records the pending
// invitation. Re-challenging the same opponent refreshes the TTL.
func (b *Broker) Send(from protocol.User, opponentID uint) error {
	if from.ID == opponentID {
		return ErrSelfChallenge
	}

	b.mu.Lock()
	target, online := b.subs[opponentID]
	if !online {
		b.mu.Unlock()
		return ErrOpponentOffline
	}

	key := pendingKey{fromID: from.ID, toID: opponentID}
	if p, exists := b.pending[key]; exists {
		p.timer.Stop()
	}
	b.pending[key] = &pending{
		from:  quiz.Player{ID: from.ID, Name: from.Name},
		timer: time.AfterFunc(b.ttl, func() { b.expire(key) }),
	}
	deliver(target, protocol.ChallengeReceived{FromID: from.ID, FromName: from.Name})
	b.mu.Unlock()

	b.log.Info("challenge sent", zap.Uint("from", from.ID), zap.Uint("to", opponentID))
	return nil
}

// Accept resolves a pending challenge: one room for the pair, and
// challenge_accepted with the same room id to both sides.
func (b *Broker) Accept(accepter protocol.User, challengerID uint) error {
	key := pendingKey{fromID: challengerID, toID: accepter.ID}

	b.mu.Lock()
	p, exists := b.pending[key]
	if !exists {
		b.mu.Unlock()
		return ErrNoPendingChallenge
	}
	p.timer.Stop()
	delete(b.pending, key)
	challenger := p.from
	b.mu.Unlock()

	reply := make(chan *room.Room, 1)
	b.hub.Inbox() <- hub.CreateRoom{
		P1:    challenger,
		P2:    quiz.Player{ID: accepter.ID, Name: accepter.Name},
		Reply: reply,
	}
	r := <-reply
	if r == nil {
		return ErrRoomUnavailable
	}

	accepted := protocol.ChallengeAccepted{RoomID: r.ID}
	b.mu.Lock()
	deliver(b.subs[challengerID], accepted)
	deliver(b.subs[accepter.ID], accepted)
	b.mu.Unlock()

	b.log.Info("challenge accepted",
		zap.Uint("challenger", challengerID),
		zap.Uint("accepter", accepter.ID),
		zap.String("room_id", r.ID))
	return nil
}

// expire drops a timed-out invitation and tells the challenger. A decline is
// otherwise silent, so this is the only negative signal a challenger gets.
func (b *Broker) expire(key pendingKey) {
	b.mu.Lock()
	_, exists := b.pending[key]
	if !exists {
		b.mu.Unlock()
		return
	}
	delete(b.pending, key)
	deliver(b.subs[key.fromID], protocol.ChallengeExpired{OpponentID: key.toID})
	b.mu.Unlock()

	b.log.Info("challenge expired", zap.Uint("from", key.fromID), zap.Uint("to", key.toID))
}

func deliver(ch chan<- protocol.Event, ev protocol.Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
		// Receiver wedged; the invitation flow has no retry.
	}
}
