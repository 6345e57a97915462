// Package presence tracks which users currently hold a live connection and
// fans join/leave deltas out to everyone subscribed to the presence channel.
package presence

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tamarabolmanac/hajki-quiz/internal/protocol"
)

type entry struct {
	user  protocol.User
	conns int
}

// Tracker is the single owner of the online-user set. Clients only ever hold
// read-derived copies (the REST snapshot plus streamed deltas).
type Tracker struct {
	mu    sync.RWMutex
	users map[uint]*entry
	subs  map[string]chan<- protocol.Event
	log   *zap.Logger
}

func NewTracker(log *zap.Logger) *Tracker {
	return &Tracker{
		users: make(map[uint]*entry),
		subs:  make(map[string]chan<- protocol.Event),
		log:   log,
	}
}

// Subscribe registers a connection's outbox for join/leave deltas. The
// tracker owns the outbox from here on and closes it on Unsubscribe.
func (t *Tracker) Subscribe(connID string, outbox chan<- protocol.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.subs[connID]; ok {
		close(old)
	}
	t.subs[connID] = outbox
}

// Unsubscribe closes the connection's outbox. Closing under the same mutex
// that serializes broadcast means no send can race the close.
func (t *Tracker) Unsubscribe(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.subs[connID]; ok {
		close(ch)
		delete(t.subs, connID)
	}
}

// Connect registers one connection for the user. Only the first connection
// broadcasts a join; a user already online is a refcount bump, not an event.
func (t *Tracker) Connect(user protocol.User) {
	t.mu.Lock()
	e, online := t.users[user.ID]
	if online {
		e.conns++
		t.mu.Unlock()
		return
	}
	t.users[user.ID] = &entry{user: user, conns: 1}
	t.mu.Unlock()

	t.log.Info("user online", zap.Uint("user_id", user.ID), zap.String("name", user.Name))
	t.broadcast(protocol.Join{User: user})
}

// Disconnect drops one connection for the user. The last connection
// broadcasts a leave; an unknown id is a no-op.
func (t *Tracker) Disconnect(userID uint) {
	t.mu.Lock()
	e, online := t.users[userID]
	if !online {
		t.mu.Unlock()
		return
	}
	e.conns--
	if e.conns > 0 {
		t.mu.Unlock()
		return
	}
	delete(t.users, userID)
	t.mu.Unlock()

	t.log.Info("user offline", zap.Uint("user_id", userID))
	t.broadcast(protocol.Leave{UserID: userID})
}

// Online reports whether the user currently holds any connection.
func (t *Tracker) Online(userID uint) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.users[userID]
	return ok
}

// Snapshot returns the current online users, ordered by id, for the REST
// seed endpoint.
func (t *Tracker) Snapshot() []protocol.User {
	t.mu.RLock()
	out := make([]protocol.User, 0, len(t.users))
	for _, e := range t.users {
		out = append(out, e.user)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *Tracker) broadcast(ev protocol.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for connID, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: stop delivering rather than block everyone.
			close(ch)
			delete(t.subs, connID)
			t.log.Warn("dropping slow presence subscriber", zap.String("conn_id", connID))
		}
	}
}
