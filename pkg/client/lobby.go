package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"

	"github.com/tamarabolmanac/hajki-quiz/internal/protocol"
)

var ErrNotAttached = errors.New("lobby is not attached to a connection")

// sender is the slice of Subscription the adapters need; tests substitute a
// recording fake.
type sender interface {
	Send(action protocol.Action) error
}

// LobbyCallbacks surface lobby activity to the UI layer.
type LobbyCallbacks struct {
	// PresenceChanged fires after any change to the online set.
	PresenceChanged func()
	// ChallengeReceived fires when another user challenges us.
	ChallengeReceived func(protocol.ChallengeReceived)
	// ChallengeAccepted delivers the room id to navigate to.
	ChallengeAccepted func(roomID string)
	// ChallengeExpired fires when one of our outgoing challenges timed out.
	ChallengeExpired func(opponentID uint)
	// Disconnected fires once when the cable dies; the caller re-runs
	// Dial + Attach to recover.
	Disconnected func(err error)
}

// Lobby maintains the client-side online set and the challenge handshake.
// The set is read-derived only: a REST snapshot seeds it, join/leave deltas
// keep it current, and both are applied idempotently.
type Lobby struct {
	self protocol.User

	mu     sync.Mutex
	online map[uint]protocol.User

	challengeSub sender
	callbacks    LobbyCallbacks
}

func NewLobby(self protocol.User, callbacks LobbyCallbacks) *Lobby {
	return &Lobby{
		self:      self,
		online:    make(map[uint]protocol.User),
		callbacks: callbacks,
	}
}

// Attach subscribes the presence and challenge channels and seeds the online
// set from the REST snapshot. The subscription happens before the fetch so
// no delta can fall between them; duplicates are deduped by id anyway.
func (l *Lobby) Attach(ctx context.Context, conn *Connection, httpClient *http.Client, baseURL, token string) error {
	_, err := conn.Subscribe(protocol.ChannelPresence, "", Handlers{
		Received:     l.handlePresence,
		Disconnected: l.disconnected,
	})
	if err != nil {
		return err
	}

	challengeSub, err := conn.Subscribe(protocol.ChannelChallenge, "", Handlers{
		Received: l.handleChallenge,
	})
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.challengeSub = challengeSub
	l.mu.Unlock()

	l.seed(fetchOnlineUsers(ctx, httpClient, baseURL, token))
	return nil
}

// fetchOnlineUsers degrades to an empty list on any error so the lobby
// renders empty instead of failing.
func fetchOnlineUsers(ctx context.Context, httpClient *http.Client, baseURL, token string) []protocol.User {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/online_users", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var users []protocol.User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil
	}
	return users
}

func (l *Lobby) seed(users []protocol.User) {
	l.mu.Lock()
	for _, u := range users {
		l.online[u.ID] = u
	}
	l.mu.Unlock()
	l.presenceChanged()
}

func (l *Lobby) handlePresence(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.Join:
		l.mu.Lock()
		_, present := l.online[e.User.ID]
		if !present {
			l.online[e.User.ID] = e.User
		}
		l.mu.Unlock()
		if !present {
			l.presenceChanged()
		}
	case protocol.Leave:
		l.mu.Lock()
		_, present := l.online[e.UserID]
		delete(l.online, e.UserID)
		l.mu.Unlock()
		if present {
			l.presenceChanged()
		}
	}
}

func (l *Lobby) handleChallenge(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.ChallengeReceived:
		if l.callbacks.ChallengeReceived != nil {
			l.callbacks.ChallengeReceived(e)
		}
	case protocol.ChallengeAccepted:
		if l.callbacks.ChallengeAccepted != nil {
			l.callbacks.ChallengeAccepted(e.RoomID)
		}
	case protocol.ChallengeExpired:
		if l.callbacks.ChallengeExpired != nil {
			l.callbacks.ChallengeExpired(e.OpponentID)
		}
	}
}

func (l *Lobby) disconnected(err error) {
	if l.callbacks.Disconnected != nil {
		l.callbacks.Disconnected(err)
	}
}

func (l *Lobby) presenceChanged() {
	if l.callbacks.PresenceChanged != nil {
		l.callbacks.PresenceChanged()
	}
}

// Others lists the online users excluding ourselves, ordered by id. This is
// what the lobby renders: you never see yourself as a possible opponent.
func (l *Lobby) Others() []protocol.User {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]protocol.User, 0, len(l.online))
	for id, u := range l.online {
		if id == l.self.ID {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SendChallenge invites an online user to a duel.
func (l *Lobby) SendChallenge(opponentID uint) error {
	l.mu.Lock()
	sub := l.challengeSub
	l.mu.Unlock()
	if sub == nil {
		return ErrNotAttached
	}
	return sub.Send(protocol.Action{Action: protocol.ActionSendChallenge, OpponentID: opponentID})
}

// AcceptChallenge answers an incoming challenge; the server responds with
// challenge_accepted carrying the room id.
func (l *Lobby) AcceptChallenge(challengerID uint) error {
	l.mu.Lock()
	sub := l.challengeSub
	l.mu.Unlock()
	if sub == nil {
		return ErrNotAttached
	}
	return sub.Send(protocol.Action{Action: protocol.ActionAcceptChallenge, OpponentID: challengerID})
}

// DismissChallenge declines by simply dropping the invitation; the protocol
// sends nothing, the challenger only ever sees acceptance or expiry.
func (l *Lobby) DismissChallenge(protocol.ChallengeReceived) {}
