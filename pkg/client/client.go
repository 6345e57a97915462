// Package client is the Go consumer of the duel server: a single cable
// connection multiplexing channel subscriptions, plus lobby and room
// adapters that carry the client-side rules (presence dedupe, one answer per
// question, the local countdown).
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/tamarabolmanac/hajki-quiz/internal/protocol"
)

var ErrConnectionClosed = errors.New("connection closed")
var ErrAlreadySubscribed = errors.New("already subscribed to this channel")

// Handlers receive a subscription's lifecycle callbacks. They are invoked
// from the connection's read goroutine; do not block in them.
type Handlers struct {
	Connected    func()
	Received     func(protocol.Event)
	Disconnected func(err error)
}

// Connection is one cable to the server. There is no automatic reconnect:
// when the underlying socket dies every subscription gets Disconnected and
// the caller starts over with Dial + Subscribe + snapshot.
type Connection struct {
	conn *websocket.Conn

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Dial opens the cable. baseURL is the server's HTTP base (http:// or
// https://); the token authenticates the connection, exactly like the
// original `/cable?token=` consumer.
func Dial(ctx context.Context, baseURL, token string) (*Connection, error) {
	wsBase := strings.Replace(baseURL, "http", "ws", 1)
	cableURL := fmt.Sprintf("%s/cable?token=%s", wsBase, url.QueryEscape(token))

	conn, _, err := websocket.Dial(ctx, cableURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial cable: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:   conn,
		subs:   make(map[string]*Subscription),
		ctx:    connCtx,
		cancel: cancel,
	}
	go c.readLoop()
	return c, nil
}

func subKey(channel, roomID string) string { return channel + "\x00" + roomID }

// Subscribe opens a logical channel on the cable. roomID is only meaningful
// for the quiz-room channel.
func (c *Connection) Subscribe(channel, roomID string, h Handlers) (*Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	key := subKey(channel, roomID)
	if _, exists := c.subs[key]; exists {
		c.mu.Unlock()
		return nil, ErrAlreadySubscribed
	}
	sub := &Subscription{conn: c, channel: channel, roomID: roomID, handlers: h}
	c.subs[key] = sub
	c.mu.Unlock()

	payload, err := protocol.MarshalFrame(protocol.CommandSubscribe, channel, roomID, nil)
	if err != nil {
		return nil, err
	}
	if err := c.write(payload); err != nil {
		c.mu.Lock()
		delete(c.subs, key)
		c.mu.Unlock()
		return nil, err
	}
	return sub, nil
}

// Close tears the cable down; all subscriptions get Disconnected(nil).
func (c *Connection) Close() error {
	c.fail(nil)
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

func (c *Connection) write(payload []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	c.mu.Unlock()
	return c.conn.Write(c.ctx, websocket.MessageText, payload)
}

func (c *Connection) readLoop() {
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.fail(nil)
			default:
				c.fail(err)
			}
			return
		}

		decoded, err := protocol.DecodeServerEvent(data)
		if err != nil {
			// Unknown events are a server/client version skew; skip them.
			continue
		}

		c.mu.Lock()
		sub := c.subs[subKey(decoded.Channel, decoded.RoomID)]
		c.mu.Unlock()
		if sub == nil {
			continue
		}

		if _, isConfirm := decoded.Event.(protocol.ConfirmSubscription); isConfirm {
			if sub.handlers.Connected != nil {
				sub.handlers.Connected()
			}
			continue
		}
		if sub.handlers.Received != nil {
			sub.handlers.Received(decoded.Event)
		}
	}
}

// fail marks the connection dead and notifies every subscription once.
func (c *Connection) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.subs = map[string]*Subscription{}
	c.mu.Unlock()

	c.cancel()
	for _, s := range subs {
		if s.handlers.Disconnected != nil {
			s.handlers.Disconnected(err)
		}
	}
}

// Subscription is one logical channel on the cable.
type Subscription struct {
	conn     *Connection
	channel  string
	roomID   string
	handlers Handlers
}

// Send issues a channel action (send_challenge, answer_question, ...).
func (s *Subscription) Send(action protocol.Action) error {
	payload, err := protocol.MarshalFrame(protocol.CommandMessage, s.channel, s.roomID, &action)
	if err != nil {
		return err
	}
	return s.conn.write(payload)
}

// Unsubscribe stops delivery for this channel. Pending local timers owned by
// adapters must be cleared by their Close methods, not here.
func (s *Subscription) Unsubscribe() error {
	s.conn.mu.Lock()
	delete(s.conn.subs, subKey(s.channel, s.roomID))
	s.conn.mu.Unlock()

	payload, err := protocol.MarshalFrame(protocol.CommandUnsubscribe, s.channel, s.roomID, nil)
	if err != nil {
		return err
	}
	return s.conn.write(payload)
}
