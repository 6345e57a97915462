package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tamarabolmanac/hajki-quiz/internal/protocol"
)

var ErrInputDisabled = errors.New("answering is disabled for this question")
var ErrNoActiveQuestion = errors.New("no question is active")

// DefaultCountdown is the local per-question timer. It is a UX safeguard
// only; the server keeps its own authoritative timer.
const DefaultCountdown = 10 * time.Second

// RoomCallbacks surface room activity to the UI layer.
type RoomCallbacks struct {
	// Update fires after any state change worth re-rendering.
	Update func()
	// LeftRoom fires when the server navigates us back to the lobby.
	LeftRoom func()
	// GameOver delivers the final result label.
	GameOver func(label string)
}

// Room is the client side of one quiz session. It enforces the local rules:
// exactly one answer per question, and no sends after the countdown expires.
// Scores are taken verbatim from answer_result; nothing is derived locally.
type Room struct {
	roomID string
	selfID uint

	mu           sync.Mutex
	players      []protocol.User
	current      *protocol.Question
	answered     map[uint]bool // question ids we already answered
	inputEnabled bool
	scores       map[uint]int
	messages     []string
	done         bool

	countdown time.Duration
	timer     *time.Timer

	sub       sender
	callbacks RoomCallbacks
}

func NewRoom(roomID string, selfID uint, callbacks RoomCallbacks) *Room {
	return &Room{
		roomID:    roomID,
		selfID:    selfID,
		answered:  make(map[uint]bool),
		scores:    make(map[uint]int),
		countdown: DefaultCountdown,
		callbacks: callbacks,
	}
}

// Attach subscribes the quiz-room channel and requests the current snapshot,
// which also serves as the resume path after a reconnect.
func (r *Room) Attach(conn *Connection) error {
	sub, err := conn.Subscribe(protocol.ChannelQuizRoom, r.roomID, Handlers{
		Connected: func() {
			_ = r.requestInfo()
		},
		Received:     r.handleEvent,
		Disconnected: func(err error) { r.Close() },
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()
	return nil
}

func (r *Room) requestInfo() error {
	r.mu.Lock()
	sub := r.sub
	r.mu.Unlock()
	if sub == nil {
		return ErrNotAttached
	}
	return sub.Send(protocol.Action{Action: protocol.ActionRoomInfo})
}

func (r *Room) handleEvent(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.RoomInfo:
		r.mu.Lock()
		r.players = e.Players
		if e.Scores != nil {
			r.scores = e.Scores
		}
		r.current = e.CurrentQuestion
		if r.current != nil && !r.answered[r.current.ID] {
			r.enableInputLocked(r.current.ID)
		} else {
			r.inputEnabled = false
		}
		r.mu.Unlock()
		r.update()

	case protocol.NewQuestion:
		q := e.CurrentQuestion
		r.mu.Lock()
		r.current = &q
		r.enableInputLocked(q.ID)
		r.mu.Unlock()
		r.update()

	case protocol.AnswerResult:
		r.mu.Lock()
		r.scores = e.Scores
		r.mu.Unlock()
		r.update()

	case protocol.SystemMessage:
		r.mu.Lock()
		r.messages = append(r.messages, e.Text)
		r.mu.Unlock()
		r.update()

	case protocol.LeaveRoom:
		r.Close()
		if r.callbacks.LeftRoom != nil {
			r.callbacks.LeftRoom()
		}

	case protocol.GameOver:
		r.mu.Lock()
		r.done = true
		r.inputEnabled = false
		r.stopTimerLocked()
		label := r.resultLabelLocked(e)
		r.mu.Unlock()
		r.update()
		if r.callbacks.GameOver != nil {
			r.callbacks.GameOver(label)
		}
	}
}

// enableInputLocked opens answering for a question and arms the local
// countdown that closes it again.
func (r *Room) enableInputLocked(questionID uint) {
	r.inputEnabled = true
	r.stopTimerLocked()
	r.timer = time.AfterFunc(r.countdown, func() {
		r.mu.Lock()
		expired := r.current != nil && r.current.ID == questionID && !r.answered[questionID]
		if expired {
			r.inputEnabled = false
		}
		r.mu.Unlock()
		if expired {
			r.update()
		}
	})
}

func (r *Room) update() {
	if r.callbacks.Update != nil {
		r.callbacks.Update()
	}
}

func (r *Room) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Answer submits our choice for the active question. The guard is local and
// final: once we answered, or once the countdown expired, nothing is sent
// for this question again.
func (r *Room) Answer(choice string) error {
	r.mu.Lock()
	if r.done || r.current == nil {
		r.mu.Unlock()
		return ErrNoActiveQuestion
	}
	if !r.inputEnabled || r.answered[r.current.ID] {
		r.mu.Unlock()
		return ErrInputDisabled
	}
	questionID := r.current.ID
	r.answered[questionID] = true
	r.inputEnabled = false
	sub := r.sub
	r.mu.Unlock()

	if sub == nil {
		return ErrNotAttached
	}
	return sub.Send(protocol.Action{
		Action:     protocol.ActionAnswerQuestion,
		RoomID:     r.roomID,
		QuestionID: questionID,
		Answer:     choice,
	})
}

// Leave exits the room voluntarily; the opponent wins by forfeit.
func (r *Room) Leave() error {
	r.mu.Lock()
	sub := r.sub
	r.mu.Unlock()
	r.Close()
	if sub == nil {
		return ErrNotAttached
	}
	return sub.Send(protocol.Action{Action: protocol.ActionLeaveRoom, RoomID: r.roomID})
}

// Close clears the countdown so no timer fires into a torn-down view.
func (r *Room) Close() {
	r.mu.Lock()
	r.stopTimerLocked()
	r.inputEnabled = false
	r.mu.Unlock()
}

// CanAnswer reports whether input is currently open.
func (r *Room) CanAnswer() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputEnabled && !r.done
}

// Current returns the active question, or nil between questions.
func (r *Room) Current() *protocol.Question {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	q := *r.current
	return &q
}

// Scores returns the authoritative totals as last pushed by the server.
func (r *Room) Scores() map[uint]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uint]int, len(r.scores))
	for k, v := range r.scores {
		out[k] = v
	}
	return out
}

// Messages returns the system-message log.
func (r *Room) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// resultLabelLocked renders the final verdict the way the original UI does:
// "Pobednik: <name>" for a win, "Nerešeno" for a tie regardless of the
// winner field.
func (r *Room) resultLabelLocked(over protocol.GameOver) string {
	if over.P1Score == over.P2Score {
		return "Nerešeno"
	}
	name := fmt.Sprintf("#%d", over.Winner)
	for _, p := range r.players {
		if p.ID == over.Winner {
			name = p.Name
		}
	}
	return "Pobednik: " + name
}
