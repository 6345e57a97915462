// Package room runs one actor goroutine per quiz room. All question
// scheduling and answer aggregation happens on that single goroutine, so two
// players answering at once can never race each other.
package room

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tamarabolmanac/hajki-quiz/internal/protocol"
	"github.com/tamarabolmanac/hajki-quiz/internal/quiz"
)

type Msg interface{ isRoomMsg() }

// Join registers a player's subscription and immediately sends room_info.
type Join struct {
	UserID uint
	Outbox chan protocol.Event
}

// Leave drops a player's subscription (unsubscribe or transport loss). It is
// not a forfeit; the player may rejoin and resume via room_info.
type Leave struct{ UserID uint }

// FromPlayer carries a channel action issued by an authenticated player.
type FromPlayer struct {
	UserID uint
	Action protocol.Action
}

type GetView struct{ Reply chan View }

type Shutdown struct{}

type timerFired struct {
	gen        int
	questionID uint
}

func (Join) isRoomMsg()       {}
func (Leave) isRoomMsg()      {}
func (FromPlayer) isRoomMsg() {}
func (GetView) isRoomMsg()    {}
func (Shutdown) isRoomMsg()   {}
func (timerFired) isRoomMsg() {}

// View reflects internal state for tests without data races.
type View struct {
	Phase      quiz.Phase
	Round      int
	Scores     map[uint]int
	NumClients int
}

// Room is a two-player quiz session. The question list is drawn up front so
// the game loop never blocks on the store.
type Room struct {
	ID string

	inbox    chan Msg
	state    quiz.State
	queue    []quiz.Question
	clients  map[uint]chan protocol.Event
	timer    *time.Timer
	timerGen int

	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	// onTerminate lets the registry reclaim the room id once the game is over
	// or everyone has left.
	onTerminate func(id string)
}

func New(parent context.Context, id string, p1, p2 quiz.Player, rules quiz.Rules, questions []quiz.Question, log *zap.Logger, onTerminate func(string)) *Room {
	ctx, cancel := context.WithCancel(parent)
	if len(questions) < rules.Questions {
		rules.Questions = len(questions)
	}
	r := &Room{
		ID:          id,
		inbox:       make(chan Msg, 64),
		state:       quiz.NewState(p1, p2, rules),
		queue:       questions,
		clients:     make(map[uint]chan protocol.Event),
		ctx:         ctx,
		cancel:      cancel,
		log:         log.With(zap.String("room_id", id)),
		onTerminate: onTerminate,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)

			case Leave:
				ch, joined := r.clients[msg.UserID]
				if !joined {
					// A leave for a user who never joined must not count
					// against the room's occupancy.
					break
				}
				close(ch)
				delete(r.clients, msg.UserID)
				if len(r.clients) == 0 {
					r.terminate()
					return
				}

			case FromPlayer:
				if done := r.handleAction(msg); done {
					return
				}

			case timerFired:
				if msg.gen != r.timerGen {
					// A question advanced before this timer fired; stale.
					break
				}
				if done := r.handleTimeout(msg.questionID); done {
					return
				}

			case GetView:
				msg.Reply <- View{
					Phase:      r.state.Phase,
					Round:      r.state.Round,
					Scores:     cloneScores(r.state.Scores),
					NumClients: len(r.clients),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) {
	if !r.state.IsPlayer(msg.UserID) {
		r.log.Warn("join rejected, not a player", zap.Uint("user_id", msg.UserID))
		close(msg.Outbox)
		return
	}
	r.clients[msg.UserID] = msg.Outbox
	r.send(msg.UserID, r.snapshot())

	// First question goes out once both players are in the room.
	if len(r.clients) == 2 && r.state.Phase == quiz.PhaseAwaitingQuestion && r.state.Round == 0 {
		r.advance()
	}
}

func (r *Room) handleAction(msg FromPlayer) (done bool) {
	switch msg.Action.Action {
	case protocol.ActionRoomInfo:
		r.send(msg.UserID, r.snapshot())
		return false

	case protocol.ActionAnswerQuestion:
		choice, ok := quiz.ParseChoice(msg.Action.Answer)
		if !ok {
			return false
		}
		cmd := quiz.Command{
			Type:       quiz.CmdAnswer,
			UserID:     msg.UserID,
			QuestionID: msg.Action.QuestionID,
			Choice:     choice,
		}
		events, next, err := quiz.Apply(r.state, cmd)
		if err != nil {
			// Stale and duplicate answers are dropped, per protocol: the only
			// confirmation a client ever gets is the success event.
			r.log.Debug("answer ignored", zap.Uint("user_id", msg.UserID), zap.Error(err))
			return false
		}
		r.state = next
		return r.dispatch(events)

	case protocol.ActionLeaveRoom:
		events, next, err := quiz.Apply(r.state, quiz.Command{Type: quiz.CmdForfeit, UserID: msg.UserID})
		if err != nil {
			return false
		}
		r.state = next
		r.stopTimer()

		r.send(msg.UserID, protocol.LeaveRoom{})
		if opp, ok := r.state.Opponent(msg.UserID); ok {
			name := playerName(r.state, msg.UserID)
			r.send(opp.ID, protocol.SystemMessage{Text: name + " je napustio sobu"})
		}
		return r.dispatch(events)

	default:
		r.log.Debug("unknown room action", zap.String("action", msg.Action.Action))
		return false
	}
}

func (r *Room) handleTimeout(questionID uint) (done bool) {
	events, next, err := quiz.Apply(r.state, quiz.Command{Type: quiz.CmdTimeout, QuestionID: questionID})
	if err != nil {
		return false
	}
	r.state = next
	r.broadcast(protocol.SystemMessage{Text: "Vreme je isteklo"})
	return r.dispatch(events)
}

// dispatch turns engine events into channel broadcasts and drives the
// question cycle forward. Returns true when the room has terminated.
func (r *Room) dispatch(events []quiz.Event) (done bool) {
	advance := false
	for _, ev := range events {
		switch ev.Type {
		case quiz.EvtAnswerScored:
			r.broadcast(protocol.AnswerResult{
				UserID:  ev.UserID,
				Correct: ev.Correct,
				Scores:  cloneScores(r.state.Scores),
			})

		case quiz.EvtQuestionRetired:
			r.stopTimer()
			advance = true

		case quiz.EvtGameCompleted:
			r.stopTimer()
			winner := ev.Winner
			if winner == 0 {
				winner = r.state.Winner()
			}
			r.broadcast(protocol.GameOver{
				Winner:  winner,
				P1Score: r.state.Scores[r.state.Players[0].ID],
				P2Score: r.state.Scores[r.state.Players[1].ID],
			})
			r.terminate()
			return true
		}
	}
	if advance {
		r.advance()
	}
	return false
}

// advance starts the next question from the preloaded queue and arms the
// authoritative timer.
func (r *Room) advance() {
	if len(r.queue) == 0 {
		return
	}
	q := r.queue[0]
	r.queue = r.queue[1:]

	_, next, err := quiz.Apply(r.state, quiz.Command{Type: quiz.CmdAdvance, Question: &q})
	if err != nil {
		r.log.Error("advance failed", zap.Error(err))
		return
	}
	r.state = next

	r.broadcast(protocol.NewQuestion{CurrentQuestion: clientQuestion(q)})
	r.armTimer(q.ID)
}

func (r *Room) armTimer(questionID uint) {
	r.stopTimer()
	r.timerGen++
	gen := r.timerGen
	d := time.Duration(r.state.Rules.TimerSec) * time.Second
	r.timer = time.AfterFunc(d, func() {
		select {
		case r.inbox <- timerFired{gen: gen, questionID: questionID}:
		case <-r.ctx.Done():
		}
	})
}

func (r *Room) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Room) snapshot() protocol.RoomInfo {
	info := protocol.RoomInfo{
		Players: []protocol.User{
			{ID: r.state.Players[0].ID, Name: r.state.Players[0].Name},
			{ID: r.state.Players[1].ID, Name: r.state.Players[1].Name},
		},
		Scores: cloneScores(r.state.Scores),
	}
	if r.state.Current != nil {
		q := clientQuestion(*r.state.Current)
		info.CurrentQuestion = &q
	}
	return info
}

func (r *Room) send(userID uint, ev protocol.Event) {
	ch, ok := r.clients[userID]
	if !ok {
		return
	}
	select {
	case ch <- ev:
	default:
		// Slow or wedged client: drop it rather than stall the room.
		close(ch)
		delete(r.clients, userID)
	}
}

func (r *Room) broadcast(ev protocol.Event) {
	for id := range r.clients {
		r.send(id, ev)
	}
}

// terminate ends the room: outboxes close, the registry reclaims the id.
func (r *Room) terminate() {
	r.stopTimer()
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
	if r.onTerminate != nil {
		go r.onTerminate(r.ID)
	}
}

func (r *Room) shutdown() {
	r.stopTimer()
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
}

func clientQuestion(q quiz.Question) protocol.Question {
	return protocol.Question{ID: q.ID, Text: q.Text, A: q.A, B: q.B, C: q.C, D: q.D}
}

func playerName(s quiz.State, id uint) string {
	for _, p := range s.Players {
		if p.ID == id {
			return p.Name
		}
	}
	return ""
}

func cloneScores(m map[uint]int) map[uint]int {
	out := make(map[uint]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
