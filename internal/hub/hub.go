// Package hub owns the registry of live quiz rooms. One actor goroutine
// serializes creation, lookup and reclamation, so an accepted challenge can
// never produce two rooms for the same pair of players.
package hub

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tamarabolmanac/hajki-quiz/internal/quiz"
	"github.com/tamarabolmanac/hajki-quiz/internal/room"
)

// QuestionSource supplies the question list a new room plays through.
type QuestionSource interface {
	RandomQuestions(ctx context.Context, n int) ([]quiz.Question, error)
}

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	P1    quiz.Player
	P2    quiz.Player
	Reply chan *room.Room
}

type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

type RemoveRoom struct {
	ID string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox     chan HubMsg
	rooms     map[string]*room.Room
	questions QuestionSource
	rules     quiz.Rules
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewHub(parent context.Context, questions QuestionSource, rules quiz.Rules, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:     make(chan HubMsg, 64),
		rooms:     make(map[string]*room.Room),
		questions: questions,
		rules:     rules,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				msg.Reply <- h.create(msg.P1, msg.P2)

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // may be nil

			case RemoveRoom:
				delete(h.rooms, msg.ID)

			case ShutdownHub:
				for _, r := range h.rooms {
					r.Inbox() <- room.Shutdown{}
				}
				clear(h.rooms)
				h.cancel()
			}
		}
	}
}

func (h *Hub) create(p1, p2 quiz.Player) *room.Room {
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()

	questions, err := h.questions.RandomQuestions(ctx, h.rules.Questions)
	if err != nil || len(questions) == 0 {
		h.log.Error("cannot draw questions for new room", zap.Error(err))
		return nil
	}

	id := uuid.NewString()
	r := room.New(h.ctx, id, p1, p2, h.rules, questions, h.log, func(roomID string) {
		h.inbox <- RemoveRoom{ID: roomID}
	})
	h.rooms[id] = r
	h.log.Info("room created",
		zap.String("room_id", id),
		zap.Uint("p1", p1.ID),
		zap.Uint("p2", p2.ID))
	return r
}
