package hub

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tamarabolmanac/hajki-quiz/internal/quiz"
	"github.com/tamarabolmanac/hajki-quiz/internal/room"
)

type stubSource struct{}

func (stubSource) RandomQuestions(_ context.Context, n int) ([]quiz.Question, error) {
	out := make([]quiz.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, quiz.Question{ID: uint(i + 1), Text: "q", Correct: quiz.ChoiceA})
	}
	return out, nil
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := NewHub(context.Background(), stubSource{}, quiz.Rules{Questions: 2, TimerSec: 60}, zap.NewNop())
	reply := make(chan *room.Room, 1)

	h.Inbox() <- CreateRoom{P1: quiz.Player{ID: 1, Name: "Ana"}, P2: quiz.Player{ID: 2, Name: "Marko"}, Reply: reply}
	r1 := <-reply
	if r1 == nil {
		t.Fatalf("expected room")
	}

	h.Inbox() <- GetRoom{ID: r1.ID, Reply: reply}
	r2 := <-reply
	if r1 != r2 {
		t.Fatalf("expected same room pointer")
	}
}

func TestHub_RemoveRoom(t *testing.T) {
	h := NewHub(context.Background(), stubSource{}, quiz.Rules{Questions: 2, TimerSec: 60}, zap.NewNop())
	reply := make(chan *room.Room, 1)

	h.Inbox() <- CreateRoom{P1: quiz.Player{ID: 1}, P2: quiz.Player{ID: 2}, Reply: reply}
	r := <-reply

	h.Inbox() <- RemoveRoom{ID: r.ID}
	h.Inbox() <- GetRoom{ID: r.ID, Reply: reply}
	if got := <-reply; got != nil {
		t.Fatalf("expected room to be gone")
	}
}

func TestHub_DistinctRoomsPerAcceptedChallenge(t *testing.T) {
	h := NewHub(context.Background(), stubSource{}, quiz.Rules{Questions: 2, TimerSec: 60}, zap.NewNop())
	reply := make(chan *room.Room, 1)

	h.Inbox() <- CreateRoom{P1: quiz.Player{ID: 1}, P2: quiz.Player{ID: 2}, Reply: reply}
	a := <-reply
	h.Inbox() <- CreateRoom{P1: quiz.Player{ID: 1}, P2: quiz.Player{ID: 2}, Reply: reply}
	b := <-reply

	if a.ID == b.ID {
		t.Fatalf("two accepts must yield two rooms")
	}
	// Avoid leaking the actors past the test.
	h.Inbox() <- ShutdownHub{}
	time.Sleep(10 * time.Millisecond)
}
