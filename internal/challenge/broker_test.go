package challenge

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tamarabolmanac/hajki-quiz/internal/hub"
	"github.com/tamarabolmanac/hajki-quiz/internal/protocol"
	"github.com/tamarabolmanac/hajki-quiz/internal/quiz"
)

type stubSource struct{}

func (stubSource) RandomQuestions(_ context.Context, n int) ([]quiz.Question, error) {
	out := make([]quiz.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, quiz.Question{ID: uint(i + 1), Text: "q", Correct: quiz.ChoiceA})
	}
	return out, nil
}

func newTestBroker(t *testing.T, ttl time.Duration) *Broker {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := hub.NewHub(ctx, stubSource{}, quiz.Rules{Questions: 2, TimerSec: 60}, zap.NewNop())
	return NewBroker(h, ttl, zap.NewNop())
}

func recvEvent(t *testing.T, ch <-chan protocol.Event, within time.Duration) protocol.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(within):
		t.Fatalf("timed out waiting for challenge event")
		return nil // unreachable
	}
}

func recvNoEvent(t *testing.T, ch <-chan protocol.Event, within time.Duration) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			return // closed is fine, nothing further can arrive
		}
		t.Fatalf("expected no event, got %#v", ev)
	case <-time.After(within):
	}
}

var ana = protocol.User{ID: 1, Name: "Ana"}
var marko = protocol.User{ID: 2, Name: "Marko"}

func TestBroker_SendDeliversToTargetOnly(t *testing.T) {
	b := newTestBroker(t, time.Minute)
	anaOut := make(chan protocol.Event, 4)
	markoOut := make(chan protocol.Event, 4)
	b.Subscribe(ana.ID, anaOut)
	b.Subscribe(marko.ID, markoOut)

	if err := b.Send(ana, marko.ID); err != nil {
		t.Fatalf("send: %v", err)
	}

	got, ok := recvEvent(t, markoOut, time.Second).(protocol.ChallengeReceived)
	if !ok {
		t.Fatalf("want challenge_received")
	}
	if got.FromID != 1 || got.FromName != "Ana" {
		t.Fatalf("want from Ana(1), got %+v", got)
	}
	recvNoEvent(t, anaOut, 100*time.Millisecond)
}

func TestBroker_SendToOfflineOpponentFails(t *testing.T) {
	b := newTestBroker(t, time.Minute)
	b.Subscribe(ana.ID, make(chan protocol.Event, 1))

	if err := b.Send(ana, 99); !errors.Is(err, ErrOpponentOffline) {
		t.Fatalf("want ErrOpponentOffline, got %v", err)
	}
}

func TestBroker_SelfChallengeRejected(t *testing.T) {
	b := newTestBroker(t, time.Minute)
	if err := b.Send(ana, ana.ID); !errors.Is(err, ErrSelfChallenge) {
		t.Fatalf("want ErrSelfChallenge, got %v", err)
	}
}

func TestBroker_AcceptCreatesOneRoomForBoth(t *testing.T) {
	b := newTestBroker(t, time.Minute)
	anaOut := make(chan protocol.Event, 4)
	markoOut := make(chan protocol.Event, 4)
	b.Subscribe(ana.ID, anaOut)
	b.Subscribe(marko.ID, markoOut)

	if err := b.Send(ana, marko.ID); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = recvEvent(t, markoOut, time.Second) // challenge_received

	if err := b.Accept(marko, ana.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	anaAcc, ok := recvEvent(t, anaOut, time.Second).(protocol.ChallengeAccepted)
	if !ok {
		t.Fatalf("challenger must receive challenge_accepted")
	}
	markoAcc, ok := recvEvent(t, markoOut, time.Second).(protocol.ChallengeAccepted)
	if !ok {
		t.Fatalf("accepter must receive challenge_accepted")
	}
	if anaAcc.RoomID == "" || anaAcc.RoomID != markoAcc.RoomID {
		t.Fatalf("both must see the same room id: %q vs %q", anaAcc.RoomID, markoAcc.RoomID)
	}

	// The invitation is consumed; a second accept has nothing to resolve.
	if err := b.Accept(marko, ana.ID); !errors.Is(err, ErrNoPendingChallenge) {
		t.Fatalf("want ErrNoPendingChallenge, got %v", err)
	}
}

func TestBroker_AcceptWithoutChallengeFails(t *testing.T) {
	b := newTestBroker(t, time.Minute)
	b.Subscribe(marko.ID, make(chan protocol.Event, 1))

	if err := b.Accept(marko, ana.ID); !errors.Is(err, ErrNoPendingChallenge) {
		t.Fatalf("want ErrNoPendingChallenge, got %v", err)
	}
}

func TestBroker_ExpiryNotifiesChallenger(t *testing.T) {
	b := newTestBroker(t, 50*time.Millisecond)
	anaOut := make(chan protocol.Event, 4)
	markoOut := make(chan protocol.Event, 4)
	b.Subscribe(ana.ID, anaOut)
	b.Subscribe(marko.ID, markoOut)

	if err := b.Send(ana, marko.ID); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = recvEvent(t, markoOut, time.Second)

	exp, ok := recvEvent(t, anaOut, time.Second).(protocol.ChallengeExpired)
	if !ok {
		t.Fatalf("challenger must receive challenge_expired")
	}
	if exp.OpponentID != marko.ID {
		t.Fatalf("want expired opponent %d, got %d", marko.ID, exp.OpponentID)
	}

	// Expired invitations can no longer be accepted.
	if err := b.Accept(marko, ana.ID); !errors.Is(err, ErrNoPendingChallenge) {
		t.Fatalf("want ErrNoPendingChallenge, got %v", err)
	}
}

func TestBroker_MultipleOutstandingChallenges(t *testing.T) {
	b := newTestBroker(t, time.Minute)
	iva := protocol.User{ID: 3, Name: "Iva"}
	outs := map[uint]chan protocol.Event{}
	for _, u := range []protocol.User{ana, marko, iva} {
		out := make(chan protocol.Event, 4)
		outs[u.ID] = out
		b.Subscribe(u.ID, out)
	}

	// Ana challenges both Marko and Iva at once.
	if err := b.Send(ana, marko.ID); err != nil {
		t.Fatalf("send marko: %v", err)
	}
	if err := b.Send(ana, iva.ID); err != nil {
		t.Fatalf("send iva: %v", err)
	}

	if _, ok := recvEvent(t, outs[marko.ID], time.Second).(protocol.ChallengeReceived); !ok {
		t.Fatalf("marko missing challenge")
	}
	if _, ok := recvEvent(t, outs[iva.ID], time.Second).(protocol.ChallengeReceived); !ok {
		t.Fatalf("iva missing challenge")
	}

	// Both can be accepted independently.
	if err := b.Accept(marko, ana.ID); err != nil {
		t.Fatalf("accept marko: %v", err)
	}
	if err := b.Accept(iva, ana.ID); err != nil {
		t.Fatalf("accept iva: %v", err)
	}
}

// recvClosed drains any buffered events and fails unless the channel closes.
func recvClosed(t *testing.T, ch <-chan protocol.Event, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("outbox never closed")
		}
	}
}

func TestBroker_UnsubscribeClosesOutbox(t *testing.T) {
	b := newTestBroker(t, time.Minute)
	out := make(chan protocol.Event, 4)
	b.Subscribe(ana.ID, out)

	b.Unsubscribe(ana.ID)
	recvClosed(t, out, time.Second)
}

func TestBroker_ResubscribeClosesReplacedOutbox(t *testing.T) {
	b := newTestBroker(t, time.Minute)
	anaOut := make(chan protocol.Event, 4)
	old := make(chan protocol.Event, 4)
	replacement := make(chan protocol.Event, 4)
	b.Subscribe(ana.ID, anaOut)
	b.Subscribe(marko.ID, old)
	b.Subscribe(marko.ID, replacement)

	recvClosed(t, old, time.Second)

	// The replacement outbox is the live one.
	if err := b.Send(ana, marko.ID); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, ok := recvEvent(t, replacement, time.Second).(protocol.ChallengeReceived); !ok {
		t.Fatalf("replacement outbox did not receive the challenge")
	}
}
