package quiz

import (
	"errors"
	"testing"
)

func activeState(t *testing.T) State {
	t.Helper()
	s := NewState(Player{ID: 1, Name: "Ana"}, Player{ID: 2, Name: "Marko"}, Rules{Questions: 2, TimerSec: 10})
	q := &Question{ID: 10, Text: "q", Correct: ChoiceB}
	events, s, err := Apply(s, Command{Type: CmdAdvance, Question: q})
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !containsEvent(events, EvtQuestionStarted) {
		t.Fatalf("expected EvtQuestionStarted")
	}
	return s
}

func containsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func TestApply_AnswerValidation(t *testing.T) {
	cases := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{
			name:    "non-player rejected",
			cmd:     Command{Type: CmdAnswer, UserID: 99, QuestionID: 10, Choice: ChoiceB},
			wantErr: ErrNotPlayer,
		},
		{
			name:    "stale question id rejected",
			cmd:     Command{Type: CmdAnswer, UserID: 1, QuestionID: 9, Choice: ChoiceB},
			wantErr: ErrStaleQuestion,
		},
		{
			name: "valid answer accepted",
			cmd:  Command{Type: CmdAnswer, UserID: 1, QuestionID: 10, Choice: ChoiceB},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := activeState(t)
			_, _, err := Apply(s, tc.cmd)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
		})
	}
}

func TestApply_CorrectAnswerScores(t *testing.T) {
	s := activeState(t)

	events, next, err := Apply(s, Command{Type: CmdAnswer, UserID: 1, QuestionID: 10, Choice: ChoiceB})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !containsEvent(events, EvtAnswerScored) {
		t.Fatalf("expected EvtAnswerScored")
	}
	if events[0].Correct != true || events[0].UserID != 1 {
		t.Fatalf("want correct answer for user 1, got %+v", events[0])
	}
	if next.Scores[1] != 1 || next.Scores[2] != 0 {
		t.Fatalf("want scores 1/0, got %v", next.Scores)
	}
}

func TestApply_WrongAnswerDoesNotScore(t *testing.T) {
	s := activeState(t)

	events, next, err := Apply(s, Command{Type: CmdAnswer, UserID: 2, QuestionID: 10, Choice: ChoiceC})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if events[0].Correct {
		t.Fatalf("want incorrect, got %+v", events[0])
	}
	if next.Scores[2] != 0 {
		t.Fatalf("wrong answer must not score, got %v", next.Scores)
	}
}

func TestApply_DuplicateAnswerRejected(t *testing.T) {
	s := activeState(t)

	_, s, err := Apply(s, Command{Type: CmdAnswer, UserID: 1, QuestionID: 10, Choice: ChoiceB})
	if err != nil {
		t.Fatalf("first answer: %v", err)
	}

	_, next, err := Apply(s, Command{Type: CmdAnswer, UserID: 1, QuestionID: 10, Choice: ChoiceB})
	if !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("want ErrAlreadyAnswered, got %v", err)
	}
	if next.Scores[1] != 1 {
		t.Fatalf("duplicate must not double count, got %v", next.Scores)
	}
}

func TestApply_BothAnsweredRetiresQuestion(t *testing.T) {
	s := activeState(t)

	_, s, err := Apply(s, Command{Type: CmdAnswer, UserID: 1, QuestionID: 10, Choice: ChoiceB})
	if err != nil {
		t.Fatalf("answer 1: %v", err)
	}
	events, s, err := Apply(s, Command{Type: CmdAnswer, UserID: 2, QuestionID: 10, Choice: ChoiceA})
	if err != nil {
		t.Fatalf("answer 2: %v", err)
	}

	if !containsEvent(events, EvtQuestionRetired) {
		t.Fatalf("expected EvtQuestionRetired after both answered")
	}
	if s.Phase != PhaseAwaitingQuestion || s.Current != nil || s.Round != 1 {
		t.Fatalf("question not retired: phase=%v round=%d", s.Phase, s.Round)
	}
}

func TestApply_TimeoutRetiresWithoutScoring(t *testing.T) {
	s := activeState(t)

	events, next, err := Apply(s, Command{Type: CmdTimeout, QuestionID: 10})
	if err != nil {
		t.Fatalf("timeout: %v", err)
	}
	if !containsEvent(events, EvtQuestionRetired) {
		t.Fatalf("expected EvtQuestionRetired")
	}
	if next.Scores[1] != 0 || next.Scores[2] != 0 {
		t.Fatalf("timeout must not score, got %v", next.Scores)
	}

	// A stale timeout for the retired question must not fire twice.
	_, _, err = Apply(next, Command{Type: CmdTimeout, QuestionID: 10})
	if !errors.Is(err, ErrNoActiveQuestion) {
		t.Fatalf("want ErrNoActiveQuestion, got %v", err)
	}
}

func TestApply_GameCompletesAfterLastQuestion(t *testing.T) {
	s := activeState(t) // Rules.Questions = 2

	// Question 1: both answer, player 1 correct.
	_, s, _ = Apply(s, Command{Type: CmdAnswer, UserID: 1, QuestionID: 10, Choice: ChoiceB})
	_, s, _ = Apply(s, Command{Type: CmdAnswer, UserID: 2, QuestionID: 10, Choice: ChoiceD})

	// Question 2: times out.
	q2 := &Question{ID: 11, Text: "q2", Correct: ChoiceA}
	_, s, err := Apply(s, Command{Type: CmdAdvance, Question: q2})
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	events, s, err := Apply(s, Command{Type: CmdTimeout, QuestionID: 11})
	if err != nil {
		t.Fatalf("timeout: %v", err)
	}

	if !containsEvent(events, EvtGameCompleted) {
		t.Fatalf("expected EvtGameCompleted")
	}
	if s.Phase != PhaseGameOver {
		t.Fatalf("want PhaseGameOver, got %v", s.Phase)
	}
	if s.Winner() != 1 {
		t.Fatalf("want winner 1, got %d", s.Winner())
	}

	// Late answers after completion have no effect.
	_, after, err := Apply(s, Command{Type: CmdAnswer, UserID: 2, QuestionID: 11, Choice: ChoiceA})
	if !errors.Is(err, ErrGameCompleted) {
		t.Fatalf("want ErrGameCompleted, got %v", err)
	}
	if after.Scores[2] != 0 {
		t.Fatalf("post-game answer must not score, got %v", after.Scores)
	}
}

func TestWinner_TieIsZero(t *testing.T) {
	s := NewState(Player{ID: 1}, Player{ID: 2}, DefaultRules)
	s.Scores[1] = 3
	s.Scores[2] = 3
	if got := s.Winner(); got != 0 {
		t.Fatalf("tie must report winner 0, got %d", got)
	}
}

func TestApply_ForfeitAwardsOpponent(t *testing.T) {
	s := activeState(t)

	events, next, err := Apply(s, Command{Type: CmdForfeit, UserID: 2})
	if err != nil {
		t.Fatalf("forfeit: %v", err)
	}
	if !containsEvent(events, EvtGameCompleted) {
		t.Fatalf("expected EvtGameCompleted")
	}
	if events[0].Winner != 1 {
		t.Fatalf("want forfeit winner 1, got %d", events[0].Winner)
	}
	if next.Phase != PhaseGameOver {
		t.Fatalf("want PhaseGameOver, got %v", next.Phase)
	}
}

func TestParseChoice(t *testing.T) {
	cases := []struct {
		in   string
		want Choice
		ok   bool
	}{
		{"A", ChoiceA, true},
		{"b", ChoiceB, true},
		{"D", ChoiceD, true},
		{"E", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseChoice(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseChoice(%q) = %q,%v; want %q,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
