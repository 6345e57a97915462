// Package quiz is the pure duel engine: a two-player state, commands applied
// through Apply, and the events they emit. No I/O and no clocks; the room
// actor owns scheduling and feeds timeouts in as commands.
package quiz

import "errors"

var ErrNotPlayer = errors.New("user is not a player in this game")
var ErrNoActiveQuestion = errors.New("no active question")
var ErrQuestionActive = errors.New("question still active")
var ErrStaleQuestion = errors.New("answer references a retired question")
var ErrAlreadyAnswered = errors.New("player already answered this question")
var ErrGameCompleted = errors.New("game already completed")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Choice string

const (
	ChoiceA Choice = "A"
	ChoiceB Choice = "B"
	ChoiceC Choice = "C"
	ChoiceD Choice = "D"
)

// ParseChoice normalizes a client-supplied answer letter.
func ParseChoice(s string) (Choice, bool) {
	switch s {
	case "A", "a":
		return ChoiceA, true
	case "B", "b":
		return ChoiceB, true
	case "C", "c":
		return ChoiceC, true
	case "D", "d":
		return ChoiceD, true
	default:
		return "", false
	}
}

// Question is the server-side shape, correct choice included.
type Question struct {
	ID      uint
	Text    string
	A       string
	B       string
	C       string
	D       string
	Correct Choice
}

type Phase string

const (
	PhaseAwaitingQuestion Phase = "awaiting_question"
	PhaseQuestionActive   Phase = "question_active"
	PhaseGameOver         Phase = "game_over"
)

type Player struct {
	ID   uint
	Name string
}

type Rules struct {
	Questions int // questions per game
	TimerSec  int // authoritative per-question timer
}

// DefaultRules matches the original duel: five questions, ten seconds each.
var DefaultRules = Rules{Questions: 5, TimerSec: 10}

type State struct {
	Players  [2]Player
	Phase    Phase
	Round    int // questions already retired
	Current  *Question
	Answered map[uint]bool
	Scores   map[uint]int
	Rules    Rules
}

func NewState(p1, p2 Player, rules Rules) State {
	return State{
		Players:  [2]Player{p1, p2},
		Phase:    PhaseAwaitingQuestion,
		Answered: map[uint]bool{},
		Scores:   map[uint]int{p1.ID: 0, p2.ID: 0},
		Rules:    rules,
	}
}

func (s State) IsPlayer(id uint) bool {
	return s.Players[0].ID == id || s.Players[1].ID == id
}

func (s State) Opponent(id uint) (Player, bool) {
	switch id {
	case s.Players[0].ID:
		return s.Players[1], true
	case s.Players[1].ID:
		return s.Players[0], true
	default:
		return Player{}, false
	}
}

// Winner returns the leading player's id, or 0 on a tie.
func (s State) Winner() uint {
	p1, p2 := s.Players[0], s.Players[1]
	switch {
	case s.Scores[p1.ID] > s.Scores[p2.ID]:
		return p1.ID
	case s.Scores[p2.ID] > s.Scores[p1.ID]:
		return p2.ID
	default:
		return 0
	}
}

type CommandType string

const (
	CmdAnswer  CommandType = "Answer"
	CmdTimeout CommandType = "Timeout"
	CmdAdvance CommandType = "Advance"
	CmdForfeit CommandType = "Forfeit"
)

type Command struct {
	Type       CommandType
	UserID     uint
	QuestionID uint
	Choice     Choice
	Question   *Question // CmdAdvance only
}

type EventType string

const (
	EvtAnswerScored    EventType = "AnswerScored"
	EvtQuestionStarted EventType = "QuestionStarted"
	EvtQuestionRetired EventType = "QuestionRetired"
	EvtGameCompleted   EventType = "GameCompleted"
)

type Event struct {
	Type    EventType
	UserID  uint
	Correct bool
	Winner  uint // EvtGameCompleted
}

// Apply runs one command against the state and returns the emitted events and
// the new state. On error the returned state is the input, unchanged.
func Apply(s State, cmd Command) ([]Event, State, error) {
	if s.Phase == PhaseGameOver {
		return nil, s, ErrGameCompleted
	}

	newState := s

	switch cmd.Type {
	case CmdAnswer:
		if !s.IsPlayer(cmd.UserID) {
			return nil, s, ErrNotPlayer
		}
		if s.Phase != PhaseQuestionActive || s.Current == nil {
			return nil, s, ErrNoActiveQuestion
		}
		if cmd.QuestionID != s.Current.ID {
			return nil, s, ErrStaleQuestion
		}
		if s.Answered[cmd.UserID] {
			return nil, s, ErrAlreadyAnswered
		}

		correct := cmd.Choice == s.Current.Correct
		newState.Answered = cloneSet(s.Answered)
		newState.Answered[cmd.UserID] = true
		newState.Scores = cloneScores(s.Scores)
		if correct {
			newState.Scores[cmd.UserID]++
		}

		events := []Event{{Type: EvtAnswerScored, UserID: cmd.UserID, Correct: correct}}
		if newState.allAnswered() {
			events = append(events, retire(&newState)...)
		}
		return events, newState, nil

	case CmdTimeout:
		if s.Phase != PhaseQuestionActive || s.Current == nil {
			return nil, s, ErrNoActiveQuestion
		}
		if cmd.QuestionID != s.Current.ID {
			return nil, s, ErrStaleQuestion
		}
		return retire(&newState), newState, nil

	case CmdAdvance:
		if s.Phase != PhaseAwaitingQuestion {
			return nil, s, ErrQuestionActive
		}
		q := *cmd.Question
		newState.Current = &q
		newState.Answered = map[uint]bool{}
		newState.Phase = PhaseQuestionActive
		return []Event{{Type: EvtQuestionStarted}}, newState, nil

	case CmdForfeit:
		opp, ok := s.Opponent(cmd.UserID)
		if !ok {
			return nil, s, ErrNotPlayer
		}
		newState.Phase = PhaseGameOver
		newState.Current = nil
		return []Event{{Type: EvtGameCompleted, Winner: opp.ID}}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func (s State) allAnswered() bool {
	return s.Answered[s.Players[0].ID] && s.Answered[s.Players[1].ID]
}

// retire closes the current question in place and emits completion when the
// game length is reached. Intended only for the post-copy state inside Apply.
func retire(s *State) []Event {
	s.Current = nil
	s.Round++
	s.Phase = PhaseAwaitingQuestion

	events := []Event{{Type: EvtQuestionRetired}}
	if s.Round >= s.Rules.Questions {
		s.Phase = PhaseGameOver
		events = append(events, Event{Type: EvtGameCompleted, Winner: s.Winner()})
	}
	return events
}

func cloneSet(m map[uint]bool) map[uint]bool {
	out := make(map[uint]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneScores(m map[uint]int) map[uint]int {
	out := make(map[uint]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
