package store

import (
	"context"
	"math/rand"
	"sync"

	"github.com/tamarabolmanac/hajki-quiz/internal/quiz"
)

// Memory is the in-process store used when no DATABASE_URL is configured and
// throughout the tests. Same contract as DB, nothing survives a restart.
type Memory struct {
	mu     sync.RWMutex
	nextID uint
	users  map[uint]*User
	byMail map[string]uint
	bank   []Question
}

func NewMemory() *Memory {
	return &Memory{
		nextID: 1,
		users:  map[uint]*User{},
		byMail: map[string]uint{},
		bank:   defaultBank(),
	}
}

func (m *Memory) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byMail[u.Email]; taken {
		return ErrEmailTaken
	}
	u.ID = m.nextID
	m.nextID++
	cp := *u
	m.users[u.ID] = &cp
	m.byMail[u.Email] = u.ID
	return nil
}

func (m *Memory) UserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byMail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *Memory) UserByID(_ context.Context, id uint) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) RandomQuestions(_ context.Context, n int) ([]quiz.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := rand.Perm(len(m.bank))
	if n > len(idx) {
		n = len(idx)
	}
	out := make([]quiz.Question, 0, n)
	for _, i := range idx[:n] {
		out = append(out, m.bank[i].toQuiz())
	}
	return out, nil
}

// defaultBank is the built-in nature quiz ("prirodnjački kviz") question set.
func defaultBank() []Question {
	return []Question{
		{ID: 1, Text: "Koja je najviša planina u Srbiji?", A: "Kopaonik", B: "Midžor", C: "Tara", D: "Zlatibor", Correct: "B"},
		{ID: 2, Text: "Koje drvo je simbol dugovečnosti?", A: "Hrast", B: "Breza", C: "Topola", D: "Vrba", Correct: "A"},
		{ID: 3, Text: "Koja ptica je najbrža u obrušavanju?", A: "Orao", B: "Soko sivi", C: "Jastreb", D: "Lasta", Correct: "B"},
		{ID: 4, Text: "Kako se zove najduža reka koja protiče kroz Srbiju?", A: "Sava", B: "Morava", C: "Dunav", D: "Tisa", Correct: "C"},
		{ID: 5, Text: "Koja životinja je zaštitni znak Tare?", A: "Mrki medved", B: "Vuk", C: "Ris", D: "Divokoza", Correct: "A"},
		{ID: 6, Text: "Koliko nogu ima pauk?", A: "Šest", B: "Osam", C: "Deset", D: "Dvanaest", Correct: "B"},
		{ID: 7, Text: "Koji nacionalni park je poznat po Uvačkim meandrima?", A: "Đerdap", B: "Fruška gora", C: "Uvac", D: "Kopaonik", Correct: "C"},
		{ID: 8, Text: "Koja pečurka je smrtno otrovna?", A: "Vrganj", B: "Lisičarka", C: "Šampinjon", D: "Zelena pupavka", Correct: "D"},
		{ID: 9, Text: "Šta beleška planinarska markacija crveno-bele boje označava?", A: "Zabranjen prolaz", B: "Planinarsku stazu", C: "Lovište", D: "Izvor vode", Correct: "B"},
		{ID: 10, Text: "Koja zmija u Srbiji je otrovna?", A: "Belouška", B: "Smuk", C: "Poskok", D: "Ribarica", Correct: "C"},
	}
}
