package session

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/korjavin/medcasebot/delivery"
	"github.com/korjavin/medcasebot/models"
)

// State is the position of a session in its lifecycle
type State string

const (
	StateIdle           State = "idle"
	StateSelecting      State = "selecting"
	StateDelivering     State = "delivering"
	StateAwaitingAnswer State = "awaiting_answer"
	StateCompleting     State = "completing"
)

// Session is one user's run through a fixed batch of cases
type Session struct {
	ID           string        `json:"id"`
	UserID       int64         `json:"user_id"`
	ChatID       int64         `json:"chat_id"`
	CaseIDs      []string      `json:"case_ids"`
	Index        int           `json:"index"`
	Correct      int           `json:"correct"`
	Answered     int           `json:"answered"`
	ActiveCaseID string        `json:"active_case_id,omitempty"`
	ActiveAnswer models.Answer `json:"active_answer,omitempty"`
	State        State         `json:"state"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.CaseIDs = append([]string(nil), s.CaseIDs...)
	return &c
}

// BatchRequest carries everything needed to select a new batch
type BatchRequest struct {
	UserID     int64
	ChatID     int64
	DailyLimit int
	Progress   int
	Catalog    []string
	Answered   []string
}

// Event is an input that advances an existing session
type Event interface{ event() }

// DeliveryFinished reports the outcome of delivering the current case
type DeliveryFinished struct {
	CaseID  string
	Outcome delivery.Outcome
	Correct models.Answer
}

// AnswerReceived is a reply from the user. CaseID is set when the reply came from
// an answer button and is empty for typed replies.
type AnswerReceived struct {
	CaseID string
	Answer models.Answer
}

func (DeliveryFinished) event() {}
func (AnswerReceived) event()   {}

// Effect is an action the engine performs on behalf of the machine
type Effect interface{ effect() }

type NoticeKind int

const (
	NoticeQuotaExceeded NoticeKind = iota
	NoticeNoCases
	NoticeRestarting
	NoticeBatchStarted
	NoticeSessionExpired
	NoticeSummary
)

// Notice is a user-facing message
type Notice struct {
	Kind      NoticeKind
	Limit     int
	Count     int
	Correct   int
	Incorrect int
	Percent   int
}

// Deliver asks the engine to deliver a case and report back with DeliveryFinished
type Deliver struct {
	CaseID string
}

// PresentChoice shows the four answer buttons for a delivered case
type PresentChoice struct {
	CaseID string
}

// RecordAnswer persists an answer and updates statistics and quota
type RecordAnswer struct {
	UserID    int64
	SessionID string
	CaseID    string
	Answer    models.Answer
	Correct   bool
}

// ShowDistribution displays how everyone answered the case
type ShowDistribution struct {
	CaseID  string
	Correct models.Answer
	Chosen  models.Answer
}

// Discard removes the session from the store
type Discard struct{}

func (Notice) effect()           {}
func (Deliver) effect()          {}
func (PresentChoice) effect()    {}
func (RecordAnswer) effect()     {}
func (ShowDistribution) effect() {}
func (Discard) effect()          {}

// Machine decides session transitions without performing any I/O.
// The returned session is a fresh value; nil means no session exists afterwards.
type Machine struct {
	shuffle func(n int, swap func(i, j int))
	newID   func() string
}

// NewMachine creates a machine; nil arguments select math/rand and uuid
func NewMachine(shuffle func(n int, swap func(i, j int)), newID func() string) *Machine {
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Machine{shuffle: shuffle, newID: newID}
}

// Start selects a batch for the user and begins delivering it
func (m *Machine) Start(req BatchRequest) (*Session, []Effect) {
	remaining := req.DailyLimit - req.Progress
	if remaining <= 0 {
		return nil, []Effect{Notice{Kind: NoticeQuotaExceeded, Limit: req.DailyLimit}}
	}

	catalog := unique(req.Catalog)
	if len(catalog) == 0 {
		return nil, []Effect{Notice{Kind: NoticeNoCases}}
	}

	var effects []Effect
	answered := make(map[string]bool, len(req.Answered))
	for _, id := range req.Answered {
		answered[id] = true
	}
	available := make([]string, 0, len(catalog))
	for _, id := range catalog {
		if !answered[id] {
			available = append(available, id)
		}
	}
	if len(available) == 0 {
		available = catalog
		effects = append(effects, Notice{Kind: NoticeRestarting})
	}

	m.shuffle(len(available), func(i, j int) {
		available[i], available[j] = available[j], available[i]
	})
	n := min(remaining, len(available))

	s := &Session{
		ID:      m.newID(),
		UserID:  req.UserID,
		ChatID:  req.ChatID,
		CaseIDs: append([]string(nil), available[:n]...),
		State:   StateDelivering,
	}
	effects = append(effects, Notice{Kind: NoticeBatchStarted, Count: n})
	next, more := m.advance(s)
	return next, append(effects, more...)
}

// Step applies an event to a session. s may be nil when the user has no session.
func (m *Machine) Step(s *Session, ev Event) (*Session, []Effect) {
	switch e := ev.(type) {
	case DeliveryFinished:
		return m.onDelivery(s, e)
	case AnswerReceived:
		return m.onAnswer(s, e)
	}
	return s, nil
}

func (m *Machine) onDelivery(s *Session, e DeliveryFinished) (*Session, []Effect) {
	if s == nil || s.State != StateDelivering || s.Index >= len(s.CaseIDs) || s.CaseIDs[s.Index] != e.CaseID {
		return s, nil
	}
	next := s.clone()
	if e.Outcome == delivery.OutcomeSuccess {
		next.ActiveCaseID = e.CaseID
		next.ActiveAnswer = e.Correct
		next.State = StateAwaitingAnswer
		return next, []Effect{PresentChoice{CaseID: e.CaseID}}
	}
	next.Index++
	return m.advance(next)
}

func (m *Machine) onAnswer(s *Session, e AnswerReceived) (*Session, []Effect) {
	if s == nil {
		return nil, []Effect{Notice{Kind: NoticeSessionExpired}}
	}
	if s.State != StateAwaitingAnswer {
		return s, nil
	}
	if e.CaseID != "" && e.CaseID != s.ActiveCaseID {
		// a button from a case that has already been answered
		return s, []Effect{Notice{Kind: NoticeSessionExpired}}
	}

	next := s.clone()
	correct := e.Answer == next.ActiveAnswer
	effects := []Effect{
		RecordAnswer{UserID: next.UserID, SessionID: next.ID, CaseID: next.ActiveCaseID, Answer: e.Answer, Correct: correct},
		ShowDistribution{CaseID: next.ActiveCaseID, Correct: next.ActiveAnswer, Chosen: e.Answer},
	}
	next.Answered++
	if correct {
		next.Correct++
	}
	next.ActiveCaseID = ""
	next.ActiveAnswer = ""
	next.Index++
	next.State = StateDelivering

	after, more := m.advance(next)
	return after, append(effects, more...)
}

// advance moves a delivering session to its next case or completes it
func (m *Machine) advance(s *Session) (*Session, []Effect) {
	if s.Index < len(s.CaseIDs) {
		return s, []Effect{Deliver{CaseID: s.CaseIDs[s.Index]}}
	}
	s.State = StateCompleting
	return nil, []Effect{
		Notice{
			Kind:      NoticeSummary,
			Correct:   s.Correct,
			Incorrect: s.Answered - s.Correct,
			Percent:   Percentage(s.Correct, s.Answered),
		},
		Discard{},
	}
}

// Percentage returns correct/total as a rounded percentage, 0 when total is 0
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
