package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"geoquiz/pkg/featurestore"
	"geoquiz/pkg/geo"
	"geoquiz/pkg/model"
)

var (
	// ErrUnknownFeature indicates the id is not among the remaining quiz targets.
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrRootMismatch indicates a persisted session belongs to a different quiz.
	ErrRootMismatch = errors.New("session belongs to another quiz")
)

// Outcome is the state of one quizzable feature within a session.
type Outcome string

const (
	OutcomeRemaining Outcome = "remaining"
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
)

// Progress summarizes a session.
type Progress struct {
	Total     int  `json:"total"`
	Remaining int  `json:"remaining"`
	Correct   int  `json:"correct"`
	Incorrect int  `json:"incorrect"`
	Complete  bool `json:"complete"`
}

// Session tracks which quizzable features of a quiz have been answered.
// Every quizzable id is in exactly one of remaining, correct or incorrect.
type Session struct {
	mu        sync.Mutex
	rng       *rand.Rand
	logger    *slog.Logger
	rootID    string
	order     []string
	outcomes  map[string]Outcome
	correct   []string
	incorrect []string
	current   string
}

// Option configures a Session.
type Option func(*Session)

// WithRand sets the random source used for shuffling and target picks.
func WithRand(rng *rand.Rand) Option {
	return func(s *Session) { s.rng = rng }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// NewSession creates an empty session. Call Reset to populate it.
func NewSession(opts ...Option) *Session {
	s := &Session{outcomes: make(map[string]Outcome), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		seed := uint64(time.Now().UnixNano())
		s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return s
}

// Reset rebuilds the session from snap. Starting at the Root, the children of
// each parent are shuffled and appended, then each child is visited in the
// shuffled order.
func (s *Session) Reset(snap *featurestore.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rootID = snap.RootID()
	s.order = s.order[:0]
	s.outcomes = make(map[string]Outcome)
	s.correct = nil
	s.incorrect = nil
	s.current = ""

	s.visit(snap, snap.RootID())
	s.logger.Debug("Quiz session reset", "root", s.rootID, "features", len(s.order))
}

func (s *Session) visit(snap *featurestore.Snapshot, id string) {
	children := make([]string, 0, len(snap.Children(id)))
	for _, c := range snap.Children(id) {
		if _, ok := snap.Get(c); !ok {
			continue
		}
		if _, seen := s.outcomes[c]; seen {
			continue
		}
		s.outcomes[c] = OutcomeRemaining
		children = append(children, c)
	}

	shuffle(s.rng, children)
	s.order = append(s.order, children...)
	for _, c := range children {
		s.visit(snap, c)
	}
}

// Sync brings the session in line with an edited tree of the same quiz.
// Ids that are no longer quizzable leave every set; newly quizzable ids join
// remaining in random order. Recorded answers are kept.
func (s *Session) Sync(snap *featurestore.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.RootID() != s.rootID {
		return fmt.Errorf("%w: session %s, tree %s", ErrRootMismatch, s.rootID, snap.RootID())
	}

	ids := snap.Quizzable()
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	gone := func(id string) bool { return !keep[id] }

	removed := 0
	for id := range s.outcomes {
		if gone(id) {
			delete(s.outcomes, id)
			removed++
		}
	}
	s.order = slices.DeleteFunc(s.order, gone)
	s.correct = slices.DeleteFunc(s.correct, gone)
	s.incorrect = slices.DeleteFunc(s.incorrect, gone)
	if gone(s.current) {
		s.current = ""
	}

	var added []string
	for _, id := range ids {
		if _, ok := s.outcomes[id]; !ok {
			s.outcomes[id] = OutcomeRemaining
			added = append(added, id)
		}
	}
	shuffle(s.rng, added)
	s.order = append(s.order, added...)

	if removed > 0 || len(added) > 0 {
		s.logger.Debug("Quiz session synced", "root", s.rootID, "added", len(added), "removed", removed)
	}
	return nil
}

// shuffle is a Fisher-Yates shuffle.
func shuffle(rng *rand.Rand, ids []string) {
	for i := len(ids) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}

// RootID returns the Root the session was built from.
func (s *Session) RootID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootID
}

// MarkCorrect moves id from remaining to correct.
func (s *Session) MarkCorrect(id string) error {
	return s.mark(id, OutcomeCorrect)
}

// MarkIncorrect moves id from remaining to incorrect.
func (s *Session) MarkIncorrect(id string) error {
	return s.mark(id, OutcomeIncorrect)
}

func (s *Session) mark(id string, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markLocked(id, outcome)
}

func (s *Session) markLocked(id string, outcome Outcome) error {
	if s.outcomes[id] != OutcomeRemaining {
		return fmt.Errorf("%w: %s is not remaining", ErrUnknownFeature, id)
	}
	s.outcomes[id] = outcome
	if outcome == OutcomeCorrect {
		s.correct = append(s.correct, id)
	} else {
		s.incorrect = append(s.incorrect, id)
	}
	if s.current == id {
		s.current = ""
	}
	return nil
}

// Answer grades a map click for id and records the outcome. An Area is
// answered correctly when the click lies inside its polygon, a Point when the
// click is within toleranceMeters of it.
func (s *Session) Answer(snap *featurestore.Snapshot, id string, click orb.Point, toleranceMeters float64) (bool, error) {
	f, ok := snap.Get(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownFeature, id)
	}

	var correct bool
	switch v := f.(type) {
	case model.Area:
		correct = geo.PointInPolygon(click, v.Geometry)
	case model.Point:
		correct = geo.Distance(click, v.Coord) <= toleranceMeters
	case model.Root:
		return false, fmt.Errorf("%w: root is not quizzable", ErrUnknownFeature)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	outcome := OutcomeIncorrect
	if correct {
		outcome = OutcomeCorrect
	}
	if err := s.markLocked(id, outcome); err != nil {
		return false, err
	}
	return correct, nil
}

// Current returns the feature to ask about next. It is a random member of
// remaining and stays the same until it is answered. ok is false once the
// session is complete.
func (s *Session) Current() (id string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != "" {
		return s.current, true
	}
	remaining := s.remainingLocked()
	if len(remaining) == 0 {
		return "", false
	}
	s.current = remaining[s.rng.IntN(len(remaining))]
	return s.current, true
}

// Remaining returns the unanswered ids in their initial population order.
func (s *Session) Remaining() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked()
}

func (s *Session) remainingLocked() []string {
	out := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if s.outcomes[id] == OutcomeRemaining {
			out = append(out, id)
		}
	}
	return out
}

// Correct returns the ids answered correctly, in answer order.
func (s *Session) Correct() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.correct...)
}

// Incorrect returns the ids answered incorrectly, in answer order.
func (s *Session) Incorrect() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.incorrect...)
}

// Complete reports whether no features remain.
func (s *Session) Complete() bool {
	return s.Progress().Complete
}

// Progress returns the session counters.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Progress{
		Total:     len(s.order),
		Correct:   len(s.correct),
		Incorrect: len(s.incorrect),
	}
	p.Remaining = p.Total - p.Correct - p.Incorrect
	p.Complete = p.Remaining == 0
	return p
}

// persistedSession is the serialized form of a Session.
type persistedSession struct {
	RootID    string   `json:"root_id"`
	Order     []string `json:"order"`
	Correct   []string `json:"correct"`
	Incorrect []string `json:"incorrect"`
	Current   string   `json:"current,omitempty"`
}

// MarshalJSON serializes the session so it can be resumed later.
func (s *Session) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(persistedSession{
		RootID:    s.rootID,
		Order:     s.order,
		Correct:   s.correct,
		Incorrect: s.incorrect,
		Current:   s.current,
	})
}

// Restore loads a session serialized by MarshalJSON. Ids that are no longer
// quizzable in snap are discarded. It fails with ErrRootMismatch if the data was saved
// for another quiz.
func (s *Session) Restore(data []byte, snap *featurestore.Snapshot) error {
	var ps persistedSession
	if err := json.Unmarshal(data, &ps); err != nil {
		return fmt.Errorf("failed to decode session: %w", err)
	}
	if ps.RootID != snap.RootID() {
		return fmt.Errorf("%w: saved %s, loaded %s", ErrRootMismatch, ps.RootID, snap.RootID())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rootID = ps.RootID
	s.order = s.order[:0]
	s.outcomes = make(map[string]Outcome)
	s.correct = nil
	s.incorrect = nil
	s.current = ""

	quizzable := make(map[string]bool)
	for _, id := range snap.Quizzable() {
		quizzable[id] = true
	}
	for _, id := range ps.Order {
		if !quizzable[id] {
			continue
		}
		if _, dup := s.outcomes[id]; dup {
			continue
		}
		s.order = append(s.order, id)
		s.outcomes[id] = OutcomeRemaining
	}
	for _, id := range ps.Correct {
		if s.outcomes[id] == OutcomeRemaining {
			_ = s.markLocked(id, OutcomeCorrect)
		}
	}
	for _, id := range ps.Incorrect {
		if s.outcomes[id] == OutcomeRemaining {
			_ = s.markLocked(id, OutcomeIncorrect)
		}
	}
	if s.outcomes[ps.Current] == OutcomeRemaining {
		s.current = ps.Current
	}
	return nil
}
