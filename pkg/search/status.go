package search

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Status is the lifecycle of the most recent search of an engine.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSearching Status = "searching"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
)

// State is a point-in-time view of an engine's latest search.
type State[T any] struct {
	Token   uint64 `json:"token"`
	Term    string `json:"term"`
	Status  Status `json:"status"`
	Results []T    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// latest implements latest-request-wins: every request takes a token from a
// monotonically increasing counter, and a response is applied only if its
// token is still the newest one issued.
type latest[T any] struct {
	seq   atomic.Uint64
	mu    sync.RWMutex
	state State[T]
}

func newLatest[T any]() *latest[T] {
	return &latest[T]{state: State[T]{Status: StatusIdle}}
}

// begin issues a new token and marks the engine as searching for term.
func (l *latest[T]) begin(term string) uint64 {
	token := l.seq.Add(1)

	l.mu.Lock()
	defer l.mu.Unlock()
	// A slower begin may race a faster one; never step backwards.
	if token > l.state.Token {
		l.state = State[T]{Token: token, Term: term, Status: StatusSearching}
	}
	return token
}

// idle records an empty term, which clears the results without a query.
func (l *latest[T]) idle(token uint64) bool {
	return l.apply(token, func(s *State[T]) {
		s.Status = StatusIdle
		s.Results = nil
	})
}

// finish applies results for token. It returns false if token was superseded.
func (l *latest[T]) finish(token uint64, results []T, err error) bool {
	return l.apply(token, func(s *State[T]) {
		if err != nil && !errors.Is(err, ErrSuperseded) {
			s.Status = StatusFailed
			s.Error = err.Error()
			s.Results = nil
			return
		}
		s.Status = StatusDone
		s.Results = results
	})
}

func (l *latest[T]) apply(token uint64, fn func(s *State[T])) bool {
	if l.seq.Load() != token {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.Token != token || l.seq.Load() != token {
		return false
	}
	fn(&l.state)
	return true
}

func (l *latest[T]) snapshot() State[T] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := l.state
	s.Results = append([]T(nil), l.state.Results...)
	return s
}
