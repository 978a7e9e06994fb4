package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"geoquiz/pkg/featurestore"
	"geoquiz/pkg/model"
	"geoquiz/pkg/quiz"
	"geoquiz/pkg/store"
)

// State keys used to resume work after a restart.
const (
	activeQuizStateKey = "active_quiz"
	sessionStateKey    = "quiz_session"
)

// ErrQuizNotFound indicates no saved or active quiz has the requested Root id.
var ErrQuizNotFound = errors.New("quiz not found")

// Workspace holds the quiz being built or taken and its taker session.
type Workspace struct {
	mu       sync.RWMutex
	features *featurestore.Store
	name     string

	// edit serializes tree edits with the session sync that follows them.
	edit sync.Mutex

	session *quiz.Session
	store   store.Store
	opts    []featurestore.Option
	logger  *slog.Logger
}

// NewWorkspace starts with an empty, unnamed quiz.
func NewWorkspace(st store.Store, session *quiz.Session, logger *slog.Logger, opts ...featurestore.Option) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Workspace{
		session: session,
		store:   st,
		opts:    opts,
		logger:  logger,
	}
	w.features = featurestore.New(opts...)
	w.session.Reset(w.features.Snapshot())
	return w
}

// Features returns the store of the active quiz.
func (w *Workspace) Features() *featurestore.Store {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.features
}

// Snapshot returns the current tree of the active quiz.
func (w *Workspace) Snapshot() *featurestore.Snapshot {
	return w.Features().Snapshot()
}

// Name returns the name of the active quiz.
func (w *Workspace) Name() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.name
}

// Session returns the taker session of the active quiz.
func (w *Workspace) Session() *quiz.Session {
	return w.session
}

// Create replaces the active quiz with an empty one.
func (w *Workspace) Create(ctx context.Context, name string) *featurestore.Snapshot {
	fs := featurestore.New(w.opts...)
	w.activate(ctx, fs, name)
	w.logger.Info("Quiz created", "root_id", fs.RootID(), "name", name)
	return fs.Snapshot()
}

// Load makes the saved quiz rootID the active one and starts a new session.
func (w *Workspace) Load(ctx context.Context, rootID string) (*featurestore.Snapshot, error) {
	q, err := w.store.GetQuiz(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to read quiz: %w", err)
	}
	if q == nil {
		return nil, fmt.Errorf("%w: %s", ErrQuizNotFound, rootID)
	}

	snap, err := featurestore.UnmarshalSnapshot(q.Data)
	if err != nil {
		return nil, err
	}
	fs, err := featurestore.NewFromSnapshot(snap, w.opts...)
	if err != nil {
		return nil, err
	}
	w.activate(ctx, fs, q.Name)
	w.logger.Info("Quiz loaded", "root_id", rootID, "name", q.Name, "features", q.FeatureCount)
	return fs.Snapshot(), nil
}

// Save persists the active quiz, provided rootID names it. A non-empty name
// renames the quiz.
func (w *Workspace) Save(ctx context.Context, rootID, name string) (*store.Quiz, error) {
	w.mu.Lock()
	if w.features.RootID() != rootID {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is not the active quiz", ErrQuizNotFound, rootID)
	}
	if name != "" {
		w.name = name
	}
	snap := w.features.Snapshot()
	q := &store.Quiz{RootID: rootID, Name: w.name, FeatureCount: len(snap.Quizzable())}
	w.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode quiz: %w", err)
	}
	q.Data = data
	if err := w.store.SaveQuiz(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to save quiz: %w", err)
	}
	w.logger.Info("Quiz saved", "root_id", rootID, "name", q.Name, "features", q.FeatureCount)
	return q, nil
}

// Resume restores the quiz and session that were active before a restart.
// It is a no-op when nothing was saved.
func (w *Workspace) Resume(ctx context.Context) error {
	rootID, ok := w.store.GetState(ctx, activeQuizStateKey)
	if !ok || rootID == "" {
		return nil
	}
	// Read the session before Load replaces it with a fresh one.
	data, hasSession := w.store.GetState(ctx, sessionStateKey)

	snap, err := w.Load(ctx, rootID)
	if err != nil {
		return err
	}
	if !hasSession {
		return nil
	}
	if err := w.session.Restore([]byte(data), snap); err != nil {
		w.logger.Warn("Discarding saved session", "error", err)
		w.session.Reset(snap)
	}
	w.persistSession(ctx)
	w.logger.Info("Session restored", "root_id", rootID, "progress", w.session.Progress())
	return nil
}

// AddChild adds child under parentID in the active quiz.
func (w *Workspace) AddChild(ctx context.Context, parentID string, child model.Feature) (*featurestore.Snapshot, error) {
	return w.editTree(ctx, func(fs *featurestore.Store) (*featurestore.Snapshot, error) {
		return fs.AddChild(parentID, child)
	})
}

// SetChildren reorders the children of parentID in the active quiz.
func (w *Workspace) SetChildren(ctx context.Context, parentID string, orderedIDs []string) (*featurestore.Snapshot, error) {
	return w.editTree(ctx, func(fs *featurestore.Store) (*featurestore.Snapshot, error) {
		return fs.SetChildren(parentID, orderedIDs)
	})
}

// Rename sets the user-defined name of id in the active quiz.
func (w *Workspace) Rename(ctx context.Context, id, name string) (*featurestore.Snapshot, error) {
	return w.Features().Rename(id, name)
}

// Delete removes id from the active quiz.
func (w *Workspace) Delete(ctx context.Context, id string) (*featurestore.Snapshot, error) {
	return w.editTree(ctx, func(fs *featurestore.Store) (*featurestore.Snapshot, error) {
		return fs.Delete(id)
	})
}

// editTree applies a structural edit and carries the session along, so every
// quizzable feature stays in exactly one of remaining, correct or incorrect.
func (w *Workspace) editTree(ctx context.Context, fn func(*featurestore.Store) (*featurestore.Snapshot, error)) (*featurestore.Snapshot, error) {
	w.edit.Lock()
	defer w.edit.Unlock()

	fs := w.Features()
	snap, err := fn(fs)
	if err != nil {
		return nil, err
	}
	if err := w.session.Sync(snap); err != nil {
		w.logger.Warn("Session out of step with the tree, resetting", "error", err)
		w.session.Reset(snap)
	}
	w.persistSession(ctx)
	return snap, nil
}

// ResetSession starts the session over from the current tree.
func (w *Workspace) ResetSession(ctx context.Context) {
	w.session.Reset(w.Snapshot())
	w.persistSession(ctx)
}

// persistSession stores the session so a restart can resume it.
func (w *Workspace) persistSession(ctx context.Context) {
	data, err := json.Marshal(w.session)
	if err != nil {
		w.logger.Error("Failed to encode session", "error", err)
		return
	}
	if err := w.store.SetState(ctx, sessionStateKey, string(data)); err != nil {
		w.logger.Error("Failed to persist session", "error", err)
	}
}

func (w *Workspace) activate(ctx context.Context, fs *featurestore.Store, name string) {
	w.edit.Lock()
	defer w.edit.Unlock()

	w.mu.Lock()
	w.features = fs
	w.name = name
	w.mu.Unlock()

	if err := w.store.SetState(ctx, activeQuizStateKey, fs.RootID()); err != nil {
		w.logger.Error("Failed to persist active quiz", "error", err)
	}
	w.session.Reset(fs.Snapshot())
	w.persistSession(ctx)
}
