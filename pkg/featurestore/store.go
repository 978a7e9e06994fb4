package featurestore

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"geoquiz/pkg/model"
)

// Store is the authoritative feature tree of one quiz. Writes are serialized
// by a mutex and publish a new immutable Snapshot; readers never observe a
// partially applied mutation.
type Store struct {
	mu      sync.RWMutex
	snap    *Snapshot
	cascade bool
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCascadeDelete makes Delete also remove every descendant of the deleted
// feature. By default only the feature itself is removed and its descendants
// stay in the store, unreachable from the Root.
func WithCascadeDelete(enabled bool) Option {
	return func(s *Store) { s.cascade = enabled }
}

// WithLogger sets the logger used for mutation traces.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a store holding a fresh Root.
func New(opts ...Option) *Store {
	root := model.Root{ID: uuid.NewString(), ChildIDs: []string{}}
	snap := &Snapshot{
		rootID:   root.ID,
		features: map[string]model.Feature{root.ID: root},
	}
	return newStore(snap, opts)
}

// NewFromSnapshot creates a store continuing from a previously persisted snapshot.
func NewFromSnapshot(snap *Snapshot, opts ...Option) (*Store, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrCorrupt)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return newStore(snap, opts), nil
}

func newStore(snap *Snapshot, opts []Option) *Store {
	s := &Store{snap: snap, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current immutable view.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// RootID returns the id of the Root feature.
func (s *Store) RootID() string {
	return s.Snapshot().RootID()
}

// apply runs fn against a private copy of the current snapshot and publishes
// the copy if fn succeeds.
func (s *Store) apply(fn func(next *Snapshot) error) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.clone()
	if err := fn(next); err != nil {
		return s.snap, err
	}
	s.snap = next
	return next, nil
}

// AddChild inserts child under parentID and appends its id to the parent's
// child list. Adding a feature already listed by the same parent replaces the
// stored record without duplicating the id; its variant may not change. An
// Area re-added after a non-cascading delete lists its leftover descendants
// again.
func (s *Store) AddChild(parentID string, child model.Feature) (*Snapshot, error) {
	return s.apply(func(next *Snapshot) error {
		parent, ok := next.features[parentID]
		if !ok || !model.CanHaveChildren(parent) {
			return fmt.Errorf("%w: %s", ErrInvalidParent, parentID)
		}

		childID := child.FeatureID()
		if childID == "" {
			return fmt.Errorf("%w: empty id", ErrInvalidFeature)
		}
		existing, exists := next.features[childID]
		if exists {
			if pid, _ := model.ParentID(existing); pid != parentID {
				return fmt.Errorf("%w: %s already belongs to %s", ErrInvalidFeature, childID, pid)
			}
			if existing.Kind() != child.Kind() {
				return fmt.Errorf("%w: %s is a %s, not a %s", ErrInvalidFeature, childID, existing.Kind(), child.Kind())
			}
		}
		// Descendants left behind by a non-cascading delete still name childID
		// as their parent.
		orphans := childrenOf(next, childID)

		var stored model.Feature
		switch c := child.(type) {
		case model.Root:
			return fmt.Errorf("%w: root cannot be a child", ErrInvalidFeature)
		case model.Area:
			c.ParentID = parentID
			if exists {
				c.ChildIDs = model.ChildIDs(existing)
			} else {
				c.ChildIDs = orphans
			}
			stored = c
		case model.Point:
			if len(orphans) > 0 {
				return fmt.Errorf("%w: %s was an area with %d remaining children", ErrInvalidFeature, childID, len(orphans))
			}
			c.ParentID = parentID
			stored = c
		default:
			return fmt.Errorf("%w: unsupported type %T", ErrInvalidFeature, child)
		}

		next.features[childID] = stored
		children := model.ChildIDs(parent)
		if !slices.Contains(children, childID) {
			next.features[parentID] = withChildren(parent, append(slices.Clone(children), childID))
		}

		s.logger.Debug("Feature added", "id", childID, "kind", stored.Kind(), "parent", parentID)
		return nil
	})
}

// SetChildren replaces the child order of parentID with orderedIDs verbatim.
// The caller guarantees orderedIDs is a permutation of the current children.
func (s *Store) SetChildren(parentID string, orderedIDs []string) (*Snapshot, error) {
	return s.apply(func(next *Snapshot) error {
		parent, ok := next.features[parentID]
		if !ok || !model.CanHaveChildren(parent) {
			return fmt.Errorf("%w: %s", ErrInvalidParent, parentID)
		}
		next.features[parentID] = withChildren(parent, slices.Clone(orderedIDs))
		s.logger.Debug("Children reordered", "parent", parentID, "count", len(orderedIDs))
		return nil
	})
}

// Rename sets the user-defined name of an Area or Point.
func (s *Store) Rename(id, name string) (*Snapshot, error) {
	return s.apply(func(next *Snapshot) error {
		f, ok := next.features[id]
		if !ok {
			return fmt.Errorf("%w: %s not found", ErrNotRenamable, id)
		}

		switch v := f.(type) {
		case model.Root:
			return fmt.Errorf("%w: root", ErrNotRenamable)
		case model.Area:
			v.UserDefinedName = &name
			next.features[id] = v
		case model.Point:
			v.UserDefinedName = &name
			next.features[id] = v
		}
		return nil
	})
}

// Delete removes a non-root feature and unlists it from its parent. With
// cascading enabled, every descendant is removed as well.
func (s *Store) Delete(id string) (*Snapshot, error) {
	return s.apply(func(next *Snapshot) error {
		f, ok := next.features[id]
		if !ok {
			return fmt.Errorf("%w: %s not found", ErrNotDeletable, id)
		}
		parentID, ok := model.ParentID(f)
		if !ok {
			return fmt.Errorf("%w: root", ErrNotDeletable)
		}

		if parent, ok := next.features[parentID]; ok {
			children := slices.DeleteFunc(slices.Clone(model.ChildIDs(parent)), func(c string) bool { return c == id })
			next.features[parentID] = withChildren(parent, children)
		}

		removed := 1
		delete(next.features, id)
		if s.cascade {
			removed += removeDescendants(next, f)
		}

		s.logger.Debug("Feature deleted", "id", id, "removed", removed, "cascade", s.cascade)
		return nil
	})
}

// childrenOf returns the sorted ids of stored features whose parent is id.
func childrenOf(snap *Snapshot, id string) []string {
	ids := []string{}
	for childID, f := range snap.features {
		if pid, ok := model.ParentID(f); ok && pid == id {
			ids = append(ids, childID)
		}
	}
	slices.Sort(ids)
	return ids
}

func removeDescendants(snap *Snapshot, f model.Feature) int {
	n := 0
	for _, childID := range model.ChildIDs(f) {
		child, ok := snap.features[childID]
		if !ok {
			continue
		}
		delete(snap.features, childID)
		n += 1 + removeDescendants(snap, child)
	}
	return n
}

// withChildren returns a copy of a Root or Area with a new child list.
func withChildren(f model.Feature, children []string) model.Feature {
	switch v := f.(type) {
	case model.Root:
		v.ChildIDs = children
		return v
	case model.Area:
		v.ChildIDs = children
		return v
	}
	return f
}
