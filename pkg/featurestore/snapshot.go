package featurestore

import (
	"encoding/json"
	"fmt"

	"geoquiz/pkg/model"
)

// Snapshot is an immutable view of the feature tree. Mutations on Store
// produce new snapshots; a snapshot handed out is never modified again.
type Snapshot struct {
	rootID   string
	version  uint64
	features map[string]model.Feature
}

// RootID returns the id of the Root feature.
func (s *Snapshot) RootID() string { return s.rootID }

// Version increases by one with every successful mutation.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of features, Root included.
func (s *Snapshot) Len() int { return len(s.features) }

// Root returns the Root feature.
func (s *Snapshot) Root() model.Root {
	return s.features[s.rootID].(model.Root)
}

// Get returns the feature with the given id.
func (s *Snapshot) Get(id string) (model.Feature, bool) {
	f, ok := s.features[id]
	return f, ok
}

// Children returns the ordered child ids of id. The slice must not be modified.
func (s *Snapshot) Children(id string) []string {
	f, ok := s.features[id]
	if !ok {
		return nil
	}
	return model.ChildIDs(f)
}

// Walk visits every feature reachable from the Root in pre-order (parent
// before children, children in display order). Returning false stops the walk.
func (s *Snapshot) Walk(fn func(f model.Feature, depth int) bool) {
	var visit func(id string, depth int) bool
	visit = func(id string, depth int) bool {
		f, ok := s.features[id]
		if !ok {
			return true
		}
		if !fn(f, depth) {
			return false
		}
		for _, child := range model.ChildIDs(f) {
			if !visit(child, depth+1) {
				return false
			}
		}
		return true
	}
	visit(s.rootID, 0)
}

// Quizzable returns the ids of every non-root feature reachable from the Root, in pre-order.
func (s *Snapshot) Quizzable() []string {
	var ids []string
	s.Walk(func(f model.Feature, depth int) bool {
		if depth > 0 {
			ids = append(ids, f.FeatureID())
		}
		return true
	})
	return ids
}

// Orphans returns ids of features stored but no longer reachable from the
// Root. Non-cascading deletes of an Area leave its descendants here.
func (s *Snapshot) Orphans() []string {
	reachable := make(map[string]bool, len(s.features))
	s.Walk(func(f model.Feature, _ int) bool {
		reachable[f.FeatureID()] = true
		return true
	})

	var out []string
	for id := range s.features {
		if !reachable[id] {
			out = append(out, id)
		}
	}
	return out
}

// Validate checks the hierarchy invariants over the features reachable from
// the Root: parents exist and may have children, a child is listed by its
// parent exactly once, and child lists hold no unknown ids.
func (s *Snapshot) Validate() error {
	root, ok := s.features[s.rootID]
	if !ok {
		return fmt.Errorf("%w: root %s missing", ErrCorrupt, s.rootID)
	}
	if root.Kind() != model.KindRoot {
		return fmt.Errorf("%w: %s is not a root", ErrCorrupt, s.rootID)
	}

	seen := make(map[string]bool, len(s.features))
	var check func(f model.Feature) error
	check = func(f model.Feature) error {
		id := f.FeatureID()
		if seen[id] {
			return fmt.Errorf("%w: %s reachable twice", ErrCorrupt, id)
		}
		seen[id] = true

		for _, childID := range model.ChildIDs(f) {
			child, ok := s.features[childID]
			if !ok {
				return fmt.Errorf("%w: %s lists unknown child %s", ErrCorrupt, id, childID)
			}
			parentID, ok := model.ParentID(child)
			if !ok {
				return fmt.Errorf("%w: root listed as child of %s", ErrCorrupt, id)
			}
			if parentID != id {
				return fmt.Errorf("%w: %s listed by %s but has parent %s", ErrCorrupt, childID, id, parentID)
			}
			if err := check(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := check(root); err != nil {
		return err
	}

	// Every stored feature whose parent is reachable must be listed by it.
	for id, f := range s.features {
		parentID, ok := model.ParentID(f)
		if !ok {
			if id != s.rootID {
				return fmt.Errorf("%w: second root %s", ErrCorrupt, id)
			}
			continue
		}
		if !seen[parentID] {
			continue
		}
		if !seen[id] {
			return fmt.Errorf("%w: %s not listed by parent %s", ErrCorrupt, id, parentID)
		}
	}
	return nil
}

// clone copies the id map. Feature values are shared; callers replace, never
// mutate, the entries they change.
func (s *Snapshot) clone() *Snapshot {
	features := make(map[string]model.Feature, len(s.features)+1)
	for id, f := range s.features {
		features[id] = f
	}
	return &Snapshot{rootID: s.rootID, version: s.version + 1, features: features}
}

type snapshotJSON struct {
	RootID   string            `json:"root_id"`
	Features []json.RawMessage `json:"features"`
}

// MarshalJSON encodes the snapshot with features in pre-order followed by orphans.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{RootID: s.rootID}

	var err error
	appendFeature := func(f model.Feature) bool {
		var raw []byte
		raw, err = json.Marshal(f)
		if err != nil {
			return false
		}
		out.Features = append(out.Features, raw)
		return true
	}

	s.Walk(func(f model.Feature, _ int) bool { return appendFeature(f) })
	if err != nil {
		return nil, err
	}
	for _, id := range s.Orphans() {
		if !appendFeature(s.features[id]) {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// UnmarshalSnapshot decodes and validates a snapshot produced by MarshalJSON.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var sj snapshotJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	snap := &Snapshot{rootID: sj.RootID, features: make(map[string]model.Feature, len(sj.Features))}
	for _, raw := range sj.Features {
		f, err := model.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if _, dup := snap.features[f.FeatureID()]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrCorrupt, f.FeatureID())
		}
		snap.features[f.FeatureID()] = f
	}

	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}
