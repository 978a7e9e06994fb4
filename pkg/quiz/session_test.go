package quiz

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoquiz/pkg/featurestore"
	"geoquiz/pkg/model"
)

func area(id string, geom orb.Polygon) model.Area {
	return model.Area{ID: id, ShortName: id, Geometry: geom}
}

func square(minLon, minLat, maxLon, maxLat float64) orb.Polygon {
	return orb.Polygon{{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}}
}

// buildTree creates Root -> [A, B], A -> [C, D].
func buildTree(t *testing.T) *featurestore.Snapshot {
	t.Helper()
	s := featurestore.New()
	root := s.RootID()
	for _, step := range []struct {
		parent string
		f      model.Feature
	}{
		{root, area("A", square(0, 0, 10, 10))},
		{root, area("B", square(20, 0, 30, 10))},
		{"A", area("C", square(0, 0, 5, 5))},
		{"A", model.Point{ID: "D", ShortName: "D", Coord: orb.Point{7, 7}}},
	} {
		_, err := s.AddChild(step.parent, step.f)
		require.NoError(t, err)
	}
	return s.Snapshot()
}

func seeded(seed uint64) Option {
	return WithRand(rand.New(rand.NewPCG(seed, 3)))
}

func TestSession_ResetPopulation(t *testing.T) {
	snap := buildTree(t)
	s := NewSession(seeded(1))
	s.Reset(snap)

	remaining := s.Remaining()
	assert.ElementsMatch(t, []string{"A", "B", "C", "D"}, remaining)
	assert.Empty(t, s.Correct())
	assert.Empty(t, s.Incorrect())
	assert.False(t, s.Complete())
	assert.Equal(t, snap.RootID(), s.RootID())

	// Root children come first, then A's children.
	assert.ElementsMatch(t, []string{"A", "B"}, remaining[:2])
	assert.ElementsMatch(t, []string{"C", "D"}, remaining[2:])
}

func TestSession_ResetClearsAnswers(t *testing.T) {
	snap := buildTree(t)
	s := NewSession(seeded(2))
	s.Reset(snap)
	require.NoError(t, s.MarkCorrect("A"))
	require.NoError(t, s.MarkIncorrect("B"))

	s.Reset(snap)
	assert.Len(t, s.Remaining(), 4)
	assert.Empty(t, s.Correct())
	assert.Empty(t, s.Incorrect())
}

func TestSession_ShuffleIsUniform(t *testing.T) {
	s := featurestore.New()
	for _, id := range []string{"A", "B", "C"} {
		_, err := s.AddChild(s.RootID(), area(id, square(0, 0, 1, 1)))
		require.NoError(t, err)
	}
	snap := s.Snapshot()

	const trials = 6000
	session := NewSession(seeded(99))
	counts := make(map[string]int)
	for range trials {
		session.Reset(snap)
		counts[strings.Join(session.Remaining(), "")]++
	}

	require.Len(t, counts, 6, "every permutation appears")
	for perm, n := range counts {
		assert.InDelta(t, trials/6, n, 200, "permutation %s", perm)
	}
}

func TestSession_Completion(t *testing.T) {
	snap := buildTree(t)
	s := NewSession(seeded(3))
	s.Reset(snap)
	total := len(s.Remaining())

	for i, id := range s.Remaining() {
		if i%2 == 0 {
			require.NoError(t, s.MarkCorrect(id))
		} else {
			require.NoError(t, s.MarkIncorrect(id))
		}
	}

	assert.True(t, s.Complete())
	assert.Empty(t, s.Remaining())
	assert.Equal(t, total, len(s.Correct())+len(s.Incorrect()))

	p := s.Progress()
	assert.Equal(t, Progress{Total: 4, Remaining: 0, Correct: 2, Incorrect: 2, Complete: true}, p)

	_, ok := s.Current()
	assert.False(t, ok)
}

func TestSession_WithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	snap := buildTree(t)
	s := NewSession(seeded(1), WithLogger(logger))
	s.Reset(snap)

	assert.Contains(t, buf.String(), "Quiz session reset")
	assert.Contains(t, buf.String(), "root="+snap.RootID())
}

func TestSession_MarkUnknown(t *testing.T) {
	snap := buildTree(t)
	s := NewSession(seeded(4))
	s.Reset(snap)

	assert.ErrorIs(t, s.MarkCorrect("nope"), ErrUnknownFeature)
	assert.ErrorIs(t, s.MarkCorrect(snap.RootID()), ErrUnknownFeature)

	require.NoError(t, s.MarkCorrect("A"))
	assert.ErrorIs(t, s.MarkIncorrect("A"), ErrUnknownFeature, "already answered")

	assert.Equal(t, []string{"A"}, s.Correct())
	assert.NotContains(t, s.Remaining(), "A")
}

func TestSession_CurrentIsStable(t *testing.T) {
	snap := buildTree(t)
	s := NewSession(seeded(5))
	s.Reset(snap)

	first, ok := s.Current()
	require.True(t, ok)
	again, _ := s.Current()
	assert.Equal(t, first, again)
	assert.Contains(t, s.Remaining(), first)

	require.NoError(t, s.MarkCorrect(first))
	next, ok := s.Current()
	require.True(t, ok)
	assert.NotEqual(t, first, next)
}

func TestSession_Answer(t *testing.T) {
	snap := buildTree(t)
	s := NewSession(seeded(6))
	s.Reset(snap)

	tests := []struct {
		name  string
		id    string
		click orb.Point
		want  bool
	}{
		{"inside area", "C", orb.Point{2, 2}, true},
		{"outside area", "B", orb.Point{5, 5}, false},
		{"near point", "D", orb.Point{7.001, 7.001}, true},
		{"click far away", "A", orb.Point{50, 50}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Answer(snap, tt.id, tt.click, 1000)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.ElementsMatch(t, []string{"C", "D"}, s.Correct())
	assert.ElementsMatch(t, []string{"B", "A"}, s.Incorrect())

	_, err := s.Answer(snap, "C", orb.Point{2, 2}, 1000)
	assert.ErrorIs(t, err, ErrUnknownFeature)
	_, err = s.Answer(snap, "missing", orb.Point{}, 1000)
	assert.ErrorIs(t, err, ErrUnknownFeature)
}

func TestSession_PersistAndRestore(t *testing.T) {
	snap := buildTree(t)
	s := NewSession(seeded(7))
	s.Reset(snap)
	order := s.Remaining()
	require.NoError(t, s.MarkCorrect(order[0]))
	require.NoError(t, s.MarkIncorrect(order[1]))
	current, _ := s.Current()

	data, err := json.Marshal(s)
	require.NoError(t, err)

	restored := NewSession(seeded(8))
	require.NoError(t, restored.Restore(data, snap))
	assert.Equal(t, s.Remaining(), restored.Remaining())
	assert.Equal(t, s.Correct(), restored.Correct())
	assert.Equal(t, s.Incorrect(), restored.Incorrect())
	got, _ := restored.Current()
	assert.Equal(t, current, got)

	other := featurestore.New().Snapshot()
	assert.ErrorIs(t, restored.Restore(data, other), ErrRootMismatch)
}

func TestSession_RestoreDropsDeletedFeatures(t *testing.T) {
	store := featurestore.New()
	root := store.RootID()
	for _, id := range []string{"A", "B"} {
		_, err := store.AddChild(root, area(id, square(0, 0, 1, 1)))
		require.NoError(t, err)
	}
	s := NewSession(seeded(9))
	s.Reset(store.Snapshot())
	data, err := json.Marshal(s)
	require.NoError(t, err)

	snap, err := store.Delete("A")
	require.NoError(t, err)

	restored := NewSession()
	require.NoError(t, restored.Restore(data, snap))
	assert.Equal(t, []string{"B"}, restored.Remaining())
	assert.False(t, slices.Contains(restored.Remaining(), "A"))
}

func TestSession_RestoreDropsOrphans(t *testing.T) {
	store := featurestore.New()
	root := store.RootID()
	_, err := store.AddChild(root, area("A", square(0, 0, 10, 10)))
	require.NoError(t, err)
	_, err = store.AddChild("A", area("C", square(0, 0, 1, 1)))
	require.NoError(t, err)

	s := NewSession(seeded(10))
	s.Reset(store.Snapshot())
	require.NoError(t, s.MarkCorrect("C"))
	data, err := json.Marshal(s)
	require.NoError(t, err)

	// C stays in the store but is no longer reachable.
	snap, err := store.Delete("A")
	require.NoError(t, err)
	_, ok := snap.Get("C")
	require.True(t, ok)

	restored := NewSession()
	require.NoError(t, restored.Restore(data, snap))
	assert.Empty(t, restored.Remaining())
	assert.Empty(t, restored.Correct())
	assert.Equal(t, 0, restored.Progress().Total)

	fresh := NewSession()
	fresh.Reset(snap)
	assert.Equal(t, fresh.Progress(), restored.Progress())
}

func TestSession_Sync(t *testing.T) {
	store := featurestore.New()
	root := store.RootID()
	for _, id := range []string{"A", "B"} {
		_, err := store.AddChild(root, area(id, square(0, 0, 10, 10)))
		require.NoError(t, err)
	}
	_, err := store.AddChild("A", area("C", square(0, 0, 1, 1)))
	require.NoError(t, err)

	s := NewSession(seeded(11))
	s.Reset(store.Snapshot())
	require.NoError(t, s.MarkCorrect("C"))
	require.NoError(t, s.MarkIncorrect("B"))

	t.Run("deleted ids leave every set", func(t *testing.T) {
		snap, err := store.Delete("A")
		require.NoError(t, err)
		require.NoError(t, s.Sync(snap))

		assert.Empty(t, s.Remaining())
		assert.Empty(t, s.Correct())
		assert.Equal(t, []string{"B"}, s.Incorrect())
		assert.ErrorIs(t, s.MarkCorrect("A"), ErrUnknownFeature)
		_, ok := s.Current()
		assert.False(t, ok)
	})

	t.Run("added ids join remaining", func(t *testing.T) {
		_, err := store.AddChild(root, area("D", square(0, 0, 1, 1)))
		require.NoError(t, err)
		snap, err := store.AddChild("D", model.Point{ID: "E", ShortName: "E", Coord: orb.Point{0.5, 0.5}})
		require.NoError(t, err)
		require.NoError(t, s.Sync(snap))

		assert.ElementsMatch(t, []string{"D", "E"}, s.Remaining())
		assert.Equal(t, []string{"B"}, s.Incorrect())
		assert.Equal(t, Progress{Total: 3, Remaining: 2, Incorrect: 1}, s.Progress())
		current, ok := s.Current()
		require.True(t, ok)
		assert.Contains(t, []string{"D", "E"}, current)
	})

	t.Run("other quiz", func(t *testing.T) {
		assert.ErrorIs(t, s.Sync(featurestore.New().Snapshot()), ErrRootMismatch)
	})
}
