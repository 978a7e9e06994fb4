package store

import (
	"context"
	"path/filepath"
	"testing"

	"geoquiz/pkg/db"
)

func TestSQLiteStore(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	// Init DB
	d, err := db.Init(dbPath)
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	defer d.Close()

	store := NewSQLiteStore(d)
	ctx := context.Background()

	testQuiz(t, ctx, store)
	testCache(t, ctx, store)
	testState(t, ctx, store)
}

func testQuiz(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("Quiz", func(t *testing.T) {
		q := &Quiz{RootID: "root-1", Name: "Europe", FeatureCount: 3, Data: []byte(`{"root_id":"root-1"}`)}
		if err := store.SaveQuiz(ctx, q); err != nil {
			t.Fatalf("SaveQuiz failed: %v", err)
		}
		if q.UpdatedAt.IsZero() {
			t.Error("Expected UpdatedAt to be set")
		}

		loaded, err := store.GetQuiz(ctx, "root-1")
		if err != nil {
			t.Fatalf("GetQuiz failed: %v", err)
		}
		if loaded == nil {
			t.Fatal("GetQuiz returned nil")
		}
		if loaded.Name != "Europe" || loaded.FeatureCount != 3 {
			t.Errorf("Quiz metadata mismatch: %+v", loaded)
		}
		if string(loaded.Data) != `{"root_id":"root-1"}` {
			t.Errorf("Expected decompressed data, got %q", loaded.Data)
		}
	})
}

func testCache(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("Cache", func(t *testing.T) {
		if err := store.SetCache(ctx, "foo", []byte("bar")); err != nil {
			t.Errorf("SetCache failed: %v", err)
		}
		val, hit := store.GetCache(ctx, "foo")
		if !hit {
			t.Error("Expected cache hit")
		}
		if string(val) != "bar" {
			t.Errorf("Expected 'bar', got '%s'", string(val))
		}
		if ok, err := store.HasCache(ctx, "foo"); err != nil || !ok {
			t.Errorf("HasCache = %v, %v", ok, err)
		}
		if _, hit := store.Get("missing"); hit {
			t.Error("Expected cache miss")
		}
	})
}

func testState(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("State", func(t *testing.T) {
		if err := store.SetState(ctx, "my_key", "my_val"); err != nil {
			t.Errorf("SetState failed: %v", err)
		}
		sVal, sHit := store.GetState(ctx, "my_key")
		if !sHit {
			t.Error("Expected state hit")
		}
		if sVal != "my_val" {
			t.Errorf("Expected 'my_val', got '%s'", sVal)
		}
		if err := store.DeleteState(ctx, "my_key"); err != nil {
			t.Errorf("DeleteState failed: %v", err)
		}
		if _, hit := store.GetState(ctx, "my_key"); hit {
			t.Error("Expected state to be deleted")
		}
	})
}
