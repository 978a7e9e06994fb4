package maintenance

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"geoquiz/pkg/db"
	"geoquiz/pkg/featurestore"
	"geoquiz/pkg/model"
	"geoquiz/pkg/store"
)

func writeQuizFile(t *testing.T, path string) string {
	t.Helper()
	fs := featurestore.New()
	if _, err := fs.AddChild(fs.RootID(), model.Area{
		ID:        "area-1",
		ShortName: "France",
		Geometry:  orb.Polygon{{{-5, 41}, {9, 41}, {9, 51}, {-5, 51}, {-5, 41}}},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.AddChild("area-1", model.Point{ID: "point-1", ShortName: "Paris", Coord: orb.Point{2.35, 48.85}}); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(fs.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return fs.RootID()
}

func TestMaintenance(t *testing.T) {
	tempDir := t.TempDir()
	d, err := db.Init(filepath.Join(tempDir, "maint_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	s := store.NewSQLiteStore(d)
	ctx := context.Background()

	importDir := filepath.Join(tempDir, "quizzes")
	if err := os.MkdirAll(importDir, 0o755); err != nil {
		t.Fatal(err)
	}
	quizPath := filepath.Join(importDir, "european_capitals.json")
	rootID := writeQuizFile(t, quizPath)
	if err := os.WriteFile(filepath.Join(importDir, "broken.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(importDir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	oldDeadline := time.Now().Add(-40 * 24 * time.Hour).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec("INSERT INTO cache (key, value, created_at) VALUES (?, ?, ?)", "old-key", "old-val", oldDeadline); err != nil {
		t.Fatal(err)
	}
	newDeadline := time.Now().Add(-24 * time.Hour).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec("INSERT INTO cache (key, value, created_at) VALUES (?, ?, ?)", "new-key", "new-val", newDeadline); err != nil {
		t.Fatal(err)
	}

	opts := Options{ImportDir: importDir, CacheTTL: 30 * 24 * time.Hour}
	if err := Run(ctx, s, d, opts); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	q, err := s.GetQuiz(ctx, rootID)
	if err != nil || q == nil {
		t.Fatalf("quiz not imported: %v", err)
	}
	if q.Name != "european capitals" {
		t.Errorf("expected name 'european capitals', got %q", q.Name)
	}
	if q.FeatureCount != 2 {
		t.Errorf("expected 2 features, got %d", q.FeatureCount)
	}
	if _, err := featurestore.UnmarshalSnapshot(q.Data); err != nil {
		t.Errorf("imported data does not decode: %v", err)
	}

	var count int
	if err := d.QueryRow("SELECT count(*) FROM cache WHERE key = ?", "old-key").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Error("old cache entry should have been pruned")
	}
	if err := d.QueryRow("SELECT count(*) FROM cache WHERE key = ?", "new-key").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Error("recent cache entry should be kept")
	}

	// Unchanged files are not imported again.
	if err := s.DeleteQuiz(ctx, rootID); err != nil {
		t.Fatal(err)
	}
	if err := Run(ctx, s, d, opts); err != nil {
		t.Fatal(err)
	}
	if q, _ := s.GetQuiz(ctx, rootID); q != nil {
		t.Error("unchanged file was re-imported")
	}

	// A newer modification time triggers a re-import.
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(quizPath, later, later); err != nil {
		t.Fatal(err)
	}
	if err := Run(ctx, s, d, opts); err != nil {
		t.Fatal(err)
	}
	if q, _ := s.GetQuiz(ctx, rootID); q == nil {
		t.Error("modified file was not re-imported")
	}
}

func TestRun_MissingImportDir(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "maint.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	err = Run(context.Background(), store.NewSQLiteStore(d), d, Options{ImportDir: filepath.Join(t.TempDir(), "missing")})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestQuizName(t *testing.T) {
	tests := map[string]string{
		"data/quizzes/european_capitals.json": "european capitals",
		"us-states.JSON":                      "us states",
		"Africa.json":                         "Africa",
	}
	for in, want := range tests {
		if got := QuizName(in); got != want {
			t.Errorf("QuizName(%q) = %q, want %q", in, got, want)
		}
	}
}
