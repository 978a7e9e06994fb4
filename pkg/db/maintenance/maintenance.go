package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"geoquiz/pkg/db"
	"geoquiz/pkg/featurestore"
	"geoquiz/pkg/store"
)

const importStatePrefix = "quiz_import_mtime:"

// Options configures a maintenance run.
type Options struct {
	// ImportDir holds quiz files (*.json snapshots) to load into the database.
	ImportDir string
	// CacheTTL is the age after which cached provider responses are removed.
	CacheTTL time.Duration
}

// Run executes all maintenance tasks: quiz import and cache pruning.
// Failures are logged and do not stop startup. It blocks until completion.
func Run(ctx context.Context, s store.Store, d *db.DB, opts Options) error {
	slog.Info("Starting database maintenance...")

	if opts.ImportDir != "" {
		n, err := importQuizzes(ctx, s, opts.ImportDir)
		if err != nil {
			slog.Error("Quiz import failed", "dir", opts.ImportDir, "error", err)
		} else {
			slog.Info("Quiz import check completed", "imported", n)
		}
	}

	if opts.CacheTTL > 0 {
		n, err := d.PruneCache(opts.CacheTTL)
		if err != nil {
			slog.Error("Cache pruning failed", "error", err)
		} else {
			slog.Info("Cache pruning completed", "removed", n)
		}
	}
	return ctx.Err()
}

// importQuizzes loads every quiz file in dir whose modification time differs
// from the one recorded at its last import. Invalid files are skipped.
func importQuizzes(ctx context.Context, s store.Store, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read import dir: %w", err)
	}

	count := 0
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return count, err
		}

		imported, err := importFile(ctx, s, filepath.Join(dir, e.Name()))
		if err != nil {
			slog.Warn("Skipping quiz file", "file", e.Name(), "error", err)
			continue
		}
		if imported {
			count++
		}
	}
	return count, nil
}

func importFile(ctx context.Context, s store.Store, path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("failed to stat quiz file: %w", err)
	}
	mtime := info.ModTime().UTC().Format(time.RFC3339Nano)
	stateKey := importStatePrefix + filepath.Base(path)

	if stored, found := s.GetState(ctx, stateKey); found && stored == mtime {
		return false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read quiz file: %w", err)
	}
	snap, err := featurestore.UnmarshalSnapshot(data)
	if err != nil {
		return false, err
	}

	q := &store.Quiz{
		RootID:       snap.RootID(),
		Name:         QuizName(path),
		FeatureCount: len(snap.Quizzable()),
		Data:         data,
	}
	if err := s.SaveQuiz(ctx, q); err != nil {
		return false, fmt.Errorf("failed to save quiz: %w", err)
	}
	if err := s.SetState(ctx, stateKey, mtime); err != nil {
		return false, fmt.Errorf("failed to update state: %w", err)
	}

	slog.Info("Imported quiz", "file", filepath.Base(path), "root_id", q.RootID, "features", q.FeatureCount)
	return true, nil
}

// QuizName derives a display name from a quiz file name.
func QuizName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(base))
}
