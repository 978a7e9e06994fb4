package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"io"
	"sync"
	"time"

	"geoquiz/pkg/db"
)

// Store defines the repository interface.
// It composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	QuizStore
	CacheStore
	StateStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Quiz ---

// GetQuiz returns the quiz saved under rootID, or nil if there is none.
func (s *SQLiteStore) GetQuiz(ctx context.Context, rootID string) (*Quiz, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT root_id, name, feature_count, data, updated_at FROM quiz WHERE root_id = ?`, rootID)

	var q Quiz
	var name sql.NullString
	var updated sql.NullTime
	if err := row.Scan(&q.RootID, &name, &q.FeatureCount, &q.Data, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	q.Name = name.String
	if updated.Valid {
		q.UpdatedAt = updated.Time
	}

	// Transparent Decompression
	if isGzip(q.Data) {
		data, err := decompress(q.Data)
		if err != nil {
			return nil, err
		}
		q.Data = data
	}
	return &q, nil
}

// SaveQuiz inserts or replaces a quiz. UpdatedAt is set to the current time.
func (s *SQLiteStore) SaveQuiz(ctx context.Context, q *Quiz) error {
	data, err := compress(q.Data)
	if err != nil {
		return err
	}
	q.UpdatedAt = time.Now().UTC()

	query := `INSERT INTO quiz (root_id, name, feature_count, data, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(root_id) DO UPDATE SET
			name = excluded.name,
			feature_count = excluded.feature_count,
			data = excluded.data,
			updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query, q.RootID, q.Name, q.FeatureCount, data, q.UpdatedAt)
	return err
}

// ListQuizzes returns every saved quiz without its data, most recent first.
func (s *SQLiteStore) ListQuizzes(ctx context.Context) ([]Quiz, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT root_id, name, feature_count, updated_at FROM quiz ORDER BY updated_at DESC, root_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quizzes := []Quiz{}
	for rows.Next() {
		var q Quiz
		var name sql.NullString
		var updated sql.NullTime
		if err := rows.Scan(&q.RootID, &name, &q.FeatureCount, &updated); err != nil {
			return nil, err
		}
		q.Name = name.String
		if updated.Valid {
			q.UpdatedAt = updated.Time
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}

func (s *SQLiteStore) DeleteQuiz(ctx context.Context, rootID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM quiz WHERE root_id = ?", rootID)
	return err
}

// --- Cache ---

// Get implements cache.Cacher interface.
func (s *SQLiteStore) Get(key string) ([]byte, bool) {
	return s.GetCache(context.Background(), key)
}

// Set implements cache.Cacher interface.
func (s *SQLiteStore) Set(key string, val []byte) error {
	return s.SetCache(context.Background(), key, val)
}

func (s *SQLiteStore) GetCache(ctx context.Context, key string) ([]byte, bool) {
	var val []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM cache WHERE key = ?", key).Scan(&val)
	if err != nil {
		// Errors are treated as a miss
		return nil, false
	}

	// Transparent Decompression
	if isGzip(val) {
		decompressed, err := decompress(val)
		if err == nil {
			return decompressed, true
		}
	}

	return val, true
}

func (s *SQLiteStore) HasCache(ctx context.Context, key string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM cache WHERE key = ?", key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) SetCache(ctx context.Context, key string, val []byte) error {
	// Transparent Compression
	compressed, err := compress(val)
	if err == nil {
		val = compressed
	}

	query := `INSERT OR REPLACE INTO cache (key, value, created_at) VALUES (?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, key, val, time.Now().UTC().Format("2006-01-02 15:04:05"))
	return err
}

func (s *SQLiteStore) ListCacheKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM cache WHERE key LIKE ? ORDER BY key", prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}

// --- Compression Pooling ---

var (
	// Pool for gzip writers to reuse flate state
	gzipWriterPool = sync.Pool{
		New: func() any {
			return gzip.NewWriter(io.Discard)
		},
	}
	// Pool for generic byte buffers
	bufferPool = sync.Pool{
		New: func() any {
			return new(bytes.Buffer)
		},
	}
)

func isGzip(data []byte) bool {
	return len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b
}

func compress(data []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)
	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// Must copy because buf is returned to pool
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
