package store

import (
	"context"
	"time"
)

// Quiz is a persisted quiz definition. Data is the serialized feature tree.
type Quiz struct {
	RootID       string    `json:"root_id"`
	Name         string    `json:"name"`
	FeatureCount int       `json:"feature_count"`
	UpdatedAt    time.Time `json:"updated_at"`
	Data         []byte    `json:"-"`
}

// QuizStore handles quiz definition persistence, keyed by Root id.
type QuizStore interface {
	GetQuiz(ctx context.Context, rootID string) (*Quiz, error)
	SaveQuiz(ctx context.Context, q *Quiz) error
	ListQuizzes(ctx context.Context) ([]Quiz, error)
	DeleteQuiz(ctx context.Context, rootID string) error
}

// CacheStore handles generic key-value caching.
type CacheStore interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	HasCache(ctx context.Context, key string) (bool, error)
	SetCache(ctx context.Context, key string, val []byte) error
	ListCacheKeys(ctx context.Context, prefix string) ([]string, error)
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}
