package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"geoquiz/pkg/featurestore"
	"geoquiz/pkg/geo"
	"geoquiz/pkg/model"
	"geoquiz/pkg/tracker"
)

// AreaQuery is a request to the area/polygon search provider.
type AreaQuery struct {
	Term string
	// Bounds, when set, is the viewbox of the query. Bounded restricts
	// results to it instead of merely preferring it.
	Bounds  *model.Bounds
	Bounded bool
}

// AreaResult is one raw item returned by an area provider.
type AreaResult struct {
	PlaceID     string
	ShortName   string
	DisplayName string
	Geometry    orb.Geometry
	// BBox is the provider bounding box as [south, north, west, east].
	BBox [4]float64
}

// AreaProvider searches named regions and returns their outlines.
type AreaProvider interface {
	SearchAreas(ctx context.Context, q AreaQuery) ([]AreaResult, error)
}

// PlaceQuery is a request to the autocomplete provider.
type PlaceQuery struct {
	Term   string
	Bounds *model.Bounds
}

// Prediction is one autocomplete suggestion.
type Prediction struct {
	PlaceID     string
	Description string
	MainText    string
}

// PlacesProvider offers text autocomplete and place id geocoding.
type PlacesProvider interface {
	Autocomplete(ctx context.Context, q PlaceQuery) ([]Prediction, error)
	Geocode(ctx context.Context, placeID string) (orb.Point, error)
}

// Option configures an engine.
type Option func(*engineConfig)

type engineConfig struct {
	attempts    int
	radius      float64
	concurrency int
	rng         *rand.Rand
	logger      *slog.Logger
	tracker     *tracker.Tracker
}

func newEngineConfig(opts []Option) engineConfig {
	cfg := engineConfig{
		attempts:    DefaultSampleAttempts,
		radius:      geo.DefaultPointRadius,
		concurrency: DefaultGeocodeConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rng == nil {
		seed := uint64(time.Now().UnixNano())
		cfg.rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return cfg
}

const (
	// DefaultSampleAttempts is the number of candidate vertices tested against the parent polygon.
	DefaultSampleAttempts = 100
	// DefaultGeocodeConcurrency bounds parallel geocode lookups per point search.
	DefaultGeocodeConcurrency = 4
)

// WithSampleAttempts sets how many vertices the containment filter samples.
func WithSampleAttempts(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithPointRadius sets the half-width in degrees of a point's display box.
func WithPointRadius(deg float64) Option {
	return func(c *engineConfig) {
		if deg > 0 {
			c.radius = deg
		}
	}
}

// WithGeocodeConcurrency bounds parallel geocode lookups.
func WithGeocodeConcurrency(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithRand sets the random source used for vertex sampling.
func WithRand(rng *rand.Rand) Option {
	return func(c *engineConfig) { c.rng = rng }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *engineConfig) { c.logger = l }
}

// WithTracker records query outcomes per engine.
func WithTracker(t *tracker.Tracker) Option {
	return func(c *engineConfig) { c.tracker = t }
}

// parentArea validates a search parent. It returns the Area for bounded
// searches and nil for the Root.
func parentArea(parent model.Feature) (*model.Area, error) {
	switch p := parent.(type) {
	case model.Root:
		return nil, nil
	case model.Area:
		return &p, nil
	case model.Point:
		return nil, fmt.Errorf("%w: point %s cannot contain features", featurestore.ErrInvalidParent, p.ID)
	}
	return nil, fmt.Errorf("%w: no parent", featurestore.ErrInvalidParent)
}

// classify maps a provider failure onto the search error kinds.
func classify(err error) error {
	if errors.Is(err, ErrProviderMalformedResponse) || errors.Is(err, ErrProviderUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
}

func normalizeTerm(term string) string {
	return strings.Join(strings.Fields(term), " ")
}

// lockedRand serializes access to a rand.Rand, which is not safe for concurrent use.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (r *lockedRand) with(fn func(*rand.Rand)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.rng)
}
