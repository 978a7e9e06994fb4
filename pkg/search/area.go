package search

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"geoquiz/pkg/geo"
	"geoquiz/pkg/logging"
	"geoquiz/pkg/model"
)

const areaEngineName = "areas"

// AreaEngine turns area provider results into candidate Area features that
// lie within a chosen parent.
type AreaEngine struct {
	provider AreaProvider
	cfg      engineConfig
	rng      *lockedRand
	state    *latest[model.Area]
}

// NewAreaEngine creates an engine over provider.
func NewAreaEngine(provider AreaProvider, opts ...Option) *AreaEngine {
	cfg := newEngineConfig(opts)
	return &AreaEngine{
		provider: provider,
		cfg:      cfg,
		rng:      &lockedRand{rng: cfg.rng},
		state:    newLatest[model.Area](),
	}
}

// State returns the outcome of the most recent search.
func (e *AreaEngine) State() State[model.Area] {
	return e.state.snapshot()
}

// Search queries the provider for term and returns the candidates contained in
// parent. Searching under an Area restricts the query to its search bounds and
// applies the containment filter. If another Search starts before this one
// completes, the results are discarded and ErrSuperseded is returned.
func (e *AreaEngine) Search(ctx context.Context, parent model.Feature, term string) ([]model.Area, error) {
	pa, err := parentArea(parent)
	if err != nil {
		return nil, err
	}

	term = normalizeTerm(term)
	token := e.state.begin(term)
	if term == "" {
		e.state.idle(token)
		return nil, nil
	}
	e.track(func() { e.cfg.tracker.TrackQuery(areaEngineName) })

	q := AreaQuery{Term: term}
	if pa != nil {
		b := pa.SearchBounds
		q.Bounds = &b
		q.Bounded = true
	}

	raw, err := e.provider.SearchAreas(ctx, q)
	if err != nil {
		err = classify(err)
		if !e.state.finish(token, nil, err) {
			return nil, e.superseded(term)
		}
		e.track(func() { e.cfg.tracker.TrackFailure(areaEngineName) })
		e.cfg.logger.Warn("Area search failed", "term", term, "error", err)
		return nil, err
	}

	areas := e.candidates(raw, parent.FeatureID(), pa)
	if !e.state.finish(token, areas, nil) {
		return nil, e.superseded(term)
	}
	e.cfg.logger.Debug("Area search done", "term", term, "raw", len(raw), "candidates", len(areas))
	return areas, nil
}

func (e *AreaEngine) candidates(raw []AreaResult, parentID string, pa *model.Area) []model.Area {
	areas := make([]model.Area, 0, len(raw))
	for _, r := range raw {
		if !geo.IsAreaGeometry(r.Geometry) {
			e.dropped("non-polygon geometry", r)
			continue
		}
		if pa != nil && !e.contained(r.Geometry, pa.Geometry) {
			e.dropped("outside parent", r)
			continue
		}

		sb := geo.BoundsFromBBox(r.BBox, r.Geometry)
		areas = append(areas, model.Area{
			ID:            uuid.NewString(),
			ParentID:      parentID,
			ChildIDs:      []string{},
			ShortName:     r.ShortName,
			LongName:      r.DisplayName,
			Geometry:      r.Geometry,
			SearchBounds:  sb,
			DisplayBounds: geo.DisplayBounds(r.Geometry, sb),
		})
	}
	return areas
}

func (e *AreaEngine) contained(candidate, parent orb.Geometry) bool {
	var hit bool
	e.rng.with(func(rng *rand.Rand) {
		hit = geo.AnyVertexInside(candidate, parent, e.cfg.attempts, rng)
	})
	return hit
}

func (e *AreaEngine) dropped(reason string, r AreaResult) {
	e.track(func() { e.cfg.tracker.TrackDropped(areaEngineName) })
	logging.Trace(e.cfg.logger, "Area candidate dropped", "reason", reason, "place_id", r.PlaceID, "name", r.ShortName)
}

func (e *AreaEngine) superseded(term string) error {
	e.track(func() { e.cfg.tracker.TrackSuperseded(areaEngineName) })
	e.cfg.logger.Debug("Area search superseded", slog.String("term", term))
	return ErrSuperseded
}

func (e *AreaEngine) track(fn func()) {
	if e.cfg.tracker != nil {
		fn()
	}
}
