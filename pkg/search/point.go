package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"geoquiz/pkg/geo"
	"geoquiz/pkg/logging"
	"geoquiz/pkg/model"
)

const pointEngineName = "points"

// PointEngine turns autocomplete predictions into geocoded Point candidates.
type PointEngine struct {
	provider PlacesProvider
	cfg      engineConfig
	state    *latest[model.Point]
}

// NewPointEngine creates an engine over provider.
func NewPointEngine(provider PlacesProvider, opts ...Option) *PointEngine {
	return &PointEngine{
		provider: provider,
		cfg:      newEngineConfig(opts),
		state:    newLatest[model.Point](),
	}
}

// State returns the outcome of the most recent search.
func (e *PointEngine) State() State[model.Point] {
	return e.state.snapshot()
}

// Search autocompletes term, geocodes every prediction and keeps the points
// that fall inside parent. Predictions whose geocode fails are skipped. The
// result order follows the prediction order.
func (e *PointEngine) Search(ctx context.Context, parent model.Feature, term string) ([]model.Point, error) {
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
	e.track(func() { e.cfg.tracker.TrackQuery(pointEngineName) })

	q := PlaceQuery{Term: term}
	if pa != nil {
		b := pa.SearchBounds
		q.Bounds = &b
	}

	predictions, err := e.provider.Autocomplete(ctx, q)
	if err != nil {
		return nil, e.fail(token, term, err)
	}

	coords := e.geocodeAll(ctx, predictions)
	if err := ctx.Err(); err != nil {
		return nil, e.fail(token, term, err)
	}

	points := make([]model.Point, 0, len(predictions))
	for i, p := range predictions {
		c := coords[i]
		if c == nil {
			continue
		}
		if pa != nil && !geo.PointInPolygon(*c, pa.Geometry) {
			e.track(func() { e.cfg.tracker.TrackDropped(pointEngineName) })
			logging.Trace(e.cfg.logger, "Point candidate dropped", "reason", "outside parent", "place_id", p.PlaceID)
			continue
		}
		points = append(points, model.Point{
			ID:            uuid.NewString(),
			ParentID:      parent.FeatureID(),
			ShortName:     shortName(p),
			LongName:      p.Description,
			Coord:         *c,
			DisplayBounds: geo.PointBounds(*c, e.cfg.radius),
		})
	}

	if !e.state.finish(token, points, nil) {
		return nil, e.superseded(term)
	}
	e.cfg.logger.Debug("Point search done", "term", term, "predictions", len(predictions), "candidates", len(points))
	return points, nil
}

// geocodeAll resolves predictions concurrently. A nil entry marks a failed lookup.
func (e *PointEngine) geocodeAll(ctx context.Context, predictions []Prediction) []*orb.Point {
	coords := make([]*orb.Point, len(predictions))

	var g errgroup.Group
	g.SetLimit(e.cfg.concurrency)
	for i, p := range predictions {
		g.Go(func() error {
			pt, err := e.provider.Geocode(ctx, p.PlaceID)
			if err != nil {
				e.track(func() { e.cfg.tracker.TrackDropped(pointEngineName) })
				e.cfg.logger.Debug("Geocode failed", "place_id", p.PlaceID, "error", err)
				return nil
			}
			coords[i] = &pt
			return nil
		})
	}
	_ = g.Wait()
	return coords
}

func (e *PointEngine) fail(token uint64, term string, err error) error {
	err = classify(err)
	if !e.state.finish(token, nil, err) {
		return e.superseded(term)
	}
	e.track(func() { e.cfg.tracker.TrackFailure(pointEngineName) })
	e.cfg.logger.Warn("Point search failed", "term", term, "error", err)
	return err
}

func (e *PointEngine) superseded(term string) error {
	e.track(func() { e.cfg.tracker.TrackSuperseded(pointEngineName) })
	e.cfg.logger.Debug("Point search superseded", slog.String("term", term))
	return ErrSuperseded
}

func (e *PointEngine) track(fn func()) {
	if e.cfg.tracker != nil {
		fn()
	}
}

// shortName prefers the provider's main text, then the first segment of the description.
func shortName(p Prediction) string {
	if p.MainText != "" {
		return p.MainText
	}
	name, _, _ := strings.Cut(p.Description, ",")
	return strings.TrimSpace(name)
}
