package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"geoquiz/pkg/model"
	"geoquiz/pkg/search"
)

// Search kinds accepted by the search endpoints and the stream.
const (
	kindAreas  = "areas"
	kindPoints = "points"
)

// SearchHandler runs area and point searches under a parent of the active quiz.
type SearchHandler struct {
	ws       *Workspace
	areas    *search.AreaEngine
	points   *search.PointEngine
	debounce time.Duration
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewSearchHandler creates a new SearchHandler. points may be nil when no
// places provider is configured.
func NewSearchHandler(ws *Workspace, areas *search.AreaEngine, points *search.PointEngine, debounce time.Duration) *SearchHandler {
	return &SearchHandler{
		ws:       ws,
		areas:    areas,
		points:   points,
		debounce: debounce,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The display runs on a local origin of its own.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: slog.Default().With("component", "search"),
	}
}

// SearchResponse is the outcome of one search.
type SearchResponse struct {
	Kind    string        `json:"kind"`
	Term    string        `json:"term"`
	Parent  string        `json:"parent"`
	Status  search.Status `json:"status"`
	Results any           `json:"results"`
	Error   string        `json:"error,omitempty"`
}

// errPointsDisabled is returned for point searches without a places provider.
var errPointsDisabled = fmt.Errorf("%w: point search is not configured", search.ErrProviderUnavailable)

// HandleAreas serves GET /api/search/areas?parent=&q=.
func (h *SearchHandler) HandleAreas(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, kindAreas)
}

// HandlePoints serves GET /api/search/points?parent=&q=.
func (h *SearchHandler) HandlePoints(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, kindPoints)
}

func (h *SearchHandler) serve(w http.ResponseWriter, r *http.Request, kind string) {
	q := r.URL.Query()
	resp, err := h.run(r.Context(), kind, q.Get("parent"), q.Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// run resolves parentID in the active quiz (the Root when empty) and searches.
func (h *SearchHandler) run(ctx context.Context, kind, parentID, term string) (SearchResponse, error) {
	snap := h.ws.Snapshot()
	if parentID == "" {
		parentID = snap.RootID()
	}
	resp := SearchResponse{Kind: kind, Term: term, Parent: parentID}

	parent, ok := snap.Get(parentID)
	if !ok {
		return resp, fmt.Errorf("%w: unknown parent %s", ErrBadRequest, parentID)
	}

	var err error
	switch kind {
	case kindAreas:
		var areas []model.Area
		areas, err = h.areas.Search(ctx, parent, term)
		resp.Results = nonNilSlice(areas)
	case kindPoints:
		if h.points == nil {
			return resp, errPointsDisabled
		}
		var points []model.Point
		points, err = h.points.Search(ctx, parent, term)
		resp.Results = nonNilSlice(points)
	default:
		return resp, fmt.Errorf("%w: unknown search kind %q", ErrBadRequest, kind)
	}
	if err != nil {
		return resp, err
	}

	resp.Status = search.StatusDone
	if len(strings.Fields(term)) == 0 {
		resp.Status = search.StatusIdle
	}
	return resp, nil
}

// Candidate implements CandidateSource over the latest results of both engines.
func (h *SearchHandler) Candidate(id string) (model.Feature, bool) {
	for _, a := range h.areas.State().Results {
		if a.ID == id {
			return a, true
		}
	}
	if h.points != nil {
		for _, p := range h.points.State().Results {
			if p.ID == id {
				return p, true
			}
		}
	}
	return nil, false
}

// HandleState returns the latest search state of both engines.
func (h *SearchHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{kindAreas: h.areas.State()}
	if h.points != nil {
		out[kindPoints] = h.points.State()
	}
	writeJSON(w, http.StatusOK, out)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// errorStatus is the stream status reported for a failed search.
func errorStatus(err error) search.Status {
	if errors.Is(err, search.ErrSuperseded) {
		return statusSuperseded
	}
	return search.StatusFailed
}

// statusSuperseded tells stream clients a newer search replaced this one.
const statusSuperseded search.Status = "superseded"
