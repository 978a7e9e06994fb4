package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/paulmach/orb"

	"geoquiz/pkg/model"
	"geoquiz/pkg/quiz"
)

// SessionHandler drives the taker session of the active quiz.
type SessionHandler struct {
	ws        *Workspace
	tolerance float64
}

// NewSessionHandler creates a new SessionHandler. toleranceMeters is how far a
// click may land from a Point and still count as correct.
func NewSessionHandler(ws *Workspace, toleranceMeters float64) *SessionHandler {
	return &SessionHandler{ws: ws, tolerance: toleranceMeters}
}

// SessionResponse is the state of the taker session.
type SessionResponse struct {
	RootID    string        `json:"root_id"`
	Progress  quiz.Progress `json:"progress"`
	Current   model.Feature `json:"current,omitempty"`
	Remaining []string      `json:"remaining"`
	Correct   []string      `json:"correct"`
	Incorrect []string      `json:"incorrect"`
}

// AnswerRequest reports an answer either as a verdict or as a map click.
type AnswerRequest struct {
	ID      string   `json:"id"`
	Correct *bool    `json:"correct,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
}

// AnswerResponse is the verdict and the session state after an answer.
type AnswerResponse struct {
	ID      string          `json:"id"`
	Correct bool            `json:"correct"`
	Session SessionResponse `json:"session"`
}

func (h *SessionHandler) state() SessionResponse {
	s := h.ws.Session()
	resp := SessionResponse{
		RootID:    s.RootID(),
		Progress:  s.Progress(),
		Remaining: nonNilSlice(s.Remaining()),
		Correct:   nonNilSlice(s.Correct()),
		Incorrect: nonNilSlice(s.Incorrect()),
	}
	if id, ok := s.Current(); ok {
		if f, ok := h.ws.Snapshot().Get(id); ok {
			resp.Current = f
		}
	}
	return resp
}

// HandleGet returns the session state.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state())
}

// HandleReset starts the session over from the current tree.
func (h *SessionHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.ws.ResetSession(r.Context())
	resp := h.state()
	slog.Info("Quiz session reset", "root_id", resp.RootID, "targets", resp.Progress.Total)
	writeJSON(w, http.StatusOK, resp)
}

// HandleAnswer records an answer for a remaining feature.
func (h *SessionHandler) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ID == "" {
		writeError(w, fmt.Errorf("%w: id is required", ErrBadRequest))
		return
	}

	s := h.ws.Session()
	var (
		correct bool
		err     error
	)
	switch {
	case req.Correct != nil:
		correct = *req.Correct
		if correct {
			err = s.MarkCorrect(req.ID)
		} else {
			err = s.MarkIncorrect(req.ID)
		}
	case req.Lon != nil && req.Lat != nil:
		correct, err = s.Answer(h.ws.Snapshot(), req.ID, orb.Point{*req.Lon, *req.Lat}, h.tolerance)
	default:
		err = fmt.Errorf("%w: correct or lon/lat is required", ErrBadRequest)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	h.ws.persistSession(r.Context())
	writeJSON(w, http.StatusOK, AnswerResponse{ID: req.ID, Correct: correct, Session: h.state()})
}
