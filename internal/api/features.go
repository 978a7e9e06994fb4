package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"geoquiz/pkg/featurestore"
	"geoquiz/pkg/model"
)

// CandidateSource resolves a search candidate by its id.
type CandidateSource interface {
	Candidate(id string) (model.Feature, bool)
}

// FeatureHandler edits the tree of the active quiz.
type FeatureHandler struct {
	ws         *Workspace
	quizzes    *QuizHandler
	candidates CandidateSource
}

// NewFeatureHandler creates a new FeatureHandler.
func NewFeatureHandler(ws *Workspace, quizzes *QuizHandler, candidates CandidateSource) *FeatureHandler {
	return &FeatureHandler{ws: ws, quizzes: quizzes, candidates: candidates}
}

// addChildRequest names either a candidate from the latest search or a full
// feature envelope.
type addChildRequest struct {
	CandidateID string          `json:"candidate_id"`
	Feature     json.RawMessage `json:"feature"`
}

type setChildrenRequest struct {
	ChildIDs []string `json:"child_ids"`
}

type renameRequest struct {
	Name string `json:"name"`
}

// HandleAddChild inserts a feature under {parent}.
func (h *FeatureHandler) HandleAddChild(w http.ResponseWriter, r *http.Request) {
	var req addChildRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	child, err := h.resolve(&req)
	if err != nil {
		writeError(w, err)
		return
	}

	parent := r.PathValue("parent")
	snap, err := h.ws.AddChild(r.Context(), parent, child)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("Feature added", "id", child.FeatureID(), "name", model.DisplayName(child), "parent", parent)
	writeJSON(w, http.StatusOK, h.quizzes.tree(snap))
}

func (h *FeatureHandler) resolve(req *addChildRequest) (model.Feature, error) {
	switch {
	case req.CandidateID != "":
		if h.candidates != nil {
			if f, ok := h.candidates.Candidate(req.CandidateID); ok {
				return f, nil
			}
		}
		return nil, fmt.Errorf("%w: %s is not a current search candidate", featurestore.ErrInvalidFeature, req.CandidateID)
	case len(req.Feature) > 0:
		f, err := model.UnmarshalFeature(req.Feature)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: candidate_id or feature is required", ErrBadRequest)
}

// HandleSetChildren replaces the child order of {parent}.
func (h *FeatureHandler) HandleSetChildren(w http.ResponseWriter, r *http.Request) {
	var req setChildrenRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	parent := r.PathValue("parent")
	if !isPermutation(h.ws.Snapshot().Children(parent), req.ChildIDs) {
		writeError(w, fmt.Errorf("%w: child_ids must reorder the current children of %s", ErrBadRequest, parent))
		return
	}
	snap, err := h.ws.SetChildren(r.Context(), parent, req.ChildIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.quizzes.tree(snap))
}

func isPermutation(current, ordered []string) bool {
	if len(current) != len(ordered) {
		return false
	}
	a, b := slices.Clone(current), slices.Clone(ordered)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// HandleRename sets the user-defined name of {id}.
func (h *FeatureHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.ws.Rename(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.quizzes.tree(snap))
}

// HandleDelete removes {id} from the tree.
func (h *FeatureHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, err := h.ws.Delete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("Feature deleted", "id", id)
	writeJSON(w, http.StatusOK, h.quizzes.tree(snap))
}
