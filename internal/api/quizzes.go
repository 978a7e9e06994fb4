package api

import (
	"net/http"
	"time"

	"geoquiz/pkg/featurestore"
	"geoquiz/pkg/store"
)

// QuizHandler serves the active quiz tree and the saved quiz catalogue.
type QuizHandler struct {
	ws    *Workspace
	store store.QuizStore
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(ws *Workspace, st store.QuizStore) *QuizHandler {
	return &QuizHandler{ws: ws, store: st}
}

// TreeResponse is the full tree of the active quiz.
type TreeResponse struct {
	Name    string                 `json:"name"`
	Version uint64                 `json:"version"`
	Tree    *featurestore.Snapshot `json:"tree"`
}

func (h *QuizHandler) tree(snap *featurestore.Snapshot) TreeResponse {
	return TreeResponse{Name: h.ws.Name(), Version: snap.Version(), Tree: snap}
}

type quizNameRequest struct {
	Name string `json:"name"`
}

// QuizSummary describes a saved quiz.
type QuizSummary struct {
	RootID       string    `json:"root_id"`
	Name         string    `json:"name"`
	FeatureCount int       `json:"feature_count"`
	UpdatedAt    time.Time `json:"updated_at"`
	Active       bool      `json:"active"`
}

// HandleList returns all saved quizzes.
func (h *QuizHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.store.ListQuizzes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	active := h.ws.Snapshot().RootID()
	out := make([]QuizSummary, 0, len(quizzes))
	for i := range quizzes {
		q := &quizzes[i]
		out = append(out, QuizSummary{
			RootID:       q.RootID,
			Name:         q.Name,
			FeatureCount: q.FeatureCount,
			UpdatedAt:    q.UpdatedAt,
			Active:       q.RootID == active,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleCreate replaces the active quiz with a new, empty one.
func (h *QuizHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req quizNameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	snap := h.ws.Create(r.Context(), req.Name)
	writeJSON(w, http.StatusCreated, h.tree(snap))
}

// HandleActive returns the tree of the active quiz.
func (h *QuizHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tree(h.ws.Snapshot()))
}

// HandleGet returns the tree of the active quiz if {root} names it.
func (h *QuizHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snap := h.ws.Snapshot()
	if snap.RootID() != r.PathValue("root") {
		writeError(w, ErrQuizNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.tree(snap))
}

// HandleSave persists the active quiz.
func (h *QuizHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var req quizNameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	q, err := h.ws.Save(r.Context(), r.PathValue("root"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QuizSummary{
		RootID:       q.RootID,
		Name:         q.Name,
		FeatureCount: q.FeatureCount,
		UpdatedAt:    q.UpdatedAt,
		Active:       true,
	})
}

// HandleLoad makes a saved quiz the active one.
func (h *QuizHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ws.Load(r.Context(), r.PathValue("root"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.tree(snap))
}

// HandleDelete removes a saved quiz. The active tree is left untouched.
func (h *QuizHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteQuiz(r.Context(), r.PathValue("root")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
