package api

import (
	"log/slog"
	"net/http"
	"time"

	"geoquiz/pkg/version"
)

// Handlers groups the endpoint handlers served by NewServer.
type Handlers struct {
	Quizzes  *QuizHandler
	Features *FeatureHandler
	Search   *SearchHandler
	Session  *SessionHandler
	Stats    *StatsHandler
}

// NewServer creates and configures the HTTP server.
// shutdown is called when a client requests a graceful shutdown.
func NewServer(addr string, h Handlers, shutdown func()) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      NewMux(h, shutdown),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewMux registers all routes.
func NewMux(h Handlers, shutdown func()) *http.ServeMux {
	mux := http.NewServeMux()

	// 1. Health & Version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	if h.Stats != nil {
		mux.Handle("GET /api/stats", h.Stats)
	}

	// 2. Quizzes
	mux.HandleFunc("GET /api/quizzes", h.Quizzes.HandleList)
	mux.HandleFunc("POST /api/quizzes", h.Quizzes.HandleCreate)
	mux.HandleFunc("GET /api/quiz", h.Quizzes.HandleActive)
	mux.HandleFunc("GET /api/quizzes/{root}", h.Quizzes.HandleGet)
	mux.HandleFunc("DELETE /api/quizzes/{root}", h.Quizzes.HandleDelete)
	mux.HandleFunc("POST /api/quizzes/{root}/save", h.Quizzes.HandleSave)
	mux.HandleFunc("POST /api/quizzes/{root}/load", h.Quizzes.HandleLoad)

	// 3. Builder: tree edits
	mux.HandleFunc("POST /api/features/{parent}/children", h.Features.HandleAddChild)
	mux.HandleFunc("PUT /api/features/{parent}/children", h.Features.HandleSetChildren)
	mux.HandleFunc("PATCH /api/features/{id}", h.Features.HandleRename)
	mux.HandleFunc("DELETE /api/features/{id}", h.Features.HandleDelete)

	// 4. Builder: search
	mux.HandleFunc("GET /api/search/areas", h.Search.HandleAreas)
	mux.HandleFunc("GET /api/search/points", h.Search.HandlePoints)
	mux.HandleFunc("GET /api/search/state", h.Search.HandleState)
	mux.HandleFunc("GET /api/search/ws", h.Search.HandleStream)

	// 5. Taker
	mux.HandleFunc("GET /api/session", h.Session.HandleGet)
	mux.HandleFunc("POST /api/session/reset", h.Session.HandleReset)
	mux.HandleFunc("POST /api/session/answer", h.Session.HandleAnswer)

	// 6. Shutdown
	if shutdown != nil {
		mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
			slog.Info("Graceful shutdown initiated via API")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("Shutting down...")); err != nil {
				slog.Error("Failed to write shutdown response", "error", err)
			}
			// Let the response flush first.
			go func() {
				time.Sleep(100 * time.Millisecond)
				shutdown()
			}()
		})
	}

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.Version})
}
