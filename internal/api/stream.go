package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const streamWriteTimeout = 10 * time.Second

// StreamRequest is one keystroke-level search request sent by the display.
type StreamRequest struct {
	Kind   string `json:"kind"`
	Parent string `json:"parent"`
	Term   string `json:"q"`
}

// HandleStream upgrades to a websocket over which the display sends search
// terms as they are typed. Requests are debounced per kind; a response is
// sent for the latest term of each kind, and older in-flight searches are
// reported as superseded.
func (h *SearchHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{h: h, conn: conn, ctx: ctx, cancel: cancel, timers: make(map[string]*time.Timer)}
	defer s.close()

	h.logger.Debug("Search stream opened", "remote", r.RemoteAddr)
	for {
		var req StreamRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("Search stream closed", "error", err)
			}
			return
		}
		if req.Kind != kindAreas && req.Kind != kindPoints {
			s.write(SearchResponse{Kind: req.Kind, Term: req.Term, Status: errorStatus(ErrBadRequest), Error: "unknown search kind"})
			continue
		}
		s.schedule(req)
	}
}

type stream struct {
	h      *SearchHandler
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex // guards timers, closed and writes to conn
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

// schedule restarts the debounce timer of req.Kind.
func (s *stream) schedule(req StreamRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t := s.timers[req.Kind]; t != nil {
		t.Stop()
	}
	s.timers[req.Kind] = time.AfterFunc(s.h.debounce, func() { s.run(req) })
}

func (s *stream) run(req StreamRequest) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	resp, err := s.h.run(s.ctx, req.Kind, req.Parent, req.Term)
	if err != nil {
		resp.Status = errorStatus(err)
		resp.Error = err.Error()
	}
	s.write(resp)
}

func (s *stream) write(resp SearchResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := s.conn.WriteJSON(resp); err != nil {
		s.h.logger.Debug("Search stream write failed", "error", err)
	}
}

// close stops pending timers, cancels in-flight searches and waits for them.
func (s *stream) close() {
	s.mu.Lock()
	s.closed = true
	for _, t := range s.timers {
		t.Stop()
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	_ = s.conn.Close()
}
