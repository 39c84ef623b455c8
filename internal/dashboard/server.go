// Package dashboard serves a small JSON status API over the engine's
// in-memory state.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/eddiefleurent/stamford_strangler/internal/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Server exposes read-only views of the ledger and blacklist.
type Server struct {
	addr      string
	ledger    *ledger.Ledger
	blacklist *ledger.Blacklist
	logger    *logrus.Logger
	startedAt time.Time
	httpSrv   *http.Server
}

// NewServer creates a dashboard server bound to addr.
func NewServer(addr string, lg *ledger.Ledger, bl *ledger.Blacklist, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		addr:      addr,
		ledger:    lg,
		blacklist: bl,
		logger:    logger,
		startedAt: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/api/positions", s.handlePositions)
	r.Get("/api/blacklist", s.handleBlacklist)
	r.Get("/api/stats", s.handleStats)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.addr).Info("dashboard listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.ledger.Positions())
}

func (s *Server) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.blacklist.Symbols())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"open_positions": s.ledger.Len(),
		"blacklisted":    s.blacklist.Len(),
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("encoding dashboard response")
	}
}
