package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"shabbatcal/internal/config"
	"shabbatcal/internal/content"
	"shabbatcal/internal/engine"
	appLog "shabbatcal/internal/log"
	"shabbatcal/internal/model"
	"shabbatcal/internal/names"
	"shabbatcal/internal/week"
)

const (
	engineTimeout = 5 * time.Second
	maxBodyBytes  = 1 << 16
)

// Engine is the part of *engine.Engine the API needs.
type Engine interface {
	Send(ctx context.Context, m engine.Message) error
	State(ctx context.Context) (engine.State, error)
}

// Server provides the HTTP API over the calendar engine.
type Server struct {
	cfg    *config.Config
	engine Engine
	loc    *time.Location
	week   week.Identifier
	now    func() time.Time
	mux    *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, eng Engine) *Server {
	s := &Server{
		cfg:    cfg,
		engine: eng,
		loc:    resolveLocationOrLocal(cfg.Timezone),
		week:   week.Identifier{ThresholdHour: cfg.ThresholdHour},
		now:    time.Now,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth rather than locking everyone out.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="shabbatcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves the API on cfg.Listen until ctx is cancelled, then
// shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, eng Engine) error {
	s := NewServer(cfg, eng)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/week", s.handleWeek)
	s.mux.HandleFunc("GET /api/lookup", s.handleLookup)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /api/pin", s.handlePin)
	s.mux.HandleFunc("DELETE /api/pin", s.handleUnpin)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleState returns the engine's last published state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), engineTimeout)
	defer cancel()

	st, err := s.engine.State(ctx)
	if err != nil {
		appLog.Error("api state: engine unavailable", err)
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// weekResponse is the JSON response shape for /api/week.
type weekResponse struct {
	At       time.Time     `json:"at"`
	WeekKey  model.WeekKey `json:"week_key"`
	Boundary time.Time     `json:"boundary"`
}

// handleWeek maps an instant to its cycle.
//
// GET /api/week?at=2026-10-24T23:00:00+03:00
//   - at: RFC 3339 instant (default: now)
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	at := s.now().In(s.loc)
	if v := r.URL.Query().Get("at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "at must be an RFC 3339 timestamp")
			return
		}
		at = t.In(s.loc)
	}
	writeJSON(w, http.StatusOK, weekResponse{
		At:       at,
		WeekKey:  s.week.Identify(at),
		Boundary: s.week.Boundary(at),
	})
}

// handleLookup resolves a portion or holiday name.
//
// GET /api/lookup?name=Chayei+Sarah&index=portions
//   - index: portions (default) or holidays
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	idx := content.Index(strings.ToLower(q.Get("index")))
	if idx != "" && idx != content.IndexPortions && idx != content.IndexHolidays {
		writeError(w, http.StatusBadRequest, "index must be portions or holidays")
		return
	}

	v, err := content.Lookup(idx, name)
	switch {
	case errors.Is(err, names.ErrNoMatch):
		writeError(w, http.StatusNotFound, "no match")
	case err != nil:
		appLog.Error("api lookup failed", err, "name", name)
		writeError(w, http.StatusInternalServerError, "lookup failed")
	default:
		writeJSON(w, http.StatusOK, v)
	}
}

type acceptedResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.send(w, r, engine.Refresh{Now: s.now()})
}

// pinRequest is the JSON body for POST /api/pin. Coordinates default to
// the configured location.
type pinRequest struct {
	Date      string   `json:"date"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	date, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(req.Date), s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	coord := s.cfg.Location.Coord()
	if req.Latitude != nil {
		coord.Lat = *req.Latitude
	}
	if req.Longitude != nil {
		coord.Lon = *req.Longitude
	}
	if coord.Lat < -90 || coord.Lat > 90 || coord.Lon < -180 || coord.Lon > 180 {
		writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}

	s.send(w, r, engine.Pin{Now: s.now(), Date: date, Coord: coord})
}

func (s *Server) handleUnpin(w http.ResponseWriter, r *http.Request) {
	s.send(w, r, engine.Unpin{Now: s.now()})
}

func (s *Server) send(w http.ResponseWriter, r *http.Request, m engine.Message) {
	ctx, cancel := context.WithTimeout(r.Context(), engineTimeout)
	defer cancel()

	if err := s.engine.Send(ctx, m); err != nil {
		appLog.Error("api: engine send failed", err)
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "queued"})
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
