package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"occurcal/internal/cache"
	"occurcal/internal/config"
	"occurcal/internal/datekey"
	"occurcal/internal/guard"
	"occurcal/internal/ics"
	appLog "occurcal/internal/log"
	"occurcal/internal/model"
	"occurcal/internal/occurrence"
	"occurcal/internal/override"
	"occurcal/internal/recurrence"
	"occurcal/internal/store"
	"occurcal/internal/timeline"
)

// maxDays bounds ?days= on the timeline endpoint.
const maxDays = 366

// Server provides the HTTP API over the store, the timeline builder and the
// write guard.
type Server struct {
	cfg   *config.Config
	store store.Store
	cal   *datekey.Calendar
	cache *cache.Cache[Cached]
	mux   *http.ServeMux

	// Now is the clock "today" is derived from; defaults to time.Now.
	Now func() time.Time
}

// Cached is an encoded response body kept in the response cache.
type Cached struct {
	contentType string
	body        []byte
}

// NewServer constructs a new Server. A nil cache disables response caching.
func NewServer(cfg *config.Config, st store.Store, cal *datekey.Calendar, c *cache.Cache[Cached]) *Server {
	s := &Server{
		cfg:   cfg,
		store: st,
		cal:   cal,
		cache: c,
		mux:   http.NewServeMux(),
		Now:   time.Now,
	}
	s.registerRoutes()
	return s
}

// NewCache builds the response cache from cfg.
func NewCache(cfg config.CacheConfig) *cache.Cache[Cached] {
	return cache.New[Cached](cache.Config{
		TTL:        time.Duration(cfg.TTLSeconds) * time.Second,
		MaxEntries: cfg.MaxEntries,
	})
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
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
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
			w.Header().Set("WWW-Authenticate", `Basic realm="occurcal", charset="UTF-8"`)
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

// PurgeCache drops expired cached responses.
func (s *Server) PurgeCache() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Purge()
}

// ClearCache drops every cached response; used after the store changed.
func (s *Server) ClearCache() {
	if s.cache != nil {
		s.cache.Clear()
	}
}

// Serve runs the server on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/timeline", s.handleTimeline)
	s.mux.HandleFunc("GET /api/series", s.handleSeries)
	s.mux.HandleFunc("GET /api/events/{id}/next", s.handleNext)
	s.mux.HandleFunc("GET /api/events/{id}/resolve", s.handleResolve)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendar)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) today() string {
	return s.cal.Today(s.Now())
}

// load reads the whole store for one request.
func (s *Server) load(ctx context.Context) ([]model.Event, []override.Override, error) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, nil, err
	}
	overrides, err := s.store.ListOverrides(ctx)
	if err != nil {
		return nil, nil, err
	}
	return events, overrides, nil
}

// cached serves key from the response cache, or builds, caches and serves
// it. On failure build writes its own error response and returns false.
func (s *Server) cached(w http.ResponseWriter, key string, build func() (Cached, bool)) {
	if s.cache != nil {
		if resp, ok := s.cache.Get(key); ok {
			writeResponse(w, resp)
			return
		}
	}
	resp, ok := build()
	if !ok {
		return
	}
	if s.cache != nil {
		s.cache.Set(key, resp)
	}
	writeResponse(w, resp)
}

// handleTimeline returns the date-grouped timeline.
//
// GET /api/timeline?days=N
//   - days: window length from today (default window_days, at most 366)
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(r.URL.Query().Get("days"), s.cfg.WindowDays)
	if !ok {
		writeError(w, http.StatusBadRequest, "days must be an integer between 1 and 366")
		return
	}
	today := s.today()

	s.cached(w, cache.Key("timeline", today, strconv.Itoa(days)), func() (Cached, bool) {
		events, overrides, err := s.load(r.Context())
		if err != nil {
			appLog.Error("api timeline: store read failed", err)
			writeError(w, http.StatusInternalServerError, "failed to read store")
			return Cached{}, false
		}
		tl := timeline.BuildTimeline(events, overrides, timeline.Options{
			Today:    today,
			Window:   occurrence.WindowFor(today, days),
			Caps:     s.cfg.Caps,
			Calendar: s.cal,
		})
		appLog.Info("api timeline request", "today", today, "days", days,
			"events", tl.EventsProcessed, "groups", len(tl.Groups), "capped", tl.Capped)
		return jsonResponse(w, timelineResponse{Today: today, Timeline: tl})
	})
}

type timelineResponse struct {
	Today string `json:"today"`
	timeline.Timeline
}

// handleSeries returns one entry per event with its next occurrence and
// upcoming dates.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	today := s.today()

	s.cached(w, cache.Key("series", today), func() (Cached, bool) {
		events, overrides, err := s.load(r.Context())
		if err != nil {
			appLog.Error("api series: store read failed", err)
			writeError(w, http.StatusInternalServerError, "failed to read store")
			return Cached{}, false
		}
		series := timeline.BuildSeries(events, overrides, timeline.SeriesOptions{
			Today:         today,
			Window:        occurrence.WindowFor(today, s.cfg.WindowDays),
			Caps:          s.cfg.Caps,
			UpcomingLimit: s.cfg.SeriesUpcoming,
			Calendar:      s.cal,
		})
		return jsonResponse(w, seriesResponse{Today: today, Series: series})
	})
}

type seriesResponse struct {
	Today  string                 `json:"today"`
	Series []timeline.SeriesEntry `json:"series"`
}

// nextResponse is the JSON response shape for /api/events/{id}/next.
type nextResponse struct {
	EventID    string                    `json:"event_id"`
	Frequency  recurrence.Frequency      `json:"frequency"`
	Summary    string                    `json:"summary"`
	Next       occurrence.NextOccurrence `json:"next"`
	Resolvable bool                      `json:"resolvable"`
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ev, err := s.store.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		appLog.Error("api next: store read failed", err, "event_id", id)
		writeError(w, http.StatusInternalServerError, "failed to read store")
		return
	}

	n := recurrence.Normalize(ev.Schedule, s.cal)
	next := occurrence.Next(n, s.today())
	writeJSON(w, http.StatusOK, nextResponse{
		EventID:    ev.ID,
		Frequency:  n.Frequency,
		Summary:    recurrence.Label(n),
		Next:       next,
		Resolvable: next.IsConfident,
	})
}

// handleResolve reports the occurrence a write for the event would target.
//
// GET /api/events/{id}/resolve?date=YYYY-MM-DD
//   - date: explicit occurrence; omitted means the next occurrence
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	resolver := guard.Resolver{Events: s.store, Calendar: s.cal}

	dateKey, err := resolver.Resolve(r.Context(), id, r.URL.Query().Get("date"), s.today())
	if err != nil {
		status := resolveStatus(err)
		if status == http.StatusInternalServerError {
			appLog.Error("api resolve failed", err, "event_id", id)
			writeError(w, status, "failed to resolve occurrence")
			return
		}
		appLog.Debug("api resolve rejected", "event_id", id, "err", err)
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"event_id": id, "date_key": dateKey})
}

func resolveStatus(err error) int {
	switch {
	case errors.Is(err, guard.ErrInvalidDateKey):
		return http.StatusBadRequest
	case errors.Is(err, guard.ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, guard.ErrOccurrenceCancelled):
		return http.StatusConflict
	case errors.Is(err, guard.ErrNoNextOccurrence):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// handleCalendar exports the default window as an ICS subscription.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	today := s.today()

	s.cached(w, cache.Key("calendar.ics", today), func() (Cached, bool) {
		events, overrides, err := s.load(r.Context())
		if err != nil {
			appLog.Error("api calendar: store read failed", err)
			writeError(w, http.StatusInternalServerError, "failed to read store")
			return Cached{}, false
		}
		tl := timeline.BuildTimeline(events, overrides, timeline.Options{
			Today:    today,
			Window:   occurrence.WindowFor(today, s.cfg.WindowDays),
			Caps:     s.cfg.Caps,
			Calendar: s.cal,
		})
		body := ics.Export(tl, s.cal, s.Now().UTC())
		return Cached{contentType: "text/calendar; charset=utf-8", body: []byte(body)}, true
	})
}

func parseDays(s string, def int) (int, bool) {
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > maxDays {
		return 0, false
	}
	return n, true
}

func jsonResponse(w http.ResponseWriter, v any) (Cached, bool) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		appLog.Error("failed to encode JSON response", err)
		writeError(w, http.StatusInternalServerError, "failed to encode response")
		return Cached{}, false
	}
	return Cached{contentType: "application/json; charset=utf-8", body: buf.Bytes()}, true
}

func writeResponse(w http.ResponseWriter, resp Cached) {
	w.Header().Set("Content-Type", resp.contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.body)
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
