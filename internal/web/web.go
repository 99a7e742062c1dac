package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"horizoncal/internal/bridge"
	"horizoncal/internal/config"
	"horizoncal/internal/event"
	"horizoncal/internal/ics"
	appLog "horizoncal/internal/log"
	"horizoncal/internal/model"
)

// Server provides the HTTP API over one bridge and its calendar model.
type Server struct {
	cfg    *config.Config
	bridge *bridge.Bridge
	cal    *bridge.Calendar
	mux    *http.ServeMux

	// In-memory cache for /calendar.ics so feed readers polling every
	// minute do not rescan the vault each time.
	feedMu    sync.Mutex
	feedCache *feedCache
}

const feedCacheTTL = 30 * time.Second

// feedCache holds one rendered ICS feed and what it was rendered for.
type feedCache struct {
	key       string
	version   uint64
	body      string
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, b *bridge.Bridge, cal *bridge.Calendar) *Server {
	s := &Server{
		cfg:    cfg,
		bridge: b,
		cal:    cal,
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
	// an empty username or password counts as disabled
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
			w.Header().Set("WWW-Authenticate", `Basic realm="horizoncal", charset="UTF-8"`)
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

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
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
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreate)
	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /api/event/{path...}", s.handleEvent)
	s.mux.HandleFunc("PUT /api/event/{path...}", s.handleEdit)
	// {path...} must end a pattern, so the reschedule suffix is split off
	// by hand.
	s.mux.HandleFunc("POST /api/event/{path...}", s.handleReschedule)
	s.mux.HandleFunc("GET /calendar.ics", s.handleFeed)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events          []model.DisplayEvent `json:"events"`
	RangeStart      time.Time            `json:"range_start"`
	RangeEnd        time.Time            `json:"range_end"`
	DisplayTimeZone string               `json:"display_timezone"`
}

// handleEvents answers the widget's range query and refreshes the calendar
// model for that window.
//
// GET /api/events?start=2024-03-01&end=2024-04-01
//   - start, end: RFC 3339 instants or YYYY-MM-DD dates in the display zone.
//     Missing bounds default to the configured backfill/horizon window.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	start, end, loc, err := s.window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	appLog.Debug("api events request",
		"range_start", start.Format(time.RFC3339),
		"range_end", end.Format(time.RFC3339),
	)

	events := s.bridge.Refresh(r.Context(), start, end)
	writeJSON(w, http.StatusOK, eventsResponse{
		Events:          events,
		RangeStart:      start,
		RangeEnd:        end,
		DisplayTimeZone: loc.String(),
	})
}

// calendarResponse is the JSON response shape for /api/calendar.
type calendarResponse struct {
	Version uint64               `json:"version"`
	Events  []model.DisplayEvent `json:"events"`
}

// handleCalendar returns the calendar model. With ?since=<version> matching
// the current version it answers 304 so clients can poll cheaply.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	v := s.cal.Version()
	if since := r.URL.Query().Get("since"); since != "" {
		if n, err := strconv.ParseUint(since, 10, 64); err == nil && n == v {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSON(w, http.StatusOK, calendarResponse{Version: v, Events: s.cal.Events()})
}

// fieldDTO is one editor form field.
type fieldDTO struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

type eventResponse struct {
	Path   string     `json:"path"`
	Valid  bool       `json:"valid"`
	Fields []fieldDTO `json:"fields"`
}

func eventDTO(ev *event.Event) eventResponse {
	resp := eventResponse{Path: ev.LoadedFrom, Valid: ev.Validate() == nil}
	for _, f := range ev.Fields() {
		dto := fieldDTO{Name: f.Name(), State: f.State().String()}
		if v, ok := f.Persisted(); ok {
			dto.Value = v
		}
		if errs := f.FoldErrors(nil); len(errs) > 0 {
			dto.Error = errs[0].Error()
		}
		resp.Fields = append(resp.Fields, dto)
	}
	return resp
}

// handleEvent returns one event as editor form data, valid or not.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	p := r.PathValue("path")
	if !event.IsEventPath(s.bridge.Root(), p) {
		writeError(w, http.StatusNotFound, "not an event path")
		return
	}
	ev, err := s.bridge.Open(r.Context(), p)
	if err != nil {
		s.writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventDTO(ev))
}

// fields is a decoded JSON object used as a frontmatter source.
type fields map[string]any

func (f fields) Lookup(key string) (any, bool) {
	v, ok := f[key]
	return v, ok
}

// createRequest creates an event from a selected range, a field map, or
// both (fields win).
type createRequest struct {
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	Fields fields     `json:"fields"`
}

type outcomeResponse struct {
	ID      string `json:"id"`
	Moved   bool   `json:"moved"`
	Warning string `json:"warning,omitempty"`
	Error   string `json:"error,omitempty"`
	// Revert tells the widget to undo the gesture.
	Revert bool `json:"revert,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var ev *event.Event
	switch {
	case req.Start != nil && req.End != nil:
		ev = event.NewFromSelection(*req.Start, *req.End)
		ev.Merge(req.Fields)
	case req.Start != nil || req.End != nil:
		writeError(w, http.StatusBadRequest, "start and end must be given together")
		return
	default:
		ev = event.FromStorage(req.Fields)
	}
	s.writeOutcome(w, s.bridge.Save(r.Context(), ev), http.StatusCreated)
}

type editRequest struct {
	Fields fields `json:"fields"`
}

// handleEdit applies the given fields to an existing event, saves it and
// moves it to its canonical path.
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	p := r.PathValue("path")
	if !event.IsEventPath(s.bridge.Root(), p) {
		writeError(w, http.StatusNotFound, "not an event path")
		return
	}
	var req editRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := s.bridge.Open(r.Context(), p)
	if err != nil {
		s.writeBridgeError(w, err)
		return
	}
	ev.Merge(req.Fields)
	if err := ev.Validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, eventDTO(ev))
		return
	}
	s.writeOutcome(w, s.bridge.Save(r.Context(), ev), http.StatusOK)
}

type rescheduleRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// handleReschedule stores a drag or resize. Paths that are not event notes
// fail like any other reschedule, so the widget reverts.
//
// POST /api/event/{path}/reschedule {"start": RFC3339, "end": RFC3339}
func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	p, ok := strings.CutSuffix(r.PathValue("path"), "/reschedule")
	if !ok {
		http.NotFound(w, r)
		return
	}
	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Start.IsZero() || req.End.IsZero() {
		writeError(w, http.StatusBadRequest, "start and end are required")
		return
	}
	s.writeOutcome(w, s.bridge.Reschedule(r.Context(), p, req.Start, req.End), http.StatusOK)
}

// handleFeed serves the events of a window as an ICS feed.
//
// GET /calendar.ics?start=&end= (same bounds as /api/events)
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	start, end, _, err := s.window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := start.Format(time.RFC3339) + "/" + end.Format(time.RFC3339)
	version := s.cal.Version()
	now := time.Now()

	s.feedMu.Lock()
	fc := s.feedCache
	s.feedMu.Unlock()
	if fc == nil || fc.key != key || fc.version != version || now.Sub(fc.updatedAt) >= feedCacheTTL {
		events := s.bridge.Loader().Load(r.Context(), start, end)
		fc = &feedCache{
			key:       key,
			version:   version,
			body:      ics.Export(events, now),
			updatedAt: now,
		}
		s.feedMu.Lock()
		s.feedCache = fc
		s.feedMu.Unlock()
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fc.body))
}

// window reads start/end query bounds, defaulting to the configured
// backfill/horizon window around now.
func (s *Server) window(r *http.Request) (time.Time, time.Time, *time.Location, error) {
	loc := resolveLocationOrLocal(s.cfg.Timezone)
	now := time.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	q := r.URL.Query()
	start, err := parseBound(q.Get("start"), loc, today.AddDate(0, 0, -s.cfg.BackfillDays))
	if err != nil {
		return time.Time{}, time.Time{}, nil, fmt.Errorf("start: %w", err)
	}
	end, err := parseBound(q.Get("end"), loc, today.AddDate(0, 0, s.cfg.HorizonDays))
	if err != nil {
		return time.Time{}, time.Time{}, nil, fmt.Errorf("end: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, nil, errors.New("end is before start")
	}
	return start, end, loc, nil
}

func parseBound(s string, loc *time.Location, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	return t, nil
}

func (s *Server) writeOutcome(w http.ResponseWriter, out bridge.Outcome, okStatus int) {
	resp := outcomeResponse{ID: out.ID, Moved: out.Moved}
	if out.Warning != nil {
		resp.Warning = out.Warning.Error()
	}
	if !out.OK() {
		resp.Error = out.Failed.Error()
		resp.Revert = true
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	writeJSON(w, okStatus, resp)
}

func (s *Server) writeBridgeError(w http.ResponseWriter, err error) {
	if errors.Is(err, bridge.ErrMissingFile) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	appLog.Error("api request failed", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		name = event.LocalZoneName()
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
