// Package httpapi is the configuration surface: target CRUD, check history,
// health, metrics and maintenance.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	apimw "github.com/hamed0406/sitewatch/internal/httpapi/middleware"
	"github.com/hamed0406/sitewatch/internal/metrics"
	"github.com/hamed0406/sitewatch/internal/notify"
	"github.com/hamed0406/sitewatch/internal/repo"
)

const (
	defaultChecksLimit = 50
	maxChecksLimit     = 1000
)

type Sweeper interface {
	SweepOnce(ctx context.Context) (int, error)
}

type Server struct {
	Logger   *zap.Logger
	Store    repo.Store
	Notifier notify.Notifier
	Sweeper  Sweeper
	Defaults domain.Defaults
	// ValidateTimeout bounds the destination lookup done on create/update.
	ValidateTimeout time.Duration
}

func NewServer(l *zap.Logger, store repo.Store, n notify.Notifier, sw Sweeper, d domain.Defaults) *Server {
	return &Server{
		Logger:          l,
		Store:           store,
		Notifier:        n,
		Sweeper:         sw,
		Defaults:        d,
		ValidateTimeout: 30 * time.Second,
	}
}

type RouterOptions struct {
	AllowedOrigins []string
	RequestsPerMin int
	Burst          int
}

func (s *Server) Router(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	r.Use(corsHandler(opts.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(opts.RequestsPerMin, opts.Burst))

		r.Get("/targets", s.handleListTargets)
		r.Post("/targets", s.handleCreateTarget)
		r.Route("/targets/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetTarget)
			r.Patch("/", s.handleUpdateTarget)
			r.Delete("/", s.handleDeleteTarget)
			r.Post("/stop", s.handleStopTarget)
			r.Get("/checks", s.handleListChecks)
		})
		r.Post("/maintenance/sweep", s.handleSweep)
	})

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

// ---- payloads ----

type createPayload struct {
	URL              string `json:"url"`
	Name             string `json:"name"`
	ValidWord        string `json:"valid_word"`
	Timeout          int    `json:"timeout"`
	CheckInterval    int    `json:"check_interval"`
	FailureThreshold int    `json:"failure_threshold"`
	Active           *bool  `json:"is_active"`
	AlertDestination string `json:"alert_destination"`
}

type patchPayload struct {
	URL              *string `json:"url"`
	Name             *string `json:"name"`
	ValidWord        *string `json:"valid_word"`
	Timeout          *int    `json:"timeout"`
	CheckInterval    *int    `json:"check_interval"`
	FailureThreshold *int    `json:"failure_threshold"`
	Active           *bool   `json:"is_active"`
	AlertDestination *string `json:"alert_destination"`
}

// ---- handlers ----

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	ts, err := s.Store.List(r.Context())
	if err != nil {
		s.Logger.Error("list_targets_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	if ts == nil {
		ts = []*domain.Target{}
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var p createPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}

	t := &domain.Target{
		URL:              normalizeHTTPURL(p.URL),
		Name:             strings.TrimSpace(p.Name),
		ValidWord:        p.ValidWord,
		TimeoutSec:       p.Timeout,
		CheckIntervalSec: p.CheckInterval,
		FailureThreshold: p.FailureThreshold,
		Active:           true,
		AlertDestination: strings.TrimSpace(p.AlertDestination),
	}
	if p.Active != nil {
		t.Active = *p.Active
	}
	t.ApplyDefaults(s.Defaults)
	if err := t.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validateDestination(r.Context(), t.AlertDestination); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.Store.Create(r.Context(), t); err != nil {
		s.storeError(w, "create_target_error", err)
		return
	}
	s.Logger.Info("target_created",
		zap.String("target_id", string(t.ID)),
		zap.String("url", t.URL),
		zap.Int("check_interval", t.CheckIntervalSec),
	)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	t, err := s.Store.Get(r.Context(), targetID(r))
	if err != nil {
		s.storeError(w, "get_target_error", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	var p patchPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	t, err := s.Store.Get(r.Context(), targetID(r))
	if err != nil {
		s.storeError(w, "get_target_error", err)
		return
	}

	prevDest := t.AlertDestination
	if p.URL != nil {
		t.URL = normalizeHTTPURL(*p.URL)
	}
	if p.Name != nil {
		t.Name = strings.TrimSpace(*p.Name)
	}
	if p.ValidWord != nil {
		t.ValidWord = *p.ValidWord
	}
	if p.Timeout != nil {
		t.TimeoutSec = *p.Timeout
	}
	if p.CheckInterval != nil {
		t.CheckIntervalSec = *p.CheckInterval
	}
	if p.FailureThreshold != nil {
		t.FailureThreshold = *p.FailureThreshold
	}
	if p.Active != nil {
		t.Active = *p.Active
	}
	if p.AlertDestination != nil {
		t.AlertDestination = strings.TrimSpace(*p.AlertDestination)
	}
	if err := t.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if t.AlertDestination != prevDest {
		if err := s.validateDestination(r.Context(), t.AlertDestination); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := s.Store.Update(r.Context(), t); err != nil {
		s.storeError(w, "update_target_error", err)
		return
	}
	s.Logger.Info("target_updated", zap.String("target_id", string(t.ID)), zap.Bool("active", t.Active))
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id := targetID(r)
	if err := s.Store.Delete(r.Context(), id); err != nil {
		s.storeError(w, "delete_target_error", err)
		return
	}
	s.Logger.Info("target_deleted", zap.String("target_id", string(id)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStopTarget(w http.ResponseWriter, r *http.Request) {
	id := targetID(r)
	if err := s.Store.Stop(r.Context(), id); err != nil {
		s.storeError(w, "stop_target_error", err)
		return
	}
	t, err := s.Store.Get(r.Context(), id)
	if err != nil {
		s.storeError(w, "get_target_error", err)
		return
	}
	s.Logger.Info("target_stopped", zap.String("target_id", string(id)))
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	limit := defaultChecksLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxChecksLimit)
	}
	recs, err := s.Store.ListChecks(r.Context(), targetID(r), limit)
	if err != nil {
		s.storeError(w, "list_checks_error", err)
		return
	}
	if recs == nil {
		recs = []domain.CheckRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.Sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "retention sweeper not configured")
		return
	}
	n, err := s.Sweeper.SweepOnce(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// ---- helpers ----

func (s *Server) validateDestination(ctx context.Context, dest string) error {
	if dest == "" || s.Notifier == nil {
		return nil
	}
	vctx, cancel := context.WithTimeout(ctx, s.ValidateTimeout)
	defer cancel()
	if err := s.Notifier.ValidateDestination(vctx, dest); err != nil {
		s.Logger.Info("alert_destination_rejected", zap.String("destination", dest), zap.Error(err))
		return errors.New("alert_destination could not be verified")
	}
	return nil
}

func (s *Server) storeError(w http.ResponseWriter, event string, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "target not found")
	case errors.Is(err, repo.ErrDuplicate):
		writeError(w, http.StatusConflict, "url already monitored")
	default:
		s.Logger.Error(event, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func targetID(r *http.Request) domain.TargetID {
	return domain.TargetID(chi.URLParam(r, "id"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// normalizeHTTPURL lowercases scheme and host, drops default ports and a bare
// trailing slash. Anything unparsable is returned trimmed and left for
// validation to reject.
func normalizeHTTPURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	if u.Path == "/" && u.RawQuery == "" && u.Fragment == "" {
		u.Path = ""
	}
	return u.String()
}
