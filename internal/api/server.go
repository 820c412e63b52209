// Package api is the JSON HTTP surface behind the browser UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/serenitybot/serenity/internal/companion"
	"github.com/serenitybot/serenity/internal/identity"
	"github.com/serenitybot/serenity/internal/mood"
	"github.com/serenitybot/serenity/internal/schedule"
	"github.com/serenitybot/serenity/internal/store"
)

const maxBodyBytes = 12 << 20 // room for a few base64 audio clips

// Store is the persistence the handlers need.
type Store interface {
	companion.Store

	RefreshDailyReport(ctx context.Context, userID, date string) (mood.DailyReport, error)
	DailyReport(ctx context.Context, userID, date string) (mood.DailyReport, error)

	StoreLetter(ctx context.Context, userID, content, deliverOn string) (store.Letter, error)
	DueLetters(ctx context.Context, userID string) ([]store.Letter, error)
	MarkLetterDelivered(ctx context.Context, userID, id string) error

	AddMemory(ctx context.Context, m store.Memory) (store.Memory, error)

	AddScheduleItem(ctx context.Context, userID string, it schedule.Item) (schedule.Item, error)
	DeleteScheduleItem(ctx context.Context, userID, id string) error

	CreateSession(ctx context.Context, userID string, ttl time.Duration) (store.Session, error)
	ValidateSession(ctx context.Context, token string) (store.Session, error)
	DeleteSession(ctx context.Context, token string) error

	Now() time.Time
}

type Options struct {
	AllowedOrigins    []string
	AuthRatePerMinute int
	AuthBurst         int
	ScheduleCacheSize int
	SessionTTL        time.Duration
	Logger            *zap.Logger
}

type Server struct {
	store     Store
	identity  identity.Provider
	companion *companion.Service
	opts      Options
	limiter   *IPRateLimiter
	schedules *scheduleCache
	fallback  http.Handler
	logger    *zap.Logger
}

func New(st Store, idp identity.Provider, svc *companion.Service, opts Options) (*Server, error) {
	if opts.AuthRatePerMinute <= 0 {
		opts.AuthRatePerMinute = 10
	}
	if opts.AuthBurst <= 0 {
		opts.AuthBurst = 5
	}
	if opts.ScheduleCacheSize <= 0 {
		opts.ScheduleCacheSize = 256
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	cache, err := newScheduleCache(opts.ScheduleCacheSize)
	if err != nil {
		return nil, fmt.Errorf("schedule cache: %w", err)
	}
	return &Server{
		store:     st,
		identity:  idp,
		companion: svc,
		opts:      opts,
		limiter:   NewIPRateLimiter(opts.AuthRatePerMinute, opts.AuthBurst),
		schedules: cache,
		logger:    opts.Logger,
	}, nil
}

// Mount serves h for every path the API does not claim.
func (s *Server) Mount(h http.Handler) {
	s.fallback = h
}

func (s *Server) Close() {
	s.limiter.Stop()
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/signup", rateLimited(s.limiter, s.handleSignUp)).Methods(http.MethodPost)
	auth.HandleFunc("/login", rateLimited(s.limiter, s.handleLogin)).Methods(http.MethodPost)
	auth.HandleFunc("/anonymous", rateLimited(s.limiter, s.handleAnonymous)).Methods(http.MethodPost)
	auth.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	priv := r.PathPrefix("/api").Subrouter()
	priv.Use(s.requireSession())
	priv.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	priv.HandleFunc("/moods", s.handleListMoods).Methods(http.MethodGet)
	priv.HandleFunc("/moods", s.handleLogMood).Methods(http.MethodPost)
	priv.HandleFunc("/reports/{date}", s.handleDailyReport).Methods(http.MethodGet)
	priv.HandleFunc("/insights", s.handleInsights).Methods(http.MethodGet)
	priv.HandleFunc("/affirmation", s.handleAffirmation).Methods(http.MethodPost)
	priv.HandleFunc("/breathing", s.handleBreathing).Methods(http.MethodGet)
	priv.HandleFunc("/gratitude", s.handleGratitude).Methods(http.MethodPost)
	priv.HandleFunc("/letters", s.handleDueLetters).Methods(http.MethodGet)
	priv.HandleFunc("/letters", s.handleWriteLetter).Methods(http.MethodPost)
	priv.HandleFunc("/letters/{id}/read", s.handleReadLetter).Methods(http.MethodPost)
	priv.HandleFunc("/memories", s.handleListMemories).Methods(http.MethodGet)
	priv.HandleFunc("/memories", s.handleAddMemory).Methods(http.MethodPost)
	priv.HandleFunc("/schedule", s.handleListSchedule).Methods(http.MethodGet)
	priv.HandleFunc("/schedule", s.handleAddSchedule).Methods(http.MethodPost)
	priv.HandleFunc("/schedule/clashes", s.handleClashes).Methods(http.MethodGet)
	priv.HandleFunc("/schedule/agenda", s.handleAgenda).Methods(http.MethodGet)
	priv.HandleFunc("/schedule/{id}", s.handleDeleteSchedule).Methods(http.MethodDelete)
	priv.HandleFunc("/schedule.ics", s.handleScheduleICS).Methods(http.MethodGet)

	if s.fallback != nil {
		r.PathPrefix("/").Handler(s.fallback)
	}
	return corsMiddleware(s.opts.AllowedOrigins)(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// internalError logs err and answers 500 without leaking details.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.String("user", UserID(r)), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
