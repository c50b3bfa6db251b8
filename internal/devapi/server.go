// Package devapi is a self-contained, in-memory HR API for local development
// and tests. It serves the same routes and envelopes as the production API
// so the web client can run without a database.
package devapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/phillip-england/hrsuite/internal/middleware"
	"github.com/phillip-england/hrsuite/internal/paging"
	"github.com/spf13/viper"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
	defaultLimit    = 10
	maxLimit        = 1000
)

type Config struct {
	Addr          string
	SigningKey    []byte
	AdminEmail    string
	AdminPassword string
	Location      *time.Location
	// LateAfter is the local time of day after which a check-in counts as
	// late in the admin summary.
	LateAfter time.Duration
}

func ConfigFromEnv() Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("DEV_API_ADDR", ":5000")
	v.SetDefault("DEV_SIGNING_KEY", "")
	v.SetDefault("DEV_LATE_AFTER", "9h30m")
	v.SetDefault("TIMEZONE", "Local")

	loc, err := time.LoadLocation(v.GetString("TIMEZONE"))
	if err != nil {
		loc = time.Local
	}
	return Config{
		Addr:          v.GetString("DEV_API_ADDR"),
		SigningKey:    []byte(v.GetString("DEV_SIGNING_KEY")),
		AdminEmail:    strings.TrimSpace(v.GetString("DEV_ADMIN_EMAIL")),
		AdminPassword: v.GetString("DEV_ADMIN_PASSWORD"),
		Location:      loc,
		LateAfter:     v.GetDuration("DEV_LATE_AFTER"),
	}
}

// Server holds every record in memory behind one mutex.
type Server struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu           sync.Mutex
	users        map[string]*user
	attendance   []*day
	leaves       []*leave
	office       *office
	accessTokens map[string]string
	refresh      map[string]refreshToken
	calls        map[string]int
}

// New builds a server and seeds the configured admin, if any.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if len(cfg.SigningKey) == 0 {
		key, err := randomKey()
		if err != nil {
			return nil, err
		}
		cfg.SigningKey = key
	}
	if cfg.LateAfter <= 0 {
		cfg.LateAfter = 9*time.Hour + 30*time.Minute
	}
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		users:        map[string]*user{},
		accessTokens: map[string]string{},
		refresh:      map[string]refreshToken{},
		calls:        map[string]int{},
	}
	if cfg.AdminEmail != "" {
		if _, err := s.AddAccount(Account{Name: "Administrator", Email: cfg.AdminEmail, Password: cfg.AdminPassword, Role: roleAdmin}); err != nil {
			return nil, fmt.Errorf("seed admin: %w", err)
		}
	}
	return s, nil
}

// SetClock replaces the server's clock.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Calls reports how many requests matched pattern, e.g.
// "POST /api/attendance/checkin".
func (s *Server) Calls(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[pattern]
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.health)

	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/logout", s.logout)

	mux.Handle("GET /api/attendance/me", s.requireAuth(s.myAttendance))
	mux.Handle("POST /api/attendance/checkin", s.requireAuth(s.checkIn))
	mux.Handle("POST /api/attendance/checkout", s.requireAuth(s.checkOut))
	mux.Handle("GET /api/admin/attendance", s.requireAdmin(s.allAttendance))
	mux.Handle("GET /api/admin/summary", s.requireAdmin(s.summary))

	mux.Handle("GET /api/employees", s.requireAdmin(s.listEmployees))
	mux.Handle("POST /api/employees", s.requireAdmin(s.createEmployee))
	mux.Handle("GET /api/employees/office", s.requireAuth(s.getOffice))
	mux.Handle("POST /api/employees/office", s.requireAdmin(s.saveOffice))
	mux.Handle("GET /api/employees/{id}", s.requireAdmin(s.getEmployee))
	mux.Handle("PUT /api/employees/{id}", s.requireAdmin(s.updateEmployee))
	mux.Handle("DELETE /api/employees/{id}", s.requireAdmin(s.deleteEmployee))

	mux.Handle("POST /api/leaves/apply", s.requireAuth(s.applyLeave))
	mux.Handle("GET /api/leaves/my-leaves", s.requireAuth(s.myLeaves))
	mux.Handle("GET /api/leaves/all", s.requireAdmin(s.allLeaves))
	mux.Handle("PUT /api/leaves/{id}/status", s.requireAdmin(s.setLeaveStatus))

	return middleware.Chain(mux, s.countCalls(mux), middleware.RequestLogger(s.logger))
}

// countCalls records the matched route pattern of every request.
func (s *Server) countCalls(mux *http.ServeMux) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, pattern := mux.Handler(r); pattern != "" {
				s.mu.Lock()
				s.calls[pattern]++
				s.mu.Unlock()
			}
			next.ServeHTTP(w, r)
		})
	}
}

func Run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	srv, err := New(cfg, logger)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("development api listening", "addr", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"data": data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(out)
}

func paginate[T any](items []T, r *http.Request) paging.Page[T] {
	page := parsePositiveQueryInt(r.URL.Query().Get("page"), 1)
	limit := min(parsePositiveQueryInt(r.URL.Query().Get("limit"), defaultLimit), maxLimit)
	out := paging.Page[T]{Items: []T{}, Total: len(items), Page: page, Limit: limit}
	start := (page - 1) * limit
	if start < len(items) {
		out.Items = items[start:min(len(items), start+limit)]
	}
	return out
}

func parsePositiveQueryInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
