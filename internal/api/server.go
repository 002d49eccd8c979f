package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"RivalScanner/internal/ports"
	"RivalScanner/internal/usecase"
)

const (
	maxBodySize       = 1 << 20
	defaultLogsLimit  = 20
	maxLogsLimit      = 100
	userIDHeader      = "X-User-ID"
	shutdownGraceTime = 10 * time.Second
)

// Deps groups what the handlers need.
type Deps struct {
	Orchestrator *usecase.Orchestrator
	Sweeper      *usecase.Sweeper
	Store        ports.Store
	CronSecret   string
	Logger       *slog.Logger
}

// Handler serves the scan API. Work accepted with 202 keeps running after the
// response; Wait blocks until it is done.
type Handler struct {
	deps     Deps
	validate *validator.Validate
	logger   *slog.Logger
	// base outlives individual requests so accepted work is not cancelled with them.
	base       context.Context
	background sync.WaitGroup
	router     chi.Router
}

// NewHandler builds the router.
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "api"),
		base:     context.Background(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/scans", h.handleCreateScan)
		r.Get("/scans/{id}", h.handleGetScan)
		r.Delete("/scans/{id}", h.handleDeleteScan)
		r.Post("/scans/{id}/refresh", h.handleRefresh)
		r.Get("/scans/{id}/refresh-logs", h.handleListRefreshLogs)
		r.Put("/scans/{id}/schedule", h.handlePutSchedule)
		r.With(BearerAuth(deps.CronSecret)).Post("/cron/sweep", h.handleSweep)
	})
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Wait blocks until every background job started by a request has finished.
func (h *Handler) Wait() {
	h.background.Wait()
}

func (h *Handler) goBackground(name string, fn func(ctx context.Context)) {
	h.background.Add(1)
	go func() {
		defer h.background.Done()
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("background job panicked", "job", name, "panic", rec)
			}
		}()
		fn(h.base)
	}()
}

// Serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests and background jobs.
func Serve(ctx context.Context, addr string, h *Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGraceTime)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	h.Wait()
	return nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
