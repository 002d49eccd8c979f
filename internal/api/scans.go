package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"RivalScanner/internal/domain"
	"RivalScanner/internal/schedule"
	"RivalScanner/internal/usecase"
)

// ScheduleRequest is the body of PUT /api/scans/{id}/schedule.
type ScheduleRequest struct {
	Frequency  domain.Frequency `json:"frequency"`
	DayOfWeek  *int             `json:"day_of_week,omitempty"`
	DayOfMonth *int             `json:"day_of_month,omitempty"`
	Hour       int              `json:"hour"`
	Minute     int              `json:"minute"`
	Timezone   string           `json:"timezone"`
	Enabled    bool             `json:"enabled"`
}

func (h *Handler) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	var req usecase.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	req.Industry = strings.TrimSpace(req.Industry)
	if err := h.validate.Struct(req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}
	req.UserID = strings.TrimSpace(r.Header.Get(userIDHeader))

	scan, err := h.deps.Orchestrator.Begin(r.Context(), req)
	if err != nil {
		h.writeUsecaseError(w, err)
		return
	}

	h.goBackground("scan", func(ctx context.Context) {
		if _, err := h.deps.Orchestrator.Execute(ctx, scan); err != nil {
			h.logger.Error("scan execution failed", "scan_id", scan.ID, "error", err)
		}
	})
	writeJSON(w, http.StatusAccepted, scan)
}

func (h *Handler) handleGetScan(w http.ResponseWriter, r *http.Request) {
	scan, err := h.deps.Store.GetScan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

func (h *Handler) handleDeleteScan(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.DeleteScan(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeUsecaseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	run, err := h.deps.Orchestrator.BeginRefresh(r.Context(), usecase.RefreshRequest{
		ScanID:  chi.URLParam(r, "id"),
		Trigger: domain.TriggerManual,
	})
	if err != nil {
		h.writeUsecaseError(w, err)
		return
	}

	h.goBackground("refresh", func(ctx context.Context) {
		h.deps.Orchestrator.ExecuteRefresh(ctx, run)
	})
	writeJSON(w, http.StatusAccepted, run.Log)
}

func (h *Handler) handleListRefreshLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.deps.Store.GetScan(r.Context(), id); err != nil {
		h.writeUsecaseError(w, err)
		return
	}
	logs, err := h.deps.Store.ListRefreshLogs(r.Context(), id, parseIntParam(r, "limit", defaultLogsLimit, maxLogsLimit))
	if err != nil {
		h.writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refresh_logs": logs})
}

func (h *Handler) handlePutSchedule(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}

	scan, err := h.deps.Store.GetScan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeUsecaseError(w, err)
		return
	}

	sched := domain.ScanSchedule{
		ScanID:     scan.ID,
		UserID:     scan.UserID,
		Frequency:  req.Frequency,
		DayOfWeek:  req.DayOfWeek,
		DayOfMonth: req.DayOfMonth,
		Hour:       req.Hour,
		Minute:     req.Minute,
		Timezone:   strings.TrimSpace(req.Timezone),
		Enabled:    req.Enabled,
	}
	if err := h.validate.Struct(sched); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}
	if _, err := schedule.Expression(sched); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}

	saved, err := h.deps.Store.UpsertSchedule(r.Context(), sched)
	if err != nil {
		h.writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sweeper == nil {
		httpError(w, http.StatusServiceUnavailable, "configuration_error", "sweeper is not configured")
		return
	}
	report, err := h.deps.Sweeper.Sweep(r.Context())
	if err != nil {
		h.logger.Warn("sweep finished with errors", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"report": report, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (h *Handler) writeUsecaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, usecase.ErrRefreshInProgress), errors.Is(err, usecase.ErrScanNotRefreshable):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	case errors.Is(err, usecase.ErrInvalidRequest):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		h.logger.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
	}
}
