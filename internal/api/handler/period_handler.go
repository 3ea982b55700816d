package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/ricirt/plinko-sync/internal/api/middleware"
	"github.com/ricirt/plinko-sync/internal/domain"
	"github.com/ricirt/plinko-sync/internal/service"
)

// PeriodHandler handles the period endpoints.
type PeriodHandler struct {
	svc    *service.PeriodService
	logger *zap.Logger
}

func NewPeriodHandler(svc *service.PeriodService, logger *zap.Logger) *PeriodHandler {
	return &PeriodHandler{svc: svc, logger: logger}
}

// List handles GET /api/v1/periods
func (h *PeriodHandler) List(w http.ResponseWriter, r *http.Request) {
	periods := h.svc.Periods()
	resp := map[string]any{"data": periods, "total": len(periods)}
	if p, ok := h.svc.Selected(); ok {
		resp["selected_id"] = p.ID
	}
	respondJSON(w, http.StatusOK, resp)
}

// Create handles POST /api/v1/periods
func (h *PeriodHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePeriodRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, err := h.svc.CreatePeriod(req)
	if err != nil {
		h.warn(r, "create period failed", err)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// Update handles PATCH /api/v1/periods/{id}
func (h *PeriodHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(w, r)
	if !ok {
		return
	}
	var req domain.UpdatePeriodRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, err := h.svc.Update(id, req)
	if err != nil {
		h.warn(r, "update period failed", err)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /api/v1/periods/{id}
func (h *PeriodHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeletePeriod(id); err != nil {
		h.warn(r, "delete period failed", err)
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Select handles POST /api/v1/periods/{id}/select
func (h *PeriodHandler) Select(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Select(id); err != nil {
		mapError(w, err)
		return
	}
	p, _ := h.svc.Selected()
	respondJSON(w, http.StatusOK, p)
}

// Drop handles POST /api/v1/drops
func (h *PeriodHandler) Drop(w http.ResponseWriter, r *http.Request) {
	var req domain.DropRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ev, err := h.svc.RecordDrop(req)
	if err != nil {
		h.warn(r, "record drop failed", err)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ev)
}

func (h *PeriodHandler) warn(r *http.Request, msg string, err error) {
	h.logger.Warn(msg,
		zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
		zap.Error(err),
	)
}

func periodID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "period id must be a positive integer")
		return 0, false
	}
	return id, true
}
