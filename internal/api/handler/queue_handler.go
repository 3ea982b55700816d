package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apimw "github.com/ricirt/plinko-sync/internal/api/middleware"
	"github.com/ricirt/plinko-sync/internal/domain"
	"github.com/ricirt/plinko-sync/internal/queue"
	"github.com/ricirt/plinko-sync/internal/worker"
)

// Syncer runs one sync cycle on demand.
type Syncer interface {
	Cycle(ctx context.Context) (worker.CycleResult, error)
}

// QueueHandler exposes the offline queue for diagnostics and raw producers.
type QueueHandler struct {
	q      *queue.Queue
	syncer Syncer
	logger *zap.Logger
}

func NewQueueHandler(q *queue.Queue, syncer Syncer, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{q: q, syncer: syncer, logger: logger}
}

// Peek handles GET /api/v1/queue
func (h *QueueHandler) Peek(w http.ResponseWriter, r *http.Request) {
	items := h.q.PeekAll()
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  items,
		"total": len(items),
	})
}

// Enqueue handles POST /api/v1/queue
//
// A missing id gets a fresh UUID and a missing createdAt is stamped with the
// current time; everything else is validated as sent.
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var item domain.QueueItem
	if err := decodeJSON(r, &item); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt == 0 {
		item.CreatedAt = time.Now().UnixMilli()
	}

	if err := h.q.Enqueue(item); err != nil {
		h.logger.Warn("enqueue failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

// Replace handles PUT /api/v1/queue
//
// The body is the complete new pending list. Every item is validated before
// anything is written.
func (h *QueueHandler) Replace(w http.ResponseWriter, r *http.Request) {
	var items []domain.QueueItem
	if err := decodeJSON(r, &items); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if err := it.Validate(); err != nil {
			mapError(w, err)
			return
		}
		if _, dup := seen[it.ID]; dup {
			mapError(w, domain.ErrDuplicateItem)
			return
		}
		seen[it.ID] = struct{}{}
	}

	if err := h.q.ReplaceAll(items); err != nil {
		mapError(w, err)
		return
	}
	h.logger.Info("queue replaced",
		zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
		zap.Int("count", len(items)),
	)
	respondJSON(w, http.StatusOK, map[string]int{"total": len(items)})
}

// Sync handles POST /api/v1/sync
func (h *QueueHandler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.syncer.Cycle(r.Context())
	if err != nil {
		h.logger.Warn("on-demand sync failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
