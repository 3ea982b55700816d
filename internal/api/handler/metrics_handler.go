package handler

import (
	"net/http"
	"time"

	"github.com/ricirt/plinko-sync/internal/domain"
)

// QueueReader is the read side of the offline queue.
type QueueReader interface {
	PeekAll() []domain.QueueItem
}

// MetricsHandler serves a human-readable JSON queue snapshot.
// Raw Prometheus metrics are available at /metrics.
type MetricsHandler struct {
	q QueueReader
}

func NewMetricsHandler(q QueueReader) *MetricsHandler {
	return &MetricsHandler{q: q}
}

// GetMetrics handles GET /api/v1/metrics
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	items := h.q.PeekAll()
	now := time.Now()

	byTable := make(map[string]int)
	byOp := make(map[string]int)
	retrying := 0
	var oldest time.Duration
	for _, it := range items {
		byTable[string(it.Table)]++
		byOp[string(it.Op)]++
		if it.Attempts > 0 {
			retrying++
		}
		if age := it.Age(now); age > oldest {
			oldest = age
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"queue_depth":        len(items),
		"by_table":           byTable,
		"by_op":              byOp,
		"retrying":           retrying,
		"oldest_age_seconds": oldest.Seconds(),
	})
}
