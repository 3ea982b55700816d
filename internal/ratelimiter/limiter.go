package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/ricirt/plinko-sync/internal/domain"
)

// TableLimiters holds one token bucket limiter per sync table.
// Burst is set equal to the rate so a replay after a long offline stretch
// cannot hit the remote store harder than the configured per-second maximum.
type TableLimiters struct {
	limiters map[domain.Table]*rate.Limiter
}

// New creates a TableLimiters with ratePerSec tokens per second per table.
// A non-positive rate disables limiting.
func New(ratePerSec int) *TableLimiters {
	r := rate.Limit(ratePerSec)
	burst := ratePerSec
	if ratePerSec <= 0 {
		r = rate.Inf
		burst = 1
	}

	limiters := make(map[domain.Table]*rate.Limiter)
	for _, t := range domain.Tables() {
		limiters[t] = rate.NewLimiter(r, burst)
	}
	return &TableLimiters{limiters: limiters}
}

// Wait blocks until the table's limiter grants a token.
// Returns a non-nil error only if ctx is cancelled while waiting.
// Unknown tables are not limited.
func (tl *TableLimiters) Wait(ctx context.Context, t domain.Table) error {
	l, ok := tl.limiters[t]
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}
