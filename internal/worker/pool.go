package worker

import (
	"context"

	"github.com/sourcegraph/conc"
)

// Runner is a long-lived background loop that returns once ctx is cancelled.
type Runner interface {
	Run(ctx context.Context)
}

// Pool manages the lifecycle of the background workers.
type Pool struct {
	runners []Runner
	wg      conc.WaitGroup
}

func NewPool(runners ...Runner) *Pool {
	return &Pool{runners: runners}
}

// Start launches every runner in its own goroutine. Cancelling ctx
// shuts the whole pool down.
func (p *Pool) Start(ctx context.Context) {
	for _, r := range p.runners {
		p.wg.Go(func() { r.Run(ctx) })
	}
}

// Wait blocks until every runner has returned. A runner panic is re-raised here.
func (p *Pool) Wait() {
	p.wg.Wait()
}
