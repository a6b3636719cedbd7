// Package dispatcher manages runner fan-out over the job queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/litrev/harvester/internal/runner"
	"github.com/litrev/harvester/internal/scholar"
)

// Dispatcher fans out queue work to a pool of runners.
type Dispatcher struct {
	queue   scholar.Queue
	runners []*runner.Runner
}

// New creates a Dispatcher.
func New(queue scholar.Queue, runners []*runner.Runner) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		runners: runners,
	}
}

// Run starts all runners and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, r := range d.runners {
		wg.Add(1)
		go func(rn *runner.Runner) {
			defer wg.Done()
			_ = rn.Run(ctx)
		}(r)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item scholar.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
