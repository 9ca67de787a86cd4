package messaging

import (
	"context"
	"hash/fnv"
	"log/slog"

	"github.com/BTreeMap/SearchPipe/internal/models"
	"golang.org/x/sync/errgroup"
)

// Dispatcher defaults.
const (
	DefaultDispatchWorkers = 4
	DefaultWorkerQueueSize = 16
)

// Dispatcher spreads inbound messages over a fixed set of workers. Messages with
// the same key always go to the same worker, so they are processed in arrival order.
type Dispatcher struct {
	workers int
	key     func(models.Response) string
	process func(context.Context, models.Response) error
}

// NewDispatcher creates a Dispatcher. workers below 1 selects DefaultDispatchWorkers.
func NewDispatcher(workers int, key func(models.Response) string, process func(context.Context, models.Response) error) *Dispatcher {
	if workers < 1 {
		workers = DefaultDispatchWorkers
	}
	return &Dispatcher{workers: workers, key: key, process: process}
}

func (d *Dispatcher) shard(r models.Response) int {
	h := fnv.New32a()
	h.Write([]byte(d.key(r)))
	return int(h.Sum32() % uint32(d.workers))
}

// Run consumes in until it closes or ctx is cancelled, then waits for the workers
// to drain their queues. Processing errors are logged, not returned.
func (d *Dispatcher) Run(ctx context.Context, in <-chan models.Response) error {
	queues := make([]chan models.Response, d.workers)
	for i := range queues {
		queues[i] = make(chan models.Response, DefaultWorkerQueueSize)
	}

	var g errgroup.Group
	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				slog.Debug("Dispatcher stopping due to context cancellation")
				return nil
			case r, ok := <-in:
				if !ok {
					slog.Debug("Dispatcher input channel closed")
					return nil
				}
				select {
				case queues[d.shard(r)] <- r:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})

	for i, q := range queues {
		g.Go(func() error {
			for r := range q {
				if err := d.process(ctx, r); err != nil {
					slog.Error("Dispatcher failed to process message", "worker", i, "error", err, "from", r.From)
				}
			}
			return nil
		})
	}
	return g.Wait()
}
