package ledger

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"example.com/presence/internal/domain"
	"example.com/presence/internal/presence"
)

// Update is one presence observation queued for a user. Previous is nil for
// the first observation after boot.
type Update struct {
	UserID     string
	Previous   *domain.Snapshot
	Current    domain.Snapshot
	ObservedAt time.Time
}

// Dispatcher fans presence updates out to a fixed pool of mailbox workers.
// A user always hashes to the same worker, so updates for one user are
// applied strictly in arrival order while different users proceed in
// parallel. This is what upholds the at-most-one-open invariant without a
// global lock.
type Dispatcher struct {
	ledger    *Ledger
	tolerance time.Duration
	queues    []chan Update
	logger    *log.Logger
	wg        sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher with the given worker count.
func NewDispatcher(l *Ledger, workers int, tolerance time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if tolerance <= 0 {
		tolerance = presence.DefaultDriftTolerance
	}

	queues := make([]chan Update, workers)
	for i := range queues {
		queues[i] = make(chan Update, 64)
	}
	return &Dispatcher{
		ledger:    l,
		tolerance: tolerance,
		queues:    queues,
		logger:    log.New(log.Writer(), "[dispatch] ", log.LstdFlags),
	}
}

// Start launches the workers. They drain their mailboxes until the context
// is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for _, queue := range d.queues {
		d.wg.Add(1)
		go func(queue chan Update) {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case update := <-queue:
					d.apply(ctx, update)
				}
			}
		}(queue)
	}
}

// Submit queues an update. Blocks when the user's mailbox is full, which
// back-pressures the poller rather than reordering or dropping updates.
func (d *Dispatcher) Submit(update Update) {
	d.queues[d.shard(update.UserID)] <- update
}

// Wait blocks until all workers have stopped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) apply(ctx context.Context, update Update) {
	d.ledger.RecordUser(ctx, update.UserID, update.Current.Username)

	diff := presence.Compute(update.Previous, update.Current, d.tolerance)
	if diff.Empty() {
		return
	}

	if err := d.ledger.ApplyDiff(ctx, update.UserID, diff, update.ObservedAt); err != nil {
		d.logger.Printf("apply diff failed (user=%s): %v", update.UserID, err)
	}
}

func (d *Dispatcher) shard(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(d.queues)))
}
