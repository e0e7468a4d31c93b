package queue

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
	saveAttempts   = 3
	saveBackoff    = 100 * time.Millisecond
)

// DepthRecorder observes how many records wait in the queue.
type DepthRecorder interface {
	ArchiveQueueDepth(n int)
	ArchiveDropped()
}

type nopDepth struct{}

func (nopDepth) ArchiveQueueDepth(int) {}
func (nopDepth) ArchiveDropped()       {}

// Dispatcher moves interaction records to durable storage off the request
// path. Records are sharded by username over a fixed set of workers, so one
// user's records are archived in the order they were appended.
type Dispatcher struct {
	workers []chan domain.InteractionRecord
	archive ports.InteractionArchive
	depth   DepthRecorder
	log     zerolog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, archive ports.InteractionArchive, depth DepthRecorder, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	if depth == nil {
		depth = nopDepth{}
	}
	d := &Dispatcher{
		workers: make([]chan domain.InteractionRecord, numWorkers),
		archive: archive,
		depth:   depth,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.InteractionRecord, channelBuffer)
	}
	return d
}

// Run starts the workers and blocks until ctx is cancelled and every queued
// record has been handed to the archive.
func (d *Dispatcher) Run(ctx context.Context) error {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(i, ch)
	}

	<-ctx.Done()

	d.mu.Lock()
	d.stopped = true
	for _, ch := range d.workers {
		close(ch)
	}
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

// Enqueue hands rec to the worker responsible for its user. It never blocks:
// when that worker's buffer is full the record stays in memory only and is
// reported as dropped.
func (d *Dispatcher) Enqueue(rec domain.InteractionRecord) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.depth.ArchiveDropped()
		return
	}
	select {
	case d.workers[d.shardIndex(rec.Username)] <- rec:
		d.depth.ArchiveQueueDepth(d.pending())
	default:
		d.depth.ArchiveDropped()
		d.log.Warn().Str("interaction_id", rec.ID).Msg("archive queue full, record kept in memory only")
	}
}

// shardIndex maps a username deterministically to a worker index.
func (d *Dispatcher) shardIndex(username string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) pending() int {
	n := 0
	for _, ch := range d.workers {
		n += len(ch)
	}
	return n
}

func (d *Dispatcher) runWorker(id int, ch <-chan domain.InteractionRecord) {
	defer d.wg.Done()
	for rec := range ch {
		d.save(id, rec)
		d.depth.ArchiveQueueDepth(d.pending())
	}
}

func (d *Dispatcher) save(workerID int, rec domain.InteractionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	backoff := retry.WithMaxRetries(saveAttempts-1, retry.NewExponential(saveBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := d.archive.Save(ctx, rec); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		d.log.Error().Err(err).
			Str("interaction_id", rec.ID).
			Int("worker_id", workerID).
			Msg("archiving interaction failed")
	}
}
