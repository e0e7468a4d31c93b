package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
)

type recordingArchive struct {
	mu       sync.Mutex
	saved    []domain.InteractionRecord
	failures int
}

func (a *recordingArchive) Save(_ context.Context, rec domain.InteractionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failures > 0 {
		a.failures--
		return errors.New("transient")
	}
	a.saved = append(a.saved, rec)
	return nil
}

func (a *recordingArchive) Recent(context.Context, int) ([]domain.InteractionRecord, error) {
	return nil, nil
}

func (a *recordingArchive) snapshot() []domain.InteractionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.InteractionRecord(nil), a.saved...)
}

func runDispatcher(t *testing.T, d *Dispatcher) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("dispatcher did not stop")
		}
	}
}

func TestDispatcher_PreservesPerUserOrder(t *testing.T) {
	archive := &recordingArchive{}
	d := NewDispatcher(4, archive, nil, zerolog.Nop())
	stop := runDispatcher(t, d)

	for i := range 50 {
		d.Enqueue(domain.InteractionRecord{ID: fmt.Sprintf("a-%02d", i), Username: "alice"})
		d.Enqueue(domain.InteractionRecord{ID: fmt.Sprintf("b-%02d", i), Username: "bob"})
	}
	stop()

	saved := archive.snapshot()
	require.Len(t, saved, 100)

	var alice, bob []string
	for _, r := range saved {
		if r.Username == "alice" {
			alice = append(alice, r.ID)
		} else {
			bob = append(bob, r.ID)
		}
	}
	assert.IsNonDecreasing(t, alice)
	assert.IsNonDecreasing(t, bob)
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	archive := &recordingArchive{failures: 2}
	d := NewDispatcher(1, archive, nil, zerolog.Nop())
	stop := runDispatcher(t, d)

	d.Enqueue(domain.InteractionRecord{ID: "x", Username: "alice"})
	stop()

	saved := archive.snapshot()
	require.Len(t, saved, 1)
	assert.Equal(t, "x", saved[0].ID)
}

type countingDepth struct {
	mu      sync.Mutex
	dropped int
}

func (c *countingDepth) ArchiveQueueDepth(int) {}
func (c *countingDepth) ArchiveDropped() {
	c.mu.Lock()
	c.dropped++
	c.mu.Unlock()
}

func TestDispatcher_EnqueueAfterStopIsDropped(t *testing.T) {
	depth := &countingDepth{}
	d := NewDispatcher(1, &recordingArchive{}, depth, zerolog.Nop())
	stop := runDispatcher(t, d)
	stop()

	d.Enqueue(domain.InteractionRecord{ID: "late"})
	assert.Equal(t, 1, depth.dropped)
}

func TestShardIndex_Deterministic(t *testing.T) {
	d := NewDispatcher(8, &recordingArchive{}, nil, zerolog.Nop())
	first := d.shardIndex("alice")
	for range 10 {
		assert.Equal(t, first, d.shardIndex("alice"))
	}
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 8)
}
