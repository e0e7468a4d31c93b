package memory

import (
	"iter"
	"sync"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
)

// InteractionLog is an append-only, in-order record list. Records are never
// modified after Append, so readers may iterate a captured prefix without
// holding the lock.
type InteractionLog struct {
	mu      sync.RWMutex
	records []domain.InteractionRecord
	sink    func(domain.InteractionRecord)
}

// NewInteractionLog creates an empty log. sink, if non-nil, is handed every
// appended record, e.g. for archiving.
func NewInteractionLog(sink func(domain.InteractionRecord)) *InteractionLog {
	return &InteractionLog{sink: sink}
}

// Preload seeds the log with archived records without passing them to the sink.
func (l *InteractionLog) Preload(recs []domain.InteractionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, recs...)
}

func (l *InteractionLog) Append(rec domain.InteractionRecord) {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()

	if l.sink != nil {
		l.sink(rec)
	}
}

// Tail returns the n most recent records, oldest first.
func (l *InteractionLog) Tail(n int) []domain.InteractionRecord {
	if n <= 0 {
		return []domain.InteractionRecord{}
	}
	recs := l.snapshot()
	if n > len(recs) {
		n = len(recs)
	}
	out := make([]domain.InteractionRecord, n)
	copy(out, recs[len(recs)-n:])
	return out
}

// Find yields matching records in insertion order. The sequence is lazy and
// may be ranged over any number of times; each run sees the log as it is
// when the run starts.
func (l *InteractionLog) Find(pred func(domain.InteractionRecord) bool) iter.Seq[domain.InteractionRecord] {
	return func(yield func(domain.InteractionRecord) bool) {
		for _, rec := range l.snapshot() {
			if pred(rec) && !yield(rec) {
				return
			}
		}
	}
}

func (l *InteractionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// snapshot captures the current prefix; indexes below its length are never
// rewritten.
func (l *InteractionLog) snapshot() []domain.InteractionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.records[:len(l.records):len(l.records)]
}
