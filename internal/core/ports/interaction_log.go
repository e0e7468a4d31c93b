package ports

import (
	"context"
	"iter"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
)

// InteractionLog is the append-only history of executed tasks.
type InteractionLog interface {
	Append(rec domain.InteractionRecord)
	Tail(n int) []domain.InteractionRecord
	Find(pred func(domain.InteractionRecord) bool) iter.Seq[domain.InteractionRecord]
	Len() int
}

// InteractionArchive is durable storage for interaction records.
type InteractionArchive interface {
	Save(ctx context.Context, rec domain.InteractionRecord) error
	// Recent returns up to n of the newest archived records, oldest first.
	Recent(ctx context.Context, n int) ([]domain.InteractionRecord, error)
}
