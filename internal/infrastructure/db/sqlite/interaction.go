package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
)

// InteractionArchive implements ports.InteractionArchive. Records keep the
// order in which they were saved.
type InteractionArchive struct {
	db *sql.DB
}

func (s *Storage) Interactions() *InteractionArchive {
	return &InteractionArchive{db: s.db}
}

func (a *InteractionArchive) Save(ctx context.Context, rec domain.InteractionRecord) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO interactions (id, timestamp, username, provider, task, result, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, toNanos(rec.Timestamp), rec.Username, rec.ProviderID, rec.Task, rec.Result, rec.Success, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

func (a *InteractionArchive) Recent(ctx context.Context, n int) ([]domain.InteractionRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, timestamp, username, provider, task, result, success, error
		FROM interactions ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []domain.InteractionRecord
	for rows.Next() {
		var (
			rec domain.InteractionRecord
			ts  int64
		)
		if err := rows.Scan(&rec.ID, &ts, &rec.Username, &rec.ProviderID, &rec.Task, &rec.Result, &rec.Success, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		rec.Timestamp = fromNanos(ts)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}
