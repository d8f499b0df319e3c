package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MarkerStore records processed keys in Postgres. The unique key plus
// ON CONFLICT DO NOTHING makes claiming atomic across processes.
type MarkerStore struct {
	pool *pgxpool.Pool
}

// NewMarkerStore wraps an existing pool.
func NewMarkerStore(pool *pgxpool.Pool) *MarkerStore {
	return &MarkerStore{pool: pool}
}

// MarkOnce claims the key. Returns true when this call inserted the row.
func (s *MarkerStore) MarkOnce(ctx context.Context, key string) (bool, error) {
	query := `
		INSERT INTO processed_markers (key, marked_at)
		VALUES ($1, now())
		ON CONFLICT (key) DO NOTHING
	`

	result, err := s.pool.Exec(ctx, query, key)
	if err != nil {
		return false, fmt.Errorf("insert processed marker: %w", err)
	}

	return result.RowsAffected() == 1, nil
}
