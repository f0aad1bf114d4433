package entity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLegacySource reads the flat legacy_kv(key TEXT PRIMARY KEY, value
// JSONB) table that predates the KV entity store, so the migration engine
// can retire it key by key.
type PostgresLegacySource struct {
	pool *pgxpool.Pool
}

// NewPostgresLegacySource wraps a pgx pool as a LegacySource.
func NewPostgresLegacySource(pool *pgxpool.Pool) *PostgresLegacySource {
	return &PostgresLegacySource{pool: pool}
}

func (s *PostgresLegacySource) Scan(ctx context.Context, prefix, cursor string, limit int) ([]LegacyPair, string, bool, error) {
	if limit <= 0 {
		limit = migrationBatchSize
	}

	// cursor holds the last key returned; ordering by key gives a stable,
	// restartable scan without needing a separate offset table.
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM legacy_kv WHERE key LIKE $1 AND key > $2 ORDER BY key ASC LIMIT $3`,
		prefix+"%", cursor, limit,
	)
	if err != nil {
		return nil, "", false, fmt.Errorf("scanning legacy_kv: %w", err)
	}
	defer rows.Close()

	var pairs []LegacyPair
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, "", false, fmt.Errorf("scanning legacy_kv row: %w", err)
		}
		pairs = append(pairs, LegacyPair{Key: key, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, "", false, fmt.Errorf("iterating legacy_kv rows: %w", err)
	}

	complete := len(pairs) < limit
	nextCursor := cursor
	if len(pairs) > 0 {
		nextCursor = pairs[len(pairs)-1].Key
	}

	return pairs, nextCursor, complete, nil
}

func (s *PostgresLegacySource) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM legacy_kv WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("deleting legacy_kv row %q: %w", key, err)
	}
	return nil
}
