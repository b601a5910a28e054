// Package pgann implements the index.Index contract as a thin query
// layer over pgvector's approximate nearest-neighbor operator, used once
// the identity count outgrows the flat index.
package pgann

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/faceguard/internal/embedding"
	"github.com/your-org/faceguard/internal/index"
)

// Index queries the identities table's embedding column directly. Add,
// Remove, and Replace are no-ops here: the table itself is the index, and
// store.IdentityRepo already owns writes to it; this type only adds the
// read-side Nearest query.
type Index struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. The identities table must carry an
// ivfflat or hnsw index on its embedding column for Nearest to be fast;
// this package does not create it (left to migrations).
func New(pool *pgxpool.Pool) *Index {
	return &Index{pool: pool}
}

func (x *Index) Add(context.Context, uuid.UUID, embedding.Embedding, time.Time) error { return nil }

func (x *Index) Remove(context.Context, uuid.UUID) error { return nil }

func (x *Index) Replace(context.Context, uuid.UUID, embedding.Embedding) error { return nil }

func (x *Index) Nearest(ctx context.Context, emb embedding.Embedding, k int, maxDistance float64) ([]index.Match, error) {
	if k <= 0 {
		k = 5
	}
	vec := pgvector.NewVector(emb.Values())

	rows, err := x.pool.Query(ctx,
		`SELECT id, first_seen_at, embedding <=> $1 AS distance
		 FROM identities
		 WHERE is_active AND (embedding <=> $1) <= $2
		 ORDER BY embedding <=> $1, first_seen_at ASC, id ASC
		 LIMIT $3`,
		vec, maxDistance, k,
	)
	if err != nil {
		return nil, fmt.Errorf("pgann: nearest query: %w", err)
	}
	defer rows.Close()

	var out []index.Match
	for rows.Next() {
		var m index.Match
		if err := rows.Scan(&m.IdentityID, &m.FirstSeenAt, &m.Distance); err != nil {
			return nil, fmt.Errorf("pgann: scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (x *Index) Len(ctx context.Context) (int, error) {
	var n int
	if err := x.pool.QueryRow(ctx, `SELECT COUNT(*) FROM identities WHERE is_active`).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgann: count: %w", err)
	}
	return n, nil
}
