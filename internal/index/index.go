// Package index maintains an in-memory or database-backed nearest-
// neighbor structure over identity embeddings for the matcher.
package index

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceguard/internal/embedding"
)

// Match is one candidate returned by Nearest, ordered closest-first.
type Match struct {
	IdentityID  uuid.UUID
	Distance    float64
	FirstSeenAt time.Time
}

// Index is the nearest-neighbor contract the matcher queries against.
// Implementations must be safe for concurrent use.
type Index interface {
	// Add registers a new identity's embedding. Returns an error if the
	// identity is already present; use Replace to update.
	Add(ctx context.Context, id uuid.UUID, emb embedding.Embedding, firstSeenAt time.Time) error
	// Remove drops an identity from the index.
	Remove(ctx context.Context, id uuid.UUID) error
	// Replace updates an identity's embedding in place.
	Replace(ctx context.Context, id uuid.UUID, emb embedding.Embedding) error
	// Nearest returns up to k candidates within maxDistance, closest
	// first. Ties are broken by earliest FirstSeenAt, then lexicographically
	// smallest ID, matching the tie-break rule for equidistant matches.
	Nearest(ctx context.Context, emb embedding.Embedding, k int, maxDistance float64) ([]Match, error)
	// Len reports the number of indexed identities.
	Len(ctx context.Context) (int, error)
}

// DefaultFlatThreshold is the identity count below which a flat.Index is
// preferred over the pgvector-backed ANN index.
const DefaultFlatThreshold = 2000
