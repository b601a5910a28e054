package index

import (
	"context"
	"fmt"

	"github.com/your-org/faceguard/internal/store"
)

// IdentitySource is the subset of store.IdentityRepo the index needs to
// rebuild itself.
type IdentitySource interface {
	List(ctx context.Context, activeOnly bool) ([]*store.Identity, error)
}

// Rebuild repopulates idx from every active identity in identities. Per
// spec.md §3/§9, the index is a derived, in-memory view: on startup (or
// whenever a mismatch between the store and the index is detected) it
// must be rebuildable from the store alone, never the other way around.
func Rebuild(ctx context.Context, idx Index, identities IdentitySource) (int, error) {
	all, err := identities.List(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("index: list active identities: %w", err)
	}
	for _, id := range all {
		if err := idx.Add(ctx, id.ID, id.Embedding, id.FirstSeenAt); err != nil {
			return 0, fmt.Errorf("index: add identity %s: %w", id.ID, err)
		}
	}
	return len(all), nil
}

// ChooseThreshold reports whether a flat index (below threshold) or the
// pgvector-backed ANN index (at or above it) should back count active
// identities, per spec.md §4.3's family-selection knob.
func ChooseThreshold(count, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultFlatThreshold
	}
	return count < threshold
}
