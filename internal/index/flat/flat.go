// Package flat implements a mutex-guarded, linear-scan embedding index,
// used below the configured identity-count threshold.
package flat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceguard/internal/embedding"
	"github.com/your-org/faceguard/internal/index"
)

type entry struct {
	id          uuid.UUID
	emb         embedding.Embedding
	firstSeenAt time.Time
}

// Index is a sync.RWMutex-guarded map of entries, cosine-scored on
// every query. Cheap to build, cheap to keep consistent, fine up to a
// few thousand identities.
type Index struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
}

// New returns an empty flat index.
func New() *Index {
	return &Index{entries: make(map[uuid.UUID]*entry)}
}

func (x *Index) Add(_ context.Context, id uuid.UUID, emb embedding.Embedding, firstSeenAt time.Time) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, exists := x.entries[id]; exists {
		return fmt.Errorf("index: identity %s already present", id)
	}
	x.entries[id] = &entry{id: id, emb: emb, firstSeenAt: firstSeenAt}
	return nil
}

func (x *Index) Remove(_ context.Context, id uuid.UUID) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.entries, id)
	return nil
}

func (x *Index) Replace(_ context.Context, id uuid.UUID, emb embedding.Embedding) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.entries[id]
	if !ok {
		return fmt.Errorf("index: identity %s not present", id)
	}
	e.emb = emb
	return nil
}

func (x *Index) Nearest(_ context.Context, emb embedding.Embedding, k int, maxDistance float64) ([]index.Match, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	matches := make([]index.Match, 0, len(x.entries))
	for _, e := range x.entries {
		d := embedding.Cosine(emb, e.emb)
		if d > maxDistance {
			continue
		}
		matches = append(matches, index.Match{IdentityID: e.id, Distance: d, FirstSeenAt: e.firstSeenAt})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		if !matches[i].FirstSeenAt.Equal(matches[j].FirstSeenAt) {
			return matches[i].FirstSeenAt.Before(matches[j].FirstSeenAt)
		}
		return matches[i].IdentityID.String() < matches[j].IdentityID.String()
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (x *Index) Len(_ context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries), nil
}
