package index_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceguard/internal/embedding"
	"github.com/your-org/faceguard/internal/index"
	"github.com/your-org/faceguard/internal/index/flat"
	"github.com/your-org/faceguard/internal/store"
)

type fakeIdentitySource struct {
	identities []*store.Identity
}

func (f fakeIdentitySource) List(ctx context.Context, activeOnly bool) ([]*store.Identity, error) {
	return f.identities, nil
}

func mustEmbedding(t *testing.T, seed float32) embedding.Embedding {
	t.Helper()
	values := make([]float32, embedding.Dim)
	values[0] = seed
	emb, err := embedding.New(values)
	require.NoError(t, err)
	return emb
}

func TestRebuildAddsEveryActiveIdentity(t *testing.T) {
	source := fakeIdentitySource{identities: []*store.Identity{
		{ID: uuid.New(), Embedding: mustEmbedding(t, 1), FirstSeenAt: time.Now()},
		{ID: uuid.New(), Embedding: mustEmbedding(t, 2), FirstSeenAt: time.Now()},
	}}
	idx := flat.New()

	n, err := index.Rebuild(context.Background(), idx, source)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	count, err := idx.Len(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestChooseThresholdPicksFlatBelowThreshold(t *testing.T) {
	require.True(t, index.ChooseThreshold(5, 10))
	require.False(t, index.ChooseThreshold(10, 10))
	require.False(t, index.ChooseThreshold(15, 10))
}

func TestChooseThresholdUsesDefaultWhenUnset(t *testing.T) {
	require.True(t, index.ChooseThreshold(1, 0))
	require.False(t, index.ChooseThreshold(index.DefaultFlatThreshold, 0))
}
