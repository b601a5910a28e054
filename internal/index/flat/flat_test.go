package flat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceguard/internal/embedding"
)

func mustEmb(t *testing.T, v []float32) embedding.Embedding {
	t.Helper()
	old := embedding.Dim
	embedding.Dim = len(v)
	t.Cleanup(func() { embedding.Dim = old })
	e, err := embedding.New(v)
	require.NoError(t, err)
	return e
}

func TestAddDuplicateRejected(t *testing.T) {
	ctx := context.Background()
	x := New()
	id := uuid.New()
	e := mustEmb(t, []float32{1, 0, 0, 0})

	require.NoError(t, x.Add(ctx, id, e, time.Now()))
	require.Error(t, x.Add(ctx, id, e, time.Now()))
}

func TestNearestOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	embedding.Dim = 4
	x := New()

	idFar := uuid.New()
	idClose := uuid.New()
	query := mustEmb(t, []float32{1, 0, 0, 0})
	closeEmb := mustEmb(t, []float32{0.9, 0.1, 0, 0})
	far := mustEmb(t, []float32{0, 1, 0, 0})

	require.NoError(t, x.Add(ctx, idClose, closeEmb, time.Now()))
	require.NoError(t, x.Add(ctx, idFar, far, time.Now()))

	matches, err := x.Nearest(ctx, query, 10, 2.0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, idClose, matches[0].IdentityID)
	require.Equal(t, idFar, matches[1].IdentityID)
}

func TestNearestTieBreaksByFirstSeenThenID(t *testing.T) {
	ctx := context.Background()
	x := New()
	query := mustEmb(t, []float32{1, 0, 0, 0})

	now := time.Now()
	earlier := now.Add(-time.Hour)

	idA := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	idB := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	require.NoError(t, x.Add(ctx, idA, query, now))
	require.NoError(t, x.Add(ctx, idB, query, earlier))

	matches, err := x.Nearest(ctx, query, 10, 2.0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, idB, matches[0].IdentityID, "earlier first_seen_at wins the tie")

	// With equal first_seen_at, the lexicographically smaller id wins.
	y := New()
	require.NoError(t, y.Add(ctx, idA, query, earlier))
	require.NoError(t, y.Add(ctx, idB, query, earlier))

	matches, err = y.Nearest(ctx, query, 10, 2.0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, idB, matches[0].IdentityID, "equal first_seen_at: smaller id wins the tie")
}

func TestNearestRespectsMaxDistance(t *testing.T) {
	ctx := context.Background()
	x := New()
	query := mustEmb(t, []float32{1, 0, 0, 0})
	orthogonal := mustEmb(t, []float32{0, 1, 0, 0})
	id := uuid.New()
	require.NoError(t, x.Add(ctx, id, orthogonal, time.Now()))

	matches, err := x.Nearest(ctx, query, 10, 0.5)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestReplaceUpdatesEmbedding(t *testing.T) {
	ctx := context.Background()
	x := New()
	id := uuid.New()
	a := mustEmb(t, []float32{1, 0, 0, 0})
	b := mustEmb(t, []float32{0, 1, 0, 0})

	require.NoError(t, x.Add(ctx, id, a, time.Now()))
	require.NoError(t, x.Replace(ctx, id, b))

	matches, err := x.Nearest(ctx, b, 10, 2.0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.InDelta(t, 0, matches[0].Distance, 1e-6)
}
