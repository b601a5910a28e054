package embedding

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func setTestDim(t *testing.T) {
	t.Helper()
	old := Dim
	Dim = 8
	t.Cleanup(func() { Dim = old })
}

func randomValues(n int, seed int64) []float32 {
	r := rand.New(rand.NewSource(seed))
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = r.Float32()*2 - 1
	}
	return vals
}

func TestNewDimensionMismatch(t *testing.T) {
	setTestDim(t)
	_, err := New([]float32{1, 2, 3})
	require.Error(t, err)
	var dm *DimensionMismatch
	require.ErrorAs(t, err, &dm)
}

func TestFromBytesRoundTrip(t *testing.T) {
	setTestDim(t)
	e, err := New(randomValues(Dim, 1))
	require.NoError(t, err)

	back, err := FromBytes(e.Bytes())
	require.NoError(t, err)
	require.Equal(t, e.Values(), back.Values())
}

func TestFromBytesTruncated(t *testing.T) {
	setTestDim(t)
	_, err := FromBytes(make([]byte, Dim*4-1))
	require.Error(t, err)
	var tr *Truncated
	require.ErrorAs(t, err, &tr)
}

func TestCosineSelfIsZero(t *testing.T) {
	setTestDim(t)
	e, err := New(randomValues(Dim, 2))
	require.NoError(t, err)
	require.InDelta(t, 0, Cosine(e, e), 1e-6)
}

func TestCosineCommutativeAndBounded(t *testing.T) {
	setTestDim(t)
	a, _ := New(randomValues(Dim, 3))
	b, _ := New(randomValues(Dim, 4))

	d1 := Cosine(a, b)
	d2 := Cosine(b, a)
	require.InDelta(t, d1, d2, 1e-9)
	require.GreaterOrEqual(t, d1, 0.0)
	require.LessOrEqual(t, d1, 2.0)
}

func TestCosineZeroNormIsMaximallyFar(t *testing.T) {
	setTestDim(t)
	zero, _ := New(make([]float32, Dim))
	other, _ := New(randomValues(Dim, 5))

	d := Cosine(zero, other)
	require.Equal(t, 2.0, d)
	require.False(t, math.IsNaN(d))
}

func TestSquaredEuclideanIdentical(t *testing.T) {
	setTestDim(t)
	e, _ := New(randomValues(Dim, 6))
	require.Equal(t, 0.0, SquaredEuclidean(e, e))
}

func TestBytesLength(t *testing.T) {
	setTestDim(t)
	e, _ := New(randomValues(Dim, 7))
	require.Len(t, e.Bytes(), Dim*4)
}
