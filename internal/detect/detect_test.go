package detect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyFilterOrdersByDescendingConfidence(t *testing.T) {
	dets := []Detection{
		{BBox: [4]float32{0, 0, 50, 50}, Confidence: 0.6},
		{BBox: [4]float32{100, 100, 150, 150}, Confidence: 0.9},
		{BBox: [4]float32{200, 200, 250, 250}, Confidence: 0.7},
	}
	out := applyFilter(dets, Filter{MinConfidence: 0})
	require.Len(t, out, 3)
	require.Equal(t, float32(0.9), out[0].Confidence)
	require.Equal(t, float32(0.7), out[1].Confidence)
	require.Equal(t, float32(0.6), out[2].Confidence)
}

func TestApplyFilterDropsBelowMinConfidence(t *testing.T) {
	dets := []Detection{
		{BBox: [4]float32{0, 0, 50, 50}, Confidence: 0.3},
		{BBox: [4]float32{0, 0, 50, 50}, Confidence: 0.8},
	}
	out := applyFilter(dets, Filter{MinConfidence: 0.5})
	require.Len(t, out, 1)
	require.Equal(t, float32(0.8), out[0].Confidence)
}

func TestApplyFilterDropsUndersizedFaces(t *testing.T) {
	dets := []Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.9},  // 10x10, too small
		{BBox: [4]float32{0, 0, 40, 40}, Confidence: 0.9}, // 40x40, ok
	}
	out := applyFilter(dets, Filter{MinConfidence: 0, MinFaceSizePx: 20})
	require.Len(t, out, 1)
	require.Equal(t, float32(40), out[0].width())
}

func TestApplyFilterCapsAtMaxFaces(t *testing.T) {
	dets := []Detection{
		{BBox: [4]float32{0, 0, 50, 50}, Confidence: 0.9},
		{BBox: [4]float32{100, 0, 150, 50}, Confidence: 0.8},
		{BBox: [4]float32{200, 0, 250, 50}, Confidence: 0.7},
	}
	out := applyFilter(dets, Filter{MinConfidence: 0, MaxFacesPerFrame: 2})
	require.Len(t, out, 2)
	require.Equal(t, float32(0.9), out[0].Confidence)
	require.Equal(t, float32(0.8), out[1].Confidence)
}

func TestNMSSuppressesOverlapping(t *testing.T) {
	dets := []Detection{
		{BBox: [4]float32{0, 0, 100, 100}, Confidence: 0.9},
		{BBox: [4]float32{5, 5, 100, 100}, Confidence: 0.8},
		{BBox: [4]float32{300, 300, 400, 400}, Confidence: 0.7},
	}
	out := nms(dets, 0.4)
	require.Len(t, out, 2)
	require.Equal(t, float32(0.9), out[0].Confidence)
	require.Equal(t, float32(0.7), out[1].Confidence)
}

func TestIoUIdenticalBoxesIsOne(t *testing.T) {
	box := [4]float32{10, 10, 50, 50}
	require.InDelta(t, 1.0, iou(box, box), 1e-6)
}

func TestIoUDisjointBoxesIsZero(t *testing.T) {
	a := [4]float32{0, 0, 10, 10}
	b := [4]float32{100, 100, 110, 110}
	require.Equal(t, float32(0), iou(a, b))
}
