package pipeline

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func solidFrame(w, h int, c color.Gray) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, c)
		}
	}
	return img
}

func TestMotionGateFirstFrameAlwaysReportsMotion(t *testing.T) {
	g := newMotionGate()
	require.True(t, g.check(solidFrame(16, 16, color.Gray{Y: 10})))
}

func TestMotionGateStaticSceneNoMotion(t *testing.T) {
	g := newMotionGate()
	frame := solidFrame(16, 16, color.Gray{Y: 50})
	require.True(t, g.check(frame))
	require.False(t, g.check(solidFrame(16, 16, color.Gray{Y: 50})))
}

func TestMotionGateBrightnessChangeReportsMotion(t *testing.T) {
	g := newMotionGate()
	require.True(t, g.check(solidFrame(16, 16, color.Gray{Y: 10})))
	require.True(t, g.check(solidFrame(16, 16, color.Gray{Y: 240})))
}

func TestMotionGateBoundsChangeReportsMotion(t *testing.T) {
	g := newMotionGate()
	require.True(t, g.check(solidFrame(16, 16, color.Gray{Y: 10})))
	require.True(t, g.check(solidFrame(32, 32, color.Gray{Y: 10})))
}
