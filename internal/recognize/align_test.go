package recognize

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestAlignLevelEyesIsNoOp(t *testing.T) {
	img := solidImage(20, 20, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	out := align(img, [2]float32{5, 10}, [2]float32{15, 10})
	require.Equal(t, img, out, "eyes already level should short-circuit without rotating")
}

func TestAlignTiltedEyesRotates(t *testing.T) {
	img := solidImage(20, 20, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	// A uniform image rotates onto itself; one odd pixel makes the rotation visible.
	img.Set(2, 10, color.RGBA{R: 255, A: 255})
	out := align(img, [2]float32{5, 5}, [2]float32{15, 15})
	require.NotEqual(t, img, out)
	require.Equal(t, img.Bounds(), out.Bounds(), "rotation preserves crop dimensions")
}

func TestRotateKeepsUniformColorImageUnchanged(t *testing.T) {
	c := color.RGBA{R: 100, G: 150, B: 200, A: 255}
	img := solidImage(30, 30, c)
	out := rotate(img, 0.3)
	r, g, b, a := out.At(15, 15).RGBA()
	require.Equal(t, uint32(c.R)*257, r)
	require.Equal(t, uint32(c.G)*257, g)
	require.Equal(t, uint32(c.B)*257, b)
	require.Equal(t, uint32(c.A)*257, a)
}
