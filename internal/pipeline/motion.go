package pipeline

import (
	"image"
	"sync"
)

// DefaultMotionSensitivity is the fraction of sampled pixels that must
// change brightness before a frame is considered to contain motion.
const DefaultMotionSensitivity = 0.06

// motionGate is a cheap frame-differencing pre-filter, run ahead of the
// detector so a static scene never reaches the ONNX session. It keeps
// the single previous frame per camera and samples every 2nd pixel on
// each axis, the same subsampling the reference motion detector uses
// to keep the comparison itself from becoming the bottleneck.
type motionGate struct {
	mu          sync.Mutex
	prev        image.Image
	sensitivity float32
}

func newMotionGate() *motionGate {
	return &motionGate{sensitivity: DefaultMotionSensitivity}
}

// check reports whether img differs enough from the last frame seen to
// count as motion. The first frame for a camera always reports motion
// (there is nothing to diff against yet).
func (g *motionGate) check(img image.Image) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.prev
	g.prev = img
	if prev == nil {
		return true
	}

	bounds := img.Bounds()
	if prev.Bounds() != bounds {
		return true
	}

	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return false
	}

	var changed, sampled int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 2 {
		for x := bounds.Min.X; x < bounds.Max.X; x += 2 {
			pr, pg, pb, _ := prev.At(x, y).RGBA()
			cr, cg, cb, _ := img.At(x, y).RGBA()
			prevBrightness := (pr + pg + pb) / 3
			curBrightness := (cr + cg + cb) / 3
			diff := int(prevBrightness) - int(curBrightness)
			if diff < 0 {
				diff = -diff
			}
			if diff > 6000 {
				changed++
			}
			sampled++
		}
	}
	if sampled == 0 {
		return false
	}
	return float32(changed)/float32(sampled) >= g.sensitivity
}
