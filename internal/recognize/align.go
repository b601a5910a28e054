package recognize

import (
	"image"
	"math"
)

// align rotates a face crop so the eye line is horizontal, using the
// detector's two eye landmarks. Only the angle between them matters, so
// landmarks can stay in original-frame coordinates; no translation into
// crop-local space is needed. The detector already decodes these
// landmarks but the teacher's pipeline never consumes them past drawing
// — this closes that gap.
func align(crop image.Image, leftEye, rightEye [2]float32) image.Image {
	dx := float64(rightEye[0] - leftEye[0])
	dy := float64(rightEye[1] - leftEye[1])
	if dx == 0 && dy == 0 {
		return crop
	}
	angle := math.Atan2(dy, dx)
	if math.Abs(angle) < 1e-3 {
		return crop
	}
	return rotate(crop, -angle)
}

// rotate performs a nearest-neighbor rotation about the image center by
// theta radians, returning a same-size *image.RGBA with the corners
// filled from the nearest valid source pixel (clamped, not black-filled,
// so alignment doesn't punch holes the embedder would read as edges).
func rotate(img image.Image, theta float64) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	cx, cy := float64(w)/2, float64(h)/2

	cos, sin := math.Cos(theta), math.Sin(theta)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dxF := float64(x) - cx
			dyF := float64(y) - cy
			srcX := int(math.Round(cos*dxF-sin*dyF+cx)) + bounds.Min.X
			srcY := int(math.Round(sin*dxF+cos*dyF+cy)) + bounds.Min.Y

			if srcX < bounds.Min.X {
				srcX = bounds.Min.X
			} else if srcX >= bounds.Max.X {
				srcX = bounds.Max.X - 1
			}
			if srcY < bounds.Min.Y {
				srcY = bounds.Min.Y
			} else if srcY >= bounds.Max.Y {
				srcY = bounds.Max.Y - 1
			}
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}
	return dst
}
