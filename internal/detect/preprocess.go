package detect

import "image"

// Preprocess resizes img to the model's input size and converts it to
// CHW float32, normalized as pixel = (pixel - 127.5) / 128, the
// RetinaFace det_10g preprocessing convention.
func (d *Detector) Preprocess(img image.Image) []float32 {
	targetW, targetH := d.inputW, d.inputH
	data := make([]float32, 3*targetH*targetW)
	planeSize := targetH * targetW

	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()
	minX := bounds.Min.X
	minY := bounds.Min.Y

	const mean, std = 127.5, 128.0

	for y := 0; y < targetH; y++ {
		srcY := minY + y*srcH/targetH
		for x := 0; x < targetW; x++ {
			srcX := minX + x*srcW/targetW
			r, g, b, _ := img.At(srcX, srcY).RGBA()
			idx := y*targetW + x
			data[idx] = (float32(r>>8) - mean) / std
			data[planeSize+idx] = (float32(g>>8) - mean) / std
			data[2*planeSize+idx] = (float32(b>>8) - mean) / std
		}
	}
	return data
}
