package recognize

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
)

// toCHW resizes img to targetW×targetH and converts it to CHW float32,
// normalizing as pixel = (pixel - mean) / std, in a single pass.
func toCHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	data := make([]float32, 3*targetH*targetW)
	planeSize := targetH * targetW

	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()
	minX := bounds.Min.X
	minY := bounds.Min.Y

	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < targetH; y++ {
			srcY := minY + y*srcH/targetH
			for x := 0; x < targetW; x++ {
				srcX := minX + x*srcW/targetW
				off := src.PixOffset(srcX, srcY)
				pix := src.Pix[off : off+3 : off+3]
				idx := y*targetW + x
				data[idx] = (float32(pix[0]) - mean[0]) / std[0]
				data[planeSize+idx] = (float32(pix[1]) - mean[1]) / std[1]
				data[2*planeSize+idx] = (float32(pix[2]) - mean[2]) / std[2]
			}
		}
	case *image.YCbCr:
		for y := 0; y < targetH; y++ {
			srcY := minY + y*srcH/targetH
			for x := 0; x < targetW; x++ {
				srcX := minX + x*srcW/targetW
				yi := src.YOffset(srcX, srcY)
				ci := src.COffset(srcX, srcY)
				r8, g8, b8 := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				idx := y*targetW + x
				data[idx] = (float32(r8) - mean[0]) / std[0]
				data[planeSize+idx] = (float32(g8) - mean[1]) / std[1]
				data[2*planeSize+idx] = (float32(b8) - mean[2]) / std[2]
			}
		}
	default:
		for y := 0; y < targetH; y++ {
			srcY := minY + y*srcH/targetH
			for x := 0; x < targetW; x++ {
				srcX := minX + x*srcW/targetW
				r, g, b, _ := img.At(srcX, srcY).RGBA()
				idx := y*targetW + x
				data[idx] = (float32(r>>8) - mean[0]) / std[0]
				data[planeSize+idx] = (float32(g>>8) - mean[1]) / std[1]
				data[2*planeSize+idx] = (float32(b>>8) - mean[2]) / std[2]
			}
		}
	}
	return data
}

func preprocessForEmbedding(img image.Image, targetW, targetH int) []float32 {
	return toCHW(img, targetW, targetH, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
}

func preprocessForAttributes(img image.Image, targetW, targetH int) []float32 {
	return toCHW(img, targetW, targetH, [3]float32{0, 0, 0}, [3]float32{1, 1, 1})
}

// CropFace extracts a padded face region from img given a pixel bounding
// box, for the pipeline/matcher to call before Extract/Predict.
func CropFace(img image.Image, bbox [4]float32) image.Image {
	bounds := img.Bounds()

	x1 := int(bbox[0])
	y1 := int(bbox[1])
	x2 := int(bbox[2])
	y2 := int(bbox[3])

	x1, y1, x2, y2 = clampRect(bounds, x1, y1, x2, y2)
	w := x2 - x1
	h := y2 - y1
	if w <= 0 || h <= 0 {
		return nil
	}

	padW := int(float32(w) * 0.1)
	padH := int(float32(h) * 0.1)
	x1, y1, x2, y2 = clampRect(bounds, x1-padW, y1-padH, x2+padW, y2+padH)

	rect := image.Rect(x1, y1, x2, y2)

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}

	crop := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	for cy := y1; cy < y2; cy++ {
		for cx := x1; cx < x2; cx++ {
			crop.Set(cx-x1, cy-y1, img.At(cx, cy))
		}
	}
	return crop
}

func clampRect(bounds image.Rectangle, x1, y1, x2, y2 int) (int, int, int, int) {
	if x1 < bounds.Min.X {
		x1 = bounds.Min.X
	}
	if y1 < bounds.Min.Y {
		y1 = bounds.Min.Y
	}
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}
	return x1, y1, x2, y2
}

// upscaleFace scales up a crop so its shortest side is at least minSize.
func upscaleFace(img image.Image, minSize int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	shortest := w
	if h < shortest {
		shortest = h
	}
	if shortest >= minSize || shortest == 0 {
		return img
	}

	scale := float64(minSize) / float64(shortest)
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	for y := 0; y < newH; y++ {
		for x := 0; x < newW; x++ {
			srcX := bounds.Min.X + x*w/newW
			srcY := bounds.Min.Y + y*h/newH
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}
	return dst
}

// EncodeJPEG encodes an image as JPEG with the given quality, used for
// snapshot-on-create uploads.
func EncodeJPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	return buf.Bytes()
}
