// Package detect runs RetinaFace face detection over ONNX Runtime.
package detect

import (
	"fmt"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one detected face, in descending-confidence order once
// returned from Detect.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2, pixel coordinates
	Confidence float32
	Landmarks  [5][2]float32 // left eye, right eye, nose, mouth-left, mouth-right
}

func (d Detection) width() float32  { return d.BBox[2] - d.BBox[0] }
func (d Detection) height() float32 { return d.BBox[3] - d.BBox[1] }

// Filter holds the Settings-driven thresholds applied after raw
// detection/NMS, per the descending-confidence ordering and cap
// guarantee.
type Filter struct {
	MinConfidence    float32
	MinFaceSizePx    float32
	MaxFacesPerFrame int
}

var strides = []int{8, 16, 32}

const anchorsPerStride = 2

const nmsIoUThreshold = 0.4

// Detector wraps a RetinaFace det_10g ONNX session.
type Detector struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	rawThreshold  float32
	inputW        int
	inputH        int
}

// New loads the RetinaFace model. rawThreshold is applied during anchor
// decoding (kept low so Filter.MinConfidence can be raised later without
// reloading the session); opts may be nil for ORT defaults.
func New(modelPath string, rawThreshold float32, opts *ort.SessionOptions) (*Detector, error) {
	inputW, inputH := 640, 640

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("detect: create input tensor: %w", err)
	}

	type outputSpec struct {
		name  string
		shape ort.Shape
	}
	outputs := []outputSpec{
		{"448", ort.NewShape(12800, 1)},
		{"471", ort.NewShape(3200, 1)},
		{"494", ort.NewShape(800, 1)},
		{"451", ort.NewShape(12800, 4)},
		{"474", ort.NewShape(3200, 4)},
		{"497", ort.NewShape(800, 4)},
		{"454", ort.NewShape(12800, 10)},
		{"477", ort.NewShape(3200, 10)},
		{"500", ort.NewShape(800, 10)},
	}

	outputNames := make([]string, len(outputs))
	outputTensors := make([]*ort.Tensor[float32], len(outputs))
	outputValues := make([]ort.Value, len(outputs))

	for i, spec := range outputs {
		outputNames[i] = spec.name
		t, err := ort.NewEmptyTensor[float32](spec.shape)
		if err != nil {
			for j := 0; j < i; j++ {
				outputTensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("detect: create output tensor %d (%s): %w", i, spec.name, err)
		}
		outputTensors[i] = t
		outputValues[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("detect: create session: %w", err)
	}

	return &Detector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: outputTensors,
		rawThreshold:  rawThreshold,
		inputW:        inputW,
		inputH:        inputH,
	}, nil
}

// InputSize returns the model's expected input dimensions.
func (d *Detector) InputSize() (int, int) { return d.inputW, d.inputH }

// Detect runs inference on a preprocessed CHW float32 image and returns
// detections ordered by descending confidence, filtered by f and capped
// at f.MaxFacesPerFrame.
func (d *Detector) Detect(imgData []float32, origW, origH int, f Filter) ([]Detection, error) {
	inputSlice := d.inputTensor.GetData()
	copy(inputSlice, imgData)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("detect: run: %w", err)
	}

	detections := d.parseDetections(origW, origH)
	detections = nms(detections, nmsIoUThreshold)
	return applyFilter(detections, f), nil
}

func applyFilter(detections []Detection, f Filter) []Detection {
	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	out := make([]Detection, 0, len(detections))
	for _, det := range detections {
		if det.Confidence < f.MinConfidence {
			continue
		}
		if f.MinFaceSizePx > 0 {
			if det.width() < f.MinFaceSizePx || det.height() < f.MinFaceSizePx {
				continue
			}
		}
		out = append(out, det)
		if f.MaxFacesPerFrame > 0 && len(out) >= f.MaxFacesPerFrame {
			break
		}
	}
	return out
}

func (d *Detector) parseDetections(origW, origH int) []Detection {
	var detections []Detection

	scaleW := float32(origW) / float32(d.inputW)
	scaleH := float32(origH) / float32(d.inputH)

	for si, stride := range strides {
		scores := d.outputTensors[si].GetData()
		bboxes := d.outputTensors[si+3].GetData()
		landmarks := d.outputTensors[si+6].GetData()

		fmW := d.inputW / stride
		fmH := d.inputH / stride

		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					score := scores[idx]
					if score >= d.rawThreshold {
						anchorX := float32(cx) * float32(stride)
						anchorY := float32(cy) * float32(stride)
						st := float32(stride)

						x1 := (anchorX - bboxes[idx*4+0]*st) * scaleW
						y1 := (anchorY - bboxes[idx*4+1]*st) * scaleH
						x2 := (anchorX + bboxes[idx*4+2]*st) * scaleW
						y2 := (anchorY + bboxes[idx*4+3]*st) * scaleH

						x1 = clampF(x1, 0, float32(origW))
						y1 = clampF(y1, 0, float32(origH))
						x2 = clampF(x2, 0, float32(origW))
						y2 = clampF(y2, 0, float32(origH))

						var lm [5][2]float32
						for li := 0; li < 5; li++ {
							lm[li][0] = (anchorX + landmarks[idx*10+li*2]*st) * scaleW
							lm[li][1] = (anchorY + landmarks[idx*10+li*2+1]*st) * scaleH
						}

						detections = append(detections, Detection{
							BBox:       [4]float32{x1, y1, x2, y2},
							Confidence: score,
							Landmarks:  lm,
						})
					}
					idx++
				}
			}
		}
	}
	return detections
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

func nms(detections []Detection, iouThreshold float32) []Detection {
	if len(detections) == 0 {
		return detections
	}
	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	keep := make([]bool, len(detections))
	for i := range keep {
		keep[i] = true
	}
	for i := 0; i < len(detections); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(detections); j++ {
			if !keep[j] {
				continue
			}
			if iou(detections[i].BBox, detections[j].BBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []Detection
	for i, d := range detections {
		if keep[i] {
			result = append(result, d)
		}
	}
	return result
}

func iou(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	intersection := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))

	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - intersection

	if union <= 0 {
		return 0
	}
	return intersection / union
}

func clampF(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
