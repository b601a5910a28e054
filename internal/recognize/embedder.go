// Package recognize extracts aligned face embeddings and optional
// gender/age attributes from a detected face crop.
package recognize

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceguard/internal/embedding"
)

// Embedder wraps an ArcFace ONNX session. Its constructor always takes
// session options, matching Detector so both models are configured the
// same way at startup.
type Embedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	dim          int
}

// NewEmbedder loads the ArcFace w600k_r50 model. opts may be nil for ORT
// defaults.
func NewEmbedder(modelPath string, opts *ort.SessionOptions) (*Embedder, error) {
	inputW, inputH := 112, 112
	dim := embedding.Dim

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("recognize: create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(dim))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("recognize: create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{"683"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("recognize: create embedder session: %w", err)
	}

	return &Embedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
		dim:          dim,
	}, nil
}

// InputSize returns the expected face crop dimensions.
func (e *Embedder) InputSize() (int, int) { return e.inputW, e.inputH }

// Extract aligns crop using the detector's eye landmarks, preprocesses it
// to the model's input size, runs inference, and returns a normalized
// Embedding.
func (e *Embedder) Extract(crop image.Image, leftEye, rightEye [2]float32) (embedding.Embedding, error) {
	aligned := align(crop, leftEye, rightEye)
	upscaled := upscaleFace(aligned, e.inputW)
	faceData := preprocessForEmbedding(upscaled, e.inputW, e.inputH)

	inputSlice := e.inputTensor.GetData()
	copy(inputSlice, faceData)

	if err := e.session.Run(); err != nil {
		return embedding.Embedding{}, fmt.Errorf("recognize: run embedding: %w", err)
	}

	out := make([]float32, e.dim)
	copy(out, e.outputTensor.GetData())
	normalizeInPlace(out)

	return embedding.New(out)
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}

func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}
