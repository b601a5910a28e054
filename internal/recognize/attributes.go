package recognize

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

// Attributes is the predicted gender/age for one face crop.
type Attributes struct {
	Gender           string // "male" or "female"
	GenderConfidence float32
	Age              int
	AgeRange         string // e.g. "30-35"
}

// AttributePredictor wraps the InsightFace genderage ONNX model.
type AttributePredictor struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
}

// NewAttributePredictor loads the gender/age model. opts may be nil for
// ORT defaults.
func NewAttributePredictor(modelPath string, opts *ort.SessionOptions) (*AttributePredictor, error) {
	inputW, inputH := 96, 96

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("recognize: create input tensor: %w", err)
	}

	// [1, 3] = [female_logit, male_logit, age_normalized]
	outputShape := ort.NewShape(1, 3)
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("recognize: create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"data"},
		[]string{"fc1"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("recognize: create attribute session: %w", err)
	}

	return &AttributePredictor{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
	}, nil
}

// InputSize returns the expected face crop dimensions.
func (p *AttributePredictor) InputSize() (int, int) { return p.inputW, p.inputH }

// Predict runs gender/age prediction on an (already cropped, unaligned)
// face image.
func (p *AttributePredictor) Predict(crop image.Image) (*Attributes, error) {
	faceData := preprocessForAttributes(crop, p.inputW, p.inputH)

	inputSlice := p.inputTensor.GetData()
	copy(inputSlice, faceData)

	if err := p.session.Run(); err != nil {
		return nil, fmt.Errorf("recognize: run attributes: %w", err)
	}

	data := p.outputTensor.GetData()
	if len(data) < 3 {
		return nil, fmt.Errorf("recognize: unexpected attribute output size: %d", len(data))
	}

	femaleLogit := data[0]
	maleLogit := data[1]
	ageNorm := data[2]

	gender := "female"
	if maleLogit > femaleLogit {
		gender = "male"
	}

	maleProbability := float32(1.0 / (1.0 + math.Exp(float64(-(maleLogit - femaleLogit)))))
	genderConf := maleProbability
	if gender == "female" {
		genderConf = 1 - maleProbability
	}

	age := int(math.Round(float64(ageNorm) * 100))
	if age < 0 {
		age = 0
	}
	if age > 100 {
		age = 100
	}

	lower := (age / 5) * 5
	ageRange := fmt.Sprintf("%d-%d", lower, lower+5)

	return &Attributes{
		Gender:           gender,
		GenderConfidence: genderConf,
		Age:              age,
		AgeRange:         ageRange,
	}, nil
}

func (p *AttributePredictor) Close() {
	if p.session != nil {
		p.session.Destroy()
	}
	if p.inputTensor != nil {
		p.inputTensor.Destroy()
	}
	if p.outputTensor != nil {
		p.outputTensor.Destroy()
	}
}
