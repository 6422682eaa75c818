package vision

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// landmarkCount is the number of dense 3-D landmarks produced by the
// 2d106det-style predictor head.
const landmarkCount = 68

// LandmarkPredictor estimates dense 3-D facial landmarks from a face crop.
// The z coordinates feed the depth consistency check: a real face has
// measurable depth variance across its landmarks, a flat replay does not.
type LandmarkPredictor struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
}

// NewLandmarkPredictor loads the 3-D landmark ONNX model.
func NewLandmarkPredictor(modelPath string) (*LandmarkPredictor, error) {
	inputW, inputH := 192, 192

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(landmarkCount*3))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"data"},
		[]string{"fc1"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create landmark session: %w", err)
	}

	return &LandmarkPredictor{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
	}, nil
}

// Predict runs landmark regression on a preprocessed face crop.
// faceData should be CHW format [3, 192, 192], normalized.
// Returns landmarkCount points as (x, y, z) triples.
func (p *LandmarkPredictor) Predict(faceData []float32) ([][3]float32, error) {
	inputSlice := p.inputTensor.GetData()
	copy(inputSlice, faceData)

	if err := p.session.Run(); err != nil {
		return nil, fmt.Errorf("run landmarks: %w", err)
	}

	out := p.outputTensor.GetData()
	points := make([][3]float32, landmarkCount)
	for i := 0; i < landmarkCount; i++ {
		points[i] = [3]float32{out[i*3], out[i*3+1], out[i*3+2]}
	}
	return points, nil
}

// InputSize returns the expected face crop dimensions.
func (p *LandmarkPredictor) InputSize() (int, int) {
	return p.inputW, p.inputH
}

func (p *LandmarkPredictor) Close() {
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
