package identity

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/observability"
	"github.com/your-org/presence/internal/vision"
)

// ErrNoFaceDetected means the frame contained no face above the detection
// threshold.
var ErrNoFaceDetected = errors.New("no face detected")

// FaceAnalysis is everything the verification pipeline needs from one frame:
// the strongest detection, its embedding, and dense landmarks for the
// liveness depth check. Landmarks is nil when the predictor is unavailable.
type FaceAnalysis struct {
	Detection vision.Detection
	Embedding []float32
	Format    models.EmbeddingFormat
	Landmarks [][3]float32
	Degraded  bool
}

// Service owns the ONNX sessions for detection, embedding and landmark
// regression. When the neural stack fails to initialize it runs degraded:
// detection is mandatory, but embeddings fall back to the HOG descriptor
// and landmarks are skipped.
type Service struct {
	detector  *vision.Detector
	embedder  *vision.Embedder
	landmarks *vision.LandmarkPredictor
	degraded  bool
	logger    *slog.Logger
}

// NewService initializes the ONNX runtime and loads the models from
// modelsDir. The detector is required; embedder and landmark failures
// switch the service into degraded mode instead of failing startup.
func NewService(modelsDir string, detectionThreshold float32, logger *slog.Logger) (*Service, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	detector, err := vision.NewDetector(filepath.Join(modelsDir, "det_10g.onnx"), detectionThreshold)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	s := &Service{detector: detector, logger: logger}

	embedder, err := vision.NewEmbedder(filepath.Join(modelsDir, "w600k_r50.onnx"))
	if err != nil {
		s.degraded = true
		observability.DegradedMode.WithLabelValues("embedder").Inc()
		logger.Warn("embedder unavailable, falling back to gradient descriptor", "error", err)
	} else {
		s.embedder = embedder
	}

	lm, err := vision.NewLandmarkPredictor(filepath.Join(modelsDir, "landmark_3d_68.onnx"))
	if err != nil {
		observability.DegradedMode.WithLabelValues("landmarks").Inc()
		logger.Warn("landmark predictor unavailable, depth signal disabled", "error", err)
	} else {
		s.landmarks = lm
	}

	return s, nil
}

// Degraded reports whether the service is running without the neural
// embedder.
func (s *Service) Degraded() bool {
	return s.degraded
}

// Analyze detects the dominant face in the frame and computes its embedding
// and landmarks. Returns ErrNoFaceDetected when nothing clears the
// detection threshold.
func (s *Service) Analyze(img image.Image) (*FaceAnalysis, error) {
	bounds := img.Bounds()
	inputW, inputH := s.detector.InputSize()

	data := vision.PreprocessForDetection(img, inputW, inputH)
	detections, err := s.detector.Detect(data, bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	face, ok := vision.BestFace(detections)
	if !ok {
		return nil, ErrNoFaceDetected
	}

	analysis := &FaceAnalysis{Detection: face, Degraded: s.degraded}

	if s.embedder != nil {
		embW, embH := s.embedder.InputSize()
		faceData := vision.PreprocessFace(img, face.BBox, embW, embH)
		if faceData == nil {
			return nil, ErrNoFaceDetected
		}
		emb, err := s.embedder.Extract(faceData)
		if err != nil {
			return nil, fmt.Errorf("extract embedding: %w", err)
		}
		analysis.Embedding = emb
		analysis.Format = models.EmbeddingFormatArcFace
	} else {
		desc := vision.HOGDescriptor(img, face.BBox)
		if desc == nil {
			return nil, ErrNoFaceDetected
		}
		analysis.Embedding = desc
		analysis.Format = models.EmbeddingFormatHOG
	}

	if s.landmarks != nil {
		lmW, lmH := s.landmarks.InputSize()
		lmData := vision.PreprocessFace(img, face.BBox, lmW, lmH)
		if lmData != nil {
			points, err := s.landmarks.Predict(lmData)
			if err != nil {
				s.logger.Warn("landmark prediction failed", "error", err)
			} else {
				analysis.Landmarks = points
			}
		}
	}

	return analysis, nil
}

// Close releases all ONNX sessions.
func (s *Service) Close() {
	if s.detector != nil {
		s.detector.Close()
	}
	if s.embedder != nil {
		s.embedder.Close()
	}
	if s.landmarks != nil {
		s.landmarks.Close()
	}
}
