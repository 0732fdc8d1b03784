package recognition

import (
	"image"

	"github.com/MrCodeEU/faceattend/pkg/classifier"
	"github.com/MrCodeEU/faceattend/pkg/detect"
	"github.com/MrCodeEU/faceattend/pkg/encode"
)

type MockDetector struct {
	DetectFunc func(img image.Image) []detect.DetectedFace
	CloseFunc  func() error
}

func (m *MockDetector) Detect(img image.Image) []detect.DetectedFace {
	if m.DetectFunc != nil {
		return m.DetectFunc(img)
	}
	return nil
}

func (m *MockDetector) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

type MockEncoder struct {
	EncodeFunc func(face image.Image) (encode.FeatureVector, error)
}

func (m *MockEncoder) Encode(face image.Image) (encode.FeatureVector, error) {
	if m.EncodeFunc != nil {
		return m.EncodeFunc(face)
	}
	return encode.FeatureVector{}, nil
}

type MockClassifier struct {
	InferFunc func(v encode.FeatureVector) (classifier.Prediction, bool)
}

func (m *MockClassifier) Infer(v encode.FeatureVector) (classifier.Prediction, bool) {
	if m.InferFunc != nil {
		return m.InferFunc(v)
	}
	return classifier.Prediction{}, false
}
