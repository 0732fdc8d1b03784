// Package recognition runs the detect, encode and classify pipeline over a
// single image and keeps the faces the classifier is confident about.
package recognition

import (
	"image"
	"runtime/debug"

	"github.com/MrCodeEU/faceattend/pkg/classifier"
	"github.com/MrCodeEU/faceattend/pkg/detect"
	"github.com/MrCodeEU/faceattend/pkg/encode"
	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/sirupsen/logrus"
)

// AcceptanceThreshold is the confidence a prediction must exceed to be
// reported. A prediction of exactly 0.7 is rejected.
const AcceptanceThreshold = 0.7

// Result is one recognized face.
type Result struct {
	Label      string             `json:"label"`
	Confidence float64            `json:"confidence"`
	Box        detect.BoundingBox `json:"box"`
}

// Classifier predicts an identity for a feature vector. It reports false
// when it cannot answer, e.g. before the first training.
type Classifier interface {
	Infer(v encode.FeatureVector) (classifier.Prediction, bool)
}

// Pipeline recognizes identities in images. It is safe for concurrent use
// when its collaborators are.
type Pipeline struct {
	detector   detect.Detector
	encoder    encode.FaceEncoder
	classifier Classifier
}

// NewPipeline creates a pipeline from its three stages.
func NewPipeline(detector detect.Detector, encoder encode.FaceEncoder, classifier Classifier) *Pipeline {
	return &Pipeline{
		detector:   detector,
		encoder:    encoder,
		classifier: classifier,
	}
}

func logger() *logrus.Entry {
	return logging.Component("recognition")
}

// Process returns the confidently recognized faces of img in detection
// order. Unreadable input and internal faults yield an empty list.
func (p *Pipeline) Process(img image.Image) (results []Result) {
	defer func() {
		if r := recover(); r != nil {
			logger().WithField("panic", r).Errorf("Recognition aborted\nstack: %s", debug.Stack())
			results = []Result{}
		}
	}()

	if img == nil || img.Bounds().Empty() {
		return []Result{}
	}

	faces := p.detector.Detect(img)
	results = make([]Result, 0, len(faces))

	for i, face := range faces {
		v, err := p.encoder.Encode(face.Crop)
		if err != nil {
			logger().WithFields(logrus.Fields{
				"face":  i,
				"box":   face.Box.String(),
				"error": err,
			}).Warn("Skipping face that could not be encoded")
			continue
		}

		prediction, ok := p.classifier.Infer(v)
		if !ok {
			logger().WithField("face", i).Debug("No classifier answer")
			continue
		}

		if prediction.Confidence <= AcceptanceThreshold {
			logger().WithFields(logrus.Fields{
				"face":       i,
				"label":      prediction.Label,
				"confidence": prediction.Confidence,
			}).Debug("Rejected low-confidence prediction")
			continue
		}

		results = append(results, Result{
			Label:      prediction.Label,
			Confidence: prediction.Confidence,
			Box:        face.Box,
		})
	}

	logger().Debugf("Recognized %d of %d face(s)", len(results), len(faces))
	return results
}

// ProcessFile loads and processes the image at path.
func (p *Pipeline) ProcessFile(path string) []Result {
	img, err := detect.Load(path)
	if err != nil {
		logger().WithFields(logrus.Fields{"file": path, "error": err}).Warn("Cannot read image")
		return []Result{}
	}
	return p.Process(img)
}

// ProcessBytes decodes and processes an encoded image.
func (p *Pipeline) ProcessBytes(data []byte) []Result {
	img, err := detect.DecodeBytes(data)
	if err != nil {
		logger().WithError(err).Warn("Cannot decode image")
		return []Result{}
	}
	return p.Process(img)
}

// Close releases the detector.
func (p *Pipeline) Close() error {
	return p.detector.Close()
}

// Unique keeps the first result for every label, preserving order.
func Unique(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if seen[r.Label] {
			continue
		}
		seen[r.Label] = true
		out = append(out, r)
	}
	return out
}
