//go:build gocv

package detect

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

func init() {
	Register(BackendHaar, "OpenCV Haar cascade",
		func(cfg Config) string { return cfg.HaarCascadeFile },
		func(cfg Config) (Detector, error) { return NewHaarDetector(cfg) },
	)
}

// HaarDetector runs an OpenCV Haar cascade via detectMultiScale.
type HaarDetector struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	cfg        Config
}

// NewHaarDetector loads the cascade XML named by cfg.HaarCascadeFile.
func NewHaarDetector(cfg Config) (*HaarDetector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.HaarCascadeFile) {
		classifier.Close()
		return nil, fmt.Errorf("%w: %s", ErrCascadeNotFound, cfg.HaarCascadeFile)
	}

	logger().Debugf("haar cascade loaded from %s", cfg.HaarCascadeFile)

	return &HaarDetector{classifier: classifier, cfg: cfg}, nil
}

// Detect returns the cascade hits in scan order.
func (d *HaarDetector) Detect(img image.Image) (faces []DetectedFace) {
	defer guard(BackendHaar, &faces)

	if empty(img) {
		return nil
	}

	pixels, cols, rows := Grayscale(img)

	gray, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8U, pixels)
	if err != nil {
		logger().WithError(err).Error("haar: failed to build grayscale mat")
		return nil
	}
	defer gray.Close()

	rects := withLock(&d.mu, func() []image.Rectangle {
		return d.classifier.DetectMultiScaleWithParams(
			gray,
			d.cfg.HaarScaleFactor,
			d.cfg.MinNeighbors,
			0,
			image.Pt(d.cfg.MinSize, d.cfg.MinSize),
			image.Pt(0, 0),
		)
	})

	logger().Debugf("haar: %d raw detections", len(rects))

	return Extract(img, rects)
}

// Close releases the native classifier.
func (d *HaarDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.classifier.Close()
}
