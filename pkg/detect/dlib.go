//go:build dlib

package detect

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/disintegration/imaging"
)

// dlibShapeModel must be present in the model directory for go-face to load.
const dlibShapeModel = "shape_predictor_5_face_landmarks.dat"

func init() {
	Register(BackendDlib, "dlib HOG (go-face)",
		func(cfg Config) string {
			if cfg.DlibModelDir == "" {
				return ""
			}
			return filepath.Join(cfg.DlibModelDir, dlibShapeModel)
		},
		func(cfg Config) (Detector, error) { return NewDlibDetector(cfg) },
	)
}

// DlibDetector uses dlib's HOG face detector through go-face.
// go-face computes descriptors as a side effect; only the rectangles are used.
type DlibDetector struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// NewDlibDetector loads the dlib models from cfg.DlibModelDir.
func NewDlibDetector(cfg Config) (*DlibDetector, error) {
	rec, err := face.NewRecognizer(cfg.DlibModelDir)
	if err != nil {
		return nil, fmt.Errorf("%w: dlib models in %s: %v", ErrCascadeNotFound, cfg.DlibModelDir, err)
	}

	logger().Debugf("dlib models loaded from %s", cfg.DlibModelDir)

	return &DlibDetector{rec: rec}, nil
}

// Detect returns the dlib detections in the order go-face reports them.
func (d *DlibDetector) Detect(img image.Image) (faces []DetectedFace) {
	defer guard(BackendDlib, &faces)

	if empty(img) {
		return nil
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		logger().WithError(err).Error("dlib: failed to encode frame")
		return nil
	}

	var found []face.Face
	err := withLock(&d.mu, func() error {
		var err error
		found, err = d.rec.Recognize(buf.Bytes())
		return err
	})

	if err != nil {
		logger().WithError(err).Warn("dlib: detection failed")
		return nil
	}

	rects := make([]image.Rectangle, 0, len(found))
	for _, f := range found {
		rects = append(rects, f.Rectangle)
	}

	return Extract(img, rects)
}

// Close releases the native recognizer.
func (d *DlibDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rec != nil {
		d.rec.Close()
		d.rec = nil
	}
	return nil
}
