package detect

import (
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
)

func init() {
	Register(BackendPigo, "pigo cascade",
		func(cfg Config) string { return cfg.PigoCascadeFile },
		func(cfg Config) (Detector, error) { return NewPigoDetector(cfg) },
	)
}

// PigoDetector runs the pigo pixel intensity comparison cascade.
// Its native detection score Q is only compared against MinQuality.
type PigoDetector struct {
	classifier *pigo.Pigo
	cfg        Config
}

// NewPigoDetector loads the binary cascade named by cfg.PigoCascadeFile.
func NewPigoDetector(cfg Config) (*PigoDetector, error) {
	if cfg.PigoCascadeFile == "" {
		return nil, fmt.Errorf("%w: pigo cascade path not configured", ErrCascadeNotFound)
	}

	data, err := os.ReadFile(cfg.PigoCascadeFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (run 'faceattend download-cascade')", ErrCascadeNotFound, cfg.PigoCascadeFile)
		}
		return nil, fmt.Errorf("failed to read cascade: %w", err)
	}

	return NewPigoDetectorFromCascade(data, cfg)
}

// NewPigoDetectorFromCascade unpacks an in-memory cascade.
func NewPigoDetectorFromCascade(cascade []byte, cfg Config) (*PigoDetector, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}

	logger().Debugf("pigo cascade loaded (%d bytes)", len(cascade))

	return &PigoDetector{classifier: classifier, cfg: cfg}, nil
}

// Detect scans img at multiple scales and returns clustered detections.
func (d *PigoDetector) Detect(img image.Image) (faces []DetectedFace) {
	defer guard(BackendPigo, &faces)

	if empty(img) {
		return nil
	}

	pixels, cols, rows := Grayscale(img)

	params := pigo.CascadeParams{
		MinSize:     d.cfg.MinSize,
		MaxSize:     scanMaxSize(d.cfg.MaxSize, cols, rows),
		ShiftFactor: d.cfg.ShiftFactor,
		ScaleFactor: d.cfg.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.cfg.IoUThreshold)

	rects := squares(dets, d.cfg.MinQuality)

	logger().Debugf("pigo: %d raw, %d accepted", len(dets), len(rects))

	return Extract(img, rects)
}

// scanMaxSize limits the largest scanned window to the longer image side.
func scanMaxSize(maxSize, cols, rows int) int {
	if side := maxInt(cols, rows); maxSize <= 0 || maxSize > side {
		return side
	}
	return maxSize
}

// squares converts detections scoring at least minQuality to rectangles.
// pigo reports the square's center and side length.
func squares(dets []pigo.Detection, minQuality float32) []image.Rectangle {
	rects := make([]image.Rectangle, 0, len(dets))
	for _, det := range dets {
		if det.Q < minQuality {
			continue
		}
		x, y := det.Col-det.Scale/2, det.Row-det.Scale/2
		rects = append(rects, image.Rect(x, y, x+det.Scale, y+det.Scale))
	}
	return rects
}

// Close is a no-op; the cascade lives in memory only.
func (d *PigoDetector) Close() error {
	return nil
}
