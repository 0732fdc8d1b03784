// Package encode turns face crops into fixed-length feature vectors.
//
// The default SimpleEncoder is a cheap illumination and texture fingerprint:
// a truncated intensity histogram followed by per-patch mean and standard
// deviation of a normalized 160x160 grayscale canvas. Learned embeddings can
// be plugged in by implementing FaceEncoder.
package encode

import (
	"errors"
	"fmt"
	"image"
	"runtime/debug"

	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"
)

const (
	// Dimension is the length of every FeatureVector.
	Dimension = 128

	// HistogramBins is the number of leading histogram bins kept.
	HistogramBins = 50

	// PatchValues is the number of patch statistics kept (39 mean/std pairs).
	PatchValues = Dimension - HistogramBins

	// CanvasSize is the side of the square canvas faces are resized to.
	CanvasSize = 160

	// PatchSize is the side of the square patches statistics are taken over.
	PatchSize = 20
)

// FeatureVector is the numeric summary of one face crop.
type FeatureVector [Dimension]float64

// FaceEncoder converts a face crop to a FeatureVector.
type FaceEncoder interface {
	Encode(face image.Image) (FeatureVector, error)
}

// ErrEmptyFace is returned for nil or zero-sized crops.
var ErrEmptyFace = errors.New("empty face crop")

// SimpleEncoder is the handcrafted histogram and patch statistics encoder.
type SimpleEncoder struct{}

// NewSimpleEncoder returns the default encoder.
func NewSimpleEncoder() *SimpleEncoder {
	return &SimpleEncoder{}
}

// Encode preprocesses face and extracts its feature vector.
func (e *SimpleEncoder) Encode(face image.Image) (v FeatureVector, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encode: %v (panic)", r)
			logging.Component("encode").Errorf("%s\nstack: %s", err, debug.Stack())
		}
	}()

	canvas, err := Preprocess(face)
	if err != nil {
		return v, err
	}

	return Features(grayCanvas(canvas), CanvasSize, CanvasSize), nil
}

// Preprocess resizes face to CanvasSize x CanvasSize and returns its RGB
// channels as interleaved floats in [0, 1].
func Preprocess(face image.Image) ([]float32, error) {
	if face == nil || face.Bounds().Dx() < 1 || face.Bounds().Dy() < 1 {
		return nil, ErrEmptyFace
	}

	resized := imaging.Resize(face, CanvasSize, CanvasSize, imaging.Linear)

	canvas := make([]float32, CanvasSize*CanvasSize*3)
	for y := 0; y < CanvasSize; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < CanvasSize; x++ {
			i := (y*CanvasSize + x) * 3
			canvas[i] = float32(row[x*4]) / 255
			canvas[i+1] = float32(row[x*4+1]) / 255
			canvas[i+2] = float32(row[x*4+2]) / 255
		}
	}

	return canvas, nil
}

// grayCanvas converts a normalized RGB canvas back to 8-bit luminance.
func grayCanvas(canvas []float32) []uint8 {
	gray := make([]uint8, len(canvas)/3)
	for i := range gray {
		r := to8bit(canvas[i*3])
		g := to8bit(canvas[i*3+1])
		b := to8bit(canvas[i*3+2])
		gray[i] = uint8(0.299*r + 0.587*g + 0.114*b + 0.5)
	}
	return gray
}

func to8bit(v float32) float64 {
	return float64(uint8(v*255 + 0.5))
}

// Features builds a FeatureVector from a row-major grayscale image: the
// first HistogramBins bins of a 256-bin histogram, then (mean, stddev) of
// each PatchSize patch scanned row by row, edge patches truncated to the
// image. Patch values beyond PatchValues are dropped; a short image leaves
// the tail zero.
func Features(gray []uint8, cols, rows int) FeatureVector {
	var v FeatureVector

	var hist [256]float64
	for _, p := range gray[:cols*rows] {
		hist[p]++
	}
	copy(v[:HistogramBins], hist[:HistogramBins])

	n := HistogramBins
	patch := make([]float64, 0, PatchSize*PatchSize)

	for y := 0; y < rows && n < Dimension; y += PatchSize {
		for x := 0; x < cols && n < Dimension; x += PatchSize {
			patch = patch[:0]
			for py := y; py < y+PatchSize && py < rows; py++ {
				for px := x; px < x+PatchSize && px < cols; px++ {
					patch = append(patch, float64(gray[py*cols+px]))
				}
			}

			mean, std := stat.PopMeanStdDev(patch, nil)

			v[n] = mean
			n++
			if n < Dimension {
				v[n] = std
				n++
			}
		}
	}

	return v
}
