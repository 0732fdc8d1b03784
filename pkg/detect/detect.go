// Package detect locates face regions in images.
//
// Every backend reports raw rectangles which are clamped to the image bounds
// and cropped from a color copy of the source. Backends never fail a call:
// unreadable input and internal faults degrade to an empty result.
package detect

import (
	"errors"
	"fmt"
	"image"
	"runtime/debug"
	"sync"

	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// Confidence is reported for every detected face. None of the backends
// provide a calibrated per-face probability, so a face is either detected
// or it is not; backend-native scores only gate acceptance internally.
const Confidence = 1.0

// BoundingBox is a face region in source image pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect returns the box as an image.Rectangle anchored at the origin.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// String returns the box as "x,y wxh".
func (b BoundingBox) String() string {
	return fmt.Sprintf("%d,%d %dx%d", b.X, b.Y, b.Width, b.Height)
}

// DetectedFace is one face found by a Detector.
type DetectedFace struct {
	Crop       *image.NRGBA
	Box        BoundingBox
	Confidence float64
}

// Detector finds faces in an image.
type Detector interface {
	// Detect returns the faces found in img. A nil or empty image yields
	// an empty result, never an error.
	Detect(img image.Image) []DetectedFace

	// Close releases model resources held by the backend.
	Close() error
}

// ErrUnreadableImage is returned when an image cannot be opened or decoded.
var ErrUnreadableImage = errors.New("unreadable image")

// ErrCascadeNotFound is returned when a backend's model file is missing.
var ErrCascadeNotFound = errors.New("cascade file not found")

func logger() *logrus.Entry {
	return logging.Component("detect")
}

// Clamp fits a raw detector rectangle into an imgW x imgH image.
// The origin is clamped into the image, the size to the remaining extent
// with a floor of one pixel. It reports false only for an empty image.
func Clamp(x, y, w, h, imgW, imgH int) (BoundingBox, bool) {
	if imgW < 1 || imgH < 1 {
		return BoundingBox{}, false
	}

	x = clampInt(x, 0, imgW-1)
	y = clampInt(y, 0, imgH-1)

	return BoundingBox{
		X:      x,
		Y:      y,
		Width:  maxInt(1, minInt(w, imgW-x)),
		Height: maxInt(1, minInt(h, imgH-y)),
	}, true
}

// Extract clamps each rectangle against img and crops the face from a color
// copy of the image. Rectangles are relative to the top-left corner of img
// and are returned in the order given.
func Extract(img image.Image, rects []image.Rectangle) []DetectedFace {
	if empty(img) || len(rects) == 0 {
		return nil
	}

	src := imaging.Clone(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	faces := make([]DetectedFace, 0, len(rects))
	for _, r := range rects {
		box, ok := Clamp(r.Min.X, r.Min.Y, r.Dx(), r.Dy(), cols, rows)
		if !ok {
			continue
		}

		faces = append(faces, DetectedFace{
			Crop:       imaging.Crop(src, box.Rect()),
			Box:        box,
			Confidence: Confidence,
		})
	}

	return faces
}

// Grayscale returns the luminance of img as a row-major byte slice using
// the ITU-R BT.601 weights.
func Grayscale(img image.Image) (pixels []uint8, cols, rows int) {
	src := imaging.Clone(img)
	cols, rows = src.Bounds().Dx(), src.Bounds().Dy()
	pixels = make([]uint8, cols*rows)

	for y := 0; y < rows; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+cols*4]
		for x := 0; x < cols; x++ {
			r, g, b := float64(row[x*4]), float64(row[x*4+1]), float64(row[x*4+2])
			pixels[y*cols+x] = uint8(0.299*r + 0.587*g + 0.114*b + 0.5)
		}
	}

	return pixels, cols, rows
}

// empty reports whether img has no pixels to scan.
func empty(img image.Image) bool {
	if img == nil {
		return true
	}
	b := img.Bounds()
	return b.Dx() < 1 || b.Dy() < 1
}

// guard turns a backend panic into an empty result.
func guard(backend Backend, faces *[]DetectedFace) {
	if r := recover(); r != nil {
		logger().WithFields(logrus.Fields{
			"backend": backend,
			"panic":   r,
		}).Errorf("detection failed\nstack: %s", debug.Stack())
		*faces = nil
	}
}

// withLock runs fn while holding mu. The lock is released even if fn panics.
func withLock[T any](mu *sync.Mutex, fn func() T) T {
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
