package detect

import (
	"image"
	"image/color"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	pigo "github.com/esimov/pigo/core"
)

// facefinder returns the cascade shipped with the pigo module.
func facefinder(t *testing.T) []byte {
	t.Helper()

	modCache := os.Getenv("GOMODCACHE")
	if modCache == "" {
		out, err := exec.Command("go", "env", "GOMODCACHE").Output()
		if err == nil {
			modCache = strings.TrimSpace(string(out))
		}
	}
	if modCache == "" {
		t.Skip("module cache not found")
	}

	matches, _ := filepath.Glob(filepath.Join(modCache, "github.com", "esimov", "pigo@*", "cascade", "facefinder"))
	if len(matches) == 0 {
		t.Skip("pigo facefinder cascade not in module cache")
	}

	data, err := os.ReadFile(matches[len(matches)-1])
	if err != nil {
		t.Fatalf("failed to read cascade: %v", err)
	}
	return data
}

func TestSquares(t *testing.T) {
	dets := []pigo.Detection{
		{Row: 50, Col: 40, Scale: 20, Q: 9},
		{Row: 10, Col: 10, Scale: 30, Q: 2},
		{Row: 100, Col: 100, Scale: 41, Q: 5},
	}

	got := squares(dets, 5)
	want := []image.Rectangle{
		image.Rect(30, 40, 50, 60),
		image.Rect(80, 80, 121, 121),
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d rectangles, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rect %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	if rects := squares(dets, 100); len(rects) != 0 {
		t.Errorf("expected every detection gated out, got %v", rects)
	}
}

func TestScanMaxSize(t *testing.T) {
	tests := []struct {
		name       string
		maxSize    int
		cols, rows int
		want       int
	}{
		{"within image", 100, 640, 480, 100},
		{"larger than image", 2000, 640, 480, 640},
		{"portrait", 2000, 300, 500, 500},
		{"unset", 0, 64, 32, 64},
		{"negative", -1, 64, 32, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scanMaxSize(tt.maxSize, tt.cols, tt.rows); got != tt.want {
				t.Errorf("scanMaxSize(%d, %d, %d) = %d, want %d", tt.maxSize, tt.cols, tt.rows, got, tt.want)
			}
		})
	}
}

func TestPigoDetector_Detect(t *testing.T) {
	det, err := NewPigoDetectorFromCascade(facefinder(t), DefaultConfig())
	if err != nil {
		t.Fatalf("NewPigoDetectorFromCascade failed: %v", err)
	}
	defer det.Close()

	if faces := det.Detect(nil); len(faces) != 0 {
		t.Errorf("expected no faces for nil image, got %d", len(faces))
	}
	if faces := det.Detect(image.NewNRGBA(image.Rect(0, 0, 0, 0))); len(faces) != 0 {
		t.Errorf("expected no faces for empty image, got %d", len(faces))
	}
	if faces := det.Detect(image.NewNRGBA(image.Rect(0, 0, 1, 1))); len(faces) != 0 {
		t.Errorf("expected no faces for 1x1 image, got %d", len(faces))
	}

	rng := rand.New(rand.NewSource(7))
	noise := image.NewNRGBA(image.Rect(0, 0, 320, 240))
	for i := range noise.Pix {
		noise.Pix[i] = uint8(rng.Intn(256))
	}

	blob := image.NewNRGBA(image.Rect(0, 0, 200, 260))
	for y := 0; y < 260; y++ {
		for x := 0; x < 200; x++ {
			c := color.NRGBA{R: 230, G: 230, B: 230, A: 255}
			dx, dy := x-100, y-130
			if dx*dx*4+dy*dy*3 < 80*80*3 {
				c = color.NRGBA{R: 200, G: 160, B: 140, A: 255}
			}
			if (dx+35)*(dx+35)+(dy+25)*(dy+25) < 100 || (dx-35)*(dx-35)+(dy+25)*(dy+25) < 100 {
				c = color.NRGBA{R: 30, G: 30, B: 30, A: 255}
			}
			if dy > 30 && dy < 40 && dx > -30 && dx < 30 {
				c = color.NRGBA{R: 90, G: 40, B: 40, A: 255}
			}
			blob.SetNRGBA(x, y, c)
		}
	}

	for name, img := range map[string]image.Image{"noise": noise, "blob": blob} {
		t.Run(name, func(t *testing.T) {
			b := img.Bounds()
			for i, face := range det.Detect(img) {
				box := face.Box
				if box.X < 0 || box.Y < 0 || box.Width < 1 || box.Height < 1 ||
					box.X+box.Width > b.Dx() || box.Y+box.Height > b.Dy() {
					t.Errorf("face %d: box %v outside %dx%d image", i, box, b.Dx(), b.Dy())
				}
				if got := face.Crop.Bounds(); got.Dx() != box.Width || got.Dy() != box.Height {
					t.Errorf("face %d: crop %v does not match box %v", i, got, box)
				}
				if face.Confidence != Confidence {
					t.Errorf("face %d: confidence %v, want %v", i, face.Confidence, Confidence)
				}
			}
		})
	}
}
