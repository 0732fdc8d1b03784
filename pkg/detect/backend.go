package detect

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// Backend names a face detection implementation.
type Backend string

const (
	// BackendPigo is the pure Go pixel-intensity-comparison cascade.
	// It is always compiled in.
	BackendPigo Backend = "pigo"

	// BackendHaar is the OpenCV Haar cascade (requires the gocv build tag).
	BackendHaar Backend = "haar"

	// BackendDlib is the dlib HOG detector via go-face (requires the dlib build tag).
	BackendDlib Backend = "dlib"

	// BackendAuto selects the best compiled-in backend whose model is present.
	BackendAuto Backend = "auto"
)

// autoPriority is the order BackendAuto tries backends in.
var autoPriority = []Backend{BackendHaar, BackendDlib, BackendPigo}

// Config holds detector settings shared by all backends.
type Config struct {
	Backend        Backend
	FallbackToPigo bool

	// Model locations per backend.
	PigoCascadeFile string
	HaarCascadeFile string
	DlibModelDir    string

	// Multi-scale scan parameters.
	MinSize     int
	MaxSize     int
	ShiftFactor float64
	ScaleFactor float64

	// Haar cascade parameters, as passed to detectMultiScale.
	HaarScaleFactor float64
	MinNeighbors    int

	// MinQuality gates pigo detections on their native score.
	MinQuality   float32
	IoUThreshold float64
}

// DefaultConfig returns default detector settings.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		FallbackToPigo: true,
		MinSize:        40,
		MaxSize:        2000,
		ShiftFactor:    0.1,
		ScaleFactor:    1.1,

		HaarScaleFactor: 1.3,
		MinNeighbors:    5,

		MinQuality:   5.0,
		IoUThreshold: 0.2,
	}
}

// Factory builds a Detector for one backend.
type Factory func(cfg Config) (Detector, error)

// BackendInfo describes a backend as seen from the current build and config.
type BackendInfo struct {
	Backend   Backend
	Name      string
	Compiled  bool
	ModelPath string
	Available bool
	Reason    string
}

type registration struct {
	name      string
	modelPath func(Config) string
	factory   Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[Backend]registration)
)

// ErrBackendNotAvailable is returned when no usable backend could be built.
var ErrBackendNotAvailable = errors.New("detector backend not available")

// Register makes a backend selectable. It is called from init functions of
// the backend files, so optional backends only exist when their build tag is set.
func Register(backend Backend, name string, modelPath func(Config) string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[backend] = registration{name: name, modelPath: modelPath, factory: factory}
}

// Backends reports every known backend in auto-selection order.
func Backends(cfg Config) []BackendInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	known := map[Backend]string{
		BackendHaar: "OpenCV Haar cascade",
		BackendDlib: "dlib HOG (go-face)",
		BackendPigo: "pigo cascade",
	}

	result := make([]BackendInfo, 0, len(autoPriority))
	for _, b := range autoPriority {
		info := BackendInfo{Backend: b, Name: known[b]}

		reg, ok := registry[b]
		if !ok {
			info.Reason = fmt.Sprintf("not compiled in (build with -tags %s)", buildTag(b))
			result = append(result, info)
			continue
		}

		info.Compiled = true
		info.Name = reg.name
		info.ModelPath = reg.modelPath(cfg)

		if info.ModelPath == "" {
			info.Reason = "model path not configured"
		} else if _, err := os.Stat(info.ModelPath); err != nil {
			info.Reason = fmt.Sprintf("model not found: %s", info.ModelPath)
		} else {
			info.Available = true
		}

		result = append(result, info)
	}

	return result
}

// New builds the configured detector. BackendAuto picks the first
// available backend in priority order. When the chosen backend fails to
// initialize and FallbackToPigo is set, the pigo backend is tried instead.
func New(cfg Config) (Detector, Backend, error) {
	backend := selectBackend(cfg, Backends(cfg))

	det, err := build(backend, cfg)
	if err == nil {
		logger().Infof("using %s face detector", backend)
		return det, backend, nil
	}

	if backend == BackendPigo || !cfg.FallbackToPigo {
		return nil, backend, err
	}

	logger().WithError(err).Warnf("%s detector unavailable, falling back to %s", backend, BackendPigo)

	det, fallbackErr := build(BackendPigo, cfg)
	if fallbackErr != nil {
		return nil, BackendPigo, fmt.Errorf("%v; fallback: %w", err, fallbackErr)
	}

	return det, BackendPigo, nil
}

func selectBackend(cfg Config, infos []BackendInfo) Backend {
	if cfg.Backend != "" && cfg.Backend != BackendAuto {
		return cfg.Backend
	}

	for _, info := range infos {
		if info.Available {
			return info.Backend
		}
	}

	return BackendPigo
}

func build(backend Backend, cfg Config) (Detector, error) {
	registryMu.RLock()
	reg, ok := registry[backend]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s (build with -tags %s)", ErrBackendNotAvailable, backend, buildTag(backend))
	}

	return reg.factory(cfg)
}

func buildTag(b Backend) string {
	switch b {
	case BackendHaar:
		return "gocv"
	case BackendDlib:
		return "dlib"
	default:
		return string(b)
	}
}
