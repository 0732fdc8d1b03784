// Package config provides configuration management for faceattend.
// It loads configuration from YAML files with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/MrCodeEU/faceattend/pkg/classifier"
	"github.com/MrCodeEU/faceattend/pkg/detect"
	"gopkg.in/yaml.v3"
)

// SystemConfigPath is checked first by LoadDefault.
const SystemConfigPath = "/etc/faceattend/faceattend.yaml"

// Config holds all faceattend configuration.
type Config struct {
	Detector   DetectorConfig   `yaml:"detector"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DetectorConfig holds face detection settings.
type DetectorConfig struct {
	Backend         string  `yaml:"backend"`
	FallbackToPigo  bool    `yaml:"fallback_to_pigo"`
	PigoCascadeFile string  `yaml:"pigo_cascade_file"`
	HaarCascadeFile string  `yaml:"haar_cascade_file"`
	DlibModelDir    string  `yaml:"dlib_model_dir"`
	MinSize         int     `yaml:"min_size"`
	MaxSize         int     `yaml:"max_size"`
	ShiftFactor     float64 `yaml:"shift_factor"`
	ScaleFactor     float64 `yaml:"scale_factor"`
	HaarScaleFactor float64 `yaml:"haar_scale_factor"`
	MinNeighbors    int     `yaml:"min_neighbors"`
	MinQuality      float64 `yaml:"min_quality"`
	IoUThreshold    float64 `yaml:"iou_threshold"`
}

// ClassifierConfig holds classifier training settings.
type ClassifierConfig struct {
	ModelDir       string  `yaml:"model_dir"`
	Iterations     int     `yaml:"iterations"`
	LearningRate   float64 `yaml:"learning_rate"`
	Regularization float64 `yaml:"regularization"`
}

// CorpusConfig holds training corpus settings.
type CorpusConfig struct {
	Root    string `yaml:"root"`
	Workers int    `yaml:"workers"`
}

// StorageConfig holds artifact storage settings.
type StorageConfig struct {
	EncryptionEnabled bool `yaml:"encryption_enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local/share/faceattend")

	det := detect.DefaultConfig()
	train := classifier.DefaultTrainOptions()

	return &Config{
		Detector: DetectorConfig{
			Backend:         string(det.Backend),
			FallbackToPigo:  det.FallbackToPigo,
			PigoCascadeFile: filepath.Join(dataDir, "models/facefinder"),
			HaarCascadeFile: "/usr/share/opencv4/haarcascades/haarcascade_frontalface_default.xml",
			DlibModelDir:    filepath.Join(dataDir, "models/dlib"),
			MinSize:         det.MinSize,
			MaxSize:         det.MaxSize,
			ShiftFactor:     det.ShiftFactor,
			ScaleFactor:     det.ScaleFactor,
			HaarScaleFactor: det.HaarScaleFactor,
			MinNeighbors:    det.MinNeighbors,
			MinQuality:      float64(det.MinQuality),
			IoUThreshold:    det.IoUThreshold,
		},
		Classifier: ClassifierConfig{
			ModelDir:       filepath.Join(dataDir, "classifier"),
			Iterations:     train.Iterations,
			LearningRate:   train.LearningRate,
			Regularization: train.Lambda,
		},
		Corpus: CorpusConfig{
			Root:    filepath.Join(dataDir, "training_data"),
			Workers: runtime.NumCPU(),
		},
		Storage: StorageConfig{
			EncryptionEnabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   filepath.Join(dataDir, "faceattend.log"),
		},
	}
}

// Load loads configuration from the specified file.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, err
	}

	return config, nil
}

// LoadDefault tries to load configuration from default locations.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat(SystemConfigPath); err == nil {
		return Load(SystemConfigPath)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}

	userConfig := filepath.Join(homeDir, ".config/faceattend/faceattend.yaml")
	if _, err := os.Stat(userConfig); err == nil {
		return Load(userConfig)
	}

	return DefaultConfig(), nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validBackends := map[string]bool{"auto": true, "pigo": true, "haar": true, "dlib": true}
	if !validBackends[c.Detector.Backend] {
		return fmt.Errorf("invalid detector backend: %s (must be auto, pigo, haar, or dlib)", c.Detector.Backend)
	}
	if c.Detector.MinSize <= 0 || c.Detector.MaxSize < c.Detector.MinSize {
		return fmt.Errorf("invalid detector size range: %d-%d", c.Detector.MinSize, c.Detector.MaxSize)
	}
	if c.Detector.ShiftFactor <= 0 || c.Detector.ShiftFactor > 1 {
		return fmt.Errorf("shift_factor must be in (0, 1], got %f", c.Detector.ShiftFactor)
	}
	if c.Detector.ScaleFactor <= 1 || c.Detector.HaarScaleFactor <= 1 {
		return fmt.Errorf("scale factors must be greater than 1, got %f and %f", c.Detector.ScaleFactor, c.Detector.HaarScaleFactor)
	}
	if c.Detector.MinNeighbors < 0 {
		return fmt.Errorf("min_neighbors must not be negative, got %d", c.Detector.MinNeighbors)
	}
	if c.Detector.IoUThreshold < 0 || c.Detector.IoUThreshold > 1 {
		return fmt.Errorf("iou_threshold must be between 0 and 1, got %f", c.Detector.IoUThreshold)
	}

	if c.Classifier.ModelDir == "" {
		return fmt.Errorf("classifier model_dir must be set")
	}
	if c.Classifier.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Classifier.Iterations)
	}
	if c.Classifier.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %f", c.Classifier.LearningRate)
	}
	if c.Classifier.Regularization < 0 {
		return fmt.Errorf("regularization must not be negative, got %f", c.Classifier.Regularization)
	}

	if c.Corpus.Root == "" {
		return fmt.Errorf("corpus root must be set")
	}
	if c.Corpus.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Corpus.Workers)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Detector.PigoCascadeFile = ExpandPath(c.Detector.PigoCascadeFile)
	c.Detector.HaarCascadeFile = ExpandPath(c.Detector.HaarCascadeFile)
	c.Detector.DlibModelDir = ExpandPath(c.Detector.DlibModelDir)
	c.Classifier.ModelDir = ExpandPath(c.Classifier.ModelDir)
	c.Corpus.Root = ExpandPath(c.Corpus.Root)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// EnsureDirectories creates the model, corpus and log directories.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Classifier.ModelDir, 0700); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	if err := os.MkdirAll(c.Corpus.Root, 0755); err != nil {
		return fmt.Errorf("failed to create corpus directory: %w", err)
	}

	if c.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	return nil
}

// DetectorConfig converts the detector section for detect.New.
func (c *Config) DetectorConfig() detect.Config {
	return detect.Config{
		Backend:         detect.Backend(c.Detector.Backend),
		FallbackToPigo:  c.Detector.FallbackToPigo,
		PigoCascadeFile: c.Detector.PigoCascadeFile,
		HaarCascadeFile: c.Detector.HaarCascadeFile,
		DlibModelDir:    c.Detector.DlibModelDir,
		MinSize:         c.Detector.MinSize,
		MaxSize:         c.Detector.MaxSize,
		ShiftFactor:     c.Detector.ShiftFactor,
		ScaleFactor:     c.Detector.ScaleFactor,
		HaarScaleFactor: c.Detector.HaarScaleFactor,
		MinNeighbors:    c.Detector.MinNeighbors,
		MinQuality:      float32(c.Detector.MinQuality),
		IoUThreshold:    c.Detector.IoUThreshold,
	}
}

// TrainOptions converts the classifier section for classifier.NewStore.
func (c *Config) TrainOptions() classifier.TrainOptions {
	return classifier.TrainOptions{
		Iterations:   c.Classifier.Iterations,
		LearningRate: c.Classifier.LearningRate,
		Lambda:       c.Classifier.Regularization,
	}
}
