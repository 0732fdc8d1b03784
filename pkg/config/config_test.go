package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrCodeEU/faceattend/pkg/detect"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	// Check detector defaults
	if cfg.Detector.Backend != "auto" {
		t.Errorf("expected backend auto, got %s", cfg.Detector.Backend)
	}
	if !cfg.Detector.FallbackToPigo {
		t.Error("expected pigo fallback to be enabled by default")
	}
	if cfg.Detector.HaarScaleFactor != 1.3 {
		t.Errorf("expected haar scale factor 1.3, got %f", cfg.Detector.HaarScaleFactor)
	}
	if cfg.Detector.MinNeighbors != 5 {
		t.Errorf("expected min neighbors 5, got %d", cfg.Detector.MinNeighbors)
	}
	if !strings.HasSuffix(cfg.Detector.PigoCascadeFile, "facefinder") {
		t.Errorf("unexpected pigo cascade path: %s", cfg.Detector.PigoCascadeFile)
	}

	// Check classifier defaults
	if cfg.Classifier.Iterations != 300 {
		t.Errorf("expected 300 iterations, got %d", cfg.Classifier.Iterations)
	}
	if !strings.Contains(cfg.Classifier.ModelDir, "faceattend") {
		t.Errorf("unexpected model dir: %s", cfg.Classifier.ModelDir)
	}

	// Check corpus defaults
	if cfg.Corpus.Workers < 1 {
		t.Errorf("expected at least one worker, got %d", cfg.Corpus.Workers)
	}
	if !strings.HasSuffix(cfg.Corpus.Root, "training_data") {
		t.Errorf("unexpected corpus root: %s", cfg.Corpus.Root)
	}

	// Check storage defaults
	if !cfg.Storage.EncryptionEnabled {
		t.Error("expected encryption to be enabled by default")
	}

	// Check logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected log format 'text', got %s", cfg.Logging.Format)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.yaml")

	configContent := `
detector:
  backend: pigo
  pigo_cascade_file: /custom/facefinder
  min_size: 60
  min_quality: 7.5

classifier:
  model_dir: /custom/classifier
  iterations: 500
  learning_rate: 0.2

corpus:
  root: /custom/corpus
  workers: 3

storage:
  encryption_enabled: false

logging:
  level: debug
  format: json
  file: /var/log/faceattend.log
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Detector.Backend != "pigo" {
		t.Errorf("expected backend pigo, got %s", cfg.Detector.Backend)
	}
	if cfg.Detector.PigoCascadeFile != "/custom/facefinder" {
		t.Errorf("unexpected cascade file: %s", cfg.Detector.PigoCascadeFile)
	}
	if cfg.Detector.MinSize != 60 {
		t.Errorf("expected min size 60, got %d", cfg.Detector.MinSize)
	}
	// unset keys keep their defaults
	if cfg.Detector.MaxSize != 2000 {
		t.Errorf("expected default max size 2000, got %d", cfg.Detector.MaxSize)
	}
	if cfg.Classifier.Iterations != 500 {
		t.Errorf("expected 500 iterations, got %d", cfg.Classifier.Iterations)
	}
	if cfg.Classifier.Regularization != 1e-4 {
		t.Errorf("expected default regularization, got %f", cfg.Classifier.Regularization)
	}
	if cfg.Corpus.Root != "/custom/corpus" || cfg.Corpus.Workers != 3 {
		t.Errorf("unexpected corpus config: %+v", cfg.Corpus)
	}
	if cfg.Storage.EncryptionEnabled {
		t.Error("expected encryption to be disabled")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")

	// Should return default config with error
	if cfg == nil {
		t.Error("expected default config on error")
	}
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	cfg, err := Load(configPath)
	if cfg == nil {
		t.Error("expected default config on error")
	}
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadDefault()
	if cfg == nil {
		t.Fatal("LoadDefault returned nil")
	}
	_ = err

	if cfg.Classifier.Iterations <= 0 {
		t.Errorf("expected default iterations, got %d", cfg.Classifier.Iterations)
	}
}

func TestLoadDefault_UserConfig(t *testing.T) {
	if _, err := os.Stat(SystemConfigPath); err == nil {
		t.Skip("system config present")
	}

	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config/faceattend")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "faceattend.yaml"), []byte("corpus:\n  workers: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}
	if cfg.Corpus.Workers != 7 {
		t.Errorf("expected workers from user config, got %d", cfg.Corpus.Workers)
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("FACEATTEND_TEST_DIR", "/srv/attend")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no expansion needed",
			input:    "/absolute/path",
			expected: "/absolute/path",
		},
		{
			name:     "relative path",
			input:    "relative/path",
			expected: "relative/path",
		},
		{
			name:     "environment variable",
			input:    "$FACEATTEND_TEST_DIR/models",
			expected: "/srv/attend/models",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := ExpandPath(tt.input); result != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, result)
			}
		})
	}

	if result := ExpandPath("~/test/path"); result[0] == '~' {
		t.Error("tilde was not expanded")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid default config",
			modify:    func(c *Config) {},
			wantError: false,
		},
		{
			name: "invalid backend",
			modify: func(c *Config) {
				c.Detector.Backend = "yolo"
			},
			wantError: true,
			errorMsg:  "invalid detector backend",
		},
		{
			name: "valid backend haar",
			modify: func(c *Config) {
				c.Detector.Backend = "haar"
			},
			wantError: false,
		},
		{
			name: "min size zero",
			modify: func(c *Config) {
				c.Detector.MinSize = 0
			},
			wantError: true,
			errorMsg:  "invalid detector size range",
		},
		{
			name: "max size below min size",
			modify: func(c *Config) {
				c.Detector.MaxSize = 10
			},
			wantError: true,
			errorMsg:  "invalid detector size range",
		},
		{
			name: "shift factor too large",
			modify: func(c *Config) {
				c.Detector.ShiftFactor = 1.5
			},
			wantError: true,
			errorMsg:  "shift_factor",
		},
		{
			name: "scale factor one",
			modify: func(c *Config) {
				c.Detector.HaarScaleFactor = 1.0
			},
			wantError: true,
			errorMsg:  "scale factors must be greater than 1",
		},
		{
			name: "negative min neighbors",
			modify: func(c *Config) {
				c.Detector.MinNeighbors = -1
			},
			wantError: true,
			errorMsg:  "min_neighbors",
		},
		{
			name: "iou above one",
			modify: func(c *Config) {
				c.Detector.IoUThreshold = 1.2
			},
			wantError: true,
			errorMsg:  "iou_threshold",
		},
		{
			name: "empty model dir",
			modify: func(c *Config) {
				c.Classifier.ModelDir = ""
			},
			wantError: true,
			errorMsg:  "model_dir",
		},
		{
			name: "iterations zero",
			modify: func(c *Config) {
				c.Classifier.Iterations = 0
			},
			wantError: true,
			errorMsg:  "iterations must be positive",
		},
		{
			name: "negative learning rate",
			modify: func(c *Config) {
				c.Classifier.LearningRate = -0.1
			},
			wantError: true,
			errorMsg:  "learning_rate must be positive",
		},
		{
			name: "negative regularization",
			modify: func(c *Config) {
				c.Classifier.Regularization = -1
			},
			wantError: true,
			errorMsg:  "regularization",
		},
		{
			name: "empty corpus root",
			modify: func(c *Config) {
				c.Corpus.Root = ""
			},
			wantError: true,
			errorMsg:  "corpus root",
		},
		{
			name: "workers zero",
			modify: func(c *Config) {
				c.Corpus.Workers = 0
			},
			wantError: true,
			errorMsg:  "workers must be positive",
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Logging.Level = "invalid"
			},
			wantError: true,
			errorMsg:  "invalid log level",
		},
		{
			name: "valid log level debug",
			modify: func(c *Config) {
				c.Logging.Level = "debug"
			},
			wantError: false,
		},
		{
			name: "invalid log format",
			modify: func(c *Config) {
				c.Logging.Format = "xml"
			},
			wantError: true,
			errorMsg:  "invalid log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantError {
				if err == nil {
					t.Error("expected error but got nil")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error message doesn't contain '%s': %v", tt.errorMsg, err)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestConfig_ExpandPaths(t *testing.T) {
	cfg := DefaultConfig()

	cfg.Classifier.ModelDir = "~/faceattend/classifier"
	cfg.Corpus.Root = "~/faceattend/corpus"
	cfg.Detector.PigoCascadeFile = "~/faceattend/facefinder"
	cfg.Logging.File = "~/faceattend/log.txt"

	cfg.ExpandPaths()

	for name, path := range map[string]string{
		"Classifier.ModelDir":      cfg.Classifier.ModelDir,
		"Corpus.Root":              cfg.Corpus.Root,
		"Detector.PigoCascadeFile": cfg.Detector.PigoCascadeFile,
		"Logging.File":             cfg.Logging.File,
	} {
		if path[0] == '~' {
			t.Errorf("%s tilde was not expanded", name)
		}
	}
}

func TestConfig_EnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Classifier.ModelDir = filepath.Join(tmpDir, "classifier")
	cfg.Corpus.Root = filepath.Join(tmpDir, "corpus")
	cfg.Logging.File = filepath.Join(tmpDir, "logs", "faceattend.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Classifier.ModelDir, cfg.Corpus.Root, filepath.Dir(cfg.Logging.File)} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Errorf("%s was not created", dir)
		}
	}
}

func TestConfig_DetectorConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detector.Backend = "pigo"
	cfg.Detector.MinQuality = 3.5
	cfg.Detector.PigoCascadeFile = "/models/facefinder"

	det := cfg.DetectorConfig()
	if det.Backend != detect.BackendPigo {
		t.Errorf("expected pigo backend, got %s", det.Backend)
	}
	if det.MinQuality != 3.5 {
		t.Errorf("expected min quality 3.5, got %f", det.MinQuality)
	}
	if det.PigoCascadeFile != "/models/facefinder" {
		t.Errorf("unexpected cascade file: %s", det.PigoCascadeFile)
	}
	if det.MinNeighbors != cfg.Detector.MinNeighbors || det.HaarScaleFactor != cfg.Detector.HaarScaleFactor {
		t.Error("haar parameters were not carried over")
	}
}

func TestConfig_TrainOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Classifier.Iterations = 42
	cfg.Classifier.LearningRate = 0.3
	cfg.Classifier.Regularization = 0.01

	opts := cfg.TrainOptions()
	if opts.Iterations != 42 || opts.LearningRate != 0.3 || opts.Lambda != 0.01 {
		t.Errorf("unexpected train options: %+v", opts)
	}
}

func TestConfig_MarshalRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Corpus.Workers = 9

	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "faceattend.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Corpus.Workers != 9 {
		t.Errorf("expected 9 workers, got %d", loaded.Corpus.Workers)
	}
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		DefaultConfig()
	}
}

func BenchmarkConfig_Validate(b *testing.B) {
	cfg := DefaultConfig()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.Validate()
	}
}
