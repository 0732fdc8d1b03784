package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestLogger(level logrus.Level) *bytes.Buffer {
	var buf bytes.Buffer
	Logger = logrus.New()
	Logger.SetOutput(&buf)
	Logger.SetLevel(level)
	Logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected logrus.Level
	}{
		{"trace", logrus.TraceLevel},
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{" DEBUG ", logrus.DebugLevel},
		{"unknown", logrus.InfoLevel},
		{"", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := ParseLevel(tt.level); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
		want   logrus.Level
	}{
		{name: "debug text", level: "debug", format: FormatText, want: logrus.DebugLevel},
		{name: "warn json", level: "warn", format: FormatJSON, want: logrus.WarnLevel},
		{name: "unknown defaults to info", level: "verbose", format: "", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = logrus.New()
			if err := Init(tt.level, tt.format, ""); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			if Logger.GetLevel() != tt.want {
				t.Errorf("expected level %v, got %v", tt.want, Logger.GetLevel())
			}
			_, isJSON := Logger.Formatter.(*logrus.JSONFormatter)
			if isJSON != (tt.format == FormatJSON) {
				t.Errorf("unexpected formatter %T for format %q", Logger.Formatter, tt.format)
			}
		})
	}
}

func TestInit_CreatesNestedLogFile(t *testing.T) {
	Logger = logrus.New()
	logFile := filepath.Join(t.TempDir(), "logs", "nested", "faceattend.log")

	if err := Init("info", FormatText, logFile); err != nil {
		t.Fatalf("Init with log file failed: %v", err)
	}

	Infof("written to %s", "file")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("log file was not created: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Error("message missing from log file")
	}
}

func TestFormattedHelpers(t *testing.T) {
	buf := newTestLogger(logrus.DebugLevel)

	tests := []struct {
		name string
		log  func()
		want string
	}{
		{"debugf", func() { Debugf("debug %s", "formatted") }, "debug formatted"},
		{"infof", func() { Infof("info %d", 42) }, "info 42"},
		{"warnf", func() { Warnf("warn %s", "test") }, "warn test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %q in output, got %q", tt.want, buf.String())
			}
		})
	}
}

func TestWithFields(t *testing.T) {
	buf := newTestLogger(logrus.InfoLevel)

	WithFields(Fields{
		"label": "alice",
		"faces": 2,
	}).Info("recognized")

	output := buf.String()
	for _, want := range []string{"label=alice", "faces=2", "recognized"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output %q", want, output)
		}
	}
}

func TestWithError(t *testing.T) {
	buf := newTestLogger(logrus.ErrorLevel)

	WithError(os.ErrNotExist).Error("model load failed")

	if !strings.Contains(buf.String(), "file does not exist") {
		t.Error("error not in output")
	}
}

func TestComponent(t *testing.T) {
	buf := newTestLogger(logrus.InfoLevel)

	Component("classifier").Info("loaded")

	output := buf.String()
	if !strings.Contains(output, "component=classifier") {
		t.Error("component field not in output")
	}
	if !strings.Contains(output, "loaded") {
		t.Error("message not in output")
	}
}

func TestSetLevel_Filtering(t *testing.T) {
	buf := newTestLogger(logrus.InfoLevel)
	SetLevel("error")

	Debugf("debug")
	Infof("info")
	Warnf("warn")
	if buf.Len() > 0 {
		t.Errorf("expected nothing below error level, got %q", buf.String())
	}

	Logger.Error("error")
	if buf.Len() == 0 {
		t.Error("Error should be logged at error level")
	}
}

func BenchmarkWithFields(b *testing.B) {
	Logger = logrus.New()
	Logger.SetOutput(&bytes.Buffer{})
	Logger.SetLevel(logrus.InfoLevel)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		WithFields(Fields{
			"label": "alice",
			"face":  i,
		}).Info("message")
	}
}
