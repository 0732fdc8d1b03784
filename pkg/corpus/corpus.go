// Package corpus manages the on-disk training corpus: one subdirectory per
// identity holding that identity's face images. It turns the corpus into
// labeled feature vectors and drives classifier training.
package corpus

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/MrCodeEU/faceattend/pkg/classifier"
	"github.com/MrCodeEU/faceattend/pkg/detect"
	"github.com/MrCodeEU/faceattend/pkg/encode"
	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/h2non/filetype"
	"github.com/karrick/godirwalk"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoTrainingData is returned when the corpus yields no encodings.
	ErrNoTrainingData = errors.New("no training data found")

	// ErrIdentityNotFound is returned for labels without a directory.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrInvalidLabel is returned for labels that are not a plain directory name.
	ErrInvalidLabel = errors.New("invalid identity label")

	// ErrNotImage is returned for files whose content is not an image.
	ErrNotImage = errors.New("not an image")
)

// ImageExtensions lists the file extensions considered training images.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff", ".webp"}

// sniffSize is the number of header bytes filetype needs.
const sniffSize = 261

// Trainer fits a classifier on labeled samples.
type Trainer interface {
	Train(samples []classifier.Sample) error
}

// Observer receives training progress as a message and a percentage.
type Observer func(message string, percent float64)

// LabelInfo describes one identity directory.
type LabelInfo struct {
	Label      string
	Path       string
	ImageCount int
}

// Report summarizes a successful training run.
type Report struct {
	Encodings  int
	Identities int
}

// IdentityStats is the inventory of one identity.
type IdentityStats struct {
	ImageCount int
	Path       string
	Bytes      int64
}

// Statistics is the inventory of the whole corpus.
type Statistics struct {
	Identities  int
	Images      int
	Bytes       int64
	PerIdentity map[string]IdentityStats
}

// Manager reads the corpus rooted at a directory.
type Manager struct {
	root     string
	detector detect.Detector
	encoder  encode.FaceEncoder
	trainer  Trainer
	workers  int
}

// NewManager creates a manager for the corpus at root.
func NewManager(root string, detector detect.Detector, encoder encode.FaceEncoder, trainer Trainer) *Manager {
	return &Manager{
		root:     root,
		detector: detector,
		encoder:  encoder,
		trainer:  trainer,
		workers:  1,
	}
}

// SetWorkers sets how many images of one identity are encoded in parallel.
func (m *Manager) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	m.workers = n
}

// Root returns the corpus directory.
func (m *Manager) Root() string {
	return m.root
}

func logger() *logrus.Entry {
	return logging.Component("corpus")
}

// EnsureRoot creates the corpus directory if needed.
func (m *Manager) EnsureRoot() error {
	if err := os.MkdirAll(m.root, 0755); err != nil {
		return fmt.Errorf("failed to create corpus directory: %w", err)
	}
	return nil
}

// ValidateLabel checks that label can be used as a directory name.
func ValidateLabel(label string) error {
	switch {
	case strings.TrimSpace(label) == "":
		return fmt.Errorf("%w: empty", ErrInvalidLabel)
	case strings.HasPrefix(label, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidLabel, label)
	case strings.ContainsAny(label, `/\`) || label != filepath.Base(label):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidLabel, label)
	}
	return nil
}

// CreateIdentity creates the directory for label and returns its path.
// Existing directories are kept.
func (m *Manager) CreateIdentity(label string) (string, error) {
	if err := ValidateLabel(label); err != nil {
		return "", err
	}

	dir := filepath.Join(m.root, label)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create identity %s: %w", label, err)
	}

	logger().WithField("label", label).Debug("Identity directory ready")
	return dir, nil
}

// DeleteIdentity removes label and all its images.
func (m *Manager) DeleteIdentity(label string) error {
	if err := ValidateLabel(label); err != nil {
		return err
	}

	dir := filepath.Join(m.root, label)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrIdentityNotFound, label)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete identity %s: %w", label, err)
	}

	logger().WithField("label", label).Info("Deleted identity")
	return nil
}

// LoadImages returns the image files of label in name order.
func (m *Manager) LoadImages(label string) ([]string, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}

	dir := filepath.Join(m.root, label)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, label)
	}

	return imageFiles(dir)
}

// EnumerateLabels lists identity directories sorted by label. A missing
// root is an empty corpus.
func (m *Manager) EnumerateLabels() ([]LabelInfo, error) {
	dirents, err := godirwalk.ReadDirents(m.root, nil)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	sort.Sort(dirents)

	var labels []LabelInfo
	for _, de := range dirents {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		path := filepath.Join(m.root, name)
		if !isDir(de, path) {
			continue
		}

		files, err := imageFiles(path)
		if err != nil {
			logger().WithFields(logrus.Fields{"label": name, "error": err}).Warn("Skipping unreadable identity")
			continue
		}

		labels = append(labels, LabelInfo{Label: name, Path: path, ImageCount: len(files)})
	}

	return labels, nil
}

// BuildTrainingSet encodes every detected face of every image in the corpus.
func (m *Manager) BuildTrainingSet() ([]classifier.Sample, error) {
	samples, _, err := m.collect(nil)
	return samples, err
}

// TrainAll builds the training set, reporting progress per identity, and
// trains the classifier on it. Nothing is trained when the corpus yields no
// encodings.
func (m *Manager) TrainAll(observer Observer) (Report, error) {
	notify := func(message string, percent float64) {
		if observer != nil {
			observer(message, percent)
		}
	}

	samples, identities, err := m.collect(notify)
	if err != nil {
		return Report{}, err
	}
	if len(samples) == 0 {
		return Report{}, ErrNoTrainingData
	}

	notify("Training classifier...", 90)

	if err := m.trainer.Train(samples); err != nil {
		return Report{}, fmt.Errorf("failed to train classifier: %w", err)
	}

	notify("Training completed!", 100)

	report := Report{Encodings: len(samples), Identities: identities}
	logger().WithFields(logrus.Fields{
		"encodings":  report.Encodings,
		"identities": report.Identities,
	}).Info("Training completed")
	return report, nil
}

// collect walks the corpus label by label and returns the samples and the
// number of labels that contributed at least one.
func (m *Manager) collect(notify Observer) ([]classifier.Sample, int, error) {
	labels, err := m.EnumerateLabels()
	if err != nil {
		return nil, 0, err
	}

	var samples []classifier.Sample
	identities := 0

	for i, info := range labels {
		if notify != nil {
			notify(fmt.Sprintf("Processing %s...", info.Label), float64(i)/float64(len(labels))*100)
		}

		files, err := imageFiles(info.Path)
		if err != nil {
			logger().WithFields(logrus.Fields{"label": info.Label, "error": err}).Warn("Skipping unreadable identity")
			continue
		}

		vectors := m.encodeFiles(info.Label, files)
		for _, v := range vectors {
			samples = append(samples, classifier.Sample{Vector: v, Label: info.Label})
		}
		if len(vectors) > 0 {
			identities++
		}

		logger().WithFields(logrus.Fields{
			"label":     info.Label,
			"images":    len(files),
			"encodings": len(vectors),
		}).Debug("Processed identity")
	}

	return samples, identities, nil
}

type encodeJob struct {
	index int
	path  string
}

type encodeResult struct {
	index   int
	vectors []encode.FeatureVector
}

// encodeFiles encodes files on the worker pool and returns the vectors in
// file order.
func (m *Manager) encodeFiles(label string, files []string) []encode.FeatureVector {
	workers := m.workers
	if workers > len(files) {
		workers = len(files)
	}
	if workers <= 1 {
		var out []encode.FeatureVector
		for _, path := range files {
			out = append(out, m.encodeFile(label, path)...)
		}
		return out
	}

	jobs := make(chan encodeJob, workers)
	results := make(chan encodeResult, workers*2)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- encodeResult{index: job.index, vectors: m.encodeFile(label, job.path)}
			}
		}()
	}

	go func() {
		for i, path := range files {
			jobs <- encodeJob{index: i, path: path}
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	perFile := make([][]encode.FeatureVector, len(files))
	for r := range results {
		perFile[r.index] = r.vectors
	}

	var out []encode.FeatureVector
	for _, vectors := range perFile {
		out = append(out, vectors...)
	}
	return out
}

// encodeFile returns one vector per successfully encoded face in path.
// Failures only drop the affected image or face.
func (m *Manager) encodeFile(label, path string) (vectors []encode.FeatureVector) {
	log := logger().WithFields(logrus.Fields{"label": label, "file": path})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Errorf("Skipping image\nstack: %s", debug.Stack())
			vectors = nil
		}
	}()

	img, err := openImage(path)
	if err != nil {
		log.WithError(err).Warn("Skipping unreadable image")
		return nil
	}

	faces := m.detector.Detect(img)
	if len(faces) == 0 {
		log.Debug("No face detected")
		return nil
	}

	for i, face := range faces {
		v, err := m.encoder.Encode(face.Crop)
		if err != nil {
			log.WithFields(logrus.Fields{"face": i, "error": err}).Warn("Skipping face that could not be encoded")
			continue
		}
		vectors = append(vectors, v)
	}

	return vectors
}

// Statistics returns the corpus inventory. It does not depend on training.
func (m *Manager) Statistics() (Statistics, error) {
	stats := Statistics{PerIdentity: make(map[string]IdentityStats)}

	labels, err := m.EnumerateLabels()
	if err != nil {
		return stats, err
	}

	for _, info := range labels {
		files, err := imageFiles(info.Path)
		if err != nil {
			continue
		}

		entry := IdentityStats{ImageCount: len(files), Path: info.Path}
		for _, path := range files {
			if fi, err := os.Stat(path); err == nil {
				entry.Bytes += fi.Size()
			}
		}

		stats.Identities++
		stats.Images += entry.ImageCount
		stats.Bytes += entry.Bytes
		stats.PerIdentity[info.Label] = entry
	}

	return stats, nil
}

// IsImageFile reports whether name has a training image extension.
func IsImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// imageFiles lists the image files in dir in name order.
func imageFiles(dir string) ([]string, error) {
	dirents, err := godirwalk.ReadDirents(dir, nil)
	if err != nil {
		return nil, err
	}
	sort.Sort(dirents)

	var files []string
	for _, de := range dirents {
		name := de.Name()
		if strings.HasPrefix(name, ".") || !IsImageFile(name) {
			continue
		}

		path := filepath.Join(dir, name)
		if isDir(de, path) {
			continue
		}
		files = append(files, path)
	}

	return files, nil
}

func isDir(de *godirwalk.Dirent, path string) bool {
	if de.IsSymlink() {
		info, err := os.Stat(path)
		return err == nil && info.IsDir()
	}
	return de.IsDir()
}

// openImage checks the file header before decoding.
func openImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	head := make([]byte, sniffSize)
	n, err := io.ReadFull(f, head)
	f.Close()
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}

	if !filetype.IsImage(head[:n]) {
		return nil, fmt.Errorf("%w: %s", ErrNotImage, filepath.Base(path))
	}

	return detect.Load(path)
}
