// Package classifier owns the trained identity classifier: a label codec and
// a probabilistic linear model that are trained, persisted and swapped
// together.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/MrCodeEU/faceattend/pkg/encode"
	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/MrCodeEU/faceattend/pkg/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNoSamples is returned when training is attempted without samples.
	ErrNoSamples = errors.New("no training samples")

	// ErrDimensionMismatch is returned when persisted state does not match
	// the feature vector layout.
	ErrDimensionMismatch = errors.New("model dimension mismatch")

	// ErrPairMismatch is returned when the classifier and codec artifacts
	// come from different training runs.
	ErrPairMismatch = errors.New("classifier and label codec do not belong together")

	// ErrInvalidSample is returned for samples with an empty label or
	// non-finite features.
	ErrInvalidSample = errors.New("invalid training sample")

	// ErrNotTrained is returned by Save before the first successful training.
	ErrNotTrained = errors.New("classifier not trained")
)

// Sample is one labeled feature vector.
type Sample struct {
	Vector encode.FeatureVector
	Label  string
}

// Prediction is the classifier's answer for one vector.
type Prediction struct {
	Label      string
	Confidence float64
}

// Artifacts persists the serialized classifier and codec as one unit.
type Artifacts interface {
	SavePair(classifier, codec []byte) error
	LoadPair() (classifier, codec []byte, err error)
}

// trained is the immutable (model, codec) pair readers observe.
type trained struct {
	model      *Model
	codec      *LabelCodec
	generation string
}

type classifierFile struct {
	Generation string `json:"generation"`
	Dimension  int    `json:"dimension"`
	Model      *Model `json:"model"`
}

type codecFile struct {
	Generation string   `json:"generation"`
	Classes    []string `json:"classes"`
}

// Store holds the current classifier. Infer may run concurrently with Train;
// a training run replaces the whole pair at once after it was persisted.
type Store struct {
	artifacts Artifacts
	opts      TrainOptions

	// writeMu serializes persist and swap so disk and memory hold the same run.
	writeMu sync.Mutex

	mu      sync.RWMutex
	current *trained
}

// NewStore creates an empty store backed by artifacts.
func NewStore(artifacts Artifacts, opts TrainOptions) *Store {
	return &Store{
		artifacts: artifacts,
		opts:      opts,
	}
}

func logger() *logrus.Entry {
	return logging.Component("classifier")
}

// Load reads persisted artifacts. Missing artifacts leave the store
// untrained and are not an error.
func (s *Store) Load() error {
	classifierData, codecData, err := s.artifacts.LoadPair()
	if errors.Is(err, storage.ErrArtifactNotFound) {
		logger().Debug("No persisted classifier, starting untrained")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load classifier: %w", err)
	}

	t, err := decodePair(classifierData, codecData)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
	s.writeMu.Unlock()

	logger().WithFields(logrus.Fields{
		"generation": t.generation,
		"identities": t.codec.Len(),
	}).Info("Loaded classifier")
	return nil
}

// Train fits a new classifier on samples, persists it and makes it current.
// On failure the previous classifier stays in memory and on disk.
func (s *Store) Train(samples []Sample) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("training failed: %v", r)
			logger().Error(err)
		}
	}()

	if len(samples) == 0 {
		return ErrNoSamples
	}

	labels := make([]string, len(samples))
	for i, sample := range samples {
		if sample.Label == "" {
			return fmt.Errorf("%w: sample %d has no label", ErrInvalidSample, i)
		}
		for _, v := range sample.Vector {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: sample %d (%s) has non-finite features", ErrInvalidSample, i, sample.Label)
			}
		}
		labels[i] = sample.Label
	}

	codec := NewLabelCodec(labels)

	x := mat.NewDense(len(samples), encode.Dimension, nil)
	y := make([]int, len(samples))
	for i, sample := range samples {
		x.SetRow(i, sample.Vector[:])
		y[i], _ = codec.Encode(sample.Label)
	}

	model, err := Fit(x, y, codec.Len(), s.opts)
	if err != nil {
		return err
	}

	t := &trained{
		model:      model,
		codec:      codec,
		generation: uuid.NewString(),
	}

	if err := s.commit(t); err != nil {
		return err
	}

	logger().WithFields(logrus.Fields{
		"samples":    len(samples),
		"identities": codec.Len(),
		"generation": t.generation,
	}).Info("Trained classifier")
	return nil
}

// Save persists the current classifier again.
func (s *Store) Save() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	t := s.snapshot()
	if t == nil {
		return ErrNotTrained
	}
	return s.persist(t)
}

// commit persists t and makes it current.
func (s *Store) commit(t *trained) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.persist(t); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
	return nil
}

func (s *Store) persist(t *trained) error {
	classifierData, codecData, err := encodePair(t)
	if err != nil {
		return err
	}
	if err := s.artifacts.SavePair(classifierData, codecData); err != nil {
		return fmt.Errorf("failed to save classifier: %w", err)
	}
	return nil
}

// Infer returns the most likely identity for v and its probability. It
// reports false when no classifier is loaded.
func (s *Store) Infer(v encode.FeatureVector) (Prediction, bool) {
	t := s.snapshot()
	if t == nil {
		return Prediction{}, false
	}

	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			logger().Warn("Refusing to classify non-finite feature vector")
			return Prediction{}, false
		}
	}

	idx, confidence := t.model.Predict(v[:])
	label, ok := t.codec.Decode(idx)
	if !ok {
		return Prediction{}, false
	}

	return Prediction{Label: label, Confidence: confidence}, true
}

// Probabilities returns the full class distribution for v keyed by label.
func (s *Store) Probabilities(v encode.FeatureVector) map[string]float64 {
	t := s.snapshot()
	if t == nil {
		return nil
	}

	probs := t.model.Probabilities(v[:])
	out := make(map[string]float64, len(probs))
	for i, p := range probs {
		label, _ := t.codec.Decode(i)
		out[label] = p
	}
	return out
}

// Trained reports whether a classifier is loaded.
func (s *Store) Trained() bool {
	return s.snapshot() != nil
}

// Labels returns the identities the current classifier knows.
func (s *Store) Labels() []string {
	t := s.snapshot()
	if t == nil {
		return nil
	}
	return t.codec.Classes()
}

// Generation returns the ID of the current training run.
func (s *Store) Generation() string {
	t := s.snapshot()
	if t == nil {
		return ""
	}
	return t.generation
}

func (s *Store) snapshot() *trained {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func encodePair(t *trained) ([]byte, []byte, error) {
	classifierData, err := json.Marshal(classifierFile{
		Generation: t.generation,
		Dimension:  encode.Dimension,
		Model:      t.model,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal classifier: %w", err)
	}

	codecData, err := json.Marshal(codecFile{
		Generation: t.generation,
		Classes:    t.codec.Classes(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal label codec: %w", err)
	}

	return classifierData, codecData, nil
}

func decodePair(classifierData, codecData []byte) (*trained, error) {
	var cf classifierFile
	if err := json.Unmarshal(classifierData, &cf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal classifier: %w", err)
	}

	var lf codecFile
	if err := json.Unmarshal(codecData, &lf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal label codec: %w", err)
	}

	if cf.Generation == "" || cf.Generation != lf.Generation {
		return nil, fmt.Errorf("%w: classifier %q, codec %q", ErrPairMismatch, cf.Generation, lf.Generation)
	}
	if cf.Dimension != encode.Dimension || cf.Model == nil {
		return nil, fmt.Errorf("%w: classifier expects %d features", ErrDimensionMismatch, cf.Dimension)
	}

	codec := NewLabelCodec(lf.Classes)
	if codec.Len() == 0 || !slices.Equal(codec.classes, lf.Classes) {
		return nil, fmt.Errorf("%w: label codec is not a sorted distinct set", ErrPairMismatch)
	}

	if err := cf.Model.validate(encode.Dimension, codec.Len()); err != nil {
		return nil, err
	}

	return &trained{
		model:      cf.Model,
		codec:      codec,
		generation: cf.Generation,
	}, nil
}
