package classifier

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// TrainOptions tunes the gradient descent used by Fit.
type TrainOptions struct {
	Iterations   int
	LearningRate float64
	// Lambda is the L2 regularization strength.
	Lambda float64
}

// DefaultTrainOptions returns the default optimizer settings.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Iterations:   300,
		LearningRate: 0.5,
		Lambda:       1e-4,
	}
}

// ErrInvalidOptions is returned for non-positive iteration counts or rates.
var ErrInvalidOptions = errors.New("invalid training options")

// Model is a one-vs-rest L2-regularized logistic regression over
// standardized features. Row k of Weights and Bias[k] score class k.
type Model struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
	Scaler  Scaler      `json:"scaler"`
}

// Fit trains one binary logistic regression per class with deterministic
// full-batch gradient descent. y holds class indices in [0, classes).
func Fit(x *mat.Dense, y []int, classes int, opts TrainOptions) (*Model, error) {
	if opts.Iterations <= 0 || opts.LearningRate <= 0 || opts.Lambda < 0 {
		return nil, ErrInvalidOptions
	}

	n, d := x.Dims()
	if n == 0 || classes < 1 {
		return nil, ErrNoSamples
	}
	if len(y) != n {
		return nil, ErrDimensionMismatch
	}

	scaler := FitScaler(x)
	xs := mat.DenseCopyOf(x)
	scaler.TransformDense(xs)

	m := &Model{
		Weights: make([][]float64, classes),
		Bias:    make([]float64, classes),
		Scaler:  scaler,
	}

	target := make([]float64, n)
	z := mat.NewVecDense(n, nil)
	residual := mat.NewVecDense(n, nil)
	grad := mat.NewVecDense(d, nil)
	inv := 1 / float64(n)

	for k := 0; k < classes; k++ {
		for i := range target {
			target[i] = 0
			if y[i] == k {
				target[i] = 1
			}
		}

		w := mat.NewVecDense(d, nil)
		var b float64

		for it := 0; it < opts.Iterations; it++ {
			z.MulVec(xs, w)

			var gb float64
			for i := 0; i < n; i++ {
				r := sigmoid(z.AtVec(i)+b) - target[i]
				residual.SetVec(i, r)
				gb += r
			}

			grad.MulVec(xs.T(), residual)
			grad.ScaleVec(inv, grad)
			grad.AddScaledVec(grad, opts.Lambda, w)

			w.AddScaledVec(w, -opts.LearningRate, grad)
			b -= opts.LearningRate * gb * inv
		}

		m.Weights[k] = mat.Col(nil, 0, w)
		m.Bias[k] = b
	}

	return m, nil
}

// Classes returns the number of classes the model scores.
func (m *Model) Classes() int {
	return len(m.Weights)
}

// Dims returns the expected input length.
func (m *Model) Dims() int {
	return m.Scaler.Dims()
}

// Probabilities returns the per-class sigmoid scores of v normalized to
// sum to 1. All-zero scores yield a uniform distribution.
func (m *Model) Probabilities(v []float64) []float64 {
	x := m.Scaler.Transform(nil, v)

	probs := make([]float64, len(m.Weights))
	for k, w := range m.Weights {
		probs[k] = sigmoid(floats.Dot(w, x) + m.Bias[k])
	}

	total := floats.Sum(probs)
	if total == 0 {
		for k := range probs {
			probs[k] = 1 / float64(len(probs))
		}
		return probs
	}

	floats.Scale(1/total, probs)
	return probs
}

// Predict returns the most probable class and its probability. Ties go to
// the lowest index.
func (m *Model) Predict(v []float64) (int, float64) {
	probs := m.Probabilities(v)
	best := floats.MaxIdx(probs)
	return best, probs[best]
}

// validate checks the shape of a decoded model.
func (m *Model) validate(dims, classes int) error {
	if len(m.Weights) != classes || len(m.Bias) != classes {
		return ErrDimensionMismatch
	}
	if len(m.Scaler.Mean) != dims || len(m.Scaler.Scale) != dims {
		return ErrDimensionMismatch
	}
	for _, w := range m.Weights {
		if len(w) != dims {
			return ErrDimensionMismatch
		}
	}
	for _, s := range m.Scaler.Scale {
		if s == 0 {
			return ErrDimensionMismatch
		}
	}
	return nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
