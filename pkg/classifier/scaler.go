package classifier

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minScale guards against dividing by rounding noise on constant features.
const minScale = 1e-12

// Scaler standardizes features to zero mean and unit variance.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitScaler computes per-column population mean and standard deviation of x.
// Constant columns get a scale of 1.
func FitScaler(x mat.Matrix) Scaler {
	n, d := x.Dims()
	s := Scaler{
		Mean:  make([]float64, d),
		Scale: make([]float64, d),
	}

	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		if std < minScale {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}

	return s
}

// Transform writes the standardized v into dst and returns it. dst is
// allocated when nil.
func (s Scaler) Transform(dst, v []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(v))
	}
	for j, x := range v {
		dst[j] = (x - s.Mean[j]) / s.Scale[j]
	}
	return dst
}

// TransformDense standardizes every row of x in place.
func (s Scaler) TransformDense(x *mat.Dense) {
	n, _ := x.Dims()
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		s.Transform(row, row)
	}
}

// Dims returns the number of features the scaler was fitted on.
func (s Scaler) Dims() int {
	return len(s.Mean)
}
