package ml

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/c360/edgetwin/errors"
)

// ridgeLambda regularizes the normal equations so rank-deficient feature
// matrices still yield a solvable system.
const ridgeLambda = 1e-3

// scaler standardizes features to zero mean and unit variance. Constant
// features keep a unit divisor so transforms stay finite.
type scaler struct {
	mean []float64
	std  []float64
}

func fitScaler(x *mat.Dense) *scaler {
	rows, cols := x.Dims()
	s := &scaler{
		mean: make([]float64, cols),
		std:  make([]float64, cols),
	}
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)
		s.mean[j] = stat.Mean(col, nil)
		sd := stat.StdDev(col, nil)
		if sd < 1e-12 || math.IsNaN(sd) {
			sd = 1
		}
		s.std[j] = sd
	}
	return s
}

func (s *scaler) transform(features []float64) []float64 {
	out := make([]float64, len(features))
	for j, v := range features {
		if j < len(s.mean) {
			out[j] = (v - s.mean[j]) / s.std[j]
		}
	}
	return out
}

func (s *scaler) transformMatrix(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, (x.At(i, j)-s.mean[j])/s.std[j])
		}
	}
	return out
}

// regressor is a ridge-regularized linear model over scaled features.
type regressor struct {
	weights   []float64
	intercept float64
}

// fitRegressor solves (X'X + lambda*I) w = X'y via Cholesky.
func fitRegressor(x *mat.Dense, y []float64) (*regressor, error) {
	rows, cols := x.Dims()
	if rows != len(y) {
		return nil, errors.WrapInvalid(errors.ErrInsufficientSamples,
			"regressor", "fitRegressor", "dimension check")
	}

	// Augment with a bias column.
	aug := mat.NewDense(rows, cols+1, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			aug.Set(i, j, x.At(i, j))
		}
		aug.Set(i, cols, 1)
	}

	var xtx mat.Dense
	xtx.Mul(aug.T(), aug)
	for j := 0; j <= cols; j++ {
		xtx.Set(j, j, xtx.At(j, j)+ridgeLambda)
	}

	yv := mat.NewVecDense(rows, y)
	var xty mat.VecDense
	xty.MulVec(aug.T(), yv)

	sym := mat.NewSymDense(cols+1, nil)
	for i := 0; i <= cols; i++ {
		for j := i; j <= cols; j++ {
			sym.SetSym(i, j, xtx.At(i, j))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, errors.WrapInvalid(errors.ErrNonFiniteData,
			"regressor", "fitRegressor", "normal equations factorization")
	}

	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &xty); err != nil {
		return nil, errors.WrapInvalid(err,
			"regressor", "fitRegressor", "normal equations solve")
	}

	r := &regressor{
		weights:   make([]float64, cols),
		intercept: w.AtVec(cols),
	}
	for j := 0; j < cols; j++ {
		r.weights[j] = w.AtVec(j)
	}
	return r, nil
}

func (r *regressor) predict(features []float64) float64 {
	out := r.intercept
	for j, w := range r.weights {
		if j < len(features) {
			out += w * features[j]
		}
	}
	return out
}

// rSquared scores predictions against observed values. A constant target
// scores 1 when matched exactly, 0 otherwise.
func rSquared(predicted, observed []float64) float64 {
	if len(predicted) == 0 || len(predicted) != len(observed) {
		return 0
	}
	meanObs := stat.Mean(observed, nil)
	var ssRes, ssTot float64
	for i := range observed {
		d := observed[i] - predicted[i]
		ssRes += d * d
		t := observed[i] - meanObs
		ssTot += t * t
	}
	if ssTot < 1e-12 {
		if ssRes < 1e-9 {
			return 1
		}
		return 0
	}
	r2 := 1 - ssRes/ssTot
	if r2 < 0 {
		return 0
	}
	return r2
}
