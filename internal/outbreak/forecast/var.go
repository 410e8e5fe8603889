package forecast

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// numCols is the count of numeric columns the VAR model trains on:
// report_count, latitude, longitude, intensity.
const numCols = 4

// ridgeLambda is a small Tikhonov regularizer added to the normal
// equations so the fit never fails on a near- or fully-singular design
// matrix, which a short daily series produces often (few transitions,
// collinear coordinates). It has negligible effect once there are
// enough observations to make the unregularized fit well posed.
const ridgeLambda = 1e-6

// model holds a fitted VAR(1): y_t = c + A*y_{t-1}, represented as one
// (1+numCols)-row coefficient matrix per output column.
type model struct {
	coeffs *mat.Dense // (1+numCols) x numCols
}

// fitVAR1 fits a first-order vector autoregression over obs's four
// numeric columns via ridge-regularized least squares. Requires at
// least two observations to form one transition.
func fitVAR1(obs []Observation) (*model, error) {
	n := len(obs) - 1
	if n < 1 {
		return nil, fmt.Errorf("forecast: need at least 2 observations to fit VAR(1), got %d", len(obs))
	}

	x := mat.NewDense(n, 1+numCols, nil)
	y := mat.NewDense(n, numCols, nil)
	for t := 0; t < n; t++ {
		prev := row(obs[t])
		cur := row(obs[t+1])
		x.Set(t, 0, 1)
		for c := 0; c < numCols; c++ {
			x.Set(t, 1+c, prev[c])
			y.Set(t, c, cur[c])
		}
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for i := 0; i < 1+numCols; i++ {
		xtx.Set(i, i, xtx.At(i, i)+ridgeLambda)
	}
	var xty mat.Dense
	xty.Mul(x.T(), y)

	coeffs := mat.NewDense(1+numCols, numCols, nil)
	if err := coeffs.Solve(&xtx, &xty); err != nil {
		return nil, fmt.Errorf("forecast: solve VAR(1) normal equations: %w", err)
	}
	return &model{coeffs: coeffs}, nil
}

// forecastSteps predicts k steps ahead from the last observed row,
// feeding each prediction back in as the next step's input.
func (m *model) forecastSteps(last Observation, k int) [][numCols]float64 {
	out := make([][numCols]float64, k)
	prev := row(last)
	for step := 0; step < k; step++ {
		var next [numCols]float64
		for c := 0; c < numCols; c++ {
			v := m.coeffs.At(0, c)
			for i := 0; i < numCols; i++ {
				v += m.coeffs.At(1+i, c) * prev[i]
			}
			next[c] = v
		}
		out[step] = next
		prev = next
	}
	return out
}

func row(o Observation) [numCols]float64 {
	return [numCols]float64{o.ReportCount, o.Lat, o.Lon, o.Intensity}
}
