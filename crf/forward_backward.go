package crf

import "math"

// ForwardBackwardResult holds the results of the forward-backward algorithm.
type ForwardBackwardResult struct {
	LogZ      float64     // log partition function
	Marginals [][]float64 // [T][L] marginal probabilities P(y_t=j|x)
	Alpha     [][]float64 // [T][L] scaled forward variables
	Beta      [][]float64 // [T][L] scaled backward variables
	Scale     []float64   // [T] scaling factors

	pot potentials
}

// potentials holds exponentiated scores. Each position's state scores and
// the transition matrix are shifted by their maximum before exponentiation
// so large weights cannot overflow; the removed mass is kept in logShift.
type potentials struct {
	state    [][]float64 // [T][L] exp(state - shift_t)
	trans    [][]float64 // [L][L] exp(trans - shift)
	logShift float64
}

func newPotentials(stateScores, transScores [][]float64) potentials {
	T := len(stateScores)
	L := len(stateScores[0])
	p := potentials{
		state: make([][]float64, T),
		trans: make([][]float64, L),
	}
	for t := range T {
		shift := maxOf(stateScores[t])
		p.logShift += shift
		p.state[t] = make([]float64, L)
		for y := range L {
			p.state[t][y] = math.Exp(stateScores[t][y] - shift)
		}
	}
	transShift := math.Inf(-1)
	for i := range L {
		transShift = math.Max(transShift, maxOf(transScores[i]))
	}
	p.logShift += float64(T-1) * transShift
	for i := range L {
		p.trans[i] = make([]float64, L)
		for j := range L {
			p.trans[i][j] = math.Exp(transScores[i][j] - transShift)
		}
	}
	return p
}

func maxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}

// ForwardBackward computes scaled forward-backward algorithm.
// stateScores: [T][L] state feature scores
// transScores: [L][L] transition feature scores
func ForwardBackward(stateScores, transScores [][]float64) ForwardBackwardResult {
	T := len(stateScores)
	if T == 0 {
		return ForwardBackwardResult{}
	}
	L := len(stateScores[0])
	pot := newPotentials(stateScores, transScores)

	alpha := make([][]float64, T)
	scale := make([]float64, T)
	for t := range T {
		alpha[t] = make([]float64, L)
		var sum float64
		for y := range L {
			if t == 0 {
				alpha[t][y] = pot.state[t][y]
			} else {
				var s float64
				for yp := range L {
					s += alpha[t-1][yp] * pot.trans[yp][y]
				}
				alpha[t][y] = s * pot.state[t][y]
			}
			sum += alpha[t][y]
		}
		scale[t] = 1.0
		if sum > 0 {
			scale[t] = 1.0 / sum
		}
		for y := range L {
			alpha[t][y] *= scale[t]
		}
	}

	// Backward pass reuses the forward scale factors.
	beta := make([][]float64, T)
	beta[T-1] = make([]float64, L)
	for y := range L {
		beta[T-1][y] = scale[T-1]
	}
	for t := T - 2; t >= 0; t-- {
		beta[t] = make([]float64, L)
		for y := range L {
			var s float64
			for yn := range L {
				s += pot.trans[y][yn] * pot.state[t+1][yn] * beta[t+1][yn]
			}
			beta[t][y] = s * scale[t]
		}
	}

	logZ := pot.logShift
	for t := range T {
		logZ -= math.Log(scale[t])
	}

	// P(y_t=j|x) = alpha[t][j] * beta[t][j] / scale[t]
	marginals := make([][]float64, T)
	for t := range T {
		marginals[t] = make([]float64, L)
		for y := range L {
			marginals[t][y] = alpha[t][y] * beta[t][y] / scale[t]
		}
	}

	return ForwardBackwardResult{
		LogZ:      logZ,
		Marginals: marginals,
		Alpha:     alpha,
		Beta:      beta,
		Scale:     scale,
		pot:       pot,
	}
}

// TransitionMarginals computes P(y_{t-1}=i, y_t=j | x) for all t, i, j.
// Returns [T-1][L][L] tensor.
func TransitionMarginals(fb ForwardBackwardResult) [][][]float64 {
	T := len(fb.Alpha)
	if T <= 1 {
		return nil
	}
	L := len(fb.Alpha[0])
	result := make([][][]float64, T-1)
	for t := range T - 1 {
		result[t] = make([][]float64, L)
		for i := range L {
			result[t][i] = make([]float64, L)
			for j := range L {
				result[t][i][j] = fb.Alpha[t][i] * fb.pot.trans[i][j] * fb.pot.state[t+1][j] * fb.Beta[t+1][j]
			}
		}
	}
	return result
}
