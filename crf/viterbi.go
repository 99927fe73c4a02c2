package crf

import (
	"fmt"
	"math"
)

// Viterbi finds the best label sequence using the Viterbi algorithm (log-domain).
// Ties are broken toward the lower label ID, so decoding is deterministic.
func Viterbi(stateScores, transScores [][]float64) ([]int, float64) {
	T := len(stateScores)
	if T == 0 {
		return nil, math.Inf(-1)
	}
	L := len(stateScores[0])

	// delta[y] = best score of a path ending in label y at the current position
	delta := make([]float64, L)
	next := make([]float64, L)
	// psi[t][y] = best previous label for backtracking
	psi := make([][]int, T)

	copy(delta, stateScores[0])
	for t := 1; t < T; t++ {
		psi[t] = make([]int, L)
		for y := range L {
			bestScore := math.Inf(-1)
			bestPrev := 0
			for yp := range L {
				score := delta[yp] + transScores[yp][y]
				if score > bestScore {
					bestScore = score
					bestPrev = yp
				}
			}
			next[y] = bestScore + stateScores[t][y]
			psi[t][y] = bestPrev
		}
		delta, next = next, delta
	}

	bestScore := math.Inf(-1)
	bestLabel := 0
	for y := range L {
		if delta[y] > bestScore {
			bestScore = delta[y]
			bestLabel = y
		}
	}

	path := make([]int, T)
	path[T-1] = bestLabel
	for t := T - 2; t >= 0; t-- {
		path[t] = psi[t+1][path[t+1]]
	}
	return path, bestScore
}

func (m *Model) checkInput(features []map[string]float64) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if len(features) == 0 {
		return fmt.Errorf("%w: empty feature sequence", ErrInference)
	}
	return nil
}

// Predict returns the best label sequence as strings, one per position.
func (m *Model) Predict(features []map[string]float64) ([]string, error) {
	if err := m.checkInput(features); err != nil {
		return nil, err
	}
	path, _ := Viterbi(m.ComputeStateScores(features), m.ComputeTransScores())

	labels := make([]string, len(path))
	for i, id := range path {
		labels[i] = m.Labels.ToStr[id]
	}
	return labels, nil
}

// PredictMarginals returns marginal probabilities for each position.
func (m *Model) PredictMarginals(features []map[string]float64) ([]map[string]float64, error) {
	if err := m.checkInput(features); err != nil {
		return nil, err
	}
	fb := ForwardBackward(m.ComputeStateScores(features), m.ComputeTransScores())

	result := make([]map[string]float64, len(features))
	for t := range features {
		result[t] = make(map[string]float64, m.NumLabels)
		for y := range m.NumLabels {
			result[t][m.Labels.ToStr[y]] = fb.Marginals[t][y]
		}
	}
	return result, nil
}
