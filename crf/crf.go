// Package crf implements a linear-chain Conditional Random Field.
package crf

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrTraining is returned for malformed training input.
	ErrTraining = errors.New("crf: invalid training input")
	// ErrInference is returned when prediction cannot run.
	ErrInference = errors.New("crf: cannot run inference")
)

// Alphabet maps between string labels/attributes and integer IDs.
type Alphabet struct {
	ToID  map[string]int `json:"-"`
	ToStr []string       `json:"to_str"`
}

// NewAlphabet creates an empty alphabet.
func NewAlphabet() *Alphabet {
	return &Alphabet{
		ToID: make(map[string]int),
	}
}

// Add adds a string to the alphabet if not already present, returns its ID.
func (a *Alphabet) Add(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	id := len(a.ToStr)
	a.ToID[s] = id
	a.ToStr = append(a.ToStr, s)
	return id
}

// Get returns the ID for a string, or -1 if not found.
func (a *Alphabet) Get(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	return -1
}

// Size returns the number of entries.
func (a *Alphabet) Size() int {
	return len(a.ToStr)
}

// reindex rebuilds ToID from ToStr, rejecting duplicates.
func (a *Alphabet) reindex() error {
	a.ToID = make(map[string]int, len(a.ToStr))
	for id, s := range a.ToStr {
		if _, dup := a.ToID[s]; dup {
			return fmt.Errorf("duplicate alphabet entry %q", s)
		}
		a.ToID[s] = id
	}
	return nil
}

// Model holds the CRF parameters. A trained model is never mutated, so it
// can be shared by concurrent Predict calls.
type Model struct {
	Labels     *Alphabet `json:"labels"`
	Attributes *Alphabet `json:"attributes"`
	Weights    []float64 `json:"weights"`
	NumLabels  int       `json:"num_labels"`
	// Weight layout: [state_features... | transition_features...]
	// State feature index: attrID * numLabels + labelID
	// Transition feature index: transOffset + fromLabelID * numLabels + toLabelID
}

// NewModel creates a new empty model.
func NewModel() *Model {
	return &Model{
		Labels:     NewAlphabet(),
		Attributes: NewAlphabet(),
	}
}

// TransOffset returns the offset where transition features start in the weight vector.
func (m *Model) TransOffset() int {
	return m.Attributes.Size() * m.NumLabels
}

// NumWeights returns the total number of weights.
func (m *Model) NumWeights() int {
	return m.TransOffset() + m.NumLabels*m.NumLabels
}

// StateFeatureIndex returns the weight index for a state feature.
func (m *Model) StateFeatureIndex(attrID, labelID int) int {
	return attrID*m.NumLabels + labelID
}

// TransFeatureIndex returns the weight index for a transition feature.
func (m *Model) TransFeatureIndex(fromLabelID, toLabelID int) int {
	return m.TransOffset() + fromLabelID*m.NumLabels + toLabelID
}

// Validate checks that the model is initialised and internally consistent.
func (m *Model) Validate() error {
	switch {
	case m == nil || m.Labels == nil || m.Attributes == nil:
		return fmt.Errorf("%w: model is not initialised", ErrInference)
	case m.NumLabels == 0:
		return fmt.Errorf("%w: model has no labels", ErrInference)
	case m.Labels.Size() != m.NumLabels:
		return fmt.Errorf("%w: %d label names for %d labels", ErrInference, m.Labels.Size(), m.NumLabels)
	case len(m.Weights) != m.NumWeights():
		return fmt.Errorf("%w: %d weights, want %d", ErrInference, len(m.Weights), m.NumWeights())
	}
	return nil
}

// TrainingSequence represents a labeled sequence for training.
type TrainingSequence struct {
	Features []map[string]float64 // per-position feature dicts
	Labels   []string             // gold labels
}

// ComputeStateScores computes state feature scores for each position and label.
// Returns [T][L] matrix where T is sequence length and L is number of labels.
// Attributes unknown to the model are ignored.
func (m *Model) ComputeStateScores(features []map[string]float64) [][]float64 {
	T := len(features)
	L := m.NumLabels
	scores := make([][]float64, T)
	var entries []featureEntry
	for t := range T {
		scores[t] = make([]float64, L)
		// Summed in attribute order so repeated calls give identical scores.
		entries = entries[:0]
		for attr, val := range features[t] {
			if attrID := m.Attributes.Get(attr); attrID >= 0 {
				entries = append(entries, featureEntry{attrID, val})
			}
		}
		slices.SortFunc(entries, func(a, b featureEntry) int { return a.attrID - b.attrID })
		for _, e := range entries {
			base := m.StateFeatureIndex(e.attrID, 0)
			for y := range L {
				scores[t][y] += m.Weights[base+y] * e.value
			}
		}
	}
	return scores
}

// ComputeTransScores returns the [L][L] transition score matrix.
func (m *Model) ComputeTransScores() [][]float64 {
	return transitionMatrix(m.Weights, m.TransOffset(), m.NumLabels)
}

func transitionMatrix(w []float64, offset, L int) [][]float64 {
	trans := make([][]float64, L)
	for i := range L {
		trans[i] = make([]float64, L)
		copy(trans[i], w[offset+i*L:offset+(i+1)*L])
	}
	return trans
}
