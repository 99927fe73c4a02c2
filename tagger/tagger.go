// Package tagger labels affiliation tokens as institution, address or
// country with a linear-chain CRF over window features.
package tagger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adambuttrick/affil/crf"
)

// ErrSchemaMismatch is returned when a persisted model was trained with a
// different feature schema.
var ErrSchemaMismatch = errors.New("tagger: feature schema version mismatch")

// Model is a trained affiliation tagger. It is immutable and safe for
// concurrent use.
type Model struct {
	crf *crf.Model
}

// Train fits a model on labelled sentences.
func Train(sentences []TaggedSentence, dicts Dictionaries, config crf.TrainerConfig) (*Model, error) {
	seqs := make([]crf.TrainingSequence, len(sentences))
	for i, s := range sentences {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("%w: sentence %d: %w", crf.ErrTraining, i, err)
		}
		labels := make([]string, len(s.Labels))
		for j, l := range s.Labels {
			labels[j] = string(l)
		}
		seqs[i] = crf.TrainingSequence{
			Features: SentenceAttributes(s.Tokens, dicts),
			Labels:   labels,
		}
	}

	slog.Debug("Training tagger", "sentences", len(seqs), "c1", config.C1, "c2", config.C2, "max_iterations", config.MaxIterations)
	m, err := crf.Train(seqs, config)
	if err != nil {
		return nil, err
	}
	slog.Debug("Tagger trained", "labels", m.NumLabels, "attributes", m.Attributes.Size())
	return &Model{crf: m}, nil
}

// Predict labels every token. Empty input is an inference error.
func (m *Model) Predict(tokens []string, dicts Dictionaries) ([]Label, error) {
	if m == nil || m.crf == nil {
		return nil, fmt.Errorf("%w: tagger model not initialised", crf.ErrInference)
	}
	raw, err := m.crf.Predict(SentenceAttributes(tokens, dicts))
	if err != nil {
		return nil, err
	}
	labels := make([]Label, len(raw))
	for i, l := range raw {
		labels[i] = Label(l)
	}
	return labels, nil
}

// PredictMarginals returns the per-token label probabilities.
func (m *Model) PredictMarginals(tokens []string, dicts Dictionaries) ([]map[Label]float64, error) {
	if m == nil || m.crf == nil {
		return nil, fmt.Errorf("%w: tagger model not initialised", crf.ErrInference)
	}
	raw, err := m.crf.PredictMarginals(SentenceAttributes(tokens, dicts))
	if err != nil {
		return nil, err
	}
	out := make([]map[Label]float64, len(raw))
	for i, probs := range raw {
		out[i] = make(map[Label]float64, len(probs))
		for l, p := range probs {
			out[i][Label(l)] = p
		}
	}
	return out, nil
}

// Labels returns the labels the model can assign.
func (m *Model) Labels() []Label {
	if m == nil || m.crf == nil {
		return nil
	}
	out := make([]Label, len(m.crf.Labels.ToStr))
	for i, l := range m.crf.Labels.ToStr {
		out[i] = Label(l)
	}
	return out
}

type envelope struct {
	SchemaVersion int             `json:"feature_schema_version"`
	CRF           json.RawMessage `json:"crf"`
}

// Marshal serializes the model together with the feature schema version.
func (m *Model) Marshal() ([]byte, error) {
	if m == nil || m.crf == nil {
		return nil, fmt.Errorf("%w: tagger model not initialised", crf.ErrInference)
	}
	inner, err := crf.MarshalModel(m.crf)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{SchemaVersion: SchemaVersion, CRF: inner})
}

// Unmarshal restores a model produced by Marshal.
func Unmarshal(data []byte) (*Model, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("tagger: decode model: %w", err)
	}
	if env.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: model has version %d, extractor has %d",
			ErrSchemaMismatch, env.SchemaVersion, SchemaVersion)
	}
	inner, err := crf.UnmarshalModel(env.CRF)
	if err != nil {
		return nil, fmt.Errorf("tagger: decode model: %w", err)
	}
	for _, l := range inner.Labels.ToStr {
		if !Label(l).Valid() {
			return nil, fmt.Errorf("tagger: model has unknown label %q", l)
		}
	}
	return &Model{crf: inner}, nil
}

// Save writes the model to path, creating parent directories as needed.
func Save(m *Model, path string) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads a model written by Save.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
