package crf

import (
	"fmt"
	"slices"
)

// FeaturesToAttributes converts a feature dict (with mixed value types)
// to CRF attribute strings with float64 values.
//
// Conversion rules:
//   - string value: "key=value" → 1.0
//   - []string value: "key:item" → 1.0 for each item
//   - bool value: "key" → 1.0 if true, omitted if false
//   - int/float value: "key" → float64(value), omitted if zero
func FeaturesToAttributes(features map[string]any) map[string]float64 {
	attrs := make(map[string]float64, len(features))
	for key, val := range features {
		switch v := val.(type) {
		case string:
			attrs[fmt.Sprintf("%s=%s", key, v)] = 1.0
		case []string:
			for _, item := range v {
				attrs[fmt.Sprintf("%s:%s", key, item)] = 1.0
			}
		case bool:
			if v {
				attrs[key] = 1.0
			}
		case int:
			if v != 0 {
				attrs[key] = float64(v)
			}
		case float64:
			if v != 0 {
				attrs[key] = v
			}
		default:
			attrs[key] = 1.0
		}
	}
	return attrs
}

// BuildAttributeAlphabet builds the attribute alphabet from training sequences.
// IDs are assigned in first-seen order, with attributes of one position
// sorted, so the same corpus always yields the same alphabet.
func BuildAttributeAlphabet(sequences []TrainingSequence) *Alphabet {
	alpha := NewAlphabet()
	var keys []string
	for _, seq := range sequences {
		for _, feats := range seq.Features {
			keys = keys[:0]
			for attr := range feats {
				keys = append(keys, attr)
			}
			slices.Sort(keys)
			for _, attr := range keys {
				alpha.Add(attr)
			}
		}
	}
	return alpha
}

// BuildLabelAlphabet builds the label alphabet from training sequences.
func BuildLabelAlphabet(sequences []TrainingSequence) *Alphabet {
	alpha := NewAlphabet()
	for _, seq := range sequences {
		for _, label := range seq.Labels {
			alpha.Add(label)
		}
	}
	return alpha
}
