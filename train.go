package affil

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/adambuttrick/affil/crf"
	"github.com/adambuttrick/affil/internal/storage"
	"github.com/adambuttrick/affil/tagger"
)

// TrainConfig holds configuration for training.
type TrainConfig struct {
	CRF            crf.TrainerConfig
	DropDuplicates bool // skip repeated affiliations in the corpus
}

// DefaultTrainConfig returns the default training configuration.
func DefaultTrainConfig() *TrainConfig {
	return &TrainConfig{CRF: crf.DefaultTrainerConfig()}
}

// EvalConfig holds configuration for evaluation.
type EvalConfig struct {
	Folds int
	Train *TrainConfig
}

// EvalResult holds cross-validation evaluation results.
type EvalResult struct {
	TokenAccuracy    float64
	SequenceAccuracy float64
	TokenCorrect     int
	TokenTotal       int
	SequenceCorrect  int
	SequenceTotal    int
	Folds            int

	Labels    []string                  // labels in a stable order
	Confusion map[string]map[string]int // true label -> predicted label -> count
	Precision map[string]float64
	Recall    map[string]float64
	F1        map[string]float64
	MacroF1   float64
}

func trainConfigOrDefault(config *TrainConfig) *TrainConfig {
	if config == nil {
		return DefaultTrainConfig()
	}
	return config
}

// Train trains a parser on the tagged XML corpus at corpusPath.
func Train(corpusPath string, dicts tagger.Dictionaries, config *TrainConfig) (*Parser, error) {
	config = trainConfigOrDefault(config)
	sentences, err := storage.ReadCorpus(corpusPath, storage.CorpusOptions{DropDuplicates: config.DropDuplicates})
	if err != nil {
		return nil, fmt.Errorf("affil: %w", err)
	}
	return TrainSentences(sentences, dicts, config)
}

// TrainSentences trains a parser on already labelled sentences.
func TrainSentences(sentences []tagger.TaggedSentence, dicts tagger.Dictionaries, config *TrainConfig) (*Parser, error) {
	config = trainConfigOrDefault(config)
	if len(sentences) == 0 {
		return nil, fmt.Errorf("affil: %w: no tagged affiliations", ErrTraining)
	}
	slog.Info("Training CRF model", "affiliations", len(sentences))
	m, err := tagger.Train(sentences, dicts, config.CRF)
	if err != nil {
		return nil, fmt.Errorf("affil: %w", err)
	}
	return &Parser{model: m, dicts: dicts}, nil
}

// Evaluate runs k-fold cross-validation on the tagged XML corpus.
func Evaluate(corpusPath string, dicts tagger.Dictionaries, config *EvalConfig) (*EvalResult, error) {
	dedupe := config != nil && config.Train != nil && config.Train.DropDuplicates
	sentences, err := storage.ReadCorpus(corpusPath, storage.CorpusOptions{DropDuplicates: dedupe})
	if err != nil {
		return nil, fmt.Errorf("affil: %w", err)
	}
	return EvaluateSentences(sentences, dicts, config)
}

// EvaluateSentences runs k-fold cross-validation. Sentence i is tested in
// fold i % k; k defaults to 5 and is capped at the number of sentences.
func EvaluateSentences(sentences []tagger.TaggedSentence, dicts tagger.Dictionaries, config *EvalConfig) (*EvalResult, error) {
	nFolds := 5
	var trainConfig *TrainConfig
	if config != nil {
		if config.Folds > 0 {
			nFolds = config.Folds
		}
		trainConfig = config.Train
	}
	trainConfig = trainConfigOrDefault(trainConfig)

	nFolds = min(nFolds, len(sentences))
	if nFolds < 2 {
		return nil, fmt.Errorf("affil: %w: cross-validation needs at least 2 affiliations, got %d", ErrTraining, len(sentences))
	}

	folds := make([][]int, nFolds)
	for i := range sentences {
		folds[i%nFolds] = append(folds[i%nFolds], i)
	}

	result := &EvalResult{
		Folds:     nFolds,
		Confusion: make(map[string]map[string]int),
	}
	for k, testIdx := range folds {
		var train []tagger.TaggedSentence
		for i, s := range sentences {
			if i%nFolds != k {
				train = append(train, s)
			}
		}
		slog.Debug("Training fold", "fold", k+1, "train", len(train), "test", len(testIdx))
		m, err := tagger.Train(train, dicts, trainConfig.CRF)
		if err != nil {
			return nil, fmt.Errorf("affil: fold %d: %w", k+1, err)
		}

		for _, idx := range testIdx {
			s := sentences[idx]
			pred, err := m.Predict(s.Tokens, dicts)
			if err != nil {
				return nil, fmt.Errorf("affil: fold %d: %w", k+1, err)
			}
			allCorrect := true
			for j, gold := range s.Labels {
				result.count(string(gold), string(pred[j]))
				if pred[j] == gold {
					result.TokenCorrect++
				} else {
					allCorrect = false
				}
				result.TokenTotal++
			}
			if allCorrect {
				result.SequenceCorrect++
			}
			result.SequenceTotal++
		}
	}

	if result.TokenTotal > 0 {
		result.TokenAccuracy = float64(result.TokenCorrect) / float64(result.TokenTotal)
	}
	if result.SequenceTotal > 0 {
		result.SequenceAccuracy = float64(result.SequenceCorrect) / float64(result.SequenceTotal)
	}
	result.classMetrics()
	return result, nil
}

func (r *EvalResult) count(gold, pred string) {
	row, ok := r.Confusion[gold]
	if !ok {
		row = make(map[string]int)
		r.Confusion[gold] = row
	}
	row[pred]++
}

func (r *EvalResult) classMetrics() {
	seen := make(map[string]bool)
	for gold, row := range r.Confusion {
		seen[gold] = true
		for pred := range row {
			seen[pred] = true
		}
	}
	r.Labels = r.Labels[:0]
	for _, l := range tagger.Labels {
		if seen[string(l)] {
			r.Labels = append(r.Labels, string(l))
			delete(seen, string(l))
		}
	}
	var rest []string
	for l := range seen {
		rest = append(rest, l)
	}
	slices.Sort(rest)
	r.Labels = append(r.Labels, rest...)

	r.Precision = make(map[string]float64, len(r.Labels))
	r.Recall = make(map[string]float64, len(r.Labels))
	r.F1 = make(map[string]float64, len(r.Labels))
	var f1Sum float64
	for _, l := range r.Labels {
		tp := r.Confusion[l][l]
		var goldTotal, predTotal int
		for _, v := range r.Confusion[l] {
			goldTotal += v
		}
		for _, row := range r.Confusion {
			predTotal += row[l]
		}
		if predTotal > 0 {
			r.Precision[l] = float64(tp) / float64(predTotal)
		}
		if goldTotal > 0 {
			r.Recall[l] = float64(tp) / float64(goldTotal)
		}
		if p, rc := r.Precision[l], r.Recall[l]; p+rc > 0 {
			r.F1[l] = 2 * p * rc / (p + rc)
		}
		f1Sum += r.F1[l]
	}
	if len(r.Labels) > 0 {
		r.MacroF1 = f1Sum / float64(len(r.Labels))
	}
}
