package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/adambuttrick/affil"
)

func (c *CLI) newEvaluateCommand() *cobra.Command {
	var cvFolds int

	cmd := &cobra.Command{
		Use:     "evaluate",
		Short:   "Evaluate parser accuracy via cross-validation",
		Example: `  affil evaluate --corpus data/tagged_affiliations.xml --cv 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config(cmd, trainFlagKeys)
			if err != nil {
				return err
			}
			dicts, err := c.loadDictionaries(cfg)
			if err != nil {
				return err
			}

			slog.Info("Evaluating", "folds", cvFolds, "corpus", cfg.Train.Corpus)
			start := time.Now()
			result, err := affil.Evaluate(cfg.Train.Corpus, dicts, &affil.EvalConfig{
				Folds: cvFolds,
				Train: trainConfig(cfg, c.verbose),
			})
			if err != nil {
				return err
			}
			slog.Debug("Evaluation completed", "duration", time.Since(start))
			printEvalResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().String("corpus", "", "Path to the tagged affiliation XML corpus")
	cmd.Flags().IntVar(&cvFolds, "cv", 5, "Number of cross-validation folds")
	addTrainerFlags(cmd)
	return cmd
}

func printEvalResult(w io.Writer, result *affil.EvalResult) {
	fmt.Fprintf(w, "Token accuracy: %.1f%% (%d/%d tokens)\n",
		result.TokenAccuracy*100, result.TokenCorrect, result.TokenTotal)
	fmt.Fprintf(w, "Sequence accuracy: %.1f%% (%d/%d affiliations)\n",
		result.SequenceAccuracy*100, result.SequenceCorrect, result.SequenceTotal)
	fmt.Fprintf(w, "Macro F1: %.1f%%\n", result.MacroF1*100)
	labels := slices.Clone(result.Labels)
	printConfusionMatrix(w, result.Confusion, labels)
	printClassReport(w, result.Confusion, result.Labels, result.Precision, result.Recall, result.F1)
}

func printClassReport(w io.Writer, confusion map[string]map[string]int, classes []string, precision, recall, f1 map[string]float64) {
	fmt.Fprintf(w, "\nPer-label metrics:\n")
	fmt.Fprintf(w, "%12s  %6s  %6s  %6s  %7s\n", "label", "prec", "recall", "f1", "support")
	for _, cls := range classes {
		support := 0
		for _, v := range confusion[cls] {
			support += v
		}
		fmt.Fprintf(w, "%12s  %5.1f%%  %5.1f%%  %5.1f%%  %7d\n",
			cls, precision[cls]*100, recall[cls]*100, f1[cls]*100, support)
	}
}

func printConfusionMatrix(w io.Writer, confusion map[string]map[string]int, classes []string) {
	if len(confusion) == 0 {
		return
	}

	sort.SliceStable(classes, func(i, j int) bool {
		ti, tj := 0, 0
		for _, v := range confusion[classes[i]] {
			ti += v
		}
		for _, v := range confusion[classes[j]] {
			tj += v
		}
		return ti > tj
	})

	fmt.Fprintf(w, "\nConfusion matrix (rows=true, cols=predicted):\n")
	fmt.Fprintf(w, "%12s", "")
	for _, c := range classes {
		fmt.Fprintf(w, " %6.6s", c)
	}
	fmt.Fprintf(w, "  total  acc%%\n")

	for _, trueClass := range classes {
		fmt.Fprintf(w, "%12s", trueClass)
		total := 0
		correct := 0
		for _, predClass := range classes {
			count := confusion[trueClass][predClass]
			total += count
			if trueClass == predClass {
				correct = count
			}
			if count == 0 {
				fmt.Fprintf(w, " %6s", ".")
			} else {
				fmt.Fprintf(w, " %6d", count)
			}
		}
		acc := 0.0
		if total > 0 {
			acc = float64(correct) / float64(total) * 100
		}
		fmt.Fprintf(w, "  %5d %5.1f\n", total, acc)
	}
}
