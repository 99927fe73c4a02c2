package cli

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/adambuttrick/affil"
)

var trainFlagKeys = map[string]string{
	"train.corpus":                   "corpus",
	"train.c1":                       "c1",
	"train.c2":                       "c2",
	"train.max_iterations":           "max-iterations",
	"train.all_possible_transitions": "all-possible-transitions",
	"train.drop_duplicates":          "drop-duplicates",
}

func (c *CLI) newTrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train [modelfile]",
		Short: "Train a CRF model on a tagged affiliation corpus",
		Args:  cobra.MaximumNArgs(1),
		Example: `  affil train model/affiliation_parser_crf_model.json --corpus data/tagged_affiliations.xml
  affil train --c1 0.05 --c2 0.2 --max-iterations 200 -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config(cmd, trainFlagKeys)
			if err != nil {
				return err
			}
			modelPath := cfg.Model
			if len(args) == 1 {
				modelPath = args[0]
			}
			dicts, err := c.loadDictionaries(cfg)
			if err != nil {
				return err
			}

			slog.Info("Training parser", "corpus", cfg.Train.Corpus, "output", modelPath)
			start := time.Now()
			p, err := affil.Train(cfg.Train.Corpus, dicts, trainConfig(cfg, c.verbose))
			if err != nil {
				return err
			}
			slog.Debug("Training completed", "duration", time.Since(start))
			return p.Save(modelPath)
		},
	}

	f := cmd.Flags()
	f.String("corpus", "", "Path to the tagged affiliation XML corpus")
	addTrainerFlags(cmd)
	return cmd
}

func addTrainerFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64("c1", 0.1, "L1 regularization coefficient")
	f.Float64("c2", 0.1, "L2 regularization coefficient")
	f.Int("max-iterations", 100, "Maximum number of optimizer iterations")
	f.Bool("all-possible-transitions", true, "Learn weights for transitions not seen in the corpus")
	f.Bool("drop-duplicates", false, "Skip repeated affiliations in the corpus")
}

func trainConfig(cfg *Config, verbose bool) *affil.TrainConfig {
	tc := affil.DefaultTrainConfig()
	tc.CRF.C1 = cfg.Train.C1
	tc.CRF.C2 = cfg.Train.C2
	tc.CRF.MaxIterations = cfg.Train.MaxIterations
	tc.CRF.AllPossibleTransitions = cfg.Train.AllPossibleTransitions
	tc.CRF.Verbose = verbose
	tc.DropDuplicates = cfg.Train.DropDuplicates
	return tc
}
