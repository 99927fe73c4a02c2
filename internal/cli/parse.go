package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/adambuttrick/affil"
	"github.com/adambuttrick/affil/tagger"
)

type tokenLabel struct {
	Token string       `json:"token"`
	Label tagger.Label `json:"label"`
}

type parseResult struct {
	Affiliation string `json:"affiliation"`
	tagger.Entities
	Tokens []tokenLabel `json:"tokens,omitempty"`
}

func (c *CLI) newParseCommand() *cobra.Command {
	var withTokens bool

	cmd := &cobra.Command{
		Use:   "parse [text...]",
		Short: "Extract institutions, addresses and countries from affiliation strings",
		Example: `  affil parse "Dept. of Physics, MIT, Cambridge, MA, USA"

  # One affiliation per line on stdin
  cat affiliations.txt | affil parse

  # Include the token labels
  affil parse --tokens "University of Oxford, UK"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config(cmd, map[string]string{"workers": "workers"})
			if err != nil {
				return err
			}
			texts := args
			if len(texts) == 0 {
				if isStdinTerminal(c.stdin) {
					return cmd.Help()
				}
				texts, err = readLines(c.stdin)
				if err != nil {
					return err
				}
			}

			start := time.Now()
			p, err := c.loadParser(cfg)
			if err != nil {
				return err
			}
			slog.Debug("Model loaded", "duration", time.Since(start))

			start = time.Now()
			results, err := parseAll(cmd, p, texts, withTokens, cfg.Workers)
			if err != nil {
				return err
			}
			slog.Debug("Parsing completed", "affiliations", len(results), "duration", time.Since(start))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			for _, r := range results {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withTokens, "tokens", false, "Also print each token with its label")
	cmd.Flags().Int("workers", 4, "Number of affiliations parsed in parallel")
	return cmd
}

func parseAll(cmd *cobra.Command, p *affil.Parser, texts []string, withTokens bool, workers int) ([]parseResult, error) {
	results := make([]parseResult, len(texts))
	if !withTokens {
		entities, err := p.ParseBatch(cmd.Context(), texts, workers)
		if err != nil {
			return nil, err
		}
		for i, e := range entities {
			results[i] = parseResult{Affiliation: texts[i], Entities: e}
		}
		return results, nil
	}

	for i, text := range texts {
		s, err := p.Tag(text)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", text, err)
		}
		e, err := tagger.Aggregate(s.Tokens, s.Labels)
		if err != nil {
			return nil, err
		}
		r := parseResult{Affiliation: text, Entities: e, Tokens: make([]tokenLabel, len(s.Tokens))}
		for j, tok := range s.Tokens {
			r.Tokens[j] = tokenLabel{Token: tok, Label: s.Labels[j]}
		}
		results[i] = r
	}
	return results, nil
}

func isStdinTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// readLines returns the non-blank lines of r.
func readLines(r io.Reader) ([]string, error) {
	slog.Debug("Reading from stdin")
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("stdin is empty")
	}
	return lines, nil
}
