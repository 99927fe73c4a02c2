package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adambuttrick/affil"
	"github.com/adambuttrick/affil/tagger"
)

// CLI encapsulates the command-line interface with its dependencies.
type CLI struct {
	version     string
	verbose     bool
	silent      bool
	configFile  string
	initialized bool
	viper       *viper.Viper
	stdin       io.Reader
	logOut      io.Writer
	rootCmd     *cobra.Command
}

// New creates a new CLI instance with the given version string.
func New(version string) *CLI {
	c := &CLI{version: version, viper: newViper(), stdin: os.Stdin, logOut: os.Stderr}
	c.setupCommands()
	return c
}

// setupCommands initializes all CLI commands and their configurations.
func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:           "affil",
		Short:         "Affiliation parser and ROR matcher",
		Version:       c.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.initApp()
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	pf := c.rootCmd.PersistentFlags()
	pf.StringVar(&c.configFile, "config", "", "Path to a YAML config file")
	pf.StringP("countries", "c", "", "Path to the countries dictionary")
	pf.StringP("institutions", "n", "", "Path to the institution keywords dictionary")
	pf.StringP("addresses", "d", "", "Path to the address keywords dictionary")
	pf.StringP("model", "m", "", "Path to the model file")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose/debug output")
	pf.BoolVarP(&c.silent, "silent", "s", false, "Suppress all logging")
	bindFlags(c.viper, pf, map[string]string{
		"dictionaries.countries":    "countries",
		"dictionaries.institutions": "institutions",
		"dictionaries.addresses":    "addresses",
		"model":                     "model",
	})

	c.rootCmd.AddCommand(c.newTrainCommand())
	c.rootCmd.AddCommand(c.newParseCommand())
	c.rootCmd.AddCommand(c.newMatchCommand())
	c.rootCmd.AddCommand(c.newEvaluateCommand())
	c.rootCmd.AddCommand(c.newUpCommand())
}

// Run executes the CLI and returns any error. An interrupt cancels the
// running command.
func (c *CLI) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := c.rootCmd.ExecuteContext(ctx)
	if err != nil {
		slog.Error("Command failed", "error", err)
		if c.silent {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	return err
}

// initApp initializes logging.
func (c *CLI) initApp() {
	if c.initialized {
		return
	}
	c.initialized = true

	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	if c.silent {
		level = slog.Level(100)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(c.logOut, &slog.HandlerOptions{
		Level: level,
	})))
}

// config binds the running command's flags and loads the configuration.
// Flags are bound at run time so that commands sharing a key do not shadow
// each other.
func (c *CLI) config(cmd *cobra.Command, keys map[string]string) (*Config, error) {
	bindFlags(c.viper, cmd.Flags(), keys)
	return loadConfig(c.viper, c.configFile)
}

func (c *CLI) loadDictionaries(cfg *Config) (tagger.Dictionaries, error) {
	slog.Debug("Loading dictionaries",
		"countries", cfg.Dictionaries.Countries,
		"institutions", cfg.Dictionaries.Institutions,
		"addresses", cfg.Dictionaries.Addresses)
	return affil.LoadDictionaries(cfg.Dictionaries.Countries, cfg.Dictionaries.Institutions, cfg.Dictionaries.Addresses)
}

func (c *CLI) loadParser(cfg *Config) (*affil.Parser, error) {
	dicts, err := c.loadDictionaries(cfg)
	if err != nil {
		return nil, err
	}
	slog.Debug("Loading model", "path", cfg.Model)
	return affil.Load(cfg.Model, dicts)
}
