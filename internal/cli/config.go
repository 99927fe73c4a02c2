package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/adambuttrick/affil/internal/lookup"
	"github.com/adambuttrick/affil/internal/storage"
)

// Config is the layered CLI configuration: flags, then AFFIL_* environment
// variables, then the config file, then defaults.
type Config struct {
	Model        string             `mapstructure:"model"`
	Dictionaries DictionariesConfig `mapstructure:"dictionaries"`
	Train        TrainConfig        `mapstructure:"train"`
	Lookup       LookupConfig       `mapstructure:"lookup"`
	Workers      int                `mapstructure:"workers"`
}

type DictionariesConfig struct {
	Countries    string `mapstructure:"countries"`
	Institutions string `mapstructure:"institutions"`
	Addresses    string `mapstructure:"addresses"`
}

type TrainConfig struct {
	Corpus                 string  `mapstructure:"corpus"`
	C1                     float64 `mapstructure:"c1"`
	C2                     float64 `mapstructure:"c2"`
	MaxIterations          int     `mapstructure:"max_iterations"`
	AllPossibleTransitions bool    `mapstructure:"all_possible_transitions"`
	DropDuplicates         bool    `mapstructure:"drop_duplicates"`
}

type LookupConfig struct {
	Service     string        `mapstructure:"service"`
	URL         string        `mapstructure:"url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
}

// Lookup services.
const (
	ServiceROR    = "ror"
	ServiceMarple = "marple"
)

const (
	defaultModelPath = "model/affiliation_parser_crf_model.json"
	defaultDataDir   = "data"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("model", defaultModelPath)
	v.SetDefault("dictionaries.countries", defaultDataDir+"/"+storage.CountriesFile)
	v.SetDefault("dictionaries.institutions", defaultDataDir+"/"+storage.InstitutionsFile)
	v.SetDefault("dictionaries.addresses", defaultDataDir+"/"+storage.AddressesFile)
	v.SetDefault("train.corpus", defaultDataDir+"/"+storage.CorpusFile)
	v.SetDefault("train.c1", 0.1)
	v.SetDefault("train.c2", 0.1)
	v.SetDefault("train.max_iterations", 100)
	v.SetDefault("train.all_possible_transitions", true)
	v.SetDefault("train.drop_duplicates", false)
	v.SetDefault("lookup.service", ServiceROR)
	v.SetDefault("lookup.url", "")
	v.SetDefault("lookup.timeout", lookup.DefaultTimeout)
	v.SetDefault("lookup.max_retries", lookup.DefaultMaxRetries)
	v.SetDefault("lookup.cache_ttl", lookup.DefaultCacheTTL)
	v.SetDefault("lookup.metrics_addr", "")
	v.SetDefault("workers", 4)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("AFFIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads configFile, if set, and decodes the merged configuration.
func loadConfig(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Lookup.Service {
	case ServiceROR, ServiceMarple:
	default:
		return fmt.Errorf("unknown lookup service %q (want %s or %s)", c.Lookup.Service, ServiceROR, ServiceMarple)
	}
	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	return nil
}

// bindFlags binds each config key to the named flag of fs.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		f := fs.Lookup(name)
		if f == nil {
			panic("cli: no flag " + name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(err)
		}
	}
}
