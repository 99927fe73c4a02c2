package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/adambuttrick/affil/internal/lookup"
	"github.com/adambuttrick/affil/internal/resolve"
)

var matchFlagKeys = map[string]string{
	"lookup.service":      "service",
	"lookup.url":          "url",
	"lookup.timeout":      "timeout",
	"lookup.max_retries":  "max-retries",
	"lookup.cache_ttl":    "cache-ttl",
	"lookup.metrics_addr": "metrics-addr",
	"workers":             "workers",
}

func (c *CLI) newMatchCommand() *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match a CSV of affiliations to ROR IDs, falling back to parsed queries",
		Example: `  affil match -i affiliations.csv -o matched.csv

  # Use the Marple service with the multi-search strategy as fallback
  affil match -i affiliations.csv --service marple

  # Expose Prometheus metrics while matching
  affil match -i affiliations.csv --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config(cmd, matchFlagKeys)
			if err != nil {
				return err
			}
			p, err := c.loadParser(cfg)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			res, closeFn := newResolver(cfg.Lookup, reg)
			defer closeFn()
			res.Parser = p

			if cfg.Lookup.MetricsAddr != "" {
				stop, err := serveMetrics(cfg.Lookup.MetricsAddr, reg)
				if err != nil {
					return err
				}
				defer stop()
			}

			in, err := os.Open(input)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer in.Close()

			var out io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}

			slog.Info("Matching affiliations", "input", input, "service", cfg.Lookup.Service, "workers", cfg.Workers)
			summary, err := resolve.ProcessCSV(cmd.Context(), in, out, res, cfg.Workers)
			if err != nil {
				return err
			}
			for mt, n := range summary.MatchTypes {
				slog.Info("Match type", "match_type", mt, "rows", n)
			}
			if output != "" {
				slog.Info("Results written", "path", output)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "", "Input CSV file with an affiliation column")
	f.StringVarP(&output, "output", "o", "", "Output CSV file (default: stdout)")
	f.String("service", ServiceROR, "Lookup service: ror or marple")
	f.String("url", "", "Base URL of the lookup service (default: per service)")
	f.Duration("timeout", lookup.DefaultTimeout, "Timeout of one HTTP request")
	f.Int("max-retries", lookup.DefaultMaxRetries, "Retries per lookup request")
	f.Duration("cache-ttl", lookup.DefaultCacheTTL, "Lifetime of cached lookup results")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address while matching")
	f.Int("workers", 4, "Number of rows resolved in parallel")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// newResolver builds the matchers for the configured service, each behind
// its own cache. The returned func closes the caches.
func newResolver(cfg LookupConfig, reg prometheus.Registerer) (*resolve.Resolver, func()) {
	clientCfg := lookup.DefaultClientConfig()
	clientCfg.Timeout = cfg.Timeout
	clientCfg.MaxRetries = cfg.MaxRetries
	client := lookup.NewClient(clientCfg)

	res := &resolve.Resolver{Metrics: resolve.NewMetrics(reg)}
	var caches []*lookup.Cached

	switch cfg.Service {
	case ServiceMarple:
		url := cfg.URL
		if url == "" {
			url = lookup.DefaultMarpleURL
		}
		primary := lookup.NewCached(lookup.NewMarple(url, lookup.SingleSearch, client), lookup.SingleSearch, cfg.CacheTTL)
		fallback := lookup.NewCached(lookup.NewMarple(url, lookup.MultiSearch, client), lookup.MultiSearch, cfg.CacheTTL)
		res.Primary, res.Fallback = primary, fallback
		res.Names = resolve.MarpleMatchTypes
		caches = append(caches, primary, fallback)
	default:
		url := cfg.URL
		if url == "" {
			url = lookup.DefaultRORURL
		}
		primary := lookup.NewCached(lookup.NewROR(url, client), ServiceROR, cfg.CacheTTL)
		res.Primary = primary
		res.Names = resolve.RORMatchTypes
		caches = append(caches, primary)
	}

	return res, func() {
		for _, c := range caches {
			c.Close()
		}
	}
}

// serveMetrics serves reg on addr until the returned func is called.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	slog.Info("Serving metrics", "addr", ln.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
