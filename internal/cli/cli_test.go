package cli

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/adambuttrick/affil/internal/storage"
)

const testCorpus = `<?xml version="1.0" encoding="UTF-8"?>
<affiliations>
  <aff><institution>Dept. of Physics, MIT</institution><addr-line>Cambridge, MA</addr-line><country>USA</country></aff>
  <aff><institution>University of Oxford</institution><addr-line>Oxford</addr-line><country>UK</country></aff>
  <aff><institution>Princeton University</institution><addr-line>Princeton, NJ</addr-line><country>USA</country></aff>
  <aff><institution>Institute of Physics</institution><addr-line>12 Main Street, London</addr-line><country>UK</country></aff>
  <aff><institution>Max Planck Institute for Chemistry</institution><addr-line>Mainz</addr-line><country>Germany</country></aff>
  <aff><institution>School of Medicine, Stanford University</institution><addr-line>Stanford, CA</addr-line><country>USA</country></aff>
</affiliations>
`

type fixture struct {
	dir   string
	model string
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, storage.CountriesFile), "USA\nUK\nGermany\n")
	writeFile(t, filepath.Join(dir, storage.InstitutionsFile), "university\ninstitute\ndept\nschool\n")
	writeFile(t, filepath.Join(dir, storage.AddressesFile), "street\ncambridge\nma\nca\n")
	writeFile(t, filepath.Join(dir, storage.CorpusFile), testCorpus)
	return &fixture{dir: dir, model: filepath.Join(dir, "model", "crf.json")}
}

func (f *fixture) args(args ...string) []string {
	return append(args,
		"-s",
		"-c", filepath.Join(f.dir, storage.CountriesFile),
		"-n", filepath.Join(f.dir, storage.InstitutionsFile),
		"-d", filepath.Join(f.dir, storage.AddressesFile),
		"-m", f.model,
	)
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	c := New("test")
	c.stdin = strings.NewReader(stdin)
	var out bytes.Buffer
	c.rootCmd.SetOut(&out)
	c.rootCmd.SetErr(&out)
	c.rootCmd.SetArgs(args)
	err := c.rootCmd.Execute()
	return out.String(), err
}

func (f *fixture) train(t *testing.T) {
	t.Helper()
	_, err := run(t, "", f.args("train",
		"--corpus", filepath.Join(f.dir, storage.CorpusFile),
		"--c1", "0", "--c2", "0.01", "--max-iterations", "100")...)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(f.model); err != nil {
		t.Fatalf("model not written: %v", err)
	}
}

func TestTrainLogsSaveOnce(t *testing.T) {
	f := newFixture(t)
	args := f.args("train",
		"--corpus", filepath.Join(f.dir, storage.CorpusFile),
		"--c1", "0", "--c2", "0.01", "--max-iterations", "20")
	args = slices.DeleteFunc(args, func(a string) bool { return a == "-s" })

	c := New("test")
	var logs bytes.Buffer
	c.logOut = &logs
	c.rootCmd.SetOut(io.Discard)
	c.rootCmd.SetArgs(args)
	defer slog.SetDefault(slog.Default())
	if err := c.rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(logs.String(), "Model saved"); n != 1 {
		t.Errorf("%q logged %d times, want 1:\n%s", "Model saved", n, logs.String())
	}
}

func TestTrainAndParse(t *testing.T) {
	f := newFixture(t)
	f.train(t)

	out, err := run(t, "", f.args("parse", "Dept. of Physics, MIT, Cambridge, MA, USA", "University of Oxford, Oxford, UK")...)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d output lines, want 2:\n%s", len(lines), out)
	}
	var r parseResult
	if err := json.Unmarshal([]byte(lines[0]), &r); err != nil {
		t.Fatal(err)
	}
	if r.Affiliation != "Dept. of Physics, MIT, Cambridge, MA, USA" {
		t.Errorf("Affiliation = %q", r.Affiliation)
	}
	if r.Institutions == nil || r.Countries == nil || r.Addresses == nil {
		t.Errorf("entity lists should be present: %s", lines[0])
	}
	if len(r.Tokens) != 0 {
		t.Errorf("tokens printed without --tokens")
	}
}

func TestParseStdinWithTokens(t *testing.T) {
	f := newFixture(t)
	f.train(t)

	out, err := run(t, "MIT, USA\n\n  \nPrinceton University\n", f.args("parse", "--tokens")...)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d output lines, want 2:\n%s", len(lines), out)
	}
	var r parseResult
	if err := json.Unmarshal([]byte(lines[0]), &r); err != nil {
		t.Fatal(err)
	}
	var tokens []string
	for _, tl := range r.Tokens {
		tokens = append(tokens, tl.Token)
		if !tl.Label.Valid() {
			t.Errorf("token %q has label %q", tl.Token, tl.Label)
		}
	}
	if want := []string{"MIT", ",", "USA"}; !slices.Equal(tokens, want) {
		t.Errorf("tokens = %q, want %q", tokens, want)
	}
}

func TestParseMissingModel(t *testing.T) {
	f := newFixture(t)
	if _, err := run(t, "", f.args("parse", "MIT")...); err == nil {
		t.Error("expected an error without a trained model")
	}
}

func TestEvaluate(t *testing.T) {
	f := newFixture(t)
	out, err := run(t, "", f.args("evaluate",
		"--corpus", filepath.Join(f.dir, storage.CorpusFile),
		"--cv", "3", "--c1", "0", "--c2", "0.01", "--max-iterations", "50")...)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Token accuracy:", "Sequence accuracy:", "Confusion matrix", "Per-label metrics:", "INSTITUTION"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMatch(t *testing.T) {
	f := newFixture(t)
	f.train(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("affiliation"), "Oxford") {
			fmt.Fprint(w, `{"items":[{"chosen":true,"score":1.0,"organization":{"id":"https://ror.org/052gg0110"}}]}`)
			return
		}
		fmt.Fprint(w, `{"items":[]}`)
	}))
	defer srv.Close()

	input := filepath.Join(f.dir, "in.csv")
	output := filepath.Join(f.dir, "out.csv")
	writeFile(t, input, "id,affiliation\n1,\"University of Oxford, Oxford, UK\"\n2,\"Institute of Nowhere, Atlantis\"\n")

	_, err := run(t, "", f.args("match", "-i", input, "-o", output, "--url", srv.URL, "--max-retries", "0", "--workers", "2")...)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if want := []string{"id", "affiliation", "predicted_ror_id", "prediction_score", "match_type", "fallback_queries"}; !slices.Equal(records[0], want) {
		t.Errorf("header = %q, want %q", records[0], want)
	}
	if got := records[1][2:5]; !slices.Equal(got, []string{"https://ror.org/052gg0110", "1.0", "initial_query"}) {
		t.Errorf("first row = %q", records[1])
	}
	if mt := records[2][4]; mt != "fallback_query" && mt != "no_match" {
		t.Errorf("second row match_type = %q", mt)
	}
}

func TestMatchRequiresInput(t *testing.T) {
	f := newFixture(t)
	if _, err := run(t, "", f.args("match")...); err == nil {
		t.Error("expected an error without --input")
	}
}

func TestConfigLayering(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "affil.yaml")
	writeFile(t, cfgPath, `
model: from-file.json
lookup:
  service: marple
  timeout: 3s
workers: 8
`)
	t.Setenv("AFFIL_WORKERS", "2")

	v := newViper()
	cfg, err := loadConfig(v, cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model != "from-file.json" {
		t.Errorf("Model = %q, want from-file.json", cfg.Model)
	}
	if cfg.Lookup.Service != ServiceMarple || cfg.Lookup.Timeout != 3*time.Second {
		t.Errorf("Lookup = %+v", cfg.Lookup)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2 from the environment", cfg.Workers)
	}
	if cfg.Train.C1 != 0.1 || !cfg.Train.AllPossibleTransitions {
		t.Errorf("Train defaults = %+v", cfg.Train)
	}
	if cfg.Dictionaries.Countries != "data/"+storage.CountriesFile {
		t.Errorf("Countries = %q", cfg.Dictionaries.Countries)
	}
}

func TestConfigRejectsUnknownService(t *testing.T) {
	t.Setenv("AFFIL_LOOKUP_SERVICE", "crossref")
	if _, err := loadConfig(newViper(), ""); err == nil {
		t.Error("expected an error for an unknown service")
	}
}
