// Package storage reads the dictionaries and the tagged training corpus
// from disk.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/adambuttrick/affil/tagger"
)

// ErrIO is returned when a dictionary or corpus file is missing, unreadable
// or malformed.
var ErrIO = errors.New("storage: cannot read input")

// Default file names inside a data folder.
const (
	CountriesFile    = "countries.txt"
	InstitutionsFile = "institution_keywords.txt"
	AddressesFile    = "address_keywords.txt"
	CorpusFile       = "tagged_affiliations.xml"
)

// Storage wraps the data folder.
type Storage struct {
	Folder string
}

// NewStorage creates a Storage for the given data folder.
func NewStorage(folder string) *Storage {
	return &Storage{Folder: folder}
}

// Path returns the path of a file inside the data folder.
func (s *Storage) Path(name string) string {
	return filepath.Join(s.Folder, name)
}

// Dictionaries loads the three dictionaries under their default names.
func (s *Storage) Dictionaries() (tagger.Dictionaries, error) {
	return LoadDictionaries(s.Path(CountriesFile), s.Path(InstitutionsFile), s.Path(AddressesFile))
}

// Corpus reads the training corpus under its default name.
func (s *Storage) Corpus(opts CorpusOptions) ([]tagger.TaggedSentence, error) {
	return ReadCorpus(s.Path(CorpusFile), opts)
}

// LoadDictionaries reads the country, institution keyword and address
// keyword files. Any missing file fails the whole load.
func LoadDictionaries(countries, institutions, addresses string) (tagger.Dictionaries, error) {
	var dicts tagger.Dictionaries
	for _, f := range []struct {
		path string
		dst  *tagger.Dictionary
	}{
		{countries, &dicts.Countries},
		{institutions, &dicts.Institutions},
		{addresses, &dicts.Addresses},
	} {
		d, err := LoadDictionary(f.path)
		if err != nil {
			return tagger.Dictionaries{}, err
		}
		*f.dst = d
	}
	return dicts, nil
}

// LoadDictionary reads one entry per line.
func LoadDictionary(path string) (tagger.Dictionary, error) {
	lines, err := readLines(path)
	if err != nil {
		return tagger.Dictionary{}, err
	}
	d := tagger.NewDictionary(lines)
	slog.Debug("Loaded dictionary", "path", path, "entries", d.Len())
	return d, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if len(lines) == 0 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}
	return lines, nil
}
