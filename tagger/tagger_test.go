package tagger

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/adambuttrick/affil/crf"
	"github.com/adambuttrick/affil/internal/textutil"
)

func sentence(parts ...any) TaggedSentence {
	var s TaggedSentence
	for i := 0; i < len(parts); i += 2 {
		s.Append(parts[i].(Label), textutil.TokenizeStrings(parts[i+1].(string))...)
	}
	return s
}

func trainingSentences() []TaggedSentence {
	return []TaggedSentence{
		sentence(Institution, "Dept. of Physics, MIT", Other, ",", Address, "Cambridge, MA", Other, ",", Country, "USA"),
		sentence(Institution, "University of Oxford", Other, ",", Address, "Oxford", Other, ",", Country, "UK"),
		sentence(Institution, "Princeton University", Other, ",", Address, "Princeton, NJ", Other, ",", Country, "USA"),
		sentence(Institution, "Institute of Physics", Other, ",", Address, "12 Main Street, London", Other, ",", Country, "United Kingdom"),
	}
}

func trainTestModel(t *testing.T) *Model {
	t.Helper()
	config := crf.DefaultTrainerConfig()
	config.C1 = 0
	config.C2 = 0.01
	config.MaxIterations = 200
	m, err := Train(trainingSentences(), testDictionaries(), config)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestTrainPredict(t *testing.T) {
	m := trainTestModel(t)
	dicts := testDictionaries()

	s := trainingSentences()[0]
	labels, err := m.Predict(s.Tokens, dicts)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(labels, s.Labels) {
		t.Errorf("Predict = %v, want %v", labels, s.Labels)
	}

	entities, err := Aggregate(s.Tokens, labels)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"USA"}; !reflect.DeepEqual(entities.Countries, want) {
		t.Errorf("Countries = %v, want %v", entities.Countries, want)
	}

	probs, err := m.PredictMarginals(s.Tokens, dicts)
	if err != nil {
		t.Fatal(err)
	}
	if len(probs) != len(s.Tokens) {
		t.Fatalf("got %d marginals, want %d", len(probs), len(s.Tokens))
	}
	if p := probs[len(probs)-1][Country]; p < 0.5 {
		t.Errorf("P(COUNTRY) for USA = %v, want > 0.5", p)
	}

	got := m.Labels()
	if len(got) != 4 {
		t.Errorf("Labels = %v, want four labels", got)
	}
}

func TestPredictOneLabelPerToken(t *testing.T) {
	m := trainTestModel(t)
	for _, text := range []string{"Harvard", "CERN, Geneva, Switzerland", "Departamento de Física, Universidad de Chile, Santiago"} {
		tokens := textutil.TokenizeStrings(text)
		labels, err := m.Predict(tokens, testDictionaries())
		if err != nil {
			t.Fatal(err)
		}
		if len(labels) != len(tokens) {
			t.Errorf("%q: %d labels for %d tokens", text, len(labels), len(tokens))
		}
	}
}

func TestPredictEmpty(t *testing.T) {
	m := trainTestModel(t)
	if _, err := m.Predict(nil, testDictionaries()); !errors.Is(err, crf.ErrInference) {
		t.Errorf("err = %v, want ErrInference", err)
	}
	var nilModel *Model
	if _, err := nilModel.Predict([]string{"MIT"}, testDictionaries()); !errors.Is(err, crf.ErrInference) {
		t.Errorf("err = %v, want ErrInference", err)
	}
}

func TestTrainRejectsMismatchedSentence(t *testing.T) {
	bad := TaggedSentence{Tokens: []string{"MIT", "USA"}, Labels: []Label{Institution}}
	_, err := Train([]TaggedSentence{bad}, testDictionaries(), crf.DefaultTrainerConfig())
	if !errors.Is(err, crf.ErrTraining) || !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("err = %v, want ErrTraining and ErrLengthMismatch", err)
	}

	_, err = Train(nil, testDictionaries(), crf.DefaultTrainerConfig())
	if !errors.Is(err, crf.ErrTraining) {
		t.Errorf("err = %v, want ErrTraining", err)
	}
}

func TestSaveLoad(t *testing.T) {
	m := trainTestModel(t)
	path := filepath.Join(t.TempDir(), "model", "tagger.json")
	if err := Save(m, path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	dicts := testDictionaries()
	for _, text := range []string{"Dept. of Physics, MIT, Cambridge, MA, USA", "Princeton", "Oxford, UK"} {
		tokens := textutil.TokenizeStrings(text)
		a, err := m.Predict(tokens, dicts)
		if err != nil {
			t.Fatal(err)
		}
		b, err := loaded.Predict(tokens, dicts)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(a, b) {
			t.Errorf("%q: loaded model predicts %v, original %v", text, b, a)
		}
	}
}

func TestUnmarshalSchemaMismatch(t *testing.T) {
	data, err := trainTestModel(t).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	env["feature_schema_version"] = json.RawMessage("2")
	changed, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(changed); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("err = %v, want ErrSchemaMismatch", err)
	}

	delete(env, "feature_schema_version")
	unversioned, _ := json.Marshal(env)
	if _, err := Unmarshal(unversioned); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("unversioned model: err = %v, want ErrSchemaMismatch", err)
	}
}

func TestUnmarshalUnknownLabel(t *testing.T) {
	inner := `{"labels":{"to_str":["PERSON"]},"attributes":{"to_str":["bias"]},"weights":[0.5,0],"num_labels":1}`
	data := `{"feature_schema_version":1,"crf":` + inner + `}`
	if _, err := Unmarshal([]byte(data)); err == nil {
		t.Error("expected error for unknown label")
	}
}
