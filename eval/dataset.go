// Package eval scores question answering over an ingested contract corpus
// against a dataset of questions with known answers.
package eval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Dataset is a collection of evaluation questions.
type Dataset struct {
	Name  string `json:"name" yaml:"name"`
	Cases []Case `json:"cases" yaml:"cases"`
}

// Case defines a single evaluation question.
type Case struct {
	Question string `json:"question" yaml:"question"`
	// ExpectedContracts are identifiers that should be retrieved and cited.
	ExpectedContracts []string `json:"expected_contracts" yaml:"expected_contracts"`
	// ExpectedFacts should appear in the answer text (case-insensitive).
	ExpectedFacts []string `json:"expected_facts" yaml:"expected_facts"`
	// ExpectNoMatch marks questions the corpus cannot answer.
	ExpectNoMatch bool   `json:"expect_no_match" yaml:"expect_no_match"`
	Category      string `json:"category" yaml:"category"` // lookup, filter, multi-contract, negative
}

// LoadDataset reads a YAML or JSON dataset.
func LoadDataset(path string) (Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("reading dataset: %w", err)
	}
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return Dataset{}, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	if len(ds.Cases) == 0 {
		return Dataset{}, fmt.Errorf("dataset %s has no cases", path)
	}
	for i, c := range ds.Cases {
		if c.Question == "" {
			return Dataset{}, fmt.Errorf("dataset %s: case %d has no question", path, i+1)
		}
	}
	if ds.Name == "" {
		ds.Name = path
	}
	return ds, nil
}
