package contractgraph

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/contractgraph/contract"
	"github.com/brunobiangulo/contractgraph/graphsink"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWriteOutputs(t *testing.T) {
	e := newTestEngine(t, newFakeModel(), testConfig())
	sum, err := e.Ingest(context.Background(), testDocs())
	if err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(t.TempDir(), "out")
	if err := e.WriteOutputs(dir, sum); err != nil {
		t.Fatalf("WriteOutputs: %v", err)
	}

	for _, id := range []string{"lease", "msa", "supply"} {
		data, err := os.ReadFile(filepath.Join(dir, ContractsDir, id+".json"))
		if err != nil {
			t.Fatal(err)
		}
		var c contract.Contract
		if err := json.Unmarshal(data, &c); err != nil || c.ID != id {
			t.Errorf("%s.json: id=%q err=%v", id, c.ID, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, ContractDataFile))
	if err != nil {
		t.Fatal(err)
	}
	var all []contract.Contract
	if err := json.Unmarshal(data, &all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "lease" || all[2].ID != "supply" {
		t.Errorf("contract_data ids out of order: %d contracts", len(all))
	}

	f, err := os.Open(filepath.Join(dir, GraphFile))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := graphsink.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("graph records = %d", len(records))
	}
	msa, _ := e.Contract("msa")
	if got := records[1].ToContract(); got.ID != "msa" || *got.GoverningLaw != *msa.GoverningLaw || len(got.Clauses) != len(msa.Clauses) {
		t.Errorf("graph record for msa = %+v", got)
	}

	data, err = os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil {
		t.Fatal(err)
	}
	var decoded BatchSummary
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.RunID != sum.RunID || decoded.Succeeded != 3 {
		t.Errorf("summary = %+v", decoded)
	}
}

func TestWriteOutputsEmptyCorpus(t *testing.T) {
	dir := t.TempDir()
	if err := writeOutputs(dir, nil, nil); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, ContractDataFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]\n" {
		t.Errorf("contract_data = %q", data)
	}
	if _, err := os.Stat(filepath.Join(dir, SummaryFile)); !os.IsNotExist(err) {
		t.Error("summary written without a batch")
	}
}

func TestFileName(t *testing.T) {
	if got := fileName(`a/b\c:d`); got != "a_b_c_d" {
		t.Errorf("fileName = %q", got)
	}
}
