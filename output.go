package contractgraph

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brunobiangulo/contractgraph/contract"
	"github.com/brunobiangulo/contractgraph/graphsink"
)

// Output file names inside the output directory.
const (
	ContractsDir     = "contracts"
	ContractDataFile = "contract_data.json"
	GraphFile        = "graph.jsonl"
	SummaryFile      = "summary.json"
)

// WriteOutputs writes every contract in the corpus to dir:
//
//	contracts/<id>.json   one file per contract
//	contract_data.json    all contracts, ordered by identifier
//	graph.jsonl           graph sink records
//	summary.json          the batch summary, when summary is not nil
func (e *Engine) WriteOutputs(dir string, summary *BatchSummary) error {
	return writeOutputs(dir, e.corpus.All(), summary)
}

func writeOutputs(dir string, contracts []*contract.Contract, summary *BatchSummary) error {
	perContract := filepath.Join(dir, ContractsDir)
	if err := os.MkdirAll(perContract, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	for _, c := range contracts {
		if err := writeJSON(filepath.Join(perContract, fileName(c.ID)+".json"), c); err != nil {
			return err
		}
	}
	if contracts == nil {
		contracts = []*contract.Contract{}
	}
	if err := writeJSON(filepath.Join(dir, ContractDataFile), contracts); err != nil {
		return err
	}
	if err := writeGraph(filepath.Join(dir, GraphFile), contracts); err != nil {
		return err
	}
	if summary != nil {
		if err := writeJSON(filepath.Join(dir, SummaryFile), summary); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func writeGraph(path string, contracts []*contract.Contract) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := graphsink.Encode(w, graphsink.FromContracts(contracts)); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// fileName makes an identifier safe to use as a file name.
func fileName(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, id)
}
