//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/brunobiangulo/contractgraph/contract"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.db")
	s, err := OpenSQLite(path, 3)
	if err != nil {
		t.Fatalf("opening snapshot: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func fullContract() *contract.Contract {
	return &contract.Contract{
		ID:            "msa-2021",
		Summary:       "Master services agreement between Acme and Beta.",
		ContractType:  contract.String("Service Agreement"),
		EffectiveDate: contract.String("2021-01-01"),
		EndDate:       contract.String("2022-01-01"),
		Duration:      contract.String("P1Y"),
		TotalAmount:   &contract.Amount{Currency: "USD", Value: 50000},
		GoverningLaw:  contract.String("California"),
		Parties: []contract.Organization{
			{Name: "Acme Corp", Role: contract.String("client"), Location: &contract.Location{
				City: contract.String("San Francisco"), Country: contract.String("US"),
			}},
			{Name: "Beta LLC"},
		},
		Clauses: []contract.Clause{
			{Type: "Payment Terms", Text: "Net 30.", Position: contract.Int(0)},
			{Type: "Termination", Text: "Either party may terminate.", Position: contract.Int(1)},
		},
		Embedding:        []float32{0.5, -0.25, 1},
		EmbeddingVersion: testVersion,
	}
}

func TestOpenSQLiteNestedDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "corpus.db")
	s, err := OpenSQLite(path, 3)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	s.Close()

	// Reopening must not re-run applied migrations.
	s, err = OpenSQLite(path, 3)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	s.Close()
}

func TestOpenSQLiteRejectsDimension(t *testing.T) {
	if _, err := OpenSQLite(filepath.Join(t.TempDir(), "x.db"), 0); err == nil {
		t.Fatal("expected error for zero dimension")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, _ := newTestSQLite(t)
	ctx := context.Background()

	want := fullContract()
	bare := &contract.Contract{ID: "bare", Summary: "No details.", Clauses: []contract.Clause{}}
	if err := s.Save(ctx, []*contract.Contract{want, bare}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0].ID != "bare" || got[1].ID != "msa-2021" {
		t.Fatalf("loaded %d contracts in wrong order", len(got))
	}
	if !reflect.DeepEqual(got[1], want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got[1], want)
	}
	if !reflect.DeepEqual(got[0], bare) {
		t.Errorf("bare contract mismatch: %+v", got[0])
	}
}

func TestSaveOverwrites(t *testing.T) {
	s, _ := newTestSQLite(t)
	ctx := context.Background()

	c := fullContract()
	if err := s.Save(ctx, []*contract.Contract{c}); err != nil {
		t.Fatal(err)
	}
	c.Summary = "Amended."
	c.Clauses = c.Clauses[:1]
	c.Embedding = nil
	c.EmbeddingVersion = ""
	if err := s.Save(ctx, []*contract.Contract{c}); err != nil {
		t.Fatal(err)
	}

	n, vecs, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || vecs != 0 {
		t.Errorf("Count = (%d, %d), want (1, 0)", n, vecs)
	}
	got, _ := s.Load(ctx)
	if got[0].Summary != "Amended." || len(got[0].Clauses) != 1 || got[0].HasEmbedding() {
		t.Errorf("stale data after overwrite: %+v", got[0])
	}

	var clauses int
	s.db.QueryRow("SELECT COUNT(*) FROM clauses").Scan(&clauses)
	if clauses != 1 {
		t.Errorf("clauses rows = %d, want 1", clauses)
	}
}

func TestSaveDropsWrongDimension(t *testing.T) {
	s, _ := newTestSQLite(t)
	ctx := context.Background()

	c := fullContract()
	c.Embedding = []float32{1, 2}
	if err := s.Save(ctx, []*contract.Contract{c}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ := s.Load(ctx)
	if got[0].HasEmbedding() || got[0].EmbeddingVersion != "" {
		t.Errorf("vector should have been dropped: %+v", got[0])
	}
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	s, path := newTestSQLite(t)
	ctx := context.Background()
	if err := s.Save(ctx, []*contract.Contract{fullContract()}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	reopened, err := OpenSQLite(path, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got, err := reopened.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}

	m := NewMemory()
	for _, c := range got {
		m.Add(c)
	}
	res := m.NearestK([]float32{0.5, -0.25, 1}, testVersion, 1, nil)
	if len(res) != 1 || res[0].Contract.ID != "msa-2021" {
		t.Errorf("reloaded corpus not searchable: %v", res)
	}
}

func TestFloat32Serialization(t *testing.T) {
	in := []float32{0, 1.5, -3.25, 1e-7}
	if got := deserializeFloat32(serializeFloat32(in)); !reflect.DeepEqual(got, in) {
		t.Errorf("got %v, want %v", got, in)
	}
}
