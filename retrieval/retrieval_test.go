package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/brunobiangulo/contractgraph/contract"
	"github.com/brunobiangulo/contractgraph/embed"
	"github.com/brunobiangulo/contractgraph/store"
)

const version = "fake/embed@3"

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (embed.Vector, error) {
	f.calls++
	if f.err != nil {
		return embed.Vector{}, f.err
	}
	return embed.Vector{Values: f.vec, Version: version}, nil
}

func add(m *store.Memory, id, law, effective string, vec []float32) {
	c := &contract.Contract{ID: id, Summary: "contract " + id, Clauses: []contract.Clause{}}
	if law != "" {
		c.GoverningLaw = contract.String(law)
	}
	if effective != "" {
		c.EffectiveDate = contract.String(effective)
	}
	if vec != nil {
		c.Embedding = vec
		c.EmbeddingVersion = version
	}
	m.Add(c)
}

func resultIDs(rs []Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Contract.ID
	}
	return out
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	e := &fakeEmbedder{vec: []float32{1, 0, 0}}
	r := New(store.NewMemory(), e, Config{})

	got, err := r.Retrieve(context.Background(), "which contracts expire in 2025?", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
	if e.calls != 0 {
		t.Errorf("embedder called %d times on empty corpus", e.calls)
	}
}

func TestRetrieveGoverningLawScenario(t *testing.T) {
	m := store.NewMemory()
	add(m, "ca-supply", "California", "2020-01-01", []float32{0.2, 1, 0})
	add(m, "ny-lease", "New York", "2021-01-01", []float32{1, 0, 0})
	add(m, "de-nda", "Delaware", "2022-01-01", []float32{0.9, 0.1, 0})

	// The question vector sits closest to the New York contract; the
	// jurisdiction constraint must still win.
	r := New(m, &fakeEmbedder{vec: []float32{1, 0, 0}}, Config{MinSimilarity: 0.2})
	got, err := r.Retrieve(context.Background(), "which contracts are governed by California law?", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if ids := resultIDs(got); len(ids) != 1 || ids[0] != "ca-supply" {
		t.Errorf("got %v, want [ca-supply]", ids)
	}
}

func TestRetrieveTieBreak(t *testing.T) {
	vec := []float32{1, 1, 0}
	m := store.NewMemory()
	add(m, "b", "", "2020-01-01", vec)
	add(m, "a", "", "2020-01-01", vec)
	add(m, "c", "", "2024-06-30", vec)

	r := New(m, &fakeEmbedder{vec: vec}, Config{})
	want := fmt.Sprint([]string{"c", "a", "b"})
	for i := 0; i < 3; i++ {
		got, err := r.Retrieve(context.Background(), "termination rights", 3)
		if err != nil {
			t.Fatal(err)
		}
		if fmt.Sprint(resultIDs(got)) != want {
			t.Fatalf("run %d: got %v, want %s", i, resultIDs(got), want)
		}
	}
}

func TestRetrieveThreshold(t *testing.T) {
	m := store.NewMemory()
	add(m, "unrelated", "", "", []float32{0, 0, 1})
	add(m, "related", "", "", []float32{1, 0.2, 0})

	r := New(m, &fakeEmbedder{vec: []float32{1, 0, 0}}, Config{MinSimilarity: 0.5})
	got, trace, err := r.Search(context.Background(), "payment terms", 5)
	if err != nil {
		t.Fatal(err)
	}
	if ids := resultIDs(got); len(ids) != 1 || ids[0] != "related" {
		t.Errorf("got %v, want [related]", ids)
	}
	if trace.BelowCutoff != 1 {
		t.Errorf("BelowCutoff = %d, want 1", trace.BelowCutoff)
	}

	r = New(m, &fakeEmbedder{vec: []float32{0, -1, 0}}, Config{MinSimilarity: 0.5})
	got, err = r.Retrieve(context.Background(), "payment terms", 5)
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v; want no results and no error", got, err)
	}
}

func TestRetrieveDefaultK(t *testing.T) {
	m := store.NewMemory()
	for i := 0; i < 8; i++ {
		add(m, fmt.Sprintf("c%d", i), "", "", []float32{1, float32(i) / 10, 0})
	}
	r := New(m, &fakeEmbedder{vec: []float32{1, 0, 0}}, Config{TopK: 3})
	got, err := r.Retrieve(context.Background(), "anything", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].Contract.ID != "c0" {
		t.Errorf("got %v", resultIDs(got))
	}
}

func TestRetrieveIncludesUnembeddedConstraintMatches(t *testing.T) {
	m := store.NewMemory()
	add(m, "ca-embedded", "California", "2020-01-01", []float32{1, 0, 0})
	add(m, "ca-pending", "State of California", "2023-01-01", nil)
	add(m, "tx", "Texas", "", []float32{1, 0, 0})

	r := New(m, &fakeEmbedder{vec: []float32{1, 0, 0}}, Config{})
	got, err := r.Retrieve(context.Background(), "contracts under California law", 5)
	if err != nil {
		t.Fatal(err)
	}
	if want := "[ca-embedded ca-pending]"; fmt.Sprint(resultIDs(got)) != want {
		t.Errorf("got %v, want %s", resultIDs(got), want)
	}
}

func TestRetrieveEmbeddingUnavailable(t *testing.T) {
	m := store.NewMemory()
	add(m, "ca", "California", "", []float32{1, 0, 0})
	add(m, "ny", "New York", "", []float32{1, 0, 0})
	down := &fakeEmbedder{err: fmt.Errorf("%w: connection refused", embed.ErrUnavailable)}
	r := New(m, down, Config{})

	got, trace, err := r.Search(context.Background(), "which contracts are governed by California law?", 5)
	if err != nil {
		t.Fatalf("constrained query should degrade, got %v", err)
	}
	if !trace.Degraded || len(got) != 1 || got[0].Contract.ID != "ca" {
		t.Errorf("got %v (degraded=%v)", resultIDs(got), trace.Degraded)
	}

	_, err = r.Retrieve(context.Background(), "what are the payment terms?", 5)
	if !errors.Is(err, embed.ErrUnavailable) {
		t.Errorf("err = %v, want embed.ErrUnavailable", err)
	}
}

func TestRetrieveCancelled(t *testing.T) {
	m := store.NewMemory()
	add(m, "a", "", "", []float32{1, 0, 0})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(m, &fakeEmbedder{err: context.Canceled}, Config{})
	if _, err := r.Retrieve(ctx, "q", 1); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func day(s string) time.Time {
	d, _ := time.Parse(contract.DateLayout, s)
	return d
}

func TestParseConstraints(t *testing.T) {
	tests := []struct {
		question string
		want     Constraints
	}{
		{"which contracts are governed by California law?", Constraints{Jurisdiction: "California"}},
		{"Which agreements are subject to the laws of the State of New York?", Constraints{Jurisdiction: "New York"}},
		{"List contracts under Delaware law", Constraints{Jurisdiction: "Delaware"}},
		{"Which English law contracts exist?", Constraints{Jurisdiction: "English"}},
		{"What is the Governing Law section about?", Constraints{}},
		{"what are our supply contracts worth?", Constraints{ContractType: "supply"}},
		{"any license agreements with Acme Corp?", Constraints{ContractType: "license", Party: "Acme Corp"}},
		{"contracts between Acme Corp and Beta LLC", Constraints{Party: "Acme Corp"}},
		{`obligations of "Gamma Holdings"`, Constraints{Party: "Gamma Holdings"}},
		{"contracts with California law", Constraints{Jurisdiction: "California"}},
		{"contracts signed in 2021", Constraints{From: day("2021-01-01"), To: day("2021-12-31")}},
		{"agreements active in 2022", Constraints{From: day("2022-01-01"), To: day("2022-12-31"), Active: true}},
		{"contracts effective after 2020", Constraints{From: day("2021-01-01")}},
		{"contracts since 2020-06-01", Constraints{From: day("2020-06-01")}},
		{"deals before 2019", Constraints{To: day("2018-12-31")}},
		{"contracts between 2018 and 2020", Constraints{From: day("2018-01-01"), To: day("2020-12-31")}},
		{"what are the termination clauses?", Constraints{}},
		{"contracts with service-level agreements", Constraints{}},
		{"What are the payment terms under the Acme Supply Agreement?", Constraints{ContractType: "supply"}},
		{"Under the Acme Lease, who pays for repairs?", Constraints{}},
		{"Pursuant to the Master Agreement, when are invoices due?", Constraints{}},
		{"What is governed by the Master Agreement?", Constraints{}},
		{"Is the NDA subject to the laws of Texas?", Constraints{Jurisdiction: "Texas"}},
		{"Which leases are under the laws of the Commonwealth of Massachusetts?", Constraints{Jurisdiction: "Massachusetts"}},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got := ParseConstraints(tt.question)
			if got != tt.want {
				t.Errorf("got %+v\nwant %+v", got, tt.want)
			}
		})
	}
}

func TestRetrieveInstrumentNameIsNotJurisdiction(t *testing.T) {
	m := store.NewMemory()
	m.Add(&contract.Contract{
		ID:               "acme-supply",
		Summary:          "Supply of widgets by Acme.",
		ContractType:     contract.String("Supply"),
		GoverningLaw:     contract.String("California"),
		Clauses:          []contract.Clause{},
		Embedding:        []float32{0, 1, 0},
		EmbeddingVersion: version,
	})

	r := New(m, &fakeEmbedder{vec: []float32{0, 1, 0}}, Config{MinSimilarity: 0.2})
	got, err := r.Retrieve(context.Background(), "What are the payment terms under the Acme Supply Agreement?", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 || got[0].Contract.ID != "acme-supply" {
		t.Errorf("got %v, want [acme-supply]", resultIDs(got))
	}
}

func TestConstraintsPredicate(t *testing.T) {
	if (Constraints{}).Predicate() != nil {
		t.Error("empty constraints should not filter")
	}
	c := &contract.Contract{
		ID:            "x",
		GoverningLaw:  contract.String("California"),
		EffectiveDate: contract.String("2021-03-01"),
		Parties:       []contract.Organization{{Name: "Acme Corp"}},
	}
	if !ParseConstraints("contracts with Acme signed in 2021 governed by California law").Predicate()(c) {
		t.Error("expected match")
	}
	if ParseConstraints("contracts signed in 2022").Predicate()(c) {
		t.Error("expected no match")
	}
}
