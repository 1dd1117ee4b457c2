package contractgraph

import (
	"strings"
	"testing"

	"github.com/brunobiangulo/contractgraph/contract"
)

func TestContractSnippetPrefersClause(t *testing.T) {
	c := &contract.Contract{
		ID:      "msa",
		Summary: "Services agreement. Payment is due monthly.",
		Clauses: []contract.Clause{
			{Type: "Payment Terms", Text: "Invoices are payable within thirty days."},
			{Type: "Termination", Text: "Either side may terminate for material breach after notice."},
		},
	}
	got := contractSnippet(c, significantWords("It can be terminated after a material breach."))
	if !strings.Contains(got, "material breach") {
		t.Errorf("snippet = %q", got)
	}
}

func TestContractSnippetFallsBackToSummary(t *testing.T) {
	c := &contract.Contract{
		ID:      "lease",
		Summary: "Initech leases the office. The monthly rent is 4000 dollars. Utilities are excluded.",
		Clauses: []contract.Clause{},
	}
	got := contractSnippet(c, significantWords("The monthly rent is 4000 dollars."))
	if !strings.HasPrefix(got, "The monthly rent") {
		t.Errorf("snippet = %q", got)
	}
}

func TestContractSnippetNoOverlap(t *testing.T) {
	c := &contract.Contract{ID: "x", Summary: "The quick brown fox jumps over the lazy dog."}
	if got := contractSnippet(c, significantWords("quantum computing uses qubits")); got != "" {
		t.Errorf("snippet = %q, want empty", got)
	}
	if got := contractSnippet(c, nil); got != "" {
		t.Errorf("snippet = %q, want empty", got)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Version 2.5 applies. Is it final? Yes! trailing")
	want := []string{"Version 2.5 applies.", "Is it final?", "Yes!", "trailing"}
	if len(got) != len(want) {
		t.Fatalf("got %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestClip(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := clip(long, 30)
	if len(got) > 33 || !strings.HasSuffix(got, "...") {
		t.Errorf("clip = %q", got)
	}
	if clip("short", 30) != "short" {
		t.Error("short text changed")
	}
}
