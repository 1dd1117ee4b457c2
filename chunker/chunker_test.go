package chunker

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	c := New(Config{})
	if c.cfg.MaxTokens != 3000 || c.cfg.Overlap != 200 {
		t.Errorf("defaults = %+v", c.cfg)
	}
	c = New(Config{MaxTokens: 100, Overlap: 500})
	if c.cfg.Overlap != 25 {
		t.Errorf("overlap larger than window should be clamped, got %d", c.cfg.Overlap)
	}
}

func TestSplitShort(t *testing.T) {
	c := New(Config{MaxTokens: 100, Overlap: 10})
	w := c.Split("  Acme Corp agrees to pay Beta LLC $50,000.  ")
	if len(w) != 1 {
		t.Fatalf("got %d windows, want 1", len(w))
	}
	if w[0].Text != "Acme Corp agrees to pay Beta LLC $50,000." || w[0].Index != 0 {
		t.Errorf("window = %+v", w[0])
	}
}

func TestSplitEmpty(t *testing.T) {
	if w := New(Config{}).Split("   \n "); w != nil {
		t.Errorf("got %v, want nil", w)
	}
}

func TestSplitLongRespectsBudget(t *testing.T) {
	var paras []string
	for i := 0; i < 40; i++ {
		paras = append(paras, fmt.Sprintf("Paragraph %d states that the supplier shall deliver goods on time and in good order.", i))
	}
	text := strings.Join(paras, "\n\n")

	c := New(Config{MaxTokens: 60, Overlap: 10})
	windows := c.Split(text)
	if len(windows) < 2 {
		t.Fatalf("got %d windows, want several", len(windows))
	}
	for i, w := range windows {
		if w.Index != i {
			t.Errorf("window %d has Index %d", i, w.Index)
		}
		if w.Tokens > 60+EstimateTokens(extractOverlap(w.Text, 10)) {
			t.Errorf("window %d has %d tokens, over budget", i, w.Tokens)
		}
	}
	if !strings.Contains(windows[0].Text, "Paragraph 0 ") {
		t.Error("first window should start with the first paragraph")
	}
	if !strings.Contains(windows[len(windows)-1].Text, "Paragraph 39 ") {
		t.Error("last window should contain the last paragraph")
	}
}

func TestSplitOverlap(t *testing.T) {
	var paras []string
	for i := 0; i < 10; i++ {
		paras = append(paras, fmt.Sprintf("alpha%d beta%d gamma%d delta%d epsilon%d.", i, i, i, i, i))
	}
	c := New(Config{MaxTokens: 20, Overlap: 4})
	windows := c.Split(strings.Join(paras, "\n\n"))
	if len(windows) < 2 {
		t.Fatalf("got %d windows", len(windows))
	}
	for i := 1; i < len(windows); i++ {
		prev := strings.Fields(windows[i-1].Text)
		tail := prev[len(prev)-1]
		if !strings.HasPrefix(windows[i].Text, tail) && !strings.Contains(windows[i].Text, tail) {
			t.Errorf("window %d does not repeat tail %q of window %d", i, tail, i-1)
		}
	}
}

func TestSplitOversizedSentence(t *testing.T) {
	text := strings.Repeat("word ", 500)
	c := New(Config{MaxTokens: 50, Overlap: 5})
	windows := c.Split(text)
	if len(windows) < 10 {
		t.Fatalf("got %d windows, want the run-on text cut at word boundaries", len(windows))
	}
	for _, w := range windows {
		if w.Tokens > 50 {
			t.Errorf("window has %d tokens, over budget", w.Tokens)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"one", 2},
		{"one two three four five six seven eight nine ten", 13},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClauseNumber(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{"1.2 Payment terms", "1.2", true},
		{"  3.1.4. Indemnity", "3.1.4", true},
		{"4. Termination", "4", true},
		{"5) Confidentiality", "5", true},
		{"Section 7 Governing Law", "7", true},
		{"ARTICLE IV - Term", "IV", true},
		{"Clause 2.1 Fees", "2.1", true},
		{"2024 was a good year", "", false},
		{"The parties agree", "", false},
	}
	for _, tt := range tests {
		got, ok := ClauseNumber(tt.line)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ClauseNumber(%q) = %q, %v; want %q, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSplitByClauses(t *testing.T) {
	text := "MASTER SERVICES AGREEMENT\nbetween Acme and Beta\n1. Services\nBeta provides services.\n2. Fees\nAcme pays fees.\n2.1 Late fees apply."
	parts := SplitByClauses(text)
	want := []string{
		"MASTER SERVICES AGREEMENT\nbetween Acme and Beta",
		"1. Services\nBeta provides services.",
		"2. Fees\nAcme pays fees.",
		"2.1 Late fees apply.",
	}
	if len(parts) != len(want) {
		t.Fatalf("got %d parts: %q", len(parts), parts)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Errorf("part %d = %q, want %q", i, parts[i], want[i])
		}
	}

	if got := SplitByClauses("no numbered provisions here"); len(got) != 1 {
		t.Errorf("got %d parts, want 1", len(got))
	}
}
