package contractgraph

import (
	"strings"
	"unicode"

	"github.com/brunobiangulo/contractgraph/contract"
)

const snippetMaxLen = 300

// Source is a retrieved contract backing an answer.
type Source struct {
	ContractID   string   `json:"contract_id"`
	Score        float64  `json:"score"`
	ContractType string   `json:"contract_type,omitempty"`
	GoverningLaw string   `json:"governing_law,omitempty"`
	Parties      []string `json:"parties"`
	Cited        bool     `json:"cited"`
	// Snippet is the clause, or summary sentence, that best overlaps the
	// answer text.
	Snippet string `json:"snippet,omitempty"`
}

func newSource(c *contract.Contract, score float64, answerWords map[string]bool) Source {
	return Source{
		ContractID:   c.ID,
		Score:        score,
		ContractType: contract.Deref(c.ContractType),
		GoverningLaw: contract.Deref(c.GoverningLaw),
		Parties:      c.PartyNames(),
		Snippet:      contractSnippet(c, answerWords),
	}
}

// contractSnippet picks the clause with the largest word overlap with the
// answer and falls back to the best summary sentence. Returns "" when
// nothing overlaps.
func contractSnippet(c *contract.Contract, answerWords map[string]bool) string {
	if len(answerWords) == 0 {
		return ""
	}

	best, bestScore := "", 0
	for _, cl := range c.Clauses {
		if s := overlap(cl.Text, answerWords); s > bestScore {
			best, bestScore = cl.Text, s
		}
	}
	if bestScore == 0 {
		best = sentenceSnippet(c.Summary, answerWords)
	}
	return clip(best, snippetMaxLen)
}

// sentenceSnippet returns the best sentence of text, joined with its best
// adjacent sentence when both fit.
func sentenceSnippet(text string, answerWords map[string]bool) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	scores := make([]int, len(sentences))
	bestIdx := 0
	for i, s := range sentences {
		scores[i] = overlap(s, answerWords)
		if scores[i] > scores[bestIdx] {
			bestIdx = i
		}
	}
	if scores[bestIdx] == 0 {
		return ""
	}

	result := sentences[bestIdx]
	adj, adjScore := -1, 0
	for _, delta := range []int{1, -1} {
		i := bestIdx + delta
		if i >= 0 && i < len(sentences) && scores[i] > adjScore {
			adj, adjScore = i, scores[i]
		}
	}
	if adj >= 0 {
		combined := result + " " + sentences[adj]
		if adj < bestIdx {
			combined = sentences[adj] + " " + result
		}
		if len(combined) <= snippetMaxLen {
			result = combined
		}
	}
	return result
}

func overlap(text string, answerWords map[string]bool) int {
	n := 0
	for w := range significantWords(text) {
		if answerWords[w] {
			n++
		}
	}
	return n
}

// significantWords returns the set of lowercased words of at least four
// characters, excluding common stop words.
func significantWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) >= 4 && !stopWords[w] {
			words[w] = true
		}
	}
	return words
}

// splitSentences splits at . ? ! followed by whitespace or end of text.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		cur.WriteRune(r)
		if (r == '.' || r == '?' || r == '!') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(cur.String()); s != "" {
				sentences = append(sentences, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := strings.LastIndexByte(s[:n], ' ')
	if cut <= 0 {
		cut = n
	}
	return strings.TrimSpace(s[:cut]) + "..."
}

var stopWords = map[string]bool{
	"that": true, "this": true, "with": true, "from": true,
	"have": true, "been": true, "were": true, "they": true,
	"their": true, "will": true, "would": true, "could": true,
	"should": true, "about": true, "which": true, "there": true,
	"these": true, "those": true, "then": true, "than": true,
	"them": true, "what": true, "when": true, "where": true,
	"shall": true, "party": true, "parties": true, "contract": true,
	"agreement": true, "such": true, "only": true, "also": true,
	"into": true, "each": true, "does": true, "other": true,
	"being": true, "same": true, "both": true, "between": true,
}
