package eval

import (
	"strings"
	"unicode"
)

// normalizeText maps Unicode spaces and hyphens inserted by models to ASCII
// and strips zero-width characters so substring matching is reliable.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case r == '\u2010' || r == '\u2011' || r == '\u2012' || r == '\u2013' || r == '\u2014':
			b.WriteByte('-')
		case r == '\u200B' || r == '\u200C' || r == '\u200D' || r == '\uFEFF':
			// zero-width
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// precisionRecall compares retrieved identifiers with the expected set.
// With nothing expected, precision is 1 only when nothing was retrieved.
func precisionRecall(retrieved, expected []string) (precision, recall float64) {
	want := toSet(expected)
	if len(want) == 0 {
		if len(retrieved) == 0 {
			return 1, 1
		}
		return 0, 1
	}
	if len(retrieved) == 0 {
		return 0, 0
	}
	hits := 0
	for _, id := range dedupe(retrieved) {
		if want[id] {
			hits++
		}
	}
	return float64(hits) / float64(len(dedupe(retrieved))), float64(hits) / float64(len(want))
}

// citationPrecision is the share of cited identifiers that were expected.
func citationPrecision(citations, expected []string) float64 {
	if len(citations) == 0 {
		if len(expected) == 0 {
			return 1
		}
		return 0
	}
	want := toSet(expected)
	hits := 0
	for _, id := range citations {
		if want[id] {
			hits++
		}
	}
	return float64(hits) / float64(len(citations))
}

// factCoverage is the share of expected facts found in the answer.
func factCoverage(answer string, facts []string) float64 {
	if len(facts) == 0 {
		return 1
	}
	text := normalizeText(answer)
	found := 0
	for _, f := range facts {
		if strings.Contains(text, normalizeText(f)) {
			found++
		}
	}
	return float64(found) / float64(len(facts))
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
