package extract

import (
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/brunobiangulo/contractgraph/contract"
)

// nearDuplicateWords is the number of words per allowed word edit when two
// clause texts are compared.
const nearDuplicateWords = 20

// Merge combines per-window records of one document. Scalars keep the first
// non-null value in window order. Parties are united by name in order of
// first appearance, filling a missing role or location from later windows.
// Clauses are concatenated in window order, dropping exact or near-exact
// repeats of the previous window's clauses produced by window overlap, and
// renumbered by position.
func Merge(parts []*contract.Contract) *contract.Contract {
	var out *contract.Contract
	var prev []contract.Clause
	for _, p := range parts {
		if p == nil {
			continue
		}
		if out == nil {
			out = p.Clone()
			out.Clauses = nil
			out.Parties = nil
		}
		mergeScalars(out, p)
		out.Parties = mergeParties(out.Parties, p.Parties)
		out.Clauses = appendClauses(out.Clauses, prev, p.Clauses)
		prev = p.Clauses
	}
	if out == nil {
		return nil
	}
	for i := range out.Clauses {
		out.Clauses[i].Position = contract.Int(i)
	}
	if out.Clauses == nil {
		out.Clauses = []contract.Clause{}
	}
	return out
}

func mergeScalars(dst, src *contract.Contract) {
	if dst.Summary == "" {
		dst.Summary = src.Summary
	}
	firstString(&dst.ContractType, src.ContractType)
	mergeTerm(dst, src)
	firstString(&dst.Duration, src.Duration)
	firstString(&dst.GoverningLaw, src.GoverningLaw)
	firstString(&dst.Scope, src.Scope)
	if dst.TotalAmount == nil && src.TotalAmount != nil {
		a := *src.TotalAmount
		dst.TotalAmount = &a
	}
}

// mergeTerm fills missing effective and end dates from a later window
// unless the later date would end the contract before it starts. Each
// window is consistent on its own, so the earlier window's date is kept.
func mergeTerm(dst, src *contract.Contract) {
	if dst.EffectiveDate == nil && src.EffectiveDate != nil {
		if endsBefore(dst.EndDate, src.EffectiveDate) {
			dropConflict(dst, "effective_date", *src.EffectiveDate, "end_date", *dst.EndDate)
		} else {
			firstString(&dst.EffectiveDate, src.EffectiveDate)
		}
	}
	if dst.EndDate == nil && src.EndDate != nil {
		if endsBefore(src.EndDate, dst.EffectiveDate) {
			dropConflict(dst, "end_date", *src.EndDate, "effective_date", *dst.EffectiveDate)
		} else {
			firstString(&dst.EndDate, src.EndDate)
		}
	}
}

func endsBefore(end, start *string) bool {
	if end == nil || start == nil {
		return false
	}
	e, err1 := time.Parse(contract.DateLayout, *end)
	s, err2 := time.Parse(contract.DateLayout, *start)
	return err1 == nil && err2 == nil && e.Before(s)
}

func dropConflict(dst *contract.Contract, field, value, keptField, kept string) {
	slog.Warn("extract: dropping date from later window",
		"doc", dst.ID,
		"field", field,
		"value", value,
		"conflicts_with", keptField,
		"kept", kept,
	)
}

func firstString(dst **string, src *string) {
	if *dst == nil && src != nil {
		v := *src
		*dst = &v
	}
}

func mergeParties(dst, src []contract.Organization) []contract.Organization {
	index := make(map[string]int, len(dst))
	for i, p := range dst {
		index[partyKey(p.Name)] = i
	}
	for _, p := range src {
		key := partyKey(p.Name)
		if i, ok := index[key]; ok {
			if dst[i].Role == nil && p.Role != nil {
				r := *p.Role
				dst[i].Role = &r
			}
			if dst[i].Location == nil && p.Location != nil {
				loc := *p.Location
				dst[i].Location = &loc
			}
			continue
		}
		index[key] = len(dst)
		dst = append(dst, p)
	}
	return dst
}

func partyKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// appendClauses appends src to dst, dropping clauses that repeat one of the
// previous window's clauses. Only prev is consulted: repeats come from the
// window overlap, and identical wording elsewhere is a separate provision.
func appendClauses(dst, prev, src []contract.Clause) []contract.Clause {
	for _, c := range src {
		dup := false
		for _, seen := range prev {
			if nearDuplicate(seen.Text, c.Text) {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, c)
		}
	}
	return dst
}

// nearDuplicate reports whether two clause texts are the same word sequence
// up to case, punctuation, whitespace and an edit distance of one word in
// twenty.
func nearDuplicate(a, b string) bool {
	wa, wb := words(a), words(b)
	if len(wa) == 0 || len(wb) == 0 {
		return len(wa) == len(wb) && strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	limit := max(len(wa), len(wb)) / nearDuplicateWords
	if abs(len(wa)-len(wb)) > limit {
		return false
	}
	return wordDistance(wa, wb) <= limit
}

// wordDistance is the Levenshtein distance between two token sequences.
func wordDistance(a, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
