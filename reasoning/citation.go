package reasoning

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	contractCiteRe = regexp.MustCompile(`\[(?i:contracts?)\s*:?\s*([^\]]+)\]`)
	parenCiteRe    = regexp.MustCompile(`\((?i:contract)\s+([^)\s,;]+)\)`)
	sourceCiteRe   = regexp.MustCompile(`\[(?i:source)\s*(\d+)\]`) // [Source 2], by position
	citeSplitRe    = regexp.MustCompile(`\s*(?:,|;|\band\b)\s*`)
)

// ExtractCitations returns the contract identifiers cited in answer, in
// order of first appearance. Identifiers matching a supplied contract
// (ignoring case) are returned in cited using the supplied spelling;
// anything else is returned in unknown.
func ExtractCitations(answer string, supplied []string) (cited, unknown []string) {
	byLower := make(map[string]string, len(supplied))
	for _, id := range supplied {
		byLower[strings.ToLower(id)] = id
	}

	type hit struct {
		pos int
		ref string
	}
	var hits []hit
	for _, m := range contractCiteRe.FindAllStringSubmatchIndex(answer, -1) {
		for _, ref := range citeSplitRe.Split(answer[m[2]:m[3]], -1) {
			hits = append(hits, hit{m[0], ref})
		}
	}
	for _, m := range parenCiteRe.FindAllStringSubmatchIndex(answer, -1) {
		hits = append(hits, hit{m[0], answer[m[2]:m[3]]})
	}
	for _, m := range sourceCiteRe.FindAllStringSubmatchIndex(answer, -1) {
		n, _ := strconv.Atoi(answer[m[2]:m[3]])
		if n >= 1 && n <= len(supplied) {
			hits = append(hits, hit{m[0], supplied[n-1]})
		} else {
			hits = append(hits, hit{m[0], "Source " + answer[m[2]:m[3]]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	cited, unknown = []string{}, nil
	seen := make(map[string]bool)
	for _, h := range hits {
		ref := strings.Trim(strings.TrimSpace(h.ref), `"'.`)
		if ref == "" {
			continue
		}
		id, ok := byLower[strings.ToLower(ref)]
		if !ok {
			id = ref
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if ok {
			cited = append(cited, id)
		} else {
			unknown = append(unknown, id)
		}
	}
	return cited, unknown
}
