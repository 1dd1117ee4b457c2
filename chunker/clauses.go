package chunker

import (
	"regexp"
	"strings"
)

// clauseHeadRe matches the start of a numbered provision: "1.2 ", "3. ",
// "4) ", "Section 7", "Article IV", "Clause 2.1".
var clauseHeadRe = regexp.MustCompile(
	`(?i)^(?:(?:section|article|clause)\s+(\d+(?:\.\d+)*|[ivxlc]+)\b|(\d+(?:\.\d+)+)\.?\s|(\d{1,3})[.)]\s)`,
)

// ClauseNumber returns the number of the provision that line starts, if any.
func ClauseNumber(line string) (string, bool) {
	m := clauseHeadRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	for _, g := range m[1:] {
		if g != "" {
			return g, true
		}
	}
	return "", false
}

// clauseStarts returns the byte offsets of lines that begin a provision.
func clauseStarts(text string) []int {
	var starts []int
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		if _, ok := ClauseNumber(line); ok {
			starts = append(starts, offset)
		}
		offset += len(line) + 1
	}
	return starts
}

// SplitByClauses splits text so that each part after the first starts with
// a provision heading. A preamble before the first provision is returned as
// its own part. Text without provisions is returned whole.
func SplitByClauses(text string) []string {
	starts := clauseStarts(text)
	if len(starts) == 0 {
		return []string{text}
	}

	var parts []string
	if pre := strings.TrimSpace(text[:starts[0]]); pre != "" {
		parts = append(parts, pre)
	}
	for i, s := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if part := strings.TrimSpace(text[s:end]); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
