package reasoning

import (
	"strings"
)

// validation is the outcome of checking an answer against the contracts
// it was given.
type validation struct {
	cited   []string
	unknown []string
	issues  []string
}

func (v *validation) ok() bool { return len(v.issues) == 0 }

// phrases an answer uses when the contracts do not answer the question
var notFoundPhrases = []string{
	"do not contain", "does not contain", "no contract", "none of the contracts",
	"not mentioned", "not specified", "cannot be determined", "no information",
}

// phrases that signal knowledge from outside the supplied contracts
var externalPhrases = []string{
	"based on my knowledge", "it is commonly known", "generally speaking",
	"in most jurisdictions", "typically, contracts",
}

func validate(answer string, supplied []string) *validation {
	v := &validation{}
	v.cited, v.unknown = ExtractCitations(answer, supplied)
	lower := strings.ToLower(answer)

	if strings.TrimSpace(answer) == "" {
		v.issues = append(v.issues, "The answer is empty")
		return v
	}
	if len(v.unknown) > 0 {
		v.issues = append(v.issues,
			"The answer cites contracts that were not provided: "+strings.Join(v.unknown, ", "))
	}
	if len(v.cited) == 0 && !containsAny(lower, notFoundPhrases) {
		v.issues = append(v.issues,
			"The answer does not cite any provided contract as [Contract <id>]")
	}
	if containsAny(lower, externalPhrases) {
		v.issues = append(v.issues,
			"The answer appears to rely on knowledge outside the provided contracts")
	}
	return v
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
