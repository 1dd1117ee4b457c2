package reasoning

import "strings"

// estimateConfidence scores an answer from its citation accuracy, how many
// of the supplied contracts it uses, hedging language and length.
func estimateConfidence(answer string, v *validation, supplied int) float64 {
	if strings.TrimSpace(answer) == "" || supplied == 0 {
		return 0
	}

	accuracy := 0.5 // neutral when nothing is cited
	if total := len(v.cited) + len(v.unknown); total > 0 {
		accuracy = float64(len(v.cited)) / float64(total)
	}

	coverage := float64(len(v.cited)) / float64(min(supplied, 5))
	if coverage > 1 {
		coverage = 1
	}

	score := 0.45*accuracy + 0.3*coverage + 0.25*lengthScore(answer)

	lower := strings.ToLower(answer)
	for _, h := range []string{"might", "possibly", "unclear", "cannot determine", "not enough information"} {
		if strings.Contains(lower, h) {
			score -= 0.1
		}
	}
	if containsAny(lower, externalPhrases) {
		score -= 0.2
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func lengthScore(answer string) float64 {
	words := len(strings.Fields(answer))
	switch {
	case words < 5:
		return 0.3
	case words < 20:
		return 0.7
	case words < 400:
		return 1.0
	default:
		return 0.8
	}
}
