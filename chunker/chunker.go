// Package chunker splits contract text into overlapping windows that fit a
// model's context budget, preferring numbered-clause and paragraph
// boundaries over arbitrary cuts.
package chunker

import (
	"math"
	"strings"
)

// Config controls the window size.
type Config struct {
	MaxTokens int // Maximum estimated tokens per window.
	Overlap   int // Tokens of trailing text repeated at the start of the next window.
}

// Window is one slice of the source text.
type Window struct {
	Index  int
	Text   string
	Tokens int
}

// Chunker splits text into windows.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration.
// Zero-value fields are replaced with sensible defaults.
func New(cfg Config) *Chunker {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 3000
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap == 0 {
		cfg.Overlap = 200
	}
	if cfg.Overlap >= cfg.MaxTokens {
		cfg.Overlap = cfg.MaxTokens / 4
	}
	return &Chunker{cfg: cfg}
}

// Fits reports whether text fits in a single window.
func (c *Chunker) Fits(text string) bool {
	return EstimateTokens(text) <= c.cfg.MaxTokens
}

// Split breaks text into ordered windows. Text that fits the budget is
// returned as a single window. Consecutive windows share roughly
// cfg.Overlap tokens.
func (c *Chunker) Split(text string) []Window {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var fragments []string
	if c.Fits(text) {
		fragments = []string{text}
	} else {
		fragments = c.splitContent(text)
	}

	windows := make([]Window, len(fragments))
	for i, f := range fragments {
		windows[i] = Window{Index: i, Text: f, Tokens: EstimateTokens(f)}
	}
	return windows
}

// units splits text into the smallest blocks that should stay together:
// numbered clauses first, then paragraphs inside each clause.
func units(text string) []string {
	var out []string
	for _, part := range SplitByClauses(text) {
		out = append(out, splitParagraphs(part)...)
	}
	return out
}

// splitContent packs units into windows of at most MaxTokens, falling back
// to sentence and then word boundaries for oversized units.
func (c *Chunker) splitContent(text string) []string {
	var fragments []string
	var current strings.Builder
	currentTokens := 0
	overlapText := ""

	flush := func() {
		if current.Len() == 0 {
			return
		}
		fragments = append(fragments, strings.TrimSpace(current.String()))
		overlapText = extractOverlap(current.String(), c.cfg.Overlap)
		current.Reset()
		currentTokens = 0
	}

	for _, unit := range units(text) {
		unitTokens := EstimateTokens(unit)

		// A single unit larger than the budget is split by sentences.
		if unitTokens > c.cfg.MaxTokens {
			flush()
			sentenceFragments := c.splitBySentences(unit, overlapText)
			fragments = append(fragments, sentenceFragments...)
			if len(sentenceFragments) > 0 {
				overlapText = extractOverlap(sentenceFragments[len(sentenceFragments)-1], c.cfg.Overlap)
			}
			continue
		}

		if currentTokens+unitTokens > c.cfg.MaxTokens && current.Len() > 0 {
			flush()
			if overlapText != "" {
				current.WriteString(overlapText)
				current.WriteString("\n\n")
				currentTokens = EstimateTokens(overlapText)
			}
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(unit)
		currentTokens += unitTokens
	}
	flush()

	return fragments
}

// splitBySentences breaks a block into fragments at sentence boundaries,
// respecting MaxTokens and prepending overlap from the previous fragment.
// Sentences that alone exceed the budget are cut at word boundaries.
func (c *Chunker) splitBySentences(text string, initialOverlap string) []string {
	var fragments []string
	var current strings.Builder
	currentTokens := 0

	if initialOverlap != "" {
		current.WriteString(initialOverlap)
		current.WriteString(" ")
		currentTokens = EstimateTokens(initialOverlap)
	}

	var pieces []string
	for _, sent := range splitSentences(text) {
		if EstimateTokens(sent) > c.cfg.MaxTokens-c.cfg.Overlap {
			pieces = append(pieces, splitWords(sent, c.cfg.MaxTokens-c.cfg.Overlap)...)
			continue
		}
		pieces = append(pieces, sent)
	}

	for _, sent := range pieces {
		sentTokens := EstimateTokens(sent)

		if currentTokens+sentTokens > c.cfg.MaxTokens && current.Len() > 0 {
			fragments = append(fragments, strings.TrimSpace(current.String()))
			overlap := extractOverlap(current.String(), c.cfg.Overlap)
			current.Reset()
			currentTokens = 0
			if overlap != "" {
				current.WriteString(overlap)
				current.WriteString(" ")
				currentTokens = EstimateTokens(overlap)
			}
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
		currentTokens += sentTokens
	}

	if current.Len() > 0 {
		fragments = append(fragments, strings.TrimSpace(current.String()))
	}

	return fragments
}

// EstimateTokens approximates the token count of text using a simple
// word-based heuristic: tokens ~ words * 1.3.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}

// splitParagraphs splits text on blank-line boundaries.
func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences splits on period/question-mark/exclamation followed by
// whitespace or end of string.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				s := strings.TrimSpace(cur.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// splitWords cuts text into pieces of at most maxTokens estimated tokens.
func splitWords(text string, maxTokens int) []string {
	maxWords := int(float64(maxTokens) / 1.3)
	if maxWords < 1 {
		maxWords = 1
	}
	words := strings.Fields(text)
	var out []string
	for len(words) > 0 {
		n := min(maxWords, len(words))
		out = append(out, strings.Join(words[:n], " "))
		words = words[n:]
	}
	return out
}

// extractOverlap returns the trailing portion of text whose estimated
// token count is at most maxTokens.  It works at the word level.
func extractOverlap(text string, maxTokens int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	maxWords := int(float64(maxTokens) / 1.3)
	if maxWords > len(words) {
		maxWords = len(words)
	}
	if maxWords == 0 {
		return ""
	}
	return strings.Join(words[len(words)-maxWords:], " ")
}
