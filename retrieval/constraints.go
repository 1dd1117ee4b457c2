package retrieval

import (
	"regexp"
	"strings"
	"time"

	"github.com/brunobiangulo/contractgraph/contract"
	"github.com/brunobiangulo/contractgraph/store"
)

// Constraints are structured filters recognized in a question. Zero fields
// are unconstrained.
type Constraints struct {
	Jurisdiction string    `json:"jurisdiction,omitempty"`
	ContractType string    `json:"contract_type,omitempty"`
	Party        string    `json:"party,omitempty"`
	From         time.Time `json:"from,omitzero"`
	To           time.Time `json:"to,omitzero"`
	// Active applies the date range to the contract term instead of the
	// effective date.
	Active bool `json:"active,omitempty"`
}

// Empty reports whether no constraint was recognized.
func (c Constraints) Empty() bool {
	return c.Jurisdiction == "" && c.ContractType == "" && c.Party == "" &&
		c.From.IsZero() && c.To.IsZero()
}

// Predicate returns the store filter for c, or nil when c is empty.
func (c Constraints) Predicate() store.Predicate {
	if c.Empty() {
		return nil
	}
	var preds []store.Predicate
	if c.Jurisdiction != "" {
		preds = append(preds, store.GovernedBy(c.Jurisdiction))
	}
	if c.ContractType != "" {
		preds = append(preds, store.TypeContains(c.ContractType))
	}
	if c.Party != "" {
		preds = append(preds, store.PartyContains(c.Party))
	}
	if !c.From.IsZero() || !c.To.IsZero() {
		if c.Active {
			preds = append(preds, store.ActiveBetween(c.From, c.To))
		} else {
			preds = append(preds, store.EffectiveBetween(c.From, c.To))
		}
	}
	return store.And(preds...)
}

const (
	properName = `([A-Z][A-Za-z'.-]*(?:\s+[A-Z][A-Za-z'.-]*)*)`
	orgName    = `([A-Z][\w&'.-]*(?:\s+(?:[A-Z][\w&'.-]*|&))*)`
	dateExpr   = `(\d{4}-\d{2}-\d{2}|\d{4})`
	sovereign  = `(?i:(?:state|commonwealth|republic|kingdom|province)\s+of\s+)?`
)

var (
	jurisdictionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?i:governed by)\s+(?i:the\s+)?(?i:laws?\s+of\s+)?(?i:the\s+)?` + sovereign + properName),
		// "under", "subject to" and "pursuant to" name a jurisdiction only
		// with a law cue; otherwise they usually name the instrument itself.
		regexp.MustCompile(`\b(?i:under|subject to|pursuant to)\s+(?i:the\s+)?(?i:laws?\s+of\s+)(?i:the\s+)?` + sovereign + properName),
		regexp.MustCompile(properName + `\s+(?i:law|laws|jurisdiction)\b`),
	}

	partyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?i:with|involving|between|signed by|party to|counterparty)\s+` + orgName),
		regexp.MustCompile(`"([^"]+)"`),
	}

	rangeRe  = regexp.MustCompile(`(?i)\bbetween\s+` + dateExpr + `\s+and\s+` + dateExpr + `\b`)
	afterRe  = regexp.MustCompile(`(?i)\bafter\s+` + dateExpr + `\b`)
	sinceRe  = regexp.MustCompile(`(?i)\b(?:since|from)\s+` + dateExpr + `\b`)
	beforeRe = regexp.MustCompile(`(?i)\b(?:before|prior to)\s+` + dateExpr + `\b`)
	untilRe  = regexp.MustCompile(`(?i)\b(?:until|through|up to)\s+` + dateExpr + `\b`)
	signedRe = regexp.MustCompile(`(?i)\b(?:signed|effective|executed|dated|entered into|started|starting)\s+(?:in|on|during)\s+` + dateExpr + `\b`)
	activeRe = regexp.MustCompile(`(?i)\b(?:in|during)\s+` + dateExpr + `\b`)

	typePatterns = compileTypePatterns(contract.ContractTypes)
)

type typePattern struct {
	base string
	re   *regexp.Regexp
}

// compileTypePatterns matches each known type, without a trailing
// "Agreement", when followed by a noun such as "agreement" or "contracts".
func compileTypePatterns(types []string) []typePattern {
	out := make([]typePattern, 0, len(types))
	for _, t := range types {
		base := strings.ToLower(strings.TrimSuffix(t, " Agreement"))
		out = append(out, typePattern{
			base: base,
			re:   regexp.MustCompile(`\b` + regexp.QuoteMeta(base) + `\s+(?:agreements?|contracts?|deals?)\b`),
		})
	}
	return out
}

// words that look like names at the start of a question but never name a
// jurisdiction or party
var notNames = map[string]bool{
	"governing": true, "applicable": true, "contract": true, "contracts": true,
	"agreement": true, "agreements": true, "state": true, "law": true,
	"federal": true, "local": true, "which": true, "what": true, "list": true,
	"show": true, "find": true,
}

// ParseConstraints detects jurisdiction, contract type, party and date
// constraints in a question by pattern matching. Anything it cannot
// recognize is left to vector similarity.
func ParseConstraints(question string) Constraints {
	var c Constraints
	c.Jurisdiction = firstName(jurisdictionPatterns, question, isJurisdiction)
	c.ContractType = detectContractType(question)

	if p := firstName(partyPatterns, question, nil); p != "" && !strings.EqualFold(p, c.Jurisdiction) {
		c.Party = p
	}

	parseDates(question, &c)
	return c
}

func firstName(patterns []*regexp.Regexp, s string, accept func(string) bool) string {
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			name := cleanName(m[1])
			if name != "" && (accept == nil || accept(name)) {
				return name
			}
		}
	}
	return ""
}

// instrumentWords end the names of documents, not of places.
var instrumentWords = map[string]bool{
	"agreement": true, "agreements": true, "contract": true, "contracts": true,
	"lease": true, "amendment": true, "addendum": true, "schedule": true,
	"order": true, "policy": true, "terms": true, "section": true, "clause": true,
}

// isJurisdiction rejects captured names that end like a document title,
// such as "Acme Supply Agreement".
func isJurisdiction(name string) bool {
	words := strings.Fields(name)
	return !instrumentWords[strings.ToLower(words[len(words)-1])]
}

// cleanName drops leading stop words, trailing "law" words and
// punctuation from a captured phrase.
func cleanName(s string) string {
	words := strings.Fields(strings.Trim(s, " .,;:!?"))
	for len(words) > 0 && (isStopWord(words[0]) || notNames[strings.ToLower(words[0])]) {
		words = words[1:]
	}
	for len(words) > 0 {
		last := strings.ToLower(words[len(words)-1])
		if last != "law" && last != "laws" && last != "jurisdiction" && !isStopWord(last) {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Trim(strings.Join(words, " "), " .,;:!?")
}

func detectContractType(question string) string {
	lower := strings.ToLower(question)
	for _, t := range typePatterns {
		if t.re.MatchString(lower) {
			return t.base
		}
	}
	return ""
}

func parseDates(q string, c *Constraints) {
	if m := rangeRe.FindStringSubmatch(q); m != nil {
		from, _, ok1 := dateBounds(m[1])
		_, to, ok2 := dateBounds(m[2])
		if ok1 && ok2 {
			c.From, c.To = from, to
			return
		}
	}
	if m := signedRe.FindStringSubmatch(q); m != nil {
		if from, to, ok := dateBounds(m[1]); ok {
			c.From, c.To = from, to
			return
		}
	}

	found := false
	if m := afterRe.FindStringSubmatch(q); m != nil {
		if _, end, ok := dateBounds(m[1]); ok {
			c.From, found = end.AddDate(0, 0, 1), true
		}
	} else if m := sinceRe.FindStringSubmatch(q); m != nil {
		if start, _, ok := dateBounds(m[1]); ok {
			c.From, found = start, true
		}
	}
	if m := beforeRe.FindStringSubmatch(q); m != nil {
		if start, _, ok := dateBounds(m[1]); ok {
			c.To, found = start.AddDate(0, 0, -1), true
		}
	} else if m := untilRe.FindStringSubmatch(q); m != nil {
		if _, end, ok := dateBounds(m[1]); ok {
			c.To, found = end, true
		}
	}
	if found {
		return
	}

	if m := activeRe.FindStringSubmatch(q); m != nil {
		if from, to, ok := dateBounds(m[1]); ok {
			c.From, c.To, c.Active = from, to, true
		}
	}
}

// dateBounds returns the first and last day covered by a year or a
// yyyy-MM-dd date.
func dateBounds(s string) (time.Time, time.Time, bool) {
	if len(s) == 4 {
		start, err := time.Parse("2006", s)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		return start, start.AddDate(1, 0, -1), true
	}
	d, err := time.Parse(contract.DateLayout, s)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return d, d, true
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"do": true, "does": true, "did": true, "will": true, "would": true,
	"this": true, "that": true, "these": true, "those": true, "who": true,
	"where": true, "when": true, "how": true, "why": true, "not": true,
	"all": true, "any": true, "our": true, "their": true, "its": true,
}

func isStopWord(w string) bool {
	return stopWords[strings.ToLower(w)]
}
