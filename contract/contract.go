// Package contract defines the canonical record extracted from a legal
// contract and the rules a record must satisfy before it enters the corpus.
package contract

import (
	"time"
)

// DateLayout is the calendar date format used for every date field.
const DateLayout = "2006-01-02"

// Contract is the root record produced for one source document. Every field
// except ID and Summary is optional; a nil pointer means the source text did
// not state the value.
type Contract struct {
	ID            string         `json:"id"`
	Summary       string         `json:"summary"`
	ContractType  *string        `json:"contract_type"`
	Parties       []Organization `json:"parties"`
	EffectiveDate *string        `json:"effective_date"`
	EndDate       *string        `json:"end_date"`
	Duration      *string        `json:"duration"` // ISO-8601, e.g. P1Y6M
	TotalAmount   *Amount        `json:"total_amount"`
	GoverningLaw  *string        `json:"governing_law"`
	Scope         *string        `json:"scope"`
	Clauses       []Clause       `json:"clauses"`

	// Populated in a second pass by the embedder.
	Embedding        []float32 `json:"embedding,omitempty"`
	EmbeddingVersion string    `json:"embedding_version,omitempty"`
}

// Clause is a single provision of a contract. Clauses keep the order in
// which they appear in the source text.
type Clause struct {
	Type     string `json:"type"` // open vocabulary, see ClauseTypes
	Text     string `json:"text"`
	Position *int   `json:"position"`
}

// Organization is a party to a contract.
type Organization struct {
	Name     string    `json:"name"`
	Location *Location `json:"location"`
	Role     *string   `json:"role"` // provider, client, supplier, ...
}

// Location is a postal location. Country is an ISO 3166 alpha-2 code.
type Location struct {
	Address *string `json:"address"`
	City    *string `json:"city"`
	State   *string `json:"state"`
	Country *string `json:"country"`
}

// Amount is a monetary value. Currency is an ISO 4217 code after
// normalization.
type Amount struct {
	Currency string  `json:"currency"`
	Value    float64 `json:"value"`
}

// HasEmbedding reports whether a summary vector is attached.
func (c *Contract) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// Effective returns the parsed effective date.
func (c *Contract) Effective() (time.Time, bool) {
	return parseOptionalDate(c.EffectiveDate)
}

// End returns the parsed end date.
func (c *Contract) End() (time.Time, bool) {
	return parseOptionalDate(c.EndDate)
}

// PartyNames returns the names of all parties in order.
func (c *Contract) PartyNames() []string {
	names := make([]string, 0, len(c.Parties))
	for _, p := range c.Parties {
		names = append(names, p.Name)
	}
	return names
}

// Clone returns a deep copy of c.
func (c *Contract) Clone() *Contract {
	if c == nil {
		return nil
	}
	out := *c
	out.ContractType = cloneString(c.ContractType)
	out.EffectiveDate = cloneString(c.EffectiveDate)
	out.EndDate = cloneString(c.EndDate)
	out.Duration = cloneString(c.Duration)
	out.GoverningLaw = cloneString(c.GoverningLaw)
	out.Scope = cloneString(c.Scope)
	if c.TotalAmount != nil {
		a := *c.TotalAmount
		out.TotalAmount = &a
	}
	if c.Parties != nil {
		out.Parties = make([]Organization, len(c.Parties))
		for i, p := range c.Parties {
			out.Parties[i] = Organization{
				Name:     p.Name,
				Location: p.Location.clone(),
				Role:     cloneString(p.Role),
			}
		}
	}
	if c.Clauses != nil {
		out.Clauses = make([]Clause, len(c.Clauses))
		for i, cl := range c.Clauses {
			out.Clauses[i] = Clause{Type: cl.Type, Text: cl.Text}
			if cl.Position != nil {
				pos := *cl.Position
				out.Clauses[i].Position = &pos
			}
		}
	}
	if c.Embedding != nil {
		out.Embedding = append([]float32(nil), c.Embedding...)
	}
	return &out
}

func (l *Location) clone() *Location {
	if l == nil {
		return nil
	}
	return &Location{
		Address: cloneString(l.Address),
		City:    cloneString(l.City),
		State:   cloneString(l.State),
		Country: cloneString(l.Country),
	}
}

// IsEmpty reports whether no location field is set.
func (l *Location) IsEmpty() bool {
	return l == nil || (l.Address == nil && l.City == nil && l.State == nil && l.Country == nil)
}

// String is a convenience constructor for optional string fields.
func String(s string) *string { return &s }

// Int is a convenience constructor for optional int fields.
func Int(n int) *int { return &n }

// Deref returns the value of s or "" when s is nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func parseOptionalDate(s *string) (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, *s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
