// Package graphsink exposes extracted contracts as linked graph records:
// a stable JSON-lines encoding for external loaders and a Neo4j writer.
package graphsink

import (
	"bufio"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/brunobiangulo/contractgraph/contract"
)

// Record is one contract in sink form. Parties, their locations and
// clauses are separate linked sub-records carrying stable keys, so a graph
// loader can MERGE them idempotently.
type Record struct {
	Contract ContractNode `json:"contract"`
	Parties  []PartyNode  `json:"parties"`
	Clauses  []ClauseNode `json:"clauses"`
}

// ContractNode holds the scalar fields of a contract.
type ContractNode struct {
	ID               string           `json:"id"`
	Summary          string           `json:"summary"`
	ContractType     *string          `json:"contract_type"`
	EffectiveDate    *string          `json:"effective_date"`
	EndDate          *string          `json:"end_date"`
	Duration         *string          `json:"duration"`
	TotalAmount      *contract.Amount `json:"total_amount"`
	GoverningLaw     *string          `json:"governing_law"`
	Scope            *string          `json:"scope"`
	Embedding        []float32        `json:"embedding,omitempty"`
	EmbeddingVersion string           `json:"embedding_version,omitempty"`
}

// PartyNode is an organization as a party to one contract. Organizations
// are not resolved across contracts, so the key is scoped to the contract.
type PartyNode struct {
	Key      string        `json:"key"`
	Index    int           `json:"index"`
	Name     string        `json:"name"`
	Role     *string       `json:"role"`
	Location *LocationNode `json:"location"`
}

// LocationNode is a postal location. Identical locations share a key.
type LocationNode struct {
	Key     string  `json:"key"`
	Address *string `json:"address"`
	City    *string `json:"city"`
	State   *string `json:"state"`
	Country *string `json:"country"`
}

// ClauseNode is a clause owned by one contract. Index is the clause's
// order in the contract; Position is the position reported by extraction.
type ClauseNode struct {
	Key      string `json:"key"`
	Index    int    `json:"index"`
	Type     string `json:"type"`
	Text     string `json:"text"`
	Position *int   `json:"position"`
}

// FromContract converts c to its sink record.
func FromContract(c *contract.Contract) *Record {
	c = c.Clone()
	r := &Record{
		Contract: ContractNode{
			ID:               c.ID,
			Summary:          c.Summary,
			ContractType:     c.ContractType,
			EffectiveDate:    c.EffectiveDate,
			EndDate:          c.EndDate,
			Duration:         c.Duration,
			TotalAmount:      c.TotalAmount,
			GoverningLaw:     c.GoverningLaw,
			Scope:            c.Scope,
			Embedding:        c.Embedding,
			EmbeddingVersion: c.EmbeddingVersion,
		},
		Parties: make([]PartyNode, len(c.Parties)),
		Clauses: make([]ClauseNode, len(c.Clauses)),
	}
	for i, p := range c.Parties {
		r.Parties[i] = PartyNode{
			Key:   fmt.Sprintf("%s/party/%d", c.ID, i),
			Index: i,
			Name:  p.Name,
			Role:  p.Role,
		}
		if l := p.Location; l != nil {
			r.Parties[i].Location = &LocationNode{
				Key:     locationKey(l),
				Address: l.Address,
				City:    l.City,
				State:   l.State,
				Country: l.Country,
			}
		}
	}
	for i, cl := range c.Clauses {
		r.Clauses[i] = ClauseNode{
			Key:      fmt.Sprintf("%s/clause/%d", c.ID, i),
			Index:    i,
			Type:     cl.Type,
			Text:     cl.Text,
			Position: cl.Position,
		}
	}
	return r
}

// FromContracts converts contracts to records ordered by identifier.
func FromContracts(cs []*contract.Contract) []*Record {
	out := make([]*Record, len(cs))
	for i, c := range cs {
		out[i] = FromContract(c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Contract.ID < out[j].Contract.ID })
	return out
}

// ToContract rebuilds the contract. Parties and clauses are ordered by
// Index and are never nil.
func (r *Record) ToContract() *contract.Contract {
	n := r.Contract
	c := &contract.Contract{
		ID:               n.ID,
		Summary:          n.Summary,
		ContractType:     n.ContractType,
		EffectiveDate:    n.EffectiveDate,
		EndDate:          n.EndDate,
		Duration:         n.Duration,
		TotalAmount:      n.TotalAmount,
		GoverningLaw:     n.GoverningLaw,
		Scope:            n.Scope,
		Embedding:        n.Embedding,
		EmbeddingVersion: n.EmbeddingVersion,
		Parties:          make([]contract.Organization, 0, len(r.Parties)),
		Clauses:          make([]contract.Clause, 0, len(r.Clauses)),
	}

	parties := append([]PartyNode(nil), r.Parties...)
	sort.SliceStable(parties, func(i, j int) bool { return parties[i].Index < parties[j].Index })
	for _, p := range parties {
		org := contract.Organization{Name: p.Name, Role: p.Role}
		if l := p.Location; l != nil {
			org.Location = &contract.Location{
				Address: l.Address, City: l.City, State: l.State, Country: l.Country,
			}
		}
		c.Parties = append(c.Parties, org)
	}

	clauses := append([]ClauseNode(nil), r.Clauses...)
	sort.SliceStable(clauses, func(i, j int) bool { return clauses[i].Index < clauses[j].Index })
	for _, cl := range clauses {
		c.Clauses = append(c.Clauses, contract.Clause{Type: cl.Type, Text: cl.Text, Position: cl.Position})
	}
	return c.Clone()
}

func locationKey(l *contract.Location) string {
	parts := []string{
		contract.Deref(l.Address), contract.Deref(l.City),
		contract.Deref(l.State), contract.Deref(l.Country),
	}
	h := sha1.Sum([]byte(strings.ToLower(strings.Join(parts, "\x1f"))))
	return "loc:" + hex.EncodeToString(h[:8])
}

// Encode writes records as JSON lines, one record per line.
func Encode(w io.Writer, records []*Record) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding record %s: %w", r.Contract.ID, err)
		}
	}
	return nil
}

// Decode reads JSON-lines records written by Encode. Blank lines are
// skipped.
func Decode(rd io.Reader) ([]*Record, error) {
	br := bufio.NewReader(rd)
	var out []*Record
	for line := 1; ; line++ {
		b, err := br.ReadBytes('\n')
		if len(strings.TrimSpace(string(b))) > 0 {
			var r Record
			if uerr := json.Unmarshal(b, &r); uerr != nil {
				return nil, fmt.Errorf("line %d: %w", line, uerr)
			}
			out = append(out, &r)
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
