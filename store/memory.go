// Package store holds the extracted corpus: an in-process index answering
// vector and structured queries, and an optional SQLite snapshot.
package store

import (
	"math"
	"sort"
	"sync"

	"github.com/brunobiangulo/contractgraph/contract"
)

// Scored is a contract paired with its cosine similarity to a query.
type Scored struct {
	Contract *contract.Contract
	Score    float64
}

// Memory is an in-process corpus index keyed by contract identifier.
// Writers are serialized; Add with an existing identifier replaces the
// previous record. Stored records are copies, so callers may keep mutating
// what they pass in or get back.
type Memory struct {
	mu        sync.RWMutex
	contracts map[string]*contract.Contract
}

// NewMemory creates an empty index.
func NewMemory() *Memory {
	return &Memory{contracts: make(map[string]*contract.Contract)}
}

// Add stores c, overwriting any contract with the same identifier.
func (m *Memory) Add(c *contract.Contract) {
	if c == nil || c.ID == "" {
		return
	}
	cp := c.Clone()
	m.mu.Lock()
	m.contracts[cp.ID] = cp
	m.mu.Unlock()
}

// Get returns the contract with the given identifier.
func (m *Memory) Get(id string) (*contract.Contract, bool) {
	m.mu.RLock()
	c, ok := m.contracts[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Len returns the number of stored contracts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.contracts)
}

// All returns every contract ordered by identifier.
func (m *Memory) All() []*contract.Contract {
	return m.Filter(nil)
}

// Filter returns the contracts matching keep, ordered by identifier. A nil
// predicate matches everything.
func (m *Memory) Filter(keep Predicate) []*contract.Contract {
	m.mu.RLock()
	out := make([]*contract.Contract, 0, len(m.contracts))
	for _, c := range m.contracts {
		if keep == nil || keep(c) {
			out = append(out, c.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NearestK returns up to k contracts most similar to q. Only contracts
// whose embedding carries version and has the same dimension as q are
// compared; keep, if non-nil, narrows the candidates further. Results are
// ordered by score, then most recent effective date, then identifier.
func (m *Memory) NearestK(q []float32, version string, k int, keep Predicate) []Scored {
	if k <= 0 || len(q) == 0 {
		return nil
	}
	qn := norm(q)
	if qn == 0 {
		return nil
	}

	m.mu.RLock()
	scored := make([]Scored, 0, len(m.contracts))
	for _, c := range m.contracts {
		if !c.HasEmbedding() || c.EmbeddingVersion != version || len(c.Embedding) != len(q) {
			continue
		}
		if keep != nil && !keep(c) {
			continue
		}
		scored = append(scored, Scored{Contract: c, Score: cosine(q, qn, c.Embedding)})
	}
	m.mu.RUnlock()

	SortScored(scored)
	if len(scored) > k {
		scored = scored[:k]
	}
	for i := range scored {
		scored[i].Contract = scored[i].Contract.Clone()
	}
	return scored
}

// SortScored orders results by descending score. Equal scores prefer the
// most recent effective date (contracts without one sort last), then the
// lexically smaller identifier.
func SortScored(s []Scored) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		da, aok := a.Contract.Effective()
		db, bok := b.Contract.Effective()
		if aok != bok {
			return aok
		}
		if aok && !da.Equal(db) {
			return da.After(db)
		}
		return a.Contract.ID < b.Contract.ID
	})
}

func cosine(q []float32, qn float64, v []float32) float64 {
	vn := norm(v)
	if vn == 0 {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	return dot / (qn * vn)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
