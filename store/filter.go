package store

import (
	"strings"
	"time"

	"github.com/brunobiangulo/contractgraph/contract"
)

// Predicate selects contracts for Filter and NearestK.
type Predicate func(*contract.Contract) bool

// And matches contracts accepted by every non-nil predicate.
func And(preds ...Predicate) Predicate {
	return func(c *contract.Contract) bool {
		for _, p := range preds {
			if p != nil && !p(c) {
				return false
			}
		}
		return true
	}
}

// OfType matches the contract type, ignoring case.
func OfType(t string) Predicate {
	t = strings.TrimSpace(t)
	return func(c *contract.Contract) bool {
		return c.ContractType != nil && strings.EqualFold(strings.TrimSpace(*c.ContractType), t)
	}
}

// GovernedBy matches contracts whose governing law mentions jurisdiction,
// so "California" matches "State of California".
func GovernedBy(jurisdiction string) Predicate {
	j := strings.ToLower(strings.TrimSpace(jurisdiction))
	return func(c *contract.Contract) bool {
		return c.GoverningLaw != nil && j != "" && strings.Contains(strings.ToLower(*c.GoverningLaw), j)
	}
}

// PartyContains matches contracts with a party whose name contains sub,
// ignoring case.
func PartyContains(sub string) Predicate {
	sub = strings.ToLower(strings.TrimSpace(sub))
	return func(c *contract.Contract) bool {
		if sub == "" {
			return false
		}
		for _, p := range c.Parties {
			if strings.Contains(strings.ToLower(p.Name), sub) {
				return true
			}
		}
		return false
	}
}

// EffectiveBetween matches contracts whose effective date lies in
// [from, to]. A zero bound is open. Contracts without an effective date
// never match.
func EffectiveBetween(from, to time.Time) Predicate {
	return func(c *contract.Contract) bool {
		d, ok := c.Effective()
		if !ok {
			return false
		}
		return inRange(d, from, to)
	}
}

// ActiveBetween matches contracts whose term overlaps [from, to]. A missing
// end date is treated as open-ended.
func ActiveBetween(from, to time.Time) Predicate {
	return func(c *contract.Contract) bool {
		start, ok := c.Effective()
		if !ok {
			return false
		}
		if !to.IsZero() && start.After(to) {
			return false
		}
		if end, ok := c.End(); ok && !from.IsZero() && end.Before(from) {
			return false
		}
		return true
	}
}

func inRange(d, from, to time.Time) bool {
	if !from.IsZero() && d.Before(from) {
		return false
	}
	if !to.IsZero() && d.After(to) {
		return false
	}
	return true
}

// TypeContains matches contracts whose type mentions sub, ignoring case,
// so "supply" matches "Supply Agreement".
func TypeContains(sub string) Predicate {
	sub = strings.ToLower(strings.TrimSpace(sub))
	return func(c *contract.Contract) bool {
		return c.ContractType != nil && sub != "" && strings.Contains(strings.ToLower(*c.ContractType), sub)
	}
}
