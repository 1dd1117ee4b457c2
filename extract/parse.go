package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/brunobiangulo/contractgraph/contract"
)

// codeBlockRe strips markdown code fences from model output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSON finds the JSON object in a model response, tolerating code
// fences and prose before or after it.
func extractJSON(raw string) (string, error) {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}
	raw = strings.TrimSpace(raw)

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}
	return "", fmt.Errorf("no JSON object found in response")
}

// candidate is the loosely typed shape models actually return. It accepts
// the common variations (numbers for years, strings for amounts, a location
// object for governing law, alternative key names) and is converted to a
// contract.Contract for validation.
type candidate struct {
	Summary       flexString      `json:"summary"`
	ContractType  flexString      `json:"contract_type"`
	Parties       []rawParty      `json:"parties"`
	EffectiveDate flexString      `json:"effective_date"`
	EndDate       flexString      `json:"end_date"`
	Duration      flexString      `json:"duration"`
	TotalAmount   *rawAmount      `json:"total_amount"`
	Currency      flexString      `json:"currency"`
	GoverningLaw  rawJurisdiction `json:"governing_law"`
	Scope         flexString      `json:"scope"`
	ContractScope flexString      `json:"contract_scope"`
	Clauses       []rawClause     `json:"clauses"`
}

type rawParty struct {
	Name     flexString   `json:"name"`
	Role     flexString   `json:"role"`
	Location *rawLocation `json:"location"`
}

type rawLocation struct {
	Address flexString `json:"address"`
	City    flexString `json:"city"`
	State   flexString `json:"state"`
	Country flexString `json:"country"`
}

type rawClause struct {
	Type       flexString `json:"type"`
	ClauseType flexString `json:"clause_type"`
	Text       flexString `json:"text"`
	Summary    flexString `json:"summary"`
}

// flexString accepts a JSON string, number or null.
type flexString struct {
	v *string
}

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		f.v = nil
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f.v = &s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string, number or null, got %s", string(b))
	}
	s := n.String()
	f.v = &s
	return nil
}

// rawAmount accepts {"currency": "USD", "value": 50000}, a bare number or a
// string such as "$50,000" or "50000 EUR".
type rawAmount struct {
	Currency string
	Value    *float64
}

var amountStringRe = regexp.MustCompile(`^\s*([^\d\s.,-]*)\s*([\d.,]+)\s*([A-Za-z]{3})?\s*$`)

func (a *rawAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		return nil
	case b[0] == '{':
		var obj struct {
			Currency flexString `json:"currency"`
			Value    json.Number `json:"value"`
			Amount   json.Number `json:"amount"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return fmt.Errorf("total_amount: %w", err)
		}
		a.Currency = contract.Deref(obj.Currency.v)
		num := obj.Value
		if num == "" {
			num = obj.Amount
		}
		if num != "" {
			v, err := num.Float64()
			if err != nil {
				return fmt.Errorf("total_amount.value: %w", err)
			}
			a.Value = &v
		}
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		m := amountStringRe.FindStringSubmatch(s)
		if m == nil {
			return fmt.Errorf("total_amount: cannot read %q", s)
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
		if err != nil {
			return fmt.Errorf("total_amount: cannot read %q", s)
		}
		a.Value = &v
		a.Currency = m[1]
		if m[3] != "" {
			a.Currency = m[3]
		}
		return nil
	default:
		var v float64
		if err := json.Unmarshal(b, &v); err != nil {
			return fmt.Errorf("total_amount: %w", err)
		}
		a.Value = &v
		return nil
	}
}

// rawJurisdiction accepts a string or a location object.
type rawJurisdiction struct {
	v *string
}

func (j *rawJurisdiction) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var loc rawLocation
		if err := json.Unmarshal(b, &loc); err != nil {
			return fmt.Errorf("governing_law: %w", err)
		}
		for _, s := range []*string{loc.State.v, loc.Country.v, loc.City.v} {
			if s != nil && strings.TrimSpace(*s) != "" {
				j.v = s
				return nil
			}
		}
		return nil
	}
	var f flexString
	if err := f.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("governing_law: %w", err)
	}
	j.v = f.v
	return nil
}

// parseCandidate decodes a model response into a contract with the given
// identifier. The result is normalized but not validated.
func parseCandidate(raw, id string) (*contract.Contract, error) {
	js, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var cand candidate
	if err := json.Unmarshal([]byte(js), &cand); err != nil {
		return nil, fmt.Errorf("response is not valid JSON for the contract fields: %w", err)
	}

	c := &contract.Contract{
		ID:            id,
		Summary:       contract.Deref(cand.Summary.v),
		ContractType:  cand.ContractType.v,
		EffectiveDate: cand.EffectiveDate.v,
		EndDate:       cand.EndDate.v,
		Duration:      cand.Duration.v,
		GoverningLaw:  cand.GoverningLaw.v,
		Scope:         cand.Scope.v,
	}
	if c.Scope == nil {
		c.Scope = cand.ContractScope.v
	}

	if a := cand.TotalAmount; a != nil && (a.Value != nil || a.Currency != "") {
		amt := &contract.Amount{Currency: a.Currency}
		if amt.Currency == "" {
			amt.Currency = contract.Deref(cand.Currency.v)
		}
		if a.Value != nil {
			amt.Value = *a.Value
		} else {
			amt.Value = math.NaN() // currency without a value; reported by validation
		}
		c.TotalAmount = amt
	}

	for _, p := range cand.Parties {
		org := contract.Organization{
			Name: contract.Deref(p.Name.v),
			Role: p.Role.v,
		}
		if p.Location != nil {
			org.Location = &contract.Location{
				Address: p.Location.Address.v,
				City:    p.Location.City.v,
				State:   p.Location.State.v,
				Country: p.Location.Country.v,
			}
		}
		c.Parties = append(c.Parties, org)
	}

	for _, rc := range cand.Clauses {
		cl := contract.Clause{
			Type: contract.Deref(rc.Type.v),
			Text: contract.Deref(rc.Text.v),
		}
		if cl.Type == "" {
			cl.Type = contract.Deref(rc.ClauseType.v)
		}
		if cl.Text == "" {
			cl.Text = contract.Deref(rc.Summary.v)
		}
		c.Clauses = append(c.Clauses, cl)
	}

	c.Normalize()
	return c, nil
}
