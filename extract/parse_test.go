package extract

import (
	"testing"

	"github.com/brunobiangulo/contractgraph/contract"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"fence without tag", "```\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around", `Sure! {"a":{"b":2}} Hope this helps.`, `{"a":{"b":2}}`, false},
		{"no object", "I could not find anything.", "", true},
		{"reversed braces", "} nothing {", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseCandidateVariants(t *testing.T) {
	raw := `{
		"summary": "  Licence of software.  ",
		"contract_type": "License Agreement",
		"effective_date": 2015,
		"duration": "p2y",
		"total_amount": "€12,500.75",
		"governing_law": {"address": null, "city": "Paris", "state": null, "country": "FR"},
		"contract_scope": "Worldwide non-exclusive licence.",
		"parties": [{"name": "Gamma SA", "role": "licensor", "location": {"city": "Paris", "country": "fr"}}],
		"clauses": [{"clause_type": "Intellectual Property", "summary": "Gamma SA keeps ownership."}]
	}`

	c, err := parseCandidate(raw, "lic-1")
	if err != nil {
		t.Fatalf("parseCandidate: %v", err)
	}
	if c.ID != "lic-1" || c.Summary != "Licence of software." {
		t.Errorf("id/summary = %q/%q", c.ID, c.Summary)
	}
	if contract.Deref(c.EffectiveDate) != "2015-01-01" {
		t.Errorf("effective date = %v", c.EffectiveDate)
	}
	if contract.Deref(c.EndDate) != "2017-01-01" {
		t.Errorf("end date = %v, want inferred", c.EndDate)
	}
	if c.TotalAmount == nil || c.TotalAmount.Currency != "EUR" || c.TotalAmount.Value != 12500.75 {
		t.Errorf("amount = %+v", c.TotalAmount)
	}
	if contract.Deref(c.GoverningLaw) != "FR" {
		t.Errorf("governing law = %v", c.GoverningLaw)
	}
	if contract.Deref(c.Scope) != "Worldwide non-exclusive licence." {
		t.Errorf("scope = %v", c.Scope)
	}
	if contract.Deref(c.Parties[0].Location.Country) != "FR" {
		t.Errorf("party location = %+v", c.Parties[0].Location)
	}
	if c.Clauses[0].Type != "Intellectual Property" || c.Clauses[0].Text != "Gamma SA keeps ownership." {
		t.Errorf("clause = %+v", c.Clauses[0])
	}
	if _, err := contract.Validate(c); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseAmountForms(t *testing.T) {
	tests := []struct {
		raw      string
		currency string
		value    float64
	}{
		{`{"summary":"s","total_amount":{"currency":"usd","value":50000}}`, "USD", 50000},
		{`{"summary":"s","total_amount":{"currency":"$","amount":10}}`, "USD", 10},
		{`{"summary":"s","total_amount":"$50,000"}`, "USD", 50000},
		{`{"summary":"s","total_amount":"50000 GBP"}`, "GBP", 50000},
		{`{"summary":"s","total_amount":750,"currency":"JPY"}`, "JPY", 750},
	}
	for _, tt := range tests {
		c, err := parseCandidate(tt.raw, "x")
		if err != nil {
			t.Fatalf("parseCandidate(%s): %v", tt.raw, err)
		}
		if c.TotalAmount == nil || c.TotalAmount.Currency != tt.currency || c.TotalAmount.Value != tt.value {
			t.Errorf("%s: amount = %+v", tt.raw, c.TotalAmount)
		}
	}
}

func TestParseGoverningLawPreference(t *testing.T) {
	c, err := parseCandidate(`{"summary":"s","governing_law":{"state":"California","country":"US"}}`, "x")
	if err != nil {
		t.Fatal(err)
	}
	if contract.Deref(c.GoverningLaw) != "California" {
		t.Errorf("governing law = %v", c.GoverningLaw)
	}
}

func TestParseCandidateRejects(t *testing.T) {
	for _, raw := range []string{
		`no json`,
		`{"summary": ["a"]}`,
		`{"summary":"s","total_amount":"plenty"}`,
		`{"summary":"s","governing_law":[1]}`,
	} {
		if _, err := parseCandidate(raw, "x"); err == nil {
			t.Errorf("parseCandidate(%s): expected error", raw)
		}
	}
}
