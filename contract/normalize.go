package contract

import (
	"regexp"
	"strings"
)

var yearOnlyRe = regexp.MustCompile(`^\d{4}$`)

// currencySymbols maps common symbols and names to ISO 4217 codes.
var currencySymbols = map[string]string{
	"$":      "USD",
	"US$":    "USD",
	"USD$":   "USD",
	"DOLLAR": "USD",
	"€":      "EUR",
	"EURO":   "EUR",
	"£":      "GBP",
	"¥":      "JPY",
	"C$":     "CAD",
	"A$":     "AUD",
	"₹":      "INR",
}

// Normalize tidies model output in place: blank strings become nil,
// year-only dates become January 1st, currency symbols become codes,
// country codes are upper-cased and a missing end date is inferred from
// the effective date plus duration. Values that are present but malformed
// are left for Validate to report.
func (c *Contract) Normalize() {
	c.ID = strings.TrimSpace(c.ID)
	c.Summary = strings.TrimSpace(c.Summary)
	c.ContractType = blankToNil(c.ContractType)
	c.EffectiveDate = normalizeDate(c.EffectiveDate)
	c.EndDate = normalizeDate(c.EndDate)
	c.Duration = blankToNil(c.Duration)
	if c.Duration != nil {
		d := strings.ToUpper(*c.Duration)
		c.Duration = &d
	}
	c.GoverningLaw = blankToNil(c.GoverningLaw)
	c.Scope = blankToNil(c.Scope)

	if c.TotalAmount != nil {
		c.TotalAmount.Currency = NormalizeCurrency(c.TotalAmount.Currency)
	}

	for i := range c.Parties {
		p := &c.Parties[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Role = blankToNil(p.Role)
		if p.Location != nil {
			p.Location.normalize()
			if p.Location.IsEmpty() {
				p.Location = nil
			}
		}
	}

	for i := range c.Clauses {
		c.Clauses[i].Type = strings.TrimSpace(c.Clauses[i].Type)
		c.Clauses[i].Text = strings.TrimSpace(c.Clauses[i].Text)
	}

	if c.EndDate == nil && c.EffectiveDate != nil && c.Duration != nil {
		if end, err := InferEndDate(*c.EffectiveDate, *c.Duration); err == nil {
			c.EndDate = &end
		}
	}
}

func (l *Location) normalize() {
	l.Address = blankToNil(l.Address)
	l.City = blankToNil(l.City)
	l.State = blankToNil(l.State)
	l.Country = blankToNil(l.Country)
	if l.Country != nil {
		cc := strings.ToUpper(*l.Country)
		l.Country = &cc
	}
}

// NormalizeCurrency maps a currency symbol or code to its ISO 4217 form.
func NormalizeCurrency(s string) string {
	s = strings.TrimSpace(s)
	if code, ok := currencySymbols[strings.ToUpper(s)]; ok {
		return code
	}
	return strings.ToUpper(s)
}

func normalizeDate(s *string) *string {
	s = blankToNil(s)
	if s == nil {
		return nil
	}
	if yearOnlyRe.MatchString(*s) {
		d := *s + "-01-01"
		return &d
	}
	return s
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") || strings.EqualFold(v, "none") || strings.EqualFold(v, "n/a") {
		return nil
	}
	return &v
}
