package contract

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// Problem is a single schema violation.
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every schema violation found in a candidate record.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Field + ": " + p.Message
	}
	return "contract validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Problems = append(e.Problems, Problem{Field: field, Message: fmt.Sprintf(format, args...)})
}

var (
	currencyCodeRe = regexp.MustCompile(`^[A-Z]{3}$`)
	countryCodeRe  = regexp.MustCompile(`^[A-Z]{2}$`)
)

// Validate checks c against the schema and returns a copy whose party and
// clause lists are never nil. Present-but-malformed values are reported, never dropped.
// The input is not modified.
func Validate(c *Contract) (*Contract, error) {
	if c == nil {
		return nil, &ValidationError{Problems: []Problem{{Field: "contract", Message: "missing"}}}
	}

	verr := &ValidationError{}

	if strings.TrimSpace(c.ID) == "" {
		verr.add("id", "must not be empty")
	}
	if strings.TrimSpace(c.Summary) == "" {
		verr.add("summary", "must not be empty")
	}

	checkDate(verr, "effective_date", c.EffectiveDate)
	checkDate(verr, "end_date", c.EndDate)
	if start, ok := c.Effective(); ok {
		if end, ok := c.End(); ok && end.Before(start) {
			verr.add("end_date", "%s is before effective_date %s", *c.EndDate, *c.EffectiveDate)
		}
	}

	if c.Duration != nil {
		if _, err := ParseDuration(*c.Duration); err != nil {
			verr.add("duration", "%v", err)
		}
	}

	if a := c.TotalAmount; a != nil {
		if !currencyCodeRe.MatchString(a.Currency) {
			verr.add("total_amount.currency", "%q is not a currency code", a.Currency)
		}
		if math.IsNaN(a.Value) || math.IsInf(a.Value, 0) || a.Value < 0 {
			verr.add("total_amount.value", "must be a non-negative number, got %v", a.Value)
		}
	}

	for i, p := range c.Parties {
		field := fmt.Sprintf("parties[%d]", i)
		if strings.TrimSpace(p.Name) == "" {
			verr.add(field+".name", "must not be empty")
		}
		if p.Location != nil && p.Location.Country != nil && !countryCodeRe.MatchString(*p.Location.Country) {
			verr.add(field+".location.country", "%q is not a two-letter country code", *p.Location.Country)
		}
	}

	for i, cl := range c.Clauses {
		if strings.TrimSpace(cl.Text) == "" {
			verr.add(fmt.Sprintf("clauses[%d].text", i), "must not be empty")
		}
	}

	if len(verr.Problems) > 0 {
		return nil, verr
	}

	out := c.Clone()
	if out.Parties == nil {
		out.Parties = []Organization{}
	}
	if out.Clauses == nil {
		out.Clauses = []Clause{}
	}
	return out, nil
}

func checkDate(verr *ValidationError, field string, s *string) {
	if s == nil {
		return
	}
	if _, err := time.Parse(DateLayout, *s); err != nil {
		verr.add(field, "%q is not a yyyy-MM-dd date", *s)
	}
}
