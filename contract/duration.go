package contract

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Duration is a parsed ISO-8601 duration. Calendar components are kept
// separate so they can be added to a date without approximating month
// lengths.
type Duration struct {
	Years, Months, Weeks, Days int
	Clock                      time.Duration
}

var isoDurationRe = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration parses an ISO-8601 duration such as "P1Y6M" or "P30D".
func ParseDuration(s string) (Duration, error) {
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil || s == "P" || s[len(s)-1] == 'T' {
		return Duration{}, fmt.Errorf("%q is not an ISO-8601 duration", s)
	}

	n := make([]int, len(m))
	for i := 1; i < len(m); i++ {
		if m[i] == "" {
			continue
		}
		v, err := strconv.Atoi(m[i])
		if err != nil {
			return Duration{}, fmt.Errorf("%q: %w", s, err)
		}
		n[i] = v
	}

	return Duration{
		Years:  n[1],
		Months: n[2],
		Weeks:  n[3],
		Days:   n[4],
		Clock: time.Duration(n[5])*time.Hour +
			time.Duration(n[6])*time.Minute +
			time.Duration(n[7])*time.Second,
	}, nil
}

// AddTo returns t advanced by d.
func (d Duration) AddTo(t time.Time) time.Time {
	return t.AddDate(d.Years, d.Months, d.Weeks*7+d.Days).Add(d.Clock)
}

// InferEndDate adds an ISO-8601 duration to a yyyy-MM-dd date.
func InferEndDate(effective, duration string) (string, error) {
	start, err := time.Parse(DateLayout, effective)
	if err != nil {
		return "", fmt.Errorf("effective date: %w", err)
	}
	d, err := ParseDuration(duration)
	if err != nil {
		return "", err
	}
	return d.AddTo(start).Format(DateLayout), nil
}
