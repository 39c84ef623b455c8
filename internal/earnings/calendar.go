// Package earnings loads and serves the earnings calendar consulted by the
// entry eligibility filter.
package earnings

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// isoDateFormat is the fixed-width date layout used throughout the calendar.
// Fixed width is what makes lexical date comparison valid downstream.
const isoDateFormat = "2006-01-02"

// Calendar maps tickers to their future earnings dates. Loaded once at
// startup and read-only afterwards.
type Calendar struct {
	dates map[string][]string
}

// Load reads the calendar YAML file: a mapping from ticker to a list of
// ISO dates. Dates are validated against the fixed-width format and sorted
// ascending.
func Load(path string) (*Calendar, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the validated config file
	if err != nil {
		return nil, fmt.Errorf("reading earnings calendar: %w", err)
	}

	var raw map[string][]string
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing earnings calendar: %w", err)
	}

	cal := &Calendar{dates: make(map[string][]string, len(raw))}
	for ticker, dates := range raw {
		if strings.TrimSpace(ticker) == "" {
			return nil, fmt.Errorf("earnings calendar contains an empty ticker")
		}
		sorted := make([]string, 0, len(dates))
		for _, d := range dates {
			if _, err := time.Parse(isoDateFormat, d); err != nil {
				return nil, fmt.Errorf("earnings calendar: invalid date %q for %s: %w", d, ticker, err)
			}
			sorted = append(sorted, d)
		}
		sort.Strings(sorted)
		cal.dates[ticker] = sorted
	}
	return cal, nil
}

// NewCalendar builds a calendar from an in-memory map (primarily for tests).
func NewCalendar(dates map[string][]string) *Calendar {
	copied := make(map[string][]string, len(dates))
	for ticker, ds := range dates {
		sorted := make([]string, len(ds))
		copy(sorted, ds)
		sort.Strings(sorted)
		copied[ticker] = sorted
	}
	return &Calendar{dates: copied}
}

// DatesFor returns the ordered earnings dates for a ticker, or nil when the
// calendar has no entry for it.
func (c *Calendar) DatesFor(ticker string) []string {
	ds, ok := c.dates[ticker]
	if !ok {
		return nil
	}
	out := make([]string, len(ds))
	copy(out, ds)
	return out
}

// FormatDate renders t as a calendar date string.
func FormatDate(t time.Time) string {
	return t.Format(isoDateFormat)
}
