package contest

import (
	"fmt"
	"strings"
	"time"
)

// clist timestamps carry no zone and are UTC
const feedTimeLayout = "2006-01-02T15:04:05"

// RawContest is a contest record as returned by the feed
type RawContest struct {
	ID       int64  `json:"id"`
	Event    string `json:"event"`
	Start    string `json:"start"`
	Duration int64  `json:"duration"`
	Href     string `json:"href"`
	Resource string `json:"resource"`
}

// Contest is an immutable, normalized contest
type Contest struct {
	ID       int64
	Name     string
	Website  string
	Start    time.Time
	Duration time.Duration
	URL      string

	// Display metadata captured from the website rules at construction
	Prefix string
	Rare   bool
}

// New builds a Contest from a raw feed record
func New(raw RawContest, reg *Registry) (Contest, error) {
	start, err := parseStart(raw.Start)
	if err != nil {
		return Contest{}, fmt.Errorf("contest %d: %w", raw.ID, err)
	}

	c := Contest{
		ID:       raw.ID,
		Name:     raw.Event,
		Website:  raw.Resource,
		Start:    start,
		Duration: time.Duration(raw.Duration) * time.Second,
		URL:      raw.Href,
	}
	if w, ok := reg.Get(raw.Resource); ok {
		c.Name = w.NormalizeName(raw.Event)
		c.Prefix = w.Prefix
		c.Rare = w.Rare
	}
	return c, nil
}

func parseStart(s string) (time.Time, error) {
	if t, err := time.Parse(feedTimeLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// End returns the instant the contest finishes
func (c Contest) End() time.Time {
	return c.Start.Add(c.Duration)
}

// DisplayName prefixes the website unless the name already mentions it
func (c Contest) DisplayName() string {
	if c.Prefix == "" || strings.Contains(strings.ToLower(c.Name), strings.ToLower(c.Prefix)) {
		return c.Name
	}
	return c.Prefix + " || " + c.Name
}

// FilterByShorthand keeps contests whose website matches one of the "+xx" filters.
// Filters without the "+" prefix are ignored; no filters keeps everything.
func FilterByShorthand(contests []Contest, filters []string, reg *Registry) []Contest {
	if len(filters) == 0 {
		return contests
	}

	var out []Contest
	for _, c := range contests {
		w, ok := reg.Get(c.Website)
		if !ok {
			continue
		}
		for _, f := range filters {
			if strings.HasPrefix(f, "+") && w.HasShorthand(f[1:]) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
