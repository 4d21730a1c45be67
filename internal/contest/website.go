package contest

import (
	"regexp"
	"strings"
)

// TierRule refines matching for a single tier
type TierRule struct {
	Disabled bool     `yaml:"disabled"`
	Accept   []string `yaml:"accept"`
	Reject   []string `yaml:"reject"`
	Require  []string `yaml:"require"`
}

// Website describes how contests from one judge are classified and displayed.
// Keyword lists are matched case-insensitively as substrings of the event name.
type Website struct {
	ID         string   `yaml:"id"`
	Prefix     string   `yaml:"prefix"`
	Shorthands []string `yaml:"shorthands"`
	Rare       bool     `yaml:"rare"`
	Normalize  string   `yaml:"normalize"`

	// Force overrides Exclude for both tiers
	Force   []string `yaml:"force"`
	Exclude []string `yaml:"exclude"`
	Require []string `yaml:"require"`

	Div1 TierRule `yaml:"div1"`
	Open TierRule `yaml:"open"`

	normalizer *regexp.Regexp
}

func (w *Website) compile() error {
	if w.Normalize == "" {
		return nil
	}
	re, err := regexp.Compile(w.Normalize)
	if err != nil {
		return err
	}
	w.normalizer = re
	return nil
}

// Matches reports whether an event with the given raw name belongs to tier
func (w *Website) Matches(name string, tier Tier) bool {
	name = strings.ToLower(name)

	rule := w.Open
	if tier == Div1 {
		rule = w.Div1
	}
	if rule.Disabled {
		return false
	}

	if !containsAny(name, w.Force) && containsAny(name, w.Exclude) {
		return false
	}
	if len(w.Require) > 0 && !containsAny(name, w.Require) {
		return false
	}

	if containsAny(name, rule.Accept) {
		return true
	}
	if containsAny(name, rule.Reject) {
		return false
	}
	if len(rule.Require) > 0 && !containsAny(name, rule.Require) {
		return false
	}
	return true
}

// NormalizeName extracts the display name, falling back to the raw name
func (w *Website) NormalizeName(name string) string {
	if w.normalizer == nil {
		return name
	}
	if m := w.normalizer.FindString(name); m != "" {
		return m
	}
	return name
}

// HasShorthand reports whether s is one of the website's filter aliases
func (w *Website) HasShorthand(s string) bool {
	for _, sh := range w.Shorthands {
		if strings.EqualFold(sh, s) {
			return true
		}
	}
	return false
}

func containsAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(name, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
