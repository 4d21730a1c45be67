package contest

import (
	"fmt"
	"strings"
)

// Tier is a notification audience
type Tier int

const (
	// Div1 is the restricted audience for div1-level contests
	Div1 Tier = iota
	// Open is the broad audience for everything rated for all
	Open
)

// Tiers lists every tier in processing order
var Tiers = []Tier{Div1, Open}

func (t Tier) String() string {
	switch t {
	case Div1:
		return "div1"
	case Open:
		return "all"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Label is the form used in role names and DMs
func (t Tier) Label() string {
	if t == Div1 {
		return "(Div1)"
	}
	return "(All)"
}

// ParseTier accepts "div1", "all" or "open"
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "div1":
		return Div1, nil
	case "all", "open":
		return Open, nil
	default:
		return 0, fmt.Errorf("unknown tier: %q", s)
	}
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
