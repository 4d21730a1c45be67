package contest

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	yaml "go.yaml.in/yaml/v3"
)

//go:embed websites.yaml
var defaultWebsites []byte

type websitesFile struct {
	Websites []*Website `yaml:"websites"`
}

// Registry holds the classification rules for every supported website
type Registry struct {
	mu       sync.RWMutex
	websites map[string]*Website
	order    []string
}

// NewRegistry creates a registry loaded with the built-in website rules
func NewRegistry() *Registry {
	r := &Registry{websites: make(map[string]*Website)}
	websites, err := ParseWebsites(defaultWebsites)
	if err != nil {
		panic(fmt.Sprintf("built-in website rules: %v", err))
	}
	r.Replace(websites)
	return r
}

// ParseWebsites decodes and compiles a YAML rule set
func ParseWebsites(data []byte) ([]*Website, error) {
	var f websitesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode website rules: %w", err)
	}
	if len(f.Websites) == 0 {
		return nil, fmt.Errorf("no websites defined")
	}

	seen := make(map[string]bool)
	for _, w := range f.Websites {
		if w.ID == "" {
			return nil, fmt.Errorf("website without id")
		}
		if seen[w.ID] {
			return nil, fmt.Errorf("duplicate website: %s", w.ID)
		}
		seen[w.ID] = true
		if err := w.compile(); err != nil {
			return nil, fmt.Errorf("website %s: invalid normalize pattern: %w", w.ID, err)
		}
	}
	return f.Websites, nil
}

// LoadFile replaces the rule set with the one stored at path
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read website rules: %w", err)
	}
	websites, err := ParseWebsites(data)
	if err != nil {
		return err
	}
	r.Replace(websites)
	return nil
}

// Replace swaps the whole rule set
func (r *Registry) Replace(websites []*Website) {
	m := make(map[string]*Website, len(websites))
	order := make([]string, 0, len(websites))
	for _, w := range websites {
		m[w.ID] = w
		order = append(order, w.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.websites = m
	r.order = order
}

// Get retrieves the rules for a website
func (r *Registry) Get(id string) (*Website, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.websites[id]
	return w, ok
}

// Supported reports whether the website has rules
func (r *Registry) Supported(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// List returns the supported website identifiers in definition order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Matches classifies an event name. Unknown websites belong to no tier.
func (r *Registry) Matches(website, name string, tier Tier) bool {
	w, ok := r.Get(website)
	if !ok {
		return false
	}
	return w.Matches(name, tier)
}

// Normalize returns the display name for an event
func (r *Registry) Normalize(website, name string) string {
	w, ok := r.Get(website)
	if !ok {
		return name
	}
	return w.NormalizeName(name)
}
