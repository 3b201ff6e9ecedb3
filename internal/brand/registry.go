// Package brand maps free-text place labels onto canonical chain keys.
package brand

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed brands.yaml
var defaultBrandsYAML []byte

// fallbackPattern is used for discovery queries when no brand keys are given.
const fallbackPattern = `McDonald|Chipotle|Wingstop|Subway|KFC|Taco Bell|Burger King|Wendy|Chick[- ]?fil[- ]?A|Panda|Five Guys|Panera|Jack in the Box|Popeyes|Domino`

// Entry is one chain in the registry.
type Entry struct {
	Key           string   `yaml:"key" json:"key"`
	DisplayName   string   `yaml:"display_name" json:"displayName"`
	Synonyms      []string `yaml:"synonyms" json:"synonyms,omitempty"`
	Patterns      []string `yaml:"patterns" json:"patterns,omitempty"`
	NutritionixID string   `yaml:"nutritionix_id" json:"nutritionixId,omitempty"`

	needles []string
}

type registryFile struct {
	Brands []Entry `yaml:"brands"`
}

// Registry is an ordered, read-only brand table. Resolution walks entries in
// declaration order and returns the first hit, so it is deterministic.
type Registry struct {
	entries []Entry
	byKey   map[string]int
}

// NewRegistry validates entries and precomputes their normalized needles.
func NewRegistry(entries []Entry) (*Registry, error) {
	if len(entries) == 0 {
		return nil, eris.New("brand: registry is empty")
	}

	r := &Registry{
		entries: make([]Entry, 0, len(entries)),
		byKey:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		key := Normalize(e.Key)
		if key == "" || key != e.Key {
			return nil, eris.Errorf("brand: entry %d has invalid key %q", i, e.Key)
		}
		if _, dup := r.byKey[key]; dup {
			return nil, eris.Errorf("brand: duplicate key %q", key)
		}
		if e.DisplayName == "" {
			e.DisplayName = e.Key
		}

		seen := map[string]bool{key: true}
		e.needles = []string{key}
		for _, syn := range e.Synonyms {
			n := Normalize(syn)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			e.needles = append(e.needles, n)
		}

		r.byKey[key] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// Parse decodes a YAML registry document.
func Parse(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "brand: parse registry")
	}
	return NewRegistry(f.Brands)
}

// LoadRegistry reads a registry from path. An empty path returns the
// built-in registry.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return Parse(defaultBrandsYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "brand: read registry %s", path)
	}
	return Parse(data)
}

// Default returns the built-in registry.
func Default() *Registry {
	r, err := Parse(defaultBrandsYAML)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the first entry whose key or synonym appears in the
// normalized concatenation of label and tag.
func (r *Registry) Resolve(label, tag string) (Entry, bool) {
	text := Normalize(label + " " + tag)
	if text == "" {
		return Entry{}, false
	}
	for _, e := range r.entries {
		for _, n := range e.needles {
			if strings.Contains(text, n) {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// Lookup returns the entry for key.
func (r *Registry) Lookup(key string) (Entry, bool) {
	i, ok := r.byKey[key]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Keys returns every key in declaration order.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.entries))
	for i, e := range r.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns a copy of the registry entries in declaration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.entries) }

// QueryPattern builds the alternation used in a case-insensitive discovery
// filter for the given keys: display names, synonyms and extra patterns.
// Unknown keys are ignored. With no known keys the fallback pattern is
// returned.
func (r *Registry) QueryPattern(keys []string) string {
	var parts []string
	seen := make(map[string]bool)
	add := func(p string) {
		p = sanitizePattern(p)
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		parts = append(parts, p)
	}

	for _, k := range keys {
		e, ok := r.Lookup(k)
		if !ok {
			continue
		}
		add(e.DisplayName)
		for _, syn := range e.Synonyms {
			add(syn)
		}
		for _, p := range e.Patterns {
			add(p)
		}
	}
	if len(parts) == 0 {
		return fallbackPattern
	}
	return strings.Join(parts, "|")
}

// sanitizePattern drops characters that would terminate the quoted regex in
// an Overpass filter.
func sanitizePattern(p string) string {
	p = strings.NewReplacer(`"`, "", `\`, "", "|", "").Replace(p)
	return strings.TrimSpace(p)
}
