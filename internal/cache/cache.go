// Package cache defines the org configuration cache model and the store
// that publishes it to readers.
//
// A Snapshot is built from scratch on every refresh cycle and handed to
// the Store in one atomic replace; readers never observe a snapshot
// mid-build. Absence of data is a first-class state: a nil Org or Space
// field means "data unavailable this cycle", never "empty org".
package cache

import "sort"

// Snapshot is one fully built generation of the cache, arranged as
// context → org name → org entry.
type Snapshot struct {
	Contexts map[string]ContextEntry
}

// NewSnapshot creates an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Contexts: make(map[string]ContextEntry),
	}
}

// Context returns the org entries for the named context.
func (s *Snapshot) Context(name string) (ContextEntry, bool) {
	entry, ok := s.Contexts[name]
	return entry, ok
}

// ContextNames returns the known context names, sorted.
func (s *Snapshot) ContextNames() []string {
	names := make([]string, 0, len(s.Contexts))
	for name := range s.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ContextEntry maps normalized org names to their entries.
type ContextEntry map[string]*OrgEntry

// OrgNames returns the org names in the context, sorted.
func (c ContextEntry) OrgNames() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OrgEntry holds the configuration loaded for a single org.
type OrgEntry struct {
	// Org is the parsed orgConfig.yml document, nil when the load failed
	Org map[string]any

	// Space is the parsed spaces.yml document, nil when the load failed
	Space map[string]any

	// Spaces holds the per-space config/security pairs, keyed by space
	// name
	Spaces map[string]*SpaceEntry
}

// NewOrgEntry creates an empty org entry ready to be populated.
func NewOrgEntry() *OrgEntry {
	return &OrgEntry{
		Spaces: make(map[string]*SpaceEntry),
	}
}

// SpaceNames extracts the ordered `spaces` sequence from the spaces.yml
// document. A missing or malformed sequence yields an empty list.
func (e *OrgEntry) SpaceNames() []string {
	raw, ok := e.Space["spaces"]
	if !ok {
		return nil
	}
	seq, ok := raw.([]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(seq))
	for _, v := range seq {
		if name, ok := v.(string); ok {
			names = append(names, name)
		}
	}
	return names
}

// Metadata returns the `metadata` value from the org config, or nil.
func (e *OrgEntry) Metadata() any {
	return e.Org["metadata"]
}

// Director returns the director recorded in the org metadata, or
// "Unknown" when not present.
func (e *OrgEntry) Director() string {
	meta, ok := e.Metadata().(map[string]any)
	if !ok {
		return "Unknown"
	}
	director, ok := meta["director"].(string)
	if !ok {
		return "Unknown"
	}
	return director
}

// SpaceEntry pairs a space's config with its security policy. The pair
// is set as a unit: if either file fails to load, both fields are nil,
// since a config without its matching security policy is not meaningful.
type SpaceEntry struct {
	// Config is the parsed spaceConfig.yml document
	Config any

	// Security is the parsed security-group.json document
	Security any
}
