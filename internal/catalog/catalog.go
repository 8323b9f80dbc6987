package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Handler runs one validated Command against the supplied Deps.
type Handler func(ctx context.Context, cmd Command, deps Deps) CommandResult

// Entry is one registered catalog action (spec §4.4).
type Entry struct {
	Name              ActionName
	Description       string
	ParamType         any
	Handler           Handler
	Needs             Needs
	TerminatesSequence bool
	DomainFilter      []string // base domains; empty = universal

	schema *compiledSchema
}

// Schema returns the entry's JSON Schema document, the shape the
// out-of-scope bridge collaborator (spec §6) would mount directly.
func (e *Entry) Schema() map[string]any {
	if e.schema == nil {
		return nil
	}
	return e.schema.doc
}

// Catalog is the immutable-after-registration action registry (spec §3
// "Command catalog: built once per process; immutable after registration
// phase").
type Catalog struct {
	entries map[ActionName]*Entry
	order   []ActionName
	include map[ActionName]bool
	exclude map[ActionName]bool
	sealed  bool
}

// Option configures catalog construction.
type Option func(*Catalog)

// WithInclude restricts registration to the given action names.
func WithInclude(names ...ActionName) Option {
	return func(c *Catalog) {
		c.include = make(map[ActionName]bool, len(names))
		for _, n := range names {
			c.include[n] = true
		}
	}
}

// WithExclude rejects registration of the given action names.
func WithExclude(names ...ActionName) Option {
	return func(c *Catalog) {
		c.exclude = make(map[ActionName]bool, len(names))
		for _, n := range names {
			c.exclude[n] = true
		}
	}
}

// New builds an empty catalog ready for Register calls.
func New(opts ...Option) *Catalog {
	c := &Catalog{entries: make(map[ActionName]*Entry)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds entry to the catalog, honoring the include/exclude sets.
// Returns an error on a duplicate name or a sealed catalog: both are
// programmer errors caught at startup, never at request time.
func (c *Catalog) Register(entry Entry) error {
	if c.sealed {
		return fmt.Errorf("catalog: sealed, cannot register %q", entry.Name)
	}
	if c.exclude[entry.Name] {
		return nil
	}
	if len(c.include) > 0 && !c.include[entry.Name] {
		return nil
	}
	if _, exists := c.entries[entry.Name]; exists {
		return fmt.Errorf("catalog: %q already registered", entry.Name)
	}

	schema, err := schemaFor(string(entry.Name), entry.ParamType)
	if err != nil {
		return fmt.Errorf("catalog: %q: %w", entry.Name, err)
	}
	entry.schema = schema

	e := entry
	c.entries[entry.Name] = &e
	c.order = append(c.order, entry.Name)
	return nil
}

// Seal freezes the catalog against further registration.
func (c *Catalog) Seal() { c.sealed = true }

// Lookup returns the entry for name, or false if unregistered.
func (c *Catalog) Lookup(name ActionName) (*Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Entries returns all registered entries filtered by origin per spec
// §4.4's domain filter: entries with no DomainFilter are always listed;
// entries with one are listed only when origin matches (subdomain
// permitted, "www." stripped).
func (c *Catalog) Entries(origin string) []*Entry {
	host := normalizeHost(origin)
	out := make([]*Entry, 0, len(c.order))
	for _, name := range c.order {
		e := c.entries[name]
		if len(e.DomainFilter) == 0 {
			out = append(out, e)
			continue
		}
		for _, domain := range e.DomainFilter {
			if hostMatchesDomain(host, normalizeHost(domain)) {
				out = append(out, e)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func normalizeHost(raw string) string {
	host := raw
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	if idx := strings.IndexAny(host, "/:"); idx >= 0 {
		host = host[:idx]
	}
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func hostMatchesDomain(host, domain string) bool {
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}

// MaskSensitiveValues replaces occurrences of masked values in every
// string-typed param with "<key>" markers, longest value first so no
// substring of a longer value gets mis-matched by a shorter one first
// (spec §4.4, invariant 5 in §8).
func MaskSensitiveValues(params map[string]any, masked map[string]string) map[string]any {
	if len(masked) == 0 {
		return params
	}
	type kv struct{ key, value string }
	pairs := make([]kv, 0, len(masked))
	for k, v := range masked {
		if v != "" {
			pairs = append(pairs, kv{k, v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return len(pairs[i].value) > len(pairs[j].value) })

	out := make(map[string]any, len(params))
	for k, v := range params {
		s, isString := v.(string)
		if !isString {
			out[k] = v
			continue
		}
		for _, p := range pairs {
			s = strings.ReplaceAll(s, p.value, "<"+p.key+">")
		}
		out[k] = s
	}
	return out
}
