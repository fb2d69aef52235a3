package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/portofcontext/pctx/internal/logging"
)

// Catalog is the immutable snapshot of every upstream's tools (spec.md §3).
// It is built once at startup and replaced wholesale on refresh; in-flight
// executions keep their own reference to an older snapshot (see Store).
type Catalog struct {
	entries map[string]*UpstreamEntry
	order   []string // upstream names, sorted, for canonical iteration
}

// UpstreamSource is the minimal per-upstream wiring the catalog needs to
// query an upstream: a name (used as the TS namespace), a base URL (recorded
// in the UpstreamDescriptor), and a pre-constructed Client.
type UpstreamSource struct {
	Name    string
	BaseURL string
	Client  Client
}

// Build performs initialize + list_tools against every source and returns
// the resulting Catalog. An upstream whose own name or any of whose tool
// names fails ValidIdentifier is skipped (not fatal) per spec.md §4.2's
// fail-fast-per-upstream registration rule; upstream names are expected to
// have already passed config-time validation, so this mainly guards against
// tool names surfaced by a misbehaving upstream. A transport or protocol
// failure talking to one upstream does not abort the whole build: that
// upstream is recorded as empty and degraded, matching the
// UpstreamUnavailable handling in spec.md §7.
func Build(ctx context.Context, sources []UpstreamSource) (*Catalog, error) {
	entries := make(map[string]*UpstreamEntry, len(sources))
	order := make([]string, 0, len(sources))

	for _, src := range sources {
		if !ValidIdentifier(src.Name) {
			logging.Warnw("catalog: rejecting upstream with invalid identifier", "upstream", src.Name)
			continue
		}

		entry, err := buildOne(ctx, src)
		if errors.Is(err, errInvalidIdentifier) {
			logging.Warnw("catalog: rejecting upstream with invalid tool identifier", "upstream", src.Name, "error", err)
			continue
		}
		if err != nil {
			logging.Warnw("catalog: upstream degraded at startup", "upstream", src.Name, "error", err)
			entries[src.Name] = &UpstreamEntry{
				Descriptor: UpstreamDescriptor{Name: src.Name, BaseURL: src.BaseURL},
				Tools:      nil,
			}
			order = append(order, src.Name)
			continue
		}

		entries[src.Name] = entry
		order = append(order, src.Name)
	}

	sort.Strings(order)
	return &Catalog{entries: entries, order: order}, nil
}

// errInvalidIdentifier marks an upstream that listed a tool whose name fails
// ValidIdentifier; Build skips such an upstream instead of degrading it.
var errInvalidIdentifier = errors.New("invalid identifier")

func buildOne(ctx context.Context, src UpstreamSource) (*UpstreamEntry, error) {
	if err := src.Client.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	tools, err := src.Client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list_tools: %w", err)
	}

	kept := make([]ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		if !ValidIdentifier(t.Name) {
			return nil, fmt.Errorf("tool %q: %w", t.Name, errInvalidIdentifier)
		}
		kept = append(kept, t)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Name < kept[j].Name })

	return &UpstreamEntry{
		Descriptor: UpstreamDescriptor{Name: src.Name, BaseURL: src.BaseURL},
		Tools:      kept,
	}, nil
}

// Upstreams returns upstream names in canonical (sorted) order.
func (c *Catalog) Upstreams() []string {
	return append([]string(nil), c.order...)
}

// Entry returns the UpstreamEntry for name, or nil if unknown.
func (c *Catalog) Entry(name string) *UpstreamEntry {
	return c.entries[name]
}

// Tool looks up one tool by its (namespace, function) pair.
func (c *Catalog) Tool(upstream, tool string) *ToolDescriptor {
	entry := c.entries[upstream]
	if entry == nil {
		return nil
	}
	for i := range entry.Tools {
		if entry.Tools[i].Name == tool {
			return &entry.Tools[i]
		}
	}
	return nil
}

// Store holds a Catalog behind an atomic pointer so that a live refresh can
// swap the whole snapshot without affecting in-flight executions, per
// spec.md §9 ("Upstream catalog refresh ... copy-on-write: build a new
// Catalog, swap the pointer atomically").
type Store struct {
	ptr atomic.Pointer[Catalog]
}

// NewStore wraps an initial Catalog in a Store.
func NewStore(initial *Catalog) *Store {
	s := &Store{}
	s.ptr.Store(initial)
	return s
}

// Snapshot returns the current Catalog. Callers should take one reference
// at the start of a request and use it throughout, rather than calling
// Snapshot repeatedly, so that a concurrent refresh cannot produce a
// torn view within one execution.
func (s *Store) Snapshot() *Catalog {
	return s.ptr.Load()
}

// Replace atomically swaps in a newly built Catalog.
func (s *Store) Replace(next *Catalog) {
	s.ptr.Store(next)
}
