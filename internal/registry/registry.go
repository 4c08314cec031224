// Package registry implements the process-wide command/tool registry: a
// single append-only ordered list guarded by a reader/writer lock, owned by
// the process for its whole lifetime and shared by both the CLI-facing
// command dispatcher (internal/server) and the MCP tool dispatcher
// (internal/mcp).
package registry

import (
	"fmt"
	"sync"

	"github.com/drewcrawford/exfiltrate-sub000/internal/response"
)

// Args is the argument list a Command receives: positional strings for the
// CLI channel, keyed "0", "1", "2", ...; or the JSON object fields for the
// MCP channel, keyed by name. Handlers that need typed arguments parse Args
// themselves.
type Args map[string]string

// Positional collects the CLI-style "0", "1", "2", ... keys in order. A
// handler invoked over the CLI channel has no named keys, so it falls back
// to this when a named lookup comes up empty.
func (a Args) Positional() []string {
	var out []string
	for i := 0; ; i++ {
		v, ok := a[fmt.Sprintf("%d", i)]
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

// Handler is the operation set every registry entry supports. Commands and
// MCP tools are both expressed as a Handler; name/description/schema are
// metadata carried alongside it, not part of the interface.
type Handler interface {
	Execute(args Args) (response.Response, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(args Args) (response.Response, error)

func (f HandlerFunc) Execute(args Args) (response.Response, error) { return f(args) }

// Entry is one registered command/tool plus its metadata.
type Entry struct {
	Name             string
	ShortDescription string
	FullDescription  string
	// InputSchema is a JSON Schema fragment ({type:"object", properties:{…},
	// required:[…]}) describing Args, used by the MCP tools/list response.
	// Commands invoked only over the CLI channel may leave this nil.
	InputSchema map[string]any
	Handler     Handler
}

// Registry is the shared, append-only handler list.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
	byName  map[string]int
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Add appends a handler. It is an error to register a duplicate name: the
// registry is append-only for the process lifetime, with no remove
// operation, so rejecting duplicates up front is the only way to keep the
// invariant that name is a stable unique key.
func (r *Registry) Add(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[e.Name]; exists {
		return fmt.Errorf("registry: duplicate handler name %q", e.Name)
	}
	r.byName[e.Name] = len(r.entries)
	r.entries = append(r.entries, e)
	return nil
}

// Lookup finds a handler by exact name match.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[name]
	if !ok {
		return Entry{}, false
	}
	return r.entries[idx], true
}

// List returns a stable-order snapshot of all registered entries, taken
// under the read lock.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
