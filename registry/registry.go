// Package registry implements the function registry: the table of
// named handlers a peer may invoke over an EPC session.
//
// The registry is shared by every session on the listening side and
// may be mutated by the embedding application while sessions dispatch,
// so lookups take a read lock. A method removed mid-flight simply
// stops being found; the dispatcher treats that as "no such method".
package registry

import (
	"context"
	"sort"
	"sync"

	"go-epc/sexp"
)

// Handler is an invocable registered function. It receives the call's
// argument list and returns the value serialized into the reply, or an
// error reported to the peer as a return-error.
type Handler func(ctx context.Context, args sexp.List) (sexp.Value, error)

// Method is one registered function with its metadata.
type Method struct {
	Name    string
	Handler Handler
	Doc     string
	// ArgSpec is the opaque argument-spec field of the methods reply.
	// Nil serializes as the placeholder nil, matching the reference
	// protocol.
	ArgSpec sexp.Value
}

// Registry maps method names to handlers.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]Method
}

func New() *Registry {
	return &Registry{methods: make(map[string]Method)}
}

// Register adds a handler under name. Registering an existing name
// replaces the previous handler: last write wins, like assigning into
// a plain table.
func (r *Registry) Register(name string, h Handler, doc string) {
	r.RegisterMethod(Method{Name: name, Handler: h, Doc: doc})
}

// RegisterMethod is Register for callers that also set ArgSpec.
func (r *Registry) RegisterMethod(m Method) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[m.Name] = m
}

// Unregister removes name and reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.methods[name]
	delete(r.methods, name)
	return ok
}

// Lookup finds the method registered under name.
func (r *Registry) Lookup(name string) (Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[name]
	return m, ok
}

// Methods returns a snapshot of every registered method, sorted by
// name so the listing is deterministic.
func (r *Registry) Methods() []Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Method, 0, len(r.methods))
	for _, m := range r.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered methods.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.methods)
}
