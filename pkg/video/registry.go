package video

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Token identifies a handle held by a Registry.
type Token uint64

// Registry hands out numeric tokens for open handles so that callers that
// cannot hold Go values (bindings, RPC surfaces) can refer to them. Calls on
// one handle are serialized by a per-entry mutex; different handles may be
// used from different goroutines.
type Registry struct {
	mu      sync.Mutex
	next    Token
	entries map[Token]*entry
}

type entry struct {
	mu sync.Mutex
	h  *Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Token]*entry)}
}

// Put registers h and returns its token.
func (r *Registry) Put(h *Handle) Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.entries[r.next] = &entry{h: h}
	return r.next
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) lookup(t Token) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[t]
	if !ok {
		return nil, newError("lookup", fmt.Errorf("%w: unknown token %d", ErrClosed, t))
	}
	return e, nil
}

// Do runs fn with the handle for t while holding that handle's lock.
func (r *Registry) Do(t Token, fn func(h *Handle) error) error {
	e, err := r.lookup(t)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.h == nil {
		return newError("lookup", fmt.Errorf("%w: token %d", ErrClosed, t))
	}
	return fn(e.h)
}

// Close removes t from the registry and closes its handle. A token can only
// be closed once; later calls return ErrClosed.
func (r *Registry) Close(t Token) error {
	r.mu.Lock()
	e, ok := r.entries[t]
	delete(r.entries, t)
	r.mu.Unlock()
	if !ok {
		return newError("close", fmt.Errorf("%w: unknown token %d", ErrClosed, t))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.h
	e.h = nil
	return h.Close()
}

// CloseAll closes every registered handle in token order.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	tokens := make([]Token, 0, len(r.entries))
	for t := range r.entries {
		tokens = append(tokens, t)
	}
	r.mu.Unlock()
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })

	var result *multierror.Error
	for _, t := range tokens {
		if err := r.Close(t); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
