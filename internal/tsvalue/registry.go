package tsvalue

import (
	"fmt"
	"sort"
	"sync"
)

// Cursor is an independent, lazily-advanced view over one series' values at
// a single type token. Cursors never share mutable state: two calls to
// TimeSeries.Cursor for the same token return independent cursors.
type Cursor interface {
	// Next advances the cursor and reports whether a value was produced.
	Next() bool
	// Numeric returns the current Numeric point. Valid only when the
	// cursor's token is TypeNumeric.
	Numeric() NumericPoint
	// Summary returns the current NumericSummary point.
	Summary() NumericSummaryPoint
	// Array returns the current NumericArray.
	Array() NumericArray
	// Event returns the current Event.
	Event() Event
	// Annotation returns the current Annotation.
	Annotation() Annotation
}

// CursorFactory builds an independent Cursor over a series' data for one
// type token. Implementations are registered per token in a TypeRegistry.
type CursorFactory func(series *TimeSeries) (Cursor, error)

// PoolAllocator acquires and releases pooled value-type buffers. Pools are
// optional per §9: if absent, Acquire returns a fresh object every time.
type PoolAllocator interface {
	Acquire() any
	Release(v any)
}

// typeEntry bundles the factories registered for one type token.
type typeEntry struct {
	token  TypeToken
	name   string
	cursor CursorFactory
	pool   PoolAllocator
}

// TypeRegistry is the process-wide holder mapping a TypeToken to the
// factories that decode, iterate, and (optionally) pool its values. It is
// explicit and initialized once; tests construct a fresh registry via
// NewTypeRegistry instead of reaching for a package-level singleton, per the
// "tests inject a fresh holder" design note.
type TypeRegistry struct {
	mu      sync.RWMutex
	entries map[TypeToken]typeEntry
}

// NewTypeRegistry returns an empty registry pre-seeded with the five closed
// value types described in the data model. Seeding the closed set here
// still allows additional tokens (e.g. a future value type) to be
// registered without any change to this constructor.
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{entries: make(map[TypeToken]typeEntry)}
	r.Register(TypeNumeric, "numeric", nil, nil)
	r.Register(TypeNumericSummary, "numeric_summary", nil, nil)
	r.Register(TypeNumericArray, "numeric_array", nil, nil)
	r.Register(TypeEvent, "event", nil, nil)
	r.Register(TypeAnnotation, "annotation", nil, nil)
	return r
}

// Register installs or replaces the factories for a type token. A nil
// CursorFactory leaves cursor construction to TimeSeries's built-in
// defaults for the five closed types; it is required for any token outside
// that closed set.
func (r *TypeRegistry) Register(token TypeToken, name string, cursor CursorFactory, pool PoolAllocator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[token] = typeEntry{token: token, name: name, cursor: cursor, pool: pool}
}

// Lookup returns the registered cursor factory for token, if any.
func (r *TypeRegistry) Lookup(token TypeToken) (CursorFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[token]
	if !ok || e.cursor == nil {
		return nil, false
	}
	return e.cursor, true
}

// Pool returns the registered pool allocator for token, if any.
func (r *TypeRegistry) Pool(token TypeToken) (PoolAllocator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[token]
	if !ok || e.pool == nil {
		return nil, false
	}
	return e.pool, true
}

// Name returns the registered display name for token, or "unknown".
func (r *TypeRegistry) Name(token TypeToken) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[token]; ok {
		return e.name
	}
	return "unknown"
}

// Tokens returns every registered token, sorted for deterministic iteration.
func (r *TypeRegistry) Tokens() []TypeToken {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tokens := make([]TypeToken, 0, len(r.entries))
	for t := range r.entries {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	return tokens
}

// ErrUnknownType is returned when a series is accessed at a token it does
// not carry and no registry factory can decode it.
func ErrUnknownType(token TypeToken) error {
	return fmt.Errorf("tsvalue: unknown type token %d (%s)", token, token)
}
