package host

import (
	"sync"
)

// Capability is the reflective view of a host type system. Member queries
// return only members declared directly on t; walking the hierarchy is the
// caller's job. An empty name matches every member and arity < 0 matches
// every arity.
type Capability interface {
	ResolveType(name string) (Type, bool)
	// TypeOf returns the runtime type of a host value, nil if the value is
	// not one this capability knows.
	TypeOf(v any) Type
	Fields(t Type, name string, includeNonPublic bool) []Field
	Methods(t Type, name string, arity int, includeNonPublic bool) []Method
	Constructors(t Type, includeNonPublic bool) []Constructor
}

// Notifier is implemented by capabilities whose type set can change after
// first use (new registrations, loaded descriptors).
type Notifier interface {
	// Subscribe registers fn to run on every change and returns a function
	// that removes it.
	Subscribe(fn func()) (cancel func())
}

// Broadcaster is an embeddable Notifier.
type Broadcaster struct {
	mu        sync.Mutex
	next      int
	listeners map[int]func()
}

func (b *Broadcaster) Subscribe(fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = make(map[int]func())
	}
	id := b.next
	b.next++
	b.listeners[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Notify runs every listener. Listeners run outside the lock.
func (b *Broadcaster) Notify() {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Chain composes capabilities. The builtin lang capability is always
// consulted first for types and last for members, so hosts may add members
// to builtin types.
type Chain struct {
	Broadcaster
	caps    []Capability
	cancels []func()
}

// NewChain builds a Chain over the builtin lattice and caps, in order.
func NewChain(caps ...Capability) *Chain {
	c := &Chain{caps: append([]Capability{}, caps...)}
	for _, cp := range c.caps {
		if n, ok := cp.(Notifier); ok {
			c.cancels = append(c.cancels, n.Subscribe(c.Notify))
		}
	}
	return c
}

// Close detaches the chain from the notifiers of its members.
func (c *Chain) Close() {
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil
}

func (c *Chain) all() []Capability {
	return append(append([]Capability{}, c.caps...), Lang)
}

func (c *Chain) ResolveType(name string) (Type, bool) {
	if t, ok := Builtin(name); ok {
		return t, true
	}
	for _, cp := range c.caps {
		if t, ok := cp.ResolveType(name); ok {
			return t, true
		}
	}
	return nil, false
}

func (c *Chain) TypeOf(v any) Type {
	if v == nil {
		return nil
	}
	for _, cp := range c.all() {
		if t := cp.TypeOf(v); t != nil {
			return t
		}
	}
	if et, ok := sliceElemType(v, c); ok {
		return ArrayOf(et)
	}
	return ObjectType
}

func (c *Chain) Fields(t Type, name string, includeNonPublic bool) []Field {
	var out []Field
	for _, cp := range c.all() {
		out = append(out, cp.Fields(t, name, includeNonPublic)...)
	}
	return out
}

func (c *Chain) Methods(t Type, name string, arity int, includeNonPublic bool) []Method {
	var out []Method
	for _, cp := range c.all() {
		out = append(out, cp.Methods(t, name, arity, includeNonPublic)...)
	}
	return out
}

func (c *Chain) Constructors(t Type, includeNonPublic bool) []Constructor {
	var out []Constructor
	for _, cp := range c.all() {
		out = append(out, cp.Constructors(t, includeNonPublic)...)
	}
	return out
}
