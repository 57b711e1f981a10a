// Package reflecthost exposes Go types to the engine as host classes and
// interfaces. Types are registered by qualified name; their exported fields
// and methods become public members, unexported fields non-public ones.
package reflecthost

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/funvibe/dynlink/internal/host"
)

// Registry is a host.Capability over registered Go types. Registration is
// expected to happen mostly up front; later registrations are announced to
// subscribers as type-system changes.
type Registry struct {
	host.Broadcaster

	mu     sync.Mutex
	byName map[string]*entry
	byGo   map[reflect.Type]*entry
	ifaces []*entry
}

type entry struct {
	typ   *host.BasicType
	rt    reflect.Type
	iface bool
	super *entry

	extra   []host.Method
	statics []host.Field
	ctors   []host.Constructor

	built   bool
	fields  []host.Field
	methods []host.Method
}

// TypeOption configures a registered type.
type TypeOption func(*entry)

// Hidden registers the type as non-public.
func Hidden() TypeOption {
	return func(e *entry) { e.typ.SetPublic(false) }
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]*entry),
		byGo:   make(map[reflect.Type]*entry),
	}
}

// RegisterType publishes the named Go type rt under a qualified name.
// Pointer types register their element type. Struct and other named types
// become classes: an embedded registered struct is the superclass and
// registered interfaces implemented by the pointer type are its interfaces,
// so supertypes must be registered first. Interface types become host
// interfaces.
func (r *Registry) RegisterType(name string, rt reflect.Type, opts ...TypeOption) (host.Type, error) {
	if rt == nil {
		return nil, fmt.Errorf("reflecthost: nil type for %s", name)
	}
	if rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Name() == "" {
		return nil, fmt.Errorf("reflecthost: %s is not a named type", rt)
	}

	r.mu.Lock()
	if _, dup := r.byName[name]; dup {
		r.mu.Unlock()
		return nil, fmt.Errorf("reflecthost: type %s already registered", name)
	}
	if prev, dup := r.byGo[rt]; dup {
		r.mu.Unlock()
		return nil, fmt.Errorf("reflecthost: %s already registered as %s", rt, prev.typ.Name())
	}

	e := &entry{rt: rt}
	if rt.Kind() == reflect.Interface {
		e.iface = true
		e.typ = host.NewInterface(name)
		for _, other := range r.ifaces {
			if rt != other.rt && rt.Implements(other.rt) {
				e.typ.AddInterface(other.typ)
			}
		}
		r.ifaces = append(r.ifaces, e)
	} else {
		e.super = r.embeddedSuperLocked(rt)
		var super host.Type
		if e.super != nil {
			super = e.super.typ
		}
		e.typ = host.NewClass(name, super)
		ptr := reflect.PointerTo(rt)
		for _, i := range r.ifaces {
			if ptr.Implements(i.rt) {
				e.typ.AddInterface(i.typ)
			}
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	r.byName[name] = e
	r.byGo[rt] = e
	r.invalidateLocked()
	r.mu.Unlock()

	r.Notify()
	return e.typ, nil
}

// embeddedSuperLocked returns the entry of the first embedded field whose
// type is a registered class.
func (r *Registry) embeddedSuperLocked(rt reflect.Type) *entry {
	if rt.Kind() != reflect.Struct {
		return nil
	}
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.Anonymous {
			continue
		}
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if e := r.byGo[ft]; e != nil && !e.iface {
			return e
		}
	}
	return nil
}

// invalidateLocked drops member tables so they are rebuilt against the
// current set of registered types.
func (r *Registry) invalidateLocked() {
	for _, e := range r.byName {
		e.built = false
		e.fields, e.methods = nil, nil
	}
}

func (r *Registry) lookup(typeName string) (*entry, error) {
	e := r.byName[typeName]
	if e == nil {
		return nil, fmt.Errorf("reflecthost: type %s is not registered", typeName)
	}
	return e, nil
}

// RegisterConstructor adds a constructor to a registered class. fn returns
// the new value, optionally followed by an error.
func (r *Registry) RegisterConstructor(typeName string, fn any) error {
	return r.addFunc(typeName, "<init>", fn, func(e *entry, f *goFunc) {
		e.ctors = append(e.ctors, &goCtor{fn: f})
	})
}

// RegisterMethod adds an explicit overload name to a registered type. The
// first parameter of fn is the receiver.
func (r *Registry) RegisterMethod(typeName, name string, fn any) error {
	return r.addFunc(typeName, name, fn, func(e *entry, f *goFunc) {
		if f.rt.NumIn() == 0 {
			return
		}
		f.receiverIn = true
		e.extra = append(e.extra, &goMethod{name: name, fn: f})
	})
}

// RegisterStatic adds a static method to a registered type.
func (r *Registry) RegisterStatic(typeName, name string, fn any) error {
	return r.addFunc(typeName, name, fn, func(e *entry, f *goFunc) {
		e.extra = append(e.extra, &goMethod{name: name, fn: f, static: true})
	})
}

func (r *Registry) addFunc(typeName, name string, fn any, add func(*entry, *goFunc)) error {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return fmt.Errorf("reflecthost: %s.%s: %T is not a function", typeName, name, fn)
	}
	r.mu.Lock()
	e, err := r.lookup(typeName)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	f := &goFunc{registry: r, owner: e.typ, name: name, fv: fv, rt: fv.Type()}
	before := len(e.extra) + len(e.ctors)
	add(e, f)
	if len(e.extra)+len(e.ctors) == before {
		r.mu.Unlock()
		return fmt.Errorf("reflecthost: %s.%s: method needs a receiver parameter", typeName, name)
	}
	r.invalidateLocked()
	r.mu.Unlock()

	r.Notify()
	return nil
}

// RegisterConst adds a final static field holding value.
func (r *Registry) RegisterConst(typeName, name string, value any) error {
	return r.addStatic(typeName, name, reflect.ValueOf(value), false)
}

// RegisterVar adds a static field backed by the variable ptr points to.
func (r *Registry) RegisterVar(typeName, name string, ptr any) error {
	pv := reflect.ValueOf(ptr)
	if pv.Kind() != reflect.Pointer || pv.IsNil() {
		return fmt.Errorf("reflecthost: %s.%s: need a non-nil pointer, got %T", typeName, name, ptr)
	}
	return r.addStatic(typeName, name, pv.Elem(), true)
}

func (r *Registry) addStatic(typeName, name string, v reflect.Value, settable bool) error {
	if !v.IsValid() {
		return fmt.Errorf("reflecthost: %s.%s: nil value", typeName, name)
	}
	r.mu.Lock()
	e, err := r.lookup(typeName)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	slot := &host.Slot{
		Ident:    name,
		Declarer: e.typ,
		Of:       r.typeForLocked(v.Type()),
		IsStatic: true,
		IsFinal:  !settable,
		Getter:   func(any) (any, error) { return fromGo(v), nil },
	}
	if settable {
		slot.Setter = func(_ any, nv any) error {
			cv, err := host.ConvertTo(nv, v.Type())
			if err != nil {
				return err
			}
			v.Set(cv)
			return nil
		}
	}
	e.statics = append(e.statics, slot)
	r.invalidateLocked()
	r.mu.Unlock()

	r.Notify()
	return nil
}

// ResolveType implements host.Capability. Array names of registered types
// are accepted.
func (r *Registry) ResolveType(name string) (host.Type, bool) {
	if elem, ok := strings.CutSuffix(name, "[]"); ok {
		et, ok := r.ResolveType(elem)
		if !ok {
			return nil, false
		}
		return host.ArrayOf(et), true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.byName[name]; e != nil {
		return e.typ, true
	}
	return nil, false
}

// TypeOf implements host.Capability. Values of unregistered types that
// implement a registered interface report that interface.
func (r *Registry) TypeOf(v any) host.Type {
	rt := reflect.TypeOf(v)
	if rt == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.byGo[rt]; e != nil && !e.iface {
		return e.typ
	}
	if rt.Kind() == reflect.Pointer {
		if e := r.byGo[rt.Elem()]; e != nil && !e.iface {
			return e.typ
		}
	}
	for _, e := range r.ifaces {
		if rt.Implements(e.rt) {
			return e.typ
		}
	}
	return nil
}

// Types lists the registered type names.
func (r *Registry) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	return names
}

// typeForLocked maps a Go type to the host type used for its slots.
func (r *Registry) typeForLocked(rt reflect.Type) host.Type {
	if p, ok := host.PrimitiveForKind(rt.Kind()); ok && rt.PkgPath() == "" {
		return p
	}
	if e := r.byGo[rt]; e != nil {
		return e.typ
	}
	switch rt.Kind() {
	case reflect.String:
		return host.StringType
	case reflect.Pointer:
		if e := r.byGo[rt.Elem()]; e != nil && !e.iface {
			return e.typ
		}
		if p, ok := host.PrimitiveForKind(rt.Elem().Kind()); ok {
			return host.WrapperOf(p)
		}
	case reflect.Slice, reflect.Array:
		return host.ArrayOf(r.typeForLocked(rt.Elem()))
	}
	if p, ok := host.PrimitiveForKind(rt.Kind()); ok {
		return p
	}
	return host.ObjectType
}

// TypeFor maps a Go type to the host type the registry uses for slots and
// parameters of that type.
func (r *Registry) TypeFor(rt reflect.Type) host.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typeForLocked(rt)
}

// Fields implements host.Capability.
func (r *Registry) Fields(t host.Type, name string, includeNonPublic bool) []host.Field {
	e := r.members(t)
	if e == nil {
		return nil
	}
	var out []host.Field
	for _, f := range e.fields {
		if (name == "" || f.Name() == name) && (includeNonPublic || f.Public()) {
			out = append(out, f)
		}
	}
	return out
}

// Methods implements host.Capability.
func (r *Registry) Methods(t host.Type, name string, arity int, includeNonPublic bool) []host.Method {
	e := r.members(t)
	if e == nil {
		return nil
	}
	var out []host.Method
	for _, m := range e.methods {
		if (name == "" || m.Name() == name) && (arity < 0 || len(m.Params()) == arity) &&
			(includeNonPublic || m.Public()) {
			out = append(out, m)
		}
	}
	return out
}

// Constructors implements host.Capability. A struct without registered
// constructors gets a no-argument one returning a pointer to a zero value.
func (r *Registry) Constructors(t host.Type, _ bool) []host.Constructor {
	e := r.members(t)
	if e == nil || e.iface {
		return nil
	}
	if len(e.ctors) > 0 {
		return append([]host.Constructor(nil), e.ctors...)
	}
	if e.rt.Kind() != reflect.Struct {
		return nil
	}
	rt := e.rt
	return []host.Constructor{&host.Maker{
		Declarer: e.typ,
		Impl: func(_ context.Context, _ []any) (any, error) {
			return reflect.New(rt).Interface(), nil
		},
	}}
}

// members returns the entry for t with its member tables built.
func (r *Registry) members(t host.Type) *entry {
	if t == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.byName[t.Name()]
	if e == nil {
		return nil
	}
	if !e.built {
		e.fields = append(r.structFieldsLocked(e), e.statics...)
		e.methods = append(r.goMethodsLocked(e), e.extra...)
		for _, m := range e.extra {
			m.(*goMethod).fn.bindLocked()
		}
		for _, c := range e.ctors {
			c.(*goCtor).fn.bindLocked()
		}
		e.built = true
	}
	return e
}
