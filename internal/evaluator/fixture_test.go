package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/funvibe/dynlink/internal/config"
	"github.com/funvibe/dynlink/internal/host"
)

// point is the Go value behind test.Point.
type point struct {
	X, Y int32
	name string
}

// point3 is the Go value behind test.Point3, a subclass of test.Point.
type point3 struct{ *point }

var (
	pointType   = host.NewClass("test.Point", nil)
	point3Type  = host.NewClass("test.Point3", pointType)
	innerType   = host.NewClass("test.Point$Inner", nil)
	altPoint    = host.NewClass("alt.Point", nil)
	shapeType   = host.NewInterface("test.Shape")
	greeterType = host.NewInterface("test.Greeter")
	widgetType  = host.NewClass("test.Widget", nil)
)

// testHost is a small host type system: a point class with fields,
// overloads, statics and properties, plus a couple of interfaces. It counts
// reflective queries so tests can observe caching.
type testHost struct {
	host.Broadcaster

	types   map[string]host.Type
	fields  map[string][]host.Field
	methods map[string][]host.Method
	ctors   map[string][]host.Constructor

	origin *point
	count  int32

	resolves    map[string]int
	methodScans map[string]int
}

func fn(owner host.Type, name string, out host.Type, impl func(recv any, args []any) (any, error), in ...host.Type) *host.Func {
	return &host.Func{
		Ident: name, Declarer: owner, In: in, Out: out,
		Impl: func(_ context.Context, recv any, args []any) (any, error) { return impl(recv, args) },
	}
}

func constant(v any) func(any, []any) (any, error) {
	return func(any, []any) (any, error) { return v, nil }
}

func asPoint(recv any) *point {
	switch p := recv.(type) {
	case *point:
		return p
	case point3:
		return p.point
	}
	return nil
}

func newTestHost() *testHost {
	h := &testHost{
		types:       make(map[string]host.Type),
		origin:      &point{},
		resolves:    make(map[string]int),
		methodScans: make(map[string]int),
	}
	for _, t := range []host.Type{pointType, point3Type, innerType, altPoint, shapeType, greeterType} {
		h.types[t.Name()] = t
	}

	statik := fn(pointType, "max", host.IntType, func(_ any, a []any) (any, error) {
		if a[0].(int32) > a[1].(int32) {
			return a[0], nil
		}
		return a[1], nil
	}, host.IntType, host.IntType)
	statik.IsStatic = true

	h.fields = map[string][]host.Field{
		pointType.Name(): {
			&host.Slot{Ident: "x", Declarer: pointType, Of: host.IntType,
				Getter: func(r any) (any, error) { return asPoint(r).X, nil },
				Setter: func(r any, v any) error { asPoint(r).X = v.(int32); return nil }},
			&host.Slot{Ident: "y", Declarer: pointType, Of: host.IntType,
				Getter: func(r any) (any, error) { return asPoint(r).Y, nil },
				Setter: func(r any, v any) error { asPoint(r).Y = v.(int32); return nil }},
			&host.Slot{Ident: "ORIGIN", Declarer: pointType, Of: pointType, IsStatic: true,
				Getter: func(any) (any, error) { return h.origin, nil }},
			&host.Slot{Ident: "COUNT", Declarer: pointType, Of: host.IntType, IsStatic: true,
				Getter: func(any) (any, error) { return h.count, nil },
				Setter: func(_ any, v any) error { h.count = v.(int32); return nil }},
		},
	}
	h.methods = map[string][]host.Method{
		pointType.Name(): {
			fn(pointType, "f", host.StringType, constant("int"), host.IntType),
			fn(pointType, "f", host.StringType, constant("long"), host.LongType),
			fn(pointType, "g", host.StringType, constant("object"), host.ObjectType),
			fn(pointType, "getName", host.StringType, func(r any, _ []any) (any, error) {
				return asPoint(r).name, nil
			}),
			fn(pointType, "setName", nil, func(r any, a []any) (any, error) {
				asPoint(r).name = a[0].(string)
				return nil, nil
			}, host.StringType),
			fn(pointType, "isVisible", host.BooleanType, constant(true)),
			fn(pointType, "fail", nil, func(any, []any) (any, error) {
				return nil, host.Throw(host.IllegalArgumentType, "bad point")
			}),
			statik,
		},
		point3Type.Name(): {
			fn(point3Type, "f", host.StringType, constant("int3"), host.IntType),
		},
		greeterType.Name(): {
			fn(greeterType, "greet", host.StringType, nil, host.StringType),
		},
		shapeType.Name(): {
			fn(shapeType, "area", host.DoubleType, nil),
		},
	}
	h.ctors = map[string][]host.Constructor{
		pointType.Name(): {
			&host.Maker{Declarer: pointType, In: []host.Type{host.IntType, host.IntType},
				Impl: func(_ context.Context, a []any) (any, error) {
					return &point{X: a[0].(int32), Y: a[1].(int32)}, nil
				}},
		},
	}
	return h
}

func (h *testHost) ResolveType(name string) (host.Type, bool) {
	h.resolves[name]++
	t, ok := h.types[name]
	return t, ok
}

func (h *testHost) TypeOf(v any) host.Type {
	switch v.(type) {
	case *point:
		return pointType
	case point3:
		return point3Type
	}
	return nil
}

func (h *testHost) Fields(t host.Type, name string, _ bool) []host.Field {
	var out []host.Field
	for _, f := range h.fields[t.Name()] {
		if name == "" || f.Name() == name {
			out = append(out, f)
		}
	}
	return out
}

func (h *testHost) Methods(t host.Type, name string, arity int, _ bool) []host.Method {
	h.methodScans[t.Name()]++
	var out []host.Method
	for _, m := range h.methods[t.Name()] {
		if (name == "" || m.Name() == name) && (arity < 0 || len(m.Params()) == arity) {
			out = append(out, m)
		}
	}
	return out
}

func (h *testHost) Constructors(t host.Type, _ bool) []host.Constructor {
	return h.ctors[t.Name()]
}

// register adds a type after the environment has started and announces the
// change.
func (h *testHost) register(t host.Type) {
	h.types[t.Name()] = t
	h.Notify()
}

// newTestEnv builds an environment over a fresh testHost with the test
// package imported into the global scope.
func newTestEnv(t *testing.T, opts ...func(*config.Config)) (*Environment, *testHost) {
	t.Helper()
	h := newTestHost()
	cfg := config.Default()
	for _, o := range opts {
		o(cfg)
	}
	env := NewEnvironment(h, cfg)
	t.Cleanup(env.Close)
	env.Global().ImportPackage("test")
	return env, h
}

func withoutVivify(c *config.Config) {
	off := false
	c.AutoVivify = &off
}

func withLocalScoping(c *config.Config) { c.LocalScoping = true }

// body returns a method body computing a value from the local scope.
func body(f func(local *Scope) (Object, error)) Body {
	return BodyFunc(func(_ *CallStack, local *Scope) (Object, error) { return f(local) })
}

func mustGet(t *testing.T, s *Scope, name string) Object {
	t.Helper()
	v, err := s.GetVariable(name)
	if err != nil {
		t.Fatalf("GetVariable(%q): %v", name, err)
	}
	return v
}

func mustSet(t *testing.T, s *Scope, name string, v Object) {
	t.Helper()
	if err := s.SetVariable(name, v, false); err != nil {
		t.Fatalf("SetVariable(%q): %v", name, err)
	}
}

func resolve(t *testing.T, s *Scope, cs *CallStack, name string) Object {
	t.Helper()
	obj, err := s.NameResolver(name).ToObject(cs, false)
	if err != nil {
		t.Fatalf("ToObject(%q): %v", name, err)
	}
	return obj
}

// wantErr fails unless err is an engine error whose message contains want.
func wantErr(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", want)
	}
	if !strings.Contains(err.Error(), want) {
		t.Fatalf("error = %q, want it to contain %q", err.Error(), want)
	}
}

// wantException fails unless err is a target error carrying an exception of
// class want.
func wantException(t *testing.T, err error, want host.Type) *TargetError {
	t.Helper()
	var te *TargetError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v (%T), want *TargetError", err, err)
	}
	exc, ok := te.Exception()
	if !ok {
		t.Fatalf("target error %v carries no host exception", te)
	}
	if !host.Same(exc.Class, want) {
		t.Fatalf("exception class = %s, want %s", exc.Class.Name(), want.Name())
	}
	return te
}

func primValue(t *testing.T, o Object) any {
	t.Helper()
	p, ok := o.(*Primitive)
	if !ok {
		t.Fatalf("got %T (%s), want *Primitive", o, o.Inspect())
	}
	return p.Value()
}
