package evaluator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/funvibe/dynlink/internal/host"
)

func invoke(t *testing.T, s *Scope, cs *CallStack, name string, args ...Object) Object {
	t.Helper()
	res, err := s.NameResolver(name).InvokeMethod(args, cs, nil)
	if err != nil {
		t.Fatalf("%s(...): %v", name, err)
	}
	return res
}

func TestHostOverloadResolution(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	cs := NewCallStack(g)
	mustSet(t, g, "p", env.Wrap(&point{}, nil))

	tests := []struct {
		arg  Object
		want string
	}{
		{Int(1), "int"},
		{Long(1), "long"},
		{Short(1), "int"},
		{Char('c'), "int"},
		{&HostObject{Value: int32(1), Class: host.IntWrapper}, "int"},
	}
	for _, tt := range tests {
		if got := invoke(t, g, cs, "p.f", tt.arg).Inspect(); got != tt.want {
			t.Errorf("p.f(%s) = %s, want %s", host.DisplayName(tt.arg.RuntimeType()), got, tt.want)
		}
	}
	if got := invoke(t, g, cs, "p.g", String("s")).Inspect(); got != "object" {
		t.Errorf("p.g(String) = %s, want object", got)
	}
	if got := invoke(t, g, cs, "p.g", Int(1)).Inspect(); got != "object" {
		t.Errorf("p.g(int) = %s, want object (boxing)", got)
	}

	_, err := g.NameResolver("p.h").InvokeMethod([]Object{Int(1)}, cs, nil)
	wantErr(t, err, "Method h(int) not found in class 'test.Point'")
	_, err = g.NameResolver("p.f").InvokeMethod([]Object{Bool(true)}, cs, nil)
	wantErr(t, err, "Method f(boolean) not found in class 'test.Point'")
}

func TestOverrideHidesInheritedMethod(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	cs := NewCallStack(g)
	mustSet(t, g, "q", env.Wrap(point3{&point{}}, nil))

	if got := invoke(t, g, cs, "q.f", Int(1)).Inspect(); got != "int3" {
		t.Errorf("q.f(int) = %s, want the override", got)
	}
	if got := invoke(t, g, cs, "q.f", Long(1)).Inspect(); got != "long" {
		t.Errorf("q.f(long) = %s, want the inherited overload", got)
	}
}

func TestObjectMethodsOnHostValues(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	cs := NewCallStack(g)
	mustSet(t, g, "s", String("hello"))
	mustSet(t, g, "i", Int(42))

	if v := primValue(t, invoke(t, g, cs, "s.length")); v != int32(5) {
		t.Errorf("s.length() = %v, want 5", v)
	}
	if got := invoke(t, g, cs, "s.substring", Int(1), Int(3)).Inspect(); got != "el" {
		t.Errorf("s.substring(1, 3) = %s, want el", got)
	}
	if got := invoke(t, g, cs, "i.toString").Inspect(); got != "42" {
		t.Errorf("i.toString() = %s, want 42 (boxed receiver)", got)
	}
	if v := primValue(t, invoke(t, g, cs, "i.longValue")); v != int64(42) {
		t.Errorf("i.longValue() = %v, want 42", v)
	}
}

func TestStaticInvocation(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	cs := NewCallStack(g)

	if v := primValue(t, invoke(t, g, cs, "Point.max", Int(1), Int(2))); v != int32(2) {
		t.Errorf("Point.max(1, 2) = %v, want 2", v)
	}
	if v := primValue(t, invoke(t, g, cs, "test.Point.max", Byte(9), Int(2))); v != int32(9) {
		t.Errorf("test.Point.max(9, 2) = %v, want 9", v)
	}

	_, err := g.NameResolver("Point.f").InvokeMethod([]Object{Int(1)}, cs, nil)
	wantErr(t, err, "Cannot reach instance method: f(int) from static context: test.Point")
	_, err = g.NameResolver("Point.nope").InvokeMethod(nil, cs, nil)
	wantErr(t, err, "Static method nope() not found in class 'test.Point'")

	mustSet(t, g, "p", env.Wrap(&point{}, nil))
	if v := primValue(t, invoke(t, g, cs, "p.max", Int(3), Int(2))); v != int32(3) {
		t.Errorf("static method through an instance = %v, want 3", v)
	}
}

func TestInvocationTargets(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	cs := NewCallStack(g)
	mustSet(t, g, "n", NULL)

	_, err := g.NameResolver("n.f").InvokeMethod(nil, cs, nil)
	te := wantException(t, err, host.NullPointerType)
	if te.Native {
		t.Error("null receiver reported as a host exception")
	}

	_, err = g.NameResolver("u.f").InvokeMethod(nil, cs, nil)
	wantErr(t, err, "Attempt to resolve method: f() on undefined variable or class name: u")

	_, err = env.InvokeObjectMethod(VOID, "f", nil, cs, nil)
	wantErr(t, err, "Attempt to invoke method: f() on undefined value")

	_, err = env.InvokeObjectMethod(NULL, "f", nil, cs, nil)
	wantException(t, err, host.NullPointerType)
}

func TestHostExceptionIsNative(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	cs := NewCallStack(g)
	mustSet(t, g, "p", env.Wrap(&point{}, nil))

	node := SimpleNode{LineNo: 4, Code: "p.fail()", File: "demo.dl"}
	_, err := g.NameResolver("p.fail").InvokeMethod(nil, cs, node)
	te := wantException(t, err, host.IllegalArgumentType)
	if !te.Native {
		t.Error("host exception not marked native")
	}
	if te.Node == nil || te.Node.Line() != 4 {
		t.Errorf("error node = %v, want line 4", te.Node)
	}
	wantErr(t, err, "demo.dl: line 4: IllegalArgumentException: bad point")
}

func TestConstruct(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	cs := NewCallStack(g)

	obj, err := env.Construct(pointType, []Object{Int(1), Short(2)}, cs, nil)
	if err != nil {
		t.Fatal(err)
	}
	ho, ok := obj.(*HostObject)
	if !ok || ho.Class != pointType {
		t.Fatalf("Construct = %#v, want a test.Point", obj)
	}
	if p := ho.Value.(*point); p.X != 1 || p.Y != 2 {
		t.Errorf("constructed point = %+v", p)
	}

	_, err = env.Construct(pointType, []Object{String("x")}, cs, nil)
	wantErr(t, err, "Can't find constructor: test.Point(String) in class: test.Point")
	_, err = env.Construct(shapeType, nil, cs, nil)
	wantErr(t, err, "Can't create instance of an interface: test.Shape")

	s, err := env.Construct(host.StringType, []Object{String("copy")}, cs, nil)
	if err != nil || s.Inspect() != "copy" {
		t.Errorf("new String(copy) = %v, %v", s, err)
	}
}

func addMethod(g *Scope) {
	g.AddMethod(NewMethod("add", []string{"a", "b"}, []host.Type{host.IntType, host.IntType}, host.IntType,
		body(func(local *Scope) (Object, error) {
			a, _ := local.GetVariable("a")
			b, _ := local.GetVariable("b")
			return BinaryOperation(a, b, "+")
		}), 0))
}

func TestScriptMethodInvocation(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	cs := NewCallStack(g)
	addMethod(g)

	if v := primValue(t, invoke(t, g, cs, "add", Int(2), Byte(3))); v != int32(5) {
		t.Errorf("add(2, 3) = %v, want 5", v)
	}
	if cs.Depth() != 1 {
		t.Errorf("call stack depth after return = %d, want 1", cs.Depth())
	}

	_, err := g.NameResolver("nope").InvokeMethod([]Object{Int(1)}, cs, nil)
	wantErr(t, err, "Command not found: nope(int)")
	_, err = g.NameResolver("add").InvokeMethod([]Object{Long(1), Int(1)}, cs, nil)
	wantErr(t, err, "Command not found: add(long, int)")

	m, _ := g.GetMethod("add", []host.Type{host.IntType, host.IntType}, false)
	_, err = m.Invoke([]Object{Int(1)}, cs, nil)
	wantErr(t, err, "Wrong number of arguments for local method: add")
	_, err = m.Invoke([]Object{Int(1), String("x")}, cs, nil)
	wantErr(t, err, "Invalid argument: `b' for method: add : Can't assign String to int")
}

func TestScriptMethodReturns(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	cs := NewCallStack(g)

	g.AddMethod(NewMethod("v", nil, nil, host.VoidType, body(func(*Scope) (Object, error) {
		return &ReturnValue{Value: Int(1)}, nil
	}), 0))
	_, err := g.NameResolver("v").InvokeMethod(nil, cs, nil)
	wantErr(t, err, "Cannot return value from void method")

	g.AddMethod(NewMethod("bare", nil, nil, host.VoidType, body(func(*Scope) (Object, error) {
		return &ReturnValue{}, nil
	}), 0))
	if got := invoke(t, g, cs, "bare"); got != VOID {
		t.Errorf("bare return = %s, want void", got.Inspect())
	}

	g.AddMethod(NewMethod("wide", nil, nil, host.LongType, body(func(*Scope) (Object, error) {
		return &ReturnValue{Value: Int(3)}, nil
	}), 0))
	if got := invoke(t, g, cs, "wide").(*Primitive); !host.Same(got.PrimType(), host.LongType) {
		t.Errorf("wide() returned %s, want long", host.DisplayName(got.PrimType()))
	}

	g.AddMethod(NewMethod("bad", nil, nil, host.IntType, body(func(*Scope) (Object, error) {
		return String("x"), nil
	}), 0))
	_, err = g.NameResolver("bad").InvokeMethod(nil, cs, nil)
	wantErr(t, err, "Incorrect type returned from method: bad: ")

	g.AddMethod(NewMethod("loose", nil, nil, nil, body(func(*Scope) (Object, error) {
		return String("any"), nil
	}), 0))
	if got := invoke(t, g, cs, "loose"); got.Inspect() != "any" {
		t.Errorf("loose() = %s", got.Inspect())
	}
}

func TestScriptMethodParameters(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	cs := NewCallStack(g)
	var seen Object
	g.AddMethod(NewMethod("keep", []string{"a"}, nil, nil, body(func(local *Scope) (Object, error) {
		seen, _ = local.GetVariable("a")
		return nil, nil
	}), 0))

	invoke(t, g, cs, "keep", String("x"))
	if seen == nil || seen.Inspect() != "x" {
		t.Errorf("loose parameter = %v, want x", seen)
	}
	if got := mustGet(t, g, "a"); got != VOID {
		t.Errorf("parameter leaked into the declaring scope: %s", got.Inspect())
	}
	_, err := g.NameResolver("keep").InvokeMethod([]Object{VOID}, cs, nil)
	wantErr(t, err, "Undefined variable or class name, parameter: a to method: keep")
}

func TestMethodBodyErrors(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	cs := NewCallStack(g)
	boom := errors.New("boom")
	g.AddMethod(NewMethod("explode", nil, nil, nil, body(func(*Scope) (Object, error) {
		return nil, boom
	}), 0))

	_, err := g.NameResolver("explode").InvokeMethod(nil, cs, nil)
	var te *TargetError
	if !errors.As(err, &te) || te.Native {
		t.Fatalf("error = %v (%T), want a script target error", err, err)
	}
	if !errors.Is(err, boom) {
		t.Error("target error does not wrap the body error")
	}
	if len(te.StackTrace) != 2 || te.StackTrace[0].Name != "explode" {
		t.Errorf("stack trace = %+v, want explode then global", te.StackTrace)
	}
	if cs.Depth() != 1 {
		t.Errorf("frame not popped after error: depth %d", cs.Depth())
	}
}

func TestInvokeFallback(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	cs := NewCallStack(g)
	var got []string
	g.AddMethod(NewMethod("invoke", []string{"name", "args"}, nil, nil, body(func(local *Scope) (Object, error) {
		name, _ := local.GetVariable("name")
		args, _ := local.GetVariable("args")
		got = append(got, fmt.Sprintf("%s%v", name.Inspect(), Unwrap(args)))
		return String("handled"), nil
	}), 0))

	if res := invoke(t, g, cs, "missing", Int(1), String("a")); res.Inspect() != "handled" {
		t.Errorf("missing(...) = %s", res.Inspect())
	}
	obj := NewScope(g, "obj").This()
	if res, err := env.InvokeObjectMethod(obj, "other", nil, cs, nil); err != nil || res.Inspect() != "handled" {
		t.Errorf("obj.other() = %v, %v", res, err)
	}
	want := []string{"missing[1 a]", "other[]"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("invoke saw %v, want %v", got, want)
	}
}

func TestSelfHandleMethods(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	cs := NewCallStack(g)
	addMethod(g)
	s := NewScope(g, "obj")
	obj := s.This()

	tests := []struct {
		name string
		args []Object
		want string
	}{
		{"toString", nil, "'this' reference to scope: obj"},
		{"equals", []Object{obj}, "true"},
		{"equals", []Object{g.This()}, "false"},
		{"hashCode", nil, fmt.Sprint(s.ID())},
		{"add", []Object{Int(1), Int(2)}, "3"},
		{"getClass", nil, "class engine.This"},
		{"invokeMethod", []Object{String("add"), objectArray([]Object{Int(4), Int(5)})}, "9"},
	}
	for _, tt := range tests {
		res, err := env.InvokeObjectMethod(obj, tt.name, tt.args, cs, nil)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if res.Inspect() != tt.want {
			t.Errorf("%s = %s, want %s", tt.name, res.Inspect(), tt.want)
		}
	}

	_, err := env.InvokeObjectMethod(obj, "m", nil, cs, nil)
	wantErr(t, err, "Method m() not found in scripted object: obj")

	s.AddMethod(NewMethod("toString", nil, nil, host.StringType, body(func(*Scope) (Object, error) {
		return String("custom"), nil
	}), 0))
	if res, _ := env.InvokeObjectMethod(obj, "toString", nil, cs, nil); res.Inspect() != "custom" {
		t.Errorf("script toString = %s, want custom", res.Inspect())
	}
}

func TestSuperMethods(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()

	base := NewScope(g, "Base")
	base.AddMethod(NewMethod("hello", nil, nil, nil, body(func(*Scope) (Object, error) {
		return String("base"), nil
	}), 0))
	cls := NewClassScope(base, "Derived")
	cls.SetClassInstance(cls.This())
	cls.AddMethod(NewMethod("hello", nil, nil, nil, body(func(*Scope) (Object, error) {
		return String("derived"), nil
	}), 0))
	run := NewMethodScope(cls, "run")
	cs := NewCallStack(g)
	cs.Push(run)

	if got := invoke(t, run, cs, "hello"); got.Inspect() != "derived" {
		t.Errorf("hello() = %s, want derived", got.Inspect())
	}
	if got := invoke(t, run, cs, "super.hello"); got.Inspect() != "base" {
		t.Errorf("super.hello() = %s, want base", got.Inspect())
	}

	hostCls := NewClassScope(g, "Point3")
	hostCls.SetClassInstance(env.Wrap(point3{&point{}}, nil))
	hostRun := NewMethodScope(hostCls, "run")
	cs.Push(hostRun)
	if got := invoke(t, hostRun, cs, "super.f", Int(1)); got.Inspect() != "int" {
		t.Errorf("super.f(1) on a host instance = %s, want the superclass method", got.Inspect())
	}
	if got := invoke(t, hostRun, cs, "f", Int(1)); got.Inspect() != "int3" {
		t.Errorf("f(1) in the type body = %s, want int3", got.Inspect())
	}
}

func TestSynchronizedMethodIsReentrant(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	cs := NewCallStack(g)
	var calls int
	g.AddMethod(NewMethod("countdown", []string{"n"}, []host.Type{host.IntType}, host.IntType,
		BodyFunc(func(cs *CallStack, local *Scope) (Object, error) {
			calls++
			n, _ := local.GetVariable("n")
			if primValue(t, n) == int32(0) {
				return Int(0), nil
			}
			next, err := BinaryOperation(n, Int(1), "-")
			if err != nil {
				return nil, err
			}
			return local.NameResolver("countdown").InvokeMethod([]Object{next}, cs, nil)
		}), ModSynchronized))

	invoke(t, g, cs, "countdown", Int(3))
	if calls != 4 {
		t.Errorf("countdown ran %d times, want 4", calls)
	}
}

func TestProxyPresentation(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	s := NewScope(g, "greeter")
	s.AddMethod(NewMethod("greet", []string{"who"}, []host.Type{host.StringType}, host.StringType,
		body(func(local *Scope) (Object, error) {
			who, _ := local.GetVariable("who")
			return String("hi " + who.Inspect()), nil
		}), 0))

	obj, err := Cast(s.This(), greeterType, ASSIGNMENT)
	if err != nil {
		t.Fatal(err)
	}
	proxy, ok := obj.(*Proxy)
	if !ok || proxy.RuntimeType() != greeterType {
		t.Fatalf("Cast to Greeter = %#v, want a proxy", obj)
	}
	res, err := proxy.Invoke(context.Background(), "greet", "bob")
	if err != nil || res != "hi bob" {
		t.Errorf("greet(bob) = %v, %v; want hi bob", res, err)
	}

	// toString is not part of Greeter but still reaches the scope
	res2, err := env.InvokeObjectMethod(proxy, "toString", nil, NewCallStack(g), nil)
	if err != nil || res2.Inspect() != "'this' reference to scope: greeter" {
		t.Errorf("proxy toString = %v, %v", res2, err)
	}

	_, err = Cast(s.This(), shapeType, ASSIGNMENT)
	wantErr(t, err, "Can't present scope: greeter as interface: test.Shape")

	iface, err := env.InvokeObjectMethod(s.This(), "getInterface", []Object{&TypeRef{Of: greeterType}}, NewCallStack(g), nil)
	if _, ok := iface.(*Proxy); err != nil || !ok {
		t.Errorf("getInterface(Greeter) = %v, %v", iface, err)
	}
}

func TestCustomPresenter(t *testing.T) {
	env, _ := newTestEnv(t)
	s := NewScope(env.Global(), "none")
	s.SetPresenter(refusePresenter{})
	_, err := Cast(s.This(), greeterType, ASSIGNMENT)
	wantErr(t, err, "refused")
}

type refusePresenter struct{}

func (refusePresenter) CanPresentAs(host.Type) bool { return false }
func (refusePresenter) PresentAs(iface host.Type) (Object, error) {
	return nil, newError("refused %s", iface.Name())
}
