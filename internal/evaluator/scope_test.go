package evaluator

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/funvibe/dynlink/internal/host"
)

func TestUndefinedSimpleNameIsVoid(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	if got := mustGet(t, g, "nope"); got != VOID {
		t.Errorf("GetVariable(nope) = %s, want void", got.Inspect())
	}
	if got := resolve(t, g, NewCallStack(g), "nope"); got != VOID {
		t.Errorf("ToObject(nope) = %s, want void", got.Inspect())
	}
}

func TestDeclareTypedVariable(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()

	if err := g.DeclareTypedVariable("x", host.IntType, Int(1), 0); err != nil {
		t.Fatal(err)
	}
	err := g.DeclareTypedVariable("x", host.LongType, Long(2), 0)
	wantErr(t, err, "Typed variable: x was previously declared with type: int")

	if err := g.DeclareTypedVariable("x", host.IntType, Int(2), 0); err != nil {
		t.Fatalf("redeclaring with the same type: %v", err)
	}
	if v := primValue(t, mustGet(t, g, "x")); v != int32(2) {
		t.Errorf("x = %v, want 2", v)
	}

	if err := g.DeclareTypedVariable("b", host.ByteType, Int(300), 0); err != nil {
		t.Fatalf("declaration narrows: %v", err)
	}
	if v := primValue(t, mustGet(t, g, "b")); v != int8(44) {
		t.Errorf("b = %v, want 44", v)
	}

	if err := g.DeclareTypedVariable("s", host.StringType, nil, 0); err != nil {
		t.Fatal(err)
	}
	if got := mustGet(t, g, "s"); got != NULL {
		t.Errorf("uninitialized String = %s, want null", got.Inspect())
	}
}

func TestTypedAssignmentConverts(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	if err := g.DeclareTypedVariable("x", host.IntType, nil, 0); err != nil {
		t.Fatal(err)
	}
	mustSet(t, g, "x", Byte(3))
	if got := mustGet(t, g, "x").(*Primitive); got.Value() != int32(3) || !host.Same(got.PrimType(), host.IntType) {
		t.Errorf("x = %v, want int 3", got.Value())
	}
	err := g.SetVariable("x", Long(1), false)
	wantErr(t, err, "Variable assignment: x: Can't assign long to int")
}

func TestShadowing(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	mustSet(t, g, "x", Int(1))

	local := NewMethodScope(g, "m")
	if err := local.DeclareTypedVariable("x", host.IntType, Int(2), 0); err != nil {
		t.Fatal(err)
	}
	if v := primValue(t, mustGet(t, local, "x")); v != int32(2) {
		t.Errorf("local x = %v, want 2", v)
	}
	if v := primValue(t, mustGet(t, g, "x")); v != int32(1) {
		t.Errorf("global x = %v, want 1", v)
	}

	// without a local declaration assignment finds the global
	block := NewScope(g, "block")
	mustSet(t, block, "x", Int(3))
	if v := primValue(t, mustGet(t, g, "x")); v != int32(3) {
		t.Errorf("global x after block assignment = %v, want 3", v)
	}
	if names := block.VariableNames(); len(names) != 0 {
		t.Errorf("block variables = %v, want none", names)
	}
}

func TestLocalScoping(t *testing.T) {
	env, _ := newTestEnv(t, withLocalScoping)
	g := env.Global()
	mustSet(t, g, "x", Int(1))

	child := NewScope(g, "child")
	mustSet(t, child, "x", Int(2))
	if v := primValue(t, mustGet(t, g, "x")); v != int32(1) {
		t.Errorf("global x = %v, want 1", v)
	}
	if v := primValue(t, mustGet(t, child, "x")); v != int32(2) {
		t.Errorf("child x = %v, want 2", v)
	}

	other := NewScope(g, "other")
	if err := other.SetVariable("x", Int(5), true); err != nil {
		t.Fatal(err)
	}
	if v := primValue(t, mustGet(t, g, "x")); v != int32(5) {
		t.Errorf("strict assignment under local scoping: global x = %v, want 5", v)
	}
}

func TestStrictAssignment(t *testing.T) {
	env, _ := newTestEnv(t)
	err := env.Global().SetVariable("y", Int(1), true)
	wantErr(t, err, "(strict mode) Assignment to undeclared variable: y")
}

func TestFinalVariables(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()

	if err := g.DeclareTypedVariable("k", host.IntType, Int(1), ModFinal); err != nil {
		t.Fatal(err)
	}
	err := g.SetVariable("k", Int(2), false)
	wantErr(t, err, "Cannot re-assign final variable k.")

	if err := g.DeclareTypedVariable("blank", host.IntType, nil, ModFinal); err != nil {
		t.Fatal(err)
	}
	if v := primValue(t, mustGet(t, g, "blank")); v != int32(0) {
		t.Errorf("blank final = %v, want 0", v)
	}
	mustSet(t, g, "blank", Int(4))
	if v := primValue(t, mustGet(t, g, "blank")); v != int32(4) {
		t.Errorf("blank final after first assignment = %v, want 4", v)
	}
	err = g.SetVariable("blank", Int(5), false)
	wantErr(t, err, "Cannot re-assign final variable blank.")
}

func TestClassScopeImportPrecedence(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()

	imported := NewScope(g, "imported")
	mustSet(t, imported, "v", String("import"))

	tests := []struct {
		name  string
		scope *Scope
		want  string
	}{
		{"class", NewClassScope(g, "C"), "import"},
		{"block", NewScope(g, "B"), "local"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.scope.SetLocalVariable("v", String("local"), false); err != nil {
				t.Fatal(err)
			}
			tt.scope.ImportObject(imported.This())
			got, err := tt.scope.GetVariableRecurse("v", false)
			if err != nil {
				t.Fatal(err)
			}
			if got.Inspect() != tt.want {
				t.Errorf("v = %s, want %s", got.Inspect(), tt.want)
			}
		})
	}
}

func TestImportedHostObject(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	p := &point{X: 4}
	cls := NewClassScope(g, "Point")
	cls.SetClassInstance(env.Wrap(p, nil))

	if v := primValue(t, mustGet(t, cls, "x")); v != int32(4) {
		t.Errorf("imported field x = %v, want 4", v)
	}
	mustSet(t, cls, "x", Int(9))
	if p.X != 9 {
		t.Errorf("assignment through import: p.X = %d, want 9", p.X)
	}

	m, err := cls.GetMethod("f", []host.Type{host.IntType}, false)
	if err != nil || m == nil {
		t.Fatalf("GetMethod(f(int)) = %v, %v", m, err)
	}
	res, err := m.Invoke([]Object{Int(1)}, NewCallStack(cls), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Inspect() != "int" {
		t.Errorf("imported f(1) = %s, want int", res.Inspect())
	}
}

func TestStaticImport(t *testing.T) {
	env, h := newTestEnv(t)
	h.count = 7
	s := NewScope(env.Global(), "s")
	s.ImportStatic(pointType)

	if v := primValue(t, mustGet(t, s, "COUNT")); v != int32(7) {
		t.Errorf("COUNT = %v, want 7", v)
	}
	if got := mustGet(t, s, "x"); got != VOID {
		t.Errorf("instance field through static import = %s, want void", got.Inspect())
	}
	m, err := s.GetMethod("max", []host.Type{host.IntType, host.IntType}, false)
	if err != nil || m == nil {
		t.Fatalf("GetMethod(max) = %v, %v", m, err)
	}
	if m, _ := s.GetMethod("g", []host.Type{host.StringType}, false); m != nil {
		t.Errorf("instance method through static import = %v, want none", m)
	}
}

func TestTypeImportPrecedence(t *testing.T) {
	env, h := newTestEnv(t)
	s := NewScope(env.Global(), "s")

	resolveName := func() string {
		t.Helper()
		got, ok := s.ResolveType("Point")
		if !ok {
			t.Fatal("Point not resolved")
		}
		return got.Name()
	}

	s.ImportPackage("alt")
	if got := resolveName(); got != "alt.Point" {
		t.Errorf("after import alt: %s, want alt.Point", got)
	}
	s.ImportPackage("test")
	if got := resolveName(); got != "test.Point" {
		t.Errorf("after re-import test: %s, want test.Point", got)
	}
	s.ImportClass("alt.Point")
	if got := resolveName(); got != "alt.Point" {
		t.Errorf("explicit class import: %s, want alt.Point", got)
	}
	if diff := cmp.Diff([]string{"alt", "test"}, s.ImportedPackages()); diff != "" {
		t.Errorf("ImportedPackages mismatch (-want +got):\n%s", diff)
	}

	if got, ok := s.ResolveType("int"); !ok || got != host.IntType {
		t.Errorf("ResolveType(int) = %v, %v", got, ok)
	}
	if got, ok := s.ResolveType("String"); !ok || got != host.StringType {
		t.Errorf("ResolveType(String) = %v, %v", got, ok)
	}
	if _, ok := s.ResolveType("Nope"); ok {
		t.Error("ResolveType(Nope) succeeded")
	}
	if h.resolves["test.Nope"] == 0 {
		t.Error("package imports were not consulted for Nope")
	}
}

func TestScriptProperties(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	var stored Object
	g.AddMethod(NewMethod("getColor", nil, nil, nil, body(func(*Scope) (Object, error) {
		return String("red"), nil
	}), 0))
	g.AddMethod(NewMethod("isOpen", nil, nil, host.BooleanType, body(func(*Scope) (Object, error) {
		return Bool(true), nil
	}), 0))
	g.AddMethod(NewMethod("setColor", []string{"c"}, nil, host.VoidType, body(func(local *Scope) (Object, error) {
		v, err := local.GetVariable("c")
		stored = v
		return nil, err
	}), 0))

	cs := NewCallStack(g)
	got, err := g.GetVariableOrProperty("color", cs)
	if err != nil || got.Inspect() != "red" {
		t.Errorf("color = %v, %v; want red", got, err)
	}
	got, err = g.GetVariableOrProperty("open", cs)
	if err != nil || primValue(t, got) != true {
		t.Errorf("open = %v, %v; want true", got, err)
	}
	if got, _ := g.GetVariableOrProperty("size", cs); got != VOID {
		t.Errorf("size = %s, want void", got.Inspect())
	}

	if err := g.SetVariableOrProperty("color", String("blue"), false); err != nil {
		t.Fatal(err)
	}
	if stored == nil || stored.Inspect() != "blue" {
		t.Errorf("setter received %v, want blue", stored)
	}
	for _, n := range g.VariableNames() {
		if n == "color" {
			t.Error("setter call also created a variable")
		}
	}
}

func TestScopeBookkeeping(t *testing.T) {
	env, _ := newTestEnv(t)
	g := env.Global()
	s := NewScope(g, "s")

	if s.This() != s.This() {
		t.Error("This is not identity stable")
	}
	if s.Super() != g.This() || g.Super() != g.This() {
		t.Error("Super does not refer to the parent")
	}
	if NewScope(s, "deep").Global() != g.This() {
		t.Error("Global does not refer to the root")
	}

	mustSet(t, s, "b", Int(1))
	mustSet(t, s, "a", Int(2))
	s.AddMethod(NewMethod("m", nil, nil, nil, nil, 0))
	if diff := cmp.Diff([]string{"a", "b"}, s.VariableNames()); diff != "" {
		t.Errorf("VariableNames mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"m"}, s.MethodNames()); diff != "" {
		t.Errorf("MethodNames mismatch (-want +got):\n%s", diff)
	}

	s.Unset("a")
	if got := mustGet(t, s, "a"); got != VOID {
		t.Errorf("a after Unset = %s, want void", got.Inspect())
	}
	s.Clear()
	if len(s.VariableNames()) != 0 || len(s.MethodNames()) != 0 {
		t.Error("Clear left members behind")
	}

	s.SetNode(SimpleNode{LineNo: 12, Code: "run()", File: "demo.dl"})
	inner := NewScope(s, "inner")
	if inner.InvocationLine() != 12 || inner.InvocationText() != "run()" {
		t.Errorf("inherited caller info = %d %q", inner.InvocationLine(), inner.InvocationText())
	}
	if g.InvocationLine() != -1 {
		t.Errorf("root InvocationLine = %d, want -1", g.InvocationLine())
	}
}

func TestClassInstanceFromStaticContext(t *testing.T) {
	env, _ := newTestEnv(t)
	cls := NewClassScope(env.Global(), "Static")
	cls.SetClassStatic(pointType)
	_, err := cls.ClassInstance()
	wantErr(t, err, "Can't refer to class instance from static context.")
}
