package host

import (
	"context"
	"testing"
)

func TestAssignableFrom(t *testing.T) {
	base := NewClass("test.Base", nil)
	runnable := NewInterface("test.Runnable")
	derived := NewClass("test.Derived", base, runnable)

	tests := []struct {
		to, from Type
		want     bool
	}{
		{ObjectType, StringType, true},
		{CharSequenceType, StringType, true},
		{StringType, ObjectType, false},
		{base, derived, true},
		{derived, base, false},
		{runnable, derived, true},
		{ObjectType, runnable, true},
		{NumberType, IntWrapper, true},
		{IntType, IntType, true},
		{LongType, IntType, false},
		{ObjectType, IntType, false},
		{ArrayOf(ObjectType), ArrayOf(StringType), true},
		{ArrayOf(LongType), ArrayOf(IntType), false},
		{ObjectType, ArrayOf(IntType), true},
	}
	for _, tt := range tests {
		if got := AssignableFrom(tt.to, tt.from); got != tt.want {
			t.Errorf("AssignableFrom(%s, %s) = %v, want %v", tt.to.Name(), tt.from.Name(), got, tt.want)
		}
	}
}

func TestArrayOfIsIdentityStable(t *testing.T) {
	a := ArrayOf(IntType)
	b := ArrayOf(IntType)
	if a != b {
		t.Fatalf("ArrayOf returned distinct instances for int[]")
	}
	if a.Name() != "int[]" {
		t.Errorf("name = %q, want int[]", a.Name())
	}
	got, ok := Builtin("lang.String[][]")
	if !ok || got.Elem().Elem() != StringType {
		t.Errorf("Builtin(lang.String[][]) = %v, %v", got, ok)
	}
}

func TestWrappers(t *testing.T) {
	for _, p := range []Type{BooleanType, ByteType, ShortType, CharType, IntType, LongType, FloatType, DoubleType} {
		w := WrapperOf(p)
		if w == nil {
			t.Fatalf("no wrapper for %s", p.Name())
		}
		if Unbox(w) != p {
			t.Errorf("Unbox(%s) = %v, want %s", w.Name(), Unbox(w), p.Name())
		}
	}
	if IsWrapper(StringType) {
		t.Errorf("String reported as wrapper")
	}
}

func TestLangMembers(t *testing.T) {
	ms := Lang.Methods(StringType, "substring", 2, false)
	if len(ms) != 1 {
		t.Fatalf("expected 1 substring(int, int), got %d", len(ms))
	}
	got, err := ms[0].Call(context.Background(), "dynlink", []any{int32(3), int32(7)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "link" {
		t.Errorf("substring = %v, want link", got)
	}
	_, err = ms[0].Call(context.Background(), "abc", []any{int32(2), int32(9)})
	exc, ok := err.(*Exception)
	if !ok || exc.Class != IndexOutOfBoundsType {
		t.Errorf("expected IndexOutOfBoundsException, got %v", err)
	}
}

func TestChainTypeOfAndNotify(t *testing.T) {
	c := NewChain()
	if got := c.TypeOf(int32(1)); got != IntWrapper {
		t.Errorf("TypeOf(int32) = %v, want lang.Integer", got)
	}
	if got := c.TypeOf([]int32{1}); got != ArrayOf(IntType) {
		t.Errorf("TypeOf([]int32) = %v, want int[]", got)
	}
	if got := c.TypeOf(struct{}{}); got != ObjectType {
		t.Errorf("TypeOf(struct) = %v, want lang.Object", got)
	}

	var b Broadcaster
	outer := NewChain(notifying{&b})
	calls := 0
	cancel := outer.Subscribe(func() { calls++ })
	b.Notify()
	cancel()
	b.Notify()
	if calls != 1 {
		t.Errorf("listener ran %d times, want 1", calls)
	}
}

type notifying struct{ *Broadcaster }

func (notifying) ResolveType(string) (Type, bool)          { return nil, false }
func (notifying) TypeOf(any) Type                          { return nil }
func (notifying) Fields(Type, string, bool) []Field        { return nil }
func (notifying) Methods(Type, string, int, bool) []Method { return nil }
func (notifying) Constructors(Type, bool) []Constructor    { return nil }

func TestArraySet(t *testing.T) {
	xs := []int{1, 2, 3}
	if err := ArraySet(xs, 1, int64(42)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if xs[1] != 42 {
		t.Errorf("xs[1] = %d, want 42", xs[1])
	}
	v, err := ArrayGet(xs, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != int64(42) {
		t.Errorf("ArrayGet = %#v, want int64(42)", v)
	}
	if _, err := ArrayGet(xs, 3); err == nil {
		t.Errorf("expected out of bounds error")
	}
}
