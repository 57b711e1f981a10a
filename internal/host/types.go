// Package host describes the host object system the engine runs on top of:
// a class lattice with primitives, boxed wrappers, arrays, classes with single
// inheritance and interfaces, plus the reflective capability used to look up
// members of those types and invoke them.
//
// Concrete hosts (Go values via reflect, protobuf descriptors) implement
// Capability and describe their types with *BasicType.
package host

import (
	"strings"
	"sync"
)

// Kind classifies a Type.
type Kind int

const (
	KindPrimitive Kind = iota
	KindClass
	KindInterface
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindClass:
		return "class"
	case KindInterface:
		return "interface"
	case KindArray:
		return "array"
	}
	return "unknown"
}

// Prim identifies a primitive type. PrimNone marks reference types.
type Prim int

const (
	PrimNone Prim = iota
	Boolean
	Byte
	Short
	Char
	Int
	Long
	Float
	Double
	Void
)

// Type is a host type. Types are compared by name (see Same), hosts are
// expected to hand out one instance per name.
type Type interface {
	Name() string
	Kind() Kind
	Prim() Prim
	// Super is the superclass, nil for lang.Object, interfaces, primitives.
	Super() Type
	Interfaces() []Type
	// Elem is the component type of an array type.
	Elem() Type
	Public() bool
}

// BasicType is the Type implementation shared by the builtin lattice and the
// concrete hosts. Its setters are meant to be called while a host is still
// building its type table, before the type is published.
type BasicType struct {
	name   string
	kind   Kind
	prim   Prim
	super  Type
	ifaces []Type
	elem   Type
	hidden bool
}

func (t *BasicType) Name() string       { return t.name }
func (t *BasicType) Kind() Kind         { return t.kind }
func (t *BasicType) Prim() Prim         { return t.prim }
func (t *BasicType) Super() Type        { return t.super }
func (t *BasicType) Interfaces() []Type { return t.ifaces }
func (t *BasicType) Elem() Type         { return t.elem }
func (t *BasicType) Public() bool       { return !t.hidden }
func (t *BasicType) String() string     { return t.name }

// SetSuper replaces the superclass of a class type.
func (t *BasicType) SetSuper(super Type) { t.super = super }

// AddInterface records an implemented (or, for interfaces, extended) interface.
func (t *BasicType) AddInterface(iface Type) {
	for _, existing := range t.ifaces {
		if Same(existing, iface) {
			return
		}
	}
	t.ifaces = append(t.ifaces, iface)
}

// SetPublic toggles the public flag.
func (t *BasicType) SetPublic(public bool) { t.hidden = !public }

// NewClass creates a public class type. A nil super means lang.Object.
func NewClass(name string, super Type, ifaces ...Type) *BasicType {
	if super == nil && name != objectName {
		super = ObjectType
	}
	t := &BasicType{name: name, kind: KindClass, super: super}
	for _, i := range ifaces {
		t.AddInterface(i)
	}
	return t
}

// NewInterface creates a public interface type.
func NewInterface(name string, extends ...Type) *BasicType {
	t := &BasicType{name: name, kind: KindInterface}
	for _, i := range extends {
		t.AddInterface(i)
	}
	return t
}

func primitive(name string, p Prim) *BasicType {
	return &BasicType{name: name, kind: KindPrimitive, prim: p}
}

const objectName = "lang.Object"

var (
	BooleanType = primitive("boolean", Boolean)
	ByteType    = primitive("byte", Byte)
	ShortType   = primitive("short", Short)
	CharType    = primitive("char", Char)
	IntType     = primitive("int", Int)
	LongType    = primitive("long", Long)
	FloatType   = primitive("float", Float)
	DoubleType  = primitive("double", Double)
	VoidType    = primitive("void", Void)

	ObjectType       = &BasicType{name: objectName, kind: KindClass}
	CharSequenceType = NewInterface("lang.CharSequence")
	ComparableType   = NewInterface("lang.Comparable")
	NumberType       = NewClass("lang.Number", nil)
	StringType       = NewClass("lang.String", nil, CharSequenceType, ComparableType)
	ClassType        = NewClass("lang.Class", nil)

	BooleanWrapper = NewClass("lang.Boolean", nil, ComparableType)
	ByteWrapper    = NewClass("lang.Byte", NumberType, ComparableType)
	ShortWrapper   = NewClass("lang.Short", NumberType, ComparableType)
	CharWrapper    = NewClass("lang.Character", nil, ComparableType)
	IntWrapper     = NewClass("lang.Integer", NumberType, ComparableType)
	LongWrapper    = NewClass("lang.Long", NumberType, ComparableType)
	FloatWrapper   = NewClass("lang.Float", NumberType, ComparableType)
	DoubleWrapper  = NewClass("lang.Double", NumberType, ComparableType)
	VoidWrapper    = NewClass("lang.Void", nil)

	ThrowableType          = NewClass("lang.Throwable", nil)
	ExceptionType          = NewClass("lang.Exception", ThrowableType)
	RuntimeExceptionType   = NewClass("lang.RuntimeException", ExceptionType)
	NullPointerType        = NewClass("lang.NullPointerException", RuntimeExceptionType)
	ClassCastType          = NewClass("lang.ClassCastException", RuntimeExceptionType)
	ArithmeticType         = NewClass("lang.ArithmeticException", RuntimeExceptionType)
	IndexOutOfBoundsType   = NewClass("lang.IndexOutOfBoundsException", RuntimeExceptionType)
	IllegalArgumentType    = NewClass("lang.IllegalArgumentException", RuntimeExceptionType)
	UnsupportedOperationTy = NewClass("lang.UnsupportedOperationException", RuntimeExceptionType)
)

var primTypes = map[Prim]Type{
	Boolean: BooleanType, Byte: ByteType, Short: ShortType, Char: CharType,
	Int: IntType, Long: LongType, Float: FloatType, Double: DoubleType, Void: VoidType,
}

var wrappers = map[Prim]Type{
	Boolean: BooleanWrapper, Byte: ByteWrapper, Short: ShortWrapper, Char: CharWrapper,
	Int: IntWrapper, Long: LongWrapper, Float: FloatWrapper, Double: DoubleWrapper, Void: VoidWrapper,
}

var builtinTypes = map[string]Type{}

func init() {
	for _, t := range []Type{
		BooleanType, ByteType, ShortType, CharType, IntType, LongType, FloatType, DoubleType, VoidType,
		ObjectType, CharSequenceType, ComparableType, NumberType, StringType, ClassType,
		BooleanWrapper, ByteWrapper, ShortWrapper, CharWrapper, IntWrapper, LongWrapper,
		FloatWrapper, DoubleWrapper, VoidWrapper,
		ThrowableType, ExceptionType, RuntimeExceptionType, NullPointerType, ClassCastType,
		ArithmeticType, IndexOutOfBoundsType, IllegalArgumentType, UnsupportedOperationTy,
	} {
		builtinTypes[t.Name()] = t
	}
}

// Builtin returns a type of the builtin lattice by its qualified name.
// Array names ("int[]", "lang.String[][]") are accepted too.
func Builtin(name string) (Type, bool) {
	if elem, ok := strings.CutSuffix(name, "[]"); ok {
		et, ok := Builtin(elem)
		if !ok {
			return nil, false
		}
		return ArrayOf(et), true
	}
	t, ok := builtinTypes[name]
	return t, ok
}

// PrimType returns the primitive type for p.
func PrimType(p Prim) Type { return primTypes[p] }

// WrapperOf returns the boxed wrapper class for a primitive type, nil for
// reference types.
func WrapperOf(t Type) Type {
	if t == nil || t.Kind() != KindPrimitive {
		return nil
	}
	return wrappers[t.Prim()]
}

// Unbox returns the primitive type boxed by a wrapper class, nil if t is not
// a wrapper.
func Unbox(t Type) Type {
	if t == nil || t.Kind() != KindClass {
		return nil
	}
	for p, w := range wrappers {
		if Same(w, t) {
			return primTypes[p]
		}
	}
	return nil
}

// IsWrapper reports whether t is one of the boxed wrapper classes.
func IsWrapper(t Type) bool { return Unbox(t) != nil }

// IsPrimitive reports whether t is a primitive type (void included).
func IsPrimitive(t Type) bool { return t != nil && t.Kind() == KindPrimitive }

// IsNumeric reports whether t is a numeric primitive (char included).
func IsNumeric(t Type) bool {
	if !IsPrimitive(t) {
		return false
	}
	switch t.Prim() {
	case Byte, Short, Char, Int, Long, Float, Double:
		return true
	}
	return false
}

// Same reports whether a and b denote the same type.
func Same(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b || a.Name() == b.Name()
}

var arrays sync.Map // elem name -> *BasicType

// ArrayOf returns the array type with the given component type.
func ArrayOf(elem Type) Type {
	key := elem.Name()
	if t, ok := arrays.Load(key); ok {
		return t.(*BasicType)
	}
	t := &BasicType{name: key + "[]", kind: KindArray, elem: elem, super: ObjectType}
	actual, _ := arrays.LoadOrStore(key, t)
	return actual.(*BasicType)
}

// AssignableFrom reports whether a reference of type from may be stored in a
// reference of type to without conversion: identity, superclass chain,
// implemented interfaces and covariant reference arrays. Primitive types are
// only assignable from themselves.
func AssignableFrom(to, from Type) bool {
	if to == nil || from == nil {
		return false
	}
	if Same(to, from) {
		return true
	}
	if IsPrimitive(to) || IsPrimitive(from) {
		return false
	}
	if Same(to, ObjectType) {
		return true
	}
	if from.Kind() == KindArray {
		if to.Kind() != KindArray {
			return false
		}
		if IsPrimitive(to.Elem()) || IsPrimitive(from.Elem()) {
			return Same(to.Elem(), from.Elem())
		}
		return AssignableFrom(to.Elem(), from.Elem())
	}
	for t := from; t != nil; t = t.Super() {
		if Same(t, to) {
			return true
		}
		if to.Kind() == KindInterface && implements(t, to) {
			return true
		}
	}
	return false
}

func implements(t, iface Type) bool {
	for _, i := range t.Interfaces() {
		if Same(i, iface) || implements(i, iface) {
			return true
		}
	}
	return false
}

// SimpleName strips the package qualifier and any enclosing class names:
// "pkg.Outer$Inner" becomes "Inner".
func SimpleName(name string) string {
	if i := strings.LastIndexAny(name, ".$"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// DisplayName renders a type name for messages: package qualifiers of the
// builtin lang package are dropped and nested classes use dotted form.
func DisplayName(t Type) string {
	if t == nil {
		return "null"
	}
	name := strings.TrimPrefix(t.Name(), "lang.")
	return strings.ReplaceAll(name, "$", ".")
}
