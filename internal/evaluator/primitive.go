package evaluator

import (
	"fmt"
	"strconv"

	"github.com/funvibe/dynlink/internal/host"
)

// Primitive holds a primitive value in its canonical Go representation.
// NULL has no value and no type; VOID has no value and the void type.
type Primitive struct {
	value any
	typ   host.Type
}

var (
	NULL = &Primitive{}
	VOID = &Primitive{typ: host.VoidType}
)

func (p *Primitive) Type() ObjectType {
	switch p {
	case NULL:
		return NULL_OBJ
	case VOID:
		return VOID_OBJ
	}
	return PRIMITIVE_OBJ
}

func (p *Primitive) RuntimeType() host.Type { return p.typ }

// PrimType is the primitive type of the value, nil for NULL.
func (p *Primitive) PrimType() host.Type { return p.typ }

// Value returns the canonical Go value, nil for NULL and VOID.
func (p *Primitive) Value() any { return p.value }

func (p *Primitive) IsNull() bool { return p == NULL }
func (p *Primitive) IsVoid() bool { return p == VOID }

func (p *Primitive) Inspect() string {
	switch p {
	case NULL:
		return "null"
	case VOID:
		return "void"
	}
	switch v := p.value.(type) {
	case uint16:
		return string(rune(v))
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fmt.Sprint(p.value)
}

// BooleanValue returns the value of a boolean primitive.
func (p *Primitive) BooleanValue() (bool, error) {
	if b, ok := p.value.(bool); ok {
		return b, nil
	}
	return false, newError("Primitive not a boolean")
}

// IntValue returns an integral primitive as int (char, byte, short, int).
func (p *Primitive) IntValue() (int, error) {
	switch v := p.value.(type) {
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case uint16:
		return int(v), nil
	case int32:
		return int(v), nil
	}
	return 0, newError("Primitive not an int: %s", p.Inspect())
}

// NewPrimitive wraps a canonical Go value (see host package docs).
func NewPrimitive(v any) *Primitive {
	v = host.Normalize(v)
	t, ok := host.PrimitiveOf(v)
	if !ok {
		internalError("not a primitive value: %T", v)
	}
	return &Primitive{value: v, typ: t}
}

func Bool(b bool) *Primitive      { return &Primitive{value: b, typ: host.BooleanType} }
func Byte(v int8) *Primitive      { return &Primitive{value: v, typ: host.ByteType} }
func Short(v int16) *Primitive    { return &Primitive{value: v, typ: host.ShortType} }
func Char(v uint16) *Primitive    { return &Primitive{value: v, typ: host.CharType} }
func Int(v int32) *Primitive      { return &Primitive{value: v, typ: host.IntType} }
func Long(v int64) *Primitive     { return &Primitive{value: v, typ: host.LongType} }
func Float(v float32) *Primitive  { return &Primitive{value: v, typ: host.FloatType} }
func Double(v float64) *Primitive { return &Primitive{value: v, typ: host.DoubleType} }

// DefaultValue is the initial value of a variable of type t: false for
// boolean, zero for other primitives, NULL for references and loose slots.
func DefaultValue(t host.Type) Object {
	if !host.IsPrimitive(t) {
		return NULL
	}
	switch t.Prim() {
	case host.Boolean:
		return Bool(false)
	case host.Void:
		return VOID
	}
	return &Primitive{value: castWrapper(t.Prim(), int32(0)), typ: t}
}

// castWrapper converts a canonical numeric or boolean value to the Go
// representation of primitive p. char is promoted to int first. Narrowing
// truncates the way integral casts do.
func castWrapper(p host.Prim, value any) any {
	if b, ok := value.(bool); ok {
		if p != host.Boolean {
			internalError("bad wrapper cast of boolean")
		}
		return b
	}
	if c, ok := value.(uint16); ok {
		value = int32(c)
	}
	var (
		i       int64
		f       float64
		isFloat bool
	)
	switch v := value.(type) {
	case int8:
		i = int64(v)
	case int16:
		i = int64(v)
	case int32:
		i = int64(v)
	case int64:
		i = v
	case float32:
		f, isFloat = float64(v), true
	case float64:
		f, isFloat = v, true
	default:
		internalError("bad type in cast: %T", value)
	}
	if isFloat {
		switch p {
		case host.Float:
			return float32(f)
		case host.Double:
			return f
		case host.Long:
			return int64(f)
		}
		i = int64(int32(f))
	}
	switch p {
	case host.Byte:
		return int8(i)
	case host.Short:
		return int16(i)
	case host.Char:
		return uint16(i)
	case host.Int:
		return int32(i)
	case host.Long:
		return i
	case host.Float:
		return float32(i)
	case host.Double:
		return float64(i)
	}
	internalError("error in wrapper cast to %v", p)
	return nil
}

// castPrimitive converts between primitive types, and NULL/VOID to anything.
// In check-only mode fromValue is nil and only validity is computed.
func castPrimitive(toType, fromType host.Type, fromValue *Primitive, checkOnly bool, op int) (Object, error) {
	if fromType != nil && !host.IsPrimitive(fromType) {
		internalError("bad fromType: %s", fromType.Name())
	}
	if fromType != nil && fromType.Prim() == host.Void {
		if checkOnly {
			return nil, errInvalidCast
		}
		return nil, castError(host.DisplayName(toType), "void value", op)
	}
	if host.IsPrimitive(toType) {
		if fromType == nil {
			if checkOnly {
				return nil, errInvalidCast
			}
			return nil, castError("primitive type:"+toType.Name(), "Null value", op)
		}
	} else {
		// NULL can be cast to any object type
		if fromType == nil {
			if checkOnly {
				return nil, nil
			}
			return NULL, nil
		}
		if checkOnly {
			return nil, errInvalidCast
		}
		return nil, castError("object type:"+host.DisplayName(toType), "primitive value", op)
	}

	if fromType.Prim() == host.Boolean {
		if toType.Prim() != host.Boolean {
			if checkOnly {
				return nil, errInvalidCast
			}
			return nil, castError(host.DisplayName(toType), host.DisplayName(fromType), op)
		}
		if checkOnly {
			return nil, nil
		}
		return fromValue, nil
	}
	if toType.Prim() == host.Boolean {
		if checkOnly {
			return nil, errInvalidCast
		}
		return nil, castError(host.DisplayName(toType), host.DisplayName(fromType), op)
	}

	if op == ASSIGNMENT && !IsAssignable(toType, fromType) {
		if checkOnly {
			return nil, errInvalidCast
		}
		return nil, castError(host.DisplayName(toType), host.DisplayName(fromType), op)
	}
	if checkOnly {
		return nil, nil
	}
	return &Primitive{value: castWrapper(toType.Prim(), fromValue.value), typ: toType}, nil
}
