package host

import (
	"fmt"
	"reflect"
)

// Go value representation of primitives: boolean bool, byte int8, short
// int16, char uint16, int int32, long int64, float float32, double float64.
// Wrapper instances use the same Go types; String is a Go string; arrays are
// Go slices.

var goPrims = map[reflect.Kind]Type{
	reflect.Bool:    BooleanType,
	reflect.Int8:    ByteType,
	reflect.Uint8:   ByteType,
	reflect.Int16:   ShortType,
	reflect.Uint16:  CharType,
	reflect.Int32:   IntType,
	reflect.Int:     LongType,
	reflect.Int64:   LongType,
	reflect.Uint:    LongType,
	reflect.Uint32:  LongType,
	reflect.Uint64:  LongType,
	reflect.Float32: FloatType,
	reflect.Float64: DoubleType,
}

// PrimitiveForKind maps a Go kind to the primitive type used to represent it.
func PrimitiveForKind(k reflect.Kind) (Type, bool) {
	t, ok := goPrims[k]
	return t, ok
}

// Normalize converts Go numeric values to the canonical representation of
// their primitive type (Go int becomes int64, uint8 becomes int8, ...).
// Other values are returned unchanged.
func Normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case uint:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case uint8:
		return int8(x)
	}
	return v
}

// PrimitiveOf reports the primitive type of a canonical Go value.
func PrimitiveOf(v any) (Type, bool) {
	switch v.(type) {
	case bool:
		return BooleanType, true
	case int8:
		return ByteType, true
	case int16:
		return ShortType, true
	case uint16:
		return CharType, true
	case int32:
		return IntType, true
	case int64:
		return LongType, true
	case float32:
		return FloatType, true
	case float64:
		return DoubleType, true
	}
	return nil, false
}

// ConvertTo converts a canonical value to the Go type t. nil converts to the
// zero value of pointer-like types.
func ConvertTo(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use null as %s", t)
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if _, numeric := goPrims[rv.Kind()]; numeric && rv.Kind() != reflect.Bool {
		if _, ok := goPrims[t.Kind()]; ok && t.Kind() != reflect.Bool {
			return rv.Convert(t), nil
		}
	}
	// *T parameters accept T for wrapper-typed slots.
	if t.Kind() == reflect.Pointer && rv.Type().ConvertibleTo(t.Elem()) {
		p := reflect.New(t.Elem())
		p.Elem().Set(rv.Convert(t.Elem()))
		return p, nil
	}
	if rv.Kind() == reflect.Slice && t.Kind() == reflect.Slice {
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev, err := ConvertTo(rv.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}

func sliceElemType(v any, c Capability) (Type, bool) {
	rt := reflect.TypeOf(v)
	if rt == nil || (rt.Kind() != reflect.Slice && rt.Kind() != reflect.Array) {
		return nil, false
	}
	return ElemTypeOf(rt.Elem(), c), true
}

// ElemTypeOf maps a Go element type to a host type using c for non-primitive
// element types.
func ElemTypeOf(rt reflect.Type, c Capability) Type {
	if t, ok := goPrims[rt.Kind()]; ok {
		return t
	}
	switch rt.Kind() {
	case reflect.String:
		return StringType
	case reflect.Slice, reflect.Array:
		return ArrayOf(ElemTypeOf(rt.Elem(), c))
	case reflect.Interface:
		return ObjectType
	}
	if c != nil {
		if t := c.TypeOf(reflect.Zero(rt).Interface()); t != nil {
			return t
		}
	}
	return ObjectType
}

// IsArray reports whether v is a Go slice or array.
func IsArray(v any) bool {
	rt := reflect.TypeOf(v)
	return rt != nil && (rt.Kind() == reflect.Slice || rt.Kind() == reflect.Array)
}

// ArrayLen returns the length of an array value.
func ArrayLen(v any) (int, bool) {
	if !IsArray(v) {
		return 0, false
	}
	return reflect.ValueOf(v).Len(), true
}

// ArrayGet reads element i of an array value.
func ArrayGet(v any, i int) (any, error) {
	if !IsArray(v) {
		return nil, fmt.Errorf("not an array: %T", v)
	}
	rv := reflect.ValueOf(v)
	if i < 0 || i >= rv.Len() {
		return nil, Throw(IndexOutOfBoundsType, "Index %d out of bounds for length %d", i, rv.Len())
	}
	return Normalize(rv.Index(i).Interface()), nil
}

// ArraySet writes element i of a slice value.
func ArraySet(v any, i int, x any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return fmt.Errorf("not an assignable array: %T", v)
	}
	if i < 0 || i >= rv.Len() {
		return Throw(IndexOutOfBoundsType, "Index %d out of bounds for length %d", i, rv.Len())
	}
	ev, err := ConvertTo(x, rv.Type().Elem())
	if err != nil {
		return Throw(IllegalArgumentType, "%v", err)
	}
	rv.Index(i).Set(ev)
	return nil
}
