package evaluator

import (
	"fmt"
	"reflect"

	"github.com/funvibe/dynlink/internal/host"
)

// HostObject wraps a host reference value together with its runtime type.
// Boxed wrapper instances are host objects too: a Go int32 whose Class is
// lang.Integer.
type HostObject struct {
	Value any
	Class host.Type
}

func (h *HostObject) Type() ObjectType       { return HOST_OBJ }
func (h *HostObject) RuntimeType() host.Type { return h.Class }

func (h *HostObject) Inspect() string {
	if s, ok := h.Value.(string); ok {
		return s
	}
	if e, ok := h.Value.(error); ok {
		return e.Error()
	}
	return fmt.Sprintf("%v", h.Value)
}

// identity returns a comparable key identifying the referenced value, used
// for monitor locks.
func (h *HostObject) identity() any {
	val := reflect.ValueOf(h.Value)
	switch val.Kind() {
	case reflect.Ptr, reflect.UnsafePointer, reflect.Chan, reflect.Func, reflect.Map, reflect.Slice:
		return [2]any{val.Type(), val.Pointer()}
	}
	if val.IsValid() && val.Type().Comparable() {
		return h.Value
	}
	return h
}

// Wrap converts a value produced by the host into an engine value using the
// declared type of the slot it came from: primitive slots become primitives,
// void slots VOID, nil becomes NULL, anything else a host object carrying its
// runtime type. A nil declared type means the slot is untyped.
func (e *Environment) Wrap(v any, declared host.Type) Object {
	if declared != nil && declared.Prim() == host.Void {
		return VOID
	}
	if v == nil {
		return NULL
	}
	if obj, ok := v.(Object); ok {
		return obj
	}
	v = host.Normalize(v)
	if host.IsPrimitive(declared) {
		if p, ok := host.PrimitiveOf(v); ok {
			if !host.Same(p, declared) && p.Prim() != host.Boolean {
				return &Primitive{value: castWrapper(declared.Prim(), v), typ: declared}
			}
			return &Primitive{value: v, typ: p}
		}
	}
	class := e.cap.TypeOf(v)
	if class == nil {
		class = host.ObjectType
	}
	return &HostObject{Value: v, Class: class}
}

// Unwrap converts an engine value to its host representation. Engine objects
// with no host counterpart (self handles, type references, scopes) are passed
// through unchanged.
func Unwrap(o Object) any {
	switch x := o.(type) {
	case nil:
		return nil
	case *Primitive:
		return x.value
	case *HostObject:
		return x.Value
	}
	return o
}

// String builds a host string value.
func String(s string) *HostObject {
	return &HostObject{Value: s, Class: host.StringType}
}
