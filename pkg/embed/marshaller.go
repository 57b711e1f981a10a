package dynlink

import (
	"fmt"
	"reflect"

	"github.com/funvibe/dynlink/internal/evaluator"
	"github.com/funvibe/dynlink/internal/host"
)

var objectIface = reflect.TypeOf((*evaluator.Object)(nil)).Elem()

// Marshaller handles conversion between Go and engine values.
type Marshaller struct {
	env *evaluator.Environment
}

func NewMarshaller(env *evaluator.Environment) *Marshaller {
	return &Marshaller{env: env}
}

// ToValue converts a Go value to an engine value. Numbers, booleans and
// uint16 chars become primitives; everything else is a host object typed by
// the environment's capability.
func (m *Marshaller) ToValue(val any) evaluator.Object {
	switch v := val.(type) {
	case nil:
		return evaluator.NULL
	case evaluator.Object:
		return v
	}
	v := host.Normalize(val)
	if p, ok := host.PrimitiveOf(v); ok {
		return m.env.Wrap(v, p)
	}
	return m.env.Wrap(v, nil)
}

func (m *Marshaller) toValues(vals []any) []evaluator.Object {
	out := make([]evaluator.Object, len(vals))
	for i, v := range vals {
		out[i] = m.ToValue(v)
	}
	return out
}

// FromValue converts an engine value to a Go value. targetType is optional;
// if provided, the value is converted to it. Scripted objects become
// map[string]any snapshots of their variables unless the target asks for
// the engine value itself.
func (m *Marshaller) FromValue(obj evaluator.Object, targetType reflect.Type) (any, error) {
	if obj == nil {
		return nil, nil
	}
	if targetType == objectIface {
		return obj, nil
	}
	switch o := obj.(type) {
	case *evaluator.Primitive:
		if o.IsNull() || o.IsVoid() {
			if targetType != nil {
				return reflect.Zero(targetType).Interface(), nil
			}
			return nil, nil
		}
	case *evaluator.This:
		if targetType == nil || targetType.Kind() == reflect.Map {
			return m.scopeToMap(o, map[*evaluator.Scope]bool{})
		}
	}

	v := evaluator.Unwrap(obj)
	if targetType == nil {
		return v, nil
	}
	cv, err := host.ConvertTo(v, targetType)
	if err != nil {
		return nil, fmt.Errorf("cannot convert %s to %s: %w", obj.Inspect(), targetType, err)
	}
	return cv.Interface(), nil
}

// scopeToMap snapshots the variables of a scripted object. Objects already
// being converted are returned as they are, which keeps cycles finite.
func (m *Marshaller) scopeToMap(t *evaluator.This, seen map[*evaluator.Scope]bool) (map[string]any, error) {
	s := t.Scope()
	seen[s] = true
	out := make(map[string]any)
	for _, name := range s.VariableNames() {
		obj, err := s.GetVariable(name)
		if err != nil {
			return nil, err
		}
		if nested, ok := obj.(*evaluator.This); ok {
			if seen[nested.Scope()] {
				out[name] = nested
				continue
			}
			mv, err := m.scopeToMap(nested, seen)
			if err != nil {
				return nil, err
			}
			out[name] = mv
			continue
		}
		v, err := m.FromValue(obj, nil)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}
