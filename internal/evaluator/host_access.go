package evaluator

import (
	"errors"
	"reflect"

	"github.com/funvibe/dynlink/internal/config"
	"github.com/funvibe/dynlink/internal/host"
)

// hostError classifies an error returned by host code: host exceptions
// become native target errors, engine errors pass through, anything else is
// reported as an evaluation error with the given context.
func hostError(err error, format string, a ...interface{}) error {
	var exc *host.Exception
	if errors.As(err, &exc) {
		return newTargetError(err, true)
	}
	var ee *EvalError
	var te *TargetError
	if errors.As(err, &ee) || errors.As(err, &te) {
		return err
	}
	e := newError(format, a...)
	e.Message += ": " + err.Error()
	return e
}

// supertypes lists t followed by its interfaces and superclasses, depth
// first, without repeats.
func supertypes(t host.Type) []host.Type {
	var out []host.Type
	seen := make(map[string]bool)
	var walk func(host.Type)
	walk = func(t host.Type) {
		if t == nil || seen[t.Name()] {
			return
		}
		seen[t.Name()] = true
		out = append(out, t)
		for _, i := range t.Interfaces() {
			walk(i)
		}
		walk(t.Super())
	}
	walk(t)
	return out
}

// findField looks up a field declared on t or any supertype. A nil field
// with a nil error means there is none. An instance field found from a
// static context is an error.
func (e *Environment) findField(t host.Type, name string, staticOnly bool) (host.Field, error) {
	for _, st := range supertypes(t) {
		for _, f := range e.cap.Fields(st, name, e.cfg.Accessibility) {
			if f.Name() != name {
				continue
			}
			if staticOnly && !f.Static() {
				return nil, newError("Can't reach instance field: %s from static context: %s",
					name, host.DisplayName(t))
			}
			return f, nil
		}
	}
	return nil, nil
}

// staticField returns the static field name of t as an assignable location,
// nil if there is none.
func (e *Environment) staticField(t host.Type, name string) (*HostField, error) {
	f, err := e.findField(t, name, true)
	if err != nil || f == nil {
		return nil, err
	}
	return &HostField{env: e, Field: f}, nil
}

// objectField returns the field name of obj as an assignable location, nil
// if there is none.
func (e *Environment) objectField(obj Object, name string) (*HostField, error) {
	t := obj.RuntimeType()
	if t == nil {
		return nil, nil
	}
	f, err := e.findField(t, name, false)
	if err != nil || f == nil {
		return nil, err
	}
	if f.Static() {
		return &HostField{env: e, Field: f}, nil
	}
	return &HostField{env: e, Instance: obj, Field: f}, nil
}

// getObjectFieldValue reads name from obj: the length of an array, a field,
// or a bean property, in that order.
func (e *Environment) getObjectFieldValue(obj Object, name string, cs *CallStack) (Object, error) {
	if t, ok := obj.(*This); ok {
		return t.scope.GetVariableOrProperty(name, cs)
	}
	if name == config.LengthName {
		if n, ok := host.ArrayLen(Unwrap(obj)); ok {
			return Int(int32(n)), nil
		}
	}
	lv, err := e.objectField(obj, name)
	if err != nil {
		return nil, err
	}
	if lv != nil {
		return lv.Value()
	}
	val, err := e.getObjectProperty(obj, name)
	if err == nil {
		return val, nil
	}
	var te *TargetError
	if errors.As(err, &te) {
		return nil, err
	}
	return nil, newError("Cannot access field: %s, on object: %s", name, obj.Inspect())
}

// getStaticFieldValue reads a static field of t.
func (e *Environment) getStaticFieldValue(t host.Type, name string) (Object, bool, error) {
	lv, err := e.staticField(t, name)
	if err != nil || lv == nil {
		return nil, false, err
	}
	v, err := lv.Value()
	return v, err == nil, err
}

func stringKeyedMap(v any) (reflect.Value, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return reflect.Value{}, false
	}
	return rv, true
}

// getObjectProperty reads a bean property through getX() or isX(). Go maps
// keyed by strings expose their entries as properties.
func (e *Environment) getObjectProperty(obj Object, name string) (Object, error) {
	if p, ok := obj.(*Primitive); ok && p.IsNull() {
		return nil, throw(host.NullPointerType, "Attempt to access property on null value")
	}
	if m, ok := stringKeyedMap(Unwrap(obj)); ok {
		v := m.MapIndex(reflect.ValueOf(name).Convert(m.Type().Key()))
		if !v.IsValid() {
			return NULL, nil
		}
		return e.Wrap(v.Interface(), nil), nil
	}
	t := obj.RuntimeType()
	for _, prefix := range []string{config.GetterPrefix, config.IsPrefix} {
		accessor := accessorName(prefix, name)
		m, err := e.resolveMethod(t, accessor, nil, false)
		if err != nil {
			return nil, err
		}
		if m == nil {
			continue
		}
		if prefix == config.IsPrefix && m.Return().Prim() != host.Boolean {
			continue
		}
		return e.invokeHostMethod(nil, m, obj, nil)
	}
	return nil, newError("Property: %s not found on object of type: %s", name, host.DisplayName(t))
}

// setObjectProperty writes a bean property through setX(value), or a map
// entry.
func (e *Environment) setObjectProperty(obj Object, name string, value Object) error {
	if p, ok := obj.(*Primitive); ok && p.IsNull() {
		return throw(host.NullPointerType, "Attempt to set property on null value")
	}
	if m, ok := stringKeyedMap(Unwrap(obj)); ok {
		ev, err := host.ConvertTo(Unwrap(value), m.Type().Elem())
		if err != nil {
			return newError("Can't store %s in map: %v", value.Inspect(), err)
		}
		m.SetMapIndex(reflect.ValueOf(name).Convert(m.Type().Key()), ev)
		return nil
	}
	t := obj.RuntimeType()
	accessor := accessorName(config.SetterPrefix, name)
	m, err := e.resolveMethod(t, accessor, []host.Type{value.RuntimeType()}, false)
	if err != nil {
		return err
	}
	if m == nil {
		return newError("No such property setter: %s for type: %s", accessor, host.DisplayName(t))
	}
	_, err = e.invokeHostMethod(nil, m, obj, []Object{value})
	return err
}

// GetIndex reads element i of an array value.
func (e *Environment) GetIndex(container Object, i int) (Object, error) {
	v := Unwrap(container)
	if !host.IsArray(v) {
		if p, ok := container.(*Primitive); ok && p.IsNull() {
			return nil, throw(host.NullPointerType, "Attempt to index null array")
		}
		return nil, newError("Not an array: %s", container.Inspect())
	}
	x, err := host.ArrayGet(v, i)
	if err != nil {
		return nil, hostError(err, "Array access")
	}
	var elem host.Type
	if t := container.RuntimeType(); t != nil && t.Kind() == host.KindArray {
		elem = t.Elem()
	}
	return e.Wrap(x, elem), nil
}

// SetIndex writes element i of an array value, converting value to the
// element type.
func (e *Environment) SetIndex(container Object, i int, value Object) error {
	v := Unwrap(container)
	if !host.IsArray(v) {
		if p, ok := container.(*Primitive); ok && p.IsNull() {
			return throw(host.NullPointerType, "Attempt to index null array")
		}
		return newError("Not an array: %s", container.Inspect())
	}
	if t := container.RuntimeType(); t != nil && t.Kind() == host.KindArray {
		cast, err := Cast(value, t.Elem(), ASSIGNMENT)
		if err != nil {
			return throw(host.IllegalArgumentType, "Argument type mismatch. %s", messageOf(err))
		}
		value = cast
	}
	if err := host.ArraySet(v, i, Unwrap(value)); err != nil {
		return hostError(err, "Array assignment")
	}
	return nil
}
