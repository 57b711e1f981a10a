package evaluator

import (
	"context"
	"log/slog"

	"github.com/funvibe/dynlink/internal/config"
	"github.com/funvibe/dynlink/internal/host"
)

// InvokeObjectMethod calls name on obj with args. Self handles dispatch to
// their scope's script methods, proxies to the handle they present, and
// host values to the most specific applicable host method.
func (e *Environment) InvokeObjectMethod(obj Object, name string, args []Object, cs *CallStack, node Node) (Object, error) {
	if args == nil {
		args = []Object{}
	}
	switch o := obj.(type) {
	case *This:
		return o.InvokeMethod(name, args, cs, node, false)
	case *Proxy:
		return o.This.InvokeMethod(name, args, cs, node, false)
	case *TypeRef:
		return e.InvokeStaticMethod(o.Of, name, args, cs, node)
	case *Primitive:
		switch o {
		case NULL:
			return nil, withCallerInfo(throw(host.NullPointerType, "Null Pointer in Method Invocation"), "", node, cs)
		case VOID:
			return nil, withCallerInfo(newError("Attempt to invoke method: %s() on undefined value", name), "", node, cs)
		}
		obj = &HostObject{Value: o.value, Class: host.WrapperOf(o.typ)}
	}

	t := obj.RuntimeType()
	types := TypesOf(args)
	m, err := e.resolveMethod(t, name, types, false)
	if err != nil {
		return nil, withCallerInfo(err, "", node, cs)
	}
	if m == nil {
		return nil, withCallerInfo(newError("Method %s not found in class '%s'",
			signatureString(name, types), host.DisplayName(t)), "", node, cs)
	}
	res, err := e.invokeHostMethod(cs, m, obj, args)
	return res, withCallerInfo(err, "", node, cs)
}

// InvokeStaticMethod calls the static method name of t.
func (e *Environment) InvokeStaticMethod(t host.Type, name string, args []Object, cs *CallStack, node Node) (Object, error) {
	if args == nil {
		args = []Object{}
	}
	types := TypesOf(args)
	m, err := e.resolveMethod(t, name, types, true)
	if err != nil {
		return nil, withCallerInfo(err, "", node, cs)
	}
	if m == nil {
		return nil, withCallerInfo(newError("Static method %s not found in class '%s'",
			signatureString(name, types), host.DisplayName(t)), "", node, cs)
	}
	res, err := e.invokeHostMethod(cs, m, nil, args)
	return res, withCallerInfo(err, "", node, cs)
}

// Construct creates an instance of t with the most specific applicable
// constructor.
func (e *Environment) Construct(t host.Type, args []Object, cs *CallStack, node Node) (Object, error) {
	if t.Kind() == host.KindInterface {
		return nil, withCallerInfo(newError("Can't create instance of an interface: %s", host.DisplayName(t)), "", node, cs)
	}
	if args == nil {
		args = []Object{}
	}
	types := TypesOf(args)
	var ctors []host.Constructor
	for _, c := range e.cap.Constructors(t, e.cfg.Accessibility) {
		if len(c.Params()) == len(args) && (c.Public() || e.cfg.Accessibility) {
			ctors = append(ctors, c)
		}
	}
	candidates := make([][]host.Type, len(ctors))
	for i, c := range ctors {
		candidates[i] = c.Params()
	}
	idx := FindMostSpecificSignature(types, candidates)
	if idx < 0 {
		return nil, withCallerInfo(newError("Can't find constructor: %s in class: %s",
			signatureString(host.DisplayName(t), types), host.DisplayName(t)), "", node, cs)
	}
	c := ctors[idx]
	callArgs, err := castArgs(args, c.Params(), host.DisplayName(t))
	if err != nil {
		return nil, withCallerInfo(err, "", node, cs)
	}
	e.logc(cs.Context(), slog.LevelDebug, "constructing", slog.String("type", t.Name()))
	v, err := c.New(cs.Context(), callArgs)
	if err != nil {
		return nil, withCallerInfo(hostError(err, "Error constructing %s", host.DisplayName(t)), "", node, cs)
	}
	obj := e.Wrap(v, nil)
	if ho, ok := obj.(*HostObject); ok && host.Same(ho.Class, host.ObjectType) {
		ho.Class = t
	}
	return obj, nil
}

// resolveMethod finds the most specific method name of t applicable to
// args, consulting the resolved-method cache. A nil method with a nil error
// means there is none. With staticOnly an instance method match is an error.
func (e *Environment) resolveMethod(t host.Type, name string, args []host.Type, staticOnly bool) (host.Method, error) {
	if t == nil {
		return nil, nil
	}
	key := methodKey{owner: t.Name(), name: name, sig: sigKey(args)}
	m, err := e.cachedMethod(key, func() (host.Method, error) {
		e.logc(context.Background(), slog.LevelDebug, "resolving method",
			slog.String("owner", t.Name()), slog.String("method", name), slog.String("args", key.sig))
		candidates := e.gatherMethods(t, name, len(args))
		if t.Kind() == host.KindInterface {
			candidates = append(candidates, e.gatherMethods(host.ObjectType, name, len(args))...)
		}
		sigs := make([][]host.Type, len(candidates))
		for i, c := range candidates {
			sigs[i] = c.Params()
		}
		if idx := FindMostSpecificSignature(args, sigs); idx >= 0 {
			return candidates[idx], nil
		}
		return nil, nil
	})
	if err != nil || m == nil {
		return nil, err
	}
	if staticOnly && !m.Static() {
		return nil, newError("Cannot reach instance method: %s from static context: %s",
			signatureString(name, args), host.DisplayName(t))
	}
	return m, nil
}

// gatherMethods collects the methods named name with the given arity
// declared on t and its supertypes. A method overridden lower in the
// hierarchy hides the inherited one.
func (e *Environment) gatherMethods(t host.Type, name string, arity int) []host.Method {
	var out []host.Method
	for _, st := range supertypes(t) {
	next:
		for _, m := range e.cap.Methods(st, name, arity, e.cfg.Accessibility) {
			if !m.Public() && !e.cfg.Accessibility {
				continue
			}
			for _, seen := range out {
				if seen.Name() == m.Name() && AreSignaturesEqual(seen.Params(), m.Params()) {
					continue next
				}
			}
			out = append(out, m)
		}
	}
	return out
}

// exposed self handle methods, answered by the engine rather than by script
// methods of the same name.
const (
	getClassName     = "getClass"
	invokeMethodName = "invokeMethod"
	getInterfaceName = "getInterface"
)

func isExposedThisMethod(name string) bool {
	return name == getClassName || name == invokeMethodName || name == getInterfaceName
}

// InvokeMethod calls a script method of the handle's scope. Without a
// matching method the handle answers toString, hashCode and equals itself,
// then defers to a script invoke(name, args) method if one is visible.
func (t *This) InvokeMethod(name string, args []Object, cs *CallStack, node Node, declaredOnly bool) (Object, error) {
	if args == nil {
		args = []Object{}
	}
	if cs == nil {
		cs = NewCallStack(t.scope)
	}
	if isExposedThisMethod(name) {
		if res, ok, err := t.invokeExposed(name, args, cs, node); ok {
			return res, err
		}
	}

	types := TypesOf(args)
	m, err := t.scope.GetMethod(name, types, declaredOnly)
	if err != nil {
		return nil, withCallerInfo(err, "", node, cs)
	}
	if m != nil {
		return m.Invoke(args, cs, node)
	}

	switch {
	case name == "toString" && len(args) == 0:
		return String(t.Inspect()), nil
	case name == "hashCode" && len(args) == 0:
		return Int(int32(t.scope.id)), nil
	case name == "equals" && len(args) == 1:
		other := args[0]
		if p, ok := other.(*Proxy); ok {
			other = p.This
		}
		return Bool(other == t), nil
	}

	inv, err := t.scope.GetMethod(config.InvokeFallbackName, []host.Type{nil, nil}, false)
	if err != nil {
		return nil, withCallerInfo(err, "", node, cs)
	}
	if inv != nil {
		return inv.Invoke([]Object{String(name), objectArray(args)}, cs, node)
	}
	return nil, withCallerInfo(newError("Method %s not found in scripted object: %s",
		signatureString(name, types), t.scope.name), "", node, cs)
}

func (t *This) invokeExposed(name string, args []Object, cs *CallStack, node Node) (Object, bool, error) {
	switch name {
	case getClassName:
		if len(args) == 0 {
			return &TypeRef{Of: ThisClass}, true, nil
		}
	case invokeMethodName:
		if len(args) != 2 {
			break
		}
		target, ok := Unwrap(args[0]).(string)
		if !ok {
			return nil, true, newError("invokeMethod: method name must be a String")
		}
		var callArgs []Object
		if arr := Unwrap(args[1]); arr != nil {
			n, isArr := host.ArrayLen(arr)
			if !isArr {
				return nil, true, newError("invokeMethod: arguments must be an array")
			}
			for i := 0; i < n; i++ {
				a, err := t.scope.env.GetIndex(args[1], i)
				if err != nil {
					return nil, true, err
				}
				callArgs = append(callArgs, a)
			}
		}
		res, err := t.InvokeMethod(target, callArgs, cs, node, false)
		return res, true, err
	case getInterfaceName:
		if len(args) != 1 {
			break
		}
		ref, ok := args[0].(*TypeRef)
		if !ok {
			return nil, true, newError("getInterface: argument must be a class")
		}
		res, err := t.scope.presenter().PresentAs(ref.Of)
		return res, true, err
	}
	return nil, false, nil
}

// objectArray packs args into an Object[] host array.
func objectArray(args []Object) Object {
	vals := make([]any, len(args))
	for i, a := range args {
		vals[i] = Unwrap(a)
	}
	return &HostObject{Value: vals, Class: host.ArrayOf(host.ObjectType)}
}

// invokeSuperclassMethod calls the superclass implementation of name on a
// type-body instance.
func (e *Environment) invokeSuperclassMethod(inst Object, name string, args []Object, cs *CallStack, node Node) (Object, error) {
	types := TypesOf(args)
	if this, ok := inst.(*This); ok {
		parent := this.scope.parent
		if parent != nil {
			m, err := parent.GetMethod(name, types, false)
			if err != nil {
				return nil, withCallerInfo(err, "", node, cs)
			}
			if m != nil {
				return m.Invoke(args, cs, node)
			}
		}
		return nil, withCallerInfo(newError("Superclass method %s not found in: %s",
			signatureString(name, types), this.scope.name), "", node, cs)
	}
	t := inst.RuntimeType()
	var super host.Type
	if t != nil {
		super = t.Super()
	}
	m, err := e.resolveMethod(super, name, types, false)
	if err != nil {
		return nil, withCallerInfo(err, "", node, cs)
	}
	if m == nil {
		return nil, withCallerInfo(newError("Superclass method %s not found in class '%s'",
			signatureString(name, types), host.DisplayName(t)), "", node, cs)
	}
	res, err := e.invokeHostMethod(cs, m, inst, args)
	return res, withCallerInfo(err, "", node, cs)
}
