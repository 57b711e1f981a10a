package evaluator

import (
	"github.com/funvibe/dynlink/internal/config"
	"github.com/funvibe/dynlink/internal/host"
)

// InvokeMethod calls the method named by the last segment of the name. An
// unqualified name calls a script method visible from the name's scope; a
// qualified one resolves its prefix from the innermost frame of cs and calls
// a static method on a type or an instance method on a value.
func (n *Name) InvokeMethod(args []Object, cs *CallStack, node Node) (Object, error) {
	res, err := n.invokeMethod(args, cs, node)
	return res, withCallerInfo(err, "", node, cs)
}

func (n *Name) invokeMethod(args []Object, cs *CallStack, node Node) (Object, error) {
	env := n.scope.env
	if args == nil {
		args = []Object{}
	}
	if cs == nil {
		cs = NewCallStack(n.scope)
	}
	methodName := suffixParts(n.value, 1)

	epoch := env.Epoch()
	if n.staticOwner != nil && n.staticEpoch == epoch {
		return env.InvokeStaticMethod(n.staticOwner, methodName, args, cs, node)
	}

	if !isCompound(n.value) {
		return n.invokeLocalMethod(args, cs, node)
	}

	scope := cs.Top()
	if scope == nil {
		scope = n.scope
	}
	pfx := prefixAll(n.value)

	if pfx == config.SuperName && countParts(n.value) == 2 {
		if cls := scope.This().scope.classScope(); cls != nil {
			inst, err := cls.ClassInstance()
			if err != nil {
				return nil, err
			}
			return env.invokeSuperclassMethod(inst, methodName, args, cs, node)
		}
	}

	target := scope.NameResolver(pfx)
	obj, err := target.ToObject(cs, false)
	if err != nil {
		return nil, err
	}
	if obj == VOID {
		return nil, newError("Attempt to resolve method: %s() on undefined variable or class name: %s", methodName, pfx)
	}
	if ref, ok := obj.(*TypeRef); ok {
		n.staticOwner, n.staticEpoch = ref.Of, epoch
		return env.InvokeStaticMethod(ref.Of, methodName, args, cs, node)
	}
	if obj == NULL {
		return nil, throw(host.NullPointerType, "Null Pointer in Method Invocation")
	}
	return env.InvokeObjectMethod(obj, methodName, args, cs, node)
}

// invokeLocalMethod calls a script method visible from the name's scope,
// falling back to a script invoke(name, args) method.
func (n *Name) invokeLocalMethod(args []Object, cs *CallStack, node Node) (Object, error) {
	types := TypesOf(args)
	m, err := n.scope.GetMethod(n.value, types, false)
	if err != nil {
		return nil, withCallerInfo(err, "Local method invocation", node, cs)
	}
	if m != nil {
		return m.Invoke(args, cs, node)
	}
	inv, err := n.scope.GetMethod(config.InvokeFallbackName, []host.Type{nil, nil}, false)
	if err != nil {
		return nil, withCallerInfo(err, "Local method invocation", node, cs)
	}
	if inv != nil {
		return inv.Invoke([]Object{String(n.value), objectArray(args)}, cs, node)
	}
	return nil, newError("Command not found: %s", signatureString(n.value, types))
}
