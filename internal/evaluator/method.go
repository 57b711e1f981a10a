package evaluator

import (
	"errors"
	"fmt"

	"github.com/funvibe/dynlink/internal/host"
)

// Body is the executable part of a script method. It runs in the method's
// local scope, which is also the innermost frame of cs.
type Body interface {
	Eval(cs *CallStack, scope *Scope) (Object, error)
}

// BodyFunc adapts a function to Body.
type BodyFunc func(cs *CallStack, scope *Scope) (Object, error)

func (f BodyFunc) Eval(cs *CallStack, scope *Scope) (Object, error) { return f(cs, scope) }

// Method is a callable found in a scope: either a script method with a body
// and declaring scope, or a host method, optionally bound to a receiver,
// surfaced through an import.
type Method struct {
	Name       string
	ParamNames []string
	// ParamTypes has one entry per parameter; nil entries are loose.
	ParamTypes []host.Type
	// ReturnType is nil for loose methods and host.VoidType for void ones.
	ReturnType host.Type
	Mods       Modifiers
	Body       Body

	declaring *Scope
	env       *Environment
	native    host.Method
	receiver  Object
}

// NewMethod builds a script method. A nil paramTypes makes every parameter
// loose.
func NewMethod(name string, paramNames []string, paramTypes []host.Type, returnType host.Type, body Body, mods Modifiers) *Method {
	if paramTypes == nil {
		paramTypes = make([]host.Type, len(paramNames))
	}
	if len(paramTypes) != len(paramNames) {
		internalError("method %s: %d parameter names, %d types", name, len(paramNames), len(paramTypes))
	}
	return &Method{
		Name:       name,
		ParamNames: paramNames,
		ParamTypes: paramTypes,
		ReturnType: returnType,
		Mods:       mods,
		Body:       body,
	}
}

func (e *Environment) hostMethod(m host.Method, recv Object) *Method {
	return &Method{
		Name:       m.Name(),
		ParamTypes: m.Params(),
		ReturnType: m.Return(),
		env:        e,
		native:     m,
		receiver:   recv,
	}
}

// Declaring returns the scope the method was declared in, nil for host
// methods.
func (m *Method) Declaring() *Scope { return m.declaring }

// Native returns the host method behind an imported method.
func (m *Method) Native() host.Method { return m.native }

func (m *Method) Signature() string { return signatureString(m.Name, m.ParamTypes) }

func (m *Method) String() string {
	if m.native != nil {
		return "Host Method: " + m.Signature()
	}
	return "Scripted Method: " + m.Signature()
}

// Invoke calls the method with args. node is the caller info recorded on
// the method's local scope and attached to errors.
func (m *Method) Invoke(args []Object, cs *CallStack, node Node) (Object, error) {
	if args == nil {
		args = []Object{}
	}
	if m.native != nil {
		return m.env.invokeHostMethod(cs, m.native, m.receiver, args)
	}
	if m.declaring == nil {
		internalError("method %s has no declaring scope", m.Name)
	}
	if cs == nil {
		cs = NewCallStack(m.declaring)
	}
	if !m.Mods.Has(ModSynchronized) {
		return m.invokeImpl(args, cs, node)
	}
	var lock Object
	if m.declaring.isClass {
		inst, err := m.declaring.ClassInstance()
		if err != nil {
			return nil, withCallerInfo(newError("Can't get class instance for synchronized method."), "", node, cs)
		}
		lock = inst
	} else {
		lock = m.declaring.This()
	}
	return m.declaring.env.Synchronized(cs, lock, func() (Object, error) {
		return m.invokeImpl(args, cs, node)
	})
}

func (m *Method) invokeImpl(args []Object, cs *CallStack, node Node) (Object, error) {
	env := m.declaring.env
	if len(args) != len(m.ParamTypes) {
		return nil, withCallerInfo(newError("Wrong number of arguments for local method: %s", m.Name), "", node, cs)
	}

	local := NewMethodScope(m.declaring, m.Name)
	local.SetNode(node)

	for i, name := range m.ParamNames {
		arg := args[i]
		if pt := m.ParamTypes[i]; pt != nil {
			cast, err := Cast(arg, pt, ASSIGNMENT)
			if err != nil {
				return nil, withCallerInfo(newError("Invalid argument: `%s' for method: %s : %s",
					name, m.Name, messageOf(err)), "", node, cs)
			}
			if err := local.DeclareTypedVariable(name, pt, cast, 0); err != nil {
				return nil, withCallerInfo(err, "Typed method parameter assignment", node, cs)
			}
			continue
		}
		if arg == VOID {
			return nil, withCallerInfo(newError("Undefined variable or class name, parameter: %s to method: %s",
				name, m.Name), "", node, cs)
		}
		if err := local.SetLocalVariable(name, arg, env.cfg.Strict); err != nil {
			return nil, withCallerInfo(err, "", node, cs)
		}
	}

	ret, returnStack, err := m.runBody(cs, local)
	if err != nil {
		return nil, err
	}

	var returnNode Node
	if rv, ok := ret.(*ReturnValue); ok {
		ret, returnNode = rv.Value, rv.Node
		if ret == nil {
			ret = VOID
		}
		if host.Same(m.ReturnType, host.VoidType) && ret != VOID {
			return nil, &EvalError{Message: "Cannot return value from void method", Node: returnNode, StackTrace: returnStack}
		}
	}
	if ret == nil {
		ret = VOID
	}
	if m.ReturnType == nil {
		return ret, nil
	}
	if host.Same(m.ReturnType, host.VoidType) {
		return VOID, nil
	}
	cast, err := Cast(ret, m.ReturnType, ASSIGNMENT)
	if err != nil {
		at := node
		if returnNode != nil {
			at = returnNode
		}
		return nil, withCallerInfo(newError("Incorrect type returned from method: %s: %s", m.Name, messageOf(err)), "", at, cs)
	}
	return cast, nil
}

// runBody evaluates the body with local pushed on cs and pops it on every
// exit path. Errors that are neither evaluation nor target errors become
// script target errors.
func (m *Method) runBody(cs *CallStack, local *Scope) (ret Object, frames []StackFrame, err error) {
	cs.Push(local)
	defer func() {
		frames = cs.Snapshot()
		cs.Pop()
	}()
	if m.Body == nil {
		return VOID, nil, nil
	}
	ret, err = m.Body.Eval(cs, local)
	if err != nil {
		var ee *EvalError
		var te *TargetError
		if !errors.As(err, &ee) && !errors.As(err, &te) {
			err = &TargetError{Message: fmt.Sprintf("Method %s threw", m.Name), Cause: err, StackTrace: cs.Snapshot()}
		}
	}
	return ret, frames, err
}
