package evaluator

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/funvibe/dynlink/internal/config"
	"github.com/funvibe/dynlink/internal/host"
)

// ErrTypeNotFound is returned by ToType when a name does not denote a type.
var ErrTypeNotFound = errors.New("type not found")

// Name resolves one ambiguous dotted identifier relative to a scope. It
// memoizes the type it resolves to and the owner of static method calls;
// both memos are discarded after a classloader change.
type Name struct {
	scope *Scope
	value string

	asType      host.Type
	asTypeSet   bool
	asTypeEpoch uint64

	staticOwner host.Type
	staticEpoch uint64
}

// NewName returns a resolver for value relative to scope. Prefer
// Scope.NameResolver, which caches resolvers.
func NewName(scope *Scope, value string) *Name {
	return &Name{scope: scope, value: value}
}

func (n *Name) String() string { return n.value }

// resolution is the state of one left to right walk over the segments of
// a name: the unconsumed remainder, the segment consumed last, the object
// it produced and how many frames .caller has climbed.
type resolution struct {
	*Name
	cs           *CallStack
	evalName     string
	lastEvalName string
	evalBase     Object
	depth        int
}

func (n *Name) reset(cs *CallStack) *resolution {
	return &resolution{Name: n, cs: cs, evalName: n.value}
}

// ToObject resolves the name to a value. An undefined simple name resolves
// to VOID; a null reference to NULL. With forceType the name must resolve
// to a type reference.
func (n *Name) ToObject(cs *CallStack, forceType bool) (Object, error) {
	r := n.reset(cs)
	var obj Object
	for r.evalName != "" {
		var err error
		obj, err = r.consumeNextObjectField(forceType, false)
		if err != nil {
			return nil, err
		}
	}
	if obj == nil {
		internalError("null value in ToObject()")
	}
	return obj, nil
}

// ToType resolves the name to a type. "var" resolves to nil, the loose
// type.
func (n *Name) ToType() (host.Type, error) {
	epoch := n.scope.env.Epoch()
	if n.asTypeSet && n.asTypeEpoch == epoch {
		return n.asType, nil
	}
	if n.value == config.UntypedName {
		n.asType, n.asTypeSet, n.asTypeEpoch = nil, true, epoch
		return nil, nil
	}
	t, ok := n.scope.ResolveType(n.value)
	if !ok {
		if obj, err := n.ToObject(nil, true); err == nil {
			if ref, isRef := obj.(*TypeRef); isRef {
				t, ok = ref.Of, true
			}
		}
	}
	if !ok {
		return nil, &EvalError{Message: "Class: " + n.value + " not found in namespace", cause: ErrTypeNotFound}
	}
	n.asType, n.asTypeSet, n.asTypeEpoch = t, true, epoch
	return t, nil
}

func (r *resolution) completeRound(last, next string, obj Object) (Object, error) {
	if obj == nil {
		internalError("lastEvalName = %s", last)
	}
	r.lastEvalName = last
	r.evalName = next
	r.evalBase = obj
	return obj, nil
}

// consumeNextObjectField resolves the next segment (or the longest type
// prefix) of the remaining name against the current base.
func (r *resolution) consumeNextObjectField(forceType, autoAlloc bool) (Object, error) {
	scope := r.scope
	env := scope.env

	// A simple variable name takes precedence over an imported type name.
	if r.evalBase == nil && !isCompound(r.evalName) && !forceType {
		obj, err := r.resolveThisFieldReference(scope, r.evalName, false)
		if err != nil {
			return nil, err
		}
		if obj != VOID {
			return r.completeRound(r.evalName, "", obj)
		}
	}

	varName := prefix(r.evalName, 1)
	if this, isThis := r.evalBase.(*This); (r.evalBase == nil || isThis) && !forceType {
		var obj Object
		var err error
		if r.evalBase == nil {
			obj, err = r.resolveThisFieldReference(scope, varName, false)
		} else {
			obj, err = r.resolveThisFieldReference(this.scope, varName, true)
		}
		if err != nil {
			return nil, err
		}
		if obj != VOID {
			return r.completeRound(varName, suffix(r.evalName), obj)
		}
	}

	if r.evalBase == nil {
		env.logc(context.Background(), slog.LevelDebug, "trying type prefix", slog.String("name", r.evalName))
		parts := countParts(r.evalName)
		for i := 1; i <= parts; i++ {
			typeName := prefix(r.evalName, i)
			if t, ok := scope.ResolveType(typeName); ok {
				return r.completeRound(typeName, suffixParts(r.evalName, parts-i), &TypeRef{Of: t})
			}
		}
	}

	if this, isThis := r.evalBase.(*This); (r.evalBase == nil || isThis) && !forceType && autoAlloc {
		target := scope
		if isThis {
			target = this.scope
		}
		obj := NewScope(target, "auto: "+varName).This()
		if err := target.SetVariable(varName, obj, false); err != nil {
			return nil, err
		}
		return r.completeRound(varName, suffix(r.evalName), obj)
	}

	if r.evalBase == nil {
		if !isCompound(r.evalName) {
			return r.completeRound(r.evalName, "", VOID)
		}
		return nil, newError("Class or variable not found: %s", r.evalName)
	}

	if p, ok := r.evalBase.(*Primitive); ok {
		switch p {
		case NULL:
			return nil, throw(host.NullPointerType, "Null Pointer while evaluating: %s", r.value)
		case VOID:
			return nil, newError("Undefined variable or class name while evaluating: %s", r.value)
		default:
			return nil, newError("Can't treat primitive like an object. Error while evaluating: %s", r.value)
		}
	}

	if ref, ok := r.evalBase.(*TypeRef); ok {
		t := ref.Of
		field := prefix(r.evalName, 1)

		if field == config.ThisName {
			for ns := scope; ns != nil; ns = ns.parent {
				if ns.classInstance != nil && host.Same(ns.classInstance.RuntimeType(), t) {
					return r.completeRound(field, suffix(r.evalName), ns.classInstance)
				}
			}
			return nil, newError("Can't find enclosing 'this' instance of class: %s", host.DisplayName(t))
		}

		obj, found, err := env.getStaticFieldValue(t, field)
		if err != nil {
			var te *TargetError
			if errors.As(err, &te) {
				return nil, err
			}
			found = false
		}
		if !found {
			if inner, ok := env.classForName(t.Name() + "$" + field); ok {
				obj, found = &TypeRef{Of: inner}, true
			}
		}
		if !found {
			return nil, newError("No static field or inner class: %s of %s", field, host.DisplayName(t))
		}
		return r.completeRound(field, suffix(r.evalName), obj)
	}

	if forceType {
		return nil, newError("%s does not resolve to a class name.", r.value)
	}

	field := prefix(r.evalName, 1)
	obj, err := env.getObjectFieldValue(r.evalBase, field, r.cs)
	if err != nil {
		return nil, err
	}
	return r.completeRound(field, suffix(r.evalName), obj)
}

// resolveThisFieldReference resolves a variable or one of the magic names
// relative to thisScope. specialFields is set when the lookup is relative
// to a self handle, making namespace, variables, methods, interpreter,
// caller and callstack visible.
func (r *resolution) resolveThisFieldReference(thisScope *Scope, varName string, specialFields bool) (Object, error) {
	switch varName {
	case config.ThisName:
		if specialFields {
			return nil, newError("Redundant to call .this on This type")
		}
		if cls := thisScope.classScope(); cls != nil {
			if isCompound(r.evalName) {
				return cls.This(), nil
			}
			return cls.ClassInstance()
		}
		return thisScope.This(), nil

	case config.SuperName:
		sup := thisScope.Super()
		if p := sup.scope.parent; p != nil && p.isClass {
			return p.This(), nil
		}
		return sup, nil

	case config.GlobalName:
		return thisScope.Global(), nil
	}

	if specialFields {
		switch varName {
		case config.NamespaceName:
			return thisScope, nil
		case config.VariablesName:
			return namesArray(thisScope.VariableNames()), nil
		case config.MethodsName:
			return namesArray(thisScope.MethodNames()), nil
		case config.InterpreterName:
			if r.lastEvalName != config.ThisName {
				return nil, newError("Can only call .interpreter on literal 'this'")
			}
			return thisScope.env, nil
		case config.CallerName:
			if r.lastEvalName != config.ThisName && r.lastEvalName != config.CallerName {
				return nil, newError("Can only call .caller on literal 'this' or literal '.caller'")
			}
			if r.cs == nil {
				internalError("no callstack")
			}
			r.depth++
			frame := r.cs.Get(r.depth)
			if frame == nil {
				internalError("no callstack")
			}
			return frame.This(), nil
		case config.CallstackName:
			if r.lastEvalName != config.ThisName {
				return nil, newError("Can only call .callstack on literal 'this'")
			}
			if r.cs == nil {
				internalError("no callstack")
			}
			return r.cs, nil
		}
	}

	return thisScope.GetVariable(varName)
}

func namesArray(names []string) Object {
	return &HostObject{Value: names, Class: host.ArrayOf(host.StringType)}
}

func isCompound(value string) bool {
	return strings.Contains(value, ".")
}

func countParts(value string) int {
	if value == "" {
		return 0
	}
	return strings.Count(value, ".") + 1
}

// prefix returns the first parts segments of value.
func prefix(value string, parts int) string {
	if parts < 1 {
		return ""
	}
	idx := -1
	for count := 0; count < parts; count++ {
		next := strings.IndexByte(value[idx+1:], '.')
		if next < 0 {
			return value
		}
		idx += next + 1
	}
	return value[:idx]
}

// prefixAll returns every segment but the last.
func prefixAll(value string) string {
	if !isCompound(value) {
		return ""
	}
	return prefix(value, countParts(value)-1)
}

// suffix returns every segment but the first.
func suffix(value string) string {
	if !isCompound(value) {
		return ""
	}
	return suffixParts(value, countParts(value)-1)
}

// suffixParts returns the last parts segments of value.
func suffixParts(value string, parts int) string {
	if parts < 1 {
		return ""
	}
	idx := len(value)
	for count := 0; count < parts; count++ {
		prev := strings.LastIndexByte(value[:idx], '.')
		if prev < 0 {
			return value
		}
		idx = prev
	}
	return value[idx+1:]
}
