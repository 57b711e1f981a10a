package evaluator

import (
	"errors"
	"slices"

	"github.com/funvibe/dynlink/internal/config"
	"github.com/funvibe/dynlink/internal/host"
)

// ToLValue resolves the name as an assignment target. All segments but the
// last are resolved as values, creating intermediate self handles for
// undefined names when auto-vivification is enabled; the last segment names
// the location.
func (n *Name) ToLValue(cs *CallStack) (LValue, error) {
	r := n.reset(cs)

	if !isCompound(r.evalName) {
		if r.evalName == config.ThisName {
			return nil, newError("Can't assign to 'this'.")
		}
		if slices.Contains(config.SpecialNames, r.evalName) {
			return nil, newError("Can't assign to special variable: %s", r.evalName)
		}
		return &VariableSlot{Scope: n.scope, Name: r.evalName}, nil
	}

	autoAlloc := n.scope.env.cfg.Vivify()
	var obj Object
	for r.evalName != "" && isCompound(r.evalName) {
		var err error
		obj, err = r.consumeNextObjectField(false, autoAlloc)
		if err != nil {
			var ee *EvalError
			if errors.As(err, &ee) {
				out := *ee
				out.Message = "LHS evaluation: " + ee.Message
				return nil, &out
			}
			return nil, err
		}
	}

	if _, ok := obj.(*TypeRef); ok && r.evalName == "" {
		return nil, newError("Can't assign to class: %s", n.value)
	}
	if obj == nil {
		return nil, newError("Error in LHS: %s", n.value)
	}

	if this, ok := obj.(*This); ok {
		if slices.Contains(config.SpecialNames, r.evalName) {
			return nil, newError("Can't assign to special variable: %s", r.evalName)
		}
		// A literal super assigns to the nearest definition from the super
		// scope; any other self handle assigns directly in its scope.
		return &VariableSlot{
			Scope:     this.scope,
			Name:      r.evalName,
			LocalOnly: r.lastEvalName != config.SuperName,
		}, nil
	}

	if r.evalName == "" {
		internalError("Internal error in lhs: %s", n.value)
	}

	env := n.scope.env
	if ref, ok := obj.(*TypeRef); ok {
		lv, err := env.staticField(ref.Of, r.evalName)
		if err != nil {
			return nil, newError("Field access: %s", messageOf(err))
		}
		if lv == nil {
			return nil, newError("Field access: No such static field: %s", r.evalName)
		}
		return lv, nil
	}
	return env.objectLValue(obj, r.evalName)
}

// objectLValue returns the field name of obj as an assignment target,
// falling back to a property when obj has no such field.
func (e *Environment) objectLValue(obj Object, name string) (LValue, error) {
	if p, ok := obj.(*Primitive); ok {
		if p.IsNull() {
			return nil, throw(host.NullPointerType, "Null Pointer evaluating LHS field: %s", name)
		}
		return nil, newError("Field access: Can't treat primitive like an object: %s", name)
	}
	lv, err := e.objectField(obj, name)
	if err != nil {
		return nil, newError("Field access: %s", messageOf(err))
	}
	if lv != nil {
		return lv, nil
	}
	return &HostProperty{env: e, Instance: obj, Property: name}, nil
}
