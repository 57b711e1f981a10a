package evaluator

import (
	"github.com/funvibe/dynlink/internal/host"
)

// LValueKind tags the assignment target variants.
type LValueKind int

const (
	VariableSlotKind LValueKind = iota
	HostFieldKind
	HostPropertyKind
	IndexedElementKind
)

// LValue is an assignable location. Assign returns the value stored.
type LValue interface {
	Kind() LValueKind
	Value() (Object, error)
	Assign(v Object, strict bool) (Object, error)
}

// VariableSlot is a variable in a scope. It keeps the scope it was created
// with. LocalOnly writes never recurse into parent scopes.
type VariableSlot struct {
	Scope     *Scope
	Name      string
	LocalOnly bool
}

func (l *VariableSlot) Kind() LValueKind { return VariableSlotKind }

func (l *VariableSlot) Value() (Object, error) {
	return l.Scope.GetVariable(l.Name)
}

func (l *VariableSlot) Assign(v Object, strict bool) (Object, error) {
	var err error
	if l.LocalOnly {
		err = l.Scope.SetLocalVariableOrProperty(l.Name, v, strict)
	} else {
		err = l.Scope.SetVariableOrProperty(l.Name, v, strict)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// HostField is an instance or static field of a host type. Instance is nil
// for static fields.
type HostField struct {
	env      *Environment
	Instance Object
	Field    host.Field
}

func (l *HostField) Kind() LValueKind { return HostFieldKind }

func (l *HostField) Value() (Object, error) {
	v, err := l.Field.Get(Unwrap(l.Instance))
	if err != nil {
		return nil, hostError(err, "Can't read field: %s", l.Field.Name())
	}
	return l.env.Wrap(v, l.Field.Type()), nil
}

func (l *HostField) Assign(v Object, _ bool) (Object, error) {
	if l.Field.Final() {
		return nil, newError("Cannot assign to final field: %s", l.Field.Name())
	}
	cast, err := Cast(v, l.Field.Type(), ASSIGNMENT)
	if err != nil {
		return nil, newError("Argument type mismatch. %s. Field: %s", err.Error(), l.Field.Name())
	}
	if err := l.Field.Set(Unwrap(l.Instance), Unwrap(cast)); err != nil {
		return nil, hostError(err, "Can't assign field: %s", l.Field.Name())
	}
	return v, nil
}

// HostProperty is a bean-style property (getX/isX, setX) or a map entry.
type HostProperty struct {
	env      *Environment
	Instance Object
	Property string
}

func (l *HostProperty) Kind() LValueKind { return HostPropertyKind }

func (l *HostProperty) Value() (Object, error) {
	return l.env.getObjectProperty(l.Instance, l.Property)
}

func (l *HostProperty) Assign(v Object, _ bool) (Object, error) {
	if err := l.env.setObjectProperty(l.Instance, l.Property, v); err != nil {
		return nil, err
	}
	return v, nil
}

// IndexedElement is an element of an array.
type IndexedElement struct {
	env       *Environment
	Container Object
	Index     int
}

func (l *IndexedElement) Kind() LValueKind { return IndexedElementKind }

func (l *IndexedElement) Value() (Object, error) {
	return l.env.GetIndex(l.Container, l.Index)
}

func (l *IndexedElement) Assign(v Object, _ bool) (Object, error) {
	if err := l.env.SetIndex(l.Container, l.Index, v); err != nil {
		return nil, err
	}
	return v, nil
}
