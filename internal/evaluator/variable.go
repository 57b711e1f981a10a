package evaluator

import (
	"strings"

	"github.com/funvibe/dynlink/internal/host"
)

// Modifiers of variables and methods.
type Modifiers uint16

const (
	ModFinal Modifiers = 1 << iota
	ModStatic
	ModPublic
	ModPrivate
	ModProtected
	ModSynchronized
	ModTransient
	ModVolatile
)

var modifierNames = []struct {
	m    Modifiers
	name string
}{
	{ModPublic, "public"}, {ModProtected, "protected"}, {ModPrivate, "private"},
	{ModStatic, "static"}, {ModFinal, "final"}, {ModSynchronized, "synchronized"},
	{ModTransient, "transient"}, {ModVolatile, "volatile"},
}

func (m Modifiers) Has(flag Modifiers) bool { return m&flag != 0 }

func (m Modifiers) String() string {
	var parts []string
	for _, mn := range modifierNames {
		if m.Has(mn.m) {
			parts = append(parts, mn.name)
		}
	}
	return strings.Join(parts, " ")
}

// ParseModifiers converts modifier keywords. Unknown keywords are reported.
func ParseModifiers(words ...string) (Modifiers, error) {
	var m Modifiers
outer:
	for _, w := range words {
		for _, mn := range modifierNames {
			if mn.name == w {
				m |= mn.m
				continue outer
			}
		}
		return 0, newError("Unknown modifier: %s", w)
	}
	return m, nil
}

// Variable contexts.
const (
	declaration = iota
	assignment
)

// Variable is a named slot in a scope. A nil declared type makes it loose.
// A Variable bound to an LValue forwards reads and writes to it; imported
// host fields are exposed this way.
type Variable struct {
	Name     string
	declared host.Type
	value    Object
	lvalue   LValue
	Mods     Modifiers
}

func newVariable(name string, typ host.Type, value Object, mods Modifiers) (*Variable, error) {
	v := &Variable{Name: name, declared: typ, Mods: mods}
	if value == nil && mods.Has(ModFinal) {
		return v, nil
	}
	if err := v.setValue(value, declaration); err != nil {
		return nil, err
	}
	return v, nil
}

func newBoundVariable(name string, lv LValue) *Variable {
	return &Variable{Name: name, lvalue: lv}
}

// DeclaredType is nil for loosely typed variables.
func (v *Variable) DeclaredType() host.Type { return v.declared }

func (v *Variable) IsFinal() bool { return v.Mods.Has(ModFinal) }

// Value reads the variable. A blank final reads as the default value of its
// type.
func (v *Variable) Value() (Object, error) {
	if v.lvalue != nil {
		return v.lvalue.Value()
	}
	if v.value == nil {
		return DefaultValue(v.declared), nil
	}
	return v.value, nil
}

// setValue stores value converted to the declared type: declarations use
// CAST so primitive declarations may narrow, assignments use ASSIGNMENT. A
// nil value stores the default value of the type.
func (v *Variable) setValue(value Object, context int) error {
	if v.IsFinal() && v.value != nil {
		return newError("Cannot re-assign final variable %s.", v.Name)
	}
	if value == nil {
		value = DefaultValue(v.declared)
	}
	if v.lvalue != nil {
		_, err := v.lvalue.Assign(value, false)
		return err
	}
	if v.declared != nil {
		op := ASSIGNMENT
		if context == declaration {
			op = CAST
		}
		cast, err := Cast(value, v.declared, op)
		if err != nil {
			return err
		}
		value = cast
	}
	v.value = value
	return nil
}

func (v *Variable) String() string {
	typ := "loose"
	if v.declared != nil {
		typ = host.DisplayName(v.declared)
	}
	return "Variable: " + v.Name + " " + typ
}
