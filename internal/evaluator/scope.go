package evaluator

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/funvibe/dynlink/internal/config"
	"github.com/funvibe/dynlink/internal/host"
)

// Scope is a lexical frame: a variable table, method overload sets, imports
// and a parent link. Method frames, block frames and type-body frames are
// all scopes, distinguished by flags.
//
// Scopes are not synchronized; callers serialize access to a scope shared
// between goroutines.
type Scope struct {
	id     int64
	name   string
	env    *Environment
	parent *Scope

	variables map[string]*Variable
	methods   map[string][]*Method

	importedClasses  map[string]string
	importedPackages []string
	importedObjects  []Object
	importedStatics  []host.Type

	isMethod bool
	isClass  bool

	classInstance Object
	classStatic   host.Type

	self      *This
	node      Node
	presentAs Presenter

	typeCache      map[string]host.Type
	typeCacheEpoch uint64
	names          map[string]*Name
}

func (e *Environment) newScope(parent *Scope, name string) *Scope {
	return &Scope{
		id:        e.nextID.Add(1),
		name:      name,
		env:       e,
		parent:    parent,
		variables: make(map[string]*Variable),
		methods:   make(map[string][]*Method),
	}
}

// NewScope creates a child scope of parent.
func NewScope(parent *Scope, name string) *Scope {
	return parent.env.newScope(parent, name)
}

// NewMethodScope creates a method invocation frame.
func NewMethodScope(parent *Scope, name string) *Scope {
	s := NewScope(parent, name)
	s.isMethod = true
	return s
}

// NewClassScope creates a type-body frame. Type-body frames consult their
// imported instance and static type before their own variables.
func NewClassScope(parent *Scope, name string) *Scope {
	s := NewScope(parent, name)
	s.isClass = true
	return s
}

func (s *Scope) ID() int64                { return s.id }
func (s *Scope) Name() string             { return s.name }
func (s *Scope) Env() *Environment        { return s.env }
func (s *Scope) Parent() *Scope           { return s.parent }
func (s *Scope) IsMethod() bool           { return s.isMethod }
func (s *Scope) IsClass() bool            { return s.isClass }
func (s *Scope) SetName(name string)      { s.name = name }
func (s *Scope) SetPresenter(p Presenter) { s.presentAs = p }

// SetParent re-links the scope. Caches depending on the chain are dropped.
func (s *Scope) SetParent(parent *Scope) {
	s.parent = parent
	s.nameSpaceChanged()
}

// SetNode records the caller info of the invocation that created the scope.
func (s *Scope) SetNode(n Node) { s.node = n }

// Node returns the caller info of this scope or the nearest ancestor that
// has one.
func (s *Scope) Node() Node {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.node != nil {
			return sc.node
		}
	}
	return nil
}

// InvocationLine is the line of the invoking node, -1 if unknown.
func (s *Scope) InvocationLine() int {
	if n := s.Node(); n != nil {
		return n.Line()
	}
	return -1
}

// InvocationText is the source text of the invoking node.
func (s *Scope) InvocationText() string {
	if n := s.Node(); n != nil {
		return n.Text()
	}
	return "<invoked from host code>"
}

// nameSpaceChanged drops the scope-local caches after any change to the
// variables, methods or imports of this scope.
func (s *Scope) nameSpaceChanged() {
	s.typeCache = nil
	s.names = nil
}

// LookupVariable finds the variable bound to name, searching parents when
// recurse is set. Type-body scopes give their imports precedence over local
// variables; ordinary scopes the reverse.
func (s *Scope) LookupVariable(name string, recurse bool) (*Variable, error) {
	var v *Variable
	var err error
	if s.isClass {
		if v, err = s.importedVariable(name); err != nil {
			return nil, err
		}
	}
	if v == nil {
		v = s.variables[name]
	}
	if v == nil && !s.isClass {
		if v, err = s.importedVariable(name); err != nil {
			return nil, err
		}
	}
	if v == nil && recurse && s.parent != nil {
		return s.parent.LookupVariable(name, recurse)
	}
	return v, nil
}

// GetVariable returns the value of name in this scope chain, VOID if
// undefined.
func (s *Scope) GetVariable(name string) (Object, error) {
	return s.GetVariableRecurse(name, true)
}

// GetVariableRecurse is GetVariable with control over parent recursion.
func (s *Scope) GetVariableRecurse(name string, recurse bool) (Object, error) {
	v, err := s.LookupVariable(name, recurse)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return VOID, nil
	}
	return v.Value()
}

// GetVariableOrProperty returns the variable, or the value of a script
// property getter getX()/isX() when no variable exists.
func (s *Scope) GetVariableOrProperty(name string, cs *CallStack) (Object, error) {
	val, err := s.GetVariable(name)
	if err != nil || val != VOID {
		return val, err
	}
	return s.getPropertyValue(name, cs)
}

// SetVariable assigns name. With local scoping configured, the parent chain
// is searched only in strict mode; otherwise it always is.
func (s *Scope) SetVariable(name string, value Object, strict bool) error {
	recurse := true
	if s.env.cfg.LocalScoping {
		recurse = strict
	}
	return s.SetVariableRecurse(name, value, strict, recurse)
}

// SetLocalVariable assigns name in this scope only.
func (s *Scope) SetLocalVariable(name string, value Object, strict bool) error {
	return s.SetVariableRecurse(name, value, strict, false)
}

// SetVariableRecurse updates an existing variable in place (converting to
// its declared type) or creates a loose local. Strict mode refuses to create
// variables implicitly.
func (s *Scope) SetVariableRecurse(name string, value Object, strict, recurse bool) error {
	return s.setVariable(name, value, strict, recurse, false, nil)
}

// SetVariableOrProperty is SetVariable that, when no variable exists, tries a
// script setter setX(value) before creating the variable.
func (s *Scope) SetVariableOrProperty(name string, value Object, strict bool) error {
	recurse := true
	if s.env.cfg.LocalScoping {
		recurse = strict
	}
	return s.setVariable(name, value, strict, recurse, true, nil)
}

// SetLocalVariableOrProperty is SetVariableOrProperty without recursion.
func (s *Scope) SetLocalVariableOrProperty(name string, value Object, strict bool) error {
	return s.setVariable(name, value, strict, false, true, nil)
}

func (s *Scope) setVariable(name string, value Object, strict, recurse, property bool, cs *CallStack) error {
	if value == nil {
		internalError("null variable value")
	}
	existing, err := s.LookupVariable(name, recurse)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := existing.setValue(value, assignment); err != nil {
			return newError("Variable assignment: %s: %s", name, messageOf(err))
		}
		return nil
	}
	if strict {
		return newError("(strict mode) Assignment to undeclared variable: %s", name)
	}
	if property {
		ok, err := s.attemptSetPropertyValue(name, value, cs)
		if err != nil || ok {
			return err
		}
	}
	v, err := newVariable(name, nil, value, 0)
	if err != nil {
		return err
	}
	s.variables[name] = v
	s.nameSpaceChanged()
	return nil
}

func messageOf(err error) string {
	if ee, ok := err.(*EvalError); ok {
		return ee.Message
	}
	return err.Error()
}

// DeclareTypedVariable declares name with a type in this scope. Redeclaring
// with the same type resets the value; with a different type it fails. A nil
// value initializes to the type's default.
func (s *Scope) DeclareTypedVariable(name string, typ host.Type, value Object, mods Modifiers) error {
	if existing := s.variables[name]; existing != nil && existing.declared != nil {
		if !host.Same(existing.declared, typ) {
			return newError("Typed variable: %s was previously declared with type: %s",
				name, host.DisplayName(existing.declared))
		}
		return existing.setValue(value, declaration)
	}
	v, err := newVariable(name, typ, value, mods)
	if err != nil {
		return err
	}
	s.variables[name] = v
	s.nameSpaceChanged()
	return nil
}

// Unset removes name from this scope.
func (s *Scope) Unset(name string) {
	if _, ok := s.variables[name]; ok {
		delete(s.variables, name)
		s.nameSpaceChanged()
	}
}

// VariableNames lists the variables declared directly in this scope.
func (s *Scope) VariableNames() []string {
	names := make([]string, 0, len(s.variables))
	for n := range s.variables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Variables returns the variables declared directly in this scope.
func (s *Scope) Variables() []*Variable {
	out := make([]*Variable, 0, len(s.variables))
	for _, n := range s.VariableNames() {
		out = append(out, s.variables[n])
	}
	return out
}

// AddMethod appends a method to the overload set of its name.
func (s *Scope) AddMethod(m *Method) {
	if m.declaring == nil {
		m.declaring = s
	}
	s.methods[m.Name] = append(s.methods[m.Name], m)
	s.nameSpaceChanged()
}

// MethodNames lists the method names declared directly in this scope.
func (s *Scope) MethodNames() []string {
	names := make([]string, 0, len(s.methods))
	for n := range s.methods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Methods returns every method declared directly in this scope.
func (s *Scope) Methods() []*Method {
	var out []*Method
	for _, n := range s.MethodNames() {
		out = append(out, s.methods[n]...)
	}
	return out
}

// GetMethod finds the most specific method named name applicable to args.
// declaredOnly restricts the search to methods declared directly here.
func (s *Scope) GetMethod(name string, args []host.Type, declaredOnly bool) (*Method, error) {
	var m *Method
	var err error
	if s.isClass && !declaredOnly {
		if m, err = s.importedMethod(name, args); err != nil {
			return nil, err
		}
	}
	if m == nil {
		if ms := s.methods[name]; len(ms) > 0 {
			candidates := make([][]host.Type, len(ms))
			for i, cand := range ms {
				candidates[i] = cand.ParamTypes
			}
			if idx := FindMostSpecificSignature(args, candidates); idx >= 0 {
				m = ms[idx]
			}
		}
	}
	if m == nil && !s.isClass && !declaredOnly {
		if m, err = s.importedMethod(name, args); err != nil {
			return nil, err
		}
	}
	if m == nil && !declaredOnly && s.parent != nil {
		return s.parent.GetMethod(name, args, false)
	}
	return m, nil
}

// Clear removes every variable, method and import.
func (s *Scope) Clear() {
	s.variables = make(map[string]*Variable)
	s.methods = make(map[string][]*Method)
	s.importedClasses = nil
	s.importedPackages = nil
	s.importedObjects = nil
	s.importedStatics = nil
	s.nameSpaceChanged()
}

// This returns the identity-stable self handle of the scope.
func (s *Scope) This() *This {
	if s.self == nil {
		s.self = &This{scope: s}
	}
	return s.self
}

// Super returns the self handle of the parent, or of this scope for a root.
func (s *Scope) Super() *This {
	if s.parent != nil {
		return s.parent.This()
	}
	return s.This()
}

// Global returns the self handle of the root scope.
func (s *Scope) Global() *This {
	root := s
	for root.parent != nil {
		root = root.parent
	}
	return root.This()
}

// SetClassInstance makes obj the instance of this type-body frame and
// imports it.
func (s *Scope) SetClassInstance(obj Object) {
	s.classInstance = obj
	s.ImportObject(obj)
}

// SetClassStatic makes t the static type of this type-body frame and imports
// its static members.
func (s *Scope) SetClassStatic(t host.Type) {
	s.classStatic = t
	s.ImportStatic(t)
}

// ClassInstance returns the instance of the type-body frame.
func (s *Scope) ClassInstance() (Object, error) {
	if s.classInstance != nil {
		return s.classInstance, nil
	}
	if s.classStatic != nil {
		return nil, newError("Can't refer to class instance from static context.")
	}
	internalError("Can't resolve class instance 'this' in: %s", s.name)
	return nil, nil
}

// classScope returns the enclosing type-body scope: the scope itself, or the
// parent of a method frame declared directly in a type body.
func (s *Scope) classScope() *Scope {
	if s.isClass {
		return s
	}
	if s.isMethod && s.parent != nil && s.parent.isClass {
		return s.parent
	}
	return nil
}

// NameResolver returns the cached resolver for an ambiguous name in this
// scope.
func (s *Scope) NameResolver(ambig string) *Name {
	if s.names == nil {
		s.names = make(map[string]*Name)
	}
	n := s.names[ambig]
	if n == nil {
		n = &Name{scope: s, value: ambig}
		s.names[ambig] = n
	}
	return n
}

func (s *Scope) String() string {
	var b strings.Builder
	b.WriteString("NameSpace: ")
	b.WriteString(s.name)
	if s.isClass {
		b.WriteString(" (class)")
	}
	if s.isMethod {
		b.WriteString(" (method)")
	}
	return b.String()
}

// accessorName builds getX/setX/isX from a property name.
func accessorName(prefix, property string) string {
	r, size := utf8.DecodeRuneInString(property)
	return prefix + string(unicode.ToUpper(r)) + property[size:]
}

// getPropertyValue calls a script getter getX() or isX() visible from this
// scope. VOID when there is none.
func (s *Scope) getPropertyValue(name string, cs *CallStack) (Object, error) {
	if name == "" {
		return VOID, nil
	}
	for _, prefix := range []string{config.GetterPrefix, config.IsPrefix} {
		m, err := s.GetMethod(accessorName(prefix, name), nil, false)
		if err != nil {
			return nil, err
		}
		if m != nil {
			s.env.logc(context.Background(), slog.LevelDebug, "property getter", slog.String("property", name), slog.String("scope", s.name))
			return m.Invoke(nil, cs, nil)
		}
	}
	return VOID, nil
}

// attemptSetPropertyValue calls a script setter setX(value) if one
// applicable to value is visible from this scope.
func (s *Scope) attemptSetPropertyValue(name string, value Object, cs *CallStack) (bool, error) {
	if name == "" {
		return false, nil
	}
	m, err := s.GetMethod(accessorName(config.SetterPrefix, name), []host.Type{value.RuntimeType()}, false)
	if err != nil || m == nil {
		return false, err
	}
	_, err = m.Invoke([]Object{value}, cs, nil)
	return err == nil, err
}
