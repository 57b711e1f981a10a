package evaluator

import (
	"fmt"

	"github.com/funvibe/dynlink/internal/host"
)

type ObjectType string

const (
	PRIMITIVE_OBJ   = "PRIMITIVE"
	NULL_OBJ        = "NULL"
	VOID_OBJ        = "VOID"
	HOST_OBJ        = "HOST"
	THIS_OBJ        = "THIS"
	TYPE_OBJ        = "TYPE"
	PROXY_OBJ       = "PROXY"
	SCOPE_OBJ       = "SCOPE"
	CALLSTACK_OBJ   = "CALLSTACK"
	ENVIRONMENT_OBJ = "ENVIRONMENT"
	RETURN_OBJ      = "RETURN_VALUE"
)

// Object is a runtime value seen by the engine.
type Object interface {
	Type() ObjectType
	Inspect() string
	// RuntimeType is the host type used for dispatch. nil means the null type.
	RuntimeType() host.Type
}

// Engine classes exposed to the host type lattice.
var (
	ThisClass        = host.NewClass("engine.This", nil)
	ScopeClass       = host.NewClass("engine.NameSpace", nil)
	CallStackClass   = host.NewClass("engine.CallStack", nil)
	EnvironmentClass = host.NewClass("engine.Interpreter", nil)
)

// TypeRef is a reference to a type used as a value, e.g. the prefix of a
// static member access.
type TypeRef struct {
	Of host.Type
}

func (t *TypeRef) Type() ObjectType       { return TYPE_OBJ }
func (t *TypeRef) Inspect() string        { return "class " + host.DisplayName(t.Of) }
func (t *TypeRef) RuntimeType() host.Type { return host.ClassType }

// This is the self handle of a scope. Each scope has at most one, created on
// first request, so handles compare by identity.
type This struct {
	scope *Scope
}

func (t *This) Type() ObjectType       { return THIS_OBJ }
func (t *This) RuntimeType() host.Type { return ThisClass }
func (t *This) Scope() *Scope          { return t.scope }

func (t *This) Inspect() string {
	return fmt.Sprintf("'this' reference to scope: %s", t.scope.name)
}

// Proxy is a self handle presented as a host interface.
type Proxy struct {
	This  *This
	Iface host.Type
}

func (p *Proxy) Type() ObjectType       { return PROXY_OBJ }
func (p *Proxy) RuntimeType() host.Type { return p.Iface }
func (p *Proxy) Inspect() string {
	return fmt.Sprintf("%s proxy for scope: %s", host.DisplayName(p.Iface), p.This.scope.name)
}

func (cs *CallStack) Type() ObjectType       { return CALLSTACK_OBJ }
func (cs *CallStack) RuntimeType() host.Type { return CallStackClass }
func (cs *CallStack) Inspect() string        { return cs.String() }

func (s *Scope) Type() ObjectType       { return SCOPE_OBJ }
func (s *Scope) RuntimeType() host.Type { return ScopeClass }
func (s *Scope) Inspect() string        { return "NameSpace: " + s.name }

func (e *Environment) Type() ObjectType       { return ENVIRONMENT_OBJ }
func (e *Environment) RuntimeType() host.Type { return EnvironmentClass }
func (e *Environment) Inspect() string        { return "interpreter environment" }
