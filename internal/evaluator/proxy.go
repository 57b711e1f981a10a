package evaluator

import (
	"context"

	"github.com/funvibe/dynlink/internal/host"
)

// Presenter decides whether, and how, a scope's self handle is presented as
// a host interface.
type Presenter interface {
	CanPresentAs(iface host.Type) bool
	PresentAs(iface host.Type) (Object, error)
}

func (s *Scope) presenter() Presenter {
	if s.presentAs != nil {
		return s.presentAs
	}
	return scopePresenter{scope: s}
}

// scopePresenter presents a scope as an interface when the scope chain
// declares a script method for every method of the interface.
type scopePresenter struct {
	scope *Scope
}

func (p scopePresenter) CanPresentAs(iface host.Type) bool {
	if iface == nil || iface.Kind() != host.KindInterface {
		return false
	}
	for _, m := range p.scope.env.gatherMethods(iface, "", -1) {
		found, err := p.scope.GetMethod(m.Name(), m.Params(), false)
		if err != nil || found == nil {
			return false
		}
	}
	return true
}

func (p scopePresenter) PresentAs(iface host.Type) (Object, error) {
	if !p.CanPresentAs(iface) {
		return nil, newError("Can't present scope: %s as interface: %s", p.scope.name, host.DisplayName(iface))
	}
	return &Proxy{This: p.scope.This(), Iface: iface}, nil
}

// Invoke calls a method of the presented interface from Go code. Arguments
// are wrapped as engine values and the result is converted to the declared
// return type of the interface method and unwrapped.
func (p *Proxy) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	env := p.This.scope.env
	var decl host.Method
	for _, m := range env.gatherMethods(p.Iface, name, len(args)) {
		decl = m
		break
	}
	objs := make([]Object, len(args))
	for i, a := range args {
		var pt host.Type
		if decl != nil {
			pt = decl.Params()[i]
		}
		objs[i] = env.Wrap(a, pt)
	}
	cs := NewCallStack(p.This.scope).WithContext(ctx)
	res, err := p.This.InvokeMethod(name, objs, cs, NativeNode, false)
	if err != nil {
		return nil, err
	}
	if decl != nil {
		if host.Same(decl.Return(), host.VoidType) {
			return nil, nil
		}
		cast, err := Cast(res, decl.Return(), ASSIGNMENT)
		if err != nil {
			return nil, err
		}
		res = cast
	}
	return Unwrap(res), nil
}
