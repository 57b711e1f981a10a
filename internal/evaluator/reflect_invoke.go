package evaluator

import (
	"log/slog"

	"github.com/funvibe/dynlink/internal/host"
)

// castArgs converts args to the parameter types and unwraps them for a host
// call.
func castArgs(args []Object, params []host.Type, callee string) ([]any, error) {
	if len(args) != len(params) {
		return nil, newError("Wrong number of arguments for %s: expected %d, got %d", callee, len(params), len(args))
	}
	out := make([]any, len(args))
	for i, a := range args {
		cast, err := Cast(a, params[i], ASSIGNMENT)
		if err != nil {
			return nil, newError("Argument %d of %s: %s", i+1, callee, messageOf(err))
		}
		out[i] = Unwrap(cast)
	}
	return out, nil
}

// invokeHostMethod calls a resolved host method. The receiver is ignored for
// static methods. The result is wrapped according to the declared return
// type: primitives stay primitive, void returns VOID, nil becomes NULL.
func (e *Environment) invokeHostMethod(cs *CallStack, m host.Method, recv Object, args []Object) (Object, error) {
	callArgs, err := castArgs(args, m.Params(), m.Name())
	if err != nil {
		return nil, err
	}
	var receiver any
	if !m.Static() {
		if recv == nil {
			return nil, newError("Cannot reach instance method: %s from static context: %s",
				signatureString(m.Name(), m.Params()), host.DisplayName(m.Owner()))
		}
		if p, ok := recv.(*Primitive); ok && p.IsNull() {
			return nil, throw(host.NullPointerType, "Null Pointer in Method Invocation")
		}
		receiver = Unwrap(recv)
	}
	ctx := cs.Context()
	e.logc(ctx, slog.LevelDebug, "invoking host method",
		slog.String("owner", m.Owner().Name()), slog.String("method", m.Name()))
	v, err := m.Call(ctx, receiver, callArgs)
	if err != nil {
		return nil, hostError(err, "Error invoking method: %s", m.Name())
	}
	return e.Wrap(v, m.Return()), nil
}
