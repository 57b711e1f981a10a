package evaluator

import (
	"errors"
	"strings"

	"github.com/funvibe/dynlink/internal/host"
)

// Conversion kinds. CAST permits narrowing; ASSIGNMENT only widening.
const (
	CAST = iota
	ASSIGNMENT
)

// Assignability rounds used by overload resolution, in the order tried.
const (
	RoundBase = iota + 1
	RoundBox
	RoundVarargs
	RoundExtended
	lastRound = RoundExtended
)

var errInvalidCast = errors.New("invalid cast")

// TypesOf returns the runtime types of args; NULL yields a nil entry.
func TypesOf(args []Object) []host.Type {
	out := make([]host.Type, len(args))
	for i, a := range args {
		out[i] = a.RuntimeType()
	}
	return out
}

// IsAssignable combines base and box assignability.
func IsAssignable(lhs, rhs host.Type) bool {
	return IsBaseAssignable(lhs, rhs) || IsBoxAssignable(lhs, rhs)
}

var widening = map[host.Prim][]host.Prim{
	host.Byte:  {host.Short, host.Int, host.Long, host.Float, host.Double},
	host.Short: {host.Int, host.Long, host.Float, host.Double},
	host.Char:  {host.Int, host.Long, host.Float, host.Double},
	host.Int:   {host.Long, host.Float, host.Double},
	host.Long:  {host.Float, host.Double},
	host.Float: {host.Double},
}

// IsBaseAssignable is plain assignment compatibility: primitive
// identity and widening, reference subtyping, null to any reference. A nil
// (loose) lhs is never base assignable.
func IsBaseAssignable(lhs, rhs host.Type) bool {
	if lhs == nil {
		return false
	}
	if rhs == nil {
		return !host.IsPrimitive(lhs)
	}
	if host.IsPrimitive(lhs) && host.IsPrimitive(rhs) {
		if lhs.Prim() == rhs.Prim() {
			return true
		}
		for _, w := range widening[rhs.Prim()] {
			if w == lhs.Prim() {
				return true
			}
		}
		return false
	}
	return host.AssignableFrom(lhs, rhs)
}

// IsBoxAssignable adds boxing and unboxing: a primitive to its
// wrapper, Object or Number (numeric only), and a wrapper to its primitive.
func IsBoxAssignable(lhs, rhs host.Type) bool {
	if lhs == nil || rhs == nil {
		return false
	}
	if host.IsPrimitive(rhs) {
		if rhs.Prim() == host.Void {
			return false
		}
		if host.Same(lhs, host.ObjectType) {
			return true
		}
		if host.Same(lhs, host.NumberType) {
			return rhs.Prim() != host.Char && rhs.Prim() != host.Boolean
		}
		return host.Same(host.WrapperOf(rhs), lhs)
	}
	if host.IsPrimitive(lhs) {
		return host.Same(host.Unbox(rhs), lhs)
	}
	return false
}

// IsExtendedAssignable reports whether an ASSIGNMENT conversion from rhs to lhs
// exists under the extended rules: everything above plus loose slots, numeric
// wrapper conversions and self handles presented as interfaces.
func IsExtendedAssignable(lhs, rhs host.Type) bool {
	_, err := castObject(lhs, rhs, nil, ASSIGNMENT, true)
	return err == nil
}

// IsSignatureAssignable reports whether arguments of types from may be passed
// to parameters of types to in the given round.
func IsSignatureAssignable(from, to []host.Type, round int) bool {
	if round != RoundVarargs && len(from) != len(to) {
		return false
	}
	switch round {
	case RoundBase:
		for i := range from {
			if !IsBaseAssignable(to[i], from[i]) {
				return false
			}
		}
		return true
	case RoundBox:
		for i := range from {
			if !IsAssignable(to[i], from[i]) {
				return false
			}
		}
		return true
	case RoundVarargs:
		return false
	case RoundExtended:
		for i := range from {
			if !IsExtendedAssignable(to[i], from[i]) {
				return false
			}
		}
		return true
	}
	internalError("bad assignability round: %d", round)
	return false
}

// AreSignaturesEqual compares parameter lists by type identity.
func AreSignaturesEqual(a, b []host.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !host.Same(a[i], b[i]) {
			return false
		}
	}
	return true
}

// FindMostSpecificSignature picks the candidate best matching args, or -1.
// Rounds are tried in order and the first round with any applicable
// candidate decides. Within a round a later candidate replaces the current
// best only when it is base assignable to the best and not identical to it,
// so ties keep the earliest candidate.
func FindMostSpecificSignature(args []host.Type, candidates [][]host.Type) int {
	for round := RoundBase; round <= lastRound; round++ {
		best := -1
		for i, cand := range candidates {
			if !IsSignatureAssignable(args, cand, round) {
				continue
			}
			if best < 0 || (IsSignatureAssignable(cand, candidates[best], RoundBase) &&
				!AreSignaturesEqual(cand, candidates[best])) {
				best = i
			}
		}
		if best >= 0 {
			return best
		}
	}
	return -1
}

// Cast converts value to toType. ASSIGNMENT failures are *EvalError,
// CAST failures a *TargetError wrapping a class cast exception. A nil toType
// is a loose slot and accepts anything.
func Cast(value Object, toType host.Type, op int) (Object, error) {
	if value == nil {
		internalError("null fromValue")
	}
	return castObject(toType, value.RuntimeType(), value, op, false)
}

func castObject(toType, fromType host.Type, fromValue Object, op int, checkOnly bool) (Object, error) {
	if checkOnly && fromValue != nil {
		internalError("bad cast params 1")
	}
	if !checkOnly && fromValue == nil {
		internalError("bad cast params 2")
	}
	if toType != nil && toType.Prim() == host.Void {
		internalError("loose toType should be nil")
	}

	if toType == nil || host.Same(toType, fromType) {
		return fromValue, nil
	}

	fromPrim := fromType == nil || host.IsPrimitive(fromType)

	if host.IsPrimitive(toType) {
		if fromPrim {
			var p *Primitive
			if !checkOnly {
				p = fromValue.(*Primitive)
			}
			return castPrimitive(toType, fromType, p, checkOnly, op)
		}
		if unboxed := host.Unbox(fromType); unboxed != nil {
			var p *Primitive
			if !checkOnly {
				p = &Primitive{value: Unwrap(fromValue), typ: unboxed}
			}
			return castPrimitive(toType, unboxed, p, checkOnly, op)
		}
		if checkOnly {
			return nil, errInvalidCast
		}
		return nil, castError(host.DisplayName(toType), host.DisplayName(fromType), op)
	}

	if fromPrim {
		notNullOrVoid := fromType != nil && fromType.Prim() != host.Void
		if unboxed := host.Unbox(toType); unboxed != nil && notNullOrVoid {
			var p *Primitive
			if !checkOnly {
				p = fromValue.(*Primitive)
			}
			conv, err := castPrimitive(unboxed, fromType, p, checkOnly, op)
			if err != nil || checkOnly {
				return conv, err
			}
			return &HostObject{Value: conv.(*Primitive).value, Class: toType}, nil
		}
		if notNullOrVoid && (host.Same(toType, host.ObjectType) ||
			(host.Same(toType, host.NumberType) && host.IsNumeric(fromType) && fromType.Prim() != host.Char)) {
			if checkOnly {
				return nil, nil
			}
			return &HostObject{Value: fromValue.(*Primitive).value, Class: host.WrapperOf(fromType)}, nil
		}
		var p *Primitive
		if !checkOnly {
			p = fromValue.(*Primitive)
		}
		return castPrimitive(toType, fromType, p, checkOnly, op)
	}

	if host.AssignableFrom(toType, fromType) {
		return fromValue, nil
	}

	if toType.Kind() == host.KindInterface && host.AssignableFrom(ThisClass, fromType) {
		if checkOnly {
			return nil, nil
		}
		return fromValue.(*This).scope.presenter().PresentAs(toType)
	}

	if host.IsWrapper(toType) && host.IsWrapper(fromType) {
		to, from := host.Unbox(toType), host.Unbox(fromType)
		if (to.Prim() == host.Boolean) != (from.Prim() == host.Boolean) {
			if checkOnly {
				return nil, errInvalidCast
			}
			return nil, castError(host.DisplayName(toType), host.DisplayName(fromType), op)
		}
		if checkOnly {
			return nil, nil
		}
		return &HostObject{Value: castWrapper(to.Prim(), Unwrap(fromValue)), Class: toType}, nil
	}

	if checkOnly {
		return nil, errInvalidCast
	}
	return nil, castError(host.DisplayName(toType), host.DisplayName(fromType), op)
}

// castError describes an illegal assignment (*EvalError) or an illegal cast
// (*TargetError wrapping a class cast exception).
func castError(lhs, rhs string, op int) error {
	if op == ASSIGNMENT {
		return newError("Can't assign %s to %s", rhs, lhs)
	}
	return throw(host.ClassCastType, "Cannot cast %s to %s", rhs, lhs)
}

func signatureString(name string, types []host.Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		if t == nil {
			parts[i] = "null"
		} else {
			parts[i] = host.DisplayName(t)
		}
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}
