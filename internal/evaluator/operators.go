package evaluator

import (
	"math"

	"github.com/funvibe/dynlink/internal/host"
)

// operand is a primitive value after unary numeric promotion: byte, short
// and char are widened to int.
type operand struct {
	prim host.Prim
	b    bool
	i    int64
	f    float64
}

func promote(v any) (operand, bool) {
	switch x := v.(type) {
	case bool:
		return operand{prim: host.Boolean, b: x}, true
	case int8:
		return operand{prim: host.Int, i: int64(x)}, true
	case int16:
		return operand{prim: host.Int, i: int64(x)}, true
	case uint16:
		return operand{prim: host.Int, i: int64(x)}, true
	case int32:
		return operand{prim: host.Int, i: int64(x)}, true
	case int64:
		return operand{prim: host.Long, i: x}, true
	case float32:
		return operand{prim: host.Float, f: float64(x)}, true
	case float64:
		return operand{prim: host.Double, f: x}, true
	}
	return operand{}, false
}

func (o operand) widen(to host.Prim) operand {
	if o.prim == to {
		return o
	}
	switch to {
	case host.Long:
		return operand{prim: to, i: o.i}
	case host.Float:
		if o.prim == host.Int || o.prim == host.Long {
			return operand{prim: to, f: float64(float32(o.i))}
		}
	case host.Double:
		if o.prim == host.Int || o.prim == host.Long {
			return operand{prim: to, f: float64(o.i)}
		}
		return operand{prim: to, f: o.f}
	}
	return o
}

var numericRank = map[host.Prim]int{host.Int: 1, host.Long: 2, host.Float: 3, host.Double: 4}

// operandValue extracts the primitive value of a primitive or a boxed
// wrapper. NULL and VOID are reported with their own messages.
func operandValue(o Object, where string) (any, bool, error) {
	switch x := o.(type) {
	case *Primitive:
		switch x {
		case NULL:
			return nil, false, newError("Null value or 'null' literal in %s", where)
		case VOID:
			return nil, false, newError("Undefined variable, class, or 'void' literal in %s", where)
		}
		return x.value, true, nil
	case *HostObject:
		if host.IsWrapper(x.Class) {
			return x.Value, false, nil
		}
	}
	return nil, false, newError("Invalid types in %s: %s", where, host.DisplayName(o.RuntimeType()))
}

// BinaryOperation applies a binary operator to two primitive or boxed
// operands after binary numeric promotion. Comparisons and boolean
// operators yield a boolean primitive; arithmetic on two primitives yields a
// primitive, and on a mix of primitives and wrappers a boxed wrapper.
func BinaryOperation(a, b Object, op string) (Object, error) {
	if a == NULL || b == NULL {
		return nil, newError("Null value or 'null' literal in binary operation")
	}
	if a == VOID || b == VOID {
		return nil, newError("Undefined variable, class, or 'void' literal in binary operation")
	}
	av, aPrim, err := operandValue(a, "binary operation")
	if err != nil {
		return nil, err
	}
	bv, bPrim, err := operandValue(b, "binary operation")
	if err != nil {
		return nil, err
	}
	lhs, ok1 := promote(av)
	rhs, ok2 := promote(bv)
	if !ok1 || !ok2 {
		return nil, newError("Invalid types in binary operator")
	}
	if (lhs.prim == host.Boolean) != (rhs.prim == host.Boolean) {
		return nil, newError("Type mismatch in operator. %s cannot be used with %s",
			host.DisplayName(host.PrimType(lhs.prim)), host.DisplayName(host.PrimType(rhs.prim)))
	}

	var res *Primitive
	if lhs.prim == host.Boolean {
		res, err = booleanBinary(lhs.b, rhs.b, op)
	} else {
		to := lhs.prim
		if numericRank[rhs.prim] > numericRank[to] {
			to = rhs.prim
		}
		lhs, rhs = lhs.widen(to), rhs.widen(to)
		switch to {
		case host.Int, host.Long:
			res, err = integralBinary(lhs.i, rhs.i, to, op)
		default:
			res, err = floatingBinary(lhs.f, rhs.f, to, op)
		}
	}
	if err != nil {
		return nil, err
	}
	if res.typ.Prim() == host.Boolean || (aPrim && bPrim) {
		return res, nil
	}
	return &HostObject{Value: res.value, Class: host.WrapperOf(res.typ)}, nil
}

func booleanBinary(l, r bool, op string) (*Primitive, error) {
	switch op {
	case "==":
		return Bool(l == r), nil
	case "!=":
		return Bool(l != r), nil
	case "||", "|":
		return Bool(l || r), nil
	case "&&", "&":
		return Bool(l && r), nil
	case "^":
		return Bool(l != r), nil
	}
	return nil, newError("Operator %s inappropriate for boolean", op)
}

func integral(v int64, p host.Prim) *Primitive {
	if p == host.Int {
		return Int(int32(v))
	}
	return Long(v)
}

func integralBinary(l, r int64, p host.Prim, op string) (*Primitive, error) {
	if p == host.Int {
		l, r = int64(int32(l)), int64(int32(r))
	}
	switch op {
	case "<":
		return Bool(l < r), nil
	case ">":
		return Bool(l > r), nil
	case "<=":
		return Bool(l <= r), nil
	case ">=":
		return Bool(l >= r), nil
	case "==":
		return Bool(l == r), nil
	case "!=":
		return Bool(l != r), nil
	case "+":
		return integral(l+r, p), nil
	case "-":
		return integral(l-r, p), nil
	case "*":
		return integral(l*r, p), nil
	case "/", "%":
		if r == 0 {
			return nil, throw(host.ArithmeticType, "/ by zero")
		}
		if p == host.Int {
			a, b := int32(l), int32(r)
			if op == "/" {
				return Int(a / b), nil
			}
			return Int(a % b), nil
		}
		if op == "/" {
			return Long(l / r), nil
		}
		return Long(l % r), nil
	case "&":
		return integral(l&r, p), nil
	case "|":
		return integral(l|r, p), nil
	case "^":
		return integral(l^r, p), nil
	case "<<", ">>", ">>>":
		if p == host.Int {
			s := uint(r) & 0x1f
			switch op {
			case "<<":
				return Int(int32(l) << s), nil
			case ">>":
				return Int(int32(l) >> s), nil
			}
			return Int(int32(uint32(int32(l)) >> s)), nil
		}
		s := uint(r) & 0x3f
		switch op {
		case "<<":
			return Long(l << s), nil
		case ">>":
			return Long(l >> s), nil
		}
		return Long(int64(uint64(l) >> s)), nil
	}
	return nil, newError("Operator %s inappropriate for %s", op, host.DisplayName(host.PrimType(p)))
}

func floating(v float64, p host.Prim) *Primitive {
	if p == host.Float {
		return Float(float32(v))
	}
	return Double(v)
}

func floatingBinary(l, r float64, p host.Prim, op string) (*Primitive, error) {
	if p == host.Float {
		l, r = float64(float32(l)), float64(float32(r))
	}
	switch op {
	case "<":
		return Bool(l < r), nil
	case ">":
		return Bool(l > r), nil
	case "<=":
		return Bool(l <= r), nil
	case ">=":
		return Bool(l >= r), nil
	case "==":
		return Bool(l == r), nil
	case "!=":
		return Bool(l != r), nil
	case "+":
		return floating(l+r, p), nil
	case "-":
		return floating(l-r, p), nil
	case "*":
		return floating(l*r, p), nil
	case "/":
		return floating(l/r, p), nil
	case "%":
		return floating(math.Mod(l, r), p), nil
	case "<<", ">>", ">>>":
		if p == host.Float {
			return nil, newError("Can't shift floats ")
		}
		return nil, newError("Can't shift doubles")
	}
	return nil, newError("Operator %s inappropriate for %s", op, host.DisplayName(host.PrimType(p)))
}

// UnaryOperation applies a unary operator to a primitive. Increment and
// decrement keep byte, short and char operands in their own type.
func UnaryOperation(p *Primitive, op string) (*Primitive, error) {
	switch p {
	case NULL:
		return nil, newError("illegal use of null object or 'null' literal")
	case VOID:
		return nil, newError("illegal use of undefined object or 'void' literal")
	}
	o, ok := promote(p.value)
	if !ok {
		internalError("unary operation on %T", p.value)
	}
	switch o.prim {
	case host.Boolean:
		if op == "!" {
			return Bool(!o.b), nil
		}
		return nil, newError("Operator inappropriate for boolean")
	case host.Int, host.Long:
		var v int64
		switch op {
		case "+":
			v = o.i
		case "-":
			v = -o.i
		case "~":
			v = ^o.i
		case "++":
			v = o.i + 1
		case "--":
			v = o.i - 1
		default:
			return nil, newError("Operator %s inappropriate for %s", op, host.DisplayName(p.typ))
		}
		if o.prim == host.Int && (op == "++" || op == "--") && p.typ.Prim() != host.Int {
			return &Primitive{value: castWrapper(p.typ.Prim(), int32(v)), typ: p.typ}, nil
		}
		return integral(v, o.prim), nil
	default:
		var v float64
		switch op {
		case "+":
			v = o.f
		case "-":
			v = -o.f
		case "++":
			v = o.f + 1
		case "--":
			v = o.f - 1
		default:
			return nil, newError("Operator %s inappropriate for %s", op, host.DisplayName(p.typ))
		}
		return floating(v, o.prim), nil
	}
}
