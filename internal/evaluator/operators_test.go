package evaluator

import (
	"testing"

	"github.com/funvibe/dynlink/internal/host"
)

func TestBinaryOperation(t *testing.T) {
	boxed := func(v int32) Object { return &HostObject{Value: v, Class: host.IntWrapper} }
	tests := []struct {
		a, b     Object
		op       string
		want     any
		wantType host.Type
	}{
		{Int(7), Int(2), "/", int32(3), host.IntType},
		{Int(7), Int(2), "%", int32(1), host.IntType},
		{Int(-7), Int(2), "/", int32(-3), host.IntType},
		{Int(1), Long(2), "+", int64(3), host.LongType},
		{Byte(100), Byte(100), "+", int32(200), host.IntType},
		{Char('a'), Int(1), "+", int32(98), host.IntType},
		{Int(1), Double(0.5), "*", float64(0.5), host.DoubleType},
		{Float(1.5), Int(2), "+", float32(3.5), host.FloatType},
		{Double(7.5), Double(2), "%", float64(1.5), host.DoubleType},
		{Int(2147483647), Int(1), "+", int32(-2147483648), host.IntType},
		{Int(-1), Int(28), ">>>", int32(15), host.IntType},
		{Int(1), Int(33), "<<", int32(2), host.IntType},
		{Long(-1), Int(60), ">>>", int64(15), host.LongType},
		{Int(6), Int(3), "&", int32(2), host.IntType},
		{Int(6), Int(3), "^", int32(5), host.IntType},
		{Int(1), Long(1), "==", true, host.BooleanType},
		{Int(1), Double(1.5), "<", true, host.BooleanType},
		{Bool(true), Bool(false), "&&", false, host.BooleanType},
		{Bool(true), Bool(false), "^", true, host.BooleanType},
		{boxed(2), boxed(3), ">", false, host.BooleanType},
	}
	for _, tt := range tests {
		got, err := BinaryOperation(tt.a, tt.b, tt.op)
		if err != nil {
			t.Errorf("%s %s %s: %v", tt.a.Inspect(), tt.op, tt.b.Inspect(), err)
			continue
		}
		p, ok := got.(*Primitive)
		if !ok {
			t.Errorf("%s %s %s = %T, want primitive", tt.a.Inspect(), tt.op, tt.b.Inspect(), got)
			continue
		}
		if p.Value() != tt.want || !host.Same(p.PrimType(), tt.wantType) {
			t.Errorf("%s %s %s = %v (%s), want %v (%s)", tt.a.Inspect(), tt.op, tt.b.Inspect(),
				p.Value(), host.DisplayName(p.PrimType()), tt.want, host.DisplayName(tt.wantType))
		}
	}
}

func TestBinaryOperationWrappers(t *testing.T) {
	got, err := BinaryOperation(&HostObject{Value: int32(2), Class: host.IntWrapper}, Int(3), "+")
	if err != nil {
		t.Fatal(err)
	}
	ho, ok := got.(*HostObject)
	if !ok || ho.Value != int32(5) || !host.Same(ho.Class, host.IntWrapper) {
		t.Errorf("Integer + int = %#v, want boxed Integer 5", got)
	}

	got, err = BinaryOperation(&HostObject{Value: int64(2), Class: host.LongWrapper}, &HostObject{Value: 1.0, Class: host.DoubleWrapper}, "-")
	if err != nil {
		t.Fatal(err)
	}
	if ho, ok := got.(*HostObject); !ok || ho.Value != 1.0 || !host.Same(ho.Class, host.DoubleWrapper) {
		t.Errorf("Long - Double = %#v, want boxed Double 1", got)
	}
}

func TestBinaryOperationErrors(t *testing.T) {
	tests := []struct {
		a, b Object
		op   string
		want string
	}{
		{NULL, Int(1), "+", "Null value or 'null' literal in binary operation"},
		{Int(1), VOID, "+", "Undefined variable, class, or 'void' literal in binary operation"},
		{Int(1), Bool(true), "+", "Type mismatch in operator. int cannot be used with boolean"},
		{Bool(true), Bool(true), "+", "Operator + inappropriate for boolean"},
		{Float(1), Int(1), "<<", "Can't shift floats"},
		{Double(1), Int(1), ">>", "Can't shift doubles"},
		{String("a"), Int(1), "+", "Invalid types in binary operation: String"},
	}
	for _, tt := range tests {
		_, err := BinaryOperation(tt.a, tt.b, tt.op)
		if err == nil {
			t.Errorf("%s %s %s: expected error", tt.a.Inspect(), tt.op, tt.b.Inspect())
			continue
		}
		wantErr(t, err, tt.want)
	}
}

func TestIntegerDivisionByZero(t *testing.T) {
	for _, op := range []string{"/", "%"} {
		_, err := BinaryOperation(Int(1), Int(0), op)
		wantException(t, err, host.ArithmeticType)
		_, err = BinaryOperation(Long(1), Long(0), op)
		wantException(t, err, host.ArithmeticType)
	}
	got, err := BinaryOperation(Double(1), Double(0), "/")
	if err != nil {
		t.Fatal(err)
	}
	if f := primValue(t, got).(float64); f <= 0 {
		t.Errorf("1.0 / 0.0 = %v, want +Inf", f)
	}
}

func TestUnaryOperation(t *testing.T) {
	tests := []struct {
		in       *Primitive
		op       string
		want     any
		wantType host.Type
	}{
		{Int(5), "-", int32(-5), host.IntType},
		{Int(5), "~", int32(-6), host.IntType},
		{Long(5), "++", int64(6), host.LongType},
		{Byte(127), "++", int8(-128), host.ByteType},
		{Short(0), "--", int16(-1), host.ShortType},
		{Char('a'), "++", uint16('b'), host.CharType},
		{Char('a'), "-", int32(-97), host.IntType},
		{Byte(3), "+", int32(3), host.IntType},
		{Double(1.5), "-", float64(-1.5), host.DoubleType},
		{Float(1.5), "++", float32(2.5), host.FloatType},
		{Bool(true), "!", false, host.BooleanType},
	}
	for _, tt := range tests {
		got, err := UnaryOperation(tt.in, tt.op)
		if err != nil {
			t.Errorf("%s%s: %v", tt.op, tt.in.Inspect(), err)
			continue
		}
		if got.Value() != tt.want || !host.Same(got.PrimType(), tt.wantType) {
			t.Errorf("%s%s = %v (%s), want %v (%s)", tt.op, tt.in.Inspect(),
				got.Value(), host.DisplayName(got.PrimType()), tt.want, host.DisplayName(tt.wantType))
		}
	}
}

func TestUnaryOperationErrors(t *testing.T) {
	_, err := UnaryOperation(NULL, "-")
	wantErr(t, err, "illegal use of null object or 'null' literal")
	_, err = UnaryOperation(VOID, "!")
	wantErr(t, err, "illegal use of undefined object or 'void' literal")
	_, err = UnaryOperation(Bool(true), "-")
	wantErr(t, err, "Operator inappropriate for boolean")
	_, err = UnaryOperation(Double(1), "~")
	wantErr(t, err, "Operator ~ inappropriate for double")
}
