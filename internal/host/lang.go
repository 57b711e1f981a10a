package host

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// Lang is the capability for the builtin lang types: runtime types of
// canonical primitive values, strings and exceptions, and a small set of
// members on Object, String, Number and Throwable.
var Lang Capability = langCapability{}

type langCapability struct{}

func (langCapability) ResolveType(name string) (Type, bool) { return Builtin(name) }

func (langCapability) TypeOf(v any) Type {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return StringType
	case *Exception:
		if x.Class != nil {
			return x.Class
		}
		return ExceptionType
	}
	if p, ok := PrimitiveOf(Normalize(v)); ok {
		return WrapperOf(p)
	}
	return nil
}

func (langCapability) Fields(Type, string, bool) []Field { return nil }

func (langCapability) Methods(t Type, name string, arity int, _ bool) []Method {
	var out []Method
	for _, m := range langMethods[t.Name()] {
		if (name == "" || m.Ident == name) && (arity < 0 || len(m.In) == arity) {
			out = append(out, m)
		}
	}
	return out
}

func (langCapability) Constructors(t Type, _ bool) []Constructor {
	var out []Constructor
	for _, c := range langCtors[t.Name()] {
		out = append(out, c)
	}
	return out
}

func str(recv any) string {
	if s, ok := recv.(string); ok {
		return s
	}
	return fmt.Sprint(recv)
}

func intArg(v any) int { return int(reflect.ValueOf(v).Int()) }

func checkRange(s string, lo, hi int) error {
	if lo < 0 || hi > len(s) || lo > hi {
		return Throw(IndexOutOfBoundsType, "begin %d, end %d, length %d", lo, hi, len(s))
	}
	return nil
}

func method(owner Type, name string, out Type, impl func(recv any, args []any) (any, error), in ...Type) *Func {
	return &Func{
		Ident: name, Declarer: owner, In: in, Out: out,
		Impl: func(_ context.Context, recv any, args []any) (any, error) { return impl(recv, args) },
	}
}

var langMethods = map[string][]*Func{
	objectName: {
		method(ObjectType, "toString", StringType, func(r any, _ []any) (any, error) {
			if e, ok := r.(error); ok {
				return e.Error(), nil
			}
			return str(r), nil
		}),
		method(ObjectType, "equals", BooleanType, func(r any, a []any) (any, error) {
			return reflect.DeepEqual(r, a[0]), nil
		}, ObjectType),
		method(ObjectType, "hashCode", IntType, func(r any, _ []any) (any, error) {
			var h int32
			for _, c := range str(r) {
				h = 31*h + int32(c)
			}
			return h, nil
		}),
	},
	"lang.String": {
		method(StringType, "length", IntType, func(r any, _ []any) (any, error) {
			return int32(len(str(r))), nil
		}),
		method(StringType, "charAt", CharType, func(r any, a []any) (any, error) {
			s, i := str(r), intArg(a[0])
			if err := checkRange(s, i, i+1); err != nil {
				return nil, err
			}
			return uint16(s[i]), nil
		}, IntType),
		method(StringType, "substring", StringType, func(r any, a []any) (any, error) {
			s, i := str(r), intArg(a[0])
			if err := checkRange(s, i, len(s)); err != nil {
				return nil, err
			}
			return s[i:], nil
		}, IntType),
		method(StringType, "substring", StringType, func(r any, a []any) (any, error) {
			s, i, j := str(r), intArg(a[0]), intArg(a[1])
			if err := checkRange(s, i, j); err != nil {
				return nil, err
			}
			return s[i:j], nil
		}, IntType, IntType),
		method(StringType, "concat", StringType, func(r any, a []any) (any, error) {
			return str(r) + str(a[0]), nil
		}, StringType),
		method(StringType, "indexOf", IntType, func(r any, a []any) (any, error) {
			return int32(strings.Index(str(r), str(a[0]))), nil
		}, StringType),
		method(StringType, "startsWith", BooleanType, func(r any, a []any) (any, error) {
			return strings.HasPrefix(str(r), str(a[0])), nil
		}, StringType),
		method(StringType, "toUpperCase", StringType, func(r any, _ []any) (any, error) {
			return strings.ToUpper(str(r)), nil
		}),
		method(StringType, "isEmpty", BooleanType, func(r any, _ []any) (any, error) {
			return len(str(r)) == 0, nil
		}),
	},
	"lang.Number": {
		method(NumberType, "intValue", IntType, func(r any, _ []any) (any, error) {
			return int32(toFloat(r)), nil
		}),
		method(NumberType, "longValue", LongType, func(r any, _ []any) (any, error) {
			return int64(toFloat(r)), nil
		}),
		method(NumberType, "doubleValue", DoubleType, func(r any, _ []any) (any, error) {
			return toFloat(r), nil
		}),
	},
	"lang.Throwable": {
		method(ThrowableType, "getMessage", StringType, func(r any, _ []any) (any, error) {
			if e, ok := r.(*Exception); ok {
				return e.Message, nil
			}
			return nil, nil
		}),
	},
}

func toFloat(v any) float64 {
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return float64(rv.Int())
	case rv.CanUint():
		return float64(rv.Uint())
	case rv.CanFloat():
		return rv.Float()
	}
	return 0
}

var langCtors = map[string][]*Maker{
	"lang.String": {
		{Declarer: StringType, Impl: func(context.Context, []any) (any, error) { return "", nil }},
		{Declarer: StringType, In: []Type{StringType}, Impl: func(_ context.Context, a []any) (any, error) {
			return str(a[0]), nil
		}},
	},
	objectName: {
		{Declarer: ObjectType, Impl: func(context.Context, []any) (any, error) { return &struct{}{}, nil }},
	},
	"lang.RuntimeException": {
		{Declarer: RuntimeExceptionType, In: []Type{StringType}, Impl: func(_ context.Context, a []any) (any, error) {
			return &Exception{Class: RuntimeExceptionType, Message: str(a[0])}, nil
		}},
	},
}
