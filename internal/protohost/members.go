package protohost

import (
	"context"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/funvibe/dynlink/internal/host"
)

var byteArray = host.ArrayOf(host.ByteType)

func (h *Host) buildLocked(e *entry) {
	switch {
	case e.msg != nil:
		h.buildMessageLocked(e)
	case e.enum != nil:
		buildEnum(e)
	case e.svc != nil:
		h.buildServiceLocked(e)
	}
}

func (h *Host) buildMessageLocked(e *entry) {
	md := e.msg
	for _, fd := range md.GetFields() {
		fd := fd
		e.fields = append(e.fields, &host.Slot{
			Ident:    fd.GetJSONName(),
			Declarer: e.typ,
			Of:       h.fieldTypeLocked(fd),
			Getter: func(recv any) (any, error) {
				m, err := asMessage(recv, md)
				if err != nil {
					return nil, err
				}
				return fromProto(fd, m.GetField(fd)), nil
			},
			Setter: func(recv any, v any) error {
				m, err := asMessage(recv, md)
				if err != nil {
					return err
				}
				if v == nil {
					m.ClearField(fd)
					return nil
				}
				pv, err := toProto(fd, v)
				if err != nil {
					return err
				}
				return m.TrySetField(fd, pv)
			},
		})
	}

	e.ctors = []host.Constructor{&host.Maker{
		Declarer: e.typ,
		Impl: func(context.Context, []any) (any, error) {
			return dynamic.NewMessage(md), nil
		},
	}}
	e.methods = []host.Method{
		&host.Func{
			Ident: "parseFrom", Declarer: e.typ, In: []host.Type{byteArray}, Out: e.typ, IsStatic: true,
			Impl: func(_ context.Context, _ any, args []any) (any, error) {
				b, err := toBytes(args[0])
				if err != nil {
					return nil, err
				}
				m := dynamic.NewMessage(md)
				if err := m.Unmarshal(b); err != nil {
					return nil, &host.Exception{Class: host.IllegalArgumentType, Message: err.Error(), Cause: err}
				}
				return m, nil
			},
		},
		&host.Func{
			Ident: "parseJson", Declarer: e.typ, In: []host.Type{host.StringType}, Out: e.typ, IsStatic: true,
			Impl: func(_ context.Context, _ any, args []any) (any, error) {
				s, _ := args[0].(string)
				m := dynamic.NewMessage(md)
				if err := m.UnmarshalJSON([]byte(s)); err != nil {
					return nil, &host.Exception{Class: host.IllegalArgumentType, Message: err.Error(), Cause: err}
				}
				return m, nil
			},
		},
	}
}

func buildEnum(e *entry) {
	ed := e.enum
	for _, vd := range ed.GetValues() {
		n := vd.GetNumber()
		e.fields = append(e.fields, &host.Slot{
			Ident:    vd.GetName(),
			Declarer: e.typ,
			Of:       host.IntType,
			IsStatic: true,
			IsFinal:  true,
			Getter:   func(any) (any, error) { return n, nil },
		})
	}
	e.methods = []host.Method{
		&host.Func{
			Ident: "nameOf", Declarer: e.typ, In: []host.Type{host.IntType}, Out: host.StringType, IsStatic: true,
			Impl: func(_ context.Context, _ any, args []any) (any, error) {
				n, _ := args[0].(int32)
				if vd := ed.FindValueByNumber(n); vd != nil {
					return vd.GetName(), nil
				}
				return nil, nil
			},
		},
		&host.Func{
			Ident: "valueOf", Declarer: e.typ, In: []host.Type{host.StringType}, Out: host.IntType, IsStatic: true,
			Impl: func(_ context.Context, _ any, args []any) (any, error) {
				s, _ := args[0].(string)
				vd := ed.FindValueByName(s)
				if vd == nil {
					return nil, host.Throw(host.IllegalArgumentType, "no constant %s in %s", s, ed.GetFullyQualifiedName())
				}
				return vd.GetNumber(), nil
			},
		},
	}
}

func (h *Host) buildServiceLocked(e *entry) {
	sd := e.svc
	e.ctors = []host.Constructor{&host.Maker{
		Declarer: e.typ,
		Impl: func(context.Context, []any) (any, error) {
			conn := h.connection()
			if conn == nil {
				return nil, host.Throw(StatusExceptionType, "%s: no connection bound", sd.GetFullyQualifiedName())
			}
			return &Stub{svc: sd, conn: conn}, nil
		},
	}}
	for _, md := range sd.GetMethods() {
		md := md
		if md.IsClientStreaming() || md.IsServerStreaming() {
			continue
		}
		path := "/" + sd.GetFullyQualifiedName() + "/" + md.GetName()
		e.methods = append(e.methods, &host.Func{
			Ident:    lowerFirst(md.GetName()),
			Declarer: e.typ,
			In:       []host.Type{h.messageTypeLocked(md.GetInputType())},
			Out:      h.messageTypeLocked(md.GetOutputType()),
			Impl: func(ctx context.Context, recv any, args []any) (any, error) {
				stub, ok := recv.(*Stub)
				if !ok || stub == nil {
					return nil, host.Throw(host.NullPointerType, "%s called without a stub", path)
				}
				return stub.invoke(ctx, md, path, args[0])
			},
		})
	}
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[n:]
}

// Stub is a client of one service over a bound connection.
type Stub struct {
	svc  *desc.ServiceDescriptor
	conn grpc.ClientConnInterface
}

func (s *Stub) Service() *desc.ServiceDescriptor { return s.svc }

func (s *Stub) String() string { return "stub for " + s.svc.GetFullyQualifiedName() }

func (s *Stub) invoke(ctx context.Context, md *desc.MethodDescriptor, path string, arg any) (any, error) {
	req, ok := arg.(*dynamic.Message)
	if !ok || req == nil {
		return nil, host.Throw(host.NullPointerType, "%s: null request", path)
	}
	if got, want := req.GetMessageDescriptor().GetFullyQualifiedName(), md.GetInputType().GetFullyQualifiedName(); got != want {
		return nil, host.Throw(host.IllegalArgumentType, "%s: request is %s, want %s", path, got, want)
	}
	resp := dynamic.NewMessage(md.GetOutputType())
	if err := s.conn.Invoke(ctx, path, req, resp); err != nil {
		st := status.Convert(err)
		return nil, &host.Exception{
			Class:   StatusExceptionType,
			Message: fmt.Sprintf("%s: %s", st.Code(), st.Message()),
			Cause:   err,
		}
	}
	return resp, nil
}

// messageMethods are declared on MessageType and shared by every message.
var messageMethods = []host.Method{
	messageMethod("toByteArray", byteArray, nil, func(m *dynamic.Message, _ []any) (any, error) {
		return m.Marshal()
	}),
	messageMethod("toJson", host.StringType, nil, func(m *dynamic.Message, _ []any) (any, error) {
		b, err := m.MarshalJSON()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}),
	messageMethod("toString", host.StringType, nil, func(m *dynamic.Message, _ []any) (any, error) {
		return m.String(), nil
	}),
	messageMethod("hasField", host.BooleanType, []host.Type{host.StringType}, func(m *dynamic.Message, args []any) (any, error) {
		name, _ := args[0].(string)
		fd := m.GetMessageDescriptor().FindFieldByJSONName(name)
		if fd == nil {
			fd = m.GetMessageDescriptor().FindFieldByName(name)
		}
		if fd == nil {
			return nil, host.Throw(host.IllegalArgumentType, "no field %s in %s", name, m.GetMessageDescriptor().GetFullyQualifiedName())
		}
		return m.HasField(fd), nil
	}),
	messageMethod("clear", nil, nil, func(m *dynamic.Message, _ []any) (any, error) {
		m.Reset()
		return nil, nil
	}),
}

func messageMethod(name string, out host.Type, in []host.Type, impl func(*dynamic.Message, []any) (any, error)) *host.Func {
	return &host.Func{
		Ident: name, Declarer: MessageType, In: in, Out: out,
		Impl: func(_ context.Context, recv any, args []any) (any, error) {
			m, ok := recv.(*dynamic.Message)
			if !ok || m == nil {
				return nil, host.Throw(host.NullPointerType, "%s called on %T", name, recv)
			}
			return impl(m, args)
		},
	}
}

func asMessage(recv any, md *desc.MessageDescriptor) (*dynamic.Message, error) {
	m, ok := recv.(*dynamic.Message)
	if !ok || m == nil {
		return nil, host.Throw(host.NullPointerType, "field of %s read on %T", md.GetFullyQualifiedName(), recv)
	}
	if m.GetMessageDescriptor().GetFullyQualifiedName() != md.GetFullyQualifiedName() {
		return nil, fmt.Errorf("message is %s, want %s", m.GetMessageDescriptor().GetFullyQualifiedName(), md.GetFullyQualifiedName())
	}
	return m, nil
}

func (h *Host) messageTypeLocked(md *desc.MessageDescriptor) host.Type {
	if e := h.byProto[md.GetFullyQualifiedName()]; e != nil {
		return e.typ
	}
	return MessageType
}

// fieldTypeLocked maps a proto field to the host type of its slot. Unsigned
// 32-bit and all 64-bit integers are long, enums are int, maps are untyped.
func (h *Host) fieldTypeLocked(fd *desc.FieldDescriptor) host.Type {
	if fd.IsMap() {
		return host.ObjectType
	}
	var t host.Type
	switch fd.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_BOOL:
		t = host.BooleanType
	case descriptorpb.FieldDescriptorProto_TYPE_INT32, descriptorpb.FieldDescriptorProto_TYPE_SINT32,
		descriptorpb.FieldDescriptorProto_TYPE_SFIXED32, descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		t = host.IntType
	case descriptorpb.FieldDescriptorProto_TYPE_UINT32, descriptorpb.FieldDescriptorProto_TYPE_FIXED32,
		descriptorpb.FieldDescriptorProto_TYPE_INT64, descriptorpb.FieldDescriptorProto_TYPE_SINT64,
		descriptorpb.FieldDescriptorProto_TYPE_SFIXED64, descriptorpb.FieldDescriptorProto_TYPE_UINT64,
		descriptorpb.FieldDescriptorProto_TYPE_FIXED64:
		t = host.LongType
	case descriptorpb.FieldDescriptorProto_TYPE_FLOAT:
		t = host.FloatType
	case descriptorpb.FieldDescriptorProto_TYPE_DOUBLE:
		t = host.DoubleType
	case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		t = host.StringType
	case descriptorpb.FieldDescriptorProto_TYPE_BYTES:
		t = byteArray
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, descriptorpb.FieldDescriptorProto_TYPE_GROUP:
		t = h.messageTypeLocked(fd.GetMessageType())
	default:
		t = host.ObjectType
	}
	if fd.IsRepeated() {
		return host.ArrayOf(t)
	}
	return t
}

// protoGoType is the Go type a dynamic message stores for one element of fd.
func protoGoType(fd *desc.FieldDescriptor) reflect.Type {
	switch fd.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_BOOL:
		return reflect.TypeOf((*bool)(nil)).Elem()
	case descriptorpb.FieldDescriptorProto_TYPE_INT32, descriptorpb.FieldDescriptorProto_TYPE_SINT32,
		descriptorpb.FieldDescriptorProto_TYPE_SFIXED32, descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		return reflect.TypeOf((*int32)(nil)).Elem()
	case descriptorpb.FieldDescriptorProto_TYPE_UINT32, descriptorpb.FieldDescriptorProto_TYPE_FIXED32:
		return reflect.TypeOf((*uint32)(nil)).Elem()
	case descriptorpb.FieldDescriptorProto_TYPE_INT64, descriptorpb.FieldDescriptorProto_TYPE_SINT64,
		descriptorpb.FieldDescriptorProto_TYPE_SFIXED64:
		return reflect.TypeOf((*int64)(nil)).Elem()
	case descriptorpb.FieldDescriptorProto_TYPE_UINT64, descriptorpb.FieldDescriptorProto_TYPE_FIXED64:
		return reflect.TypeOf((*uint64)(nil)).Elem()
	case descriptorpb.FieldDescriptorProto_TYPE_FLOAT:
		return reflect.TypeOf((*float32)(nil)).Elem()
	case descriptorpb.FieldDescriptorProto_TYPE_DOUBLE:
		return reflect.TypeOf((*float64)(nil)).Elem()
	case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		return reflect.TypeOf((*string)(nil)).Elem()
	case descriptorpb.FieldDescriptorProto_TYPE_BYTES:
		return reflect.TypeOf((*[]byte)(nil)).Elem()
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, descriptorpb.FieldDescriptorProto_TYPE_GROUP:
		return reflect.TypeOf((**dynamic.Message)(nil)).Elem()
	}
	return reflect.TypeOf((*any)(nil)).Elem()
}

// engineGoType is the canonical engine representation of one element of fd.
func engineGoType(fd *desc.FieldDescriptor) reflect.Type {
	switch t := protoGoType(fd); t.Kind() {
	case reflect.Uint32, reflect.Uint64:
		return reflect.TypeOf((*int64)(nil)).Elem()
	default:
		return t
	}
}

// fromProto converts a value read from a dynamic message. Repeated fields
// become typed slices.
func fromProto(fd *desc.FieldDescriptor, v any) any {
	if fd.IsMap() {
		return v
	}
	if list, ok := v.([]any); ok && fd.IsRepeated() {
		et := engineGoType(fd)
		out := reflect.MakeSlice(reflect.SliceOf(et), len(list), len(list))
		for i, x := range list {
			xv := reflect.ValueOf(scalarFromProto(x))
			if !xv.IsValid() || !xv.Type().AssignableTo(et) {
				return list
			}
			out.Index(i).Set(xv)
		}
		return out.Interface()
	}
	return scalarFromProto(v)
}

func scalarFromProto(v any) any {
	switch x := v.(type) {
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil
	}
	return v
}

// toProto converts an engine value for storage in fd.
func toProto(fd *desc.FieldDescriptor, v any) (any, error) {
	if fd.IsMap() {
		return v, nil
	}
	if !fd.IsRepeated() {
		return scalarToProto(fd, v)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("field %s is repeated, got %T", fd.GetName(), v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		x, err := scalarToProto(fd, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func scalarToProto(fd *desc.FieldDescriptor, v any) (any, error) {
	switch fd.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_BYTES:
		return toBytes(v)
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, descriptorpb.FieldDescriptorProto_TYPE_GROUP:
		return v, nil
	}
	cv, err := host.ConvertTo(v, protoGoType(fd))
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", fd.GetName(), err)
	}
	return cv.Interface(), nil
}

// toBytes accepts both Go byte slices and engine byte arrays.
func toBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case []int8:
		out := make([]byte, len(b))
		for i, x := range b {
			out[i] = byte(x)
		}
		return out, nil
	case nil:
		return nil, nil
	}
	return nil, host.Throw(host.IllegalArgumentType, "expected byte[], got %T", v)
}
