package reflecthost

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"unicode"
	"unsafe"

	"github.com/funvibe/dynlink/internal/host"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// memberName turns an exported Go identifier into a script member name:
// GetName becomes getName, ID becomes id, URLPath becomes urlPath.
func memberName(goName string) string {
	runes := []rune(goName)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	if n > 1 && n < len(runes) {
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

// fieldName returns the member name of a struct field, honouring a
// `dynlink:"name"` tag. A "-" tag hides the field.
func fieldName(f reflect.StructField) (string, bool) {
	switch tag := f.Tag.Get("dynlink"); tag {
	case "-":
		return "", false
	case "":
		return memberName(f.Name), true
	default:
		return tag, true
	}
}

func derefType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

// structFieldsLocked describes the fields a struct declares itself. Fields
// of the embedded superclass belong to the superclass.
func (r *Registry) structFieldsLocked(e *entry) []host.Field {
	if e.rt.Kind() != reflect.Struct {
		return nil
	}
	var out []host.Field
	for i := 0; i < e.rt.NumField(); i++ {
		f := e.rt.Field(i)
		if f.Anonymous && e.super != nil && derefType(f.Type) == e.super.rt {
			continue
		}
		name, ok := fieldName(f)
		if !ok {
			continue
		}
		goName, ft := f.Name, f.Type
		out = append(out, &host.Slot{
			Ident:    name,
			Declarer: e.typ,
			Of:       r.typeForLocked(ft),
			Hidden:   !f.IsExported(),
			Getter: func(recv any) (any, error) {
				fv, err := fieldValue(recv, goName, false)
				if err != nil {
					return nil, err
				}
				return fromGo(fv), nil
			},
			Setter: func(recv any, v any) error {
				fv, err := fieldValue(recv, goName, true)
				if err != nil {
					return err
				}
				cv, err := host.ConvertTo(v, ft)
				if err != nil {
					return err
				}
				fv.Set(cv)
				return nil
			},
		})
	}
	return out
}

// fieldValue finds the field goName of recv, following embedded structs.
// Unexported fields are made accessible. Assignment needs a pointer
// receiver.
func fieldValue(recv any, goName string, forSet bool) (reflect.Value, error) {
	rv := reflect.ValueOf(recv)
	switch {
	case !rv.IsValid():
		return reflect.Value{}, host.Throw(host.NullPointerType, "field %s of null", goName)
	case rv.Kind() == reflect.Pointer:
		if rv.IsNil() {
			return reflect.Value{}, host.Throw(host.NullPointerType, "field %s of nil %s", goName, rv.Type())
		}
		rv = rv.Elem()
	case forSet:
		return reflect.Value{}, fmt.Errorf("cannot assign field %s of a %s value", goName, rv.Type())
	default:
		cp := reflect.New(rv.Type()).Elem()
		cp.Set(rv)
		rv = cp
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%s has no fields", rv.Type())
	}
	fv := rv.FieldByName(goName)
	if !fv.IsValid() {
		return reflect.Value{}, fmt.Errorf("no field %s in %s", goName, rv.Type())
	}
	if !fv.CanInterface() {
		fv = reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem()
	}
	return fv, nil
}

// goMethodsLocked describes the method set of a type. Methods the embedded
// superclass declares with the same signature are left to the superclass;
// calls still dispatch on the receiver's own method set.
func (r *Registry) goMethodsLocked(e *entry) []host.Method {
	set, first := e.rt, 0
	if !e.iface {
		set, first = reflect.PointerTo(e.rt), 1
	}
	var inherited reflect.Type
	if e.super != nil {
		inherited = reflect.PointerTo(e.super.rt)
	}
	var out []host.Method
	for i := 0; i < set.NumMethod(); i++ {
		m := set.Method(i)
		if inherited != nil {
			if sm, ok := inherited.MethodByName(m.Name); ok && sameSignature(sm.Type, m.Type, first) {
				continue
			}
		}
		name := memberName(m.Name)
		if m.Name == "String" && m.Type.NumIn() == first && m.Type.NumOut() == 1 && m.Type.Out(0).Kind() == reflect.String {
			name = "toString"
		}
		f := &goFunc{registry: r, owner: e.typ, name: name, goName: m.Name, rt: m.Type, first: first}
		f.bindLocked()
		out = append(out, &goMethod{name: name, fn: f})
	}
	return out
}

func sameSignature(a, b reflect.Type, first int) bool {
	if a.NumIn() != b.NumIn() || a.NumOut() != b.NumOut() || a.IsVariadic() != b.IsVariadic() {
		return false
	}
	for i := first; i < a.NumIn(); i++ {
		if a.In(i) != b.In(i) {
			return false
		}
	}
	for i := 0; i < a.NumOut(); i++ {
		if a.Out(i) != b.Out(i) {
			return false
		}
	}
	return true
}

// goFunc is a Go function or method seen through its script signature.
type goFunc struct {
	registry *Registry
	owner    host.Type
	name     string
	// goName is set for methods looked up on the receiver at call time.
	goName string
	fv     reflect.Value
	rt     reflect.Type
	// first is the index in rt of the first script-visible parameter.
	first int
	// receiverIn marks registered methods taking the receiver first.
	receiverIn bool
	ctxIn      bool
	hasErr     bool
	bound      bool

	in  []host.Type
	out host.Type
}

// bindLocked computes the host signature. A leading context.Context
// parameter is filled in by the engine; a trailing error result becomes a
// host exception.
func (f *goFunc) bindLocked() {
	if !f.bound {
		if f.receiverIn {
			f.first = 1
		}
		if f.first < f.rt.NumIn() && f.rt.In(f.first) == contextType {
			f.ctxIn = true
			f.first++
		}
		f.bound = true
	}
	f.in = make([]host.Type, 0, f.rt.NumIn()-f.first)
	for i := f.first; i < f.rt.NumIn(); i++ {
		f.in = append(f.in, f.registry.typeForLocked(f.rt.In(i)))
	}
	nout := f.rt.NumOut()
	f.hasErr = nout > 0 && f.rt.Out(nout-1) == errorType
	if f.hasErr {
		nout--
	}
	f.out = nil
	if nout > 0 {
		f.out = f.registry.typeForLocked(f.rt.Out(0))
	}
}

func (f *goFunc) call(ctx context.Context, recv any, args []any) (res any, err error) {
	if len(args) != len(f.in) {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d", f.name, len(f.in), len(args))
	}
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, host.Throw(host.RuntimeExceptionType, "%s: panic: %v", f.name, p)
		}
	}()

	fn := f.fv
	in := make([]reflect.Value, 0, len(args)+2)
	switch {
	case f.goName != "":
		if fn, err = methodValue(recv, f.goName); err != nil {
			return nil, err
		}
	case f.receiverIn:
		if recv == nil {
			return nil, host.Throw(host.NullPointerType, "%s called on null", f.name)
		}
		rv, err := host.ConvertTo(recv, f.rt.In(0))
		if err != nil {
			return nil, host.Throw(host.IllegalArgumentType, "%s: receiver: %v", f.name, err)
		}
		in = append(in, rv)
	}
	if f.ctxIn {
		if ctx == nil {
			ctx = context.Background()
		}
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, a := range args {
		cv, err := host.ConvertTo(a, f.rt.In(f.first+i))
		if err != nil {
			return nil, host.Throw(host.IllegalArgumentType, "%s: argument %d: %v", f.name, i+1, err)
		}
		in = append(in, cv)
	}

	var outs []reflect.Value
	if f.rt.IsVariadic() {
		outs = fn.CallSlice(in)
	} else {
		outs = fn.Call(in)
	}
	if f.hasErr {
		last := outs[len(outs)-1]
		outs = outs[:len(outs)-1]
		if !last.IsNil() {
			return nil, asException(last.Interface().(error))
		}
	}
	if len(outs) == 0 {
		return nil, nil
	}
	return fromGo(outs[0]), nil
}

// methodValue binds the method goName of recv. Value receivers are copied
// when only the pointer method set has it.
func methodValue(recv any, goName string) (reflect.Value, error) {
	rv := reflect.ValueOf(recv)
	if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return reflect.Value{}, host.Throw(host.NullPointerType, "method %s called on null", goName)
	}
	if m := rv.MethodByName(goName); m.IsValid() {
		return m, nil
	}
	if rv.Kind() != reflect.Pointer {
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		if m := p.MethodByName(goName); m.IsValid() {
			return m, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("%s has no method %s", rv.Type(), goName)
}

// fromGo converts a Go result to the value the engine wraps: nil pointers
// and interfaces become nil, pointers to primitives are dereferenced.
func fromGo(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		if _, ok := host.PrimitiveForKind(v.Elem().Kind()); ok && v.Elem().Type().PkgPath() == "" {
			return v.Elem().Interface()
		}
	case reflect.Interface, reflect.Map, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return nil
		}
	}
	return v.Interface()
}

// asException keeps host exceptions as they are and reports any other Go
// error as a runtime exception caused by it.
func asException(err error) error {
	var exc *host.Exception
	if errors.As(err, &exc) {
		return err
	}
	return &host.Exception{Class: host.RuntimeExceptionType, Message: err.Error(), Cause: err}
}

type goMethod struct {
	name   string
	fn     *goFunc
	static bool
}

func (m *goMethod) Name() string     { return m.name }
func (m *goMethod) Owner() host.Type { return m.fn.owner }
func (m *goMethod) Params() []host.Type {
	return m.fn.in
}
func (m *goMethod) Static() bool { return m.static }
func (m *goMethod) Public() bool { return true }

func (m *goMethod) Return() host.Type {
	if m.fn.out == nil {
		return host.VoidType
	}
	return m.fn.out
}

func (m *goMethod) Call(ctx context.Context, recv any, args []any) (any, error) {
	if m.static {
		recv = nil
	}
	return m.fn.call(ctx, recv, args)
}

func (m *goMethod) String() string { return host.Signature(m.name, m.fn.in) }

type goCtor struct {
	fn *goFunc
}

func (c *goCtor) Owner() host.Type    { return c.fn.owner }
func (c *goCtor) Params() []host.Type { return c.fn.in }
func (c *goCtor) Public() bool        { return true }

func (c *goCtor) New(ctx context.Context, args []any) (any, error) {
	return c.fn.call(ctx, nil, args)
}
