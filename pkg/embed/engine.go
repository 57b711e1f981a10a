// Package dynlink embeds the resolution and dispatch engine in Go programs.
// An Engine owns an environment over two hosts: Go types registered by
// reflection and protobuf schemas loaded from source.
package dynlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"

	"google.golang.org/grpc"

	"github.com/funvibe/dynlink/internal/config"
	"github.com/funvibe/dynlink/internal/diagnostics"
	"github.com/funvibe/dynlink/internal/evaluator"
	"github.com/funvibe/dynlink/internal/host"
	"github.com/funvibe/dynlink/internal/protohost"
	"github.com/funvibe/dynlink/internal/reflecthost"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// ErrNotFound is returned by Get for names that resolve to nothing.
var ErrNotFound = errors.New("not found")

// Engine wraps an environment and provides a high-level embedding API.
type Engine struct {
	cfg        *config.Config
	registry   *reflecthost.Registry
	proto      *protohost.Host
	chain      *host.Chain
	env        *evaluator.Environment
	marshaller *Marshaller
}

type options struct {
	logger *slog.Logger
}

type Option func(*options)

// WithLogger replaces the logger built from the configuration.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates an Engine. A nil cfg means config.Default().
func New(cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = cfg.Log.NewLogger(os.Stderr)
	}

	e := &Engine{
		cfg:      cfg,
		registry: reflecthost.New(),
		proto:    protohost.New(),
	}
	e.chain = host.NewChain(e.registry, e.proto)
	e.env = evaluator.NewEnvironment(e.chain, cfg, evaluator.WithLogger(o.logger))
	e.marshaller = NewMarshaller(e.env)
	return e
}

// Close detaches the engine from its hosts.
func (e *Engine) Close() {
	e.env.Close()
	e.chain.Close()
}

func (e *Engine) Registry() *reflecthost.Registry     { return e.registry }
func (e *Engine) Proto() *protohost.Host              { return e.proto }
func (e *Engine) Environment() *evaluator.Environment { return e.env }
func (e *Engine) Global() *evaluator.Scope            { return e.env.Global() }
func (e *Engine) Marshaller() *Marshaller             { return e.marshaller }

func (e *Engine) callStack(ctx context.Context) *evaluator.CallStack {
	if ctx == nil {
		ctx = context.Background()
	}
	return evaluator.NewCallStack(e.env.Global()).WithContext(ctx)
}

// RegisterType makes the Go type of sample available to scripts as name.
func (e *Engine) RegisterType(name string, sample any, opts ...reflecthost.TypeOption) error {
	rt := reflect.TypeOf(sample)
	if rt == nil {
		return fmt.Errorf("dynlink: %s: nil sample", name)
	}
	_, err := e.registry.RegisterType(name, rt, opts...)
	return err
}

// LoadProto parses proto sources and makes their messages, enums and
// services available to scripts.
func (e *Engine) LoadProto(files map[string]string, names ...string) error {
	return e.proto.LoadSource(files, names...)
}

// Dial attaches the connection used by service stubs.
func (e *Engine) Dial(conn grpc.ClientConnInterface) {
	e.proto.Bind(conn)
}

// Import adds a package to the global scope's imports.
func (e *Engine) Import(pkg string) {
	e.env.Global().ImportPackage(pkg)
}

// Bind registers a Go function or value in the global scope. Functions
// become script methods named name; a leading context.Context parameter
// receives the caller's context and a trailing error result is raised as an
// exception.
func (e *Engine) Bind(name string, val any) error {
	fv := reflect.ValueOf(val)
	if fv.Kind() == reflect.Func && !fv.IsNil() {
		return e.bindFunc(name, fv)
	}
	return e.Set(name, val)
}

func (e *Engine) bindFunc(name string, fn reflect.Value) error {
	ft := fn.Type()
	if ft.IsVariadic() {
		return fmt.Errorf("dynlink: %s: variadic functions cannot be bound", name)
	}
	first := 0
	ctxIn := ft.NumIn() > 0 && ft.In(0) == contextType
	if ctxIn {
		first = 1
	}
	nout := ft.NumOut()
	hasErr := nout > 0 && ft.Out(nout-1) == errorType
	if hasErr {
		nout--
	}
	if nout > 1 {
		return fmt.Errorf("dynlink: %s: at most one result besides error", name)
	}

	params := make([]string, ft.NumIn()-first)
	types := make([]host.Type, len(params))
	for i := range params {
		params[i] = fmt.Sprintf("arg%d", i)
		types[i] = e.registry.TypeFor(ft.In(first + i))
	}
	var ret host.Type = host.VoidType
	if nout == 1 {
		ret = e.registry.TypeFor(ft.Out(0))
	}

	body := evaluator.BodyFunc(func(cs *evaluator.CallStack, local *evaluator.Scope) (evaluator.Object, error) {
		in := make([]reflect.Value, 0, ft.NumIn())
		if ctxIn {
			in = append(in, reflect.ValueOf(cs.Context()))
		}
		for i, p := range params {
			pt := ft.In(first + i)
			obj, err := local.GetVariable(p)
			if err != nil {
				return nil, err
			}
			v, err := e.marshaller.FromValue(obj, pt)
			if err != nil {
				return nil, err
			}
			if v == nil {
				in = append(in, reflect.Zero(pt))
			} else {
				in = append(in, reflect.ValueOf(v))
			}
		}
		out := fn.Call(in)
		if hasErr {
			if err, _ := out[len(out)-1].Interface().(error); err != nil {
				return nil, err
			}
		}
		if nout == 0 {
			return evaluator.VOID, nil
		}
		return e.env.Wrap(out[0].Interface(), ret), nil
	})
	e.env.Global().AddMethod(evaluator.NewMethod(name, params, types, ret, body, evaluator.ModPublic))
	return nil
}

// Set assigns a global variable.
func (e *Engine) Set(name string, val any) error {
	return e.env.Global().SetVariable(name, e.marshaller.ToValue(val), e.cfg.Strict)
}

// Get resolves name, which may be a dotted path such as a.b.c, and returns
// its Go value.
func (e *Engine) Get(name string) (any, error) {
	obj, err := e.env.Global().NameResolver(name).ToObject(e.callStack(context.Background()), false)
	if err != nil {
		return nil, err
	}
	if obj == evaluator.VOID {
		return nil, fmt.Errorf("dynlink: %s: %w", name, ErrNotFound)
	}
	return e.marshaller.FromValue(obj, nil)
}

// Call invokes the method name, which may be qualified (obj.m, Type.m), with
// Go arguments.
func (e *Engine) Call(ctx context.Context, name string, args ...any) (any, error) {
	res, err := e.env.Global().NameResolver(name).InvokeMethod(e.marshaller.toValues(args), e.callStack(ctx), nil)
	if err != nil {
		return nil, err
	}
	return e.marshaller.FromValue(res, nil)
}

// Invoke calls method on target, a Go value or an engine value.
func (e *Engine) Invoke(ctx context.Context, target any, method string, args ...any) (any, error) {
	res, err := e.env.InvokeObjectMethod(e.marshaller.ToValue(target), method, e.marshaller.toValues(args), e.callStack(ctx), nil)
	if err != nil {
		return nil, err
	}
	return e.marshaller.FromValue(res, nil)
}

// Construct builds an instance of the named type.
func (e *Engine) Construct(ctx context.Context, typeName string, args ...any) (any, error) {
	t, ok := e.env.Global().ResolveType(typeName)
	if !ok {
		return nil, fmt.Errorf("dynlink: type %s: %w", typeName, ErrNotFound)
	}
	obj, err := e.env.Construct(t, e.marshaller.toValues(args), e.callStack(ctx), nil)
	if err != nil {
		return nil, err
	}
	return e.marshaller.FromValue(obj, nil)
}

// Report renders err for people, colouring it as the configuration says.
func (e *Engine) Report(w io.Writer, err error) error {
	return diagnostics.New(w, e.cfg.Diagnostics.Color).Render(err)
}
