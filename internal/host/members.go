package host

import (
	"context"
	"fmt"
)

// Field is a handle on a host field. Static fields ignore the receiver.
type Field interface {
	Name() string
	Owner() Type
	Type() Type
	Static() bool
	Public() bool
	Final() bool
	Get(recv any) (any, error)
	Set(recv any, v any) error
}

// Method is a handle on a host method. Params and Return use primitive types
// for primitive slots; Return is VoidType for methods without a result.
type Method interface {
	Name() string
	Owner() Type
	Params() []Type
	Return() Type
	Static() bool
	Public() bool
	Call(ctx context.Context, recv any, args []any) (any, error)
}

// Constructor is a handle on a host constructor.
type Constructor interface {
	Owner() Type
	Params() []Type
	Public() bool
	New(ctx context.Context, args []any) (any, error)
}

// Func is a Method backed by a Go closure. Hosts whose members are not
// reachable through Go reflection describe them with Func.
type Func struct {
	Ident    string
	Declarer Type
	In       []Type
	Out      Type
	IsStatic bool
	Hidden   bool
	Impl     func(ctx context.Context, recv any, args []any) (any, error)
}

func (f *Func) Name() string   { return f.Ident }
func (f *Func) Owner() Type    { return f.Declarer }
func (f *Func) Params() []Type { return f.In }
func (f *Func) Static() bool   { return f.IsStatic }
func (f *Func) Public() bool   { return !f.Hidden }

func (f *Func) Return() Type {
	if f.Out == nil {
		return VoidType
	}
	return f.Out
}

func (f *Func) Call(ctx context.Context, recv any, args []any) (any, error) {
	if len(args) != len(f.In) {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d", f.Ident, len(f.In), len(args))
	}
	return f.Impl(ctx, recv, args)
}

func (f *Func) String() string { return Signature(f.Ident, f.In) }

// Slot is a Field backed by closures.
type Slot struct {
	Ident    string
	Declarer Type
	Of       Type
	IsStatic bool
	IsFinal  bool
	Hidden   bool
	Getter   func(recv any) (any, error)
	Setter   func(recv any, v any) error
}

func (s *Slot) Name() string              { return s.Ident }
func (s *Slot) Owner() Type               { return s.Declarer }
func (s *Slot) Type() Type                { return s.Of }
func (s *Slot) Static() bool              { return s.IsStatic }
func (s *Slot) Public() bool              { return !s.Hidden }
func (s *Slot) Final() bool               { return s.IsFinal || s.Setter == nil }
func (s *Slot) Get(recv any) (any, error) { return s.Getter(recv) }

func (s *Slot) Set(recv any, v any) error {
	if s.Setter == nil {
		return fmt.Errorf("field %s is read-only", s.Ident)
	}
	return s.Setter(recv, v)
}

// Maker is a Constructor backed by a closure.
type Maker struct {
	Declarer Type
	In       []Type
	Hidden   bool
	Impl     func(ctx context.Context, args []any) (any, error)
}

func (m *Maker) Owner() Type    { return m.Declarer }
func (m *Maker) Params() []Type { return m.In }
func (m *Maker) Public() bool   { return !m.Hidden }

func (m *Maker) New(ctx context.Context, args []any) (any, error) {
	if len(args) != len(m.In) {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d", m.Declarer.Name(), len(m.In), len(args))
	}
	return m.Impl(ctx, args)
}

// Signature renders name(T1, T2) for messages.
func Signature(name string, params []Type) string {
	s := name + "("
	for i, p := range params {
		if i > 0 {
			s += ", "
		}
		s += DisplayName(p)
	}
	return s + ")"
}

// Exception is an error raised by host code with a host exception class.
type Exception struct {
	Class   Type
	Message string
	Cause   error
}

func (e *Exception) Error() string {
	name := "Exception"
	if e.Class != nil {
		name = DisplayName(e.Class)
	}
	if e.Message == "" {
		return name
	}
	return name + ": " + e.Message
}

func (e *Exception) Unwrap() error { return e.Cause }

// Throw builds an *Exception of the given class.
func Throw(class Type, format string, args ...any) *Exception {
	return &Exception{Class: class, Message: fmt.Sprintf(format, args...)}
}
