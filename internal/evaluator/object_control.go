package evaluator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/funvibe/dynlink/internal/host"
)

// Node is the caller-info token the evaluator hands to the engine: the
// syntax node that triggered a resolution or call.
type Node interface {
	Line() int
	Text() string
	Source() string
}

// SimpleNode is a plain Node.
type SimpleNode struct {
	LineNo int
	Code   string
	File   string
}

func (n SimpleNode) Line() int      { return n.LineNo }
func (n SimpleNode) Text() string   { return n.Code }
func (n SimpleNode) Source() string { return n.File }

// NativeNode marks calls that originate in host code.
var NativeNode Node = SimpleNode{LineNo: -1, Code: "<Called from host code>", File: "<native>"}

// StackFrame for error stack traces
type StackFrame struct {
	Name string
	File string
	Line int
	Text string
}

// EvalError reports a resolution or dispatch failure: an undefined name, a
// type mismatch, no applicable method.
type EvalError struct {
	Message    string
	Node       Node
	StackTrace []StackFrame
	cause      error
}

func (e *EvalError) Unwrap() error { return e.cause }

func (e *EvalError) Error() string {
	if e.Node == nil || e.Node.Line() < 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: line %d: %s", e.Node.Source(), e.Node.Line(), e.Message)
}

// Trace renders the call chain from innermost to outermost.
// Format: at <scope> (<file>:<line>) <text>
func (e *EvalError) Trace() string {
	return renderTrace(e.StackTrace)
}

func renderTrace(frames []StackFrame) string {
	var b strings.Builder
	for _, f := range frames {
		fmt.Fprintf(&b, "\n  at %s", f.Name)
		if f.Line > 0 {
			fmt.Fprintf(&b, " (%s:%d)", f.File, f.Line)
		}
		if f.Text != "" {
			fmt.Fprintf(&b, " %s", f.Text)
		}
	}
	return b.String()
}

// TargetError carries an exception raised by the invoked callable. Native is
// set when the exception came from host code rather than a script.
type TargetError struct {
	Message    string
	Cause      error
	Native     bool
	Node       Node
	StackTrace []StackFrame
}

func (e *TargetError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Cause.Error()
	}
	if e.Node == nil || e.Node.Line() < 0 {
		return msg
	}
	return fmt.Sprintf("%s: line %d: %s", e.Node.Source(), e.Node.Line(), msg)
}

func (e *TargetError) Unwrap() error { return e.Cause }

func (e *TargetError) Trace() string { return renderTrace(e.StackTrace) }

// Exception returns the host exception carried by the error, if any.
func (e *TargetError) Exception() (*host.Exception, bool) {
	var exc *host.Exception
	ok := errors.As(e.Cause, &exc)
	return exc, ok
}

// InternalError is an engine invariant violation. It is raised with panic
// and never returned as a script-visible error.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string { return "internal error: " + e.Message }

func internalError(format string, a ...interface{}) {
	panic(&InternalError{Message: fmt.Sprintf(format, a...)})
}

func newError(format string, a ...interface{}) *EvalError {
	return &EvalError{Message: fmt.Sprintf(format, a...)}
}

func newTargetError(cause error, native bool) *TargetError {
	return &TargetError{Cause: cause, Native: native}
}

func throw(class host.Type, format string, a ...interface{}) *TargetError {
	return newTargetError(host.Throw(class, format, a...), false)
}

// withCallerInfo attaches a node to engine errors that have none yet,
// optionally prefixing the message. A snapshot of the stack is taken unless
// the error already carries the trace of a deeper frame. Other errors are
// returned unchanged.
func withCallerInfo(err error, prefix string, node Node, cs *CallStack) error {
	if err == nil {
		return nil
	}
	var ee *EvalError
	if errors.As(err, &ee) {
		if ee.Node == nil {
			out := *ee
			if prefix != "" {
				out.Message = prefix + ": " + out.Message
			}
			out.Node = node
			if len(out.StackTrace) == 0 {
				out.StackTrace = cs.Snapshot()
			}
			return &out
		}
		return err
	}
	var te *TargetError
	if errors.As(err, &te) {
		if te.Node == nil {
			out := *te
			out.Node = node
			if len(out.StackTrace) == 0 {
				out.StackTrace = cs.Snapshot()
			}
			return &out
		}
		return err
	}
	return err
}

// ReturnValue is produced by a method body that executed a return statement.
type ReturnValue struct {
	Value Object
	Node  Node
}

func (rv *ReturnValue) Type() ObjectType       { return RETURN_OBJ }
func (rv *ReturnValue) Inspect() string        { return rv.Value.Inspect() }
func (rv *ReturnValue) RuntimeType() host.Type { return rv.Value.RuntimeType() }
