package evaluator

import (
	"context"
	"strings"

	"github.com/funvibe/dynlink/internal/config"
)

// CallStack is the chain of scopes of the active invocations. Index 0 is the
// innermost frame. A CallStack belongs to one thread of evaluation.
type CallStack struct {
	frames []*Scope
	ctx    context.Context
}

// NewCallStack creates a stack whose only frame is root.
func NewCallStack(root *Scope) *CallStack {
	cs := &CallStack{ctx: context.Background()}
	if root != nil {
		cs.frames = []*Scope{root}
	}
	return cs
}

// WithContext sets the context passed to host calls made on behalf of this
// stack.
func (cs *CallStack) WithContext(ctx context.Context) *CallStack {
	cs.ctx = ctx
	return cs
}

// Context returns the context for host calls.
func (cs *CallStack) Context() context.Context {
	if cs == nil || cs.ctx == nil {
		return context.Background()
	}
	return cs.ctx
}

func (cs *CallStack) Push(s *Scope) {
	cs.frames = append(cs.frames, nil)
	copy(cs.frames[1:], cs.frames)
	cs.frames[0] = s
}

// Pop removes and returns the innermost frame.
func (cs *CallStack) Pop() *Scope {
	if len(cs.frames) == 0 {
		internalError("pop on empty call stack")
	}
	top := cs.frames[0]
	cs.frames = cs.frames[1:]
	return top
}

// Top returns the innermost frame, nil if the stack is empty.
func (cs *CallStack) Top() *Scope {
	return cs.Get(0)
}

// Get returns the frame at depth. Past the bottom of the stack it returns a
// detached scope standing for host code.
func (cs *CallStack) Get(depth int) *Scope {
	if cs == nil || depth < 0 {
		return nil
	}
	if depth >= len(cs.frames) {
		if len(cs.frames) == 0 {
			return nil
		}
		return cs.frames[0].env.newScope(nil, config.NativeFrameName)
	}
	return cs.frames[depth]
}

// Swap replaces the innermost frame and returns the old one.
func (cs *CallStack) Swap(s *Scope) *Scope {
	old := cs.frames[0]
	cs.frames[0] = s
	return old
}

func (cs *CallStack) Depth() int {
	if cs == nil {
		return 0
	}
	return len(cs.frames)
}

// Copy returns an independent stack with the same frames.
func (cs *CallStack) Copy() *CallStack {
	return &CallStack{frames: append([]*Scope(nil), cs.frames...), ctx: cs.ctx}
}

// Clear drops every frame.
func (cs *CallStack) Clear() {
	cs.frames = nil
}

// Frames returns the frames, innermost first.
func (cs *CallStack) Frames() []*Scope {
	return append([]*Scope(nil), cs.frames...)
}

// Snapshot captures the frames as stack trace entries, innermost first.
func (cs *CallStack) Snapshot() []StackFrame {
	if cs == nil {
		return nil
	}
	out := make([]StackFrame, 0, len(cs.frames))
	for _, s := range cs.frames {
		f := StackFrame{Name: s.name}
		if n := s.node; n != nil {
			f.File = n.Source()
			f.Line = n.Line()
			f.Text = n.Text()
		}
		out = append(out, f)
	}
	return out
}

func (cs *CallStack) String() string {
	var b strings.Builder
	b.WriteString("CallStack:\n")
	for _, s := range cs.frames {
		b.WriteString("\t")
		b.WriteString(s.String())
		b.WriteString("\n")
	}
	return b.String()
}
