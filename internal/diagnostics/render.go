// Package diagnostics renders engine errors for people: the failure, where
// it happened, the call chain and, for exceptions, their causes.
package diagnostics

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/funvibe/dynlink/internal/evaluator"
)

const (
	bold   = "\033[1m"
	red    = "\033[31m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
	dim    = "\033[2m"
	reset  = "\033[0m"
)

// Printer writes rendered errors to w.
type Printer struct {
	w     io.Writer
	color bool
}

// New returns a Printer for w. mode is auto, always or never; auto colours
// only terminals, and honours NO_COLOR and TERM=dumb.
func New(w io.Writer, mode string) *Printer {
	return &Printer{w: w, color: useColor(w, mode)}
}

// Render writes err to w with automatic colour detection.
func Render(w io.Writer, err error) error {
	return New(w, "auto").Render(err)
}

func useColor(w io.Writer, mode string) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok || os.Getenv("TERM") == "dumb" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *Printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + reset
}

// report is the renderer's view of an engine error.
type report struct {
	label  string
	msg    string
	node   evaluator.Node
	frames []evaluator.StackFrame
	causes []string
}

func describe(err error) report {
	var ee *evaluator.EvalError
	var te *evaluator.TargetError
	switch {
	case errors.As(err, &te):
		r := report{label: "script exception", node: te.Node, frames: te.StackTrace}
		if te.Native {
			r.label = "host exception"
		}
		var cause error
		switch {
		case te.Message != "":
			r.msg, cause = te.Message, te.Cause
		case te.Cause != nil:
			r.msg, cause = te.Cause.Error(), errors.Unwrap(te.Cause)
		}
		r.causes = causeChain(r.msg, cause)
		return r
	case errors.As(err, &ee):
		return report{label: "evaluation error", msg: ee.Message, node: ee.Node, frames: ee.StackTrace}
	}
	var ie *evaluator.InternalError
	if errors.As(err, &ie) {
		return report{label: "internal error", msg: ie.Message}
	}
	return report{label: "error", msg: err.Error()}
}

// causeChain lists the messages of err and the errors it wraps, dropping
// messages already contained in the one before.
func causeChain(prev string, err error) []string {
	var out []string
	for ; err != nil; err = errors.Unwrap(err) {
		msg := err.Error()
		if msg == "" || strings.Contains(prev, msg) {
			continue
		}
		out = append(out, msg)
		prev = msg
	}
	return out
}

// Render writes err. A nil error writes nothing.
func (p *Printer) Render(err error) error {
	if err == nil {
		return nil
	}
	r := describe(err)
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", p.paint(bold+red, r.label), r.msg)
	if r.node != nil && r.node.Line() >= 0 {
		fmt.Fprintf(&b, "  %s %s:%d\n", p.paint(cyan, "-->"), r.node.Source(), r.node.Line())
		if text := r.node.Text(); text != "" {
			fmt.Fprintf(&b, "   %s %s\n", p.paint(cyan, "|"), text)
		}
	}
	for _, f := range r.frames {
		line := "at " + f.Name
		if f.Line > 0 {
			line += fmt.Sprintf(" (%s:%d)", f.File, f.Line)
		}
		if f.Text != "" {
			line += " " + f.Text
		}
		fmt.Fprintf(&b, "  %s\n", p.paint(dim, line))
	}
	for _, c := range r.causes {
		fmt.Fprintf(&b, "%s %s\n", p.paint(yellow, "caused by:"), c)
	}
	_, werr := io.WriteString(p.w, b.String())
	return werr
}
