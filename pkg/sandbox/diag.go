package sandbox

import (
	"fmt"
	"go/scanner"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

var (
	ErrCompile      = errors.New("script failed to compile")
	ErrNoEntryPoint = errors.New("script has no entry point")
	ErrSpent        = errors.New("sandbox has already run a script")
)

// Diagnostic is a compiler message tied to a script line. Line is zero
// when the message has no position.
type Diagnostic struct {
	Line    int
	Column  int
	Message string
	Warning bool
}

func (d Diagnostic) Error() string {
	kind := "error"
	if d.Warning {
		kind = "warning"
	}

	if d.Line == 0 {
		return fmt.Sprintf("%s: %s", kind, d.Message)
	}

	return fmt.Sprintf("line %d:%d: %s: %s", d.Line, d.Column, kind, d.Message)
}

// CompileError carries every diagnostic of a failed compile.
type CompileError struct {
	Diagnostics []Diagnostic
}

func (e *CompileError) Errors() []Diagnostic {
	var out []Diagnostic

	for _, d := range e.Diagnostics {
		if !d.Warning {
			out = append(out, d)
		}
	}

	return out
}

func (e *CompileError) Error() string {
	var merr *multierror.Error

	for _, d := range e.Errors() {
		merr = multierror.Append(merr, d)
	}

	if merr == nil {
		return ErrCompile.Error()
	}

	return ErrCompile.Error() + ": " + merr.Error()
}

func (e *CompileError) Unwrap() error {
	return ErrCompile
}

func hasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if !d.Warning {
			return true
		}
	}

	return false
}

func syntaxDiagnostics(err error) []Diagnostic {
	var list scanner.ErrorList

	if errors.As(err, &list) {
		out := make([]Diagnostic, 0, len(list))

		for _, e := range list {
			out = append(out, Diagnostic{Line: e.Pos.Line, Column: e.Pos.Column, Message: e.Msg})
		}

		return out
	}

	return []Diagnostic{{Message: err.Error()}}
}

var posMessage = regexp.MustCompile(`(?m)(?:^|[\s:])(?:[^\s:]*\.go:)?(\d+):(\d+): (.*)$`)

// interpDiagnostics pulls positioned messages out of an interpreter error.
func interpDiagnostics(err error) []Diagnostic {
	var out []Diagnostic

	for _, m := range posMessage.FindAllStringSubmatch(err.Error(), -1) {
		line, _ := strconv.Atoi(m[1])
		col, _ := strconv.Atoi(m[2])

		out = append(out, Diagnostic{Line: line, Column: col, Message: strings.TrimSpace(m[3])})
	}

	if len(out) == 0 {
		out = append(out, Diagnostic{Message: err.Error()})
	}

	return out
}

// Failure describes what escaped a script's activation.
type Failure struct {
	Type    string
	Message string
	Stack   string
	Inner   *Failure
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Type, f.Message)
}

// capture turns a recovered panic value or returned error into a Failure,
// following wrapped errors into the Inner chain.
func capture(v interface{}) *Failure {
	err, ok := v.(error)
	if !ok {
		return &Failure{
			Type:    fmt.Sprintf("%T", v),
			Message: fmt.Sprint(v),
			Stack:   string(debug.Stack()),
		}
	}

	root := describe(err)
	root.Stack = string(debug.Stack())

	cur := root
	for inner := errors.Unwrap(err); inner != nil; inner = errors.Unwrap(inner) {
		cur.Inner = describe(inner)
		cur = cur.Inner
	}

	return root
}

func describe(err error) *Failure {
	f := &Failure{Type: fmt.Sprintf("%T", err), Message: err.Error()}

	type stackTracer interface {
		StackTrace() errors.StackTrace
	}

	if st, ok := err.(stackTracer); ok {
		f.Stack = fmt.Sprintf("%+v", st.StackTrace())
	}

	return f
}
