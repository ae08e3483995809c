// Package sandbox compiles an install script and runs its entry point
// once. Compilation goes through a Compiler so the interpreter can be
// swapped. Whatever escapes the script is captured and reported rather
// than propagated to the host.
package sandbox

import (
	"context"

	"lab47.dev/fomod/pkg/fomod"
)

type State int

const (
	Idle State = iota
	Loaded
	Running
	Succeeded
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Compiler turns prepared source into a Unit.
type Compiler interface {
	Compile(ctx context.Context, p *Prepared) (Unit, []Diagnostic, error)
}

// Unit is compiled script code.
type Unit interface {
	Instantiate() (Instance, error)
}

// Instance is a constructed script ready to be activated.
type Instance interface {
	Activate() (bool, error)
}

// Outcome is the result of one run.
type Outcome struct {
	Result      fomod.Result
	State       State
	Diagnostics []Diagnostic
	Failure     *Failure
	Err         error
}

// Sandbox runs a single script. It is spent after Run.
type Sandbox struct {
	common

	compiler Compiler
	state    State
}

func New(c Compiler) *Sandbox {
	return &Sandbox{compiler: c}
}

func (s *Sandbox) State() State {
	return s.state
}

func (s *Sandbox) failed(out *Outcome, err error) *Outcome {
	s.state = Failed

	out.State = Failed
	out.Result = fomod.Failed
	out.Err = err

	return out
}

func (s *Sandbox) report(diags []Diagnostic) {
	for _, d := range diags {
		if d.Warning {
			s.L().Warn("script compile warning", "line", d.Line, "column", d.Column, "message", d.Message)
		} else {
			s.L().Error("script compile error", "line", d.Line, "column", d.Column, "message", d.Message)
		}
	}
}

// Run compiles src, constructs the script and invokes its entry point.
// True maps to Success, false to Canceled, anything else to Failed.
func (s *Sandbox) Run(ctx context.Context, src string) *Outcome {
	out := &Outcome{Result: fomod.NotAttempted, State: s.state}

	if s.state != Idle {
		out.Err = ErrSpent
		return out
	}

	p, err := Prepare(src)
	if err != nil {
		if ce, ok := err.(*CompileError); ok {
			out.Diagnostics = ce.Diagnostics
			s.report(ce.Diagnostics)
		}

		return s.failed(out, err)
	}

	out.Diagnostics = p.Diagnostics
	s.report(p.Diagnostics)

	unit, diags, err := s.compiler.Compile(ctx, p)

	out.Diagnostics = append(out.Diagnostics, diags...)
	s.report(diags)

	if err != nil {
		return s.failed(out, err)
	}

	s.state = Loaded

	s.L().Debug("script loaded", "entry", p.Entry)

	inst, f := s.instantiate(unit)
	if f != nil {
		s.L().Error("script could not be constructed", "type", f.Type, "error", f.Message)
		out.Failure = f
		return s.failed(out, f)
	}

	s.state = Running

	ok, f := s.activate(inst)
	if f != nil {
		s.L().Error("script failed", "type", f.Type, "error", f.Message)
		for in := f.Inner; in != nil; in = in.Inner {
			s.L().Error("caused by", "type", in.Type, "error", in.Message)
		}

		out.Failure = f

		return s.failed(out, f)
	}

	if ok {
		s.state = Succeeded
		out.Result = fomod.Success
	} else {
		s.state = Cancelled
		out.Result = fomod.Canceled
	}

	out.State = s.state

	return out
}

func (s *Sandbox) instantiate(u Unit) (inst Instance, f *Failure) {
	defer func() {
		if r := recover(); r != nil {
			f = capture(r)
		}
	}()

	inst, err := u.Instantiate()
	if err != nil {
		return nil, capture(err)
	}

	return inst, nil
}

func (s *Sandbox) activate(inst Instance) (ok bool, f *Failure) {
	defer func() {
		if r := recover(); r != nil {
			ok, f = false, capture(r)
		}
	}()

	ok, err := inst.Activate()
	if err != nil {
		return false, capture(err)
	}

	return ok, nil
}
