package sandbox

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"lab47.dev/fomod/pkg/fomod"
)

// DefaultPackages are the standard library packages a script may import.
// Nothing that reaches the filesystem, network or process is included.
var DefaultPackages = []string{
	"bytes",
	"errors",
	"fmt",
	"image",
	"math",
	"path",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"unicode/utf8",
}

const (
	instanceVar = "fomodInstance"
	entryFunc   = "fomodActivate"
)

// Yaegi compiles scripts with the yaegi Go interpreter. Symbols are the
// names exported to scripts as the fomod package.
type Yaegi struct {
	L        hclog.Logger
	Symbols  map[string]reflect.Value
	Packages []string
}

func exportKey(pkg string) string {
	name := pkg
	for i := len(pkg) - 1; i >= 0; i-- {
		if pkg[i] == '/' {
			name = pkg[i+1:]
			break
		}
	}

	return pkg + "/" + name
}

// restrictedStdlib keeps only the allowed packages from the interpreter's
// standard library exports.
func restrictedStdlib(pkgs []string) interp.Exports {
	restricted := interp.Exports{}

	for _, pkg := range pkgs {
		key := exportKey(pkg)
		if syms, ok := stdlib.Symbols[key]; ok {
			restricted[key] = syms
		}
	}

	return restricted
}

// shim adds the declarations the host uses to reach the entry point.
func shim(kind EntryKind) string {
	if kind == EntryStatic {
		return fmt.Sprintf("\n\nfunc %s() bool { return %s() }\n", entryFunc, entryMethod)
	}

	return fmt.Sprintf("\n\nvar %s *%s\n\nfunc %s() bool { return %s.%s() }\n",
		instanceVar, scriptType, entryFunc, instanceVar, entryMethod)
}

func (y *Yaegi) logger() hclog.Logger {
	if y.L != nil {
		return y.L
	}

	return hclog.L()
}

func (y *Yaegi) Compile(ctx context.Context, p *Prepared) (Unit, []Diagnostic, error) {
	pkgs := y.Packages
	if pkgs == nil {
		pkgs = DefaultPackages
	}

	out := y.logger().StandardWriter(&hclog.StandardLoggerOptions{InferLevels: true})

	i := interp.New(interp.Options{Stdout: out, Stderr: out})

	if err := i.Use(restrictedStdlib(pkgs)); err != nil {
		return nil, nil, errors.Wrapf(err, "loading standard library")
	}

	key := fomod.ImportPath + "/" + fomod.ImportPath
	if err := i.Use(interp.Exports{key: y.Symbols}); err != nil {
		return nil, nil, errors.Wrapf(err, "loading script api")
	}

	_, err := i.EvalWithContext(ctx, p.Source+shim(p.Entry))
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		diags := interpDiagnostics(err)

		return nil, diags, &CompileError{Diagnostics: diags}
	}

	return &yaegiUnit{i: i, entry: p.Entry}, nil, nil
}

type yaegiUnit struct {
	i     *interp.Interpreter
	entry EntryKind
}

// Instantiate builds the Script value with its zero value constructor and
// binds the entry point.
func (u *yaegiUnit) Instantiate() (Instance, error) {
	if u.entry == EntryInstance {
		if _, err := u.i.Eval(fmt.Sprintf("%s = new(%s)", instanceVar, scriptType)); err != nil {
			return nil, errors.Wrapf(err, "instantiating %s", scriptType)
		}
	}

	v, err := u.i.Eval(entryFunc)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", entryMethod)
	}

	fn, ok := v.Interface().(func() bool)
	if !ok {
		return nil, errors.Wrapf(ErrNoEntryPoint, "%s has type %s", entryMethod, v.Type())
	}

	return yaegiInstance(fn), nil
}

type yaegiInstance func() bool

func (fn yaegiInstance) Activate() (bool, error) {
	return fn(), nil
}

// Exported lists the package names visible to scripts, sorted.
func (y *Yaegi) Exported() []string {
	pkgs := y.Packages
	if pkgs == nil {
		pkgs = DefaultPackages
	}

	out := append([]string{fomod.ImportPath}, pkgs...)
	sort.Strings(out)

	return out
}
