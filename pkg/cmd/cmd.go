// Package cmd adapts plain functions into mitchellh/cli commands. Each
// function takes a context and an options struct parsed by go-flags.
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"reflect"

	"github.com/jessevdk/go-flags"
	"github.com/morikuni/aec"
	"golang.org/x/sys/unix"
	"lab47.dev/fomod/pkg/progress"
)

type Cmd struct {
	syn, name string
	f         reflect.Value

	opts   reflect.Value
	parser *flags.Parser

	// Stderr receives errors returned by the command.
	Stderr io.Writer
}

func New(name, syn string, f interface{}) *Cmd {
	rv := reflect.ValueOf(f)

	if rv.Kind() != reflect.Func {
		panic("must pass a function")
	}

	rt := rv.Type()

	if rt.NumIn() != 2 {
		panic("must provide two arguments only")
	}

	if rt.NumOut() != 1 {
		panic("must return one argument only")
	}

	in := rt.In(1)

	if in.Kind() != reflect.Struct {
		panic("argument must be a struct")
	}

	sv := reflect.New(in)

	parser := flags.NewNamedParser(name, flags.Default)
	parser.ShortDescription = syn
	parser.LongDescription = syn

	_, err := parser.AddGroup("Application Options", "", sv.Interface())
	if err != nil {
		panic(err)
	}

	return &Cmd{
		syn:    syn,
		name:   name,
		f:      rv,
		opts:   sv,
		parser: parser,
		Stderr: os.Stderr,
	}
}

func (w *Cmd) Help() string {
	var buf bytes.Buffer
	w.parser.WriteHelp(&buf)
	return buf.String()
}

func (w *Cmd) Synopsis() string {
	return w.syn
}

// fillPositional assigns args left over from flag parsing to the fields
// tagged positional-args. A struct field takes one arg per string field,
// a []string field takes the rest.
func fillPositional(opts reflect.Value, args []string) {
	st := opts.Type()

	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		if field.Tag.Get("positional-args") == "" {
			continue
		}

		fv := opts.Field(i)

		switch fv.Kind() {
		case reflect.Slice:
			if fv.Len() == 0 && fv.Type().Elem().Kind() == reflect.String {
				fv.Set(reflect.ValueOf(args))
			}
		case reflect.Struct:
			for j := 0; j < fv.NumField() && len(args) > 0; j++ {
				sub := fv.Field(j)
				switch {
				case sub.Kind() == reflect.String:
					if sub.String() == "" {
						sub.SetString(args[0])
					}
					args = args[1:]
				case sub.Kind() == reflect.Slice && sub.Type().Elem().Kind() == reflect.String:
					if sub.Len() == 0 {
						sub.Set(reflect.ValueOf(args))
					}
					args = nil
				}
			}
		}

		return
	}
}

func (w *Cmd) Run(args []string) int {
	rest, err := w.parser.ParseArgs(args)
	if err != nil {
		return 1
	}

	fillPositional(w.opts.Elem(), rest)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cancelOnSignal(cancel, os.Interrupt, unix.SIGQUIT, unix.SIGTERM)

	ctx = progress.Open(ctx, os.Stderr)

	rets := w.f.Call([]reflect.Value{reflect.ValueOf(ctx), w.opts.Elem()})

	if err, ok := rets[0].Interface().(error); ok {
		if err != nil {
			fmt.Fprintf(w.Stderr, "%s %+v\n", aec.RedF.Apply("! Error:"), err)
			return 1
		}
	}

	return 0
}

func cancelOnSignal(cancel func(), signals ...os.Signal) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, signals...)

	go func() {
		for range c {
			cancel()
		}
	}()
}
