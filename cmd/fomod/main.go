package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/morikuni/aec"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"lab47.dev/fomod/pkg/cmd"
	"lab47.dev/fomod/pkg/config"
	"lab47.dev/fomod/pkg/fomod"
	"lab47.dev/fomod/pkg/gc"
	"lab47.dev/fomod/pkg/humanize"
	"lab47.dev/fomod/pkg/installer"
	"lab47.dev/fomod/pkg/local"
	"lab47.dev/fomod/pkg/lockfile"
	"lab47.dev/fomod/pkg/manifest"
	"lab47.dev/fomod/pkg/metadata"
	"lab47.dev/fomod/pkg/sandbox"
	"lab47.dev/fomod/pkg/scriptapi"
	"lab47.dev/fomod/pkg/sumfile"
)

var logLevel = "info"

func main() {
	fs := pflag.NewFlagSet("fomod", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.StringVar(&logLevel, "log-level", logLevel, "trace, debug, info, warn or error")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	c := cli.NewCLI("fomod", fomod.APIVersion)
	c.Args = fs.Args()
	c.Commands = map[string]cli.CommandFactory{
		"install": func() (cli.Command, error) {
			return cmd.New(
				"install",
				"Run the install script of a mod archive",
				installF,
			), nil
		},
		"check": func() (cli.Command, error) {
			return cmd.New(
				"check",
				"Report whether an archive carries an install script",
				checkF,
			), nil
		},
		"compile": func() (cli.Command, error) {
			return cmd.New(
				"compile",
				"Compile an install script and print its diagnostics",
				compileF,
			), nil
		},
		"inspect": func() (cli.Command, error) {
			return cmd.New(
				"inspect",
				"Output the metadata of an info.xml manifest",
				inspectF,
			), nil
		},
		"verify": func() (cli.Command, error) {
			return cmd.New(
				"verify",
				"Report installed files changed since install",
				verifyF,
			), nil
		},
		"clean": func() (cli.Command, error) {
			return cmd.New(
				"clean",
				"Remove staging directories left by interrupted installs",
				cleanF,
			), nil
		},
		"config": func() (cli.Command, error) {
			return cmd.New(
				"config",
				"Output the active configuration",
				configF,
			), nil
		},
	}

	exitStatus, err := c.Run()
	if err != nil {
		log.Println(err)
	}

	os.Exit(exitStatus)
}

func newLogger(name string) hclog.Logger {
	L := hclog.New(&hclog.LoggerOptions{
		Name:  name,
		Level: hclog.LevelFromString(logLevel),
	})

	hclog.SetDefault(L)

	return L
}

func colorful() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}

	return fi.Mode()&os.ModeCharDevice != 0
}

// modDirName keeps a mod name usable as a single directory name.
func modDirName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}

		return r
	}, strings.TrimSpace(name))

	if name == "" || name == "." || name == ".." {
		return "unnamed"
	}

	return name
}

func installF(ctx context.Context, opts struct {
	Yes  bool   `short:"y" long:"yes" description:"accept every default without asking"`
	Name string `short:"n" long:"name" description:"install the mod under this name"`

	Pos struct {
		Archive string `positional-arg-name:"archive"`
	} `positional-args:"yes"`
}) error {
	if opts.Pos.Archive == "" {
		return errors.New("an archive to install is required")
	}

	L := newLogger("fomod")

	cfg, err := config.LoadConfig()
	if err != nil {
		return errors.Wrapf(err, "Unable to create or load configuration directory")
	}

	var showLock bool
	cleanup, err := lockfile.Take(ctx, cfg.LockPath(), func() {
		if !showLock {
			fmt.Printf("Another install is running (pid %d), waiting...\n", lockfile.Holder(cfg.LockPath()))
			showLock = true
		}
	})
	if err != nil {
		return err
	}

	defer cleanup()

	a, err := local.OpenArchive(L, opts.Pos.Archive, cfg.StagingDir)
	if err != nil {
		return err
	}

	defer a.Close()

	ex, err := local.NewExtractor(L.Named("extract"), cfg.StagingDir)
	if err != nil {
		return err
	}

	defer ex.Close()

	og, err := local.NewOrganizer(cfg)
	if err != nil {
		return err
	}

	term := local.NewTerminal(os.Stdin, os.Stdout)
	term.Yes = opts.Yes
	term.Color = colorful()

	in := installer.New(installer.Options{
		Extractor:   ex,
		Interaction: term,
		Organizer:   og,
		Logger:      L.Named("installer"),
		Compiler: func(L hclog.Logger, api *scriptapi.API) sandbox.Compiler {
			return &sandbox.Yaegi{L: L.Named("script"), Symbols: api.Symbols(), Packages: cfg.ScriptPackages}
		},
	})

	guess := installer.NewGuess(a.Name, installer.GuessFallback)
	if opts.Name != "" {
		guess.Update(opts.Name, installer.GuessUser)
	}

	out, err := in.Install(ctx, guess, a.Tree)
	if err != nil {
		return err
	}

	switch out.Result {
	case fomod.Success:
		// ok
	case fomod.NotAttempted:
		fmt.Printf("%s has no install script, install it manually\n", a.Name)
		return nil
	case fomod.ManualRequested:
		fmt.Printf("Manual install requested for %s\n", out.Name.Value())
		return nil
	case fomod.Canceled:
		fmt.Println("Install cancelled")
		return nil
	default:
		report(out.Script, term.Color)
		return errors.Errorf("install script for %s failed", out.Name.Value())
	}

	report(out.Script, term.Color)

	dest := filepath.Join(cfg.ModsDir, modDirName(out.Name.Value()))

	if _, err := os.Stat(dest); err == nil {
		L.Warn("replacing existing mod directory", "dir", dest)

		if err := os.RemoveAll(dest); err != nil {
			return err
		}
	}

	total, err := local.Materialize(ctx, L, out.Tree, dest, false)
	if err != nil {
		return err
	}

	sums, err := sumfile.WriteDir(dest)
	if err != nil {
		return errors.Wrapf(err, "recording installed files")
	}

	mi := &metadata.ModInfo{
		Name:             out.Name.Value(),
		ID:               out.ID,
		Version:          out.Version,
		InstallationFile: filepath.Base(opts.Pos.Archive),
		Settings:         out.Settings.String(),
		Installed:        time.Now(),
	}

	if out.Manifest != nil {
		mi.Author = out.Manifest.Author
		mi.URL = out.Manifest.Website
	}

	if err := metadata.Write(dest, mi); err != nil {
		return err
	}

	L.Debug("recorded installed files", "count", sums.Len())

	fmt.Printf("Installed %s into %s (%d files, %s)\n",
		aec.Bold.Apply(out.Name.Value()), dest, len(out.Tree.Files()), humanize.Bytes(total))

	if len(out.Overlays) > 0 {
		fmt.Printf("Settings changes: %s\n", out.Settings)
	}

	return nil
}

func checkF(ctx context.Context, opts struct {
	Pos struct {
		Archive string `positional-arg-name:"archive"`
	} `positional-args:"yes"`
}) error {
	if opts.Pos.Archive == "" {
		return errors.New("an archive to check is required")
	}

	L := newLogger("fomod")

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	a, err := local.OpenArchive(L, opts.Pos.Archive, cfg.StagingDir)
	if err != nil {
		return err
	}

	defer a.Close()

	if !installer.IsArchiveSupported(a.Tree) {
		return errors.Errorf("%s has no install script", a.Name)
	}

	tw := tabwriter.NewWriter(os.Stdout, 4, 2, 1, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "script:\t%s\n", installer.FindScript(a.Tree).Path())

	if man := installer.FindManifest(a.Tree); man != nil {
		fmt.Fprintf(tw, "manifest:\t%s\n", man.Path())
	}

	fmt.Fprintf(tw, "files:\t%d\n", len(a.Tree.Files()))

	return nil
}

func compileF(ctx context.Context, opts struct {
	Pos struct {
		Script string `positional-arg-name:"script"`
	} `positional-args:"yes"`
}) error {
	if opts.Pos.Script == "" {
		return errors.New("a script to compile is required")
	}

	L := newLogger("fomod")

	src, err := os.ReadFile(opts.Pos.Script)
	if err != nil {
		return err
	}

	color := colorful()

	p, err := sandbox.Prepare(string(src))
	if err != nil {
		var ce *sandbox.CompileError
		if errors.As(err, &ce) {
			printDiagnostics(ce.Diagnostics, color)
		}

		return err
	}

	printDiagnostics(p.Diagnostics, color)

	var pkgs []string
	if cfg, err := config.LoadConfig(); err == nil {
		pkgs = cfg.ScriptPackages
	}

	api := scriptapi.New(L.Named("api"), nil, nil, nil)

	y := &sandbox.Yaegi{L: L.Named("script"), Symbols: api.Symbols(), Packages: pkgs}

	_, diags, err := y.Compile(ctx, p)
	printDiagnostics(diags, color)

	if err != nil {
		return err
	}

	fmt.Printf("%s compiles, entry point is %s\n", opts.Pos.Script, p.Entry)
	fmt.Printf("Importable packages: %s\n", strings.Join(y.Exported(), ", "))

	return nil
}

func inspectF(ctx context.Context, opts struct {
	Raw bool `long:"raw" description:"dump the parsed structure"`

	Pos struct {
		Manifest string `positional-arg-name:"info.xml"`
	} `positional-args:"yes"`
}) error {
	if opts.Pos.Manifest == "" {
		return errors.New("a manifest is required")
	}

	L := newLogger("fomod")

	info, err := manifest.ReadFile(L, opts.Pos.Manifest)
	if err != nil {
		return err
	}

	if opts.Raw {
		spew.Dump(info)
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 4, 2, 1, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "name:\t%s\n", info.Name)
	fmt.Fprintf(tw, "id:\t%d\n", info.ID)
	fmt.Fprintf(tw, "version:\t%s\n", info.Version)
	fmt.Fprintf(tw, "author:\t%s\n", info.Author)
	fmt.Fprintf(tw, "website:\t%s\n", info.Website)

	return nil
}

func verifyF(ctx context.Context, opts struct {
	Pos struct {
		Mod string `positional-arg-name:"mod"`
	} `positional-args:"yes"`
}) error {
	if opts.Pos.Mod == "" {
		return errors.New("a mod name or directory is required")
	}

	dir := opts.Pos.Mod

	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}

		dir = filepath.Join(cfg.ModsDir, modDirName(opts.Pos.Mod))
	}

	sums, err := sumfile.ReadDir(dir)
	if err != nil {
		return err
	}

	if mi, err := metadata.Read(dir); err == nil {
		fmt.Printf("%s %s (installed from %s)\n", aec.Bold.Apply(mi.Name), mi.Version, mi.InstallationFile)
	}

	changed, missing, err := sums.Verify(dir)
	if err != nil {
		return err
	}

	for _, p := range changed {
		fmt.Printf("  changed: %s\n", p)
	}

	for _, p := range missing {
		fmt.Printf("  missing: %s\n", p)
	}

	if len(changed)+len(missing) == 0 {
		fmt.Printf("All %d files match\n", sums.Len())
		return nil
	}

	return errors.Errorf("%d of %d files differ", len(changed)+len(missing), sums.Len())
}

func cleanF(ctx context.Context, opts struct {
	DryRun bool `short:"n" long:"dry-run" description:"only list what would be removed"`
}) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	var showLock bool
	cleanup, err := lockfile.Take(ctx, cfg.LockPath(), func() {
		if !showLock {
			fmt.Printf("Lock detected, waiting...\n")
			showLock = true
		}
	})
	if err != nil {
		return err
	}

	defer cleanup()

	col := gc.NewCollector(cfg.StagingDir)

	marked, err := col.Mark()
	if err != nil {
		return err
	}

	if opts.DryRun {
		for _, p := range marked {
			fmt.Println(p)
		}

		total, err := col.DiskUsage(marked)
		if err != nil {
			return err
		}

		fmt.Printf("=> Disk Usage: %s\n", humanize.Bytes(total))

		return nil
	}

	res, err := col.SweepAndRemove(ctx, marked)
	if err != nil {
		return err
	}

	fmt.Printf("Space Recovered: %s\n", humanize.Bytes(res.BytesRecovered))
	fmt.Printf("  Files Removed: %d\n", res.EntriesRemoved)

	return nil
}

func configF(ctx context.Context, opts struct {
	Save bool `long:"save" description:"write the active configuration to its file"`
}) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return errors.Wrapf(err, "Unable to create or load configuration directory")
	}

	if opts.Save {
		if err := cfg.Save(); err != nil {
			return err
		}

		fmt.Printf("Saved %s\n", cfg.Path())
		return nil
	}

	app, game, ext := cfg.Versions()

	tw := tabwriter.NewWriter(os.Stdout, 4, 2, 1, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "Config Path:\t%s\n", cfg.Path())
	fmt.Fprintf(tw, "Data Dir:\t%s\n", cfg.DataDir)
	fmt.Fprintf(tw, "Mods Dir:\t%s\n", cfg.ModsDir)
	fmt.Fprintf(tw, "Game Data:\t%s\n", strings.Join(cfg.GameData, string(os.PathListSeparator)))
	fmt.Fprintf(tw, "App Version:\t%s\n", app)
	fmt.Fprintf(tw, "Game Version:\t%s\n", game)

	if ext != nil {
		fmt.Fprintf(tw, "Script Extender:\t%s\n", ext)
	}

	return nil
}

func printDiagnostics(diags []sandbox.Diagnostic, color bool) {
	for _, d := range diags {
		style := aec.RedF
		if d.Warning {
			style = aec.YellowF
		}

		msg := d.Error()
		if color {
			msg = style.Apply(msg)
		}

		fmt.Fprintln(os.Stderr, msg)
	}
}

// report prints what the script left behind: compiler output and the
// chain of any failure it raised.
func report(out *sandbox.Outcome, color bool) {
	if out == nil {
		return
	}

	printDiagnostics(out.Diagnostics, color)

	depth := 0
	for f := out.Failure; f != nil; f = f.Inner {
		fmt.Fprintf(os.Stderr, "%s%s: %s\n", strings.Repeat("  ", depth), f.Type, f.Message)
		depth++
	}

	if out.Failure != nil && out.Failure.Stack != "" {
		hclog.L().Debug("script failure stack", "stack", out.Failure.Stack)
	}
}
