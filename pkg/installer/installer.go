// Package installer drives one scripted installation from archive to
// finished layout. It finds the script, extracts what the script needs,
// confirms with the user, runs the script inside a transaction and then
// either commits the staged layout or throws it away.
package installer

import (
	"context"
	"os"
	"path"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"lab47.dev/fomod/pkg/filetree"
	"lab47.dev/fomod/pkg/fomod"
	"lab47.dev/fomod/pkg/host"
	"lab47.dev/fomod/pkg/manifest"
	"lab47.dev/fomod/pkg/sandbox"
	"lab47.dev/fomod/pkg/scriptapi"
	"lab47.dev/fomod/pkg/settings"
	"lab47.dev/fomod/pkg/txn"
)

// TweaksDir receives staged settings the user chose to keep with the mod.
const TweaksDir = "INI Tweaks"

var ErrBusy = errors.New("an installation is already in progress")

// CompilerFunc builds the script compiler for a run, bound to its API.
type CompilerFunc func(L hclog.Logger, api *scriptapi.API) sandbox.Compiler

// YaegiCompiler interprets scripts with yaegi.
func YaegiCompiler(L hclog.Logger, api *scriptapi.API) sandbox.Compiler {
	return &sandbox.Yaegi{L: L.Named("script"), Symbols: api.Symbols()}
}

type Options struct {
	Extractor   host.Extractor
	Interaction host.Interaction
	Organizer   host.Organizer

	// Compiler defaults to YaegiCompiler.
	Compiler CompilerFunc

	Logger hclog.Logger
}

// Outcome reports one attempt. Tree is the new layout on success and the
// untouched archive tree otherwise.
type Outcome struct {
	Result   fomod.Result
	Name     *Guess
	ID       int
	Version  string
	Manifest *manifest.Info
	Tree     *filetree.Node
	Overlays map[string]*settings.Overlay
	Settings host.PostInstallChoice
	Script   *sandbox.Outcome
}

// Installer runs installations one at a time.
type Installer struct {
	common

	opts Options

	mu   sync.Mutex
	busy bool
}

func New(opts Options) *Installer {
	if opts.Compiler == nil {
		opts.Compiler = YaegiCompiler
	}

	in := &Installer{opts: opts}
	in.SetLogger(opts.Logger)

	return in
}

func (in *Installer) acquire() bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.busy {
		return false
	}

	in.busy = true

	return true
}

func (in *Installer) release() {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.busy = false
}

// Install runs the script found in tree. name carries the caller's guess
// at the mod name and is updated from the manifest and the user's answer.
// Errors are reserved for failures of the surrounding services; every
// script or user driven ending is reported through the Outcome.
func (in *Installer) Install(ctx context.Context, name *Guess, tree *filetree.Node) (*Outcome, error) {
	if !in.acquire() {
		return nil, ErrBusy
	}

	defer in.release()

	L := in.L()

	if name == nil {
		name = NewGuess(tree.Name(), GuessFallback)
	}

	out := &Outcome{
		Result:   fomod.NotAttempted,
		Name:     name,
		ID:       -1,
		Tree:     tree,
		Settings: host.SettingsDiscard,
	}

	meta := FindMetadataDir(tree)
	script := FindScript(tree)

	if script == nil {
		L.Debug("archive has no install script", "archive", tree.Name())
		return out, nil
	}

	man := FindManifest(tree)

	set, err := extractionSet(tree, meta, script, man)
	if err != nil {
		return out, errors.Wrapf(err, "selecting files to extract")
	}

	L.Debug("extracting install files", "count", len(set))

	paths, err := in.opts.Extractor.ExtractFiles(ctx, set)
	if err != nil {
		return out, errors.Wrapf(err, "extracting install files")
	}

	if len(paths) < len(set) || ctx.Err() != nil {
		L.Info("extraction cancelled", "extracted", len(paths), "wanted", len(set))
		out.Result = fomod.Canceled
		return out, nil
	}

	extracted := make(map[*filetree.Node]string, len(set))
	for i, n := range set {
		extracted[n] = paths[i]
	}

	if man != nil {
		in.readManifest(extracted[man], out)
	}

	conf, err := in.opts.Interaction.ConfirmName(ctx, host.Guess{
		Name:     name.Value(),
		Variants: name.Variants(),
		ID:       out.ID,
		Version:  out.Version,
	})
	if err != nil {
		return out, errors.Wrapf(err, "confirming install")
	}

	switch conf.Choice {
	case host.ConfirmManual:
		name.Update(conf.Name, GuessUser)
		out.Result = fomod.ManualRequested
		return out, nil
	case host.ConfirmCancel:
		out.Result = fomod.Canceled
		return out, nil
	}

	name.Update(conf.Name, GuessUser)

	src, err := os.ReadFile(extracted[script])
	if err != nil {
		return out, errors.Wrapf(err, "reading script %s", script.Path())
	}

	og := in.opts.Organizer

	tx := txn.Open(ctx, txn.Options{
		Source:    meta.Parent(),
		Extractor: in.opts.Extractor,
		Data:      og.Data(),
		Extracted: extracted,
		Logger:    L.Named("txn"),
	})

	api := scriptapi.New(L.Named("api"), tx, og, in.opts.Interaction)

	sb := sandbox.New(in.opts.Compiler(L, api))
	sb.SetLogger(L.Named("sandbox"))

	L.Info("running install script", "script", script.Path(), "name", name.Value())

	run := sb.Run(ctx, string(src))

	out.Script = run
	out.Result = run.Result

	if run.Result != fomod.Success {
		L.Info("install script did not succeed", "result", run.Result, "state", run.State)
		tx.Rollback()
		return out, nil
	}

	out.Settings = in.review(ctx, tx)

	dest, overlays, err := tx.Commit()
	if err != nil {
		return out, err
	}

	out.Tree = dest
	out.Overlays = overlays

	if out.Settings == host.SettingsApply {
		in.apply(overlays)
	}

	L.Info("install script succeeded", "name", name.Value(), "files", len(dest.Files()))

	return out, nil
}

func (in *Installer) readManifest(p string, out *Outcome) {
	info, err := manifest.ReadFile(in.L(), p)
	if err != nil {
		in.L().Warn("unable to read manifest", "error", err)
		return
	}

	out.Manifest = info
	out.Name.Update(info.Name, GuessMeta)

	if info.ID >= 0 {
		out.ID = info.ID
	}

	out.Version = info.Version
}

// review shows the staged settings to the user. Moving them writes each
// file into the tweaks directory of the still open transaction.
func (in *Installer) review(ctx context.Context, tx *txn.Transaction) host.PostInstallChoice {
	files := tx.OverlayFiles()
	if len(files) == 0 {
		return host.SettingsDiscard
	}

	r := host.SettingsReview{Files: files, Text: make(map[string]string, len(files))}

	for _, f := range files {
		r.Text[f] = tx.Overlay(f, false).Text()
	}

	choice := in.opts.Interaction.ReviewSettings(ctx, r)

	if choice == host.SettingsMove {
		for _, f := range files {
			ok, err := tx.CreateFile(path.Join(TweaksDir, f), []byte(r.Text[f]))
			if err != nil || !ok {
				in.L().Error("unable to move settings into the mod", "file", f, "error", err)
			}
		}
	}

	return choice
}

func (in *Installer) apply(overlays map[string]*settings.Overlay) {
	og := in.opts.Organizer

	loc := settings.Locator{
		ProfileDir:    og.ProfileDir(),
		DocumentsDir:  og.DocumentsDir(),
		LocalSettings: og.LocalSettings(),
	}

	var names []string
	for name := range overlays {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		if err := loc.Merge(name, overlays[name]); err != nil {
			in.L().Error("unable to apply settings", "file", name, "error", err)
			continue
		}

		in.L().Info("applied settings", "file", loc.Path(name))
	}
}
