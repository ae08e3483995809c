// Package txn holds the staged state of one installation attempt: the
// archive tree, the destination tree the script builds, the temporary
// files backing both, and pending configuration edits.
package txn

import (
	"context"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"lab47.dev/fomod/pkg/filetree"
	"lab47.dev/fomod/pkg/host"
	"lab47.dev/fomod/pkg/settings"
)

var ErrClosed = errors.New("transaction is closed")

type Options struct {
	Source    *filetree.Node
	Extractor host.Extractor
	Data      host.GameData

	// Extracted seeds the cache with entries materialized before the
	// transaction was opened.
	Extracted map[*filetree.Node]string

	Logger hclog.Logger
}

type Transaction struct {
	common

	ctx       context.Context
	source    *filetree.Node
	dest      *filetree.Node
	extractor host.Extractor
	data      host.GameData

	installed map[string]*filetree.Node
	extracted map[*filetree.Node]string
	created   map[*filetree.Node]string

	overlays     map[string]*settings.Overlay
	overlayNames map[string]string

	closed bool
}

// Open starts a transaction over source with an empty destination tree.
func Open(ctx context.Context, opts Options) *Transaction {
	t := &Transaction{
		ctx:          ctx,
		source:       opts.Source,
		dest:         opts.Source.CreateOrphan(),
		extractor:    opts.Extractor,
		data:         opts.Data,
		installed:    make(map[string]*filetree.Node),
		extracted:    make(map[*filetree.Node]string),
		created:      make(map[*filetree.Node]string),
		overlays:     make(map[string]*settings.Overlay),
		overlayNames: make(map[string]string),
	}

	t.SetLogger(opts.Logger)

	for n, p := range opts.Extracted {
		t.extracted[n] = p
	}

	return t
}

func (t *Transaction) Context() context.Context    { return t.ctx }
func (t *Transaction) Source() *filetree.Node      { return t.source }
func (t *Transaction) Destination() *filetree.Node { return t.dest }
func (t *Transaction) Data() host.GameData         { return t.data }
func (t *Transaction) Closed() bool                { return t.closed }

func key(p string) string {
	p = strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
	p = strings.Trim(path.Clean("/"+p), "/")
	return p
}

// RecordInstall notes that the destination entry at destPath was copied
// from src. Files below a directory are recorded individually, so a merged
// destination resolves each file to its own source.
func (t *Transaction) RecordInstall(destPath string, src *filetree.Node) {
	if t.closed || src == nil {
		return
	}

	t.installed[key(destPath)] = src

	if !src.IsDir() {
		return
	}

	src.Walk("", func(parent string, n *filetree.Node) filetree.WalkAction {
		if !n.IsDir() {
			t.installed[key(path.Join(destPath, parent, n.Name()))] = n
		}

		return filetree.Continue
	})
}

// Installed returns the source entry recorded for destPath.
func (t *Transaction) Installed(destPath string) *filetree.Node {
	return t.installed[key(destPath)]
}

// Created returns the temporary path backing a created destination node.
func (t *Transaction) Created(n *filetree.Node) (string, bool) {
	p, ok := t.created[n]
	return p, ok
}

// ExtractOnce returns the temporary path for a source entry, extracting it
// on first use. An empty result means extraction failed.
func (t *Transaction) ExtractOnce(n *filetree.Node) string {
	if t.closed || n == nil {
		return ""
	}

	if p, ok := t.extracted[n]; ok {
		return p
	}

	p, err := t.extractor.ExtractFile(t.ctx, n)
	if err != nil {
		t.L().Warn("extraction failed", "entry", n.Path(), "error", err)
		return ""
	}

	if p != "" {
		t.L().Trace("extracted entry", "entry", n.Path(), "path", p)
		t.extracted[n] = p
	}

	return p
}

// CreateFile stages data as a new destination file at destPath. A false
// result with no error means the entry could not be allocated. An error
// means the bytes could not be written.
func (t *Transaction) CreateFile(destPath string, data []byte) (bool, error) {
	if t.closed {
		return false, ErrClosed
	}

	if n := t.dest.Find(destPath); n != nil {
		if p, ok := t.created[n]; ok {
			return true, t.write(p, data)
		}
	}

	n := t.dest.AddFile(destPath, true)
	if n == nil {
		t.L().Warn("unable to add file to destination", "path", destPath)
		return false, nil
	}

	p, err := t.extractor.CreateFile(n)
	if err != nil || p == "" {
		t.L().Warn("unable to allocate temporary file", "path", destPath, "error", err)
		return false, nil
	}

	n.SetOrigin(p)
	t.created[n] = p
	delete(t.installed, key(destPath))

	t.L().Trace("created entry", "path", destPath, "temp", p)

	return true, t.write(p, data)
}

func (t *Transaction) write(p string, data []byte) error {
	err := os.WriteFile(p, data, 0644)
	if err != nil {
		return errors.Wrapf(err, "writing %s", p)
	}

	return nil
}

// ResolveDataFilePath finds a readable file for destPath. The script's own
// created files win, then entries installed from the archive, then files
// already present in the game data.
func (t *Transaction) ResolveDataFilePath(destPath string) string {
	if t.closed {
		return ""
	}

	if n := t.dest.Find(destPath); n != nil {
		if n.IsDir() {
			return ""
		}

		if p, ok := t.created[n]; ok {
			return p
		}

		return t.resolveInstalled(destPath)
	}

	if t.data == nil {
		return ""
	}

	dir, file := path.Split(strings.ReplaceAll(destPath, "\\", "/"))

	matches := t.data.FindFiles(dir, func(name string) bool {
		return strings.EqualFold(name, file)
	})

	if len(matches) == 0 {
		return ""
	}

	return t.data.Absolute(matches[0])
}

func (t *Transaction) resolveInstalled(destPath string) string {
	k := key(destPath)
	rest := ""

	for {
		if src, ok := t.installed[k]; ok {
			if n := src.Find(rest); n != nil && !n.IsDir() {
				return t.ExtractOnce(n)
			}
		}

		if k == "" {
			return ""
		}

		idx := strings.LastIndexByte(k, '/')

		var seg string
		if idx == -1 {
			seg, k = k, ""
		} else {
			seg, k = k[idx+1:], k[:idx]
		}

		rest = path.Join(seg, rest)
	}
}

// Overlay returns the staged edits for a configuration file name, creating
// them when create is set.
func (t *Transaction) Overlay(file string, create bool) *settings.Overlay {
	k := strings.ToLower(file)

	if o, ok := t.overlays[k]; ok {
		return o
	}

	if !create || t.closed {
		return nil
	}

	o := settings.NewOverlay()
	t.overlays[k] = o
	t.overlayNames[k] = file

	return o
}

// OverlayFiles lists the configuration files with staged edits, sorted.
func (t *Transaction) OverlayFiles() []string {
	var out []string

	for k := range t.overlays {
		out = append(out, t.overlayNames[k])
	}

	sort.Strings(out)

	return out
}

// Commit hands back the destination tree and staged overlays, keyed by
// file name, and closes the transaction.
func (t *Transaction) Commit() (*filetree.Node, map[string]*settings.Overlay, error) {
	if t.closed {
		return nil, nil, ErrClosed
	}

	dest := t.dest

	overlays := make(map[string]*settings.Overlay, len(t.overlays))
	for k, o := range t.overlays {
		overlays[t.overlayNames[k]] = o
	}

	t.L().Debug("transaction committed",
		"installed", len(t.installed),
		"extracted", len(t.extracted),
		"created", len(t.created),
		"overlays", len(overlays))

	t.clear()

	return dest, overlays, nil
}

// Rollback discards every staged change.
func (t *Transaction) Rollback() {
	if t.closed {
		return
	}

	t.L().Debug("transaction rolled back", "created", len(t.created))
	t.clear()
}

func (t *Transaction) clear() {
	t.installed = make(map[string]*filetree.Node)
	t.extracted = make(map[*filetree.Node]string)
	t.created = make(map[*filetree.Node]string)
	t.overlays = make(map[string]*settings.Overlay)
	t.overlayNames = make(map[string]string)
	t.dest = nil
	t.closed = true
}
