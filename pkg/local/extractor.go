package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"lab47.dev/fomod/pkg/filetree"
	"lab47.dev/fomod/pkg/fileutils"
	"lab47.dev/fomod/pkg/humanize"
	"lab47.dev/fomod/pkg/progress"
)

// Extractor stages tree entries, whose origins are files on disk, in a
// private directory. It owns every path it hands out and removes them all
// on Close.
type Extractor struct {
	L   hclog.Logger
	Dir string

	mu      sync.Mutex
	counter int
	created map[*filetree.Node]string
}

func NewExtractor(L hclog.Logger, staging string) (*Extractor, error) {
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(staging, "extract-")
	if err != nil {
		return nil, err
	}

	return &Extractor{L: L, Dir: dir, created: make(map[*filetree.Node]string)}, nil
}

func (e *Extractor) next(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.counter++

	return filepath.Join(e.Dir, fmt.Sprintf("%05d", e.counter), name)
}

func (e *Extractor) ExtractFile(ctx context.Context, n *filetree.Node) (string, error) {
	if n.IsDir() || n.Origin() == "" {
		return "", nil
	}

	p := e.next(n.Name())

	c := &fileutils.Copier{Ctx: ctx, L: e.L}

	if err := c.Copy(n.Origin(), p); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		e.L.Warn("unable to extract entry", "path", n.Path(), "error", err)

		return "", nil
	}

	e.L.Trace("extracted entry", "path", n.Path(), "temp", p)

	return p, nil
}

// ExtractFiles extracts nodes in order. Cancelling ctx stops the batch
// early and returns the paths produced so far.
func (e *Extractor) ExtractFiles(ctx context.Context, nodes []*filetree.Node) ([]string, error) {
	bar := progress.Count(ctx, int64(len(nodes)), "extracting")
	defer bar.Close()

	var (
		out   []string
		total int64
	)

	for _, n := range nodes {
		if ctx.Err() != nil {
			e.L.Info("extraction interrupted", "extracted", len(out), "wanted", len(nodes))
			return out, nil
		}

		bar.On(n.Name())

		p, err := e.ExtractFile(ctx, n)
		if err != nil {
			if ctx.Err() != nil {
				return out, nil
			}

			return out, err
		}

		if p == "" {
			return out, errors.Errorf("unable to extract %s", n.Path())
		}

		if fi, err := os.Stat(p); err == nil {
			total += fi.Size()
		}

		out = append(out, p)

		bar.Tick()
	}

	e.L.Debug("extracted files", "count", len(out), "size", humanize.Bytes(total))

	return out, nil
}

// CreateFile allocates an empty temporary file for a new destination
// entry.
func (e *Extractor) CreateFile(n *filetree.Node) (string, error) {
	p := e.next("created-" + n.Name())

	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", err
	}

	f, err := os.Create(p)
	if err != nil {
		return "", err
	}

	f.Close()

	e.mu.Lock()
	e.created[n] = p
	e.mu.Unlock()

	return p, nil
}

// Created reports how many entries were allocated with CreateFile.
func (e *Extractor) Created() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.created)
}

func (e *Extractor) Close() error {
	return os.RemoveAll(e.Dir)
}

// Materialize writes every file of tree below dest. Each file's origin
// must be readable; committed trees only reference archive files and
// staged temporaries, so the extractor must still be open.
func Materialize(ctx context.Context, L hclog.Logger, tree *filetree.Node, dest string, linked bool) (int64, error) {
	var size int64
	for _, f := range tree.Files() {
		if fi, err := os.Stat(f.Origin()); err == nil {
			size += fi.Size()
		}
	}

	bar := progress.Bytes(ctx, size, "installing")
	defer bar.Close()

	c := &fileutils.Copier{Ctx: ctx, L: L, Linked: linked, Overwrite: true}

	var total int64

	var walkErr error

	tree.Walk("", func(parent string, n *filetree.Node) filetree.WalkAction {
		target := filepath.Join(dest, filepath.FromSlash(n.PathFrom(tree)))

		if n.IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				walkErr = err
				return filetree.Stop
			}

			return filetree.Continue
		}

		bar.On(n.Name())

		if err := c.Copy(n.Origin(), target); err != nil {
			walkErr = errors.Wrapf(err, "installing %s", n.PathFrom(tree))
			return filetree.Stop
		}

		if fi, err := os.Stat(target); err == nil {
			total += fi.Size()
			bar.Add(fi.Size())
		}

		return filetree.Continue
	})

	return total, walkErr
}
