// Package fileutils copies staged files into their final location.
package fileutils

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Copier copies files and directory trees, keeping permissions and
// modification times. With Linked set, entries are symlinked instead.
type Copier struct {
	Ctx    context.Context
	L      hclog.Logger
	Linked bool
	ModeOr os.FileMode

	// Overwrite replaces existing regular files at the destination.
	Overwrite bool
}

func (c *Copier) shouldCancel() error {
	if c.Ctx == nil {
		return nil
	}

	select {
	case <-c.Ctx.Done():
		return c.Ctx.Err()
	default:
		return nil
	}
}

func (c *Copier) logger() hclog.Logger {
	if c.L == nil {
		c.L = hclog.L()
	}

	return c.L
}

// Copy places from at to, creating parent directories as needed.
func (c *Copier) Copy(from, to string) error {
	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return err
	}

	if !c.Linked {
		return c.copyEntry(from, to)
	}

	if err := c.shouldCancel(); err != nil {
		return err
	}

	c.logger().Debug("symlink", "old", from, "new", to)

	if c.Overwrite {
		os.Remove(to)
	}

	abs, err := filepath.Abs(from)
	if err != nil {
		abs = from
	}

	return os.Symlink(abs, to)
}

func (c *Copier) copyEntry(from, to string) error {
	if err := c.shouldCancel(); err != nil {
		return err
	}

	c.logger().Trace("copy entry", "from", from, "to", to)

	f, err := os.Open(from)
	if err != nil {
		return err
	}

	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	defer func() {
		// fix the times
		os.Chtimes(to, time.Time{}, fi.ModTime())
	}()

	switch fi.Mode() & os.ModeType {
	case 0: // regular file
		flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if !c.Overwrite {
			flags |= os.O_EXCL
		}

		tg, err := os.OpenFile(to, flags, fi.Mode().Perm()|c.ModeOr.Perm())
		if err != nil {
			return errors.Wrapf(err, "creating %s", to)
		}

		defer tg.Close()

		_, err = io.Copy(tg, f)
		if err != nil {
			return errors.Wrapf(err, "copying %s", from)
		}

		return nil
	case os.ModeDir:
		if _, err := os.Stat(to); err != nil {
			err = os.Mkdir(to, fi.Mode().Perm()|c.ModeOr.Perm())
			if err != nil {
				return err
			}
		}

		entries, err := f.Readdirnames(-1)
		if err != nil {
			if err == io.EOF {
				break
			}

			return err
		}

		sort.Strings(entries)

		for _, name := range entries {
			err = c.copyEntry(filepath.Join(from, name), filepath.Join(to, name))
			if err != nil {
				return err
			}
		}

	case os.ModeSymlink:
		link, err := os.Readlink(from)
		if err != nil {
			return err
		}

		return os.Symlink(link, to)
	}

	return nil
}
