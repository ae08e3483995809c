// Package gc removes staging directories that crashed or interrupted
// installs left behind.
package gc

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lab47.dev/fomod/pkg/progress"
)

// Prefixes names the staging directories the installer creates.
var Prefixes = []string{"archive-", "extract-"}

// Collector sweeps a staging directory. Callers must hold the install
// lock so no live install owns anything it removes.
type Collector struct {
	stagingDir string
}

func NewCollector(stagingDir string) *Collector {
	return &Collector{stagingDir: filepath.Clean(stagingDir)}
}

func staged(name string) bool {
	for _, p := range Prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}

	return false
}

// Mark lists the leftover staging directories, sorted.
func (c *Collector) Mark() ([]string, error) {
	ents, err := os.ReadDir(c.stagingDir)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var found []string

	for _, ent := range ents {
		if ent.IsDir() && staged(ent.Name()) {
			found = append(found, ent.Name())
		}
	}

	// ReadDir already sorts by name
	return found, nil
}

func (c *Collector) DiskUsage(dirs []string) (int64, error) {
	var total int64

	for _, d := range dirs {
		err := filepath.WalkDir(
			filepath.Join(c.stagingDir, d),
			func(path string, d fs.DirEntry, err error,
			) error {
				if err != nil {
					return nil
				}

				fi, err := d.Info()
				if err == nil && !fi.IsDir() {
					total += fi.Size()
				}
				return nil
			})
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

type SweepResult struct {
	Removed        []string
	BytesRecovered int64
	EntriesRemoved int64
}

// remove deletes one staging directory. Unpacked archives may carry read
// only entries, which are made writable first.
func (c *Collector) remove(name string, sr *SweepResult) error {
	root := filepath.Join(c.stagingDir, name)

	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}

		if info.Mode().Perm()&0200 == 0 {
			if err := os.Chmod(path, info.Mode().Perm()|0200); err != nil {
				return err
			}
		}

		if !info.IsDir() {
			sr.EntriesRemoved++
			sr.BytesRecovered += info.Size()
		}

		return nil
	})

	return os.RemoveAll(root)
}

// Sweep removes everything Mark finds.
func (c *Collector) Sweep(ctx context.Context) (*SweepResult, error) {
	marked, err := c.Mark()
	if err != nil {
		return nil, err
	}

	return c.SweepAndRemove(ctx, marked)
}

func (c *Collector) SweepAndRemove(ctx context.Context, marked []string) (*SweepResult, error) {
	var sr SweepResult

	pb := progress.Count(ctx, int64(len(marked)), "Removing staging directories")
	defer pb.Close()

	for _, name := range marked {
		if err := ctx.Err(); err != nil {
			return &sr, err
		}

		if err := c.remove(name, &sr); err != nil {
			return &sr, err
		}

		sr.Removed = append(sr.Removed, name)

		pb.Tick()
	}

	return &sr, nil
}
