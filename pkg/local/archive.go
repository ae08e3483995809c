// Package local backs the installer's host services with the local
// filesystem and a terminal.
package local

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-getter"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"lab47.dev/fomod/pkg/filetree"
)

var ErrUnknownFormat = errors.New("unrecognized archive format")

// Archive is a mod archive opened for installation.
type Archive struct {
	Path string
	Name string
	Dir  string
	Tree *filetree.Node

	unpacked bool
}

// decompressor finds the getter decompressor for the longest matching
// extension of path.
func decompressor(path string) (getter.Decompressor, string) {
	var (
		archive     string
		matchingLen int
	)

	lower := strings.ToLower(path)

	for k := range getter.Decompressors {
		if strings.HasSuffix(lower, "."+k) && len(k) > matchingLen {
			archive = k
			matchingLen = len(k)
		}
	}

	return getter.Decompressors[archive], archive
}

// ArchiveName strips known archive extensions from the base name of path.
func ArchiveName(path string) string {
	base := filepath.Base(path)

	if _, ext := decompressor(base); ext != "" {
		return base[:len(base)-len(ext)-1]
	}

	return base
}

// OpenArchive reads path as a directory, or unpacks it below staging when
// it is an archive file.
func OpenArchive(L hclog.Logger, path, staging string) (*Archive, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	a := &Archive{Path: path, Name: ArchiveName(path), Dir: path}

	if !fi.IsDir() {
		dec, ext := decompressor(path)
		if dec == nil {
			return nil, errors.Wrapf(ErrUnknownFormat, "%s", path)
		}

		if err := os.MkdirAll(staging, 0755); err != nil {
			return nil, err
		}

		dir, err := os.MkdirTemp(staging, "archive-")
		if err != nil {
			return nil, err
		}

		L.Debug("unpacking archive", "path", path, "format", ext, "dir", dir)

		target := filepath.Join(dir, a.Name)

		if err := dec.Decompress(target, path, true, 0); err != nil {
			os.RemoveAll(dir)
			return nil, errors.Wrapf(err, "unpacking %s", path)
		}

		a.Dir = target
		a.unpacked = true
	}

	a.Tree, err = filetree.FromDir(a.Dir)
	if err != nil {
		a.Close()
		return nil, err
	}

	L.Debug("archive opened", "path", path, "files", len(a.Tree.Files()), "signature", filetree.Signature(a.Tree))

	return a, nil
}

// Close removes anything unpacked for the archive.
func (a *Archive) Close() error {
	if !a.unpacked {
		return nil
	}

	return os.RemoveAll(filepath.Dir(a.Dir))
}
