package filetree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
	"lab47.dev/fomod/pkg/fomod"
)

// FromDir builds a tree mirroring dir on disk. File origins are the
// absolute paths of the files.
func FromDir(dir string) (*Node, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", dir)
	}

	fi, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}

	if !fi.IsDir() {
		return nil, errors.Errorf("not a directory: %s", dir)
	}

	root := New(filepath.Base(abs))

	err = fill(root, abs)
	if err != nil {
		return nil, err
	}

	return root, nil
}

func fill(n *Node, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "reading %s", dir)
	}

	for _, ent := range entries {
		full := filepath.Join(dir, ent.Name())

		if ent.IsDir() {
			sub := &Node{name: ent.Name(), kind: KindDir}
			n.insert(sub)

			if err := fill(sub, full); err != nil {
				return err
			}

			continue
		}

		if !ent.Type().IsRegular() {
			continue
		}

		n.insert(NewFile(ent.Name(), full))
	}

	return nil
}

// Signature summarizes the shape of the tree below n, including file
// origins, as a base58 encoded blake2b digest. Two trees with the same
// signature have the same entries backed by the same content handles.
func Signature(n *Node) string {
	h, _ := blake2b.New256(nil)

	n.walk("", func(parent string, c *Node) WalkAction {
		p := strings.ToLower(parent + "/" + c.name)

		if c.kind == KindDir {
			fmt.Fprintf(h, "dir: %s\n", p)
		} else {
			fmt.Fprintf(h, "file: %s %s\n", p, c.origin)
		}

		return Continue
	})

	return base58.Encode(h.Sum(nil))
}

// IsMetadataEntry reports whether n is the reserved metadata directory
// directly under root.
func IsMetadataEntry(root, n *Node) bool {
	return n.parent == root && strings.EqualFold(n.name, fomod.MetadataDir)
}
