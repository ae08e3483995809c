// Package sumfile records a content hash for every file an install wrote,
// so later runs can tell which installed files were changed by hand.
package sumfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// Name is the file a Sumfile is saved as inside an installed mod.
const Name = "fomod.sum"

const Algo = "b2"

type hashedEntity struct {
	hash   []byte
	entity string
	algo   string
}

// Sumfile maps slash separated paths to hashes. Paths compare without
// regard to case.
type Sumfile struct {
	entities []hashedEntity
}

func key(entity string) string {
	return strings.ToLower(entity)
}

func (s *Sumfile) search(entity string) int {
	k := key(entity)

	return sort.Search(len(s.entities), func(i int) bool {
		return key(s.entities[i].entity) >= k
	})
}

func (s *Sumfile) Load(r io.Reader) error {
	br := bufio.NewReader(r)

	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadBytes('\n')
		if err != nil && (err != io.EOF || len(line) == 0) {
			if err == io.EOF {
				break
			}

			return err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		colon := bytes.IndexByte(line, ':')
		space := bytes.IndexByte(line, ' ')

		if colon == -1 || space == -1 || space < colon {
			return errors.Errorf("malformed sum entry on line %d", lineNo)
		}

		h, err := base58.Decode(string(line[colon+1 : space]))
		if err != nil {
			return errors.Wrapf(err, "decoding hash on line %d", lineNo)
		}

		s.Add(string(bytes.TrimSpace(line[space+1:])), string(line[:colon]), h)
	}

	return nil
}

// Add records h for entity, replacing any earlier entry for it.
func (s *Sumfile) Add(entity, algo string, h []byte) string {
	he := hashedEntity{algo: algo, hash: h, entity: entity}

	idx := s.search(entity)

	switch {
	case idx < len(s.entities) && key(s.entities[idx].entity) == key(entity):
		s.entities[idx] = he
	default:
		s.entities = append(s.entities, hashedEntity{})
		copy(s.entities[idx+1:], s.entities[idx:])
		s.entities[idx] = he
	}

	return algo + ":" + base58.Encode(h)
}

func (s *Sumfile) Save(w io.Writer) error {
	for _, he := range s.entities {
		if _, err := fmt.Fprintf(w, "%s:%s %s\n", he.algo, base58.Encode(he.hash), he.entity); err != nil {
			return err
		}
	}

	return nil
}

func (s *Sumfile) Lookup(entity string) (string, []byte, bool) {
	idx := s.search(entity)

	if idx < len(s.entities) && key(s.entities[idx].entity) == key(entity) {
		return s.entities[idx].algo, s.entities[idx].hash, true
	}

	return "", nil, false
}

func (s *Sumfile) Len() int { return len(s.entities) }

// Entities lists the recorded paths in order.
func (s *Sumfile) Entities() []string {
	out := make([]string, len(s.entities))
	for i, he := range s.entities {
		out[i] = he.entity
	}

	return out
}

func HashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	h, _ := blake2b.New256(nil)

	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// FromDir hashes every regular file below dir, skipping the sum file
// itself.
func FromDir(dir string) (*Sumfile, error) {
	var s Sumfile

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)
		if rel == Name {
			return nil
		}

		h, err := HashFile(path)
		if err != nil {
			return errors.Wrapf(err, "hashing %s", rel)
		}

		s.Add(rel, Algo, h)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// Verify compares dir against the recorded hashes. It returns the
// entities whose content changed or went missing.
func (s *Sumfile) Verify(dir string) (changed, missing []string, err error) {
	for _, he := range s.entities {
		if he.algo != Algo {
			return nil, nil, errors.Errorf("unsupported hash %s for %s", he.algo, he.entity)
		}

		h, err := HashFile(filepath.Join(dir, filepath.FromSlash(he.entity)))
		if err != nil {
			if os.IsNotExist(err) {
				missing = append(missing, he.entity)
				continue
			}

			return nil, nil, err
		}

		if !bytes.Equal(h, he.hash) {
			changed = append(changed, he.entity)
		}
	}

	return changed, missing, nil
}

// WriteDir saves a Sumfile for dir into dir.
func WriteDir(dir string) (*Sumfile, error) {
	s, err := FromDir(dir)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(filepath.Join(dir, Name))
	if err != nil {
		return nil, err
	}

	defer f.Close()

	if err := s.Save(f); err != nil {
		return nil, err
	}

	return s, f.Close()
}

// ReadDir loads the Sumfile saved in dir.
func ReadDir(dir string) (*Sumfile, error) {
	f, err := os.Open(filepath.Join(dir, Name))
	if err != nil {
		return nil, err
	}

	defer f.Close()

	var s Sumfile

	if err := s.Load(f); err != nil {
		return nil, errors.Wrapf(err, "reading %s", Name)
	}

	return &s, nil
}
