package settings

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

func init() {
	// Game INI readers choke on "key = value".
	ini.PrettyFormat = false
}

// Store is a real INI file on disk. Names follow the flat convention used
// by the host: a bare key lives in [General], "section/key" lives in
// [section], and an explicitly qualified "General/key" lives in
// [%General].
type Store struct {
	path string
	file *ini.File
}

// OpenStore loads path. A missing file is treated as empty.
func OpenStore(path string) (*Store, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		Loose:                   true,
		SkipUnrecognizableLines: true,
		IgnoreInlineComment:     true,
	}, path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading ini %s", path)
	}

	return &Store{path: path, file: f}, nil
}

func (s *Store) Path() string {
	return s.path
}

func splitName(name string) (string, string) {
	idx := strings.IndexByte(name, '/')
	if idx == -1 {
		return GeneralSection, name
	}

	sec, key := name[:idx], name[idx+1:]
	if strings.EqualFold(sec, GeneralSection) {
		sec = "%" + GeneralSection
	}

	return sec, key
}

func (s *Store) findSection(name string) *ini.Section {
	for _, sec := range s.file.Sections() {
		if strings.EqualFold(sec.Name(), name) {
			return sec
		}
	}

	return nil
}

// Get returns the value for name, if present.
func (s *Store) Get(name string) (string, bool) {
	secName, key := splitName(name)

	sec := s.findSection(secName)
	if sec == nil {
		return "", false
	}

	for _, k := range sec.Keys() {
		if strings.EqualFold(k.Name(), key) {
			return k.Value(), true
		}
	}

	return "", false
}

func (s *Store) Set(name, value string) error {
	secName, key := splitName(name)

	sec := s.findSection(secName)
	if sec == nil {
		var err error

		sec, err = s.file.NewSection(secName)
		if err != nil {
			return errors.Wrapf(err, "creating section %s", secName)
		}
	}

	for _, k := range sec.Keys() {
		if strings.EqualFold(k.Name(), key) {
			k.SetValue(value)
			return nil
		}
	}

	_, err := sec.NewKey(key, value)
	return errors.Wrapf(err, "setting %s", name)
}

// Save writes the file back, creating its directory if needed.
func (s *Store) Save() error {
	err := os.MkdirAll(filepath.Dir(s.path), 0755)
	if err != nil {
		return err
	}

	return errors.Wrapf(s.file.SaveTo(s.path), "saving ini %s", s.path)
}

// Lookup reads section/key from a store using the same General
// convention as MergeInto.
func Lookup(s *Store, section, key string) (string, bool) {
	return s.Get(QualifiedName(section, key))
}

// Locator picks the directory real configuration files live in.
type Locator struct {
	ProfileDir    string
	DocumentsDir  string
	LocalSettings bool
}

func (l Locator) Path(file string) string {
	if l.LocalSettings {
		return filepath.Join(l.ProfileDir, file)
	}

	return filepath.Join(l.DocumentsDir, file)
}

// Merge opens the real file for name, applies o and saves it.
func (l Locator) Merge(name string, o *Overlay) error {
	st, err := OpenStore(l.Path(name))
	if err != nil {
		return err
	}

	if err := o.MergeInto(st); err != nil {
		return err
	}

	return st.Save()
}
