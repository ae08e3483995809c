// Package settings stages configuration edits in memory and applies them
// to real INI files on demand.
package settings

import (
	"strings"
)

// GeneralSection is written as a bare key when merged into a real store.
const GeneralSection = "General"

// Target is anything a staged overlay can be merged into. Names are bare
// keys or section/key pairs.
type Target interface {
	Set(name, value string) error
}

type entry struct {
	key   string
	value string
}

type section struct {
	name    string
	entries []*entry
}

// Overlay holds the pending edits for one configuration file. Sections and
// keys are matched case-insensitively and keep the spelling they were first
// written with.
type Overlay struct {
	sections []*section
}

func NewOverlay() *Overlay {
	return &Overlay{}
}

func (o *Overlay) section(name string, create bool) *section {
	for _, s := range o.sections {
		if strings.EqualFold(s.name, name) {
			return s
		}
	}

	if !create {
		return nil
	}

	s := &section{name: name}
	o.sections = append(o.sections, s)

	return s
}

func (s *section) entry(key string) *entry {
	for _, e := range s.entries {
		if strings.EqualFold(e.key, key) {
			return e
		}
	}

	return nil
}

// SetValue upserts a value. The last write for a section and key wins.
func (o *Overlay) SetValue(section, key, value string) {
	s := o.section(section, true)

	if e := s.entry(key); e != nil {
		e.value = value
		return
	}

	s.entries = append(s.entries, &entry{key: key, value: value})
}

// Value returns the staged value or the empty string.
func (o *Overlay) Value(section, key string) string {
	v, _ := o.Lookup(section, key)
	return v
}

func (o *Overlay) Lookup(section, key string) (string, bool) {
	s := o.section(section, false)
	if s == nil {
		return "", false
	}

	e := s.entry(key)
	if e == nil {
		return "", false
	}

	return e.value, true
}

func (o *Overlay) HasValue(section, key string) bool {
	_, ok := o.Lookup(section, key)
	return ok
}

// Len is the number of staged keys.
func (o *Overlay) Len() int {
	var n int

	for _, s := range o.sections {
		n += len(s.entries)
	}

	return n
}

// Sections returns section names in first-seen order.
func (o *Overlay) Sections() []string {
	out := make([]string, 0, len(o.sections))

	for _, s := range o.sections {
		out = append(out, s.name)
	}

	return out
}

// Text renders the overlay as INI text, one block per section in
// first-seen order, separated by blank lines.
func (o *Overlay) Text() string {
	var sb strings.Builder

	for i, s := range o.sections {
		if i > 0 {
			sb.WriteString("\n")
		}

		sb.WriteString("[" + s.name + "]\n")

		for _, e := range s.entries {
			sb.WriteString(e.key + "=" + e.value + "\n")
		}
	}

	return sb.String()
}

// MergeInto applies every staged key to t. Keys in the General section
// are written without a section qualifier.
func (o *Overlay) MergeInto(t Target) error {
	for _, s := range o.sections {
		for _, e := range s.entries {
			if err := t.Set(QualifiedName(s.name, e.key), e.value); err != nil {
				return err
			}
		}
	}

	return nil
}

// QualifiedName returns the store name for a section and key.
func QualifiedName(section, key string) string {
	if section == "" || strings.EqualFold(section, GeneralSection) {
		return key
	}

	return section + "/" + key
}
