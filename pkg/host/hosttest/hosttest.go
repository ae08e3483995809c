// Package hosttest provides in-process implementations of the host
// services for tests.
package hosttest

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"lab47.dev/fomod/pkg/filetree"
	"lab47.dev/fomod/pkg/fomod"
	"lab47.dev/fomod/pkg/host"
)

// Extractor materializes nodes below Dir. A node whose origin is a file
// on disk is copied, otherwise the origin text becomes the content.
type Extractor struct {
	Dir string

	// CancelAfter makes ExtractFiles stop after that many entries when
	// positive.
	CancelAfter int

	// NoAlloc makes CreateFile fail to allocate.
	NoAlloc bool

	mu      sync.Mutex
	calls   map[*filetree.Node]int
	counter int
}

func NewExtractor(dir string) *Extractor {
	return &Extractor{Dir: dir, calls: make(map[*filetree.Node]int)}
}

// Calls reports how often n was extracted.
func (e *Extractor) Calls(n *filetree.Node) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.calls[n]
}

func (e *Extractor) next(name string) string {
	e.counter++
	return filepath.Join(e.Dir, fmt.Sprintf("%04d-%s", e.counter, name))
}

func (e *Extractor) ExtractFile(ctx context.Context, n *filetree.Node) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls[n]++

	data, err := os.ReadFile(n.Origin())
	if err != nil {
		data = []byte(n.Origin())
	}

	p := e.next(n.Name())

	return p, os.WriteFile(p, data, 0644)
}

func (e *Extractor) ExtractFiles(ctx context.Context, nodes []*filetree.Node) ([]string, error) {
	var out []string

	for i, n := range nodes {
		if e.CancelAfter > 0 && i >= e.CancelAfter {
			break
		}

		p, err := e.ExtractFile(ctx, n)
		if err != nil {
			return out, err
		}

		out = append(out, p)
	}

	return out, nil
}

func (e *Extractor) CreateFile(n *filetree.Node) (string, error) {
	if e.NoAlloc {
		return "", nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.next("created-" + n.Name()), nil
}

// Interaction answers prompts from its fields and records what was shown.
type Interaction struct {
	Confirm    host.Confirmation
	Dialog     fomod.DialogResult
	Selected   []int
	SelectOK   bool
	Review     host.PostInstallChoice
	ConfirmErr error

	Boxes      []host.MessageBox
	Selections []host.Selection
	Guesses    []host.Guess
	Reviews    []host.SettingsReview
}

func (i *Interaction) ConfirmName(ctx context.Context, g host.Guess) (host.Confirmation, error) {
	i.Guesses = append(i.Guesses, g)

	c := i.Confirm
	if c.Name == "" {
		c.Name = g.Name
	}

	return c, i.ConfirmErr
}

func (i *Interaction) MessageBox(ctx context.Context, box host.MessageBox) fomod.DialogResult {
	i.Boxes = append(i.Boxes, box)
	return i.Dialog
}

func (i *Interaction) Select(ctx context.Context, sel host.Selection) ([]int, bool) {
	i.Selections = append(i.Selections, sel)
	return i.Selected, i.SelectOK
}

func (i *Interaction) ReviewSettings(ctx context.Context, r host.SettingsReview) host.PostInstallChoice {
	i.Reviews = append(i.Reviews, r)
	return i.Review
}

// GameData serves files from a directory on disk.
type GameData struct {
	Root string
}

func (g *GameData) dir(folder string) string {
	return filepath.Join(g.Root, filepath.FromSlash(strings.ReplaceAll(folder, "\\", "/")))
}

func (g *GameData) FindFiles(folder string, match func(string) bool) []string {
	entries, err := os.ReadDir(g.dir(folder))
	if err != nil {
		return nil
	}

	var out []string

	for _, ent := range entries {
		if !ent.IsDir() && match(ent.Name()) {
			out = append(out, path.Join(strings.ReplaceAll(folder, "\\", "/"), ent.Name()))
		}
	}

	return out
}

func (g *GameData) ListDirectories(folder string) []string {
	entries, err := os.ReadDir(g.dir(folder))
	if err != nil {
		return nil
	}

	var out []string

	for _, ent := range entries {
		if ent.IsDir() {
			out = append(out, ent.Name())
		}
	}

	return out
}

func (g *GameData) Absolute(p string) string {
	return g.dir(p)
}

// Organizer is a fixed description of a game installation.
type Organizer struct {
	App, Game     fomod.Version
	Extender      *fomod.Version
	Plugins       []string
	Active        map[string]bool
	Inis          []string
	Profile, Docs string
	Local         bool
	GameData      host.GameData
}

func (o *Organizer) AppVersion() fomod.Version  { return o.App }
func (o *Organizer) GameVersion() fomod.Version { return o.Game }

func (o *Organizer) ScriptExtenderVersion() (fomod.Version, bool) {
	if o.Extender == nil {
		return fomod.Version{}, false
	}

	return *o.Extender, true
}

func (o *Organizer) PluginNames() []string         { return o.Plugins }
func (o *Organizer) PluginActive(name string) bool { return o.Active[name] }
func (o *Organizer) IniFiles() []string            { return o.Inis }
func (o *Organizer) ProfileDir() string            { return o.Profile }
func (o *Organizer) DocumentsDir() string          { return o.Docs }
func (o *Organizer) LocalSettings() bool           { return o.Local }
func (o *Organizer) Data() host.GameData           { return o.GameData }
