package local

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"lab47.dev/fomod/pkg/config"
	"lab47.dev/fomod/pkg/fomod"
	"lab47.dev/fomod/pkg/host"
)

// GameData searches a list of data roots, earlier roots taking priority.
// Folder and file names match regardless of case.
type GameData struct {
	Roots []string
}

func splitFolder(folder string) []string {
	var out []string

	for _, seg := range strings.Split(strings.ReplaceAll(folder, "\\", "/"), "/") {
		if seg != "" && seg != "." {
			out = append(out, seg)
		}
	}

	return out
}

// resolve walks segs below root matching names without regard to case.
func resolve(root string, segs []string) (string, bool) {
	cur := root

	for _, seg := range segs {
		entries, err := os.ReadDir(cur)
		if err != nil {
			return "", false
		}

		found := ""

		for _, ent := range entries {
			if ent.Name() == seg {
				found = ent.Name()
				break
			}

			if found == "" && strings.EqualFold(ent.Name(), seg) {
				found = ent.Name()
			}
		}

		if found == "" {
			return "", false
		}

		cur = filepath.Join(cur, found)
	}

	return cur, true
}

func (g *GameData) entries(folder string, dirs bool, match func(string) bool) []string {
	var (
		out  []string
		seen = make(map[string]bool)
	)

	for _, root := range g.Roots {
		dir, ok := resolve(root, splitFolder(folder))
		if !ok {
			continue
		}

		ents, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, ent := range ents {
			k := strings.ToLower(ent.Name())
			if seen[k] || ent.IsDir() != dirs || (match != nil && !match(ent.Name())) {
				continue
			}

			seen[k] = true
			out = append(out, ent.Name())
		}
	}

	return out
}

func (g *GameData) FindFiles(folder string, match func(string) bool) []string {
	prefix := path.Join(splitFolder(folder)...)

	var out []string

	for _, name := range g.entries(folder, false, match) {
		out = append(out, path.Join(prefix, name))
	}

	return out
}

func (g *GameData) ListDirectories(folder string) []string {
	return g.entries(folder, true, nil)
}

func (g *GameData) Absolute(p string) string {
	for _, root := range g.Roots {
		if full, ok := resolve(root, splitFolder(p)); ok {
			return full
		}
	}

	if len(g.Roots) == 0 {
		return ""
	}

	return filepath.Join(g.Roots[0], filepath.FromSlash(path.Join(splitFolder(p)...)))
}

// ReadPlugins parses a plugins.txt load order. Lines starting with '*'
// name active plugins, '#' starts a comment. A missing file is empty.
func ReadPlugins(p string) ([]string, map[string]bool, error) {
	active := make(map[string]bool)

	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, active, nil
		}

		return nil, nil, err
	}

	defer f.Close()

	var names []string

	br := bufio.NewScanner(f)

	for br.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(br.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		on := strings.HasPrefix(line, "*")
		line = strings.TrimSpace(strings.TrimPrefix(line, "*"))

		names = append(names, line)

		if on {
			active[strings.ToLower(line)] = true
		}
	}

	if err := br.Err(); err != nil {
		return nil, nil, errors.Wrapf(err, "reading %s", p)
	}

	return names, active, nil
}

// Organizer describes the game installation from configuration.
type Organizer struct {
	cfg *config.Config

	app, game fomod.Version
	extender  *fomod.Version

	plugins []string
	active  map[string]bool

	data *GameData
}

func NewOrganizer(cfg *config.Config) (*Organizer, error) {
	plugins, active, err := ReadPlugins(cfg.PluginsFile)
	if err != nil {
		return nil, err
	}

	app, game, ext := cfg.Versions()

	return &Organizer{
		cfg:      cfg,
		app:      app,
		game:     game,
		extender: ext,
		plugins:  plugins,
		active:   active,
		data:     &GameData{Roots: cfg.GameData},
	}, nil
}

func (o *Organizer) AppVersion() fomod.Version  { return o.app }
func (o *Organizer) GameVersion() fomod.Version { return o.game }

func (o *Organizer) ScriptExtenderVersion() (fomod.Version, bool) {
	if o.extender == nil {
		return fomod.Version{}, false
	}

	return *o.extender, true
}

func (o *Organizer) PluginNames() []string         { return o.plugins }
func (o *Organizer) PluginActive(name string) bool { return o.active[strings.ToLower(name)] }
func (o *Organizer) IniFiles() []string            { return o.cfg.IniFiles }
func (o *Organizer) ProfileDir() string            { return o.cfg.ProfileDir }
func (o *Organizer) DocumentsDir() string          { return o.cfg.DocumentsDir }
func (o *Organizer) LocalSettings() bool           { return o.cfg.LocalSettings }
func (o *Organizer) Data() host.GameData           { return o.data }
