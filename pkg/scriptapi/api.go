// Package scriptapi implements the functions an install script may call.
// Every call works against a single transaction. Missing entries and
// failed extractions are reported through return values; failing to read
// or write bytes panics, which the sandbox turns into a failed run.
package scriptapi

import (
	"context"
	"image"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/woozymasta/pathrules"
	"lab47.dev/fomod/pkg/filetree"
	"lab47.dev/fomod/pkg/fomod"
	"lab47.dev/fomod/pkg/host"
	"lab47.dev/fomod/pkg/settings"
	"lab47.dev/fomod/pkg/txn"
)

const (
	falloutIni = "Fallout.ini"
	prefsIni   = "FalloutPrefs.ini"
)

type API struct {
	common

	tx *txn.Transaction
	og host.Organizer
	ui host.Interaction

	lastError string
}

func New(L hclog.Logger, tx *txn.Transaction, og host.Organizer, ui host.Interaction) *API {
	a := &API{tx: tx, og: og, ui: ui}
	a.SetLogger(L)

	return a
}

func (a *API) ctx() context.Context {
	return a.tx.Context()
}

func (a *API) fail(msg string, args ...interface{}) {
	a.lastError = msg
	a.L().Warn(msg, args...)
}

// GetLastError returns the message recorded by the last failed call.
func (a *API) GetLastError() string {
	return a.lastError
}

// PerformBasicInstall copies every top level archive entry except the
// metadata directory into the destination.
func (a *API) PerformBasicInstall() bool {
	src := a.tx.Source()
	dest := a.tx.Destination()

	for _, c := range src.Children() {
		if filetree.IsMetadataEntry(src, c) {
			continue
		}

		if n := dest.Copy(c, "", filetree.Merge); n != nil {
			a.tx.RecordInstall(n.Path(), c)
		}
	}

	return true
}

// InstallFileFromMod copies an archive entry to the destination. With no
// destination the entry keeps its archive path.
func (a *API) InstallFileFromMod(from string, to ...string) bool {
	target := from
	if len(to) > 0 {
		target = to[0]
	}

	src := a.tx.Source().Find(from)
	if src == nil {
		a.fail("file not found in the archive", "path", from)
		return false
	}

	n := a.tx.Destination().Copy(src, target, filetree.Merge)
	if n == nil {
		a.fail("unable to install file", "from", from, "to", target)
		return false
	}

	a.tx.RecordInstall(n.Path(), src)

	return true
}

func (a *API) CopyDataFile(from, to string) bool {
	return a.InstallFileFromMod(from, to)
}

func (a *API) InstallFileFromFomod(from string, to ...string) bool {
	return a.InstallFileFromMod(from, to...)
}

// GetModFileList lists every archive entry outside the metadata directory.
func (a *API) GetModFileList() []string {
	src := a.tx.Source()

	var out []string

	src.Walk("", func(parent string, n *filetree.Node) filetree.WalkAction {
		if filetree.IsMetadataEntry(src, n) {
			return filetree.Skip
		}

		out = append(out, path.Join(parent, n.Name()))
		return filetree.Continue
	})

	return out
}

func (a *API) GetFomodFileList() []string {
	return a.GetModFileList()
}

// GetFileFromMod returns the bytes of an archive file. Missing or
// unextractable entries yield an empty slice.
func (a *API) GetFileFromMod(file string) []byte {
	n := a.tx.Source().Find(file)
	if n == nil || n.IsDir() {
		a.fail("file not found in the archive", "path", file)
		return []byte{}
	}

	p := a.tx.ExtractOnce(n)
	if p == "" {
		a.fail("unable to extract file", "path", file)
		return []byte{}
	}

	return mustRead(p)
}

func (a *API) GetFileFromFomod(file string) []byte {
	return a.GetFileFromMod(file)
}

func mustRead(p string) []byte {
	data, err := os.ReadFile(p)
	if err != nil {
		panic(errors.Wrapf(err, "reading %s", p))
	}

	return data
}

func patternMatcher(pattern string) (*pathrules.Matcher, error) {
	var rules []pathrules.Rule

	for _, p := range strings.FieldsFunc(pattern, func(r rune) bool { return r == ';' || r == ' ' }) {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: p})
	}

	if len(rules) == 0 {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: "*"})
	}

	return pathrules.NewMatcher(rules, pathrules.MatcherOptions{
		CaseInsensitive: true,
		DefaultAction:   pathrules.ActionExclude,
	})
}

// GetExistingDataFileList lists game data files in folder whose name
// matches pattern, descending into subfolders when allFolders is set.
func (a *API) GetExistingDataFileList(folder, pattern string, allFolders bool) []string {
	data := a.tx.Data()
	if data == nil {
		return []string{}
	}

	m, err := patternMatcher(pattern)
	if err != nil {
		a.fail("invalid file pattern", "pattern", pattern, "error", err)
		return []string{}
	}

	return a.dataFiles(data, m, strings.ReplaceAll(folder, "\\", "/"), allFolders)
}

func (a *API) dataFiles(data host.GameData, m *pathrules.Matcher, folder string, recurse bool) []string {
	out := data.FindFiles(folder, func(name string) bool {
		return m.Included(name, false)
	})

	if !recurse {
		return out
	}

	for _, dir := range data.ListDirectories(folder) {
		out = append(out, a.dataFiles(data, m, path.Join(folder, dir), recurse)...)
	}

	return out
}

func (a *API) DataFileExists(p string) bool {
	return a.tx.ResolveDataFilePath(p) != ""
}

// GetExistingDataFile reads a data file, seeing the script's own staged
// files first. It returns nil when no such file exists.
func (a *API) GetExistingDataFile(p string) []byte {
	resolved := a.tx.ResolveDataFilePath(p)
	if resolved == "" {
		a.fail("data file not found", "path", p)
		return nil
	}

	return mustRead(resolved)
}

// GenerateDataFile stages data at p in the destination.
func (a *API) GenerateDataFile(p string, data []byte) bool {
	ok, err := a.tx.CreateFile(p, data)
	if err != nil {
		panic(err)
	}

	if !ok {
		a.fail("unable to create data file", "path", p)
	}

	return ok
}

// MessageBox shows an informational message with a single OK button.
func (a *API) MessageBox(message string, title ...string) {
	var t string
	if len(title) > 0 {
		t = title[0]
	}

	a.ExtendedMessageBox(message, t, "", fomod.ButtonsOK, fomod.IconInformation)
}

func (a *API) MessageBoxWithButtons(message, title string, buttons fomod.MessageBoxButtons, icon ...fomod.MessageBoxIcon) fomod.DialogResult {
	i := fomod.IconInformation
	if len(icon) > 0 {
		i = icon[0]
	}

	return a.ExtendedMessageBox(message, title, "", buttons, i)
}

func (a *API) ExtendedMessageBox(message, title, details string, buttons fomod.MessageBoxButtons, icon fomod.MessageBoxIcon) fomod.DialogResult {
	return a.ui.MessageBox(a.ctx(), host.MessageBox{
		Message: message,
		Title:   title,
		Detail:  details,
		Buttons: buttons,
		Icon:    icon,
	})
}

// Select asks the user to pick from options and returns the chosen
// indices, empty if the prompt was cancelled.
func (a *API) Select(options []fomod.SelectOption, title string, multi bool) []int {
	idx, ok := a.ui.Select(a.ctx(), host.Selection{
		Title:   title,
		Options: options,
		Multi:   multi,
	})

	if !ok {
		return []int{}
	}

	return idx
}

// SelectItems is Select over parallel slices of labels, preview paths and
// descriptions. The shorter slices are padded with empty values.
func (a *API) SelectItems(items, previews, descs []string, title string, multi bool) []int {
	at := func(s []string, i int) string {
		if i < len(s) {
			return s[i]
		}
		return ""
	}

	options := make([]fomod.SelectOption, len(items))
	for i, item := range items {
		options[i] = fomod.SelectOption{Item: item, Preview: at(previews, i), Desc: at(descs, i)}
	}

	return a.Select(options, title, multi)
}

// ImageSelect is SelectItems with in-memory previews, which are not shown.
func (a *API) ImageSelect(items []string, previews []image.Image, descs []string, title string, multi bool) []int {
	return a.SelectItems(items, nil, descs, title, multi)
}

func (a *API) GetModManagerVersion() fomod.Version {
	return a.og.AppVersion()
}

func (a *API) GetFommVersion() fomod.Version {
	return a.GetModManagerVersion()
}

func (a *API) GetGameVersion() fomod.Version {
	return a.og.GameVersion()
}

func (a *API) GetFalloutVersion() fomod.Version {
	return a.GetGameVersion()
}

// GetScriptExtenderVersion returns nil when no script extender is
// installed.
func (a *API) GetScriptExtenderVersion() *fomod.Version {
	v, ok := a.og.ScriptExtenderVersion()
	if !ok {
		return nil
	}

	return &v
}

func (a *API) GetSkseVersion() *fomod.Version { return a.GetScriptExtenderVersion() }
func (a *API) GetFoseVersion() *fomod.Version { return a.GetScriptExtenderVersion() }
func (a *API) GetNvseVersion() *fomod.Version { return a.GetScriptExtenderVersion() }

func (a *API) ScriptExtenderPresent() bool {
	_, ok := a.og.ScriptExtenderVersion()
	return ok
}

func (a *API) GetAllPlugins() []string {
	return append([]string{}, a.og.PluginNames()...)
}

func (a *API) GetActivePlugins() []string {
	out := []string{}

	for _, name := range a.og.PluginNames() {
		if a.og.PluginActive(name) {
			out = append(out, name)
		}
	}

	return out
}

// Load order is owned by the host; these are accepted and ignored.

func (a *API) SetPluginActivation(plugin string, active bool) {
	a.L().Debug("ignoring plugin activation request", "plugin", plugin, "active", active)
}

func (a *API) SetPluginOrderIndex(plugin string, index int) {
	a.L().Debug("ignoring plugin order request", "plugin", plugin, "index", index)
}

func (a *API) SetLoadOrder(plugins []int, position ...int) {
	a.L().Debug("ignoring load order request", "plugins", len(plugins))
}

// GetIniString reads a setting, preferring edits staged by this script.
func (a *API) GetIniString(file, section, key string) string {
	if o := a.tx.Overlay(file, false); o != nil {
		if v := o.Value(section, key); v != "" {
			return v
		}
	}

	loc := settings.Locator{
		ProfileDir:    a.og.ProfileDir(),
		DocumentsDir:  a.og.DocumentsDir(),
		LocalSettings: a.og.LocalSettings(),
	}

	st, err := settings.OpenStore(loc.Path(file))
	if err != nil {
		a.fail("unable to read settings file", "file", file, "error", err)
		return ""
	}

	v, _ := settings.Lookup(st, section, key)
	return v
}

// GetIniInt reads a setting as an integer. A missing value is zero, a
// malformed one panics.
func (a *API) GetIniInt(file, section, key string) int {
	s := strings.TrimSpace(a.GetIniString(file, section, key))
	if s == "" {
		return 0
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		panic(errors.Wrapf(err, "%s: [%s] %s is not an integer", file, section, key))
	}

	return n
}

func (a *API) GetFalloutIniString(section, key string) string {
	return a.GetIniString(falloutIni, section, key)
}

func (a *API) GetFalloutIniInt(section, key string) int {
	return a.GetIniInt(falloutIni, section, key)
}

func (a *API) GetPrefsIniString(section, key string) string {
	return a.GetIniString(prefsIni, section, key)
}

func (a *API) GetPrefsIniInt(section, key string) int {
	return a.GetIniInt(prefsIni, section, key)
}

// EditIni stages a setting change. Only configuration files the game
// manages may be edited.
func (a *API) EditIni(file, section, key, value string) bool {
	var known bool

	for _, ini := range a.og.IniFiles() {
		if strings.EqualFold(ini, file) {
			known = true
			break
		}
	}

	if !known {
		a.fail("settings file is not managed by the game", "file", file)
		return false
	}

	a.tx.Overlay(file, true).SetValue(section, key, value)

	return true
}

func (a *API) EditFalloutINI(section, key, value string, saveOld bool) bool {
	return a.EditIni(falloutIni, section, key, value)
}
