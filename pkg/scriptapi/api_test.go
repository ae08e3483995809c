package scriptapi

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lab47.dev/fomod/pkg/filetree"
	"lab47.dev/fomod/pkg/fomod"
	"lab47.dev/fomod/pkg/host/hosttest"
	"lab47.dev/fomod/pkg/txn"
)

type env struct {
	api  *API
	tx   *txn.Transaction
	ex   *hosttest.Extractor
	ui   *hosttest.Interaction
	og   *hosttest.Organizer
	game string
	docs string
}

func write(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func setup(t *testing.T) *env {
	root := t.TempDir()

	tmp := filepath.Join(root, "tmp")
	game := filepath.Join(root, "game")
	docs := filepath.Join(root, "docs")

	require.NoError(t, os.MkdirAll(tmp, 0755))

	write(t, filepath.Join(game, "Textures", "sky.dds"), "on disk sky")
	write(t, filepath.Join(game, "Textures", "Effects", "fire.DDS"), "fire")
	write(t, filepath.Join(game, "Skyrim.esm"), "esm")
	write(t, filepath.Join(docs, "Fallout.ini"), "[General]\nsLanguage=ENGLISH\n[Display]\niSize H=720\nbad=abc\n")

	src := filetree.New("archive")
	src.AddFile("FOMod/script.go", false).SetOrigin("script")
	src.AddFile("Data/Textures/sky.dds", false).SetOrigin("archive sky")
	src.AddFile("Data/plugin.esp", false).SetOrigin("plugin")
	src.AddFile("Optional/alt.esp", false).SetOrigin("alt")
	src.AddFile("readme.txt", false).SetOrigin("readme")

	se := fomod.ParseVersion("2.0.20")

	e := &env{
		ex:   hosttest.NewExtractor(tmp),
		ui:   &hosttest.Interaction{},
		game: game,
		docs: docs,
		og: &hosttest.Organizer{
			App:      fomod.ParseVersion("2.4.4"),
			Game:     fomod.ParseVersion("1.6.640"),
			Extender: &se,
			Plugins:  []string{"Skyrim.esm", "Update.esm", "mod.esp"},
			Active:   map[string]bool{"Skyrim.esm": true, "mod.esp": true},
			Inis:     []string{"fallout.ini", "FalloutPrefs.ini"},
			Docs:     docs,
			Profile:  filepath.Join(root, "profile"),
			GameData: &hosttest.GameData{Root: game},
		},
	}

	L := hclog.New(&hclog.LoggerOptions{Level: hclog.Info})

	e.tx = txn.Open(context.Background(), txn.Options{
		Source:    src,
		Extractor: e.ex,
		Data:      e.og.GameData,
		Logger:    L,
	})

	e.api = New(L, e.tx, e.og, e.ui)

	return e
}

func TestInstall(t *testing.T) {
	t.Run("basic install skips the metadata directory", func(t *testing.T) {
		e := setup(t)

		assert.True(t, e.api.PerformBasicInstall())

		dest := e.tx.Destination()
		assert.Nil(t, dest.Find("fomod"))
		assert.NotNil(t, dest.Find("Data/Textures/sky.dds"))
		assert.NotNil(t, dest.Find("readme.txt"))

		dest.Walk("", func(_ string, n *filetree.Node) filetree.WalkAction {
			assert.False(t, strings.HasPrefix(strings.ToLower(n.Path()), "fomod"))
			return filetree.Continue
		})
	})

	t.Run("installs a single file under a new name", func(t *testing.T) {
		e := setup(t)

		assert.True(t, e.api.InstallFileFromMod("optional/alt.esp", "Data/alt.esp"))
		assert.True(t, e.api.CopyDataFile("readme.txt", "docs/"))
		assert.True(t, e.api.InstallFileFromFomod("Data/plugin.esp"))

		dest := e.tx.Destination()
		assert.Equal(t, "alt", dest.Find("data/alt.esp").Origin())
		assert.NotNil(t, dest.Find("docs/readme.txt"))
		assert.NotNil(t, dest.Find("Data/plugin.esp"))

		assert.Equal(t, "alt", string(e.api.GetExistingDataFile("Data/alt.esp")))
		assert.Equal(t, "readme", string(e.api.GetExistingDataFile("docs/readme.txt")))
	})

	t.Run("missing archive entries fail cleanly", func(t *testing.T) {
		e := setup(t)

		assert.False(t, e.api.InstallFileFromMod("nope.esp", "nope.esp"))
		assert.Equal(t, "file not found in the archive", e.api.GetLastError())
		assert.Equal(t, 0, e.tx.Destination().Len())
	})
}

func TestModFiles(t *testing.T) {
	e := setup(t)

	files := e.api.GetModFileList()
	assert.Equal(t, []string{
		"Data", "Data/Textures", "Data/Textures/sky.dds", "Data/plugin.esp",
		"Optional", "Optional/alt.esp", "readme.txt",
	}, files)
	assert.Equal(t, files, e.api.GetFomodFileList())

	assert.Equal(t, "plugin", string(e.api.GetFileFromMod("data/PLUGIN.esp")))
	assert.Equal(t, "plugin", string(e.api.GetFileFromFomod("Data/plugin.esp")))
	assert.Equal(t, 1, e.ex.Calls(e.tx.Source().Find("Data/plugin.esp")))

	assert.Equal(t, []byte{}, e.api.GetFileFromMod("missing"))
}

func TestDataFiles(t *testing.T) {
	t.Run("lists game data by pattern", func(t *testing.T) {
		e := setup(t)

		files := e.api.GetExistingDataFileList("Textures", "*.dds", false)
		assert.Equal(t, []string{"Textures/sky.dds"}, files)

		files = e.api.GetExistingDataFileList("Textures", "*.dds", true)
		sort.Strings(files)
		assert.Equal(t, []string{"Textures/Effects/fire.DDS", "Textures/sky.dds"}, files)

		files = e.api.GetExistingDataFileList("", "*.esm;*.esp", false)
		assert.Equal(t, []string{"Skyrim.esm"}, files)
	})

	t.Run("prefers staged files over game data", func(t *testing.T) {
		e := setup(t)

		assert.Equal(t, "on disk sky", string(e.api.GetExistingDataFile("Textures/sky.dds")))

		assert.True(t, e.api.GenerateDataFile("Textures/sky.dds", []byte("generated sky")))
		assert.Equal(t, "generated sky", string(e.api.GetExistingDataFile("Textures/SKY.dds")))
		assert.True(t, e.api.DataFileExists("Textures/sky.dds"))
	})

	t.Run("reports missing files as nil", func(t *testing.T) {
		e := setup(t)

		assert.False(t, e.api.DataFileExists("Textures/none.dds"))
		assert.Nil(t, e.api.GetExistingDataFile("Textures/none.dds"))
	})

	t.Run("allocation failure is a plain false", func(t *testing.T) {
		e := setup(t)
		e.ex.NoAlloc = true

		assert.False(t, e.api.GenerateDataFile("x.txt", []byte("x")))
		assert.Equal(t, "unable to create data file", e.api.GetLastError())
	})

	t.Run("write failure panics", func(t *testing.T) {
		e := setup(t)
		e.ex.Dir = filepath.Join(e.ex.Dir, "missing")

		assert.Panics(t, func() {
			e.api.GenerateDataFile("x.txt", []byte("x"))
		})
	})
}

func TestUI(t *testing.T) {
	e := setup(t)
	e.ui.Dialog = fomod.DialogYes
	e.ui.Selected = []int{1}
	e.ui.SelectOK = true

	e.api.MessageBox("hello")
	assert.Equal(t, fomod.DialogYes, e.api.MessageBoxWithButtons("q", "t", fomod.ButtonsYesNo))
	e.api.ExtendedMessageBox("m", "t", "details", fomod.ButtonsOKCancel, fomod.IconWarning)

	require.Len(t, e.ui.Boxes, 3)
	assert.Equal(t, fomod.ButtonsOK, e.ui.Boxes[0].Buttons)
	assert.Equal(t, fomod.IconInformation, e.ui.Boxes[1].Icon)
	assert.Equal(t, "details", e.ui.Boxes[2].Detail)

	idx := e.api.SelectItems([]string{"a", "b"}, nil, []string{"first"}, "pick", false)
	assert.Equal(t, []int{1}, idx)
	require.Len(t, e.ui.Selections, 1)
	assert.Equal(t, "first", e.ui.Selections[0].Options[0].Desc)
	assert.Equal(t, "", e.ui.Selections[0].Options[1].Desc)

	e.ui.SelectOK = false
	assert.Equal(t, []int{}, e.api.ImageSelect([]string{"a"}, nil, nil, "pick", true))
}

func TestVersionsAndPlugins(t *testing.T) {
	e := setup(t)

	assert.Equal(t, "2.4.4.0", e.api.GetModManagerVersion().String())
	assert.Equal(t, e.api.GetModManagerVersion(), e.api.GetFommVersion())
	assert.Equal(t, 640, e.api.GetFalloutVersion().Build)
	assert.True(t, e.api.ScriptExtenderPresent())
	assert.Equal(t, 20, e.api.GetSkseVersion().Build)

	e.og.Extender = nil
	assert.False(t, e.api.ScriptExtenderPresent())
	assert.Nil(t, e.api.GetNvseVersion())

	assert.Equal(t, []string{"Skyrim.esm", "Update.esm", "mod.esp"}, e.api.GetAllPlugins())
	assert.Equal(t, []string{"Skyrim.esm", "mod.esp"}, e.api.GetActivePlugins())

	e.api.SetPluginActivation("mod.esp", false)
	e.api.SetLoadOrder([]int{2, 1})
	assert.Equal(t, []string{"Skyrim.esm", "mod.esp"}, e.api.GetActivePlugins())
}

func TestSettings(t *testing.T) {
	t.Run("reads the documents copy", func(t *testing.T) {
		e := setup(t)

		assert.Equal(t, "ENGLISH", e.api.GetFalloutIniString("general", "sLanguage"))
		assert.Equal(t, 720, e.api.GetIniInt("Fallout.ini", "Display", "iSize H"))
		assert.Equal(t, 0, e.api.GetFalloutIniInt("Display", "missing"))
		assert.Equal(t, "", e.api.GetPrefsIniString("Display", "x"))
		assert.Equal(t, 0, e.api.GetPrefsIniInt("Display", "x"))

		assert.Panics(t, func() { e.api.GetFalloutIniInt("Display", "bad") })
	})

	t.Run("reads the profile copy when local settings are on", func(t *testing.T) {
		e := setup(t)
		e.og.Local = true

		write(t, filepath.Join(e.og.Profile, "Fallout.ini"), "[General]\nsLanguage=GERMAN\n")
		assert.Equal(t, "GERMAN", e.api.GetFalloutIniString("General", "sLanguage"))
	})

	t.Run("sees its own edits first", func(t *testing.T) {
		e := setup(t)

		assert.True(t, e.api.EditIni("FALLOUT.INI", "Display", "iSize H", "1080"))
		assert.True(t, e.api.EditFalloutINI("Display", "iSize H", "1200", true))

		assert.Equal(t, 1200, e.api.GetFalloutIniInt("Display", "iSize H"))

		data, err := os.ReadFile(filepath.Join(e.docs, "Fallout.ini"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "iSize H=720")
	})

	t.Run("refuses files the game does not manage", func(t *testing.T) {
		e := setup(t)

		assert.False(t, e.api.EditIni("Other.ini", "A", "b", "c"))
		assert.Nil(t, e.tx.Overlay("Other.ini", false))
	})
}

func TestSymbols(t *testing.T) {
	e := setup(t)

	syms := e.api.Symbols()
	for _, name := range []string{"BaseScript", "PerformBasicInstall", "EditIni", "DialogYes", "GetLastError"} {
		assert.Contains(t, syms, name)
	}

	fn, ok := syms["PerformBasicInstall"].Interface().(func() bool)
	require.True(t, ok)
	assert.True(t, fn())
	assert.NotNil(t, e.tx.Destination().Find("readme.txt"))
}

func TestLogger(t *testing.T) {
	t.Run("failed calls are logged with the message they record", func(t *testing.T) {
		e := setup(t)

		var buf bytes.Buffer
		e.api.SetLogger(hclog.New(&hclog.LoggerOptions{Level: hclog.Info, Output: &buf}))

		assert.Nil(t, e.api.GetExistingDataFile("Textures/none.dds"))
		assert.Equal(t, "data file not found", e.api.GetLastError())
		assert.Contains(t, buf.String(), "data file not found")
	})

	t.Run("a missing logger falls back to the default", func(t *testing.T) {
		e := setup(t)

		api := New(nil, e.tx, e.og, e.ui)
		assert.Same(t, hclog.L(), api.L())
	})
}
