package installer

import (
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
	"lab47.dev/fomod/pkg/host"
	"lab47.dev/fomod/pkg/host/hosttest"
)

func script(body string) string {
	return `package main

import "fomod"

type Script struct {
	fomod.BaseScript
}

func (s *Script) OnActivate() bool {
` + body + `
}
`
}

type env struct {
	in   *Installer
	ex   *hosttest.Extractor
	ui   *hosttest.Interaction
	og   *hosttest.Organizer
	docs string
}

func setup(t *testing.T, ex host.Extractor) *env {
	root := t.TempDir()

	tmp := filepath.Join(root, "tmp")
	docs := filepath.Join(root, "docs")
	game := filepath.Join(root, "game")

	require.NoError(t, os.MkdirAll(tmp, 0755))
	require.NoError(t, os.MkdirAll(game, 0755))

	e := &env{
		ex:   hosttest.NewExtractor(tmp),
		ui:   &hosttest.Interaction{},
		docs: docs,
		og: &hosttest.Organizer{
			Inis:     []string{"Fallout.ini"},
			Docs:     docs,
			Profile:  filepath.Join(root, "profile"),
			GameData: &hosttest.GameData{Root: game},
		},
	}

	if ex == nil {
		ex = e.ex
	}

	e.in = New(Options{
		Extractor:   ex,
		Interaction: e.ui,
		Organizer:   e.og,
		Logger:      hclog.New(&hclog.LoggerOptions{Level: hclog.Info}),
	})

	return e
}

func archive(src string) *filetree.Node {
	tree := filetree.New("archive")
	tree.AddFile("fomod/script.go", false).SetOrigin(src)
	tree.AddFile("Data/Textures/sky.dds", false).SetOrigin("sky")
	tree.AddFile("Data/Textures/preview.PNG", false).SetOrigin("png")
	tree.AddFile("Data/mod.esp", false).SetOrigin("esp")
	tree.AddFile("readme.txt", false).SetOrigin("readme")

	return tree
}

func filePaths(n *filetree.Node) []string {
	var out []string

	for _, f := range n.Files() {
		out = append(out, f.PathFrom(n))
	}

	sort.Strings(out)

	return out
}

// brokenAllocator hands out temporary paths in a directory that does not
// exist, so writing created files fails.
type brokenAllocator struct {
	*hosttest.Extractor
	dir string
}

func (b *brokenAllocator) CreateFile(n *filetree.Node) (string, error) {
	return filepath.Join(b.dir, "missing", n.Name()), nil
}

func TestLocate(t *testing.T) {
	t.Run("descends through single directory wrappers", func(t *testing.T) {
		tree := filetree.New("archive")
		tree.AddFile("readme.txt", false)
		tree.AddFile("Outer/Inner/fomod/script.go", false)
		tree.AddFile("Outer/Inner/Data/a.esp", false)

		meta := FindMetadataDir(tree)
		require.NotNil(t, meta)
		assert.Equal(t, "Outer/Inner/fomod", meta.Path())

		s := FindScript(tree)
		require.NotNil(t, s)
		assert.Equal(t, "script.go", s.Name())
	})

	t.Run("metadata directory matches any case", func(t *testing.T) {
		tree := filetree.New("archive")
		tree.AddFile("FOMOD/Script.GO", false)

		assert.True(t, IsArchiveSupported(tree))
	})

	t.Run("two sibling directories are unsupported", func(t *testing.T) {
		tree := filetree.New("archive")
		tree.AddFile("A/fomod/script.go", false)
		tree.AddFile("B/data.esp", false)

		assert.Nil(t, FindMetadataDir(tree))
		assert.False(t, IsArchiveSupported(tree))
	})

	t.Run("finds the manifest next to the script", func(t *testing.T) {
		tree := filetree.New("archive")
		tree.AddFile("fomod/script.go", false)
		tree.AddFile("fomod/Info.XML", false)

		m := FindManifest(tree)
		require.NotNil(t, m)
		assert.Equal(t, "Info.XML", m.Name())
	})

	t.Run("extraction set holds each entry once", func(t *testing.T) {
		tree := filetree.New("archive")
		s := tree.AddFile("fomod/script.go", false)
		img := tree.AddFile("fomod/screen.png", false)
		tree.AddFile("Data/tex/a.JPG", false)
		tree.AddFile("Data/tex/b.dds", false)

		set, err := extractionSet(tree, FindMetadataDir(tree), s, nil)
		require.NoError(t, err)

		var names []string
		for _, n := range set {
			names = append(names, n.Name())
		}

		assert.Equal(t, "script.go", names[0])
		assert.ElementsMatch(t, []string{"script.go", "screen.png", "a.JPG"}, names)

		count := 0
		for _, n := range set {
			if n == img {
				count++
			}
		}

		assert.Equal(t, 1, count)
	})
}

func TestInstaller(t *testing.T) {
	ctx := context.Background()

	t.Run("an archive without a script is not attempted", func(t *testing.T) {
		e := setup(t, nil)

		tree := filetree.New("archive")
		tree.AddFile("Wrapper/Data/mod.esp", false)
		tree.AddFile("Wrapper/fomod/readme.txt", false)

		out, err := e.in.Install(ctx, nil, tree)
		require.NoError(t, err)

		assert.Equal(t, fomod.NotAttempted, out.Result)
		assert.Empty(t, e.ui.Guesses)
	})

	t.Run("sibling top level directories are not attempted", func(t *testing.T) {
		e := setup(t, nil)

		tree := filetree.New("archive")
		tree.AddFile("First/fomod/script.go", false).SetOrigin(script("return true"))
		tree.AddFile("Second/mod.esp", false)

		out, err := e.in.Install(ctx, nil, tree)
		require.NoError(t, err)

		assert.Equal(t, fomod.NotAttempted, out.Result)
	})

	t.Run("a basic install copies everything but the metadata", func(t *testing.T) {
		e := setup(t, nil)

		e.ui.Confirm = host.Confirmation{Choice: host.ConfirmAccept}

		tree := archive(script("return fomod.PerformBasicInstall()"))
		before := filetree.Signature(tree)

		out, err := e.in.Install(ctx, NewGuess("archive", GuessFallback), tree)
		require.NoError(t, err)

		require.Equal(t, fomod.Success, out.Result)
		assert.Equal(t, before, filetree.Signature(tree))

		assert.Equal(t,
			[]string{"Data/Textures/preview.PNG", "Data/Textures/sky.dds", "Data/mod.esp", "readme.txt"},
			filePaths(out.Tree))

		assert.Nil(t, out.Tree.Find("fomod"))
	})

	t.Run("files from a basic install stay visible after a merge", func(t *testing.T) {
		e := setup(t, nil)

		tree := archive(script(`fomod.PerformBasicInstall()
	fomod.InstallFileFromMod("Optional", "Data")
	return fomod.DataFileExists("Data/mod.esp") && fomod.DataFileExists("Data/extra.esp")`))
		tree.AddFile("Optional/extra.esp", false).SetOrigin("extra")

		out, err := e.in.Install(ctx, nil, tree)
		require.NoError(t, err)

		require.Equal(t, fomod.Success, out.Result)
		assert.NotNil(t, out.Tree.Find("Data/mod.esp"))
		assert.NotNil(t, out.Tree.Find("Data/extra.esp"))
	})

	t.Run("a script returning false cancels and keeps the archive", func(t *testing.T) {
		e := setup(t, nil)

		tree := archive(script("fomod.PerformBasicInstall()\n\treturn false"))

		out, err := e.in.Install(ctx, nil, tree)
		require.NoError(t, err)

		assert.Equal(t, fomod.Canceled, out.Result)
		assert.Same(t, tree, out.Tree)
		assert.NotNil(t, out.Tree.Find("fomod/script.go"))
	})

	t.Run("a syntax error fails with a line number", func(t *testing.T) {
		e := setup(t, nil)

		tree := archive(script("return true +"))

		out, err := e.in.Install(ctx, nil, tree)
		require.NoError(t, err)

		assert.Equal(t, fomod.Failed, out.Result)
		assert.Same(t, tree, out.Tree)

		require.NotNil(t, out.Script)
		require.NotEmpty(t, out.Script.Diagnostics)
		assert.True(t, out.Script.Diagnostics[0].Line > 0)
	})

	t.Run("a failed write discards the transaction", func(t *testing.T) {
		root := t.TempDir()

		bad := &brokenAllocator{Extractor: hosttest.NewExtractor(root), dir: root}
		e := setup(t, bad)

		tree := archive(script(`fomod.PerformBasicInstall()
	return fomod.GenerateDataFile("Data/generated.txt", []byte("x"))`))

		out, err := e.in.Install(ctx, nil, tree)
		require.NoError(t, err)

		assert.Equal(t, fomod.Failed, out.Result)
		assert.Same(t, tree, out.Tree)
		assert.Nil(t, out.Tree.Find("Data/generated.txt"))

		require.NotNil(t, out.Script.Failure)
	})

	t.Run("requesting a manual install stops before the script", func(t *testing.T) {
		e := setup(t, nil)
		e.ui.Confirm = host.Confirmation{Choice: host.ConfirmManual}

		out, err := e.in.Install(ctx, nil, archive(script("return true")))
		require.NoError(t, err)

		assert.Equal(t, fomod.ManualRequested, out.Result)
		assert.Nil(t, out.Script)
	})

	t.Run("a manual request keeps the name the user typed", func(t *testing.T) {
		e := setup(t, nil)
		e.ui.Confirm = host.Confirmation{Choice: host.ConfirmManual, Name: "My Mod"}

		out, err := e.in.Install(ctx, NewGuess("archive", GuessFallback), archive(script("return true")))
		require.NoError(t, err)

		assert.Equal(t, fomod.ManualRequested, out.Result)
		require.NotNil(t, out.Name)
		assert.Equal(t, "My Mod", out.Name.Value())
		assert.Equal(t, GuessUser, out.Name.Quality())
	})

	t.Run("declining the confirmation cancels", func(t *testing.T) {
		e := setup(t, nil)
		e.ui.Confirm = host.Confirmation{Choice: host.ConfirmCancel}

		out, err := e.in.Install(ctx, nil, archive(script("return true")))
		require.NoError(t, err)

		assert.Equal(t, fomod.Canceled, out.Result)
	})

	t.Run("interrupted extraction cancels", func(t *testing.T) {
		e := setup(t, nil)
		e.ex.CancelAfter = 1

		out, err := e.in.Install(ctx, nil, archive(script("return true")))
		require.NoError(t, err)

		assert.Equal(t, fomod.Canceled, out.Result)
		assert.Empty(t, e.ui.Guesses)
	})

	t.Run("images are extracted once up front", func(t *testing.T) {
		e := setup(t, nil)

		tree := archive(script(`fomod.GetFileFromMod("Data/Textures/preview.PNG")
	return true`))

		out, err := e.in.Install(ctx, nil, tree)
		require.NoError(t, err)
		require.Equal(t, fomod.Success, out.Result)

		assert.Equal(t, 1, e.ex.Calls(tree.Find("Data/Textures/preview.PNG")))
		assert.Equal(t, 0, e.ex.Calls(tree.Find("Data/mod.esp")))
	})

	t.Run("manifest metadata feeds the name guess", func(t *testing.T) {
		e := setup(t, nil)
		e.ui.Confirm = host.Confirmation{Choice: host.ConfirmAccept, Name: "Renamed"}

		tree := archive(script("return true"))
		tree.AddFile("fomod/info.xml", false).SetOrigin(
			`<?xml version="1.0" encoding="UTF-8"?><fomod><Name>Sky Mod</Name><Id>1234</Id><Version>1.2</Version></fomod>`)

		out, err := e.in.Install(ctx, NewGuess("archive", GuessFallback), tree)
		require.NoError(t, err)
		require.Equal(t, fomod.Success, out.Result)

		require.Len(t, e.ui.Guesses, 1)
		assert.Equal(t, "Sky Mod", e.ui.Guesses[0].Name)
		assert.Equal(t, 1234, e.ui.Guesses[0].ID)
		assert.Equal(t, "1.2", e.ui.Guesses[0].Version)

		assert.Equal(t, "Renamed", out.Name.Value())
		assert.Equal(t, GuessUser, out.Name.Quality())
		assert.Equal(t, []string{"archive", "Sky Mod", "Renamed"}, out.Name.Variants())
	})

	t.Run("moved settings become part of the mod", func(t *testing.T) {
		e := setup(t, nil)
		e.ui.Review = host.SettingsMove

		tree := archive(script(`fomod.EditIni("Fallout.ini", "Display", "iSize W", "1920")
	return true`))

		out, err := e.in.Install(ctx, nil, tree)
		require.NoError(t, err)
		require.Equal(t, fomod.Success, out.Result)

		require.Len(t, e.ui.Reviews, 1)
		assert.Equal(t, []string{"Fallout.ini"}, e.ui.Reviews[0].Files)

		n := out.Tree.Find("INI Tweaks/Fallout.ini")
		require.NotNil(t, n)

		data, err := os.ReadFile(n.Origin())
		require.NoError(t, err)
		assert.Contains(t, string(data), "iSize W=1920")

		_, err = os.Stat(filepath.Join(e.docs, "Fallout.ini"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("applied settings are merged into the real file", func(t *testing.T) {
		e := setup(t, nil)
		e.ui.Review = host.SettingsApply

		tree := archive(script(`fomod.EditIni("Fallout.ini", "Display", "iSize W", "1920")
	return true`))

		out, err := e.in.Install(ctx, nil, tree)
		require.NoError(t, err)
		require.Equal(t, fomod.Success, out.Result)

		assert.Nil(t, out.Tree.Find("INI Tweaks"))

		data, err := os.ReadFile(filepath.Join(e.docs, "Fallout.ini"))
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(data), "1920"))
	})

	t.Run("discarded settings go nowhere", func(t *testing.T) {
		e := setup(t, nil)
		e.ui.Review = host.SettingsDiscard

		tree := archive(script(`fomod.EditIni("Fallout.ini", "Display", "iSize W", "1920")
	return true`))

		out, err := e.in.Install(ctx, nil, tree)
		require.NoError(t, err)
		assert.Equal(t, fomod.Success, out.Result)

		assert.Nil(t, out.Tree.Find("INI Tweaks"))
		_, err = os.Stat(filepath.Join(e.docs, "Fallout.ini"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("only one install runs at a time", func(t *testing.T) {
		e := setup(t, nil)

		require.True(t, e.in.acquire())
		defer e.in.release()

		_, err := e.in.Install(ctx, nil, archive(script("return true")))
		assert.Equal(t, ErrBusy, err)
	})
}

func TestGuess(t *testing.T) {
	t.Run("quality only goes up", func(t *testing.T) {
		g := NewGuess("file-name", GuessFallback)

		assert.True(t, g.Update("Meta Name", GuessMeta))
		assert.False(t, g.Update("Worse", GuessFallback))

		assert.Equal(t, "Meta Name", g.Value())
		assert.Equal(t, GuessMeta, g.Quality())
		assert.Equal(t, []string{"file-name", "Meta Name", "Worse"}, g.Variants())
	})

	t.Run("empty values are ignored", func(t *testing.T) {
		g := NewGuess("", GuessUser)

		assert.Equal(t, GuessInvalid, g.Quality())
		assert.Empty(t, g.Variants())
	})
}
