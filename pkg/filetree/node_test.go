package filetree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Node {
	root := New("archive")
	root.AddFile("fomod/script.go", false).SetOrigin("o:script")
	root.AddFile("Data/Meshes/armor.nif", false).SetOrigin("o:nif")
	root.AddFile("Data/readme.txt", false).SetOrigin("o:readme")
	root.AddFile("plugin.esp", false).SetOrigin("o:esp")
	return root
}

func names(nodes []*Node) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.Name())
	}
	return out
}

func TestFind(t *testing.T) {
	root := sample()

	t.Run("ignores case and slash style", func(t *testing.T) {
		n := root.Find(`data\MESHES\Armor.NIF`)
		require.NotNil(t, n)
		assert.Equal(t, "o:nif", n.Origin())
		assert.Equal(t, "Data/Meshes/armor.nif", n.Path())
	})

	t.Run("returns nil for missing entries", func(t *testing.T) {
		assert.Nil(t, root.Find("Data/missing.txt"))
		assert.Nil(t, root.Find("plugin.esp/child"))
	})

	t.Run("returns the node itself for an empty path", func(t *testing.T) {
		assert.Equal(t, root, root.Find(""))
	})

	t.Run("filters by kind", func(t *testing.T) {
		assert.NotNil(t, root.FindKind("data", KindDir))
		assert.Nil(t, root.FindKind("data", KindFile))
	})
}

func TestOrdering(t *testing.T) {
	root := New("r")
	root.AddFile("b.txt", false)
	root.AddFile("A.txt", false)
	root.AddDirectory("zdir")
	root.AddDirectory("Adir")

	assert.Equal(t, []string{"Adir", "zdir", "A.txt", "b.txt"}, names(root.Children()))
}

func TestAddFile(t *testing.T) {
	root := New("r")

	t.Run("creates missing parents", func(t *testing.T) {
		f := root.AddFile("a/b/c.ini", false)
		require.NotNil(t, f)
		assert.True(t, root.Find("a/b").IsDir())
	})

	t.Run("refuses to replace without overwrite", func(t *testing.T) {
		assert.Nil(t, root.AddFile("A/B/C.ini", false))
	})

	t.Run("replaces with overwrite", func(t *testing.T) {
		old := root.Find("a/b/c.ini")
		f := root.AddFile("a/b/c.ini", true)
		require.NotNil(t, f)
		assert.NotEqual(t, old, f)
		assert.Equal(t, 1, root.Find("a/b").Len())
	})

	t.Run("never replaces a directory", func(t *testing.T) {
		assert.Nil(t, root.AddFile("a/b", true))
	})
}

func TestCopy(t *testing.T) {
	t.Run("copies a subtree into a directory keeping its name", func(t *testing.T) {
		src := sample()
		dst := src.CreateOrphan()

		c := dst.Copy(src.Find("Data"), "", Merge)
		require.NotNil(t, c)
		assert.Equal(t, "o:nif", dst.Find("Data/Meshes/armor.nif").Origin())
		assert.Equal(t, "Data", c.Path())
	})

	t.Run("renames when the destination has no trailing slash", func(t *testing.T) {
		src := sample()
		dst := src.CreateOrphan()

		dst.Copy(src.Find("plugin.esp"), "sub/renamed.esp", Replace)
		assert.Equal(t, "o:esp", dst.Find("sub/renamed.esp").Origin())

		dst.Copy(src.Find("plugin.esp"), "into/", Replace)
		assert.NotNil(t, dst.Find("into/plugin.esp"))
	})

	t.Run("merge unions directories and overwrites files", func(t *testing.T) {
		src := sample()
		dst := src.CreateOrphan()
		dst.AddFile("Data/keep.txt", false).SetOrigin("o:keep")
		dst.AddFile("Data/readme.txt", false).SetOrigin("o:old")

		dst.Copy(src.Find("Data"), "", Merge)

		assert.Equal(t, "o:keep", dst.Find("Data/keep.txt").Origin())
		assert.Equal(t, "o:readme", dst.Find("Data/readme.txt").Origin())
		assert.NotNil(t, dst.Find("Data/Meshes/armor.nif"))
	})

	t.Run("replace drops the existing entry", func(t *testing.T) {
		src := sample()
		dst := src.CreateOrphan()
		dst.AddFile("Data/keep.txt", false)

		dst.Copy(src.Find("Data"), "", Replace)
		assert.Nil(t, dst.Find("Data/keep.txt"))
	})

	t.Run("fail if exists refuses", func(t *testing.T) {
		src := sample()
		dst := src.CreateOrphan()
		dst.AddFile("plugin.esp", false)

		assert.Nil(t, dst.Copy(src.Find("plugin.esp"), "", FailIfExists))
	})

	t.Run("fails only for a nil source", func(t *testing.T) {
		dst := New("r")
		assert.Nil(t, dst.Copy(nil, "x", Merge))
	})

	t.Run("never touches the source", func(t *testing.T) {
		src := sample()
		before := Signature(src)

		dst := src.CreateOrphan()
		c := dst.Copy(src.Find("Data"), "", Merge)
		c.AddFile("new.txt", false)

		assert.Equal(t, before, Signature(src))
		assert.NotEqual(t, before, Signature(dst))
	})
}

func TestWalk(t *testing.T) {
	root := sample()

	t.Run("visits in pre-order", func(t *testing.T) {
		var seen []string

		root.Walk("", func(parent string, n *Node) WalkAction {
			seen = append(seen, parent+"|"+n.Name())
			return Continue
		})

		assert.Equal(t, []string{
			"|Data", "Data|Meshes", "Data/Meshes|armor.nif", "Data|readme.txt",
			"|fomod", "fomod|script.go", "|plugin.esp",
		}, seen)
	})

	t.Run("can skip subtrees and stop", func(t *testing.T) {
		var seen []string

		root.Walk("", func(parent string, n *Node) WalkAction {
			if n.Name() == "Meshes" {
				return Skip
			}
			if n.Name() == "fomod" {
				return Stop
			}
			seen = append(seen, n.Name())
			return Continue
		})

		assert.Equal(t, []string{"Data", "readme.txt"}, seen)
	})

	t.Run("starts at a nested path", func(t *testing.T) {
		var seen []string

		root.Walk("data", func(_ string, n *Node) WalkAction {
			seen = append(seen, n.Name())
			return Continue
		})

		assert.Equal(t, []string{"Meshes", "armor.nif", "readme.txt"}, seen)
	})
}

func TestPaths(t *testing.T) {
	root := sample()
	data := root.Find("data")
	nif := root.Find("data/meshes/armor.nif")

	assert.Equal(t, "Meshes/armor.nif", nif.PathFrom(data))
	assert.Equal(t, "nif", nif.Suffix())
	assert.True(t, data.IsAncestorOf(nif))
	assert.False(t, nif.IsAncestorOf(data))
	assert.True(t, IsMetadataEntry(root, root.Find("FOMOD")))
	assert.False(t, IsMetadataEntry(root, root.Find("fomod/script.go")))
}

func TestFromDir(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fomod"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fomod", "script.go"), []byte("package main"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.esp"), []byte("x"), 0644))

	root, err := FromDir(dir)
	require.NoError(t, err)

	f := root.Find("FOMOD/script.go")
	require.NotNil(t, f)
	assert.Equal(t, filepath.Join(dir, "fomod", "script.go"), f.Origin())
	assert.Len(t, root.Files(), 2)
}
