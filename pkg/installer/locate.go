package installer

import (
	"strings"

	"github.com/woozymasta/pathrules"
	"lab47.dev/fomod/pkg/filetree"
	"lab47.dev/fomod/pkg/fomod"
)

const (
	ScriptSuffix = "go"
	ManifestName = "info.xml"
)

var imagePatterns = []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.bmp"}

// FindMetadataDir returns the metadata directory, descending through
// wrapper directories while each level holds exactly one directory.
func FindMetadataDir(tree *filetree.Node) *filetree.Node {
	for cur := tree; cur != nil; {
		if meta := cur.FindKind(fomod.MetadataDir, filetree.KindDir); meta != nil {
			return meta
		}

		var only *filetree.Node

		for _, c := range cur.Children() {
			if !c.IsDir() {
				continue
			}

			if only != nil {
				return nil
			}

			only = c
		}

		cur = only
	}

	return nil
}

// FindScript returns the first script file in the metadata directory.
func FindScript(tree *filetree.Node) *filetree.Node {
	meta := FindMetadataDir(tree)
	if meta == nil {
		return nil
	}

	for _, c := range meta.Children() {
		if !c.IsDir() && c.Suffix() == ScriptSuffix {
			return c
		}
	}

	return nil
}

func FindManifest(tree *filetree.Node) *filetree.Node {
	meta := FindMetadataDir(tree)
	if meta == nil {
		return nil
	}

	return meta.FindKind(ManifestName, filetree.KindFile)
}

// IsArchiveSupported reports whether tree carries an install script.
func IsArchiveSupported(tree *filetree.Node) bool {
	return FindScript(tree) != nil
}

func imageMatcher() (*pathrules.Matcher, error) {
	var rules []pathrules.Rule

	for _, p := range imagePatterns {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: p})
	}

	return pathrules.NewMatcher(rules, pathrules.MatcherOptions{
		CaseInsensitive: true,
		DefaultAction:   pathrules.ActionExclude,
	})
}

// extractionSet lists what must be on disk before the script runs: the
// script and manifest, every image in the archive and everything under
// the metadata directory. Each entry appears once.
func extractionSet(tree, meta, script, manifest *filetree.Node) ([]*filetree.Node, error) {
	m, err := imageMatcher()
	if err != nil {
		return nil, err
	}

	var (
		out  []*filetree.Node
		seen = make(map[*filetree.Node]bool)
	)

	add := func(n *filetree.Node) {
		if n == nil || n.IsDir() || seen[n] {
			return
		}

		seen[n] = true
		out = append(out, n)
	}

	add(script)
	add(manifest)

	tree.Walk("", func(parent string, n *filetree.Node) filetree.WalkAction {
		if !n.IsDir() && m.Included(strings.TrimPrefix(n.PathFrom(tree), "/"), false) {
			add(n)
		}

		return filetree.Continue
	})

	for _, f := range meta.Files() {
		add(f)
	}

	return out, nil
}
