// Package filetree models archive contents and install layouts as an
// in-memory tree. Lookups are case-insensitive and accept either slash
// style, matching how game data directories behave on Windows.
package filetree

import (
	"path"
	"sort"
	"strings"
)

type Kind int

const (
	KindFile Kind = iota
	KindDir
)

func (k Kind) String() string {
	if k == KindDir {
		return "dir"
	}

	return "file"
}

// Policy controls how Copy treats an entry already present at the
// destination.
type Policy int

const (
	// Replace drops the existing entry and inserts a fresh copy.
	Replace Policy = iota

	// Merge unions directories recursively. Files at the same path are
	// overwritten, siblings already present are retained.
	Merge

	// FailIfExists refuses the copy when anything is at the destination.
	FailIfExists
)

// Node is either a file or a directory. Directories keep their children
// sorted directories-first, then by case-insensitive name. Files carry an
// opaque origin that the extraction layer uses to locate content.
type Node struct {
	name   string
	parent *Node
	kind   Kind

	children []*Node
	origin   string
}

// New creates an empty root directory.
func New(name string) *Node {
	return &Node{name: name, kind: KindDir}
}

// NewFile creates a detached file node.
func NewFile(name, origin string) *Node {
	return &Node{name: name, kind: KindFile, origin: origin}
}

func (n *Node) Name() string   { return n.name }
func (n *Node) Kind() Kind     { return n.kind }
func (n *Node) IsDir() bool    { return n.kind == KindDir }
func (n *Node) Parent() *Node  { return n.parent }
func (n *Node) Origin() string { return n.origin }
func (n *Node) Len() int       { return len(n.children) }

func (n *Node) SetOrigin(origin string) {
	n.origin = origin
}

// Children returns a copy of the ordered child set.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Suffix returns the lower cased extension of the node name, without the
// leading dot.
func (n *Node) Suffix() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(n.name)), ".")
}

// Root walks up to the top of the tree.
func (n *Node) Root() *Node {
	for n.parent != nil {
		n = n.parent
	}

	return n
}

// Path returns the slash separated path from the root, excluding the
// root's own name.
func (n *Node) Path() string {
	return n.PathFrom(nil)
}

// PathFrom returns the path relative to anc. If anc is not an ancestor the
// path from the root is returned.
func (n *Node) PathFrom(anc *Node) string {
	var parts []string

	for cur := n; cur != nil && cur != anc && cur.parent != nil; cur = cur.parent {
		parts = append(parts, cur.name)
	}

	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}

	return strings.Join(parts, "/")
}

// IsAncestorOf reports whether n is a strict ancestor of o.
func (n *Node) IsAncestorOf(o *Node) bool {
	for cur := o.parent; cur != nil; cur = cur.parent {
		if cur == n {
			return true
		}
	}

	return false
}

func splitPath(p string) []string {
	p = strings.ReplaceAll(p, "\\", "/")

	var parts []string

	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." {
			continue
		}

		parts = append(parts, seg)
	}

	return parts
}

func lessNodes(a, b *Node) bool {
	if a.kind != b.kind {
		return a.kind == KindDir
	}

	return strings.ToLower(a.name) < strings.ToLower(b.name)
}

// Child returns the direct child with the given name, ignoring case.
func (n *Node) Child(name string) *Node {
	for _, c := range n.children {
		if strings.EqualFold(c.name, name) {
			return c
		}
	}

	return nil
}

func (n *Node) insert(c *Node) {
	c.parent = n

	idx := sort.Search(len(n.children), func(i int) bool {
		return !lessNodes(n.children[i], c)
	})

	n.children = append(n.children, nil)
	copy(n.children[idx+1:], n.children[idx:])
	n.children[idx] = c
}

func (n *Node) remove(c *Node) {
	for i, o := range n.children {
		if o == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			c.parent = nil
			return
		}
	}
}

// Find resolves path relative to n. An empty path returns n. A nil result
// means the entry does not exist.
func (n *Node) Find(p string) *Node {
	cur := n

	for _, seg := range splitPath(p) {
		if cur.kind != KindDir {
			return nil
		}

		cur = cur.Child(seg)
		if cur == nil {
			return nil
		}
	}

	return cur
}

// FindKind is Find restricted to entries of the given kind.
func (n *Node) FindKind(p string, kind Kind) *Node {
	if f := n.Find(p); f != nil && f.kind == kind {
		return f
	}

	return nil
}

func (n *Node) mkdirs(parts []string) *Node {
	cur := n

	for _, seg := range parts {
		next := cur.Child(seg)

		switch {
		case next == nil:
			next = &Node{name: seg, kind: KindDir}
			cur.insert(next)
		case next.kind != KindDir:
			return nil
		}

		cur = next
	}

	return cur
}

// AddDirectory creates the directory at p along with any missing parents.
// It returns nil if a file is in the way.
func (n *Node) AddDirectory(p string) *Node {
	if n.kind != KindDir {
		return nil
	}

	return n.mkdirs(splitPath(p))
}

// AddFile creates an empty file at p, creating parent directories as
// needed. An existing file is replaced only when overwrite is set. A
// directory is never replaced.
func (n *Node) AddFile(p string, overwrite bool) *Node {
	parts := splitPath(p)
	if len(parts) == 0 || n.kind != KindDir {
		return nil
	}

	dir := n.mkdirs(parts[:len(parts)-1])
	if dir == nil {
		return nil
	}

	name := parts[len(parts)-1]

	if existing := dir.Child(name); existing != nil {
		if !overwrite || existing.kind == KindDir {
			return nil
		}

		dir.remove(existing)
	}

	f := &Node{name: name, kind: KindFile}
	dir.insert(f)

	return f
}

func (n *Node) clone(name string) *Node {
	c := &Node{name: name, kind: n.kind, origin: n.origin}

	for _, child := range n.children {
		cc := child.clone(child.name)
		cc.parent = c
		c.children = append(c.children, cc)
	}

	return c
}

// CreateOrphan returns an empty directory with the same name as n, not
// attached to any tree.
func (n *Node) CreateOrphan() *Node {
	return New(n.name)
}

// Copy copies src, a file or an entire subtree, into the tree rooted at n.
// A destPath that is empty or ends in a slash names the directory to copy
// into, keeping src's name. Otherwise the last segment is the new name.
// Missing intermediate directories are created. The copied node is
// returned, or nil when src is nil or the policy refuses the copy.
func (n *Node) Copy(src *Node, destPath string, policy Policy) *Node {
	if src == nil || n.kind != KindDir {
		return nil
	}

	parts := splitPath(destPath)

	name := src.name
	intoDir := destPath == "" || strings.HasSuffix(destPath, "/") || strings.HasSuffix(destPath, "\\")

	if !intoDir && len(parts) > 0 {
		name = parts[len(parts)-1]
		parts = parts[:len(parts)-1]
	}

	dir := n.mkdirs(parts)
	if dir == nil {
		return nil
	}

	existing := dir.Child(name)
	if existing != nil {
		switch {
		case policy == FailIfExists:
			return nil
		case policy == Merge && existing.kind == KindDir && src.kind == KindDir:
			existing.merge(src)
			return existing
		default:
			dir.remove(existing)
		}
	}

	c := src.clone(name)
	dir.insert(c)

	return c
}

func (n *Node) merge(src *Node) {
	for _, child := range src.children {
		existing := n.Child(child.name)

		if existing != nil && existing.kind == KindDir && child.kind == KindDir {
			existing.merge(child)
			continue
		}

		if existing != nil {
			n.remove(existing)
		}

		n.insert(child.clone(child.name))
	}
}

type WalkAction int

const (
	Continue WalkAction = iota
	Skip
	Stop
)

// Walk visits every descendant of the entry at start depth-first in
// pre-order. The visitor receives the path of the parent, relative to
// start, and the node. Each call is an independent traversal.
func (n *Node) Walk(start string, fn func(parent string, node *Node) WalkAction) {
	base := n.Find(start)
	if base == nil {
		return
	}

	base.walk("", fn)
}

func (n *Node) walk(prefix string, fn func(string, *Node) WalkAction) bool {
	for _, c := range n.Children() {
		switch fn(prefix, c) {
		case Stop:
			return false
		case Skip:
			continue
		}

		if c.kind == KindDir {
			if !c.walk(path.Join(prefix, c.name), fn) {
				return false
			}
		}
	}

	return true
}

// Files returns every file below n in walk order.
func (n *Node) Files() []*Node {
	var out []*Node

	n.walk("", func(_ string, c *Node) WalkAction {
		if c.kind == KindFile {
			out = append(out, c)
		}

		return Continue
	})

	return out
}
