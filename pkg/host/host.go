// Package host declares the services an installation borrows from its
// surroundings: extraction of archive content, user interaction, and
// read-only facts about the managed game.
package host

import (
	"context"
	"fmt"

	"lab47.dev/fomod/pkg/filetree"
	"lab47.dev/fomod/pkg/fomod"
)

// Extractor materializes tree entries as temporary files. It is the only
// owner of temporary paths.
type Extractor interface {
	// ExtractFile returns the temporary path for a source entry, or ""
	// if it could not be extracted.
	ExtractFile(ctx context.Context, node *filetree.Node) (string, error)

	// ExtractFiles extracts a batch and returns paths in request order. A
	// shorter result means the user cancelled part way.
	ExtractFiles(ctx context.Context, nodes []*filetree.Node) ([]string, error)

	// CreateFile allocates a fresh temporary file backing a new
	// destination entry.
	CreateFile(node *filetree.Node) (string, error)
}

type ConfirmChoice int

const (
	ConfirmAccept ConfirmChoice = iota
	ConfirmManual
	ConfirmCancel
)

// Guess is a name suggestion offered to the user, together with the other
// names that were considered.
type Guess struct {
	Name     string
	Variants []string
	ID       int
	Version  string
}

type Confirmation struct {
	Choice ConfirmChoice
	Name   string
}

type MessageBox struct {
	Message string
	Title   string
	Detail  string
	Buttons fomod.MessageBoxButtons
	Icon    fomod.MessageBoxIcon
}

type Selection struct {
	Title    string
	Options  []fomod.SelectOption
	Multi    bool
	Previews bool
}

type PostInstallChoice int

const (
	SettingsApply PostInstallChoice = iota
	SettingsDiscard
	SettingsMove
)

func (c PostInstallChoice) String() string {
	switch c {
	case SettingsApply:
		return "apply"
	case SettingsDiscard:
		return "discard"
	case SettingsMove:
		return "move"
	default:
		return fmt.Sprintf("PostInstallChoice(%d)", int(c))
	}
}

// SettingsReview lists the staged configuration edits, one rendered
// overlay per file name.
type SettingsReview struct {
	Files []string
	Text  map[string]string
}

// Interaction presents modal prompts. Every call blocks until the user
// answers.
type Interaction interface {
	ConfirmName(ctx context.Context, guess Guess) (Confirmation, error)
	MessageBox(ctx context.Context, box MessageBox) fomod.DialogResult
	Select(ctx context.Context, sel Selection) ([]int, bool)
	ReviewSettings(ctx context.Context, review SettingsReview) PostInstallChoice
}

// GameData is a read-only view of files already installed into the game.
// Folders and results are relative to the data root.
type GameData interface {
	FindFiles(folder string, match func(name string) bool) []string
	ListDirectories(folder string) []string

	// Absolute turns a relative data path into a readable location.
	Absolute(path string) string
}

// Organizer answers questions about the managed game installation.
type Organizer interface {
	AppVersion() fomod.Version
	GameVersion() fomod.Version
	ScriptExtenderVersion() (fomod.Version, bool)

	PluginNames() []string
	PluginActive(name string) bool

	IniFiles() []string
	ProfileDir() string
	DocumentsDir() string
	LocalSettings() bool

	Data() GameData
}
