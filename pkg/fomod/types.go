package fomod

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// ImportPath is the path scripts import to reach the API surface.
	ImportPath = "fomod"

	// MetadataDir is the reserved archive directory holding the script
	// and its manifest. It is never installed as data.
	MetadataDir = "fomod"

	// APIVersion is reported to scripts as the mod manager version.
	APIVersion = "0.12.6"
)

type Result int

const (
	Success Result = iota
	Canceled
	Failed
	NotAttempted
	ManualRequested
)

var resultNames = map[Result]string{
	Success:         "RESULT_SUCCESS",
	Canceled:        "RESULT_CANCELED",
	Failed:          "RESULT_FAILED",
	NotAttempted:    "RESULT_NOTATTEMPTED",
	ManualRequested: "RESULT_MANUALREQUESTED",
}

func (r Result) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}

	return fmt.Sprintf("RESULT_UNKNOWN(%d)", int(r))
}

// BaseScript is the contract every entry point type embeds.
type BaseScript struct{}

type SelectOption struct {
	Item    string
	Preview string
	Desc    string
}

type MessageBoxButtons int

const (
	ButtonsOK MessageBoxButtons = iota
	ButtonsOKCancel
	ButtonsAbortRetryIgnore
	ButtonsYesNoCancel
	ButtonsYesNo
	ButtonsRetryCancel
)

type MessageBoxIcon int

const (
	IconNone MessageBoxIcon = iota
	IconError
	IconQuestion
	IconWarning
	IconInformation
)

type DialogResult int

const (
	DialogNone DialogResult = iota
	DialogOK
	DialogCancel
	DialogAbort
	DialogRetry
	DialogIgnore
	DialogYes
	DialogNo
)

var dialogNames = []string{"None", "OK", "Cancel", "Abort", "Retry", "Ignore", "Yes", "No"}

func (d DialogResult) String() string {
	if int(d) >= 0 && int(d) < len(dialogNames) {
		return dialogNames[d]
	}

	return "Unknown"
}

// Choices returns the buttons shown for a button set, in display order.
func (b MessageBoxButtons) Choices() []DialogResult {
	switch b {
	case ButtonsOKCancel:
		return []DialogResult{DialogOK, DialogCancel}
	case ButtonsAbortRetryIgnore:
		return []DialogResult{DialogAbort, DialogRetry, DialogIgnore}
	case ButtonsYesNoCancel:
		return []DialogResult{DialogYes, DialogNo, DialogCancel}
	case ButtonsYesNo:
		return []DialogResult{DialogYes, DialogNo}
	case ButtonsRetryCancel:
		return []DialogResult{DialogRetry, DialogCancel}
	default:
		return []DialogResult{DialogOK}
	}
}

// Version is a four part dotted version as reported by games and
// script extenders. Missing parts are zero.
type Version struct {
	Major, Minor, Build, Revision int
}

// ParseVersion reads up to four dot separated numeric parts. Parts that
// fail to parse stop the scan and are left at zero.
func ParseVersion(s string) Version {
	var (
		v     Version
		parts = []*int{&v.Major, &v.Minor, &v.Build, &v.Revision}
	)

	for i, seg := range strings.SplitN(strings.TrimSpace(s), ".", 4) {
		n, err := strconv.Atoi(strings.TrimSpace(seg))
		if err != nil {
			break
		}

		*parts[i] = n
	}

	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

func (v Version) IsZero() bool {
	return v == Version{}
}

func (v Version) Compare(o Version) int {
	a := []int{v.Major, v.Minor, v.Build, v.Revision}
	b := []int{o.Major, o.Minor, o.Build, o.Revision}

	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}

	return 0
}
