package local

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/morikuni/aec"
	"lab47.dev/fomod/pkg/fomod"
	"lab47.dev/fomod/pkg/host"
)

// Terminal asks its questions on a line oriented terminal. In Yes mode
// nothing is read: confirmations are accepted, dialogs take their first
// button, selections take the first option and staged settings are moved
// into the mod.
type Terminal struct {
	Yes   bool
	Color bool

	in  *bufio.Reader
	out io.Writer
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

func (t *Terminal) style(a aec.ANSI, s string) string {
	if !t.Color {
		return s
	}

	return a.Apply(s)
}

func (t *Terminal) printf(format string, args ...interface{}) {
	fmt.Fprintf(t.out, format, args...)
}

func (t *Terminal) ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.printf("%s ", t.style(aec.Bold, prompt))

	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}

	return strings.TrimSpace(line), nil
}

func (t *Terminal) ConfirmName(ctx context.Context, g host.Guess) (host.Confirmation, error) {
	t.printf("%s %s\n", t.style(aec.GreenF, "Installing"), t.style(aec.Bold, g.Name))

	if g.Version != "" {
		t.printf("  version: %s\n", g.Version)
	}

	if g.ID >= 0 {
		t.printf("  id: %d\n", g.ID)
	}

	if len(g.Variants) > 1 {
		t.printf("  also known as: %s\n", strings.Join(g.Variants, ", "))
	}

	if t.Yes {
		return host.Confirmation{Choice: host.ConfirmAccept, Name: g.Name}, nil
	}

	name, err := t.ask(ctx, fmt.Sprintf("Name [%s]:", g.Name))
	if err != nil {
		return host.Confirmation{Choice: host.ConfirmCancel}, err
	}

	if name == "" {
		name = g.Name
	}

	for {
		ans, err := t.ask(ctx, "Run the install script? [Y]es, [m]anual, [n]o:")
		if err != nil {
			return host.Confirmation{Choice: host.ConfirmCancel}, err
		}

		switch strings.ToLower(ans) {
		case "", "y", "yes":
			return host.Confirmation{Choice: host.ConfirmAccept, Name: name}, nil
		case "m", "manual":
			return host.Confirmation{Choice: host.ConfirmManual, Name: name}, nil
		case "n", "no":
			return host.Confirmation{Choice: host.ConfirmCancel, Name: name}, nil
		}
	}
}

func iconStyle(icon fomod.MessageBoxIcon) (aec.ANSI, string) {
	switch icon {
	case fomod.IconError:
		return aec.RedF, "error"
	case fomod.IconWarning:
		return aec.YellowF, "warning"
	case fomod.IconQuestion:
		return aec.CyanF, "question"
	default:
		return aec.BlueF, "info"
	}
}

func (t *Terminal) MessageBox(ctx context.Context, box host.MessageBox) fomod.DialogResult {
	color, label := iconStyle(box.Icon)

	t.printf("%s %s\n", t.style(color, "["+label+"]"), t.style(aec.Bold, box.Title))
	t.printf("%s\n", box.Message)

	if box.Detail != "" {
		t.printf("%s\n", t.style(aec.Faint, box.Detail))
	}

	choices := box.Buttons.Choices()

	if t.Yes {
		return choices[0]
	}

	var names []string
	for i, c := range choices {
		names = append(names, fmt.Sprintf("%d) %s", i+1, c))
	}

	for {
		ans, err := t.ask(ctx, strings.Join(names, "  ")+":")
		if err != nil {
			return fomod.DialogNone
		}

		if ans == "" && len(choices) == 1 {
			return choices[0]
		}

		if n, err := strconv.Atoi(ans); err == nil && n >= 1 && n <= len(choices) {
			return choices[n-1]
		}

		for _, c := range choices {
			if strings.EqualFold(ans, c.String()) {
				return c
			}
		}
	}
}

func parseIndices(ans string, max int, multi bool) ([]int, bool) {
	var out []int

	for _, f := range strings.FieldsFunc(ans, func(r rune) bool { return r == ',' || r == ' ' }) {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 || n > max {
			return nil, false
		}

		out = append(out, n-1)
	}

	if len(out) == 0 || (!multi && len(out) > 1) {
		return nil, false
	}

	return out, true
}

func (t *Terminal) Select(ctx context.Context, sel host.Selection) ([]int, bool) {
	t.printf("%s\n", t.style(aec.Bold, sel.Title))

	for i, o := range sel.Options {
		t.printf("  %d) %s\n", i+1, o.Item)

		if o.Desc != "" {
			t.printf("     %s\n", t.style(aec.Faint, o.Desc))
		}

		if sel.Previews && o.Preview != "" {
			t.printf("     preview: %s\n", o.Preview)
		}
	}

	if len(sel.Options) == 0 {
		return nil, false
	}

	if t.Yes {
		return []int{0}, true
	}

	prompt := "Choose one (empty cancels):"
	if sel.Multi {
		prompt = "Choose, separated by commas (empty cancels):"
	}

	for {
		ans, err := t.ask(ctx, prompt)
		if err != nil || ans == "" {
			return nil, false
		}

		if idx, ok := parseIndices(ans, len(sel.Options), sel.Multi); ok {
			return idx, true
		}
	}
}

func (t *Terminal) ReviewSettings(ctx context.Context, r host.SettingsReview) host.PostInstallChoice {
	t.printf("%s\n", t.style(aec.Bold, "The script changed these settings:"))

	for _, f := range r.Files {
		t.printf("%s\n%s\n", t.style(aec.Underline, f), r.Text[f])
	}

	if t.Yes {
		return host.SettingsMove
	}

	for {
		ans, err := t.ask(ctx, "[a]pply to the game, [m]ove into the mod, [d]iscard:")
		if err != nil {
			return host.SettingsDiscard
		}

		switch strings.ToLower(ans) {
		case "a", "apply":
			return host.SettingsApply
		case "m", "move":
			return host.SettingsMove
		case "d", "discard":
			return host.SettingsDiscard
		}
	}
}
