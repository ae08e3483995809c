package installer

import "strings"

// Quality ranks where a guessed value came from.
type Quality int

const (
	GuessInvalid Quality = iota
	GuessFallback
	GuessMeta
	GuessUser
)

func (q Quality) String() string {
	switch q {
	case GuessFallback:
		return "fallback"
	case GuessMeta:
		return "meta"
	case GuessUser:
		return "user"
	default:
		return "invalid"
	}
}

// Guess is a value whose quality only ever goes up. Every non-empty value
// offered is kept as a variant.
type Guess struct {
	value    string
	quality  Quality
	variants []string
}

func NewGuess(value string, q Quality) *Guess {
	g := &Guess{}
	g.Update(value, q)
	return g
}

func (g *Guess) Value() string      { return g.value }
func (g *Guess) Quality() Quality   { return g.quality }
func (g *Guess) Variants() []string { return append([]string(nil), g.variants...) }

// Update replaces the value when q is at least the current quality and
// reports whether it did.
func (g *Guess) Update(value string, q Quality) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}

	found := false
	for _, v := range g.variants {
		if v == value {
			found = true
			break
		}
	}

	if !found {
		g.variants = append(g.variants, value)
	}

	if q < g.quality {
		return false
	}

	g.value = value
	g.quality = q

	return true
}
