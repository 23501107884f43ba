package theme

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/glabrego/canto-ng/internal/cellgrid"
)

// MaxPair is the highest addressable color pair.
const MaxPair = 256

// Pair is a foreground/background color index pair; -1 means the terminal
// default.
type Pair struct {
	FG int
	BG int
}

// Palette resolves pair numbers and color names from the mirrored "color"
// config section and turns cell attributes into lipgloss styles.
type Palette struct {
	pairs map[int]Pair
	names map[string]int
	defFG int
	defBG int
}

// DefaultPairs are the pair colors installed by a fresh config and restored
// by the version 1 migration.
func DefaultPairs() map[int]Pair {
	pairs := map[int]Pair{
		1: {FG: -1, BG: -1},
		2: {FG: 4, BG: -1},
		3: {FG: 3, BG: -1},
		4: {FG: 2, BG: -1},
		5: {FG: 5, BG: -1},
		6: {FG: 7, BG: 1},
		7: {FG: 7, BG: -1},
		8: {FG: 1, BG: -1},
	}
	for n := 9; n <= MaxPair; n++ {
		pairs[n] = Pair{FG: n - 1, BG: -1}
	}
	return pairs
}

// DefaultNames maps symbolic colors to pair numbers.
func DefaultNames() map[string]int {
	return map[string]int{
		"unread":            2,
		"read":              3,
		"reader_link":       5,
		"reader_image_link": 4,
		"reader_quote":      6,
		"reader_italics":    6,
		"marked":            8,
		"error":             6,
		"pending":           5,
		"enum_hints":        1,
	}
}

func Default() *Palette {
	return &Palette{pairs: DefaultPairs(), names: DefaultNames(), defFG: -1, defBG: -1}
}

// FromConfig builds a palette from a validated color section. Entries the
// section lacks keep their defaults.
func FromConfig(section map[string]any) *Palette {
	p := Default()
	for key, raw := range section {
		switch key {
		case "deffg":
			if v, ok := colorIndex(raw); ok {
				p.defFG = v
			}
			continue
		case "defbg":
			if v, ok := colorIndex(raw); ok {
				p.defBG = v
			}
			continue
		}
		if n, err := strconv.Atoi(key); err == nil {
			if n < 1 || n > MaxPair {
				continue
			}
			if pair, ok := parsePair(raw); ok {
				p.pairs[n] = pair
			}
			continue
		}
		if v, ok := colorIndex(raw); ok {
			p.names[key] = v
		}
	}
	return p
}

// Named returns the pair number for a symbolic color.
func (p *Palette) Named(name string) (int, bool) {
	n, ok := p.names[name]
	return n, ok
}

func (p *Palette) Pair(n int) Pair {
	pair, ok := p.pairs[n]
	if !ok {
		return Pair{FG: -1, BG: -1}
	}
	return pair
}

func (p *Palette) Style(a cellgrid.Attr) lipgloss.Style {
	st := lipgloss.NewStyle()
	if a.Pair > 0 {
		pair := p.Pair(a.Pair)
		fg, bg := pair.FG, pair.BG
		if fg < 0 {
			fg = p.defFG
		}
		if bg < 0 {
			bg = p.defBG
		}
		if fg >= 0 {
			st = st.Foreground(lipgloss.Color(strconv.Itoa(fg)))
		}
		if bg >= 0 {
			st = st.Background(lipgloss.Color(strconv.Itoa(bg)))
		}
	}
	if a.Bold || a.Standout {
		st = st.Bold(true)
	}
	if a.Dim {
		st = st.Faint(true)
	}
	if a.Reverse || a.Standout {
		st = st.Reverse(true)
	}
	if a.Underline {
		st = st.Underline(true)
	}
	return st
}

func parsePair(raw any) (Pair, bool) {
	if v, ok := colorIndex(raw); ok {
		return Pair{FG: v, BG: -1}, true
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return Pair{}, false
	}
	pair := Pair{FG: -1, BG: -1}
	found := false
	if v, ok := colorIndex(m["fg"]); ok {
		pair.FG, found = v, true
	}
	if v, ok := colorIndex(m["bg"]); ok {
		pair.BG, found = v, true
	}
	return pair, found
}

func colorIndex(raw any) (int, bool) {
	var v int
	switch n := raw.(type) {
	case int:
		v = n
	case int64:
		v = int(n)
	case float64:
		v = int(n)
	default:
		return 0, false
	}
	if v < -1 || v > 255 {
		return 0, false
	}
	return v, true
}
