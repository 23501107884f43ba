package cellgrid

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styler maps a cell attribute to a terminal style.
type Styler interface {
	Style(Attr) lipgloss.Style
}

// Flush renders the grid as ANSI text, one styled run per attribute change.
func Flush(g *Grid, s Styler) string {
	var out strings.Builder
	var run strings.Builder
	for y := 0; y < g.h; y++ {
		if y > 0 {
			out.WriteByte('\n')
		}
		cur := Attr{}
		run.Reset()
		emit := func() {
			if run.Len() == 0 {
				return
			}
			if cur == (Attr{}) {
				out.WriteString(run.String())
			} else {
				out.WriteString(s.Style(cur).Render(run.String()))
			}
			run.Reset()
		}
		for _, c := range g.cells[y*g.w : (y+1)*g.w] {
			if c.Width == 0 {
				continue
			}
			if c.Attr != cur {
				emit()
				cur = c.Attr
			}
			run.WriteString(c.Glyph)
		}
		emit()
	}
	return out.String()
}
