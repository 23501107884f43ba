package view

import (
	"github.com/glabrego/canto-ng/internal/cellgrid"
	"github.com/glabrego/canto-ng/internal/tui/theme"
)

// countLines is theme.Lines with a separate left border for continuation
// lines.
func (e *Env) countLines(s string, width int, first, cont, right string) int {
	if width <= 0 {
		return 0
	}
	probe := cellgrid.New(1, width)
	r := e.renderer(probe)
	left := first
	for n := 1; ; n++ {
		probe.Move(0, 0)
		rest := r.Line(s, left, right)
		if rest == "" || rest == s {
			return n
		}
		s, left = rest, cont
	}
}

// paint renders s into a fresh grid. limit caps the number of rows, 0 means
// as many as s needs; more reports that text was cut off.
func (e *Env) paint(s string, width int, first, cont, right string, limit int) (g *cellgrid.Grid, more bool) {
	n := e.countLines(s, width, first, cont, right)
	if limit > 0 && n > limit {
		n, more = limit, true
	}
	g = cellgrid.New(n, width)
	r := e.renderer(g)
	left := first
	for i := 0; i < n; i++ {
		s = r.Line(s, left, right)
		left = cont
		if s == "" {
			break
		}
	}
	r.Reset()
	return g, more
}

// ellipsis marks the last row of g as cut short, just inside the right
// border.
func ellipsis(g *cellgrid.Grid, right string, measure cellgrid.Measurer) {
	y := g.Height() - 1
	x := g.Width() - theme.Len(right, measure) - 3
	if y < 0 || x < 0 {
		return
	}
	g.Attr = g.At(y, x).Attr
	g.Move(y, x)
	g.PutString("...", measure)
	g.Attr = cellgrid.Attr{}
}

// rule renders a one-row horizontal border such as a tag's top edge.
func (e *Env) rule(width int, left, side, right string) *cellgrid.Grid {
	g := cellgrid.New(1, width)
	e.renderer(g).Line("%B%1"+theme.HLine(left, side, right, width)+"%0%b", "", "")
	return g
}

// blit copies src onto dst with its top at row; rows outside dst are
// clipped.
func blit(dst, src *cellgrid.Grid, row int) {
	cellgrid.Blit(dst, src, 0, 0, row, 0, src.Height(), min(src.Width(), dst.Width()))
}
