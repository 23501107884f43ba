package cellgrid

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Attr is the display attribute of one cell. Pair 0 is the terminal default.
type Attr struct {
	Pair      int
	Bold      bool
	Dim       bool
	Reverse   bool
	Standout  bool
	Underline bool
}

// Cell holds one grapheme. The right half of a wide glyph is a continuation
// cell with Width 0 and an empty Glyph.
type Cell struct {
	Glyph string
	Width int
	Attr  Attr
}

var blank = Cell{Glyph: " ", Width: 1}

// Measurer reports the display width of a grapheme cluster.
type Measurer interface {
	Width(glyph string) int
}

type RuneWidth struct{}

func (RuneWidth) Width(glyph string) int {
	return runewidth.StringWidth(glyph)
}

// Grid is a fixed-size cell buffer with a write cursor.
type Grid struct {
	h, w  int
	cells []Cell
	y, x  int
	Attr  Attr
}

func New(h, w int) *Grid {
	if h < 0 {
		h = 0
	}
	if w < 0 {
		w = 0
	}
	g := &Grid{h: h, w: w, cells: make([]Cell, h*w)}
	g.Clear()
	return g
}

func (g *Grid) Height() int { return g.h }
func (g *Grid) Width() int  { return g.w }

func (g *Grid) Cursor() (int, int) { return g.y, g.x }

func (g *Grid) Move(y, x int) {
	g.y, g.x = clamp(y, 0, g.h), clamp(x, 0, g.w)
}

func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = blank
	}
	g.y, g.x = 0, 0
}

// ClearToEOL blanks the rest of the cursor row without moving the cursor.
func (g *Grid) ClearToEOL() {
	if g.y >= g.h {
		return
	}
	for x := g.x; x < g.w; x++ {
		g.cells[g.y*g.w+x] = blank
	}
}

func (g *Grid) At(y, x int) Cell {
	if y < 0 || y >= g.h || x < 0 || x >= g.w {
		return Cell{}
	}
	return g.cells[y*g.w+x]
}

// Remaining is the number of free cells right of the cursor.
func (g *Grid) Remaining() int {
	if g.y >= g.h {
		return 0
	}
	return g.w - g.x
}

// Put writes glyph at the cursor with the grid's current Attr. It reports
// false, writing nothing, when the glyph does not fit on the row.
func (g *Grid) Put(glyph string, width int) bool {
	if width <= 0 || width > 2 {
		return false
	}
	if g.y >= g.h || g.x+width > g.w {
		return false
	}
	i := g.y*g.w + g.x
	g.cells[i] = Cell{Glyph: glyph, Width: width, Attr: g.Attr}
	if width == 2 {
		g.cells[i+1] = Cell{Attr: g.Attr}
	}
	g.x += width
	return true
}

// PutString writes s cell by cell and returns how many cells it used.
func (g *Grid) PutString(s string, m Measurer) int {
	used := 0
	for _, r := range s {
		glyph := string(r)
		w := m.Width(glyph)
		if !g.Put(glyph, w) {
			break
		}
		used += w
	}
	return used
}

// Fill writes spaces with the current Attr up to the end of the row.
func (g *Grid) Fill() {
	for g.Remaining() > 0 {
		g.Put(" ", 1)
	}
}

// Blit copies an h×w rectangle from src at (sy, sx) into dst at (dy, dx),
// clipped to both grids.
func Blit(dst, src *Grid, sy, sx, dy, dx, h, w int) {
	for row := 0; row < h; row++ {
		srow, drow := sy+row, dy+row
		if srow < 0 || srow >= src.h || drow < 0 || drow >= dst.h {
			continue
		}
		for col := 0; col < w; col++ {
			scol, dcol := sx+col, dx+col
			if scol < 0 || scol >= src.w || dcol < 0 || dcol >= dst.w {
				continue
			}
			dst.cells[drow*dst.w+dcol] = src.cells[srow*src.w+scol]
		}
	}
}

// Line returns row y as plain text.
func (g *Grid) Line(y int) string {
	if y < 0 || y >= g.h {
		return ""
	}
	var b strings.Builder
	for _, c := range g.cells[y*g.w : (y+1)*g.w] {
		b.WriteString(c.Glyph)
	}
	return b.String()
}

// String returns the plain text of every row, right-trimmed.
func (g *Grid) String() string {
	lines := make([]string, g.h)
	for y := range lines {
		lines[y] = strings.TrimRight(g.Line(y), " ")
	}
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
