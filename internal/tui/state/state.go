// Package state holds the cursor arithmetic shared by the list and text
// views.
package state

const (
	CursorTop    = "top"
	CursorMiddle = "middle"
	CursorBottom = "bottom"
	CursorEdge   = "edge"

	ScrollScroll = "scroll"
	ScrollPage   = "page"
)

// Cursor is the taglist.cursor option: where the selection sits on screen
// and, for edge cursors, how the list moves once it reaches an edge.
type Cursor struct {
	Type   string
	Scroll string
	Edge   int
}

// CursorFromConfig reads a validated cursor section.
func CursorFromConfig(section map[string]any) Cursor {
	c := Cursor{Type: CursorEdge, Scroll: ScrollScroll, Edge: 5}
	if s, ok := section["type"].(string); ok {
		c.Type = s
	}
	if s, ok := section["scroll"].(string); ok {
		c.Scroll = s
	}
	switch n := section["edge"].(type) {
	case int:
		c.Edge = n
	case int64:
		c.Edge = int(n)
	case float64:
		c.Edge = int(n)
	}
	return c
}

// Place returns the screen row the selection should occupy. loc is where it
// would land if the list stayed put; header and item are the line counts of
// the selection's tag header and of the selection itself, which edge cursors
// keep on screen.
func (c Cursor) Place(loc, height, header, item int) int {
	switch c.Type {
	case CursorTop:
		return 0
	case CursorMiddle:
		return (height - 1) / 2
	case CursorBottom:
		return height - 1
	}
	top := max(c.Edge, header)
	bottom := (height - 1) - max(c.Edge, item)
	switch {
	case loc > bottom:
		if c.Scroll == ScrollPage {
			return top
		}
		return bottom
	case loc < top:
		if c.Scroll == ScrollPage {
			return bottom
		}
		return top
	}
	return loc
}

func ClampCursor(cursor, size int) int {
	if size <= 0 {
		return 0
	}
	if cursor >= size {
		return size - 1
	}
	if cursor < 0 {
		return 0
	}
	return cursor
}

// Clamp bounds v to [lo, hi]; hi wins when the range is empty.
func Clamp(v, lo, hi int) int {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}

// ClampOffset bounds a text scroll offset so the last page stays full.
func ClampOffset(offset, total, height int) int {
	return max(Clamp(offset, 0, total-height), 0)
}

// PageStep is how far a page command moves a view of the given height.
func PageStep(height int) int {
	if height <= 1 {
		return 1
	}
	return height - 1
}

// CenteredWindow returns the [start, end) slice of totalRows that keeps
// cursor near the middle of a height-row window.
func CenteredWindow(totalRows, cursor, height int) (int, int) {
	if totalRows <= 0 {
		return 0, 0
	}
	if height <= 0 || totalRows <= height {
		return 0, totalRows
	}
	cursor = ClampCursor(cursor, totalRows)
	start := cursor - height/2
	if start < 0 {
		start = 0
	}
	maxStart := totalRows - height
	if start > maxStart {
		start = maxStart
	}
	return start, start + height
}
