package theme

import "strings"

var borders = map[string]string{
	"ts": "─",
	"bs": "─",
	"ls": "│",
	"rs": "│",
	"tl": "┌",
	"tr": "┐",
	"bl": "└",
	"br": "┘",
}

// Border returns the box-drawing glyph for a border part: ts, bs, ls, rs
// for the sides and tl, tr, bl, br for the corners. The glyphs need no
// escaping inside markup.
func Border(part string) string {
	return borders[part]
}

// HLine is a horizontal rule n cells wide between two corner glyphs. Either
// corner may be empty.
func HLine(left, side, right string, n int) string {
	inner := n - Len(left, nil) - Len(right, nil)
	if inner < 0 {
		inner = 0
	}
	return left + strings.Repeat(side, inner) + right
}
