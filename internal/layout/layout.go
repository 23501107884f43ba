// Package layout places the front-end's windows on the screen: tiled
// windows in nested stacks of alternating orientation, floating windows
// aligned on the full screen above them.
package layout

import "strings"

// Border policies.
const (
	BorderNone  = "none"
	BorderFull  = "full"
	BorderSmart = "smart"
)

// Sizer lets a window ask for less than it is offered.
type Sizer interface {
	Height(avail int) int
	Width(avail int) int
}

type Rect struct {
	Top, Left, Height, Width int
}

func (r Rect) Bottom() int { return r.Top + r.Height - 1 }
func (r Rect) Right() int  { return r.Left + r.Width - 1 }

type Borders struct {
	Top, Left, Bottom, Right bool
}

// Window is one layout participant. The fields above the blank line are
// inputs; Rect and Borders are filled in by Arrange.
type Window struct {
	Name      string
	Align     string
	Float     bool
	Border    string
	MaxHeight int
	MaxWidth  int
	// Absorb pushes the window deeper in the tiling so its size is settled
	// last and it takes whatever space the others leave.
	Absorb bool
	Size   Sizer

	Rect    Rect
	Borders Borders
}

func (w *Window) height(avail int) int {
	return w.clamp(avail, w.MaxHeight, func(a int) int { return w.Size.Height(a) })
}

func (w *Window) width(avail int) int {
	return w.clamp(avail, w.MaxWidth, func(a int) int { return w.Size.Width(a) })
}

func (w *Window) clamp(avail, maxDim int, req func(int) int) int {
	size := avail
	if maxDim > 0 && maxDim < size {
		size = maxDim
	}
	if w.Size != nil {
		if r := req(avail); r < size {
			size = r
		}
	}
	if size < 0 {
		return 0
	}
	return size
}

// Node is either a window or a list of nodes stacked along one axis.
type Node struct {
	Win      *Window
	Children []Node
}

func Leaf(w *Window) Node         { return Node{Win: w} }
func Stack(children ...Node) Node { return Node{Children: children} }

type orientation int

const (
	vertical orientation = iota
	horizontal
)

func (o orientation) flip() orientation {
	if o == vertical {
		return horizontal
	}
	return vertical
}

// Fill builds the default tiling for tiles: top-aligned windows, then one
// horizontal band of left, neutral and right windows, then bottom-aligned
// windows.
func Fill(tiles []*Window) Node {
	buckets := map[string][]Node{}
	for _, w := range tiles {
		n := Leaf(w)
		if w.Absorb {
			n = Stack(Stack(n))
		}
		align := w.Align
		switch align {
		case "top", "bottom", "left", "right":
		default:
			align = "neutral"
		}
		buckets[align] = append(buckets[align], n)
	}
	var band []Node
	band = append(band, buckets["left"]...)
	band = append(band, buckets["neutral"]...)
	band = append(band, buckets["right"]...)

	var root []Node
	root = append(root, buckets["top"]...)
	root = append(root, Stack(band...))
	root = append(root, buckets["bottom"]...)
	return Stack(root...)
}

// Arrange lays out every window on a height x width screen and returns the
// tiled and floating windows, in render order.
func Arrange(wins []*Window, height, width int) (tiles, floats []*Window) {
	for _, w := range wins {
		if w.Float {
			floats = append(floats, w)
		} else {
			tiles = append(tiles, w)
		}
	}
	s := screen{height: height, width: width}
	s.place(Fill(tiles).Children, 0, 0, height, width, vertical)
	for _, f := range floats {
		s.float(f)
	}
	return tiles, floats
}

type screen struct {
	height, width int
}

// place stacks nodes along o inside the given rectangle. Windows are sized
// first, each offered an even share of what is left; sublists then split
// the remainder. It returns the space used along o and across it.
func (s screen) place(nodes []Node, top, left, height, width int, o orientation) (mainUsed, crossUsed int) {
	sizes := make([]int, len(nodes))
	main, crossAvail := height, width
	if o == horizontal {
		main, crossAvail = width, height
	}

	units, used := len(nodes), 0
	for i, n := range nodes {
		if n.Win == nil {
			continue
		}
		share := (main - used) / units
		if o == horizontal {
			sizes[i] = n.Win.width(share)
		} else {
			sizes[i] = n.Win.height(share)
		}
		used += sizes[i]
		units--
		crossUsed = crossAvail
	}

	for i, n := range nodes {
		if n.Win != nil {
			continue
		}
		share := (main - used) / max(units, 1)
		offset := sum(sizes[:i])
		var childMain int
		if o == horizontal {
			childMain, sizes[i] = s.place(n.Children, top, left+offset, height, share, o.flip())
		} else {
			childMain, sizes[i] = s.place(n.Children, top+offset, left, share, width, o.flip())
		}
		crossUsed = max(crossUsed, childMain)
		used += sizes[i]
		units--
	}

	for i, n := range nodes {
		if n.Win == nil {
			continue
		}
		offset := sum(sizes[:i])
		if o == horizontal {
			s.init(n.Win, Rect{Top: top, Left: left + offset, Height: height, Width: sizes[i]})
		} else {
			s.init(n.Win, Rect{Top: top + offset, Left: left, Height: sizes[i], Width: width})
		}
	}
	return sum(sizes), crossUsed
}

func (s screen) float(w *Window) {
	h, wd := w.height(s.height), w.width(s.width)
	r := Rect{Height: h, Width: wd}
	switch {
	case strings.HasPrefix(w.Align, "bottom"):
		r.Top = s.height - h
	case w.Align == "center":
		r.Top = (s.height - h) / 2
	}
	switch {
	case strings.HasSuffix(w.Align, "right"):
		r.Left = s.width - wd
	case w.Align == "center":
		r.Left = (s.width - wd) / 2
	}
	s.init(w, r)
}

func (s screen) init(w *Window, r Rect) {
	w.Rect = r
	switch w.Border {
	case BorderFull:
		w.Borders = Borders{true, true, true, true}
	case BorderSmart:
		w.Borders = Borders{
			Top:    r.Top != 0,
			Left:   r.Left != 0,
			Bottom: r.Bottom() != s.height-1,
			Right:  r.Right() != s.width-1,
		}
		if w.Float {
			if strings.HasPrefix(w.Align, "top") {
				w.Borders.Bottom = true
			}
			if strings.HasPrefix(w.Align, "bottom") {
				w.Borders.Top = true
			}
		}
	default:
		w.Borders = Borders{}
	}
}

func sum(xs []int) int {
	t := 0
	for _, x := range xs {
		t += x
	}
	return t
}
