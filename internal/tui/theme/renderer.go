package theme

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"

	"github.com/glabrego/canto-ng/internal/cellgrid"
)

const (
	quotePrefix  = "│ "
	indentPrefix = "  "
)

const (
	bold = iota
	dim
	reverse
	standout
	underline
	numAttrs
)

type state struct {
	colors   []int
	counters [numAttrs]int
	quote    int
	indent   int
}

func (s state) clone() state {
	s.colors = append([]int(nil), s.colors...)
	return s
}

// Renderer interprets markup into a cell grid. Its color stack, attribute
// counters and region depths live only as long as the instance, so one is
// created per render pass.
type Renderer struct {
	grid    *cellgrid.Grid
	measure cellgrid.Measurer
	names   func(string) (int, bool)
	log     *slog.Logger

	st    state
	saved []state
}

func NewRenderer(grid *cellgrid.Grid, measure cellgrid.Measurer, palette *Palette, logger *slog.Logger) *Renderer {
	if measure == nil {
		measure = cellgrid.RuneWidth{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if palette == nil {
		palette = Default()
	}
	return &Renderer{grid: grid, measure: measure, names: palette.Named, log: logger}
}

// Line renders one logical line of s at the grid cursor, framed by the left
// and right borders, then moves the cursor to the next row. It returns the
// part of s that did not fit, or "" once s is exhausted.
func (r *Renderer) Line(s, left, right string) string {
	g := r.grid
	row, _ := g.Cursor()
	if row >= g.Height() {
		return s
	}
	g.Move(row, 0)

	r.print(left, g.Width())
	reserve := Len(right, r.measure)

	prefix := strings.Repeat(quotePrefix, r.st.quote) + strings.Repeat(indentPrefix, r.st.indent)
	r.writePlain(prefix, g.Remaining()-reserve)

	rest := r.content(s, reserve)

	r.sync()
	g.Fill()
	g.Move(row, g.Width()-reserve)
	r.print(right, reserve)
	g.Move(row+1, 0)
	return rest
}

// content writes s until the line is full, honoring word wrap, and returns
// the remainder.
func (r *Renderer) content(s string, reserve int) string {
	g := r.grid
	lineWidth := g.Remaining() - reserve
	printed := false

	for i := 0; i < len(s); {
		room := g.Remaining() - reserve
		c := s[i]
		switch {
		case c == '%':
			i += r.code(s[i:])
			continue
		case c == '\n':
			return s[i+1:]
		case c == '\\' && i+1 < len(s):
			glyph, _, _, _ := uniseg.FirstGraphemeClusterInString(s[i+1:], -1)
			w := r.glyphWidth(glyph)
			if w > room {
				if !printed && w > lineWidth {
					i += 1 + len(glyph)
					continue
				}
				return s[i:]
			}
			r.put(glyph, w)
			printed = true
			i += 1 + len(glyph)
			continue
		case c == ' ' || c == '\t':
			next := wordLen(s[i+1:], r.measure)
			if next > 0 && next <= lineWidth && next+1 > room {
				return s[i+1:]
			}
			if room < 1 {
				return s[i+1:]
			}
			r.put(" ", 1)
			printed = true
			i++
			continue
		}

		glyph, _, _, _ := uniseg.FirstGraphemeClusterInString(s[i:], -1)
		w := r.glyphWidth(glyph)
		if w == 0 {
			i += len(glyph)
			continue
		}
		if w > room {
			if !printed && w > lineWidth {
				// can never fit; drop it
				i += len(glyph)
				continue
			}
			return s[i:]
		}
		r.put(glyph, w)
		printed = true
		i += len(glyph)
	}
	return ""
}

func (r *Renderer) glyphWidth(glyph string) int {
	w := r.measure.Width(glyph)
	if w == 0 && strings.TrimSpace(glyph) == "" && glyph != "" {
		return 1
	}
	if w > 2 {
		return 2
	}
	return w
}

func (r *Renderer) put(glyph string, w int) {
	r.sync()
	if glyph == "\t" || (w == 1 && strings.TrimSpace(glyph) == "") {
		glyph = " "
	}
	r.grid.Put(glyph, w)
}

// print renders a border or other short markup without wrapping.
func (r *Renderer) print(s string, limit int) {
	_, start := r.grid.Cursor()
	for i := 0; i < len(s); {
		if s[i] == '%' {
			i += r.code(s[i:])
			continue
		}
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		glyph, _, _, _ := uniseg.FirstGraphemeClusterInString(s[i:], -1)
		i += len(glyph)
		w := r.glyphWidth(glyph)
		_, x := r.grid.Cursor()
		if w == 0 || x-start+w > limit {
			continue
		}
		r.put(glyph, w)
	}
}

func (r *Renderer) writePlain(s string, limit int) {
	if s == "" || limit <= 0 {
		return
	}
	saved := r.grid.Attr
	r.grid.Attr = cellgrid.Attr{}
	used := 0
	for _, ch := range s {
		glyph := string(ch)
		w := r.glyphWidth(glyph)
		if used+w > limit {
			break
		}
		r.grid.Put(glyph, w)
		used += w
	}
	r.grid.Attr = saved
}

// code applies the escape at the start of s and returns its byte length.
func (r *Renderer) code(s string) int {
	if len(s) < 2 {
		return len(s)
	}
	switch k := s[1]; k {
	case '1', '2', '3', '4', '5', '6', '7', '8':
		r.st.colors = append(r.st.colors, int(k-'0'))
	case '0':
		if len(r.st.colors) == 0 {
			r.log.Debug("unpaired color pop")
			return 2
		}
		r.st.colors = r.st.colors[:len(r.st.colors)-1]
	case '[':
		end := strings.IndexByte(s, ']')
		if end < 0 {
			r.log.Debug("unterminated extended color", "code", s)
			return len(s)
		}
		if pair, ok := r.resolvePair(s[2:end]); ok {
			r.st.colors = append(r.st.colors, pair)
		} else {
			r.log.Debug("unknown color", "name", s[2:end])
		}
		return end + 1
	case 'B', 'b':
		r.count(bold, k == 'B')
	case 'D', 'd':
		r.count(dim, k == 'D')
	case 'R', 'r':
		r.count(reverse, k == 'R')
	case 'S', 's':
		r.count(standout, k == 'S')
	case 'U', 'u':
		r.count(underline, k == 'U')
	case 'C':
		r.saved = append(r.saved, r.st.clone())
		r.st = state{quote: r.st.quote, indent: r.st.indent}
	case 'c':
		if len(r.saved) == 0 {
			r.log.Debug("restore without save")
			return 2
		}
		r.st = r.saved[len(r.saved)-1]
		r.saved = r.saved[:len(r.saved)-1]
	case 'Q':
		r.st.quote++
	case 'q':
		if r.st.quote > 0 {
			r.st.quote--
		}
	case 'I':
		r.st.indent++
	case 'i':
		if r.st.indent > 0 {
			r.st.indent--
		}
	default:
		r.log.Debug("unknown theme code", "code", string(k))
	}
	return 2
}

func (r *Renderer) resolvePair(ref string) (int, bool) {
	if n, err := strconv.Atoi(ref); err == nil {
		return n, n >= 1 && n <= MaxPair
	}
	return r.names(ref)
}

func (r *Renderer) count(attr int, up bool) {
	if up {
		r.st.counters[attr]++
		return
	}
	if r.st.counters[attr] > 0 {
		r.st.counters[attr]--
	}
}

func (r *Renderer) sync() {
	a := cellgrid.Attr{
		Bold:      r.st.counters[bold] > 0,
		Dim:       r.st.counters[dim] > 0,
		Reverse:   r.st.counters[reverse] > 0,
		Standout:  r.st.counters[standout] > 0,
		Underline: r.st.counters[underline] > 0,
	}
	if n := len(r.st.colors); n > 0 {
		a.Pair = r.st.colors[n-1]
	}
	r.grid.Attr = a
}

// Process applies the codes in s without drawing anything. Views use it to
// carry state past text they skip.
func (r *Renderer) Process(s string) {
	for i := 0; i < len(s); {
		switch s[i] {
		case '%':
			i += r.code(s[i:])
		case '\\':
			i += 2
		default:
			i++
		}
	}
}

// Reset drops all state, as at the end of a pass.
func (r *Renderer) Reset() {
	r.st = state{}
	r.saved = nil
	r.grid.Attr = cellgrid.Attr{}
}

// Lines counts the rows s needs at width by rendering it into a one-row
// scratch grid.
func Lines(s string, width int, left, right string, palette *Palette, measure cellgrid.Measurer, logger *slog.Logger) (n int) {
	if width <= 0 {
		return 0
	}
	probe := cellgrid.New(1, width)
	r := NewRenderer(probe, measure, palette, logger)
	for {
		probe.Move(0, 0)
		rest := r.Line(s, left, right)
		n++
		if rest == "" || rest == s {
			return n
		}
		s = rest
	}
}

// Safe runs fn and converts a panic into an error so one broken object does
// not take down the rest of the screen.
func Safe(fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("render panic: %v", rec)
		}
	}()
	fn()
	return nil
}

// Len is the printed width of s with codes and escapes removed.
func Len(s string, measure cellgrid.Measurer) int {
	if measure == nil {
		measure = cellgrid.RuneWidth{}
	}
	n := 0
	for i := 0; i < len(s); {
		switch s[i] {
		case '%':
			if i+1 < len(s) && s[i+1] == '[' {
				if end := strings.IndexByte(s[i:], ']'); end >= 0 {
					i += end + 1
					continue
				}
			}
			i += 2
			continue
		case '\\':
			i++
			if i >= len(s) {
				return n
			}
		}
		glyph, _, _, _ := uniseg.FirstGraphemeClusterInString(s[i:], -1)
		if w := measure.Width(glyph); w > 0 {
			n += w
		} else if strings.TrimSpace(glyph) == "" {
			n++
		}
		i += len(glyph)
	}
	return n
}

// LStrip drops leading whitespace and collapses every run of newlines (and
// the blank space between them) to a single newline. Codes met along the way
// are kept so attribute state is unchanged.
func LStrip(s string) string {
	var b strings.Builder
	var pending strings.Builder
	leading := true
	newline := false
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '%':
			end := i + 2
			if i+1 < len(s) && s[i+1] == '[' {
				if j := strings.IndexByte(s[i:], ']'); j >= 0 {
					end = i + j + 1
				}
			}
			if end > len(s) {
				end = len(s)
			}
			b.WriteString(s[i:end])
			i = end
			continue
		case c == '\n':
			if !leading && !newline {
				b.WriteByte('\n')
			}
			newline = true
			pending.Reset()
			i++
			continue
		case leading && unicode.IsSpace(rune(c)):
			i++
			continue
		case newline && (c == ' ' || c == '\t'):
			pending.WriteByte(c)
			i++
			continue
		}
		leading, newline = false, false
		b.WriteString(pending.String())
		pending.Reset()
		if c == '\\' && i+1 < len(s) {
			b.WriteString(s[i : i+2])
			i += 2
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func wordLen(s string, measure cellgrid.Measurer) int {
	end := strings.IndexAny(s, " \t\n")
	if end < 0 {
		end = len(s)
	}
	return Len(s[:end], measure)
}
