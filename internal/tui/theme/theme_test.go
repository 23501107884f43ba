package theme

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/glabrego/canto-ng/internal/cellgrid"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRenderer(h, w int) (*Renderer, *cellgrid.Grid) {
	g := cellgrid.New(h, w)
	return NewRenderer(g, cellgrid.RuneWidth{}, Default(), quietLogger()), g
}

func TestLine_WrapsAtWordBoundary(t *testing.T) {
	r, g := newTestRenderer(3, 10)

	rest := r.Line("hello world again", "", "")
	if rest != "world again" {
		t.Fatalf("unexpected remainder after first line: %q", rest)
	}
	rest = r.Line(rest, "", "")
	if rest != "again" {
		t.Fatalf("unexpected remainder after second line: %q", rest)
	}
	if rest = r.Line(rest, "", ""); rest != "" {
		t.Fatalf("expected text to be exhausted, got %q", rest)
	}
	if got := g.String(); got != "hello\nworld\nagain" {
		t.Fatalf("unexpected grid:\n%s", got)
	}
}

func TestLine_BreaksLongWordAtCells(t *testing.T) {
	r, g := newTestRenderer(1, 4)
	if rest := r.Line("abcdefg", "", ""); rest != "efg" {
		t.Fatalf("unexpected remainder: %q", rest)
	}
	if got := g.Line(0); got != "abcd" {
		t.Fatalf("unexpected line: %q", got)
	}
}

func TestLine_NewlineEndsLogicalLine(t *testing.T) {
	r, _ := newTestRenderer(2, 20)
	if rest := r.Line("first\nsecond", "", ""); rest != "second" {
		t.Fatalf("unexpected remainder: %q", rest)
	}
}

func TestLine_WideGlyphs(t *testing.T) {
	r, g := newTestRenderer(1, 3)
	if rest := r.Line("世界", "", ""); rest != "界" {
		t.Fatalf("unexpected remainder: %q", rest)
	}
	if got := g.Line(0); got != "世 " {
		t.Fatalf("unexpected line: %q", got)
	}
}

func TestLine_DropsZeroWidthGlyphs(t *testing.T) {
	r, g := newTestRenderer(1, 5)
	r.Line("a\u200bb", "", "")
	if got := strings.TrimRight(g.Line(0), " "); got != "ab" {
		t.Fatalf("unexpected line: %q", got)
	}
}

func TestLine_ColorStack(t *testing.T) {
	r, g := newTestRenderer(1, 10)
	r.Line("%2a%5b%0c%0d%0e", "", "")

	want := []int{2, 5, 2, 0, 0}
	for x, pair := range want {
		if got := g.At(0, x).Attr.Pair; got != pair {
			t.Fatalf("cell %d: pair %d, want %d", x, got, pair)
		}
	}
}

func TestLine_NamedAndExtendedColors(t *testing.T) {
	r, g := newTestRenderer(1, 10)
	r.Line("%[unread]a%[200]b%[nosuch]c", "", "")
	if got := g.At(0, 0).Attr.Pair; got != 2 {
		t.Fatalf("expected unread pair 2, got %d", got)
	}
	if got := g.At(0, 1).Attr.Pair; got != 200 {
		t.Fatalf("expected pair 200, got %d", got)
	}
	if got := g.At(0, 2).Attr.Pair; got != 200 {
		t.Fatalf("unknown color should leave the stack alone, got %d", got)
	}
}

func TestLine_AttributeCounters(t *testing.T) {
	r, g := newTestRenderer(1, 10)
	r.Line("%B%Bx%by%bz%b%Uu", "", "")

	if !g.At(0, 0).Attr.Bold || !g.At(0, 1).Attr.Bold {
		t.Fatal("expected x and y to be bold")
	}
	if g.At(0, 2).Attr.Bold {
		t.Fatal("expected z not to be bold")
	}
	if !g.At(0, 3).Attr.Underline {
		t.Fatal("expected u to be underlined")
	}
}

func TestLine_SaveRestore(t *testing.T) {
	r, g := newTestRenderer(1, 10)
	r.Line("%2%Bx%Cy%cz", "", "")

	if a := g.At(0, 1).Attr; a.Pair != 0 || a.Bold {
		t.Fatalf("expected cleared state inside %%C, got %+v", a)
	}
	if a := g.At(0, 2).Attr; a.Pair != 2 || !a.Bold {
		t.Fatalf("expected restored state after %%c, got %+v", a)
	}
}

func TestLine_BordersFrameContent(t *testing.T) {
	r, g := newTestRenderer(2, 8)
	left, right := "%C%2|%0%c", "%C%2|%0%c"

	rest := r.Line("%Bab cdef%b", left, right)
	if rest != "cdef%b" {
		t.Fatalf("unexpected remainder: %q", rest)
	}
	r.Line(rest, left, right)

	if got := g.String(); got != "|ab    |\n|cdef  |" {
		t.Fatalf("unexpected grid:\n%s", got)
	}
	if a := g.At(0, 0).Attr; a.Pair != 2 || a.Bold {
		t.Fatalf("border should not inherit content state, got %+v", a)
	}
	if !g.At(1, 1).Attr.Bold {
		t.Fatal("content state should carry over to the wrapped line")
	}
}

func TestLine_QuoteRegionIndents(t *testing.T) {
	r, g := newTestRenderer(2, 12)
	rest := r.Line("%Qquoted\ntext%q", "", "")
	r.Line(rest, "", "")
	if got := g.String(); got != "quoted\n│ text" {
		t.Fatalf("unexpected grid:\n%s", got)
	}
}

func TestLine_UnknownCodeContinues(t *testing.T) {
	r, g := newTestRenderer(1, 5)
	r.Line("%zab%0", "", "")
	if got := strings.TrimRight(g.Line(0), " "); got != "ab" {
		t.Fatalf("unexpected line: %q", got)
	}
}

func TestLines_CountsRows(t *testing.T) {
	if n := Lines("hello world again", 10, "", "", nil, nil, quietLogger()); n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
	if n := Lines("short", 10, "", "", nil, nil, quietLogger()); n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestLen(t *testing.T) {
	if got := Len(`%B%[unread]ab\%世%b`, nil); got != 5 {
		t.Fatalf("unexpected printable width: %d", got)
	}
}

func TestLStrip(t *testing.T) {
	got := LStrip("  %B\n\n hello\n\n \nworld\n  indented")
	if got != "%Bhello\nworld\n  indented" {
		t.Fatalf("unexpected strip result: %q", got)
	}
}

func TestSafe_RecoversPanics(t *testing.T) {
	err := Safe(func() { panic("broken story") })
	if err == nil || !strings.Contains(err.Error(), "broken story") {
		t.Fatalf("expected recovered panic, got %v", err)
	}
	if err := Safe(func() {}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestPalette_FromConfig(t *testing.T) {
	p := FromConfig(map[string]any{
		"2":      map[string]any{"fg": 1, "bg": float64(0)},
		"300":    5,
		"unread": 9,
		"deffg":  7,
	})
	if got := p.Pair(2); got != (Pair{FG: 1, BG: 0}) {
		t.Fatalf("unexpected pair 2: %+v", got)
	}
	if got := p.Pair(10); got != (Pair{FG: 9, BG: -1}) {
		t.Fatalf("expected default for pair 10, got %+v", got)
	}
	if n, ok := p.Named("unread"); !ok || n != 9 {
		t.Fatalf("unexpected unread pair: %d %v", n, ok)
	}
	if n, _ := p.Named("read"); n != 3 {
		t.Fatalf("expected default read pair, got %d", n)
	}
}

func TestPalette_StyleEmitsANSI(t *testing.T) {
	lipgloss.SetColorProfile(termenv.ANSI256)
	styled := Default().Style(cellgrid.Attr{Pair: 2, Bold: true}).Render("x")
	if !strings.Contains(styled, "\x1b[") {
		t.Fatalf("expected styled output, got %q", styled)
	}
}
