package view

import (
	"github.com/glabrego/canto-ng/internal/cellgrid"
	"github.com/glabrego/canto-ng/internal/command"
	"github.com/glabrego/canto-ng/internal/hooks"
	"github.com/glabrego/canto-ng/internal/layout"
	"github.com/glabrego/canto-ng/internal/tui/state"
	"github.com/glabrego/canto-ng/internal/tui/theme"
)

type textKey struct {
	text  string
	width int
	left  bool
	right bool
}

// TextBox shows a scrollable block of markup. Its scroll offset lives in
// the "<name>_offset" var so it survives the box being rebuilt.
type TextBox struct {
	env     *Env
	name    string
	win     layout.Window
	owner   hooks.Owner
	content func() string
	// strip collapses the leading and repeated blank space of the content.
	strip bool
	extra func() ([]command.Command, []command.ArgType)

	key   textKey
	pad   *cellgrid.Grid
	avail int
}

func newTextBox(env *Env, name string, content func() string) *TextBox {
	return &TextBox{
		env:     env,
		name:    name,
		win:     layout.Window{Name: name},
		owner:   hooks.NewOwner(),
		content: content,
	}
}

func (t *TextBox) Name() string       { return t.name }
func (t *TextBox) Owner() hooks.Owner { return t.owner }

func (t *TextBox) Window() *layout.Window {
	configureWindow(t.env.Mirror, t.name, &t.win)
	return &t.win
}

func (t *TextBox) Close() {
	t.env.Bus.UnhookAll(t.owner)
}

func (t *TextBox) offsetVar() string { return t.name + "_offset" }

func (t *TextBox) sides() (left, right string) {
	left, right = " ", " "
	if t.win.Borders.Left {
		left = "%C%B%1" + theme.Border("ls") + "%0%b %c"
	}
	if t.win.Borders.Right {
		right = "%C %B%1" + theme.Border("rs") + "%0%b%c"
	}
	return left, right
}

func (t *TextBox) render(width int) *cellgrid.Grid {
	text := t.content()
	if t.strip {
		text = theme.LStrip(text)
	}
	key := textKey{text: text, width: width, left: t.win.Borders.Left, right: t.win.Borders.Right}
	if t.pad != nil && t.key == key {
		return t.pad
	}
	left, right := t.sides()
	t.pad, _ = t.env.paint(text, width, left, left, right, 0)
	t.key = key
	return t.pad
}

func (t *TextBox) Draw(g *cellgrid.Grid) int {
	h, w := g.Height(), g.Width()
	if h <= 0 || w <= 0 {
		return 0
	}
	b := t.win.Borders
	pad := t.render(w)
	avail := h
	if b.Top {
		avail--
	}
	if b.Bottom {
		avail--
	}
	t.avail = max(avail, 0)
	offset := state.ClampOffset(t.env.Mirror.VarInt(t.offsetVar()), pad.Height(), t.avail)
	shown := max(min(t.avail, pad.Height()-offset), 0)

	row := 0
	if b.Top {
		blit(g, t.env.rule(w, theme.Border("tl"), theme.Border("ts"), theme.Border("tr")), row)
		row++
	}
	cellgrid.Blit(g, pad, offset, 0, row, 0, shown, w)
	row += shown
	if !t.win.Float {
		// tiles own their whole rect; keep the sides drawn down to the edge
		left, right := t.sides()
		r := t.env.renderer(g)
		for ; row < h-btoi(b.Bottom); row++ {
			g.Move(row, 0)
			r.Line("", left, right)
		}
	}
	if b.Bottom && row < h {
		blit(g, t.env.rule(w, theme.Border("bl"), theme.Border("bs"), theme.Border("br")), row)
		row++
	}
	return row
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Scroll moves the text by delta rows.
func (t *TextBox) Scroll(delta int) {
	total := 0
	if t.pad != nil {
		total = t.pad.Height()
	}
	m := t.env.Mirror
	m.SetVar(t.offsetVar(), state.ClampOffset(m.VarInt(t.offsetVar())+delta, total, t.avail))
}

func (t *TextBox) Commands() ([]command.Command, []command.ArgType) {
	cmds := []command.Command{
		{Name: "scroll-down", Group: t.name, Help: "Scroll down a line",
			Run: func([]any) error { t.Scroll(1); return nil }},
		{Name: "scroll-up", Group: t.name, Help: "Scroll up a line",
			Run: func([]any) error { t.Scroll(-1); return nil }},
		{Name: "page-down", Group: t.name, Help: "Scroll down a page",
			Run: func([]any) error { t.Scroll(state.PageStep(t.avail)); return nil }},
		{Name: "page-up", Group: t.name, Help: "Scroll up a page",
			Run: func([]any) error { t.Scroll(-state.PageStep(t.avail)); return nil }},
	}
	var types []command.ArgType
	if t.extra != nil {
		c, ty := t.extra()
		cmds = append(cmds, c...)
		types = append(types, ty...)
	}
	return cmds, types
}
