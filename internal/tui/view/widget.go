// Package view holds the front-end's widgets: the tag list, the reader,
// the message boxes and the input line. Widgets draw into a cell grid the
// screen hands them and expose their commands to the dispatcher while they
// have focus.
package view

import (
	"log/slog"

	"github.com/glabrego/canto-ng/internal/cellgrid"
	"github.com/glabrego/canto-ng/internal/command"
	"github.com/glabrego/canto-ng/internal/hooks"
	"github.com/glabrego/canto-ng/internal/layout"
	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/store"
	"github.com/glabrego/canto-ng/internal/tui/theme"
)

// Widget is one window on the screen. Name is also the widget's config
// section, so its key map lives at "<name>.key".
type Widget interface {
	Name() string
	Window() *layout.Window
	// Draw renders into g, which is sized to the window's rect, and
	// returns the number of rows used. Floating windows are only copied to
	// the screen up to that row.
	Draw(g *cellgrid.Grid) int
	Commands() ([]command.Command, []command.ArgType)
	Owner() hooks.Owner
	Close()
}

// Host is the part of the screen widgets drive directly.
type Host interface {
	OpenReader()
	OpenInput()
	CloseWidget(w Widget)
}

// Opener hands links to programs outside the front-end.
type Opener interface {
	Goto(urls []string) error
	Fetch(urls []string) error
	Yank(text string) error
}

// Env is shared by every widget.
type Env struct {
	Mirror   *mirror.Mirror
	Store    *store.Store
	Bus      *hooks.Bus
	Dispatch *command.Dispatcher
	Host     Host
	Opener   Opener
	Measure  cellgrid.Measurer
	Palette  func() *theme.Palette
	Log      *slog.Logger
}

func (e *Env) palette() *theme.Palette {
	if e.Palette == nil {
		return theme.Default()
	}
	return e.Palette()
}

func (e *Env) measure() cellgrid.Measurer {
	if e.Measure == nil {
		return cellgrid.RuneWidth{}
	}
	return e.Measure
}

func (e *Env) logger() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

func (e *Env) renderer(g *cellgrid.Grid) *theme.Renderer {
	return theme.NewRenderer(g, e.measure(), e.palette(), e.logger())
}

func (e *Env) lines(s string, width int, left, right string) int {
	return theme.Lines(s, width, left, right, e.palette(), e.measure(), e.logger())
}

// configureWindow refreshes w from the "<section>.window" options.
func configureWindow(m *mirror.Mirror, section string, w *layout.Window) {
	n, ok := m.Opt(section + ".window")
	if !ok {
		return
	}
	if v, ok := n.M["align"]; ok {
		w.Align = v.S
	}
	if v, ok := n.M["float"]; ok {
		w.Float = v.B
	}
	if v, ok := n.M["border"]; ok {
		w.Border = v.S
	}
	if v, ok := n.M["maxheight"]; ok {
		w.MaxHeight = v.I
	}
	if v, ok := n.M["maxwidth"]; ok {
		w.MaxWidth = v.I
	}
}

// StorySel is a story handle as stored in the selected and reader_item
// vars.
type StorySel struct {
	Tag string
	ID  string
}

func (s StorySel) ItemID() string { return s.ID }

// TagSel is a selected, collapsed tag header. It carries no id, so the
// daemon is never asked to protect it.
type TagSel struct {
	Tag string
}

// ReaderItem returns the story the reader shows, if any.
func ReaderItem(m *mirror.Mirror) (StorySel, bool) {
	s, ok := m.Var(mirror.VarReaderItem).(StorySel)
	return s, ok
}

// fixedHeight is a Sizer that asks for a set number of rows.
type fixedHeight int

func (f fixedHeight) Height(avail int) int { return min(int(f), avail) }
func (fixedHeight) Width(avail int) int    { return avail }
