package tui

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/glabrego/canto-ng/internal/cellgrid"
	"github.com/glabrego/canto-ng/internal/command"
	"github.com/glabrego/canto-ng/internal/hooks"
	"github.com/glabrego/canto-ng/internal/layout"
	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/tui/theme"
	"github.com/glabrego/canto-ng/internal/tui/view"
)

const infoTimeout = 5 * time.Second

type clearStatusMsg struct {
	id int
}

func clearStatusCmd(id int, after time.Duration) tea.Cmd {
	return tea.Tick(after, func(time.Time) tea.Msg {
		return clearStatusMsg{id: id}
	})
}

// Screen owns the open widgets. It lays them out, keeps track of which one
// has focus and composes them into a frame.
type Screen struct {
	env   *view.Env
	reg   *command.Registry
	owner hooks.Owner
	fx    *effects
	log   *slog.Logger

	taglist *view.TagList
	input   *view.Input
	reader  *view.Reader
	boxes   map[string]*view.TextBox

	open    []view.Widget
	order   []view.Widget
	focused view.Widget
	prev    view.Widget

	height, width int
	frame         *cellgrid.Grid
	palette       *theme.Palette
	statusID      int
}

func newScreen(env *view.Env, fx *effects, logger *slog.Logger) *Screen {
	s := &Screen{
		env:     env,
		reg:     env.Dispatch.Registry(),
		owner:   hooks.NewOwner(),
		fx:      fx,
		log:     logger,
		boxes:   map[string]*view.TextBox{},
		palette: paletteFrom(env.Mirror),
	}
	env.Host = s
	env.Palette = func() *theme.Palette { return s.palette }

	s.input = view.NewInput(env)
	s.input.Completer = func(label, line string) []string {
		if label != ":" {
			return nil
		}
		return env.Dispatch.Complete(line)
	}
	env.Dispatch.SetPrompter(s.input.Prompt)

	s.reg.RegisterArgTypes(s.owner, command.ArgType{
		Name: "optint", Help: "An optional integer",
		Factory: func() ([]string, command.Validator) {
			return nil, func(raw string) (any, error) {
				if strings.TrimSpace(raw) == "" {
					return 0, nil
				}
				n, err := strconv.Atoi(strings.TrimSpace(raw))
				if err != nil {
					return nil, fmt.Errorf("not an integer: %q", raw)
				}
				return n, nil
			}
		},
	}, s.colorIndexType())
	s.reg.RegisterCommands(s.owner, s.commands()...)

	env.Bus.On(hooks.OptChange, s.owner, func(p any) {
		changes, _ := p.(map[string]any)
		if mirror.Changed(changes, "color") {
			s.palette = paletteFrom(env.Mirror)
		}
	})
	env.Bus.On(hooks.VarChange, s.owner, s.onVarChange)

	s.taglist = view.NewTagList(env)
	s.add(s.taglist)
	s.focusAbs(0)
	return s
}

func paletteFrom(m *mirror.Mirror) *theme.Palette {
	n, ok := m.Opt("color")
	if !ok {
		return theme.Default()
	}
	section, _ := n.Value().(map[string]any)
	return theme.FromConfig(section)
}

func (s *Screen) onVarChange(p any) {
	vars, _ := p.(map[string]any)
	for _, name := range []string{"errorbox", "infobox"} {
		raw, ok := vars[view.MessageVar(name)]
		if !ok {
			continue
		}
		msg, _ := raw.(string)
		box, open := s.boxes[name]
		switch {
		case msg != "" && !open:
			box = view.NewInfoBox(s.env)
			if name == "errorbox" {
				box = view.NewErrorBox(s.env)
			}
			s.boxes[name] = box
			s.add(box)
			if name == "errorbox" && !s.input.Active() {
				s.focus(box)
			}
		case msg == "" && open:
			s.CloseWidget(box)
		}
		if name == "infobox" && msg != "" {
			s.statusID++
			s.fx.add(clearStatusCmd(s.statusID, infoTimeout))
		}
	}
}

// clearInfo drops the info message unless a newer one replaced it.
func (s *Screen) clearInfo(id int) {
	if id == s.statusID {
		s.env.Mirror.SetVar(mirror.VarInfoMsg, "")
	}
}

func (s *Screen) add(w view.Widget) {
	s.open = append(s.open, w)
	s.arrange()
}

func (s *Screen) isOpen(w view.Widget) bool {
	for _, o := range s.open {
		if o == w {
			return true
		}
	}
	return false
}

func (s *Screen) OpenReader() {
	if s.reader == nil {
		s.reader = view.NewReader(s.env)
		s.add(s.reader)
	}
	s.focus(s.reader)
}

func (s *Screen) OpenInput() {
	if !s.isOpen(s.input) {
		s.add(s.input)
	}
	if s.focused != view.Widget(s.input) {
		s.prev = s.focused
	}
	s.focus(s.input)
}

func (s *Screen) CloseWidget(w view.Widget) {
	if !s.isOpen(w) {
		return
	}
	for i, o := range s.open {
		if o == w {
			s.open = append(s.open[:i], s.open[i+1:]...)
			break
		}
	}
	switch w {
	case view.Widget(s.input):
	case view.Widget(s.reader):
		s.reader = nil
		w.Close()
	default:
		for name, box := range s.boxes {
			if view.Widget(box) == w {
				delete(s.boxes, name)
			}
		}
		w.Close()
	}
	s.arrange()

	if w == view.Widget(s.input) {
		prev := s.prev
		s.prev = nil
		if prev != nil && s.isOpen(prev) {
			s.focus(prev)
			return
		}
		s.focusAbs(0)
		return
	}
	if s.focused == w || s.prev == w {
		if s.prev == w {
			s.prev = nil
		}
		if s.focused == w {
			s.focused = nil
			s.focusAbs(0)
		}
	}
}

// focus moves focus to w and swaps the registered widget commands.
func (s *Screen) focus(w view.Widget) {
	if s.focused == w {
		return
	}
	if s.focused != nil {
		s.reg.UnregisterAll(s.focused.Owner())
	}
	s.focused = w
	if w == nil {
		return
	}
	cmds, types := w.Commands()
	s.reg.RegisterArgTypes(w.Owner(), types...)
	s.reg.RegisterCommands(w.Owner(), cmds...)
	s.log.Debug("focus", "window", w.Name())
}

// focusOrder is the topmost window first. The info box never takes focus
// on its own, so it is left out when skipPassive is set.
func (s *Screen) focusOrder(skipInput, skipPassive bool) []view.Widget {
	var out []view.Widget
	for i := len(s.order) - 1; i >= 0; i-- {
		w := s.order[i]
		if skipInput && w == view.Widget(s.input) {
			continue
		}
		if skipPassive && w == view.Widget(s.boxes["infobox"]) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func wrapIndex(idx, n int) int {
	idx %= n
	if idx < 0 {
		idx += n
	}
	return idx
}

func (s *Screen) focusAbs(idx int) {
	order := s.focusOrder(false, true)
	if len(order) == 0 {
		return
	}
	s.focus(order[wrapIndex(idx, len(order))])
}

func (s *Screen) focusRel(delta int) {
	order := s.focusOrder(true, false)
	if len(order) == 0 {
		return
	}
	cur := 0
	for i, w := range order {
		if w == s.focused {
			cur = i
			break
		}
	}
	s.focus(order[wrapIndex(cur+delta, len(order))])
}

// arrange lays out the open windows and records the focus order: tiles
// first, floats after them.
func (s *Screen) arrange() []*layout.Window {
	wins := make([]*layout.Window, 0, len(s.open))
	byWin := make(map[*layout.Window]view.Widget, len(s.open))
	for _, w := range s.open {
		win := w.Window()
		wins = append(wins, win)
		byWin[win] = w
	}
	tiles, floats := layout.Arrange(wins, max(s.height, 0), max(s.width, 0))
	s.order = s.order[:0]
	placed := append(tiles, floats...)
	for _, win := range placed {
		s.order = append(s.order, byWin[win])
	}
	return placed
}

func (s *Screen) Resize(height, width int) {
	s.height, s.width = height, width
	s.arrange()
}

// Compose draws every window into a fresh frame.
func (s *Screen) Compose() *cellgrid.Grid {
	frame := cellgrid.New(max(s.height, 0), max(s.width, 0))
	if s.height <= 0 || s.width <= 0 {
		s.frame = frame
		return frame
	}
	placed := s.arrange()
	for i, win := range placed {
		s.paint(frame, s.order[i], win)
	}
	s.frame = frame
	return frame
}

func (s *Screen) paint(frame *cellgrid.Grid, w view.Widget, win *layout.Window) {
	r := win.Rect
	if r.Height <= 0 || r.Width <= 0 {
		return
	}
	g := cellgrid.New(r.Height, r.Width)
	used := 0
	if err := theme.Safe(func() { used = w.Draw(g) }); err != nil {
		s.log.Error(fmt.Sprintf("Failed to draw %s: %v", w.Name(), err))
		return
	}
	if !win.Float {
		used = r.Height
	}
	cellgrid.Blit(frame, g, 0, 0, r.Top, r.Left, min(used, r.Height), r.Width)
}

func (s *Screen) Render() string {
	return cellgrid.Flush(s.Compose(), s.palette)
}

// binding returns the command bound to key in a key section. "None"
// unbinds a key inherited from the defaults.
func (s *Screen) binding(section, key string) (string, bool) {
	cmd, ok := s.env.Mirror.OptMap(section + ".key")[key]
	if !ok || cmd == "" || cmd == "None" {
		return "", false
	}
	return cmd, true
}

// Key runs the command bound to key. Global and screen bindings win over
// the focused window's, except while the input line is taking text.
func (s *Screen) Key(key, text string) error {
	if s.focused == view.Widget(s.input) && s.input.Active() {
		if cmd, ok := s.binding("input", key); ok {
			return s.env.Dispatch.Execute(cmd)
		}
		if text != "" {
			s.input.Insert(text)
		}
		return nil
	}
	sections := []string{"main", "screen"}
	if s.focused != nil {
		sections = append(sections, s.focused.Name())
	}
	for _, section := range sections {
		if cmd, ok := s.binding(section, key); ok {
			return s.env.Dispatch.Execute(cmd)
		}
	}
	return nil
}

// Bind changes the binding in whichever section currently binds key,
// looking at the focused window first. An unbound key goes to the focused
// window.
func (s *Screen) Bind(key, cmd string) error {
	var sections []string
	if s.focused != nil {
		sections = append(sections, s.focused.Name())
	}
	sections = append(sections, "screen", "main")
	target := sections[0]
	for _, section := range sections {
		if _, ok := s.env.Mirror.OptMap(section + ".key")[key]; ok {
			target = section
			break
		}
	}
	keys := map[string]any{}
	for k, v := range s.env.Mirror.OptMap(target + ".key") {
		keys[k] = v
	}
	keys[key] = cmd
	return s.env.Mirror.SetOpt(target+".key", keys)
}

// Binding reports what key runs, searched in precedence order.
func (s *Screen) Binding(key string) (string, bool) {
	sections := []string{"main", "screen"}
	if s.focused != nil {
		sections = append(sections, s.focused.Name())
	}
	for _, section := range sections {
		if cmd, ok := s.binding(section, key); ok {
			return cmd, true
		}
	}
	return "", false
}

func (s *Screen) commands() []command.Command {
	idx := command.Arg{Name: "idx", Type: "optint"}
	return []command.Command{
		{Name: "focus", Group: "screen", Help: "Focus the idx-th window, topmost first",
			Args: []command.Arg{idx},
			Run:  func(a []any) error { s.focusAbs(a[0].(int)); return nil }},
		{Name: "focus-rel", Group: "screen", Help: "Move focus by idx windows",
			Args: []command.Arg{idx},
			Run:  func(a []any) error { s.focusRel(a[0].(int)); return nil }},
		{Name: "resize", Group: "screen", Help: "Lay the windows out again",
			Run: func([]any) error { s.arrange(); return nil }},
		{Name: "color", Group: "screen", Help: "Set a color pair: color idx fg [bg]",
			Args: []command.Arg{
				{Name: "idx", Type: "color-index", Prompt: "color index: "},
				{Name: "fg", Type: "word", Prompt: "color: "},
				{Name: "bg", Type: "string"},
			},
			Run: func(a []any) error { return s.setColor(a[0].(string), a[1].(string), a[2].(string)) }},
		{Name: "dump-screen", Group: "screen", Help: "Write the current frame to a file",
			Args: []command.Arg{{Name: "filename", Type: "word", Prompt: "filename: "}},
			Run:  func(a []any) error { return s.dump(a[0].(string)) }},
	}
}

func (s *Screen) colorIndexType() command.ArgType {
	return command.ArgType{
		Name: "color-index", Help: "A color pair from 1 to 256, a color name, deffg or defbg",
		Factory: func() ([]string, command.Validator) {
			names := append([]string{"deffg", "defbg"}, mirror.NamedColors...)
			return names, func(raw string) (any, error) {
				raw = strings.TrimSpace(raw)
				if n, err := strconv.Atoi(raw); err == nil {
					if n < 1 || n > theme.MaxPair {
						return nil, fmt.Errorf("color index must be between 1 and %d or 'deffg' or 'defbg'", theme.MaxPair)
					}
					return raw, nil
				}
				for _, name := range names {
					if raw == name {
						return raw, nil
					}
				}
				return nil, fmt.Errorf("unknown color index: %q", raw)
			}
		},
	}
}

func colorArg(raw string) any {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return raw
}

// setColor keeps a pair's background when only the foreground is given.
// deffg, defbg and the named entries hold a single value.
func (s *Screen) setColor(idx, fg, bg string) error {
	path := "color." + idx
	bg = strings.TrimSpace(bg)
	if _, err := strconv.Atoi(idx); err != nil {
		return s.env.Mirror.SetOpt(path, colorArg(fg))
	}
	if bg == "" {
		if cur, ok := s.env.Mirror.Opt(path); ok && cur.Kind == mirror.KindMap {
			if old, ok := cur.M["bg"]; ok {
				return s.env.Mirror.SetOpt(path, map[string]any{"fg": colorArg(fg), "bg": old.Value()})
			}
		}
		return s.env.Mirror.SetOpt(path, colorArg(fg))
	}
	return s.env.Mirror.SetOpt(path, map[string]any{"fg": colorArg(fg), "bg": colorArg(bg)})
}

func (s *Screen) dump(filename string) error {
	frame := s.frame
	if frame == nil {
		frame = s.Compose()
	}
	if err := os.WriteFile(filename, []byte(frame.String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("dump screen: %w", err)
	}
	return nil
}

// Close drops every widget and the screen's own hooks and commands.
func (s *Screen) Close() {
	for _, w := range s.open {
		s.reg.UnregisterAll(w.Owner())
		w.Close()
	}
	s.open = nil
	s.reg.UnregisterAll(s.owner)
	s.env.Bus.UnhookAll(s.owner)
}
