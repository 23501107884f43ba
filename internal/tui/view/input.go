package view

import (
	"fmt"
	"strings"

	"github.com/glabrego/canto-ng/internal/cellgrid"
	"github.com/glabrego/canto-ng/internal/command"
	"github.com/glabrego/canto-ng/internal/hooks"
	"github.com/glabrego/canto-ng/internal/layout"
	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/tui/state"
)

// Input is the one-line prompt. It serves one question at a time.
type Input struct {
	env   *Env
	win   layout.Window
	owner hooks.Owner

	label  string
	buf    []rune
	pos    int
	resume func(answer string, err error)

	// Completer lists candidates for the word before the cursor.
	Completer func(label, line string) []string
}

func NewInput(env *Env) *Input {
	return &Input{
		env:   env,
		win:   layout.Window{Name: "input", Align: "bottom", Size: fixedHeight(1)},
		owner: hooks.NewOwner(),
	}
}

func (in *Input) Name() string       { return "input" }
func (in *Input) Owner() hooks.Owner { return in.owner }
func (in *Input) Close()             {}

func (in *Input) Window() *layout.Window {
	configureWindow(in.env.Mirror, "input", &in.win)
	in.win.Float = false
	return &in.win
}

// Active reports whether a prompt is waiting for an answer.
func (in *Input) Active() bool { return in.resume != nil }

// Prompt implements command.Prompter.
func (in *Input) Prompt(label string, resume func(answer string, err error)) {
	if in.resume != nil {
		resume("", fmt.Errorf("input already open: %w", command.ErrCancelled))
		return
	}
	in.label, in.buf, in.pos, in.resume = label, nil, 0, resume
	in.env.Mirror.SetVar(mirror.VarInputPrompt, label)
	in.env.Host.OpenInput()
}

func (in *Input) Text() string { return string(in.buf) }

// Insert types s at the cursor.
func (in *Input) Insert(s string) {
	r := []rune(s)
	buf := make([]rune, 0, len(in.buf)+len(r))
	buf = append(buf, in.buf[:in.pos]...)
	buf = append(buf, r...)
	buf = append(buf, in.buf[in.pos:]...)
	in.buf = buf
	in.pos += len(r)
}

func (in *Input) finish(answer string, err error) {
	resume := in.resume
	in.label, in.buf, in.pos, in.resume = "", nil, 0, nil
	in.env.Mirror.SetVar(mirror.VarInputPrompt, "")
	in.env.Host.CloseWidget(in)
	if resume != nil {
		resume(answer, err)
	}
}

func (in *Input) Draw(g *cellgrid.Grid) int {
	if g.Height() <= 0 {
		return 0
	}
	measure := in.env.measure()
	g.Move(0, 0)
	used := g.PutString(in.label, measure)
	room := g.Width() - used
	if room <= 0 {
		return 1
	}
	start, end := state.CenteredWindow(len(in.buf)+1, in.pos, room)
	for i := start; i < end; i++ {
		glyph := " "
		if i < len(in.buf) {
			glyph = string(in.buf[i])
		}
		if i == in.pos {
			g.Attr = cellgrid.Attr{Reverse: true}
		}
		g.Put(glyph, max(measure.Width(glyph), 1))
		g.Attr = cellgrid.Attr{}
	}
	return 1
}

// complete replaces the word before the cursor with the longest prefix
// shared by every candidate. A lone candidate is completed in full.
func (in *Input) complete() {
	if in.Completer == nil {
		return
	}
	line := string(in.buf[:in.pos])
	cands := in.Completer(in.label, line)
	if len(cands) == 0 {
		return
	}
	start := len(line)
	if toks := command.Tokens(line); len(toks) > 0 && toks[len(toks)-1].End == len(line) {
		start = toks[len(toks)-1].Start
	}
	word := commonPrefix(cands)
	if len(cands) == 1 {
		word = command.Quote(cands[0]) + " "
	} else {
		in.env.logger().Info(strings.Join(cands, " "))
	}
	head := []rune(line[:start] + word)
	in.buf = append(head, in.buf[in.pos:]...)
	in.pos = len(head)
}

func commonPrefix(words []string) string {
	if len(words) == 0 {
		return ""
	}
	p := words[0]
	for _, w := range words[1:] {
		for !strings.HasPrefix(w, p) {
			p = p[:len(p)-1]
		}
	}
	return p
}

func (in *Input) Commands() ([]command.Command, []command.ArgType) {
	run := func(f func()) func([]any) error {
		return func([]any) error { f(); return nil }
	}
	return []command.Command{
		{Name: "left", Group: "input", Help: "Move the cursor left", Run: run(func() { in.pos = max(in.pos-1, 0) })},
		{Name: "right", Group: "input", Help: "Move the cursor right", Run: run(func() { in.pos = min(in.pos+1, len(in.buf)) })},
		{Name: "home", Group: "input", Help: "Move to the start of the line", Run: run(func() { in.pos = 0 })},
		{Name: "end", Group: "input", Help: "Move to the end of the line", Run: run(func() { in.pos = len(in.buf) })},
		{Name: "backspace", Group: "input", Help: "Delete the character before the cursor", Run: run(func() {
			if in.pos > 0 {
				in.buf = append(in.buf[:in.pos-1], in.buf[in.pos:]...)
				in.pos--
			}
		})},
		{Name: "complete", Group: "input", Help: "Complete the current word", Run: run(in.complete)},
		{Name: "submit", Group: "input", Help: "Answer the prompt", Run: run(func() { in.finish(string(in.buf), nil) })},
		{Name: "cancel", Group: "input", Help: "Abandon the prompt", Run: run(func() { in.finish("", command.ErrCancelled) })},
	}, nil
}
