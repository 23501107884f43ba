package view

import (
	"github.com/glabrego/canto-ng/internal/cellgrid"
	"github.com/glabrego/canto-ng/internal/markup"
	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/store"
	"github.com/glabrego/canto-ng/internal/tui/theme"
)

const waitingText = "%1%DWaiting on content...%d%0"

// storyState is everything besides attributes and config that changes how
// a story looks.
type storyState struct {
	Offset        int
	Rel           int
	Selected      bool
	Marked        bool
	Enumerated    bool
	TagEnumerated bool
}

// storyStyle is the story config, read once per draw.
type storyStyle struct {
	format   markup.Tree
	fallback markup.Tree
	strs     map[string]string
	attrs    []string
	border   bool
	gen      int
}

var defaultStoryTree = mustParse(mirror.DefaultStoryFormat)

func mustParse(s string) markup.Tree {
	t, err := markup.Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (e *Env) storyStyle(gen int) *storyStyle {
	m := e.Mirror
	st := &storyStyle{
		fallback: defaultStoryTree,
		strs:     m.OptMap("story"),
		attrs:    m.OptStrings("story.format_attrs"),
		border:   m.OptBool("taglist.border"),
		gen:      gen,
	}
	format, err := markup.Parse(m.OptString("story.format"))
	if err != nil {
		e.logger().Warn("bad story format, using the default", "error", err)
		format = defaultStoryTree
	}
	st.format = format
	return st
}

type storyKey struct {
	width int
	state storyState
	gen   int
}

// storyView caches the last render of one story.
type storyView struct {
	id      string
	key     storyKey
	grid    *cellgrid.Grid
	stale   bool
	waiting bool
}

func storyBorders(border bool) (left, cont, right string) {
	if !border {
		return "%C %c", "%C     %c", "%C %c"
	}
	ls, rs := theme.Border("ls"), theme.Border("rs")
	return "%C%B%1" + ls + "%0%b %c", "%C%B%1" + ls + "%0%b     %c", "%C %B%1" + rs + "%0%b%c"
}

func storyEnv(attrs store.Attrs, st storyState, sty *storyStyle) markup.Env {
	env := markup.Env{}
	for k, v := range sty.strs {
		env[k] = v
	}
	env["en"] = st.Enumerated
	env["i"] = st.Offset
	env["ren"] = st.TagEnumerated
	env["x"] = st.Rel
	env["sel"] = st.Selected
	env["m"] = st.Marked
	env["rd"] = attrs.HasState("read")
	env["t"] = markup.Escape(attrs.String("title"))
	env["l"] = markup.Escape(attrs.String("link"))
	env["item"] = map[string]any(attrs)
	return env
}

func (e *Env) storyMarkup(attrs store.Attrs, st storyState, sty *storyStyle) string {
	env := storyEnv(attrs, st, sty)
	s, err := sty.format.Eval(env)
	if err == nil {
		return s
	}
	e.logger().Warn("story format failed, using the default", "error", err)
	s, err = sty.fallback.Eval(env)
	if err != nil {
		return markup.Escape(attrs.String("title"))
	}
	return s
}

// render returns the story's cells at width, from cache when nothing it
// depends on moved. Stories still missing format attributes render as a
// placeholder and report waiting.
func (e *Env) renderStory(sv *storyView, st storyState, sty *storyStyle, width int) *cellgrid.Grid {
	key := storyKey{width: width, state: st, gen: sty.gen}
	if sv.grid != nil && !sv.stale && sv.key == key {
		return sv.grid
	}
	left, cont, right := storyBorders(sty.border)

	var g *cellgrid.Grid
	if missing := e.Store.Missing(sv.id, sty.attrs...); len(missing) > 0 {
		sv.waiting = true
		g, _ = e.paint(waitingText, width, left, cont, right, 1)
	} else {
		sv.waiting = false
		attrs := e.Store.Get(sv.id)
		limit := 0
		if st.Enumerated || st.TagEnumerated {
			// hints must not change the layout
			plain := st
			plain.Enumerated, plain.TagEnumerated = false, false
			limit = e.countLines(e.storyMarkup(attrs, plain, sty), width, left, cont, right)
		}
		var more bool
		g, more = e.paint(e.storyMarkup(attrs, st, sty), width, left, cont, right, limit)
		if more {
			ellipsis(g, right, e.measure())
		}
	}
	sv.grid, sv.key, sv.stale = g, key, false
	return g
}
