package view

import (
	"strings"

	"github.com/glabrego/canto-ng/internal/cellgrid"
	"github.com/glabrego/canto-ng/internal/markup"
	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/tui/theme"
)

type tagState struct {
	Offset    int
	Visible   int
	Selected  bool
	Collapsed bool
	Unread    int
	Extra     string
}

type tagStyle struct {
	format     markup.Tree
	strs       map[string]string
	enumerated bool
	absolute   bool
	border     bool
	gen        int
}

var defaultTagTree = mustParse(mirror.DefaultTagFormat)

func (e *Env) tagStyle(gen int) *tagStyle {
	m := e.Mirror
	st := &tagStyle{
		strs:       m.OptMap("tag"),
		enumerated: m.OptBool("taglist.tags_enumerated"),
		absolute:   m.OptBool("taglist.tags_enumerated_absolute"),
		border:     m.OptBool("taglist.border"),
		gen:        gen,
	}
	format, err := markup.Parse(m.OptString("tag.format"))
	if err != nil {
		e.logger().Warn("bad tag format, using the default", "error", err)
		format = defaultTagTree
	}
	st.format = format
	return st
}

type tagKey struct {
	width int
	state tagState
	gen   int
}

// tagView caches a tag header. Expanded tags with a border get the top edge
// of their box as an extra row.
type tagView struct {
	name string
	key  tagKey
	grid *cellgrid.Grid
}

// displayName drops the "maintag:" style prefix.
func displayName(tag string) string {
	if _, name, ok := strings.Cut(tag, ":"); ok {
		return name
	}
	return tag
}

func tagEnv(name string, st tagState, sty *tagStyle) markup.Env {
	env := markup.Env{}
	for k, v := range sty.strs {
		env[k] = v
	}
	var extra []string
	if st.Extra != "" {
		extra = strings.Split(st.Extra, "\x00")
	}
	env["en"] = sty.enumerated
	env["aen"] = sty.absolute
	env["c"] = st.Collapsed
	env["t"] = markup.Escape(displayName(name))
	env["sel"] = st.Selected
	env["n"] = st.Unread
	env["to"] = st.Offset
	env["vto"] = st.Visible
	env["extra_tags"] = extra
	return env
}

func (e *Env) renderTag(tv *tagView, st tagState, sty *tagStyle, width int) *cellgrid.Grid {
	key := tagKey{width: width, state: st, gen: sty.gen}
	if tv.grid != nil && tv.key == key {
		return tv.grid
	}
	env := tagEnv(tv.name, st, sty)
	s, err := sty.format.Eval(env)
	if err != nil {
		e.logger().Warn("tag format failed, using the default", "tag", tv.name, "error", err)
		if s, err = defaultTagTree.Eval(env); err != nil {
			s = markup.Escape(tv.name)
		}
	}
	head, _ := e.paint(s, width, "", "", "", 0)
	if sty.border && !st.Collapsed {
		g := cellgrid.New(head.Height()+1, width)
		blit(g, head, 0)
		blit(g, e.rule(width, theme.Border("tl"), theme.Border("ts"), theme.Border("tr")), head.Height())
		head = g
	}
	tv.grid, tv.key = head, key
	return head
}

// footer closes an expanded tag's box.
func (e *Env) footer(width int) *cellgrid.Grid {
	return e.rule(width, theme.Border("bl"), theme.Border("bs"), theme.Border("br"))
}
