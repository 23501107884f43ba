package view

import (
	"github.com/glabrego/canto-ng/internal/command"
	"github.com/glabrego/canto-ng/internal/hooks"
	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/render/article"
	"github.com/glabrego/canto-ng/internal/store"
)

type readerKey struct {
	item StorySel
	opts article.Options
	gen  int
}

// Reader shows the story in the reader_item var, converted from HTML.
type Reader struct {
	*TextBox

	links []article.Link
	key   readerKey
	text  string
	gen   int
}

func NewReader(env *Env) *Reader {
	r := &Reader{}
	r.TextBox = newTextBox(env, "reader", r.compose)
	r.strip = true
	r.extra = r.commands

	bus := env.Bus
	bus.On(hooks.Attributes, r.owner, func(p any) {
		updated, _ := p.(map[string]store.Attrs)
		if item, ok := ReaderItem(env.Mirror); ok {
			if _, hit := updated[item.ID]; hit {
				r.gen++
			}
		}
	})
	bus.On(hooks.OptChange, r.owner, func(p any) {
		changes, _ := p.(map[string]any)
		if mirror.Changed(changes, "reader") || mirror.Changed(changes, "color") {
			r.gen++
		}
	})
	bus.On(hooks.VarChange, r.owner, func(p any) {
		vars, _ := p.(map[string]any)
		sel, ok := vars[mirror.VarSelected].(StorySel)
		if !ok {
			return
		}
		if cur, open := ReaderItem(env.Mirror); open && cur != sel {
			env.Mirror.SetVar(mirror.VarReaderItem, sel)
			env.Mirror.SetVar(mirror.VarReaderOffset, 0)
		}
	})
	return r
}

// readerAttributes is every attribute the reader text is built from.
func readerAttributes() []string {
	return append([]string{"title", "link"}, article.Attributes...)
}

func (r *Reader) compose() string {
	m := r.env.Mirror
	item, ok := ReaderItem(m)
	if !ok {
		r.links = nil
		return ""
	}
	if missing := r.env.Store.Missing(item.ID, readerAttributes()...); len(missing) > 0 {
		r.env.Store.Need([]string{item.ID}, missing...)
		r.links = nil
		return waitingText
	}
	key := readerKey{
		item: item,
		opts: article.Options{
			ShowDescription: m.OptBool("reader.show_description"),
			EnumerateLinks:  m.OptBool("reader.enumerate_links"),
			ShowEnclosures:  m.OptBool("reader.show_enclosures"),
			Cleanup:         true,
		},
		gen: r.gen,
	}
	if key != r.key || r.text == "" {
		r.text, r.links = article.Compose(r.env.Store.Get(item.ID), key.opts)
		r.key = key
	}
	return r.text
}

// Links are the links of the story on display; link 0 is the story's own.
func (r *Reader) Links() []article.Link {
	r.compose()
	return r.links
}

func (r *Reader) linkRange() command.RangeSpec[article.Link] {
	links := r.Links()
	spec := command.RangeSpec[article.Link]{
		Domains: map[string][]article.Link{command.DomainAll: links},
		Syms:    map[string]map[string][]int{command.DomainAll: {"*": seq(len(links))}},
		Log:     r.env.logger(),
	}
	if len(links) > 0 {
		spec.Fallback = links[:1]
	}
	return spec
}

func urls(links []article.Link) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		if l.URL != "" {
			out = append(out, l.URL)
		}
	}
	return out
}

func (r *Reader) destroy() {
	r.env.Mirror.SetVar(mirror.VarReaderItem, nil)
	r.env.Host.CloseWidget(r)
}

func (r *Reader) commands() ([]command.Command, []command.ArgType) {
	links := command.Arg{Name: "links", Type: "link-list"}
	toggle := func(opt string) func([]any) error {
		return func([]any) error { return r.env.Mirror.Toggle(opt) }
	}
	cmds := []command.Command{
		{Name: "goto", Group: "reader", Help: "Open links in the browser", Args: []command.Arg{links},
			Run: func(a []any) error { return r.env.Opener.Goto(urls(a[0].([]article.Link))) }},
		{Name: "fetch", Group: "reader", Help: "Download links and open them locally", Args: []command.Arg{links},
			Run: func(a []any) error { return r.env.Opener.Fetch(urls(a[0].([]article.Link))) }},
		{Name: "yank", Group: "reader", Help: "Copy a link to the clipboard", Args: []command.Arg{links},
			Run: func(a []any) error {
				u := urls(a[0].([]article.Link))
				if len(u) == 0 {
					return errNoSelection
				}
				return r.env.Opener.Yank(u[0])
			}},
		{Name: "show-links", Group: "reader", Help: "Toggle the numbered link list",
			Run: toggle("reader.enumerate_links")},
		{Name: "show-summary", Group: "reader", Help: "Toggle the story text",
			Run: toggle("reader.show_description")},
		{Name: "show-enclosures", Group: "reader", Help: "Toggle enclosure links",
			Run: toggle("reader.show_enclosures")},
		{Name: "destroy", Group: "reader", Help: "Close the reader",
			Run: func([]any) error { r.destroy(); return nil }},
	}
	return cmds, []command.ArgType{command.RangeType("link-list", "List of links, by number", r.linkRange)}
}
