package view

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/glabrego/canto-ng/internal/command"
	"github.com/glabrego/canto-ng/internal/markup"
	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/tui/state"
	"github.com/glabrego/canto-ng/internal/tui/tree"
)

var errNoSelection = errors.New("nothing selected")

func (t *TagList) Commands() ([]command.Command, []command.ArgType) {
	itemList := command.RangeType("item-list", "List of stories, by offset", t.itemRange)
	itemList.PreComplete = t.prepareItems
	types := []command.ArgType{
		itemList,
		command.RangeType("tag-list", "List of tags, by visible offset", t.tagRange),
		command.Enum("tag-option", "Per-tag option", func() []string {
			return mirror.TagTemplate().Keys()
		}),
	}
	items := command.Arg{Name: "items", Type: "item-list"}
	tags := command.Arg{Name: "tags", Type: "tag-list"}
	st := command.Arg{Name: "state", Type: "word", Prompt: "state: "}

	cmds := []command.Command{
		{Name: "rel-set-cursor", Group: "taglist", Help: "Move the selection by n stories",
			Args: []command.Arg{{Name: "n", Type: "int", Prompt: "offset: "}},
			Run:  func(a []any) error { t.RelSetCursor(a[0].(int)); return nil }},
		{Name: "unset-cursor", Group: "taglist", Help: "Clear the selection",
			Run: func([]any) error { t.ensure(); t.setSelection(tree.Key{}, false); return nil }},
		{Name: "foritems", Group: "taglist", Help: "Collect stories for the following commands",
			Args: []command.Arg{items},
			Run: func(a []any) error {
				t.gotItems = append([]StorySel{}, a[0].([]StorySel)...)
				return nil
			}},
		{Name: "foritem", Group: "taglist", Help: "Collect one story for the following commands",
			Args: []command.Arg{items},
			Run: func(a []any) error {
				got := a[0].([]StorySel)
				if len(got) > 1 {
					t.env.logger().Info("Only using the first of the selected stories.")
					got = got[:1]
				}
				t.gotItems = append([]StorySel{}, got...)
				return nil
			}},
		{Name: "clearitems", Group: "taglist", Help: "Forget collected stories",
			Run: func([]any) error { t.gotItems = nil; return nil }},
		{Name: "page-down", Group: "taglist", Help: "Move down a screen",
			Run: func([]any) error { t.Page(1); return nil }},
		{Name: "page-up", Group: "taglist", Help: "Move up a screen",
			Run: func([]any) error { t.Page(-1); return nil }},
		{Name: "next-tag", Group: "taglist", Help: "Jump to the next tag",
			Run: func([]any) error { t.NextTag(); return nil }},
		{Name: "prev-tag", Group: "taglist", Help: "Jump to the previous tag",
			Run: func([]any) error { t.PrevTag(); return nil }},
		{Name: "reader", Group: "taglist", Help: "Open the selected story in the reader",
			Run: func([]any) error { return t.openReader() }},
		{Name: "promote", Group: "taglist", Help: "Move tags up", Args: []command.Arg{tags},
			Run: func(a []any) error { return t.move(a[0].([]string), true) }},
		{Name: "demote", Group: "taglist", Help: "Move tags down", Args: []command.Arg{tags},
			Run: func(a []any) error { return t.move(a[0].([]string), false) }},
		{Name: "collapse", Group: "taglist", Help: "Hide the stories of tags", Args: []command.Arg{tags},
			Run: func(a []any) error { return t.collapse(a[0].([]string), collapseOn) }},
		{Name: "uncollapse", Group: "taglist", Help: "Show the stories of tags", Args: []command.Arg{tags},
			Run: func(a []any) error { return t.collapse(a[0].([]string), collapseOff) }},
		{Name: "toggle-collapse", Group: "taglist", Help: "Flip tags between collapsed and expanded", Args: []command.Arg{tags},
			Run: func(a []any) error { return t.collapse(a[0].([]string), collapseToggle) }},
		{Name: "search", Group: "taglist", Help: "Mark stories containing text",
			Args: []command.Arg{{Name: "text", Type: "string", Prompt: "search: "}},
			Run: func(a []any) error {
				return t.Search("^.*" + regexp.QuoteMeta(a[0].(string)) + ".*")
			}},
		{Name: "search-regex", Group: "taglist", Help: "Mark stories matching a regex",
			Args: []command.Arg{{Name: "regex", Type: "string", Prompt: "search-regex: "}},
			Run: func(a []any) error { return t.Search("^(?:" + a[0].(string) + ")") }},
		{Name: "next-marked", Group: "taglist", Help: "Select the next marked story",
			Run: func([]any) error { t.NextMarked(1); return nil }},
		{Name: "prev-marked", Group: "taglist", Help: "Select the previous marked story",
			Run: func([]any) error { t.NextMarked(-1); return nil }},
		{Name: "tag-config", Group: "taglist", Help: "Show or set an option of the selected tag",
			Args: []command.Arg{{Name: "option", Type: "tag-option"}, {Name: "value", Type: "string"}},
			Run: func(a []any) error { return t.tagConfig(a[0].(string), a[1].(string)) }},
		{Name: "add-tag", Group: "taglist", Help: "Add an extra tag to tags",
			Args: []command.Arg{{Name: "tag", Type: "word", Prompt: "add tag: "}, tags},
			Run: func(a []any) error { return t.extraTag(a[0].(string), a[1].([]string), true) }},
		{Name: "del-tag", Group: "taglist", Help: "Remove an extra tag from tags",
			Args: []command.Arg{{Name: "tag", Type: "word", Prompt: "del tag: "}, tags},
			Run: func(a []any) error { return t.extraTag(a[0].(string), a[1].([]string), false) }},
		{Name: "item-state", Group: "taglist", Help: "Set (or with -, unset) a state on stories",
			Args: []command.Arg{st, items},
			Run: func(a []any) error { t.ItemState(a[0].(string), a[1].([]StorySel)); return nil }},
		{Name: "tag-state", Group: "taglist", Help: "Set (or with -, unset) a state on every story of tags",
			Args: []command.Arg{st, tags},
			Run: func(a []any) error { t.ItemState(a[0].(string), t.tagStories(a[1].([]string))); return nil }},
		{Name: "goto", Group: "taglist", Help: "Open story links in the browser", Args: []command.Arg{items},
			Run: func(a []any) error { return t.env.Opener.Goto(t.links(a[0].([]StorySel))) }},
		{Name: "fetch", Group: "taglist", Help: "Download story links and open them locally", Args: []command.Arg{items},
			Run: func(a []any) error { return t.env.Opener.Fetch(t.links(a[0].([]StorySel))) }},
		{Name: "yank", Group: "taglist", Help: "Copy a story link to the clipboard", Args: []command.Arg{items},
			Run: func(a []any) error {
				links := t.links(a[0].([]StorySel))
				if len(links) == 0 {
					return errNoSelection
				}
				return t.env.Opener.Yank(links[0])
			}},
	}
	return cmds, types
}

// itemRange resolves story offsets against what is on screen. Without
// indices it falls back to the stories collected by foritems, then to the
// selected story.
// prepareItems brings the story tree up to date before item-list
// completion and asks for the titles of listed stories that lack one.
func (t *TagList) prepareItems() {
	t.ensure()
	var ids []string
	for _, i := range t.tree.Stories() {
		ids = append(ids, t.tree.Objs[i].ID)
	}
	if len(ids) > 0 {
		t.env.Store.Need(ids, "title")
	}
}

func (t *TagList) itemRange() command.RangeSpec[StorySel] {
	t.ensure()
	spec := command.RangeSpec[StorySel]{
		Domains: map[string][]StorySel{},
		Syms:    map[string]map[string][]int{},
		Log:     t.env.logger(),
	}
	var all []StorySel
	for _, i := range t.tree.Stories() {
		o := t.tree.Objs[i]
		all = append(all, StorySel{Tag: t.tree.Tags[o.Tag].Name, ID: o.ID})
	}
	spec.Domains[command.DomainAll] = all
	spec.Syms[command.DomainAll] = map[string][]int{"*": seq(len(all))}

	for _, tag := range t.tree.Tags {
		stories := make([]StorySel, 0, len(tag.Stories))
		for _, id := range tag.Stories {
			stories = append(stories, StorySel{Tag: tag.Name, ID: id})
		}
		spec.Domains[tag.Name] = stories
		spec.Syms[tag.Name] = map[string][]int{"*": seq(len(stories))}
	}

	sel, story := t.Selected()
	if i, ok := t.selIndex(); ok {
		o := t.tree.Objs[i]
		tag := t.tree.Tags[o.Tag]
		spec.Domains["tag"] = spec.Domains[tag.Name]
		spec.Syms["tag"] = map[string][]int{"*": seq(len(tag.Stories))}
		if o.Kind == tree.KindStory {
			spec.Syms[command.DomainAll]["."] = []int{o.Offset}
			spec.Syms["tag"]["."] = []int{o.Rel}
		}
	}

	switch {
	case t.gotItems != nil:
		spec.Fallback = t.gotItems
	case story:
		spec.Fallback = []StorySel{sel}
	}
	return spec
}

func (t *TagList) tagRange() command.RangeSpec[string] {
	t.ensure()
	names := make([]string, len(t.tree.Tags))
	for i, tag := range t.tree.Tags {
		names[i] = tag.Name
	}
	spec := command.RangeSpec[string]{
		Domains: map[string][]string{command.DomainAll: names},
		Syms:    map[string]map[string][]int{command.DomainAll: {"*": seq(len(names))}},
		Log:     t.env.logger(),
	}
	if i, ok := t.selIndex(); ok {
		ti := t.tree.Objs[i].Tag
		spec.Syms[command.DomainAll]["."] = []int{ti}
		spec.Fallback = []string{names[ti]}
	}
	return spec
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// RelSetCursor moves the selection n selectable objects. With nothing
// selected it selects the first object on screen instead.
func (t *TagList) RelSetCursor(n int) {
	t.ensure()
	cur, ok := t.selIndex()
	if !ok {
		i := t.firstSel
		if i == tree.None {
			i = t.tree.FirstSel()
		}
		if i == tree.None {
			return
		}
		t.selectObj(i, t.row(i))
		return
	}
	next := t.tree.Walk(cur, n)
	if next == cur {
		return
	}
	t.place(cur, next)
}

// place selects next, positioning it by the cursor policy relative to
// where cur sits now.
func (t *TagList) place(cur, next int) {
	loc := t.row(cur) + t.distance(cur, next)
	off := t.cursor().Place(loc, t.height, t.headerLines(next), t.lines(next))
	t.selectObj(next, off)
}

// Page moves the selection about a screen's worth of rows, keeping it at
// the same screen row.
func (t *TagList) Page(dir int) {
	t.ensure()
	cur, ok := t.selIndex()
	if !ok {
		t.RelSetCursor(dir)
		return
	}
	row := t.row(cur)
	step := state.PageStep(t.height)
	next, moved := cur, 0
	for moved < step {
		var n int
		if dir > 0 {
			n = t.tree.Objs[next].NextSel
		} else {
			n = t.tree.Objs[next].PrevSel
		}
		if n == tree.None {
			break
		}
		d := t.distance(next, n)
		if d < 0 {
			d = -d
		}
		moved += d
		next = n
	}
	if next != cur {
		t.selectObj(next, row)
	}
}

// firstSelOfTag is the first selectable object of visible tag ti.
func (t *TagList) firstSelOfTag(ti int) int {
	h := t.tree.TagObj(ti)
	if h == tree.None {
		return tree.None
	}
	if t.tree.Objs[h].SelOffset != tree.None {
		return h
	}
	n := t.tree.Objs[h].NextObj
	if n != tree.None && t.tree.Objs[n].Tag == ti && t.tree.Objs[n].SelOffset != tree.None {
		return n
	}
	return tree.None
}

func (t *TagList) jumpTo(i int) {
	t.selectObj(i, t.headerLines(i))
}

func (t *TagList) current() int {
	if i, ok := t.selIndex(); ok {
		return i
	}
	if t.firstSel != tree.None {
		return t.firstSel
	}
	return t.tree.FirstSel()
}

func (t *TagList) NextTag() {
	t.ensure()
	cur := t.current()
	if cur == tree.None {
		return
	}
	if !t.hasSel {
		t.jumpTo(cur)
		return
	}
	for ti := t.tree.Objs[cur].Tag + 1; ti < len(t.tree.Tags); ti++ {
		if i := t.firstSelOfTag(ti); i != tree.None {
			t.jumpTo(i)
			return
		}
	}
}

// PrevTag goes to the top of the current tag, or to the previous tag when
// already there.
func (t *TagList) PrevTag() {
	t.ensure()
	cur := t.current()
	if cur == tree.None {
		return
	}
	ti := t.tree.Objs[cur].Tag
	if first := t.firstSelOfTag(ti); first != cur && first != tree.None {
		t.jumpTo(first)
		return
	}
	for ti--; ti >= 0; ti-- {
		if i := t.firstSelOfTag(ti); i != tree.None {
			t.jumpTo(i)
			return
		}
	}
}

func (t *TagList) openReader() error {
	t.ensure()
	item, ok := t.Selected()
	if !ok && len(t.gotItems) > 0 {
		item, ok = t.gotItems[0], true
	}
	if !ok {
		return errNoSelection
	}
	m := t.env.Mirror
	m.SetVar(mirror.VarReaderItem, item)
	m.SetVar(mirror.VarReaderOffset, 0)
	t.env.Host.OpenReader()
	return nil
}

func (t *TagList) move(tags []string, up bool) error {
	m := t.env.Mirror
	if !up {
		// demote from the bottom so neighbours do not swap back
		rev := make([]string, len(tags))
		for i, tag := range tags {
			rev[len(tags)-1-i] = tag
		}
		tags = rev
	}
	for _, tag := range tags {
		var err error
		if up {
			err = m.Promote(tag)
		} else {
			err = m.Demote(tag)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type collapseMode int

const (
	collapseOn collapseMode = iota
	collapseOff
	collapseToggle
)

func (t *TagList) collapse(tags []string, mode collapseMode) error {
	m := t.env.Mirror
	for _, tag := range tags {
		now := m.TagConf(tag).M["collapsed"].B
		want := mode == collapseOn || (mode == collapseToggle && !now)
		if want == now {
			continue
		}
		if err := m.SetTagOpt(tag, "collapsed", want); err != nil {
			return err
		}
		if !t.hasSel || t.sel.Tag != tag {
			continue
		}
		switch {
		case want && t.sel.ID != "":
			// the story disappears with its tag's list; its header takes over
			row := t.targetOff - t.headerLines0(t.sel)
			k := tree.Key{Tag: tag}
			t.setSelection(k, true)
			t.target, t.hasTarget, t.targetOff = k, true, max(row, 0)
		case !want && t.sel.ID == "":
			if ids := t.shown[tag]; len(ids) > 0 {
				k := tree.Key{Tag: tag, ID: ids[0]}
				t.setSelection(k, true)
				t.target, t.hasTarget = k, true
			}
		}
	}
	return nil
}

// headerLines0 is headerLines for a key that may not be in the tree.
func (t *TagList) headerLines0(k tree.Key) int {
	if i, ok := t.tree.Find(k); ok {
		return t.headerLines(i)
	}
	return 0
}

// Search marks every visible story whose search attributes match pattern
// and unmarks the rest. Stories missing an attribute are marked once it
// arrives.
func (t *TagList) Search(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("%w: %v", command.ErrBadArgument, err)
	}
	t.search = re
	t.runSearch()
	return nil
}

func (t *TagList) runSearch() {
	t.ensure()
	attrs := t.env.Mirror.OptStrings("taglist.search_attributes")
	t.searchWait = map[string]struct{}{}
	var need []string
	for _, tag := range t.tree.Tags {
		for _, id := range tag.Stories {
			if len(t.env.Store.Missing(id, attrs...)) > 0 {
				t.searchWait[id] = struct{}{}
				need = append(need, id)
				continue
			}
			a := t.env.Store.Get(id)
			match := false
			for _, k := range attrs {
				if v, ok := a[k]; ok && t.search.MatchString(markup.Format(v)) {
					match = true
					break
				}
			}
			if match {
				t.marked[id] = struct{}{}
			} else {
				delete(t.marked, id)
			}
		}
	}
	if len(need) > 0 {
		t.env.Store.Need(need, attrs...)
	}
}

// NextMarked selects the next marked story in direction dir, wrapping
// around the ends.
func (t *TagList) NextMarked(dir int) {
	t.ensure()
	stories := t.tree.Stories()
	n := len(stories)
	start := -1
	if dir < 0 {
		start = n
	}
	cur, hasCur := t.selIndex()
	if hasCur && t.tree.Objs[cur].Kind == tree.KindStory {
		start = t.tree.Objs[cur].Offset
	}
	for k := 1; k <= n; k++ {
		j := ((start+dir*k)%n + n) % n
		i := stories[j]
		if !t.isMarked(t.tree.Objs[i].ID) {
			continue
		}
		if i == cur {
			return
		}
		if hasCur {
			t.place(cur, i)
		} else {
			t.jumpTo(i)
		}
		return
	}
	t.env.logger().Info("No marked items.")
}

func (t *TagList) selectedTag() (string, bool) {
	if !t.hasSel {
		return "", false
	}
	return t.sel.Tag, true
}

func (t *TagList) tagConfig(opt, value string) error {
	tag, ok := t.selectedTag()
	if !ok {
		return errNoSelection
	}
	if opt == "" {
		return fmt.Errorf("%w: no option given", command.ErrBadArgument)
	}
	if value == "" {
		cur := t.env.Mirror.TagConf(tag).M[opt]
		t.env.logger().Info(fmt.Sprintf("%s.%s = %v", tag, opt, cur.Value()))
		return nil
	}
	var v any = value
	if ev, err := markup.EvalValue(value, nil); err == nil {
		v = ev
	}
	return t.env.Mirror.SetTagOpt(tag, opt, v)
}

func (t *TagList) extraTag(extra string, tags []string, add bool) error {
	m := t.env.Mirror
	for _, tag := range tags {
		cur := m.TagConf(tag).M["extra_tags"].L
		has := false
		var next []string
		for _, e := range cur {
			if e == extra {
				has = true
				if !add {
					continue
				}
			}
			next = append(next, e)
		}
		if add && !has {
			next = append(next, extra)
		}
		if add == has {
			continue
		}
		if next == nil {
			next = []string{}
		}
		if err := m.SetTagOpt(tag, "extra_tags", next); err != nil {
			return err
		}
	}
	return nil
}

func (t *TagList) tagStories(tags []string) []StorySel {
	var out []StorySel
	for _, tag := range tags {
		for _, id := range t.shown[tag] {
			out = append(out, StorySel{Tag: tag, ID: id})
		}
	}
	return out
}

// ItemState applies a canto-state change to items. "marked" is kept in
// the view and toggles; anything else goes to the daemon.
func (t *TagList) ItemState(st string, items []StorySel) {
	remove := strings.HasPrefix(st, "-")
	name := strings.TrimPrefix(st, "-")
	changes := map[string]map[string]any{}
	for _, it := range items {
		if name == "marked" {
			switch {
			case remove:
				delete(t.marked, it.ID)
			case t.isMarked(it.ID):
				delete(t.marked, it.ID)
			default:
				t.marked[it.ID] = struct{}{}
			}
			continue
		}
		cur := t.env.Store.Get(it.ID).State()
		if p, ok := changes[it.ID]; ok {
			cur = p["canto-state"].([]string)
		}
		has := false
		for _, s := range cur {
			if s == name {
				has = true
			}
		}
		if remove != has {
			continue
		}
		next := make([]string, 0, len(cur)+1)
		for _, s := range cur {
			if s != name {
				next = append(next, s)
			}
		}
		if !remove {
			next = append(next, name)
		}
		changes[it.ID] = map[string]any{"canto-state": next}
	}
	t.env.Store.SetAttributes(changes)
}

func (t *TagList) links(items []StorySel) []string {
	var out []string
	for _, it := range items {
		if l := t.env.Store.Get(it.ID).String("link"); l != "" {
			out = append(out, l)
		}
	}
	return out
}
