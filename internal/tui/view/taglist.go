package view

import (
	"regexp"
	"strings"

	"github.com/glabrego/canto-ng/internal/cellgrid"
	"github.com/glabrego/canto-ng/internal/hooks"
	"github.com/glabrego/canto-ng/internal/layout"
	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/store"
	"github.com/glabrego/canto-ng/internal/tui/state"
	"github.com/glabrego/canto-ng/internal/tui/tree"
)

const emptyText = "%1All tags empty.%0"

// TagList shows every visible tag with its stories and owns the story
// selection.
type TagList struct {
	env   *Env
	win   layout.Window
	owner hooks.Owner

	shown   map[string][]string
	stories map[tree.Key]*storyView
	headers map[string]*tagView
	marked  map[string]struct{}
	// undead holds, per tag, stories kept on screen only by protection.
	undead map[string][]string
	tree    *tree.Tree
	dirty   bool
	gen     int

	sel       tree.Key
	hasSel    bool
	target    tree.Key
	hasTarget bool
	targetOff int

	oldSel    tree.Key
	hasOldSel bool
	oldOff    int

	// gotItems is set by foritems and stays nil until then.
	gotItems []StorySel

	search     *regexp.Regexp
	searchWait map[string]struct{}

	// Geometry and placement of the last draw.
	height, width int
	rows          map[int]int
	firstSel      int
	waiting       []string
	sty           *storyStyle
	tsty          *tagStyle
}

func NewTagList(env *Env) *TagList {
	t := &TagList{
		env:      env,
		win:      layout.Window{Name: "taglist", Absorb: true},
		owner:    hooks.NewOwner(),
		shown:    map[string][]string{},
		stories:  map[tree.Key]*storyView{},
		headers:  map[string]*tagView{},
		marked:   map[string]struct{}{},
		undead:   map[string][]string{},
		tree:     tree.Build(nil),
		dirty:    true,
		rows:     map[int]int{},
		firstSel: tree.None,
	}
	bus := env.Bus
	markDirty := func(any) { t.dirty = true }
	for _, ev := range []hooks.Event{hooks.EvalTagsChanged, hooks.ItemsAdded, hooks.ItemsRemoved, hooks.NewTagCore, hooks.DelTagCore, hooks.TagOptChange} {
		bus.On(ev, t.owner, markDirty)
	}
	bus.On(hooks.OptChange, t.owner, t.onOptChange)
	bus.On(hooks.Attributes, t.owner, t.onAttributes)
	bus.On(hooks.VarChange, t.owner, t.onVarChange)
	return t
}

func (t *TagList) Name() string       { return "taglist" }
func (t *TagList) Owner() hooks.Owner { return t.owner }

func (t *TagList) Window() *layout.Window {
	configureWindow(t.env.Mirror, "taglist", &t.win)
	t.win.Float = false
	return &t.win
}

func (t *TagList) Close() {
	t.env.Bus.UnhookAll(t.owner)
}

func (t *TagList) onOptChange(p any) {
	changes, _ := p.(map[string]any)
	for _, section := range []string{"story", "tag", "taglist", "color", "update", "tags", "tagorder"} {
		if mirror.Changed(changes, section) {
			t.gen++
			t.dirty = true
			return
		}
	}
}

func (t *TagList) onAttributes(p any) {
	updated, _ := p.(map[string]store.Attrs)
	if len(updated) == 0 {
		return
	}
	for key, sv := range t.stories {
		if _, ok := updated[key.ID]; ok {
			sv.stale = true
		}
	}
	if t.search == nil {
		return
	}
	for id := range updated {
		if _, ok := t.searchWait[id]; ok {
			t.runSearch()
			return
		}
	}
}

// onVarChange releases undead stories once the selection or the reader
// moves off them. Their tags are queued for the next sync as well.
func (t *TagList) onVarChange(p any) {
	changes, _ := p.(map[string]any)
	_, sel := changes[mirror.VarSelected]
	_, reader := changes[mirror.VarReaderItem]
	if (!sel && !reader) || len(t.undead) == 0 {
		return
	}
	for tag := range t.undead {
		if core, ok := t.env.Store.Core(tag); ok {
			core.MarkChanged()
		}
		t.env.Store.TagChange(tag)
	}
	t.dirty = true
}

// ensure rebuilds the object tree if anything it depends on moved.
func (t *TagList) ensure() {
	if t.dirty {
		t.refresh()
	}
}

func (t *TagList) refresh() {
	m := t.env.Mirror
	style := m.OptString("update.style")
	hide := m.OptBool("taglist.hide_empty_tags")
	protected := map[string]struct{}{}
	for _, id := range m.ProtectedIDs() {
		protected[id] = struct{}{}
	}
	keep := func(id string) bool {
		_, ok := protected[id]
		return ok
	}

	var specs []tree.TagSpec
	for off, name := range m.CurTags() {
		if core, ok := t.env.Store.Core(name); ok {
			prev, seen := t.shown[name]
			if core.Changed() || !seen {
				core.AckChanges()
				order, undead := store.Reconcile(prev, core.IDs(), style, keep)
				t.dropStories(name, prev, order)
				t.shown[name] = order
				if len(undead) > 0 {
					t.undead[name] = undead
					core.MarkChanged()
				} else {
					delete(t.undead, name)
				}
			}
		}
		ids := t.shown[name]
		if hide && len(ids) == 0 {
			continue
		}
		collapsed := false
		if c, ok := m.TagConf(name).M["collapsed"]; ok {
			collapsed = c.B
		}
		specs = append(specs, tree.TagSpec{Name: name, Offset: off, Collapsed: collapsed, Stories: ids})
	}
	t.tree = tree.Build(specs)
	t.dirty = false
	t.rows = map[int]int{}
	t.restoreSelection()
	if t.hasTarget {
		if _, ok := t.tree.Find(t.target); !ok {
			t.hasTarget = false
		}
	}
}

// dropStories forgets the stories that left a tag and tells the store they
// are no longer on screen.
func (t *TagList) dropStories(tag string, prev, next []string) {
	still := make(map[string]struct{}, len(next))
	for _, id := range next {
		still[id] = struct{}{}
	}
	var gone []string
	for _, id := range prev {
		if _, ok := still[id]; ok {
			continue
		}
		gone = append(gone, id)
		delete(t.stories, tree.Key{Tag: tag, ID: id})
		delete(t.marked, id)
	}
	if len(gone) > 0 {
		t.env.Bus.Publish(hooks.StoriesRemoved, store.StoriesRemovedEvent{Tag: tag, IDs: gone})
	}
}

// restoreSelection drops a selection the rebuild made invisible, and
// brings back an earlier one that has reappeared.
func (t *TagList) restoreSelection() {
	if t.hasSel {
		if i, ok := t.tree.Find(t.sel); ok && t.tree.Objs[i].SelOffset != tree.None {
			return
		}
		t.oldSel, t.hasOldSel, t.oldOff = t.sel, true, t.targetOff
		t.setSelection(tree.Key{}, false)
		return
	}
	if !t.hasOldSel {
		return
	}
	if i, ok := t.tree.Find(t.oldSel); ok && t.tree.Objs[i].SelOffset != tree.None {
		t.setSelection(t.oldSel, true)
		t.target, t.hasTarget, t.targetOff = t.oldSel, true, t.oldOff
		t.hasOldSel = false
	}
}

func (t *TagList) setSelection(k tree.Key, ok bool) {
	t.sel, t.hasSel = k, ok
	var v any
	switch {
	case !ok:
	case k.ID == "":
		v = TagSel{Tag: k.Tag}
	default:
		v = StorySel{Tag: k.Tag, ID: k.ID}
	}
	t.env.Mirror.SetVar(mirror.VarSelected, v)
}

// selectObj selects arena object i and anchors the view so it sits at
// screen row off.
func (t *TagList) selectObj(i, off int) {
	k := t.tree.Objs[i].Key(t.tree)
	t.setSelection(k, true)
	t.target, t.hasTarget, t.targetOff = k, true, off
	t.hasOldSel = false
}

func (t *TagList) selIndex() (int, bool) {
	if !t.hasSel {
		return tree.None, false
	}
	return t.tree.Find(t.sel)
}

// Selected returns the selected story, if a story is selected.
func (t *TagList) Selected() (StorySel, bool) {
	if !t.hasSel || t.sel.ID == "" {
		return StorySel{}, false
	}
	return StorySel{Tag: t.sel.Tag, ID: t.sel.ID}, true
}

func (t *TagList) cursor() state.Cursor {
	n, _ := t.env.Mirror.Opt("taglist.cursor")
	section, _ := n.Value().(map[string]any)
	return state.CursorFromConfig(section)
}

func (t *TagList) styles() {
	if t.sty == nil || t.sty.gen != t.gen {
		t.sty = t.env.storyStyle(t.gen)
		t.tsty = t.env.tagStyle(t.gen)
	}
}

func (t *TagList) unread(tag string) int {
	n := 0
	for _, id := range t.shown[tag] {
		if !t.env.Store.Get(id).HasState("read") {
			n++
		}
	}
	return n
}

func (t *TagList) isMarked(id string) bool {
	_, ok := t.marked[id]
	return ok
}

// objGrid renders arena object i at the current width.
func (t *TagList) objGrid(i int) *cellgrid.Grid {
	t.styles()
	width := max(t.width, 1)
	o := t.tree.Objs[i]
	spec := t.tree.Tags[o.Tag]
	if o.Kind == tree.KindTag {
		tv := t.headers[spec.Name]
		if tv == nil {
			tv = &tagView{name: spec.Name}
			t.headers[spec.Name] = tv
		}
		extra, _ := t.env.Mirror.TagConf(spec.Name).M["extra_tags"]
		st := tagState{
			Offset:    spec.Offset,
			Visible:   o.Tag,
			Selected:  t.hasSel && t.sel == tree.Key{Tag: spec.Name},
			Collapsed: spec.Collapsed,
			Unread:    t.unread(spec.Name),
			Extra:     strings.Join(extra.L, "\x00"),
		}
		return t.env.renderTag(tv, st, t.tsty, width)
	}

	key := tree.Key{Tag: spec.Name, ID: o.ID}
	sv := t.stories[key]
	if sv == nil {
		sv = &storyView{id: o.ID}
		t.stories[key] = sv
	}
	tagEnum := false
	if en, ok := t.env.Mirror.TagConf(spec.Name).M["enumerated"]; ok {
		tagEnum = en.B
	}
	st := storyState{
		Offset:        o.Offset,
		Rel:           o.Rel,
		Selected:      t.hasSel && t.sel == key,
		Marked:        t.isMarked(o.ID),
		Enumerated:    t.env.Mirror.OptBool("story.enumerated"),
		TagEnumerated: tagEnum,
	}
	g := t.env.renderStory(sv, st, t.sty, width)
	if sv.waiting {
		t.waiting = append(t.waiting, o.ID)
	}
	return g
}

// hasFooter reports whether the bottom edge of a tag's box follows i.
func (t *TagList) hasFooter(i int) bool {
	t.styles()
	if !t.tsty.border {
		return false
	}
	o := t.tree.Objs[i]
	if t.tree.Tags[o.Tag].Collapsed {
		return false
	}
	return o.NextObj == tree.None || t.tree.Objs[o.NextObj].Kind == tree.KindTag
}

// lines is the height of object i including any box edge below it.
func (t *TagList) lines(i int) int {
	if t.width <= 0 {
		return 1
	}
	n := t.objGrid(i).Height()
	if t.hasFooter(i) {
		n++
	}
	return n
}

// headerLines is the height of the header that floats above story i.
func (t *TagList) headerLines(i int) int {
	o := t.tree.Objs[i]
	if o.Kind == tree.KindTag || t.width <= 0 {
		return 0
	}
	return t.objGrid(t.tree.TagObj(o.Tag)).Height()
}

// distance is the number of rows from the top of a to the top of b.
func (t *TagList) distance(a, b int) int {
	d := 0
	if b >= a {
		for i := a; i != b && i != tree.None; i = t.tree.Objs[i].NextObj {
			d += t.lines(i)
		}
		return d
	}
	for i := b; i != a && i != tree.None; i = t.tree.Objs[i].NextObj {
		d -= t.lines(i)
	}
	return d
}

// row is where object i was last drawn, or where it would land relative
// to the target when it was off screen.
func (t *TagList) row(i int) int {
	if r, ok := t.rows[i]; ok {
		return r
	}
	if ti, ok := t.targetIndex(); ok {
		return t.targetOff + t.distance(ti, i)
	}
	return 0
}

func (t *TagList) targetIndex() (int, bool) {
	if !t.hasTarget {
		return tree.None, false
	}
	return t.tree.Find(t.target)
}

// anchor works out which object starts the screen and at what row, given
// the target object and its desired offset.
func (t *TagList) anchor() (first, row int) {
	h := t.height
	ti, ok := t.targetIndex()
	off := t.targetOff
	if !ok {
		ti, off = 0, 0
	}
	off = min(off, h-t.lines(ti))
	off = max(off, t.headerLines(ti))

	for pass := 0; ; pass++ {
		first, row = ti, off
		for row > 0 && t.tree.Objs[first].PrevObj != tree.None {
			first = t.tree.Objs[first].PrevObj
			row -= t.lines(first)
		}
		if row > 0 {
			off -= row
			row = 0
		}
		if pass > 0 || row >= 0 {
			break
		}
		end := row
		for i := first; i != tree.None && end < h; i = t.tree.Objs[i].NextObj {
			end += t.lines(i)
		}
		if end >= h {
			break
		}
		off += min(h-end, -row)
	}
	if ok {
		t.targetOff = off
	}
	return first, row
}

func (t *TagList) Draw(g *cellgrid.Grid) int {
	t.ensure()
	h, w := g.Height(), g.Width()
	t.height, t.width = h, w
	t.rows = map[int]int{}
	t.firstSel = tree.None
	t.waiting = t.waiting[:0]
	if h <= 0 || w <= 0 {
		return 0
	}
	if t.tree.Len() == 0 {
		g.Move(0, 0)
		t.env.renderer(g).Line(emptyText, "", "")
		return h
	}

	first, row := t.anchor()
	top := tree.None
	for i := first; i != tree.None && row < h; i = t.tree.Objs[i].NextObj {
		og := t.objGrid(i)
		blit(g, og, row)
		t.rows[i] = row
		if top == tree.None && row+og.Height() > 0 {
			top = i
		}
		row += og.Height()
		if t.hasFooter(i) {
			blit(g, t.env.footer(w), row)
			row++
		}
	}

	covered := 0
	if top != tree.None && t.tree.Objs[top].Kind == tree.KindStory {
		head := t.tree.TagObj(t.tree.Objs[top].Tag)
		if r, ok := t.rows[head]; !ok || r < 0 {
			hg := t.objGrid(head)
			blit(g, hg, 0)
			covered = hg.Height()
		}
	}
	for i := first; i != tree.None; i = t.tree.Objs[i].NextObj {
		r, ok := t.rows[i]
		if !ok {
			break
		}
		if r >= covered && t.tree.Objs[i].SelOffset != tree.None {
			t.firstSel = i
			break
		}
	}

	if len(t.waiting) > 0 {
		t.env.Store.Need(t.waiting, t.sty.attrs...)
	}
	return h
}
