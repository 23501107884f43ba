// Package tree links the visible tags and stories of the taglist into one
// arena of objects with neighbour indices, so the view can walk up and down
// from any object without rescanning its tags.
package tree

// None marks a missing neighbour.
const None = -1

type Kind uint8

const (
	KindTag Kind = iota
	KindStory
)

func (k Kind) String() string {
	if k == KindTag {
		return "tag"
	}
	return "story"
}

// TagSpec is one visible tag with its stories in display order. Offset is
// the tag's position among all current tags, hidden ones included.
type TagSpec struct {
	Name      string
	Offset    int
	Collapsed bool
	Stories   []string
}

// Key identifies an object across rebuilds. Tag headers have an empty ID.
type Key struct {
	Tag string
	ID  string
}

type Obj struct {
	Kind Kind
	// Tag indexes Tree.Tags; VisibleOffset of the tag is the same number.
	Tag int
	ID  string

	PrevObj, NextObj     int
	PrevStory, NextStory int
	PrevSel, NextSel     int

	// Offset counts stories across all tags; Rel counts them inside their
	// own tag. Both are -1 on tag headers.
	Offset    int
	Rel       int
	SelOffset int
}

func (o Obj) Key(t *Tree) Key {
	k := Key{Tag: t.Tags[o.Tag].Name}
	if o.Kind == KindStory {
		k.ID = o.ID
	}
	return k
}

type Tree struct {
	Objs []Obj
	Tags []TagSpec

	tagObjs    []int
	stories    []int
	selectable []int
	index      map[Key]int
}

// Build lays the tags out in order. Each tag is followed by its stories
// unless it is collapsed, in which case the tag header itself becomes
// selectable and its stories stay out of the arena.
func Build(tags []TagSpec) *Tree {
	t := &Tree{
		Tags:  tags,
		index: make(map[Key]int),
	}
	prevObj, prevStory, prevSel := None, None, None
	// Objects seen since the last story still need their NextStory.
	var waiting []int

	add := func(o Obj) int {
		i := len(t.Objs)
		o.PrevObj, o.NextObj = prevObj, None
		o.PrevStory, o.NextStory = prevStory, None
		o.PrevSel, o.NextSel = None, None
		o.SelOffset = None
		if prevObj != None {
			t.Objs[prevObj].NextObj = i
		}
		t.Objs = append(t.Objs, o)
		prevObj = i
		return i
	}
	markSelectable := func(i int) {
		t.Objs[i].PrevSel = prevSel
		if prevSel != None {
			t.Objs[prevSel].NextSel = i
		}
		t.Objs[i].SelOffset = len(t.selectable)
		t.selectable = append(t.selectable, i)
		prevSel = i
	}

	for ti, tag := range tags {
		h := add(Obj{Kind: KindTag, Tag: ti, ID: tag.Name, Offset: None, Rel: None})
		t.tagObjs = append(t.tagObjs, h)
		t.index[Key{Tag: tag.Name}] = h
		waiting = append(waiting, h)
		if tag.Collapsed {
			markSelectable(h)
			continue
		}
		for rel, id := range tag.Stories {
			s := add(Obj{Kind: KindStory, Tag: ti, ID: id, Offset: len(t.stories), Rel: rel})
			for _, w := range waiting {
				t.Objs[w].NextStory = s
			}
			waiting = waiting[:0]
			t.stories = append(t.stories, s)
			t.index[Key{Tag: tag.Name, ID: id}] = s
			markSelectable(s)
			prevStory = s
			waiting = append(waiting, s)
		}
	}
	return t
}

func (t *Tree) Len() int { return len(t.Objs) }

func (t *Tree) Find(k Key) (int, bool) {
	i, ok := t.index[k]
	return i, ok
}

// TagObj returns the arena index of the header of tag ti.
func (t *Tree) TagObj(ti int) int {
	if ti < 0 || ti >= len(t.tagObjs) {
		return None
	}
	return t.tagObjs[ti]
}

// TagIndex finds a visible tag by name.
func (t *Tree) TagIndex(name string) int {
	for i, tag := range t.Tags {
		if tag.Name == name {
			return i
		}
	}
	return None
}

// Stories returns the arena indices of every story in display order.
func (t *Tree) Stories() []int { return t.stories }

// Selectable returns the arena indices the cursor can land on.
func (t *Tree) Selectable() []int { return t.selectable }

func (t *Tree) FirstSel() int   { return first(t.selectable) }
func (t *Tree) FirstStory() int { return first(t.stories) }
func (t *Tree) LastStory() int  { return last(t.stories) }

// StoryByOffset returns the story at a global story offset.
func (t *Tree) StoryByOffset(n int) int {
	if n < 0 || n >= len(t.stories) {
		return None
	}
	return t.stories[n]
}

// Walk returns the object delta selectable steps away from i, stopping at
// either end.
func (t *Tree) Walk(i, delta int) int {
	if i < 0 || i >= len(t.Objs) {
		return None
	}
	for ; delta > 0; delta-- {
		n := t.Objs[i].NextSel
		if n == None {
			break
		}
		i = n
	}
	for ; delta < 0; delta++ {
		p := t.Objs[i].PrevSel
		if p == None {
			break
		}
		i = p
	}
	return i
}

func first(xs []int) int {
	if len(xs) == 0 {
		return None
	}
	return xs[0]
}

func last(xs []int) int {
	if len(xs) == 0 {
		return None
	}
	return xs[len(xs)-1]
}
