package tree

import (
	"reflect"
	"testing"
)

func sample() *Tree {
	return Build([]TagSpec{
		{Name: "maintag:A", Offset: 0, Stories: []string{"a1", "a2"}},
		{Name: "maintag:B", Offset: 2, Collapsed: true, Stories: []string{"b1"}},
		{Name: "maintag:C", Offset: 3, Stories: []string{"c1"}},
	})
}

func ids(t *Tree, idx []int) []string {
	out := make([]string, len(idx))
	for i, n := range idx {
		out[i] = t.Objs[n].ID
	}
	return out
}

func TestBuild_ObjectOrder(t *testing.T) {
	tr := sample()
	var got []string
	for i := 0; i != None; i = tr.Objs[i].NextObj {
		got = append(got, tr.Objs[i].ID)
	}
	want := []string{"maintag:A", "a1", "a2", "maintag:B", "maintag:C", "c1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected object chain: got=%v want=%v", got, want)
	}
	if tr.Objs[tr.Len()-1].NextObj != None || tr.Objs[0].PrevObj != None {
		t.Fatalf("chain ends should be open")
	}
}

func TestBuild_CollapsedTagIsSelectable(t *testing.T) {
	tr := sample()
	got := ids(tr, tr.Selectable())
	want := []string{"a1", "a2", "maintag:B", "c1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected selectable objects: got=%v want=%v", got, want)
	}
	b, _ := tr.Find(Key{Tag: "maintag:B"})
	if tr.Objs[b].SelOffset != 2 {
		t.Fatalf("expected collapsed tag at sel offset 2, got %d", tr.Objs[b].SelOffset)
	}
	if _, ok := tr.Find(Key{Tag: "maintag:B", ID: "b1"}); ok {
		t.Fatalf("stories of collapsed tags must not be in the arena")
	}
	a, _ := tr.Find(Key{Tag: "maintag:A"})
	if tr.Objs[a].SelOffset != None {
		t.Fatalf("expanded tag header should not be selectable")
	}
}

func TestBuild_NextStoryBackfillsHeaders(t *testing.T) {
	tr := sample()
	a2, _ := tr.Find(Key{Tag: "maintag:A", ID: "a2"})
	b, _ := tr.Find(Key{Tag: "maintag:B"})
	c, _ := tr.Find(Key{Tag: "maintag:C"})
	c1, _ := tr.Find(Key{Tag: "maintag:C", ID: "c1"})
	for _, i := range []int{a2, b, c} {
		if tr.Objs[i].NextStory != c1 {
			t.Fatalf("object %q: expected next story c1, got %d", tr.Objs[i].ID, tr.Objs[i].NextStory)
		}
	}
	if tr.Objs[c1].PrevStory != a2 {
		t.Fatalf("expected c1 to follow a2")
	}
}

func TestBuild_Offsets(t *testing.T) {
	tr := sample()
	c1, _ := tr.Find(Key{Tag: "maintag:C", ID: "c1"})
	if o := tr.Objs[c1]; o.Offset != 2 || o.Rel != 0 {
		t.Fatalf("unexpected offsets for c1: %+v", o)
	}
	if tr.StoryByOffset(1) != tr.Stories()[1] || tr.StoryByOffset(5) != None {
		t.Fatalf("story offset lookup broken")
	}
	if tr.TagIndex("maintag:C") != 2 || tr.TagIndex("nope") != None {
		t.Fatalf("tag lookup broken")
	}
}

func TestWalk_StopsAtEnds(t *testing.T) {
	tr := sample()
	first := tr.FirstSel()
	if got := tr.Walk(first, -3); got != first {
		t.Fatalf("walking up from the top should stay, got %d", got)
	}
	if got := tr.Walk(first, 10); got != tr.LastStory() {
		t.Fatalf("walking past the end should stop on the last story, got %d", got)
	}
	if got := tr.Walk(first, 2); tr.Objs[got].ID != "maintag:B" {
		t.Fatalf("expected to land on the collapsed tag, got %q", tr.Objs[got].ID)
	}
}

func TestBuild_Empty(t *testing.T) {
	tr := Build(nil)
	if tr.FirstSel() != None || tr.FirstStory() != None || tr.Len() != 0 {
		t.Fatalf("empty tree should have no objects")
	}
}
