package view

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glabrego/canto-ng/internal/command"
	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/protocol"
)

func run(t *testing.T, w Widget, name string) {
	t.Helper()
	cmds, _ := w.Commands()
	for _, c := range cmds {
		if c.Name == name {
			if err := c.Run(nil); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
			return
		}
	}
	t.Fatalf("%s has no %s command", w.Name(), name)
}

func TestRenderStory_WaitsForFormatAttributes(t *testing.T) {
	f := newFixture(t)
	sv := &storyView{id: "x"}
	g := f.env.renderStory(sv, storyState{}, f.env.storyStyle(0), 40)
	if !sv.waiting {
		t.Fatalf("expected story without a title to wait")
	}
	if g.Height() != 1 || !strings.Contains(g.Line(0), "Waiting on content...") {
		t.Fatalf("unexpected waiting render %q", g.String())
	}
}

func TestRenderStory_WrapsLongTitles(t *testing.T) {
	f := newFixture(t)
	f.env.Store.Attributes(map[string]map[string]any{
		"x": {"title": strings.Repeat("word ", 12)},
	})
	sv := &storyView{id: "x"}
	g := f.env.renderStory(sv, storyState{}, f.env.storyStyle(0), 20)
	if sv.waiting {
		t.Fatalf("did not expect to wait")
	}
	if g.Height() < 3 {
		t.Fatalf("expected the title to wrap over several rows, got %d:\n%s", g.Height(), g.String())
	}
}

func TestTextBox_ScrollStopsAtLastPage(t *testing.T) {
	f := newFixture(t)
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	tb := newTextBox(f.env, "infobox", func() string { return strings.Join(lines, "\n") })
	draw(t, tb, 3, 20)

	tb.Scroll(100)
	if got := f.env.Mirror.VarInt(mirror.VarInfoboxOffset); got != 7 {
		t.Fatalf("expected offset 7, got %d", got)
	}
	g := draw(t, tb, 3, 20)
	if !strings.Contains(g.Line(0), "line 7") || !strings.Contains(g.Line(2), "line 9") {
		t.Fatalf("unexpected page:\n%s", g.String())
	}

	tb.Scroll(-100)
	if got := f.env.Mirror.VarInt(mirror.VarInfoboxOffset); got != 0 {
		t.Fatalf("expected offset 0, got %d", got)
	}
}

func TestErrorBox_DestroyClearsMessage(t *testing.T) {
	f := newFixture(t)
	box := NewErrorBox(f.env)
	Sink{Mirror: f.env.Mirror}.Error("bad %thing")
	Sink{Mirror: f.env.Mirror}.Error("worse")
	if got := f.env.Mirror.VarString(mirror.VarErrorMsg); got != "bad %thing\nworse" {
		t.Fatalf("expected messages to accumulate, got %q", got)
	}

	g := draw(t, box, 4, 30)
	if !strings.Contains(g.Line(0), "bad %thing") {
		t.Fatalf("expected escaped message to show verbatim, got %q", g.Line(0))
	}

	run(t, box, "destroy")
	if got := f.env.Mirror.VarString(mirror.VarErrorMsg); got != "" {
		t.Fatalf("expected message cleared, got %q", got)
	}
}

func TestReader_WaitsThenShowsStory(t *testing.T) {
	f := newFixture(t)
	r := NewReader(f.env)
	defer r.Close()
	item := StorySel{Tag: "maintag:News", ID: "n1"}
	f.env.Mirror.SetVar(mirror.VarReaderItem, item)

	g := draw(t, r, 5, 40)
	if !strings.Contains(g.String(), "Waiting on content...") {
		t.Fatalf("expected waiting text, got:\n%s", g.String())
	}
	req, ok := f.rec.last(protocol.CmdAttributes)
	if !ok || len(req.(map[string][]string)["n1"]) != len(readerAttributes()) {
		t.Fatalf("expected reader attributes to be requested, got %#v", req)
	}

	attrs := map[string]any{"title": "Headline", "link": "https://example.com/a"}
	for _, a := range readerAttributes()[2:] {
		if _, ok := attrs[a]; !ok {
			attrs[a] = ""
		}
	}
	attrs["description"] = "<p>Body text</p>"
	f.env.Store.Attributes(map[string]map[string]any{"n1": attrs})

	g = draw(t, r, 5, 40)
	if !strings.Contains(g.String(), "Headline") {
		t.Fatalf("expected the title, got:\n%s", g.String())
	}
	links := r.Links()
	if len(links) == 0 || links[0].URL != "https://example.com/a" {
		t.Fatalf("expected the story link first, got %#v", links)
	}

	run(t, r, "goto")
	if len(f.opener.opened) != 1 || f.opener.opened[0] != "https://example.com/a" {
		t.Fatalf("expected goto to open the story link, got %v", f.opener.opened)
	}

	run(t, r, "destroy")
	if f.env.Mirror.Var(mirror.VarReaderItem) != nil {
		t.Fatalf("expected reader item cleared")
	}
	if len(f.host.closed) != 1 || f.host.closed[0] != "reader" {
		t.Fatalf("expected the host to close the reader, got %v", f.host.closed)
	}
}

func TestReader_FollowsSelection(t *testing.T) {
	f := newFixture(t)
	r := NewReader(f.env)
	defer r.Close()
	f.env.Mirror.SetVar(mirror.VarReaderItem, StorySel{Tag: "t", ID: "a"})
	f.env.Mirror.SetVar(mirror.VarReaderOffset, 4)

	f.env.Mirror.SetVar(mirror.VarSelected, StorySel{Tag: "t", ID: "b"})
	if got := f.env.Mirror.Var(mirror.VarReaderItem); got != (StorySel{Tag: "t", ID: "b"}) {
		t.Fatalf("expected reader to follow the selection, got %#v", got)
	}
	if got := f.env.Mirror.VarInt(mirror.VarReaderOffset); got != 0 {
		t.Fatalf("expected offset reset, got %d", got)
	}
}

func TestInput_SubmitResumesPrompt(t *testing.T) {
	f := newFixture(t)
	in := NewInput(f.env)

	var answer string
	var gotErr error
	in.Prompt("tag: ", func(a string, err error) { answer, gotErr = a, err })
	if !in.Active() || f.host.inputs != 1 {
		t.Fatalf("expected the input to open")
	}
	if got := f.env.Mirror.VarString(mirror.VarInputPrompt); got != "tag: " {
		t.Fatalf("unexpected prompt var %q", got)
	}

	in.Insert("helo")
	run(t, in, "left")
	in.Insert("l")
	g := draw(t, in, 1, 20)
	if !strings.HasPrefix(g.Line(0), "tag: hello") {
		t.Fatalf("unexpected input line %q", g.Line(0))
	}

	run(t, in, "submit")
	if answer != "hello" || gotErr != nil {
		t.Fatalf("unexpected answer %q, %v", answer, gotErr)
	}
	if in.Active() || f.env.Mirror.VarString(mirror.VarInputPrompt) != "" {
		t.Fatalf("expected the prompt to be closed")
	}
}

func TestInput_BusyPromptIsCancelled(t *testing.T) {
	f := newFixture(t)
	in := NewInput(f.env)
	in.Prompt("first: ", func(string, error) {})

	var gotErr error
	in.Prompt("second: ", func(_ string, err error) { gotErr = err })
	if !errors.Is(gotErr, command.ErrCancelled) {
		t.Fatalf("expected second prompt to be cancelled, got %v", gotErr)
	}

	var cancelled error
	in.resume = func(_ string, err error) { cancelled = err }
	run(t, in, "cancel")
	if !errors.Is(cancelled, command.ErrCancelled) {
		t.Fatalf("expected cancel to resume with ErrCancelled, got %v", cancelled)
	}
}

func TestInput_Complete(t *testing.T) {
	f := newFixture(t)
	in := NewInput(f.env)
	in.Completer = func(_, line string) []string {
		switch {
		case strings.HasSuffix(line, "pa"):
			return []string{"page-down", "page-up"}
		case strings.HasSuffix(line, "rea"):
			return []string{"reader"}
		}
		return nil
	}
	in.Prompt(":", func(string, error) {})

	in.Insert("pa")
	run(t, in, "complete")
	if got := in.Text(); got != "page-" {
		t.Fatalf("expected common prefix, got %q", got)
	}

	run(t, in, "home")
	run(t, in, "end")
	for range in.Text() {
		run(t, in, "backspace")
	}
	in.Insert("rea")
	run(t, in, "complete")
	if got := in.Text(); got != "reader " {
		t.Fatalf("expected full completion, got %q", got)
	}
}

func TestCommonPrefix(t *testing.T) {
	if got := commonPrefix([]string{"collapse", "color", "command"}); got != "co" {
		t.Fatalf("got %q", got)
	}
	if got := commonPrefix([]string{"abc", "xyz"}); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestStorySel_ItemID(t *testing.T) {
	var id mirror.Identified = StorySel{Tag: "t", ID: "x"}
	if id.ItemID() != "x" {
		t.Fatalf("unexpected id %q", id.ItemID())
	}
	if _, ok := any(TagSel{Tag: "t"}).(mirror.Identified); ok {
		t.Fatalf("tag selections must not be protected")
	}
}
