package view

import (
	"bytes"
	"sync"
	"testing"

	"github.com/glabrego/canto-ng/internal/hooks"
	"github.com/glabrego/canto-ng/internal/logging"
	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/store"
)

type sentCmd struct {
	cmd  string
	args any
}

type recorder struct {
	mu   sync.Mutex
	sent []sentCmd
}

func (r *recorder) Write(cmd string, args any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentCmd{cmd: cmd, args: args})
	return nil
}

func (r *recorder) last(cmd string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].cmd == cmd {
			return r.sent[i].args, true
		}
	}
	return nil, false
}

type fakeHost struct {
	readers int
	inputs  int
	closed  []string
}

func (h *fakeHost) OpenReader()          { h.readers++ }
func (h *fakeHost) OpenInput()           { h.inputs++ }
func (h *fakeHost) CloseWidget(w Widget) { h.closed = append(h.closed, w.Name()) }

type fakeOpener struct {
	opened  []string
	fetched []string
	yanked  string
}

func (o *fakeOpener) Goto(urls []string) error  { o.opened = append(o.opened, urls...); return nil }
func (o *fakeOpener) Fetch(urls []string) error { o.fetched = append(o.fetched, urls...); return nil }
func (o *fakeOpener) Yank(text string) error    { o.yanked = text; return nil }

type fixture struct {
	env    *Env
	rec    *recorder
	host   *fakeHost
	opener *fakeOpener
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.New(&bytes.Buffer{}, 0)
	bus := hooks.New(log.Logger)
	rec := &recorder{}
	m := mirror.New(bus, rec, log.Logger)
	s := store.New(bus, rec, nil, m, log.Logger)
	f := &fixture{rec: rec, host: &fakeHost{}, opener: &fakeOpener{}}
	f.env = &Env{Mirror: m, Store: s, Bus: bus, Host: f.host, Opener: f.opener, Log: log.Logger}
	return f
}

type story struct {
	id, title string
}

// load announces the tags and fills each with its stories, titles cached.
func (f *fixture) load(tags []string, stories map[string][]story) {
	f.env.Mirror.ListTags(tags)
	attrs := map[string]map[string]any{}
	for _, tag := range tags {
		f.env.Store.AddTag(tag)
		var ids []string
		for _, st := range stories[tag] {
			ids = append(ids, st.id)
			if st.title != "" {
				attrs[st.id] = map[string]any{"title": st.title, "canto-state": []any{}}
			}
		}
		f.env.Store.Items(tag, ids)
		f.env.Store.ItemsDone()
	}
	if len(attrs) > 0 {
		f.env.Store.Attributes(attrs)
	}
}

func sampleFixture(t *testing.T) (*fixture, *TagList) {
	t.Helper()
	f := newFixture(t)
	f.load([]string{"maintag:News", "maintag:Blogs"}, map[string][]story{
		"maintag:News":  {{"n1", "First story"}, {"n2", "Second story"}},
		"maintag:Blogs": {{"b1", "Blog post"}},
	})
	return f, NewTagList(f.env)
}
