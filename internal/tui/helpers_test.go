package tui

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/glabrego/canto-ng/internal/hooks"
	"github.com/glabrego/canto-ng/internal/logging"
	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/protocol"
	"github.com/glabrego/canto-ng/internal/store"
	"github.com/glabrego/canto-ng/internal/tui/view"
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

func (r *recorder) count(cmd string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.cmd == cmd {
			n++
		}
	}
	return n
}

// fakeService is a session over a real mirror and store that records what
// the front-end asks of the daemon.
type fakeService struct {
	rec    *recorder
	bus    *hooks.Bus
	mirror *mirror.Mirror
	store  *store.Store
	in     chan protocol.Inbound

	applied    []protocol.Inbound
	started    int
	ticks      int
	refreshes  int
	transforms []string
	reconnects int
	exits      int
}

func newFakeService(logger *slog.Logger) *fakeService {
	rec := &recorder{}
	bus := hooks.New(logger)
	m := mirror.New(bus, rec, logger)
	return &fakeService{
		rec:    rec,
		bus:    bus,
		mirror: m,
		store:  store.New(bus, rec, nil, m, logger),
		in:     make(chan protocol.Inbound, 4),
	}
}

func (f *fakeService) Inbound() <-chan protocol.Inbound { return f.in }
func (f *fakeService) Mirror() *mirror.Mirror           { return f.mirror }
func (f *fakeService) Store() *store.Store              { return f.store }
func (f *fakeService) Bus() *hooks.Bus                  { return f.bus }
func (f *fakeService) Start() error                     { f.started++; return nil }
func (f *fakeService) Tick()                            { f.ticks++ }
func (f *fakeService) Refresh()                         { f.refreshes++ }

func (f *fakeService) Apply(in protocol.Inbound) {
	f.applied = append(f.applied, in)
	if nt, ok := in.(protocol.NewTags); ok {
		f.mirror.NewTags(nt.Tags)
	}
}

func (f *fakeService) Transform(expr string, temporary bool) error {
	if temporary {
		expr = "temp:" + expr
	}
	f.transforms = append(f.transforms, expr)
	return nil
}

func (f *fakeService) Reconnect(context.Context) error { f.reconnects++; return nil }
func (f *fakeService) Exit(context.Context) error      { f.exits++; return nil }

type story struct {
	id, title string
}

// load announces the tags and fills each with titled stories.
func (f *fakeService) load(tags []string, stories map[string][]story) {
	f.mirror.ListTags(tags)
	attrs := map[string]map[string]any{}
	for _, tag := range tags {
		f.store.AddTag(tag)
		var ids []string
		for _, st := range stories[tag] {
			ids = append(ids, st.id)
			attrs[st.id] = map[string]any{"title": st.title, "canto-state": []any{}}
		}
		f.store.Items(tag, ids)
		f.store.ItemsDone()
	}
	if len(attrs) > 0 {
		f.store.Attributes(attrs)
	}
}

func newTestModel(t *testing.T) (Model, *fakeService) {
	t.Helper()
	log := logging.New(&bytes.Buffer{}, slog.LevelDebug)
	svc := newFakeService(log.Logger)
	m := NewModel(svc, Options{Logger: log})
	t.Cleanup(m.shutdown)
	return m, svc
}

func sampleModel(t *testing.T) (Model, *fakeService) {
	t.Helper()
	m, svc := newTestModel(t)
	svc.load([]string{"maintag:News", "maintag:Blogs"}, map[string][]story{
		"maintag:News":  {{"n1", "First story"}, {"n2", "Second story"}},
		"maintag:Blogs": {{"b1", "Blog post"}},
	})
	m.screen.Resize(12, 40)
	return m, svc
}

// press runs a key through the screen the way the model does.
func press(t *testing.T, m Model, keys ...string) {
	t.Helper()
	for _, k := range keys {
		text := ""
		if len([]rune(k)) == 1 {
			text = k
		}
		if k == "space" {
			text = " "
		}
		if err := m.screen.Key(k, text); err != nil {
			t.Fatalf("key %q: %v", k, err)
		}
	}
}

func typeText(t *testing.T, m Model, s string) {
	t.Helper()
	for _, r := range s {
		if err := m.screen.Key(string(r), string(r)); err != nil {
			t.Fatalf("type %q: %v", r, err)
		}
	}
}

func focusedName(m Model) string {
	if m.screen.focused == nil {
		return ""
	}
	return m.screen.focused.Name()
}

func sinkFor(svc *fakeService) view.Sink {
	return view.Sink{Mirror: svc.mirror}
}
