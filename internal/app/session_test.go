package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glabrego/canto-ng/internal/daemon"
	"github.com/glabrego/canto-ng/internal/fakedaemon"
	"github.com/glabrego/canto-ng/internal/hooks"
	"github.com/glabrego/canto-ng/internal/logging"
	"github.com/glabrego/canto-ng/internal/protocol"
	"github.com/glabrego/canto-ng/internal/storage"
)

type testDaemon struct {
	srv    *fakedaemon.Server
	repo   *storage.Repository
	socket string
	done   chan error
	cancel context.CancelFunc
}

func startDaemon(t *testing.T, stories []storage.Story) *testDaemon {
	t.Helper()
	repo, err := storage.NewRepository(":memory:")
	if err != nil {
		t.Fatalf("NewRepository returned error: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	if err := repo.Init(context.Background()); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	if err := repo.SaveStories(context.Background(), stories); err != nil {
		t.Fatalf("SaveStories returned error: %v", err)
	}

	dir, err := os.MkdirTemp("", "cses")
	if err != nil {
		t.Fatalf("MkdirTemp returned error: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socket := filepath.Join(dir, "sock")
	ln, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	d := &testDaemon{
		srv:    fakedaemon.New(repo, logging.Discard()),
		repo:   repo,
		socket: socket,
		done:   make(chan error, 1),
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go func() { d.done <- d.srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-d.done:
		case <-time.After(5 * time.Second):
			t.Errorf("daemon did not stop")
		}
	})
	return d
}

var sample = []storage.Story{
	{ID: "n1", Tags: []string{"maintag:News"}, Attrs: map[string]any{"title": "First", "canto-state": []any{}, "link": "https://example.com/1"}},
	{ID: "n2", Tags: []string{"maintag:News"}, Attrs: map[string]any{"title": "Second", "canto-state": []any{}, "link": "https://example.com/2"}},
	{ID: "b1", Tags: []string{"maintag:Blogs"}, Attrs: map[string]any{"title": "Post", "canto-state": []any{}, "link": "https://example.com/b"}},
}

func newSession(t *testing.T, socket string) *Session {
	t.Helper()
	s := NewSession(Options{Socket: socket, Logger: logging.Discard()})
	t.Cleanup(s.Close)
	return s
}

func connect(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
}

// pump applies inbound traffic the way the UI loop does until cond holds.
// cond is polled between messages too.
func pump(t *testing.T, s *Session, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case in := <-s.Inbound():
			s.Apply(in)
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

// syncDaemon waits until the daemon has processed every write so far.
func syncDaemon(t *testing.T, s *Session) {
	t.Helper()
	errc := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errc <- s.pinger.Sync(ctx)
	}()
	var err error
	done := false
	pump(t, s, "daemon sync", func() bool {
		select {
		case err = <-errc:
			done = true
		default:
		}
		return done
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
}

func loaded(s *Session, tag string, n int) func() bool {
	return func() bool {
		core, ok := s.Store().Core(tag)
		return ok && core.Len() == n
	}
}

func TestSession_ConnectLoadsTagsAndItems(t *testing.T) {
	d := startDaemon(t, sample)
	s := newSession(t, d.socket)
	connect(t, s)

	if got := s.Mirror().CurTags(); len(got) != 2 {
		t.Fatalf("expected both tags to be visible, got %v", got)
	}
	if !s.Mirror().Initialized() {
		t.Fatalf("expected configs to be applied")
	}
	pump(t, s, "items", func() bool {
		return loaded(s, "maintag:News", 2)() && loaded(s, "maintag:Blogs", 1)() &&
			s.Store().Get("n2").String("title") == "Second"
	})
	if link := s.Store().Get("b1").String("link"); link != "https://example.com/b" {
		t.Fatalf("expected base attributes to be fetched, got link %q", link)
	}
	if s.Store().Updating() {
		t.Fatalf("expected the initial update to complete")
	}
}

func TestSession_HiddenTagLoadsOnceVisible(t *testing.T) {
	d := startDaemon(t, sample)
	err := d.repo.SetConfigs(context.Background(), map[string]any{
		"CantoCurses": map[string]any{"tags": "maintag:News"},
	})
	if err != nil {
		t.Fatalf("SetConfigs returned error: %v", err)
	}
	s := newSession(t, d.socket)
	connect(t, s)

	if got := s.Mirror().CurTags(); len(got) != 1 || got[0] != "maintag:News" {
		t.Fatalf("expected only News to be visible, got %v", got)
	}
	if _, ok := s.Store().Core("maintag:Blogs"); !ok {
		t.Fatalf("expected a core for the hidden tag")
	}
	pump(t, s, "visible items", loaded(s, "maintag:News", 2))
	if core, _ := s.Store().Core("maintag:Blogs"); core.Len() != 0 {
		t.Fatalf("expected the hidden tag to stay unfetched, got %v", core.IDs())
	}

	if err := s.Mirror().SetOpt("tags", "maintag:.*"); err != nil {
		t.Fatalf("SetOpt returned error: %v", err)
	}
	pump(t, s, "newly visible items", loaded(s, "maintag:Blogs", 1))

	s.Refresh()
	pump(t, s, "refresh", func() bool {
		return loaded(s, "maintag:Blogs", 1)() && loaded(s, "maintag:News", 2)() && !s.Store().Updating()
	})
}

func TestSession_VersionMismatchFailsConnect(t *testing.T) {
	d := startDaemon(t, sample)
	d.srv.SetVersion(0.5)
	s := newSession(t, d.socket)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Connect(ctx)
	if !errors.Is(err, daemon.ErrIncompatibleVersion) {
		t.Fatalf("expected ErrIncompatibleVersion, got %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected Start to fail without a connection, got %v", err)
	}
}

func TestSession_TickFetchesChangedTags(t *testing.T) {
	d := startDaemon(t, sample)
	s := newSession(t, d.socket)
	connect(t, s)
	pump(t, s, "items", loaded(s, "maintag:News", 2))

	other, err := daemon.Dial(context.Background(), d.socket, logging.Discard())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer other.Close()
	if err := other.Write(protocol.CmdSetAttributes, map[string]map[string]any{
		"n1": {"title": "Renamed"},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := s.Mirror().SetOpt("update.auto.interval", 0); err != nil {
		t.Fatalf("SetOpt returned error: %v", err)
	}
	s.countdown = 0
	pump(t, s, "renamed story", func() bool {
		s.Tick()
		return s.Store().Get("n1").String("title") == "Renamed"
	})
}

func TestSession_TickIdleWhenDisabled(t *testing.T) {
	s := newSession(t, "")
	if err := s.Mirror().SetOpt("update.auto.enabled", false); err != nil {
		t.Fatalf("SetOpt returned error: %v", err)
	}
	s.Apply(protocol.TagChange{Tag: "maintag:News"})
	s.Tick()
	if got := s.Store().FlushTagChanges(); len(got) != 1 {
		t.Fatalf("expected the change to stay queued, got %v", got)
	}
}

func TestSession_TransformUpdatesDefaults(t *testing.T) {
	d := startDaemon(t, sample)
	s := newSession(t, d.socket)
	connect(t, s)

	if err := s.Transform("filter_read", false); err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}
	if err := s.Transform("sort(title)", true); err != nil {
		t.Fatalf("temporary Transform returned error: %v", err)
	}
	syncDaemon(t, s)

	sections, err := d.repo.Configs(context.Background(), []string{"defaults"})
	if err != nil {
		t.Fatalf("Configs returned error: %v", err)
	}
	defaults, _ := sections["defaults"].(map[string]any)
	if defaults["global_transform"] != "filter_read" {
		t.Fatalf("expected stored transform, got %v", sections)
	}
	pump(t, s, "refreshed items", loaded(s, "maintag:News", 2))
}

func TestSession_ExitKillsDaemonWhenConfigured(t *testing.T) {
	d := startDaemon(t, sample)
	s := newSession(t, d.socket)
	connect(t, s)
	if err := s.Mirror().SetOpt("kill_daemon_on_exit", true); err != nil {
		t.Fatalf("SetOpt returned error: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errc <- s.Exit(ctx)
	}()
	var exitErr error
	exited := false
	pump(t, s, "exit", func() bool {
		select {
		case exitErr = <-errc:
			exited = true
		default:
		}
		return exited
	})
	if exitErr != nil {
		t.Fatalf("Exit returned error: %v", exitErr)
	}

	select {
	case err := <-d.done:
		if err != nil {
			t.Fatalf("daemon Serve returned error: %v", err)
		}
		d.done <- nil
	case <-time.After(5 * time.Second):
		t.Fatalf("expected DIE to stop the daemon")
	}
	if err := s.Write(protocol.CmdPing, ""); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected writes to fail after exit, got %v", err)
	}
}

func TestSession_ExitWithoutConnection(t *testing.T) {
	s := newSession(t, "")
	if err := s.Exit(context.Background()); err != nil {
		t.Fatalf("Exit returned error: %v", err)
	}
}

func TestSession_HangupIsReported(t *testing.T) {
	d := startDaemon(t, sample)
	var logs bytes.Buffer
	log := logging.New(&logs, slog.LevelDebug)
	s := NewSession(Options{Socket: d.socket, Logger: log.Logger})
	t.Cleanup(s.Close)
	connect(t, s)

	hungUp := false
	s.Bus().On(hooks.Hangup, hooks.NewOwner(), func(any) { hungUp = true })

	d.cancel()
	pump(t, s, "hangup", func() bool { return hungUp })
	if !strings.Contains(logs.String(), "Use :reconnect") {
		t.Fatalf("expected the hangup to be logged, got:\n%s", logs.String())
	}
	if err := s.pinger.Ping(nil); err == nil {
		t.Fatalf("expected pings to fail after a hangup")
	}
}

func TestSession_ReconnectReplacesConnection(t *testing.T) {
	d := startDaemon(t, sample)
	s := newSession(t, d.socket)
	connect(t, s)
	pump(t, s, "items", loaded(s, "maintag:News", 2))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect returned error: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	syncDaemon(t, s)
	if core, ok := s.Store().Core("maintag:News"); !ok || core.Len() != 2 {
		t.Fatalf("expected items to survive the reconnect")
	}
}

func TestSession_ApplyRoutesMessages(t *testing.T) {
	var logs bytes.Buffer
	log := logging.New(&logs, slog.LevelDebug)
	s := NewSession(Options{Logger: log.Logger})
	t.Cleanup(s.Close)

	s.Apply(protocol.NewTags{Tags: []string{"maintag:News"}})
	if got := s.Mirror().StrTags(); len(got) != 1 || got[0] != "maintag:News" {
		t.Fatalf("expected the new tag, got %v", got)
	}

	s.Apply(protocol.Items{Tag: "maintag:News", IDs: []string{"a", "b"}})
	s.Apply(protocol.ItemsDone{})
	if core, ok := s.Store().Core("maintag:News"); !ok || core.Len() != 2 {
		t.Fatalf("expected items to reach the store")
	}
	s.Apply(protocol.Attributes{Stories: map[string]map[string]any{"a": {"title": "A"}}})
	if got := s.Store().Get("a").String("title"); got != "A" {
		t.Fatalf("expected attributes to be cached, got %q", got)
	}

	s.Apply(protocol.Info{Text: "daemon says hi"})
	s.Apply(protocol.Except{Text: "boom"})
	if !strings.Contains(logs.String(), "daemon says hi") || !strings.Contains(logs.String(), "Daemon exception: boom") {
		t.Fatalf("expected daemon messages to be logged, got:\n%s", logs.String())
	}

	s.Apply(protocol.DelTags{Tags: []string{"maintag:News"}})
	if got := s.Mirror().StrTags(); len(got) != 0 {
		t.Fatalf("expected the tag to be gone, got %v", got)
	}
	if core, ok := s.Store().Core("maintag:News"); ok && core.Len() != 0 {
		t.Fatalf("expected the tag core to be emptied, got %v", core.IDs())
	}
}
