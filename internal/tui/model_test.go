package tui

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/protocol"
	"github.com/glabrego/canto-ng/internal/tui/actions"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("expected Model, got %T", next)
	}
	return model, cmd
}

func TestModel_InitArmsLoops(t *testing.T) {
	m, _ := newTestModel(t)
	if m.Init() == nil {
		t.Fatalf("expected init commands")
	}
}

func TestModel_InboundIsAppliedAndRearmed(t *testing.T) {
	m, svc := newTestModel(t)
	m, cmd := update(t, m, actions.InboundMsg{In: protocol.NewTags{Tags: []string{"maintag:News"}}})
	if len(svc.applied) != 1 {
		t.Fatalf("expected one applied message, got %d", len(svc.applied))
	}
	if cmd == nil {
		t.Fatalf("expected the inbound wait to be re-armed")
	}

	svc.in <- protocol.Pong{}
	msg := cmd()
	in, ok := msg.(actions.InboundMsg)
	if !ok {
		t.Fatalf("expected InboundMsg, got %T", msg)
	}
	if _, ok := in.In.(protocol.Pong); !ok {
		t.Fatalf("expected Pong, got %T", in.In)
	}
}

func TestModel_LogRecordsReachMessageBoxes(t *testing.T) {
	m, svc := newTestModel(t)
	m.log.Error("daemon went away")
	m.log.Info("still here")

	m, cmd := update(t, m, actions.LogMsg{})
	if cmd == nil {
		t.Fatalf("expected the log wait to be re-armed")
	}
	if got := svc.mirror.VarString(mirror.VarErrorMsg); got != "daemon went away" {
		t.Fatalf("unexpected error_msg %q", got)
	}
	if got := svc.mirror.VarString(mirror.VarInfoMsg); got != "still here" {
		t.Fatalf("unexpected info_msg %q", got)
	}
	if _, open := m.screen.boxes["errorbox"]; !open {
		t.Fatalf("expected errorbox to open")
	}
}

func TestModel_TickDrivesService(t *testing.T) {
	m, svc := newTestModel(t)
	_, cmd := update(t, m, actions.TickMsg{})
	if svc.ticks != 1 {
		t.Fatalf("expected one tick, got %d", svc.ticks)
	}
	if cmd == nil {
		t.Fatalf("expected the tick to be re-armed")
	}
}

func TestModel_QuitWaitsForDaemonThenQuits(t *testing.T) {
	m, svc := sampleModel(t)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("expected an exit command")
	}
	done, ok := cmd().(actions.ExitDoneMsg)
	if !ok {
		t.Fatalf("expected ExitDoneMsg")
	}
	if svc.exits != 1 {
		t.Fatalf("expected one exit call, got %d", svc.exits)
	}

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd != nil {
		t.Fatalf("expected a second quit to be ignored")
	}

	_, cmd = update(t, m, done)
	if cmd == nil {
		t.Fatalf("expected tea.Quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected QuitMsg")
	}
}

func TestModel_CtrlCQuitsWhenUnbound(t *testing.T) {
	m, _ := sampleModel(t)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil || !m.gui.exiting {
		t.Fatalf("expected C-c to start exiting")
	}
}

func TestModel_ReconnectRestartsSession(t *testing.T) {
	m, svc := newTestModel(t)
	if err := m.gui.dispatch.Execute("reconnect"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	cmd := m.fx.take()
	if cmd == nil {
		t.Fatalf("expected a reconnect command")
	}
	msg := cmd()
	if _, ok := msg.(actions.ReconnectSuccessMsg); !ok {
		t.Fatalf("expected ReconnectSuccessMsg, got %T", msg)
	}
	m, _ = update(t, m, msg)
	if svc.reconnects != 1 || svc.started != 1 {
		t.Fatalf("expected reconnect then start, got %d/%d", svc.reconnects, svc.started)
	}

	update(t, m, actions.ReconnectErrorMsg{Err: errors.New("refused")})
	m.logs.drain(sinkFor(svc))
	if got := svc.mirror.VarString(mirror.VarErrorMsg); !strings.Contains(got, "refused") {
		t.Fatalf("expected reconnect failure to be shown, got %q", got)
	}
}

func TestModel_WindowSizeRendersFrame(t *testing.T) {
	m, svc := newTestModel(t)
	svc.load([]string{"maintag:News"}, map[string][]story{
		"maintag:News": {{"n1", "First story"}},
	})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 30, Height: 6})
	view := ansi.Strip(m.View())
	if !strings.Contains(view, "News") || !strings.Contains(view, "First story") {
		t.Fatalf("unexpected view:\n%s", view)
	}
	if got := m.Frame(); !strings.Contains(got, "First story") {
		t.Fatalf("expected plain frame to match, got:\n%s", got)
	}
}

func TestModel_CommandsReachService(t *testing.T) {
	m, svc := newTestModel(t)
	for _, line := range []string{"refresh", "transform sort(title)", "temp-transform all"} {
		if err := m.gui.dispatch.Execute(line); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}
	if svc.refreshes != 1 {
		t.Fatalf("expected one refresh, got %d", svc.refreshes)
	}
	if len(svc.transforms) != 2 || svc.transforms[0] != "sort(title)" || svc.transforms[1] != "temp:all" {
		t.Fatalf("unexpected transforms %v", svc.transforms)
	}
}

func TestModel_FetchedFileRemovedOnShutdown(t *testing.T) {
	m, svc := newTestModel(t)
	if err := svc.mirror.SetOpt("browser.path", "true %u"); err != nil {
		t.Fatalf("set browser: %v", err)
	}
	local := filepath.Join(t.TempDir(), "enclosure.mp3")
	if err := os.WriteFile(local, []byte("data"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	m, cmd := update(t, m, actions.FetchSuccessMsg{URL: "https://example.com/e.mp3", Local: local})
	if cmd == nil {
		t.Fatalf("expected the browser to be started")
	}
	if len(m.opener.fetched) != 1 {
		t.Fatalf("expected fetched file to be tracked")
	}
	m.shutdown()
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Fatalf("expected fetched file to be removed, stat err=%v", err)
	}
}

func TestModel_TextBrowserExitRemovesFile(t *testing.T) {
	m, svc := newTestModel(t)
	local := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(local, []byte("<p>hi</p>"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	update(t, m, browserExitMsg{local: local, err: errors.New("exit status 1")})
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed, stat err=%v", err)
	}
	m.logs.drain(sinkFor(svc))
	if got := svc.mirror.VarString(mirror.VarErrorMsg); !strings.Contains(got, "exit status 1") {
		t.Fatalf("expected browser failure to be shown, got %q", got)
	}
}
