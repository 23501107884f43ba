package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glabrego/canto-ng/internal/cellgrid"
	"github.com/glabrego/canto-ng/internal/command"
	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/tui/view"
)

func TestScreen_StartsOnTagList(t *testing.T) {
	m, _ := sampleModel(t)
	if got := focusedName(m); got != "taglist" {
		t.Fatalf("expected taglist focus, got %q", got)
	}
	if _, ok := m.gui.dispatch.Registry().Command("rel-set-cursor"); !ok {
		t.Fatalf("expected focused taglist commands to be registered")
	}
}

func TestScreen_CommandPromptRunsSubmittedLine(t *testing.T) {
	m, svc := sampleModel(t)

	press(t, m, ":")
	if got := focusedName(m); got != "input" {
		t.Fatalf("expected input focus after ':', got %q", got)
	}
	if got := svc.mirror.VarString(mirror.VarInputPrompt); got != ":" {
		t.Fatalf("expected ':' prompt, got %q", got)
	}
	if _, ok := m.gui.dispatch.Registry().Command("rel-set-cursor"); ok {
		t.Fatalf("expected taglist commands to be dropped while the input has focus")
	}

	typeText(t, m, "refresh")
	press(t, m, "enter")

	if svc.refreshes != 1 {
		t.Fatalf("expected submitted line to run, got %d refreshes", svc.refreshes)
	}
	if got := focusedName(m); got != "taglist" {
		t.Fatalf("expected focus back on taglist, got %q", got)
	}
	if m.screen.isOpen(m.screen.input) {
		t.Fatalf("expected input to close after submit")
	}
}

func TestScreen_CancelledPromptRunsNothing(t *testing.T) {
	m, svc := sampleModel(t)
	m.screen.OpenReader()

	press(t, m, ":")
	typeText(t, m, "refresh")
	press(t, m, "C-g")

	if svc.refreshes != 0 {
		t.Fatalf("expected cancelled prompt to run nothing")
	}
	if got := focusedName(m); got != "reader" {
		t.Fatalf("expected focus restored to reader, got %q", got)
	}
}

func TestScreen_TabCompletesCommandNames(t *testing.T) {
	m, _ := sampleModel(t)
	press(t, m, ":")
	typeText(t, m, "refr")
	press(t, m, "tab")
	if got := m.screen.input.Text(); got != "refresh " {
		t.Fatalf("expected completed command, got %q", got)
	}
}

func TestScreen_ScreenKeysBeatWidgetKeys(t *testing.T) {
	m, svc := sampleModel(t)
	keys := svc.mirror.OptMap("taglist.key")
	next := map[string]any{}
	for k, v := range keys {
		next[k] = v
	}
	next["tab"] = "refresh"
	if err := svc.mirror.SetOpt("taglist.key", next); err != nil {
		t.Fatalf("set keys: %v", err)
	}
	m.screen.OpenReader()

	press(t, m, "tab")
	if svc.refreshes != 0 {
		t.Fatalf("expected screen binding to win over taglist binding")
	}
	if got := focusedName(m); got != "taglist" {
		t.Fatalf("expected focus-rel to move to taglist, got %q", got)
	}
	press(t, m, "tab")
	if got := focusedName(m); got != "reader" {
		t.Fatalf("expected focus-rel to wrap to reader, got %q", got)
	}
}

func TestScreen_FocusCommandCountsFromTop(t *testing.T) {
	m, _ := sampleModel(t)
	m.screen.OpenReader()
	if err := m.gui.dispatch.Execute("focus 1"); err != nil {
		t.Fatalf("focus: %v", err)
	}
	if got := focusedName(m); got != "taglist" {
		t.Fatalf("expected second window from the top to be taglist, got %q", got)
	}
	if err := m.gui.dispatch.Execute("focus"); err != nil {
		t.Fatalf("focus: %v", err)
	}
	if got := focusedName(m); got != "reader" {
		t.Fatalf("expected topmost window to be reader, got %q", got)
	}
}

func TestScreen_ErrorBoxTakesFocusUntilDismissed(t *testing.T) {
	m, svc := sampleModel(t)

	svc.mirror.Error("boom")
	if got := focusedName(m); got != "errorbox" {
		t.Fatalf("expected errorbox focus, got %q", got)
	}
	frame := m.screen.Compose().String()
	if !strings.Contains(frame, "boom") {
		t.Fatalf("expected error in frame:\n%s", frame)
	}
	if !strings.Contains(frame, "Blog post") {
		t.Fatalf("expected taglist rows below the box to stay visible:\n%s", frame)
	}

	press(t, m, "space")
	if _, open := m.screen.boxes["errorbox"]; open {
		t.Fatalf("expected errorbox to close")
	}
	if got := focusedName(m); got != "taglist" {
		t.Fatalf("expected taglist focus after dismissal, got %q", got)
	}
	if got := svc.mirror.VarString(mirror.VarErrorMsg); got != "" {
		t.Fatalf("expected error_msg cleared, got %q", got)
	}
}

func TestScreen_InfoBoxIsPassiveAndClearsItself(t *testing.T) {
	m, svc := sampleModel(t)

	svc.mirror.Info("hello")
	if _, open := m.screen.boxes["infobox"]; !open {
		t.Fatalf("expected infobox to open")
	}
	if got := focusedName(m); got != "taglist" {
		t.Fatalf("expected infobox not to take focus, got %q", got)
	}
	if m.fx.take() == nil {
		t.Fatalf("expected a clear timer to be queued")
	}

	svc.mirror.Info("again")
	m.screen.clearInfo(1)
	if got := svc.mirror.VarString(mirror.VarInfoMsg); got != "again" {
		t.Fatalf("expected stale timer to leave newer message, got %q", got)
	}
	m.screen.clearInfo(2)
	if _, open := m.screen.boxes["infobox"]; open {
		t.Fatalf("expected infobox to close once cleared")
	}
}

func TestScreen_BindAddsToFocusedSection(t *testing.T) {
	m, svc := sampleModel(t)
	if err := m.gui.dispatch.Execute("bind x refresh"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if got := svc.mirror.OptMap("taglist.key")["x"]; got != "refresh" {
		t.Fatalf("expected new key in taglist.key, got %q", got)
	}
	press(t, m, "x")
	if svc.refreshes != 1 {
		t.Fatalf("expected bound key to run, got %d refreshes", svc.refreshes)
	}
}

func TestScreen_BindReplacesExistingSection(t *testing.T) {
	m, svc := sampleModel(t)
	if err := m.screen.Bind("q", "refresh"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if got := svc.mirror.OptMap("main.key")["q"]; got != "refresh" {
		t.Fatalf("expected main.key to change, got %q", got)
	}
	if _, ok := svc.mirror.OptMap("taglist.key")["q"]; ok {
		t.Fatalf("expected taglist.key to stay untouched")
	}
	press(t, m, "q")
	if m.gui.exiting || svc.refreshes != 1 {
		t.Fatalf("expected rebound q to refresh, exiting=%v refreshes=%d", m.gui.exiting, svc.refreshes)
	}
}

func TestScreen_BindNoneUnbinds(t *testing.T) {
	m, _ := sampleModel(t)
	if err := m.screen.Bind("q", "None"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if _, ok := m.screen.Binding("q"); ok {
		t.Fatalf("expected q to be unbound")
	}
	press(t, m, "q")
	if m.gui.exiting {
		t.Fatalf("expected unbound q to do nothing")
	}
}

func TestScreen_ColorKeepsBackground(t *testing.T) {
	m, svc := sampleModel(t)
	run := func(line string) {
		t.Helper()
		if err := m.gui.dispatch.Execute(line); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}

	run("color 3 4 5")
	n, _ := svc.mirror.Opt("color.3")
	if n.Kind != mirror.KindMap || n.M["fg"].I != 4 || n.M["bg"].I != 5 {
		t.Fatalf("expected fg 4 bg 5, got %s", n.String())
	}

	run("color 3 6")
	n, _ = svc.mirror.Opt("color.3")
	if n.M["fg"].I != 6 || n.M["bg"].I != 5 {
		t.Fatalf("expected background kept, got %s", n.String())
	}

	run("color unread 7")
	if got := svc.mirror.OptInt("color.unread"); got != 7 {
		t.Fatalf("expected named color to point at pair 7, got %d", got)
	}
}

func TestScreen_ColorRejectsBadIndex(t *testing.T) {
	m, _ := sampleModel(t)
	if err := m.gui.dispatch.Execute("color 300 1"); err == nil {
		t.Fatalf("expected out of range index to fail")
	}
	if err := m.gui.dispatch.Execute("color bogus 1"); err == nil {
		t.Fatalf("expected unknown name to fail")
	}
}

func TestScreen_DumpScreen(t *testing.T) {
	m, _ := sampleModel(t)
	path := filepath.Join(t.TempDir(), "screen.txt")
	if err := m.gui.dispatch.Execute("dump-screen " + command.Quote(path)); err != nil {
		t.Fatalf("dump-screen: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	if !strings.Contains(string(data), "First story") {
		t.Fatalf("expected frame text in dump, got:\n%s", data)
	}
}

func TestScreen_CloseWidgetRefocusesTopmost(t *testing.T) {
	m, _ := sampleModel(t)
	m.screen.OpenReader()
	reader := m.screen.reader
	m.screen.CloseWidget(reader)
	if m.screen.reader != nil {
		t.Fatalf("expected reader to be dropped")
	}
	if got := focusedName(m); got != "taglist" {
		t.Fatalf("expected taglist focus, got %q", got)
	}
	m.screen.CloseWidget(reader)
	if len(m.screen.open) != 1 {
		t.Fatalf("expected closing twice to be a no-op, open=%d", len(m.screen.open))
	}
}

func TestScreen_PaintRecoversFromPanics(t *testing.T) {
	m, _ := sampleModel(t)
	m.screen.add(panicWidget{Widget: view.NewInfoBox(m.screen.env)})
	frame := m.screen.Compose().String()
	if !strings.Contains(frame, "First story") {
		t.Fatalf("expected the rest of the screen to draw:\n%s", frame)
	}
}

type panicWidget struct {
	view.Widget
}

func (panicWidget) Name() string { return "broken" }

func (panicWidget) Draw(*cellgrid.Grid) int { panic("draw failed") }

func TestScreen_WidgetKeysDriveFocusedWidget(t *testing.T) {
	m, svc := sampleModel(t)
	m.screen.Compose()
	press(t, m, "down")
	sel, ok := svc.mirror.Var(mirror.VarSelected).(view.StorySel)
	if !ok || sel.ID != "n1" {
		t.Fatalf("expected first story selected, got %#v", svc.mirror.Var(mirror.VarSelected))
	}
	if n := svc.rec.count("PROTECT"); n != 1 {
		t.Fatalf("expected selection to be protected once, got %d", n)
	}
}
