package platform

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestValidateEntryURL(t *testing.T) {
	valid, err := ValidateEntryURL("https://example.com/path")
	if err != nil {
		t.Fatalf("unexpected error for valid URL: %v", err)
	}
	if valid != "https://example.com/path" {
		t.Fatalf("unexpected normalized URL: %q", valid)
	}

	_, err = ValidateEntryURL("ftp://example.com/path")
	if err == nil || !strings.Contains(err.Error(), "unsupported URL scheme") {
		t.Fatalf("expected unsupported scheme error, got %v", err)
	}

	_, err = ValidateEntryURL("https://")
	if err == nil || !strings.Contains(err.Error(), "invalid URL host") {
		t.Fatalf("expected invalid host error, got %v", err)
	}
}

func TestBrowserCommand(t *testing.T) {
	cases := []struct {
		goos string
		url  string
		name string
		args []string
	}{
		{goos: "darwin", url: "https://example.com", name: "open", args: []string{"https://example.com"}},
		{goos: "windows", url: "https://example.com", name: "rundll32", args: []string{"url.dll,FileProtocolHandler", "https://example.com"}},
		{goos: "linux", url: "https://example.com", name: "xdg-open", args: []string{"https://example.com"}},
	}
	for _, tc := range cases {
		gotName, gotArgs := browserCommand(tc.goos, tc.url)
		if gotName != tc.name || !reflect.DeepEqual(gotArgs, tc.args) {
			t.Fatalf("browserCommand(%q) = (%q, %v), want (%q, %v)", tc.goos, gotName, gotArgs, tc.name, tc.args)
		}
	}
}

func TestBrowser_SubstitutesQuotedURL(t *testing.T) {
	cmd := Browser{Path: "firefox %u"}.Command("http://x/?a=1&b='2'")
	want := []string{"/bin/sh", "-c", `firefox 'http://x/?a=1&b='\''2'\'''`}
	if !reflect.DeepEqual(cmd.Args, want) {
		t.Fatalf("unexpected browser argv: %q", cmd.Args)
	}
}

func TestFetch_SavesUnderURLBasename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/media/episode.mp3" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	local, err := Fetch(context.Background(), srv.Client(), srv.URL+"/media/episode.mp3?x=1", dir)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if filepath.Base(local) != "episode.mp3" || !strings.HasPrefix(local, dir) {
		t.Fatalf("unexpected local path: %q", local)
	}
	body, err := os.ReadFile(local)
	if err != nil || string(body) != "audio" {
		t.Fatalf("unexpected body %q (%v)", body, err)
	}
	if err := RemoveFetched(local); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(local)); !os.IsNotExist(err) {
		t.Fatalf("fetch dir should be gone, stat err=%v", err)
	}

	if _, err := Fetch(context.Background(), srv.Client(), srv.URL+"/missing", dir); err == nil {
		t.Fatal("expected status error")
	}
}

func TestCopy_FallsBackToOSC52(t *testing.T) {
	origSystem, origOSC := clipboardWriteAll, clipboardWriteOSC52
	defer func() { clipboardWriteAll, clipboardWriteOSC52 = origSystem, origOSC }()

	var copied string
	clipboardWriteAll = func(string) error { return errors.New("exit status 1") }
	clipboardWriteOSC52 = func(s string) error { copied = s; return nil }

	method, err := Copy("http://x/")
	if err != nil || method != ClipboardOSC52 || copied != "http://x/" {
		t.Fatalf("unexpected fallback result: method=%v err=%v copied=%q", method, err, copied)
	}

	clipboardWriteOSC52 = func(string) error { return errors.New("no tty") }
	t.Setenv("DISPLAY", ":0")
	if _, err := Copy("x"); err == nil || !strings.Contains(err.Error(), "clipboard helper exited with status 1") {
		t.Fatalf("expected combined error, got %v", err)
	}
}

func TestWriteOSC52Sequence(t *testing.T) {
	t.Setenv("TMUX", "")
	t.Setenv("TERM", "xterm-256color")
	var buf bytes.Buffer
	if err := writeOSC52Sequence(&buf, "hi"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "\x1b]52;c;") {
		t.Fatalf("unexpected sequence: %q", buf.String())
	}

	t.Setenv("TERM", "dumb")
	if shouldAttemptOSC52() {
		t.Fatal("dumb terminals should not get OSC52")
	}
}
