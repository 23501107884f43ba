package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strings"
)

// Browser is the browser config section. Path is a shell command in which
// %u stands for the URL; Text browsers take over the terminal.
type Browser struct {
	Path string
	Text bool
}

func ValidateEntryURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("entry has no URL")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid URL format")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid URL host")
	}
	return trimmed, nil
}

// Command builds the process that opens target. Without a configured path
// the platform's default opener is used.
func (b Browser) Command(target string) *exec.Cmd {
	if strings.TrimSpace(b.Path) == "" {
		name, args := browserCommand(runtime.GOOS, target)
		return exec.Command(name, args...)
	}
	line := strings.ReplaceAll(b.Path, "%u", shellQuote(target))
	cmd := exec.Command("/bin/sh", "-c", line)
	if b.Text {
		cmd.Stdin, cmd.Stdout = os.Stdin, os.Stdout
	}
	return cmd
}

// Start launches a graphical browser without waiting for it.
func (b Browser) Start(target string) error {
	cmd := b.Command(target)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func browserCommand(goos, target string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{target}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}
	default:
		return "xdg-open", []string{target}
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Fetch downloads target into a fresh directory under dir, keeping the
// basename of the URL path so openers can still match on the extension.
// It returns the local file path.
func Fetch(ctx context.Context, client *http.Client, target, dir string) (string, error) {
	target, err := ValidateEntryURL(target)
	if err != nil {
		return "", err
	}
	if client == nil {
		client = http.DefaultClient
	}
	parsed, _ := url.Parse(target)
	name := path.Base(parsed.Path)
	if name == "." || name == "/" || name == "" {
		name = "index"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: unexpected status %s", target, resp.Status)
	}

	tmp, err := os.MkdirTemp(dir, "canto-")
	if err != nil {
		return "", fmt.Errorf("create fetch dir: %w", err)
	}
	local := filepath.Join(tmp, name)
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("create fetch file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("write fetch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close fetch file: %w", err)
	}
	return local, nil
}

// RemoveFetched deletes a file returned by Fetch and its directory.
func RemoveFetched(local string) error {
	dir := filepath.Dir(local)
	if !strings.HasPrefix(filepath.Base(dir), "canto-") {
		return errors.New("not a fetched file")
	}
	return os.RemoveAll(dir)
}
