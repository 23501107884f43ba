package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/tui/actions"
	"github.com/glabrego/canto-ng/internal/tui/platform"
)

var errNoLinks = errors.New("no links")

// effects collects the tea commands produced while handling one message.
type effects struct {
	cmds []tea.Cmd
}

func (e *effects) add(cmd tea.Cmd) {
	if cmd != nil {
		e.cmds = append(e.cmds, cmd)
	}
}

func (e *effects) take() tea.Cmd {
	cmds := e.cmds
	e.cmds = nil
	switch len(cmds) {
	case 0:
		return nil
	case 1:
		return cmds[0]
	}
	return tea.Batch(cmds...)
}

type browserExitMsg struct {
	local string
	err   error
}

// opener hands links to the configured browser and the clipboard. Text
// browsers suspend the program while they run; graphical ones are started
// in the background.
type opener struct {
	mirror  *mirror.Mirror
	fx      *effects
	client  *http.Client
	dir     string
	timeout time.Duration
	log     *slog.Logger

	fetched []string
}

func (o *opener) browser() platform.Browser {
	return platform.Browser{
		Path: o.mirror.OptString("browser.path"),
		Text: o.mirror.OptBool("browser.text"),
	}
}

func (o *opener) Goto(urls []string) error {
	if len(urls) == 0 {
		return errNoLinks
	}
	for _, raw := range urls {
		target, err := platform.ValidateEntryURL(raw)
		if err != nil {
			return fmt.Errorf("goto %q: %w", raw, err)
		}
		o.open(target, "")
	}
	return nil
}

// open starts the browser on target. local names a fetched file to remove
// once a text browser is done with it.
func (o *opener) open(target, local string) {
	b := o.browser()
	if b.Text {
		o.fx.add(tea.ExecProcess(b.Command(target), func(err error) tea.Msg {
			return browserExitMsg{local: local, err: err}
		}))
		return
	}
	if local != "" {
		o.fetched = append(o.fetched, local)
	}
	o.fx.add(actions.OpenURLCmd(target, b.Start))
}

func (o *opener) Fetch(urls []string) error {
	if len(urls) == 0 {
		return errNoLinks
	}
	for _, raw := range urls {
		target, err := platform.ValidateEntryURL(raw)
		if err != nil {
			return fmt.Errorf("fetch %q: %w", raw, err)
		}
		o.fx.add(actions.FetchCmd(target, o.timeout, func(ctx context.Context, u string) (string, error) {
			return platform.Fetch(ctx, o.client, u, o.dir)
		}))
	}
	return nil
}

func (o *opener) Yank(text string) error {
	if text == "" {
		return errNoLinks
	}
	o.fx.add(actions.CopyURLCmd(text, func(s string) (fmt.Stringer, error) {
		method, err := platform.Copy(s)
		return method, err
	}))
	return nil
}

func (o *opener) remove(local string) {
	if err := platform.RemoveFetched(local); err != nil {
		o.log.Warn("remove fetched file", "path", local, "error", err)
	}
}

// cleanup removes files still held for graphical browsers.
func (o *opener) cleanup() {
	for _, local := range o.fetched {
		o.remove(local)
	}
	o.fetched = nil
}
