package actions

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/glabrego/canto-ng/internal/protocol"
)

// Service is the part of the daemon session that runs off the UI loop.
type Service interface {
	Inbound() <-chan protocol.Inbound
	Reconnect(ctx context.Context) error
	Exit(ctx context.Context) error
}

type InboundMsg struct {
	In protocol.Inbound
}

// InboundClosedMsg means the session stopped forwarding daemon traffic.
type InboundClosedMsg struct{}

type TickMsg struct {
	At time.Time
}

type ReconnectSuccessMsg struct {
	Duration time.Duration
}

type ReconnectErrorMsg struct {
	Err error
}

type ExitDoneMsg struct {
	Err error
}

type OpenURLSuccessMsg struct {
	Status string
	URL    string
}

type OpenURLErrorMsg struct {
	Err error
}

type FetchSuccessMsg struct {
	URL   string
	Local string
}

type FetchErrorMsg struct {
	Err error
}

type LogMsg struct{}

// WaitInboundCmd delivers the next daemon message. The model re-arms it
// after every InboundMsg so frames are applied one at a time, in order.
func WaitInboundCmd(ch <-chan protocol.Inbound) tea.Cmd {
	return func() tea.Msg {
		in, ok := <-ch
		if !ok {
			return InboundClosedMsg{}
		}
		return InboundMsg{In: in}
	}
}

// WaitLogCmd fires when user-facing log records are queued.
func WaitLogCmd(notify <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-notify
		return LogMsg{}
	}
}

func TickCmd(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(t time.Time) tea.Msg {
		return TickMsg{At: t}
	})
}

func ReconnectCmd(service Service, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		start := time.Now()

		if err := service.Reconnect(ctx); err != nil {
			return ReconnectErrorMsg{Err: err}
		}
		return ReconnectSuccessMsg{Duration: time.Since(start)}
	}
}

// ExitCmd waits until the daemon has seen everything written so far, or
// the connection drops, bounded by timeout.
func ExitCmd(service Service, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return ExitDoneMsg{Err: service.Exit(ctx)}
	}
}

func OpenURLCmd(url string, openFn func(string) error) tea.Cmd {
	return func() tea.Msg {
		if openFn == nil {
			return OpenURLErrorMsg{Err: fmt.Errorf("no browser configured")}
		}
		if err := openFn(url); err != nil {
			return OpenURLErrorMsg{Err: fmt.Errorf("open %s: %w", url, err)}
		}
		return OpenURLSuccessMsg{Status: "Opened " + url, URL: url}
	}
}

// CopyURLCmd puts text on the clipboard; copyFn reports which clipboard
// took it.
func CopyURLCmd(text string, copyFn func(string) (fmt.Stringer, error)) tea.Cmd {
	return func() tea.Msg {
		if copyFn == nil {
			return OpenURLErrorMsg{Err: fmt.Errorf("no clipboard available")}
		}
		method, err := copyFn(text)
		if err != nil {
			return OpenURLErrorMsg{Err: fmt.Errorf("copy to clipboard: %w", err)}
		}
		return OpenURLSuccessMsg{Status: fmt.Sprintf("Copied to %s clipboard", method), URL: text}
	}
}

func FetchCmd(url string, timeout time.Duration, fetchFn func(ctx context.Context, url string) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		local, err := fetchFn(ctx, url)
		if err != nil {
			return FetchErrorMsg{Err: err}
		}
		return FetchSuccessMsg{URL: url, Local: local}
	}
}
