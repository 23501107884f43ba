// Package app wires the daemon connection to the config mirror and the
// item store. Session is what the terminal UI drives.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glabrego/canto-ng/internal/daemon"
	"github.com/glabrego/canto-ng/internal/hooks"
	"github.com/glabrego/canto-ng/internal/mirror"
	"github.com/glabrego/canto-ng/internal/protocol"
	"github.com/glabrego/canto-ng/internal/store"
)

var ErrNotConnected = errors.New("not connected to daemon")

// baseAttributes are fetched for every story; the fallback story format
// uses them.
var baseAttributes = []string{"title", "canto-state", "link", "enclosures"}

const hangupMessage = "Disconnected from daemon. Use :reconnect to try again."

type DialFunc func(ctx context.Context, socket string, logger *slog.Logger) (*daemon.Client, error)

type Options struct {
	Socket string
	Logger *slog.Logger
	// Dial opens the daemon connection. Defaults to daemon.Dial.
	Dial DialFunc
}

// handshake is what Connect learned and Start has yet to apply.
type handshake struct {
	tags    []string
	configs map[string]any
}

type Session struct {
	socket string
	dial   DialFunc
	log    *slog.Logger

	bus    *hooks.Bus
	mirror *mirror.Mirror
	store  *store.Store
	pinger *daemon.Pinger
	owner  hooks.Owner

	inbound chan protocol.Inbound

	mu      sync.Mutex
	client  *daemon.Client
	pending *handshake
	cancel  context.CancelFunc

	// countdown and visible are only touched from the UI loop. visible is
	// nil until Start has applied the handshake.
	countdown int
	visible   map[string]struct{}
}

func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Dial == nil {
		opts.Dial = daemon.Dial
	}
	s := &Session{
		socket:  opts.Socket,
		dial:    opts.Dial,
		log:     logger,
		bus:     hooks.New(logger),
		owner:   hooks.NewOwner(),
		inbound: make(chan protocol.Inbound, 256),
	}
	s.pinger = daemon.NewPinger(s)
	s.mirror = mirror.New(s.bus, s, logger)
	s.store = store.New(s.bus, s, s.pinger, s.mirror, logger)
	s.bus.On(hooks.NewTag, s.owner, func(p any) {
		if tag, ok := p.(string); ok {
			s.watchTag(tag)
		}
	})
	s.bus.On(hooks.EvalTagsChanged, s.owner, func(p any) {
		if cur, ok := p.([]string); ok {
			s.fetchShown(cur)
		}
	})
	return s
}

func (s *Session) Inbound() <-chan protocol.Inbound { return s.inbound }
func (s *Session) Mirror() *mirror.Mirror           { return s.mirror }
func (s *Session) Store() *store.Store              { return s.store }
func (s *Session) Bus() *hooks.Bus                  { return s.bus }

// Write sends a request on the current connection.
func (s *Session) Write(cmd string, args any) error {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		return fmt.Errorf("write %s: %w", cmd, ErrNotConnected)
	}
	return c.Write(cmd, args)
}

// Connect dials the daemon and runs the part of the handshake that has to
// wait for replies: the version check, the tag list and the configs.
// Nothing is applied until Start.
func (s *Session) Connect(ctx context.Context) error {
	c, err := s.dial(ctx, s.socket, s.log)
	if err != nil {
		return err
	}
	hs, err := s.handshake(ctx, c)
	if err != nil {
		_ = c.Close()
		return err
	}

	s.mu.Lock()
	s.client = c
	s.pending = hs
	s.mu.Unlock()
	s.pinger.SetWriter(s)
	s.log.Debug("connected to daemon", "socket", s.socket, "tags", len(hs.tags))
	return nil
}

func (s *Session) handshake(ctx context.Context, c *daemon.Client) (*handshake, error) {
	if err := c.CheckVersion(ctx); err != nil {
		return nil, err
	}
	for _, w := range []struct {
		cmd  string
		args any
	}{
		{protocol.CmdWatchNewTags, []string{}},
		{protocol.CmdWatchDelTags, []string{}},
		{protocol.CmdListTags, ""},
	} {
		if err := c.Write(w.cmd, w.args); err != nil {
			return nil, err
		}
	}
	in, err := c.WaitFor(ctx, func(in protocol.Inbound) bool {
		_, ok := in.(protocol.ListTags)
		return ok
	})
	if err != nil {
		return nil, fmt.Errorf("wait for LISTTAGS: %w", err)
	}
	tags := in.(protocol.ListTags).Tags

	if err := c.Write(protocol.CmdWatchConfigs, ""); err != nil {
		return nil, err
	}
	if err := c.Write(protocol.CmdConfigs, []string{}); err != nil {
		return nil, err
	}
	in, err = c.WaitFor(ctx, func(in protocol.Inbound) bool {
		_, ok := in.(protocol.Configs)
		return ok
	})
	if err != nil {
		return nil, fmt.Errorf("wait for CONFIGS: %w", err)
	}
	return &handshake{tags: tags, configs: in.(protocol.Configs).Sections}, nil
}

// Start applies what Connect fetched, watches every tag the daemon has,
// asks for the items of the visible ones and starts forwarding daemon traffic to Inbound. It runs on the UI
// loop.
func (s *Session) Start() error {
	s.mu.Lock()
	hs, c := s.pending, s.client
	s.pending = nil
	s.mu.Unlock()
	if hs == nil || c == nil {
		return ErrNotConnected
	}

	s.visible = nil
	s.mirror.ListTags(hs.tags)
	s.mirror.ApplyConfigs(hs.configs)
	s.mirror.NewTags(hs.tags)

	s.store.Start(s.mirror.StrTags(),
		baseAttributes,
		s.mirror.OptStrings("story.format_attrs"),
		s.mirror.OptStrings("taglist.search_attributes"),
	)
	cur := s.mirror.CurTags()
	s.store.Update(cur)
	s.visible = tagSet(cur)
	s.countdown = s.mirror.OptInt("update.auto.interval")

	s.serve(c)
	return nil
}

// serve runs the client's read loop and forwards its traffic for as long
// as it is the session's connection.
func (s *Session) serve(c *daemon.Client) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	raw := make(chan protocol.Inbound, 64)
	go c.Serve(ctx, raw)
	go func() {
		for {
			select {
			case in := <-raw:
				if ctx.Err() != nil {
					return
				}
				select {
				case s.inbound <- in:
				case <-ctx.Done():
					return
				}
				if _, done := in.(protocol.Hangup); done {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Reconnect drops the current connection and dials again. Start must run
// afterwards on the UI loop.
func (s *Session) Reconnect(ctx context.Context) error {
	s.disconnect()
	return s.Connect(ctx)
}

func (s *Session) disconnect() {
	s.mu.Lock()
	c, cancel := s.client, s.cancel
	s.client, s.cancel, s.pending = nil, nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if c != nil {
		_ = c.Close()
	}
	s.pinger.Hangup(daemon.ErrHangup)
}

// Exit waits for the daemon to process everything already written, asks
// it to quit if configured to, then closes the connection. The UI loop
// must keep applying inbound traffic meanwhile so the final PONG lands.
func (s *Session) Exit(ctx context.Context) error {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil || c.Err() != nil {
		s.disconnect()
		return nil
	}

	err := s.pinger.Sync(ctx)
	if err != nil {
		err = fmt.Errorf("flush daemon writes: %w", err)
	}
	if s.mirror.OptBool("kill_daemon_on_exit") {
		if werr := c.Write(protocol.CmdDie, ""); werr != nil && err == nil {
			err = werr
		}
	}
	s.disconnect()
	return err
}

// Apply routes one daemon message to the part of the front-end that owns
// it. It runs on the UI loop.
func (s *Session) Apply(in protocol.Inbound) {
	switch m := in.(type) {
	case protocol.Configs:
		s.mirror.ApplyConfigs(m.Sections)
	case protocol.NewTags:
		s.mirror.NewTags(m.Tags)
	case protocol.DelTags:
		s.mirror.DelTags(m.Tags)
	case protocol.TagChange:
		s.store.TagChange(m.Tag)
	case protocol.Items:
		s.store.Items(m.Tag, m.IDs)
	case protocol.ItemsDone:
		s.store.ItemsDone()
	case protocol.Attributes:
		s.store.Attributes(m.Stories)
	case protocol.Pong:
		s.pinger.Pong()
	case protocol.Errors:
		for _, msg := range m.Messages() {
			s.log.Error(msg)
		}
	case protocol.Info:
		s.log.Info(m.Text)
	case protocol.Except:
		s.log.Error("Daemon exception: " + m.Text)
	case protocol.Version:
		s.log.Debug("late VERSION", "version", m.Value)
	case protocol.ListTags:
		s.log.Debug("late LISTTAGS", "tags", len(m.Tags))
	case protocol.Hangup:
		err := m.Err
		if errors.Is(err, context.Canceled) {
			return
		}
		if err == nil {
			err = daemon.ErrHangup
		}
		s.pinger.Hangup(err)
		s.log.Error(hangupMessage, "cause", err.Error())
		s.bus.Publish(hooks.Hangup, err)
	}
}

func (s *Session) watchTag(tag string) {
	if err := s.Write(protocol.CmdWatchTags, []string{tag}); err != nil {
		s.log.Warn("watch new tag failed", "tag", tag, "error", err)
	}
}

// fetchShown requests the items of tags that just became visible, either
// because they are new or because the tags setting now admits them.
func (s *Session) fetchShown(cur []string) {
	if s.visible == nil {
		return
	}
	var fresh []string
	for _, tag := range cur {
		if _, ok := s.visible[tag]; !ok {
			fresh = append(fresh, tag)
		}
	}
	s.visible = tagSet(cur)
	for _, tag := range fresh {
		s.store.AddTag(tag)
		if err := s.Write(protocol.CmdItems, []string{tag}); err != nil {
			s.log.Warn("request items failed", "tag", tag, "error", err)
		}
	}
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}

// Tick runs once per second. Every update.auto.interval ticks the tags
// the daemon reported as changed are fetched again, unless a full update
// is still running.
func (s *Session) Tick() {
	if !s.mirror.OptBool("update.auto.enabled") {
		return
	}
	if s.countdown > 0 {
		s.countdown--
		return
	}
	s.countdown = s.mirror.OptInt("update.auto.interval")
	if s.store.Updating() {
		return
	}
	if tags := s.store.FlushTagChanges(); len(tags) > 0 {
		s.log.Debug("auto update", "tags", tags)
	}
}

// Refresh empties every tag and fetches the visible ones again.
func (s *Session) Refresh() {
	s.store.Reset(true)
	s.store.Update(s.mirror.CurTags())
}

// Transform sets the daemon's global filter, or only this connection's
// when temporary, then refreshes.
func (s *Session) Transform(expr string, temporary bool) error {
	var err error
	if temporary {
		err = s.Write(protocol.CmdTransform, expr)
	} else {
		err = s.mirror.SetPath("defaults.global_transform", expr)
	}
	if err != nil {
		return fmt.Errorf("set transform: %w", err)
	}
	s.Refresh()
	return nil
}

// Close releases the connection without talking to the daemon.
func (s *Session) Close() {
	s.disconnect()
	s.store.Close()
	s.bus.UnhookAll(s.owner)
}
