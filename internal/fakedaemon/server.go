// Package fakedaemon is a small stand-in for the feed daemon. It speaks the
// daemon socket protocol over a sqlite repository so the front-end can be
// run and tested without the real daemon.
package fakedaemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"sync"

	"github.com/glabrego/canto-ng/internal/protocol"
	"github.com/glabrego/canto-ng/internal/storage"
)

// itemsChunk bounds the ids sent in one ITEMS frame.
const itemsChunk = 100

// Repository is the storage the server answers from.
type Repository interface {
	Tags(ctx context.Context) ([]string, error)
	TagItems(ctx context.Context, tag string) ([]string, error)
	StoryTags(ctx context.Context, id string) ([]string, error)
	Attributes(ctx context.Context, want map[string][]string) (map[string]map[string]any, error)
	SetAttributes(ctx context.Context, changes map[string]map[string]any) ([]string, error)
	Configs(ctx context.Context, names []string) (map[string]any, error)
	SetConfigs(ctx context.Context, sections map[string]any) error
	DelConfigs(ctx context.Context, sections map[string]any) error
	SaveStories(ctx context.Context, stories []storage.Story) error
}

type Server struct {
	repo    Repository
	log     *slog.Logger
	version float64

	mu    sync.Mutex
	conns map[*conn]struct{}
	tags  []string
	die   context.CancelFunc
}

func New(repo Repository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		repo:    repo,
		log:     logger.With("component", "fakedaemon"),
		version: protocol.CompatibleVersion,
		conns:   map[*conn]struct{}{},
	}
}

// SetVersion changes the VERSION the server reports.
func (s *Server) SetVersion(v float64) { s.version = v }

// Serve accepts connections on ln until ctx ends or a client sends DIE.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.die = cancel
	s.mu.Unlock()

	tags, err := s.repo.Tags(ctx)
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	s.mu.Lock()
	s.tags = tags
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.closeAll()
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		c := newConn(nc)
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, c)
		}()
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.nc.Close()
	}
}

// AddStories stores stories and tells watching clients about new tags and
// changed ones.
func (s *Server) AddStories(ctx context.Context, stories []storage.Story) error {
	if err := s.repo.SaveStories(ctx, stories); err != nil {
		return err
	}
	tags, err := s.repo.Tags(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	var added []string
	for _, t := range tags {
		if !contains(s.tags, t) {
			added = append(added, t)
		}
	}
	s.tags = tags
	s.mu.Unlock()

	if len(added) > 0 {
		s.broadcast(nil, func(c *conn) bool { return c.watchNew }, protocol.CmdNewTags, added)
	}
	changed := map[string]struct{}{}
	for _, st := range stories {
		for _, t := range st.Tags {
			changed[t] = struct{}{}
		}
	}
	for _, t := range sortedKeys(changed) {
		s.broadcast(nil, func(c *conn) bool { return c.watching(t) }, protocol.CmdTagChange, t)
	}
	return nil
}

type conn struct {
	nc  net.Conn
	enc *protocol.Encoder

	mu        sync.Mutex
	watchNew  bool
	watchDel  bool
	watchConf bool
	watchTags map[string]struct{}
	autoAttrs []string
	transform string
}

func newConn(nc net.Conn) *conn {
	return &conn{nc: nc, enc: protocol.NewEncoder(nc), watchTags: map[string]struct{}{}}
}

func (c *conn) watching(tag string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.watchTags[tag]
	return ok
}

func (c *conn) send(cmd string, args any) error {
	return c.enc.Encode(cmd, args)
}

func (s *Server) handle(ctx context.Context, c *conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = c.nc.Close()
	}()

	dec := protocol.NewDecoder(c.nc)
	for {
		msg, err := dec.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Debug("connection read failed", "error", err)
			}
			return
		}
		if err := s.dispatch(ctx, c, msg); err != nil {
			s.log.Warn("request failed", "cmd", msg.Cmd, "error", err)
			if err := c.send(protocol.CmdExcept, err.Error()); err != nil {
				return
			}
		}
		if msg.Cmd == protocol.CmdDie {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, c *conn, msg protocol.Message) error {
	s.log.Debug("request", "cmd", msg.Cmd)
	switch msg.Cmd {
	case protocol.CmdVersion:
		return c.send(protocol.CmdVersion, s.version)
	case protocol.CmdPing:
		return c.send(protocol.CmdPong, "")
	case protocol.CmdListTags:
		s.mu.Lock()
		tags := append([]string{}, s.tags...)
		s.mu.Unlock()
		return c.send(protocol.CmdListTags, tags)
	case protocol.CmdWatchNewTags:
		c.mu.Lock()
		c.watchNew = true
		c.mu.Unlock()
	case protocol.CmdWatchDelTags:
		c.mu.Lock()
		c.watchDel = true
		c.mu.Unlock()
	case protocol.CmdWatchConfigs:
		c.mu.Lock()
		c.watchConf = true
		c.mu.Unlock()
	case protocol.CmdWatchTags:
		var tags []string
		if err := decode(msg, &tags); err != nil {
			return err
		}
		c.mu.Lock()
		for _, t := range tags {
			c.watchTags[t] = struct{}{}
		}
		c.mu.Unlock()
	case protocol.CmdAutoAttr:
		var attrs []string
		if err := decode(msg, &attrs); err != nil {
			return err
		}
		c.mu.Lock()
		c.autoAttrs = attrs
		c.mu.Unlock()
	case protocol.CmdConfigs:
		var names []string
		if err := decode(msg, &names); err != nil {
			return err
		}
		sections, err := s.repo.Configs(ctx, names)
		if err != nil {
			return err
		}
		return c.send(protocol.CmdConfigs, sections)
	case protocol.CmdSetConfigs, protocol.CmdDelConfigs:
		return s.editConfigs(ctx, c, msg)
	case protocol.CmdItems:
		var tags []string
		if err := decode(msg, &tags); err != nil {
			return err
		}
		return s.items(ctx, c, tags)
	case protocol.CmdAttributes:
		var want map[string][]string
		if err := decode(msg, &want); err != nil {
			return err
		}
		attrs, err := s.repo.Attributes(ctx, want)
		if err != nil {
			return err
		}
		return c.send(protocol.CmdAttributes, attrs)
	case protocol.CmdSetAttributes:
		return s.setAttributes(ctx, c, msg)
	case protocol.CmdTransform:
		var expr string
		if err := decode(msg, &expr); err != nil {
			return err
		}
		c.mu.Lock()
		c.transform = expr
		c.mu.Unlock()
	case protocol.CmdProtect, protocol.CmdUnprotect:
		// Nothing is ever filtered out, so protection has no effect.
	case protocol.CmdDie:
		s.mu.Lock()
		die := s.die
		s.mu.Unlock()
		if die != nil {
			die()
		}
	default:
		return fmt.Errorf("unknown command %q", msg.Cmd)
	}
	return nil
}

// items answers each tag on its own: its ids in chunks, ITEMSDONE, then
// the connection's automatic attributes for those ids.
func (s *Server) items(ctx context.Context, c *conn, tags []string) error {
	c.mu.Lock()
	auto := append([]string(nil), c.autoAttrs...)
	c.mu.Unlock()

	for _, tag := range tags {
		ids, err := s.repo.TagItems(ctx, tag)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			if err := c.send(protocol.CmdItems, map[string][]string{tag: {}}); err != nil {
				return err
			}
		}
		for start := 0; start < len(ids); start += itemsChunk {
			end := min(start+itemsChunk, len(ids))
			if err := c.send(protocol.CmdItems, map[string][]string{tag: ids[start:end]}); err != nil {
				return err
			}
		}
		if err := c.send(protocol.CmdItemsDone, map[string]any{}); err != nil {
			return err
		}
		if len(auto) == 0 || len(ids) == 0 {
			continue
		}
		want := make(map[string][]string, len(ids))
		for _, id := range ids {
			want[id] = auto
		}
		attrs, err := s.repo.Attributes(ctx, want)
		if err != nil {
			return err
		}
		if err := c.send(protocol.CmdAttributes, attrs); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) setAttributes(ctx context.Context, c *conn, msg protocol.Message) error {
	var changes map[string]map[string]any
	if err := decode(msg, &changes); err != nil {
		return err
	}
	updated, err := s.repo.SetAttributes(ctx, changes)
	if err != nil {
		return err
	}
	changed := map[string]struct{}{}
	for _, id := range updated {
		tags, err := s.repo.StoryTags(ctx, id)
		if err != nil {
			return err
		}
		for _, t := range tags {
			changed[t] = struct{}{}
		}
	}
	for _, t := range sortedKeys(changed) {
		s.broadcast(c, func(o *conn) bool { return o.watching(t) }, protocol.CmdTagChange, t)
	}
	return nil
}

// editConfigs stores the change and forwards the resulting sections to
// every other connection watching configs.
func (s *Server) editConfigs(ctx context.Context, c *conn, msg protocol.Message) error {
	var sections map[string]any
	if err := decode(msg, &sections); err != nil {
		return err
	}
	var err error
	if msg.Cmd == protocol.CmdSetConfigs {
		err = s.repo.SetConfigs(ctx, sections)
	} else {
		err = s.repo.DelConfigs(ctx, sections)
	}
	if err != nil {
		return err
	}
	names := sortedKeys(sections)
	current, err := s.repo.Configs(ctx, names)
	if err != nil {
		return err
	}
	s.broadcast(c, func(o *conn) bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.watchConf
	}, protocol.CmdConfigs, current)
	return nil
}

// broadcast sends to every connection but skip that passes match.
func (s *Server) broadcast(skip *conn, match func(*conn) bool, cmd string, args any) {
	s.mu.Lock()
	targets := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		if c != skip && match(c) {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()
	for _, c := range targets {
		if err := c.send(cmd, args); err != nil {
			s.log.Debug("broadcast failed", "cmd", cmd, "error", err)
		}
	}
}

func decode(msg protocol.Message, out any) error {
	if len(msg.Args) == 0 || string(msg.Args) == "null" || string(msg.Args) == `""` {
		return nil
	}
	if err := json.Unmarshal(msg.Args, out); err != nil {
		return fmt.Errorf("decode %s: %w", msg.Cmd, err)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
