package mirror

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/glabrego/canto-ng/internal/hooks"
	"github.com/glabrego/canto-ng/internal/protocol"
)

var (
	ErrNoSuchOption = errors.New("no such option")
	ErrNotBool      = errors.New("option is not a boolean")
	ErrUnknownTag   = errors.New("unknown tag")
)

// Writer sends a request to the daemon.
type Writer interface {
	Write(cmd string, args any) error
}

type discardWriter struct{}

func (discardWriter) Write(string, any) error { return nil }

// Mirror is the front-end's copy of the daemon-held configuration plus the
// tag list it filters with it. Mutations publish change events on the bus
// after the lock is released.
type Mirror struct {
	mu       sync.RWMutex
	conf     Node
	tagConf  map[string]Node
	defaults Node
	feeds    Node
	strtags  []string
	curtags  []string
	initd    bool
	schema   *Schema
	tagSch   *Schema

	bus *hooks.Bus
	out Writer
	log *slog.Logger

	vmu  sync.RWMutex
	vars map[string]any
}

func New(bus *hooks.Bus, out Writer, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = discardWriter{}
	}
	if bus == nil {
		bus = hooks.New(logger)
	}
	m := &Mirror{
		conf:     Template(),
		tagConf:  map[string]Node{},
		defaults: Map(nil),
		feeds:    Opaque(nil),
		tagSch:   tagSchema(),
		bus:      bus,
		out:      out,
		log:      logger,
		vars:     defaultVars(),
	}
	m.schema = mainSchema(m.repairTagOrder)
	return m
}

// SetWriter replaces the daemon connection, as after a reconnect.
func (m *Mirror) SetWriter(out Writer) {
	if out == nil {
		out = discardWriter{}
	}
	m.mu.Lock()
	m.out = out
	m.mu.Unlock()
}

func (m *Mirror) Bus() *hooks.Bus { return m.bus }

type event struct {
	ev      hooks.Event
	payload any
}

type request struct {
	cmd  string
	args any
}

// batch collects everything a locked mutation wants to do once the lock
// is gone: errors to report, requests to send, events to publish.
type batch struct {
	errs     []error
	requests []request
	events   []event
}

func (b *batch) publish(ev hooks.Event, payload any) {
	b.events = append(b.events, event{ev: ev, payload: payload})
}

func (b *batch) send(cmd string, args any) {
	b.requests = append(b.requests, request{cmd: cmd, args: args})
}

func (b *batch) report(_ string, err error) {
	b.errs = append(b.errs, err)
}

func (m *Mirror) flush(b *batch) {
	for _, err := range b.errs {
		m.log.Error("bad config value", "error", err)
	}
	m.mu.RLock()
	out := m.out
	m.mu.RUnlock()
	for _, r := range b.requests {
		if err := out.Write(r.cmd, r.args); err != nil {
			m.log.Warn("config write failed", "cmd", r.cmd, "error", err)
		}
	}
	for _, e := range b.events {
		m.bus.Publish(e.ev, e.payload)
	}
}

func (m *Mirror) repairTagOrder(v, _ Node) (Node, error) {
	if v.Kind != KindList {
		return Node{}, fmt.Errorf("%w: want a list of tags", errBadValue)
	}
	known := make(map[string]struct{}, len(m.strtags))
	for _, t := range m.strtags {
		known[t] = struct{}{}
	}
	seen := map[string]struct{}{}
	order := make([]string, 0, len(m.strtags))
	for _, t := range v.L {
		if _, ok := known[t]; !ok {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		order = append(order, t)
	}
	for _, t := range m.strtags {
		if _, ok := seen[t]; !ok {
			order = append(order, t)
		}
	}
	return List(order...), nil
}

// applyMain validates next against the current config and installs it.
// Callers hold mu.
func (m *Mirror) applyMain(next Node, write bool, b *batch) Node {
	changes, deletions := Validate(next, m.conf, m.schema, b.report)
	m.conf = next
	if len(changes.M) > 0 {
		b.publish(hooks.OptChange, changes.Value())
		if write {
			b.send(protocol.CmdSetConfigs, map[string]any{"CantoCurses": changes.Value()})
		}
	}
	if len(deletions.M) > 0 && write {
		b.send(protocol.CmdDelConfigs, map[string]any{"CantoCurses": deletions.Value()})
	}
	return changes
}

func (m *Mirror) applyTag(tag string, next Node, write bool, b *batch) {
	old, ok := m.tagConf[tag]
	if !ok {
		old = TagTemplate()
	}
	changes, deletions := Validate(next, old, m.tagSch, b.report)
	m.tagConf[tag] = next
	if len(changes.M) > 0 {
		b.publish(hooks.TagOptChange, map[string]any{tag: changes.Value()})
		if write {
			b.send(protocol.CmdSetConfigs, map[string]any{"tags": map[string]any{tag: changes.Value()}})
		}
	}
	if len(deletions.M) > 0 && write {
		b.send(protocol.CmdDelConfigs, map[string]any{"tags": map[string]any{tag: deletions.Value()}})
	}
}

func (m *Mirror) applyDefaults(next Node, write bool, b *batch) {
	changes := map[string]any{}
	for k, v := range next.M {
		if prev, ok := m.defaults.M[k]; !ok || !Equal(prev, v) {
			changes[k] = v.Value()
		}
	}
	merged := m.defaults.Clone()
	for k, v := range next.M {
		merged.M[k] = v
	}
	m.defaults = merged
	if len(changes) == 0 {
		return
	}
	b.publish(hooks.DefOptChange, changes)
	if write {
		b.send(protocol.CmdSetConfigs, map[string]any{"defaults": changes})
	}
}

// evalTags recomputes curtags and publishes eval_tags_changed when the
// filtered order moved. Callers hold mu.
func (m *Mirror) evalTags(b *batch) {
	prev := m.curtags

	var re *regexp.Regexp
	if t, ok := m.conf.M["tags"]; ok && t.Kind == KindString {
		// tag patterns are anchored at the start, as the daemon matches them
		re, _ = regexp.Compile(`^(?:` + t.S + `)`)
	}
	pos := map[string]int{}
	if order, ok := m.conf.M["tagorder"]; ok && order.Kind == KindList {
		for i, t := range order.L {
			pos[t] = i
		}
	}

	cur := make([]string, 0, len(m.strtags))
	for _, t := range m.strtags {
		if re != nil && re.MatchString(t) {
			cur = append(cur, t)
		}
	}
	sort.SliceStable(cur, func(i, j int) bool {
		pi, iok := pos[cur[i]]
		pj, jok := pos[cur[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok:
			return true
		}
		return false
	})

	if len(cur) == 0 && len(m.strtags) > 0 {
		m.log.Warn("current tags setting eliminated all tags", "tags", m.conf.M["tags"].S)
	}
	if equalStrings(prev, cur) {
		return
	}
	m.curtags = cur
	b.publish(hooks.EvalTagsChanged, append([]string(nil), cur...))
}

// ApplyConfigs installs a CONFIGS payload from the daemon.
func (m *Mirror) ApplyConfigs(sections map[string]any) {
	b := &batch{}
	m.mu.Lock()
	m.applyConfigs(sections, false, b)
	m.mu.Unlock()
	m.flush(b)
}

func (m *Mirror) applyConfigs(sections map[string]any, write bool, b *batch) {
	if raw, ok := sections["tags"]; ok {
		tags := FromValue(raw)
		if tags.Kind == KindMap {
			for _, tag := range tags.Keys() {
				tc := tags.M[tag]
				if tc.Kind != KindMap {
					b.report(tag, fmt.Errorf("tag %s config: %w: want a section", tag, errBadValue))
					continue
				}
				m.applyTag(tag, tc, write, b)
			}
		}
	}

	if raw, ok := sections["CantoCurses"]; ok {
		next := FromValue(raw)
		if next.Kind == KindMap {
			migrated, ran := Migrate(next)
			m.applyMain(migrated, write, b)
			if ran {
				m.log.Debug("migrated config", "version", ConfigVersion)
				b.send(protocol.CmdSetConfigs, map[string]any{"CantoCurses": map[string]any{
					"color":          m.conf.M["color"].Value(),
					"config_version": ConfigVersion,
				}})
			}
		} else {
			b.report("CantoCurses", fmt.Errorf("CantoCurses config: %w: want a section", errBadValue))
		}
	}

	if raw, ok := sections["defaults"]; ok {
		if d := FromValue(raw); d.Kind == KindMap {
			m.applyDefaults(d, write, b)
		}
	}

	if raw, ok := sections["feeds"]; ok {
		feeds := FromValue(raw)
		if !Equal(feeds, m.feeds) {
			m.feeds = feeds
			b.publish(hooks.FeedOptChange, feeds.Value())
		}
	}

	m.initd = true
	m.evalTags(b)
}

// ListTags records the daemon's initial tag list. It publishes nothing;
// views build their tags from StrTags once configs have arrived.
func (m *Mirror) ListTags(tags []string) {
	b := &batch{}
	m.mu.Lock()
	m.strtags = m.strtags[:0]
	seen := map[string]struct{}{}
	for _, t := range tags {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		m.strtags = append(m.strtags, t)
		if _, ok := m.tagConf[t]; !ok {
			m.tagConf[t] = TagTemplate()
		}
	}
	m.evalTags(b)
	m.mu.Unlock()
	m.flush(b)
}

// NewTags adds tags the daemon announced. Tags already known are ignored
// apart from making sure they appear in tagorder.
func (m *Mirror) NewTags(tags []string) {
	b := &batch{}
	m.mu.Lock()
	c := m.conf.Clone()
	order := stringsAt(c, "tagorder")
	for _, tag := range tags {
		if !contains(m.strtags, tag) {
			m.strtags = append(m.strtags, tag)
			if _, ok := m.tagConf[tag]; !ok {
				m.tagConf[tag] = TagTemplate()
			}
			m.log.Debug("new tag", "tag", tag)
			b.publish(hooks.NewTag, tag)
		}
		if !contains(order, tag) {
			order = append(order, tag)
		}
	}
	c.M["tagorder"] = List(order...)
	m.applyMain(c, true, b)
	m.evalTags(b)
	m.mu.Unlock()
	m.flush(b)
}

// DelTags drops tags the daemon removed. tagorder loses them even when the
// mirror never saw them announced.
func (m *Mirror) DelTags(tags []string) {
	b := &batch{}
	m.mu.Lock()
	c := m.conf.Clone()
	order := stringsAt(c, "tagorder")
	for _, tag := range tags {
		if i := indexOf(m.strtags, tag); i >= 0 {
			m.strtags = append(m.strtags[:i:i], m.strtags[i+1:]...)
			b.publish(hooks.DelTag, tag)
		} else {
			m.log.Warn("DELTAGS for unknown tag", "tag", tag)
		}
		order = remove(order, tag)
	}
	c.M["tagorder"] = List(order...)
	m.applyMain(c, true, b)
	m.evalTags(b)
	m.mu.Unlock()
	m.flush(b)
}

// Swap exchanges two tags in tagorder.
func (m *Mirror) Swap(a, c string) error {
	b := &batch{}
	m.mu.Lock()
	conf := m.conf.Clone()
	order := stringsAt(conf, "tagorder")
	i, j := indexOf(order, a), indexOf(order, c)
	if i < 0 || j < 0 {
		m.mu.Unlock()
		return fmt.Errorf("swap %s and %s: %w", a, c, ErrUnknownTag)
	}
	order[i], order[j] = order[j], order[i]
	conf.M["tagorder"] = List(order...)
	m.applyMain(conf, true, b)
	m.evalTags(b)
	m.mu.Unlock()
	m.flush(b)
	return nil
}

// Promote moves tag one place up among the visible tags.
func (m *Mirror) Promote(tag string) error {
	return m.shift(tag, -1)
}

// Demote moves tag one place down among the visible tags.
func (m *Mirror) Demote(tag string) error {
	return m.shift(tag, 1)
}

func (m *Mirror) shift(tag string, delta int) error {
	cur := m.CurTags()
	i := indexOf(cur, tag)
	if i < 0 {
		return fmt.Errorf("move %s: %w", tag, ErrUnknownTag)
	}
	j := i + delta
	if j < 0 || j >= len(cur) {
		return nil
	}
	return m.Swap(tag, cur[j])
}

// EvalTags recomputes the visible tag list.
func (m *Mirror) EvalTags() {
	b := &batch{}
	m.mu.Lock()
	m.evalTags(b)
	m.mu.Unlock()
	m.flush(b)
}

func (m *Mirror) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initd
}

func (m *Mirror) StrTags() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.strtags...)
}

func (m *Mirror) CurTags() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.curtags...)
}

// Conf returns a copy of the whole CantoCurses tree.
func (m *Mirror) Conf() Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conf.Clone()
}

// SetConf validates and installs a locally edited tree, writing the
// changes back to the daemon.
func (m *Mirror) SetConf(c Node) {
	b := &batch{}
	m.mu.Lock()
	m.applyMain(c.Clone(), true, b)
	m.evalTags(b)
	m.mu.Unlock()
	m.flush(b)
}

func (m *Mirror) Opt(path string) (Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.conf.Get(path)
	if !ok {
		return Node{}, false
	}
	return n.Clone(), true
}

func (m *Mirror) OptString(path string) string {
	n, _ := m.Opt(path)
	return n.S
}

func (m *Mirror) OptInt(path string) int {
	n, _ := m.Opt(path)
	return n.I
}

func (m *Mirror) OptBool(path string) bool {
	n, _ := m.Opt(path)
	return n.B
}

func (m *Mirror) OptStrings(path string) []string {
	n, _ := m.Opt(path)
	return n.L
}

// OptMap returns a section of string values, such as a key map.
func (m *Mirror) OptMap(path string) map[string]string {
	n, _ := m.Opt(path)
	out := make(map[string]string, len(n.M))
	for k, v := range n.M {
		if v.Kind == KindString {
			out[k] = v.S
		}
	}
	return out
}

// SetOpt assigns one existing option by dotted path.
func (m *Mirror) SetOpt(path string, value any) error {
	b := &batch{}
	m.mu.Lock()
	c := m.conf.Clone()
	if _, ok := c.Get(path); !ok {
		m.mu.Unlock()
		return fmt.Errorf("set %s: %w", path, ErrNoSuchOption)
	}
	c.Set(path, FromValue(value))
	m.applyMain(c, true, b)
	m.evalTags(b)
	m.mu.Unlock()
	m.flush(b)
	return nil
}

// Toggle flips a boolean option.
func (m *Mirror) Toggle(path string) error {
	n, ok := m.Opt(path)
	if !ok {
		return fmt.Errorf("toggle %s: %w", path, ErrNoSuchOption)
	}
	if n.Kind != KindBool {
		return fmt.Errorf("toggle %s: %w", path, ErrNotBool)
	}
	return m.SetOpt(path, !n.B)
}

func (m *Mirror) TagConf(tag string) Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tc, ok := m.tagConf[tag]; ok {
		return tc.Clone()
	}
	return TagTemplate()
}

func (m *Mirror) SetTagOpt(tag, path string, value any) error {
	b := &batch{}
	m.mu.Lock()
	tc, ok := m.tagConf[tag]
	if !ok {
		tc = TagTemplate()
	}
	tc = tc.Clone()
	if _, ok := tc.Get(path); !ok {
		m.mu.Unlock()
		return fmt.Errorf("set %s.%s: %w", tag, path, ErrNoSuchOption)
	}
	tc.Set(path, FromValue(value))
	m.applyTag(tag, tc, true, b)
	m.mu.Unlock()
	m.flush(b)
	return nil
}

func (m *Mirror) Defaults() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out, _ := m.defaults.Value().(map[string]any)
	return out
}

// SetPath assigns an option addressed the way the daemon names them:
// "CantoCurses.<path>", "defaults.<key>" or "tags.<tag>.<path>".
func (m *Mirror) SetPath(path string, value any) error {
	section, rest, ok := strings.Cut(path, ".")
	if !ok || rest == "" {
		return fmt.Errorf("set %s: %w", path, ErrNoSuchOption)
	}
	switch section {
	case "CantoCurses":
		return m.SetOpt(rest, value)
	case "defaults":
		b := &batch{}
		m.mu.Lock()
		m.applyDefaults(Map(map[string]Node{rest: FromValue(value)}), true, b)
		m.mu.Unlock()
		m.flush(b)
		return nil
	case "tags":
		tag, opt := m.splitTagPath(rest)
		if tag == "" {
			return fmt.Errorf("set %s: %w", path, ErrUnknownTag)
		}
		return m.SetTagOpt(tag, opt, value)
	}
	return fmt.Errorf("set %s: %w", path, ErrNoSuchOption)
}

// splitTagPath finds the longest known tag name that prefixes rest, since
// tag names may themselves contain dots.
func (m *Mirror) splitTagPath(rest string) (string, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	best := ""
	for tag := range m.tagConf {
		if strings.HasPrefix(rest, tag+".") && len(tag) > len(best) {
			best = tag
		}
	}
	if best == "" {
		return "", ""
	}
	return best, rest[len(best)+1:]
}

// Changed reports whether a change set published with opt_change touches
// the dotted path.
func Changed(changes map[string]any, path string) bool {
	var cur any = changes
	for _, key := range splitPath(path) {
		m, ok := cur.(map[string]any)
		if !ok {
			return false
		}
		if cur, ok = m[key]; !ok {
			return false
		}
	}
	return true
}

func stringsAt(n Node, key string) []string {
	if v, ok := n.M[key]; ok && v.Kind == KindList {
		return append([]string(nil), v.L...)
	}
	return nil
}

func contains(list []string, s string) bool { return indexOf(list, s) >= 0 }

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
