package store

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/glabrego/canto-ng/internal/hooks"
	"github.com/glabrego/canto-ng/internal/protocol"
)

// BaseAttributes are fetched for every story; the fallback story format
// needs them.
var BaseAttributes = []string{"title", "canto-state", "link", "enclosures"}

// Attrs is one story's attribute snapshot. A published Attrs is never
// modified; updates install a new map.
type Attrs map[string]any

func (a Attrs) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// State returns the canto-state list, e.g. ["read", "marked"].
func (a Attrs) State() []string {
	switch v := a["canto-state"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func (a Attrs) HasState(state string) bool {
	for _, s := range a.State() {
		if s == state {
			return true
		}
	}
	return false
}

// Writer sends a request to the daemon.
type Writer interface {
	Write(cmd string, args any) error
}

// Pinger sends a PING and calls done when the matching PONG arrives.
type Pinger interface {
	Ping(done func(error)) error
}

// Protection tells the store which ids must survive ITEMSDONE.
type Protection interface {
	ProtectedIDs() []string
}

// ItemsEvent is the payload of items_added and items_removed.
type ItemsEvent struct {
	Core *TagCore
	IDs  []string
}

// StoriesRemovedEvent is published by views when stories leave the screen.
type StoriesRemovedEvent struct {
	Tag string
	IDs []string
}

// Store holds the tag cores and the attribute cache and turns ITEMS and
// ATTRIBUTES traffic into events.
type Store struct {
	mu        sync.RWMutex
	cores     map[string]*TagCore
	coreOrder []string
	attrs     map[string]Attrs
	needed    []string
	requested map[string]map[string]struct{}

	itemCore *TagCore
	itemBuf  []string

	resetPings    int
	updating      bool
	updatePending map[string]struct{}
	tagChanges    []string

	bus   *hooks.Bus
	out   Writer
	ping  Pinger
	prot  Protection
	owner hooks.Owner
	log   *slog.Logger
}

type noProtection struct{}

func (noProtection) ProtectedIDs() []string { return nil }

func New(bus *hooks.Bus, out Writer, ping Pinger, prot Protection, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if prot == nil {
		prot = noProtection{}
	}
	s := &Store{
		cores:     map[string]*TagCore{},
		attrs:     map[string]Attrs{},
		requested: map[string]map[string]struct{}{},
		needed:    append([]string(nil), BaseAttributes...),
		bus:       bus,
		out:       out,
		ping:      ping,
		prot:      prot,
		owner:     hooks.NewOwner(),
		log:       logger.With("component", "store"),
	}
	bus.On(hooks.NewTag, s.owner, func(p any) {
		if tag, ok := p.(string); ok {
			s.AddTag(tag)
		}
	})
	bus.On(hooks.DelTag, s.owner, func(p any) {
		if tag, ok := p.(string); ok {
			s.RemoveTag(tag)
		}
	})
	bus.On(hooks.StoriesRemoved, s.owner, func(p any) {
		if ev, ok := p.(StoriesRemovedEvent); ok {
			s.Forget(ev.IDs)
		}
	})
	return s
}

// SetConn points the store at a new connection after a reconnect.
func (s *Store) SetConn(out Writer, ping Pinger) {
	s.mu.Lock()
	s.out, s.ping = out, ping
	s.mu.Unlock()
}

// Close drops the store's bus subscriptions.
func (s *Store) Close() {
	s.bus.UnhookAll(s.owner)
}

func (s *Store) write(cmd string, args any) {
	s.mu.RLock()
	out := s.out
	s.mu.RUnlock()
	if out == nil {
		return
	}
	if err := out.Write(cmd, args); err != nil {
		s.log.Warn("daemon write failed", "cmd", cmd, "error", err)
	}
}

// Start creates cores for the initial tags and asks the daemon to send the
// attributes views always need and to report tag changes.
func (s *Store) Start(tags []string, extraAttrs ...[]string) {
	s.mu.Lock()
	for _, list := range extraAttrs {
		s.addNeededLocked(list)
	}
	needed := append([]string(nil), s.needed...)
	s.mu.Unlock()

	s.write(protocol.CmdAutoAttr, needed)
	s.write(protocol.CmdWatchTags, tags)
	for _, tag := range tags {
		s.AddTag(tag)
	}
}

func (s *Store) addNeededLocked(attrs []string) bool {
	grew := false
	for _, a := range attrs {
		if !containsString(s.needed, a) {
			s.needed = append(s.needed, a)
			grew = true
		}
	}
	return grew
}

// Want extends the automatically fetched attribute set.
func (s *Store) Want(attrs ...string) {
	s.mu.Lock()
	grew := s.addNeededLocked(attrs)
	needed := append([]string(nil), s.needed...)
	s.mu.Unlock()
	if grew {
		s.write(protocol.CmdAutoAttr, needed)
	}
}

func (s *Store) Needed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.needed...)
}

// AddTag creates the core for tag if it does not exist yet.
func (s *Store) AddTag(tag string) *TagCore {
	s.mu.Lock()
	if tc, ok := s.cores[tag]; ok {
		s.mu.Unlock()
		return tc
	}
	tc := newTagCore(tag)
	s.cores[tag] = tc
	s.coreOrder = append(s.coreOrder, tag)
	s.mu.Unlock()

	s.bus.Publish(hooks.NewTagCore, tc)
	return tc
}

// RemoveTag empties the tag's core. The core itself is kept.
func (s *Store) RemoveTag(tag string) {
	s.mu.RLock()
	tc, ok := s.cores[tag]
	s.mu.RUnlock()
	if !ok {
		return
	}
	if removed := tc.reset(); len(removed) > 0 {
		s.bus.Publish(hooks.ItemsRemoved, ItemsEvent{Core: tc, IDs: removed})
	}
	s.bus.Publish(hooks.DelTagCore, tc)
}

func (s *Store) Core(tag string) (*TagCore, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tc, ok := s.cores[tag]
	return tc, ok
}

// Cores lists every core in creation order.
func (s *Store) Cores() []*TagCore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*TagCore, 0, len(s.coreOrder))
	for _, tag := range s.coreOrder {
		out = append(out, s.cores[tag])
	}
	return out
}

func (s *Store) gated() bool {
	if s.resetPings > 0 {
		s.log.Debug("discarding traffic until reset completes", "pings", s.resetPings)
		return true
	}
	return false
}

// Items buffers one ITEMS frame. A tag's list may span several frames; it
// is committed on ITEMSDONE.
func (s *Store) Items(tag string, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gated() {
		return
	}
	if s.itemCore == nil || s.itemCore.tag != tag {
		s.itemBuf = nil
		s.itemCore = s.cores[tag]
		if s.itemCore == nil {
			s.log.Debug("ITEMS for unknown tag", "tag", tag)
			return
		}
	}
	s.itemBuf = append(s.itemBuf, ids...)
}

// ItemsDone commits the buffered list. Ids the daemon no longer lists are
// removed unless a view protects them; the daemon is told it may drop its
// automatic protection for the removed ones.
func (s *Store) ItemsDone() {
	protected := map[string]struct{}{}
	for _, id := range s.prot.ProtectedIDs() {
		protected[id] = struct{}{}
	}

	s.mu.Lock()
	if s.gated() || s.itemCore == nil {
		s.mu.Unlock()
		return
	}
	tc, buf := s.itemCore, s.itemBuf
	s.itemCore, s.itemBuf = nil, nil

	seen := make(map[string]struct{}, len(buf))
	next := make([]string, 0, len(buf))
	for _, id := range buf {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		next = append(next, id)
	}
	for _, id := range tc.IDs() {
		if _, ok := seen[id]; ok {
			continue
		}
		if _, ok := protected[id]; ok {
			next = append(next, id)
		}
	}
	added, removed := tc.replace(next)

	complete := false
	if s.updating {
		delete(s.updatePending, tc.tag)
		if len(s.updatePending) == 0 {
			s.updating = false
			complete = true
		}
	}
	s.mu.Unlock()

	if len(added) > 0 {
		s.bus.Publish(hooks.ItemsAdded, ItemsEvent{Core: tc, IDs: added})
	}
	if len(removed) > 0 {
		s.bus.Publish(hooks.ItemsRemoved, ItemsEvent{Core: tc, IDs: removed})
		s.write(protocol.CmdUnprotect, map[string][]string{"auto": removed})
	}
	if complete {
		s.bus.Publish(hooks.UpdateComplete, nil)
	}
}

// Attributes merges an ATTRIBUTES response into the cache.
func (s *Store) Attributes(stories map[string]map[string]any) {
	s.mu.Lock()
	if s.gated() {
		s.mu.Unlock()
		return
	}
	updated := make(map[string]Attrs, len(stories))
	for id, a := range stories {
		merged := make(Attrs, len(s.attrs[id])+len(a))
		for k, v := range s.attrs[id] {
			merged[k] = v
		}
		for k, v := range a {
			merged[k] = v
			if req := s.requested[id]; req != nil {
				delete(req, k)
			}
		}
		if len(s.requested[id]) == 0 {
			delete(s.requested, id)
		}
		s.attrs[id] = merged
		updated[id] = merged
	}
	s.mu.Unlock()

	if len(updated) > 0 {
		s.bus.Publish(hooks.Attributes, updated)
	}
}

// Get returns the attribute snapshot for id, empty if none is cached.
func (s *Store) Get(id string) Attrs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.attrs[id]; ok {
		return a
	}
	return Attrs{}
}

func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.attrs[id]
	return ok
}

// Need requests attrs for ids that lack them. Requests already in flight
// are not repeated, and everything missing goes out in one ATTRIBUTES.
func (s *Store) Need(ids []string, attrs ...string) {
	s.mu.Lock()
	req := map[string][]string{}
	for _, id := range ids {
		have := s.attrs[id]
		for _, a := range attrs {
			if _, ok := have[a]; ok {
				continue
			}
			inflight := s.requested[id]
			if inflight == nil {
				inflight = map[string]struct{}{}
				s.requested[id] = inflight
			}
			if _, ok := inflight[a]; ok {
				continue
			}
			inflight[a] = struct{}{}
			req[id] = append(req[id], a)
		}
	}
	s.mu.Unlock()

	if len(req) > 0 {
		s.write(protocol.CmdAttributes, req)
	}
}

// Missing lists which of attrs id lacks.
func (s *Store) Missing(id string, attrs ...string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, a := range attrs {
		if _, ok := s.attrs[id][a]; !ok {
			out = append(out, a)
		}
	}
	return out
}

// SetAttributes changes story attributes on the daemon and in the cache.
func (s *Store) SetAttributes(changes map[string]map[string]any) {
	if len(changes) == 0 {
		return
	}
	s.write(protocol.CmdSetAttributes, changes)

	s.mu.Lock()
	updated := make(map[string]Attrs, len(changes))
	for id, a := range changes {
		merged := make(Attrs, len(s.attrs[id])+len(a))
		for k, v := range s.attrs[id] {
			merged[k] = v
		}
		for k, v := range a {
			merged[k] = v
		}
		s.attrs[id] = merged
		updated[id] = merged
	}
	s.mu.Unlock()
	s.bus.Publish(hooks.Attributes, updated)
}

// Forget evicts cached attributes for ids no core holds any more.
func (s *Store) Forget(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		held := false
		for _, tc := range s.cores {
			if tc.Contains(id) {
				held = true
				break
			}
		}
		if !held {
			delete(s.attrs, id)
			delete(s.requested, id)
		}
	}
}

// Reset empties every core and ignores ITEMS and ATTRIBUTES until the PING
// it sends is answered. Unless forced, it refuses while an update runs.
func (s *Store) Reset(force bool) bool {
	s.mu.Lock()
	if s.updating && !force {
		s.mu.Unlock()
		return false
	}
	s.updating = false
	s.updatePending = nil
	s.itemCore, s.itemBuf = nil, nil
	s.requested = map[string]map[string]struct{}{}
	s.resetPings++
	cores := make([]*TagCore, 0, len(s.coreOrder))
	for _, tag := range s.coreOrder {
		cores = append(cores, s.cores[tag])
	}
	ping := s.ping
	s.mu.Unlock()

	for _, tc := range cores {
		if removed := tc.reset(); len(removed) > 0 {
			s.bus.Publish(hooks.ItemsRemoved, ItemsEvent{Core: tc, IDs: removed})
		}
	}

	done := func(error) {
		s.mu.Lock()
		if s.resetPings > 0 {
			s.resetPings--
		}
		s.mu.Unlock()
	}
	if ping == nil {
		done(nil)
		return true
	}
	if err := ping.Ping(done); err != nil {
		s.log.Warn("reset ping failed", "error", err)
		done(err)
	}
	return true
}

// Update asks the daemon for the full list of every tag and publishes
// update_complete once all of them have been committed. Tags without a
// core are skipped; their ITEMS would never be committed.
func (s *Store) Update(tags []string) {
	s.mu.Lock()
	var wanted, skipped []string
	s.updatePending = make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if _, ok := s.cores[t]; !ok {
			skipped = append(skipped, t)
			continue
		}
		if _, dup := s.updatePending[t]; !dup {
			s.updatePending[t] = struct{}{}
			wanted = append(wanted, t)
		}
	}
	tags = wanted
	s.updating = len(tags) > 0
	s.tagChanges = nil
	s.mu.Unlock()

	if len(skipped) > 0 {
		s.log.Debug("update skips tags without a core", "tags", skipped)
	}

	if len(tags) == 0 {
		s.bus.Publish(hooks.UpdateComplete, nil)
		return
	}
	for _, t := range tags {
		s.write(protocol.CmdItems, []string{t})
	}
}

func (s *Store) Updating() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updating
}

// TagChange queues a tag the daemon reported as changed.
func (s *Store) TagChange(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !containsString(s.tagChanges, tag) {
		s.tagChanges = append(s.tagChanges, tag)
	}
}

// FlushTagChanges requests ITEMS for every queued tag and returns them.
func (s *Store) FlushTagChanges() []string {
	s.mu.Lock()
	queued := s.tagChanges
	s.tagChanges = nil
	s.mu.Unlock()
	sort.Strings(queued)
	for _, t := range queued {
		s.write(protocol.CmdItems, []string{t})
	}
	return queued
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
