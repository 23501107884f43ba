package hooks

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type Event string

const (
	OptChange       Event = "opt_change"
	TagOptChange    Event = "tag_opt_change"
	DefOptChange    Event = "def_opt_change"
	FeedOptChange   Event = "feed_opt_change"
	NewTag          Event = "new_tag"
	DelTag          Event = "del_tag"
	EvalTagsChanged Event = "eval_tags_changed"
	VarChange       Event = "var_change"

	NewTagCore     Event = "new_tagcore"
	DelTagCore     Event = "del_tagcore"
	ItemsAdded     Event = "items_added"
	ItemsRemoved   Event = "items_removed"
	Attributes     Event = "attributes"
	UpdateComplete Event = "update_complete"
	StoriesRemoved Event = "stories_removed"

	Hangup Event = "hangup"
	Exit   Event = "exit"
)

// Owner identifies a subscriber so all of its hooks can be dropped at once.
type Owner struct {
	id uuid.UUID
}

func NewOwner() Owner {
	return Owner{id: uuid.New()}
}

func (o Owner) String() string {
	return o.id.String()
}

func (o Owner) IsZero() bool {
	return o.id == uuid.Nil
}

type Handler func(payload any)

type subscription struct {
	owner   Owner
	seq     uint64
	handler Handler
}

// Bus is a synchronous publish-subscribe table keyed by event name.
// Handlers run on the publishing goroutine, outside the bus lock.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Event][]subscription
	byOwner map[Owner]map[Event]int
	seq     uint64
	log     *slog.Logger
}

func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:    make(map[Event][]subscription),
		byOwner: make(map[Owner]map[Event]int),
		log:     logger,
	}
}

func (b *Bus) On(ev Event, owner Owner, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.subs[ev] = append(b.subs[ev], subscription{owner: owner, seq: b.seq, handler: h})
	events := b.byOwner[owner]
	if events == nil {
		events = make(map[Event]int)
		b.byOwner[owner] = events
	}
	events[ev]++
}

// Unhook removes every handler owner registered for ev.
func (b *Bus) Unhook(ev Event, owner Owner) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unhookLocked(ev, owner)
	if events := b.byOwner[owner]; events != nil {
		delete(events, ev)
		if len(events) == 0 {
			delete(b.byOwner, owner)
		}
	}
}

func (b *Bus) UnhookAll(owner Owner) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ev := range b.byOwner[owner] {
		b.unhookLocked(ev, owner)
	}
	delete(b.byOwner, owner)
}

func (b *Bus) unhookLocked(ev Event, owner Owner) {
	subs := b.subs[ev]
	kept := subs[:0]
	for _, s := range subs {
		if s.owner != owner {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(subs); i++ {
		subs[i] = subscription{}
	}
	if len(kept) == 0 {
		delete(b.subs, ev)
		return
	}
	b.subs[ev] = kept
}

func (b *Bus) Count(ev Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[ev])
}

// Publish calls every handler for ev in registration order. A panicking
// handler is logged and skipped.
func (b *Bus) Publish(ev Event, payload any) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[ev]...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.call(ev, s, payload)
	}
}

func (b *Bus) call(ev Event, s subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("hook panic", "event", string(ev), "owner", s.owner.String(), "panic", fmt.Sprint(r))
		}
	}()
	s.handler(payload)
}
