package store

import "sync"

// TagCore is the committed id list of one daemon tag, in the daemon's
// delivery order. Cores are never destroyed; a deleted tag keeps an empty
// core.
type TagCore struct {
	mu       sync.RWMutex
	tag      string
	ids      []string
	index    map[string]int
	changed  bool
	wasReset bool
}

func newTagCore(tag string) *TagCore {
	return &TagCore{tag: tag, index: map[string]int{}}
}

func (tc *TagCore) Tag() string { return tc.tag }

func (tc *TagCore) IDs() []string {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return append([]string(nil), tc.ids...)
}

func (tc *TagCore) Len() int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return len(tc.ids)
}

func (tc *TagCore) Contains(id string) bool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	_, ok := tc.index[id]
	return ok
}

// Changed reports whether the list moved since the last AckChanges.
func (tc *TagCore) Changed() bool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.changed
}

func (tc *TagCore) MarkChanged() {
	tc.mu.Lock()
	tc.changed = true
	tc.mu.Unlock()
}

// AckChanges clears the changed and was-reset flags, returning whether the
// core had been reset since the last acknowledgement.
func (tc *TagCore) AckChanges() (wasReset bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	wasReset = tc.wasReset
	tc.changed = false
	tc.wasReset = false
	return wasReset
}

// replace installs ids and reports which were added and removed.
func (tc *TagCore) replace(ids []string) (added, removed []string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	next := make(map[string]int, len(ids))
	for i, id := range ids {
		next[id] = i
		if _, ok := tc.index[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range tc.ids {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}
	moved := len(added) > 0 || len(removed) > 0 || !sameOrder(tc.ids, ids)
	tc.ids = append([]string(nil), ids...)
	tc.index = next
	if moved {
		tc.changed = true
	}
	return added, removed
}

func (tc *TagCore) reset() []string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	old := tc.ids
	tc.ids = nil
	tc.index = map[string]int{}
	tc.changed = true
	tc.wasReset = true
	return old
}

func sameOrder(a, b []string) bool {
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
