package mirror

import (
	"errors"
	"fmt"

	"github.com/glabrego/canto-ng/internal/hooks"
	"github.com/glabrego/canto-ng/internal/protocol"
)

var (
	ErrDuplicateFeed = errors.New("feed already subscribed")
	ErrUnknownFeed   = errors.New("no such feed")
)

// Feed is one subscription from the daemon's feeds section. Keys the
// front-end does not use are kept in Extra so they survive a rewrite.
type Feed struct {
	URL   string
	Name  string
	Extra map[string]any
}

func (f Feed) value() map[string]any {
	out := make(map[string]any, len(f.Extra)+2)
	for k, v := range f.Extra {
		out[k] = v
	}
	out["url"] = f.URL
	if f.Name != "" {
		out["name"] = f.Name
	}
	return out
}

func feedsFrom(n Node) []Feed {
	raw, _ := n.Raw.([]any)
	if n.Kind == KindList {
		// A bare list of urls.
		for _, u := range n.L {
			raw = append(raw, map[string]any{"url": u})
		}
	}
	out := make([]Feed, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		f := Feed{Extra: map[string]any{}}
		for k, v := range m {
			switch k {
			case "url":
				f.URL, _ = v.(string)
			case "name":
				f.Name, _ = v.(string)
			default:
				f.Extra[k] = v
			}
		}
		if f.URL != "" {
			out = append(out, f)
		}
	}
	return out
}

// Feeds returns the daemon's subscriptions in configured order.
func (m *Mirror) Feeds() []Feed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return feedsFrom(m.feeds)
}

// AddFeed subscribes to url. The name defaults to whatever the daemon
// picks from the feed's title.
func (m *Mirror) AddFeed(url, name string) error {
	if url == "" {
		return fmt.Errorf("add feed: %w: empty url", errBadValue)
	}
	return m.editFeeds(func(feeds []Feed) ([]Feed, error) {
		for _, f := range feeds {
			if f.URL == url {
				return nil, fmt.Errorf("add %s: %w", url, ErrDuplicateFeed)
			}
		}
		return append(feeds, Feed{URL: url, Name: name}), nil
	})
}

// DelFeed drops every subscription whose url or name equals ref.
func (m *Mirror) DelFeed(ref string) error {
	return m.editFeeds(func(feeds []Feed) ([]Feed, error) {
		kept := feeds[:0]
		for _, f := range feeds {
			if f.URL != ref && f.Name != ref {
				kept = append(kept, f)
			}
		}
		if len(kept) == len(feeds) {
			return nil, fmt.Errorf("delete %s: %w", ref, ErrUnknownFeed)
		}
		return kept, nil
	})
}

func (m *Mirror) editFeeds(edit func([]Feed) ([]Feed, error)) error {
	b := &batch{}
	m.mu.Lock()
	next, err := edit(feedsFrom(m.feeds))
	if err != nil {
		m.mu.Unlock()
		return err
	}
	raw := make([]any, 0, len(next))
	for _, f := range next {
		raw = append(raw, f.value())
	}
	m.feeds = Opaque(raw)
	b.send(protocol.CmdSetConfigs, map[string]any{"feeds": raw})
	b.publish(hooks.FeedOptChange, raw)
	m.mu.Unlock()
	m.flush(b)
	return nil
}
