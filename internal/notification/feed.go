package notification

import (
	"fmt"
	"sync"
)

// Filter selects which notifications the dashboard shows.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterUnread Filter = "unread"
	FilterRead   Filter = "read"
)

// ParseFilter accepts "all", "unread" or "read".
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterUnread, FilterRead:
		return Filter(s), nil
	default:
		return "", fmt.Errorf("invalid filter %q (want all, unread or read)", s)
	}
}

func (f Filter) Match(n *Notification) bool {
	switch f {
	case FilterUnread:
		return n.Status == StatusUnread
	case FilterRead:
		return n.Status == StatusRead
	default:
		return true
	}
}

// Counts are the tab badges of the dashboard.
type Counts struct {
	All    int
	Unread int
	Read   int
}

// Feed is the client-side notification list, newest first.
type Feed struct {
	mu    sync.RWMutex
	items []*Notification
}

func NewFeed() *Feed {
	return &Feed{}
}

// Replace swaps the whole list, as a full fetch or initial snapshot does.
func (f *Feed) Replace(items []*Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append([]*Notification(nil), items...)
}

// Prepend adds a pushed notification at the top.
func (f *Feed) Prepend(n *Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append([]*Notification{n}, f.items...)
}

// Update replaces the entry with the same id. It reports whether one was found.
func (f *Feed) Update(n *Notification) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, item := range f.items {
		if item.ID == n.ID {
			f.items[i] = n
			return true
		}
	}
	return false
}

func (f *Feed) Get(id int64) (*Notification, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, item := range f.items {
		if item.ID == id {
			return item, true
		}
	}
	return nil, false
}

// Apply folds a push event into the feed. It reports whether the list changed.
func (f *Feed) Apply(ev Event) bool {
	switch e := ev.(type) {
	case InitialSnapshot:
		f.Replace(e.Notifications)
		return true
	case NewNotification:
		f.Prepend(e.Notification)
		return true
	default:
		return false
	}
}

// Items returns a copy of the list.
func (f *Feed) Items() []*Notification {
	return f.Filter(FilterAll)
}

func (f *Feed) Filter(filter Filter) []*Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*Notification, 0, len(f.items))
	for _, item := range f.items {
		if filter.Match(item) {
			out = append(out, item)
		}
	}
	return out
}

func (f *Feed) Counts() Counts {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c := Counts{All: len(f.items)}
	for _, item := range f.items {
		switch item.Status {
		case StatusUnread:
			c.Unread++
		case StatusRead:
			c.Read++
		}
	}
	return c
}
