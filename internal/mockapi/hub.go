package mockapi

import (
	"sync"

	"github.com/sapliy/pm-portal/internal/notification"
)

// hub fans push events out to every open /events subscription. Slow
// subscribers drop events rather than block publishers.
type hub struct {
	mu   sync.Mutex
	subs map[chan notification.Event]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan notification.Event]struct{})}
}

func (h *hub) subscribe() chan notification.Event {
	ch := make(chan notification.Event, 32)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan notification.Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func (h *hub) publish(ev notification.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
