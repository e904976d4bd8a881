package portal

import "sync"

// Hub fans events out to every live connection of a client.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	send func(Event) error
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers send for clientID and returns the function that
// removes it.
func (h *Hub) Subscribe(clientID string, send func(Event) error) func() {
	sub := &subscriber{send: send}
	h.mu.Lock()
	if h.subs[clientID] == nil {
		h.subs[clientID] = make(map[*subscriber]struct{})
	}
	h.subs[clientID][sub] = struct{}{}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[clientID], sub)
		if len(h.subs[clientID]) == 0 {
			delete(h.subs, clientID)
		}
	}
}

// Publish sends evt to the client's subscribers and reports how many
// received it. Failed sends are skipped.
func (h *Hub) Publish(clientID string, evt Event) int {
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs[clientID]))
	for sub := range h.subs[clientID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		if err := sub.send(evt); err == nil {
			delivered++
		}
	}
	return delivered
}

// Connections returns the number of live connections for clientID.
func (h *Hub) Connections(clientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[clientID])
}
