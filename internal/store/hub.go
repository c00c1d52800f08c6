package store

import (
	"sync"
)

// Hub fans snapshots out to subscribed listeners. Store adapters embed it and
// call Broadcast after each write.
type Hub struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe stops deliveries. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Add registers fn and returns its subscription.
func (h *Hub) Add(fn Listener) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listeners == nil {
		h.listeners = make(map[int]Listener)
	}
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	return &Subscription{cancel: func() { h.remove(id) }}
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, id)
}

// Len returns the number of active listeners.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Broadcast delivers snap to every listener. Each listener gets its own copy,
// and listeners are called outside the hub lock so they may call back into
// the store.
func (h *Hub) Broadcast(snap Snapshot) {
	h.mu.Lock()
	fns := make([]Listener, 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(snap.Clone())
	}
}
