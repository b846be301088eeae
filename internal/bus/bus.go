package bus

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Bus is an in-process fan-out registry. Listeners join conversation groups and receive
// events scoped to those conversations; broadcast events reach every listener.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string]*Listener
	groups    map[string]map[string]*Listener
}

// Listener is one subscribed real-time client.
type Listener struct {
	ID string

	bus    *Bus
	ch     chan Event
	groups map[string]struct{} // guarded by bus.mu
	closed bool                // guarded by bus.mu
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		listeners: make(map[string]*Listener),
		groups:    make(map[string]map[string]*Listener),
	}
}

// Subscribe registers a listener with a buffered channel of bufSize.
// The listener receives broadcast events immediately and scoped events after Join.
func (b *Bus) Subscribe(bufSize int) *Listener {
	l := &Listener{
		ID:     uuid.NewString(),
		bus:    b,
		ch:     make(chan Event, bufSize),
		groups: make(map[string]struct{}),
	}
	b.mu.Lock()
	b.listeners[l.ID] = l
	b.mu.Unlock()
	return l
}

// Publish delivers evt to matching listeners without blocking.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if evt.Broadcast() {
		for _, l := range b.listeners {
			deliver(l, evt)
		}
		return
	}
	for _, l := range b.groups[evt.Conversation] {
		deliver(l, evt)
	}
}

func deliver(l *Listener, evt Event) {
	select {
	case l.ch <- evt:
	default:
		// Drop event if listener is full (non-blocking).
	}
}

// ListenerCount returns the number of registered listeners.
func (b *Bus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// GroupSize returns the number of listeners joined to a conversation.
func (b *Bus) GroupSize(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups[conversationID])
}

// Events returns the channel the listener receives on. It is closed by Close.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Join adds the listener to a conversation group. Joining twice is a no-op.
func (l *Listener) Join(conversationID string) {
	if conversationID == "" {
		return
	}
	b := l.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if l.closed {
		return
	}
	g, ok := b.groups[conversationID]
	if !ok {
		g = make(map[string]*Listener)
		b.groups[conversationID] = g
	}
	g[l.ID] = l
	l.groups[conversationID] = struct{}{}
}

// Leave removes the listener from a conversation group.
func (l *Listener) Leave(conversationID string) {
	b := l.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaveLocked(l, conversationID)
}

func (b *Bus) leaveLocked(l *Listener, conversationID string) {
	if g, ok := b.groups[conversationID]; ok {
		delete(g, l.ID)
		if len(g) == 0 {
			delete(b.groups, conversationID)
		}
	}
	delete(l.groups, conversationID)
}

// Groups returns the conversations the listener has joined, sorted.
func (l *Listener) Groups() []string {
	l.bus.mu.RLock()
	defer l.bus.mu.RUnlock()
	out := make([]string, 0, len(l.groups))
	for g := range l.groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Close unregisters the listener and closes its channel. Safe to call more than once.
func (l *Listener) Close() {
	b := l.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if l.closed {
		return
	}
	for g := range l.groups {
		b.leaveLocked(l, g)
	}
	delete(b.listeners, l.ID)
	l.closed = true
	close(l.ch)
}
