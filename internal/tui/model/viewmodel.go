// Package model caches daemon state for the terminal client.
package model

import (
	"context"
	"sync"

	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/store"
	"github.com/matheus3301/inbox/internal/tui/client"
)

// threadPageSize is how many of the newest messages an open conversation shows.
const threadPageSize = 100

// Change tells the UI which parts must be redrawn after a push event.
type Change uint8

const (
	ChangeConversations Change = 1 << iota
	ChangeThread
)

// Has reports whether c includes flag.
func (c Change) Has(flag Change) bool {
	return c&flag != 0
}

// ViewModel caches state from the daemon API and applies push events to it.
type ViewModel struct {
	mu sync.RWMutex

	client        *client.Client
	health        *client.Health
	conversations []conversation.Summary
	messages      []store.Message
	activeID      string
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(c *client.Client) *ViewModel {
	return &ViewModel{client: c}
}

// LoadHealth fetches the daemon state. A daemon that answers while not serving still
// updates the cached health before the error is returned.
func (vm *ViewModel) LoadHealth(ctx context.Context) error {
	h, err := vm.client.Health(ctx)
	if h != nil {
		vm.mu.Lock()
		vm.health = h
		vm.mu.Unlock()
	}
	return err
}

// LoadConversations fetches the conversation list.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	convs, err := vm.client.Conversations(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversations = convs
	vm.mu.Unlock()
	return nil
}

// OpenConversation loads the newest page of a conversation and makes it active.
func (vm *ViewModel) OpenConversation(ctx context.Context, id string) error {
	msgs, err := vm.client.Messages(ctx, id, 1, threadPageSize)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.activeID = id
	vm.messages = msgs
	vm.mu.Unlock()
	return nil
}

// CloseConversation clears the active conversation and returns its id.
func (vm *ViewModel) CloseConversation() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	id := vm.activeID
	vm.activeID = ""
	vm.messages = nil
	return id
}

// Send posts text to the active conversation. The message shows up in the thread through
// the push stream.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	id := vm.ActiveID()
	if id == "" {
		return nil
	}
	_, err := vm.client.Send(ctx, id, vm.contactName(id), text)
	return err
}

// Search runs a message search.
func (vm *ViewModel) Search(ctx context.Context, query string) ([]store.SearchResult, error) {
	return vm.client.Search(ctx, query)
}

// Apply folds a push event into the cache and reports what changed.
func (vm *ViewModel) Apply(ev client.Event) Change {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	switch ev.Kind {
	case bus.KindConversationUpdated:
		return ChangeConversations
	case bus.KindNewMessage:
		if ev.Message == nil || ev.Message.ConversationID != vm.activeID {
			return 0
		}
		for _, m := range vm.messages {
			if m.MsgID == ev.Message.MsgID {
				return 0
			}
		}
		vm.messages = append(vm.messages, *ev.Message)
		return ChangeThread
	case bus.KindMessageStatus:
		// Unread counts depend on delivery status.
		change := ChangeConversations
		for i := range vm.messages {
			m := &vm.messages[i]
			if m.MsgID == ev.StatusID || m.MetaMsgID == ev.StatusID {
				m.Status = store.DeliveryStatus(ev.Status)
				change |= ChangeThread
				break
			}
		}
		return change
	}
	return 0
}

// ActiveID returns the open conversation, or "".
func (vm *ViewModel) ActiveID() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.activeID
}

// DisplayName returns the contact name of a conversation, falling back to its id.
func (vm *ViewModel) DisplayName(id string) string {
	if name := vm.contactName(id); name != "" {
		return name
	}
	return id
}

func (vm *ViewModel) contactName(id string) string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.conversations {
		if c.ConversationID == id {
			return c.DisplayName
		}
	}
	return ""
}

// Conversations returns a snapshot of the conversation list.
func (vm *ViewModel) Conversations() []conversation.Summary {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversations
}

// Messages returns a snapshot of the open thread, oldest first.
func (vm *ViewModel) Messages() []store.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	out := make([]store.Message, len(vm.messages))
	copy(out, vm.messages)
	return out
}

// Health returns the last known daemon health, or nil before the first probe.
func (vm *ViewModel) Health() *client.Health {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.health
}
