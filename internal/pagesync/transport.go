package pagesync

import (
	"context"
	"sync"

	"github.com/agentworkforce/pagesync/internal/protocol"
)

// Transport is the broadcast channel shared by every client of a document.
// Emit is fire-and-forget: it must not block on delivery and reports
// ErrTransportUnavailable while disconnected.
type Transport interface {
	Emit(ev protocol.SyncEvent) error
	Subscribe(handler func(protocol.SyncEvent)) (unsubscribe func())
}

// MemoryHub is an in-process broadcast channel. Delivery is synchronous and
// skips the sender unless EchoSender is set.
type MemoryHub struct {
	EchoSender bool

	mu      sync.Mutex
	members []*MemoryTransport
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{}
}

// Join returns a disconnected transport attached to the hub.
func (h *MemoryHub) Join() *MemoryTransport {
	t := &MemoryTransport{hub: h}
	h.mu.Lock()
	h.members = append(h.members, t)
	h.mu.Unlock()
	return t
}

func (h *MemoryHub) broadcast(from *MemoryTransport, ev protocol.SyncEvent) {
	h.mu.Lock()
	members := append([]*MemoryTransport(nil), h.members...)
	h.mu.Unlock()
	for _, m := range members {
		if m == from && !h.EchoSender {
			continue
		}
		m.deliver(ev)
	}
}

type MemoryTransport struct {
	hub *MemoryHub

	mu        sync.Mutex
	connected bool
	handlers  []*memoryHandler
	sent      []protocol.SyncEvent
}

type memoryHandler struct {
	fn func(protocol.SyncEvent)
}

func (t *MemoryTransport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

func (t *MemoryTransport) Disconnect() error {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	return nil
}

func (t *MemoryTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *MemoryTransport) Emit(ev protocol.SyncEvent) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrTransportUnavailable
	}
	t.sent = append(t.sent, ev)
	t.mu.Unlock()
	t.hub.broadcast(t, ev)
	return nil
}

// Sent returns every event this transport emitted successfully, in order.
func (t *MemoryTransport) Sent() []protocol.SyncEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]protocol.SyncEvent(nil), t.sent...)
}

func (t *MemoryTransport) Subscribe(handler func(protocol.SyncEvent)) func() {
	h := &memoryHandler{fn: handler}
	t.mu.Lock()
	t.handlers = append(t.handlers, h)
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, existing := range t.handlers {
			if existing == h {
				t.handlers = append(t.handlers[:i], t.handlers[i+1:]...)
				return
			}
		}
	}
}

func (t *MemoryTransport) deliver(ev protocol.SyncEvent) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return
	}
	handlers := append([]*memoryHandler(nil), t.handlers...)
	t.mu.Unlock()
	for _, h := range handlers {
		h.fn(ev)
	}
}
