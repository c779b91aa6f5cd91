package relay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

const writeTimeout = 5 * time.Second

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		go func() {
			_ = c.conn.Close(code, reason)
		}()
	})
}

func (c *client) writeLoop(ctx context.Context, onError func(*client, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				onError(c, err)
				return
			}
		}
	}
}

// Hub tracks connected clients and fans frames out to them. A client whose
// send buffer is full is disconnected rather than allowed to stall the rest.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*client
	sendBuffer int
	onSlow     func(*client)
}

func newHub(sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		clients:    map[string]*client{},
		sendBuffer: sendBuffer,
	}
}

func (h *Hub) register(conn *websocket.Conn) *client {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()
	return ok
}

func (h *Hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast queues frame for every client except sender unless echoSender is
// set, and reports how many clients it reached.
func (h *Hub) broadcast(sender string, frame []byte, echoSender bool) int {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for id, c := range h.clients {
		if id == sender && !echoSender {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		select {
		case c.send <- frame:
			delivered++
		default:
			if h.onSlow != nil {
				h.onSlow(c)
			}
		}
	}
	return delivered
}

func (h *Hub) closeAll(code websocket.StatusCode, reason string) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.close(code, reason)
	}
}
