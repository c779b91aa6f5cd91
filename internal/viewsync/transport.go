package viewsync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"nhooyr.io/websocket"

	"github.com/agentworkforce/pagesync/internal/pagesync"
	"github.com/agentworkforce/pagesync/internal/protocol"
)

const (
	defaultQueueSize   = 32
	defaultDialTimeout = 10 * time.Second
	wsWriteTimeout     = 5 * time.Second
	wsReadLimit        = 4 << 10
)

type WSTransportOptions struct {
	URL string
	// Dispatch hands inbound handlers to the client loop. Handlers run on the
	// reader goroutine when it is nil.
	Dispatch  func(task func()) bool
	QueueSize int
	// ReconnectMax bounds how long Run keeps retrying an unreachable relay;
	// zero retries until the context ends.
	ReconnectMax time.Duration
	DialTimeout  time.Duration
	OnState      func(connected bool)
	Logger       Logger
}

// WSTransport is a pagesync.Transport backed by a relay websocket. Emit never
// blocks: frames go to a bounded queue that only exists while connected.
type WSTransport struct {
	url          string
	dispatch     func(task func()) bool
	queueSize    int
	reconnectMax time.Duration
	dialTimeout  time.Duration
	onState      func(bool)
	logger       Logger

	mu       sync.Mutex
	outbound chan []byte
	handlers []*wsHandler
}

type wsHandler struct {
	fn func(protocol.SyncEvent)
}

func NewWSTransport(opts WSTransportOptions) *WSTransport {
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	return &WSTransport{
		url:          strings.TrimSpace(opts.URL),
		dispatch:     opts.Dispatch,
		queueSize:    queueSize,
		reconnectMax: opts.ReconnectMax,
		dialTimeout:  dialTimeout,
		onState:      opts.OnState,
		logger:       opts.Logger,
	}
}

func (t *WSTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outbound != nil
}

func (t *WSTransport) Emit(ev protocol.SyncEvent) error {
	frame, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outbound == nil {
		return pagesync.ErrTransportUnavailable
	}
	select {
	case t.outbound <- frame:
		return nil
	default:
		return fmt.Errorf("%w: outbound queue full", pagesync.ErrTransportUnavailable)
	}
}

func (t *WSTransport) Subscribe(handler func(protocol.SyncEvent)) func() {
	h := &wsHandler{fn: handler}
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

// Run connects to the relay and reconnects with exponential backoff until ctx
// is done or ReconnectMax elapses without a connection.
func (t *WSTransport) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = t.reconnectMax

	for {
		var conn *websocket.Conn
		err := backoff.RetryNotify(func() error {
			dialCtx, cancel := context.WithTimeout(ctx, t.dialTimeout)
			defer cancel()
			c, _, err := websocket.Dial(dialCtx, t.url, nil)
			if err != nil {
				return err
			}
			conn = c
			return nil
		}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
			t.logf("relay %s unreachable: %v; retrying in %s", t.url, err, wait.Round(time.Millisecond))
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connect %s: %w", t.url, err)
		}

		t.logf("connected to relay %s", t.url)
		err = t.session(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		t.logf("disconnected from relay %s: %v", t.url, err)
	}
}

func (t *WSTransport) session(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(wsReadLimit)
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outbound := make(chan []byte, t.queueSize)
	t.setOutbound(outbound)
	defer t.setOutbound(nil)

	writeErr := make(chan error, 1)
	go func() {
		for {
			select {
			case <-sessionCtx.Done():
				return
			case frame := <-outbound:
				writeCtx, writeCancel := context.WithTimeout(sessionCtx, wsWriteTimeout)
				err := conn.Write(writeCtx, websocket.MessageText, frame)
				writeCancel()
				if err != nil {
					writeErr <- err
					cancel()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.Read(sessionCtx)
		if err != nil {
			cancel()
			_ = conn.Close(websocket.StatusNormalClosure, "")
			select {
			case werr := <-writeErr:
				return werr
			default:
				return err
			}
		}
		ev, err := protocol.Decode(data)
		if err != nil {
			t.logf("ignoring frame from relay: %v", err)
			continue
		}
		t.deliver(ev)
	}
}

func (t *WSTransport) setOutbound(ch chan []byte) {
	t.mu.Lock()
	t.outbound = ch
	t.mu.Unlock()
	if t.onState != nil {
		t.onState(ch != nil)
	}
}

func (t *WSTransport) deliver(ev protocol.SyncEvent) {
	t.mu.Lock()
	handlers := append([]*wsHandler(nil), t.handlers...)
	t.mu.Unlock()
	run := func() {
		for _, h := range handlers {
			h.fn(ev)
		}
	}
	if t.dispatch == nil {
		run()
		return
	}
	if !t.dispatch(run) {
		t.logf("client loop stopped; dropped %s", ev)
	}
}

func (t *WSTransport) logf(format string, args ...any) {
	if t.logger == nil {
		return
	}
	t.logger.Printf(format, args...)
}
