package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"nhooyr.io/websocket"

	"github.com/agentworkforce/pagesync/internal/protocol"
)

const tracerName = "github.com/agentworkforce/pagesync/internal/relay"

const (
	sourceLocal     = "local"
	sourceBackplane = "backplane"
)

type ServerConfig struct {
	// EchoSender also delivers a frame back to the client that sent it.
	EchoSender      bool
	RateLimitMax    int
	RateLimitWindow time.Duration
	MaxMessageBytes int64
	SendBuffer      int
	// OriginPatterns restricts browser origins; empty accepts any origin.
	OriginPatterns []string
	Backplane      Backplane
	Registry       *prometheus.Registry
	Logger         Logger
}

// Server relays page-flip and reset-page frames between every client
// connected to /ws.
type Server struct {
	cfg         ServerConfig
	router      chi.Router
	hub         *Hub
	metrics     *metrics
	registry    *prometheus.Registry
	rateLimiter *rateLimiter
	tracer      trace.Tracer
	instanceID  string

	statusMu  sync.Mutex
	relayed   int64
	lastEvent string
	lastAt    time.Time
}

type Status struct {
	Instance    string    `json:"instance"`
	Clients     int       `json:"clients"`
	Relayed     int64     `json:"relayed"`
	LastEvent   string    `json:"lastEvent,omitempty"`
	LastEventAt time.Time `json:"lastEventAt,omitempty"`
	EchoSender  bool      `json:"echoSender"`
	Backplane   bool      `json:"backplane"`
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.RateLimitMax < 0 {
		cfg.RateLimitMax = 0
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Second
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 1 << 10
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	s := &Server{
		cfg:         cfg,
		hub:         newHub(cfg.SendBuffer),
		metrics:     newMetrics(registry),
		registry:    registry,
		rateLimiter: newRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		tracer:      otel.Tracer(tracerName),
		instanceID:  uuid.NewString(),
	}
	s.hub.onSlow = func(c *client) {
		s.metrics.droppedTotal.WithLabelValues(dropSlowClient).Inc()
		s.logf("disconnecting slow client %s", c.id)
		c.close(websocket.StatusPolicyViolation, "client too slow")
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ws", s.handleWebsocket)
	r.Get("/v1/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", getCorrelationID(r))
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) InstanceID() string {
	return s.instanceID
}

// Run consumes the backplane until ctx is done. Without a backplane it only
// waits for ctx.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Backplane == nil {
		<-ctx.Done()
		return nil
	}
	err := s.cfg.Backplane.Subscribe(ctx, func(msg BackplaneMessage) {
		s.handleBackplane(ctx, msg)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close disconnects every client.
func (s *Server) Close() {
	s.hub.closeAll(websocket.StatusGoingAway, "relay shutting down")
}

func (s *Server) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return Status{
		Instance:    s.instanceID,
		Clients:     s.hub.count(),
		Relayed:     s.relayed,
		LastEvent:   s.lastEvent,
		LastEventAt: s.lastAt,
		EchoSender:  s.cfg.EchoSender,
		Backplane:   s.cfg.Backplane != nil,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     s.cfg.OriginPatterns,
		InsecureSkipVerify: len(s.cfg.OriginPatterns) == 0,
	})
	if err != nil {
		s.logf("websocket accept failed: %v", err)
		return
	}
	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := s.hub.register(conn)
	s.metrics.clients.Inc()
	s.logf("client %s connected (%d total)", c.id, s.hub.count())
	defer func() {
		if s.hub.unregister(c) {
			s.metrics.clients.Dec()
		}
		if s.rateLimiter != nil {
			s.rateLimiter.forget(c.id)
		}
		c.close(websocket.StatusNormalClosure, "")
		s.logf("client %s disconnected (%d total)", c.id, s.hub.count())
	}()

	go c.writeLoop(ctx, func(c *client, err error) {
		s.logf("write to client %s failed: %v", c.id, err)
		c.close(websocket.StatusInternalError, "write failed")
		cancel()
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				s.logf("read from client %s failed: %v", c.id, err)
			}
			return
		}
		s.handleFrame(ctx, c.id, data)
	}
}

func (s *Server) handleFrame(ctx context.Context, sender string, data []byte) {
	ev, err := protocol.Decode(data)
	if err != nil {
		s.metrics.droppedTotal.WithLabelValues(dropInvalidFrame).Inc()
		s.logf("dropping frame from %s: %v", sender, err)
		return
	}
	if s.rateLimiter != nil && !s.rateLimiter.allow(sender, time.Now().UTC()) {
		s.metrics.droppedTotal.WithLabelValues(dropRateLimited).Inc()
		return
	}
	frame, err := protocol.Encode(ev)
	if err != nil {
		s.metrics.droppedTotal.WithLabelValues(dropInvalidFrame).Inc()
		return
	}
	s.relay(ctx, sender, ev, frame, sourceLocal)
}

func (s *Server) handleBackplane(ctx context.Context, msg BackplaneMessage) {
	if msg.Origin == s.instanceID {
		return
	}
	ev, err := protocol.Decode(msg.Frame)
	if err != nil {
		s.metrics.droppedTotal.WithLabelValues(dropInvalidFrame).Inc()
		s.logf("dropping backplane frame from %s: %v", msg.Origin, err)
		return
	}
	frame, err := protocol.Encode(ev)
	if err != nil {
		return
	}
	s.relay(ctx, msg.Sender, ev, frame, sourceBackplane)
}

func (s *Server) relay(ctx context.Context, sender string, ev protocol.SyncEvent, frame []byte, source string) {
	ctx, span := s.tracer.Start(ctx, "pagesync.relay", trace.WithAttributes(
		attribute.String("pagesync.event", ev.Kind.String()),
		attribute.Int("pagesync.page", ev.Page),
		attribute.String("pagesync.sender", sender),
		attribute.String("pagesync.source", source),
	))
	defer span.End()

	delivered := s.hub.broadcast(sender, frame, s.cfg.EchoSender)
	span.SetAttributes(attribute.Int("pagesync.delivered", delivered))
	s.metrics.eventsTotal.WithLabelValues(ev.Kind.String(), source).Inc()
	s.metrics.deliveries.Add(float64(delivered))

	s.statusMu.Lock()
	s.relayed++
	s.lastEvent = ev.String()
	s.lastAt = time.Now().UTC()
	s.statusMu.Unlock()

	if source != sourceLocal || s.cfg.Backplane == nil {
		return
	}
	err := s.cfg.Backplane.Publish(ctx, BackplaneMessage{
		Origin: s.instanceID,
		Sender: sender,
		Frame:  json.RawMessage(frame),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "backplane publish failed")
		s.metrics.droppedTotal.WithLabelValues(dropBackplane).Inc()
		s.logf("backplane publish failed: %v", err)
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.cfg.Logger == nil {
		return
	}
	s.cfg.Logger.Printf(format, args...)
}

func getCorrelationID(r *http.Request) string {
	return r.Header.Get("X-Correlation-Id")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}
