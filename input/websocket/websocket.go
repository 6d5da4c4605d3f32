// Package websocket accepts control events from browser-based surfaces.
// The source runs a small HTTP server; clients connect to the configured
// path and send one JSON object per event:
//
//	{"control": 16, "value": 0.5}
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/paramsync/errors"
	"github.com/c360/paramsync/input"
	"github.com/c360/paramsync/metric"
)

// event is the wire format clients send.
type event struct {
	Control int     `json:"control"`
	Value   float64 `json:"value"`
}

// Metrics holds Prometheus metrics for the WebSocket source.
type Metrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	eventsReceived    prometheus.Counter
	decodeErrors      prometheus.Counter
}

func newMetrics(registry *metric.Registry, port int) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "connections_active",
			Help:      "Number of active WebSocket connections",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "connections_total",
			Help:      "Total WebSocket connections accepted",
		}),
		eventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "events_received_total",
			Help:      "Control events received over WebSocket",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "decode_errors_total",
			Help:      "Messages that failed to decode as control events",
		}),
	}

	component := fmt.Sprintf("websocket_input_%d", port)
	if err := registry.RegisterGauge(component, "connections_active", m.connectionsActive); err != nil {
		return nil
	}
	if err := registry.RegisterCounter(component, "connections_total", m.connectionsTotal); err != nil {
		return nil
	}
	if err := registry.RegisterCounter(component, "events_received", m.eventsReceived); err != nil {
		return nil
	}
	if err := registry.RegisterCounter(component, "decode_errors", m.decodeErrors); err != nil {
		return nil
	}
	return m
}

// Config holds WebSocket source settings.
type Config struct {
	Bind string `yaml:"bind" json:"bind"`
	Port int    `yaml:"port" json:"port"`
	Path string `yaml:"path" json:"path"`
}

// Validate checks config invariants.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: port %d outside 0-65535", errors.ErrInvalidConfig, c.Port),
			"websocket-input", "Validate", "port check")
	}
	return nil
}

// DefaultConfig returns the default WebSocket source settings.
func DefaultConfig() Config {
	return Config{Bind: "0.0.0.0", Port: 9801, Path: "/events"}
}

// Deps holds construction dependencies for the WebSocket source.
type Deps struct {
	Config          Config
	Sink            input.Sink // required
	MetricsRegistry *metric.Registry
	Logger          *slog.Logger
}

// Source serves WebSocket connections and feeds decoded events to a sink.
type Source struct {
	config   Config
	sink     input.Sink
	logger   *slog.Logger
	upgrader websocket.Upgrader
	metrics  *Metrics

	server   *http.Server
	listener net.Listener
	clients  map[string]*websocket.Conn
	running  atomic.Bool
	wg       sync.WaitGroup
	mu       sync.RWMutex
}

// New creates a WebSocket source. Returns nil if deps.Sink is nil.
func New(deps Deps) *Source {
	if deps.Sink == nil {
		return nil
	}
	cfg := deps.Config
	if cfg.Path == "" {
		cfg.Path = "/events"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		config:  cfg,
		sink:    deps.Sink,
		logger:  logger.With("component", "websocket-input"),
		metrics: newMetrics(deps.MetricsRegistry, cfg.Port),
		clients: make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Name implements input.Source.
func (s *Source) Name() string {
	return fmt.Sprintf("websocket:%d", s.config.Port)
}

// Address returns the server's listen address, or "" before Start. With
// Config.Port 0 the kernel picks an ephemeral port; Address reports it.
func (s *Source) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the listener and serves connections. Idempotent.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil
	}
	if err := s.config.Validate(); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.config.Bind, s.config.Port))
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrConnectionFailed, err),
			"websocket-input", "Start", "bind listener")
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, func(w http.ResponseWriter, r *http.Request) {
		s.handleUpgrade(ctx, w, r)
	})
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	s.running.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("WebSocket server failed", "error", err)
		}
	}()

	s.logger.Info("WebSocket source listening", "addr", listener.Addr(), "path", s.config.Path)
	return nil
}

// Stop closes the server and every client connection.
func (s *Source) Stop(timeout time.Duration) error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.mu.Lock()
	server := s.server
	for id, conn := range s.clients {
		conn.Close()
		delete(s.clients, id)
	}
	s.mu.Unlock()

	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			return errors.WrapTransient(err, "websocket-input", "Stop", "server shutdown")
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(
			fmt.Errorf("client handlers did not exit within %v", timeout),
			"websocket-input", "Stop", "await handlers")
	}
}

func (s *Source) handleUpgrade(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	clientID := uuid.NewString()
	s.mu.Lock()
	s.clients[clientID] = conn
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.connectionsActive.Inc()
		s.metrics.connectionsTotal.Inc()
	}
	s.logger.Debug("Client connected", "client_id", clientID, "remote", r.RemoteAddr)

	s.wg.Add(1)
	go s.readLoop(ctx, clientID, conn)
}

func (s *Source) readLoop(ctx context.Context, clientID string, conn *websocket.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.clients, clientID)
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.connectionsActive.Dec()
		}
		s.logger.Debug("Client disconnected", "client_id", clientID)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("Client read error", "client_id", clientID, "error", err)
			}
			return
		}

		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			if s.metrics != nil {
				s.metrics.decodeErrors.Inc()
			}
			s.logger.Warn("Undecodable event", "client_id", clientID, "error", err)
			continue
		}
		if ev.Control < 0 || ev.Control > 255 {
			if s.metrics != nil {
				s.metrics.decodeErrors.Inc()
			}
			continue
		}

		s.sink.Ingest(uint8(ev.Control), ev.Value)
		if s.metrics != nil {
			s.metrics.eventsReceived.Inc()
		}
	}
}
