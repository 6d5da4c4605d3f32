// Package udp receives raw control-change datagrams. Each message is the
// standard three-byte control-change frame: status byte with high nibble
// 0xB, then a 7-bit control number and a 7-bit value. A datagram may
// carry several frames back to back; malformed frames are counted and
// skipped.
package udp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/c360/paramsync/errors"
	"github.com/c360/paramsync/input"
	"github.com/c360/paramsync/metric"
	"github.com/c360/paramsync/pkg/retry"
)

// frameSize is the length of one control-change message on the wire.
const frameSize = 3

// statusControlChange is the high nibble of a control-change status byte.
const statusControlChange = 0xB0

// Metrics holds Prometheus metrics for the UDP source.
type Metrics struct {
	packetsReceived prometheus.Counter
	eventsParsed    prometheus.Counter
	framesSkipped   prometheus.Counter
	socketErrors    prometheus.Counter
	lastActivity    prometheus.Gauge
}

func newMetrics(registry *metric.Registry, port int) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp",
			Name:      "packets_received_total",
			Help:      "Total UDP packets received",
		}),
		eventsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp",
			Name:      "events_parsed_total",
			Help:      "Control-change frames parsed into events",
		}),
		framesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp",
			Name:      "frames_skipped_total",
			Help:      "Frames dropped as malformed or non control-change",
		}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp",
			Name:      "socket_errors_total",
			Help:      "Read errors on the UDP socket",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of the last received packet",
		}),
	}

	component := fmt.Sprintf("udp_input_%d", port)
	counters := []struct {
		name    string
		counter prometheus.Counter
	}{
		{"packets_received", m.packetsReceived},
		{"events_parsed", m.eventsParsed},
		{"frames_skipped", m.framesSkipped},
		{"socket_errors", m.socketErrors},
	}
	for _, c := range counters {
		if err := registry.RegisterCounter(component, c.name, c.counter); err != nil {
			return nil
		}
	}
	if err := registry.RegisterGauge(component, "last_activity", m.lastActivity); err != nil {
		return nil
	}
	return m
}

// Config holds UDP source settings.
type Config struct {
	Bind string `yaml:"bind" json:"bind"`
	Port int    `yaml:"port" json:"port"`
}

// Validate checks config invariants.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: port %d outside 0-65535", errors.ErrInvalidConfig, c.Port),
			"udp-input", "Validate", "port check")
	}
	return nil
}

// DefaultConfig returns the default UDP source settings.
func DefaultConfig() Config {
	return Config{Bind: "0.0.0.0", Port: 9800}
}

// Deps holds construction dependencies for the UDP source.
type Deps struct {
	Config          Config
	Sink            input.Sink // required
	MetricsRegistry *metric.Registry
	Logger          *slog.Logger
}

// Source listens for control-change datagrams and feeds them to a sink.
type Source struct {
	config Config
	sink   input.Sink
	logger *slog.Logger

	conn       *net.UDPConn
	running    atomic.Bool
	shutdown   chan struct{}
	done       chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
	retryConf  retry.Config
	metrics    *Metrics
	logLimiter *rate.Limiter

	packetsReceived atomic.Int64
	eventsParsed    atomic.Int64
}

// New creates a UDP source. Returns nil if deps.Sink is nil.
func New(deps Deps) *Source {
	if deps.Sink == nil {
		return nil
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		config:     deps.Config,
		sink:       deps.Sink,
		logger:     logger.With("component", "udp-input"),
		retryConf:  retry.DefaultConfig(),
		metrics:    newMetrics(deps.MetricsRegistry, deps.Config.Port),
		logLimiter: rate.NewLimiter(rate.Limit(2), 1),
	}
}

// Name implements input.Source.
func (u *Source) Name() string {
	return fmt.Sprintf("udp:%d", u.config.Port)
}

// Addr returns the bound socket address, or nil before Start. With
// Config.Port 0 the kernel picks an ephemeral port; Addr reports it.
func (u *Source) Addr() *net.UDPAddr {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.conn == nil {
		return nil
	}
	addr, _ := u.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// Start binds the socket and spawns the read loop. Idempotent.
func (u *Source) Start(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.running.Load() {
		return nil
	}
	if err := u.config.Validate(); err != nil {
		return err
	}

	u.shutdown = make(chan struct{})
	u.done = make(chan struct{})

	if err := retry.Do(ctx, u.retryConf, u.bindSocket); err != nil {
		return errors.WrapTransient(err, "udp-input", "Start", "socket binding")
	}
	u.running.Store(true)

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer close(u.done)
		u.readLoop(ctx)
	}()

	u.logger.Info("UDP source listening", "addr", u.conn.LocalAddr())
	return nil
}

func (u *Source) bindSocket() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", u.config.Bind, u.config.Port))
	if err != nil {
		return retry.NonRetryable(fmt.Errorf("resolve %s:%d: %w", u.config.Bind, u.config.Port, err))
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen on %v: %w", addr, err)
	}
	u.conn = conn
	return nil
}

// Stop shuts the read loop down, waiting up to timeout.
func (u *Source) Stop(timeout time.Duration) error {
	if !u.running.Load() {
		return nil
	}
	u.running.Store(false)

	u.mu.Lock()
	if u.shutdown != nil {
		close(u.shutdown)
		u.shutdown = nil
	}
	if u.conn != nil {
		u.conn.Close()
		u.conn = nil
	}
	done := u.done
	u.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(timeout):
			return errors.WrapTransient(
				fmt.Errorf("read loop did not exit within %v", timeout),
				"udp-input", "Stop", "await read loop")
		}
	}
	return nil
}

func (u *Source) readLoop(ctx context.Context) {
	buf := make([]byte, 1500)

	for u.running.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		u.mu.RLock()
		conn := u.conn
		u.mu.RUnlock()
		if conn == nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if !u.running.Load() {
				return
			}
			if u.metrics != nil {
				u.metrics.socketErrors.Inc()
			}
			u.logger.Warn("UDP read error", "error", err)
			continue
		}

		u.packetsReceived.Add(1)
		if u.metrics != nil {
			u.metrics.packetsReceived.Inc()
			u.metrics.lastActivity.Set(float64(time.Now().Unix()))
		}
		u.parseDatagram(buf[:n])
	}
}

// parseDatagram walks the datagram in frame-sized steps and forwards
// control-change frames to the sink.
func (u *Source) parseDatagram(data []byte) {
	for off := 0; off+frameSize <= len(data); off += frameSize {
		status := data[off]
		if status&0xF0 != statusControlChange {
			if u.metrics != nil {
				u.metrics.framesSkipped.Inc()
			}
			continue
		}
		control := data[off+1] & 0x7F
		value := float64(data[off+2]&0x7F) / 127.0

		u.sink.Ingest(control, value)
		u.eventsParsed.Add(1)
		if u.metrics != nil {
			u.metrics.eventsParsed.Inc()
		}
		if u.logLimiter.Allow() {
			u.logger.Debug("Control event", "control", control, "value", value)
		}
	}
	if rem := len(data) % frameSize; rem != 0 && u.metrics != nil {
		u.metrics.framesSkipped.Inc()
	}
}
