// Package natsclient manages the NATS connection shared by the ingress
// consumer, the publish node and the dead-letter publisher. It wraps
// connection lifecycle, JetStream access and a circuit breaker that sheds
// publish attempts while the broker is unreachable.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/diazhh/petroedge-sub003/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Error variables
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrCircuitOpen  = stderrors.New("circuit breaker is open")
)

// failureThreshold opens the circuit after this many consecutive failures.
const failureThreshold = 5

// circuitResetDelay is how long the circuit stays open before a half-open probe.
const circuitResetDelay = 10 * time.Second

// Client manages one NATS connection with JetStream access.
type Client struct {
	url    string
	name   string
	status atomic.Value // ConnectionStatus
	logger *slog.Logger

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream

	failures    atomic.Int32
	lastFailure atomic.Int64 // unix nanos

	consumersMu sync.Mutex
	consumers   map[string]jetstream.ConsumeContext
	closed      atomic.Bool
}

// NewClient creates a client for the given NATS URL. Connect must be called
// before any publish or consume operation.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:       url,
		name:      "petroedge",
		logger:    slog.Default().With("component", "natsclient"),
		consumers: make(map[string]jetstream.ConsumeContext),
	}
	c.status.Store(StatusDisconnected)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status returns the current connection status.
func (m *Client) Status() ConnectionStatus {
	return m.status.Load().(ConnectionStatus)
}

func (m *Client) setStatus(status ConnectionStatus) {
	m.status.Store(status)
}

// IsHealthy reports whether the connection is usable.
func (m *Client) IsHealthy() bool {
	return m.Status() == StatusConnected
}

// Connect establishes the connection and initializes JetStream.
func (m *Client) Connect(ctx context.Context) error {
	if m.Status() == StatusCircuitOpen && !m.circuitExpired() {
		return ErrCircuitOpen
	}

	m.setStatus(StatusConnecting)
	m.logger.Info("Connecting to NATS", "url", m.url)

	conn, err := nats.Connect(m.url,
		nats.Name(m.name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			m.setStatus(StatusReconnecting)
			m.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			m.setStatus(StatusConnected)
			m.resetCircuit()
			m.logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			m.setStatus(StatusDisconnected)
		}),
	)
	if err != nil {
		m.recordFailure()
		if m.Status() != StatusCircuitOpen {
			m.setStatus(StatusDisconnected)
		}
		return errors.WrapTransient(err, "Client", "Connect", "establish connection")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		m.recordFailure()
		return errors.WrapTransient(err, "Client", "Connect", "initialize jetstream")
	}

	m.mu.Lock()
	m.conn = conn
	m.js = js
	m.mu.Unlock()

	m.setStatus(StatusConnected)
	m.resetCircuit()
	m.logger.Info("Connected to NATS", "url", m.url)

	_ = ctx // connection options carry their own timeouts
	return nil
}

// Close stops all consumers and drains the connection.
func (m *Client) Close(_ context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	m.consumersMu.Lock()
	for key, cc := range m.consumers {
		cc.Stop()
		delete(m.consumers, key)
	}
	m.consumersMu.Unlock()

	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Drain(); err != nil {
			conn.Close()
		}
	}
	m.setStatus(StatusDisconnected)
	m.logger.Info("NATS connection closed")
	return nil
}

// JetStream returns the JetStream context.
func (m *Client) JetStream() (jetstream.JetStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.js == nil {
		return nil, ErrNotConnected
	}
	return m.js, nil
}

// Publish sends data to a core NATS subject.
func (m *Client) Publish(_ context.Context, subject string, data []byte) error {
	if m.Status() == StatusCircuitOpen && !m.circuitExpired() {
		return ErrCircuitOpen
	}

	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.Publish(subject, data); err != nil {
		m.recordFailure()
		return errors.WrapTransient(err, "Client", "Publish", "publish to "+subject)
	}
	m.resetCircuit()
	return nil
}

// PublishToStream publishes data to a JetStream subject with an ack.
func (m *Client) PublishToStream(ctx context.Context, subject string, data []byte) error {
	if m.Status() == StatusCircuitOpen && !m.circuitExpired() {
		return ErrCircuitOpen
	}

	js, err := m.JetStream()
	if err != nil {
		return err
	}

	if _, err := js.Publish(ctx, subject, data); err != nil {
		m.recordFailure()
		return errors.WrapTransient(err, "Client", "PublishToStream", "publish to "+subject)
	}
	m.resetCircuit()
	return nil
}

// EnsureStream creates the stream if it does not exist yet.
func (m *Client) EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) error {
	js, err := m.JetStream()
	if err != nil {
		return err
	}

	if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
		m.recordFailure()
		return errors.WrapTransient(err, "Client", "EnsureStream", "create stream "+cfg.Name)
	}
	return nil
}

// ConsumeStream attaches a durable consumer to streamName filtered on
// subject and invokes handler for every message. The handler's error return
// decides the ack: nil acks, anything else naks so delivery retries later.
// Messages within one consumer are delivered in order, one at a time.
func (m *Client) ConsumeStream(
	ctx context.Context, streamName, durable, subject string,
	handler func(ctx context.Context, data []byte) error,
) error {
	if m.closed.Load() {
		return errors.WrapInvalid(errors.ErrShuttingDown, "Client", "ConsumeStream", "check client state")
	}

	js, err := m.JetStream()
	if err != nil {
		return err
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxAckPending: 1, // strict per-consumer ordering
	})
	if err != nil {
		m.recordFailure()
		return errors.WrapTransient(err, "Client", "ConsumeStream", "create consumer "+durable)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(ctx, msg.Data()); err != nil {
			if nakErr := msg.Nak(); nakErr != nil {
				m.logger.Warn("Failed to nak message", "subject", subject, "error", nakErr)
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			m.logger.Warn("Failed to ack message", "subject", subject, "error", ackErr)
		}
	})
	if err != nil {
		m.recordFailure()
		return errors.WrapTransient(err, "Client", "ConsumeStream", "start consume "+durable)
	}

	m.consumersMu.Lock()
	defer m.consumersMu.Unlock()
	if m.closed.Load() {
		consumeCtx.Stop()
		return errors.WrapInvalid(errors.ErrShuttingDown, "Client", "ConsumeStream", "register consumer")
	}

	key := fmt.Sprintf("%s:%s", streamName, durable)
	if existing, ok := m.consumers[key]; ok {
		existing.Stop()
		m.logger.Debug("Replaced existing consumer", "key", key)
	}
	m.consumers[key] = consumeCtx

	m.resetCircuit()
	return nil
}

func (m *Client) recordFailure() {
	m.lastFailure.Store(time.Now().UnixNano())
	if m.failures.Add(1) >= failureThreshold && m.Status() != StatusCircuitOpen {
		m.setStatus(StatusCircuitOpen)
		m.logger.Warn("Circuit breaker opened", "failures", m.failures.Load())
	}
}

func (m *Client) resetCircuit() {
	if m.failures.Swap(0) >= failureThreshold {
		m.logger.Info("Circuit breaker reset")
	}
	if m.Status() == StatusCircuitOpen {
		m.setStatus(StatusConnected)
	}
}

// circuitExpired reports whether the open circuit is due for a probe.
func (m *Client) circuitExpired() bool {
	last := m.lastFailure.Load()
	return last > 0 && time.Since(time.Unix(0, last)) > circuitResetDelay
}
