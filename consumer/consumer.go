// Package consumer runs the telemetry ingress loop: it subscribes to the
// raw telemetry stream and drives each message through envelope validation,
// mapping resolution, chain resolution and chain execution.
//
// The consumer draws a hard line between configuration gaps and
// infrastructure failures. A message that cannot be mapped or whose chain
// fails is logged, counted and acknowledged so it never blocks the
// partition; only infrastructure errors (store, cache transport, broker)
// propagate to the subscription and trigger redelivery.
package consumer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/diazhh/petroedge-sub003/engine"
	"github.com/diazhh/petroedge-sub003/errors"
	"github.com/diazhh/petroedge-sub003/metric"
	"github.com/diazhh/petroedge-sub003/resolver"
	"github.com/diazhh/petroedge-sub003/telemetry"
	"github.com/diazhh/petroedge-sub003/types"
)

// Drop reasons used for metrics and dead-letter provenance.
const (
	ReasonInvalidEnvelope = "invalid_envelope"
	ReasonUnmapped        = "unmapped"
	ReasonNoChain         = "no_chain"
	ReasonEngineError     = "engine_error"
)

// Subscriber attaches a durable handler to a stream subject. Satisfied by
// natsclient.Client.
type Subscriber interface {
	ConsumeStream(ctx context.Context, streamName, durable, subject string,
		handler func(ctx context.Context, data []byte) error) error
}

// MappingResolver resolves a data source to its governing configuration.
// Satisfied by resolver.MappingResolver.
type MappingResolver interface {
	Resolve(ctx context.Context, dataSourceID, tenantID string) (*types.ResolvedMapping, error)
}

// ChainResolver selects the rule chain for a resolved mapping. Satisfied by
// resolver.ChainResolver.
type ChainResolver interface {
	Resolve(ctx context.Context, overrides types.ChainOverrides, tenantID string) (*resolver.ChainResolution, error)
}

// Executor runs one chain against one message. Satisfied by engine.Engine.
type Executor interface {
	Execute(ctx context.Context, chain *types.RuleChain, msg *telemetry.ExecMessage) (*engine.Result, error)
}

// Config holds the consumer's stream attachment and processing limits.
type Config struct {
	Stream  string `json:"stream"`
	Subject string `json:"subject"`
	Durable string `json:"durable"`

	// ProcessTimeout bounds the handling of one message end to end,
	// including store reads and node execution.
	ProcessTimeout time.Duration `json:"processTimeout"`
}

func (c *Config) setDefaults() {
	if c.Stream == "" {
		c.Stream = "TELEMETRY"
	}
	// The subject space is split so dead letters on telemetry.dlq are
	// never re-consumed by the processor.
	if c.Subject == "" {
		c.Subject = "telemetry.events.>"
	}
	if c.Durable == "" {
		c.Durable = "telemetry-processor"
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = 30 * time.Second
	}
}

// TelemetryConsumer is the ingress component. Create with New, then Start;
// Stop drains in-flight handling before returning.
type TelemetryConsumer struct {
	config   Config
	sub      Subscriber
	mappings MappingResolver
	chains   ChainResolver
	executor Executor
	dlq      DeadLetter
	metrics  *metric.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	running  atomic.Bool
	shutdown chan struct{}
	inflight sync.WaitGroup

	processed atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a telemetry consumer. dlq and metrics may be nil in tests;
// a nil dlq disables dead-lettering and only logs.
func New(config Config, sub Subscriber, mappings MappingResolver, chains ChainResolver,
	executor Executor, dlq DeadLetter, metrics *metric.Metrics) *TelemetryConsumer {

	config.setDefaults()
	return &TelemetryConsumer{
		config:   config,
		sub:      sub,
		mappings: mappings,
		chains:   chains,
		executor: executor,
		dlq:      dlq,
		metrics:  metrics,
		logger:   slog.Default().With("component", "telemetry-consumer"),
	}
}

// Start attaches the durable consumer. Idempotent while running.
func (c *TelemetryConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		return nil
	}
	c.shutdown = make(chan struct{})

	if err := c.sub.ConsumeStream(ctx, c.config.Stream, c.config.Durable, c.config.Subject, c.Handle); err != nil {
		return errors.Wrap(err, "TelemetryConsumer", "Start", "attach consumer "+c.config.Durable)
	}

	c.running.Store(true)
	c.logger.Info("Telemetry consumer started",
		"stream", c.config.Stream, "subject", c.config.Subject, "durable", c.config.Durable)
	return nil
}

// Stop rejects new messages and waits up to timeout for in-flight handling
// to drain. Messages refused during shutdown are nak'ed and redelivered to
// the durable consumer after restart.
func (c *TelemetryConsumer) Stop(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Load() {
		return nil
	}
	c.running.Store(false)

	select {
	case <-c.shutdown:
	default:
		close(c.shutdown)
	}

	drained := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrShutdownTimeout, "TelemetryConsumer", "Stop", "drain in-flight messages")
	}

	c.logger.Info("Telemetry consumer stopped",
		"processed", c.processed.Load(), "dropped", c.dropped.Load())
	return nil
}

// Handle processes one raw stream message. A nil return acknowledges the
// message; an error return naks it for redelivery, so only failures that
// can heal on retry may propagate.
func (c *TelemetryConsumer) Handle(ctx context.Context, data []byte) error {
	// Register with the drain group before checking the running flag: a
	// handler entering while Stop flips the flag is then either rejected
	// here or waited on by Stop, never missed by the drain.
	c.inflight.Add(1)
	defer c.inflight.Done()
	if !c.running.Load() {
		return errors.WrapTransient(errors.ErrShuttingDown, "TelemetryConsumer", "Handle", "check consumer state")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.ProcessTimeout)
	defer cancel()

	env, err := telemetry.ParseEnvelope(data)
	if err != nil {
		c.logger.Warn("Rejecting malformed envelope", "error", err)
		c.deadLetter(ctx, ReasonInvalidEnvelope, data, err)
		c.drop(ReasonInvalidEnvelope)
		return nil
	}

	if c.metrics != nil {
		c.metrics.MessagesConsumed.WithLabelValues(env.TenantID).Inc()
	}

	mapping, err := c.mappings.Resolve(ctx, env.DataSourceID, env.TenantID)
	if err != nil {
		if errors.IsResolutionMiss(err) {
			// Expected steady state for freshly provisioned or
			// decommissioned sources.
			c.logger.Info("No active binding for data source, dropping",
				"data_source_id", env.DataSourceID, "tenant_id", env.TenantID)
			c.drop(ReasonUnmapped)
			return nil
		}
		return errors.Wrap(err, "TelemetryConsumer", "Handle", "resolve mapping")
	}

	res, err := c.chains.Resolve(ctx, mapping.ChainOverrides(), env.TenantID)
	if err != nil {
		if errors.IsResolutionMiss(err) {
			c.logger.Warn("No resolvable rule chain, dropping",
				"data_source_id", env.DataSourceID, "tenant_id", env.TenantID)
			c.drop(ReasonNoChain)
			return nil
		}
		return errors.Wrap(err, "TelemetryConsumer", "Handle", "resolve chain")
	}

	msg := c.assemble(env, mapping, res)

	if _, err := c.executor.Execute(ctx, res.Chain, msg); err != nil {
		// The engine already finalized the execution record; one bad
		// chain must not block the partition.
		c.logger.Error("Chain execution failed",
			"chain_id", res.ChainID, "data_source_id", env.DataSourceID,
			"tenant_id", env.TenantID, "error", err)
		c.drop(ReasonEngineError)
		return nil
	}

	c.processed.Add(1)
	return nil
}

// assemble builds the execution context: the envelope payload plus the
// resolution metadata chain nodes key on.
func (c *TelemetryConsumer) assemble(env *telemetry.Envelope, mapping *types.ResolvedMapping, res *resolver.ChainResolution) *telemetry.ExecMessage {
	msg := telemetry.NewExecMessage(env)
	msg.SetMeta(telemetry.MetaBindingID, mapping.Binding.ID)
	msg.SetMeta(telemetry.MetaConnectivityProfileID, mapping.ConnectivityProfile.ID)
	msg.SetMeta(telemetry.MetaDeviceProfileID, mapping.DeviceProfile.ID)
	msg.SetMeta(telemetry.MetaTwinID, mapping.Twin.ID)
	msg.SetMeta(telemetry.MetaRootAssetID, mapping.Twin.RootAssetID)
	msg.SetMeta(telemetry.MetaTransportType, mapping.DeviceProfile.TransportType)
	msg.SetMeta(telemetry.MetaChainID, res.ChainID)
	msg.SetMeta(telemetry.MetaChainSource, string(res.Source))
	return msg
}

func (c *TelemetryConsumer) deadLetter(ctx context.Context, reason string, payload []byte, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, reason, payload, cause); err != nil {
		c.logger.Error("Dead-letter publish failed", "reason", reason, "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.DeadLettered.WithLabelValues(reason).Inc()
	}
}

func (c *TelemetryConsumer) drop(reason string) {
	c.dropped.Add(1)
	if c.metrics != nil {
		c.metrics.MessagesDropped.WithLabelValues(reason).Inc()
	}
}

// Stats returns processing counters for health reporting.
func (c *TelemetryConsumer) Stats() (processed, dropped uint64) {
	return c.processed.Load(), c.dropped.Load()
}

// Running reports whether the consumer accepts messages.
func (c *TelemetryConsumer) Running() bool {
	return c.running.Load()
}
