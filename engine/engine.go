// Package engine executes rule chains. It treats a chain as a DAG of typed
// nodes, drives execution with readiness passes (a node runs once every
// predecessor has run), and persists one execution record per invocation
// with per-node provenance.
//
// The engine owns control flow and record keeping only. Node semantics live
// in the node package; a stalled graph (cycle among reachable nodes) is the
// engine's to detect and is reported as ErrGraphUnsatisfiable rather than
// looping forever.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/diazhh/petroedge-sub003/errors"
	"github.com/diazhh/petroedge-sub003/metric"
	"github.com/diazhh/petroedge-sub003/node"
	"github.com/diazhh/petroedge-sub003/telemetry"
	"github.com/diazhh/petroedge-sub003/types"
)

// Recorder persists execution records. Satisfied by *store.Store.
type Recorder interface {
	InsertExecution(ctx context.Context, rec *types.RuleExecutionRecord) error
	CompleteExecution(ctx context.Context, id string, status types.ExecutionStatus,
		outputData []byte, errorDetail string, durationMs int64, completedAt time.Time) error
}

// NodeResult is the provenance of one node run.
type NodeResult struct {
	NodeID     string    `json:"nodeId"`
	NodeType   string    `json:"nodeType"`
	Name       string    `json:"name,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMs int64     `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
}

// Result is the outcome of one chain execution.
type Result struct {
	ExecutionID   string
	Status        types.ExecutionStatus
	NodeResults   []NodeResult
	ExecutedNodes int
	TotalNodes    int

	// Output is the message produced by the last node that ran. Nil when
	// execution failed before any node completed.
	Output *telemetry.ExecMessage
}

// recordOutput is the JSON document stored in the execution record's
// output_data column.
type recordOutput struct {
	ExecutedNodes int             `json:"executedNodes"`
	TotalNodes    int             `json:"totalNodes"`
	Nodes         []NodeResult    `json:"nodes"`
	Output        json.RawMessage `json:"output,omitempty"`
}

// Engine runs rule chains against telemetry messages.
type Engine struct {
	registry *node.Registry
	recorder Recorder
	deps     node.Dependencies
	metrics  *metric.Metrics
	logger   *slog.Logger
}

// New creates an engine. metrics may be nil in tests.
func New(registry *node.Registry, recorder Recorder, deps node.Dependencies, metrics *metric.Metrics) *Engine {
	return &Engine{
		registry: registry,
		recorder: recorder,
		deps:     deps,
		metrics:  metrics,
		logger:   slog.Default().With("component", "rule-engine"),
	}
}

// Execute runs chain against msg. It inserts a running record, executes
// every node reachable from the ingress node, and finalizes the record
// exactly once: success with node counts, or error with detail. Invalid
// chains, node failures and unsatisfiable graphs surface as both an error
// return and an error-status record; the Result always carries whatever
// provenance was gathered before the failure.
func (e *Engine) Execute(ctx context.Context, chain *types.RuleChain, msg *telemetry.ExecMessage) (*Result, error) {
	started := time.Now().UTC()
	rec := &types.RuleExecutionRecord{
		ID:           uuid.NewString(),
		RuleID:       chain.ID,
		TenantID:     msg.TenantID,
		DataSourceID: msg.DataSourceID,
		TriggerType:  ingressTriggerType(ingressNode(chain)),
		Status:       types.ExecutionRunning,
		InputData:    msg.MarshalPayload(),
		StartedAt:    started,
	}
	// Audit must not block telemetry: a failed insert is logged and the
	// run proceeds. The later completion update then matches zero rows
	// and is likewise only logged.
	if err := e.recorder.InsertExecution(ctx, rec); err != nil {
		e.logger.Warn("Execution record insert failed",
			"execution_id", rec.ID, "chain_id", chain.ID, "error", err)
	}

	res := &Result{
		ExecutionID: rec.ID,
		TotalNodes:  len(chain.Nodes),
	}

	// The record is persisted before the graph is validated so that a
	// misconfigured chain still leaves an error-status audit entry.
	cc, err := e.compile(chain)
	if err != nil {
		e.finalize(ctx, rec, res, types.ExecutionError, err.Error(), started)
		return res, err
	}

	outputs := make(map[string]*telemetry.ExecMessage, len(cc.reachable))
	for len(outputs) < len(cc.reachable) {
		progressed := false
		for _, id := range cc.order {
			if _, done := outputs[id]; done || !cc.reachable[id] {
				continue
			}
			input, ready := cc.inputFor(id, msg, outputs)
			if !ready {
				continue
			}

			nr, out, nodeErr := e.runNode(ctx, cc, id, input)
			res.NodeResults = append(res.NodeResults, nr)
			if nodeErr != nil {
				res.ExecutedNodes = len(outputs)
				detail := fmt.Sprintf("node %s (%s): %v", id, cc.meta[id].Type, nodeErr)
				e.finalize(ctx, rec, res, types.ExecutionError, detail, started)
				return res, errors.Wrap(nodeErr, "Engine", "Execute", "node "+id)
			}

			outputs[id] = out
			res.Output = out
			progressed = true
		}
		if !progressed {
			res.ExecutedNodes = len(outputs)
			detail := fmt.Sprintf("%d of %d reachable nodes executed before the graph stalled",
				len(outputs), len(cc.reachable))
			e.finalize(ctx, rec, res, types.ExecutionError, detail, started)
			return res, fmt.Errorf("%w: chain %s: %s", errors.ErrGraphUnsatisfiable, chain.ID, detail)
		}
	}

	res.ExecutedNodes = len(outputs)
	e.finalize(ctx, rec, res, types.ExecutionSuccess, "", started)
	return res, nil
}

// runNode executes one node with timing and provenance capture.
func (e *Engine) runNode(ctx context.Context, cc *compiledChain, id string, input *telemetry.ExecMessage) (NodeResult, *telemetry.ExecMessage, error) {
	meta := cc.meta[id]
	nr := NodeResult{
		NodeID:    id,
		NodeType:  meta.Type,
		Name:      meta.Name,
		StartedAt: time.Now().UTC(),
	}

	out, err := cc.nodes[id].Execute(ctx, input)
	elapsed := time.Since(nr.StartedAt)
	nr.DurationMs = elapsed.Milliseconds()

	if e.metrics != nil {
		e.metrics.NodeDuration.WithLabelValues(meta.Type).Observe(elapsed.Seconds())
	}
	if err != nil {
		nr.Error = err.Error()
		return nr, nil, err
	}
	return nr, out, nil
}

// finalize writes the single terminal record transition and the execution
// metrics. Called exactly once per Execute invocation.
func (e *Engine) finalize(ctx context.Context, rec *types.RuleExecutionRecord, res *Result,
	status types.ExecutionStatus, detail string, started time.Time) {

	res.Status = status

	out := recordOutput{
		ExecutedNodes: res.ExecutedNodes,
		TotalNodes:    res.TotalNodes,
		Nodes:         res.NodeResults,
	}
	if status == types.ExecutionSuccess && res.Output != nil && !res.Output.Dropped {
		out.Output = res.Output.MarshalPayload()
	}
	outputData, err := json.Marshal(out)
	if err != nil {
		e.logger.Warn("Execution output marshal failed", "execution_id", rec.ID, "error", err)
		outputData = nil
	}

	elapsed := time.Since(started)
	if err := e.recorder.CompleteExecution(ctx, rec.ID, status, outputData, detail,
		elapsed.Milliseconds(), time.Now().UTC()); err != nil {
		e.logger.Warn("Execution record completion failed",
			"execution_id", rec.ID, "status", string(status), "error", err)
	}

	if e.metrics != nil {
		e.metrics.Executions.WithLabelValues(string(status)).Inc()
		e.metrics.PipelineDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
	}
	if status == types.ExecutionError {
		e.logger.Warn("Chain execution failed",
			"execution_id", rec.ID, "chain_id", rec.RuleID, "detail", detail)
	} else {
		e.logger.Debug("Chain execution complete",
			"execution_id", rec.ID, "chain_id", rec.RuleID,
			"executed_nodes", res.ExecutedNodes, "duration_ms", elapsed.Milliseconds())
	}
}
