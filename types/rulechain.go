package types

import (
	"encoding/json"
	"time"
)

// ChainStatus is the lifecycle status of a rule chain. Only ACTIVE chains
// are resolvable.
type ChainStatus string

// Rule chain statuses as stored in the rules table.
const (
	ChainStatusActive   ChainStatus = "ACTIVE"
	ChainStatusInactive ChainStatus = "INACTIVE"
	ChainStatusDraft    ChainStatus = "DRAFT"
	ChainStatusArchived ChainStatus = "ARCHIVED"
)

// ChainSource identifies which tier of the override hierarchy selected a
// rule chain.
type ChainSource string

// Resolution tiers in priority order.
const (
	SourceBinding             ChainSource = "binding"
	SourceConnectivityProfile ChainSource = "connectivity_profile"
	SourceDeviceProfile       ChainSource = "device_profile"
	SourceDefault             ChainSource = "default"
)

// DefaultChainName is the well-known name of the tenant-wide fallback chain.
const DefaultChainName = "ROOT_TELEMETRY_PROCESSING"

// RuleChain is a directed acyclic graph of typed processing nodes. The graph
// property is enforced by the authoring layer; the executor detects violations
// at run time and refuses to loop on them.
type RuleChain struct {
	ID          string           `json:"id"`
	TenantID    string           `json:"tenantId"`
	Name        string           `json:"name"`
	Status      ChainStatus      `json:"status"`
	Priority    int              `json:"priority"`
	Nodes       []RuleNode       `json:"nodes"`
	Connections []RuleConnection `json:"connections"`
	Config      json.RawMessage  `json:"config,omitempty"`
}

// IsActive reports whether the chain is resolvable.
func (c *RuleChain) IsActive() bool {
	return c != nil && c.Status == ChainStatusActive
}

// RuleNode is one typed unit of work inside a chain. Config is opaque to the
// executor and interpreted only by the node implementation selected by Type.
type RuleNode struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Name     string          `json:"name,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
	Position *NodePosition   `json:"position,omitempty"` // display-only
}

// NodePosition is canvas placement for the authoring UI. Never interpreted
// by the executor.
type NodePosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RuleConnection is one edge of the chain graph. Ports exist for future
// multi-output nodes; readiness evaluation treats each connection as a plain
// fromNode -> toNode edge.
type RuleConnection struct {
	ID       string `json:"id"`
	FromNode string `json:"fromNode"`
	FromPort string `json:"fromPort,omitempty"`
	ToNode   string `json:"toNode"`
	ToPort   string `json:"toPort,omitempty"`
}

// ExecutionStatus is the lifecycle status of one rule chain run.
type ExecutionStatus string

// Execution record statuses. Exactly one transition from running to a
// terminal state happens per invocation.
const (
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionError   ExecutionStatus = "error"
)

// RuleExecutionRecord is the append-only audit row capturing one chain run.
type RuleExecutionRecord struct {
	ID           string          `json:"id"`
	RuleID       string          `json:"ruleId"`
	TenantID     string          `json:"tenantId"`
	DataSourceID string          `json:"dataSourceId"`
	TriggerType  string          `json:"triggerType"`
	Status       ExecutionStatus `json:"status"`
	InputData    json.RawMessage `json:"inputData,omitempty"`
	OutputData   json.RawMessage `json:"outputData,omitempty"`
	ErrorDetail  string          `json:"errorDetail,omitempty"`
	DurationMs   int64           `json:"durationMs"`
	StartedAt    time.Time       `json:"startedAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}
