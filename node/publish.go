package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/diazhh/petroedge-sub003/errors"
	"github.com/diazhh/petroedge-sub003/telemetry"
)

// PublishConfig configures the twin-update sink node.
type PublishConfig struct {
	// Subject is the JetStream subject the update document is written to.
	// The tokens {tenantId} and {twinId} are substituted per message.
	Subject string `json:"subject"`
}

// TwinUpdate is the document written to the twin store's ingest subject.
type TwinUpdate struct {
	TwinID       string         `json:"twinId,omitempty"`
	TenantID     string         `json:"tenantId"`
	DataSourceID string         `json:"dataSourceId"`
	Timestamp    time.Time      `json:"timestamp"`
	Data         map[string]any `json:"data"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// publishNode writes the final twin-update document to the broker. A
// message marked dropped passes through without output so that filters
// upstream suppress the side effect, not the node's execution.
type publishNode struct {
	config PublishConfig
	pub    Publisher
	logger *slog.Logger
}

func newPublishNode(config json.RawMessage, deps Dependencies) (Node, error) {
	n := &publishNode{pub: deps.Publisher, logger: deps.GetLogger()}
	if err := json.Unmarshal(config, &n.config); err != nil {
		return nil, invalidNodeConfig(TypePublish, err)
	}
	if n.config.Subject == "" {
		return nil, invalidNodeConfig(TypePublish, fmt.Errorf("subject is required"))
	}
	if n.pub == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Registry", "Create", "publish node requires a publisher")
	}
	return n, nil
}

func (n *publishNode) Type() string { return TypePublish }

func (n *publishNode) Execute(ctx context.Context, msg *telemetry.ExecMessage) (*telemetry.ExecMessage, error) {
	if msg.Dropped {
		n.logger.Debug("Skipping publish for dropped message", "data_source_id", msg.DataSourceID)
		return msg, nil
	}

	update := TwinUpdate{
		TenantID:     msg.TenantID,
		DataSourceID: msg.DataSourceID,
		Timestamp:    msg.Timestamp,
		Data:         msg.Data,
		Metadata:     msg.Metadata,
	}
	if twinID, ok := msg.Metadata[telemetry.MetaTwinID].(string); ok {
		update.TwinID = twinID
	}

	payload, err := json.Marshal(update)
	if err != nil {
		return nil, errors.WrapInvalid(err, "publishNode", "Execute", "marshal twin update")
	}

	subject := n.subjectFor(msg, update.TwinID)
	if err := n.pub.PublishToStream(ctx, subject, payload); err != nil {
		return nil, errors.Wrap(err, "publishNode", "Execute", "publish to "+subject)
	}
	return msg, nil
}

func (n *publishNode) subjectFor(msg *telemetry.ExecMessage, twinID string) string {
	subject := strings.ReplaceAll(n.config.Subject, "{tenantId}", msg.TenantID)
	return strings.ReplaceAll(subject, "{twinId}", twinID)
}
