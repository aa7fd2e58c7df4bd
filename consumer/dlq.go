package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/diazhh/petroedge-sub003/errors"
)

// DefaultDeadLetterSubject is where rejected raw messages land when no
// subject is configured.
const DefaultDeadLetterSubject = "telemetry.dlq"

// DeadLetter receives raw messages the pipeline refuses to process, with
// the refusal reason. Implementations must not block message handling on
// downstream availability beyond the caller's context.
type DeadLetter interface {
	Publish(ctx context.Context, reason string, payload []byte, cause error) error
}

// DeadLetterMessage is the document written to the dead-letter subject.
// Payload carries the original bytes untouched so operators can replay
// after fixing the producer.
type DeadLetterMessage struct {
	Reason   string    `json:"reason"`
	Error    string    `json:"error,omitempty"`
	Payload  []byte    `json:"payload"`
	FailedAt time.Time `json:"failedAt"`
}

// StreamPublisher is the broker write the dead letter queue needs.
// Satisfied by natsclient.Client.
type StreamPublisher interface {
	PublishToStream(ctx context.Context, subject string, data []byte) error
}

// NATSDeadLetter publishes dead letters to a JetStream subject.
type NATSDeadLetter struct {
	pub     StreamPublisher
	subject string
	logger  *slog.Logger
}

// NewNATSDeadLetter creates a dead letter publisher. An empty subject uses
// DefaultDeadLetterSubject.
func NewNATSDeadLetter(pub StreamPublisher, subject string) *NATSDeadLetter {
	if subject == "" {
		subject = DefaultDeadLetterSubject
	}
	return &NATSDeadLetter{
		pub:     pub,
		subject: subject,
		logger:  slog.Default().With("component", "dead-letter"),
	}
}

// Publish writes one dead letter. The failure cause travels as text since
// the consuming side is an operator tool, not Go code.
func (d *NATSDeadLetter) Publish(ctx context.Context, reason string, payload []byte, cause error) error {
	doc := DeadLetterMessage{
		Reason:   reason,
		Payload:  payload,
		FailedAt: time.Now().UTC(),
	}
	if cause != nil {
		doc.Error = cause.Error()
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return errors.WrapInvalid(err, "NATSDeadLetter", "Publish", "marshal dead letter")
	}
	if err := d.pub.PublishToStream(ctx, d.subject, data); err != nil {
		return errors.Wrap(err, "NATSDeadLetter", "Publish", "publish to "+d.subject)
	}
	d.logger.Debug("Dead letter published", "subject", d.subject, "reason", reason)
	return nil
}
