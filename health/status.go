// Package health tracks per-component health for the processor and serves
// the aggregate over HTTP. Components report their own status; the monitor
// aggregates worst-of for readiness probes.
package health

import (
	"regexp"
	"time"
)

// Component status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status is the health state of one component or of the whole system.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries health-related counters alongside a status.
type Metrics struct {
	Uptime            time.Duration `json:"uptime"`
	MessagesProcessed uint64        `json:"messages_processed,omitempty"`
	MessagesDropped   uint64        `json:"messages_dropped,omitempty"`
}

// Healthy builds a healthy status for a component.
func Healthy(component, message string) Status {
	return newStatus(component, StatusHealthy, message)
}

// Degraded builds a degraded status: the component works but at reduced
// capability, e.g. cache misses falling through to the store.
func Degraded(component, message string) Status {
	return newStatus(component, StatusDegraded, message)
}

// Unhealthy builds an unhealthy status.
func Unhealthy(component, message string) Status {
	return newStatus(component, StatusUnhealthy, message)
}

func newStatus(component, status, message string) Status {
	return Status{
		Component: component,
		Healthy:   status == StatusHealthy,
		Status:    status,
		Message:   sanitizeMessage(message),
		Timestamp: time.Now().UTC(),
	}
}

// IsHealthy reports whether the status is healthy.
func (s Status) IsHealthy() bool {
	return s.Status == StatusHealthy
}

// WithMetrics returns a copy of the status with metrics attached.
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// Health messages may embed connection errors carrying endpoints or
// credentials; strip those before the message leaves the process.
var (
	urlRegex        = regexp.MustCompile(`(?:nats|https?|postgres|redis)://[^\s]+`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

func sanitizeMessage(msg string) string {
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = credentialRegex.ReplaceAllString(msg, "$1=[REDACTED]")
	return msg
}
