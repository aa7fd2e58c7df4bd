// Package node provides the typed processing units a rule chain is built
// from, and the registry that resolves a node type string to its
// implementation.
//
// The registry is the single polymorphism point in the system: the execution
// engine drives nodes purely through the Node interface and never inspects
// node semantics. Each node type owns a strongly-typed configuration struct
// that its factory decodes from the opaque config blob, so dispatch happens
// on the type tag rather than on untyped maps.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/diazhh/petroedge-sub003/errors"
	"github.com/diazhh/petroedge-sub003/telemetry"
)

// Node is one typed unit of work inside a rule chain. Implementations
// receive one message and return one message (or fail); they may produce
// side effects but own no retries and no control flow.
type Node interface {
	// Type returns the registry tag this node was created under.
	Type() string

	// Execute processes one message. The returned message becomes the
	// input of downstream nodes.
	Execute(ctx context.Context, msg *telemetry.ExecMessage) (*telemetry.ExecMessage, error)
}

// Publisher abstracts the broker write used by side-effect nodes. Satisfied
// by natsclient.Client.
type Publisher interface {
	PublishToStream(ctx context.Context, subject string, data []byte) error
}

// Dependencies carries shared resources into node factories. Connection
// pooling for external calls lives behind these interfaces, not in nodes.
type Dependencies struct {
	Publisher Publisher
	Logger    *slog.Logger
}

// GetLogger returns the configured logger or the process default.
func (d Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Factory builds one node instance from its opaque configuration.
type Factory func(config json.RawMessage, deps Dependencies) (Node, error)

// Registry maps node type tags to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry pre-populated with the built-in node types.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	// Built-in catalog. Registration errors here are programming errors.
	must := func(nodeType string, f Factory) {
		if err := r.Register(nodeType, f); err != nil {
			panic(err)
		}
	}
	must(TypeIngress, newIngressNode)
	must(TypeEnrich, newEnrichNode)
	must(TypeTransform, newTransformNode)
	must(TypeFilter, newFilterNode)
	must(TypePublish, newPublishNode)

	return r
}

// Register adds a factory for nodeType, rejecting duplicates.
func (r *Registry) Register(nodeType string, factory Factory) error {
	if nodeType == "" || factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "empty node type or nil factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[nodeType]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("node type %q already registered", nodeType),
			"Registry", "Register", "check existing registration")
	}
	r.factories[nodeType] = factory
	return nil
}

// Create instantiates a node of the given type from config.
func (r *Registry) Create(nodeType string, config json.RawMessage, deps Dependencies) (Node, error) {
	r.mu.RLock()
	factory, ok := r.factories[nodeType]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownNodeType, nodeType),
			"Registry", "Create", "lookup node type")
	}
	return factory(config, deps)
}

// Types returns the registered node type tags.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	return out
}

// Built-in node type tags.
const (
	TypeIngress   = "ingress"
	TypeEnrich    = "enrich"
	TypeTransform = "transform"
	TypeFilter    = "filter"
	TypePublish   = "publish"
)
