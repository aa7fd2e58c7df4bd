package engine

import (
	"encoding/json"
	"fmt"

	"github.com/diazhh/petroedge-sub003/errors"
	"github.com/diazhh/petroedge-sub003/node"
	"github.com/diazhh/petroedge-sub003/telemetry"
	"github.com/diazhh/petroedge-sub003/types"
)

// compiledChain is one chain instantiated against the node registry:
// concrete node instances plus the adjacency the readiness loop walks.
type compiledChain struct {
	nodes map[string]node.Node
	meta  map[string]types.RuleNode

	// order is node-definition order; readiness passes iterate it so that
	// execution order is deterministic for a given chain document.
	order []string

	// preds holds each node's predecessor ids in connection-definition
	// order, which fixes the merge order for multi-input nodes.
	preds map[string][]string

	reachable map[string]bool
	ingressID string
}

// compile instantiates every node and validates the graph shape: known node
// types, connections between declared nodes, exactly one ingress node.
func (e *Engine) compile(chain *types.RuleChain) (*compiledChain, error) {
	cc := &compiledChain{
		nodes: make(map[string]node.Node, len(chain.Nodes)),
		meta:  make(map[string]types.RuleNode, len(chain.Nodes)),
		order: make([]string, 0, len(chain.Nodes)),
		preds: make(map[string][]string),
	}

	for _, n := range chain.Nodes {
		if _, dup := cc.nodes[n.ID]; dup {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: duplicate node id %q", errors.ErrInvalidConfig, n.ID),
				"Engine", "compile", "validate chain "+chain.ID)
		}
		inst, err := e.registry.Create(n.Type, n.Config, e.deps)
		if err != nil {
			return nil, errors.Wrap(err, "Engine", "compile", "instantiate node "+n.ID)
		}
		cc.nodes[n.ID] = inst
		cc.meta[n.ID] = n
		cc.order = append(cc.order, n.ID)

		if n.Type == node.TypeIngress {
			if cc.ingressID != "" {
				return nil, errors.WrapInvalid(
					fmt.Errorf("%w: nodes %q and %q are both ingress", errors.ErrInvalidConfig, cc.ingressID, n.ID),
					"Engine", "compile", "validate chain "+chain.ID)
			}
			cc.ingressID = n.ID
		}
	}

	if cc.ingressID == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: chain %s", errors.ErrNoIngressNode, chain.ID),
			"Engine", "compile", "validate chain "+chain.ID)
	}

	succs := make(map[string][]string)
	for _, conn := range chain.Connections {
		if _, ok := cc.nodes[conn.FromNode]; !ok {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: connection %s references unknown node %q", errors.ErrInvalidConfig, conn.ID, conn.FromNode),
				"Engine", "compile", "validate chain "+chain.ID)
		}
		if _, ok := cc.nodes[conn.ToNode]; !ok {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: connection %s references unknown node %q", errors.ErrInvalidConfig, conn.ID, conn.ToNode),
				"Engine", "compile", "validate chain "+chain.ID)
		}
		cc.preds[conn.ToNode] = append(cc.preds[conn.ToNode], conn.FromNode)
		succs[conn.FromNode] = append(succs[conn.FromNode], conn.ToNode)
	}

	if len(cc.preds[cc.ingressID]) > 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: ingress node %q has incoming connections", errors.ErrInvalidConfig, cc.ingressID),
			"Engine", "compile", "validate chain "+chain.ID)
	}

	// Only nodes reachable from the ingress participate in execution;
	// orphaned fragments are authoring leftovers, not a stalled graph.
	cc.reachable = make(map[string]bool, len(cc.order))
	queue := []string{cc.ingressID}
	cc.reachable[cc.ingressID] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range succs[id] {
			if !cc.reachable[next] {
				cc.reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	return cc, nil
}

// inputFor computes a node's input message, reporting readiness. The ingress
// node is seeded with the pipeline input; every other node is ready once all
// its predecessors have produced output, which is then merged in
// connection-definition order with later predecessors overwriting earlier
// keys.
func (cc *compiledChain) inputFor(id string, seed *telemetry.ExecMessage, outputs map[string]*telemetry.ExecMessage) (*telemetry.ExecMessage, bool) {
	preds := cc.preds[id]
	if len(preds) == 0 {
		return seed, true
	}

	inputs := make([]*telemetry.ExecMessage, 0, len(preds))
	for _, p := range preds {
		out, done := outputs[p]
		if !done {
			return nil, false
		}
		inputs = append(inputs, out)
	}
	if len(inputs) == 1 {
		return inputs[0], true
	}
	return mergeInputs(inputs), true
}

// mergeInputs folds multiple predecessor outputs into one message. The drop
// flag is sticky: a message filtered out on any branch stays dropped.
func mergeInputs(inputs []*telemetry.ExecMessage) *telemetry.ExecMessage {
	merged := inputs[0].Clone()
	for _, in := range inputs[1:] {
		for k, v := range in.Data {
			merged.Data[k] = v
		}
		for k, v := range in.Metadata {
			merged.Metadata[k] = v
		}
		merged.Dropped = merged.Dropped || in.Dropped
	}
	return merged
}

// ingressNode returns the first ingress-typed node, if any. The record's
// trigger type is stamped from it before the graph is validated, so it must
// not assume a well-formed chain.
func ingressNode(chain *types.RuleChain) *types.RuleNode {
	for i := range chain.Nodes {
		if chain.Nodes[i].Type == node.TypeIngress {
			return &chain.Nodes[i]
		}
	}
	return nil
}

func ingressTriggerType(n *types.RuleNode) string {
	if n != nil && len(n.Config) > 0 {
		var cfg node.IngressConfig
		if err := json.Unmarshal(n.Config, &cfg); err == nil && cfg.TriggerType != "" {
			return cfg.TriggerType
		}
	}
	return "telemetry"
}
