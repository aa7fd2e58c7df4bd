package node

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/diazhh/petroedge-sub003/errors"
	"github.com/diazhh/petroedge-sub003/telemetry"
)

// FilterConfig configures the boolean predicate of one filter node.
type FilterConfig struct {
	// Expression must evaluate to a boolean over the message environment.
	Expression string `json:"expression"`

	// Name identifies this filter in drop provenance. Defaults to the
	// expression text.
	Name string `json:"name,omitempty"`
}

// filterNode marks a message dropped when its predicate evaluates false.
// The message still flows through the remaining chain so completeness
// accounting holds; side-effect nodes observe the flag and skip output.
type filterNode struct {
	config  FilterConfig
	program *vm.Program
}

func newFilterNode(config json.RawMessage, _ Dependencies) (Node, error) {
	n := &filterNode{}
	if err := json.Unmarshal(config, &n.config); err != nil {
		return nil, invalidNodeConfig(TypeFilter, err)
	}
	if n.config.Expression == "" {
		return nil, invalidNodeConfig(TypeFilter, fmt.Errorf("expression is required"))
	}
	if n.config.Name == "" {
		n.config.Name = n.config.Expression
	}

	program, err := expr.Compile(n.config.Expression, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, invalidNodeConfig(TypeFilter, fmt.Errorf("compile predicate: %w", err))
	}
	n.program = program
	return n, nil
}

func (n *filterNode) Type() string { return TypeFilter }

func (n *filterNode) Execute(_ context.Context, msg *telemetry.ExecMessage) (*telemetry.ExecMessage, error) {
	if msg.Dropped {
		return msg, nil
	}

	result, err := expr.Run(n.program, msg.Env())
	if err != nil {
		return nil, errors.WrapInvalid(err, "filterNode", "Execute", "evaluate predicate")
	}
	pass, ok := result.(bool)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("predicate returned %T, want bool", result),
			"filterNode", "Execute", "check predicate result")
	}

	if pass {
		return msg, nil
	}

	out := msg.Clone()
	out.Dropped = true
	out.SetMeta(telemetry.MetaDroppedBy, n.config.Name)
	return out, nil
}
