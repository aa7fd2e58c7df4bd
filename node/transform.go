package node

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/diazhh/petroedge-sub003/errors"
	"github.com/diazhh/petroedge-sub003/telemetry"
	"github.com/diazhh/petroedge-sub003/types"
)

// TransformConfig configures field translation for one transform node.
type TransformConfig struct {
	// Mappings rename and scale raw fields. Source fields absent from the
	// payload are skipped silently: sparse telemetry is normal.
	Mappings []types.FieldMapping `json:"mappings,omitempty"`

	// Computed evaluates expressions over the message environment and
	// stores the result under Target.
	Computed []ComputedField `json:"computed,omitempty"`

	// DropUnmapped removes every field not produced by a mapping or a
	// computed expression.
	DropUnmapped bool `json:"dropUnmapped,omitempty"`
}

// ComputedField is one derived output field.
type ComputedField struct {
	Target     string `json:"target"`
	Expression string `json:"expression"`
}

// transformNode applies declarative field mappings followed by computed
// expressions. Expressions are compiled once at construction.
type transformNode struct {
	config   TransformConfig
	programs []*vm.Program
}

func newTransformNode(config json.RawMessage, _ Dependencies) (Node, error) {
	n := &transformNode{}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &n.config); err != nil {
			return nil, invalidNodeConfig(TypeTransform, err)
		}
	}

	for _, m := range n.config.Mappings {
		if m.Source == "" || m.Target == "" {
			return nil, invalidNodeConfig(TypeTransform,
				fmt.Errorf("field mapping requires source and target"))
		}
	}

	for _, c := range n.config.Computed {
		if c.Target == "" || c.Expression == "" {
			return nil, invalidNodeConfig(TypeTransform,
				fmt.Errorf("computed field requires target and expression"))
		}
		program, err := expr.Compile(c.Expression, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, invalidNodeConfig(TypeTransform,
				fmt.Errorf("compile %q: %w", c.Target, err))
		}
		n.programs = append(n.programs, program)
	}
	return n, nil
}

func (n *transformNode) Type() string { return TypeTransform }

func (n *transformNode) Execute(_ context.Context, msg *telemetry.ExecMessage) (*telemetry.ExecMessage, error) {
	out := msg.Clone()
	produced := make(map[string]bool, len(n.config.Mappings)+len(n.config.Computed))

	for _, m := range n.config.Mappings {
		value, ok := out.Data[m.Source]
		if !ok {
			continue
		}
		if m.Scale != 0 {
			num, isNum := toFloat(value)
			if !isNum {
				return nil, errors.WrapInvalid(
					fmt.Errorf("field %q is not numeric, cannot scale", m.Source),
					"transformNode", "Execute", "apply mapping")
			}
			value = num * m.Scale
		}
		if m.Target != m.Source {
			delete(out.Data, m.Source)
		}
		out.Data[m.Target] = value
		produced[m.Target] = true
	}

	for i, c := range n.config.Computed {
		result, err := expr.Run(n.programs[i], out.Env())
		if err != nil {
			return nil, errors.WrapInvalid(err, "transformNode", "Execute", "evaluate "+c.Target)
		}
		out.Data[c.Target] = result
		produced[c.Target] = true
	}

	if n.config.DropUnmapped {
		for field := range out.Data {
			if !produced[field] {
				delete(out.Data, field)
			}
		}
	}

	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
