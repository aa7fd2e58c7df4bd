package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/diazhh/petroedge-sub003/errors"
	"github.com/diazhh/petroedge-sub003/types"
)

const ruleColumns = `
	id, tenant_id, name, status, priority,
	COALESCE(nodes, '[]'), COALESCE(connections, '[]'), COALESCE(config, '{}')`

// GetRuleChain returns one rule chain by id regardless of status, or
// ErrChainNotResolvable when absent. Status filtering happens in the
// resolver so that an inactive override can degrade to the next tier
// instead of failing hard.
func (s *Store) GetRuleChain(ctx context.Context, tenantID, id string) (*types.RuleChain, error) {
	const q = `SELECT` + ruleColumns + ` FROM rules WHERE tenant_id = $1 AND id = $2`

	row := s.db.QueryRowContext(ctx, q, tenantID, id)
	chain, err := scanRuleChain(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrChainNotResolvable
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "GetRuleChain", "query rules")
	}
	return chain, nil
}

// GetDefaultRuleChain returns the tenant-wide fallback chain identified by
// its well-known name. Only an ACTIVE chain qualifies; among several the
// highest priority wins.
func (s *Store) GetDefaultRuleChain(ctx context.Context, tenantID, name string) (*types.RuleChain, error) {
	const q = `SELECT` + ruleColumns + `
		FROM rules
		WHERE tenant_id = $1 AND name = $2 AND status = $3
		ORDER BY priority DESC
		LIMIT 1`

	row := s.db.QueryRowContext(ctx, q, tenantID, name, string(types.ChainStatusActive))
	chain, err := scanRuleChain(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrChainNotResolvable
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "GetDefaultRuleChain", "query rules")
	}
	return chain, nil
}

func scanRuleChain(row *sql.Row) (*types.RuleChain, error) {
	var (
		c              types.RuleChain
		status         string
		rawNodes       []byte
		rawConnections []byte
		rawConfig      []byte
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &status, &c.Priority,
		&rawNodes, &rawConnections, &rawConfig)
	if err != nil {
		return nil, err
	}

	c.Status = types.ChainStatus(status)
	if err := json.Unmarshal(rawNodes, &c.Nodes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawConnections, &c.Connections); err != nil {
		return nil, err
	}
	c.Config = json.RawMessage(rawConfig)
	return &c, nil
}
