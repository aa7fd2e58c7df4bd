package store

import (
	"context"
	"time"

	"github.com/diazhh/petroedge-sub003/errors"
	"github.com/diazhh/petroedge-sub003/types"
)

// InsertExecution persists a new execution record in the running state.
// Writes are single-shot: retrying an insert under at-least-once delivery
// risks duplicate audit rows.
func (s *Store) InsertExecution(ctx context.Context, rec *types.RuleExecutionRecord) error {
	const q = `
		INSERT INTO rule_executions
			(id, rule_id, tenant_id, data_source_id, trigger_type, status, input_data, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.RuleID, rec.TenantID, rec.DataSourceID,
		rec.TriggerType, string(rec.Status), []byte(rec.InputData), rec.StartedAt,
	)
	if err != nil {
		return errors.WrapTransient(err, "Store", "InsertExecution", "insert rule_executions")
	}
	return nil
}

// CompleteExecution finalizes a running record exactly once. The status
// predicate makes the transition idempotent: a second completion attempt
// for the same id matches zero rows and is reported, not re-applied.
func (s *Store) CompleteExecution(
	ctx context.Context,
	id string,
	status types.ExecutionStatus,
	outputData []byte,
	errorDetail string,
	durationMs int64,
	completedAt time.Time,
) error {
	const q = `
		UPDATE rule_executions
		SET status = $2, output_data = $3, error_detail = $4, duration_ms = $5, completed_at = $6
		WHERE id = $1 AND status = $7`

	res, err := s.db.ExecContext(ctx, q,
		id, string(status), outputData, errorDetail, durationMs, completedAt,
		string(types.ExecutionRunning),
	)
	if err != nil {
		return errors.WrapTransient(err, "Store", "CompleteExecution", "update rule_executions")
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		s.logger.Warn("Execution record already finalized", "execution_id", id, "status", status)
	}
	return nil
}
