package store

import (
	"context"
	"fmt"

	"github.com/dukerupert/chorestars/internal/model"
)

type ApprovalStore struct {
	db DBTX
}

const approvalCols = `id, instance_id, approver_id, decision, reason, decided_at`

func (s *ApprovalStore) Create(ctx context.Context, rec model.ApprovalRecord) (*model.ApprovalRecord, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO approvals (instance_id, approver_id, decision, reason, decided_at) VALUES (?, ?, ?, ?, ?)`,
		rec.InstanceID, rec.ApproverID, rec.Decision, rec.Reason, rec.DecidedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert approval: %w", translate(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	rec.ID = id
	return &rec, nil
}

// ListByInstance returns the decision history oldest first.
func (s *ApprovalStore) ListByInstance(ctx context.Context, instanceID int64) ([]model.ApprovalRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+approvalCols+` FROM approvals WHERE instance_id = ? ORDER BY id ASC`, instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", translate(err))
	}
	defer rows.Close()

	var records []model.ApprovalRecord
	for rows.Next() {
		var r model.ApprovalRecord
		if err := rows.Scan(&r.ID, &r.InstanceID, &r.ApproverID, &r.Decision, &r.Reason, &r.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
