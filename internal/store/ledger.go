package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/chorestars/internal/model"
)

// LedgerStore is append-only. The schema rejects UPDATE and DELETE on
// stars_ledger outright.
type LedgerStore struct {
	db DBTX
}

func scanLedgerEntry(scanner interface{ Scan(...any) error }) (*model.StarsLedgerEntry, error) {
	var e model.StarsLedgerEntry
	var instanceID sql.NullInt64
	err := scanner.Scan(&e.ID, &e.MemberID, &e.Delta, &e.Reason, &e.CreatedBy, &instanceID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.TaskInstanceID = intPtr(instanceID)
	return &e, nil
}

const ledgerCols = `id, member_id, delta, reason, created_by, task_instance_id, created_at`

// Insert appends an entry. A second positive entry for the same task
// instance fails with model.ErrDuplicateAward.
func (s *LedgerStore) Insert(ctx context.Context, e model.StarsLedgerEntry) (*model.StarsLedgerEntry, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO stars_ledger (member_id, delta, reason, created_by, task_instance_id) VALUES (?, ?, ?, ?, ?)`,
		e.MemberID, e.Delta, e.Reason, e.CreatedBy, nullInt(e.TaskInstanceID),
	)
	if isUniqueViolation(err) {
		return nil, model.ErrDuplicateAward
	}
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", translate(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+ledgerCols+` FROM stars_ledger WHERE id = ?`, id)
	out, err := scanLedgerEntry(row)
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", translate(err))
	}
	return out, nil
}

func (s *LedgerStore) TotalFor(ctx context.Context, memberID int64) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM stars_ledger WHERE member_id = ?`, memberID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum ledger: %w", translate(err))
	}
	return total, nil
}

// ListByMember returns the newest entries first. limit <= 0 means no limit.
func (s *LedgerStore) ListByMember(ctx context.Context, memberID int64, limit int) ([]model.StarsLedgerEntry, error) {
	query := `SELECT ` + ledgerCols + ` FROM stars_ledger WHERE member_id = ? ORDER BY id DESC`
	args := []any{memberID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", translate(err))
	}
	defer rows.Close()

	var entries []model.StarsLedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// AwardFor returns the positive award entry for a task instance, or nil.
func (s *LedgerStore) AwardFor(ctx context.Context, instanceID int64) (*model.StarsLedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ledgerCols+` FROM stars_ledger WHERE task_instance_id = ? AND delta > 0`, instanceID,
	)
	e, err := scanLedgerEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get award: %w", translate(err))
	}
	return e, nil
}

// Balances returns the earned, spent and total stars of every active member
// of a family, highest total first.
func (s *LedgerStore) Balances(ctx context.Context, familyID int64) ([]model.StarBalance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.name,
		        COALESCE(SUM(CASE WHEN l.delta > 0 THEN l.delta ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN l.delta < 0 THEN -l.delta ELSE 0 END), 0),
		        COALESCE(SUM(l.delta), 0) AS total
		 FROM members m
		 LEFT JOIN stars_ledger l ON l.member_id = m.id
		 WHERE m.family_id = ? AND m.removed_at IS NULL
		 GROUP BY m.id, m.name
		 ORDER BY total DESC, m.name ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", translate(err))
	}
	defer rows.Close()

	var balances []model.StarBalance
	for rows.Next() {
		var b model.StarBalance
		if err := rows.Scan(&b.MemberID, &b.MemberName, &b.Earned, &b.Spent, &b.Total); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}
