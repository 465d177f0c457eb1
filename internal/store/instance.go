package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/chorestars/internal/model"
)

type InstanceStore struct {
	db DBTX
}

func scanInstance(scanner interface{ Scan(...any) error }, extra ...any) (*model.TaskInstance, error) {
	var i model.TaskInstance
	var expiresAt, requestedAt, completedAt sql.NullTime
	var requestedBy, clearedBy sql.NullInt64

	dest := []any{
		&i.ID, &i.TemplateID, &i.FamilyID, &i.AssigneeID, &i.AssignedBy, &i.Status,
		&i.DueAt, &expiresAt, &requestedBy, &requestedAt, &completedAt, &clearedBy,
		&i.CreatedAt, &i.UpdatedAt,
	}
	if err := scanner.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	i.ExpiresAt = timePtr(expiresAt)
	i.RequestedBy = intPtr(requestedBy)
	i.RequestedAt = timePtr(requestedAt)
	i.CompletedAt = timePtr(completedAt)
	i.ClearedBy = intPtr(clearedBy)
	return &i, nil
}

const instanceCols = `id, template_id, family_id, assignee_id, assigned_by, status, due_at, expires_at, requested_by, requested_at, completed_at, cleared_by, created_at, updated_at`

// Create inserts a new instance. A non-empty recurrenceDay claims the
// (template, assignee, day) slot; a second claim fails with
// model.ErrDuplicateInstance.
func (s *InstanceStore) Create(ctx context.Context, inst model.TaskInstance, recurrenceDay string) (*model.TaskInstance, error) {
	var day sql.NullString
	if recurrenceDay != "" {
		day = sql.NullString{String: recurrenceDay, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO task_instances (template_id, family_id, assignee_id, assigned_by, status, due_at, expires_at, recurrence_day)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.TemplateID, inst.FamilyID, inst.AssigneeID, inst.AssignedBy, model.StatusOpen,
		inst.DueAt.UTC(), nullTime(inst.ExpiresAt), day,
	)
	if isUniqueViolation(err) {
		return nil, model.ErrDuplicateInstance
	}
	if err != nil {
		return nil, fmt.Errorf("insert instance: %w", translate(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *InstanceStore) GetByID(ctx context.Context, id int64) (*model.TaskInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+instanceCols+` FROM task_instances WHERE id = ?`, id)
	i, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", translate(err))
	}
	return i, nil
}

// Transition writes next over the row only if the row is still in status
// from. A lost race returns ErrStaleStatus and leaves the row untouched.
func (s *InstanceStore) Transition(ctx context.Context, from model.InstanceStatus, next model.TaskInstance) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE task_instances
		 SET status = ?, requested_by = ?, requested_at = ?, completed_at = ?, cleared_by = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		next.Status, nullInt(next.RequestedBy), nullTime(next.RequestedAt), nullTime(next.CompletedAt),
		nullInt(next.ClearedBy), next.UpdatedAt.UTC(), next.ID, from,
	)
	if err != nil {
		return fmt.Errorf("transition instance: %w", translate(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrStaleStatus
	}
	return nil
}

// List returns instances joined with their template's title and stars.
func (s *InstanceStore) List(ctx context.Context, f model.InstanceFilter) ([]model.InstanceView, error) {
	var where []string
	var args []any

	if f.FamilyID != 0 {
		where = append(where, "i.family_id = ?")
		args = append(args, f.FamilyID)
	}
	if f.AssigneeID != 0 {
		where = append(where, "i.assignee_id = ?")
		args = append(args, f.AssigneeID)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for n, st := range f.Statuses {
			marks[n] = "?"
			args = append(args, st)
		}
		where = append(where, "i.status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.DueFrom != nil {
		where = append(where, "i.due_at >= ?")
		args = append(args, f.DueFrom.UTC())
	}
	if f.DueTo != nil {
		where = append(where, "i.due_at < ?")
		args = append(args, f.DueTo.UTC())
	}

	query := `SELECT ` + prefixed("i.", instanceCols) + `, t.title, t.stars
		FROM task_instances i JOIN task_templates t ON t.id = i.template_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY i.due_at ASC, i.id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", translate(err))
	}
	defer rows.Close()

	var views []model.InstanceView
	for rows.Next() {
		var v model.InstanceView
		i, err := scanInstance(rows, &v.TemplateTitle, &v.Stars)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		v.TaskInstance = *i
		views = append(views, v)
	}
	return views, rows.Err()
}

// ListExpirable returns unresolved instances that carry an expiry deadline.
// Callers decide which deadlines have passed.
func (s *InstanceStore) ListExpirable(ctx context.Context) ([]model.TaskInstance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+instanceCols+` FROM task_instances
		 WHERE status IN (?, ?) AND expires_at IS NOT NULL
		 ORDER BY id ASC`,
		model.StatusOpen, model.StatusPendingApproval,
	)
	if err != nil {
		return nil, fmt.Errorf("list expirable instances: %w", translate(err))
	}
	defer rows.Close()

	var instances []model.TaskInstance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		instances = append(instances, *i)
	}
	return instances, rows.Err()
}

// Assignment is a standing (assignee, assigner) pair for a template.
type Assignment struct {
	AssigneeID int64
	AssignedBy int64
}

// ListAssignments returns, per active assignee that ever held an instance of
// the template, the assigner of their most recent instance.
func (s *InstanceStore) ListAssignments(ctx context.Context, templateID int64) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.assignee_id, i.assigned_by
		 FROM task_instances i
		 JOIN members m ON m.id = i.assignee_id AND m.removed_at IS NULL
		 WHERE i.template_id = ?
		   AND i.id = (SELECT MAX(id) FROM task_instances WHERE template_id = i.template_id AND assignee_id = i.assignee_id)
		 ORDER BY i.assignee_id ASC`,
		templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", translate(err))
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.AssigneeID, &a.AssignedBy); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func prefixed(prefix, cols string) string {
	parts := strings.Split(cols, ", ")
	for n := range parts {
		parts[n] = prefix + parts[n]
	}
	return strings.Join(parts, ", ")
}
