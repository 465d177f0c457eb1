package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorestars/internal/model"
)

type TemplateStore struct {
	db DBTX
}

func scanTemplate(scanner interface{ Scan(...any) error }) (*model.TaskTemplate, error) {
	var t model.TaskTemplate
	var window sql.NullInt64

	err := scanner.Scan(
		&t.ID, &t.FamilyID, &t.Title, &t.Description, &t.Category, &t.Stars,
		&t.Schedule, &window, &t.Enabled, &t.Archived, &t.CreatedBy,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if window.Valid {
		w := int(window.Int64)
		t.TimeWindowMinutes = &w
	}
	return &t, nil
}

const templateCols = `id, family_id, title, description, category, stars, schedule, time_window_minutes, enabled, archived, created_by, created_at, updated_at`

func windowArg(w *int) sql.NullInt64 {
	if w == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*w), Valid: true}
}

func (s *TemplateStore) Create(ctx context.Context, familyID, createdBy int64, in model.TemplateInput) (*model.TaskTemplate, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO task_templates (family_id, title, description, category, stars, schedule, time_window_minutes, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		familyID, in.Title, in.Description, in.Category, in.Stars, in.Schedule, windowArg(in.TimeWindowMinutes), createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", translate(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *TemplateStore) GetByID(ctx context.Context, id int64) (*model.TaskTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateCols+` FROM task_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", translate(err))
	}
	return t, nil
}

func (s *TemplateStore) list(ctx context.Context, where string, args ...any) ([]model.TaskTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateCols+` FROM task_templates WHERE `+where+` ORDER BY category ASC, title ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", translate(err))
	}
	defer rows.Close()

	var templates []model.TaskTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// ListByFamily returns the family's templates. Archived templates are only
// included on request; they never appear on assignment surfaces.
func (s *TemplateStore) ListByFamily(ctx context.Context, familyID int64, includeArchived bool) ([]model.TaskTemplate, error) {
	if includeArchived {
		return s.list(ctx, `family_id = ?`, familyID)
	}
	return s.list(ctx, `family_id = ? AND archived = 0`, familyID)
}

// ListAssignable returns enabled, non-archived templates of a family.
func (s *TemplateStore) ListAssignable(ctx context.Context, familyID int64) ([]model.TaskTemplate, error) {
	return s.list(ctx, `family_id = ? AND enabled = 1 AND archived = 0`, familyID)
}

// ListRecurring returns every assignable recurring_daily template.
func (s *TemplateStore) ListRecurring(ctx context.Context) ([]model.TaskTemplate, error) {
	return s.list(ctx, `schedule = ? AND enabled = 1 AND archived = 0`, model.ScheduleRecurringDaily)
}

func (s *TemplateStore) Update(ctx context.Context, id int64, in model.TemplateInput, at time.Time) (*model.TaskTemplate, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE task_templates
		 SET title = ?, description = ?, category = ?, stars = ?, schedule = ?, time_window_minutes = ?, updated_at = ?
		 WHERE id = ?`,
		in.Title, in.Description, in.Category, in.Stars, in.Schedule, windowArg(in.TimeWindowMinutes), at.UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update template: %w", translate(err))
	}
	return s.GetByID(ctx, id)
}

func (s *TemplateStore) SetEnabled(ctx context.Context, id int64, enabled bool, at time.Time) (*model.TaskTemplate, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE task_templates SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, at.UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("set template enabled: %w", translate(err))
	}
	return s.GetByID(ctx, id)
}

func (s *TemplateStore) Archive(ctx context.Context, id int64, at time.Time) (*model.TaskTemplate, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE task_templates SET archived = 1, updated_at = ? WHERE id = ? AND archived = 0`,
		at.UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("archive template: %w", translate(err))
	}
	return s.GetByID(ctx, id)
}
