package taskflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukerupert/chorestars/internal/model"
	"github.com/dukerupert/chorestars/internal/store"
	"go.opentelemetry.io/otel/attribute"
)

func validateTemplate(in *model.TemplateInput) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return model.Validationf("title is required")
	}
	if !in.Category.Valid() {
		return model.Validationf("invalid category %q", in.Category)
	}
	if in.Stars <= 0 {
		return model.Validationf("stars must be positive")
	}
	if !in.Schedule.Valid() {
		return model.Validationf("invalid schedule %q", in.Schedule)
	}
	if in.Schedule == model.ScheduleTimeSensitive {
		if in.TimeWindowMinutes == nil || *in.TimeWindowMinutes <= 0 {
			return model.Validationf("time_sensitive templates need a positive time window")
		}
	} else if in.TimeWindowMinutes != nil {
		return model.Validationf("time window is only allowed for time_sensitive templates")
	}
	return nil
}

func (e *Engine) CreateTemplate(ctx context.Context, actorID int64, in model.TemplateInput) (*model.TaskTemplate, error) {
	ctx, end := e.begin(ctx, "taskflow.create_template", attribute.Int64("actor.id", actorID))
	defer end()

	if err := validateTemplate(&in); err != nil {
		return nil, err
	}
	actor, err := e.self(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsGuardian() {
		return nil, fmt.Errorf("create template: %w", model.ErrForbidden)
	}

	t, err := e.repo.Templates.Create(ctx, actor.FamilyID, actor.ID, in)
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	e.logger.Info("template created", "template_id", t.ID, "title", t.Title, "schedule", t.Schedule)
	return t, nil
}

// UpdateTemplate edits a template. Archived templates are frozen.
func (e *Engine) UpdateTemplate(ctx context.Context, actorID, id int64, in model.TemplateInput) (*model.TaskTemplate, error) {
	ctx, end := e.begin(ctx, "taskflow.update_template", attribute.Int64("template.id", id))
	defer end()

	if err := validateTemplate(&in); err != nil {
		return nil, err
	}
	t, err := e.template(ctx, e.repo, id)
	if err != nil {
		return nil, err
	}
	if _, err := e.guardian(ctx, e.repo, actorID, t.FamilyID); err != nil {
		return nil, err
	}
	if t.Archived {
		return nil, fmt.Errorf("update archived template %d: %w", id, model.ErrInvalidState)
	}

	return e.repo.Templates.Update(ctx, id, in, e.Now())
}

// SetTemplateEnabled toggles visibility. Any family member may do this.
func (e *Engine) SetTemplateEnabled(ctx context.Context, actorID, id int64, enabled bool) (*model.TaskTemplate, error) {
	ctx, end := e.begin(ctx, "taskflow.set_template_enabled", attribute.Int64("template.id", id))
	defer end()

	t, err := e.template(ctx, e.repo, id)
	if err != nil {
		return nil, err
	}
	if _, err := e.actor(ctx, e.repo, actorID, t.FamilyID); err != nil {
		return nil, err
	}
	return e.repo.Templates.SetEnabled(ctx, id, enabled, e.Now())
}

// ArchiveTemplate retires a template. Archiving twice is a no-op.
func (e *Engine) ArchiveTemplate(ctx context.Context, actorID, id int64) (*model.TaskTemplate, error) {
	ctx, end := e.begin(ctx, "taskflow.archive_template", attribute.Int64("template.id", id))
	defer end()

	t, err := e.template(ctx, e.repo, id)
	if err != nil {
		return nil, err
	}
	if _, err := e.guardian(ctx, e.repo, actorID, t.FamilyID); err != nil {
		return nil, err
	}
	if t.Archived {
		return t, nil
	}
	return e.repo.Templates.Archive(ctx, id, e.Now())
}

func (e *Engine) ListTemplates(ctx context.Context, familyID int64, includeArchived bool) ([]model.TaskTemplate, error) {
	ctx, end := e.begin(ctx, "taskflow.list_templates")
	defer end()

	return store.Read(ctx, e.opts.ReadRetries, func(ctx context.Context) ([]model.TaskTemplate, error) {
		return e.repo.Templates.ListByFamily(ctx, familyID, includeArchived)
	})
}
