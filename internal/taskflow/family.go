package taskflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/chorestars/internal/model"
	"github.com/dukerupert/chorestars/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPINLength = 4
	maxPINLength = 8
)

// CreateFamily creates a family together with its first guardian.
func (e *Engine) CreateFamily(ctx context.Context, familyName, guardianName string) (*model.Family, *model.Member, error) {
	ctx, end := e.begin(ctx, "taskflow.create_family")
	defer end()

	familyName = strings.TrimSpace(familyName)
	guardianName = strings.TrimSpace(guardianName)
	if familyName == "" || guardianName == "" {
		return nil, nil, model.Validationf("family and guardian names are required")
	}

	var family *model.Family
	var guardian *model.Member
	err := e.repo.InTx(ctx, func(tx *store.Repository) error {
		var err error
		if family, err = tx.Families.Create(ctx, familyName); err != nil {
			return err
		}
		guardian, err = tx.Members.Create(ctx, family.ID, guardianName, model.RoleGuardian)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create family: %w", err)
	}

	e.logger.Info("family created", "family_id", family.ID, "guardian_id", guardian.ID)
	return family, guardian, nil
}

// AddMember adds a member to the acting guardian's family.
func (e *Engine) AddMember(ctx context.Context, actorID int64, name string, role model.Role) (*model.Member, error) {
	ctx, end := e.begin(ctx, "taskflow.add_member", attribute.Int64("actor.id", actorID))
	defer end()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.Validationf("name is required")
	}
	if !role.Valid() {
		return nil, model.Validationf("invalid role %q", role)
	}

	actor, err := e.self(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsGuardian() {
		return nil, fmt.Errorf("add member: %w", model.ErrForbidden)
	}

	m, err := e.repo.Members.Create(ctx, actor.FamilyID, name, role)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	e.logger.Info("member added", "family_id", m.FamilyID, "member_id", m.ID, "role", m.Role)
	return m, nil
}

// RemoveMember soft-removes a member. The family's last guardian cannot be
// removed.
func (e *Engine) RemoveMember(ctx context.Context, actorID, memberID int64) error {
	ctx, end := e.begin(ctx, "taskflow.remove_member", attribute.Int64("member.id", memberID))
	defer end()

	m, err := e.repo.Members.GetByID(ctx, memberID)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("member %d: %w", memberID, model.ErrNotFound)
	}
	if _, err := e.guardian(ctx, e.repo, actorID, m.FamilyID); err != nil {
		return err
	}
	if !m.Active() {
		return nil
	}

	if m.IsGuardian() {
		n, err := e.repo.Members.CountGuardians(ctx, m.FamilyID)
		if err != nil {
			return err
		}
		if n <= 1 {
			return model.Validationf("cannot remove the last guardian")
		}
	}

	if err := e.repo.Members.Remove(ctx, memberID, e.Now()); err != nil {
		return err
	}
	e.logger.Info("member removed", "family_id", m.FamilyID, "member_id", memberID, "by", actorID)
	return nil
}

// SetPIN stores a bcrypt hash of pin. Members may set their own PIN;
// guardians may set anyone's in their family.
func (e *Engine) SetPIN(ctx context.Context, actorID, memberID int64, pin string) error {
	ctx, end := e.begin(ctx, "taskflow.set_pin", attribute.Int64("member.id", memberID))
	defer end()

	if err := validatePIN(pin); err != nil {
		return err
	}

	m, err := e.repo.Members.GetByID(ctx, memberID)
	if err != nil {
		return err
	}
	if m == nil || !m.Active() {
		return fmt.Errorf("member %d: %w", memberID, model.ErrNotFound)
	}
	if actorID != memberID {
		if _, err := e.guardian(ctx, e.repo, actorID, m.FamilyID); err != nil {
			return err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	return e.repo.Members.SetPIN(ctx, memberID, string(hash))
}

// Authenticate resolves a member for a request. Members with a PIN must
// present it.
func (e *Engine) Authenticate(ctx context.Context, memberID int64, pin string) (*model.Member, error) {
	ctx, end := e.begin(ctx, "taskflow.authenticate")
	defer end()

	m, err := store.Read(ctx, e.opts.ReadRetries, func(ctx context.Context) (*model.Member, error) {
		return e.repo.Members.GetByID(ctx, memberID)
	})
	if err != nil {
		return nil, err
	}
	if m == nil || !m.Active() {
		return nil, fmt.Errorf("unknown member: %w", model.ErrForbidden)
	}
	if !m.HasPIN {
		return m, nil
	}

	hash, err := e.repo.Members.GetPINHash(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, fmt.Errorf("wrong pin: %w", model.ErrForbidden)
		}
		return nil, fmt.Errorf("compare pin: %w", err)
	}
	return m, nil
}

func (e *Engine) ListMembers(ctx context.Context, familyID int64) ([]model.Member, error) {
	ctx, end := e.begin(ctx, "taskflow.list_members")
	defer end()

	return store.Read(ctx, e.opts.ReadRetries, func(ctx context.Context) ([]model.Member, error) {
		return e.repo.Members.ListByFamily(ctx, familyID, false)
	})
}

func validatePIN(pin string) error {
	if len(pin) < minPINLength || len(pin) > maxPINLength {
		return model.Validationf("pin must be %d to %d digits", minPINLength, maxPINLength)
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return model.Validationf("pin must be digits only")
		}
	}
	return nil
}
