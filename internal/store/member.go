package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorestars/internal/model"
)

type MemberStore struct {
	db DBTX
}

func scanMember(scanner interface{ Scan(...any) error }) (*model.Member, error) {
	var m model.Member
	var removedAt sql.NullTime
	err := scanner.Scan(&m.ID, &m.FamilyID, &m.Name, &m.Role, &m.HasPIN, &removedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.RemovedAt = timePtr(removedAt)
	return &m, nil
}

const memberCols = `id, family_id, name, role, pin IS NOT NULL, removed_at, created_at, updated_at`

func (s *MemberStore) Create(ctx context.Context, familyID int64, name string, role model.Role) (*model.Member, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO members (family_id, name, role) VALUES (?, ?, ?)`,
		familyID, name, role,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", translate(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns the member including soft-removed ones, or nil if the id
// was never issued.
func (s *MemberStore) GetByID(ctx context.Context, id int64) (*model.Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberCols+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", translate(err))
	}
	return m, nil
}

func (s *MemberStore) ListByFamily(ctx context.Context, familyID int64, includeRemoved bool) ([]model.Member, error) {
	query := `SELECT ` + memberCols + ` FROM members WHERE family_id = ?`
	if !includeRemoved {
		query += ` AND removed_at IS NULL`
	}
	query += ` ORDER BY role ASC, name ASC`

	rows, err := s.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", translate(err))
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// CountGuardians counts the family's guardians that have not been removed.
func (s *MemberStore) CountGuardians(ctx context.Context, familyID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM members WHERE family_id = ? AND role = ? AND removed_at IS NULL`,
		familyID, model.RoleGuardian,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count guardians: %w", translate(err))
	}
	return n, nil
}

// Remove soft-deletes a member. Removing twice keeps the first timestamp.
func (s *MemberStore) Remove(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE members SET removed_at = ?, updated_at = ? WHERE id = ? AND removed_at IS NULL`,
		at.UTC(), at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", translate(err))
	}
	return nil
}

func (s *MemberStore) SetPIN(ctx context.Context, id int64, hashedPIN string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE members SET pin = ? WHERE id = ?`, hashedPIN, id)
	if err != nil {
		return fmt.Errorf("set pin: %w", translate(err))
	}
	return nil
}

// GetPINHash returns the stored bcrypt hash, or "" if no PIN is set.
func (s *MemberStore) GetPINHash(ctx context.Context, id int64) (string, error) {
	var pin sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT pin FROM members WHERE id = ?`, id).Scan(&pin)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get pin: %w", translate(err))
	}
	return pin.String, nil
}
