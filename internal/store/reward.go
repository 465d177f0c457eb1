package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorestars/internal/model"
)

type RewardStore struct {
	db DBTX
}

func scanReward(scanner interface{ Scan(...any) error }) (*model.Reward, error) {
	var r model.Reward
	var redeemedBy sql.NullInt64
	var redeemedAt sql.NullTime

	err := scanner.Scan(&r.ID, &r.FamilyID, &r.Title, &r.Description, &r.Cost, &r.Status, &redeemedBy, &redeemedAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.RedeemedBy = intPtr(redeemedBy)
	r.RedeemedAt = timePtr(redeemedAt)
	return &r, nil
}

const rewardCols = `id, family_id, title, description, cost, status, redeemed_by, redeemed_at, created_at`

func (s *RewardStore) Create(ctx context.Context, familyID int64, title, description string, cost int) (*model.Reward, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO rewards (family_id, title, description, cost) VALUES (?, ?, ?, ?)`,
		familyID, title, description, cost,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", translate(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RewardStore) GetByID(ctx context.Context, id int64) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", translate(err))
	}
	return r, nil
}

// ListByFamily returns active rewards first, then redeemed ones.
func (s *RewardStore) ListByFamily(ctx context.Context, familyID int64, includeRedeemed bool) ([]model.Reward, error) {
	query := `SELECT ` + rewardCols + ` FROM rewards WHERE family_id = ?`
	args := []any{familyID}
	if !includeRedeemed {
		query += ` AND status = ?`
		args = append(args, model.RewardActive)
	}
	query += ` ORDER BY status ASC, cost ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", translate(err))
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

// MarkRedeemed flips an active reward to redeemed. A reward that is already
// redeemed yields ErrStaleStatus.
func (s *RewardStore) MarkRedeemed(ctx context.Context, id, memberID int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE rewards SET status = ?, redeemed_by = ?, redeemed_at = ? WHERE id = ? AND status = ?`,
		model.RewardRedeemed, memberID, at.UTC(), id, model.RewardActive,
	)
	if err != nil {
		return fmt.Errorf("redeem reward: %w", translate(err))
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
