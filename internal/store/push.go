package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/chorestars/internal/model"
)

type PushStore struct {
	db DBTX
}

const pushCols = `id, member_id, family_id, endpoint, p256dh_key, auth_key, device_name, created_at`

// CreateSubscription upserts by endpoint so re-subscribing a device
// refreshes its keys instead of duplicating it.
func (s *PushStore) CreateSubscription(ctx context.Context, sub model.PushSubscription) (*model.PushSubscription, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (member_id, family_id, endpoint, p256dh_key, auth_key, device_name)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET member_id = excluded.member_id, family_id = excluded.family_id,
		   p256dh_key = excluded.p256dh_key, auth_key = excluded.auth_key, device_name = excluded.device_name`,
		sub.MemberID, sub.FamilyID, sub.Endpoint, sub.P256dhKey, sub.AuthKey, sub.DeviceName,
	)
	if err != nil {
		return nil, fmt.Errorf("create push subscription: %w", translate(err))
	}
	return s.getByEndpoint(ctx, sub.Endpoint)
}

func (s *PushStore) getByEndpoint(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.QueryRowContext(ctx,
		`SELECT `+pushCols+` FROM push_subscriptions WHERE endpoint = ?`, endpoint,
	).Scan(&sub.ID, &sub.MemberID, &sub.FamilyID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get push subscription by endpoint: %w", translate(err))
	}
	return &sub, nil
}

// ListByMembers returns the subscriptions of the given members.
func (s *PushStore) ListByMembers(ctx context.Context, memberIDs []int64) ([]model.PushSubscription, error) {
	if len(memberIDs) == 0 {
		return nil, nil
	}
	marks := make([]string, len(memberIDs))
	args := make([]any, len(memberIDs))
	for n, id := range memberIDs {
		marks[n] = "?"
		args[n] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pushCols+` FROM push_subscriptions WHERE member_id IN (`+strings.Join(marks, ", ")+`) ORDER BY id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", translate(err))
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (s *PushStore) ListByFamily(ctx context.Context, familyID int64) ([]model.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pushCols+` FROM push_subscriptions WHERE family_id = ? ORDER BY id ASC`, familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions by family: %w", translate(err))
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (s *PushStore) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription by endpoint: %w", translate(err))
	}
	return nil
}

func scanSubscriptions(rows *sql.Rows) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	for rows.Next() {
		var sub model.PushSubscription
		if err := rows.Scan(&sub.ID, &sub.MemberID, &sub.FamilyID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
