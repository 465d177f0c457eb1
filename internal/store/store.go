package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/chorestars/internal/database"
	"github.com/dukerupert/chorestars/internal/model"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so every store can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrStaleStatus is returned by compare-and-swap updates whose expected
// status no longer matches the row.
var ErrStaleStatus = fmt.Errorf("%w: status changed, please refresh", model.ErrInvalidState)

// Repository bundles the stores that share one database handle.
type Repository struct {
	db        *sql.DB
	Families  *FamilyStore
	Members   *MemberStore
	Templates *TemplateStore
	Instances *InstanceStore
	Ledger    *LedgerStore
	Approvals *ApprovalStore
	Rewards   *RewardStore
	Push      *PushStore
}

func NewRepository(db *sql.DB) *Repository {
	r := bind(db)
	r.db = db
	return r
}

func bind(q DBTX) *Repository {
	return &Repository{
		Families:  &FamilyStore{db: q},
		Members:   &MemberStore{db: q},
		Templates: &TemplateStore{db: q},
		Instances: &InstanceStore{db: q},
		Ledger:    &LedgerStore{db: q},
		Approvals: &ApprovalStore{db: q},
		Rewards:   &RewardStore{db: q},
		Push:      &PushStore{db: q},
	}
}

// InTx runs fn with a Repository bound to a single transaction.
func (r *Repository) InTx(ctx context.Context, fn func(tx *Repository) error) error {
	return database.InTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(bind(tx))
	})
}

// translate maps driver failures onto the model error taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", model.ErrTransient, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", model.ErrTransient, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}
