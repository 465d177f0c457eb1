// Package auth carries the identity of the acting family member through a
// request context.
package auth

import (
	"context"

	"github.com/dukerupert/chorestars/internal/model"
)

type contextKey struct{}

type Identity struct {
	MemberID int64
	FamilyID int64
	Role     model.Role
}

func (id Identity) IsGuardian() bool {
	return id.Role == model.RoleGuardian
}

func FromMember(m model.Member) Identity {
	return Identity{MemberID: m.ID, FamilyID: m.FamilyID, Role: m.Role}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

func FamilyID(ctx context.Context) int64 {
	id, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return id.FamilyID
}

func MemberID(ctx context.Context) int64 {
	id, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return id.MemberID
}

func IsGuardian(ctx context.Context) bool {
	id, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return id.IsGuardian()
}
