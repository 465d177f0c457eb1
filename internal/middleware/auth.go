package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/chorestars/internal/auth"
	"github.com/dukerupert/chorestars/internal/model"
)

const (
	memberHeader = "X-Member-ID"
	pinHeader    = "X-Member-PIN"
)

// Authenticator resolves a member from the credentials a device presents.
type Authenticator interface {
	Authenticate(ctx context.Context, memberID int64, pin string) (*model.Member, error)
}

// credentials reads the member id and PIN from headers. Browsers cannot set
// headers on a websocket upgrade, so the member and pin query parameters
// are accepted as a fallback.
func credentials(r *http.Request) (string, string) {
	if v := r.Header.Get(memberHeader); v != "" {
		return v, r.Header.Get(pinHeader)
	}
	q := r.URL.Query()
	return q.Get("member"), q.Get("pin")
}

// Identify resolves X-Member-ID (and X-Member-PIN for members with a PIN)
// into an auth.Identity on the request context.
func Identify(a Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawID, pin := credentials(r)
			id, err := strconv.ParseInt(rawID, 10, 64)
			if err != nil || id <= 0 {
				writeError(w, http.StatusUnauthorized, "missing or invalid "+memberHeader)
				return
			}

			m, err := a.Authenticate(r.Context(), id, pin)
			if err != nil {
				if errors.Is(err, model.ErrForbidden) {
					writeError(w, http.StatusUnauthorized, "unknown member or wrong pin")
					return
				}
				logger.Error("authenticate member", "member_id", id, "error", err)
				writeError(w, http.StatusServiceUnavailable, "please try again")
				return
			}

			ctx := auth.WithIdentity(r.Context(), auth.FromMember(*m))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireGuardian rejects identified callers who are not guardians.
func RequireGuardian(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsGuardian(r.Context()) {
			writeError(w, http.StatusForbidden, "guardians only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":` + strconv.Quote(msg) + `}`))
}
