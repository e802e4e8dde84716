package auth

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cbt-exam/cbtexam/internal/rbac"
	"github.com/cbt-exam/cbtexam/internal/users"
)

// UserLookup finds the current record of a token subject.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (users.User, error)
}

// AttachRoleFromDB replaces the token's role with the stored one so role changes apply
// before the token expires. Tokens of deleted users are rejected.
func AttachRoleFromDB(lookup UserLookup, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			u, err := lookup.GetByID(ctx, SubjectFromContext(ctx))
			switch {
			case errors.Is(err, users.ErrNotFound):
				http.Error(w, "unknown user", http.StatusUnauthorized)
				return
			case err != nil:
				log.Error("role lookup failed", zap.Error(err))
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, u.Role)))
		})
	}
}
