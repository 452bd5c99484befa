package middleware

import (
	"net/http"

	"github.com/brickapparel/storefront-backend/api/responses"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/logger"
)

// RequireMoneyRole gates capture and refund to roles allowed to move money.
func RequireMoneyRole(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !AdminRoleFromContext(r.Context()).CanMoveMoney() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role may not move money"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
