package middleware

import (
	"net/http"
	"strings"

	"github.com/brickapparel/storefront-backend/api/responses"
	pkgAuth "github.com/brickapparel/storefront-backend/pkg/auth"
	"github.com/brickapparel/storefront-backend/pkg/config"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/logger"
)

// AdminAuth validates the admin bearer token and seeds the request context
// with the admin id and role.
func AdminAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAdminToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			adminID := claims.AdminID.String()
			ctx := WithAdmin(r.Context(), adminID, claims.Role)
			if logg != nil {
				ctx = logg.WithAdminID(ctx, adminID)
				ctx = logg.WithField(ctx, "admin_role", string(claims.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) string {
	token := strings.TrimSpace(header)
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
