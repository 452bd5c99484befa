package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/brickapparel/storefront-backend/api/responses"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/logger"
)

const maxCartSessionLength = 128

// CartSession resolves the guest cart token from X-Cart-Session. A missing
// token is minted and echoed back when mint is true; otherwise the request
// is rejected.
func CartSession(mint bool, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(CartSessionHeader))
			if len(token) > maxCartSessionLength {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "cart session token too long"))
				return
			}
			if token == "" {
				if !mint {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, CartSessionHeader+" header required"))
					return
				}
				token = uuid.NewString()
			}
			w.Header().Set(CartSessionHeader, token)
			next.ServeHTTP(w, r.WithContext(WithCartSession(r.Context(), token)))
		})
	}
}
