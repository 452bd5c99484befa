package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

const CartSessionHeader = "X-Cart-Session"

var fallbackCORSOrigins = []string{"http://localhost:3000"}

// CORS applies the storefront origin policy. The cart session header is both
// accepted and exposed so browsers can persist a newly minted token.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = fallbackCORSOrigins
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", CartSessionHeader, "X-Requested-With"},
		ExposedHeaders:   []string{CartSessionHeader, requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
