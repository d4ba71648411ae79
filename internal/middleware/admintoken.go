package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/tss-ch/mas004-databridge/internal/model"
)

// AdminToken gates the admin/operator endpoints behind the configured UI
// token, compared via X-Token. An empty token disables the check, which is
// only appropriate for local/dev use.
func AdminToken(token string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got := r.Header.Get("X-Token")
				if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
					model.NewUnauthorizedError("invalid or missing X-Token").WriteJSON(w)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
