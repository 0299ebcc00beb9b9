package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
)

// AdminTokenHeader carries the operator secret for admin endpoints.
const AdminTokenHeader = "X-Admin-Token"

// AdminToken guards operator endpoints with a shared secret. Anonymous
// access tokens are not enough: anyone can mint one. An empty token
// disables the endpoints.
func AdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(AdminTokenHeader)
			if token == "" || presented == "" ||
				subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				problem := models.NewForbidden(GetRequestID(r.Context()), "admin token required")
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
