package middleware

import (
	"mime"
	"net/http"
	"slices"
	"strings"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
)

// ContentTypeJSON sets the Content-Type header to application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only set if not already set (allows handlers to override)
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON checks that POST, PUT and PATCH bodies are application/json.
func RequireJSON(next http.Handler) http.Handler {
	return RequireContentType("application/json")(next)
}

// RequireContentType rejects POST, PUT and PATCH requests whose media type
// is not one of allowed with 415. A missing Content-Type is accepted.
func RequireContentType(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
			default:
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Content-Type")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			mediaType, _, err := mime.ParseMediaType(header)
			if err != nil || !slices.Contains(allowed, mediaType) {
				problem := models.NewProblem(models.ProblemTypeUnsupportedMedia, "Unsupported Media Type",
					http.StatusUnsupportedMediaType, GetRequestID(r.Context()))
				problem.Detail = "Content-Type must be one of " + strings.Join(allowed, ", ")
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
