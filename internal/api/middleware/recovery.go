package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
)

// Recovery returns a middleware that turns handler panics into a 500
// problem. http.ErrAbortHandler is re-panicked so net/http can abort the
// connection.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				logger := &log
				if ctxLog := zerolog.Ctx(r.Context()); ctxLog.GetLevel() != zerolog.Disabled {
					logger = ctxLog
				}
				requestID := GetRequestID(r.Context())
				logger.Error().
					Str("request_id", requestID).
					Str("panic", fmt.Sprint(rec)).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				problem := models.NewInternalError(requestID, "an unexpected error occurred")
				problem.Instance = r.URL.Path
				problem.Write(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
