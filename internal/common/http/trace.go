package http

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/AlibekovAA/safecheck/internal/common/logger"
)

const traceIDHeader = "X-Trace-ID"

var traceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// TraceIDMiddleware propagates a caller-supplied X-Trace-ID when it is well
// formed and mints a fresh one otherwise. The id is echoed on the response
// and carried on the request context for logging and error envelopes.
func TraceIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceIDHeader)
		if !traceIDPattern.MatchString(traceID) {
			traceID = uuid.NewString()
		}

		w.Header().Set(traceIDHeader, traceID)
		next.ServeHTTP(w, r.WithContext(logger.WithTraceID(r.Context(), traceID)))
	})
}
