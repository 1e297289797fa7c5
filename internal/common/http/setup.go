package http

import (
	"net/http"

	"github.com/AlibekovAA/safecheck/internal/common/constants"
	"github.com/AlibekovAA/safecheck/internal/common/httpmetrics"
	"github.com/AlibekovAA/safecheck/internal/common/logger"
)

type Middleware func(http.Handler) http.Handler

// Chain applies mws so that the first one is outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// BuildBaseHandler wraps handler with the middleware every request passes
// through, outermost first: security headers, panic recovery, trace id, body
// limit, request metrics.
func BuildBaseHandler(appName string, log *logger.Logger, handler http.Handler) http.Handler {
	return Chain(handler,
		SecurityHeadersMiddleware,
		RecoveryMiddleware(log),
		TraceIDMiddleware,
		MaxRequestSizeMiddleware(constants.DefaultMaxRequestSize),
		httpmetrics.New(appName).Wrap,
	)
}
