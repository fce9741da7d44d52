package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/comigor/gustavo-go/internal/logger"
	"github.com/comigor/gustavo-go/pkg/metrics"
)

const correlationHeader = "X-Correlation-ID"

// logging attaches a correlation id to the request logger and records request metrics.
func logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		correlationID := r.Header.Get(correlationHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		w.Header().Set(correlationHeader, correlationID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := logger.WithCorrelationID(r.Context(), correlationID)
		r = r.WithContext(ctx)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)

		// route pattern keeps label cardinality bounded
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		logger.From(ctx).Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", duration,
			"request_id", middleware.GetReqID(ctx),
			"remote_addr", r.RemoteAddr,
		)
		metrics.RecordRequest(r.Method, path, http.StatusText(status), duration.Seconds())
	})
}

// adminOnly guards operator endpoints with the shared secret sent as x-admin-secret or a bearer token.
func adminOnly(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeError(w, http.StatusServiceUnavailable, "Área administrativa desabilitada.")
				return
			}
			given := r.Header.Get("x-admin-secret")
			if given == "" {
				given = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
				writeError(w, http.StatusUnauthorized, "Não autorizado.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit bounds requests per client IP. A non-positive limit disables it.
func rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "Muitas requisições. Tente novamente em instantes.")
		}),
	)
}
