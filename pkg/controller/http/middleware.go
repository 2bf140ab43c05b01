package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
)

const (
	// InternalAPIHeader carries the JWT signed by the Git server
	InternalAPIHeader = "Gitlab-Shell-Api-Request"
	// InternalAPIIssuer is the expected iss claim of the JWT
	InternalAPIIssuer = "gitlab-shell"

	internalAPISkew = 30 * time.Second
)

// LoggingMiddleware returns a middleware that logs HTTP requests
func LoggingMiddleware(ctx context.Context) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := ctxlog.From(ctx).With("request_id", middleware.GetReqID(r.Context()))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("HTTP request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}()

			next.ServeHTTP(ww, r.WithContext(ctxlog.With(r.Context(), logger)))
		})
	}
}

// InternalAPIAuth rejects requests without a valid HS256 JWT issued by the Git server
func InternalAPIAuth(secret []byte) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := ctxlog.From(r.Context())

			if len(secret) == 0 {
				logger.Error("internal API secret is not configured")
				writeError(w, goerr.New("internal API is disabled"), http.StatusServiceUnavailable)
				return
			}

			token := r.Header.Get(InternalAPIHeader)
			if token == "" {
				writeError(w, goerr.New("missing internal API token"), http.StatusUnauthorized)
				return
			}

			if _, err := jwt.Parse([]byte(token),
				jwt.WithKey(jwa.HS256, secret),
				jwt.WithValidate(true),
				jwt.WithIssuer(InternalAPIIssuer),
				jwt.WithAcceptableSkew(internalAPISkew),
			); err != nil {
				logger.Warn("Invalid internal API token", "error", err)
				writeError(w, goerr.New("invalid internal API token"), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, err error, status int) {
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Can't get context here, so use background context
		ctxlog.From(context.Background()).Error("Failed to encode response", "error", err)
	}
}
