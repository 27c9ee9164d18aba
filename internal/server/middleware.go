package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/normgraph/normgraph/internal/auth"
	"github.com/normgraph/normgraph/internal/types"
)

type contextKey string

const claimsKey contextKey = "auth_claims"

// claimsFrom returns the verified claims, or nil when auth is
// disabled.
func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// authenticate verifies the bearer token and stores its claims in the
// request context. A no-op when auth is disabled.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authEnabled {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, types.NewError(types.AUTH_TOKEN_INVALID, "missing bearer token"))
			return
		}

		claims, err := s.deps.Tokens.Verify(token)
		if err != nil {
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// requirePermission enforces RBAC for a route. A no-op when auth is
// disabled.
func (s *Server) requirePermission(perm auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.authEnabled {
				claims := claimsFrom(r.Context())
				if claims == nil || !auth.HasPermission(claims.Roles, perm) {
					writeError(w, types.NewError(types.AUTH_FORBIDDEN,
						"missing permission: "+string(perm)))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs one line per request with status and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.logger == nil {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(started))
	})
}
