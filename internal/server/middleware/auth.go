// Package middleware provides HTTP middleware for authentication and request
// logging.
package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	pkglog "ModelLane/pkg/log"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// Auth returns an HTTP middleware enforcing the static service key. An empty
// configured key disables authentication entirely (local development).
// Accepts "Authorization: Bearer {key}" or "X-API-Key: {key}".
func Auth(serviceKey string, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if serviceKey == "" {
				return handler(ctx, req)
			}

			var presented string
			if tr, ok := transport.FromServerContext(ctx); ok {
				// Liveness probes stay unauthenticated.
				if tr.Operation() == "/healthz" {
					return handler(ctx, req)
				}
				if ht, ok := tr.(http.Transporter); ok {
					r := ht.Request()
					auth := r.Header.Get("Authorization")
					if auth != "" {
						presented = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
					}
					if presented == "" {
						presented = r.Header.Get("X-API-Key")
					}
				}
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(serviceKey)) != 1 {
				logger.Auth("rejected request with missing or invalid service key")
				return nil, kerrors.New(401, "UNAUTHORIZED", "invalid or missing service key")
			}

			return handler(ctx, req)
		}
	}
}
