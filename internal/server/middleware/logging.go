package middleware

import (
	"context"
	"time"

	pkglog "ModelLane/pkg/log"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// Logging returns an HTTP middleware that seeds a request context (honoring
// a caller-supplied X-Request-ID) and records method, path, status and
// duration for every request.
func Logging(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			start := time.Now()

			var method, path, requestID string
			if tr, ok := transport.FromServerContext(ctx); ok {
				if ht, ok := tr.(http.Transporter); ok {
					r := ht.Request()
					method = r.Method
					path = r.URL.Path
					requestID = r.Header.Get("X-Request-ID")
				}
			}
			if requestID == "" {
				requestID = pkglog.GenerateRequestID()
			}
			ctx = pkglog.WithRequestContext(ctx, requestID, "")

			reply, err := handler(ctx, req)

			status := 200
			if err != nil {
				status = int(kerrors.FromError(err).Code)
			}

			logger.Request(method, path, status, time.Since(start).Milliseconds(),
				"request_id", requestID)
			return reply, err
		}
	}
}
