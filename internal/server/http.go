// Package server assembles the HTTP transport.
package server

import (
	"context"

	"ModelLane/internal/conf"
	"ModelLane/internal/server/middleware"
	"ModelLane/internal/service"
	pkglog "ModelLane/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// Operation names used for routing decisions in middleware.
const (
	OperationGenerate = "/v1/generate"
	OperationStatus   = "/v1/status"
	OperationHealthz  = "/healthz"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, routerService *service.RouterService, logger log.Logger) *khttp.Server {
	logHelper := pkglog.NewLogHelper(logger)

	var opts = []khttp.ServerOption{
		khttp.Middleware(
			recovery.Recovery(),
			middleware.Auth(c.ApiKey, logHelper),
			middleware.Logging(logHelper),
		),
	}
	if c.Http.Network != "" {
		opts = append(opts, khttp.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, khttp.Address(c.Http.Addr))
	}
	if c.Http.Timeout != nil {
		opts = append(opts, khttp.Timeout(c.Http.Timeout.AsDuration()))
	}
	srv := khttp.NewServer(opts...)

	registerRoutes(srv, routerService)
	return srv
}

func registerRoutes(srv *khttp.Server, svc *service.RouterService) {
	r := srv.Route("/")

	r.POST(OperationGenerate, func(ctx khttp.Context) error {
		var in service.GenerateRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		khttp.SetOperation(ctx, OperationGenerate)
		h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
			return svc.Generate(c, req.(*service.GenerateRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.GET(OperationStatus, func(ctx khttp.Context) error {
		khttp.SetOperation(ctx, OperationStatus)
		h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
			return svc.Status(c)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.GET(OperationHealthz, func(ctx khttp.Context) error {
		khttp.SetOperation(ctx, OperationHealthz)
		h := ctx.Middleware(func(context.Context, interface{}) (interface{}, error) {
			return map[string]string{"status": "ok"}, nil
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})
}
