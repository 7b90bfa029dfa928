package main

import (
	"ModelLane/internal/biz"
	"ModelLane/pkg/breaker"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// StartHealthSnapshotCron logs a per-provider breaker state snapshot once a
// minute, so operators get a health trail even when the status endpoint is
// never polled.
func StartHealthSnapshotCron(uc *biz.RouterUseCase, logger log.Logger) *cron.Cron {
	helper := log.NewHelper(logger)

	c := cron.New(cron.WithSeconds())

	// At the top of every minute.
	_, err := c.AddFunc("0 * * * * *", func() {
		states := uc.BreakerStates()
		degraded := 0
		kvs := make([]interface{}, 0, len(states)*2+2)
		for id, state := range states {
			kvs = append(kvs, id, state.String())
			if state != breaker.StateClosed {
				degraded++
			}
		}
		kvs = append(kvs, "degraded", degraded)
		helper.Infow(append([]interface{}{"msg", "provider health snapshot"}, kvs...)...)
	})
	if err != nil {
		helper.Errorw("failed to register health snapshot cron job", "error", err)
		return nil
	}

	c.Start()
	helper.Info("Health snapshot cron job started: runs every minute")

	return c
}
