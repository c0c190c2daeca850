package sim

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"exarena.com/pkg/logger"
	"exarena.com/pkg/safe"
)

// RunAll 并发跑所有 bot，任何一个返回错误都会取消其它的。
// 订阅行情的 bot 在所有 bot 开跑之前先完成订阅。
func RunAll(ctx context.Context, c Client, bots ...Bot) ([]Report, error) {
	for _, b := range bots {
		if p, ok := b.(preparer); ok {
			p.prepare(ctx, c)
		}
	}

	reports := make([]Report, len(bots))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range bots {
		i, b := i, b
		g.Go(func() error {
			return safe.Run(gctx, func(ctx context.Context) error {
				rep, err := b.Run(ctx, c)
				reports[i] = rep
				return err
			})
		})
	}
	err := g.Wait()
	return reports, err
}

// RunSession 先让 reactors 订阅行情，再跑 makers；makers 结束后给 reactors
// settle 的时间消化剩余成交，然后停掉它们。返回顺序是 makers 在前。
func RunSession(ctx context.Context, c Client, makers, reactors []Bot, settle time.Duration) ([]Report, error) {
	rctx, stopReactors := context.WithCancel(ctx)
	defer stopReactors()

	for _, b := range reactors {
		if p, ok := b.(preparer); ok {
			p.prepare(rctx, c)
		}
	}

	type out struct {
		reports []Report
		err     error
	}
	reactorsDone := make(chan out, 1)
	safe.GoCtx(rctx, func(ctx context.Context) {
		reps, err := RunAll(ctx, c, reactors...)
		reactorsDone <- out{reps, err}
	})

	makerReports, makerErr := RunAll(ctx, c, makers...)
	logger.Info(ctx, "makers finished", zap.Int("bots", len(makers)), zap.Error(makerErr))

	var r out
	select {
	case r = <-reactorsDone:
	case <-time.After(settle):
		stopReactors()
		r = <-reactorsDone
	}

	reports := append(makerReports, r.reports...)
	if makerErr != nil {
		return reports, makerErr
	}
	return reports, r.err
}
