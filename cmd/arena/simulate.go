package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"

	"exarena.com/internal/engine"
	"exarena.com/internal/sim"
	"exarena.com/pkg/logger"
	"exarena.com/pkg/safe"
)

type simulateFlags struct {
	asJSON bool
	tape   string
}

func newSimulateCmd(root *rootFlags) *cobra.Command {
	sf := &simulateFlags{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run sample and reactive bots against an in-process exchange and print the leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, root, sf)
		},
	}
	fs := cmd.Flags()
	fs.BoolVar(&sf.asJSON, "json", false, "print the leaderboard as JSON")
	fs.StringVar(&sf.tape, "tape", "", `stream trade events as JSON lines to this file ("-" for stdout)`)
	fs.String("exchange", "main", "exchange name")
	fs.Int("bots", 3, "number of sample bots")
	fs.Int("reactive", 1, "number of reactive bots")
	fs.Int("orders", 10, "orders per sample bot")
	fs.Duration("interval", 0, "delay between sample bot orders")
	fs.String("min-price", "99", "lowest sample bot price")
	fs.String("max-price", "101", "highest sample bot price")
	fs.Int64("max-qty", 10, "largest sample bot quantity")
	fs.Int("reactions", 20, "trades each reactive bot reacts to")
	fs.Duration("settle", 200*time.Millisecond, "time reactive bots get after sample bots finish")
	fs.Uint64("seed", 0, "random seed (0 = time based)")
	return cmd
}

func runSimulate(cmd *cobra.Command, root *rootFlags, sf *simulateFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var eng atomic.Pointer[engine.Engine]
	cfg, mu := &AppConfig{}, &sync.RWMutex{}
	// 热更新：日志级别 + 限流参数
	onChange := func() {
		if err := applyReload(cfg, mu, eng.Load()); err != nil {
			logger.Error(context.Background(), "config reload rejected", zap.Error(err))
		}
	}
	if err := loadConfig(root.configPath, cmd.Flags(), cfg, mu, onChange); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	mu.RLock()
	c := *cfg
	mu.RUnlock()
	if err := c.Validate(); err != nil {
		return err
	}

	logger.InitWithFile(serviceName, c.Log.Level, root.logFile)
	// 每次模拟一个 run id，日志里以 trace_id 出现
	ctx = logger.WithTrace(ctx, uuid.NewString())

	e := engine.NewEngine(c.Engine,
		engine.WithLogger(logger.Named("engine")),
		engine.WithRegisterer(prometheus.DefaultRegisterer),
	)
	eng.Store(e)
	defer e.Stop()

	x, err := e.Exchange(c.Sim.Exchange)
	if err != nil {
		return err
	}

	stopTape, err := startTape(ctx, x, sf.tape, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	makers, reactors := buildBots(c.Sim)
	logger.Info(ctx, "simulation starting",
		zap.String("exchange", c.Sim.Exchange),
		zap.Int("sample_bots", len(makers)),
		zap.Int("reactive_bots", len(reactors)))

	reports, err := sim.RunSession(ctx, x, makers, reactors, c.Sim.Settle)
	stopTape()
	if err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	for _, r := range reports {
		logger.Info(ctx, "bot finished",
			zap.String("trader_id", r.TraderID),
			zap.Int("submitted", r.Submitted),
			zap.Int("rejected", r.Rejected),
			zap.Int64("filled", r.Filled))
	}
	if dropped := x.FeedDropped(); dropped > 0 {
		logger.Warn(ctx, "slow feed subscribers dropped trade events", zap.Uint64("dropped", dropped))
	}

	board, err := x.Leaderboard(ctx)
	if err != nil {
		return err
	}
	if sf.asJSON {
		return writeLeaderboardJSON(cmd.OutOrStdout(), board)
	}
	return writeLeaderboard(cmd.OutOrStdout(), board)
}

func buildBots(c SimConfig) (makers, reactors []sim.Bot) {
	seed := c.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	// 前面已经校验过
	lo := decimal.RequireFromString(c.MinPrice)
	hi := decimal.RequireFromString(c.MaxPrice)
	for i := 1; i <= c.Bots; i++ {
		makers = append(makers, &sim.SampleBot{
			TraderID: fmt.Sprintf("bot%d", i),
			Orders:   c.Orders,
			MinPrice: lo,
			MaxPrice: hi,
			MaxQty:   c.MaxQty,
			Interval: c.Interval,
			Rand:     rand.New(rand.NewSource(seed + uint64(i))),
		})
	}
	for i := 1; i <= c.Reactive; i++ {
		reactors = append(reactors, &sim.ReactiveBot{
			TraderID:  fmt.Sprintf("reactive%d", i),
			Reactions: c.Reactions,
		})
	}
	return makers, reactors
}

// startTape 把成交事件按行写成 JSON。返回的函数会停止订阅并等写完。
func startTape(ctx context.Context, x *engine.Exchange, dest string, stdout io.Writer) (func(), error) {
	if dest == "" {
		return func() {}, nil
	}
	w := stdout
	var closer io.Closer
	if dest != "-" {
		f, err := os.Create(dest)
		if err != nil {
			return nil, fmt.Errorf("open tape: %w", err)
		}
		w, closer = f, f
	}

	tctx, cancel := context.WithCancel(ctx)
	events := x.Subscribe(tctx, 0)
	done := make(chan struct{})
	safe.GoCtx(tctx, func(ctx context.Context) {
		defer close(done)
		codec := engine.JSONEvCodec{Version: 1}
		buf := make([]byte, 0, 256)
		for ev := range events {
			line, err := codec.Encode(buf[:0], ev)
			if err != nil {
				logger.Error(ctx, "encode trade event", zap.Error(err))
				continue
			}
			line = append(line, '\n')
			if _, err := w.Write(line); err != nil {
				logger.Error(ctx, "write tape", zap.Error(err))
				return
			}
			buf = line
		}
	})

	return func() {
		cancel()
		<-done
		if closer != nil {
			_ = closer.Close()
		}
	}, nil
}
