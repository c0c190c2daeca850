package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"exarena.com/internal/engine"
	"exarena.com/pkg/config"
	"exarena.com/pkg/logger"
)

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type SimConfig struct {
	Exchange  string        `mapstructure:"exchange"`
	Bots      int           `mapstructure:"bots"`      // 随机下单的 bot 数
	Reactive  int           `mapstructure:"reactive"`  // 跟成交价的 bot 数
	Orders    int           `mapstructure:"orders"`    // 每个随机 bot 下多少单
	Interval  time.Duration `mapstructure:"interval"`  // 随机 bot 下单间隔
	MinPrice  string        `mapstructure:"min_price"` // 价格区间
	MaxPrice  string        `mapstructure:"max_price"`
	MaxQty    int64         `mapstructure:"max_qty"`
	Reactions int           `mapstructure:"reactions"` // 每个跟随 bot 处理多少条成交
	Settle    time.Duration `mapstructure:"settle"`    // 随机 bot 结束后留给跟随 bot 的时间
	Seed      uint64        `mapstructure:"seed"`      // 0 表示用当前时间
}

type AppConfig struct {
	Engine engine.Config `mapstructure:",squash"`
	Log    LogConfig     `mapstructure:"log"`
	Sim    SimConfig     `mapstructure:"sim"`
}

func (c *AppConfig) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	lo, err := decimal.NewFromString(c.Sim.MinPrice)
	if err != nil {
		return fmt.Errorf("sim.min_price: %w", err)
	}
	hi, err := decimal.NewFromString(c.Sim.MaxPrice)
	if err != nil {
		return fmt.Errorf("sim.max_price: %w", err)
	}
	if !lo.IsPositive() || hi.LessThan(lo) {
		return fmt.Errorf("sim price range [%s, %s] is invalid", lo, hi)
	}
	if c.Sim.Bots < 0 || c.Sim.Reactive < 0 || c.Sim.Orders < 0 {
		return errors.New("sim.bots, sim.reactive and sim.orders must be >= 0")
	}
	if c.Sim.MaxQty <= 0 {
		return errors.New("sim.max_qty must be positive")
	}
	return nil
}

func defaults() map[string]interface{} {
	d := engine.Defaults()
	d["log.level"] = "info"
	d["sim.exchange"] = "main"
	d["sim.bots"] = 3
	d["sim.reactive"] = 1
	d["sim.orders"] = 10
	d["sim.interval"] = "0s"
	d["sim.min_price"] = "99"
	d["sim.max_price"] = "101"
	d["sim.max_qty"] = 10
	d["sim.reactions"] = 20
	d["sim.settle"] = "200ms"
	d["sim.seed"] = 0
	return d
}

// key -> flag 名
var flagKeys = map[string]string{
	"log.level":     "log-level",
	"sim.exchange":  "exchange",
	"sim.bots":      "bots",
	"sim.reactive":  "reactive",
	"sim.orders":    "orders",
	"sim.interval":  "interval",
	"sim.min_price": "min-price",
	"sim.max_price": "max-price",
	"sim.max_qty":   "max-qty",
	"sim.reactions": "reactions",
	"sim.settle":    "settle",
	"sim.seed":      "seed",
}

// loadConfig --config 指定了就只读那个文件；否则找 ./config/arena.yaml 并监听变更，找不到就用默认值 + 环境变量。
// cfg 和 mu 由调用方先准备好，热更新在 mu 的写锁内写 cfg，然后调用 onChange。
func loadConfig(path string, flags *pflag.FlagSet, cfg *AppConfig, mu *sync.RWMutex, onChange func()) error {
	opts := []config.Option{config.WithDefaults(defaults()), config.WithFlags(flags, flagKeys)}

	if path != "" {
		mu.Lock()
		defer mu.Unlock()
		_, err := config.Load(serviceName, path, cfg, opts...)
		return err
	}

	_, _, err := config.LoadAndWatch(serviceName, cfg, mu, onChange, opts...)
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	_, err = config.Load(serviceName, "", cfg, opts...)
	return err
}

// applyReload 热更新只应用日志级别和限流参数，校验不过就保留旧值
func applyReload(cfg *AppConfig, mu *sync.RWMutex, e *engine.Engine) error {
	mu.RLock()
	c := *cfg
	mu.RUnlock()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("reloaded config: %w", err)
	}
	logger.SetLevel(c.Log.Level)
	if e != nil {
		e.Each(func(x *engine.Exchange) { x.SetThrottle(c.Engine.Throttle) })
	}
	logger.Info(context.Background(), "config applied",
		zap.String("log_level", c.Log.Level),
		zap.Float64("throttle_rate", c.Engine.Throttle.Rate),
		zap.Int("throttle_burst", c.Engine.Throttle.Burst))
	return nil
}
