package engine

import (
	"fmt"

	"golang.org/x/time/rate"

	"exarena.com/internal/scoring"
)

type ScoringConfig struct {
	Attribution string `mapstructure:"attribution"` // explicit | prefix
}

// ThrottleConfig 每个交易员的下单限流，Rate <= 0 不限流
type ThrottleConfig struct {
	Rate  float64 `mapstructure:"rate"`  // 每秒
	Burst int     `mapstructure:"burst"` // 桶容量
}

func (c ThrottleConfig) Limit() rate.Limit { return rate.Limit(c.Rate) }

type Config struct {
	MailboxSize int            `mapstructure:"mailbox_size"` // 有多少个mail处理
	BatchMax    int            `mapstructure:"batch_max"`    // 一次最多多少
	FeedBuffer  int            `mapstructure:"feed_buffer"`  // 订阅者默认缓冲
	Scoring     ScoringConfig  `mapstructure:"scoring"`
	Throttle    ThrottleConfig `mapstructure:"throttle"`
}

func DefaultConfig() Config {
	return Config{
		MailboxSize: 4096,
		BatchMax:    256,
		FeedBuffer:  1024,
		Scoring:     ScoringConfig{Attribution: string(scoring.AttributeExplicit)},
	}
}

// Defaults 给 viper 用的默认值，key 和 mapstructure tag 对齐
func Defaults() map[string]interface{} {
	d := DefaultConfig()
	return map[string]interface{}{
		"mailbox_size":        d.MailboxSize,
		"batch_max":           d.BatchMax,
		"feed_buffer":         d.FeedBuffer,
		"scoring.attribution": d.Scoring.Attribution,
		"throttle.rate":       d.Throttle.Rate,
		"throttle.burst":      d.Throttle.Burst,
	}
}

func (c Config) Validate() error {
	if _, err := scoring.ParseAttribution(c.Scoring.Attribution); err != nil {
		return fmt.Errorf("scoring.attribution: %w", err)
	}
	if c.Throttle.Rate < 0 {
		return fmt.Errorf("throttle.rate must be >= 0, got %v", c.Throttle.Rate)
	}
	return nil
}

// 如果没有设置 就默认
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MailboxSize <= 0 {
		c.MailboxSize = d.MailboxSize
	}
	if c.BatchMax <= 0 {
		c.BatchMax = d.BatchMax
	}
	if c.FeedBuffer <= 0 {
		c.FeedBuffer = d.FeedBuffer
	}
	return c
}
