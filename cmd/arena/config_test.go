package main

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"exarena.com/internal/engine"
	"exarena.com/internal/matching"
	"exarena.com/pkg/logger"
	"exarena.com/pkg/xerr"
)

func validAppConfig() *AppConfig {
	return &AppConfig{
		Engine: engine.DefaultConfig(),
		Log:    LogConfig{Level: "info"},
		Sim:    SimConfig{Exchange: "main", MinPrice: "99", MaxPrice: "101", MaxQty: 10},
	}
}

func TestApplyReload(t *testing.T) {
	old := logger.Level()
	t.Cleanup(func() { logger.SetLevel(old.String()) })
	logger.SetLevel("info")

	e := engine.NewEngine(engine.DefaultConfig())
	t.Cleanup(e.Stop)
	x, err := e.Exchange("reload")
	require.NoError(t, err)

	cfg, mu := validAppConfig(), &sync.RWMutex{}

	// 校验不过：什么都不应用
	mu.Lock()
	cfg.Log.Level = "error"
	cfg.Engine.Throttle = engine.ThrottleConfig{Rate: -1}
	mu.Unlock()
	assert.Error(t, applyReload(cfg, mu, e))
	assert.Equal(t, zapcore.InfoLevel, logger.Level())

	mu.Lock()
	cfg.Log.Level = "warn"
	cfg.Engine.Throttle = engine.ThrottleConfig{Rate: 0.001, Burst: 1}
	mu.Unlock()
	require.NoError(t, applyReload(cfg, mu, e))
	assert.Equal(t, zapcore.WarnLevel, logger.Level())

	ctx := context.Background()
	req := engine.SubmitRequest{TraderID: "A", Side: matching.Buy, Price: decimal.NewFromInt(1), Qty: 1}
	_, err = x.SubmitOrder(ctx, req)
	require.NoError(t, err)
	_, err = x.SubmitOrder(ctx, req)
	assert.Equal(t, xerr.RateLimited, xerr.CodeOf(err), "new throttle reached the running exchange")
}

func TestApplyReload_BeforeEngineExists(t *testing.T) {
	old := logger.Level()
	t.Cleanup(func() { logger.SetLevel(old.String()) })

	cfg := validAppConfig()
	cfg.Log.Level = "debug"
	require.NoError(t, applyReload(cfg, &sync.RWMutex{}, nil))
	assert.Equal(t, zapcore.DebugLevel, logger.Level())
}
