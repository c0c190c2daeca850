package engine

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"exarena.com/pkg/safe"
)

// Engine 按名字管理多个互相隔离的 Exchange，第一次访问时创建并启动
type Engine struct {
	ctx       context.Context    //  ctx
	cancel    context.CancelFunc // 取消所有 actor
	mu        sync.RWMutex
	exchanges map[string]*Exchange // 一一对应
	stopped   bool
	cfg       Config
	opts      []Option
	log       *zap.Logger
}

// NewEngine opts 会传给每个新建的 Exchange
func NewEngine(cfg Config, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		ctx:       ctx,
		cancel:    cancel,
		exchanges: make(map[string]*Exchange, 8),
		cfg:       cfg,
		opts:      opts,
		log:       zap.NewNop(),
	}
	// 借用 Exchange 的 option 拿到 logger
	peek := &Exchange{}
	for _, opt := range opts {
		opt(peek)
	}
	if peek.log != nil {
		e.log = peek.log
	}
	return e
}

// Exchange 取名字对应的 Exchange，不存在就创建并启动
func (e *Engine) Exchange(name string) (*Exchange, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrBadExchange
	}

	// 1) 快路径：读锁查
	e.mu.RLock()
	x, stopped := e.exchanges[name], e.stopped
	e.mu.RUnlock()
	if stopped {
		return nil, ErrStopped
	}
	if x != nil {
		return x, nil
	}

	// 2) 慢路径：写锁双检 + 创建
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil, ErrStopped
	}
	if x = e.exchanges[name]; x != nil {
		return x, nil
	}

	x = New(name, e.cfg, e.opts...)
	e.exchanges[name] = x
	safe.Go(func() {
		if err := x.Run(e.ctx); err != nil {
			e.log.Error("exchange run", zap.String("exchange", name), zap.Error(err))
		}
	})
	e.log.Info("exchange created", zap.String("exchange", name))
	return x, nil
}

// Names 已创建的 Exchange，按名字排序
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.exchanges))
	for name := range e.exchanges {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Each 对每个 Exchange 调用 fn，用于热更新配置
func (e *Engine) Each(fn func(x *Exchange)) {
	e.mu.RLock()
	list := make([]*Exchange, 0, len(e.exchanges))
	for _, x := range e.exchanges {
		list = append(list, x)
	}
	e.mu.RUnlock()
	for _, x := range list {
		fn(x)
	}
}

// Stop 停止所有 Exchange 并等待它们的 actor 退出
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	list := make([]*Exchange, 0, len(e.exchanges))
	for _, x := range e.exchanges {
		x.Stop()
		list = append(list, x)
	}
	e.mu.Unlock()

	e.cancel()
	for _, x := range list {
		<-x.Done()
	}
}
