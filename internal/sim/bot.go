// Package sim drives an exchange with in-process trading bots.
package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"

	"exarena.com/internal/engine"
	"exarena.com/internal/matching"
	"exarena.com/pkg/logger"
	"exarena.com/pkg/xerr"
)

// Client 是 bot 看到的交易所，*engine.Exchange 满足它
type Client interface {
	SubmitOrder(ctx context.Context, req engine.SubmitRequest) (engine.Ack, error)
	Subscribe(ctx context.Context, buffer int) <-chan engine.Event
}

var _ Client = (*engine.Exchange)(nil)

type Bot interface {
	ID() string
	Run(ctx context.Context, c Client) (Report, error)
}

// preparer 在任何 bot 开跑之前调用，用来先订阅行情
type preparer interface {
	prepare(ctx context.Context, c Client)
}

// Report 单个 bot 的运行结果
type Report struct {
	TraderID  string
	Submitted int
	Rejected  int
	Filled    int64
}

func (r *Report) record(ack engine.Ack, err error) error {
	if err == nil {
		r.Submitted++
		r.Filled += ack.Filled
		return nil
	}
	// 业务拒绝只计数，bot 继续跑
	switch xerr.CodeOf(err) {
	case xerr.InvalidOrder, xerr.RateLimited, xerr.EngineBusy:
		r.Rejected++
		return nil
	}
	return err
}

// SampleBot 随机下单：方向随机，价格在 [MinPrice, MaxPrice] 均匀分布并保留两位小数，数量 [1, MaxQty]
type SampleBot struct {
	TraderID string
	Orders   int
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal
	MaxQty   int64
	Interval time.Duration
	Rand     *rand.Rand
}

func (b *SampleBot) ID() string { return b.TraderID }

func (b *SampleBot) validate() error {
	if !b.MinPrice.IsPositive() || b.MaxPrice.LessThan(b.MinPrice) {
		return fmt.Errorf("sample bot %s: bad price range [%s, %s]", b.TraderID, b.MinPrice, b.MaxPrice)
	}
	if b.MaxQty <= 0 {
		return fmt.Errorf("sample bot %s: max qty must be positive", b.TraderID)
	}
	return nil
}

// Next 生成下一笔订单 (不带 OrderID，交给 Exchange 生成)
func (b *SampleBot) Next() engine.SubmitRequest {
	side := matching.Buy
	if b.Rand.Intn(2) == 1 {
		side = matching.Sell
	}
	span := b.MaxPrice.Sub(b.MinPrice)
	price := b.MinPrice.Add(span.Mul(decimal.NewFromFloat(b.Rand.Float64()))).Round(2)
	if price.LessThan(b.MinPrice) {
		price = b.MinPrice
	}
	if price.GreaterThan(b.MaxPrice) {
		price = b.MaxPrice
	}
	return engine.SubmitRequest{
		TraderID: b.TraderID,
		Side:     side,
		Price:    price,
		Qty:      b.Rand.Int63n(b.MaxQty) + 1,
	}
}

func (b *SampleBot) Run(ctx context.Context, c Client) (Report, error) {
	rep := Report{TraderID: b.TraderID}
	if err := b.validate(); err != nil {
		return rep, err
	}
	if b.Rand == nil {
		b.Rand = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	}
	for i := 0; i < b.Orders; i++ {
		if i > 0 {
			if err := sleep(ctx, b.Interval); err != nil {
				return rep, err
			}
		}
		req := b.Next()
		ack, err := c.SubmitOrder(ctx, req)
		logger.Debug(ctx, "sample bot order",
			zap.String("trader_id", b.TraderID),
			zap.String("side", req.Side.String()),
			zap.String("price", req.Price.String()),
			zap.Int64("qty", req.Qty),
			zap.Int64("filled", ack.Filled),
			zap.Error(err))
		if err := rep.record(ack, err); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// ReactiveBot 跟着成交价走：涨了买 1 手，跌了卖 1 手，不变不动。
// 处理 Reactions 条成交后退出 (<= 0 表示一直跑到 ctx 结束)。
type ReactiveBot struct {
	TraderID  string
	Reactions int
	Buffer    int

	events <-chan engine.Event
}

func (b *ReactiveBot) ID() string { return b.TraderID }

func (b *ReactiveBot) prepare(ctx context.Context, c Client) {
	if b.events == nil {
		b.events = c.Subscribe(ctx, b.Buffer)
	}
}

// React 根据上一个成交价决定下一笔订单，ok=false 表示不下单
func React(trader string, last, price decimal.Decimal, haveLast bool) (engine.SubmitRequest, bool) {
	if !haveLast {
		return engine.SubmitRequest{}, false
	}
	var side matching.Side
	switch price.Cmp(last) {
	case 1:
		side = matching.Buy
	case -1:
		side = matching.Sell
	default:
		return engine.SubmitRequest{}, false
	}
	return engine.SubmitRequest{TraderID: trader, Side: side, Price: price, Qty: 1}, true
}

// Run ctx 结束或行情关闭时正常返回
func (b *ReactiveBot) Run(ctx context.Context, c Client) (Report, error) {
	rep := Report{TraderID: b.TraderID}
	b.prepare(ctx, c)

	var last decimal.Decimal
	haveLast := false
	for seen := 0; b.Reactions <= 0 || seen < b.Reactions; seen++ {
		var ev engine.Event
		select {
		case <-ctx.Done():
			return rep, nil
		case e, ok := <-b.events:
			if !ok {
				return rep, nil
			}
			ev = e
		}
		price := ev.Trade.Price
		req, ok := React(b.TraderID, last, price, haveLast)
		last, haveLast = price, true
		if !ok {
			continue
		}
		ack, err := c.SubmitOrder(ctx, req)
		if errors.Is(err, context.Canceled) || errors.Is(err, engine.ErrStopped) {
			return rep, nil
		}
		logger.Debug(ctx, "reactive bot order",
			zap.String("trader_id", b.TraderID),
			zap.String("side", req.Side.String()),
			zap.String("price", price.String()),
			zap.Error(err))
		if err := rep.record(ack, err); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
