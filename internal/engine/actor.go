package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"exarena.com/internal/matching"
	"exarena.com/internal/orderid"
	"exarena.com/internal/scoring"
	"exarena.com/pkg/metrics"
	"exarena.com/pkg/ratelimit"
	"exarena.com/pkg/xerr"
)

// Clock 只用来打订单时间戳，测试里可以换成假的
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type Option func(*Exchange)

func WithLogger(l *zap.Logger) Option {
	return func(x *Exchange) {
		if l != nil {
			x.log = l
		}
	}
}

func WithClock(c Clock) Option {
	return func(x *Exchange) {
		if c != nil {
			x.clock = c
		}
	}
}

// WithRegisterer 把 arena 指标注册到 reg (重复注册不报错)
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(x *Exchange) { x.reg = reg }
}

// WithThrottle 使用外部的限流 Store，否则按 Config.Throttle 自建一个
func WithThrottle(s *ratelimit.Store) Option {
	return func(x *Exchange) { x.throttle = s }
}

// Exchange 一个交易所上下文：一本订单簿 + 一个记分引擎 + 一个 mailbox actor。
// 所有写操作和读操作都是 mailbox 里的命令，由 Run 的 goroutine 逐条执行完，
// 所以 book 和 scorer 不需要锁。
type Exchange struct {
	name string
	cfg  Config

	book   *matching.OrderBook
	scorer *scoring.Engine

	in       chan Command
	feed     *Feed
	throttle *ratelimit.Store
	ownStore bool
	clock    Clock
	log      *zap.Logger
	reg      prometheus.Registerer

	seq    uint64 // 命令序号，只在 actor 里改
	lastTs int64  // 上一个订单时间戳，只在 actor 里改
	reqID  uint64 // atomic

	reportedDrops uint64 // 已经计入指标的丢弃数，只在 actor 里改

	mailboxFull uint64 // atomic
	running     atomic.Bool
	stopOnce    sync.Once
	done        chan struct{} // Stop 时关闭
	exited      chan struct{} // Run 返回时关闭
}

func New(name string, cfg Config, opts ...Option) *Exchange {
	cfg = cfg.withDefaults()
	x := &Exchange{
		name:   name,
		cfg:    cfg,
		book:   matching.NewOrderBook(),
		in:     make(chan Command, cfg.MailboxSize), // mailbox
		feed:   NewFeed(),
		clock:  ClockFunc(time.Now),
		log:    zap.NewNop(),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(x)
	}
	x.log = x.log.With(zap.String("exchange", name))

	mode, err := scoring.ParseAttribution(cfg.Scoring.Attribution)
	if err != nil {
		x.log.Warn("unknown attribution, falling back to explicit", zap.Error(err))
		mode = scoring.AttributeExplicit
	}
	x.scorer = scoring.NewEngine(scoring.WithAttribution(mode))

	if x.throttle == nil {
		x.throttle = ratelimit.NewStore(cfg.Throttle.Limit(), cfg.Throttle.Burst, 10*time.Minute)
		x.ownStore = true
	}
	if x.reg != nil {
		if err := metrics.Register(x.reg); err != nil {
			x.log.Warn("register metrics", zap.Error(err))
		}
	}
	return x
}

func (x *Exchange) Name() string { return x.name }

// SetThrottle 热更新限流参数
func (x *Exchange) SetThrottle(c ThrottleConfig) {
	x.throttle.SetLimit(c.Limit(), c.Burst)
	x.log.Info("throttle updated",
		zap.Bool("enabled", x.throttle.Enabled()),
		zap.Float64("rate", c.Rate),
		zap.Int("burst", c.Burst),
		zap.Int("traders", x.throttle.Len()))
}

func (x *Exchange) MailboxFull() uint64 { return atomic.LoadUint64(&x.mailboxFull) }
func (x *Exchange) FeedDropped() uint64 { return x.feed.Dropped() }
func (x *Exchange) Done() <-chan struct{} { return x.exited }

// Stop 之后所有调用都返回 ErrStopped
func (x *Exchange) Stop() {
	x.stopOnce.Do(func() { close(x.done) })
}

// Run actor 循环，ctx 结束或 Stop 后返回 nil。一个 Exchange 只能 Run 一次。
func (x *Exchange) Run(ctx context.Context) error {
	if !x.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer func() {
		close(x.exited)
		x.feed.Close()
		metrics.DeleteExchange(x.name)
	}()

	if x.ownStore {
		jctx, cancel := context.WithCancel(ctx)
		defer cancel()
		x.throttle.StartJanitor(jctx, time.Minute)
	}

	x.log.Info("exchange started",
		zap.Int("mailbox_size", x.cfg.MailboxSize),
		zap.Int("batch_max", x.cfg.BatchMax),
		zap.String("attribution", string(x.scorer.Attribution())),
		zap.Bool("throttle", x.throttle.Enabled()))

	// 复用 batch slice，避免每轮分配
	batch := make([]Command, 0, x.cfg.BatchMax)
	for {
		var first Command
		// 先阻塞拿 1 条，再尽量多拿几条（不阻塞）
		select {
		case <-ctx.Done():
			x.log.Info("exchange exiting", zap.Error(ctx.Err()))
			return nil
		case <-x.done:
			x.log.Info("exchange stopped")
			return nil
		case first = <-x.in:
		}
		batch = batch[:0]
		batch = append(batch, first)
		for len(batch) < x.cfg.BatchMax {
			select {
			case cmd := <-x.in:
				batch = append(batch, cmd)
			default:
				goto PROCESS
			}
		}
	PROCESS:
		metrics.MailboxDepth.WithLabelValues(x.name).Set(float64(len(x.in)))
		// 逐命令执行，每条命令执行完才轮到下一条
		for i := range batch {
			x.seq++
			r := x.apply(x.seq, batch[i])
			batch[i].reply <- r // cap 1，不会阻塞
			batch[i] = Command{}
		}
	}
}

func (x *Exchange) apply(seq uint64, cmd Command) result {
	switch cmd.Type {
	case CmdSubmit:
		ack, err := x.submit(seq, cmd)
		return result{ack: ack, err: err}
	case CmdBook:
		return result{book: x.book.Book()}
	case CmdTop:
		bid, ask := x.book.TopOfBook()
		return result{bid: bid, ask: ask}
	case CmdDepth:
		return result{depth: x.book.Depth(cmd.Levels)}
	case CmdTrades:
		return result{trades: x.book.TradesSince(cmd.Since)}
	case CmdLeaderboard:
		return result{board: x.scorer.Leaderboard()}
	case CmdPnL:
		pnl, ok := x.scorer.PnL(cmd.Trader)
		return result{pnl: pnl, found: ok}
	default:
		return result{err: fmt.Errorf("%w: %d", ErrBadCommand, cmd.Type)}
	}
}

// submit 校验 → 限流 → 打时间戳 → 撮合 → 记分 → 推送。book 和 scorer 在同一条命令里一起更新。
func (x *Exchange) submit(seq uint64, cmd Command) (Ack, error) {
	req := cmd.Submit
	side := req.Side.String()

	if req.OrderID == "" {
		id, err := orderid.Mint(req.TraderID)
		if err != nil {
			return x.reject(req, side, "invalid", xerr.Wrap(xerr.InvalidOrder, fmt.Errorf("%w: %w", matching.ErrInvalidOrder, err)))
		}
		req.OrderID = id
	}
	o := matching.Order{
		ID:       req.OrderID,
		TraderID: req.TraderID,
		Side:     req.Side,
		Price:    req.Price,
		Qty:      req.Qty,
	}
	if err := x.book.Validate(o); err != nil {
		return x.reject(req, side, "invalid", xerr.Wrap(xerr.InvalidOrder, err))
	}

	trader := req.TraderID
	if trader == "" {
		trader, _ = orderid.Trader(req.OrderID) // Validate 已经保证能解析
	}
	if !x.throttle.Allow(trader) {
		return x.reject(req, side, "rate_limited", xerr.Wrap(xerr.RateLimited, fmt.Errorf("%w: trader %s", ErrRateLimited, trader)))
	}

	o.Timestamp = x.nextTimestamp()
	trades, err := x.book.AddOrder(o)
	if err != nil {
		return x.reject(req, side, "invalid", xerr.Wrap(xerr.InvalidOrder, err))
	}
	if _, err := x.scorer.Consume(x.book); err != nil {
		// AddOrder 已经校验过前缀，走到这里说明 ledger 和 scorer 对不上
		x.log.Error("scoring consume failed", zap.String("order_id", o.ID), zap.Error(err))
	}

	var filled int64
	for _, t := range trades {
		filled += t.Qty
		x.feed.TryPublish(Event{Type: EvTrade, Exchange: x.name, Seq: seq, ReqID: cmd.ReqID, Trade: t})
	}
	x.observe(side, trades)
	if len(trades) > 0 {
		x.log.Debug("order filled",
			zap.String("order_id", o.ID),
			zap.String("side", side),
			zap.Int("trades", len(trades)),
			zap.Int64("filled", filled),
			zap.Int64("remaining", o.Qty-filled))
	}

	return Ack{
		OrderID:   o.ID,
		Status:    StatusAccepted,
		Filled:    filled,
		Remaining: o.Qty - filled,
		Trades:    trades,
	}, nil
}

func (x *Exchange) reject(req SubmitRequest, side, reason string, err error) (Ack, error) {
	metrics.OrdersTotal.WithLabelValues(x.name, side, reason).Inc()
	x.log.Warn("order rejected",
		zap.String("order_id", req.OrderID),
		zap.String("trader_id", req.TraderID),
		zap.String("side", side),
		zap.String("price", req.Price.String()),
		zap.Int64("qty", req.Qty),
		zap.String("reason", reason),
		zap.Error(err))
	return Ack{}, err
}

func (x *Exchange) observe(side string, trades []matching.Trade) {
	metrics.OrdersTotal.WithLabelValues(x.name, side, "accepted").Inc()
	if len(trades) > 0 {
		var qty int64
		for _, t := range trades {
			qty += t.Qty
		}
		metrics.TradesTotal.WithLabelValues(x.name).Add(float64(len(trades)))
		metrics.TradedQtyTotal.WithLabelValues(x.name).Add(float64(qty))
	}
	metrics.RestingOrders.WithLabelValues(x.name, matching.Buy.String()).Set(float64(x.book.Len(matching.Buy)))
	metrics.RestingOrders.WithLabelValues(x.name, matching.Sell.String()).Set(float64(x.book.Len(matching.Sell)))
	if d := x.feed.Dropped(); d > 0 {
		// Counter 只能加，这里用差值
		metrics.FeedDroppedTotal.WithLabelValues(x.name).Add(float64(d - x.reportedDrops))
		x.reportedDrops = d
	}
}

// 严格递增：时钟回拨或同一纳秒内的多笔订单也保持先后
func (x *Exchange) nextTimestamp() int64 {
	ts := x.clock.Now().UnixNano()
	if ts <= x.lastTs {
		ts = x.lastTs + 1
	}
	x.lastTs = ts
	return ts
}

// ---------------------------------------------------------
// 调用方接口：都是往 mailbox 里塞命令再等回执
// ---------------------------------------------------------

func (x *Exchange) newCommand(t CmdType) Command {
	return Command{Type: t, ReqID: atomic.AddUint64(&x.reqID, 1), reply: make(chan result, 1)}
}

func (x *Exchange) call(ctx context.Context, cmd Command) (result, error) {
	select {
	case <-x.done:
		return result{}, ErrStopped
	default:
	}
	select {
	case x.in <- cmd:
	case <-x.done:
		return result{}, ErrStopped
	case <-x.exited:
		return result{}, ErrStopped
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
	return x.wait(ctx, cmd)
}

func (x *Exchange) wait(ctx context.Context, cmd Command) (result, error) {
	select {
	case r := <-cmd.reply:
		return r, r.err
	case <-x.exited:
		// actor 退出前回执已经写进 cap 1 的 channel
		select {
		case r := <-cmd.reply:
			return r, r.err
		default:
			return result{}, ErrStopped
		}
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

// tryEnqueue 非阻塞入队，mailbox 满了直接 ErrEngineBusy
func (x *Exchange) tryEnqueue(cmd Command) error {
	select {
	case <-x.done:
		return ErrStopped
	default:
	}
	// chan 限制了数量，满了就走 default，用来限制并发
	select {
	case x.in <- cmd:
		return nil
	default:
		atomic.AddUint64(&x.mailboxFull, 1)
		return ErrEngineBusy
	}
}

// SubmitOrder 下单并等待撮合结果。参数错误返回 *xerr.CodeError，
// errors.Is(err, matching.ErrInvalidOrder) 成立。
func (x *Exchange) SubmitOrder(ctx context.Context, req SubmitRequest) (Ack, error) {
	cmd := x.newCommand(CmdSubmit)
	cmd.Submit = req
	r, err := x.call(ctx, cmd)
	return r.ack, err
}

// TrySubmit 和 SubmitOrder 一样，但 mailbox 满时不等待
func (x *Exchange) TrySubmit(ctx context.Context, req SubmitRequest) (Ack, error) {
	cmd := x.newCommand(CmdSubmit)
	cmd.Submit = req
	if err := x.tryEnqueue(cmd); err != nil {
		if errors.Is(err, ErrEngineBusy) {
			metrics.OrdersTotal.WithLabelValues(x.name, req.Side.String(), "busy").Inc()
			return Ack{}, xerr.Wrap(xerr.EngineBusy, err)
		}
		return Ack{}, err
	}
	r, err := x.wait(ctx, cmd)
	return r.ack, err
}

func (x *Exchange) BookSnapshot(ctx context.Context) (matching.BookSnapshot, error) {
	r, err := x.call(ctx, x.newCommand(CmdBook))
	return r.book, err
}

func (x *Exchange) TopOfBook(ctx context.Context) (bid, ask matching.Quote, err error) {
	r, err := x.call(ctx, x.newCommand(CmdTop))
	return r.bid, r.ask, err
}

func (x *Exchange) Depth(ctx context.Context, levels int) (matching.DepthSnapshot, error) {
	cmd := x.newCommand(CmdDepth)
	cmd.Levels = levels
	r, err := x.call(ctx, cmd)
	return r.depth, err
}

func (x *Exchange) Trades(ctx context.Context) ([]matching.Trade, error) {
	return x.TradesSince(ctx, 0)
}

func (x *Exchange) TradesSince(ctx context.Context, n int) ([]matching.Trade, error) {
	cmd := x.newCommand(CmdTrades)
	cmd.Since = n
	r, err := x.call(ctx, cmd)
	return r.trades, err
}

func (x *Exchange) Leaderboard(ctx context.Context) ([]scoring.Standing, error) {
	r, err := x.call(ctx, x.newCommand(CmdLeaderboard))
	return r.board, err
}

func (x *Exchange) PnL(ctx context.Context, trader string) (decimal.Decimal, bool, error) {
	cmd := x.newCommand(CmdPnL)
	cmd.Trader = trader
	r, err := x.call(ctx, cmd)
	return r.pnl, r.found, err
}

// Subscribe 订阅成交推送，buffer <= 0 用 Config.FeedBuffer。ctx 结束或 Exchange 退出时 channel 关闭。
func (x *Exchange) Subscribe(ctx context.Context, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = x.cfg.FeedBuffer
	}
	return x.feed.Subscribe(ctx, buffer)
}
