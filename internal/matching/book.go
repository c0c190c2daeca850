package matching

import (
	"fmt"
	"math"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"exarena.com/internal/orderid"
)

const btreeDegree = 32

// bookSide 一侧盘口：价格 -> 价位桶，btree 维护价格顺序
type bookSide struct {
	side   Side
	levels *btree.BTreeG[*priceLevel]
	orders int
	qty    int64 // 整侧剩余数量，也是任何一个价位 qty 的上界
}

func newBookSide(side Side) *bookSide {
	less := func(a, b *priceLevel) bool { return a.price.LessThan(b.price) } // 卖盘：低价优先
	if side == Buy {
		less = func(a, b *priceLevel) bool { return a.price.GreaterThan(b.price) } // 买盘：高价优先
	}
	return &bookSide{side: side, levels: btree.NewG[*priceLevel](btreeDegree, less)}
}

func (s *bookSide) best() *priceLevel {
	lv, ok := s.levels.Min()
	if !ok {
		return nil
	}
	return lv
}

func (s *bookSide) add(o *Order) {
	lv, ok := s.levels.Get(&priceLevel{price: o.Price})
	if !ok {
		lv = newPriceLevel(o.Price)
		s.levels.ReplaceOrInsert(lv)
	}
	lv.pushBack(o)
	s.orders++
	s.qty += o.Qty
}

// fillBest 最优价位头部订单成交 qty；订单吃完出队，桶空了删桶
func (s *bookSide) fillBest(qty int64) {
	lv := s.best()
	before := lv.size
	lv.fill(qty)
	s.qty -= qty
	s.orders -= before - lv.size
	if lv.empty() {
		s.levels.Delete(lv)
	}
}

func (s *bookSide) each(fn func(o *Order)) {
	s.levels.Ascend(func(lv *priceLevel) bool {
		lv.each(fn)
		return true
	})
}

func (s *bookSide) quote() Quote {
	lv := s.best()
	if lv == nil {
		return Quote{}
	}
	o := lv.front()
	return Quote{Price: o.Price, Qty: o.Qty, OK: true}
}

func (s *bookSide) entries() []Entry {
	out := make([]Entry, 0, s.orders)
	s.each(func(o *Order) {
		out = append(out, Entry{Price: o.Price, Qty: o.Qty})
	})
	return out
}

func (s *bookSide) depth(limit int) []Level {
	out := make([]Level, 0, 16)
	s.levels.Ascend(func(lv *priceLevel) bool {
		out = append(out, Level{Price: lv.price, Qty: lv.qty, Orders: lv.size})
		return limit <= 0 || len(out) < limit
	})
	return out
}

func (s *bookSide) restingQty() int64 { return s.qty }

func (b *OrderBook) sideOf(side Side) *bookSide {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

// OrderBook 单品种订单簿 + 连续撮合。
// 不加锁：调用方保证单写者（见 engine.Exchange）
type OrderBook struct {
	bids   *bookSide
	asks   *bookSide
	ledger *TradeLedger
	seen   map[string]struct{} // 接收过的订单 id
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids:   newBookSide(Buy),
		asks:   newBookSide(Sell),
		ledger: NewTradeLedger(),
		seen:   make(map[string]struct{}, 1024),
	}
}

// Validate 检查订单能否入簿，不修改任何状态
func (b *OrderBook) Validate(o Order) error {
	if o.Side != Buy && o.Side != Sell {
		return fmt.Errorf("%w: unknown side %d", ErrInvalidOrder, o.Side)
	}
	if o.Price.Sign() <= 0 {
		return fmt.Errorf("%w: price must be positive, got %s", ErrInvalidOrder, o.Price)
	}
	if o.Qty <= 0 {
		return fmt.Errorf("%w: qty must be positive, got %d", ErrInvalidOrder, o.Qty)
	}
	// 同侧挂单总量用 int64 累加，不能溢出
	if rest := b.sideOf(o.Side).qty; o.Qty > math.MaxInt64-rest {
		return fmt.Errorf("%w: qty %d would overflow %s side resting total %d", ErrInvalidOrder, o.Qty, o.Side, rest)
	}
	trader, err := orderid.Trader(o.ID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}
	if o.TraderID != "" && o.TraderID != trader {
		return fmt.Errorf("%w: order id %q does not belong to trader %q", ErrInvalidOrder, o.ID, o.TraderID)
	}
	if _, dup := b.seen[o.ID]; dup {
		return fmt.Errorf("%w: duplicate order id %q", ErrInvalidOrder, o.ID)
	}
	return nil
}

// AddOrder 校验 -> 入簿 -> 撮合。返回本次产生的成交（同时已写入流水）。
// 校验失败的订单不会入簿
func (b *OrderBook) AddOrder(o Order) ([]Trade, error) {
	if err := b.Validate(o); err != nil {
		return nil, err
	}
	if o.TraderID == "" {
		o.TraderID, _ = orderid.Trader(o.ID)
	}
	b.seen[o.ID] = struct{}{}

	// 簿里存自己的拷贝，外部拿不到活的订单指针
	resting := o
	b.sideOf(o.Side).add(&resting)
	return b.match(), nil
}

// match 最优买价 >= 最优卖价 时持续成交，成交价永远取卖单的挂单价。
// 每轮至少一侧头部订单的数量归零，总挂单量严格递减，必然终止
func (b *OrderBook) match() []Trade {
	var trades []Trade
	for {
		bidLv, askLv := b.bids.best(), b.asks.best()
		if bidLv == nil || askLv == nil || bidLv.price.LessThan(askLv.price) {
			return trades
		}
		buy, sell := bidLv.front(), askLv.front()
		qty := min(buy.Qty, sell.Qty)
		t := b.ledger.append(Trade{
			BuyOrderID:   buy.ID,
			SellOrderID:  sell.ID,
			BuyTraderID:  buy.TraderID,
			SellTraderID: sell.TraderID,
			Price:        sell.Price,
			Qty:          qty,
			Timestamp:    max(buy.Timestamp, sell.Timestamp),
		})
		trades = append(trades, t)

		b.bids.fillBest(qty)
		b.asks.fillBest(qty)
	}
}

// TopOfBook 两侧最优价；空的一侧 OK=false
func (b *OrderBook) TopOfBook() (bid, ask Quote) {
	return b.bids.quote(), b.asks.quote()
}

// Book 两侧全部挂单的只读拷贝，按优先级排序
func (b *OrderBook) Book() BookSnapshot {
	return BookSnapshot{Bids: b.bids.entries(), Asks: b.asks.entries()}
}

// Depth 按价位聚合的盘口，levels<=0 返回全部价位
func (b *OrderBook) Depth(levels int) DepthSnapshot {
	return DepthSnapshot{Bids: b.bids.depth(levels), Asks: b.asks.depth(levels)}
}

// Len 挂单数量
func (b *OrderBook) Len(side Side) int { return b.sideOf(side).orders }

func (b *OrderBook) RestingQty(side Side) int64 { return b.sideOf(side).restingQty() }

func (b *OrderBook) Ledger() *TradeLedger { return b.ledger }

func (b *OrderBook) Trades() []Trade { return b.ledger.Trades() }

func (b *OrderBook) TradesSince(n int) []Trade { return b.ledger.TradesSince(n) }

// Spread 最优卖价 - 最优买价；任一侧为空时 ok=false
func (b *OrderBook) Spread() (spread decimal.Decimal, ok bool) {
	bid, ask := b.TopOfBook()
	if !bid.OK || !ask.OK {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}
