package matching

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func px(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func order(id string, side Side, price string, qty, ts int64) Order {
	return Order{ID: id, Side: side, Price: px(price), Qty: qty, Timestamp: ts}
}

func mustAdd(t *testing.T, b *OrderBook, o Order) []Trade {
	t.Helper()
	trades, err := b.AddOrder(o)
	require.NoError(t, err)
	return trades
}

func entry(price string, qty int64) Entry { return Entry{Price: px(price), Qty: qty} }

func assertEntries(t *testing.T, want, got []Entry) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Price.Equal(got[i].Price), "entry %d price: want %s got %s", i, want[i].Price, got[i].Price)
		assert.Equal(t, want[i].Qty, got[i].Qty, "entry %d qty", i)
	}
}

// 价格优先：先吃 B(101)，再吃 A(100)，成交价都是卖单价 99
func TestScenario_PricePriority(t *testing.T) {
	b := NewOrderBook()
	assert.Empty(t, mustAdd(t, b, order("A-1", Buy, "100", 10, 1)))
	assert.Empty(t, mustAdd(t, b, order("B-1", Buy, "101", 5, 2)))

	trades := mustAdd(t, b, order("C-1", Sell, "99", 8, 3))
	require.Len(t, trades, 2)

	assert.Equal(t, "B-1", trades[0].BuyOrderID)
	assert.Equal(t, "C-1", trades[0].SellOrderID)
	assert.True(t, px("99").Equal(trades[0].Price))
	assert.Equal(t, int64(5), trades[0].Qty)
	assert.Equal(t, int64(3), trades[0].Timestamp)

	assert.Equal(t, "A-1", trades[1].BuyOrderID)
	assert.Equal(t, "C-1", trades[1].SellOrderID)
	assert.True(t, px("99").Equal(trades[1].Price))
	assert.Equal(t, int64(3), trades[1].Qty)

	snap := b.Book()
	assertEntries(t, []Entry{entry("100", 7)}, snap.Bids)
	assert.Empty(t, snap.Asks)
	assert.Equal(t, 2, b.Ledger().Len())
}

// 同价 FIFO：X 先被吃完，Y 部分成交后保持在队头
func TestScenario_FIFOWithinLevel(t *testing.T) {
	b := NewOrderBook()
	mustAdd(t, b, order("X-1", Sell, "50", 3, 1))
	mustAdd(t, b, order("Y-1", Sell, "50", 4, 2))

	trades := mustAdd(t, b, order("Z-1", Buy, "50", 5, 3))
	require.Len(t, trades, 2)
	assert.Equal(t, "X-1", trades[0].SellOrderID)
	assert.Equal(t, int64(3), trades[0].Qty)
	assert.Equal(t, "Y-1", trades[1].SellOrderID)
	assert.Equal(t, int64(2), trades[1].Qty)

	bid, ask := b.TopOfBook()
	assert.False(t, bid.OK)
	require.True(t, ask.OK)
	assert.True(t, px("50").Equal(ask.Price))
	assert.Equal(t, int64(2), ask.Qty)
	assertEntries(t, []Entry{entry("50", 2)}, b.Book().Asks)
}

func TestMatch_RestingAskPriceWhenBuyIsTaker(t *testing.T) {
	b := NewOrderBook()
	mustAdd(t, b, order("S-1", Sell, "10.5", 2, 1))
	trades := mustAdd(t, b, order("T-1", Buy, "12", 2, 2))
	require.Len(t, trades, 1)
	assert.True(t, px("10.5").Equal(trades[0].Price))
	assert.Equal(t, "S", trades[0].SellTraderID)
	assert.Equal(t, "T", trades[0].BuyTraderID)
}

func TestMatch_CrossLevelsAndRestRemainder(t *testing.T) {
	b := NewOrderBook()
	mustAdd(t, b, order("S-1", Sell, "100", 1, 1))
	mustAdd(t, b, order("S-2", Sell, "101", 1, 2))
	mustAdd(t, b, order("S-3", Sell, "103", 1, 3))

	trades := mustAdd(t, b, order("T-1", Buy, "101", 5, 4))
	require.Len(t, trades, 2)
	assert.True(t, px("100").Equal(trades[0].Price))
	assert.True(t, px("101").Equal(trades[1].Price))

	bid, ask := b.TopOfBook()
	require.True(t, bid.OK)
	assert.True(t, px("101").Equal(bid.Price))
	assert.Equal(t, int64(3), bid.Qty)
	require.True(t, ask.OK)
	assert.True(t, px("103").Equal(ask.Price))

	spread, ok := b.Spread()
	require.True(t, ok)
	assert.True(t, px("2").Equal(spread))
}

func TestAddOrder_Invalid(t *testing.T) {
	cases := []struct {
		name string
		o    Order
	}{
		{"zero price", order("A-1", Buy, "0", 1, 1)},
		{"negative price", order("A-1", Buy, "-1", 1, 1)},
		{"zero qty", order("A-1", Buy, "1", 0, 1)},
		{"negative qty", order("A-1", Sell, "1", -3, 1)},
		{"unknown side", order("A-1", Side(9), "1", 1, 1)},
		{"no prefix", order("A1", Buy, "1", 1, 1)},
		{"empty id", order("", Buy, "1", 1, 1)},
		{"prefix mismatch", Order{ID: "A-1", TraderID: "B", Side: Buy, Price: px("1"), Qty: 1}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := NewOrderBook()
			trades, err := b.AddOrder(c.o)
			assert.ErrorIs(t, err, ErrInvalidOrder)
			assert.Nil(t, trades)
			assert.Equal(t, 0, b.Len(Buy)+b.Len(Sell))
		})
	}
}

func TestAddOrder_DuplicateID(t *testing.T) {
	b := NewOrderBook()
	mustAdd(t, b, order("A-1", Buy, "10", 1, 1))
	_, err := b.AddOrder(order("A-1", Buy, "11", 1, 2))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	assert.Equal(t, 1, b.Len(Buy))
}

// 同侧挂单总量会溢出 int64 的订单直接拒绝，盘口聚合保持为正
func TestAddOrder_RejectsSideQtyOverflow(t *testing.T) {
	b := NewOrderBook()
	half := int64(math.MaxInt64/2 + 1)
	mustAdd(t, b, order("A-1", Sell, "10", half, 1))

	_, err := b.AddOrder(order("B-1", Sell, "10", half, 2))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = b.AddOrder(order("B-2", Sell, "11", half, 3))
	assert.ErrorIs(t, err, ErrInvalidOrder, "other price levels share the side total")

	assert.Equal(t, half, b.RestingQty(Sell))
	depth := b.Depth(0)
	require.Len(t, depth.Asks, 1)
	assert.Equal(t, half, depth.Asks[0].Qty)

	// 刚好顶到上限可以
	mustAdd(t, b, order("B-3", Sell, "10", math.MaxInt64-half, 4))
	assert.Equal(t, int64(math.MaxInt64), b.RestingQty(Sell))

	// 另一侧独立计数，成交后总量回落
	trades := mustAdd(t, b, order("C-1", Buy, "10", half, 5))
	require.Len(t, trades, 1)
	assert.Equal(t, math.MaxInt64-half, b.RestingQty(Sell))
	assert.Zero(t, b.RestingQty(Buy))
}

func TestTopOfBook_Empty(t *testing.T) {
	b := NewOrderBook()
	bid, ask := b.TopOfBook()
	assert.False(t, bid.OK)
	assert.False(t, ask.OK)
	_, ok := b.Spread()
	assert.False(t, ok)
	snap := b.Book()
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
}

func TestBook_IsACopy(t *testing.T) {
	b := NewOrderBook()
	o := order("A-1", Buy, "10", 4, 1)
	mustAdd(t, b, o)
	o.Qty = 99 // 修改调用方的副本不影响簿内订单

	snap := b.Book()
	snap.Bids[0].Qty = 1000

	assertEntries(t, []Entry{entry("10", 4)}, b.Book().Bids)

	trades := b.Trades()
	mustAdd(t, b, order("B-1", Sell, "10", 1, 2))
	assert.Empty(t, trades, "earlier Trades() result must not grow")
	assert.Len(t, b.Trades(), 1)
}

func TestBook_OrderingAndDepth(t *testing.T) {
	b := NewOrderBook()
	mustAdd(t, b, order("A-1", Buy, "99", 1, 1))
	mustAdd(t, b, order("A-2", Buy, "100", 2, 2))
	mustAdd(t, b, order("A-3", Buy, "99", 3, 3))
	mustAdd(t, b, order("B-1", Sell, "102", 4, 4))
	mustAdd(t, b, order("B-2", Sell, "101", 5, 5))
	mustAdd(t, b, order("B-3", Sell, "102.0", 6, 6))

	snap := b.Book()
	assertEntries(t, []Entry{entry("100", 2), entry("99", 1), entry("99", 3)}, snap.Bids)
	assertEntries(t, []Entry{entry("101", 5), entry("102", 4), entry("102", 6)}, snap.Asks)

	d := b.Depth(0)
	require.Len(t, d.Bids, 2)
	assert.True(t, px("100").Equal(d.Bids[0].Price))
	assert.Equal(t, int64(2), d.Bids[0].Qty)
	assert.Equal(t, int64(4), d.Bids[1].Qty)
	assert.Equal(t, 2, d.Bids[1].Orders)
	require.Len(t, d.Asks, 2)
	assert.Equal(t, int64(10), d.Asks[1].Qty, "102 and 102.0 share one level")

	top := b.Depth(1)
	assert.Len(t, top.Bids, 1)
	assert.Len(t, top.Asks, 1)

	assert.Equal(t, int64(6), b.RestingQty(Buy))
	assert.Equal(t, int64(15), b.RestingQty(Sell))
}

func TestAddOrder_OutOfOrderTimestampKeepsTimePriority(t *testing.T) {
	b := NewOrderBook()
	mustAdd(t, b, order("A-1", Sell, "10", 1, 20))
	mustAdd(t, b, order("A-2", Sell, "10", 1, 10)) // 更早的时间戳应该排在前面

	trades := mustAdd(t, b, order("B-1", Buy, "10", 1, 30))
	require.Len(t, trades, 1)
	assert.Equal(t, "A-2", trades[0].SellOrderID)
}

func TestLedger_TradesSince(t *testing.T) {
	b := NewOrderBook()
	mustAdd(t, b, order("S-1", Sell, "1", 1, 1))
	mustAdd(t, b, order("S-2", Sell, "1", 1, 2))
	mustAdd(t, b, order("B-1", Buy, "1", 1, 3))
	mustAdd(t, b, order("B-2", Buy, "1", 1, 4))

	all := b.Trades()
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].Seq)
	assert.Equal(t, 2, all[1].Seq)

	tail := b.TradesSince(1)
	require.Len(t, tail, 1)
	assert.Equal(t, "S-2", tail[0].SellOrderID)

	assert.Empty(t, b.TradesSince(2))
	assert.Empty(t, b.TradesSince(10))
	assert.Len(t, b.TradesSince(-1), 2)
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide("BUY")
	require.NoError(t, err)
	assert.Equal(t, Buy, s)
	s, err = ParseSide(" sell ")
	require.NoError(t, err)
	assert.Equal(t, Sell, s)
	_, err = ParseSide("hold")
	assert.ErrorIs(t, err, ErrInvalidOrder)
	assert.Equal(t, "buy", Buy.String())
}
