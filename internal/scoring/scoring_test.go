package scoring

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"exarena.com/internal/matching"
)

func trade(buyID, sellID, price string, qty int64) matching.Trade {
	return matching.Trade{
		BuyOrderID:  buyID,
		SellOrderID: sellID,
		Price:       decimal.RequireFromString(price),
		Qty:         qty,
	}
}

func assertPnL(t *testing.T, e *Engine, trader, want string) {
	t.Helper()
	got, ok := e.PnL(trader)
	require.True(t, ok, "trader %s has no P&L", trader)
	assert.True(t, decimal.RequireFromString(want).Equal(got), "%s: want %s got %s", trader, want, got)
}

func TestRecordTrade_CashFlow(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.RecordTrade(trade("A-1", "B-1", "99.5", 4)))

	assertPnL(t, e, "A", "-398")
	assertPnL(t, e, "B", "398")
	assert.True(t, e.Total().IsZero())
	assert.Equal(t, 1, e.Processed())
}

// A:-600 B:+300 C:+300，B 和 C 同分时按 trader id 升序
func TestRecordTrade_SelfTradeCountsOnce(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.RecordTrade(trade("A-1", "A-2", "100", 3)))

	assertPnL(t, e, "A", "0")
	board := e.Leaderboard()
	require.Len(t, board, 1)
	assert.Equal(t, 1, board[0].Trades)
	assert.Equal(t, 1, e.Processed())
}

func TestLeaderboard_TieBreakByTraderID(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.RecordTrade(trade("A-1", "C-1", "100", 3)))
	require.NoError(t, e.RecordTrade(trade("A-2", "B-1", "100", 3)))

	lb := e.Leaderboard()
	require.Len(t, lb, 3)
	assert.Equal(t, "B", lb[0].TraderID)
	assert.Equal(t, "C", lb[1].TraderID)
	assert.Equal(t, "A", lb[2].TraderID)
	assert.Equal(t, []int{1, 2, 3}, []int{lb[0].Rank, lb[1].Rank, lb[2].Rank})
	assert.True(t, decimal.NewFromInt(300).Equal(lb[0].PnL))
	assert.True(t, decimal.NewFromInt(-600).Equal(lb[2].PnL))
	assert.Equal(t, 2, lb[2].Trades)
}

func TestRecordTrade_BadPrefixLeavesStateUntouched(t *testing.T) {
	e := NewEngine(WithAttribution(AttributePrefix))
	require.NoError(t, e.RecordTrade(trade("A-1", "B-1", "10", 1)))

	err := e.RecordTrade(trade("A-2", "nobody", "10", 1))
	assert.ErrorIs(t, err, matching.ErrInvalidOrder)
	assert.Equal(t, 1, e.Processed())
	assertPnL(t, e, "A", "-10")
	_, ok := e.PnL("nobody")
	assert.False(t, ok)
}

func TestAttribution_Modes(t *testing.T) {
	tr := trade("A-1", "B-1", "10", 1)
	tr.BuyTraderID, tr.SellTraderID = "alice", "bob"

	explicit := NewEngine()
	require.NoError(t, explicit.RecordTrade(tr))
	assertPnL(t, explicit, "alice", "-10")
	assertPnL(t, explicit, "bob", "10")

	prefix := NewEngine(WithAttribution(AttributePrefix))
	require.NoError(t, prefix.RecordTrade(tr))
	assertPnL(t, prefix, "A", "-10")
	assertPnL(t, prefix, "B", "10")

	// explicit 模式下缺失的一侧退回到前缀解析
	tr.SellTraderID = ""
	mixed := NewEngine()
	require.NoError(t, mixed.RecordTrade(tr))
	assertPnL(t, mixed, "alice", "-10")
	assertPnL(t, mixed, "B", "10")
}

func TestParseAttribution(t *testing.T) {
	m, err := ParseAttribution("")
	require.NoError(t, err)
	assert.Equal(t, AttributeExplicit, m)
	m, err = ParseAttribution("PREFIX")
	require.NoError(t, err)
	assert.Equal(t, AttributePrefix, m)
	_, err = ParseAttribution("guess")
	assert.Error(t, err)
}

func TestConsume_ExactlyOnce(t *testing.T) {
	book := matching.NewOrderBook()
	e := NewEngine()
	add := func(id string, side matching.Side, price string, qty int64, ts int64) {
		_, err := book.AddOrder(matching.Order{ID: id, Side: side, Price: decimal.RequireFromString(price), Qty: qty, Timestamp: ts})
		require.NoError(t, err)
	}

	add("S-1", matching.Sell, "10", 5, 1)
	add("B-1", matching.Buy, "10", 2, 2)
	n, err := e.Consume(book)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// 没有新成交时再次消费是空操作
	n, err = e.Consume(book)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	add("B-2", matching.Buy, "11", 3, 3)
	n, err = e.Consume(book)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, book.Ledger().Len(), e.Processed())

	assertPnL(t, e, "S", "50")
	assertPnL(t, e, "B", "-50")
}

type staticSource []matching.Trade

func (s staticSource) TradesSince(n int) []matching.Trade {
	if n >= len(s) {
		return nil
	}
	return s[n:]
}

func TestConsume_StopsAtRejectedTrade(t *testing.T) {
	e := NewEngine()
	src := staticSource{
		trade("A-1", "B-1", "1", 1),
		trade("A-2", "broken", "1", 1),
		trade("A-3", "B-3", "1", 1),
	}
	n, err := e.Consume(src)
	assert.ErrorIs(t, err, matching.ErrInvalidOrder)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, e.Processed())
}

// 任意成交序列：P&L 之和恒为 0，每笔成交买方减少、卖方增加 price*qty
func TestProperty_ZeroSum(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := NewEngine()
		traders := []string{"A", "B", "C", "D", "E"}
		n := rapid.IntRange(1, 50).Draw(t, "n")
		for i := 0; i < n; i++ {
			buyer := rapid.SampledFrom(traders).Draw(t, "buyer")
			seller := rapid.SampledFrom(traders).Draw(t, "seller")
			price := decimal.New(rapid.Int64Range(1, 100000).Draw(t, "cents"), -2)
			qty := rapid.Int64Range(1, 50).Draw(t, "qty")

			before := map[string]decimal.Decimal{}
			for _, tr := range []string{buyer, seller} {
				before[tr], _ = e.PnL(tr)
			}
			tr := matching.Trade{
				BuyOrderID:  fmt.Sprintf("%s-%d", buyer, i),
				SellOrderID: fmt.Sprintf("%s-%d", seller, i),
				Price:       price,
				Qty:         qty,
			}
			if err := e.RecordTrade(tr); err != nil {
				t.Fatalf("record: %v", err)
			}
			if buyer != seller {
				notional := tr.Notional()
				gotBuy, _ := e.PnL(buyer)
				gotSell, _ := e.PnL(seller)
				if !before[buyer].Sub(notional).Equal(gotBuy) {
					t.Fatalf("buyer %s: %s - %s != %s", buyer, before[buyer], notional, gotBuy)
				}
				if !before[seller].Add(notional).Equal(gotSell) {
					t.Fatalf("seller %s: %s + %s != %s", seller, before[seller], notional, gotSell)
				}
			}
			if !e.Total().IsZero() {
				t.Fatalf("total P&L %s after trade %d", e.Total(), i)
			}
		}
	})
}
