// Package scoring attributes executed trades to participants and keeps
// their realized, cash-flow based P&L.
//
// A buyer is debited price*qty and the seller credited the same amount.
// Open inventory is never marked to market.
package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"exarena.com/internal/matching"
	"exarena.com/internal/orderid"
)

// Attribution decides how a trade side is mapped to a trader.
type Attribution string

const (
	// AttributeExplicit uses the trader ids carried on the trade and falls
	// back to the order id prefix when they are missing.
	AttributeExplicit Attribution = "explicit"
	// AttributePrefix always derives the trader from the order id prefix.
	AttributePrefix Attribution = "prefix"
)

func ParseAttribution(s string) (Attribution, error) {
	switch Attribution(strings.ToLower(strings.TrimSpace(s))) {
	case "", AttributeExplicit:
		return AttributeExplicit, nil
	case AttributePrefix:
		return AttributePrefix, nil
	default:
		return "", fmt.Errorf("unknown attribution %q", s)
	}
}

// TradeSource is the part of the trade ledger a diff-and-feed consumer needs.
type TradeSource interface {
	TradesSince(n int) []matching.Trade
}

type account struct {
	pnl    decimal.Decimal
	trades int
}

// Standing is one leaderboard row.
type Standing struct {
	Rank     int
	TraderID string
	PnL      decimal.Decimal
	Trades   int
}

// Engine holds the derived P&L map only. Not safe for concurrent use.
type Engine struct {
	mode      Attribution
	accounts  map[string]*account
	processed int
}

type Option func(*Engine)

func WithAttribution(mode Attribution) Option {
	return func(e *Engine) { e.mode = mode }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		mode:     AttributeExplicit,
		accounts: make(map[string]*account, 64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Attribution() Attribution { return e.mode }

// Processed is the number of trades recorded so far.
func (e *Engine) Processed() int { return e.processed }

func (e *Engine) trader(explicit, orderID string) (string, error) {
	if e.mode == AttributeExplicit && explicit != "" {
		return explicit, nil
	}
	trader, err := orderid.Trader(orderID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", matching.ErrInvalidOrder, err)
	}
	return trader, nil
}

// RecordTrade attributes one trade. Both sides are resolved before any
// state changes, so a rejected trade leaves the engine untouched.
func (e *Engine) RecordTrade(t matching.Trade) error {
	buyer, err := e.trader(t.BuyTraderID, t.BuyOrderID)
	if err != nil {
		return err
	}
	seller, err := e.trader(t.SellTraderID, t.SellOrderID)
	if err != nil {
		return err
	}
	e.processed++
	notional := t.Notional()

	b := e.account(buyer)
	b.pnl = b.pnl.Sub(notional)
	b.trades++

	s := e.account(seller)
	s.pnl = s.pnl.Add(notional)
	// 自成交只算一笔
	if seller != buyer {
		s.trades++
	}
	return nil
}

func (e *Engine) account(trader string) *account {
	a, ok := e.accounts[trader]
	if !ok {
		a = &account{}
		e.accounts[trader] = a
	}
	return a
}

// Consume feeds every trade src has appended since the last call. It stops
// at the first rejected trade; the cursor only covers recorded trades.
func (e *Engine) Consume(src TradeSource) (int, error) {
	n := 0
	for _, t := range src.TradesSince(e.processed) {
		if err := e.RecordTrade(t); err != nil {
			return n, fmt.Errorf("trade %d: %w", t.Seq, err)
		}
		n++
	}
	return n, nil
}

// PnL returns the realized P&L of trader.
func (e *Engine) PnL(trader string) (decimal.Decimal, bool) {
	a, ok := e.accounts[trader]
	if !ok {
		return decimal.Zero, false
	}
	return a.pnl, true
}

// Total is the sum of all P&L. Every trade is zero-sum, so this stays zero.
func (e *Engine) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range e.accounts {
		sum = sum.Add(a.pnl)
	}
	return sum
}

// Leaderboard ranks traders by P&L, highest first. Equal P&L is ordered
// by trader id ascending.
func (e *Engine) Leaderboard() []Standing {
	out := make([]Standing, 0, len(e.accounts))
	for id, a := range e.accounts {
		out = append(out, Standing{TraderID: id, PnL: a.pnl, Trades: a.trades})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].PnL.Cmp(out[j].PnL); c != 0 {
			return c > 0
		}
		return out[i].TraderID < out[j].TraderID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
