package matching

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side 买卖方向
type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, s)
	}
}

var ErrInvalidOrder = errors.New("invalid order")

// Order 订单。入簿之后只有 Qty 会被撮合递减
type Order struct {
	ID        string
	TraderID  string
	Side      Side
	Price     decimal.Decimal
	Qty       int64
	Timestamp int64 // 提交时间 (ns)，同价位按它排队
}

// Trade 成交，创建后不可变
type Trade struct {
	Seq          int // 在成交流水里的位置，从 1 开始
	BuyOrderID   string
	SellOrderID  string
	BuyTraderID  string
	SellTraderID string
	Price        decimal.Decimal
	Qty          int64
	Timestamp    int64
}

// Notional = price * qty
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Qty))
}

// Quote 一侧的最优价。OK=false 表示这一侧为空
type Quote struct {
	Price decimal.Decimal
	Qty   int64
	OK    bool
}

// Entry 是盘口快照中的一行
type Entry struct {
	Price decimal.Decimal
	Qty   int64
}

type BookSnapshot struct {
	Bids []Entry
	Asks []Entry
}

// Level 按价位聚合
type Level struct {
	Price  decimal.Decimal
	Qty    int64
	Orders int
}

type DepthSnapshot struct {
	Bids []Level
	Asks []Level
}
