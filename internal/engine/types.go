package engine

import (
	"errors"

	"github.com/shopspring/decimal"

	"exarena.com/internal/matching"
	"exarena.com/internal/scoring"
)

// 定义命令类型
type CmdType uint8

const (
	CmdSubmit      CmdType = iota + 1 // 下单
	CmdBook                           // 盘口快照
	CmdTop                            // 最优买卖价
	CmdDepth                          // 聚合深度
	CmdTrades                         // 成交记录 (Since 之后)
	CmdLeaderboard                    // 排行榜
	CmdPnL                            // 单个交易员 P&L
)

func (t CmdType) String() string {
	switch t {
	case CmdSubmit:
		return "submit"
	case CmdBook:
		return "book"
	case CmdTop:
		return "top"
	case CmdDepth:
		return "depth"
	case CmdTrades:
		return "trades"
	case CmdLeaderboard:
		return "leaderboard"
	case CmdPnL:
		return "pnl"
	default:
		return "unknown"
	}
}

// SubmitRequest 下单请求。OrderID 为空时由 Exchange 按 "{trader}-{uuid}" 生成，
// Timestamp 一律由 Exchange 打。
type SubmitRequest struct {
	OrderID  string
	TraderID string
	Side     matching.Side
	Price    decimal.Decimal
	Qty      int64
}

const StatusAccepted = "accepted"

// Ack 下单回执。Trades 是这次下单产生的成交 (新订单都是 taker)。
type Ack struct {
	OrderID   string
	Status    string
	Filled    int64
	Remaining int64
	Trades    []matching.Trade
}

// Command 进 mailbox 的命令，reply 由 actor 写回
type Command struct {
	Type   CmdType
	ReqID  uint64
	Submit SubmitRequest
	Since  int    // CmdTrades
	Levels int    // CmdDepth
	Trader string // CmdPnL

	reply chan result
}

type result struct {
	ack      Ack
	book     matching.BookSnapshot
	depth    matching.DepthSnapshot
	bid, ask matching.Quote
	trades   []matching.Trade
	board    []scoring.Standing
	pnl      decimal.Decimal
	found    bool
	err      error
}

type EventType uint8

const (
	EvTrade EventType = iota + 1 // 成交
)

func (t EventType) String() string {
	if t == EvTrade {
		return "trade"
	}
	return "unknown"
}

// Event 推给订阅者的事件
type Event struct {
	Type     EventType
	Exchange string
	// 同一个 Exchange 内单调递增的命令序号，同一笔下单产生的多笔成交共享一个 Seq
	Seq   uint64
	ReqID uint64
	Trade matching.Trade
}

// 定义错误
var (
	ErrEngineBusy  = errors.New("engine busy: mailbox full")
	ErrStopped     = errors.New("exchange stopped")
	ErrRateLimited = errors.New("rate limited")
	ErrBadCommand  = errors.New("bad command")
	ErrRunning     = errors.New("exchange already running")
	ErrBadExchange = errors.New("bad exchange name")
)
