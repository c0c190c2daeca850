package matching

// TradeLedger 成交流水：只追加，插入顺序就是成交顺序，永不重排/修改。
// 下游按长度做 diff 增量消费
type TradeLedger struct {
	trades []Trade
}

func NewTradeLedger() *TradeLedger {
	return &TradeLedger{trades: make([]Trade, 0, 1024)}
}

func (l *TradeLedger) append(t Trade) Trade {
	t.Seq = len(l.trades) + 1
	l.trades = append(l.trades, t)
	return t
}

func (l *TradeLedger) Len() int { return len(l.trades) }

// Trades 返回完整流水的拷贝
func (l *TradeLedger) Trades() []Trade {
	return l.TradesSince(0)
}

// TradesSince 返回 [n:] 的拷贝；n 越界返回空
func (l *TradeLedger) TradesSince(n int) []Trade {
	if n < 0 {
		n = 0
	}
	if n >= len(l.trades) {
		return []Trade{}
	}
	out := make([]Trade, len(l.trades)-n)
	copy(out, l.trades[n:])
	return out
}
