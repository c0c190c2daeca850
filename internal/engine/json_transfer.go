package engine

import (
	"fmt"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"

	"exarena.com/internal/matching"
)

// tape 上的一行成交，字段名对外稳定
type tradeJSON struct {
	Seq          int             `json:"seq"`
	BuyOrderID   string          `json:"buy_order_id"`
	SellOrderID  string          `json:"sell_order_id"`
	BuyTraderID  string          `json:"buy_trader_id"`
	SellTraderID string          `json:"sell_trader_id"`
	Price        decimal.Decimal `json:"price"`
	Qty          int64           `json:"qty"`
	Timestamp    int64           `json:"timestamp"`
}

type evJSON struct {
	V        uint8     `json:"v"`
	Type     string    `json:"type"`
	Exchange string    `json:"exchange"`
	Seq      uint64    `json:"seq"`
	ReqID    uint64    `json:"req_id"`
	Trade    tradeJSON `json:"trade"`
}

type JSONEvCodec struct{ Version uint8 }

func (c JSONEvCodec) Encode(dst []byte, ev Event) ([]byte, error) {
	t := ev.Trade
	rec := evJSON{
		V: c.Version, Type: ev.Type.String(), Exchange: ev.Exchange, Seq: ev.Seq, ReqID: ev.ReqID,
		Trade: tradeJSON{
			Seq:          t.Seq,
			BuyOrderID:   t.BuyOrderID,
			SellOrderID:  t.SellOrderID,
			BuyTraderID:  t.BuyTraderID,
			SellTraderID: t.SellTraderID,
			Price:        t.Price,
			Qty:          t.Qty,
			Timestamp:    t.Timestamp,
		},
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(dst, b...), nil
}

func (c JSONEvCodec) Decode(payload []byte) (Event, error) {
	var rec evJSON
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Event{}, err
	}
	if rec.Type != EvTrade.String() {
		return Event{}, fmt.Errorf("%w: event type %q", ErrBadCommand, rec.Type)
	}
	t := rec.Trade
	return Event{
		Type:     EvTrade,
		Exchange: rec.Exchange,
		Seq:      rec.Seq,
		ReqID:    rec.ReqID,
		Trade: matching.Trade{
			Seq:          t.Seq,
			BuyOrderID:   t.BuyOrderID,
			SellOrderID:  t.SellOrderID,
			BuyTraderID:  t.BuyTraderID,
			SellTraderID: t.SellTraderID,
			Price:        t.Price,
			Qty:          t.Qty,
			Timestamp:    t.Timestamp,
		},
	}, nil
}
