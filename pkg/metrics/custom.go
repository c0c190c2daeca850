package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "orders_total",
			Help:      "Total number of submitted orders.",
		},
		[]string{"exchange", "side", "result"}, // result: accepted/invalid/rate_limited/busy
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "trades_total",
			Help:      "Total number of executed trades.",
		},
		[]string{"exchange"},
	)

	TradedQtyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "traded_qty_total",
			Help:      "Total executed quantity.",
		},
		[]string{"exchange"},
	)

	RestingOrders = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "arena",
			Name:      "resting_orders",
			Help:      "Orders currently resting in the book.",
		},
		[]string{"exchange", "side"},
	)

	FeedDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "feed_dropped_total",
			Help:      "Trade events dropped for slow subscribers.",
		},
		[]string{"exchange"},
	)

	MailboxDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "arena",
			Name:      "mailbox_depth",
			Help:      "Commands waiting in the exchange mailbox.",
		},
		[]string{"exchange"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{OrdersTotal, TradesTotal, TradedQtyTotal, RestingOrders, FeedDroppedTotal, MailboxDepth}
}

// Register 注册到 reg，重复注册不报错 (多个 Exchange 共用一套指标)
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// DeleteExchange 清掉某个 exchange 的所有序列，Exchange 停止时调用
func DeleteExchange(exchange string) {
	labels := prometheus.Labels{"exchange": exchange}
	for _, c := range []interface {
		DeletePartialMatch(prometheus.Labels) int
	}{OrdersTotal, TradesTotal, TradedQtyTotal, RestingOrders, FeedDroppedTotal, MailboxDepth} {
		c.DeletePartialMatch(labels)
	}
}
