package matching

import "github.com/shopspring/decimal"

// priceLevel 同一价格的订单桶，内部是按时间排序的双向链表
type priceLevel struct {
	price decimal.Decimal
	head  *lvNode // 头部指针，最早的订单
	tail  *lvNode // 尾部指针
	size  int     // 订单个数
	qty   int64   // 桶内剩余数量之和
}

// 双向链表节点
type lvNode struct {
	prev  *lvNode
	next  *lvNode
	order *Order
}

func newPriceLevel(price decimal.Decimal) *priceLevel {
	return &priceLevel{price: price}
}

// pushBack 入桶。
// 正常情况下时间戳单调递增，直接挂到队尾 => 天然 FIFO；
// 如果调用方给了更早的时间戳，从尾部往前找到它该在的位置
func (l *priceLevel) pushBack(o *Order) {
	n := &lvNode{order: o}
	at := l.tail
	for at != nil && at.order.Timestamp > o.Timestamp {
		at = at.prev
	}
	if at == nil {
		// 插到头部
		n.next = l.head
		if l.head != nil {
			l.head.prev = n
		} else {
			l.tail = n
		}
		l.head = n
	} else {
		n.prev, n.next = at, at.next
		if at.next != nil {
			at.next.prev = n
		} else {
			l.tail = n
		}
		at.next = n
	}
	l.size++
	l.qty += o.Qty
}

// popFront 摘掉头部节点（已经被吃完的订单）
func (l *priceLevel) popFront() *Order {
	n := l.head
	if n == nil {
		return nil
	}
	l.head = n.next
	if l.head != nil {
		l.head.prev = nil
	} else {
		l.tail = nil
	}
	// 断开节点指针，避免误用
	n.prev, n.next = nil, nil
	l.size--
	return n.order
}

func (l *priceLevel) front() *Order {
	if l.head == nil {
		return nil
	}
	return l.head.order
}

func (l *priceLevel) empty() bool {
	return l.size == 0
}

// fill 头部订单成交 qty，吃完就出队
func (l *priceLevel) fill(qty int64) {
	o := l.head.order
	o.Qty -= qty
	l.qty -= qty
	if o.Qty == 0 {
		l.popFront()
	}
}

func (l *priceLevel) each(fn func(o *Order)) {
	for n := l.head; n != nil; n = n.next {
		fn(n.order)
	}
}
