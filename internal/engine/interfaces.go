package engine

// EventSink：下游“可能慢”，所以只提供 TryPublish（非阻塞），返回丢弃的份数
type EventSink interface {
	TryPublish(ev Event) int
}

// EvCodec 事件编解码，tape 输出用
type EvCodec interface {
	Encode(dst []byte, ev Event) ([]byte, error)
	Decode(payload []byte) (Event, error)
}

var (
	_ EventSink = (*Feed)(nil)
	_ EvCodec   = JSONEvCodec{}
)
