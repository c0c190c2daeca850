package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// Feed 进程内成交推送：fanout，at-most-once，慢订阅者直接丢
type Feed struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	closed  bool
	done    chan struct{} // Close 时关闭，订阅的 goroutine 跟着退出
	dropped uint64
}

type subscriber struct {
	ch chan Event
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[*subscriber]struct{}), done: make(chan struct{})}
}

// TryPublish 非阻塞地推给所有订阅者，返回这次被丢掉的份数
func (f *Feed) TryPublish(ev Event) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	drop := 0
	for s := range f.subs {
		select {
		case s.ch <- ev:
		default:
			drop++
		}
	}
	if drop > 0 {
		atomic.AddUint64(&f.dropped, uint64(drop))
	}
	return drop
}

// Subscribe ctx 结束或 Feed 关闭时取消订阅并关闭 channel；Feed 已关闭时直接返回已关闭的 channel
func (f *Feed) Subscribe(ctx context.Context, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 1
	}
	s := &subscriber{ch: make(chan Event, buffer)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(s.ch)
		return s.ch
	}
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	// ctx 永远不会结束时不用盯着它，Close 会关掉 channel
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				f.remove(s)
			case <-f.done:
			}
		}()
	}
	return s.ch
}

func (f *Feed) remove(s *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[s]; ok {
		delete(f.subs, s)
		close(s.ch)
	}
}

// Close 关闭所有订阅 channel，之后的 TryPublish 是空操作
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.done)
	for s := range f.subs {
		delete(f.subs, s)
		close(s.ch)
	}
}

func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *Feed) Dropped() uint64 { return atomic.LoadUint64(&f.dropped) }
