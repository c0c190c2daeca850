package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen int64 // unix nano  最后的时间
}

// Store 按 key (trader id) 维护令牌桶。rate <= 0 表示不限流。
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	rate    rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

func NewStore(r rate.Limit, burst int, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if burst <= 0 {
		burst = 1
	}
	return &Store{
		entries: make(map[string]*entry, 1024),
		rate:    r,
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *Store) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate > 0
}

func (s *Store) get(key string) (*entry, bool) {
	now := s.now().UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rate <= 0 {
		return nil, false
	}
	e, ok := s.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(s.rate, s.burst), lastSeen: now}
		s.entries[key] = e
		return e, true
	}
	atomic.StoreInt64(&e.lastSeen, now)
	return e, true
}

// Allow 判断是否允许通过。允许则返回 true。
func (s *Store) Allow(key string) bool {
	e, limited := s.get(key)
	if !limited {
		return true
	}
	return e.limiter.AllowN(s.now(), 1)
}

// SetLimit 热更新限流参数，已有的桶也一起调整
func (s *Store) SetLimit(r rate.Limit, burst int) {
	if burst <= 0 {
		burst = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate, s.burst = r, burst
	for k, e := range s.entries {
		if r <= 0 {
			delete(s.entries, k)
			continue
		}
		e.limiter.SetLimit(r)
		e.limiter.SetBurst(burst)
	}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()
}

func (s *Store) cleanup() {
	cut := s.now().Add(-s.ttl).UnixNano()

	s.mu.Lock()
	for k, e := range s.entries {
		if atomic.LoadInt64(&e.lastSeen) < cut {
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()
}
