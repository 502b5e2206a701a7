package clock

import (
	"sync"
	"time"
)

// Clock 时间源，便于在服务和测试中注入
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem 基于 time.Now 的时钟
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Manual 手动推进的时钟（测试用）
type Manual struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManual 创建固定在 t 的时钟，可通过 Advance 推进
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

func (m *Manual) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Advance 时钟前进 d
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
