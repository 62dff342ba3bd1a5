package testfixtures

import (
	"sync"
	"time"
)

// ReferenceTime - момент, с которого стартуют часы в тестах.
func ReferenceTime() time.Time {
	return time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
}

// Clock - управляемый источник времени для тестов.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}

	return &Clock{current: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}

// NowFunc отдает Now для внедрения как func() time.Time.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}

	return c.Now
}

// Advance сдвигает часы вперед и возвращает новое время.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)

	return c.current
}

// Ожидание асинхронных обработчиков в assert.Eventually
const (
	WaitFor = 2 * time.Second
	Tick    = 5 * time.Millisecond
)
