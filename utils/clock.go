package utils

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

type RealClock struct{}

func (self RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (self RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (self RealClock) Now() time.Time {
	return time.Now()
}

// A clock that stands still until the test moves it. After() fires
// immediately so workers blocked on timers can be driven by the test.
type MockClock struct {
	mu       sync.Mutex
	mock_now time.Time
}

func NewMockClock(now time.Time) *MockClock {
	return &MockClock{mock_now: now}
}

func (self *MockClock) Now() time.Time {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.mock_now
}

func (self *MockClock) Set(t time.Time) {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.mock_now = t
}

func (self *MockClock) Advance(d time.Duration) {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.mock_now = self.mock_now.Add(d)
}

func (self *MockClock) After(d time.Duration) <-chan time.Time {
	return time.After(0)
}

func (self *MockClock) Sleep(d time.Duration) {
	time.Sleep(0)
}

// A clock that increments one second each time someone calls Now().
// Useful to give consecutive writes distinct increasing timestamps.
type IncClock struct {
	mu      sync.Mutex
	NowTime int64
}

func (self *IncClock) Now() time.Time {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.NowTime++
	return time.Unix(self.NowTime, 0)
}

func (self *IncClock) After(d time.Duration) <-chan time.Time {
	return time.After(0)
}

func (self *IncClock) Sleep(d time.Duration) {
	time.Sleep(0)
}
