package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type ClockMock struct {
	mock.Mock
}

func (m *ClockMock) Now() time.Time {
	args := m.Called()
	return args.Get(0).(time.Time)
}

func (m *ClockMock) Sleep(d time.Duration) {
	m.Called(d)
}

func (m *ClockMock) After(d time.Duration) <-chan time.Time {
	args := m.Called(d)
	return args.Get(0).(<-chan time.Time)
}

// Fake is a manually-advanced clock for tests that need to observe
// multiple poll ticks without racing a goroutine.
type Fake struct {
	now time.Time
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time { return f.now }

func (f *Fake) Advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *Fake) Sleep(d time.Duration) { f.now = f.now.Add(d) }

func (f *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	f.now = f.now.Add(d)
	ch <- f.now
	return ch
}
