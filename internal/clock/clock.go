// Package clock isolates time access so the Verifier and Executor state
// machines (SPEC_FULL.md §4.8, §4.10) are deterministically testable
// without real sleeps.
package clock

import "time"

//go:generate mockery
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	After(d time.Duration) <-chan time.Time
}

// Real is the production Clock, backed by the standard library.
type Real struct{}

func (Real) Now() time.Time                  { return time.Now() }
func (Real) Sleep(d time.Duration)           { time.Sleep(d) }
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }
