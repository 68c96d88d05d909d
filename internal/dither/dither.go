// Package dither delays actions by a bounded random interval so that many
// watcher instances sharing the same paths do not restart their processes in
// lockstep.
package dither

import (
	"math/rand"
	"time"
)

// Scheduler runs actions after a uniformly random delay in [0, Max].
// A Max of zero runs the action synchronously on the caller. Scheduled
// actions always fire; there is no cancellation.
type Scheduler struct {
	max  time.Duration
	rand func(time.Duration) time.Duration
}

func NewScheduler(max time.Duration) *Scheduler {
	return &Scheduler{
		max: max,
		rand: func(limit time.Duration) time.Duration {
			return time.Duration(rand.Int63n(int64(limit)))
		},
	}
}

// NewSchedulerWithRand injects the delay source, for tests.
func NewSchedulerWithRand(max time.Duration, random func(time.Duration) time.Duration) *Scheduler {
	scheduler := NewScheduler(max)
	if random != nil {
		scheduler.rand = random
	}
	return scheduler
}

// Schedule runs the action either immediately or after a random delay.
// Multiple pending actions may coexist; each fires independently.
func (scheduler *Scheduler) Schedule(action func()) {
	if scheduler == nil || action == nil {
		return
	}
	if scheduler.max <= 0 {
		action()
		return
	}
	delay := scheduler.rand(scheduler.max)
	time.AfterFunc(delay, action)
}

// Max reports the configured upper bound.
func (scheduler *Scheduler) Max() time.Duration {
	if scheduler == nil {
		return 0
	}
	return scheduler.max
}
