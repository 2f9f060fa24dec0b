// Package daemon runs the background processing cycle: recovering stuck
// state, summarizing pending prompt batches, and maintaining the vector
// index, throttled by device activity level.
package daemon

import (
	"sync"
	"time"
)

// PowerState is the coarse device activity classification driving the
// scheduler's timer interval.
type PowerState string

const (
	PowerActive    PowerState = "active"
	PowerIdle      PowerState = "idle"
	PowerSleep     PowerState = "sleep"
	PowerDeepSleep PowerState = "deep_sleep"
)

// PowerConfig holds the state transition thresholds and the two timer
// intervals. All of them are configuration inputs, never hardcoded at
// call sites.
type PowerConfig struct {
	IdleThreshold      time.Duration
	SleepThreshold     time.Duration
	DeepSleepThreshold time.Duration
	ActiveInterval     time.Duration
	SleepInterval      time.Duration
}

// DefaultPowerConfig returns the default scheduler thresholds.
func DefaultPowerConfig() PowerConfig {
	return PowerConfig{
		IdleThreshold:      5 * time.Minute,
		SleepThreshold:     30 * time.Minute,
		DeepSleepThreshold: 2 * time.Hour,
		ActiveInterval:     30 * time.Second,
		SleepInterval:      5 * time.Minute,
	}
}

// StateFor classifies elapsed time since the last observed activity.
func StateFor(sinceActivity time.Duration, cfg PowerConfig) PowerState {
	switch {
	case sinceActivity >= cfg.DeepSleepThreshold:
		return PowerDeepSleep
	case sinceActivity >= cfg.SleepThreshold:
		return PowerSleep
	case sinceActivity >= cfg.IdleThreshold:
		return PowerIdle
	}
	return PowerActive
}

// Interval returns the timer interval for a state. Deep sleep has no
// interval: the timer stops outright.
func (cfg PowerConfig) Interval(state PowerState) (time.Duration, bool) {
	switch state {
	case PowerActive:
		return cfg.ActiveInterval, true
	case PowerIdle, PowerSleep:
		return cfg.SleepInterval, true
	}
	return 0, false
}

// PowerSignal reports the last observed hook or tool activity. The
// scheduler queries it each tick.
type PowerSignal interface {
	LastActivity() time.Time
}

// ActivityTracker is the default PowerSignal: hook write paths call
// Touch on every recorded event.
type ActivityTracker struct {
	mu   sync.Mutex
	last time.Time
}

// NewActivityTracker starts with the current moment as last activity.
func NewActivityTracker() *ActivityTracker {
	return &ActivityTracker{last: time.Now()}
}

// Touch records activity now.
func (t *ActivityTracker) Touch() {
	t.mu.Lock()
	t.last = time.Now()
	t.mu.Unlock()
}

// LastActivity returns the most recent recorded activity time.
func (t *ActivityTracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
