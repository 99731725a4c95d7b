package sync

import "time"

// Config tunes the engine's thresholds. Zero values fall back to
// DefaultConfig; pkg/config wires deployment overrides.
type Config struct {
	// FullSyncMaxMessages bounds a full sync's total message count.
	FullSyncMaxMessages int
	// PageSize bounds both message-list pages and hydration batches.
	PageSize int
	// HydrateConcurrency bounds concurrent per-page message hydration.
	HydrateConcurrency int
	// WatchdogThreshold is how long a mailbox may sit in Syncing before
	// the scheduler forces it back to Synced.
	WatchdogThreshold time.Duration
	// TokenNearExpiry is the refresh-tick horizon.
	TokenNearExpiry time.Duration
	// OnDemandNearExpiry is the horizon used by on-demand callers
	// (send, list labels, move).
	OnDemandNearExpiry time.Duration
	// RetryBackoff is the schedule applied to successive retry attempts
	// of the same mailbox; the last entry caps further attempts.
	RetryBackoff []time.Duration
	// MaxRetries is the attempt cap before a mailbox is marked Error
	// with "(max retries exceeded)".
	MaxRetries int
}

// DefaultConfig returns the nominal production values.
func DefaultConfig() Config {
	return Config{
		FullSyncMaxMessages: 200,
		PageSize:            50,
		HydrateConcurrency:  50,
		WatchdogThreshold:   5 * time.Minute,
		TokenNearExpiry:     10 * time.Minute,
		OnDemandNearExpiry:  5 * time.Minute,
		RetryBackoff:        []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second},
		MaxRetries:          3,
	}
}

func (c Config) backoffFor(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	if attempt > len(c.RetryBackoff) {
		attempt = len(c.RetryBackoff)
	}
	return c.RetryBackoff[attempt-1]
}
