// Package snooze wakes messages whose snooze deadline has passed, on a
// fixed timer, in one batched update per tick.
package snooze

import (
	"log"
	"time"

	"mailsync/internal/store"
)

// Scheduler periodically flips expired-snooze messages back to
// unsnoozed in one batched update.
type Scheduler struct {
	messages store.MessageStore
	interval time.Duration
	stopChan chan struct{}
}

// NewScheduler builds a Snooze Scheduler. interval defaults to 60s
// when zero.
func NewScheduler(messages store.MessageStore, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Scheduler{messages: messages, interval: interval, stopChan: make(chan struct{})}
}

// Tick runs one wakeup pass: find every row with isSnoozed=true and
// snoozedUntil<=now, and clear both fields in a single statement. Safe
// to call repeatedly — rows already woken simply don't match the
// predicate again.
func (s *Scheduler) Tick(now time.Time) (int64, error) {
	return s.messages.ExpireSnoozed(now)
}

// Start launches the scheduler loop in its own goroutine.
func (s *Scheduler) Start() {
	log.Println("[SnoozeScheduler] starting (interval " + s.interval.String() + ")")
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runOnce()
			case <-s.stopChan:
				log.Println("[SnoozeScheduler] stopped")
				return
			}
		}
	}()
}

// Stop signals the loop to exit at its next iteration.
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

func (s *Scheduler) runOnce() {
	woke, err := s.Tick(time.Now())
	if err != nil {
		log.Printf("[SnoozeScheduler] wakeup pass failed: %v", err)
		return
	}
	if woke > 0 {
		log.Printf("[SnoozeScheduler] woke %d message(s)", woke)
	}
}
