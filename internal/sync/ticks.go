package sync

import (
	"context"
	"log"
	"time"

	"mailsync/internal/domain"
)

// RunWatchdog forces any mailbox stuck in Syncing past cfg.WatchdogThreshold
// back to Synced, so a crashed or hung sync can't block the mailbox
// forever. Runs before each incremental tick.
func (e *Engine) RunWatchdog() {
	mailboxes, err := e.mailboxes.ListActive()
	if err != nil {
		log.Printf("[SyncEngine] watchdog: list active mailboxes: %v", err)
		return
	}
	cutoff := e.now().Add(-e.cfg.WatchdogThreshold)
	for _, mb := range mailboxes {
		if mb.SyncStatus != domain.SyncSyncing || mb.UpdatedAt.After(cutoff) {
			continue
		}
		mb.SyncStatus = domain.SyncSynced
		if err := e.mailboxes.Update(mb); err != nil {
			log.Printf("[SyncEngine] watchdog: reset %s: %v", mb.ID, err)
		} else {
			log.Printf("[SyncEngine] watchdog: forced %s out of Syncing", mb.ID)
		}
	}
}

// RunTokenRefreshTick refreshes tokens for every active mailbox within
// the near-expiry horizon. Independent of the in-flight sync guard:
// token refresh is not a sync.
func (e *Engine) RunTokenRefreshTick(ctx context.Context) {
	if e.isShuttingDown() {
		return
	}
	mailboxes, err := e.mailboxes.ListActive()
	if err != nil {
		log.Printf("[SyncEngine] token refresh tick: list active mailboxes: %v", err)
		return
	}
	for _, mb := range mailboxes {
		if e.isShuttingDown() {
			return
		}
		if e.now().Add(e.cfg.TokenNearExpiry).Before(mb.TokenExpiresAt) {
			continue
		}
		if err := e.refreshIfNearExpiry(ctx, mb, e.cfg.TokenNearExpiry); err != nil {
			log.Printf("[SyncEngine] token refresh for %s failed: %v", mb.ID, err)
		}
	}
}

// RunIncrementalTick runs the watchdog then incremental-syncs every
// active mailbox in {Synced, Error, Pending}. Mailboxes already Syncing
// are left alone, and the single in-flight guard makes each sync skip
// rather than queue behind another.
func (e *Engine) RunIncrementalTick(ctx context.Context) {
	if e.isShuttingDown() {
		return
	}
	e.RunWatchdog()

	mailboxes, err := e.mailboxes.ListActive()
	if err != nil {
		log.Printf("[SyncEngine] incremental tick: list active mailboxes: %v", err)
		return
	}
	for _, mb := range mailboxes {
		if e.isShuttingDown() {
			return
		}
		switch mb.SyncStatus {
		case domain.SyncSynced, domain.SyncError, domain.SyncPending:
		default:
			continue
		}
		if err := e.IncrementalSync(ctx, mb.ID); err != nil {
			log.Printf("[SyncEngine] incremental sync of %s failed: %v", mb.ID, err)
		}
	}
}

// RunRetryTick scans the retry queue for entries whose scheduled time
// has passed and re-invokes incremental sync for them.
func (e *Engine) RunRetryTick(ctx context.Context) {
	if e.isShuttingDown() {
		return
	}
	e.retryMu.Lock()
	due := make([]string, 0, len(e.retryQueue))
	now := e.now()
	for mailboxID, entry := range e.retryQueue {
		if !entry.nextAttempt.After(now) {
			due = append(due, mailboxID)
		}
	}
	e.retryMu.Unlock()

	for _, mailboxID := range due {
		if e.isShuttingDown() {
			return
		}
		if err := e.IncrementalSync(ctx, mailboxID); err != nil {
			log.Printf("[SyncEngine] retry of %s failed: %v", mailboxID, err)
		}
	}
}

// RunLoops starts the three periodic timers (token refresh, incremental
// sync, retry) as goroutines, stopping when ctx is cancelled. Intended
// to be called once at startup from main.
func (e *Engine) RunLoops(ctx context.Context, tokenInterval, incrementalInterval, retryInterval time.Duration) {
	go e.loop(ctx, tokenInterval, e.RunTokenRefreshTick)
	go e.loop(ctx, incrementalInterval, e.RunIncrementalTick)
	go e.loop(ctx, retryInterval, e.RunRetryTick)
}

func (e *Engine) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.isShuttingDown() {
				return
			}
			tick(ctx)
		}
	}
}
