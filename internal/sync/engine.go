// Package sync implements the sync engine: the per-mailbox state machine
// that drives full and incremental Gmail imports, survives token expiry
// and history-cursor invalidation, and retries transient failures with
// backoff.
package sync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"mailsync/internal/apperr"
	"mailsync/internal/domain"
	"mailsync/internal/provider"
	"mailsync/internal/secretbox"
	"mailsync/internal/store"
)

// retryEntry tracks one mailbox's place in the retry queue. Only the
// engine's own tick goroutines touch the queue.
type retryEntry struct {
	attempts    int
	nextAttempt time.Time
}

// Engine is the Sync Engine (C5). One Engine instance serves every
// mailbox in the system; per-mailbox state lives in the Store
// (domain.Mailbox.SyncStatus), not in the Engine.
type Engine struct {
	mailboxes   store.MailboxStore
	messages    store.MessageStore
	attachments store.AttachmentStore
	provider    provider.MailProvider
	box         *secretbox.Box
	cfg         Config
	now         func() time.Time

	guardMu  sync.Mutex
	inFlight bool

	retryMu    sync.Mutex
	retryQueue map[string]*retryEntry

	shuttingDown atomic.Bool
}

// NewEngine builds an Engine wired to its store, mail provider and
// secret box collaborators.
func NewEngine(mailboxes store.MailboxStore, messages store.MessageStore, attachments store.AttachmentStore, p provider.MailProvider, box *secretbox.Box, cfg Config) *Engine {
	return &Engine{
		mailboxes:   mailboxes,
		messages:    messages,
		attachments: attachments,
		provider:    p,
		box:         box,
		cfg:         cfg,
		now:         time.Now,
		retryQueue:  make(map[string]*retryEntry),
	}
}

// Shutdown flips the shutdown flag consulted at the top of every timer
// callback. In-flight work completes; no new work starts.
func (e *Engine) Shutdown() { e.shuttingDown.Store(true) }

func (e *Engine) isShuttingDown() bool { return e.shuttingDown.Load() }

// tryAcquireGuard takes the single in-flight guard: at most one mailbox
// syncs at a time. Callers that fail to acquire must skip, never queue.
func (e *Engine) tryAcquireGuard() bool {
	e.guardMu.Lock()
	defer e.guardMu.Unlock()
	if e.inFlight {
		return false
	}
	e.inFlight = true
	return true
}

func (e *Engine) releaseGuard() {
	e.guardMu.Lock()
	e.inFlight = false
	e.guardMu.Unlock()
}

func (e *Engine) decryptCreds(mb *domain.Mailbox) (provider.Credentials, error) {
	access, err := e.box.Open(mb.EncryptedAccessTok)
	if err != nil {
		return provider.Credentials{}, apperr.New(apperr.IntegrityFailure, "decrypt access token", err)
	}
	refresh, err := e.box.Open(mb.EncryptedRefreshTok)
	if err != nil {
		return provider.Credentials{}, apperr.New(apperr.IntegrityFailure, "decrypt refresh token", err)
	}
	return provider.Credentials{AccessToken: access, RefreshToken: refresh}, nil
}

// refreshIfNearExpiry refreshes the mailbox's tokens when they expire
// within horizon. Shared by the refresh tick and on-demand callers
// (send, list labels, move), which use different horizons.
func (e *Engine) refreshIfNearExpiry(ctx context.Context, mb *domain.Mailbox, horizon time.Duration) error {
	if e.now().Add(horizon).Before(mb.TokenExpiresAt) {
		return nil
	}
	creds, err := e.decryptCreds(mb)
	if err != nil {
		return err
	}
	refreshed, err := e.provider.RefreshTokens(ctx, creds.RefreshToken)
	if err != nil {
		// re-read the row before writing the error, so we don't clobber
		// a concurrent successful refresh.
		fresh, rerr := e.mailboxes.FindByIDUnscoped(mb.ID)
		if rerr == nil && fresh != nil {
			fresh.SyncStatus = domain.SyncError
			fresh.LastSyncError = fmt.Sprintf("token refresh failed: %v", err)
			_ = e.mailboxes.Update(fresh)
		}
		return apperr.New(apperr.ProviderFatal, "refresh tokens", err)
	}
	sealed, err := e.box.Seal(refreshed.AccessToken)
	if err != nil {
		return apperr.New(apperr.IntegrityFailure, "seal refreshed access token", err)
	}
	fresh, err := e.mailboxes.FindByIDUnscoped(mb.ID)
	if err != nil {
		return err
	}
	if fresh == nil {
		return nil
	}
	fresh.EncryptedAccessTok = sealed
	fresh.TokenExpiresAt = refreshed.ExpiresAt
	if err := e.mailboxes.Update(fresh); err != nil {
		return err
	}
	*mb = *fresh
	return nil
}

// RefreshIfNearExpiryOnDemand runs the near-expiry check on-demand
// callers (send, list labels, move) perform before talking to the
// provider, satisfying movecoordinator.TokenRefresher without an import
// cycle.
func (e *Engine) RefreshIfNearExpiryOnDemand(ctx context.Context, mailboxID string) error {
	mb, err := e.mailboxes.FindByIDUnscoped(mailboxID)
	if err != nil {
		return err
	}
	if mb == nil {
		return apperr.New(apperr.NotFound, "mailbox not found", nil)
	}
	return e.refreshIfNearExpiry(ctx, mb, e.cfg.OnDemandNearExpiry)
}

// SyncOnDemand triggers a sync for one mailbox, full when forceFull is
// set or no history cursor exists yet, incremental otherwise. It
// consults the in-flight guard and skips rather than queues.
func (e *Engine) SyncOnDemand(ctx context.Context, mailboxID string, forceFull bool) error {
	if e.isShuttingDown() {
		return nil
	}
	if !e.tryAcquireGuard() {
		log.Printf("[SyncEngine] on-demand sync of %s skipped: another sync in flight", mailboxID)
		return nil
	}
	defer e.releaseGuard()
	return e.runSync(ctx, mailboxID, forceFull)
}

func (e *Engine) runSync(ctx context.Context, mailboxID string, forceFull bool) error {
	mb, err := e.mailboxes.FindByIDUnscoped(mailboxID)
	if err != nil {
		return err
	}
	if mb == nil || mb.IsDeleted() || !mb.Active {
		return nil
	}
	if forceFull || mb.HistoryCursor == "" {
		return e.fullSyncLocked(ctx, mb)
	}
	return e.incrementalSyncLocked(ctx, mb)
}

// FullSync runs the full sync protocol for one mailbox.
// Exported for direct callers (e.g. mailbox connect flow) that
// already hold the guard via SyncOnDemand; internal tick callers should
// go through SyncOnDemand/RunIncrementalTick instead.
func (e *Engine) FullSync(ctx context.Context, mailboxID string, maxMessages int) error {
	if !e.tryAcquireGuard() {
		return nil
	}
	defer e.releaseGuard()
	mb, err := e.mailboxes.FindByIDUnscoped(mailboxID)
	if err != nil {
		return err
	}
	if mb == nil {
		return apperr.New(apperr.NotFound, "mailbox not found", nil)
	}
	if maxMessages > 0 {
		saved := e.cfg.FullSyncMaxMessages
		e.cfg.FullSyncMaxMessages = maxMessages
		defer func() { e.cfg.FullSyncMaxMessages = saved }()
	}
	return e.fullSyncLocked(ctx, mb)
}

func (e *Engine) fullSyncLocked(ctx context.Context, mb *domain.Mailbox) error {
	mb.SyncStatus = domain.SyncSyncing
	mb.UpdatedAt = e.now()
	if err := e.mailboxes.Update(mb); err != nil {
		return err
	}

	if err := e.refreshIfNearExpiry(ctx, mb, e.cfg.TokenNearExpiry); err != nil {
		e.markError(mb, err)
		return nil
	}
	creds, err := e.decryptCreds(mb)
	if err != nil {
		e.markError(mb, err)
		return nil
	}

	profile, err := e.provider.GetProfile(ctx, creds)
	if err != nil {
		e.handleSyncFailure(mb, err)
		return nil
	}

	maxMessages := e.cfg.FullSyncMaxMessages
	if maxMessages <= 0 {
		maxMessages = DefaultConfig().FullSyncMaxMessages
	}
	fetched := 0
	pageToken := ""
	for fetched < maxMessages {
		if e.isShuttingDown() {
			return nil
		}
		want := e.cfg.PageSize
		if remaining := maxMessages - fetched; remaining < want {
			want = remaining
		}
		page, err := e.provider.ListMessages(ctx, creds, provider.ListOptions{
			MaxResults: int64(want),
			PageToken:  pageToken,
			LabelIDs:   []string{domain.LabelInbox},
		})
		if err != nil {
			e.handleSyncFailure(mb, err)
			return nil
		}
		ids := make([]string, 0, len(page.Messages))
		for _, m := range page.Messages {
			ids = append(ids, m.ID)
		}
		if err := e.hydrateAndIngest(ctx, mb, creds, ids); err != nil {
			e.handleSyncFailure(mb, err)
			return nil
		}
		fetched += len(ids)
		pageToken = page.NextPageToken
		if pageToken == "" || len(page.Messages) == 0 {
			break
		}
	}

	mb.SyncStatus = domain.SyncSynced
	mb.LastSyncError = ""
	now := e.now()
	mb.LastSyncAt = &now
	mb.HistoryCursor = profile.HistoryCursor
	if err := e.mailboxes.Update(mb); err != nil {
		return err
	}
	if err := e.messages.RecomputeCounters(mb.ID); err != nil {
		return err
	}
	e.clearRetry(mb.ID)
	return nil
}

// hydrateAndIngest fetches ids (the provider batches internally) and
// upserts each parsed message, logging and skipping per-message
// failures.
func (e *Engine) hydrateAndIngest(ctx context.Context, mb *domain.Mailbox, creds provider.Credentials, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	parsedList, err := e.provider.GetMessages(ctx, creds, ids)
	if err != nil {
		return err
	}
	for _, parsed := range parsedList {
		if err := e.ingest(mb.ID, parsed); err != nil {
			log.Printf("[SyncEngine] ingest %s/%s failed: %v", mb.ID, parsed.ProviderMessageID, err)
		}
	}
	return nil
}

// ingest upserts one parsed message and, on first observation, its
// attachment batch.
func (e *Engine) ingest(mailboxID string, parsed provider.ParsedMessage) error {
	msg := &domain.Message{
		MailboxID:         mailboxID,
		ProviderMessageID: parsed.ProviderMessageID,
		ProviderThreadID:  parsed.ProviderThreadID,
		Subject:           parsed.Subject,
		Snippet:           parsed.Snippet,
		FromEmail:         parsed.FromEmail,
		FromName:          parsed.FromName,
		ToEmails:          domain.StringSlice(parsed.ToEmails),
		CcEmails:          domain.StringSlice(parsed.CcEmails),
		BccEmails:         domain.StringSlice(parsed.BccEmails),
		BodyHTML:          parsed.BodyHTML,
		BodyText:          parsed.BodyText,
		ReceivedAt:        parsed.ReceivedAt,
	}
	msg.ApplyLabels(domain.StringSlice(parsed.Labels))
	msg.HasAttachments = len(parsed.Attachments) > 0

	created, err := e.messages.Upsert(msg)
	if err != nil {
		return err
	}
	if created {
		attachments := make([]*domain.Attachment, 0, len(parsed.Attachments))
		for _, a := range parsed.Attachments {
			attachments = append(attachments, &domain.Attachment{
				ProviderAttachID: a.ProviderAttachID,
				Filename:         a.Filename,
				MimeType:         a.MimeType,
				Size:             a.Size,
				ContentID:        a.ContentID,
				Inline:           a.Inline,
			})
		}
		if len(attachments) > 0 {
			if err := e.attachments.ReplaceForMessage(msg.ID, attachments); err != nil {
				return err
			}
		}
		// Embedding generation is asynchronous: leaving Embedding nil
		// here is what makes the message visible to the enrichment
		// worker's WithoutEmbedding scan.
	}
	return nil
}

// IncrementalSync replays history changes since the mailbox's cursor,
// falling back to a full sync when no cursor exists yet.
func (e *Engine) IncrementalSync(ctx context.Context, mailboxID string) error {
	if !e.tryAcquireGuard() {
		return nil
	}
	defer e.releaseGuard()
	mb, err := e.mailboxes.FindByIDUnscoped(mailboxID)
	if err != nil {
		return err
	}
	if mb == nil {
		return apperr.New(apperr.NotFound, "mailbox not found", nil)
	}
	return e.incrementalSyncLocked(ctx, mb)
}

func (e *Engine) incrementalSyncLocked(ctx context.Context, mb *domain.Mailbox) error {
	if mb.HistoryCursor == "" {
		return e.fullSyncLocked(ctx, mb)
	}

	mb.SyncStatus = domain.SyncSyncing
	mb.UpdatedAt = e.now()
	if err := e.mailboxes.Update(mb); err != nil {
		return err
	}

	if err := e.refreshIfNearExpiry(ctx, mb, e.cfg.TokenNearExpiry); err != nil {
		e.markError(mb, err)
		return nil
	}
	creds, err := e.decryptCreds(mb)
	if err != nil {
		e.markError(mb, err)
		return nil
	}

	changes, err := e.provider.GetHistoryChanges(ctx, creds, mb.HistoryCursor)
	if err != nil {
		if kind, ok := apperr.Of(err); ok && kind == apperr.ProviderStaleCursor {
			return e.recoverStaleCursor(ctx, mb)
		}
		e.handleSyncFailure(mb, err)
		return nil
	}

	// Apply in order: added -> deleted -> labelsModified.
	addedIDs := dedupe(changes.MessagesAdded)
	if len(addedIDs) > 0 {
		parsedList, err := e.provider.GetMessages(ctx, creds, addedIDs)
		if err != nil {
			e.handleSyncFailure(mb, err)
			return nil
		}
		for _, parsed := range parsedList {
			if err := e.ingest(mb.ID, parsed); err != nil {
				log.Printf("[SyncEngine] ingest %s/%s failed: %v", mb.ID, parsed.ProviderMessageID, err)
			}
		}
	}

	deletedIDs := dedupe(changes.MessagesDeleted)
	if len(deletedIDs) > 0 {
		if err := e.messages.SoftDeleteByProviderIDs(mb.ID, deletedIDs); err != nil {
			e.handleSyncFailure(mb, err)
			return nil
		}
	}

	for _, delta := range dedupeLabelDeltas(changes.LabelsModified) {
		if err := e.applyLabelDelta(mb.ID, delta); err != nil {
			log.Printf("[SyncEngine] label delta for %s failed: %v", delta.MessageID, err)
		}
	}

	mb.SyncStatus = domain.SyncSynced
	mb.LastSyncError = ""
	now := e.now()
	mb.LastSyncAt = &now
	mb.HistoryCursor = changes.Cursor
	if err := e.mailboxes.Update(mb); err != nil {
		return err
	}
	if err := e.messages.RecomputeCounters(mb.ID); err != nil {
		return err
	}
	e.clearRetry(mb.ID)
	return nil
}

// applyLabelDelta rewrites a message's label set as
// (oldLabels \ removed) ∪ added, then recomputes the derived
// read/starred/category fields.
func (e *Engine) applyLabelDelta(mailboxID string, delta provider.LabelDelta) error {
	msg, err := e.messages.FindByProviderID(mailboxID, delta.MessageID)
	if err != nil {
		return err
	}
	if msg == nil || msg.IsDeleted() {
		return nil
	}
	next := msg.Labels.Without(domain.StringSlice(delta.LabelsRemoved)).Plus(domain.StringSlice(delta.LabelsAdded))
	msg.ApplyLabels(next)
	return e.messages.Update(msg)
}

// recoverStaleCursor handles a cursor the provider rejected as too old:
// clear it, go back to Pending, and run a fresh full sync.
func (e *Engine) recoverStaleCursor(ctx context.Context, mb *domain.Mailbox) error {
	mb.HistoryCursor = ""
	mb.SyncStatus = domain.SyncPending
	if err := e.mailboxes.Update(mb); err != nil {
		return err
	}
	return e.fullSyncLocked(ctx, mb)
}

// handleSyncFailure classifies a sync error and either enqueues a retry
// (ProviderTransient) or marks the mailbox terminally Error
// (ProviderFatal / anything else).
func (e *Engine) handleSyncFailure(mb *domain.Mailbox, err error) {
	kind, _ := apperr.Of(err)
	if kind == apperr.ProviderTransient {
		if exhausted := e.enqueueRetry(mb.ID); exhausted {
			// enqueueRetry already wrote the terminal "(max retries
			// exceeded)" status; don't clobber it with the plain message.
			return
		}
		mb.SyncStatus = domain.SyncError
		mb.LastSyncError = err.Error()
		_ = e.mailboxes.Update(mb)
		return
	}
	e.markError(mb, err)
}

func (e *Engine) markError(mb *domain.Mailbox, err error) {
	mb.SyncStatus = domain.SyncError
	mb.LastSyncError = err.Error()
	_ = e.mailboxes.Update(mb)
}

// enqueueRetry records a failed attempt and schedules the next one per
// the backoff schedule. It reports true when the mailbox has
// exhausted its retry budget, in which case it has already written the
// terminal Error status itself.
func (e *Engine) enqueueRetry(mailboxID string) (exhausted bool) {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	entry, ok := e.retryQueue[mailboxID]
	if !ok {
		entry = &retryEntry{}
		e.retryQueue[mailboxID] = entry
	}
	entry.attempts++
	if entry.attempts > e.cfg.MaxRetries {
		delete(e.retryQueue, mailboxID)
		mb, err := e.mailboxes.FindByIDUnscoped(mailboxID)
		if err == nil && mb != nil {
			mb.SyncStatus = domain.SyncError
			mb.LastSyncError = mb.LastSyncError + " (max retries exceeded)"
			_ = e.mailboxes.Update(mb)
		}
		return true
	}
	entry.nextAttempt = e.now().Add(e.cfg.backoffFor(entry.attempts))
	return false
}

func (e *Engine) clearRetry(mailboxID string) {
	e.retryMu.Lock()
	delete(e.retryQueue, mailboxID)
	e.retryMu.Unlock()
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func dedupeLabelDeltas(deltas []provider.LabelDelta) []provider.LabelDelta {
	seen := make(map[string]int, len(deltas))
	out := make([]provider.LabelDelta, 0, len(deltas))
	for _, d := range deltas {
		if idx, ok := seen[d.MessageID]; ok {
			out[idx].LabelsAdded = append(out[idx].LabelsAdded, d.LabelsAdded...)
			out[idx].LabelsRemoved = append(out[idx].LabelsRemoved, d.LabelsRemoved...)
			continue
		}
		seen[d.MessageID] = len(out)
		out = append(out, d)
	}
	return out
}
