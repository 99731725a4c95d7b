// Package enrichment generates missing embeddings in the background:
// on each tick it pulls the newest non-embedded messages per active
// mailbox and embeds a canonicalized projection of each.
package enrichment

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"mailsync/internal/ai"
	"mailsync/internal/apperr"
	"mailsync/internal/domain"
	"mailsync/internal/store"
)

// DefaultBatchSize is the messages-per-mailbox-per-tick ceiling.
const DefaultBatchSize = 50

const bodyProjectionChars = 2000

// Worker pulls non-embedded messages per active mailbox and persists
// AI-generated embeddings.
type Worker struct {
	mailboxes store.MailboxStore
	messages  store.MessageStore
	adapter   ai.Adapter
	interval  time.Duration
	batchSize int
	stopChan  chan struct{}
}

// NewWorker builds an Enrichment Worker. interval defaults to 10
// minutes and batchSize to DefaultBatchSize when zero.
func NewWorker(mailboxes store.MailboxStore, messages store.MessageStore, adapter ai.Adapter, interval time.Duration, batchSize int) *Worker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Worker{
		mailboxes: mailboxes,
		messages:  messages,
		adapter:   adapter,
		interval:  interval,
		batchSize: batchSize,
		stopChan:  make(chan struct{}),
	}
}

// Projection builds the canonicalized embedding text:
// "Subject: "+subject, "From: "+fromName-or-fromEmail, "Content:
// "+first 2000 characters of bodyText, joined by newlines. Exported so
// the on-demand generate-embedding handlers embed messages with the
// identical projection the periodic worker uses.
func Projection(msg *domain.Message) string {
	from := msg.FromName
	if from == "" {
		from = msg.FromEmail
	}
	body := msg.BodyText
	if len(body) > bodyProjectionChars {
		body = body[:bodyProjectionChars]
	}
	lines := []string{
		"Subject: " + msg.Subject,
		"From: " + from,
		"Content: " + body,
	}
	return strings.Join(lines, "\n")
}

// EmbedAndSave embeds a single message's Projection and persists the
// result, the unit of work both the periodic Worker and the on-demand
// generate-embedding handlers perform. A vector of the wrong width is
// rejected rather than persisted, so a misconfigured embedding model
// can't poison the vector column.
func EmbedAndSave(ctx context.Context, messages store.MessageStore, adapter ai.Adapter, msg *domain.Message) error {
	vec, err := adapter.Embed(ctx, Projection(msg))
	if err != nil {
		return err
	}
	if len(vec) != ai.EmbeddingDims {
		return apperr.New(apperr.IntegrityFailure,
			fmt.Sprintf("embedding dimension mismatch: got %d, want %d", len(vec), ai.EmbeddingDims), nil)
	}
	return messages.SaveEmbedding(msg.ID, domain.Vector(vec), time.Now())
}

// RunBatch performs one enrichment pass across every active mailbox:
// for each, pull up to batchSize non-embedded messages and embed them
// one at a time. A single message's embedding failure is logged and
// does not abort the mailbox's remaining batch or the next mailbox.
func (w *Worker) RunBatch(ctx context.Context) error {
	mailboxes, err := w.mailboxes.ListActive()
	if err != nil {
		return err
	}
	for _, mb := range mailboxes {
		w.enrichMailbox(ctx, mb)
	}
	return nil
}

func (w *Worker) enrichMailbox(ctx context.Context, mb *domain.Mailbox) {
	messages, err := w.messages.WithoutEmbedding(mb.ID, w.batchSize)
	if err != nil {
		log.Printf("[EnrichmentWorker] mailbox %s: list without embedding failed: %v", mb.ID, err)
		return
	}
	for _, msg := range messages {
		if err := EmbedAndSave(ctx, w.messages, w.adapter, msg); err != nil {
			log.Printf("[EnrichmentWorker] message %s: embed failed: %v", msg.ID, err)
		}
	}
}

// Start launches the enrichment loop in its own goroutine.
func (w *Worker) Start(ctx context.Context) {
	log.Println("[EnrichmentWorker] starting (interval " + w.interval.String() + ")")
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := w.RunBatch(ctx); err != nil {
					log.Printf("[EnrichmentWorker] batch failed: %v", err)
				}
			case <-w.stopChan:
				log.Println("[EnrichmentWorker] stopped")
				return
			}
		}
	}()
}

// Stop signals the loop to exit at its next iteration.
func (w *Worker) Stop() {
	close(w.stopChan)
}
