package search

import (
	"context"
	"testing"
	"time"

	"mailsync/internal/domain"
	"mailsync/internal/store"

	"github.com/stretchr/testify/require"
)

type fakeEmbedAdapter struct {
	vec []float32
	err error
}

func (f *fakeEmbedAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedAdapter) Summarize(ctx context.Context, text string) (string, error) {
	return "", nil
}

func unitVec(dims int, hot int) []float32 {
	v := make([]float32, dims)
	v[hot] = 1
	return v
}

func TestSemanticSearch_OrdersByCosineSimilarityDescending(t *testing.T) {
	db := newTestDB(t)
	mb := &domain.Mailbox{ID: "mb-1", UserID: "user-1", ProviderAddress: "me@example.com", Provider: domain.ProviderGmail}
	require.NoError(t, db.Create(mb).Error)
	now := time.Now()

	closeVec := unitVec(768, 0)
	closeVec[1] = 0.2
	farVec := unitVec(768, 5)

	require.NoError(t, db.Create(&domain.Message{ID: "m-close", MailboxID: mb.ID, ProviderMessageID: "p1", Subject: "A", ReceivedAt: now, Embedding: domain.Vector(closeVec)}).Error)
	require.NoError(t, db.Create(&domain.Message{ID: "m-far", MailboxID: mb.ID, ProviderMessageID: "p2", Subject: "B", ReceivedAt: now, Embedding: domain.Vector(farVec)}).Error)
	require.NoError(t, db.Create(&domain.Message{ID: "m-none", MailboxID: mb.ID, ProviderMessageID: "p3", Subject: "C", ReceivedAt: now}).Error)

	adapter := &fakeEmbedAdapter{vec: unitVec(768, 0)}
	svc := NewSemanticService(store.NewMessageStore(db), adapter)

	results, total, err := svc.Search(context.Background(), "user-1", SemanticQuery{Query: "test query", MinSimilarity: 0.5})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, results, 1)
	require.Equal(t, "m-close", results[0].Message.ID)
}

func TestSemanticSearch_EmptyQueryShortCircuits(t *testing.T) {
	db := newTestDB(t)
	adapter := &fakeEmbedAdapter{vec: unitVec(768, 0)}
	svc := NewSemanticService(store.NewMessageStore(db), adapter)

	results, total, err := svc.Search(context.Background(), "user-1", SemanticQuery{})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, results)
}

func TestSemanticSearch_PaginatesResults(t *testing.T) {
	db := newTestDB(t)
	mb := &domain.Mailbox{ID: "mb-1", UserID: "user-1", ProviderAddress: "me@example.com", Provider: domain.ProviderGmail}
	require.NoError(t, db.Create(mb).Error)
	now := time.Now()
	for i, id := range []string{"m-1", "m-2", "m-3"} {
		v := unitVec(768, 0)
		v[1] = float32(i) * 0.01
		require.NoError(t, db.Create(&domain.Message{ID: id, MailboxID: mb.ID, ProviderMessageID: id, Subject: id, ReceivedAt: now, Embedding: domain.Vector(v)}).Error)
	}

	adapter := &fakeEmbedAdapter{vec: unitVec(768, 0)}
	svc := NewSemanticService(store.NewMessageStore(db), adapter)

	page1, total, err := svc.Search(context.Background(), "user-1", SemanticQuery{Query: "q", MinSimilarity: 0.1, Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, page1, 2)

	page2, _, err := svc.Search(context.Background(), "user-1", SemanticQuery{Query: "q", MinSimilarity: 0.1, Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page2, 1)
}
