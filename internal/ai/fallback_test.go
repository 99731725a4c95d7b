package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	summary    string
	summaryErr error
	embedding  []float32
	embedErr   error
	calls      int
}

func (f *fakeAdapter) Summarize(ctx context.Context, text string) (string, error) {
	f.calls++
	return f.summary, f.summaryErr
}

func (f *fakeAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.embedding, f.embedErr
}

func TestFallbackAdapter_PrimarySucceeds(t *testing.T) {
	primary := &fakeAdapter{summary: "primary summary", embedding: make([]float32, EmbeddingDims)}
	secondary := &fakeAdapter{summary: "secondary summary"}
	fb := NewFallbackAdapter(primary, secondary)

	summary, err := fb.Summarize(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "primary summary", summary)
	assert.Equal(t, 0, secondary.calls)
}

func TestFallbackAdapter_FailsOverToSecondary(t *testing.T) {
	primary := &fakeAdapter{summaryErr: errors.New("connection refused")}
	secondary := &fakeAdapter{summary: "secondary summary"}
	fb := NewFallbackAdapter(primary, secondary)

	summary, err := fb.Summarize(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "secondary summary", summary)
}

func TestFallbackAdapter_BothFail(t *testing.T) {
	primary := &fakeAdapter{summaryErr: errors.New("boom")}
	secondary := &fakeAdapter{summaryErr: errors.New("boom too")}
	fb := NewFallbackAdapter(primary, secondary)

	_, err := fb.Summarize(context.Background(), "hello")
	require.Error(t, err)
}

func TestFallbackAdapter_NoSecondary(t *testing.T) {
	primary := &fakeAdapter{summaryErr: errors.New("boom")}
	fb := NewFallbackAdapter(primary, nil)

	_, err := fb.Summarize(context.Background(), "hello")
	require.Error(t, err)
}

func TestFallbackAdapter_Embed(t *testing.T) {
	primary := &fakeAdapter{embedErr: errors.New("quota exceeded: 429")}
	secondary := &fakeAdapter{embedding: make([]float32, EmbeddingDims)}
	fb := NewFallbackAdapter(primary, secondary)

	vec, err := fb.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, EmbeddingDims)
}
