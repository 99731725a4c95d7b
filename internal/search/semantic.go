package search

import (
	"context"
	"sort"

	"mailsync/internal/ai"
	"mailsync/internal/apperr"
	"mailsync/internal/domain"
	"mailsync/internal/store"
)

// SemanticQuery is the input to semantic search.
type SemanticQuery struct {
	Query          string
	MinSimilarity  float64
	MailboxID      string
	Page           int
	Limit          int
}

// SemanticResult is one scored row.
type SemanticResult struct {
	Message    *domain.Message
	Similarity float64
}

// SemanticService is the cosine-similarity half of the Search Service,
// separated from the fuzzy Service because it needs the AI Adapter.
type SemanticService struct {
	messages store.MessageStore
	adapter  ai.Adapter
}

// NewSemanticService builds the semantic half of the Search Service.
func NewSemanticService(messages store.MessageStore, adapter ai.Adapter) *SemanticService {
	return &SemanticService{messages: messages, adapter: adapter}
}

// Search runs a semantic search: embed q, score every row
// with a non-null embedding by cosine similarity, retain rows at or
// above minSimilarity, order descending, and paginate with offset+limit.
func (s *SemanticService) Search(ctx context.Context, userID string, q SemanticQuery) ([]SemanticResult, int64, error) {
	if q.Query == "" {
		return nil, 0, nil
	}
	if q.MinSimilarity == 0 {
		q.MinSimilarity = 0.5
	}

	queryVec, err := s.adapter.Embed(ctx, q.Query)
	if err != nil {
		return nil, 0, apperr.New(apperr.AiFailure, "embed search query", err)
	}
	if len(queryVec) != ai.EmbeddingDims {
		return nil, 0, apperr.New(apperr.IntegrityFailure, "embedding dimension mismatch", nil)
	}
	qVec := domain.Vector(queryVec)

	candidates, err := s.messages.ListForSemanticSearch(userID, q.MailboxID)
	if err != nil {
		return nil, 0, err
	}

	var matched []SemanticResult
	for _, msg := range candidates {
		score := domain.CosineSimilarity(msg.Embedding, qVec)
		if score >= q.MinSimilarity {
			matched = append(matched, SemanticResult{Message: msg, Similarity: score})
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Similarity != matched[j].Similarity {
			return matched[i].Similarity > matched[j].Similarity
		}
		return matched[i].Message.ID < matched[j].Message.ID
	})

	total := int64(len(matched))
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}
