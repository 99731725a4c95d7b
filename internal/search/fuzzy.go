package search

import (
	"sort"
	"strings"

	"mailsync/internal/domain"
	"mailsync/internal/store"
)

// Scope narrows which fields a fuzzy query matches against.
type Scope string

const (
	ScopeSubject Scope = "subject"
	ScopeSender  Scope = "sender"
	ScopeBody    Scope = "body"
	ScopeAll     Scope = "all"
)

// Weights are the caller-supplied field weights; they are not required
// to sum to 1.
type Weights struct {
	Subject float64
	Sender  float64
	Body    float64
}

// DefaultWeights favors subject matches over sender and body.
func DefaultWeights() Weights { return Weights{Subject: 0.4, Sender: 0.3, Body: 0.3} }

// FuzzyQuery is the full input to a fuzzy search.
type FuzzyQuery struct {
	Query     string
	Threshold float64
	Scope     Scope
	Weights   Weights
	MailboxID string
	Page      int
	Limit     int
}

// FuzzyResult is one scored row.
type FuzzyResult struct {
	Message   *domain.Message
	Relevance float64
}

// Service is the Search Service (C8).
type Service struct {
	messages store.MessageStore
}

// NewService builds a Search Service wired to the Store.
func NewService(messages store.MessageStore) *Service {
	return &Service{messages: messages}
}

// Fuzzy runs a fuzzy search: score every candidate row
// in-process, filter by the scope's inclusion predicate, order by
// relevance descending then id ascending, and paginate. Empty/whitespace
// query returns an empty result without calling the Store.
func (s *Service) Fuzzy(userID string, q FuzzyQuery) ([]FuzzyResult, int64, error) {
	trimmed := strings.TrimSpace(q.Query)
	if trimmed == "" {
		return nil, 0, nil
	}
	if q.Threshold == 0 {
		q.Threshold = 0.2
	}
	if q.Scope == "" {
		q.Scope = ScopeAll
	}
	if q.Weights == (Weights{}) {
		q.Weights = DefaultWeights()
	}

	candidates, err := s.messages.ListForFuzzySearch(userID, q.MailboxID)
	if err != nil {
		return nil, 0, err
	}

	var matched []FuzzyResult
	queryTokens := tokenize(trimmed)
	for _, msg := range candidates {
		subjectScore := wordSim(trimmed, msg.Subject)
		if alt := sim(msg.Subject, trimmed); alt > subjectScore {
			subjectScore = alt
		}
		senderScore := maxOf(
			wordSim(trimmed, msg.FromName), sim(msg.FromName, trimmed),
			wordSim(trimmed, msg.FromEmail), sim(msg.FromEmail, trimmed),
		)
		var bodyScore float64
		includeBody := q.Scope == ScopeBody || q.Scope == ScopeAll
		if includeBody {
			docTokens := tokenize(msg.BodyText + " " + msg.AISummary)
			bodyScore = phraseRank(docTokens, queryTokens)
		}

		relevance := q.Weights.Subject*subjectScore + q.Weights.Sender*senderScore + q.Weights.Body*bodyScore

		if !includes(q.Scope, trimmed, msg, subjectScore, senderScore, bodyScore, q.Threshold) {
			continue
		}
		matched = append(matched, FuzzyResult{Message: msg, Relevance: relevance})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Relevance != matched[j].Relevance {
			return matched[i].Relevance > matched[j].Relevance
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

// includes is the per-scope inclusion predicate.
func includes(scope Scope, q string, msg *domain.Message, subjectScore, senderScore, bodyScore, threshold float64) bool {
	lowerQ := strings.ToLower(q)
	switch scope {
	case ScopeSubject:
		return subjectScore > threshold || strings.Contains(strings.ToLower(msg.Subject), lowerQ)
	case ScopeSender:
		return senderScore > threshold ||
			strings.Contains(strings.ToLower(msg.FromName), lowerQ) ||
			strings.Contains(strings.ToLower(msg.FromEmail), lowerQ)
	case ScopeBody:
		return bodyScore > 0
	default: // ScopeAll
		return subjectScore > threshold ||
			senderScore > threshold ||
			bodyScore > 0 ||
			strings.Contains(strings.ToLower(msg.Subject), lowerQ) ||
			strings.Contains(strings.ToLower(msg.FromName), lowerQ) ||
			strings.Contains(strings.ToLower(msg.FromEmail), lowerQ)
	}
}

func maxOf(values ...float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
