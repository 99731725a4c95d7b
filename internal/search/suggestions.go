package search

import (
	"sort"
	"strings"

	"mailsync/internal/store"
)

// Suggestion is one search-suggestion row: either a contact or a
// keyword token.
type Suggestion struct {
	Kind  string // "contact" | "keyword"
	Value string
}

// SuggestionService backs the typeahead surface behind GET
// /emails/search/suggestions.
type SuggestionService struct {
	messages store.MessageStore
}

// NewSuggestionService builds a suggestion service wired to the Store.
func NewSuggestionService(messages store.MessageStore) *SuggestionService {
	return &SuggestionService{messages: messages}
}

// Suggest returns up to 10 contacts whose display name or
// email address contains prefix, plus up to 10 keyword tokens of
// length > 3 drawn from the user's subjects, ranked by frequency.
func (s *SuggestionService) Suggest(userID, prefix string) ([]Suggestion, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, nil
	}

	var out []Suggestion

	contactRows, err := s.messages.DistinctContactsLike(userID, prefix, 10)
	if err != nil {
		return nil, err
	}
	seenContacts := make(map[string]bool)
	for _, row := range contactRows {
		display := row.FromName
		if display == "" {
			display = row.FromEmail
		}
		if display == "" || seenContacts[display] {
			continue
		}
		seenContacts[display] = true
		out = append(out, Suggestion{Kind: "contact", Value: display})
		if len(out) >= 10 {
			break
		}
	}

	subjects, err := s.messages.SubjectTokenSource(userID)
	if err != nil {
		return nil, err
	}
	freq := make(map[string]int)
	for _, subject := range subjects {
		for _, tok := range tokenize(subject) {
			if len(tok) <= 3 {
				continue
			}
			if !strings.HasPrefix(tok, prefix) {
				continue
			}
			freq[tok]++
		}
	}
	keywords := make([]string, 0, len(freq))
	for tok := range freq {
		keywords = append(keywords, tok)
	}
	sort.SliceStable(keywords, func(i, j int) bool {
		if freq[keywords[i]] != freq[keywords[j]] {
			return freq[keywords[i]] > freq[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if len(keywords) > 10 {
		keywords = keywords[:10]
	}
	for _, tok := range keywords {
		out = append(out, Suggestion{Kind: "keyword", Value: tok})
	}

	return out, nil
}
