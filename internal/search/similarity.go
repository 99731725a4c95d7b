// Package search implements fuzzy (hybrid trigram + phrase-rank +
// substring) and semantic (cosine-similarity) query planners over
// locally stored messages, plus search suggestions.
package search

import (
	"strings"
	"unicode"
)

// normalize lowercases, trims, and collapses whitespace before any
// comparison.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// levenshtein is the classic DP edit distance over runes.
func levenshtein(a, b []rune) int {
	m, n := len(a), len(b)
	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}
	prev := make([]int, n+1)
	cur := make([]int, n+1)
	for j := 0; j <= n; j++ {
		prev[j] = j
	}
	for i := 1; i <= m; i++ {
		cur[0] = i
		for j := 1; j <= n; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = minInt(minInt(prev[j]+1, cur[j-1]+1), prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[n]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// wordSim is an asymmetric prefix-/substring-aware similarity: how well
// query matches somewhere inside candidate, scaled to [0,1]. Exact
// substring containment and prefix matches score highest; otherwise the
// best per-word edit-distance ratio among candidate's words is used.
func wordSim(query, candidate string) float64 {
	q := normalize(query)
	c := normalize(candidate)
	if q == "" || c == "" {
		return 0
	}
	if strings.Contains(c, q) {
		if strings.HasPrefix(c, q) {
			return 1.0
		}
		return 0.9
	}
	best := 0.0
	qr := []rune(q)
	for _, word := range strings.Fields(c) {
		wr := []rune(word)
		if strings.HasPrefix(word, q) {
			if 0.85 > best {
				best = 0.85
			}
			continue
		}
		dist := levenshtein(qr, wr)
		maxLen := len(qr)
		if len(wr) > maxLen {
			maxLen = len(wr)
		}
		if maxLen == 0 {
			continue
		}
		score := 1.0 - float64(dist)/float64(maxLen)
		if score > best {
			best = score
		}
	}
	return best
}

// sim is a symmetric set similarity: trigram (3-shingle) Jaccard
// overlap between a and b.
func sim(a, b string) float64 {
	a, b = normalize(a), normalize(b)
	if a == "" || b == "" {
		return 0
	}
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		if a == b {
			return 1
		}
		return 0
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func trigrams(s string) map[string]bool {
	padded := "  " + s + "  "
	runes := []rune(padded)
	out := make(map[string]bool)
	for i := 0; i+3 <= len(runes); i++ {
		out[string(runes[i:i+3])] = true
	}
	return out
}

// tokenize splits text into lowercase word tokens, dropping punctuation,
// for phraseRank and keyword-suggestion use.
func tokenize(text string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// stem is a minimal suffix-stripping stemmer: the smallest rule set
// that makes plural/verb-form query words match document tokens.
func stem(token string) string {
	for _, suffix := range []string{"ing", "ed", "es", "s"} {
		if len(token) > len(suffix)+2 && strings.HasSuffix(token, suffix) {
			return strings.TrimSuffix(token, suffix)
		}
	}
	return token
}

// phraseRank scores docTokens against queryTokens in [0,1]: the
// fraction of (stemmed) query tokens present in the document, weighted
// slightly toward exact token matches over stemmed matches.
func phraseRank(docTokens, queryTokens []string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	docSet := make(map[string]bool, len(docTokens))
	docStems := make(map[string]bool, len(docTokens))
	for _, t := range docTokens {
		docSet[t] = true
		docStems[stem(t)] = true
	}
	var score float64
	for _, q := range queryTokens {
		switch {
		case docSet[q]:
			score += 1.0
		case docStems[stem(q)]:
			score += 0.7
		}
	}
	return score / float64(len(queryTokens))
}
