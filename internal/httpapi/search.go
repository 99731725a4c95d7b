package httpapi

import (
	"net/http"
	"strconv"

	"mailsync/internal/search"

	"github.com/gin-gonic/gin"
)

// searchFuzzy implements GET /emails/search/fuzzy. Mounted
// under the /emails group in registerEmailRoutes.
func (s *Server) searchFuzzy(c *gin.Context) {
	uid := userID(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	threshold, _ := strconv.ParseFloat(c.Query("threshold"), 64)
	weights := search.DefaultWeights()
	if v, err := strconv.ParseFloat(c.Query("weightSubject"), 64); err == nil {
		weights.Subject = v
	}
	if v, err := strconv.ParseFloat(c.Query("weightSender"), 64); err == nil {
		weights.Sender = v
	}
	if v, err := strconv.ParseFloat(c.Query("weightBody"), 64); err == nil {
		weights.Body = v
	}

	q := search.FuzzyQuery{
		Query:     c.Query("q"),
		Threshold: threshold,
		Scope:     search.Scope(c.DefaultQuery("scope", string(search.ScopeAll))),
		Weights:   weights,
		MailboxID: c.Query("mailboxId"),
		Page:      page,
		Limit:     limit,
	}
	results, total, err := s.fuzzy.Fuzzy(uid, q)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(results))
	for _, r := range results {
		out = append(out, gin.H{"email": toEmailSummary(r.Message), "relevance": r.Relevance})
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": buildPageMeta(page, limit, total)})
}

// searchSemantic implements GET /emails/search/semantic.
func (s *Server) searchSemantic(c *gin.Context) {
	uid := userID(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	minSim, _ := strconv.ParseFloat(c.Query("minSimilarity"), 64)

	q := search.SemanticQuery{
		Query:         c.Query("q"),
		MinSimilarity: minSim,
		MailboxID:     c.Query("mailboxId"),
		Page:          page,
		Limit:         limit,
	}
	results, total, err := s.semantic.Search(c.Request.Context(), uid, q)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(results))
	for _, r := range results {
		out = append(out, gin.H{"email": toEmailSummary(r.Message), "similarity": r.Similarity})
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": buildPageMeta(page, limit, total)})
}

// searchSuggestions implements GET /emails/search/suggestions?q=:
// {contacts[], keywords[], recentSearches[]}. Recent searches are not
// persisted server-side, so that list is always empty here.
func (s *Server) searchSuggestions(c *gin.Context) {
	uid := userID(c)
	suggestions, err := s.suggest.Suggest(uid, c.Query("q"))
	if err != nil {
		fail(c, err)
		return
	}
	contacts := make([]string, 0)
	keywords := make([]string, 0)
	for _, sg := range suggestions {
		switch sg.Kind {
		case "contact":
			contacts = append(contacts, sg.Value)
		case "keyword":
			keywords = append(keywords, sg.Value)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"contacts":       contacts,
		"keywords":       keywords,
		"recentSearches": []string{},
	})
}
