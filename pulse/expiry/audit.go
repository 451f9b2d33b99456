package expiry

import (
	"sort"

	"github.com/linkpulse/linkpulse/links"
	"github.com/linkpulse/linkpulse/logger"
)

// auditPage writes one record per URL the page expired and one summary per
// owning user. Candidates the store did not update are not audited.
func (e *Engine) auditPage(runID string, candidates []links.Candidate, updated []string) {
	if len(updated) == 0 {
		return
	}

	byID := make(map[string]links.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	perUser := make(map[string]int)
	for _, id := range updated {
		c, ok := byID[id]
		if !ok {
			continue
		}
		perUser[c.UserID]++
		e.audit.Infow("Short URL expired",
			logger.FieldRunID, runID,
			logger.FieldURLID, c.ID,
			"short_code", c.ShortCode,
			logger.FieldUserID, c.UserID,
			logger.FieldExpiresAt, c.ExpiresAt)
	}

	users := make([]string, 0, len(perUser))
	for u := range perUser {
		users = append(users, u)
	}
	sort.Strings(users)

	for _, u := range users {
		e.audit.Infow("Short URLs expired for user",
			logger.FieldRunID, runID,
			logger.FieldUserID, u,
			logger.FieldCount, perUser[u])
	}
}
