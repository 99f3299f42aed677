package query

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultForbiddenKeywords lists the mutating statement keywords rejected
// before execution. The guard is defense in depth for a read-only warehouse,
// not a SQL parser.
var DefaultForbiddenKeywords = []string{
	"insert",
	"update",
	"delete",
	"drop",
	"create",
	"alter",
	"truncate",
	"merge",
	"grant",
	"revoke",
	"commit",
	"rollback",
	"begin",
	"transaction",
}

type guardPattern struct {
	keyword string
	re      *regexp.Regexp
}

// Guard rejects queries containing forbidden keywords as whole words,
// case-insensitively. "desc" inside "description" does not match.
type Guard struct {
	patterns []guardPattern
}

// NewGuard compiles word-boundary patterns for the given keywords.
// An empty keyword list falls back to DefaultForbiddenKeywords.
func NewGuard(keywords []string) *Guard {
	if len(keywords) == 0 {
		keywords = DefaultForbiddenKeywords
	}
	patterns := make([]guardPattern, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}
		patterns = append(patterns, guardPattern{
			keyword: keyword,
			re:      regexp.MustCompile(fmt.Sprintf(`\b%s\b`, regexp.QuoteMeta(keyword))),
		})
	}
	return &Guard{patterns: patterns}
}

// Check returns the first forbidden keyword found in the query, if any.
// Keywords are tested in configuration order.
func (g *Guard) Check(sqlText string) (string, bool) {
	lowered := strings.ToLower(sqlText)
	for _, pattern := range g.patterns {
		if pattern.re.MatchString(lowered) {
			return pattern.keyword, true
		}
	}
	return "", false
}
