package search

import "strings"

// LocalSuffix is appended to queries about the local area to steer results
// towards Houston preparedness sources.
const LocalSuffix = "Houston Texas disaster emergency preparedness"

var localKeywords = []string{
	"houston", "harris county", "texas", "hurricane", "flood", "disaster", "emergency",
}

// BuildQuery returns the query sent upstream: the user's text plus
// LocalSuffix when it mentions a local keyword, otherwise unchanged.
func BuildQuery(query string) string {
	lower := strings.ToLower(query)
	for _, k := range localKeywords {
		if strings.Contains(lower, k) {
			return query + " " + LocalSuffix
		}
	}
	return query
}
