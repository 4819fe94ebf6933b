// Package search provides full-text search over resolutions and chair
// comments: Meilisearch when configured, Postgres FTS as the fallback.
package search

import "strings"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultResolution ResultType = "resolution"
	ResultComment    ResultType = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Committee string     `json:"committee"`
	Bloc      string     `json:"bloc"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
}

// Query describes a search request. Committee is mandatory; results never
// cross committees.
type Query struct {
	Text       string
	Committee  string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexResolution(r ResolutionRecord) error
	IndexComment(c CommentRecord) error
	DeleteResolution(id string) error
}

// ResolutionRecord is the data we index for one bloc's resolution.
type ResolutionRecord struct {
	ID        string `json:"id"`
	Committee string `json:"committee"`
	Bloc      string `json:"bloc"`
	Headers   string `json:"headers"`
	Text      string `json:"text"`
}

// CommentRecord is the data we index for a chair comment.
type CommentRecord struct {
	ID        string `json:"id"`
	Committee string `json:"committee"`
	Bloc      string `json:"bloc"`
	Chair     string `json:"chair"`
	Text      string `json:"text"`
}

// ResolutionID builds the stable index id for a bloc's resolution. Meilisearch
// ids allow only alphanumerics, hyphens and underscores.
func ResolutionID(committee, bloc string) string {
	return sanitizeID(committee) + "__" + sanitizeID(bloc)
}

func sanitizeID(input string) string {
	var b strings.Builder
	for _, r := range input {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
