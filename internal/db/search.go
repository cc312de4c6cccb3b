package db

// TextQuery is the input for BM25 full-text search.
type TextQuery struct {
	IndexName string
	// Query is the raw user query; drivers escape it before building the
	// FT.SEARCH command.
	Query string
	// TagFilter restricts hits to documents whose TagField holds one of
	// the given values. nil means no restriction.
	TagField  string
	TagFilter []string
	TopK      int
	// ReturnFields limits the hash fields returned per hit.
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
