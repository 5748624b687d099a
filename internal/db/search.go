package db

// TagFilter restricts a search to documents whose tag field holds any of Values.
type TagFilter struct {
	Field  string
	Values []string
}

// IDQuery is the input for a scored key-only text search.
type IDQuery struct {
	IndexName string
	// Text is matched against the TEXT fields; every term must match.
	// Empty text matches every document.
	Text   string
	Tags   []TagFilter
	Offset int
	Limit  int
}

// IDResult is the output of a key-only search.
type IDResult struct {
	// Total is the number of matching documents, not just the returned page.
	Total   int64
	Entries []IDEntry
}

// IDEntry is a single document key with its relevance score.
type IDEntry struct {
	Key   string
	Score float64
}

// IndexStats summarizes an FT index.
type IndexStats struct {
	Name    string
	NumDocs uint64
}
