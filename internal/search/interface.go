package search

import "github.com/pders01/foro/internal/storage"

// Result is a matching feed entry.
type Result struct {
	Entry storage.Entry
	Score float64
}

// Searcher defines the search API used by the CLI.
type Searcher interface {
	Search(query string, limit int) ([]*Result, error)
}

// DocCounter reports how many entries are indexed.
type DocCounter interface {
	DocCount() (int, error)
}
