package search

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/pders01/foro/internal/debuglog"
	"github.com/pders01/foro/internal/feed"
	"github.com/pders01/foro/internal/storage"
)

const (
	fieldContent    = "content"
	fieldAuthorName = "author_name"
	fieldAuthorID   = "author_id"
	fieldPhoto      = "author_photo"
	fieldCreatedAt  = "created_at"
)

// Index is a full-text index over feed entries.
type Index struct {
	idx bleve.Index
}

// NewIndex opens the index at indexPath, creating it if needed. An empty
// path keeps the index in memory.
func NewIndex(indexPath string) (*Index, error) {
	if indexPath == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating in-memory index: %w", err)
		}
		return &Index{idx: idx}, nil
	}

	idx, err := bleve.Open(indexPath)
	if err != nil {
		if mkErr := os.MkdirAll(filepath.Dir(indexPath), 0o755); mkErr != nil {
			return nil, fmt.Errorf("creating index directory: %w", mkErr)
		}
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating index: %w", err)
		}
	}
	return &Index{idx: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name
	content.Store = true
	content.IncludeTermVectors = true

	authorName := bleve.NewTextFieldMapping()
	authorName.Analyzer = standard.Name
	authorName.Store = true

	authorID := bleve.NewTextFieldMapping()
	authorID.Analyzer = keyword.Name
	authorID.Store = true

	photo := bleve.NewTextFieldMapping()
	photo.Index = false
	photo.Store = true

	created := bleve.NewNumericFieldMapping()
	created.Store = true

	dm.AddFieldMappingsAt(fieldContent, content)
	dm.AddFieldMappingsAt(fieldAuthorName, authorName)
	dm.AddFieldMappingsAt(fieldAuthorID, authorID)
	dm.AddFieldMappingsAt(fieldPhoto, photo)
	dm.AddFieldMappingsAt(fieldCreatedAt, created)

	im.DefaultMapping = dm
	return im
}

// IndexEntries adds or replaces the given entries.
func (i *Index) IndexEntries(entries []storage.Entry) error {
	batch := i.idx.NewBatch()
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		err := batch.Index(docID(e.ID), map[string]any{
			fieldContent:    e.Content,
			fieldAuthorName: e.AuthorName,
			fieldAuthorID:   e.AuthorID,
			fieldPhoto:      e.AuthorPhotoURL,
			fieldCreatedAt:  float64(e.CreatedAt),
		})
		if err != nil {
			return fmt.Errorf("indexing entry %s: %w", e.ID, err)
		}
	}
	if err := i.idx.Batch(batch); err != nil {
		return fmt.Errorf("writing index batch: %w", err)
	}
	return nil
}

// Attach keeps the index in step with cache. The returned subscription stops
// the updates.
func (i *Index) Attach(cache *feed.Cache) *feed.Subscription {
	return cache.Subscribe(func(entries []storage.Entry) {
		if err := i.IndexEntries(entries); err != nil {
			debuglog.Errorf("search index update failed: %v", err)
			return
		}
		debuglog.Debugf("search index updated with %d entries", len(entries))
	})
}

// Search matches query terms against content and author names, content
// weighted higher. Queries shorter than two characters return nothing.
func (i *Index) Search(query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []*Result{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	var qs []bleveQuery.Query
	for _, tok := range tokenize(query) {
		qc := bleve.NewMatchQuery(tok)
		qc.SetField(fieldContent)
		qc.SetBoost(2.0)
		qcp := bleve.NewPrefixQuery(tok)
		qcp.SetField(fieldContent)
		qcp.SetBoost(1.5)
		qa := bleve.NewMatchQuery(tok)
		qa.SetField(fieldAuthorName)
		qa.SetBoost(1.0)
		qap := bleve.NewPrefixQuery(tok)
		qap.SetField(fieldAuthorName)
		qap.SetBoost(0.8)
		qs = append(qs, qc, qcp, qa, qap)
	}
	if len(qs) == 0 {
		return []*Result{}, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	req.Fields = []string{fieldContent, fieldAuthorName, fieldAuthorID, fieldPhoto, fieldCreatedAt}
	res, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	out := make([]*Result, 0, len(res.Hits))
	for _, h := range res.Hits {
		e := storage.Entry{ID: strings.TrimPrefix(h.ID, "entry:")}
		if v, ok := h.Fields[fieldContent].(string); ok {
			e.Content = v
		}
		if v, ok := h.Fields[fieldAuthorName].(string); ok {
			e.AuthorName = v
		}
		if v, ok := h.Fields[fieldAuthorID].(string); ok {
			e.AuthorID = v
		}
		if v, ok := h.Fields[fieldPhoto].(string); ok {
			e.AuthorPhotoURL = v
		}
		if v, ok := h.Fields[fieldCreatedAt].(float64); ok {
			e.CreatedAt = int64(v)
		}
		out = append(out, &Result{Entry: e, Score: h.Score})
	}
	return out, nil
}

func (i *Index) DocCount() (int, error) {
	n, err := i.idx.DocCount()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (i *Index) Close() error {
	return i.idx.Close()
}

func docID(entryID string) string { return "entry:" + entryID }

// tokenize lowercases text and splits it into terms of two or more letters
// or digits.
func tokenize(text string) []string {
	var terms []string
	var current strings.Builder
	flush := func() {
		if utf8.RuneCountInString(current.String()) > 1 {
			terms = append(terms, current.String())
		}
		current.Reset()
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return terms
}
