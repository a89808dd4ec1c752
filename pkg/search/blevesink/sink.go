// ABOUTME: Search sink committing entity documents into a bleve index
// ABOUTME: Identity fields are stored exact terms; property fields are analyzed and unstored

package blevesink

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/document"
	index "github.com/blevesearch/bleve_index_api"
	"github.com/rs/zerolog"

	"github.com/nainya/entitystore/pkg/indexer"
	"github.com/nainya/entitystore/pkg/metadata"
)

// removeBatchSize bounds how many hits one removal pass fetches
const removeBatchSize = 100

// Sink writes documents to a bleve index. It is safe for concurrent use.
type Sink struct {
	mu       sync.Mutex
	idx      bleve.Index
	analyzer analysis.Analyzer
	log      zerolog.Logger
}

// New wraps an open bleve index.
func New(idx bleve.Index, log zerolog.Logger) (*Sink, error) {
	an := idx.Mapping().AnalyzerNamed(standard.Name)
	if an == nil {
		return nil, fmt.Errorf("blevesink: analyzer %q not available", standard.Name)
	}
	return &Sink{
		idx:      idx,
		analyzer: an,
		log:      log.With().Str("component", "blevesink").Logger(),
	}, nil
}

// NewMemory creates a sink over an in-memory index.
func NewMemory(log zerolog.Logger) (*Sink, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("blevesink: create memory index: %w", err)
	}
	return New(idx, log)
}

// Open opens the index at path, creating it when it does not exist.
func Open(path string, log zerolog.Logger) (*Sink, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("blevesink: open %s: %w", path, err)
	}
	return New(idx, log)
}

// Close closes the underlying index.
func (s *Sink) Close() error {
	return s.idx.Close()
}

// DocCount returns the number of documents in the index.
func (s *Sink) DocCount() (uint64, error) {
	return s.idx.DocCount()
}

// IndexDocument commits one document, replacing any document with the same key.
func (s *Sink) IndexDocument(ctx context.Context, meta *metadata.EntityMetadata, doc *indexer.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bdoc := document.NewDocument(doc.Key())
	for _, f := range doc.Fields {
		bdoc.AddField(s.field(f))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.idx.NewBatch()
	if err := batch.IndexAdvanced(bdoc); err != nil {
		return err
	}
	if err := s.idx.Batch(batch); err != nil {
		return err
	}

	s.log.Debug().
		Str("class", meta.Class()).
		Str("doc", doc.Key()).
		Int("fields", len(doc.Fields)).
		Msg("document indexed")
	return nil
}

func (s *Sink) field(f indexer.Field) document.Field {
	opts := index.IndexField
	if f.Stored {
		opts |= index.StoreField
	}
	if f.Tokenized {
		return document.NewTextFieldCustom(f.Name, nil, []byte(f.Value), opts, s.analyzer)
	}
	// No analyzer: the whole value is one term
	return document.NewTextFieldWithIndexingOptions(f.Name, nil, []byte(f.Value), opts)
}

// RemoveDocuments deletes every document of the entity, nested ones included.
func (s *Sink) RemoveDocuments(ctx context.Context, meta *metadata.EntityMetadata, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	storageID := indexer.StorageID(meta, id)
	removed := 0
	for {
		q := bleve.NewTermQuery(storageID)
		q.SetField(indexer.StorageIDField)
		req := bleve.NewSearchRequestOptions(q, removeBatchSize, 0, false)

		res, err := s.idx.SearchInContext(ctx, req)
		if err != nil {
			return err
		}
		if len(res.Hits) == 0 {
			break
		}

		batch := s.idx.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := s.idx.Batch(batch); err != nil {
			return err
		}
		removed += len(res.Hits)
	}

	s.log.Debug().
		Str("class", meta.Class()).
		Str("id", storageID).
		Int("documents", removed).
		Msg("documents removed")
	return nil
}

// Search returns the storage ids (Class~id) of entities whose property
// matches text under the property's analyzer. Nested documents of one entity
// collapse to a single id.
func (s *Sink) Search(ctx context.Context, meta *metadata.EntityMetadata, prop, text string, limit int) ([]string, error) {
	q := bleve.NewMatchQuery(text)
	q.SetField(indexer.PropertyFieldName(meta.IndexName(), prop))
	q.Analyzer = standard.Name

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{indexer.StorageIDField}

	res, err := s.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(res.Hits))
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, _ := hit.Fields[indexer.StorageIDField].(string)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
