package indexer

import (
	"context"
	"fmt"

	"github.com/nainya/entitystore/pkg/metadata"
)

// DocumentSink commits built documents to a search backend.
type DocumentSink interface {
	IndexDocument(ctx context.Context, meta *metadata.EntityMetadata, doc *Document) error
}

// DocumentRemover is implemented by sinks that can drop every document of
// an entity, nested ones included.
type DocumentRemover interface {
	RemoveDocuments(ctx context.Context, meta *metadata.EntityMetadata, id string) error
}

// Indexer builds documents for entities and hands them to a sink.
type Indexer struct {
	builder *Builder
	sink    DocumentSink
}

// New creates an indexer writing to sink.
func New(builder *Builder, sink DocumentSink) *Indexer {
	return &Indexer{builder: builder, sink: sink}
}

// Builder returns the document builder used by the indexer.
func (ix *Indexer) Builder() *Builder { return ix.builder }

// Index builds and commits the documents of an entity and returns how many
// were written. Entities with embedded columns get one nested document per
// embedded column; others get a single document.
func (ix *Indexer) Index(ctx context.Context, meta *metadata.EntityMetadata, entity any) (int, error) {
	embedded := meta.EmbeddedColumns()
	if len(embedded) == 0 {
		doc, err := ix.builder.BuildDocument(meta, entity)
		if err != nil {
			return 0, err
		}
		if err := ix.sink.IndexDocument(ctx, meta, doc); err != nil {
			return 0, fmt.Errorf("indexer: commit %s: %w", doc.Key(), err)
		}
		return 1, nil
	}

	written := 0
	for _, ec := range embedded {
		doc, err := ix.builder.BuildNestedDocument(meta, entity, ec.Name)
		if err != nil {
			return written, err
		}
		if err := ix.sink.IndexDocument(ctx, meta, doc); err != nil {
			return written, fmt.Errorf("indexer: commit %s: %w", doc.Key(), err)
		}
		written++
	}
	return written, nil
}

// Unindex removes an entity's documents when the sink supports removal.
// It reports whether the sink did anything.
func (ix *Indexer) Unindex(ctx context.Context, meta *metadata.EntityMetadata, id string) (bool, error) {
	remover, ok := ix.sink.(DocumentRemover)
	if !ok {
		return false, nil
	}
	if err := remover.RemoveDocuments(ctx, meta, id); err != nil {
		return false, fmt.Errorf("indexer: remove %s: %w", StorageID(meta, id), err)
	}
	return true, nil
}
