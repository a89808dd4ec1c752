// ABOUTME: Builds search documents from entities and embedded substructures
// ABOUTME: Null or unreadable properties are skipped with a diagnostic

package indexer

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nainya/entitystore/pkg/metadata"
	"github.com/nainya/entitystore/pkg/property"
)

// Builder converts entities into documents. It holds no per-call state and
// may be shared between goroutines.
type Builder struct {
	log zerolog.Logger
}

// NewBuilder creates a document builder that reports skipped fields to log.
func NewBuilder(log zerolog.Logger) *Builder {
	return &Builder{log: log.With().Str("component", "indexer").Logger()}
}

// BuildDocument creates the document for an entity: the identity block
// followed by one field per searchable property.
func (b *Builder) BuildDocument(meta *metadata.EntityMetadata, entity any) (*Document, error) {
	doc := &Document{}
	if err := b.addIdentity(meta, entity, doc); err != nil {
		return nil, err
	}
	b.addProperties(meta, entity, doc)
	return doc, nil
}

// BuildNestedDocument creates the document for one embedded substructure of
// an entity. Besides the identity block it carries a marker field with the
// sub-block name, the embedded object's columns and the entity's searchable
// properties.
func (b *Builder) BuildNestedDocument(meta *metadata.EntityMetadata, entity any, subBlock string) (*Document, error) {
	ec, ok := meta.EmbeddedColumn(subBlock)
	if !ok {
		return nil, fmt.Errorf("indexer: %s has no embedded column %q", meta.Class(), subBlock)
	}

	doc := &Document{}
	if err := b.addIdentity(meta, entity, doc); err != nil {
		return nil, err
	}
	doc.add(Field{Name: SubBlockField, Value: subBlock, Stored: true})

	embedded, err := ec.Value(entity)
	if err != nil {
		return nil, metadata.WithClass(err, meta.Class())
	}
	if embedded == nil {
		b.log.Warn().
			Str("class", meta.Class()).
			Str("sub_block", subBlock).
			Msg("embedded value is null")
	} else {
		for _, col := range ec.Columns {
			b.addField(meta, embedded, col.Access, col.Column, doc)
		}
	}

	b.addProperties(meta, entity, doc)
	return doc, nil
}

// addIdentity adds the four identity fields. They are stored and indexed as
// exact terms so a document can be found and deleted by id.
func (b *Builder) addIdentity(meta *metadata.EntityMetadata, entity any, doc *Document) error {
	id, err := meta.RowKey(entity)
	if err != nil {
		return fmt.Errorf("indexer: id could not be read: %w", err)
	}

	doc.add(Field{Name: EntityIDField, Value: id, Stored: true})
	doc.add(Field{Name: StorageIDField, Value: StorageID(meta, id), Stored: true})
	doc.add(Field{Name: EntityClassField, Value: strings.ToLower(meta.Class()), Stored: true})
	doc.add(Field{Name: IndexNameField, Value: meta.IndexName(), Stored: true})
	return nil
}

func (b *Builder) addProperties(meta *metadata.EntityMetadata, entity any, doc *Document) {
	for _, p := range meta.IndexProperties() {
		b.addField(meta, entity, p.Attribute.Access, p.Name, doc)
	}
}

func (b *Builder) addField(meta *metadata.EntityMetadata, obj any, access property.Accessor, name string, doc *Document) {
	value, ok, err := access.String(obj)
	if err != nil {
		b.log.Error().
			Err(err).
			Str("class", meta.Class()).
			Str("field", name).
			Msg("error accessing field, skipped")
		return
	}
	if !ok {
		b.log.Warn().
			Str("class", meta.Class()).
			Str("field", name).
			Msg("value is null, field skipped")
		return
	}

	doc.add(Field{
		Name:      PropertyFieldName(meta.IndexName(), name),
		Value:     value,
		Tokenized: true,
	})
}
