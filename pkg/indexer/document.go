// ABOUTME: Search document model produced from entities
// ABOUTME: Field names are the contract with whatever search backend consumes them

package indexer

import (
	"github.com/nainya/entitystore/pkg/metadata"
)

// fieldNamespace keeps the identity fields away from user property names.
const fieldNamespace = "6077004083174677888"

// Identity fields present on every document.
const (
	EntityIDField    = fieldNamespace + ".entity.id"
	StorageIDField   = fieldNamespace + ".kundera.id"
	IndexNameField   = fieldNamespace + ".entity.indexname"
	EntityClassField = "entity.class"
	SubBlockField    = fieldNamespace + ".entity.super.indexname"
)

// IDSeparator joins the entity class and the object id in a storage id.
const IDSeparator = "~"

// Field is one named value of a document.
type Field struct {
	Name      string
	Value     string
	Stored    bool // Value is retrievable from the index
	Tokenized bool // Value is analyzed; otherwise indexed as a single exact term
}

// Document is what gets handed to a DocumentSink.
type Document struct {
	Fields []Field
}

func (d *Document) add(f Field) {
	d.Fields = append(d.Fields, f)
}

// Get returns the value of the first field with the given name.
func (d *Document) Get(name string) (string, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Key identifies the document within a sink. Nested documents of the same
// entity share a storage id and are told apart by their sub-block name.
func (d *Document) Key() string {
	id, _ := d.Get(StorageIDField)
	if sub, ok := d.Get(SubBlockField); ok {
		return id + IDSeparator + sub
	}
	return id
}

// StorageID returns the composite id of an entity: Class~id.
func StorageID(meta *metadata.EntityMetadata, id string) string {
	return meta.Class() + IDSeparator + id
}

// PropertyFieldName returns the document field name of a searchable
// property: indexName.property. Query layers search by this exact name.
func PropertyFieldName(indexName, property string) string {
	return indexName + "." + property
}
