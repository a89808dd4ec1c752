// ABOUTME: Read-only entity metadata view consumed by the mapping engine
// ABOUTME: Built once per entity type at bootstrap, shared and never mutated

package metadata

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/nainya/entitystore/pkg/errs"
	"github.com/nainya/entitystore/pkg/property"
)

// Attribute describes one persistable field of an entity.
type Attribute struct {
	Name       string            // Logical field name
	Column     string            // Physical column name (defaults to Name)
	Embeddable bool              // Declared type is an embeddable/composite type
	Indexed    bool              // Searchable through the document index
	IndexAs    string            // Search property name (defaults to Name)
	Access     property.Accessor // Getter/setter pair
}

// PropertyIndex is an attribute marked as searchable.
type PropertyIndex struct {
	Name      string
	Attribute *Attribute
}

// EmbeddedColumn is a named embedded substructure of an entity.
type EmbeddedColumn struct {
	Name    string
	Value   func(entity any) (any, error) // Returns the embedded object, nil if absent
	Columns []*Attribute                  // Accessors operate on the embedded object
}

// Entity is the definition an EntityMetadata is built from.
type Entity struct {
	Class        string // Entity class name
	Table        string // Table (hash key namespace)
	IndexName    string // Search index namespace (defaults to Table)
	ID           string // Field name of the identifier attribute
	Attributes   []*Attribute
	Embedded     []*EmbeddedColumn
	Relations    []string
	CompositeKey bool
	New          func() any // Allocates an empty instance
}

// EntityMetadata is the immutable view of an entity type.
type EntityMetadata struct {
	class        string
	table        string
	indexName    string
	id           *Attribute
	attributes   []*Attribute
	indexed      []PropertyIndex
	embedded     []*EmbeddedColumn
	relations    []string
	compositeKey bool
	newInstance  func() any

	byName        map[string]*Attribute
	columnToField map[string]string
	embeddedByNm  map[string]*EmbeddedColumn
}

// Class returns the entity class name.
func (m *EntityMetadata) Class() string { return m.class }

// TableName returns the table the entity is stored in.
func (m *EntityMetadata) TableName() string { return m.table }

// IndexName returns the search index namespace.
func (m *EntityMetadata) IndexName() string { return m.indexName }

// IDAttribute returns the identifier attribute.
func (m *EntityMetadata) IDAttribute() *Attribute { return m.id }

// Attributes returns the persistable attributes in definition order.
// The slice is shared; callers must not modify it.
func (m *EntityMetadata) Attributes() []*Attribute { return m.attributes }

// IndexProperties returns the searchable attributes in definition order.
func (m *EntityMetadata) IndexProperties() []PropertyIndex { return m.indexed }

// EmbeddedColumns returns the embedded substructures.
func (m *EntityMetadata) EmbeddedColumns() []*EmbeddedColumn { return m.embedded }

// EmbeddedColumn looks up an embedded substructure by name.
func (m *EntityMetadata) EmbeddedColumn(name string) (*EmbeddedColumn, bool) {
	ec, ok := m.embeddedByNm[name]
	return ec, ok
}

// Relations returns the relation names declared on the entity.
func (m *EntityMetadata) Relations() []string { return m.relations }

// HasCompositeKey reports whether the identifier is a composite key.
func (m *EntityMetadata) HasCompositeKey() bool { return m.compositeKey }

// FieldName maps a physical column name back to its logical field name.
func (m *EntityMetadata) FieldName(column string) (string, bool) {
	name, ok := m.columnToField[column]
	return name, ok
}

// Attribute looks up an attribute by logical field name.
func (m *EntityMetadata) Attribute(name string) (*Attribute, bool) {
	a, ok := m.byName[name]
	return a, ok
}

// NewInstance allocates an empty entity.
func (m *EntityMetadata) NewInstance() (any, error) {
	if m.newInstance == nil {
		return nil, &errs.InstantiationError{Class: m.class, Err: fmt.Errorf("no constructor registered")}
	}
	e := m.newInstance()
	if e == nil {
		return nil, &errs.InstantiationError{Class: m.class, Err: fmt.Errorf("constructor returned nil")}
	}
	return e, nil
}

// RowKey returns the string form of the entity's identifier.
func (m *EntityMetadata) RowKey(entity any) (string, error) {
	id, ok, err := m.id.Access.String(entity)
	if err != nil {
		return "", WithClass(err, m.class)
	}
	if !ok || id == "" {
		return "", &errs.FieldAccessError{Class: m.class, Field: m.id.Name, Err: fmt.Errorf("identifier is empty")}
	}
	return id, nil
}

// Classifier is implemented by entities whose class is not their Go type
// name, such as map-backed records.
type Classifier interface {
	EntityClass() string
}

// ClassOf returns the entity class of an instance.
func ClassOf(entity any) string {
	if c, ok := entity.(Classifier); ok {
		return c.EntityClass()
	}
	t := reflect.TypeOf(entity)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// WithClass fills in the class name on field access errors raised by
// accessors, which only know the field.
func WithClass(err error, class string) error {
	var fe *errs.FieldAccessError
	if errors.As(err, &fe) && fe.Class == "" {
		return &errs.FieldAccessError{Class: class, Field: fe.Field, Err: fe.Err}
	}
	return err
}
