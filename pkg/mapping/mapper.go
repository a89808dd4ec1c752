// ABOUTME: Attribute wrapper and unwrapper between entities and hash records
// ABOUTME: Pure transforms over the metadata view; no I/O, safe for concurrent use

package mapping

import (
	"fmt"
	"sort"

	"github.com/nainya/entitystore/pkg/errs"
	"github.com/nainya/entitystore/pkg/metadata"
)

// AttributeRecord is the store-native form of one entity: the primary record
// columns and the ranked index entries derived from them.
type AttributeRecord struct {
	Columns map[string][]byte  // column name -> raw value
	Indexes map[string]float64 // table:column -> score
}

func newAttributeRecord(size int) *AttributeRecord {
	return &AttributeRecord{
		Columns: make(map[string][]byte, size),
		Indexes: make(map[string]float64, size),
	}
}

// ColumnNames returns the record's column names in sorted order.
func (r *AttributeRecord) ColumnNames() []string {
	names := make([]string, 0, len(r.Columns))
	for n := range r.Columns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IndexKeys returns the record's index keys in sorted order.
func (r *AttributeRecord) IndexKeys() []string {
	keys := make([]string, 0, len(r.Indexes))
	for k := range r.Indexes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Wrap converts an entity into its attribute record.
//
// The identifier is left out of the columns, since it is the row key, except
// when it is the only attribute; it never gets an index entry. Embeddable
// attributes are skipped, and so are attributes whose value is null.
func Wrap(meta *metadata.EntityMetadata, entity any) (*AttributeRecord, error) {
	if entity == nil {
		return nil, &errs.FieldAccessError{Class: meta.Class(), Field: meta.IDAttribute().Name, Err: fmt.Errorf("nil entity")}
	}

	attrs := meta.Attributes()
	id := meta.IDAttribute()
	rec := newAttributeRecord(len(attrs))

	for _, attr := range attrs {
		if attr == id {
			if len(attrs) == 1 {
				raw, err := attr.Access.Bytes(entity)
				if err != nil {
					return nil, metadata.WithClass(err, meta.Class())
				}
				if raw != nil {
					rec.Columns[attr.Column] = raw
				}
			}
			continue
		}

		// Embedded structures have no hash representation yet
		if attr.Embeddable {
			continue
		}

		s, ok, err := attr.Access.String(entity)
		if err != nil {
			return nil, metadata.WithClass(err, meta.Class())
		}
		if !ok {
			continue
		}
		raw, err := attr.Access.Bytes(entity)
		if err != nil {
			return nil, metadata.WithClass(err, meta.Class())
		}
		if raw == nil {
			raw = []byte{}
		}

		rec.Columns[attr.Column] = raw
		rec.Indexes[IndexKey(meta, attr.Column)] = Score(s)
	}

	return rec, nil
}

// Unwrap rebuilds an entity from a primary record. An empty record yields a
// nil entity and no error, which callers treat as "not found". The
// identifier is not patched in; the caller supplies it from the lookup key.
func Unwrap(meta *metadata.EntityMetadata, columns map[string][]byte) (any, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(columns))
	for n := range columns {
		names = append(names, n)
	}
	sort.Strings(names)

	var entity any
	for _, column := range names {
		if entity == nil {
			e, err := meta.NewInstance()
			if err != nil {
				return nil, err
			}
			entity = e
		}

		fieldName, ok := meta.FieldName(column)
		if !ok {
			return nil, &errs.UnknownColumnError{Class: meta.Class(), Column: column}
		}
		attr, ok := meta.Attribute(fieldName)
		if !ok {
			return nil, &errs.UnknownColumnError{Class: meta.Class(), Column: column}
		}
		if attr.Embeddable {
			return nil, errs.Unsupported(errs.CapabilityEmbedded, "unwrap embedded attribute "+fieldName)
		}

		if err := attr.Access.Set(entity, columns[column]); err != nil {
			return nil, metadata.WithClass(err, meta.Class())
		}
	}

	return entity, nil
}

// PatchID writes the lookup key back into the identifier field.
func PatchID(meta *metadata.EntityMetadata, entity any, rowKey string) error {
	if err := meta.IDAttribute().Access.Set(entity, []byte(rowKey)); err != nil {
		return metadata.WithClass(err, meta.Class())
	}
	return nil
}

// Footprint returns every column and index key an entity of this type can
// occupy, whatever its current values. Scores are zero; the record is only
// good for deletes.
func Footprint(meta *metadata.EntityMetadata) *AttributeRecord {
	attrs := meta.Attributes()
	id := meta.IDAttribute()
	rec := newAttributeRecord(len(attrs))

	for _, attr := range attrs {
		if attr.Embeddable {
			continue
		}
		if attr == id {
			if len(attrs) == 1 {
				rec.Columns[attr.Column] = nil
			}
			continue
		}
		rec.Columns[attr.Column] = nil
		rec.Indexes[IndexKey(meta, attr.Column)] = 0
	}
	return rec
}

// Cleared returns the columns and index keys of the type that rec does not
// hold, which are those of null attributes. Writing rec and deleting these
// replaces whatever an earlier save left behind.
func Cleared(meta *metadata.EntityMetadata, rec *AttributeRecord) *AttributeRecord {
	out := Footprint(meta)
	for col := range rec.Columns {
		delete(out.Columns, col)
	}
	for key := range rec.Indexes {
		delete(out.Indexes, key)
	}
	return out
}
