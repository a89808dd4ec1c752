package schema

import (
	"sort"
)

// Record is a map-backed entity whose class comes from a schema file rather
// than a Go type. Values hold the attribute's Go type: string, int64,
// float64, bool, time.Time or []byte.
type Record struct {
	class  string
	values map[string]any
}

// NewRecord creates an empty record of class.
func NewRecord(class string) *Record {
	return &Record{class: class, values: make(map[string]any)}
}

// EntityClass implements metadata.Classifier.
func (r *Record) EntityClass() string { return r.class }

// Get returns the value of an attribute.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Set assigns an attribute value without type checking. Entity.NewRecord
// converts loosely typed input first.
func (r *Record) Set(name string, v any) {
	if v == nil {
		delete(r.values, name)
		return
	}
	r.values[name] = v
}

// Names returns the attribute names holding a value, sorted.
func (r *Record) Names() []string {
	names := make([]string, 0, len(r.values))
	for n := range r.values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Fields returns a copy of the record's values.
func (r *Record) Fields() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}
