package metadata

import (
	"fmt"
)

// Build validates an entity definition and produces its metadata view.
func Build(def Entity) (*EntityMetadata, error) {
	if def.Class == "" {
		return nil, fmt.Errorf("metadata: entity class is required")
	}
	if def.Table == "" {
		return nil, fmt.Errorf("metadata: %s: table name is required", def.Class)
	}
	if len(def.Attributes) == 0 {
		return nil, fmt.Errorf("metadata: %s: at least one attribute is required", def.Class)
	}

	m := &EntityMetadata{
		class:         def.Class,
		table:         def.Table,
		indexName:     def.IndexName,
		relations:     append([]string(nil), def.Relations...),
		compositeKey:  def.CompositeKey,
		newInstance:   def.New,
		byName:        make(map[string]*Attribute, len(def.Attributes)),
		columnToField: make(map[string]string, len(def.Attributes)),
		embeddedByNm:  make(map[string]*EmbeddedColumn, len(def.Embedded)),
	}
	if m.indexName == "" {
		m.indexName = def.Table
	}

	for _, in := range def.Attributes {
		if in == nil || in.Name == "" {
			return nil, fmt.Errorf("metadata: %s: attribute without a name", def.Class)
		}
		if in.Access == nil && !in.Embeddable {
			return nil, fmt.Errorf("metadata: %s.%s: accessor is required", def.Class, in.Name)
		}
		if _, dup := m.byName[in.Name]; dup {
			return nil, fmt.Errorf("metadata: %s: duplicate attribute %q", def.Class, in.Name)
		}

		// Copy so the caller's definition can't mutate the shared view
		a := *in
		if a.Column == "" {
			a.Column = a.Name
		}
		if a.IndexAs == "" {
			a.IndexAs = a.Name
		}
		if other, dup := m.columnToField[a.Column]; dup {
			return nil, fmt.Errorf("metadata: %s: column %q mapped by both %q and %q", def.Class, a.Column, other, a.Name)
		}

		m.attributes = append(m.attributes, &a)
		m.byName[a.Name] = &a
		m.columnToField[a.Column] = a.Name
		if a.Indexed && !a.Embeddable {
			m.indexed = append(m.indexed, PropertyIndex{Name: a.IndexAs, Attribute: &a})
		}
	}

	id, ok := m.byName[def.ID]
	if !ok {
		return nil, fmt.Errorf("metadata: %s: identifier attribute %q is not defined", def.Class, def.ID)
	}
	if id.Embeddable {
		return nil, fmt.Errorf("metadata: %s: identifier attribute %q cannot be embeddable", def.Class, def.ID)
	}
	m.id = id

	for _, ec := range def.Embedded {
		if ec == nil || ec.Name == "" {
			return nil, fmt.Errorf("metadata: %s: embedded column without a name", def.Class)
		}
		if ec.Value == nil {
			return nil, fmt.Errorf("metadata: %s: embedded column %q has no value accessor", def.Class, ec.Name)
		}
		if _, dup := m.embeddedByNm[ec.Name]; dup {
			return nil, fmt.Errorf("metadata: %s: duplicate embedded column %q", def.Class, ec.Name)
		}
		c := &EmbeddedColumn{Name: ec.Name, Value: ec.Value}
		for _, col := range ec.Columns {
			if col == nil || col.Access == nil {
				return nil, fmt.Errorf("metadata: %s.%s: embedded column without accessor", def.Class, ec.Name)
			}
			a := *col
			if a.Column == "" {
				a.Column = a.Name
			}
			c.Columns = append(c.Columns, &a)
		}
		m.embedded = append(m.embedded, c)
		m.embeddedByNm[c.Name] = c
	}

	return m, nil
}

// MustBuild is Build for definitions known to be valid at compile time.
func MustBuild(def Entity) *EntityMetadata {
	m, err := Build(def)
	if err != nil {
		panic(err)
	}
	return m
}
