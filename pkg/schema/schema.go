// ABOUTME: Declarative entity schemas loaded from YAML
// ABOUTME: Each schema entity becomes metadata over map-backed Records

package schema

import (
	"encoding/base64"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nainya/entitystore/pkg/metadata"
	"github.com/nainya/entitystore/pkg/property"
)

// Attribute types understood in schema files
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
	TypeTime   = "time"
	TypeBytes  = "bytes"
)

// File is the YAML layout of a schema file
type File struct {
	Entities []EntityDef `yaml:"entities"`
}

// EntityDef declares one entity class
type EntityDef struct {
	Class      string         `yaml:"class"`
	Table      string         `yaml:"table"`
	Index      string         `yaml:"index"`
	ID         string         `yaml:"id"`
	Attributes []AttributeDef `yaml:"attributes"`
}

// AttributeDef declares one attribute
type AttributeDef struct {
	Name    string `yaml:"name"`
	Column  string `yaml:"column"`
	Type    string `yaml:"type"`
	Indexed bool   `yaml:"indexed"`
	IndexAs string `yaml:"index_as"`
}

// Entity is a compiled schema entity
type Entity struct {
	meta  *metadata.EntityMetadata
	types map[string]string
}

// Metadata returns the entity's metadata view.
func (e *Entity) Metadata() *metadata.EntityMetadata { return e.meta }

// Type returns the declared type of an attribute.
func (e *Entity) Type(name string) (string, bool) {
	t, ok := e.types[name]
	return t, ok
}

// Schema is a set of compiled entities and the registry holding them
type Schema struct {
	entities map[string]*Entity
	registry *metadata.Registry
}

// Load reads and compiles a schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", path, err)
	}
	return s, nil
}

// Parse compiles a schema document.
func Parse(data []byte) (*Schema, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return Compile(f)
}

// Compile builds metadata for every entity of f.
func Compile(f File) (*Schema, error) {
	if len(f.Entities) == 0 {
		return nil, fmt.Errorf("no entities declared")
	}

	s := &Schema{entities: make(map[string]*Entity, len(f.Entities))}
	metas := make([]*metadata.EntityMetadata, 0, len(f.Entities))
	for _, def := range f.Entities {
		e, err := compileEntity(def)
		if err != nil {
			return nil, err
		}
		s.entities[def.Class] = e
		metas = append(metas, e.meta)
	}

	reg, err := metadata.NewRegistry(metas...)
	if err != nil {
		return nil, err
	}
	s.registry = reg
	return s, nil
}

func compileEntity(def EntityDef) (*Entity, error) {
	e := &Entity{types: make(map[string]string, len(def.Attributes))}
	attrs := make([]*metadata.Attribute, 0, len(def.Attributes))

	for _, a := range def.Attributes {
		if a.Type == "" {
			a.Type = TypeString
		}
		access, err := accessorFor(a.Name, a.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", def.Class, a.Name, err)
		}
		e.types[a.Name] = a.Type
		attrs = append(attrs, &metadata.Attribute{
			Name:    a.Name,
			Column:  a.Column,
			Indexed: a.Indexed,
			IndexAs: a.IndexAs,
			Access:  access,
		})
	}

	class := def.Class
	meta, err := metadata.Build(metadata.Entity{
		Class:      class,
		Table:      def.Table,
		IndexName:  def.Index,
		ID:         def.ID,
		Attributes: attrs,
		New:        func() any { return NewRecord(class) },
	})
	if err != nil {
		return nil, err
	}
	e.meta = meta
	return e, nil
}

func accessorFor(name, typ string) (property.Accessor, error) {
	switch typ {
	case TypeString:
		return recordField(name, property.String), nil
	case TypeInt:
		return recordField(name, property.Int64), nil
	case TypeFloat:
		return recordField(name, property.Float64), nil
	case TypeBool:
		return recordField(name, property.Bool), nil
	case TypeTime:
		return recordField(name, property.Time), nil
	case TypeBytes:
		return recordField(name, property.Bytes), nil
	default:
		return nil, fmt.Errorf("unknown type %q", typ)
	}
}

// recordField reads and writes one Record value of type V. An absent value
// is null.
func recordField[V any](name string, codec property.Codec[V]) property.Accessor {
	return property.Optional(name, codec,
		func(r *Record) *V {
			v, ok := r.values[name].(V)
			if !ok {
				return nil
			}
			return &v
		},
		func(r *Record, v *V) {
			if v == nil {
				delete(r.values, name)
				return
			}
			r.values[name] = *v
		})
}

// Registry returns the registry holding every schema entity.
func (s *Schema) Registry() *metadata.Registry { return s.registry }

// Entity looks up a compiled entity by class.
func (s *Schema) Entity(class string) (*Entity, bool) {
	e, ok := s.entities[class]
	return e, ok
}

// Classes lists the schema's entity classes, sorted.
func (s *Schema) Classes() []string {
	classes := make([]string, 0, len(s.entities))
	for c := range s.entities {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return classes
}

// NewRecord builds a record from loosely typed values, such as decoded JSON,
// converting each to its attribute's declared type. Nil values are left out.
func (e *Entity) NewRecord(fields map[string]any) (*Record, error) {
	r := NewRecord(e.meta.Class())
	for name, raw := range fields {
		typ, ok := e.types[name]
		if !ok {
			return nil, fmt.Errorf("schema: %s has no attribute %q", e.meta.Class(), name)
		}
		v, err := Convert(typ, raw)
		if err != nil {
			return nil, fmt.Errorf("schema: %s.%s: %w", e.meta.Class(), name, err)
		}
		r.Set(name, v)
	}
	return r, nil
}

// Convert coerces a loosely typed value to the Go type of typ.
func Convert(typ string, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch typ {
	case TypeString:
		switch v := raw.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		}
	case TypeInt:
		switch v := raw.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case float64:
			if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
				return nil, fmt.Errorf("%v is not an integer", v)
			}
			return int64(v), nil
		case string:
			return strconv.ParseInt(v, 10, 64)
		}
	case TypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case int:
			return float64(v), nil
		case string:
			return strconv.ParseFloat(v, 64)
		}
	case TypeBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(v)
		}
	case TypeTime:
		switch v := raw.(type) {
		case time.Time:
			return v, nil
		case string:
			return time.Parse(time.RFC3339Nano, v)
		}
	case TypeBytes:
		switch v := raw.(type) {
		case []byte:
			return v, nil
		case string:
			return base64.StdEncoding.DecodeString(v)
		}
	default:
		return nil, fmt.Errorf("unknown type %q", typ)
	}
	return nil, fmt.Errorf("cannot use %T as %s", raw, typ)
}

// Export converts a record value to a JSON-friendly form: times become RFC
// 3339 strings and bytes become base64.
func Export(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	default:
		return v
	}
}
