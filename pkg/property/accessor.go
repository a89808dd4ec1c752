// ABOUTME: Explicit per-field accessors used in place of runtime reflection
// ABOUTME: Each accessor pairs a getter/setter with the codec for its type

package property

import (
	"fmt"

	"github.com/nainya/entitystore/pkg/errs"
)

// Accessor reads and writes one field of an entity instance.
//
// Bytes returns nil and String returns ok=false when the field holds no
// value. A mismatched entity type or an undecodable raw value is reported as
// an *errs.FieldAccessError.
type Accessor interface {
	Bytes(entity any) ([]byte, error)
	String(entity any) (s string, ok bool, err error)
	Set(entity any, raw []byte) error
}

// Field builds an accessor for a value field of *E.
func Field[E any, V any](name string, codec Codec[V], get func(*E) V, set func(*E, V)) Accessor {
	return &field[E, V]{name: name, codec: codec, get: get, set: set}
}

// Optional builds an accessor for a pointer field of *E; a nil pointer is null.
func Optional[E any, V any](name string, codec Codec[V], get func(*E) *V, set func(*E, *V)) Accessor {
	return &optionalField[E, V]{name: name, codec: codec, get: get, set: set}
}

type field[E any, V any] struct {
	name  string
	codec Codec[V]
	get   func(*E) V
	set   func(*E, V)
}

func (f *field[E, V]) Bytes(entity any) ([]byte, error) {
	e, err := instance[E](f.name, entity)
	if err != nil {
		return nil, err
	}
	raw := f.codec.Encode(f.get(e))
	if raw == nil {
		raw = []byte{}
	}
	return raw, nil
}

func (f *field[E, V]) String(entity any) (string, bool, error) {
	e, err := instance[E](f.name, entity)
	if err != nil {
		return "", false, err
	}
	return f.codec.Format(f.get(e)), true, nil
}

func (f *field[E, V]) Set(entity any, raw []byte) error {
	e, err := instance[E](f.name, entity)
	if err != nil {
		return err
	}
	if f.set == nil {
		return &errs.FieldAccessError{Field: f.name, Err: fmt.Errorf("field is read-only")}
	}
	v, err := f.codec.Decode(raw)
	if err != nil {
		return &errs.FieldAccessError{Field: f.name, Err: err}
	}
	f.set(e, v)
	return nil
}

type optionalField[E any, V any] struct {
	name  string
	codec Codec[V]
	get   func(*E) *V
	set   func(*E, *V)
}

func (f *optionalField[E, V]) Bytes(entity any) ([]byte, error) {
	e, err := instance[E](f.name, entity)
	if err != nil {
		return nil, err
	}
	v := f.get(e)
	if v == nil {
		return nil, nil
	}
	raw := f.codec.Encode(*v)
	if raw == nil {
		raw = []byte{}
	}
	return raw, nil
}

func (f *optionalField[E, V]) String(entity any) (string, bool, error) {
	e, err := instance[E](f.name, entity)
	if err != nil {
		return "", false, err
	}
	v := f.get(e)
	if v == nil {
		return "", false, nil
	}
	return f.codec.Format(*v), true, nil
}

func (f *optionalField[E, V]) Set(entity any, raw []byte) error {
	e, err := instance[E](f.name, entity)
	if err != nil {
		return err
	}
	if f.set == nil {
		return &errs.FieldAccessError{Field: f.name, Err: fmt.Errorf("field is read-only")}
	}
	v, err := f.codec.Decode(raw)
	if err != nil {
		return &errs.FieldAccessError{Field: f.name, Err: err}
	}
	f.set(e, &v)
	return nil
}

// instance asserts entity to *E, rejecting other types and nil pointers.
func instance[E any](name string, entity any) (*E, error) {
	e, ok := entity.(*E)
	if !ok {
		var zero E
		return nil, &errs.FieldAccessError{
			Field: name,
			Err:   fmt.Errorf("entity is %T, want *%T", entity, zero),
		}
	}
	if e == nil {
		return nil, &errs.FieldAccessError{Field: name, Err: fmt.Errorf("nil entity")}
	}
	return e, nil
}
