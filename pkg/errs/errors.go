// Package errs defines the error kinds shared by the mapping engine, the store
// adapters and the client.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrFieldAccess indicates a field could not be read or written
	ErrFieldAccess = errors.New("entitystore: field access failed")

	// ErrInstantiation indicates an entity type could not be constructed
	ErrInstantiation = errors.New("entitystore: entity cannot be instantiated")

	// ErrUnknownColumn indicates a stored column has no field in the current metadata
	ErrUnknownColumn = errors.New("entitystore: unknown column")

	// ErrConnection indicates a store connectivity failure
	ErrConnection = errors.New("entitystore: store connection failed")

	// ErrUnsupported indicates a capability that is not implemented
	ErrUnsupported = errors.New("entitystore: operation not supported")

	// ErrNotRegistered indicates an entity class without metadata
	ErrNotRegistered = errors.New("entitystore: entity class not registered")
)

// FieldAccessError reports a failed read or write of one entity field.
type FieldAccessError struct {
	Class string
	Field string
	Err   error
}

func (e *FieldAccessError) Error() string {
	if e.Class == "" {
		return fmt.Sprintf("field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("field %s.%s: %v", e.Class, e.Field, e.Err)
}

func (e *FieldAccessError) Unwrap() []error { return []error{ErrFieldAccess, e.Err} }

// InstantiationError reports that a new entity instance could not be allocated.
type InstantiationError struct {
	Class string
	Err   error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("instantiate %s: %v", e.Class, e.Err)
}

func (e *InstantiationError) Unwrap() []error { return []error{ErrInstantiation, e.Err} }

// UnknownColumnError reports a stored column that the metadata cannot map
// back to a field (schema drift).
type UnknownColumnError struct {
	Class  string
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("%v: %s has no field for column %q", ErrUnknownColumn, e.Class, e.Column)
}

func (e *UnknownColumnError) Unwrap() error { return ErrUnknownColumn }

// ConnectionError wraps a transport-level failure talking to a store.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connection: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() []error { return []error{ErrConnection, e.Err} }

// Capability names an optional feature of the persistence layer.
type Capability string

const (
	CapabilityPrimaryStore   Capability = "primary-store"
	CapabilitySecondaryIndex Capability = "secondary-index"
	CapabilitySearchIndex    Capability = "search-index"
	CapabilityEmbedded       Capability = "embedded-attributes"
	CapabilityCompositeKey   Capability = "composite-key"
	CapabilityRelations      Capability = "relations"
	CapabilityJoinTable      Capability = "join-table"
	CapabilityBatch          Capability = "batch"
)

// UnsupportedOperationError is returned for capabilities that are not
// implemented. It fails loudly instead of returning an empty result.
type UnsupportedOperationError struct {
	Capability Capability
	Op         string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%v: %s (%s)", ErrUnsupported, e.Op, e.Capability)
}

func (e *UnsupportedOperationError) Unwrap() error { return ErrUnsupported }

// Unsupported is shorthand for building an UnsupportedOperationError.
func Unsupported(c Capability, op string) error {
	return &UnsupportedOperationError{Capability: c, Op: op}
}
