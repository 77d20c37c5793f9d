// Package dberrors holds the error kinds reported by the writer, reader and adapters.
package dberrors

import (
	stderrors "errors"
	"fmt"

	"gopkg.in/src-d/go-errors.v1"
)

var (
	ErrDuplicateDefinition     = errors.NewKind("duplicate definition of %s: %s")
	ErrSchemaMismatch          = errors.NewKind("schema mismatch in %s: %s")
	ErrMultipleRoots           = errors.NewKind("graph has %d root volumes, expected exactly one")
	ErrNoRoot                  = errors.NewKind("graph has no root volume")
	ErrMissingTable            = errors.NewKind("table %s does not exist")
	ErrMissingPublication      = errors.NewKind("no publication for publisher %q (%s keys, %s targets)")
	ErrCorruptGraph            = errors.NewKind("corrupt graph: %s")
	ErrBackingStoreUnavailable = errors.NewKind("backing store unavailable: %s")
	ErrStoreNotEmpty           = errors.NewKind("store already holds a geometry graph")
	ErrInvalidName             = errors.NewKind("invalid table name %q")
	ErrSessionFailed           = errors.NewKind("session failed earlier")
)

type causer interface {
	Cause() error
}

// Is reports whether err or anything it wraps was created from kind.
// Kind.Is only checks the outermost error, so wrapped chains built with %w are walked here.
func Is(err error, kind *errors.Kind) bool {
	for err != nil {
		if kind.Is(err) {
			return true
		}
		if next := stderrors.Unwrap(err); next != nil {
			err = next
			continue
		}
		if c, ok := err.(causer); ok {
			err = c.Cause()
			continue
		}
		return false
	}
	return false
}

// Corrupt is a shorthand for the most common reader failure.
func Corrupt(format string, args ...interface{}) error {
	return ErrCorruptGraph.New(fmt.Sprintf(format, args...))
}

// Unavailable wraps an adapter failure.
func Unavailable(cause error, what string) error {
	return ErrBackingStoreUnavailable.Wrap(cause, what)
}

var kindNames = []struct {
	kind *errors.Kind
	name string
}{
	{ErrDuplicateDefinition, "duplicate_definition"},
	{ErrSchemaMismatch, "schema_mismatch"},
	{ErrMultipleRoots, "multiple_roots"},
	{ErrNoRoot, "no_root"},
	{ErrMissingTable, "missing_table"},
	{ErrMissingPublication, "missing_publication"},
	{ErrCorruptGraph, "corrupt_graph"},
	{ErrBackingStoreUnavailable, "backing_store_unavailable"},
	{ErrStoreNotEmpty, "store_not_empty"},
	{ErrInvalidName, "invalid_name"},
	{ErrSessionFailed, "session_failed"},
}

// KindName returns a metric label for the kind of err, "other" for foreign errors.
func KindName(err error) string {
	for _, k := range kindNames {
		if Is(err, k.kind) {
			return k.name
		}
	}
	return "other"
}
