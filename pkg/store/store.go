// Package store defines the backing store adapter used by the writer and the reader.
// Implementations live in internal/sqlStore and internal/keyValStore.
package store

import (
	"context"

	"github.com/i5heu/geomodel-db/pkg/types"
)

// Backend is an opened backing store. A Backend is used by one session at a time.
type Backend interface {
	// Begin starts the single transaction of a write session.
	Begin(ctx context.Context) (Tx, error)

	TableExists(ctx context.Context, name string) (bool, error)

	// Tables lists the committed tables in name order.
	Tables(ctx context.Context) ([]string, error)

	// Schema returns the column definition of a committed table.
	Schema(ctx context.Context, name string) (types.TableDef, error)

	// Scan returns every row of a committed table in insertion order.
	Scan(ctx context.Context, name string) ([]types.Row, error)

	Close() error
}

// Tx stages tables and rows. Nothing is visible to readers before Commit; after
// Rollback nothing of the transaction is visible at all.
type Tx interface {
	CreateTable(ctx context.Context, def types.TableDef) error
	Insert(ctx context.Context, table string, rows ...types.Row) error
	Commit() error
	Rollback() error
}

// Kind selects an adapter implementation.
type Kind string

const (
	SQLite Kind = "sqlite"
	Badger Kind = "badger"
)

func (k Kind) Valid() bool {
	return k == SQLite || k == Badger
}
