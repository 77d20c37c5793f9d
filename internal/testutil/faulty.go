package testutil

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/store"
	"github.com/i5heu/geomodel-db/pkg/types"
)

var ErrInjected = errors.New("injected failure")

// FaultyBackend forwards to a real backend and fails on demand. FailInsertAfter counts
// Insert calls; the call that exceeds it fails. FailCommit fails Commit after the
// underlying transaction was rolled back.
type FaultyBackend struct {
	store.Backend
	FailInsertAfter int64 // <0 disables
	FailCommit      bool

	inserts   int64
	Rollbacks int64
}

func NewFaultyBackend(b store.Backend) *FaultyBackend {
	return &FaultyBackend{Backend: b, FailInsertAfter: -1}
}

func (f *FaultyBackend) Inserts() int64 {
	return atomic.LoadInt64(&f.inserts)
}

func (f *FaultyBackend) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := f.Backend.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Tx: tx, f: f}, nil
}

type faultyTx struct {
	store.Tx
	f *FaultyBackend
}

func (t *faultyTx) Insert(ctx context.Context, table string, rows ...types.Row) error {
	n := atomic.AddInt64(&t.f.inserts, 1)
	if t.f.FailInsertAfter >= 0 && n > t.f.FailInsertAfter {
		return dberrors.Unavailable(ErrInjected, "insert into "+table)
	}
	return t.Tx.Insert(ctx, table, rows...)
}

func (t *faultyTx) Commit() error {
	if t.f.FailCommit {
		if err := t.Tx.Rollback(); err != nil {
			return err
		}
		return dberrors.Unavailable(ErrInjected, "commit")
	}
	return t.Tx.Commit()
}

func (t *faultyTx) Rollback() error {
	atomic.AddInt64(&t.f.Rollbacks, 1)
	return t.Tx.Rollback()
}
