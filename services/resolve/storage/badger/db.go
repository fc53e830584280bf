// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package badger wraps a BadgerDB instance used for service-local caches.
//
// The wrapper exists so callers never touch badger transaction lifecycle
// directly: WithTxn and WithReadTxn own commit/discard and honor context
// cancellation before starting work. The DB is a service-global singleton
// opened once in main.
package badger

import (
	"context"
	"fmt"
	"log/slog"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// DB is a thin lifecycle wrapper around a BadgerDB instance.
//
// # Thread Safety
//
// Safe for concurrent use. BadgerDB transactions are per-goroutine.
type DB struct {
	db     *dgbadger.DB
	path   string
	logger *slog.Logger
}

// Open opens (or creates) a BadgerDB database at the given directory.
//
// # Description
//
// BadgerDB's internal logger is suppressed; lifecycle events are logged
// through slog instead. The caller owns the returned DB and must Close it.
//
// # Inputs
//
//   - path: Directory for the database files. Created if absent.
//   - logger: Logger for open/close events. May be nil.
//
// # Outputs
//
//   - *DB: Opened database wrapper.
//   - error: Non-nil if the directory cannot be opened.
func Open(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := dgbadger.DefaultOptions(path).WithLogger(nil)
	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}

	logger.Info("badger: opened", slog.String("path", path))
	return &DB{db: db, path: path, logger: logger}, nil
}

// Close flushes and closes the underlying database.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	d.logger.Info("badger: closing", slog.String("path", d.path))
	return d.db.Close()
}

// WithTxn runs fn inside a read-write transaction and commits on success.
//
// # Description
//
// The transaction is discarded if fn returns an error or the context is
// already cancelled. fn must not retain the *Txn beyond its return.
//
// # Thread Safety
//
// Safe for concurrent use.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(fn)
}

// WithReadTxn runs fn inside a read-only transaction.
//
// # Thread Safety
//
// Safe for concurrent use.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(fn)
}
