// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package badger

import (
	"context"
	"testing"

	dgbadger "github.com/dgraph-io/badger/v4"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDB_WriteReadRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set([]byte("key"), []byte("value"))
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	var got []byte
	err = db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get([]byte("key"))
		if err != nil {
			return err
		}
		got, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "value" {
		t.Errorf("got %q, want %q", got, "value")
	}
}

func TestDB_FailedTxnDiscards(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	wantErr := dgbadger.ErrKeyNotFound
	err := db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		if err := txn.Set([]byte("orphan"), []byte("x")); err != nil {
			return err
		}
		return wantErr
	})
	if err == nil {
		t.Fatal("expected the transaction error to propagate")
	}

	err = db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		_, err := txn.Get([]byte("orphan"))
		return err
	})
	if err != dgbadger.ErrKeyNotFound {
		t.Errorf("expected write to be discarded, got %v", err)
	}
}

func TestDB_CancelledContext(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := db.WithTxn(ctx, func(*dgbadger.Txn) error { return nil }); err == nil {
		t.Error("WithTxn must refuse a cancelled context")
	}
	if err := db.WithReadTxn(ctx, func(*dgbadger.Txn) error { return nil }); err == nil {
		t.Error("WithReadTxn must refuse a cancelled context")
	}
}

func TestDB_CloseNil(t *testing.T) {
	var db *DB
	if err := db.Close(); err != nil {
		t.Errorf("nil Close should be a no-op, got %v", err)
	}
}
