// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/hydronav/hydronav/services/resolve/agent"
	badgerstore "github.com/hydronav/hydronav/services/resolve/storage/badger"
)

// cacheKeyPrefix namespaces routing embedding entries inside the shared
// service database.
const cacheKeyPrefix = "routing:embeddings:"

// cacheTTL bounds how long a persisted vector set can outlive its corpus.
// The corpus hash already invalidates on any capability or model change;
// the TTL only reclaims space for hashes no deployment references anymore.
const cacheTTL = 7 * 24 * time.Hour

// CacheStore persists warmed tool embeddings between restarts.
//
// # Description
//
// One entry per corpus: the key is a hash of every capability text plus the
// model name, the value a gob-encoded map of text-hash → unit-normalized
// vector. Any change to any tool's capability text, the tool set, or the
// model produces a new corpus hash, so stale vectors are never loaded.
type CacheStore interface {
	// LoadEmbeddings returns the vector map for corpusHash, or (nil, nil)
	// when no entry exists.
	LoadEmbeddings(ctx context.Context, corpusHash string) (map[string][]float32, error)

	// SaveEmbeddings persists the vector map under corpusHash.
	SaveEmbeddings(ctx context.Context, corpusHash string, vectors map[string][]float32) error
}

// BadgerCacheStore is the CacheStore backed by the service BadgerDB.
//
// # Thread Safety
//
// Safe for concurrent use.
type BadgerCacheStore struct {
	db     *badgerstore.DB
	logger *slog.Logger
}

// NewBadgerCacheStore creates a store over an opened database.
func NewBadgerCacheStore(db *badgerstore.DB, logger *slog.Logger) *BadgerCacheStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerCacheStore{db: db, logger: logger}
}

// LoadEmbeddings reads and decodes the vector map for corpusHash.
//
// # Outputs
//
//   - map[string][]float32: Decoded vectors, nil when the key is absent.
//   - error: Non-nil on read or decode failure. A corrupt entry decodes as
//     an error, never as partial data.
func (s *BadgerCacheStore) LoadEmbeddings(ctx context.Context, corpusHash string) (map[string][]float32, error) {
	key := []byte(cacheKeyPrefix + corpusHash)

	var vectors map[string][]float32
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&vectors)
		})
	})
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load embeddings %s: %w", shortHash(corpusHash), err)
	}
	return vectors, nil
}

// SaveEmbeddings gob-encodes and writes the vector map with the cache TTL.
func (s *BadgerCacheStore) SaveEmbeddings(ctx context.Context, corpusHash string, vectors map[string][]float32) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vectors); err != nil {
		return fmt.Errorf("encode embeddings: %w", err)
	}
	key := []byte(cacheKeyPrefix + corpusHash)

	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		entry := dgbadger.NewEntry(key, buf.Bytes()).WithTTL(cacheTTL)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("save embeddings %s: %w", shortHash(corpusHash), err)
	}

	s.logger.Debug("embedding cache: persisted",
		slog.String("corpus_hash", shortHash(corpusHash)),
		slog.Int("vector_count", len(vectors)),
		slog.Int("bytes", buf.Len()),
	)
	return nil
}

// computeCorpusHash derives the cache key from every capability text plus
// the model name. Descriptors are sorted by name first so registration
// order does not change the hash.
func computeCorpusHash(descs []agent.Descriptor, model string) string {
	lines := make([]string, 0, len(descs)+1)
	for _, d := range descs {
		lines = append(lines, d.Name+"\t"+d.Capability)
	}
	sort.Strings(lines)
	lines = append(lines, "model\t"+model)

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// shortHash truncates a hex hash for log lines.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
