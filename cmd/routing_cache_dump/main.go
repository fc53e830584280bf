// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// routing_cache_dump inspects the resolve service's embedding cache.
//
// The cache persists tool capability embedding vectors in BadgerDB between
// service restarts, one entry per capability corpus. This tool opens the
// cache read-only and prints a human-readable summary: corpus hashes, TTL
// remaining, per-vector dimensions and a short sample of each vector.
//
// Usage:
//
//	routing_cache_dump [--path /path/to/cache]
//
// If --path is not given, reads HYDRONAV_CACHE_DIR from the environment,
// falling back to ~/.hydronav/cache/.
//
// Exit codes:
//
//	0 — success (including "empty cache" which prints a message and exits 0)
//	1 — error opening or reading the database
package main

import (
	"bytes"
	"encoding/gob"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// cacheKeyPrefix must match the routing package's cache_store.go exactly.
const cacheKeyPrefix = "routing:embeddings:"

func main() {
	pathFlag := flag.String("path", "", "Path to cache BadgerDB directory (overrides HYDRONAV_CACHE_DIR env var)")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("HYDRONAV_CACHE_DIR")
	}
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fatalf("cannot resolve home directory: %v", err)
		}
		dbPath = filepath.Join(home, ".hydronav", "cache")
	}

	fmt.Printf("Embedding cache path: %s\n", dbPath)

	// Check existence before trying to open — gives a cleaner error message
	// than BadgerDB's "no such file or directory" buried in a long error.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Cache directory does not exist. The service has not yet written any embedding vectors.")
		fmt.Println("Start the resolve server with the embedding service running to populate the cache.")
		os.Exit(0)
	}

	opts := dgbadger.DefaultOptions(dbPath).
		WithLogger(nil).
		WithReadOnly(true)

	db, err := dgbadger.Open(opts)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	type entry struct {
		key        string
		corpusHash string
		expiresAt  time.Time
		hasExpiry  bool
		vectors    map[string][]float32
		rawSize    int
		decodeErr  error
	}

	var entries []entry

	err = db.View(func(txn *dgbadger.Txn) error {
		iterOpts := dgbadger.DefaultIteratorOptions
		iterOpts.PrefetchValues = true
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		prefix := []byte(cacheKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())

			var e entry
			e.key = key
			e.corpusHash = strings.TrimPrefix(key, cacheKeyPrefix)

			// item.ExpiresAt() returns Unix seconds, 0 = no expiry.
			if expiresAt := item.ExpiresAt(); expiresAt > 0 {
				e.hasExpiry = true
				e.expiresAt = time.Unix(int64(expiresAt), 0)
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				e.decodeErr = fmt.Errorf("copy value: %w", err)
				entries = append(entries, e)
				continue
			}
			e.rawSize = len(raw)

			vectors, err := gobDecode(raw)
			if err != nil {
				e.decodeErr = fmt.Errorf("gob decode: %w", err)
			} else {
				e.vectors = vectors
			}

			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}

	if len(entries) == 0 {
		fmt.Println("\nNo embedding cache entries found.")
		fmt.Println("The service has opened the cache but the warm-up has not completed yet,")
		fmt.Println("or the embedding service was unavailable during warm-up.")
		os.Exit(0)
	}

	fmt.Printf("\nFound %d cache entr%s:\n", len(entries), plural(len(entries), "y", "ies"))
	fmt.Println(strings.Repeat("─", 80))

	for i, e := range entries {
		fmt.Printf("\n[%d] Key:         %s\n", i+1, e.key)
		fmt.Printf("    Corpus hash: %s\n", e.corpusHash)

		if e.hasExpiry {
			remaining := time.Until(e.expiresAt)
			if remaining < 0 {
				fmt.Printf("    TTL:         EXPIRED (%s ago)\n", (-remaining).Round(time.Second))
			} else {
				fmt.Printf("    TTL:         %s remaining (expires %s)\n",
					remaining.Round(time.Second),
					e.expiresAt.Format("2006-01-02 15:04:05 MST"),
				)
			}
		} else {
			fmt.Printf("    TTL:         no expiry set\n")
		}

		fmt.Printf("    Raw size:    %s\n", formatBytes(e.rawSize))

		if e.decodeErr != nil {
			fmt.Printf("    DECODE ERROR: %v\n", e.decodeErr)
			continue
		}

		fmt.Printf("    Vectors:     %d\n", len(e.vectors))

		// Vectors are keyed by the SHA-256 of the capability text, so only a
		// truncated hash is printable; sorted for stable output.
		textHashes := make([]string, 0, len(e.vectors))
		for h := range e.vectors {
			textHashes = append(textHashes, h)
		}
		sort.Strings(textHashes)

		fmt.Printf("\n    %-14s  %5s  %7s  %s\n", "Text hash", "Dims", "L2Norm", "Sample (first 4 values)")
		fmt.Printf("    %s  %s  %s  %s\n",
			strings.Repeat("─", 14),
			strings.Repeat("─", 5),
			strings.Repeat("─", 7),
			strings.Repeat("─", 40),
		)

		for _, h := range textHashes {
			vec := e.vectors[h]
			short := h
			if len(short) > 12 {
				short = short[:12]
			}
			fmt.Printf("    %-14s  %5d  %7.4f  %s\n", short, len(vec), l2Norm(vec), formatSample(vec, 4))
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("─", 80))
	fmt.Printf("Summary: %d entr%s, cache path: %s\n",
		len(entries), plural(len(entries), "y", "ies"), dbPath)
}

// gobDecode deserializes a map[string][]float32 from gob-encoded bytes.
// Must match cache_store.go exactly.
func gobDecode(data []byte) (map[string][]float32, error) {
	var vectors map[string][]float32
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

// l2Norm computes the L2 norm of a float32 vector.
// Unit-normalized vectors will show ≈1.0000.
func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// formatSample returns the first n values of a vector as a bracketed string.
func formatSample(v []float32, n int) string {
	if len(v) == 0 {
		return "[]"
	}
	if n > len(v) {
		n = len(v)
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%+.4f", v[i])
	}
	suffix := ""
	if len(v) > n {
		suffix = " ..."
	}
	return "[" + strings.Join(parts, ", ") + suffix + "]"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// plural returns singular or plural suffix based on count.
func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

// fatalf prints to stderr and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "routing_cache_dump: "+format+"\n", args...)
	os.Exit(1)
}
