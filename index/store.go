// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package index persists raw document symbol trees across process
// lifetimes so a fresh orchestrator can warm its tier-1 cache without
// querying the language server. Entries are keyed by file path and content
// fingerprint; a stale fingerprint simply misses, the live cache path
// handles the refetch. The engine works correctly with the index absent or
// cold.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/tessellate-ai/solidlsp/cache"
	"github.com/tessellate-ai/solidlsp/lsp"
)

// keyPrefix namespaces symbol entries within the database.
const keyPrefix = "sym/"

// Store is a Badger-backed warm store for tier-1 symbol trees.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens a persistent store at the given directory, creating it if
// needed.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("index path must not be empty")
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("create index directory %s: %w", path, err)
	}

	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open symbol index: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory symbol index: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func entryKey(relativePath string, fp cache.Fingerprint) []byte {
	return []byte(keyPrefix + relativePath + "\x00" + fp.String())
}

func pathPrefix(relativePath string) []byte {
	return []byte(keyPrefix + relativePath + "\x00")
}

// Get returns the persisted raw tree for the exact file version, if any.
func (s *Store) Get(ctx context.Context, relativePath string, fp cache.Fingerprint) ([]lsp.DocumentSymbol, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var raw []lsp.DocumentSymbol
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(relativePath, fp))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &raw)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read symbol index entry for %s: %w", relativePath, err)
	}
	return raw, true, nil
}

// Put persists the raw tree for a file version, displacing any entries for
// older versions of the same file.
func (s *Store) Put(ctx context.Context, relativePath string, fp cache.Fingerprint, raw []lsp.DocumentSymbol) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode symbol index entry for %s: %w", relativePath, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, pathPrefix(relativePath)); err != nil {
			return err
		}
		return txn.Set(entryKey(relativePath, fp), data)
	})
	if err != nil {
		return fmt.Errorf("write symbol index entry for %s: %w", relativePath, err)
	}
	return nil
}

// Purge removes every persisted version of a file.
func (s *Store) Purge(ctx context.Context, relativePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return deletePrefix(txn, pathPrefix(relativePath))
	})
	if err != nil {
		return fmt.Errorf("purge symbol index entries for %s: %w", relativePath, err)
	}
	return nil
}

// deletePrefix removes all keys under a prefix within one transaction.
func deletePrefix(txn *badger.Txn, prefix []byte) error {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Warm seeds a symbol cache from the store for the given files, skipping
// versions the store does not hold. Returns the number of files seeded.
func (s *Store) Warm(ctx context.Context, c *cache.SymbolCache, files map[string]cache.Fingerprint) int {
	seeded := 0
	for relativePath, fp := range files {
		raw, ok, err := s.Get(ctx, relativePath, fp)
		if err != nil {
			slog.Warn("Symbol index read failed",
				slog.String("file", relativePath),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			continue
		}
		c.Seed(relativePath, fp, raw)
		seeded++
	}
	if seeded > 0 {
		slog.Info("Symbol cache warmed from index", slog.Int("files", seeded))
	}
	return seeded
}
