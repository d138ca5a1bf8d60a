// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/tessellate-ai/solidlsp/lsp"
	"github.com/tessellate-ai/solidlsp/symbol"
)

// FetchFunc obtains the raw document symbol tree for a file from its
// language server. Called on cache misses only; concurrent misses for the
// same file version are deduplicated so at most one call is in flight.
type FetchFunc func(ctx context.Context, relativePath string) ([]lsp.DocumentSymbol, error)

// tier1Entry is one cached raw tree plus the normalized tree derived from
// it. The normalized tree is built exactly once per entry so overload
// indices stay stable for the entry's lifetime.
type tier1Entry struct {
	fingerprint Fingerprint
	raw         []lsp.DocumentSymbol
	roots       []*symbol.Symbol
}

type overviewKey struct {
	path  string
	depth int
}

// SymbolCache is the two-tier symbol cache for one server instance.
//
// Thread Safety:
//
//	Safe for concurrent use. Readers always observe a consistent snapshot:
//	an entry is either the pre-invalidation version (matched by its old
//	fingerprint) or the fully built replacement, never a partial state.
type SymbolCache struct {
	language string

	mu    sync.RWMutex
	tier1 map[string]*tier1Entry
	tier2 map[overviewKey]*symbol.Overview

	flight singleflight.Group
}

// NewSymbolCache creates an empty cache. The language tag is used for
// logging and tracing only.
func NewSymbolCache(language string) *SymbolCache {
	return &SymbolCache{
		language: language,
		tier1:    make(map[string]*tier1Entry),
		tier2:    make(map[overviewKey]*symbol.Overview),
	}
}

// =============================================================================
// TIER 1
// =============================================================================

// GetDocumentSymbols returns the normalized symbol tree for a file,
// serving from tier 1 when the fingerprint is unchanged and fetching
// through fetch otherwise. A fetch replaces the tier-1 entry wholesale and
// drops every tier-2 overview derived from the old entry.
func (c *SymbolCache) GetDocumentSymbols(ctx context.Context, relativePath string, fp Fingerprint, fetch FetchFunc) ([]*symbol.Symbol, error) {
	ctx, span := cacheTracer.Start(ctx, "SymbolCache.GetDocumentSymbols",
		trace.WithAttributes(
			attribute.String("cache.language", c.language),
			attribute.String("cache.file", relativePath),
		),
	)
	defer span.End()

	if entry := c.lookup(relativePath, fp); entry != nil {
		cacheHitsTotal.WithLabelValues("tier1").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return entry.roots, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// The flight key includes the fingerprint so a query issued after an
	// invalidation never joins a fetch for the superseded version.
	flightKey := relativePath + "\x00" + fp.String()
	v, err, _ := c.flight.Do(flightKey, func() (any, error) {
		if entry := c.lookup(relativePath, fp); entry != nil {
			cacheHitsTotal.WithLabelValues("tier1").Inc()
			return entry.roots, nil
		}
		return c.populate(ctx, relativePath, fp, fetch)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*symbol.Symbol), nil
}

// lookup returns the tier-1 entry for the path when its fingerprint
// matches, nil otherwise.
func (c *SymbolCache) lookup(relativePath string, fp Fingerprint) *tier1Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.tier1[relativePath]
	if !ok || entry.fingerprint != fp {
		return nil
	}
	return entry
}

// populate fetches a fresh tree and installs it, displacing any stale
// entry and its derived overviews.
func (c *SymbolCache) populate(ctx context.Context, relativePath string, fp Fingerprint, fetch FetchFunc) ([]*symbol.Symbol, error) {
	start := time.Now()
	raw, err := fetch(ctx, relativePath)
	if err != nil {
		return nil, fmt.Errorf("fetch document symbols for %s: %w", relativePath, err)
	}
	cacheFetchDuration.Observe(time.Since(start).Seconds())

	entry := &tier1Entry{
		fingerprint: fp,
		raw:         raw,
		roots:       symbol.BuildTree(relativePath, raw),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.tier1[relativePath]; ok {
		if old.fingerprint == fp {
			// A concurrent flight for the same version won; keep it.
			return old.roots, nil
		}
		cacheMissesTotal.WithLabelValues("tier1", missReasonStale).Inc()
		cacheInvalidationsTotal.WithLabelValues(causeFingerprint).Inc()
		c.dropOverviewsLocked(relativePath)
	} else {
		cacheMissesTotal.WithLabelValues("tier1", missReasonCold).Inc()
	}

	c.tier1[relativePath] = entry
	cacheEntries.WithLabelValues("tier1").Set(float64(len(c.tier1)))
	return entry.roots, nil
}

// Seed installs a tier-1 entry without issuing a fetch, used to warm the
// cache from a persisted index. Seeding never displaces a live entry for a
// different version: the current fingerprint decides.
func (c *SymbolCache) Seed(relativePath string, fp Fingerprint, raw []lsp.DocumentSymbol) {
	entry := &tier1Entry{
		fingerprint: fp,
		raw:         raw,
		roots:       symbol.BuildTree(relativePath, raw),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tier1[relativePath]; ok {
		return
	}
	c.tier1[relativePath] = entry
	cacheEntries.WithLabelValues("tier1").Set(float64(len(c.tier1)))
}

// RawTree returns the raw server response cached for the file version, for
// write-through to a persisted index. ok is false when the entry is absent
// or stale.
func (c *SymbolCache) RawTree(relativePath string, fp Fingerprint) ([]lsp.DocumentSymbol, bool) {
	entry := c.lookup(relativePath, fp)
	if entry == nil {
		return nil, false
	}
	return entry.raw, true
}

// =============================================================================
// TIER 2
// =============================================================================

// GetOverview returns the derived overview for a file at the given depth,
// building it from tier 1 on first use. Depth 0 means unlimited.
func (c *SymbolCache) GetOverview(ctx context.Context, relativePath string, depth int, fp Fingerprint, fetch FetchFunc) (*symbol.Overview, error) {
	key := overviewKey{path: relativePath, depth: depth}

	c.mu.RLock()
	ov, ok := c.tier2[key]
	fresh := ok && c.tier1[relativePath] != nil && c.tier1[relativePath].fingerprint == fp
	c.mu.RUnlock()

	if fresh {
		cacheHitsTotal.WithLabelValues("tier2").Inc()
		return ov, nil
	}

	roots, err := c.GetDocumentSymbols(ctx, relativePath, fp, fetch)
	if err != nil {
		return nil, err
	}

	ov = symbol.NewOverview(relativePath, roots, depth)
	cacheMissesTotal.WithLabelValues("tier2", missReasonCold).Inc()

	c.mu.Lock()
	// Only publish if tier 1 still holds the version we derived from.
	if entry, ok := c.tier1[relativePath]; ok && entry.fingerprint == fp {
		c.tier2[key] = ov
		cacheEntries.WithLabelValues("tier2").Set(float64(len(c.tier2)))
	}
	c.mu.Unlock()

	return ov, nil
}

// =============================================================================
// INVALIDATION
// =============================================================================

// InvalidateFile drops the tier-1 entry and all derived overviews for a
// file. Called when a file change is observed ahead of its next query.
func (c *SymbolCache) InvalidateFile(relativePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tier1[relativePath]; !ok {
		return
	}
	delete(c.tier1, relativePath)
	c.dropOverviewsLocked(relativePath)
	cacheInvalidationsTotal.WithLabelValues(causeFileEvent).Inc()
	cacheEntries.WithLabelValues("tier1").Set(float64(len(c.tier1)))

	slog.Debug("Symbol cache entry invalidated",
		slog.String("language", c.language),
		slog.String("file", relativePath),
	)
}

// InvalidateAll drops everything. Called when the owning server instance
// restarts: a fresh server may produce different trees for the same files.
func (c *SymbolCache) InvalidateAll() {
	c.mu.Lock()
	n := len(c.tier1)
	c.tier1 = make(map[string]*tier1Entry)
	c.tier2 = make(map[overviewKey]*symbol.Overview)
	c.mu.Unlock()

	cacheInvalidationsTotal.WithLabelValues(causeRestart).Add(float64(n))
	cacheEntries.WithLabelValues("tier1").Set(0)
	cacheEntries.WithLabelValues("tier2").Set(0)

	slog.Info("Symbol cache cleared",
		slog.String("language", c.language),
		slog.Int("evicted", n),
	)
}

// dropOverviewsLocked removes every tier-2 entry derived from the file.
func (c *SymbolCache) dropOverviewsLocked(relativePath string) {
	for key := range c.tier2 {
		if key.path == relativePath {
			delete(c.tier2, key)
		}
	}
	cacheEntries.WithLabelValues("tier2").Set(float64(len(c.tier2)))
}

// Len returns the current tier-1 entry count.
func (c *SymbolCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tier1)
}
