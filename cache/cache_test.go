// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellate-ai/solidlsp/lsp"
)

func fixedFetch(calls *atomic.Int64, tree []lsp.DocumentSymbol) FetchFunc {
	return func(ctx context.Context, relativePath string) ([]lsp.DocumentSymbol, error) {
		calls.Add(1)
		return tree, nil
	}
}

func TestSymbolCache_HitOnUnchangedFingerprint(t *testing.T) {
	c := NewSymbolCache("go")
	fp := FingerprintBytes([]byte("package main"))
	var calls atomic.Int64
	fetch := fixedFetch(&calls, []lsp.DocumentSymbol{{Name: "main", Kind: lsp.SymbolKindFunction}})

	first, err := c.GetDocumentSymbols(context.Background(), "main.go", fp, fetch)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := c.GetDocumentSymbols(context.Background(), "main.go", fp, fetch)
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load(), "second call must be served from tier 1")
	assert.Equal(t, first[0].NamePath, second[0].NamePath)
}

func TestSymbolCache_FingerprintChangeForcesRefetch(t *testing.T) {
	c := NewSymbolCache("go")
	var calls atomic.Int64

	oldFP := FingerprintBytes([]byte("v1"))
	newFP := FingerprintBytes([]byte("v2"))
	require.NotEqual(t, oldFP, newFP)

	oldTree := []lsp.DocumentSymbol{{Name: "Old", Kind: lsp.SymbolKindClass}}
	newTree := []lsp.DocumentSymbol{{Name: "New", Kind: lsp.SymbolKindClass}}

	_, err := c.GetDocumentSymbols(context.Background(), "a.go", oldFP, fixedFetch(&calls, oldTree))
	require.NoError(t, err)

	roots, err := c.GetDocumentSymbols(context.Background(), "a.go", newFP, fixedFetch(&calls, newTree))
	require.NoError(t, err)

	assert.Equal(t, int64(2), calls.Load(), "changed fingerprint must issue a fresh request")
	require.Len(t, roots, 1)
	assert.Equal(t, "New", roots[0].Name)

	// The overview after the change reflects the new tree.
	ov, err := c.GetOverview(context.Background(), "a.go", 0, newFP, fixedFetch(&calls, newTree))
	require.NoError(t, err)
	require.Len(t, ov.Symbols, 1)
	assert.Equal(t, "New", ov.Symbols[0].Name)
}

func TestSymbolCache_OverviewIdempotent(t *testing.T) {
	c := NewSymbolCache("csharp")
	fp := FingerprintBytes([]byte("class C {}"))
	var calls atomic.Int64
	fetch := fixedFetch(&calls, []lsp.DocumentSymbol{
		{Name: "foo", Kind: lsp.SymbolKindMethod},
		{Name: "foo", Kind: lsp.SymbolKindMethod},
		{Name: "foo", Kind: lsp.SymbolKindMethod},
	})

	first, err := c.GetOverview(context.Background(), "c.cs", 0, fp, fetch)
	require.NoError(t, err)
	second, err := c.GetOverview(context.Background(), "c.cs", 0, fp, fetch)
	require.NoError(t, err)

	require.Len(t, first.Symbols, 3)
	assert.Equal(t, "foo", first.Symbols[0].NamePath)
	assert.Equal(t, "foo[2]", first.Symbols[1].NamePath)
	assert.Equal(t, "foo[3]", first.Symbols[2].NamePath)

	for i := range first.Symbols {
		assert.Equal(t, first.Symbols[i].NamePath, second.Symbols[i].NamePath)
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestSymbolCache_InvalidateFile(t *testing.T) {
	c := NewSymbolCache("go")
	fp := FingerprintBytes([]byte("x"))
	var calls atomic.Int64
	fetch := fixedFetch(&calls, []lsp.DocumentSymbol{{Name: "x", Kind: lsp.SymbolKindVariable}})

	_, err := c.GetDocumentSymbols(context.Background(), "x.go", fp, fetch)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	c.InvalidateFile("x.go")
	assert.Equal(t, 0, c.Len())

	_, err = c.GetDocumentSymbols(context.Background(), "x.go", fp, fetch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestSymbolCache_InvalidateAll(t *testing.T) {
	c := NewSymbolCache("go")
	var calls atomic.Int64
	fetch := fixedFetch(&calls, []lsp.DocumentSymbol{{Name: "y", Kind: lsp.SymbolKindVariable}})

	for _, path := range []string{"a.go", "b.go", "c.go"} {
		_, err := c.GetDocumentSymbols(context.Background(), path, FingerprintBytes([]byte(path)), fetch)
		require.NoError(t, err)
	}
	require.Equal(t, 3, c.Len())

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}

func TestSymbolCache_ConcurrentMissesDeduplicated(t *testing.T) {
	c := NewSymbolCache("go")
	fp := FingerprintBytes([]byte("concurrent"))

	var calls atomic.Int64
	gate := make(chan struct{})
	fetch := func(ctx context.Context, relativePath string) ([]lsp.DocumentSymbol, error) {
		calls.Add(1)
		<-gate
		return []lsp.DocumentSymbol{{Name: "f", Kind: lsp.SymbolKindFunction}}, nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.GetDocumentSymbols(context.Background(), "f.go", fp, fetch)
			results[i] = err
		}(i)
	}

	close(gate)
	wg.Wait()

	for i, err := range results {
		require.NoError(t, err, "goroutine %d", i)
	}
	assert.Equal(t, int64(1), calls.Load(), "concurrent misses for one version must share one fetch")
}

func TestSymbolCache_FetchErrorNotCached(t *testing.T) {
	c := NewSymbolCache("go")
	fp := FingerprintBytes([]byte("e"))
	var calls atomic.Int64

	failing := func(ctx context.Context, relativePath string) ([]lsp.DocumentSymbol, error) {
		calls.Add(1)
		return nil, errors.New("server busy")
	}

	_, err := c.GetDocumentSymbols(context.Background(), "e.go", fp, failing)
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())

	// The next attempt fetches again rather than caching the failure.
	_, err = c.GetDocumentSymbols(context.Background(), "e.go", fp, failing)
	require.Error(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestSymbolCache_Seed(t *testing.T) {
	c := NewSymbolCache("go")
	fp := FingerprintBytes([]byte("warm"))
	c.Seed("warm.go", fp, []lsp.DocumentSymbol{{Name: "Warm", Kind: lsp.SymbolKindClass}})

	var calls atomic.Int64
	roots, err := c.GetDocumentSymbols(context.Background(), "warm.go", fp, fixedFetch(&calls, nil))
	require.NoError(t, err)

	assert.Equal(t, int64(0), calls.Load(), "seeded entry must serve without a fetch")
	require.Len(t, roots, 1)
	assert.Equal(t, "Warm", roots[0].Name)

	raw, ok := c.RawTree("warm.go", fp)
	require.True(t, ok)
	assert.Equal(t, "Warm", raw[0].Name)
}

func TestFingerprint(t *testing.T) {
	a := FingerprintBytes([]byte("hello"))
	b := FingerprintBytes([]byte("hello"))
	diff := FingerprintBytes([]byte("hello!"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, diff)
	assert.False(t, a.Zero())
	assert.True(t, Fingerprint{}.Zero())
	assert.NotEmpty(t, a.String())
}
