// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellate-ai/solidlsp/lsp"
)

func ds(name string, kind lsp.SymbolKind, children ...lsp.DocumentSymbol) lsp.DocumentSymbol {
	return lsp.DocumentSymbol{Name: name, Kind: kind, Children: children}
}

func TestBuildTree_OverloadDisambiguation(t *testing.T) {
	roots := BuildTree("service.cs", []lsp.DocumentSymbol{
		ds("foo", lsp.SymbolKindMethod),
		ds("foo", lsp.SymbolKindMethod),
		ds("foo", lsp.SymbolKindMethod),
	})

	require.Len(t, roots, 3)
	assert.Equal(t, "foo", roots[0].NamePath)
	assert.Equal(t, "foo[2]", roots[1].NamePath)
	assert.Equal(t, "foo[3]", roots[2].NamePath)
	assert.Equal(t, 1, roots[0].OverloadIndex)
	assert.Equal(t, 3, roots[2].OverloadIndex)
}

func TestBuildTree_NestedNamePaths(t *testing.T) {
	roots := BuildTree("widget.go", []lsp.DocumentSymbol{
		ds("Widget", lsp.SymbolKindClass,
			ds("Render", lsp.SymbolKindMethod),
			ds("Render", lsp.SymbolKindMethod),
			ds("size", lsp.SymbolKindField),
		),
		ds("helper", lsp.SymbolKindFunction),
	})

	require.Len(t, roots, 2)
	widget := roots[0]
	require.Len(t, widget.Children, 3)

	assert.Equal(t, "Widget", widget.NamePath)
	assert.Equal(t, "Widget/Render", widget.Children[0].NamePath)
	assert.Equal(t, "Widget/Render[2]", widget.Children[1].NamePath)
	assert.Equal(t, "Widget/size", widget.Children[2].NamePath)
	assert.Equal(t, "helper", roots[1].NamePath)

	for _, r := range roots {
		r.Walk(func(s *Symbol) bool {
			assert.Equal(t, "widget.go", s.RelativePath)
			return true
		})
	}
}

func TestBuildTree_IndicesScopedToSiblingLevel(t *testing.T) {
	// The same name under different parents starts a fresh count.
	roots := BuildTree("x.go", []lsp.DocumentSymbol{
		ds("A", lsp.SymbolKindClass, ds("run", lsp.SymbolKindMethod)),
		ds("B", lsp.SymbolKindClass, ds("run", lsp.SymbolKindMethod)),
	})

	assert.Equal(t, "A/run", roots[0].Children[0].NamePath)
	assert.Equal(t, "B/run", roots[1].Children[0].NamePath)
}

func TestBuildTree_Deterministic(t *testing.T) {
	raw := []lsp.DocumentSymbol{
		ds("foo", lsp.SymbolKindMethod),
		ds("bar", lsp.SymbolKindMethod),
		ds("foo", lsp.SymbolKindMethod),
	}

	a := BuildTree("f.go", raw)
	b := BuildTree("f.go", raw)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].NamePath, b[i].NamePath)
	}
	assert.Equal(t, "foo", a[0].NamePath)
	assert.Equal(t, "bar", a[1].NamePath)
	assert.Equal(t, "foo[2]", a[2].NamePath)
}

func TestOverview_DepthClipping(t *testing.T) {
	roots := BuildTree("deep.go", []lsp.DocumentSymbol{
		ds("A", lsp.SymbolKindClass,
			ds("B", lsp.SymbolKindClass,
				ds("C", lsp.SymbolKindMethod),
			),
		),
	})

	full := NewOverview("deep.go", roots, 0)
	require.Len(t, full.Symbols[0].Children, 1)
	require.Len(t, full.Symbols[0].Children[0].Children, 1)

	one := NewOverview("deep.go", roots, 1)
	assert.Empty(t, one.Symbols[0].Children)

	two := NewOverview("deep.go", roots, 2)
	require.Len(t, two.Symbols[0].Children, 1)
	assert.Empty(t, two.Symbols[0].Children[0].Children)

	// Clipping copies; the source tree keeps its depth.
	require.Len(t, roots[0].Children[0].Children, 1)
}

func TestFind(t *testing.T) {
	roots := BuildTree("svc.cs", []lsp.DocumentSymbol{
		ds("Service", lsp.SymbolKindClass,
			ds("Handle", lsp.SymbolKindMethod),
			ds("Handle", lsp.SymbolKindMethod),
		),
		ds("Handle", lsp.SymbolKindFunction),
	})

	m, err := NewNamePathMatcher("Handle", false)
	require.NoError(t, err)
	found := Find(roots, m)
	require.Len(t, found, 3)

	m, err = NewNamePathMatcher("Service/Handle[2]", false)
	require.NoError(t, err)
	found = Find(roots, m)
	require.Len(t, found, 1)
	assert.Equal(t, "Service/Handle[2]", found[0].NamePath)

	m, err = NewNamePathMatcher("/Handle", false)
	require.NoError(t, err)
	found = Find(roots, m)
	require.Len(t, found, 1)
	assert.Equal(t, lsp.SymbolKindFunction, found[0].Kind)
}
