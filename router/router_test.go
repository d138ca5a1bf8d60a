// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package router

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellate-ai/solidlsp/lsp"
)

func TestRouter_ExtensionRouting(t *testing.T) {
	r, err := New([]string{"go", "python", "csharp"}, nil)
	require.NoError(t, err)

	tests := []struct {
		path string
		lang string
	}{
		{"main.go", "go"},
		{"pkg/deep/file.go", "go"},
		{"script.py", "python"},
		{"Program.cs", "csharp"},
		{"Views/Index.razor", "csharp"},
		{"UPPER.GO", "go"},
	}
	for _, tt := range tests {
		res, err := r.Resolve(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.lang, res.ServerLanguage, tt.path)
		assert.Equal(t, tt.lang, res.LanguageID, tt.path)
	}
}

func TestRouter_UnroutablePath(t *testing.T) {
	r, err := New([]string{"go"}, nil)
	require.NoError(t, err)

	_, err = r.Resolve("readme.unknown")
	require.Error(t, err)
	assert.True(t, errors.Is(err, lsp.ErrNotRoutable))
}

func TestRouter_SharedExtensionPriority(t *testing.T) {
	// vue is a superset of typescript; typescript wins .ts in either
	// activation order.
	for _, langs := range [][]string{{"typescript", "vue"}, {"vue", "typescript"}} {
		r, err := New(langs, nil)
		require.NoError(t, err)

		res, err := r.Resolve("src/app.ts")
		require.NoError(t, err)
		assert.Equal(t, "typescript", res.ServerLanguage)

		res, err = r.Resolve("src/App.vue")
		require.NoError(t, err)
		assert.Equal(t, "vue", res.ServerLanguage)
	}
}

func TestRouter_EqualPriorityClaimIsConfigError(t *testing.T) {
	// Two equal-priority claims on one extension must fail at load time,
	// not surface as a runtime race.
	_, err := New([]string{"cpp", "cpp"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "equal priority")
}

func TestRouter_GlobRoutesOverrideExtensions(t *testing.T) {
	r, err := New([]string{"go", "python"}, []Route{
		{Pattern: "tools/**/*.py", Language: "python"},
		{Pattern: "tools/gen/**/*.py", Language: "go"},
	})
	require.NoError(t, err)

	// The more specific pattern wins regardless of configuration order.
	res, err := r.Resolve("tools/gen/build.py")
	require.NoError(t, err)
	assert.Equal(t, "go", res.ServerLanguage)

	res, err = r.Resolve("tools/run.py")
	require.NoError(t, err)
	assert.Equal(t, "python", res.ServerLanguage)
}

func TestRouter_RouteValidation(t *testing.T) {
	_, err := New([]string{"go"}, []Route{{Pattern: "**/*.py", Language: "python"}})
	require.Error(t, err, "route to inactive language")

	_, err = New([]string{"go"}, []Route{{Pattern: "[", Language: "go"}})
	require.Error(t, err, "invalid glob")

	_, err = New([]string{"cobol"}, nil)
	require.Error(t, err, "unknown language")
}

func TestRouter_ResolveForOpen_CohostOverride(t *testing.T) {
	r, err := New([]string{"csharp"}, nil)
	require.NoError(t, err)

	registry := lsp.NewCapabilityRegistry("csharp")

	// Before registration the static language id applies.
	res, err := r.ResolveForOpen("Views/Index.razor", "textDocument/documentSymbol", registry)
	require.NoError(t, err)
	assert.Equal(t, "csharp", res.LanguageID)

	registry.Register(lsp.RegisteredCapability{
		ID:     "razor-reg",
		Method: "textDocument/documentSymbol",
		Selector: []lsp.DocumentFilter{
			{Language: "razor-cohost", Pattern: "**/*.razor"},
		},
	})

	res, err = r.ResolveForOpen("Views/Index.razor", "textDocument/documentSymbol", registry)
	require.NoError(t, err)
	assert.Equal(t, "csharp", res.ServerLanguage, "the csharp server still owns the file")
	assert.Equal(t, "razor-cohost", res.LanguageID, "didOpen must announce the registered language")

	// Other files keep the static id.
	res, err = r.ResolveForOpen("Program.cs", "textDocument/documentSymbol", registry)
	require.NoError(t, err)
	assert.Equal(t, "csharp", res.LanguageID)
}
