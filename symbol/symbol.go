// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package symbol

import (
	"fmt"

	"github.com/tessellate-ai/solidlsp/lsp"
)

// PathSep separates name path components.
const PathSep = "/"

// =============================================================================
// SYMBOL TREE
// =============================================================================

// Symbol is one node of a normalized symbol tree.
type Symbol struct {
	// Name is the plain symbol name as returned by the server.
	Name string

	// Kind is the LSP symbol kind.
	Kind lsp.SymbolKind

	// Detail is the server's optional detail string (signature, type).
	Detail string

	// NamePath identifies the symbol within its file, overload-disambiguated.
	NamePath string

	// RelativePath is the project-relative path of the containing file.
	RelativePath string

	// Range covers the full symbol body.
	Range lsp.Range

	// SelectionRange covers the symbol's name, the target for rename and
	// references requests.
	SelectionRange lsp.Range

	// OverloadIndex is the 1-based occurrence index among same-named
	// siblings. 1 for unique names and first occurrences.
	OverloadIndex int

	// Children are nested symbols in the order the server returned them.
	Children []*Symbol
}

// pathComponent renders the symbol's own name path component.
func (s *Symbol) pathComponent() string {
	if s.OverloadIndex > 1 {
		return fmt.Sprintf("%s[%d]", s.Name, s.OverloadIndex)
	}
	return s.Name
}

// Walk visits the symbol and all descendants depth-first, preorder. The
// walk stops early when fn returns false.
func (s *Symbol) Walk(fn func(*Symbol) bool) bool {
	if !fn(s) {
		return false
	}
	for _, c := range s.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Clip returns a copy of the symbol pruned to the given depth. Depth 1
// keeps only the symbol itself; depth 0 or negative keeps the whole tree.
func (s *Symbol) Clip(depth int) *Symbol {
	out := *s
	if depth == 1 {
		out.Children = nil
		return &out
	}
	childDepth := depth - 1
	if depth <= 0 {
		childDepth = 0
	}
	out.Children = make([]*Symbol, len(s.Children))
	for i, c := range s.Children {
		out.Children[i] = c.Clip(childDepth)
	}
	return &out
}

// BuildTree converts a raw hierarchical documentSymbol response into a
// normalized tree, assigning name paths and overload indices in a single
// left-to-right pass over each sibling level.
func BuildTree(relativePath string, raw []lsp.DocumentSymbol) []*Symbol {
	return buildLevel(relativePath, "", raw)
}

// buildLevel builds one sibling level under the given parent path prefix.
func buildLevel(relativePath, parentPath string, raw []lsp.DocumentSymbol) []*Symbol {
	out := make([]*Symbol, 0, len(raw))
	seen := make(map[string]int, len(raw))

	for _, ds := range raw {
		seen[ds.Name]++
		sym := &Symbol{
			Name:           ds.Name,
			Kind:           ds.Kind,
			Detail:         ds.Detail,
			RelativePath:   relativePath,
			Range:          ds.Range,
			SelectionRange: ds.SelectionRange,
			OverloadIndex:  seen[ds.Name],
		}
		sym.NamePath = joinPath(parentPath, sym.pathComponent())
		sym.Children = buildLevel(relativePath, sym.NamePath, ds.Children)
		out = append(out, sym)
	}
	return out
}

func joinPath(parent, component string) string {
	if parent == "" {
		return component
	}
	return parent + PathSep + component
}

// =============================================================================
// OVERVIEW
// =============================================================================

// Overview is the derived per-file symbol structure served to callers.
type Overview struct {
	// RelativePath is the file the overview describes.
	RelativePath string

	// Symbols are the root symbols, depth-limited per the request.
	Symbols []*Symbol
}

// NewOverview derives an overview from a normalized tree, pruned to depth.
// Depth 0 or negative keeps the full tree.
func NewOverview(relativePath string, roots []*Symbol, depth int) *Overview {
	clipped := make([]*Symbol, len(roots))
	for i, r := range roots {
		clipped[i] = r.Clip(depth)
	}
	return &Overview{RelativePath: relativePath, Symbols: clipped}
}

// Walk visits every symbol in the overview depth-first, preorder.
func (o *Overview) Walk(fn func(*Symbol) bool) {
	for _, r := range o.Symbols {
		if !r.Walk(fn) {
			return
		}
	}
}

// Find returns all symbols in the tree rooted at roots that the matcher
// accepts, in preorder.
func Find(roots []*Symbol, m *NamePathMatcher) []*Symbol {
	var out []*Symbol
	for _, r := range roots {
		r.Walk(func(s *Symbol) bool {
			if m.Matches(s.NamePath) {
				out = append(out, s)
			}
			return true
		})
	}
	return out
}
