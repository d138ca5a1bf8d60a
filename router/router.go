// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package router decides which configured language server owns a file and
// which language id to announce when opening it. Static routing maps file
// extensions and configured glob patterns to languages; a server's dynamic
// capability registrations can override the announced language id for
// cohosted file types.
package router

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tessellate-ai/solidlsp/lsp"
)

// Route is one configured glob route overriding the catalog's extension
// mapping.
type Route struct {
	// Pattern is a project-relative doublestar glob, e.g. "scripts/**/*.txt".
	Pattern string

	// Language is the language id the pattern routes to. Must name an
	// active language.
	Language string
}

// Resolution is the routing outcome for a file.
type Resolution struct {
	// ServerLanguage identifies the server instance that owns the file.
	ServerLanguage string

	// LanguageID is the language id to announce on didOpen. Equals
	// ServerLanguage unless a dynamic registration overrides it.
	LanguageID string
}

// Router maps project-relative paths to languages.
//
// Thread Safety:
//
//	Immutable after New; safe for concurrent use.
type Router struct {
	// byExtension is built from the catalog, restricted to active languages.
	byExtension map[string]string

	// routes are configured glob overrides, most specific first.
	routes []Route
}

// New builds a router for the given active languages and configured glob
// routes. Routes are ordered most-specific-pattern first; ties keep
// configuration order.
//
// Errors:
//
//	error - unknown language, route naming an inactive language, or two
//	        active languages claiming one extension with equal priority
func New(activeLanguages []string, routes []Route) (*Router, error) {
	active := make(map[string]bool, len(activeLanguages))
	byExtension := make(map[string]string)
	claimPriority := make(map[string]int)

	for _, lang := range activeLanguages {
		def, ok := Catalog[lang]
		if !ok {
			return nil, fmt.Errorf("unknown language %q", lang)
		}
		active[lang] = true

		for _, ext := range def.Extensions {
			prev, claimed := byExtension[ext]
			if !claimed {
				byExtension[ext] = lang
				claimPriority[ext] = def.Priority
				continue
			}
			switch {
			case def.Priority > claimPriority[ext]:
				byExtension[ext] = lang
				claimPriority[ext] = def.Priority
			case def.Priority == claimPriority[ext]:
				return nil, fmt.Errorf(
					"languages %q and %q both claim extension %q with equal priority; disambiguate with an explicit route",
					prev, lang, ext)
			}
		}
	}

	sorted := make([]Route, len(routes))
	copy(sorted, routes)
	for _, r := range sorted {
		if !active[r.Language] {
			return nil, fmt.Errorf("route %q targets inactive language %q", r.Pattern, r.Language)
		}
		if !doublestar.ValidatePattern(r.Pattern) {
			return nil, fmt.Errorf("invalid route pattern %q", r.Pattern)
		}
	}
	stableSortBySpecificity(sorted)

	return &Router{byExtension: byExtension, routes: sorted}, nil
}

// stableSortBySpecificity orders routes so more specific patterns are
// consulted first, preserving configuration order among equals. Specificity
// is the number of literal characters in the pattern.
func stableSortBySpecificity(routes []Route) {
	sort.SliceStable(routes, func(i, j int) bool {
		return specificity(routes[i].Pattern) > specificity(routes[j].Pattern)
	})
}

func specificity(pattern string) int {
	n := 0
	for _, r := range pattern {
		switch r {
		case '*', '?', '{', '}', '[', ']', ',':
		default:
			n++
		}
	}
	return n
}

// Resolve maps a project-relative path to its owning server and static
// language id. Configured routes take precedence over the extension table.
//
// Errors:
//
//	lsp.ErrNotRoutable - no active language claims the file
func (r *Router) Resolve(relativePath string) (Resolution, error) {
	path := filepath.ToSlash(relativePath)

	for _, route := range r.routes {
		if ok, _ := doublestar.Match(route.Pattern, path); ok {
			return Resolution{ServerLanguage: route.Language, LanguageID: route.Language}, nil
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := r.byExtension[ext]; ok {
		return Resolution{ServerLanguage: lang, LanguageID: lang}, nil
	}

	return Resolution{}, fmt.Errorf("%w: no language configured for %q", lsp.ErrNotRoutable, relativePath)
}

// ResolveForOpen resolves a path and applies any dynamic-registration
// language override from the owning server's capability registry. This is
// the cohosting mechanism: when the server has registered method for a
// selector naming a different language id (for example .razor files under
// "razor-cohost" on a csharp server), didOpen must announce that id so the
// request reaches the correct in-process handler. The decision is made
// per open; registrations reset on restart, so reopened files re-resolve.
func (r *Router) ResolveForOpen(relativePath, method string, registry *lsp.CapabilityRegistry) (Resolution, error) {
	res, err := r.Resolve(relativePath)
	if err != nil {
		return Resolution{}, err
	}
	if registry != nil {
		if lang, ok := registry.LanguageOverride(method, relativePath); ok {
			res.LanguageID = lang
		}
	}
	return res, nil
}
