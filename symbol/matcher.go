// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package symbol

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// NAME PATH MATCHER
// =============================================================================

// pathComponent is one parsed segment of a name path or pattern: a name
// plus an optional pinned overload index (0 means unpinned).
type pathComponent struct {
	name  string
	index int
}

// parseComponent splits "name[3]" into its name and index.
func parseComponent(raw string) (pathComponent, error) {
	if !strings.HasSuffix(raw, "]") {
		return pathComponent{name: raw}, nil
	}
	open := strings.LastIndex(raw, "[")
	if open < 0 {
		return pathComponent{}, fmt.Errorf("unbalanced bracket in %q", raw)
	}
	idx, err := strconv.Atoi(raw[open+1 : len(raw)-1])
	if err != nil || idx < 1 {
		return pathComponent{}, fmt.Errorf("invalid overload index in %q", raw)
	}
	return pathComponent{name: raw[:open], index: idx}, nil
}

// NamePathMatcher matches symbols by name path pattern.
//
// Patterns:
//
//	method              matches any symbol named "method" at any depth
//	Class/method        matches "method" directly under any "Class"
//	/Class/method       absolute: "Class" must be a file root symbol
//	Class/method[2]     pins the second overload only
//
// An unpinned pattern component matches every overload of that name. With
// substring matching enabled, the last pattern component matches when it is
// contained in the symbol's name rather than equal to it.
type NamePathMatcher struct {
	expr       string
	absolute   bool
	substring  bool
	components []pathComponent
}

// NewNamePathMatcher parses a name path pattern.
//
// Errors:
//
//	error - pattern empty or an overload index is malformed
func NewNamePathMatcher(pattern string, substringMatching bool) (*NamePathMatcher, error) {
	if pattern == "" {
		return nil, fmt.Errorf("name path pattern must not be empty")
	}

	m := &NamePathMatcher{
		expr:      pattern,
		absolute:  strings.HasPrefix(pattern, PathSep),
		substring: substringMatching,
	}

	trimmed := strings.Trim(pattern, PathSep)
	if trimmed == "" {
		return nil, fmt.Errorf("name path pattern %q has no components", pattern)
	}
	for _, raw := range strings.Split(trimmed, PathSep) {
		comp, err := parseComponent(raw)
		if err != nil {
			return nil, fmt.Errorf("parse name path %q: %w", pattern, err)
		}
		m.components = append(m.components, comp)
	}
	return m, nil
}

// String returns the original pattern expression.
func (m *NamePathMatcher) String() string { return m.expr }

// Matches reports whether the matcher accepts a symbol with the given
// disambiguated name path. Matching runs leaf-first: the pattern's trailing
// components must align with the path's trailing components; an absolute
// pattern must additionally consume the entire path.
func (m *NamePathMatcher) Matches(namePath string) bool {
	raw := strings.Split(strings.Trim(namePath, PathSep), PathSep)
	comps := make([]pathComponent, 0, len(raw))
	for _, r := range raw {
		c, err := parseComponent(r)
		if err != nil {
			// A symbol name containing literal brackets; treat as plain.
			c = pathComponent{name: r}
		}
		if c.index == 0 {
			// First occurrences carry no index on the wire.
			c.index = 1
		}
		comps = append(comps, c)
	}

	if len(m.components) > len(comps) {
		return false
	}
	if m.absolute && len(m.components) != len(comps) {
		return false
	}

	offset := len(comps) - len(m.components)
	for i := len(m.components) - 1; i >= 0; i-- {
		leaf := i == len(m.components)-1
		if !m.componentMatches(m.components[i], comps[offset+i], leaf) {
			return false
		}
	}
	return true
}

func (m *NamePathMatcher) componentMatches(pattern, actual pathComponent, leaf bool) bool {
	if m.substring && leaf {
		if !strings.Contains(actual.name, pattern.name) {
			return false
		}
	} else if pattern.name != actual.name {
		return false
	}
	return pattern.index == 0 || pattern.index == actual.index
}
