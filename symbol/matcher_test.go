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
)

func TestNamePathMatcher(t *testing.T) {
	tests := []struct {
		name      string
		pattern   string
		substring bool
		path      string
		matches   bool
	}{
		{"leaf anywhere", "method", false, "Class/method", true},
		{"leaf at root", "method", false, "method", true},
		{"leaf mismatch", "method", false, "Class/other", false},
		{"relative suffix", "Class/method", false, "Outer/Class/method", true},
		{"relative too long", "Outer/Class/method", false, "Class/method", false},
		{"absolute exact", "/Class/method", false, "Class/method", true},
		{"absolute rejects deeper", "/Class/method", false, "Outer/Class/method", false},
		{"unpinned matches first overload", "method", false, "Class/method", true},
		{"unpinned matches later overload", "method", false, "Class/method[3]", true},
		{"pinned overload", "method[2]", false, "Class/method[2]", true},
		{"pinned wrong overload", "method[2]", false, "Class/method[3]", false},
		{"pinned first occurrence", "method[1]", false, "Class/method", true},
		{"pin on inner component", "Class[2]/method", false, "Class[2]/method", true},
		{"substring leaf", "handle", true, "Svc/handleRequest", true},
		{"substring leaf only", "Svc", true, "Svc/handleRequest", false},
		{"substring still exact on ancestors", "vc/handleRequest", true, "Svc/handleRequest", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewNamePathMatcher(tt.pattern, tt.substring)
			require.NoError(t, err)
			assert.Equal(t, tt.matches, m.Matches(tt.path),
				"pattern %q vs path %q", tt.pattern, tt.path)
		})
	}
}

func TestNamePathMatcher_Invalid(t *testing.T) {
	_, err := NewNamePathMatcher("", false)
	assert.Error(t, err)

	_, err = NewNamePathMatcher("/", false)
	assert.Error(t, err)

	_, err = NewNamePathMatcher("foo[0]", false)
	assert.Error(t, err)

	_, err = NewNamePathMatcher("foo[x]", false)
	assert.Error(t, err)
}
