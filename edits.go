// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package solidlsp

import (
	"bytes"
	"fmt"
	"sort"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/tessellate-ai/solidlsp/lsp"
)

// collectWorkspaceEdits flattens a WorkspaceEdit into per-URI edit lists.
// Both encodings are accepted; documentChanges wins when a server sends
// both, per protocol.
func collectWorkspaceEdits(we *lsp.WorkspaceEdit) map[string][]lsp.TextEdit {
	out := make(map[string][]lsp.TextEdit)
	if we == nil {
		return out
	}
	if len(we.DocumentChanges) > 0 {
		for _, dc := range we.DocumentChanges {
			uri := dc.TextDocument.URI
			out[uri] = append(out[uri], dc.Edits...)
		}
		return out
	}
	for uri, edits := range we.Changes {
		out[uri] = append(out[uri], edits...)
	}
	return out
}

// applyTextEdits applies a server's edits to document content. Edits are
// applied in reverse document order so earlier edits never shift the
// ranges of later ones.
func applyTextEdits(content []byte, edits []lsp.TextEdit) ([]byte, error) {
	ordered := make([]lsp.TextEdit, len(edits))
	copy(ordered, edits)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Range.Start, ordered[j].Range.Start
		if a.Line != b.Line {
			return a.Line > b.Line
		}
		return a.Character > b.Character
	})

	for _, edit := range ordered {
		start, err := positionToByteOffset(content, edit.Range.Start)
		if err != nil {
			return nil, err
		}
		end, err := positionToByteOffset(content, edit.Range.End)
		if err != nil {
			return nil, err
		}
		if end < start {
			return nil, fmt.Errorf("edit range ends before it starts: %+v", edit.Range)
		}

		next := make([]byte, 0, len(content)-(end-start)+len(edit.NewText))
		next = append(next, content[:start]...)
		next = append(next, edit.NewText...)
		next = append(next, content[end:]...)
		content = next
	}
	return content, nil
}

// positionToByteOffset converts an LSP position, whose character offset
// counts UTF-16 code units, into a byte offset into content.
func positionToByteOffset(content []byte, pos lsp.Position) (int, error) {
	if pos.Line < 0 || pos.Character < 0 {
		return 0, fmt.Errorf("negative position %+v", pos)
	}

	offset := 0
	for line := 0; line < pos.Line; line++ {
		idx := bytes.IndexByte(content[offset:], '\n')
		if idx < 0 {
			return 0, fmt.Errorf("position line %d beyond end of document", pos.Line)
		}
		offset += idx + 1
	}

	// Walk the line rune by rune, counting UTF-16 code units.
	units := 0
	for units < pos.Character {
		if offset >= len(content) || content[offset] == '\n' {
			// Positions past the line end clamp to it, matching the
			// tolerant behavior editors exhibit.
			break
		}
		r, size := utf8.DecodeRune(content[offset:])
		units += len(utf16.Encode([]rune{r}))
		offset += size
	}
	return offset, nil
}
