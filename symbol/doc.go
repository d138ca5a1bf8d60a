// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package symbol provides the normalized, cross-language symbol model built
// from raw language server responses.
//
// A symbol's stable external identity is its name path: the sequence of
// ancestor names from the file root down to the symbol, joined with "/".
// Sibling symbols sharing a plain name (overloads) are disambiguated with a
// 1-based occurrence index, the first occurrence left unindexed:
//
//	foo, foo[2], foo[3]
//
// Occurrence order is the order the server returned the siblings in, which
// for well-behaved servers is declaration order. Indices are reassigned
// whenever a tree is rebuilt; they are never stored independently of their
// parent.
package symbol
