// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache implements the two-tier symbol cache.
//
// Tier 1 holds raw per-document symbol trees exactly as a server returned
// them, keyed by project-relative path and content fingerprint. Tier 2
// holds derived overview structures built from tier 1, including overload
// index assignment. Entries are only ever replaced, never patched; a
// fingerprint change invalidates the tier-1 entry and every tier-2
// structure derived from it, and an instance restart drops everything.
package cache
