// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package solidlsp orchestrates external language servers behind a single
// symbol-level API: open and close documents, list symbol overviews, find
// symbols and references by name path, and rename.
//
// One SolidLanguageServer serves one project root. Server instances are
// created lazily per language, monitored for crashes, and restarted with
// the triggering operation retried exactly once. Symbol results are served
// through a two-tier cache invalidated by content fingerprint.
//
//	sls, err := solidlsp.New(ctx, "/path/to/project")
//	if err != nil { ... }
//	defer sls.Shutdown(context.Background())
//
//	ov, err := sls.GetOverview(ctx, "internal/widget.go", 2)
package solidlsp
