// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package solidlsp

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// pathToURI converts an absolute filesystem path to a file:// URI.
func pathToURI(absPath string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(absPath)}
	return u.String()
}

// uriToPath converts a file:// URI back to a filesystem path.
func uriToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported uri scheme %q", u.Scheme)
	}
	return filepath.FromSlash(u.Path), nil
}

// relativeTo maps a file:// URI to a project-relative slash path.
func relativeTo(rootPath, uri string) (string, error) {
	abs, err := uriToPath(uri)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(rootPath, abs)
	if err != nil {
		return "", fmt.Errorf("uri %q outside project root: %w", uri, err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("uri %q outside project root", uri)
	}
	return filepath.ToSlash(rel), nil
}
