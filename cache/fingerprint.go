// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"fmt"
	"hash/fnv"
	"io"
	"os"
)

// Fingerprint identifies one version of a file's content. Two fingerprints
// are equal exactly when size, modification time and content hash all
// match; any difference invalidates cache entries keyed by the old value.
type Fingerprint struct {
	Size    int64
	ModTime int64 // unix nanoseconds
	Hash    uint64
}

// Zero reports whether the fingerprint is the zero value.
func (f Fingerprint) Zero() bool {
	return f == Fingerprint{}
}

// String renders the fingerprint as a stable cache key component.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%d-%d-%016x", f.Size, f.ModTime, f.Hash)
}

// FingerprintFile computes the fingerprint of a file on disk.
func FingerprintFile(absPath string) (Fingerprint, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("stat %s: %w", absPath, err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("open %s: %w", absPath, err)
	}
	defer file.Close()

	h := fnv.New64a()
	if _, err := io.Copy(h, file); err != nil {
		return Fingerprint{}, fmt.Errorf("hash %s: %w", absPath, err)
	}

	return Fingerprint{
		Size:    info.Size(),
		ModTime: info.ModTime().UnixNano(),
		Hash:    h.Sum64(),
	}, nil
}

// FingerprintBytes computes the fingerprint of in-memory content, used for
// open-document buffers that have diverged from disk. ModTime is zero: a
// buffer version is identified by size and hash alone.
func FingerprintBytes(content []byte) Fingerprint {
	h := fnv.New64a()
	_, _ = h.Write(content)
	return Fingerprint{
		Size: int64(len(content)),
		Hash: h.Sum64(),
	}
}
