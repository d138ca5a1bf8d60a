// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lsp

import (
	"encoding/json"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// =============================================================================
// CAPABILITY REGISTRY
// =============================================================================

// RegisteredCapability is one surviving capability registration: a method
// plus the document selector it applies to.
type RegisteredCapability struct {
	// ID uniquely identifies the registration within a server run.
	ID string

	// Method is the method the registration covers.
	Method string

	// Selector lists the document filters; empty means the registration
	// covers every document the server was initialized for.
	Selector []DocumentFilter
}

// AppliesTo reports whether the registration covers the given relative
// path. A registration with an empty selector covers everything; a filter
// with no pattern matches by language alone and is treated as covering,
// since the file's language is exactly what the registration may override.
func (r RegisteredCapability) AppliesTo(relativePath string) bool {
	if len(r.Selector) == 0 {
		return true
	}
	for _, f := range r.Selector {
		if filterMatches(f, relativePath) {
			return true
		}
	}
	return false
}

// filterMatches evaluates one document filter against a relative path.
func filterMatches(f DocumentFilter, relativePath string) bool {
	if f.Scheme != "" && f.Scheme != "file" {
		return false
	}
	if f.Pattern == "" {
		// Language-only filter; the path carries no language, so the
		// filter does not narrow by path at all.
		return f.Language != ""
	}
	p := filepath.ToSlash(relativePath)
	if ok, err := doublestar.Match(f.Pattern, p); err == nil && ok {
		return true
	}
	// Selectors commonly use workspace-absolute patterns; retry with the
	// leading globstar semantics of a bare filename match.
	if ok, err := doublestar.Match(f.Pattern, "/"+p); err == nil && ok {
		return true
	}
	return false
}

// CapabilityRegistry tracks the capabilities a server has registered,
// statically at initialize time and dynamically via
// client/registerCapability. Lookups answer whether a method is actually
// serviceable for a file before any request is issued.
//
// Thread Safety:
//
//	Safe for concurrent use. In practice only the transport reader
//	goroutine mutates it; queries come from the orchestrator.
type CapabilityRegistry struct {
	mu sync.RWMutex

	// byMethod preserves registration order per method; lookups return
	// most-recently-registered last.
	byMethod map[string][]RegisteredCapability

	language string
}

// NewCapabilityRegistry creates an empty registry for the given language.
func NewCapabilityRegistry(language string) *CapabilityRegistry {
	return &CapabilityRegistry{
		byMethod: make(map[string][]RegisteredCapability),
		language: language,
	}
}

// SeedStatic records the statically advertised capabilities from an
// initialize result as registrations with an empty selector, so that
// IsRegistered answers uniformly for static and dynamic capabilities.
func (c *CapabilityRegistry) SeedStatic(caps ServerCapabilities) {
	seed := func(method string, enabled bool) {
		if enabled {
			c.Register(RegisteredCapability{ID: "static:" + method, Method: method})
		}
	}
	seed("textDocument/documentSymbol", caps.HasDocumentSymbolProvider())
	seed("textDocument/references", caps.HasReferencesProvider())
	seed("textDocument/rename", caps.HasRenameProvider())
}

// Register adds a registration. Multiple registrations per method are
// legal; a duplicate id replaces the previous registration with that id.
func (c *CapabilityRegistry) Register(reg RegisteredCapability) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(reg.ID)
	c.byMethod[reg.Method] = append(c.byMethod[reg.Method], reg)

	slog.Debug("Capability registered",
		slog.String("language", c.language),
		slog.String("method", reg.Method),
		slog.String("id", reg.ID),
		slog.Int("selectors", len(reg.Selector)),
	)
}

// Unregister removes the registration with the given id. Removing an
// unknown id is not an error: unregistration is an empty success per
// protocol convention.
func (c *CapabilityRegistry) Unregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(id)
}

// removeLocked drops the registration with the given id, if present.
func (c *CapabilityRegistry) removeLocked(id string) {
	for method, regs := range c.byMethod {
		for i, reg := range regs {
			if reg.ID == id {
				c.byMethod[method] = append(regs[:i:i], regs[i+1:]...)
				if len(c.byMethod[method]) == 0 {
					delete(c.byMethod, method)
				}
				return
			}
		}
	}
}

// IsRegistered reports whether any surviving registration makes the method
// serviceable for the given relative path.
func (c *CapabilityRegistry) IsRegistered(method, relativePath string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, reg := range c.byMethod[method] {
		if reg.AppliesTo(relativePath) {
			return true
		}
	}
	return false
}

// Registrations returns all surviving registrations for the method,
// most-recently-registered last.
func (c *CapabilityRegistry) Registrations(method string) []RegisteredCapability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	regs := c.byMethod[method]
	out := make([]RegisteredCapability, len(regs))
	copy(out, regs)
	return out
}

// LanguageOverride returns the language id a dynamic registration routes
// the file to, when a selector matching the path names a language. The
// most recent matching registration wins. This is the cohosting mechanism:
// a server registering "pattern=**/*.razor, language=razor-cohost" for a
// method claims .razor documents under that language id even though the
// file's nominal language is different.
func (c *CapabilityRegistry) LanguageOverride(method, relativePath string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	regs := c.byMethod[method]
	for i := len(regs) - 1; i >= 0; i-- {
		for _, f := range regs[i].Selector {
			if f.Language == "" || f.Pattern == "" {
				continue
			}
			if filterMatches(f, relativePath) {
				return f.Language, true
			}
		}
	}
	return "", false
}

// Clear removes every registration. Called when the owning server
// instance restarts: registrations live exactly as long as a server run.
func (c *CapabilityRegistry) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byMethod = make(map[string][]RegisteredCapability)
}

// =============================================================================
// REGISTRATION PARSING
// =============================================================================

// ParseRegistration converts a wire Registration into a
// RegisteredCapability, decoding the document selector when present.
func ParseRegistration(reg Registration) RegisteredCapability {
	out := RegisteredCapability{ID: reg.ID, Method: reg.Method}
	if len(reg.RegisterOptions) == 0 {
		return out
	}
	var opts TextDocumentRegistrationOptions
	if err := json.Unmarshal(reg.RegisterOptions, &opts); err == nil {
		out.Selector = opts.DocumentSelector
	}
	return out
}
