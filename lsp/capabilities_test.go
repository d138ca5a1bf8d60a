// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lsp

import (
	"encoding/json"
	"testing"
)

func TestCapabilityRegistry_StaticSeed(t *testing.T) {
	reg := NewCapabilityRegistry("go")
	reg.SeedStatic(ServerCapabilities{
		DocumentSymbolProvider: true,
		ReferencesProvider:     true,
	})

	if !reg.IsRegistered("textDocument/documentSymbol", "main.go") {
		t.Error("documentSymbol should be registered")
	}
	if !reg.IsRegistered("textDocument/references", "main.go") {
		t.Error("references should be registered")
	}
	if reg.IsRegistered("textDocument/rename", "main.go") {
		t.Error("rename was not advertised")
	}
}

func TestCapabilityRegistry_DynamicRegisterUnregister(t *testing.T) {
	reg := NewCapabilityRegistry("csharp")

	reg.Register(RegisteredCapability{
		ID:     "reg-1",
		Method: "textDocument/documentSymbol",
		Selector: []DocumentFilter{
			{Language: "csharp", Pattern: "**/*.cs"},
		},
	})

	if !reg.IsRegistered("textDocument/documentSymbol", "src/Program.cs") {
		t.Error("matching path should be serviceable")
	}
	if reg.IsRegistered("textDocument/documentSymbol", "src/Views/Index.razor") {
		t.Error("non-matching path must not be serviceable")
	}

	reg.Unregister("reg-1")
	if reg.IsRegistered("textDocument/documentSymbol", "src/Program.cs") {
		t.Error("unregistered capability must not survive")
	}

	// Unknown ids are silently ignored.
	reg.Unregister("never-registered")
}

func TestCapabilityRegistry_MultipleRegistrationsPerMethod(t *testing.T) {
	reg := NewCapabilityRegistry("csharp")

	reg.Register(RegisteredCapability{
		ID:       "cs",
		Method:   "textDocument/references",
		Selector: []DocumentFilter{{Language: "csharp", Pattern: "**/*.cs"}},
	})
	reg.Register(RegisteredCapability{
		ID:       "razor",
		Method:   "textDocument/references",
		Selector: []DocumentFilter{{Language: "razor-cohost", Pattern: "**/*.razor"}},
	})

	regs := reg.Registrations("textDocument/references")
	if len(regs) != 2 {
		t.Fatalf("registrations = %d, want 2", len(regs))
	}
	if regs[1].ID != "razor" {
		t.Errorf("most recent registration must come last, got %q", regs[1].ID)
	}

	// Removing one leaves the other intact.
	reg.Unregister("cs")
	if reg.IsRegistered("textDocument/references", "src/Program.cs") {
		t.Error("cs registration should be gone")
	}
	if !reg.IsRegistered("textDocument/references", "Views/Index.razor") {
		t.Error("razor registration must survive")
	}
}

func TestCapabilityRegistry_LanguageOverride(t *testing.T) {
	reg := NewCapabilityRegistry("csharp")
	reg.Register(RegisteredCapability{
		ID:       "razor",
		Method:   "textDocument/documentSymbol",
		Selector: []DocumentFilter{{Language: "razor-cohost", Pattern: "**/*.razor"}},
	})

	lang, ok := reg.LanguageOverride("textDocument/documentSymbol", "Views/Index.razor")
	if !ok {
		t.Fatal("expected an override for .razor")
	}
	if lang != "razor-cohost" {
		t.Errorf("override = %q, want razor-cohost", lang)
	}

	if _, ok := reg.LanguageOverride("textDocument/documentSymbol", "Program.cs"); ok {
		t.Error("no override expected for .cs")
	}

	reg.Unregister("razor")
	if _, ok := reg.LanguageOverride("textDocument/documentSymbol", "Views/Index.razor"); ok {
		t.Error("override must die with its registration")
	}
}

func TestCapabilityRegistry_Clear(t *testing.T) {
	reg := NewCapabilityRegistry("go")
	reg.SeedStatic(ServerCapabilities{DocumentSymbolProvider: true})
	reg.Register(RegisteredCapability{ID: "dyn", Method: "textDocument/rename"})

	reg.Clear()

	if reg.IsRegistered("textDocument/documentSymbol", "main.go") {
		t.Error("static seed must not survive Clear")
	}
	if reg.IsRegistered("textDocument/rename", "main.go") {
		t.Error("dynamic registration must not survive Clear")
	}
}

func TestParseRegistration(t *testing.T) {
	opts, _ := json.Marshal(TextDocumentRegistrationOptions{
		DocumentSelector: []DocumentFilter{
			{Language: "razor-cohost", Scheme: "file", Pattern: "**/*.razor"},
		},
	})

	got := ParseRegistration(Registration{
		ID:              "abc",
		Method:          "textDocument/documentSymbol",
		RegisterOptions: opts,
	})

	if got.ID != "abc" || got.Method != "textDocument/documentSymbol" {
		t.Errorf("identity fields lost: %+v", got)
	}
	if len(got.Selector) != 1 || got.Selector[0].Language != "razor-cohost" {
		t.Errorf("selector not decoded: %+v", got.Selector)
	}

	// Registrations without options cover everything.
	bare := ParseRegistration(Registration{ID: "x", Method: "m"})
	if !bare.AppliesTo("any/path.txt") {
		t.Error("empty selector must cover every document")
	}
}

func TestFilterMatches_Patterns(t *testing.T) {
	tests := []struct {
		name    string
		filter  DocumentFilter
		path    string
		matches bool
	}{
		{"globstar", DocumentFilter{Pattern: "**/*.cs"}, "src/deep/Program.cs", true},
		{"globstar top level", DocumentFilter{Pattern: "**/*.cs"}, "Program.cs", true},
		{"extension mismatch", DocumentFilter{Pattern: "**/*.cs"}, "src/Index.razor", false},
		{"brace alternation", DocumentFilter{Pattern: "**/*.{ts,tsx}"}, "src/app.tsx", true},
		{"scheme mismatch", DocumentFilter{Scheme: "untitled", Pattern: "**/*.cs"}, "Program.cs", false},
		{"language only", DocumentFilter{Language: "go"}, "main.go", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := filterMatches(tt.filter, tt.path); got != tt.matches {
				t.Errorf("filterMatches(%+v, %q) = %v, want %v", tt.filter, tt.path, got, tt.matches)
			}
		})
	}
}
