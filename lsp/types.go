// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lsp

import "encoding/json"

// =============================================================================
// POSITION & RANGE TYPES
// =============================================================================

// Position represents a position in a text document.
// Line and character are 0-indexed per LSP specification; character counts
// UTF-16 code units.
type Position struct {
	// Line is the 0-indexed line number.
	Line int `json:"line"`

	// Character is the 0-indexed UTF-16 offset within the line.
	Character int `json:"character"`
}

// Range represents a range in a text document.
type Range struct {
	// Start is the inclusive start position.
	Start Position `json:"start"`

	// End is the exclusive end position.
	End Position `json:"end"`
}

// Location represents a location in a document.
type Location struct {
	// URI is the document URI (file:// scheme).
	URI string `json:"uri"`

	// Range is the range within the document.
	Range Range `json:"range"`
}

// =============================================================================
// DOCUMENT IDENTIFIERS
// =============================================================================

// TextDocumentIdentifier identifies a text document by URI.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// TextDocumentItem represents a text document with its content.
type TextDocumentItem struct {
	URI string `json:"uri"`

	// LanguageID is the language identifier announced on open. This is
	// whatever the router resolved for the file, which is not necessarily
	// the file's conventional type (cohosted file types are announced
	// under the language of the handler that registered for them).
	LanguageID string `json:"languageId"`

	Version int    `json:"version"`
	Text    string `json:"text"`
}

// VersionedTextDocumentIdentifier identifies a specific version of a document.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int `json:"version"`
}

// =============================================================================
// REQUEST PARAMETER TYPES
// =============================================================================

// TextDocumentPositionParams identifies a position in a text document.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// ReferenceParams extends TextDocumentPositionParams for find references.
type ReferenceParams struct {
	TextDocumentPositionParams

	Context ReferenceContext `json:"context"`
}

// ReferenceContext contains options for find references requests.
type ReferenceContext struct {
	// IncludeDeclaration indicates whether to include the declaration.
	IncludeDeclaration bool `json:"includeDeclaration"`
}

// RenameParams contains rename request parameters.
type RenameParams struct {
	TextDocumentPositionParams

	// NewName is the new name to rename the symbol to.
	NewName string `json:"newName"`
}

// DocumentSymbolParams contains params for textDocument/documentSymbol.
type DocumentSymbolParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DidOpenTextDocumentParams contains params for textDocument/didOpen.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidCloseTextDocumentParams contains params for textDocument/didClose.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DidChangeTextDocumentParams contains params for textDocument/didChange.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// TextDocumentContentChangeEvent describes a content change event.
type TextDocumentContentChangeEvent struct {
	// Range is the range that got replaced. Omit for full document sync.
	Range *Range `json:"range,omitempty"`

	// Text is the new text for the range or the full document.
	Text string `json:"text"`
}

// CancelParams contains params for the $/cancelRequest notification.
type CancelParams struct {
	ID int64 `json:"id"`
}

// =============================================================================
// SYMBOL TYPES
// =============================================================================

// SymbolKind represents the kind of a symbol.
type SymbolKind int

// Symbol kinds as defined by the LSP specification.
const (
	SymbolKindFile          SymbolKind = 1
	SymbolKindModule        SymbolKind = 2
	SymbolKindNamespace     SymbolKind = 3
	SymbolKindPackage       SymbolKind = 4
	SymbolKindClass         SymbolKind = 5
	SymbolKindMethod        SymbolKind = 6
	SymbolKindProperty      SymbolKind = 7
	SymbolKindField         SymbolKind = 8
	SymbolKindConstructor   SymbolKind = 9
	SymbolKindEnum          SymbolKind = 10
	SymbolKindInterface     SymbolKind = 11
	SymbolKindFunction      SymbolKind = 12
	SymbolKindVariable      SymbolKind = 13
	SymbolKindConstant      SymbolKind = 14
	SymbolKindString        SymbolKind = 15
	SymbolKindNumber        SymbolKind = 16
	SymbolKindBoolean       SymbolKind = 17
	SymbolKindArray         SymbolKind = 18
	SymbolKindObject        SymbolKind = 19
	SymbolKindKey           SymbolKind = 20
	SymbolKindNull          SymbolKind = 21
	SymbolKindEnumMember    SymbolKind = 22
	SymbolKindStruct        SymbolKind = 23
	SymbolKindEvent         SymbolKind = 24
	SymbolKindOperator      SymbolKind = 25
	SymbolKindTypeParameter SymbolKind = 26
)

var symbolKindNames = map[SymbolKind]string{
	SymbolKindFile:          "File",
	SymbolKindModule:        "Module",
	SymbolKindNamespace:     "Namespace",
	SymbolKindPackage:       "Package",
	SymbolKindClass:         "Class",
	SymbolKindMethod:        "Method",
	SymbolKindProperty:      "Property",
	SymbolKindField:         "Field",
	SymbolKindConstructor:   "Constructor",
	SymbolKindEnum:          "Enum",
	SymbolKindInterface:     "Interface",
	SymbolKindFunction:      "Function",
	SymbolKindVariable:      "Variable",
	SymbolKindConstant:      "Constant",
	SymbolKindString:        "String",
	SymbolKindNumber:        "Number",
	SymbolKindBoolean:       "Boolean",
	SymbolKindArray:         "Array",
	SymbolKindObject:        "Object",
	SymbolKindKey:           "Key",
	SymbolKindNull:          "Null",
	SymbolKindEnumMember:    "EnumMember",
	SymbolKindStruct:        "Struct",
	SymbolKindEvent:         "Event",
	SymbolKindOperator:      "Operator",
	SymbolKindTypeParameter: "TypeParameter",
}

// String returns the LSP name of the symbol kind, or "Unknown".
func (k SymbolKind) String() string {
	if name, ok := symbolKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// DocumentSymbol is a hierarchical symbol as returned by
// textDocument/documentSymbol from servers supporting the hierarchical form.
type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           SymbolKind       `json:"kind"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// SymbolInformation is the flat symbol form returned by older servers and
// by workspace/symbol.
type SymbolInformation struct {
	Name          string     `json:"name"`
	Kind          SymbolKind `json:"kind"`
	Location      Location   `json:"location"`
	ContainerName string     `json:"containerName,omitempty"`
}

// =============================================================================
// WORKSPACE EDIT TYPES
// =============================================================================

// TextEdit represents a single text change.
type TextEdit struct {
	// Range is the range to replace.
	Range Range `json:"range"`

	// NewText is the replacement text.
	NewText string `json:"newText"`
}

// TextDocumentEdit describes edits to a specific document version.
type TextDocumentEdit struct {
	TextDocument VersionedTextDocumentIdentifier `json:"textDocument"`
	Edits        []TextEdit                      `json:"edits"`
}

// WorkspaceEdit represents changes to many resources.
type WorkspaceEdit struct {
	// Changes is a map from URI to list of text edits.
	Changes map[string][]TextEdit `json:"changes,omitempty"`

	// DocumentChanges are versioned document edits (preferred over Changes).
	DocumentChanges []TextDocumentEdit `json:"documentChanges,omitempty"`
}

// =============================================================================
// CAPABILITY REGISTRATION TYPES
// =============================================================================

// DocumentFilter restricts a capability to documents matching a glob
// pattern, a language id, or both.
type DocumentFilter struct {
	// Language is the language id the filter applies to, if any.
	Language string `json:"language,omitempty"`

	// Scheme restricts to a URI scheme (usually "file").
	Scheme string `json:"scheme,omitempty"`

	// Pattern is a glob over relative paths, e.g. "**/*.{ts,tsx}".
	Pattern string `json:"pattern,omitempty"`
}

// Registration is one entry of a client/registerCapability request.
type Registration struct {
	// ID uniquely identifies the registration within a server run.
	ID string `json:"id"`

	// Method is the method the registration applies to.
	Method string `json:"method"`

	// RegisterOptions carries method-specific options. For text document
	// methods this holds the document selector.
	RegisterOptions json.RawMessage `json:"registerOptions,omitempty"`
}

// RegistrationParams contains params for client/registerCapability.
type RegistrationParams struct {
	Registrations []Registration `json:"registrations"`
}

// Unregistration is one entry of a client/unregisterCapability request.
type Unregistration struct {
	ID     string `json:"id"`
	Method string `json:"method"`
}

// UnregistrationParams contains params for client/unregisterCapability.
type UnregistrationParams struct {
	Unregisterations []Unregistration `json:"unregisterations"`
}

// TextDocumentRegistrationOptions is the common shape of RegisterOptions
// for textDocument/* registrations.
type TextDocumentRegistrationOptions struct {
	// DocumentSelector lists the filters the registration applies to.
	// Null means the selector provided at initialize time applies.
	DocumentSelector []DocumentFilter `json:"documentSelector"`
}

// =============================================================================
// INITIALIZE TYPES
// =============================================================================

// InitializeParams contains initialization parameters.
type InitializeParams struct {
	ProcessID             int                `json:"processId"`
	RootURI               string             `json:"rootUri"`
	RootPath              string             `json:"rootPath,omitempty"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	InitializationOptions any                `json:"initializationOptions,omitempty"`
	WorkspaceFolders      []WorkspaceFolder  `json:"workspaceFolders,omitempty"`
}

// WorkspaceFolder represents a workspace folder.
type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// ClientCapabilities describes what the client supports.
type ClientCapabilities struct {
	TextDocument TextDocumentClientCapabilities `json:"textDocument,omitempty"`
	Workspace    WorkspaceClientCapabilities    `json:"workspace,omitempty"`
}

// TextDocumentClientCapabilities describes text document capabilities.
type TextDocumentClientCapabilities struct {
	Synchronization *DynamicRegistrationCapability `json:"synchronization,omitempty"`
	DocumentSymbol  *DocumentSymbolCapabilities    `json:"documentSymbol,omitempty"`
	References      *DynamicRegistrationCapability `json:"references,omitempty"`
	Rename          *RenameCapabilities            `json:"rename,omitempty"`
}

// DynamicRegistrationCapability is the minimal capability record signalling
// dynamic registration support for a method.
type DynamicRegistrationCapability struct {
	DynamicRegistration bool `json:"dynamicRegistration,omitempty"`
}

// DocumentSymbolCapabilities describes documentSymbol support.
type DocumentSymbolCapabilities struct {
	DynamicRegistration               bool `json:"dynamicRegistration,omitempty"`
	HierarchicalDocumentSymbolSupport bool `json:"hierarchicalDocumentSymbolSupport,omitempty"`
}

// RenameCapabilities describes rename support.
type RenameCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration,omitempty"`
	PrepareSupport      bool `json:"prepareSupport,omitempty"`
}

// WorkspaceClientCapabilities describes workspace capabilities.
type WorkspaceClientCapabilities struct {
	ApplyEdit     bool                           `json:"applyEdit,omitempty"`
	WorkspaceEdit *WorkspaceEditClientCapability `json:"workspaceEdit,omitempty"`
	Symbol        *DynamicRegistrationCapability `json:"symbol,omitempty"`
}

// WorkspaceEditClientCapability describes workspace edit capabilities.
type WorkspaceEditClientCapability struct {
	DocumentChanges bool `json:"documentChanges,omitempty"`
}

// InitializeResult contains the server's response to initialize.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

// ServerInfo contains information about the server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerCapabilities describes what the server advertises at initialize
// time. Provider fields are `any` because servers legally return booleans
// or option objects.
type ServerCapabilities struct {
	TextDocumentSync       any `json:"textDocumentSync,omitempty"`
	DocumentSymbolProvider any `json:"documentSymbolProvider,omitempty"`
	ReferencesProvider     any `json:"referencesProvider,omitempty"`
	RenameProvider         any `json:"renameProvider,omitempty"`
}

// providerEnabled reports whether a provider field advertises support.
func providerEnabled(v any) bool {
	return v != nil && v != false
}

// HasDocumentSymbolProvider returns true if documentSymbol is supported.
func (c *ServerCapabilities) HasDocumentSymbolProvider() bool {
	return providerEnabled(c.DocumentSymbolProvider)
}

// HasReferencesProvider returns true if references is supported.
func (c *ServerCapabilities) HasReferencesProvider() bool {
	return providerEnabled(c.ReferencesProvider)
}

// HasRenameProvider returns true if rename is supported.
func (c *ServerCapabilities) HasRenameProvider() bool {
	return providerEnabled(c.RenameProvider)
}

// =============================================================================
// WINDOW TYPES
// =============================================================================

// LogMessageParams contains params for window/logMessage.
type LogMessageParams struct {
	// Type is the message severity: 1 error, 2 warning, 3 info, 4 log.
	Type    int    `json:"type"`
	Message string `json:"message"`
}
