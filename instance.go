// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package solidlsp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tessellate-ai/solidlsp/cache"
	"github.com/tessellate-ai/solidlsp/lsp"
)

// languageProcess is the slice of ServerProcess the instance layer uses.
// Narrowed to an interface so crash scenarios can be driven by scripted
// fakes instead of real subprocesses.
type languageProcess interface {
	Start(ctx context.Context) error
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params any) error
	OnServerRequest(method string, h lsp.RequestHandler)
	OnNotification(method string, h lsp.NotificationHandler)
	Terminate(ctx context.Context) error
	State() lsp.ProcessState
	Capabilities() lsp.ServerCapabilities
}

// processFactory creates an unstarted process for a language and launch
// spec. The default factory wraps lsp.NewServerProcess.
type processFactory func(language string, spec lsp.LaunchSpec, rootPath string, requestTimeout time.Duration) languageProcess

func defaultProcessFactory(language string, spec lsp.LaunchSpec, rootPath string, requestTimeout time.Duration) languageProcess {
	return lsp.NewServerProcess(language, spec, rootPath, requestTimeout)
}

// documentBuffer is the in-memory state of one open document. didOpen is
// sent on the first open and didClose on the last close; nested opens only
// move the refcount.
type documentBuffer struct {
	uri        string
	languageID string
	content    []byte
	version    int
	refCount   int
}

// ServerInstance owns one language's server for one project: the process,
// its capability registry, its symbol cache and its open documents. All of
// it lives and dies with the instance; a restart replaces the process and
// resets registry and caches.
type ServerInstance struct {
	id       uuid.UUID
	language string
	rootPath string
	spec     lsp.LaunchSpec

	registry *lsp.CapabilityRegistry
	cache    *cache.SymbolCache

	requestTimeout time.Duration
	newProcess     processFactory

	// resolveLanguageID maps a relative path to the language id announced
	// on didOpen, consulting the live capability registry. Installed by
	// the orchestrator.
	resolveLanguageID func(relativePath string) (string, error)

	mu   sync.Mutex
	proc languageProcess
	docs map[string]*documentBuffer
}

// newServerInstance creates an unstarted instance.
func newServerInstance(language string, spec lsp.LaunchSpec, rootPath string, requestTimeout time.Duration, factory processFactory) *ServerInstance {
	if factory == nil {
		factory = defaultProcessFactory
	}
	inst := &ServerInstance{
		id:             uuid.New(),
		language:       language,
		rootPath:       rootPath,
		spec:           spec,
		registry:       lsp.NewCapabilityRegistry(language),
		cache:          cache.NewSymbolCache(language),
		requestTimeout: requestTimeout,
		newProcess:     factory,
		docs:           make(map[string]*documentBuffer),
	}
	inst.proc = factory(language, spec, rootPath, requestTimeout)
	return inst
}

// ID returns the instance's unique id. A restart keeps the id; the id
// identifies the instance slot, not one process run.
func (inst *ServerInstance) ID() uuid.UUID { return inst.id }

// Language returns the language this instance serves.
func (inst *ServerInstance) Language() string { return inst.language }

// Registry returns the instance's capability registry.
func (inst *ServerInstance) Registry() *lsp.CapabilityRegistry { return inst.registry }

// Cache returns the instance's symbol cache.
func (inst *ServerInstance) Cache() *cache.SymbolCache { return inst.cache }

// start launches the process and wires capability tracking.
func (inst *ServerInstance) start(ctx context.Context) error {
	if err := inst.proc.Start(ctx); err != nil {
		return err
	}

	inst.registry.SeedStatic(inst.proc.Capabilities())
	inst.installCapabilityHandlers(inst.proc)

	slog.Info("Server instance ready",
		slog.String("language", inst.language),
		slog.String("instance_id", inst.id.String()),
	)
	return nil
}

// installCapabilityHandlers routes dynamic capability registration into
// the registry. Both handlers answer with an empty success; unregistering
// an unknown id is not a failure condition.
func (inst *ServerInstance) installCapabilityHandlers(proc languageProcess) {
	proc.OnServerRequest("client/registerCapability", func(params json.RawMessage) (any, *lsp.ResponseError) {
		var p lsp.RegistrationParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &lsp.ResponseError{Code: lsp.CodeInvalidParams, Message: err.Error()}
		}
		for _, reg := range p.Registrations {
			inst.registry.Register(lsp.ParseRegistration(reg))
		}
		return nil, nil
	})

	proc.OnServerRequest("client/unregisterCapability", func(params json.RawMessage) (any, *lsp.ResponseError) {
		var p lsp.UnregistrationParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &lsp.ResponseError{Code: lsp.CodeInvalidParams, Message: err.Error()}
		}
		for _, unreg := range p.Unregisterations {
			inst.registry.Unregister(unreg.ID)
		}
		return nil, nil
	})
}

// restart tears the current process down, discards everything scoped to
// the run, starts a fresh process from the same launch spec and reopens
// the documents that were open. Registrations reset with the run, so
// reopened documents re-resolve their language ids against the static
// routing until the new server re-registers.
func (inst *ServerInstance) restart(ctx context.Context) error {
	inst.mu.Lock()
	old := inst.proc
	inst.mu.Unlock()

	slog.Warn("Restarting server instance",
		slog.String("language", inst.language),
		slog.String("instance_id", inst.id.String()),
	)

	_ = old.Terminate(ctx)
	inst.cache.InvalidateAll()
	inst.registry.Clear()

	fresh := inst.newProcess(inst.language, inst.spec, inst.rootPath, inst.requestTimeout)
	if err := fresh.Start(ctx); err != nil {
		return fmt.Errorf("restart %s server: %w", inst.language, err)
	}
	inst.registry.SeedStatic(fresh.Capabilities())
	inst.installCapabilityHandlers(fresh)

	// Buffer fields are only touched under the lock; didOpen goes out from
	// snapshots so concurrent opens and edits cannot race the reopen.
	type reopenedDoc struct {
		path string
		item lsp.TextDocumentItem
	}
	inst.mu.Lock()
	inst.proc = fresh
	reopened := make([]reopenedDoc, 0, len(inst.docs))
	for path, doc := range inst.docs {
		languageID := inst.language
		if inst.resolveLanguageID != nil {
			if id, err := inst.resolveLanguageID(path); err == nil {
				languageID = id
			}
		}
		doc.languageID = languageID
		doc.version = 1
		reopened = append(reopened, reopenedDoc{
			path: path,
			item: lsp.TextDocumentItem{
				URI:        doc.uri,
				LanguageID: doc.languageID,
				Version:    doc.version,
				Text:       string(doc.content),
			},
		})
	}
	inst.mu.Unlock()

	for _, doc := range reopened {
		if err := fresh.Notify(ctx, "textDocument/didOpen", lsp.DidOpenTextDocumentParams{
			TextDocument: doc.item,
		}); err != nil {
			slog.Warn("Failed to reopen document after restart",
				slog.String("language", inst.language),
				slog.String("file", doc.path),
				slog.String("error", err.Error()),
			)
		}
	}

	recordRestart(ctx, inst.language)
	return nil
}

// terminate shuts the instance down for good.
func (inst *ServerInstance) terminate(ctx context.Context) error {
	inst.mu.Lock()
	proc := inst.proc
	inst.docs = make(map[string]*documentBuffer)
	inst.mu.Unlock()

	inst.cache.InvalidateAll()
	inst.registry.Clear()
	return proc.Terminate(ctx)
}

// process returns the current process under the instance lock.
func (inst *ServerInstance) process() languageProcess {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.proc
}

// =============================================================================
// DOCUMENT LIFECYCLE
// =============================================================================

// openDocument opens a file, bumping the refcount if it is already open.
// didOpen is sent only on the transition from closed to open.
func (inst *ServerInstance) openDocument(ctx context.Context, relativePath string) error {
	inst.mu.Lock()
	if doc, ok := inst.docs[relativePath]; ok {
		doc.refCount++
		inst.mu.Unlock()
		return nil
	}
	inst.mu.Unlock()

	absPath := filepath.Join(inst.rootPath, filepath.FromSlash(relativePath))
	content, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", relativePath, err)
	}

	languageID := inst.language
	if inst.resolveLanguageID != nil {
		id, err := inst.resolveLanguageID(relativePath)
		if err != nil {
			return err
		}
		languageID = id
	}

	doc := &documentBuffer{
		uri:        pathToURI(absPath),
		languageID: languageID,
		content:    content,
		version:    1,
		refCount:   1,
	}

	inst.mu.Lock()
	if existing, ok := inst.docs[relativePath]; ok {
		existing.refCount++
		inst.mu.Unlock()
		return nil
	}
	inst.docs[relativePath] = doc
	proc := inst.proc
	inst.mu.Unlock()

	return proc.Notify(ctx, "textDocument/didOpen", lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{
			URI:        doc.uri,
			LanguageID: doc.languageID,
			Version:    doc.version,
			Text:       string(doc.content),
		},
	})
}

// closeDocument decrements a document's refcount, sending didClose when
// the last reference goes away. Closing an unopened document is a no-op.
func (inst *ServerInstance) closeDocument(ctx context.Context, relativePath string) error {
	inst.mu.Lock()
	doc, ok := inst.docs[relativePath]
	if !ok {
		inst.mu.Unlock()
		return nil
	}
	doc.refCount--
	if doc.refCount > 0 {
		inst.mu.Unlock()
		return nil
	}
	delete(inst.docs, relativePath)
	proc := inst.proc
	inst.mu.Unlock()

	return proc.Notify(ctx, "textDocument/didClose", lsp.DidCloseTextDocumentParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: doc.uri},
	})
}

// documentContent returns the buffered content of an open document, or
// ok=false when the document is not open.
func (inst *ServerInstance) documentContent(relativePath string) ([]byte, bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	doc, ok := inst.docs[relativePath]
	if !ok {
		return nil, false
	}
	return doc.content, true
}

// isOpen reports whether the document currently has any open references.
func (inst *ServerInstance) isOpen(relativePath string) bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	_, ok := inst.docs[relativePath]
	return ok
}

// replaceDocumentContent swaps an open document's buffer and notifies the
// server with a full-content didChange.
func (inst *ServerInstance) replaceDocumentContent(ctx context.Context, relativePath string, content []byte) error {
	inst.mu.Lock()
	doc, ok := inst.docs[relativePath]
	if !ok {
		inst.mu.Unlock()
		return fmt.Errorf("document %s is not open", relativePath)
	}
	doc.content = content
	doc.version++
	version := doc.version
	uri := doc.uri
	proc := inst.proc
	inst.mu.Unlock()

	return proc.Notify(ctx, "textDocument/didChange", lsp.DidChangeTextDocumentParams{
		TextDocument: lsp.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: uri},
			Version:                version,
		},
		ContentChanges: []lsp.TextDocumentContentChangeEvent{
			{Text: string(content)},
		},
	})
}

// fingerprint computes the current fingerprint of a file, preferring the
// open buffer over the disk copy.
func (inst *ServerInstance) fingerprint(relativePath string) (cache.Fingerprint, error) {
	if content, ok := inst.documentContent(relativePath); ok {
		return cache.FingerprintBytes(content), nil
	}
	absPath := filepath.Join(inst.rootPath, filepath.FromSlash(relativePath))
	return cache.FingerprintFile(absPath)
}

// =============================================================================
// REQUESTS
// =============================================================================

// documentURI returns the file:// URI for a project-relative path.
func (inst *ServerInstance) documentURI(relativePath string) string {
	return pathToURI(filepath.Join(inst.rootPath, filepath.FromSlash(relativePath)))
}

// fetchDocumentSymbols issues textDocument/documentSymbol, opening the
// document transiently when it is not already open. Servers return either
// a hierarchical or a flat shape; both normalize to DocumentSymbol.
func (inst *ServerInstance) fetchDocumentSymbols(ctx context.Context, relativePath string) ([]lsp.DocumentSymbol, error) {
	if err := inst.openDocument(ctx, relativePath); err != nil {
		return nil, err
	}
	defer func() { _ = inst.closeDocument(context.WithoutCancel(ctx), relativePath) }()

	raw, err := inst.process().Request(ctx, "textDocument/documentSymbol", lsp.DocumentSymbolParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: inst.documentURI(relativePath)},
	})
	if err != nil {
		return nil, err
	}
	return parseDocumentSymbols(raw)
}

// parseDocumentSymbols decodes a documentSymbol result in either wire
// shape. A null result is an empty tree.
func parseDocumentSymbols(raw json.RawMessage) ([]lsp.DocumentSymbol, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var probe []struct {
		Location *lsp.Location `json:"location"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("parse documentSymbol result: %w", err)
	}

	if len(probe) > 0 && probe[0].Location != nil {
		var flat []lsp.SymbolInformation
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, fmt.Errorf("parse flat documentSymbol result: %w", err)
		}
		out := make([]lsp.DocumentSymbol, len(flat))
		for i, si := range flat {
			out[i] = lsp.DocumentSymbol{
				Name:           si.Name,
				Kind:           si.Kind,
				Range:          si.Location.Range,
				SelectionRange: si.Location.Range,
			}
		}
		return out, nil
	}

	var tree []lsp.DocumentSymbol
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("parse hierarchical documentSymbol result: %w", err)
	}
	return tree, nil
}
