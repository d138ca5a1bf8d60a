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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/tessellate-ai/solidlsp/cache"
	"github.com/tessellate-ai/solidlsp/config"
	"github.com/tessellate-ai/solidlsp/index"
	"github.com/tessellate-ai/solidlsp/lsp"
	"github.com/tessellate-ai/solidlsp/router"
	"github.com/tessellate-ai/solidlsp/symbol"
)

// Reference is one usage site of a symbol.
type Reference struct {
	// RelativePath is the project-relative file containing the usage.
	RelativePath string

	// Range is the usage location within the file.
	Range lsp.Range
}

// RenameResult summarizes an applied rename.
type RenameResult struct {
	// FilesChanged lists the project-relative paths that received edits,
	// sorted.
	FilesChanged []string

	// EditCount is the total number of text edits applied.
	EditCount int
}

// Option configures a SolidLanguageServer.
type Option func(*SolidLanguageServer)

// WithConfig supplies a pre-loaded configuration instead of reading
// solidlsp.yaml from the project root.
func WithConfig(cfg *config.Config) Option {
	return func(s *SolidLanguageServer) { s.cfg = cfg }
}

// WithDependencyProvider replaces the config-backed launch spec provider.
func WithDependencyProvider(p lsp.DependencyProvider) Option {
	return func(s *SolidLanguageServer) { s.provider = p }
}

// WithFileWatching toggles fsnotify-driven cache invalidation. Enabled by
// default; caches stay correct without it through fingerprint checks.
func WithFileWatching(enabled bool) Option {
	return func(s *SolidLanguageServer) { s.watchFiles = enabled }
}

// withProcessFactory replaces subprocess creation, for tests.
func withProcessFactory(f processFactory) Option {
	return func(s *SolidLanguageServer) { s.newProcess = f }
}

// SolidLanguageServer is the orchestrator facade for one project root. It
// owns one lazily created ServerInstance per active language and exposes
// the symbol-operation contract to callers.
//
// Thread Safety:
//
//	Safe for concurrent use. Mutating operations (open, close, rename,
//	restart) are serialized through a per-project execution queue;
//	read-only queries run concurrently against consistent cache
//	snapshots.
type SolidLanguageServer struct {
	rootPath string
	cfg      *config.Config
	provider lsp.DependencyProvider
	routes   *router.Router

	newProcess processFactory
	watchFiles bool

	queue   *execQueue
	watcher *cache.Watcher
	store   *index.Store

	mu        sync.Mutex
	instances map[string]*ServerInstance
	down      bool
}

// New creates an orchestrator for the project root. Server processes are
// not started until a file in their language is first touched.
func New(ctx context.Context, rootPath string, opts ...Option) (*SolidLanguageServer, error) {
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", rootPath)
	}

	s := &SolidLanguageServer{
		rootPath:   absRoot,
		newProcess: defaultProcessFactory,
		watchFiles: true,
		queue:      newExecQueue(),
		instances:  make(map[string]*ServerInstance),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cfg == nil {
		cfg, err := config.Load(absRoot)
		if err != nil {
			return nil, err
		}
		s.cfg = cfg
	}
	if s.provider == nil {
		s.provider = config.NewStaticProvider(absRoot, s.cfg)
	}

	s.routes, err = router.New(s.cfg.Languages, s.cfg.RouterRoutes())
	if err != nil {
		return nil, fmt.Errorf("build language router: %w", err)
	}

	if s.cfg.IndexPath != "" {
		store, err := index.Open(filepath.Join(absRoot, filepath.FromSlash(s.cfg.IndexPath)))
		if err != nil {
			slog.Warn("Symbol index unavailable, continuing cold",
				slog.String("error", err.Error()))
		} else {
			s.store = store
		}
	}

	if s.watchFiles {
		watcher, err := cache.NewWatcher(absRoot, s.invalidateChanged, nil)
		if err != nil {
			slog.Warn("File watching unavailable", slog.String("error", err.Error()))
		} else if err := watcher.Start(ctx); err != nil {
			slog.Warn("File watching failed to start", slog.String("error", err.Error()))
		} else {
			s.watcher = watcher
		}
	}

	slog.Info("Language server orchestrator created",
		slog.String("root", absRoot),
		slog.Any("languages", s.cfg.Languages),
	)
	return s, nil
}

// invalidateChanged pushes watcher events into every instance cache.
func (s *SolidLanguageServer) invalidateChanged(relativePaths []string) {
	s.mu.Lock()
	instances := make([]*ServerInstance, 0, len(s.instances))
	for _, inst := range s.instances {
		instances = append(instances, inst)
	}
	s.mu.Unlock()

	for _, inst := range instances {
		for _, path := range relativePaths {
			inst.Cache().InvalidateFile(path)
		}
	}
}

// =============================================================================
// INSTANCE MANAGEMENT
// =============================================================================

// instanceFor returns the running instance for a language, creating and
// starting it on first use.
func (s *SolidLanguageServer) instanceFor(ctx context.Context, language string) (*ServerInstance, error) {
	s.mu.Lock()
	if s.down {
		s.mu.Unlock()
		return nil, ErrShutdown
	}
	if inst, ok := s.instances[language]; ok {
		s.mu.Unlock()
		return inst, nil
	}
	s.mu.Unlock()

	spec, err := s.provider.ResolveLaunchSpec(ctx, language)
	if err != nil {
		return nil, fmt.Errorf("resolve launch spec for %s: %w", language, err)
	}

	inst := newServerInstance(language, spec, s.rootPath, s.cfg.Timeouts.Request, s.newProcess)
	inst.resolveLanguageID = func(relativePath string) (string, error) {
		res, err := s.routes.ResolveForOpen(relativePath, "textDocument/documentSymbol", inst.Registry())
		if err != nil {
			return "", err
		}
		return res.LanguageID, nil
	}

	startCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Startup)
	defer cancel()
	if err := inst.start(startCtx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.down {
		s.mu.Unlock()
		_ = inst.terminate(ctx)
		return nil, ErrShutdown
	}
	if existing, ok := s.instances[language]; ok {
		// A concurrent caller won the race; keep theirs.
		s.mu.Unlock()
		_ = inst.terminate(ctx)
		return existing, nil
	}
	s.instances[language] = inst
	s.mu.Unlock()

	return inst, nil
}

// route resolves a file to its owning instance, starting it when needed.
func (s *SolidLanguageServer) route(ctx context.Context, relativePath string) (*ServerInstance, error) {
	res, err := s.routes.Resolve(relativePath)
	if err != nil {
		return nil, err
	}
	return s.instanceFor(ctx, res.ServerLanguage)
}

// supervisorFor returns the recovery wrapper for an instance.
func (s *SolidLanguageServer) supervisorFor(inst *ServerInstance) *recoverySupervisor {
	return &recoverySupervisor{inst: inst}
}

// fetchFunc builds the cache miss path for an instance: consult the
// persisted index, fall back to a supervised server request, write back
// through to the index.
func (s *SolidLanguageServer) fetchFunc(inst *ServerInstance) cache.FetchFunc {
	sup := s.supervisorFor(inst)
	return func(ctx context.Context, relativePath string) ([]lsp.DocumentSymbol, error) {
		if s.store != nil {
			if fp, err := inst.fingerprint(relativePath); err == nil {
				if raw, ok, err := s.store.Get(ctx, relativePath, fp); err == nil && ok {
					return raw, nil
				}
			}
		}

		var raw []lsp.DocumentSymbol
		err := sup.execute(ctx, "documentSymbol", func(ctx context.Context) error {
			var err error
			raw, err = inst.fetchDocumentSymbols(ctx, relativePath)
			return err
		})
		if err != nil {
			return nil, err
		}

		if s.store != nil {
			if fp, err := inst.fingerprint(relativePath); err == nil {
				if err := s.store.Put(ctx, relativePath, fp, raw); err != nil {
					slog.Debug("Symbol index write failed",
						slog.String("file", relativePath),
						slog.String("error", err.Error()),
					)
				}
			}
		}
		return raw, nil
	}
}

// =============================================================================
// DOCUMENT OPERATIONS
// =============================================================================

// OpenFile opens a project-relative file with its routed language server,
// announcing the language id the router resolves, which reflects any
// dynamic registration override. Opening an already-open file bumps a
// refcount.
func (s *SolidLanguageServer) OpenFile(ctx context.Context, relativePath string) error {
	return s.mutate(ctx, "OpenFile", relativePath, func(ctx context.Context, inst *ServerInstance) error {
		return s.supervisorFor(inst).execute(ctx, "didOpen", func(ctx context.Context) error {
			return inst.openDocument(ctx, relativePath)
		})
	})
}

// CloseFile releases one reference to an open file, closing it with the
// server when the last reference goes away. Closing an unopened file is a
// no-op.
func (s *SolidLanguageServer) CloseFile(ctx context.Context, relativePath string) error {
	return s.mutate(ctx, "CloseFile", relativePath, func(ctx context.Context, inst *ServerInstance) error {
		return inst.closeDocument(ctx, relativePath)
	})
}

// mutate routes, serializes through the execution queue and records the
// operation.
func (s *SolidLanguageServer) mutate(ctx context.Context, operation, relativePath string, op func(context.Context, *ServerInstance) error) error {
	inst, err := s.route(ctx, relativePath)
	if err != nil {
		return opError(operation, "", relativePath, err)
	}

	ctx, span := startOperationSpan(ctx, operation, inst.Language(), relativePath)
	defer span.End()
	start := time.Now()

	err = s.queue.run(ctx, func(ctx context.Context) error {
		return op(ctx, inst)
	})
	recordOperation(ctx, operation, inst.Language(), time.Since(start), err == nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return opError(operation, inst.Language(), relativePath, err)
	}
	return nil
}

// =============================================================================
// SYMBOL QUERIES
// =============================================================================

// GetOverview returns the symbol overview of a file, served from cache
// while the file's content fingerprint is unchanged. Depth limits nesting;
// 0 keeps the full tree.
func (s *SolidLanguageServer) GetOverview(ctx context.Context, relativePath string, depth int) (*symbol.Overview, error) {
	var ov *symbol.Overview
	err := s.query(ctx, "GetOverview", relativePath, func(ctx context.Context, inst *ServerInstance) error {
		fp, err := inst.fingerprint(relativePath)
		if err != nil {
			return err
		}
		ov, err = inst.Cache().GetOverview(ctx, relativePath, depth, fp, s.fetchFunc(inst))
		return err
	})
	return ov, err
}

// FindSymbol returns the symbols in a file whose name paths match the
// given pattern (see symbol.NewNamePathMatcher for the pattern language).
func (s *SolidLanguageServer) FindSymbol(ctx context.Context, relativePath, namePattern string, substringMatching bool) ([]*symbol.Symbol, error) {
	matcher, err := symbol.NewNamePathMatcher(namePattern, substringMatching)
	if err != nil {
		return nil, opError("FindSymbol", "", relativePath, err)
	}

	var found []*symbol.Symbol
	err = s.query(ctx, "FindSymbol", relativePath, func(ctx context.Context, inst *ServerInstance) error {
		roots, err := s.documentSymbols(ctx, inst, relativePath)
		if err != nil {
			return err
		}
		found = symbol.Find(roots, matcher)
		return nil
	})
	return found, err
}

// FindReferences returns all usage sites of the symbol a name path
// uniquely identifies within a file.
func (s *SolidLanguageServer) FindReferences(ctx context.Context, relativePath, namePath string) ([]Reference, error) {
	var refs []Reference
	err := s.query(ctx, "FindReferences", relativePath, func(ctx context.Context, inst *ServerInstance) error {
		if !inst.Registry().IsRegistered("textDocument/references", relativePath) {
			return fmt.Errorf("%w: references not supported for %s", lsp.ErrNotRoutable, relativePath)
		}

		target, err := s.resolveUniqueSymbol(ctx, inst, relativePath, namePath)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.LongRequest)
		defer cancel()

		return s.supervisorFor(inst).execute(ctx, "references", func(ctx context.Context) error {
			if err := inst.openDocument(ctx, relativePath); err != nil {
				return err
			}
			defer func() { _ = inst.closeDocument(context.WithoutCancel(ctx), relativePath) }()

			raw, err := inst.process().Request(ctx, "textDocument/references", lsp.ReferenceParams{
				TextDocumentPositionParams: lsp.TextDocumentPositionParams{
					TextDocument: lsp.TextDocumentIdentifier{URI: inst.documentURI(relativePath)},
					Position:     target.SelectionRange.Start,
				},
				Context: lsp.ReferenceContext{IncludeDeclaration: false},
			})
			if err != nil {
				return err
			}

			var locations []lsp.Location
			if len(raw) > 0 && string(raw) != "null" {
				if err := json.Unmarshal(raw, &locations); err != nil {
					return fmt.Errorf("parse references result: %w", err)
				}
			}

			refs = refs[:0]
			for _, loc := range locations {
				rel, err := relativeTo(s.rootPath, loc.URI)
				if err != nil {
					slog.Debug("Dropping reference outside project root",
						slog.String("uri", loc.URI))
					continue
				}
				refs = append(refs, Reference{RelativePath: rel, Range: loc.Range})
			}
			return nil
		})
	})
	return refs, err
}

// query routes and records a read-only operation; it does not enter the
// execution queue.
func (s *SolidLanguageServer) query(ctx context.Context, operation, relativePath string, op func(context.Context, *ServerInstance) error) error {
	inst, err := s.route(ctx, relativePath)
	if err != nil {
		return opError(operation, "", relativePath, err)
	}

	ctx, span := startOperationSpan(ctx, operation, inst.Language(), relativePath)
	defer span.End()
	start := time.Now()

	err = op(ctx, inst)
	recordOperation(ctx, operation, inst.Language(), time.Since(start), err == nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return opError(operation, inst.Language(), relativePath, err)
	}
	return nil
}

// documentSymbols returns the normalized tree for a file through the
// cache, after confirming the method is serviceable.
func (s *SolidLanguageServer) documentSymbols(ctx context.Context, inst *ServerInstance, relativePath string) ([]*symbol.Symbol, error) {
	if !inst.Registry().IsRegistered("textDocument/documentSymbol", relativePath) {
		return nil, fmt.Errorf("%w: documentSymbol not supported for %s", lsp.ErrNotRoutable, relativePath)
	}
	fp, err := inst.fingerprint(relativePath)
	if err != nil {
		return nil, err
	}
	return inst.Cache().GetDocumentSymbols(ctx, relativePath, fp, s.fetchFunc(inst))
}

// resolveUniqueSymbol finds exactly one symbol for a name path.
func (s *SolidLanguageServer) resolveUniqueSymbol(ctx context.Context, inst *ServerInstance, relativePath, namePath string) (*symbol.Symbol, error) {
	matcher, err := symbol.NewNamePathMatcher(namePath, false)
	if err != nil {
		return nil, err
	}
	roots, err := s.documentSymbols(ctx, inst, relativePath)
	if err != nil {
		return nil, err
	}

	found := symbol.Find(roots, matcher)
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %q in %s", ErrSymbolNotFound, namePath, relativePath)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %q matches %d symbols in %s; pin an overload like %q",
			ErrAmbiguousSymbol, namePath, len(found), relativePath, found[1].NamePath)
	}
}

// =============================================================================
// RENAME
// =============================================================================

// Rename renames the symbol a name path uniquely identifies and applies
// the server's workspace edit to the project: open-document buffers are
// updated and notified, closed files are rewritten on disk, and all
// affected cache entries are invalidated.
func (s *SolidLanguageServer) Rename(ctx context.Context, relativePath, namePath, newName string) (*RenameResult, error) {
	if newName == "" {
		return nil, opError("Rename", "", relativePath, errors.New("new name must not be empty"))
	}

	var result *RenameResult
	err := s.mutate(ctx, "Rename", relativePath, func(ctx context.Context, inst *ServerInstance) error {
		if !inst.Registry().IsRegistered("textDocument/rename", relativePath) {
			return fmt.Errorf("%w: rename not supported for %s", lsp.ErrNotRoutable, relativePath)
		}

		target, err := s.resolveUniqueSymbol(ctx, inst, relativePath, namePath)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.LongRequest)
		defer cancel()

		var we *lsp.WorkspaceEdit
		err = s.supervisorFor(inst).execute(ctx, "rename", func(ctx context.Context) error {
			if err := inst.openDocument(ctx, relativePath); err != nil {
				return err
			}
			defer func() { _ = inst.closeDocument(context.WithoutCancel(ctx), relativePath) }()

			raw, err := inst.process().Request(ctx, "textDocument/rename", lsp.RenameParams{
				TextDocumentPositionParams: lsp.TextDocumentPositionParams{
					TextDocument: lsp.TextDocumentIdentifier{URI: inst.documentURI(relativePath)},
					Position:     target.SelectionRange.Start,
				},
				NewName: newName,
			})
			if err != nil {
				return err
			}
			we = nil
			if len(raw) > 0 && string(raw) != "null" {
				we = &lsp.WorkspaceEdit{}
				if err := json.Unmarshal(raw, we); err != nil {
					return fmt.Errorf("parse rename result: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		result, err = s.applyWorkspaceEdit(ctx, inst, we)
		return err
	})
	return result, err
}

// applyWorkspaceEdit applies a rename's edits per file, in reverse
// document order within each file, and invalidates everything the edits
// touched.
func (s *SolidLanguageServer) applyWorkspaceEdit(ctx context.Context, inst *ServerInstance, we *lsp.WorkspaceEdit) (*RenameResult, error) {
	byURI := collectWorkspaceEdits(we)
	result := &RenameResult{}

	for uri, edits := range byURI {
		rel, err := relativeTo(s.rootPath, uri)
		if err != nil {
			return nil, err
		}

		content, open := inst.documentContent(rel)
		if !open {
			absPath := filepath.Join(s.rootPath, filepath.FromSlash(rel))
			content, err = os.ReadFile(absPath)
			if err != nil {
				return nil, fmt.Errorf("read %s for edit: %w", rel, err)
			}
		}

		edited, err := applyTextEdits(content, edits)
		if err != nil {
			return nil, fmt.Errorf("apply edits to %s: %w", rel, err)
		}

		if open {
			if err := inst.replaceDocumentContent(ctx, rel, edited); err != nil {
				return nil, err
			}
		}
		absPath := filepath.Join(s.rootPath, filepath.FromSlash(rel))
		if err := os.WriteFile(absPath, edited, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", rel, err)
		}

		inst.Cache().InvalidateFile(rel)
		if s.store != nil {
			_ = s.store.Purge(ctx, rel)
		}

		result.FilesChanged = append(result.FilesChanged, rel)
		result.EditCount += len(edits)
	}

	sort.Strings(result.FilesChanged)
	slog.Info("Rename applied",
		slog.String("language", inst.Language()),
		slog.Int("files", len(result.FilesChanged)),
		slog.Int("edits", result.EditCount),
	)
	return result, nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// RestartLanguageServer tears down and restarts the instance for a
// language, discarding its caches and capability registrations. A no-op
// when the language has no running instance.
func (s *SolidLanguageServer) RestartLanguageServer(ctx context.Context, language string) error {
	s.mu.Lock()
	inst, ok := s.instances[language]
	down := s.down
	s.mu.Unlock()

	if down {
		return ErrShutdown
	}
	if !ok {
		return nil
	}

	err := s.queue.run(ctx, func(ctx context.Context) error {
		return inst.restart(ctx)
	})
	return opError("RestartLanguageServer", language, "", err)
}

// Shutdown terminates every instance and releases the watcher and index.
// Idempotent; operations after Shutdown fail with ErrShutdown.
func (s *SolidLanguageServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.down {
		s.mu.Unlock()
		return nil
	}
	s.down = true
	instances := make([]*ServerInstance, 0, len(s.instances))
	for _, inst := range s.instances {
		instances = append(instances, inst)
	}
	s.instances = make(map[string]*ServerInstance)
	s.mu.Unlock()

	if s.watcher != nil {
		s.watcher.Stop()
	}

	var firstErr error
	for _, inst := range instances {
		if err := inst.terminate(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	slog.Info("Language server orchestrator shut down", slog.String("root", s.rootPath))
	return firstErr
}
