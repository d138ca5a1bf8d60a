// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// =============================================================================
// LAUNCH SPEC
// =============================================================================

// LaunchSpec describes how to start a language server process. It is
// produced by a DependencyProvider and treated as opaque by this layer.
type LaunchSpec struct {
	// Command is the executable to run.
	Command string

	// Args are the command arguments.
	Args []string

	// Env is extra environment appended to the parent environment,
	// in KEY=VALUE form.
	Env []string

	// WorkingDir is the process working directory, usually the project root.
	WorkingDir string

	// InitializationOptions are passed verbatim in the initialize request.
	InitializationOptions any
}

// DependencyProvider resolves the launch spec for a language, installing
// the server binary if its implementation chooses to. A resolution failure
// is a startup failure: it is surfaced immediately and never retried,
// because restarting a process cannot conjure a missing toolchain.
type DependencyProvider interface {
	ResolveLaunchSpec(ctx context.Context, language string) (LaunchSpec, error)
}

// =============================================================================
// PROCESS STATE
// =============================================================================

// ProcessState is the lifecycle state of a language server process.
type ProcessState int

const (
	// StateNotStarted is the initial state before Start is called.
	StateNotStarted ProcessState = iota

	// StateStarting means the subprocess is being launched.
	StateStarting

	// StateInitializing means the initialize handshake is in progress.
	StateInitializing

	// StateReady means the server accepts application-level requests.
	StateReady

	// StateTerminating means an orderly shutdown is in progress.
	StateTerminating

	// StateCrashed means the process exited outside of an orderly shutdown.
	StateCrashed

	// StateTerminated means the process has exited.
	StateTerminated
)

var processStateNames = []string{
	"not-started", "starting", "initializing", "ready",
	"terminating", "crashed", "terminated",
}

// String returns a human-readable state name.
func (s ProcessState) String() string {
	if int(s) < len(processStateNames) {
		return processStateNames[s]
	}
	return "unknown"
}

// =============================================================================
// SERVER PROCESS
// =============================================================================

// ServerProcess owns one external language server subprocess: launch,
// initialize handshake, liveness monitoring and termination. Requests
// issued while the handshake is still in progress block until it completes.
//
// Thread Safety:
//
//	Safe for concurrent use after NewServerProcess returns.
type ServerProcess struct {
	language string
	spec     LaunchSpec
	rootPath string

	requestTimeout time.Duration

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	protocol     *Protocol
	capabilities ServerCapabilities

	state   ProcessState
	stateMu sync.RWMutex

	// ready is closed when the handshake completes; requests issued
	// earlier wait on it.
	ready chan struct{}

	// exited delivers the crash cause exactly once when the process dies
	// outside of an orderly shutdown.
	exited chan error

	// waitDone is closed once the process has been reaped.
	waitDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServerProcess creates a process wrapper for the given language and
// launch spec. The process is not started. requestTimeout is the default
// per-request timeout; zero disables it.
func NewServerProcess(language string, spec LaunchSpec, rootPath string, requestTimeout time.Duration) *ServerProcess {
	return &ServerProcess{
		language:       language,
		spec:           spec,
		rootPath:       rootPath,
		requestTimeout: requestTimeout,
		state:          StateNotStarted,
		ready:          make(chan struct{}),
		exited:         make(chan error, 1),
		waitDone:       make(chan struct{}),
	}
}

// Start launches the subprocess and performs the initialize handshake.
//
// Errors:
//
//	ErrStartupFailed - binary missing, launch failed or handshake failed
func (s *ServerProcess) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	s.stateMu.Lock()
	if s.state != StateNotStarted {
		s.stateMu.Unlock()
		return fmt.Errorf("%w: already started (state %s)", ErrStartupFailed, s.state)
	}
	s.state = StateStarting
	s.stateMu.Unlock()

	path, err := exec.LookPath(s.spec.Command)
	if err != nil {
		s.setState(StateTerminated)
		recordServerSpawn(context.Background(), s.language, false)
		return fmt.Errorf("%w: binary %q not found", ErrStartupFailed, s.spec.Command)
	}

	slog.Info("Starting language server",
		slog.String("language", s.language),
		slog.String("command", path),
		slog.String("root_path", s.rootPath),
	)

	// The process lifetime is independent of the caller's context.
	s.stateMu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.stateMu.Unlock()

	s.cmd = exec.CommandContext(s.ctx, path, s.spec.Args...)
	s.cmd.Dir = s.spec.WorkingDir
	if s.cmd.Dir == "" {
		s.cmd.Dir = s.rootPath
	}
	if len(s.spec.Env) > 0 {
		s.cmd.Env = append(os.Environ(), s.spec.Env...)
	}

	if s.stdin, err = s.cmd.StdinPipe(); err != nil {
		s.teardown()
		return fmt.Errorf("%w: stdin pipe: %v", ErrStartupFailed, err)
	}
	if s.stdout, err = s.cmd.StdoutPipe(); err != nil {
		s.teardown()
		return fmt.Errorf("%w: stdout pipe: %v", ErrStartupFailed, err)
	}
	if s.stderr, err = s.cmd.StderrPipe(); err != nil {
		s.teardown()
		return fmt.Errorf("%w: stderr pipe: %v", ErrStartupFailed, err)
	}

	if err := s.cmd.Start(); err != nil {
		s.teardown()
		return fmt.Errorf("%w: start process: %v", ErrStartupFailed, err)
	}

	s.protocol = NewProtocol(s.stdout, s.stdin, s.language, s.requestTimeout)
	s.registerDefaultHandlers()

	go func() { _ = s.protocol.ReadLoop(s.ctx) }()
	go s.drainStderr()
	go s.monitorExit()

	s.setState(StateInitializing)
	if err := s.initialize(ctx); err != nil {
		_ = s.Terminate(ctx)
		recordServerSpawn(context.Background(), s.language, false)
		return fmt.Errorf("%w: %v", ErrStartupFailed, err)
	}

	s.setState(StateReady)
	close(s.ready)

	slog.Info("Language server ready",
		slog.String("language", s.language),
		slog.Bool("document_symbol", s.capabilities.HasDocumentSymbolProvider()),
		slog.Bool("references", s.capabilities.HasReferencesProvider()),
		slog.Bool("rename", s.capabilities.HasRenameProvider()),
	)
	recordServerSpawn(context.Background(), s.language, true)
	return nil
}

// initialize performs the initialize/initialized handshake.
func (s *ServerProcess) initialize(ctx context.Context) error {
	params := InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   "file://" + s.rootPath,
		RootPath:  s.rootPath,
		Capabilities: ClientCapabilities{
			TextDocument: TextDocumentClientCapabilities{
				Synchronization: &DynamicRegistrationCapability{DynamicRegistration: true},
				DocumentSymbol: &DocumentSymbolCapabilities{
					DynamicRegistration:               true,
					HierarchicalDocumentSymbolSupport: true,
				},
				References: &DynamicRegistrationCapability{DynamicRegistration: true},
				Rename:     &RenameCapabilities{DynamicRegistration: true},
			},
			Workspace: WorkspaceClientCapabilities{
				ApplyEdit:     true,
				WorkspaceEdit: &WorkspaceEditClientCapability{DocumentChanges: true},
				Symbol:        &DynamicRegistrationCapability{DynamicRegistration: true},
			},
		},
		InitializationOptions: s.spec.InitializationOptions,
		WorkspaceFolders: []WorkspaceFolder{
			{URI: "file://" + s.rootPath, Name: "workspace"},
		},
	}

	raw, err := s.protocol.SendRequest(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}

	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}
	s.capabilities = result.Capabilities

	if err := s.protocol.SendNotification("initialized", struct{}{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

// registerDefaultHandlers installs handlers for protocol housekeeping the
// server may initiate regardless of language.
func (s *ServerProcess) registerDefaultHandlers() {
	// Progress token creation must be acknowledged or some servers stall.
	s.protocol.OnRequest("window/workDoneProgress/create", func(json.RawMessage) (any, *ResponseError) {
		return nil, nil
	})
	s.protocol.OnNotification("$/progress", func(json.RawMessage) {})

	s.protocol.OnNotification("window/logMessage", func(params json.RawMessage) {
		var p LogMessageParams
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		msg := "Language server: " + p.Message
		switch p.Type {
		case 1:
			slog.Error(msg, slog.String("language", s.language))
		case 2:
			slog.Warn(msg, slog.String("language", s.language))
		default:
			slog.Debug(msg, slog.String("language", s.language))
		}
	})
}

// drainStderr logs server stderr lines until the pipe closes.
func (s *ServerProcess) drainStderr() {
	scanner := bufio.NewScanner(s.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		slog.Debug("Language server stderr",
			slog.String("language", s.language),
			slog.String("line", scanner.Text()),
		)
	}
}

// monitorExit waits for the subprocess to exit and classifies the exit as
// crash or orderly termination.
func (s *ServerProcess) monitorExit() {
	err := s.cmd.Wait()
	close(s.waitDone)

	s.stateMu.Lock()
	orderly := s.state == StateTerminating || s.state == StateTerminated
	if orderly {
		s.state = StateTerminated
	} else {
		s.state = StateCrashed
	}
	s.stateMu.Unlock()

	if orderly {
		s.exited <- nil
		return
	}

	cause := ErrServerCrashed
	if err != nil {
		cause = fmt.Errorf("%w: %v", ErrServerCrashed, err)
	}
	slog.Error("Language server crashed",
		slog.String("language", s.language),
		slog.String("error", cause.Error()),
	)
	recordServerCrash(context.Background(), s.language)
	if s.protocol != nil {
		s.protocol.CloseWithError(cause)
	}
	s.exited <- cause
}

// =============================================================================
// REQUESTS
// =============================================================================

// awaitReady blocks until the handshake completes or the process dies. A
// process that already crashed, even with no request in flight at the
// time, reports the crash so the supervisor restarts it instead of
// surfacing a dead instance to the caller.
func (s *ServerProcess) awaitReady(ctx context.Context) error {
	switch s.State() {
	case StateReady:
		return nil
	case StateCrashed:
		return fmt.Errorf("%w: %s server exited while idle", ErrServerCrashed, s.language)
	case StateStarting, StateInitializing:
		s.stateMu.RLock()
		procCtx := s.ctx
		s.stateMu.RUnlock()
		var procDone <-chan struct{}
		if procCtx != nil {
			procDone = procCtx.Done()
		}
		select {
		case <-s.ready:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-procDone:
			if s.State() == StateCrashed {
				return fmt.Errorf("%w: %s server exited during startup", ErrServerCrashed, s.language)
			}
			return ErrNotReady
		}
	default:
		return ErrNotReady
	}
}

// Request sends an application-level request, queueing until Ready when the
// handshake is still in progress.
func (s *ServerProcess) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	return s.protocol.SendRequest(ctx, method, params)
}

// Notify sends an application-level notification, queueing until Ready.
func (s *ServerProcess) Notify(ctx context.Context, method string, params any) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	return s.protocol.SendNotification(method, params)
}

// OnServerRequest registers a handler for server-initiated requests.
func (s *ServerProcess) OnServerRequest(method string, h RequestHandler) {
	s.protocol.OnRequest(method, h)
}

// OnNotification registers a handler for server-initiated notifications.
func (s *ServerProcess) OnNotification(method string, h NotificationHandler) {
	s.protocol.OnNotification(method, h)
}

// =============================================================================
// TERMINATION
// =============================================================================

// Terminate shuts the process down, gracefully if it still answers,
// forcefully otherwise. Idempotent.
func (s *ServerProcess) Terminate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.stateMu.Lock()
	switch s.state {
	case StateTerminating, StateTerminated:
		s.stateMu.Unlock()
		return nil
	case StateNotStarted:
		s.state = StateTerminated
		s.stateMu.Unlock()
		return nil
	}
	wasCrashed := s.state == StateCrashed
	s.state = StateTerminating
	s.stateMu.Unlock()

	slog.Info("Shutting down language server", slog.String("language", s.language))
	defer s.teardown()

	if s.protocol != nil && !wasCrashed && !s.protocol.Closed() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, _ = s.protocol.SendRequest(shutdownCtx, "shutdown", nil)
		_ = s.protocol.SendNotification("exit", nil)
		s.protocol.Close()
	}

	if s.stdin != nil {
		_ = s.stdin.Close()
	}

	if s.cmd != nil && s.cmd.Process != nil && !wasCrashed {
		select {
		case <-s.waitDone:
		case <-time.After(5 * time.Second):
			_ = s.cmd.Process.Kill()
			<-s.waitDone
		}
	}

	return nil
}

// teardown releases pipes and marks the process terminated.
func (s *ServerProcess) teardown() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.protocol != nil {
		s.protocol.Close()
	}
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.stdout != nil {
		_ = s.stdout.Close()
	}
	s.setState(StateTerminated)
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the current process state.
func (s *ServerProcess) State() ProcessState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// IsAlive reports whether the process is launched and not yet dead.
func (s *ServerProcess) IsAlive() bool {
	switch s.State() {
	case StateStarting, StateInitializing, StateReady:
		return true
	}
	return false
}

// Language returns the language this process serves.
func (s *ServerProcess) Language() string { return s.language }

// Spec returns the launch spec the process was started from.
func (s *ServerProcess) Spec() LaunchSpec { return s.spec }

// Capabilities returns the capabilities advertised at initialize time.
// Zero value before the handshake completes.
func (s *ServerProcess) Capabilities() ServerCapabilities { return s.capabilities }

// Exited delivers the crash cause when the process dies; nil for an
// orderly shutdown.
func (s *ServerProcess) Exited() <-chan error { return s.exited }

func (s *ServerProcess) setState(state ProcessState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}
