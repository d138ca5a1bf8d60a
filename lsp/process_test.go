// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lsp

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newUnstartedProcess() *ServerProcess {
	return NewServerProcess("go", LaunchSpec{Command: "gopls"}, "/tmp/project", time.Second)
}

func TestRequestAfterIdleCrashIsCrashSignal(t *testing.T) {
	// A server that died with nothing in flight must still report the
	// crash on the next request, so the supervisor restarts it instead
	// of handing the caller a dead instance.
	s := newUnstartedProcess()
	s.setState(StateCrashed)

	_, err := s.Request(context.Background(), "textDocument/documentSymbol", nil)
	if err == nil {
		t.Fatal("expected error from crashed server")
	}
	if !errors.Is(err, ErrServerCrashed) {
		t.Fatalf("expected ErrServerCrashed, got %v", err)
	}
	if !IsCrashSignal(err) {
		t.Fatalf("crash after idle must be a crash signal, got %v", err)
	}
}

func TestNotifyAfterIdleCrashIsCrashSignal(t *testing.T) {
	s := newUnstartedProcess()
	s.setState(StateCrashed)

	err := s.Notify(context.Background(), "textDocument/didOpen", nil)
	if !errors.Is(err, ErrServerCrashed) {
		t.Fatalf("expected ErrServerCrashed, got %v", err)
	}
}

func TestRequestBeforeStartIsNotReady(t *testing.T) {
	s := newUnstartedProcess()

	_, err := s.Request(context.Background(), "textDocument/documentSymbol", nil)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if IsCrashSignal(err) {
		t.Fatalf("a never-started server is not a crash, got %v", err)
	}
}

func TestRequestAfterTerminateIsNotReady(t *testing.T) {
	// An orderly shutdown is not a crash; the supervisor must not
	// resurrect a deliberately terminated server.
	s := newUnstartedProcess()
	if err := s.Terminate(context.Background()); err != nil {
		t.Fatalf("terminate: %v", err)
	}

	_, err := s.Request(context.Background(), "textDocument/documentSymbol", nil)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if IsCrashSignal(err) {
		t.Fatalf("orderly termination is not a crash signal, got %v", err)
	}
}
