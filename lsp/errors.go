// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lsp

import (
	"errors"
	"fmt"
)

// Sentinel errors for the protocol and process layers.
var (
	// ErrStartupFailed indicates the server process could not be launched
	// or failed its initialize handshake. Not retried automatically.
	ErrStartupFailed = errors.New("language server startup failed")

	// ErrServerCrashed indicates the server process terminated unexpectedly.
	ErrServerCrashed = errors.New("language server crashed")

	// ErrTransportClosed indicates the transport is closed and can no
	// longer send or receive.
	ErrTransportClosed = errors.New("language server transport closed")

	// ErrRequestTimeout indicates a request went unanswered past its
	// timeout. Treated as a potential crash signal by the supervisor.
	ErrRequestTimeout = errors.New("language server request timeout")

	// ErrNotReady indicates a request was issued against a server that is
	// terminated or was never started.
	ErrNotReady = errors.New("language server not ready")

	// ErrNotRoutable indicates no configured server or registered
	// capability can service the file/method combination. Never retried.
	ErrNotRoutable = errors.New("no language server routable for file")
)

// JSON-RPC error codes used by the protocol layer.
const (
	CodeParseError           = -32700
	CodeInvalidRequest       = -32600
	CodeMethodNotFound       = -32601
	CodeInvalidParams        = -32602
	CodeInternalError        = -32603
	CodeServerNotInitialized = -32002
	CodeRequestCancelled     = -32800
	CodeContentModified      = -32801
)

// ResponseError is the error member of a JSON-RPC response.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ProtocolError is a well-formed JSON-RPC error returned by a live server.
// It is never treated as a crash: the server is alive and answering, the
// request itself was unsupported or ill-formed.
type ProtocolError struct {
	// Code is the JSON-RPC error code.
	Code int

	// Message is the error message from the server.
	Message string

	// Data contains optional additional data about the error.
	Data any
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("LSP error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("LSP error %d: %s", e.Code, e.Message)
}

// IsMethodNotFound returns true if the method is not supported by the server.
func (e *ProtocolError) IsMethodNotFound() bool {
	return e.Code == CodeMethodNotFound
}

// IsRequestCancelled returns true if the request was cancelled.
func (e *ProtocolError) IsRequestCancelled() bool {
	return e.Code == CodeRequestCancelled
}

// IsCrashSignal reports whether err indicates the server process is dead or
// unreachable, as opposed to alive and merely rejecting the request.
// Timeouts count: a request left unanswered past its deadline is
// indistinguishable from a hung or dead process until the restart confirms
// otherwise.
func IsCrashSignal(err error) bool {
	return errors.Is(err, ErrServerCrashed) ||
		errors.Is(err, ErrTransportClosed) ||
		errors.Is(err, ErrRequestTimeout)
}
