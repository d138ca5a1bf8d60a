// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package solidlsp

import (
	"errors"
	"fmt"
)

// ErrAmbiguousSymbol indicates a name path matched more than one symbol
// where exactly one was required.
var ErrAmbiguousSymbol = errors.New("name path matches multiple symbols")

// ErrSymbolNotFound indicates a name path matched no symbol.
var ErrSymbolNotFound = errors.New("no symbol matches name path")

// ErrShutdown indicates the orchestrator has been shut down.
var ErrShutdown = errors.New("language server orchestrator is shut down")

// OperationError carries the context of a failed public operation:
// which operation, against which language and file, and the underlying
// cause. It wraps the cause for errors.Is/As.
type OperationError struct {
	Operation string
	Language  string
	File      string
	Err       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s (%s, %s): %v", e.Operation, e.Language, e.File, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Operation, e.Language, e.Err)
}

// Unwrap returns the underlying cause.
func (e *OperationError) Unwrap() error { return e.Err }

// opError wraps err with operation context, passing nil through.
func opError(operation, language, file string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, Language: language, File: file, Err: err}
}
