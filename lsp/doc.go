// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lsp implements the client side of the Language Server Protocol
// for externally supplied language server processes.
//
// The package provides the low-level building blocks that the orchestration
// layer composes into per-language server instances:
//
//   - Protocol: JSON-RPC 2.0 framing and correlation over a duplex stream
//   - ServerProcess: lifecycle of one language server subprocess
//   - CapabilityRegistry: static and dynamically registered capabilities
//
// # Protocol
//
// Protocol frames messages with Content-Length headers per the LSP base
// protocol. Outbound requests carry a monotonically increasing id; responses
// are matched by id and delivered to exactly one waiter. Server-initiated
// requests (e.g. client/registerCapability) and notifications are dispatched
// to registered handlers on the reader goroutine.
//
// # ServerProcess
//
// ServerProcess owns one subprocess and its Protocol. The launch command is
// produced by an external DependencyProvider and treated as opaque. The
// process moves through NotStarted, Starting, Initializing, Ready and
// finally Terminating, Crashed or Terminated. Application requests issued
// before Ready block until the initialize handshake completes.
//
// # Thread Safety
//
// All exported types are safe for concurrent use.
package lsp
