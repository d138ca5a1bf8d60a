// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package solidlsp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tessellate-ai/solidlsp/lsp"
)

// recoverySupervisor wraps outward operations with the restart-and-retry
// policy. It is the single place that interprets crash signals: transport
// failures and timeouts consistent with process death trigger a teardown,
// a fresh start from the same launch spec and exactly one retry of the
// triggering operation. A second failure surfaces as persistent; further
// automatic retries would only hammer a broken toolchain.
//
// Startup failures, protocol errors from a live server and routing
// failures pass through untouched; restarting cannot fix any of them.
type recoverySupervisor struct {
	inst *ServerInstance
}

// execute runs op, restarting the instance and retrying once when the
// failure looks like a crash.
func (s *recoverySupervisor) execute(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil {
		return nil
	}
	if !lsp.IsCrashSignal(err) {
		return err
	}

	slog.Warn("Operation hit a crash signal, restarting instance",
		slog.String("language", s.inst.Language()),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)

	if restartErr := s.inst.restart(ctx); restartErr != nil {
		return fmt.Errorf("%s failed (%v) and restart failed: %w", operation, err, restartErr)
	}

	recordRetry(ctx, s.inst.Language(), operation)
	if retryErr := op(ctx); retryErr != nil {
		return fmt.Errorf("%s failed after one restart and retry: %w", operation, retryErr)
	}
	return nil
}
