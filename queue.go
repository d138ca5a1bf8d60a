// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package solidlsp

import (
	"context"
)

// execQueue serializes mutating operations for one project. Symbolic edits
// are not commutative; concurrent edits to the same file produce undefined
// results, so every mutating operation runs alone. Read-only queries
// bypass the queue entirely.
//
// A caller still waiting for its slot can be cancelled through its
// context; once an operation starts it runs to completion.
type execQueue struct {
	slot chan struct{}
}

func newExecQueue() *execQueue {
	return &execQueue{slot: make(chan struct{}, 1)}
}

// run executes op after acquiring the queue slot, in arrival order.
func (q *execQueue) run(ctx context.Context, op func(ctx context.Context) error) error {
	select {
	case q.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-q.slot }()
	return op(ctx)
}
