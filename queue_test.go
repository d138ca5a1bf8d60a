// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package solidlsp

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecQueueSerializesOperations(t *testing.T) {
	q := newExecQueue()

	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := q.run(context.Background(), func(ctx context.Context) error {
				n := inFlight.Add(1)
				for {
					cur := maxInFlight.Load()
					if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load(), "operations must not overlap")
}

func TestExecQueueCancelWhileQueued(t *testing.T) {
	q := newExecQueue()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = q.run(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.run(ctx, func(ctx context.Context) error { return nil })
	}()

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("queued operation did not observe cancellation")
	}

	close(release)
}

func TestExecQueueRunsAfterError(t *testing.T) {
	q := newExecQueue()

	wantErr := assert.AnError
	err := q.run(context.Background(), func(ctx context.Context) error { return wantErr })
	require.ErrorIs(t, err, wantErr)

	// The slot is released even when the operation fails.
	err = q.run(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
}
