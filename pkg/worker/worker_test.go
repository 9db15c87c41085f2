// SPDX-License-Identifier: LGPL-3.0-or-later

package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/agenthost/internal/wasmgen"
	"github.com/sage-x-project/agenthost/pkg/manifest"
)

func testManifest(bytes []byte, perms []manifest.Permission) *manifest.AgentManifest {
	sum := sha256.Sum256(bytes)
	return &manifest.AgentManifest{
		Name:        "test-agent",
		Version:     "1.0.0",
		ContentHash: hex.EncodeToString(sum[:]),
		Permissions: perms,
	}
}

func startWorker(t *testing.T) (*Worker, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	w := New("scope1:test-agent")
	go w.Run(ctx)
	go w.Demux()
	return w, ctx
}

func TestInstantiateThenInitSucceeds(t *testing.T) {
	w, ctx := startWorker(t)
	bytes := wasmgen.Module([]string{"init", "on_task_event", "on_tick"})
	m := testManifest(bytes, nil)

	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := w.Send(callCtx, &Call{Kind: KindInstantiate, Bytes: bytes, Manifest: m, Now: func() int64 { return 1 }})
	require.NoError(t, err)
	require.NoError(t, res.Err)

	res, err = w.Send(callCtx, &Call{Kind: KindCallInit})
	require.NoError(t, err)
	require.NoError(t, res.Err)
}

func TestInstantiateHashMismatchRejected(t *testing.T) {
	w, ctx := startWorker(t)
	bytes := wasmgen.Module([]string{"init", "on_task_event", "on_tick"})
	m := testManifest(bytes, nil)
	m.ContentHash = "0000000000000000000000000000000000000000000000000000000000000000"

	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := w.Send(callCtx, &Call{Kind: KindInstantiate, Bytes: bytes, Manifest: m, Now: func() int64 { return 1 }})
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestCallBeforeInstantiateFails(t *testing.T) {
	w, ctx := startWorker(t)
	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := w.Send(callCtx, &Call{Kind: KindCallInit})
	assert.ErrorIs(t, err, ErrNotLive)
}

func TestUpdateContextThenDispatch(t *testing.T) {
	w, ctx := startWorker(t)
	bytes := wasmgen.Module([]string{"init", "on_task_event", "on_tick"})
	m := testManifest(bytes, []manifest.Permission{manifest.PermissionReadTasks})

	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := w.Send(callCtx, &Call{Kind: KindInstantiate, Bytes: bytes, Manifest: m, Now: func() int64 { return 1 }})
	require.NoError(t, err)

	_, err = w.Send(callCtx, &Call{Kind: KindUpdateContext})
	require.NoError(t, err)

	res, err := w.Send(callCtx, &Call{Kind: KindCallOnTaskEvent})
	require.NoError(t, err)
	require.NoError(t, res.Err)
}

func TestTerminateTearsDownRuntime(t *testing.T) {
	w, ctx := startWorker(t)
	bytes := wasmgen.Module([]string{"init", "on_task_event", "on_tick"})
	m := testManifest(bytes, nil)

	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := w.Send(callCtx, &Call{Kind: KindInstantiate, Bytes: bytes, Manifest: m, Now: func() int64 { return 1 }})
	require.NoError(t, err)

	_, err = w.Send(callCtx, &Call{Kind: KindTerminate})
	require.NoError(t, err)
	assert.True(t, w.Terminated())
}

// TestCallTimeoutTerminatesWorker proves a call is cancelled while a guest
// export is genuinely still running, not merely rejected because its
// context had already expired before being sent. on_tick's body is
// wasmgen.LoopBody, which branches to itself forever and only stops via
// wazero's WithCloseOnContextDone firing when callCtx's deadline elapses.
func TestCallTimeoutTerminatesWorker(t *testing.T) {
	w, ctx := startWorker(t)
	bytes := wasmgen.ModuleWithBodies(
		[]string{"init", "on_task_event", "on_tick"},
		map[string][]byte{"on_tick": wasmgen.LoopBody()},
	)
	m := testManifest(bytes, nil)

	_, err := w.Send(ctx, &Call{Kind: KindInstantiate, Bytes: bytes, Manifest: m, Now: func() int64 { return 1 }})
	require.NoError(t, err)

	callCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = w.Send(callCtx, &Call{Kind: KindCallOnTick})
	elapsed := time.Since(start)

	assert.Error(t, err)
	assert.Less(t, elapsed, 2*time.Second, "call should be preempted shortly after the timeout, not hang")
}
