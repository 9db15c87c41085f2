// SPDX-License-Identifier: LGPL-3.0-or-later

package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/agenthost/internal/logger"
	"github.com/sage-x-project/agenthost/internal/wasmgen"
	"github.com/sage-x-project/agenthost/pkg/catalog"
	"github.com/sage-x-project/agenthost/pkg/events"
	"github.com/sage-x-project/agenthost/pkg/manifest"
	"github.com/sage-x-project/agenthost/pkg/statestore/memory"
)

func testRecord(t *testing.T, id string, perms []manifest.Permission) *catalog.StoredModule {
	t.Helper()
	bytes := wasmgen.Module([]string{"init", "on_task_event", "on_tick"})
	sum := sha256.Sum256(bytes)
	return &catalog.StoredModule{
		ID:      id,
		ScopeID: "scope1",
		Manifest: &manifest.AgentManifest{
			Name:        id,
			Version:     "1.0.0",
			ContentHash: hex.EncodeToString(sum[:]),
			Permissions: perms,
		},
		Bytes: bytes,
	}
}

func testConfig() Config {
	return Config{
		TickInterval:    20 * time.Millisecond,
		CallTimeout:     2 * time.Second,
		MaxTickFailures: 3,
	}
}

type eventSink struct {
	mu     sync.Mutex
	events []events.TaskEvent
}

func (s *eventSink) collect(e events.TaskEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestActivateIsIdempotent(t *testing.T) {
	states := memory.NewStore()
	ex := New(testConfig(), states, nil, logger.GetDefaultLogger())
	rec := testRecord(t, "scope1:agent-a", nil)

	require.NoError(t, ex.Activate(context.Background(), rec, []byte("seed-material-32-bytes-long!!!!")))
	assert.Equal(t, 1, ex.ActiveCount())

	require.NoError(t, ex.Activate(context.Background(), rec, []byte("seed-material-32-bytes-long!!!!")))
	assert.Equal(t, 1, ex.ActiveCount())
}

func TestDeactivateRemovesInstanceAndIsIdempotent(t *testing.T) {
	states := memory.NewStore()
	ex := New(testConfig(), states, nil, logger.GetDefaultLogger())
	rec := testRecord(t, "scope1:agent-a", nil)

	require.NoError(t, ex.Activate(context.Background(), rec, []byte("seed-material-32-bytes-long!!!!")))
	require.NoError(t, ex.Deactivate(context.Background(), rec.ID))
	assert.Equal(t, 0, ex.ActiveCount())

	require.NoError(t, ex.Deactivate(context.Background(), rec.ID))
}

func TestDeactivateUnknownModuleIsNoOp(t *testing.T) {
	states := memory.NewStore()
	ex := New(testConfig(), states, nil, logger.GetDefaultLogger())
	require.NoError(t, ex.Deactivate(context.Background(), "scope1:does-not-exist"))
}

func TestDispatchTaskEventFansOutToAllInstances(t *testing.T) {
	states := memory.NewStore()
	sink := &eventSink{}
	ex := New(testConfig(), states, sink.collect, logger.GetDefaultLogger())

	recA := testRecord(t, "scope1:agent-a", []manifest.Permission{manifest.PermissionEmitEvents})
	recB := testRecord(t, "scope1:agent-b", []manifest.Permission{manifest.PermissionEmitEvents})
	require.NoError(t, ex.Activate(context.Background(), recA, []byte("seed-material-32-bytes-long!!!!")))
	require.NoError(t, ex.Activate(context.Background(), recB, []byte("seed-material-32-bytes-long!!!!")))

	ex.DispatchTaskEvent(context.Background(), events.TaskEvent{Type: events.TaskCreated, TaskID: "t1"})
	assert.Equal(t, 2, ex.ActiveCount())
}

func TestShutdownDeactivatesEveryInstance(t *testing.T) {
	states := memory.NewStore()
	ex := New(testConfig(), states, nil, logger.GetDefaultLogger())

	for _, id := range []string{"scope1:agent-a", "scope1:agent-b", "scope1:agent-c"} {
		rec := testRecord(t, id, nil)
		require.NoError(t, ex.Activate(context.Background(), rec, []byte("seed-material-32-bytes-long!!!!")))
	}
	require.Equal(t, 3, ex.ActiveCount())

	require.NoError(t, ex.Shutdown(context.Background()))
	assert.Equal(t, 0, ex.ActiveCount())
}

func TestActivateRejectsHashMismatch(t *testing.T) {
	states := memory.NewStore()
	ex := New(testConfig(), states, nil, logger.GetDefaultLogger())

	rec := testRecord(t, "scope1:agent-a", nil)
	rec.Manifest.ContentHash = "0000000000000000000000000000000000000000000000000000000000000000"

	err := ex.Activate(context.Background(), rec, []byte("seed-material-32-bytes-long!!!!"))
	assert.Error(t, err)
	assert.Equal(t, 0, ex.ActiveCount())
}

// TestCircuitBreakerTripsAfterMaxTickFailures drives a module whose on_tick
// never returns through MaxTickFailures consecutive tick timeouts and
// checks the executor trips its breaker and deactivates the instance on
// its own, without any caller calling Deactivate.
func TestCircuitBreakerTripsAfterMaxTickFailures(t *testing.T) {
	states := memory.NewStore()
	cfg := Config{
		TickInterval:    10 * time.Millisecond,
		CallTimeout:     10 * time.Millisecond,
		MaxTickFailures: 3,
	}
	ex := New(cfg, states, nil, logger.GetDefaultLogger())

	bytes := wasmgen.ModuleWithBodies(
		[]string{"init", "on_task_event", "on_tick"},
		map[string][]byte{"on_tick": wasmgen.LoopBody()},
	)
	sum := sha256.Sum256(bytes)
	rec := &catalog.StoredModule{
		ID:      "scope1:stuck-agent",
		ScopeID: "scope1",
		Manifest: &manifest.AgentManifest{
			Name:        "stuck-agent",
			Version:     "1.0.0",
			ContentHash: hex.EncodeToString(sum[:]),
		},
		Bytes: bytes,
	}

	require.NoError(t, ex.Activate(context.Background(), rec, []byte("seed-material-32-bytes-long!!!!")))
	require.Equal(t, 1, ex.ActiveCount())

	require.Eventually(t, func() bool {
		return ex.ActiveCount() == 0
	}, 5*time.Second, 10*time.Millisecond, "instance should be auto-deactivated once the circuit breaker trips")
}

func TestTicksEventuallyFireWhileActive(t *testing.T) {
	states := memory.NewStore()
	ex := New(testConfig(), states, nil, logger.GetDefaultLogger())
	rec := testRecord(t, "scope1:agent-a", []manifest.Permission{manifest.PermissionPersistState})

	require.NoError(t, ex.Activate(context.Background(), rec, []byte("seed-material-32-bytes-long!!!!")))
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, ex.ActiveCount())
	require.NoError(t, ex.Shutdown(context.Background()))
}
