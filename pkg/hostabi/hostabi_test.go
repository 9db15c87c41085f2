// SPDX-License-Identifier: LGPL-3.0-or-later

package hostabi

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/sage-x-project/agenthost/pkg/events"
	"github.com/sage-x-project/agenthost/pkg/manifest"
)

func newEnv(t *testing.T, state *CallState) (wazero.Runtime, ctxModule) {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { rt.Close(ctx) })

	mod, err := Build(ctx, rt, state)
	require.NoError(t, err)
	t.Cleanup(func() { mod.Close(ctx) })

	return rt, ctxModule{ctx: ctx, mod: mod}
}

type ctxModule struct {
	ctx context.Context
	mod api.Module
}

func fixedClock(ms int64) func() int64 {
	return func() int64 { return ms }
}

func TestHostGetTasksRespectsPermission(t *testing.T) {
	state := NewCallState("scope1:a", nil, []Task{{ID: "t1"}}, nil, nil, fixedClock(1000))
	_, env := newEnv(t, state)

	n, err := env.mod.ExportedFunction("host_get_tasks").Call(env.ctx, 0, 4096)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n[0])
}

func TestHostGetTasksWritesJSONWhenPermitted(t *testing.T) {
	tasks := []Task{{ID: "t1", Status: TaskPending}}
	state := NewCallState("scope1:a", []manifest.Permission{manifest.PermissionReadTasks}, tasks, nil, nil, fixedClock(1000))
	_, env := newEnv(t, state)

	n, err := env.mod.ExportedFunction("host_get_tasks").Call(env.ctx, 0, 4096)
	require.NoError(t, err)
	require.Greater(t, n[0], uint64(0))

	data, ok := env.mod.Memory().Read(0, uint32(n[0]))
	require.True(t, ok)

	var got []Task
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, tasks, got)
}

func TestHostGetTasksTooSmallBufferReturnsZero(t *testing.T) {
	tasks := []Task{{ID: "t1"}}
	state := NewCallState("scope1:a", []manifest.Permission{manifest.PermissionReadTasks}, tasks, nil, nil, fixedClock(1000))
	_, env := newEnv(t, state)

	n, err := env.mod.ExportedFunction("host_get_tasks").Call(env.ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n[0])
}

func TestHostSetStateAndGetStateRoundTrip(t *testing.T) {
	state := NewCallState("scope1:a", []manifest.Permission{manifest.PermissionPersistState}, nil, nil, nil, fixedClock(1000))
	_, env := newEnv(t, state)

	payload := []byte(`{"count":1}`)
	require.True(t, env.mod.Memory().Write(100, payload))

	_, err := env.mod.ExportedFunction("host_set_state").Call(env.ctx, 100, uint64(len(payload)))
	require.NoError(t, err)
	assert.True(t, state.StateDirty)
	assert.Equal(t, payload, state.StateCache)

	n, err := env.mod.ExportedFunction("host_get_state").Call(env.ctx, 200, 4096)
	require.NoError(t, err)
	require.Equal(t, uint64(len(payload)), n[0])

	got, ok := env.mod.Memory().Read(200, uint32(n[0]))
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestHostSetStateDropsOversizePayload(t *testing.T) {
	state := NewCallState("scope1:a", []manifest.Permission{manifest.PermissionPersistState}, nil, nil, nil, fixedClock(1000))
	_, env := newEnv(t, state)

	_, err := env.mod.ExportedFunction("host_set_state").Call(env.ctx, 0, uint64(maxStateSize+1))
	require.NoError(t, err)
	assert.False(t, state.StateDirty)
	assert.Nil(t, state.StateCache)
}

func TestHostEmitEventActorAndTimestampOverride(t *testing.T) {
	state := NewCallState("scope1:a", []manifest.Permission{manifest.PermissionEmitEvents}, []Task{{ID: "t1"}}, nil, nil, fixedClock(4242))
	_, env := newEnv(t, state)

	e := events.TaskEvent{Type: events.TaskAssigned, TaskID: "t1", ActorID: "attacker", Timestamp: 1}
	raw, err := json.Marshal(e)
	require.NoError(t, err)
	require.True(t, env.mod.Memory().Write(0, raw))

	_, err = env.mod.ExportedFunction("host_emit_event").Call(env.ctx, 0, uint64(len(raw)))
	require.NoError(t, err)

	require.Len(t, state.Emitted, 1)
	assert.Equal(t, "agent:scope1:a", state.Emitted[0].ActorID)
	assert.Equal(t, int64(4242), state.Emitted[0].Timestamp)
}

func TestHostEmitEventWithoutPermissionIsDropped(t *testing.T) {
	state := NewCallState("scope1:a", nil, []Task{{ID: "t1"}}, nil, nil, fixedClock(1000))
	_, env := newEnv(t, state)

	e := events.TaskEvent{Type: events.TaskAssigned, TaskID: "t1"}
	raw, err := json.Marshal(e)
	require.NoError(t, err)
	require.True(t, env.mod.Memory().Write(0, raw))

	_, err = env.mod.ExportedFunction("host_emit_event").Call(env.ctx, 0, uint64(len(raw)))
	require.NoError(t, err)
	assert.Empty(t, state.Emitted)
}

func TestHostEmitEventUnknownTaskIDRejectedWhenSnapshotNonEmpty(t *testing.T) {
	state := NewCallState("scope1:a", []manifest.Permission{manifest.PermissionEmitEvents}, []Task{{ID: "t1"}}, nil, nil, fixedClock(1000))
	_, env := newEnv(t, state)

	e := events.TaskEvent{Type: events.TaskAssigned, TaskID: "unknown"}
	raw, err := json.Marshal(e)
	require.NoError(t, err)
	require.True(t, env.mod.Memory().Write(0, raw))

	_, err = env.mod.ExportedFunction("host_emit_event").Call(env.ctx, 0, uint64(len(raw)))
	require.NoError(t, err)
	assert.Empty(t, state.Emitted)
}

func TestHostGetEventReturnsPendingPayload(t *testing.T) {
	state := NewCallState("scope1:a", nil, nil, nil, nil, fixedClock(1000))
	require.NoError(t, state.SetPendingEvent(events.TaskEvent{Type: events.TaskAssigned, TaskID: "t1"}))
	_, env := newEnv(t, state)

	n, err := env.mod.ExportedFunction("host_get_event").Call(env.ctx, 0, 4096)
	require.NoError(t, err)
	require.Greater(t, n[0], uint64(0))
}

func TestHostGetNowReturnsClock(t *testing.T) {
	state := NewCallState("scope1:a", nil, nil, nil, nil, fixedClock(123456))
	_, env := newEnv(t, state)

	n, err := env.mod.ExportedFunction("host_get_now").Call(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), n[0])
}

func TestHostLogIsNoOp(t *testing.T) {
	state := NewCallState("scope1:a", nil, nil, nil, nil, fixedClock(1000))
	_, env := newEnv(t, state)

	_, err := env.mod.ExportedFunction("host_log").Call(env.ctx, 0, 0)
	require.NoError(t, err)
}

func TestEncodeTasksDataRecordLayout(t *testing.T) {
	tasks := []Task{{ID: "t1", Status: TaskInProgress, Urgent: true, DependentIDs: []string{"t2", "t3"}}}
	state := NewCallState("scope1:a", []manifest.Permission{manifest.PermissionReadTasks}, tasks, nil, nil, fixedClock(1000))
	_, env := newEnv(t, state)

	n, err := env.mod.ExportedFunction("host_get_tasks_data").Call(env.ctx, 0, 4096)
	require.NoError(t, err)
	require.Equal(t, uint64(4+39), n[0])

	data, ok := env.mod.Memory().Read(0, uint32(n[0]))
	require.True(t, ok)
	assert.Equal(t, byte(1), data[4+36])   // status = in_progress
	assert.Equal(t, byte(1), data[4+37])   // urgency flag
	assert.Equal(t, byte(2), data[4+38])   // dependent count
}
