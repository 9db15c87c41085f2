// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package hostabi builds the host-function table a module imports,
// bounds-checked against the module's own linear memory, gated by the
// manifest's declared permissions. Grounded on the wazero
// HostModuleBuilder pattern from the gossamer runtime instance in the
// retrieval pack's other_examples: one "env" host module, one
// NewFunctionBuilder chain per import, host functions closing over
// call-local state instead of globals.
package hostabi

import (
	"context"
	"encoding/json"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/sage-x-project/agenthost/internal/metrics"
	"github.com/sage-x-project/agenthost/pkg/events"
	"github.com/sage-x-project/agenthost/pkg/manifest"
)

// MaxMemoryPages is the host-enforced cap on a worker's linear memory:
// 160 pages * 64 KiB = 10 MiB.
const MaxMemoryPages = 160

// noBytesWritten is the sentinel every capability-gated read returns
// when the permission is absent, the buffer is too small, or the
// pointer is out of bounds. Agents cannot distinguish these cases.
const noBytesWritten = 0

// Build instantiates the "env" host module granting state the host
// functions it exposes, visible to a subsequent guest instantiation
// in the same runtime under the import name "env". The returned module
// also owns the worker's 1..MaxMemoryPages linear memory; the guest
// imports it rather than using any memory section of its own.
func Build(ctx context.Context, rt wazero.Runtime, state *CallState) (api.Module, error) {
	b := rt.NewHostModuleBuilder("env").
		ExportMemoryWithMax("memory", 1, MaxMemoryPages)

	b.NewFunctionBuilder().WithFunc(hostGetTasks(state)).Export("host_get_tasks")
	b.NewFunctionBuilder().WithFunc(hostGetMembers(state)).Export("host_get_members")
	b.NewFunctionBuilder().WithFunc(hostGetState(state)).Export("host_get_state")
	b.NewFunctionBuilder().WithFunc(hostSetState(state)).Export("host_set_state")
	b.NewFunctionBuilder().WithFunc(hostEmitEvent(state)).Export("host_emit_event")
	b.NewFunctionBuilder().WithFunc(hostGetEvent(state)).Export("host_get_event")
	b.NewFunctionBuilder().WithFunc(hostGetNow(state)).Export("host_get_now")
	b.NewFunctionBuilder().WithFunc(hostLog(state)).Export("host_log")
	b.NewFunctionBuilder().WithFunc(hostGetTasksData(state)).Export("host_get_tasks_data")
	b.NewFunctionBuilder().WithFunc(hostGetMembersData(state)).Export("host_get_members_data")

	return b.Instantiate(ctx)
}

func writeIfFits(mod api.Module, ptr, maxLen uint32, data []byte) uint32 {
	if uint32(len(data)) > maxLen {
		return noBytesWritten
	}
	if !mod.Memory().Write(ptr, data) {
		return noBytesWritten
	}
	return uint32(len(data))
}

func hostGetTasks(state *CallState) func(ctx context.Context, mod api.Module, ptr, maxLen uint32) uint32 {
	return func(ctx context.Context, mod api.Module, ptr, maxLen uint32) uint32 {
		if !state.has(manifest.PermissionReadTasks) {
			metrics.HostCalls.WithLabelValues("host_get_tasks", "denied").Inc()
			return noBytesWritten
		}
		data, err := json.Marshal(state.Tasks)
		if err != nil {
			metrics.HostCalls.WithLabelValues("host_get_tasks", "error").Inc()
			return noBytesWritten
		}
		n := writeIfFits(mod, ptr, maxLen, data)
		metrics.HostCalls.WithLabelValues("host_get_tasks", result(n)).Inc()
		return n
	}
}

func hostGetMembers(state *CallState) func(ctx context.Context, mod api.Module, ptr, maxLen uint32) uint32 {
	return func(ctx context.Context, mod api.Module, ptr, maxLen uint32) uint32 {
		if !state.has(manifest.PermissionReadMembers) {
			metrics.HostCalls.WithLabelValues("host_get_members", "denied").Inc()
			return noBytesWritten
		}
		data, err := json.Marshal(state.Members)
		if err != nil {
			metrics.HostCalls.WithLabelValues("host_get_members", "error").Inc()
			return noBytesWritten
		}
		n := writeIfFits(mod, ptr, maxLen, data)
		metrics.HostCalls.WithLabelValues("host_get_members", result(n)).Inc()
		return n
	}
}

func hostGetState(state *CallState) func(ctx context.Context, mod api.Module, ptr, maxLen uint32) uint32 {
	return func(ctx context.Context, mod api.Module, ptr, maxLen uint32) uint32 {
		if !state.has(manifest.PermissionPersistState) || state.StateCache == nil {
			metrics.HostCalls.WithLabelValues("host_get_state", "denied").Inc()
			return noBytesWritten
		}
		n := writeIfFits(mod, ptr, maxLen, state.StateCache)
		metrics.HostCalls.WithLabelValues("host_get_state", result(n)).Inc()
		return n
	}
}

func hostSetState(state *CallState) func(ctx context.Context, mod api.Module, ptr, length uint32) {
	return func(ctx context.Context, mod api.Module, ptr, length uint32) {
		if !state.has(manifest.PermissionPersistState) {
			metrics.HostCalls.WithLabelValues("host_set_state", "denied").Inc()
			return
		}
		if length > maxStateSize {
			metrics.HostCalls.WithLabelValues("host_set_state", "dropped").Inc()
			return
		}
		data, ok := mod.Memory().Read(ptr, length)
		if !ok {
			metrics.HostCalls.WithLabelValues("host_set_state", "bounds_error").Inc()
			return
		}
		state.StateCache = append([]byte(nil), data...)
		state.StateDirty = true
		metrics.HostCalls.WithLabelValues("host_set_state", "ok").Inc()
	}
}

func hostEmitEvent(state *CallState) func(ctx context.Context, mod api.Module, ptr, length uint32) {
	return func(ctx context.Context, mod api.Module, ptr, length uint32) {
		if !state.has(manifest.PermissionEmitEvents) {
			metrics.HostCalls.WithLabelValues("host_emit_event", "denied").Inc()
			return
		}
		raw, ok := mod.Memory().Read(ptr, length)
		if !ok {
			metrics.HostCalls.WithLabelValues("host_emit_event", "bounds_error").Inc()
			return
		}

		var e events.TaskEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			metrics.EventsRejected.WithLabelValues(string(events.ReasonUnknownType)).Inc()
			return
		}

		okValid, reason := events.Validate(e, state.knownTaskIDs(), len(state.Tasks) > 0)
		if !okValid {
			metrics.EventsRejected.WithLabelValues(string(reason)).Inc()
			return
		}

		e = events.WithHostAuthority(e, state.ModuleID, state.Now())
		state.Emitted = append(state.Emitted, e)
		metrics.EventsEmitted.WithLabelValues(string(e.Type)).Inc()
		metrics.HostCalls.WithLabelValues("host_emit_event", "ok").Inc()
	}
}

func hostGetEvent(state *CallState) func(ctx context.Context, mod api.Module, ptr, maxLen uint32) uint32 {
	return func(ctx context.Context, mod api.Module, ptr, maxLen uint32) uint32 {
		if state.PendingEvent == nil {
			return noBytesWritten
		}
		n := writeIfFits(mod, ptr, maxLen, state.PendingEvent)
		metrics.HostCalls.WithLabelValues("host_get_event", result(n)).Inc()
		return n
	}
}

func hostGetNow(state *CallState) func(ctx context.Context) uint64 {
	return func(ctx context.Context) uint64 {
		return uint64(state.Now())
	}
}

// hostLog is a no-op in production: prod builds must not write agent
// log payloads to any sink the agent can observe the effect of.
func hostLog(state *CallState) func(ctx context.Context, mod api.Module, ptr, length uint32) {
	return func(ctx context.Context, mod api.Module, ptr, length uint32) {
		metrics.HostCalls.WithLabelValues("host_log", "dropped").Inc()
	}
}

func hostGetTasksData(state *CallState) func(ctx context.Context, mod api.Module, ptr, maxLen uint32) uint32 {
	return func(ctx context.Context, mod api.Module, ptr, maxLen uint32) uint32 {
		if !state.has(manifest.PermissionReadTasks) {
			metrics.HostCalls.WithLabelValues("host_get_tasks_data", "denied").Inc()
			return noBytesWritten
		}
		n := writeIfFits(mod, ptr, maxLen, EncodeTasksData(state.Tasks))
		metrics.HostCalls.WithLabelValues("host_get_tasks_data", result(n)).Inc()
		return n
	}
}

func hostGetMembersData(state *CallState) func(ctx context.Context, mod api.Module, ptr, maxLen uint32) uint32 {
	return func(ctx context.Context, mod api.Module, ptr, maxLen uint32) uint32 {
		if !state.has(manifest.PermissionReadMembers) {
			metrics.HostCalls.WithLabelValues("host_get_members_data", "denied").Inc()
			return noBytesWritten
		}
		n := writeIfFits(mod, ptr, maxLen, EncodeMembersData(state.Members))
		metrics.HostCalls.WithLabelValues("host_get_members_data", result(n)).Inc()
		return n
	}
}

// result labels a write outcome for the host_calls metric. By the time
// it is called, the permission check has already passed, so a zero
// here means the buffer was too small or the pointer out of bounds,
// not a denied capability.
func result(n uint32) string {
	if n == noBytesWritten {
		return "bounds_error"
	}
	return "ok"
}

// maxStateSize mirrors pkg/state.MaxStateSize without importing it --
// hostabi must not depend on the crypto-bearing package, only on the
// constant contract both sides honour.
const maxStateSize = 1 << 20
