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

package hostabi

import (
	"encoding/json"

	"github.com/sage-x-project/agenthost/pkg/events"
	"github.com/sage-x-project/agenthost/pkg/manifest"
)

// CallState is the mutable per-worker state the host functions read and
// write during a single Call(init|on_tick|on_task_event). It is owned
// by the worker goroutine and touched by exactly one goroutine at a
// time, so it carries no internal locking.
type CallState struct {
	ModuleID    string
	Permissions map[manifest.Permission]struct{}

	Tasks   []Task
	Members []Member

	StateCache []byte
	StateDirty bool

	PendingEvent []byte

	Emitted []events.TaskEvent

	// Now returns the current wall-clock time in ms since epoch; tests
	// substitute a deterministic clock.
	Now func() int64
}

// NewCallState builds a CallState for moduleID with the given
// permission set, task/member snapshot, and prior state cache (nil if
// none).
func NewCallState(moduleID string, perms []manifest.Permission, tasks []Task, members []Member, priorState []byte, now func() int64) *CallState {
	permSet := make(map[manifest.Permission]struct{}, len(perms))
	for _, p := range perms {
		permSet[p] = struct{}{}
	}
	return &CallState{
		ModuleID:    moduleID,
		Permissions: permSet,
		Tasks:       tasks,
		Members:     members,
		StateCache:  priorState,
		Now:         now,
	}
}

func (s *CallState) has(p manifest.Permission) bool {
	_, ok := s.Permissions[p]
	return ok
}

// knownTaskIDs returns the set of task ids currently mirrored, for
// event validation's "task_id must exist in the snapshot" rule.
func (s *CallState) knownTaskIDs() map[string]struct{} {
	out := make(map[string]struct{}, len(s.Tasks))
	for _, t := range s.Tasks {
		out[t.ID] = struct{}{}
	}
	return out
}

// SetPendingEvent marshals e to JSON and stores it so a subsequent
// on_task_event call's host_get_event can retrieve it.
func (s *CallState) SetPendingEvent(e events.TaskEvent) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.PendingEvent = b
	return nil
}

// ResetPerCall clears fields that do not persist across calls (pending
// event, emitted buffer) while keeping state cache/dirty and context.
func (s *CallState) ResetPerCall() {
	s.PendingEvent = nil
	s.Emitted = nil
}
