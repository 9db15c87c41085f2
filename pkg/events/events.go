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

// Package events defines TaskEvent and the validation/overwrite rules
// applied to every event a module emits via host_emit_event, shared
// between pkg/hostabi (where emission happens) and pkg/executor (where
// events are dispatched back in via on_task_event).
package events

import "encoding/json"

// Type is one of the closed set of event types the host will forward.
// Anything outside this set is dropped at the host boundary.
type Type string

const (
	TaskCreated             Type = "task_created"
	SubtaskCreated          Type = "subtask_created"
	TaskAssigned            Type = "task_assigned"
	TaskStatusChanged       Type = "task_status_changed"
	TaskDependenciesChanged Type = "task_dependencies_changed"
	TaskUrgencyChanged      Type = "task_urgency_changed"
)

var validTypes = map[Type]struct{}{
	TaskCreated:             {},
	SubtaskCreated:          {},
	TaskAssigned:            {},
	TaskStatusChanged:       {},
	TaskDependenciesChanged: {},
	TaskUrgencyChanged:      {},
}

// ValidType reports whether t is a member of the closed event type set.
func ValidType(t Type) bool {
	_, ok := validTypes[t]
	return ok
}

// IsCreation reports whether t exempts an unknown task_id from
// rejection (spec: task_created / subtask_created introduce new tasks).
func IsCreation(t Type) bool {
	return t == TaskCreated || t == SubtaskCreated
}

// TaskEvent is the wire shape a module emits via host_emit_event and
// the executor dispatches back in via on_task_event. ActorID and
// Timestamp are always host-assigned on the way out; a module's own
// values for them are discarded.
type TaskEvent struct {
	Type      Type            `json:"type"`
	TaskID    string          `json:"task_id"`
	Task      json.RawMessage `json:"task,omitempty"`
	Timestamp int64           `json:"timestamp"`
	ActorID   string          `json:"actor_id"`
}

// RejectReason names why an emitted event was dropped, for the
// events_rejected metric's "reason" label.
type RejectReason string

const (
	ReasonUnknownType   RejectReason = "unknown_type"
	ReasonMissingTaskID RejectReason = "missing_task_id"
	ReasonUnknownTaskID RejectReason = "unknown_task_id"
)

// Validate checks type, task_id presence, and -- for non-creation
// events when snapshotNonEmpty -- that taskID is a member of
// knownTaskIDs. It does not touch ActorID/Timestamp; overwriting those
// is the caller's job (host_emit_event's authority alone).
func Validate(e TaskEvent, knownTaskIDs map[string]struct{}, snapshotNonEmpty bool) (ok bool, reason RejectReason) {
	if !ValidType(e.Type) {
		return false, ReasonUnknownType
	}
	if e.TaskID == "" {
		return false, ReasonMissingTaskID
	}
	if !IsCreation(e.Type) && snapshotNonEmpty {
		if _, known := knownTaskIDs[e.TaskID]; !known {
			return false, ReasonUnknownTaskID
		}
	}
	return true, ""
}

// WithHostAuthority returns a copy of e with ActorID and Timestamp
// overwritten per the host's authority over those two fields.
func WithHostAuthority(e TaskEvent, moduleID string, nowMs int64) TaskEvent {
	e.ActorID = "agent:" + moduleID
	e.Timestamp = nowMs
	return e
}
