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

import "encoding/binary"

// TaskStatus is the 1-byte status code used in the binary task record.
type TaskStatus uint8

const (
	TaskPending    TaskStatus = 0
	TaskInProgress TaskStatus = 1
	TaskCompleted  TaskStatus = 2
)

// Task is one entry of the context the host mirrors into a worker.
// JSON serialisation feeds host_get_tasks; EncodeTasksData feeds the
// binary helper for hand-written modules that cannot parse JSON.
type Task struct {
	ID           string     `json:"id"`
	Status       TaskStatus `json:"status"`
	Urgent       bool       `json:"urgent"`
	AssigneeID   string     `json:"assignee_id,omitempty"`
	DependentIDs []string   `json:"dependent_ids,omitempty"`
}

// Member is one entry of the room roster the host mirrors into a worker.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// taskIDFieldSize is the fixed id width in the binary task record
// (a 36-byte id, wide enough for a UUID string). IDs longer than this are truncated;
// shorter ones are zero-padded.
const taskIDFieldSize = 36

// EncodeTasksData builds the binary dependency-graph payload: a u32
// little-endian count, followed by one record per task:
// 36-byte id, 1-byte status, 1-byte urgency flag, 1-byte dependent count.
func EncodeTasksData(tasks []Task) []byte {
	out := make([]byte, 4, 4+len(tasks)*39)
	binary.LittleEndian.PutUint32(out, uint32(len(tasks)))

	for _, t := range tasks {
		var idField [taskIDFieldSize]byte
		copy(idField[:], t.ID)

		urgency := byte(0)
		if t.Urgent {
			urgency = 1
		}

		depCount := len(t.DependentIDs)
		if depCount > 255 {
			depCount = 255
		}

		out = append(out, idField[:]...)
		out = append(out, byte(t.Status), urgency, byte(depCount))
	}
	return out
}

// memberIDFieldSize mirrors taskIDFieldSize for member records; the
// member binary layout is otherwise unspecified beyond "assignment
// candidate layout" -- this id-only record is the minimal faithful
// rendition and is documented as a resolved open question.
const memberIDFieldSize = 36

// EncodeMembersData builds the binary member payload: a u32
// little-endian count, followed by one 36-byte, zero-padded id per
// member.
func EncodeMembersData(members []Member) []byte {
	out := make([]byte, 4, 4+len(members)*memberIDFieldSize)
	binary.LittleEndian.PutUint32(out, uint32(len(members)))

	for _, m := range members {
		var idField [memberIDFieldSize]byte
		copy(idField[:], m.ID)
		out = append(out, idField[:]...)
	}
	return out
}
