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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inject synthetic task events into a running agenthost process",
}

var (
	dispatchType   string
	dispatchTaskID string
)

var eventsDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch a synthetic task event to every active agent",
	Long: `dispatch is a testing aid: it lets an operator push a TaskEvent through
the executor's on_task_event fan-out without a real embedder event
source behind it.`,
	Example: `  agenthost events dispatch --type task_status_changed --task-id task-42`,
	RunE:    runEventsDispatch,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsDispatchCmd)

	eventsCmd.PersistentFlags().StringVar(&adminAddr, "admin-addr", "localhost:8090", "agenthost admin API address")
	eventsCmd.PersistentFlags().StringVar(&adminToken, "token", os.Getenv("AGENTHOST_ADMIN_TOKEN"), "admin API bearer token")

	eventsDispatchCmd.Flags().StringVar(&dispatchType, "type", "", "event type, e.g. task_status_changed (required)")
	eventsDispatchCmd.Flags().StringVar(&dispatchTaskID, "task-id", "", "task id the event refers to (required)")
}

func runEventsDispatch(cmd *cobra.Command, args []string) error {
	if dispatchType == "" || dispatchTaskID == "" {
		return fmt.Errorf("--type and --task-id are both required")
	}
	c := newAdminClient()
	body := map[string]string{"type": dispatchType, "task_id": dispatchTaskID}
	data, status, err := c.do("POST", "/events/dispatch", body)
	if err != nil {
		return err
	}
	if err := c.checkStatus(data, status, 202); err != nil {
		return err
	}
	fmt.Println("dispatched")
	return nil
}
