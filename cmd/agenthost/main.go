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

var rootCmd = &cobra.Command{
	Use:   "agenthost",
	Short: "agenthost - sandboxed WASM agent host",
	Long: `agenthost runs capability-sandboxed WebAssembly agents: it validates
and stores uploaded modules, activates them against a scope's task
context, drives their on_tick/on_task_event exports, and persists their
encrypted state between restarts.

This tool supports:
- Running the host process (serve)
- Managing the module catalog (module upload/list/activate/deactivate)
- Dispatching a synthetic task event for testing (events dispatch)`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Note: Commands are registered in their respective files
	// - serve.go: serveCmd
	// - module.go: moduleCmd and its upload/list/activate/deactivate subcommands
	// - events.go: eventsCmd and its dispatch subcommand
}
