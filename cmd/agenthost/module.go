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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

var moduleCmd = &cobra.Command{
	Use:   "module",
	Short: "Manage the module catalog of a running agenthost process",
}

var (
	uploadScopeID      string
	uploadManifestFile string
	uploadModuleFile   string
	listScopeID        string
	activateSeedB64    string
)

var moduleUploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a module and its manifest",
	Example: `  agenthost module upload --scope-id team-a --manifest agent.json --module agent.wasm`,
	RunE: runModuleUpload,
}

var moduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List modules in a scope",
	RunE:  runModuleList,
}

var moduleActivateCmd = &cobra.Command{
	Use:   "activate [id]",
	Short: "Activate a module",
	Args:  cobra.ExactArgs(1),
	RunE:  runModuleActivate,
}

var moduleDeactivateCmd = &cobra.Command{
	Use:   "deactivate [id]",
	Short: "Deactivate a module",
	Args:  cobra.ExactArgs(1),
	RunE:  runModuleDeactivate,
}

func init() {
	rootCmd.AddCommand(moduleCmd)
	moduleCmd.AddCommand(moduleUploadCmd, moduleListCmd, moduleActivateCmd, moduleDeactivateCmd)

	moduleCmd.PersistentFlags().StringVar(&adminAddr, "admin-addr", "localhost:8090", "agenthost admin API address")
	moduleCmd.PersistentFlags().StringVar(&adminToken, "token", os.Getenv("AGENTHOST_ADMIN_TOKEN"), "admin API bearer token")

	moduleUploadCmd.Flags().StringVar(&uploadScopeID, "scope-id", "", "scope to upload into (required)")
	moduleUploadCmd.Flags().StringVar(&uploadManifestFile, "manifest", "", "path to the manifest JSON file (required)")
	moduleUploadCmd.Flags().StringVar(&uploadModuleFile, "module", "", "path to the compiled .wasm file (required)")

	moduleListCmd.Flags().StringVar(&listScopeID, "scope-id", "", "scope to list (required)")

	moduleActivateCmd.Flags().StringVar(&activateSeedB64, "seed-base64", "", "base64 state-encryption seed override")
}

func runModuleUpload(cmd *cobra.Command, args []string) error {
	if uploadScopeID == "" || uploadManifestFile == "" || uploadModuleFile == "" {
		return fmt.Errorf("--scope-id, --manifest, and --module are all required")
	}

	manifestRaw, err := os.ReadFile(uploadManifestFile)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	moduleBytes, err := os.ReadFile(uploadModuleFile)
	if err != nil {
		return fmt.Errorf("read module: %w", err)
	}

	body := map[string]string{
		"scope_id":      uploadScopeID,
		"manifest":      string(manifestRaw),
		"module_base64": base64.StdEncoding.EncodeToString(moduleBytes),
	}

	c := newAdminClient()
	data, status, err := c.do("POST", "/modules", body)
	if err != nil {
		return err
	}
	if err := c.checkStatus(data, status, 201); err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runModuleList(cmd *cobra.Command, args []string) error {
	if listScopeID == "" {
		return fmt.Errorf("--scope-id is required")
	}
	c := newAdminClient()
	data, status, err := c.do("GET", "/modules?scope_id="+url.QueryEscape(listScopeID), nil)
	if err != nil {
		return err
	}
	if err := c.checkStatus(data, status, 200); err != nil {
		return err
	}
	var pretty json.RawMessage = data
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(string(out))
	return nil
}

func runModuleActivate(cmd *cobra.Command, args []string) error {
	c := newAdminClient()
	body := map[string]string{}
	if activateSeedB64 != "" {
		body["seed_base64"] = activateSeedB64
	}
	data, status, err := c.do("POST", "/modules/"+url.PathEscape(args[0])+"/activate", body)
	if err != nil {
		return err
	}
	if err := c.checkStatus(data, status, 202); err != nil {
		return err
	}
	fmt.Printf("activated %s\n", args[0])
	return nil
}

func runModuleDeactivate(cmd *cobra.Command, args []string) error {
	c := newAdminClient()
	data, status, err := c.do("POST", "/modules/"+url.PathEscape(args[0])+"/deactivate", nil)
	if err != nil {
		return err
	}
	if err := c.checkStatus(data, status, 204); err != nil {
		return err
	}
	fmt.Printf("deactivated %s\n", args[0])
	return nil
}
