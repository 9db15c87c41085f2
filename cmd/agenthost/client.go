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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// adminAddr and adminToken are shared by every subcommand that talks to
// a running agenthost serve process's admin API.
var (
	adminAddr  string
	adminToken string
)

// adminClient is a minimal HTTP client for the admin API. Module and
// event subcommands drive a running agenthost serve process through it
// rather than opening storage directly, so the CLI never needs the
// process's config or credentials beyond a bearer token.
type adminClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAdminClient() *adminClient {
	return &adminClient{
		baseURL: "http://" + adminAddr,
		token:   adminToken,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *adminClient) do(method, path string, body interface{}) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("admin api request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

// errBody mirrors internal/logger.HostError's JSON shape without
// importing the package: the CLI only needs to read it, not construct it.
type errBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *adminClient) checkStatus(data []byte, status, want int) error {
	if status == want {
		return nil
	}
	var body errBody
	_ = json.Unmarshal(data, &body)
	if body.Message != "" {
		return fmt.Errorf("admin api returned %d (%s): %s", status, body.Code, body.Message)
	}
	return fmt.Errorf("admin api returned %d", status)
}
