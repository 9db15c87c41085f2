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

package adminapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sage-x-project/agenthost/internal/logger"
	"github.com/sage-x-project/agenthost/pkg/catalog"
	"github.com/sage-x-project/agenthost/pkg/events"
	"github.com/sage-x-project/agenthost/pkg/loader"
)

// uploadRequest is the JSON body for POST /modules.
type uploadRequest struct {
	ScopeID      string `json:"scope_id"`
	ManifestJSON string `json:"manifest"`      // raw manifest JSON, inline
	ModuleB64    string `json:"module_base64"` // wasm bytes, base64
}

// activateRequest is the JSON body for POST /modules/{id}/activate.
type activateRequest struct {
	ScopeID string `json:"scope_id"`
	SeedB64 string `json:"seed_base64"`
}

// dispatchRequest is the JSON body for POST /events/dispatch.
type dispatchRequest struct {
	Type      events.Type     `json:"type"`
	TaskID    string          `json:"task_id"`
	Task      json.RawMessage `json:"task,omitempty"`
}

func (s *Server) handleUploadModule(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	moduleBytes, err := base64.StdEncoding.DecodeString(req.ModuleB64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := s.loader.Store(r.Context(), req.ScopeID, []byte(req.ManifestJSON), moduleBytes)
	if err != nil {
		writeLoaderError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	scopeID := r.URL.Query().Get("scope_id")
	recs, err := s.loader.List(r.Context(), scopeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.loader.Get(r.Context(), id)
	if err != nil {
		writeLoaderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteModule(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.loader.Delete(r.Context(), id); err != nil {
		writeLoaderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivateModule(w http.ResponseWriter, r *http.Request, id string) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := s.loader.Get(r.Context(), id)
	if err != nil {
		writeLoaderError(w, err)
		return
	}
	// Built-in records carry no catalog scope of their own (Get annotates
	// them with scope ""); the caller's scope_id is what actually keys
	// this instance's encrypted state.
	if rec.ScopeID == "" && req.ScopeID != "" {
		cp := *rec
		cp.ScopeID = req.ScopeID
		rec = &cp
	}
	if err := s.loader.SetActive(r.Context(), id, true); err != nil {
		writeLoaderError(w, err)
		return
	}
	seed := s.defaultSeed
	if req.SeedB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.SeedB64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		seed = decoded
	}
	if err := s.executor.Activate(r.Context(), rec, seed); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDeactivateModule(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.loader.SetActive(r.Context(), id, false); err != nil {
		writeLoaderError(w, err)
		return
	}
	if err := s.executor.Deactivate(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDispatchEvent lets an operator inject a synthetic TaskEvent for
// testing without waiting on a real embedder event source.
func (s *Server) handleDispatchEvent(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	event := events.TaskEvent{
		Type:   req.Type,
		TaskID: req.TaskID,
		Task:   req.Task,
	}
	s.executor.DispatchTaskEvent(r.Context(), event)
	w.WriteHeader(http.StatusAccepted)
}

func writeLoaderError(w http.ResponseWriter, err error) {
	var lerr *loader.Error
	if errors.As(err, &lerr) {
		switch lerr.Kind {
		case loader.KindNotFound:
			writeError(w, http.StatusNotFound, err)
		default:
			writeError(w, http.StatusBadRequest, err)
		}
		return
	}
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError responds with a logger.HostError envelope so every admin
// API failure carries a stable machine-readable code alongside the
// human message, instead of a bare string.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, logger.NewHostError(codeForStatus(status), err.Error(), err))
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return logger.ErrCodeUnauthorized
	case http.StatusForbidden:
		return logger.ErrCodeForbidden
	case http.StatusNotFound:
		return logger.ErrCodeNotFound
	case http.StatusBadRequest:
		return logger.ErrCodeInvalidInput
	case http.StatusUnprocessableEntity:
		return logger.ErrCodeValidationError
	case http.StatusConflict:
		return logger.ErrCodeConflict
	default:
		return logger.ErrCodeInternal
	}
}
