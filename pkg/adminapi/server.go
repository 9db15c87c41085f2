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
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sage-x-project/agenthost/internal/logger"
	"github.com/sage-x-project/agenthost/pkg/catalog"
	"github.com/sage-x-project/agenthost/pkg/events"
	"github.com/sage-x-project/agenthost/pkg/hostabi"
)

// loaderAPI is the subset of *loader.Loader the admin API drives.
type loaderAPI interface {
	Store(ctx context.Context, scopeID string, manifestRaw, moduleBytes []byte) (*catalog.StoredModule, error)
	List(ctx context.Context, scopeID string) ([]*catalog.StoredModule, error)
	Get(ctx context.Context, id string) (*catalog.StoredModule, error)
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
}

// executorAPI is the subset of *executor.Executor the admin API drives.
type executorAPI interface {
	Activate(ctx context.Context, rec *catalog.StoredModule, seed []byte) error
	Deactivate(ctx context.Context, moduleID string) error
	DispatchTaskEvent(ctx context.Context, event events.TaskEvent)
	UpdateContext(tasks []hostabi.Task, members []hostabi.Member)
	ActiveCount() int
}

// Server is the HTTP admin API fronting a Loader and Executor. It holds
// no agent-lifecycle state itself; every handler delegates straight
// through to one of the two.
type Server struct {
	loader      loaderAPI
	executor    executorAPI
	issuer      *TokenIssuer
	log         logger.Logger
	defaultSeed []byte

	addr string
	srv  *http.Server
}

// Options configures a Server.
type Options struct {
	Addr string
	// JWTSecret signs and verifies bearer tokens. Empty disables auth
	// entirely, which NewServer refuses unless AllowNoAuth is set --
	// an admin API with no auth is a footgun, not a convenience default.
	JWTSecret   []byte
	Issuer      string
	AllowNoAuth bool
	DefaultSeed []byte
}

// NewServer builds a Server. log takes a logger.Logger at construction
// time rather than a package-level global, matching this codebase's
// logging convention throughout.
func NewServer(l loaderAPI, e executorAPI, opts Options, log logger.Logger) (*Server, error) {
	var issuer *TokenIssuer
	if len(opts.JWTSecret) == 0 {
		if !opts.AllowNoAuth {
			return nil, errNoSecret
		}
	} else {
		issuer = NewTokenIssuer(opts.JWTSecret, opts.Issuer)
	}
	addr := opts.Addr
	if addr == "" {
		addr = ":8090"
	}
	return &Server{
		loader:      l,
		executor:    e,
		issuer:      issuer,
		log:         log,
		defaultSeed: opts.DefaultSeed,
		addr:        addr,
	}, nil
}

var errNoSecret = serverConfigError("adminapi: JWTSecret required unless AllowNoAuth is set")

type serverConfigError string

func (e serverConfigError) Error() string { return string(e) }

// Handler builds the routed http.Handler, wrapping every route in bearer
// auth unless the server was constructed with AllowNoAuth.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /modules", s.handleUploadModule)
	mux.HandleFunc("GET /modules", s.handleListModules)
	mux.HandleFunc("GET /modules/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.handleGetModule(w, r, moduleIDFromPath(r))
	})
	mux.HandleFunc("DELETE /modules/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.handleDeleteModule(w, r, moduleIDFromPath(r))
	})
	mux.HandleFunc("POST /modules/{id}/activate", func(w http.ResponseWriter, r *http.Request) {
		s.handleActivateModule(w, r, moduleIDFromPath(r))
	})
	mux.HandleFunc("POST /modules/{id}/deactivate", func(w http.ResponseWriter, r *http.Request) {
		s.handleDeactivateModule(w, r, moduleIDFromPath(r))
	})
	mux.HandleFunc("POST /events/dispatch", s.handleDispatchEvent)

	if s.issuer == nil {
		return mux
	}
	return RequireBearer(s.issuer, mux)
}

func moduleIDFromPath(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("id"))
}

// Start begins serving in the background and returns immediately,
// mirroring pkg/health.Server's Start/Stop shape.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}
	s.log.Info("admin api listening", logger.String("addr", s.addr))
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("admin api server error", logger.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// IssueToken mints a bearer token for subject, for operators bootstrapping
// a CLI session against this server. It is a no-op error if auth is
// disabled.
func (s *Server) IssueToken(subject string, ttl time.Duration) (string, error) {
	if s.issuer == nil {
		return "", errNoSecret
	}
	return s.issuer.Issue(subject, ttl)
}
