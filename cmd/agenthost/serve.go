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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero"

	"github.com/sage-x-project/agenthost/config"
	"github.com/sage-x-project/agenthost/internal/logger"
	"github.com/sage-x-project/agenthost/pkg/adminapi"
	"github.com/sage-x-project/agenthost/pkg/bridge/websocket"
	"github.com/sage-x-project/agenthost/pkg/builtin"
	"github.com/sage-x-project/agenthost/pkg/catalog"
	catalogmem "github.com/sage-x-project/agenthost/pkg/catalog/memory"
	catalogpg "github.com/sage-x-project/agenthost/pkg/catalog/postgres"
	"github.com/sage-x-project/agenthost/pkg/executor"
	"github.com/sage-x-project/agenthost/pkg/health"
	"github.com/sage-x-project/agenthost/pkg/loader"
	"github.com/sage-x-project/agenthost/pkg/statestore"
	statestoremem "github.com/sage-x-project/agenthost/pkg/statestore/memory"
	statestorepg "github.com/sage-x-project/agenthost/pkg/statestore/postgres"
)

var configDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent host process",
	Long: `serve loads configuration, wires the module catalog, state store,
executor, and admin API, and blocks serving traffic until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&configDir, "config-dir", "", "directory to load environment config files from")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.NewDefaultLogger()
	log.SetLevel(levelFromString(cfg.Logging.Level))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	catalogStore, states, closeStores, err := wireStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	runtime := wazero.NewRuntime(ctx)
	defer runtime.Close(ctx)

	ld := loader.New(catalogStore, loader.SigningPolicy{
		TrustedPubkeyB64: cfg.Module.TrustedSigningKey,
		RequireSigned:    cfg.Module.RequireSignedModules,
	}, runtime).WithBuiltins(builtin.NewRegistry(builtin.DefaultAssets(), log))

	wsBridge := websocket.New(websocket.DefaultConfig(), log)

	execCfg := executor.Config{
		TickInterval:    time.Duration(cfg.Module.TickIntervalMs) * time.Millisecond,
		CallTimeout:     time.Duration(cfg.Module.CallTimeoutMs) * time.Millisecond,
		MaxTickFailures: cfg.Module.MaxTickFailures,
	}
	exec := executor.New(execCfg, states, wsBridge.Broadcast, log)

	checker := health.NewChecker(exec, ld)
	healthServer := health.NewServer(checker, log, cfg.Health.Port)
	if cfg.Health.Enabled {
		if err := healthServer.Start(); err != nil {
			return fmt.Errorf("start health server: %w", err)
		}
		defer healthServer.Stop(context.Background())
	}

	var adminServer *adminapi.Server
	if cfg.AdminAPI.Enabled {
		adminServer, err = adminapi.NewServer(ld, exec, adminapi.Options{
			Addr:      cfg.AdminAPI.Addr,
			JWTSecret: []byte(cfg.AdminAPI.JWTSecret),
		}, log)
		if err != nil {
			return fmt.Errorf("build admin api: %w", err)
		}
		if err := adminServer.Start(); err != nil {
			return fmt.Errorf("start admin api: %w", err)
		}
		defer adminServer.Stop(context.Background())
	}

	log.Info("agenthost running", logger.String("environment", cfg.Environment))
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := exec.Shutdown(shutdownCtx); err != nil {
		log.Error("executor shutdown error", logger.Error(err))
	}
	_ = wsBridge.Close()
	return nil
}

func wireStores(ctx context.Context, cfg *config.Config) (catalog.Store, statestore.Store, func(), error) {
	if cfg.Store.Type != "postgres" {
		return catalogmem.NewStore(), statestoremem.NewStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return catalogpg.NewStore(pool), statestorepg.NewStore(pool), pool.Close, nil
}

func levelFromString(s string) logger.Level {
	switch s {
	case "debug":
		return logger.DebugLevel
	case "warn":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}
