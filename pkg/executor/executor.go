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

// Package executor is the main-thread coordinator: it owns at most one
// AgentInstance per module id, drives each instance's worker through
// activate/tick/dispatch/deactivate, and is the only component that
// talks to pkg/worker directly.
//
// # Invariants
//
//   - At most one AgentInstance per module_id.
//   - A call that times out terminates the instance's worker. After an
//     on_task_event timeout the instance is removed from the table before
//     DispatchTaskEvent returns; after an on_tick timeout it stays in the
//     table, its later ticks failing, until the failure cap deactivates it.
//   - Deactivate (direct, failure cap, or shutdown) removes the instance
//     from the table before it returns.
//
// # Concurrency
//
// Executor itself runs cooperatively: all table mutations happen under
// its own mutex, and state never crosses to a worker except through
// pkg/worker's Call/Result protocol. Shutdown fans out deactivate to
// every instance concurrently via errgroup, grounded on the
// oriys/nova-derived executor in the retrieval pack's other_examples,
// which parallelises its own multi-source pre-fetch the same way.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sage-x-project/agenthost/internal/logger"
	"github.com/sage-x-project/agenthost/internal/metrics"
	"github.com/sage-x-project/agenthost/pkg/catalog"
	"github.com/sage-x-project/agenthost/pkg/events"
	"github.com/sage-x-project/agenthost/pkg/hostabi"
	"github.com/sage-x-project/agenthost/pkg/state"
	"github.com/sage-x-project/agenthost/pkg/statestore"
	"github.com/sage-x-project/agenthost/pkg/worker"
)

// Config bundles the process-wide module lifecycle tunables.
type Config struct {
	TickInterval    time.Duration
	CallTimeout     time.Duration
	MaxTickFailures int
}

// DefaultConfig returns the host's documented defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:    30 * time.Second,
		CallTimeout:     5 * time.Second,
		MaxTickFailures: 3,
	}
}

// Clock is overridable for deterministic tests.
type Clock func() int64

func systemClock() int64 { return time.Now().UnixMilli() }

// instance is everything the executor tracks for one active module.
type instance struct {
	moduleID string
	scopeID  string
	seed     []byte
	key      state.Key

	worker       *worker.Worker
	cancelWorker context.CancelFunc

	tickCancel   context.CancelFunc
	tickFailures int
}

// Executor is the main-thread coordinator described above.
type Executor struct {
	cfg    Config
	clock  Clock
	log    logger.Logger
	states statestore.Store

	onEvent func(events.TaskEvent)

	mu        sync.Mutex
	instances map[string]*instance

	// tasks/members is the most recent context UpdateContext broadcast.
	// Activate seeds a newly instantiated worker with this snapshot so a
	// module that joins after the last broadcast still starts with a
	// correct view of the world instead of an empty one.
	tasks   []hostabi.Task
	members []hostabi.Member
}

// New builds an Executor. onEvent is invoked for every event a worker's
// on_tick/on_task_event call emits, after host-authority overwrite;
// it must not block.
func New(cfg Config, states statestore.Store, onEvent func(events.TaskEvent), log logger.Logger) *Executor {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	if onEvent == nil {
		onEvent = func(events.TaskEvent) {}
	}
	return &Executor{
		cfg:       cfg,
		clock:     systemClock,
		log:       log,
		states:    states,
		onEvent:   onEvent,
		instances: make(map[string]*instance),
	}
}

// Activate brings up the worker for rec, deriving its state key from
// seed, loading any prior ciphertext, running Instantiate and Call(init),
// and starting its tick ticker. A no-op if already active.
func (e *Executor) Activate(ctx context.Context, rec *catalog.StoredModule, seed []byte) error {
	e.mu.Lock()
	if _, ok := e.instances[rec.ID]; ok {
		e.mu.Unlock()
		metrics.Activations.WithLabelValues("already_active").Inc()
		return nil
	}
	e.mu.Unlock()

	key, err := state.DeriveStateKey(seed, rec.ID)
	if err != nil {
		metrics.Activations.WithLabelValues("init_failed").Inc()
		return fmt.Errorf("executor: derive state key: %w", err)
	}

	priorState, err := e.loadState(ctx, rec.ScopeID, rec.ID, key)
	if err != nil {
		metrics.Activations.WithLabelValues("init_failed").Inc()
		return err
	}

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	w := worker.New(rec.ID)
	go w.Run(workerCtx)
	go w.Demux()

	inst := &instance{
		moduleID:     rec.ID,
		scopeID:      rec.ScopeID,
		seed:         append([]byte(nil), seed...),
		key:          key,
		worker:       w,
		cancelWorker: cancelWorker,
	}

	e.mu.Lock()
	initialTasks, initialMembers := e.tasks, e.members
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	_, err = w.Send(callCtx, &worker.Call{
		Kind:       worker.KindInstantiate,
		Bytes:      rec.Bytes,
		Manifest:   rec.Manifest,
		PriorState: priorState,
		Tasks:      initialTasks,
		Members:    initialMembers,
		Now:        e.clock,
	})
	if err != nil {
		cancelWorker()
		metrics.Activations.WithLabelValues("timeout").Inc()
		return fmt.Errorf("executor: instantiate %s: %w", rec.ID, err)
	}

	initCtx, cancelInit := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancelInit()
	if _, err := w.Send(initCtx, &worker.Call{Kind: worker.KindCallInit}); err != nil {
		cancelWorker()
		metrics.Activations.WithLabelValues("init_failed").Inc()
		return fmt.Errorf("executor: init %s: %w", rec.ID, err)
	}

	e.mu.Lock()
	e.instances[rec.ID] = inst
	e.mu.Unlock()

	e.startTicker(inst)
	metrics.Activations.WithLabelValues("ok").Inc()
	metrics.AgentsActive.Inc()
	return nil
}

// startTicker spawns the goroutine driving Call(on_tick) every
// TickInterval until the instance's tickCancel fires.
func (e *Executor) startTicker(inst *instance) {
	tickCtx, cancel := context.WithCancel(context.Background())
	inst.tickCancel = cancel

	go func() {
		ticker := time.NewTicker(e.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				e.tick(inst)
			}
		}
	}()
}

func (e *Executor) tick(inst *instance) {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(context.Background(), e.cfg.CallTimeout)
	defer cancel()

	res, err := inst.worker.Send(callCtx, &worker.Call{Kind: worker.KindCallOnTick})
	metrics.TickDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		e.onTickFailure(inst, err)
		return
	}

	e.applyResult(inst, res)

	e.mu.Lock()
	inst.tickFailures = 0
	e.mu.Unlock()
	metrics.Ticks.WithLabelValues("ok").Inc()
}

func (e *Executor) onTickFailure(inst *instance, err error) {
	e.log.Warn("tick failed", logger.String("module_id", inst.moduleID), logger.Error(err))
	metrics.Ticks.WithLabelValues("failed").Inc()

	e.mu.Lock()
	inst.tickFailures++
	hitLimit := inst.tickFailures >= e.cfg.MaxTickFailures
	e.mu.Unlock()

	if hitLimit {
		metrics.CircuitBreakerTrips.Inc()
		_ = e.Deactivate(context.Background(), inst.moduleID)
	}
}

// DispatchTaskEvent sends event to every active instance's
// on_task_event. Per-instance failures are logged but do not affect
// other instances.
func (e *Executor) DispatchTaskEvent(ctx context.Context, event events.TaskEvent) {
	e.mu.Lock()
	insts := make([]*instance, 0, len(e.instances))
	for _, inst := range e.instances {
		insts = append(insts, inst)
	}
	e.mu.Unlock()

	for _, inst := range insts {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		res, err := inst.worker.Send(callCtx, &worker.Call{Kind: worker.KindCallOnTaskEvent, Event: &event})
		cancel()
		if err != nil {
			e.log.Warn("task event dispatch failed", logger.String("module_id", inst.moduleID), logger.Error(err))
			metrics.TaskEventDispatches.WithLabelValues("failed").Inc()
			if inst.worker.Terminated() {
				_ = e.Deactivate(context.Background(), inst.moduleID)
			}
			continue
		}
		e.applyResult(inst, res)
		metrics.TaskEventDispatches.WithLabelValues("ok").Inc()
	}
}

// UpdateContext mirrors tasks/members to every active worker
// fire-and-forget, and caches them on the executor so a module
// activated after this call still starts with the current context
// (see Activate).
func (e *Executor) UpdateContext(tasks []hostabi.Task, members []hostabi.Member) {
	e.mu.Lock()
	e.tasks = tasks
	e.members = members
	insts := make([]*instance, 0, len(e.instances))
	for _, inst := range e.instances {
		insts = append(insts, inst)
	}
	e.mu.Unlock()

	for _, inst := range insts {
		go func(inst *instance) {
			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CallTimeout)
			defer cancel()
			_, _ = inst.worker.Send(ctx, &worker.Call{Kind: worker.KindUpdateContext, Tasks: tasks, Members: members})
		}(inst)
	}
}

// Deactivate cancels the tick ticker, terminates the worker, and removes
// the instance. Idempotent. It does not flush state itself: dirty state
// is flushed after each tick or dispatch result (see applyResult), so
// state written during init and not followed by such a result is not
// persisted.
func (e *Executor) Deactivate(ctx context.Context, moduleID string) error {
	e.mu.Lock()
	inst, ok := e.instances[moduleID]
	if !ok {
		e.mu.Unlock()
		return nil
	}
	delete(e.instances, moduleID)
	e.mu.Unlock()

	if inst.tickCancel != nil {
		inst.tickCancel()
	}

	termCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	_, _ = inst.worker.Send(termCtx, &worker.Call{Kind: worker.KindTerminate})
	cancel()
	inst.cancelWorker()

	metrics.Deactivations.WithLabelValues("requested").Inc()
	metrics.AgentsActive.Dec()
	return nil
}

// Shutdown deactivates every instance concurrently, aggregating errors
// via errgroup.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	ids := make([]string, 0, len(e.instances))
	for id := range e.instances {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return e.Deactivate(gctx, id)
		})
	}
	return g.Wait()
}

func (e *Executor) applyResult(inst *instance, res *worker.Result) {
	for _, ev := range res.Emitted {
		e.onEvent(ev)
	}
	if res.StateDirty {
		e.flushState(inst, res.StateCache)
	}
}

func (e *Executor) flushState(inst *instance, plaintext []byte) {
	blob, err := state.Encrypt(inst.key, plaintext)
	if err != nil {
		e.log.Warn("flush state: encrypt failed", logger.String("module_id", inst.moduleID), logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CallTimeout)
	defer cancel()
	if err := e.states.Save(ctx, inst.scopeID, inst.moduleID, blob); err != nil {
		e.log.Warn("flush state: save failed", logger.String("module_id", inst.moduleID), logger.Error(err))
	}
}

// loadState reads and decrypts any prior ciphertext for (scopeID,
// moduleID). Absence (statestore.ErrNotFound) and tampering
// (state.ErrTampered) both resolve to "start with no prior state"
// rather than failing activation.
func (e *Executor) loadState(ctx context.Context, scopeID, moduleID string, key state.Key) ([]byte, error) {
	blob, err := e.states.Load(ctx, scopeID, moduleID)
	if err != nil {
		return nil, nil
	}
	pt, err := state.Decrypt(key, blob)
	if err != nil {
		e.log.Warn("prior state failed authentication, activating with no prior state",
			logger.String("module_id", moduleID), logger.Error(err))
		return nil, nil
	}
	return pt, nil
}

// ActiveCount returns the number of currently active instances.
func (e *Executor) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.instances)
}
