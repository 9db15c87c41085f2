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

// Package worker runs one instantiated module on its own goroutine and
// exposes it through a request/response channel protocol keyed by a
// monotonic correlation id, grounded on the project's
// pkg/agent/transport/websocket client: a pendingResponses map guarded
// by a mutex, one channel per in-flight call, a reader loop that demuxes
// results back to the right caller.
//
// Go has no portable "kill this goroutine" primitive, so preemption is
// implemented the way a wazero-backed engine with epoch/interrupt
// support allows: each call runs under a context with a
// deadline, and the worker's wazero runtime is built with
// WithCloseOnContextDone(true) so an expired deadline aborts in-flight
// guest execution; the main thread's timeout and the guest's abort fire
// from the same context.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/sage-x-project/agenthost/pkg/events"
	"github.com/sage-x-project/agenthost/pkg/hostabi"
	"github.com/sage-x-project/agenthost/pkg/manifest"
)

// Kind names the operation a Call performs.
type Kind int

const (
	KindInstantiate Kind = iota
	KindCallInit
	KindCallOnTick
	KindCallOnTaskEvent
	KindUpdateContext
	KindTerminate
)

// Errors surfaced to the executor.
var (
	ErrCallTimeout   = errors.New("worker: call timed out")
	ErrTerminated    = errors.New("worker: already terminated")
	ErrHashMismatch  = errors.New("worker: bytes do not match manifest content hash")
	ErrNotLive       = errors.New("worker: not instantiated")
)

// Call is one request sent to a worker's run loop.
type Call struct {
	id   uint64
	Kind Kind

	// KindInstantiate fields.
	Bytes      []byte
	Manifest   *manifest.AgentManifest
	PriorState []byte
	Tasks      []hostabi.Task
	Members    []hostabi.Member
	Now        func() int64

	// KindCallOnTaskEvent field.
	Event *events.TaskEvent

	// KindUpdateContext fields reuse Tasks/Members above.
}

// Result is the response to a Call.
type Result struct {
	id  uint64
	Err error

	Emitted    []events.TaskEvent
	StateCache []byte
	StateDirty bool
}

// Worker owns at most one instantiated module at a time and runs its
// run loop on a dedicated goroutine.
type Worker struct {
	ModuleID string

	toWorker   chan *Call
	fromWorker chan *Result

	pendingMu sync.Mutex
	pending   map[uint64]chan *Result
	nextID    uint64

	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	guest    api.Module
	host     api.Module
	state    *hostabi.CallState

	terminated atomic.Bool
	live       atomic.Bool
}

// New creates a Worker for moduleID. Call Run in its own goroutine
// before sending it requests.
func New(moduleID string) *Worker {
	return &Worker{
		ModuleID:   moduleID,
		toWorker:   make(chan *Call, 1),
		fromWorker: make(chan *Result, 1),
		pending:    make(map[uint64]chan *Result),
	}
}

// Run is the worker's goroutine body: it processes one Call at a time
// until it sees KindTerminate or the terminated flag is set.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.fromWorker)
	for {
		select {
		case <-ctx.Done():
			w.terminate()
			return
		case call, ok := <-w.toWorker:
			if !ok {
				return
			}
			res := w.handle(ctx, call)
			res.id = call.id
			w.fromWorker <- res
			if call.Kind == KindTerminate || w.terminated.Load() {
				return
			}
		}
	}
}

// Demux must run in its own goroutine alongside Run; it delivers each
// Result to the pending channel registered by Send.
func (w *Worker) Demux() {
	for res := range w.fromWorker {
		w.pendingMu.Lock()
		ch, ok := w.pending[res.id]
		delete(w.pending, res.id)
		w.pendingMu.Unlock()
		if ok {
			ch <- res
		}
	}
}

// Send submits call under ctx (whose deadline, if any, both bounds the
// wait here and the in-flight guest execution) and waits for its
// matching Result.
func (w *Worker) Send(ctx context.Context, call *Call) (*Result, error) {
	if w.terminated.Load() {
		return nil, ErrTerminated
	}

	id := atomic.AddUint64(&w.nextID, 1)
	call.id = id

	respCh := make(chan *Result, 1)
	w.pendingMu.Lock()
	w.pending[id] = respCh
	w.pendingMu.Unlock()
	defer func() {
		w.pendingMu.Lock()
		delete(w.pending, id)
		w.pendingMu.Unlock()
	}()

	select {
	case w.toWorker <- call:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-respCh:
		return res, res.Err
	case <-ctx.Done():
		w.terminate()
		return nil, ErrCallTimeout
	}
}

func (w *Worker) handle(ctx context.Context, call *Call) *Result {
	switch call.Kind {
	case KindInstantiate:
		return w.instantiate(ctx, call)
	case KindCallInit:
		return w.invoke(ctx, "init")
	case KindCallOnTick:
		return w.invoke(ctx, "on_tick")
	case KindCallOnTaskEvent:
		if call.Event != nil {
			if err := w.state.SetPendingEvent(*call.Event); err != nil {
				return &Result{Err: fmt.Errorf("set pending event: %w", err)}
			}
		}
		return w.invoke(ctx, "on_task_event")
	case KindUpdateContext:
		if w.state == nil {
			return &Result{Err: ErrNotLive}
		}
		w.state.Tasks = call.Tasks
		w.state.Members = call.Members
		return &Result{}
	case KindTerminate:
		w.terminate()
		return &Result{}
	default:
		return &Result{Err: fmt.Errorf("worker: unknown call kind %d", call.Kind)}
	}
}

// instantiate re-verifies the bytes' hash (defence against a
// TOCTOU window between the catalog read and this instantiation),
// builds the host module, compiles and instantiates the guest, and
// transitions Empty -> Live.
func (w *Worker) instantiate(ctx context.Context, call *Call) *Result {
	sum := sha256.Sum256(call.Bytes)
	if hex.EncodeToString(sum[:]) != call.Manifest.ContentHash {
		return &Result{Err: ErrHashMismatch}
	}

	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	w.runtime = wazero.NewRuntimeWithConfig(ctx, cfg)

	w.state = hostabi.NewCallState(w.ModuleID, call.Manifest.Permissions, call.Tasks, call.Members, call.PriorState, call.Now)

	host, err := hostabi.Build(ctx, w.runtime, w.state)
	if err != nil {
		w.runtime.Close(ctx)
		return &Result{Err: fmt.Errorf("build host module: %w", err)}
	}
	w.host = host

	compiled, err := w.runtime.CompileModule(ctx, call.Bytes)
	if err != nil {
		w.runtime.Close(ctx)
		return &Result{Err: fmt.Errorf("compile module: %w", err)}
	}
	w.compiled = compiled

	guest, err := w.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		w.runtime.Close(ctx)
		return &Result{Err: fmt.Errorf("instantiate module: %w", err)}
	}
	w.guest = guest
	w.live.Store(true)

	return &Result{}
}

func (w *Worker) invoke(ctx context.Context, export string) *Result {
	if !w.live.Load() {
		return &Result{Err: ErrNotLive}
	}

	w.state.ResetPerCall()
	fn := w.guest.ExportedFunction(export)
	if fn == nil {
		return &Result{Err: fmt.Errorf("worker: guest has no export %q", export)}
	}

	if _, err := fn.Call(ctx); err != nil {
		return &Result{Err: fmt.Errorf("call %s: %w", export, err)}
	}

	return &Result{
		Emitted:    w.state.Emitted,
		StateCache: w.state.StateCache,
		StateDirty: w.state.StateDirty,
	}
}

// terminate tears the runtime down. Safe to call more than once or
// concurrently with an in-flight call -- Close aborts it.
func (w *Worker) terminate() {
	if w.terminated.Swap(true) {
		return
	}
	w.live.Store(false)
	if w.runtime != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		w.runtime.Close(closeCtx)
	}
}

// Terminated reports whether the worker has torn down its runtime.
func (w *Worker) Terminated() bool { return w.terminated.Load() }
