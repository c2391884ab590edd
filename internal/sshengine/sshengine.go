/*
 * Copyright 2022 The Gremlins Authors
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

// Package sshengine is the remote ExecutionEngine: a pool of sub-workers
// spread across a set of SSH hosts, each sub-worker a context pulled from a
// shared FIFO of `available_contexts`. Host initialisation runs forever,
// reconnecting on a backoff until the engine is closed.
package sshengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mutantkin/mutantkin/internal/log"
	"github.com/mutantkin/mutantkin/internal/workdb"
)

// ErrClosed is returned by Execute once the Engine has been closed and its
// available_contexts pool drained.
var ErrClosed = errors.New("sshengine: engine is closed")

// DefaultBackoff is how long a host's initialiser waits before retrying
// after a connection failure.
const DefaultBackoff = 30 * time.Second

// RemoteRunner is a single sub-worker context on a remote host: a
// workspace-owning worker process, identical in contract to the local
// engine's mutantExecutor, reachable through whatever transport the
// HostDialer that created it established (in production, an SSH session
// running the `remote-worker` subcommand).
type RemoteRunner interface {
	// Host identifies which host this runner belongs to, so the Engine
	// knows which HostDialer to invoke again if this runner's transport is
	// lost.
	Host() string

	// Run executes data (or performs a dry-run baseline check if data is
	// nil) and returns its WorkResult. An error indicates the transport
	// itself failed, not a test failure;
	// transport failures cause the Engine to re-queue the job on a
	// different context.
	Run(ctx context.Context, data *workdb.ExecutionData) (workdb.WorkResult, error)

	// Close releases the runner's resources (SSH channel, local process).
	Close() error
}

// HostDialer establishes as many RemoteRunners on host as its available
// headroom allows, transferring whatever the runners need (e.g. the
// project tarball) exactly once per Dial call.
type HostDialer interface {
	Dial(ctx context.Context, host string) ([]RemoteRunner, error)
}

// Engine is the ssh-based ExecutionEngine.
type Engine struct {
	hosts   []string
	dialer  HostDialer
	backoff time.Duration

	mu        sync.Mutex
	contexts  chan RemoteRunner
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	draining  bool
	closeOnce sync.Once
}

// New creates an Engine that dispatches across hosts using dialer to
// establish RemoteRunners on each.
func New(hosts []string, dialer HostDialer) *Engine {
	return &Engine{
		hosts:   hosts,
		dialer:  dialer,
		backoff: DefaultBackoff,
	}
}

// Init connects to every configured host, queuing whatever RemoteRunners
// each one successfully establishes. A host that fails to connect is
// retried forever, on a backoff, in the background; Init itself never fails
// because of a single host's unavailability.
func (e *Engine) Init(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.contexts = make(chan RemoteRunner, len(e.hosts)*8+1)

	for _, h := range e.hosts {
		host := h
		e.connectHost(host)
	}

	return nil
}

func (e *Engine) connectHost(host string) {
	runners, err := e.dialer.Dial(e.ctx, host)
	if err != nil {
		log.Errorf("sshengine: failed to initialise host %s: %v\n", host, err)
		e.wg.Add(1)
		go e.reconnect(host)

		return
	}
	for _, r := range runners {
		e.contexts <- r
	}
}

func (e *Engine) reconnect(host string) {
	defer e.wg.Done()
	select {
	case <-e.ctx.Done():
		return
	case <-time.After(e.backoff):
	}

	runners, err := e.dialer.Dial(e.ctx, host)
	if err != nil {
		log.Errorf("sshengine: failed to reconnect host %s: %v\n", host, err)
		e.wg.Add(1)
		go e.reconnect(host)

		return
	}
	for _, r := range runners {
		select {
		case e.contexts <- r:
		case <-e.ctx.Done():
			return
		}
	}
}

// Execute pops an available RemoteRunner and runs data on it. A transport
// failure drops that runner, triggers a reconnect of its host, and retries
// the job on the next available runner. Cancellation of ctx, or the Engine
// having been closed, unblocks Execute with an error.
func (e *Engine) Execute(ctx context.Context, data *workdb.ExecutionData) (workdb.WorkResult, error) {
	for {
		select {
		case <-ctx.Done():
			return workdb.WorkResult{}, ctx.Err()
		case runner, ok := <-e.contexts:
			if !ok {
				return workdb.WorkResult{}, ErrClosed
			}

			res, err := runner.Run(ctx, data)
			if err != nil {
				host := runner.Host()
				_ = runner.Close()
				log.Errorf("sshengine: transport failure on host %s, re-queuing job: %v\n", host, err)
				e.wg.Add(1)
				go e.reconnect(host)

				continue
			}

			e.returnRunner(runner)

			return res, nil
		}
	}
}

func (e *Engine) returnRunner(runner RemoteRunner) {
	e.mu.Lock()
	draining := e.draining
	e.mu.Unlock()
	if draining {
		_ = runner.Close()

		return
	}

	select {
	case e.contexts <- runner:
	default:
		go func() {
			select {
			case e.contexts <- runner:
			case <-e.ctx.Done():
				_ = runner.Close()
			}
		}()
	}
}

// NoMoreJobs signals that discovery is complete: subsequently returned
// RemoteRunners are closed rather than recycled, since no further Execute
// calls are coming.
func (e *Engine) NoMoreJobs() {
	e.mu.Lock()
	e.draining = true
	e.mu.Unlock()
}

// Close tears down every RemoteRunner and stops all host reconnect loops.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()

		close(e.contexts)
		for runner := range e.contexts {
			if cerr := runner.Close(); cerr != nil {
				err = fmt.Errorf("sshengine: close runner: %w", cerr)
			}
		}
	})

	return err
}
