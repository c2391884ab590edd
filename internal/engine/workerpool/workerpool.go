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

// Package workerpool implements a fixed-size pool of goroutine workers that
// execute one workerpool.Executor at a time each, used by the engine to run
// mutants concurrently while capping the number of `go test` processes
// spawned at once.
package workerpool

import (
	"runtime"
	"sync"

	"github.com/mutantkin/mutantkin/internal/configuration"
)

// Executor is anything that can be run by a Worker. Mutator execution is the
// only production implementation, but the interface lets tests substitute a
// fake.
type Executor interface {
	Start(w *Worker)
}

// Worker executes Executors pulled off a shared queue until the queue is
// closed.
type Worker struct {
	Name   string
	ID     int
	stopCh chan struct{}
}

// NewWorker creates a Worker with the given id and name. The name is shared
// by every worker in a Pool and used for logging/identification.
func NewWorker(id int, name string) *Worker {
	return &Worker{
		Name: name,
		ID:   id,
	}
}

// Start launches the Worker's goroutine, which pulls Executors off
// executorQueue until it is closed.
func (w *Worker) Start(executorQueue <-chan Executor) {
	w.stopCh = make(chan struct{})
	go func() {
		for {
			executor, ok := <-executorQueue
			if !ok {
				w.stopCh <- struct{}{}

				return
			}
			executor.Start(w)
		}
	}()
}

func (w *Worker) stop() {
	<-w.stopCh
}

// Pool is a fixed-size set of Workers sharing a single job queue.
type Pool struct {
	queue   chan Executor
	name    string
	workers []*Worker
	size    int
}

// Initialize creates a Pool sized from configuration: UnleashWorkersKey
// overrides the worker count; zero means "use all available CPUs", halved
// when UnleashIntegrationMode is set, since integration-mode test binaries
// are themselves multi-process.
func Initialize(name string) *Pool {
	size := configuration.Get[int](configuration.UnleashWorkersKey)
	if size == 0 {
		size = runtime.NumCPU()
		if configuration.Get[bool](configuration.UnleashIntegrationMode) {
			size /= 2
		}
	} else if configuration.Get[bool](configuration.UnleashIntegrationMode) {
		size /= 2
	}

	p := &Pool{
		size: size,
		name: name,
	}
	p.workers = make([]*Worker, 0, size)
	for i := 0; i < size; i++ {
		p.workers = append(p.workers, NewWorker(i, name))
	}
	p.queue = make(chan Executor, 1)

	return p
}

// AppendExecutor enqueues an Executor to be picked up by the next free
// Worker.
func (p *Pool) AppendExecutor(e Executor) {
	p.queue <- e
}

// Start starts every Worker in the Pool.
func (p *Pool) Start() {
	for _, w := range p.workers {
		w.Start(p.queue)
	}
}

// ActiveWorkers returns the number of Workers in the Pool.
func (p *Pool) ActiveWorkers() int {
	return len(p.workers)
}

// Stop closes the job queue and waits for every Worker to drain and exit.
func (p *Pool) Stop() {
	close(p.queue)
	var wg sync.WaitGroup
	for _, worker := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.stop()
		}(worker)
	}
	wg.Wait()
}
