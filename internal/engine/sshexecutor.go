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

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/mutantkin/mutantkin/internal/engine/workdir"
	"github.com/mutantkin/mutantkin/internal/engine/workerpool"
	"github.com/mutantkin/mutantkin/internal/gomodule"
	"github.com/mutantkin/mutantkin/internal/log"
	"github.com/mutantkin/mutantkin/internal/mutator"
	"github.com/mutantkin/mutantkin/internal/report"
	"github.com/mutantkin/mutantkin/internal/sshengine"
	"github.com/mutantkin/mutantkin/internal/workdb"
)

// SSHExecutorDealer is an ExecutorDealer that ships each mutation's new
// source to a sshengine.Engine instead of running "go test" in the local
// process pool. It still uses a local workdir.Dealer to materialise the
// mutated source, exactly as MutantExecutorDealer does, but only to read
// the mutated bytes back out -- the test itself always runs on the remote
// host.
type SSHExecutorDealer struct {
	wdDealer  workdir.Dealer
	module    gomodule.GoModule
	sshEngine *sshengine.Engine
	dryRun    bool
}

// NewSSHExecutorDealer initialises a SSHExecutorDealer.
func NewSSHExecutorDealer(mod gomodule.GoModule, wdd workdir.Dealer, sshEngine *sshengine.Engine, dryRun bool) *SSHExecutorDealer {
	return &SSHExecutorDealer{
		wdDealer:  wdd,
		module:    mod,
		sshEngine: sshEngine,
		dryRun:    dryRun,
	}
}

// NewExecutor returns a workerpool.Executor that dispatches mut over ssh.
func (s *SSHExecutorDealer) NewExecutor(mut mutator.Mutator, outCh chan<- mutator.Mutator, wg *sync.WaitGroup) workerpool.Executor {
	return &sshExecutor{
		mutant:    mut,
		outCh:     outCh,
		wg:        wg,
		wdDealer:  s.wdDealer,
		module:    s.module,
		sshEngine: s.sshEngine,
		dryRun:    s.dryRun,
	}
}

type sshExecutor struct {
	mutant    mutator.Mutator
	outCh     chan<- mutator.Mutator
	wg        *sync.WaitGroup
	wdDealer  workdir.Dealer
	module    gomodule.GoModule
	sshEngine *sshengine.Engine
	dryRun    bool
}

// Start mirrors mutantExecutor.Start, but rather than running the test
// command itself, it reads the mutated file back off disk and hands it to
// the ssh engine, which is the one that actually runs the test -- on
// whichever remote sub-worker context is next available.
func (e *sshExecutor) Start(w *workerpool.Worker) {
	defer e.wg.Done()
	workerName := fmt.Sprintf("%s-%d", w.Name, w.ID)
	rootDir, err := e.wdDealer.Get(workerName)
	if err != nil {
		panic("error, this is temporary")
	}

	workingDir := filepath.Join(rootDir, e.module.CallingDir)
	e.mutant.SetWorkdir(workingDir)

	if e.mutant.Status() == mutator.NotCovered || e.mutant.Status() == mutator.Skipped || e.dryRun {
		e.outCh <- e.mutant
		report.Mutant(e.mutant)

		return
	}

	newCode, err := e.mutatedSource()
	if err != nil {
		log.Errorf("failed to prepare mutation at %s - %v\n", e.mutant.Position(), err)

		return
	}

	result, err := e.sshEngine.Execute(context.Background(), &workdb.ExecutionData{
		JobID:    uuid.NewString(),
		Filename: e.mutant.Position().Filename,
		NewCode:  newCode,
	})
	if err != nil {
		log.Errorf("ssh execution failed at %s - %v\n", e.mutant.Position(), err)
		e.mutant.SetStatus(mutator.NotViable)
	} else {
		e.mutant.SetStatus(statusFromResult(result))
	}

	e.outCh <- e.mutant
	report.Mutant(e.mutant)
}

// mutatedSource applies the mutation, reads back the resulting file
// content and rolls the file back, without ever running a test locally.
// This reuses the Mutator's own Apply/Rollback rather than duplicating its
// token-rewriting logic.
func (e *sshExecutor) mutatedSource() (string, error) {
	if err := e.mutant.Apply(); err != nil {
		return "", fmt.Errorf("apply mutation: %w", err)
	}
	defer func() {
		if err := e.mutant.Rollback(); err != nil {
			log.Errorf("failed to restore mutation at %s - %v\n", e.mutant.Position(), err)
		}
	}()

	full := filepath.Join(e.mutant.Workdir(), e.mutant.Position().Filename)
	content, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read mutated file: %w", err)
	}

	return string(content), nil
}

func statusFromResult(r workdb.WorkResult) mutator.Status {
	switch {
	case r.WorkerOutcome == workdb.NoTest:
		return mutator.Runnable
	case r.WorkerOutcome == workdb.Exception || r.Outcome == workdb.Incompetent:
		return mutator.NotViable
	case r.Outcome == workdb.Killed:
		return mutator.Killed
	default:
		return mutator.Lived
	}
}
