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
	"go/token"
	"sync"

	"github.com/mutantkin/mutantkin/internal/engine/workerpool"
	"github.com/mutantkin/mutantkin/internal/log"
	"github.com/mutantkin/mutantkin/internal/mutator"
	"github.com/mutantkin/mutantkin/internal/workdb"
)

// baselineJobID identifies the no-mutation run in the work database. There
// is only ever one per session.
const baselineJobID = "baseline"

// baselineMutant is a no-op mutator.Mutator: Apply and Rollback do nothing,
// so runTests exercises the unmutated source tree. It is dispatched through
// the same ExecutorDealer as any real mutant, so it picks up the same
// workdir, build tags and timeout handling.
type baselineMutant struct {
	status  mutator.Status
	workdir string
}

func (b *baselineMutant) Type() mutator.Type         { return mutator.ArithmeticBase }
func (b *baselineMutant) SetType(mutator.Type)       {}
func (b *baselineMutant) Status() mutator.Status     { return b.status }
func (b *baselineMutant) SetStatus(s mutator.Status) { b.status = s }
func (b *baselineMutant) Position() token.Position   { return token.Position{Filename: baselineJobID} }
func (b *baselineMutant) Pos() token.Pos             { return token.NoPos }
func (b *baselineMutant) Pkg() string                { return "./..." }
func (b *baselineMutant) SetWorkdir(p string)        { b.workdir = p }
func (b *baselineMutant) Workdir() string            { return b.workdir }
func (b *baselineMutant) Apply() error               { return nil }
func (b *baselineMutant) Rollback() error            { return nil }

// RunBaseline runs the test suite once against unmutated code through
// jDealer, to verify it is green before any mutation is tested. If db is
// non-nil, the run is also recorded as its own WorkItem/WorkResult, so
// a killed process mid-baseline still leaves the session file record of
// what was attempted (spec's "DB contains only baseline result" case).
func RunBaseline(jDealer ExecutorDealer, db *workdb.DB) mutator.Mutator {
	if db != nil {
		item := workdb.WorkItem{
			JobID:        baselineJobID,
			ModulePath:   "./...",
			OperatorName: "baseline",
			Occurrence:   0,
			StartPos:     workdb.Position{Line: 0, Column: 0},
			EndPos:       workdb.Position{Line: 0, Column: 1},
		}
		if err := db.AddWorkItem(item); err != nil {
			log.Errorf("failed to record baseline work item: %s\n", err)
		}
	}

	bm := &baselineMutant{status: mutator.Runnable}

	pool := workerpool.Initialize("baseline")
	pool.Start()

	outCh := make(chan mutator.Mutator, 1)
	wg := &sync.WaitGroup{}
	wg.Add(1)
	pool.AppendExecutor(jDealer.NewExecutor(bm, outCh, wg))

	go func() {
		wg.Wait()
		close(outCh)
	}()

	result := <-outCh
	pool.Stop()

	if db != nil {
		outcome := WorkerOutcomeFromStatus(result.Status())
		if outcome != "" {
			res := workdb.WorkResult{WorkerOutcome: outcome, Outcome: OutcomeFromStatus(result.Status())}
			if err := db.SetResult(baselineJobID, res); err != nil {
				log.Errorf("failed to record baseline work result: %s\n", err)
			}
		}
	}

	return result
}
