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

package engine_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/mutantkin/mutantkin/internal/engine"
	"github.com/mutantkin/mutantkin/internal/engine/workerpool"
	"github.com/mutantkin/mutantkin/internal/mutator"
	"github.com/mutantkin/mutantkin/internal/workdb"
)

// baselineDealerStub mimics a worker that completes the no-op baseline
// mutant with a fixed status, the way a real MutantExecutorDealer would
// after running the test suite against unmutated code.
type baselineDealerStub struct {
	status mutator.Status
}

func (b baselineDealerStub) NewExecutor(mut mutator.Mutator, outCh chan<- mutator.Mutator, wg *sync.WaitGroup) workerpool.Executor {
	return &baselineExecutorStub{mut: mut, outCh: outCh, wg: wg, status: b.status}
}

type baselineExecutorStub struct {
	mut    mutator.Mutator
	outCh  chan<- mutator.Mutator
	wg     *sync.WaitGroup
	status mutator.Status
}

func (e *baselineExecutorStub) Start(_ *workerpool.Worker) {
	e.mut.SetStatus(e.status)
	e.outCh <- e.mut
	e.wg.Done()
}

func newTestWorkDB(t *testing.T) *workdb.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.sqlite")
	db, err := workdb.Open(path, workdb.Create)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestRunBaseline(t *testing.T) {
	t.Run("a green baseline reports Lived and is recorded", func(t *testing.T) {
		db := newTestWorkDB(t)
		dealer := baselineDealerStub{status: mutator.Lived}

		result := engine.RunBaseline(dealer, db)

		if result.Status() != mutator.Lived {
			t.Fatalf("expected Lived, got %s", result.Status())
		}

		items, err := db.WorkItems()
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if len(items) != 1 {
			t.Fatalf("expected exactly one work item, got %d", len(items))
		}

		res, ok, err := db.Result(items[0].JobID)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if !ok {
			t.Fatal("expected a result to be recorded for the baseline job")
		}
		if res.Outcome != workdb.Survived {
			t.Errorf("expected Survived outcome for a green baseline, got %s", res.Outcome)
		}
	})

	t.Run("a failing baseline reports Killed", func(t *testing.T) {
		db := newTestWorkDB(t)
		dealer := baselineDealerStub{status: mutator.Killed}

		result := engine.RunBaseline(dealer, db)

		if result.Status() != mutator.Killed {
			t.Fatalf("expected Killed, got %s", result.Status())
		}
	})

	t.Run("a nil work database is tolerated", func(t *testing.T) {
		dealer := baselineDealerStub{status: mutator.Lived}

		result := engine.RunBaseline(dealer, nil)

		if result.Status() != mutator.Lived {
			t.Fatalf("expected Lived, got %s", result.Status())
		}
	})
}
