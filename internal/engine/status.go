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
	"github.com/mutantkin/mutantkin/internal/mutator"
	"github.com/mutantkin/mutantkin/internal/workdb"
)

// WorkerOutcomeFromStatus maps a mutator.Status onto the WorkerOutcome
// recorded in the work database: how the worker itself terminated, as
// opposed to what the mutation did.
func WorkerOutcomeFromStatus(s mutator.Status) workdb.WorkerOutcome {
	switch s {
	case mutator.Killed, mutator.Lived, mutator.TimedOut:
		return workdb.Normal
	case mutator.NotViable:
		return workdb.Exception
	case mutator.Skipped:
		return workdb.Skipped
	default:
		return ""
	}
}

// OutcomeFromStatus maps a mutator.Status onto the Outcome recorded in the
// work database. It is only meaningful alongside a Normal or Skipped
// WorkerOutcome.
func OutcomeFromStatus(s mutator.Status) workdb.Outcome {
	switch s {
	case mutator.Killed, mutator.TimedOut:
		return workdb.Killed
	case mutator.Lived:
		return workdb.Survived
	case mutator.NotViable:
		return workdb.Incompetent
	default:
		return ""
	}
}
