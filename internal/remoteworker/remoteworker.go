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

// Package remoteworker implements the `mutantkin remote-worker` hidden
// subcommand a sshengine host spawns: it reads ExecutionData frames from
// stdin, applies each mutation to an isolated working directory, runs the
// test command bounded by Options.Timeout (the process is killed outright
// when it expires; there is no SIGTERM grace period as in the local
// engine), and writes WorkResult frames to stdout. This is the Go analogue of
// cosmic-ray's worker.py top-level protocol loop.
package remoteworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/mutantkin/mutantkin/internal/workdb"
)

// Options configures the test-execution side of the protocol loop.
type Options struct {
	// WorkDir is the root of the already-unpacked project copy.
	WorkDir string
	// TestCommand is argv for the test command, e.g. []string{"go", "test", "./..."}.
	TestCommand []string
	// Timeout bounds a single test run; exceeding it is classified as KILLED
	// with a synthetic timeout marker.
	Timeout time.Duration
}

// Serve reads ExecutionData frames from r until EOF, executes each one
// (applying the mutation, if any, to Options.WorkDir), and writes the
// resulting WorkResult to w as newline-delimited JSON.
func Serve(r io.Reader, w io.Writer, opts Options) error {
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)

	for {
		var data workdb.ExecutionData
		err := dec.Decode(&data)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("remoteworker: decode execution data: %w", err)
		}

		var dataPtr *workdb.ExecutionData
		if data.JobID != "" {
			dataPtr = &data
		}

		result := execute(opts, dataPtr)
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("remoteworker: encode work result: %w", err)
		}
	}
}

// execute runs one job: swap the mutated file in (unless data is nil, a
// dry-run), run the test command, classify the outcome, and restore the
// original file on every exit path.
func execute(opts Options, data *workdb.ExecutionData) workdb.WorkResult {
	if data != nil {
		restore, err := applyMutation(opts.WorkDir, data.Filename, data.NewCode)
		if err != nil {
			return workdb.WorkResult{
				WorkerOutcome: workdb.Exception,
				Outcome:       workdb.Incompetent,
				Output:        err.Error(),
			}
		}
		defer restore()
	}

	return runTests(opts)
}

// applyMutation atomically renames filename to filename.TMP and writes
// newCode in its place, returning a restore func that undoes this on every
// call -- the file-restore step must run on every exit path, or a worker
// leaves a mutated file on disk, which is a correctness bug.
func applyMutation(workDir, filename, newCode string) (func(), error) {
	full := filepath.Join(workDir, filename)
	tmp := full + ".TMP"

	if err := os.Rename(full, tmp); err != nil {
		return nil, fmt.Errorf("rename %s: %w", full, err)
	}
	if err := os.WriteFile(full, []byte(newCode), 0o600); err != nil {
		_ = os.Rename(tmp, full)

		return nil, fmt.Errorf("write mutated %s: %w", full, err)
	}

	restored := false

	return func() {
		if restored {
			return
		}
		restored = true
		_ = os.Remove(full)
		_ = os.Rename(tmp, full)
	}, nil
}

func runTests(opts Options) workdb.WorkResult {
	if len(opts.TestCommand) == 0 {
		return workdb.WorkResult{WorkerOutcome: workdb.NoTest, Output: "remoteworker: no test command configured"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	//nolint:gosec // TestCommand is operator-provided configuration, not external input
	cmd := exec.CommandContext(ctx, opts.TestCommand[0], opts.TestCommand[1:]...)
	cmd.Dir = opts.WorkDir

	output, runErr := cmd.CombinedOutput()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return workdb.WorkResult{
			WorkerOutcome: workdb.Normal,
			Outcome:       workdb.Killed,
			Output:        string(output) + "\n[remoteworker] timeout exceeded",
		}
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return workdb.WorkResult{
			WorkerOutcome: workdb.Normal,
			Outcome:       workdb.Killed,
			Output:        string(output),
		}
	}
	if runErr != nil {
		return workdb.WorkResult{
			WorkerOutcome: workdb.Exception,
			Outcome:       workdb.Incompetent,
			Output:        runErr.Error(),
		}
	}

	return workdb.WorkResult{
		WorkerOutcome: workdb.Normal,
		Outcome:       workdb.Survived,
		Output:        string(output),
	}
}
