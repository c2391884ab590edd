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

package remoteworker_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mutantkin/mutantkin/internal/remoteworker"
	"github.com/mutantkin/mutantkin/internal/workdb"
)

func writeFrame(t *testing.T, buf *bytes.Buffer, data workdb.ExecutionData) {
	t.Helper()
	enc := json.NewEncoder(buf)
	if err := enc.Encode(data); err != nil {
		t.Fatal(err)
	}
}

func TestServeAppliesAndRestoresMutation(t *testing.T) {
	workDir := t.TempDir()
	original := "package p\n\nfunc F() int { return 1 + 1 }\n"
	if err := os.WriteFile(filepath.Join(workDir, "f.go"), []byte(original), 0o600); err != nil {
		t.Fatal(err)
	}

	var in bytes.Buffer
	writeFrame(t, &in, workdb.ExecutionData{JobID: "job-1", Filename: "f.go", NewCode: "package p\n\nfunc F() int { return 1 - 1 }\n"})

	var out bytes.Buffer
	opts := remoteworker.Options{
		WorkDir:     workDir,
		TestCommand: []string{"true"},
		Timeout:     5 * time.Second,
	}
	if err := remoteworker.Serve(&in, &out, opts); err != nil {
		t.Fatalf("serve: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(workDir, "f.go"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != original {
		t.Fatalf("file was not restored: got %q", got)
	}

	var result workdb.WorkResult
	if err := json.NewDecoder(&out).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Outcome != workdb.Survived {
		t.Fatalf("expected SURVIVED for a passing `true` command, got %+v", result)
	}
}

func TestServeDryRunSkipsMutation(t *testing.T) {
	workDir := t.TempDir()

	var in bytes.Buffer
	writeFrame(t, &in, workdb.ExecutionData{})

	var out bytes.Buffer
	opts := remoteworker.Options{
		WorkDir:     workDir,
		TestCommand: []string{"false"},
		Timeout:     5 * time.Second,
	}
	if err := remoteworker.Serve(&in, &out, opts); err != nil {
		t.Fatalf("serve: %v", err)
	}

	var result workdb.WorkResult
	if err := json.NewDecoder(&out).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Outcome != workdb.Killed {
		t.Fatalf("expected KILLED for a failing `false` command, got %+v", result)
	}
}

func TestServeFailedRenameIsIncompetent(t *testing.T) {
	workDir := t.TempDir()

	var in bytes.Buffer
	writeFrame(t, &in, workdb.ExecutionData{JobID: "job-1", Filename: "missing.go", NewCode: "package p\n"})

	var out bytes.Buffer
	opts := remoteworker.Options{WorkDir: workDir, TestCommand: []string{"true"}, Timeout: 5 * time.Second}
	if err := remoteworker.Serve(&in, &out, opts); err != nil {
		t.Fatalf("serve: %v", err)
	}

	var result workdb.WorkResult
	if err := json.NewDecoder(&out).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.WorkerOutcome != workdb.Exception || result.Outcome != workdb.Incompetent {
		t.Fatalf("expected EXCEPTION/INCOMPETENT for an unrenameable file, got %+v", result)
	}
}
