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

package coverage

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/tools/cover"

	"github.com/mutantkin/mutantkin/internal/configuration"
	"github.com/mutantkin/mutantkin/internal/gomodule"
	"github.com/mutantkin/mutantkin/internal/log"
)

type execContext = func(name string, args ...string) *exec.Cmd

// Result holds the outcome of a coverage Run: the parsed Profile and how
// long gathering it took, which feeds the Timeout coefficient calculation.
type Result struct {
	Profile Profile
	Elapsed time.Duration
}

// Coverage runs the module's test suite with coverage instrumentation and
// parses the resulting profile.
type Coverage struct {
	cmdContext execContext
	workDir    string
	fileName   string
	mod        gomodule.GoModule
}

// New instantiates a Coverage using exec.Command as execContext, actually
// running commands on the OS.
func New(workDir string, mod gomodule.GoModule) *Coverage {
	return NewWithCmd(exec.Command, workDir, mod)
}

// NewWithCmd instantiates a Coverage given a custom execContext, used by
// tests to avoid spawning real processes.
func NewWithCmd(cmdContext execContext, workDir string, mod gomodule.GoModule) *Coverage {
	return &Coverage{
		cmdContext: cmdContext,
		workDir:    workDir,
		fileName:   "coverage",
		mod:        mod,
	}
}

// Run downloads the module's dependencies, executes `go test` with
// coverage instrumentation and parses the resulting profile into a Result.
func (c Coverage) Run() (Result, error) {
	log.Infoln("Gathering coverage data...")
	start := time.Now()

	if err := c.downloadDeps(); err != nil {
		return Result{}, fmt.Errorf("impossible to download dependencies: %w", err)
	}
	if err := c.execute(); err != nil {
		return Result{}, fmt.Errorf("impossible to execute coverage: %w", err)
	}

	profile, err := c.getProfile()
	if err != nil {
		return Result{}, fmt.Errorf("an error occurred while generating coverage profile: %w", err)
	}

	return Result{Profile: profile, Elapsed: time.Since(start)}, nil
}

func (c Coverage) downloadDeps() error {
	cmd := c.cmdContext("go", "mod", "download")
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

func (c Coverage) getProfile() (Profile, error) {
	cf, err := os.Open(c.filePath())
	if err != nil {
		return nil, err
	}
	defer func() { _ = cf.Close() }()

	return c.parse(cf)
}

func (c Coverage) filePath() string {
	return fmt.Sprintf("%v/%v", c.workDir, c.fileName)
}

func (c Coverage) execute() error {
	args := []string{"test"}
	if tags := configuration.Get[string](configuration.UnleashTagsKey); tags != "" {
		args = append(args, "-tags", tags)
	}
	if coverpkg := configuration.Get[string](configuration.UnleashCoverPkgKey); coverpkg != "" {
		args = append(args, "-coverpkg", coverpkg)
	}
	args = append(args, "-cover", "-coverprofile", c.filePath(), c.testPath())

	cmd := c.cmdContext("go", args...)
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

// testPath returns the package pattern to run coverage on: the whole
// module in integration mode (since integration suites tend to exercise
// packages other than the one under test), otherwise scoped to the
// calling directory.
func (c Coverage) testPath() string {
	if configuration.Get[bool](configuration.UnleashIntegrationMode) {
		return "./..."
	}
	if c.mod.CallingDir == "" || c.mod.CallingDir == "." {
		return "./..."
	}

	return "./" + c.mod.CallingDir + "/..."
}

func (c Coverage) parse(data io.Reader) (Profile, error) {
	profiles, err := cover.ParseProfilesFromReader(data)
	if err != nil {
		return nil, err
	}
	status := make(Profile)
	for _, p := range profiles {
		for _, b := range p.Blocks {
			if b.Count == 0 {
				continue
			}
			block := Block{
				StartLine: b.StartLine,
				StartCol:  b.StartCol,
				EndLine:   b.EndLine,
				EndCol:    b.EndCol,
			}
			fn := c.removeModuleFromPath(p.FileName)
			status[fn] = append(status[fn], block)
		}
	}

	return status, nil
}

func (c Coverage) removeModuleFromPath(path string) string {
	return strings.ReplaceAll(path, c.mod.Name+"/", "")
}
