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

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mutantkin/mutantkin/cmd/internal/flags"
	"github.com/mutantkin/mutantkin/internal/cloner"
	"github.com/mutantkin/mutantkin/internal/configuration"
	"github.com/mutantkin/mutantkin/internal/coverage"
	"github.com/mutantkin/mutantkin/internal/diff"
	"github.com/mutantkin/mutantkin/internal/engine"
	"github.com/mutantkin/mutantkin/internal/engine/workdir"
	"github.com/mutantkin/mutantkin/internal/exclusion"
	"github.com/mutantkin/mutantkin/internal/execution"
	"github.com/mutantkin/mutantkin/internal/gomodule"
	"github.com/mutantkin/mutantkin/internal/interceptor"
	"github.com/mutantkin/mutantkin/internal/log"
	"github.com/mutantkin/mutantkin/internal/mutator"
	"github.com/mutantkin/mutantkin/internal/report"
	"github.com/mutantkin/mutantkin/internal/sshengine"
	"github.com/mutantkin/mutantkin/internal/workdb"
)

type unleashCmd struct {
	cmd *cobra.Command
}

const (
	commandName = "unleash"

	paramBuildTags          = "tags"
	paramDryRun             = "dry-run"
	paramOutput             = "output"
	paramIntegrationMode    = "integration"
	paramTestCPU            = "test-cpu"
	paramWorkers            = "workers"
	paramTimeoutCoefficient = "timeout-coefficient"
	paramExcludeFiles       = "exclude-files"
	paramOutputStatuses     = "output-statuses"
	paramDiff               = "diff"
	paramRunWithNoMutation  = "run-with-no-mutation"

	// Thresholds.
	paramThresholdEfficacy  = "threshold-efficacy"
	paramThresholdMCoverage = "threshold-mcover"

	engineTypeSSH = "ssh"
)

func newUnleashCmd(ctx context.Context) (*unleashCmd, error) {
	cmd := &cobra.Command{
		Use:     fmt.Sprintf("%s [path]", commandName),
		Aliases: []string{"run", "r"},
		Args:    cobra.MaximumNArgs(1),
		Short:   "Unleash the gremlins",
		Long:    longExplainer(),
		RunE:    runUnleash(ctx),
	}

	if err := setFlagsOnCmd(cmd); err != nil {
		return nil, err
	}

	return &unleashCmd{cmd: cmd}, nil
}

func longExplainer() string {
	return heredoc.Doc(`
		Unleashes the gremlins and performs mutation testing on a Go module. It works by
		first gathering the coverage of the test suite and then analysing the source
		code to look for supported mutants.

		Unleash only tests covered mutants, since it doesn't make sense to test mutants
		that no test case is able to catch.

		In 'dry-run' mode, unleash only performs the analysis of the source code, but it
		doesn't actually perform the test.

		Thresholds are configurable quality gates that make gremlins exit with an error
		if those values are not met. Efficacy is the percent of KILLED mutants over
		the total KILLED and LIVED mutants. Mutant coverage is the percent of total
		KILLED + LIVED mutants, over the total mutants.

		A 'diff' ref restricts mutation testing to the lines changed since that ref, and
		an 'execution-engine.type' of "ssh" dispatches test runs to remote hosts instead
		of the local machine.
	`)
}

func runUnleash(ctx context.Context) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		log.Infoln("Starting...")

		path, origWd, err := changePath(args, os.Chdir, os.Getwd)
		if err != nil {
			return fmt.Errorf("impossible to change to the given path: %w", err)
		}
		defer func() { _ = os.Chdir(origWd) }()

		mod, err := gomodule.Init(path)
		if err != nil {
			return fmt.Errorf("not in a Go module: %w", err)
		}

		workDir, err := os.MkdirTemp(os.TempDir(), "mutantkin-")
		if err != nil {
			return fmt.Errorf("impossible to create the workdir: %w", err)
		}
		defer cleanUp(workDir)

		wg := &sync.WaitGroup{}
		wg.Add(1)
		cancelled := false
		var results report.Results
		go runWithCancel(ctx, wg, func(c context.Context) {
			results, err = run(c, mod, workDir)
		}, func() {
			cancelled = true
		})
		wg.Wait()
		if err != nil {
			return err
		}
		if cancelled {
			return nil
		}

		return report.Do(results)
	}
}

// changePath moves the process into the directory named by args[0], if any,
// and returns "." as the path to operate on from there, so every path
// Mutantkin subsequently produces -- in reports, in the work database -- is
// relative to the project root rather than to wherever the command was
// invoked from. It also returns the original working directory, so the
// caller can restore it once done.
func changePath(args []string, chdir func(string) error, getwd func() (string, error)) (path, origWd string, err error) {
	origWd, err = getwd()
	if err != nil {
		return "", "", err
	}
	if len(args) == 0 {
		return ".", origWd, nil
	}
	if err := chdir(args[0]); err != nil {
		return "", "", err
	}

	return ".", origWd, nil
}

func runWithCancel(ctx context.Context, wg *sync.WaitGroup, runner func(c context.Context), onCancel func()) {
	c, cancel := context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		log.Infof("\nShutting down gracefully...\n")
		cancel()
		onCancel()
	}()
	runner(c)
	wg.Done()
}

func cleanUp(wd string) {
	if err := os.RemoveAll(wd); err != nil {
		log.Errorf("impossible to remove temporary folder: %s\n\t%s", err, wd)
	}
}

func run(ctx context.Context, mod gomodule.GoModule, workDir string) (report.Results, error) {
	c := coverage.New(workDir, mod)

	cProfile, err := c.Run()
	if err != nil {
		return report.Results{}, fmt.Errorf("failed to gather coverage: %w", err)
	}

	changes, err := diff.New()
	if err != nil {
		return report.Results{}, fmt.Errorf("failed to gather diff: %w", err)
	}

	excl, err := exclusion.New()
	if err != nil {
		return report.Results{}, fmt.Errorf("failed to parse exclusion rules: %w", err)
	}

	wdDealer := workdir.NewCachedDealer(workDir, mod.Root)
	defer wdDealer.Clean()

	jDealer, cleanup, err := newExecutorDealer(ctx, mod, wdDealer, cProfile.Elapsed)
	if err != nil {
		return report.Results{}, err
	}
	defer cleanup()

	db, err := openSession()
	if err != nil {
		return report.Results{}, fmt.Errorf("failed to open the work database: %w", err)
	}
	if db != nil {
		defer db.Close()
	}

	if configuration.Get[bool](configuration.RunWithNoMutationKey) {
		baseline := engine.RunBaseline(jDealer, db)
		if baseline.Status() != mutator.Lived {
			return report.Results{}, execution.NewExitErr(execution.BaselineFailed)
		}
	}

	codeData := engine.CodeData{Cov: cProfile.Profile, Diff: changes, Exclusion: excl}

	opts := []engine.Option{engine.WithInterceptors(mutationInterceptors())}
	if db != nil {
		opts = append(opts, engine.WithWorkDB(db))
	}

	mut := engine.New(mod, codeData, jDealer, opts...)
	results := mut.Run(ctx)

	return results, nil
}

// openSession opens the session-file work database for a fresh run, when
// one is configured. A session file that already exists on disk is assumed
// to be a resumed, crashed run and is opened without clearing, so Engine's
// preloadExisting can skip the work it already recorded; one that doesn't
// exist yet is created fresh. No configured session-file disables the work
// database entirely, returning a nil *workdb.DB.
func openSession() (*workdb.DB, error) {
	path := configuration.Get[string](configuration.SessionFileKey)
	if path == "" {
		return nil, nil
	}

	mode := workdb.OpenExisting
	if _, err := os.Stat(path); err != nil {
		mode = workdb.Create
	}

	return workdb.Open(path, mode)
}

// mutationInterceptors builds the chain consulted at every discovery step:
// pragma comments let a line opt out of specific operators (or all of
// them), and annotations keep mutation out of type declarations, where a
// token swap can never produce compilable code.
func mutationInterceptors() interceptor.Chain {
	return interceptor.Chain{
		interceptor.NewPragmaInterceptor(),
		interceptor.NewAnnotationInterceptor(),
	}
}

// newExecutorDealer picks the local or the ssh ExecutionEngine based on
// configuration.ExecutionEngineTypeKey, and returns a cleanup func that
// tears down whatever it started.
func newExecutorDealer(ctx context.Context, mod gomodule.GoModule, wdDealer workdir.Dealer, elapsed time.Duration) (engine.ExecutorDealer, func(), error) {
	if configuration.Get[string](configuration.ExecutionEngineTypeKey) != engineTypeSSH {
		return engine.NewExecutorDealer(mod, wdDealer, elapsed), func() {}, nil
	}

	return newSSHExecutorDealer(ctx, mod, wdDealer)
}

func newSSHExecutorDealer(ctx context.Context, mod gomodule.GoModule, wdDealer workdir.Dealer) (engine.ExecutorDealer, func(), error) {
	hosts := configuration.Get[[]string](configuration.SSHHostsKey)
	if len(hosts) == 0 {
		return nil, nil, fmt.Errorf("execution-engine.type is %q but no execution-engine.ssh.hosts are configured", engineTypeSSH)
	}

	tarball, err := cloner.PrepareTarball(mod.Root, configuration.Get[[]string](configuration.UnleashExcludeFiles))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to prepare the project tarball: %w", err)
	}

	remoteDir := configuration.Get[string](configuration.SSHRemoteDirKey)
	if remoteDir == "" {
		remoteDir = "mutantkin-remote"
	}

	dialer := &sshengine.SSHDialer{
		KeyFile:       configuration.Get[string](configuration.SSHKeyFileKey),
		Tarball:       tarball,
		RemoteDir:     remoteDir,
		MaxLoadFactor: configuration.Get[float64](configuration.SSHMaxLoadFactorKey),
		RemoteBinary:  configuration.Get[string](configuration.SSHRemoteBinaryKey),
	}

	sshEng := sshengine.New(hosts, dialer)
	if err := sshEng.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to initialise the ssh execution engine: %w", err)
	}

	dryRun := configuration.Get[bool](configuration.UnleashDryRunKey)
	jDealer := engine.NewSSHExecutorDealer(mod, wdDealer, sshEng, dryRun)

	return jDealer, func() {
		sshEng.NoMoreJobs()
		_ = sshEng.Close()
	}, nil
}

func setFlagsOnCmd(cmd *cobra.Command) error {
	cmd.Flags().SortFlags = false
	cmd.Flags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		from := []string{".", "_"}
		to := "-"
		for _, sep := range from {
			name = strings.ReplaceAll(name, sep, to)
		}

		return pflag.NormalizedName(name)
	})

	fls := []*flags.Flag{
		{Name: paramDryRun, CfgKey: configuration.UnleashDryRunKey, Shorthand: "d", DefaultV: false, Usage: "find mutations but do not executes tests"},
		{Name: paramBuildTags, CfgKey: configuration.UnleashTagsKey, Shorthand: "t", DefaultV: "", Usage: "a comma-separated list of build tags"},
		{Name: paramOutput, CfgKey: configuration.UnleashOutputKey, Shorthand: "o", DefaultV: "", Usage: "set the output file for machine readable results"},
		{Name: paramIntegrationMode, CfgKey: configuration.UnleashIntegrationMode, Shorthand: "i", DefaultV: false, Usage: "makes Gremlins run the complete test suite for each mutation"},
		{Name: paramThresholdEfficacy, CfgKey: configuration.UnleashThresholdEfficacyKey, DefaultV: float64(0), Usage: "threshold for code-efficacy percent"},
		{Name: paramThresholdMCoverage, CfgKey: configuration.UnleashThresholdMCoverageKey, DefaultV: float64(0), Usage: "threshold for mutant-coverage percent"},
		{Name: paramWorkers, CfgKey: configuration.UnleashWorkersKey, DefaultV: 0, Usage: "the number of workers to use in mutation testing"},
		{Name: paramTestCPU, CfgKey: configuration.UnleashTestCPUKey, DefaultV: 0, Usage: "the number of CPUs to allow each test run to use"},
		{Name: paramTimeoutCoefficient, CfgKey: configuration.UnleashTimeoutCoefficientKey, DefaultV: 0, Usage: "the coefficient by which the timeout is increased"},
		{Name: paramExcludeFiles, CfgKey: configuration.UnleashExcludeFiles, DefaultV: []string{}, Usage: "a regular expression matching file paths to exclude from discovery"},
		{Name: paramOutputStatuses, CfgKey: configuration.UnleashOutputStatusesKey, DefaultV: "", Usage: "restrict terminal logging to these mutant statuses ('lctkvsr')"},
		{Name: paramDiff, CfgKey: configuration.UnleashDiffRef, DefaultV: "", Usage: "restrict mutation testing to the lines changed since this git ref"},
		{Name: paramRunWithNoMutation, CfgKey: configuration.RunWithNoMutationKey, DefaultV: true, Usage: "run the test suite once with no mutation applied before mutation testing, and abort if it doesn't pass"},
	}

	for _, f := range fls {
		err := flags.Set(cmd, f)
		if err != nil {
			return err
		}
	}

	return setMutantTypeFlags(cmd)
}

func setMutantTypeFlags(cmd *cobra.Command) error {
	for _, mt := range mutator.Types {
		name := mt.String()
		usage := fmt.Sprintf("enable %q mutants", name)
		param := strings.ReplaceAll(name, "_", "-")
		param = strings.ToLower(param)
		confKey := configuration.MutantTypeEnabledKey(mt)

		err := flags.Set(cmd, &flags.Flag{
			Name:     param,
			CfgKey:   confKey,
			DefaultV: configuration.IsDefaultEnabled(mt),
			Usage:    usage,
		})
		if err != nil {
			return err
		}
	}

	return nil
}
