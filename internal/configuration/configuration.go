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

package configuration

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/mutantkin/mutantkin/internal/mutator"
)

// This is the list of the keys available in config files and as flags.
const (
	GremlinsSilentKey            = "silent"
	UnleashDryRunKey             = "loose.dry-run"
	UnleashOutputKey             = "loose.output"
	UnleashTagsKey               = "loose.tags"
	UnleashCoverPkgKey           = "loose.coverpkg"
	UnleashWorkersKey            = "loose.workers"
	UnleashTestCPUKey            = "loose.test-cpu"
	UnleashTimeoutCoefficientKey = "loose.timeout-coefficient"
	UnleashIntegrationMode       = "loose.integration"
	UnleashThresholdEfficacyKey  = "loose.threshold.efficacy"
	UnleashThresholdMCoverageKey = "loose.threshold.mutant-coverage"
	// UnleashExcludeFiles lists regular expressions matched against
	// file paths to exclude them from discovery.
	UnleashExcludeFiles = "loose.exclude-files"
	// UnleashOutputStatusesKey selects which mutant statuses are logged
	// to the terminal, as a string of 'lctkvsr' characters.
	UnleashOutputStatusesKey = "loose.output-statuses"
	// UnleashDiffRef holds the git ref to diff against when restricting
	// mutation to changed lines.
	UnleashDiffRef = "loose.diff"
	// ExecutionEngineTypeKey selects between the "local" and "ssh"
	// ExecutionEngine implementations.
	ExecutionEngineTypeKey = "execution-engine.type"
	// SSHHostsKey lists the "user@host:port" targets the ssh execution
	// engine dispatches jobs to.
	SSHHostsKey = "execution-engine.ssh.hosts"
	// SSHKeyFileKey is the path to the private key used to authenticate
	// to the remote hosts.
	SSHKeyFileKey = "execution-engine.ssh.key-file"
	// SSHMaxLoadFactorKey bounds how many sub-workers the ssh engine
	// spawns on a remote host, as a multiple of that host's CPU count.
	SSHMaxLoadFactorKey = "execution-engine.ssh.max-load-factor"
	// CloningMethodKey names a workspace cloner: "copy", "git" or "tar".
	// No code in this module reads it.
	CloningMethodKey = "cloning.method"
	// CloningRepositoryURLKey names a git remote to clone from. No code in
	// this module reads it.
	CloningRepositoryURLKey = "cloning.repository-url"
	// SessionFileKey is the path to the SQLite work database that records
	// every discovered mutation and its result.
	SessionFileKey = "session-file"
	// SSHRemoteDirKey is the directory a remote host unpacks its project
	// tarball into and runs sub-workers from.
	SSHRemoteDirKey = "execution-engine.ssh.remote-dir"
	// SSHRemoteBinaryKey is the path to the mutantkin binary on the remote
	// host, invoked as "<binary> remote-worker".
	SSHRemoteBinaryKey = "execution-engine.ssh.remote-binary"
	// RunWithNoMutationKey gates whether a baseline (no-mutation) test run
	// is dispatched before discovery begins. A baseline that doesn't come
	// back green means the run is aborted before any mutant is tested.
	RunWithNoMutationKey = "execution-engine.run-with-no-mutation"
)

const (
	mutantkinCfgName      = ".mutantkin"
	mutantkinEnvVarPrefix = "MUTANTKIN"

	xdgConfigHomeKey = "XDG_CONFIG_HOME"

	windowsOs = "windows"
)

// Init initializes the viper configuration for Mutantkin.
//
// It sets the configuration file name as .mutantkin.yaml, adds the passed paths as ConfigPaths
// AutomaticEnv configuration having MUTANTKIN as prefix.
// The environment variables take precedence over the configuration file and must be set in the
// format below, with every dot and dash of the configuration key replaced by an underscore:
//
//	MUTANTKIN_<CONFIGURATION KEY>
func Init(cPaths []string) error {
	replacer := strings.NewReplacer(".", "_", "-", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.SetEnvPrefix(mutantkinEnvVarPrefix)
	viper.AutomaticEnv()
	viper.SetConfigName(mutantkinCfgName)
	viper.SetConfigType("yaml")

	if isSpecificFile(cPaths) {
		viper.SetConfigFile(cPaths[0])
		err := viper.ReadInConfig()
		if err != nil {
			return err
		}
	} else if arePathsNotSet(cPaths) {
		cPaths = defaultConfigPaths()
	}

	for _, p := range cPaths {
		viper.AddConfigPath(p)
	}

	_ = viper.ReadInConfig() // ignoring error if file not present

	return nil
}

// MutantTypeEnabledKey returns the configuration key for a mutant.
// The generated key will have the format 'mutants.mutant-name.enabled",
// which corresponds to the Yaml:
//
//		mutants:
//	 		mutant-name:
//	 			enabled: [bool]
func MutantTypeEnabledKey(mt mutator.Type) string {
	m := mt.String()
	m = strings.ReplaceAll(m, "_", "-")
	m = strings.ToLower(m)

	return fmt.Sprintf("mutants.%s.enabled", m)
}

func isSpecificFile(cPaths []string) bool {
	return len(cPaths) == 1 && filepath.Ext(cPaths[0]) != ""
}

func arePathsNotSet(cPaths []string) bool {
	return len(cPaths) == 0 || len(cPaths) == 1 && cPaths[0] == ""
}

func defaultConfigPaths() []string {
	result := make([]string, 0, 4)

	// First global config
	if runtime.GOOS != windowsOs {
		result = append(result, "/etc/mutantkin")
	}

	// Then $XDG_CONFIG_HOME
	xchLocation, _ := homedir.Expand("~/.config")
	if x := os.Getenv(xdgConfigHomeKey); x != "" {
		xchLocation = x
	}
	xchLocation = filepath.Join(xchLocation, "mutantkin", "mutantkin")
	result = append(result, xchLocation)

	// Then $HOME
	homeLocation, err := homedir.Expand("~/.mutantkin")
	if err != nil {
		return result
	}
	result = append(result, homeLocation)

	// Then the Go module root
	if root := findModuleRoot(); root != "" {
		result = append(result, root)
	}

	// Finally the current directory
	result = append(result, ".")

	return result
}

func findModuleRoot() string {
	// This function is duplicated from internal/gomodule. We should find a way
	// to use here gomodule. The problem is the point of initialization, because
	// configuration is initialised before gomodule.
	path, _ := os.Getwd()
	for {
		if fi, err := os.Stat(filepath.Join(path, "go.mod")); err == nil && !fi.IsDir() {
			return path
		}
		d := filepath.Dir(path)
		if d == path {
			break
		}
		path = d
	}

	return ""
}

var mutex sync.RWMutex

// Set offers synchronised access to Viper.
func Set[T any](k string, v T) {
	mutex.Lock()
	defer mutex.Unlock()
	viper.Set(k, v)
}

// Get offers synchronised access to Viper.
func Get[T any](k string) T {
	var r T
	mutex.RLock()
	defer mutex.RUnlock()
	r, _ = viper.Get(k).(T)

	return r
}

// Reset is used mainly for testing purposes, in order to clean up the Viper
// instance.
func Reset() {
	mutex.Lock()
	defer mutex.Unlock()
	viper.Reset()
}
