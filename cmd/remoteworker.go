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
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mutantkin/mutantkin/internal/remoteworker"
)

// newRemoteWorkerCmd builds the hidden subcommand a ssh execution engine
// spawns on the remote host. It reads workdb.ExecutionData frames from
// stdin and writes workdb.WorkResult frames to stdout, one per line, until
// its stdin is closed.
func newRemoteWorkerCmd() *cobra.Command {
	var workDir string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:    "remote-worker -- <test command> [args...]",
		Hidden: true,
		Short:  "Serve the remote-worker protocol over stdin/stdout",
		Args:   cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return remoteworker.Serve(os.Stdin, os.Stdout, remoteworker.Options{
				WorkDir:     workDir,
				TestCommand: args,
				Timeout:     timeout,
			})
		},
	}

	cmd.Flags().StringVar(&workDir, "workdir", ".", "root of the unpacked project copy")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "timeout for a single test run")

	return cmd
}
