//go:build windows

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
	"os/exec"
	"syscall"
)

// setupProcessGroup configures the command to use Windows process groups.
// Note: Windows process group semantics differ from Unix. This is best-effort
// and may not kill all child processes in all scenarios.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags = syscall.CREATE_NEW_PROCESS_GROUP
}

// terminateProcessGroup has no graceful equivalent on Windows: there is no
// SIGTERM to deliver to a process group, so this just escalates straight to
// killProcessGroup rather than leaving the caller's grace period a no-op.
func terminateProcessGroup(cmd *exec.Cmd) error {
	return killProcessGroup(cmd)
}

// killProcessGroup attempts to kill the process on Windows.
// Note: Windows doesn't have Unix-style process groups, so this
// is best-effort and may not kill all child processes. Future
// enhancement could use Windows job objects for better process tree control.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
