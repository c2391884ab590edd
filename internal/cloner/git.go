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

package cloner

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// GitCloner performs a shallow clone of a git repository. It shells out to
// the git binary, the same subprocess idiom the engine's own test-running
// worker uses (internal/engine/executor.go), rather than embedding a
// from-scratch git implementation.
type GitCloner struct {
	RepoURI string
	Timeout time.Duration
}

// NewGitCloner creates a GitCloner targeting repoURI.
func NewGitCloner(repoURI string) *GitCloner {
	return &GitCloner{RepoURI: repoURI, Timeout: 2 * time.Minute}
}

// Clone performs `git clone --depth 1 RepoURI destPath`.
func (g *GitCloner) Clone(destPath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", g.RepoURI, destPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cloner: git clone %s: %w: %s", g.RepoURI, err, out)
	}

	return nil
}

func (g *GitCloner) timeout() time.Duration {
	if g.Timeout <= 0 {
		return 2 * time.Minute
	}

	return g.Timeout
}
