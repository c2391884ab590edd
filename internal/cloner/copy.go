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
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

// CopyCloner recursively copies srcDir to the destination path, skipping
// any relative path matching one of exclude. It is the in-process
// equivalent of engine/workdir.CachedDealer's copy loop, generalised into
// the Cloner interface so the local and ssh ExecutionEngines can share one
// cloning contract.
type CopyCloner struct {
	srcDir  string
	exclude []*regexp.Regexp
}

// NewCopyCloner creates a CopyCloner rooted at srcDir. excludePatterns are
// regular expressions matched against paths relative to srcDir; at minimum
// the session file itself should be listed so a running mutation session
// doesn't copy its own half-written database into every workspace.
func NewCopyCloner(srcDir string, excludePatterns []string) (*CopyCloner, error) {
	exclude := make([]*regexp.Regexp, 0, len(excludePatterns))
	for _, p := range excludePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("cloner: invalid exclude pattern %q: %w", p, err)
		}
		exclude = append(exclude, re)
	}

	return &CopyCloner{srcDir: srcDir, exclude: exclude}, nil
}

// Clone copies every non-excluded file under srcDir into destPath.
func (c *CopyCloner) Clone(destPath string) error {
	if err := os.MkdirAll(destPath, 0o755); err != nil {
		return fmt.Errorf("cloner: mkdir %s: %w", destPath, err)
	}

	return filepath.Walk(c.srcDir, func(srcPath string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(c.srcDir, srcPath)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		if c.isExcluded(relPath) {
			if info.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		return copyPath(srcPath, filepath.Join(destPath, relPath), info)
	})
}

func (c *CopyCloner) isExcluded(relPath string) bool {
	for _, re := range c.exclude {
		if re.MatchString(relPath) {
			return true
		}
	}

	return false
}

func copyPath(srcPath, dstPath string, info fs.FileInfo) error {
	switch mode := info.Mode(); {
	case mode.IsDir():
		if err := os.MkdirAll(dstPath, mode); err != nil {
			return err
		}
	case mode.IsRegular():
		return doCopy(srcPath, dstPath, mode)
	}

	return nil
}

func doCopy(srcPath, dstPath string, fileMode fs.FileMode) error {
	//nolint:gosec // srcPath is internally controlled, not user input
	s, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer s.Close()

	//nolint:gosec // dstPath is internally controlled, not user input
	d, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, fileMode)
	if err != nil {
		return err
	}
	defer d.Close()

	_, err = io.Copy(d, s)

	return err
}
