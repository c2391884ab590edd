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

// Package cloner creates the isolated working copy of a project that a
// Worker steps into before it mutates a file and runs the test command. It
// offers copy, git and tarball clone methods behind a single Cloner
// interface. The local engine does not use it (it keeps its own
// engine/workdir.Dealer), and the ssh engine only uses PrepareTarball.
package cloner

// Cloner creates a copy of the project under test at destPath. Copy vs VCS
// vs tarball is a choice of transport only; the contract is the same.
type Cloner interface {
	// Clone populates destPath with a full copy of the project. destPath
	// must already exist or be creatable by the Cloner.
	Clone(destPath string) error
}
