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

// Package interceptor provides mid-pipeline filters for the discovery
// walker: a way to veto mutation sites before a work item is created, or to
// pre-mark one as Skipped, without modifying the operators themselves.
package interceptor

import (
	"go/ast"

	"github.com/mutantkin/mutantkin/internal/workdb"
)

// Interceptor is queried at several points of the discovery walk. A veto at
// any point is final: the walker moves on to the next mutation site.
type Interceptor interface {
	// PreScan is called once per file, before the walk begins. Returning
	// false aborts scanning of that file entirely.
	PreScan(path string) bool

	// NewMutation is called for every candidate mutation site before a
	// WorkItem is built for it. node is the AST node the operator actually
	// targets (which can differ from the node the walker is currently
	// visiting). Returning false vetoes the mutation.
	NewMutation(operatorName string, node ast.Node) bool

	// NewWorkItem is called once a WorkItem has been constructed, before it
	// is dispatched for execution. An Interceptor may write a pre-decided
	// WorkResult (e.g. Skipped) directly to db and return false to suppress
	// execution while still keeping the WorkItem in the plan.
	NewWorkItem(db *workdb.DB, operatorName string, node ast.Node, item workdb.WorkItem) bool

	// PostScan is called once per file, after the walk completes, to
	// release any per-file state accumulated during the scan.
	PostScan(path string)
}

// Chain is an ordered list of Interceptors. The first veto encountered at
// each stage is final; later Interceptors in the chain are not consulted
// for that mutation site.
type Chain []Interceptor

// PreScan runs every Interceptor's PreScan in order, stopping at the first
// false.
func (c Chain) PreScan(path string) bool {
	for _, it := range c {
		if !it.PreScan(path) {
			return false
		}
	}

	return true
}

// NewMutation runs every Interceptor's NewMutation in order, stopping at
// the first veto.
func (c Chain) NewMutation(operatorName string, node ast.Node) bool {
	for _, it := range c {
		if !it.NewMutation(operatorName, node) {
			return false
		}
	}

	return true
}

// NewWorkItem runs every Interceptor's NewWorkItem in order, stopping at
// the first veto.
func (c Chain) NewWorkItem(db *workdb.DB, operatorName string, node ast.Node, item workdb.WorkItem) bool {
	for _, it := range c {
		if !it.NewWorkItem(db, operatorName, node, item) {
			return false
		}
	}

	return true
}

// PostScan runs every Interceptor's PostScan, in order.
func (c Chain) PostScan(path string) {
	for _, it := range c {
		it.PostScan(path)
	}
}
