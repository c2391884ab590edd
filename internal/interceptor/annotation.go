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

package interceptor

import (
	"go/ast"
	"go/token"
	"sync"

	"github.com/mutantkin/mutantkin/internal/workdb"
)

// AnnotationInterceptor vetoes mutations found inside type positions:
// struct field types, type declarations and generic type-parameter
// constraints. Go has no runtime type-annotation expressions comparable to
// Python's, but these are the closest analogue -- syntax that looks like an
// operand but is never evaluated, so mutating it either fails to compile or
// silently mutates nothing observable.
type AnnotationInterceptor struct {
	mu       sync.Mutex
	typeSpan map[ast.Node]struct{}
}

// NewAnnotationInterceptor creates an AnnotationInterceptor.
func NewAnnotationInterceptor() *AnnotationInterceptor {
	return &AnnotationInterceptor{}
}

// PrepareFile indexes every node reachable only from a type position so
// NewMutation can veto in O(1).
func (a *AnnotationInterceptor) PrepareFile(_ *token.FileSet, file *ast.File) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.typeSpan = make(map[ast.Node]struct{})

	ast.Inspect(file, func(n ast.Node) bool {
		switch t := n.(type) {
		case *ast.Field:
			a.markAll(t.Type)
		case *ast.TypeSpec:
			a.markAll(t.Type)
			if t.TypeParams != nil {
				a.markAll(t.TypeParams)
			}
		case *ast.FuncType:
			if t.TypeParams != nil {
				a.markAll(t.TypeParams)
			}
		}

		return true
	})
}

func (a *AnnotationInterceptor) markAll(root ast.Node) {
	if root == nil {
		return
	}
	ast.Inspect(root, func(n ast.Node) bool {
		if n != nil {
			a.typeSpan[n] = struct{}{}
		}

		return true
	})
}

// PreScan is a no-op; per-file state is rebuilt by PrepareFile.
func (*AnnotationInterceptor) PreScan(string) bool { return true }

// PostScan releases the per-file type-position index.
func (a *AnnotationInterceptor) PostScan(string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.typeSpan = nil
}

// NewMutation vetoes node if it lies within a type position.
func (a *AnnotationInterceptor) NewMutation(_ string, node ast.Node) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.typeSpan == nil || node == nil {
		return true
	}
	_, inType := a.typeSpan[node]

	return !inType
}

// NewWorkItem always accepts; the veto already happened at NewMutation.
func (*AnnotationInterceptor) NewWorkItem(*workdb.DB, string, ast.Node, workdb.WorkItem) bool {
	return true
}
