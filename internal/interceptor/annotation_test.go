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

package interceptor_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/mutantkin/mutantkin/internal/interceptor"
)

const annotationSrc = `package p

type S struct {
	Count int ` + "`json:\"count\"`" + `
}

func f() int {
	return 1 + 2
}
`

func TestAnnotationInterceptor_VetoesFieldType(t *testing.T) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "test.go", annotationSrc, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	var fieldType ast.Node
	var bodyExpr ast.Node
	ast.Inspect(file, func(n ast.Node) bool {
		if field, ok := n.(*ast.Field); ok && fieldType == nil {
			fieldType = field.Type
		}
		if b, ok := n.(*ast.BinaryExpr); ok && bodyExpr == nil {
			bodyExpr = b
		}

		return true
	})
	if fieldType == nil || bodyExpr == nil {
		t.Fatal("expected to find both a field type and a body expression")
	}

	a := interceptor.NewAnnotationInterceptor()
	a.PrepareFile(fset, file)

	if a.NewMutation("ignored", fieldType) {
		t.Fatal("expected the struct field's type to be vetoed")
	}
	if !a.NewMutation("arithmetic-base", bodyExpr) {
		t.Fatal("expected an ordinary expression in a function body to be allowed")
	}
}

func TestAnnotationInterceptor_PostScanClearsState(t *testing.T) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "test.go", annotationSrc, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	var fieldType ast.Node
	ast.Inspect(file, func(n ast.Node) bool {
		if field, ok := n.(*ast.Field); ok && fieldType == nil {
			fieldType = field.Type
		}

		return true
	})

	a := interceptor.NewAnnotationInterceptor()
	a.PrepareFile(fset, file)
	a.PostScan("test.go")

	if !a.NewMutation("ignored", fieldType) {
		t.Fatal("expected no veto once per-file state has been released")
	}
}
