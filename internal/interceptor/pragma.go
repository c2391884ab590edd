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
	"strings"
	"sync"

	"github.com/mutantkin/mutantkin/internal/workdb"
)

// pragmaSet holds, per pragma key, the list of categories it restricts to.
// A nil slice present in the map means the key was declared with no
// category list at all (e.g. bare "pragma: no mutate"), which this
// implementation resolves as "suppress all categories".
type pragmaSet map[string][]string

// FilePreparer is implemented by Interceptors that need to see the parsed
// file before the walk begins, to build per-line state such as a comment
// index. It is not part of the core Interceptor contract: operators and the
// walker only depend on Interceptor, but the engine calls PrepareFile on any
// chain member that implements it.
type FilePreparer interface {
	PrepareFile(fset *token.FileSet, file *ast.File)
}

// PragmaInterceptor vetoes mutations on a source line carrying a
//
//	// pragma: no mutate[: category[, category]*]
//
// comment. A bare "no mutate" with no category list suppresses every
// operator on that line; a category list restricts suppression to the
// named operators (kebab-case operator names, e.g. "arithmetic-base").
type PragmaInterceptor struct {
	mu       sync.Mutex
	fset     *token.FileSet
	byLine   map[int]pragmaSet
	skipLine map[int]bool // true if this interceptor wrote a Skipped result already for a line+job
}

// NewPragmaInterceptor creates a PragmaInterceptor.
func NewPragmaInterceptor() *PragmaInterceptor {
	return &PragmaInterceptor{}
}

// PrepareFile builds the per-line pragma index for file, indexed by the
// line the comment's trailing content shares with the code it annotates.
func (p *PragmaInterceptor) PrepareFile(fset *token.FileSet, file *ast.File) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fset = fset
	p.byLine = make(map[int]pragmaSet)

	for _, cg := range file.Comments {
		for _, c := range cg.List {
			line := fset.Position(c.Slash).Line
			if set := parsePragmaComment(c.Text); set != nil {
				p.byLine[line] = set
			}
		}
	}
}

// PreScan resets nothing extra; per-file state is rebuilt by PrepareFile.
func (*PragmaInterceptor) PreScan(string) bool { return true }

// PostScan releases the per-file comment index.
func (p *PragmaInterceptor) PostScan(string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fset = nil
	p.byLine = nil
}

// NewMutation vetoes the mutation if node's line carries a suppressing
// pragma for operatorName.
func (p *PragmaInterceptor) NewMutation(operatorName string, node ast.Node) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fset == nil || node == nil {
		return true
	}
	line := p.fset.Position(node.Pos()).Line
	set, ok := p.byLine[line]
	if !ok {
		return true
	}

	categories, suppressed := set["no mutate"]
	if !suppressed {
		return true
	}
	if len(categories) == 0 {
		// Bare "no mutate", or "no mutate:" with an empty category list:
		// suppress every operator on this line.
		return false
	}

	operatorName = strings.ToLower(operatorName)
	for _, cat := range categories {
		if strings.ToLower(strings.TrimSpace(cat)) == operatorName {
			return false
		}
	}

	return true
}

// NewWorkItem always accepts: the pragma decision has already been made at
// NewMutation, so a WorkItem only reaches here when it is allowed to run.
func (*PragmaInterceptor) NewWorkItem(*workdb.DB, string, ast.Node, workdb.WorkItem) bool {
	return true
}

// parsePragmaComment extracts the pragma directives from a single comment's
// text, or nil if it carries none.
//
// Grammar: a comment of the form
// "# ... pragma: key[: category[, category]*][  key[…]]*", double-space
// separating keys.
func parsePragmaComment(text string) pragmaSet {
	text = strings.TrimPrefix(text, "//")
	text = strings.TrimPrefix(text, "/*")
	text = strings.TrimSuffix(text, "*/")

	idx := strings.Index(text, "pragma:")
	if idx < 0 {
		return nil
	}
	rest := text[idx+len("pragma:"):]

	set := make(pragmaSet)
	for _, field := range strings.Split(rest, "  ") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, catPart, hasColon := strings.Cut(field, ":")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if !hasColon {
			set[key] = nil

			continue
		}
		var cats []string
		for _, c := range strings.Split(catPart, ",") {
			c = strings.TrimSpace(c)
			if c != "" {
				cats = append(cats, c)
			}
		}
		if cats == nil {
			cats = []string{}
		}
		set[key] = cats
	}

	if len(set) == 0 {
		return nil
	}

	return set
}
