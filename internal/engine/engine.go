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

// Package engine orchestrates mutation testing by discovering, applying, and testing mutations.
package engine

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mutantkin/mutantkin/internal/coverage"
	"github.com/mutantkin/mutantkin/internal/diff"
	"github.com/mutantkin/mutantkin/internal/engine/workerpool"
	"github.com/mutantkin/mutantkin/internal/exclusion"
	"github.com/mutantkin/mutantkin/internal/interceptor"
	"github.com/mutantkin/mutantkin/internal/log"
	"github.com/mutantkin/mutantkin/internal/mutator"
	"github.com/mutantkin/mutantkin/internal/report"
	"github.com/mutantkin/mutantkin/internal/workdb"

	"github.com/mutantkin/mutantkin/internal/configuration"
	"github.com/mutantkin/mutantkin/internal/gomodule"
)

// Engine is the "engine" that performs the mutation testing.
//
// It traverses the AST of the project, finds which TokenMutator can be applied and
// performs the actual mutation testing.
type Engine struct {
	fs           fs.FS
	jDealer      ExecutorDealer
	codeData     CodeData
	mutantStream chan mutator.Mutator
	module       gomodule.GoModule
	logger       report.MutantLogger
	interceptors interceptor.Chain

	workDB *workdb.DB

	// occurrence counts how many mutants of a given (package, operator) pair
	// have already been planned, to build each WorkItem's job_id. Only ever
	// touched by the single discovery goroutine.
	occurrence map[string]int

	// existingJobs and completedJobs are preloaded from workDB once, at the
	// start of Run, so a resumed session doesn't re-insert a WorkItem already
	// on disk and skips re-testing one that already has a recorded result.
	existingJobs  map[string]bool
	completedJobs map[string]bool

	// jobIDs maps an in-flight Mutator to the job_id planWorkItem assigned
	// it, so the result-consumption goroutine in executeTests can record its
	// WorkResult as it arrives. Written by the discovery goroutine, read by
	// the consumer, so it needs its own lock.
	jobMu  sync.Mutex
	jobIDs map[mutator.Mutator]string
}

// CodeData is used to check if the mutant should be executed.
type CodeData struct {
	Cov       coverage.Profile
	Diff      diff.Diff
	Exclusion exclusion.Rules
}

// Option for the Engine initialization.
type Option func(m Engine) Engine

// New instantiates an Engine.
//
// It gets the GoModule whose CallingDir it analyses, a CodeData to
// check if the mutants are executable, the ExecutorDealer that runs them
// and a set of Option.
func New(mod gomodule.GoModule, codeData CodeData, jDealer ExecutorDealer, opts ...Option) Engine {
	dirFS := os.DirFS(filepath.Join(mod.Root, mod.CallingDir))
	mut := Engine{
		module:        mod,
		jDealer:       jDealer,
		codeData:      codeData,
		fs:            dirFS,
		logger:        report.NewLogger(),
		occurrence:    make(map[string]int),
		existingJobs:  make(map[string]bool),
		completedJobs: make(map[string]bool),
		jobIDs:        make(map[mutator.Mutator]string),
	}
	for _, opt := range opts {
		mut = opt(mut)
	}

	return mut
}

// WithWorkDB sets the work database the Engine records each planned
// WorkItem and completed WorkResult into, as discovery and execution
// happen, rather than after the fact. A nil or never-set workDB disables
// this bookkeeping entirely.
func WithWorkDB(db *workdb.DB) Option {
	return func(m Engine) Engine {
		m.workDB = db

		return m
	}
}

// WithDirFs overrides the fs.FS of the module (mainly used for testing purposes).
func WithDirFs(dirFS fs.FS) Option {
	return func(m Engine) Engine {
		m.fs = dirFS

		return m
	}
}

// WithInterceptors sets the Chain of Interceptors consulted before a
// mutation is turned into a Mutator. An empty or nil Chain vetoes nothing.
func WithInterceptors(chain interceptor.Chain) Option {
	return func(m Engine) Engine {
		m.interceptors = chain

		return m
	}
}

// Run executes the mutation testing.
//
// It walks the fs.FS provided and checks every .go file which is not a test.
// For each file it will scan for tokenMutations and gather all the mutants found.
func (mu *Engine) Run(ctx context.Context) report.Results {
	mu.preloadExisting()

	mu.mutantStream = make(chan mutator.Mutator)
	go func() {
		defer close(mu.mutantStream)
		_ = fs.WalkDir(mu.fs, ".", func(path string, _ fs.DirEntry, _ error) error {
			isGoCode := filepath.Ext(path) == ".go" && !strings.HasSuffix(path, "_test.go")

			if isGoCode && !mu.codeData.Exclusion.IsFileExcluded(path) {
				mu.runOnFile(path)
			}

			return nil
		})
	}()

	start := time.Now()
	res := mu.executeTests(ctx)
	res.Elapsed = time.Since(start)
	res.Module = mu.module.Name

	return res
}

// preloadExisting reads the work database's current plan, if any, so a
// resumed session knows which job_ids it has already planned and which of
// those already carry a result.
func (mu *Engine) preloadExisting() {
	if mu.workDB == nil {
		return
	}

	completed, err := mu.workDB.CompletedWorkItems()
	if err != nil {
		log.Errorf("failed to read completed work items: %s\n", err)
	}
	for _, it := range completed {
		mu.completedJobs[it.JobID] = true
		mu.existingJobs[it.JobID] = true
	}

	pending, err := mu.workDB.PendingWorkItems()
	if err != nil {
		log.Errorf("failed to read pending work items: %s\n", err)
	}
	for _, it := range pending {
		mu.existingJobs[it.JobID] = true
	}
}

// planWorkItem assigns m a job_id and, unless it was already planned in a
// prior session, inserts its WorkItem into the work database before it is
// ever dispatched to a worker. It reports whether m should be skipped
// entirely because a result for it is already on record.
func (mu *Engine) planWorkItem(mt mutator.Type, m mutator.Mutator) (jobID string, skip bool) {
	if mu.workDB == nil {
		return "", false
	}

	operatorName := kebabMutantType(mt)
	key := fmt.Sprintf("%s|%s", m.Pkg(), operatorName)
	occ := mu.occurrence[key]
	mu.occurrence[key] = occ + 1
	jobID = fmt.Sprintf("%s-%s-%d", m.Pkg(), operatorName, occ)

	if mu.completedJobs[jobID] {
		return jobID, true
	}

	if !mu.existingJobs[jobID] {
		pos := m.Position()
		item := workdb.WorkItem{
			JobID:        jobID,
			ModulePath:   m.Pkg(),
			OperatorName: operatorName,
			Occurrence:   occ,
			StartPos:     workdb.Position{Line: pos.Line, Column: pos.Column - 1},
			EndPos:       workdb.Position{Line: pos.Line, Column: pos.Column},
		}
		if err := mu.workDB.AddWorkItem(item); err != nil {
			log.Errorf("failed to record work item %s: %s\n", jobID, err)
		}
	}

	mu.jobMu.Lock()
	mu.jobIDs[m] = jobID
	mu.jobMu.Unlock()

	return jobID, false
}

// recordResult writes m's WorkResult to the work database, looking up the
// job_id planWorkItem assigned it at discovery time.
func (mu *Engine) recordResult(m mutator.Mutator) {
	if mu.workDB == nil {
		return
	}

	mu.jobMu.Lock()
	jobID, ok := mu.jobIDs[m]
	mu.jobMu.Unlock()
	if !ok {
		return
	}

	outcome := WorkerOutcomeFromStatus(m.Status())
	if outcome == "" {
		return
	}

	result := workdb.WorkResult{
		WorkerOutcome: outcome,
		Outcome:       OutcomeFromStatus(m.Status()),
	}
	if err := mu.workDB.SetResult(jobID, result); err != nil {
		log.Errorf("failed to record work result %s: %s\n", jobID, err)
	}
}

func (mu *Engine) runOnFile(fileName string) {
	if mu.interceptors != nil && !mu.interceptors.PreScan(fileName) {
		return
	}

	src, _ := mu.fs.Open(fileName)
	set := token.NewFileSet()
	file, _ := parser.ParseFile(set, fileName, src, parser.ParseComments)
	_ = src.Close()

	for _, it := range mu.interceptors {
		if fp, ok := it.(interceptor.FilePreparer); ok {
			fp.PrepareFile(set, file)
		}
	}
	if mu.interceptors != nil {
		defer mu.interceptors.PostScan(fileName)
	}

	ast.Inspect(file, func(node ast.Node) bool {
		// Check for token-based mutations
		if n, ok := NewTokenNode(node); ok {
			mu.findMutations(fileName, set, file, n)
		}

		// Check for expression-based mutations
		if e, ok := NewExprNode(node); ok {
			mu.findExprMutations(fileName, set, file, e, node)
		}

		return true
	})
}

func (mu *Engine) findMutations(fileName string, set *token.FileSet, file *ast.File, node *NodeToken) {
	mutantTypes := GetMutantTypesForToken(node.Tok(), node.NodeType())
	if len(mutantTypes) == 0 {
		return
	}

	pkg := mu.pkgName(fileName, file.Name.Name)
	for _, mt := range mutantTypes {
		if !configuration.Get[bool](configuration.MutantTypeEnabledKey(mt)) {
			continue
		}
		if mu.interceptors != nil && !mu.interceptors.NewMutation(kebabMutantType(mt), node.NodeType()) {
			continue
		}
		mutantType := mt
		tm := NewTokenMutant(pkg, set, file, node)
		tm.SetType(mutantType)
		tm.SetStatus(mu.mutationStatus(set.Position(node.TokPos)))

		if _, skip := mu.planWorkItem(mutantType, tm); skip {
			continue
		}

		mu.mutantStream <- tm
	}
}

func (mu *Engine) findExprMutations(fileName string, set *token.FileSet, file *ast.File, node *NodeExpr, astNode ast.Node) {
	mutantTypes := GetExprMutantTypes(node.Expr())
	if len(mutantTypes) == 0 {
		return
	}

	pkg := mu.pkgName(fileName, file.Name.Name)

	// Find parent node and create replace function
	parentNode, replaceFunc := mu.findParentAndReplacer(file, astNode)
	if parentNode == nil || replaceFunc == nil {
		// Cannot mutate if we can't find parent or create replacer
		return
	}

	for _, mt := range mutantTypes {
		if !configuration.Get[bool](configuration.MutantTypeEnabledKey(mt)) {
			continue
		}
		if mu.interceptors != nil && !mu.interceptors.NewMutation(kebabMutantType(mt), astNode) {
			continue
		}
		mutantType := mt
		em := NewExprMutant(pkg, set, file, node, parentNode, replaceFunc)
		em.SetType(mutantType)
		em.SetStatus(mu.mutationStatus(set.Position(node.Pos())))

		if _, skip := mu.planWorkItem(mutantType, em); skip {
			continue
		}

		mu.mutantStream <- em
	}
}

func (mu *Engine) pkgName(fileName, fPkg string) string {
	var pkg string
	fn := fmt.Sprintf("%s/%s", mu.module.CallingDir, fileName)
	p := filepath.Dir(fn)
	for {
		if strings.HasSuffix(p, fPkg) {
			pkg = fmt.Sprintf("%s/%s", mu.module.Name, p)

			break
		}
		d := filepath.Dir(p)
		if d == p {
			pkg = mu.module.Name

			break
		}
		p = d
	}

	return normalisePkgPath(pkg)
}

func normalisePkgPath(pkg string) string {
	sep := fmt.Sprintf("%c", os.PathSeparator)

	return strings.ReplaceAll(pkg, sep, "/")
}

// kebabMutantType renders a mutator.Type as the lowercase, dash-separated
// name interceptors and pragma comments refer to it by, e.g.
// ArithmeticBase -> "arithmetic-base".
func kebabMutantType(mt mutator.Type) string {
	s := strings.ToLower(mt.String())

	return strings.ReplaceAll(s, "_", "-")
}

func (mu *Engine) mutationStatus(pos token.Position) mutator.Status {
	var status mutator.Status

	if mu.codeData.Cov.IsCovered(pos) {
		status = mutator.Runnable
	}

	if !mu.codeData.Diff.IsChanged(pos) {
		status = mutator.Skipped
	}

	return status
}

// findParentAndReplacer finds the parent node of target and returns a function
// to replace target with a new expression in the parent.
func (mu *Engine) findParentAndReplacer(file *ast.File, target ast.Node) (ast.Node, func(ast.Expr) error) {
	var parent ast.Node
	var replacer func(ast.Expr) error

	ast.Inspect(file, func(n ast.Node) bool {
		if n == nil {
			return false
		}

		// Check if this node contains our target as a child
		switch p := n.(type) {
		case *ast.UnaryExpr:
			if p.X == target {
				parent = p
				replacer = func(newExpr ast.Expr) error {
					p.X = newExpr

					return nil
				}

				return false
			}
		case *ast.BinaryExpr:
			if p.X == target {
				parent = p
				replacer = func(newExpr ast.Expr) error {
					p.X = newExpr

					return nil
				}

				return false
			}
			if p.Y == target {
				parent = p
				replacer = func(newExpr ast.Expr) error {
					p.Y = newExpr

					return nil
				}

				return false
			}
		case *ast.ParenExpr:
			if p.X == target {
				parent = p
				replacer = func(newExpr ast.Expr) error {
					p.X = newExpr

					return nil
				}

				return false
			}
		case *ast.CallExpr:
			for i, arg := range p.Args {
				if arg == target {
					parent = p
					idx := i // capture for closure
					replacer = func(newExpr ast.Expr) error {
						p.Args[idx] = newExpr

						return nil
					}

					return false
				}
			}
		case *ast.ReturnStmt:
			for i, result := range p.Results {
				if result == target {
					parent = p
					idx := i
					replacer = func(newExpr ast.Expr) error {
						p.Results[idx] = newExpr

						return nil
					}

					return false
				}
			}
		case *ast.AssignStmt:
			for i, expr := range p.Lhs {
				if expr == target {
					parent = p
					idx := i
					replacer = func(newExpr ast.Expr) error {
						p.Lhs[idx] = newExpr

						return nil
					}

					return false
				}
			}
			for i, expr := range p.Rhs {
				if expr == target {
					parent = p
					idx := i
					replacer = func(newExpr ast.Expr) error {
						p.Rhs[idx] = newExpr

						return nil
					}

					return false
				}
			}
		case *ast.IfStmt:
			if p.Cond == target {
				parent = p
				replacer = func(newExpr ast.Expr) error {
					p.Cond = newExpr

					return nil
				}

				return false
			}
		case *ast.ForStmt:
			if p.Cond == target {
				parent = p
				replacer = func(newExpr ast.Expr) error {
					p.Cond = newExpr

					return nil
				}

				return false
			}
		case *ast.SwitchStmt:
			if p.Tag == target {
				parent = p
				replacer = func(newExpr ast.Expr) error {
					p.Tag = newExpr

					return nil
				}

				return false
			}
		}

		return true
	})

	return parent, replacer
}

func (mu *Engine) executeTests(ctx context.Context) report.Results {
	pool := workerpool.Initialize("mutator")
	pool.Start()

	var mutants []mutator.Mutator
	outCh := make(chan mutator.Mutator)
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for mut := range mu.mutantStream {
			ok := checkDone(ctx)
			if !ok {
				pool.Stop()

				break
			}
			wg.Add(1)
			pool.AppendExecutor(mu.jDealer.NewExecutor(mut, outCh, wg))
		}
	}()

	go func() {
		wg.Wait()
		close(outCh)
	}()

	for m := range outCh {
		mu.logger.Mutant(m)
		mu.recordResult(m)
		mutants = append(mutants, m)
	}

	return results(mutants)
}

func checkDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	default:
		return true
	}
}

func results(m []mutator.Mutator) report.Results {
	return report.Results{Mutants: m}
}
