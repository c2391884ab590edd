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

package workdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	// modernc.org/sqlite registers the "sqlite" driver; pure Go, no cgo,
	// matching the single-static-binary distribution of the rest of the tool.
	_ "modernc.org/sqlite"
)

// Mode selects whether Open truncates an existing session file (Create) or
// requires one to already exist (Open).
type Mode int

// The supported Modes.
const (
	// Create truncates any pre-existing session file at the given path.
	Create Mode = iota
	// OpenExisting fails if no session file exists at the given path.
	OpenExisting
)

// DB is the durable work database for one mutation-testing session. A
// single on-disk SQLite file backs both the work plan and the recorded
// results, so a killed process can resume a run by re-opening the same
// path and iterating PendingWorkItems.
type DB struct {
	mu   sync.Mutex
	conn *sql.DB
	path string
}

// Open opens or creates the session file at path according to mode.
func Open(path string, mode Mode) (*DB, error) {
	if mode == OpenExisting {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("workdb: %w", err)
		}
	} else if path != ":memory:" {
		_ = os.Remove(path)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("workdb: opening %s: %w", path, err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		_ = conn.Close()

		return nil, err
	}

	return db, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS config (
	id INTEGER PRIMARY KEY CHECK (id = 0),
	payload TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS work_items (
	job_id TEXT PRIMARY KEY,
	module_path TEXT NOT NULL,
	operator_name TEXT NOT NULL,
	occurrence INTEGER NOT NULL,
	start_line INTEGER NOT NULL,
	start_col INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	end_col INTEGER NOT NULL,
	diff TEXT,
	UNIQUE (module_path, operator_name, occurrence)
);
CREATE TABLE IF NOT EXISTS work_results (
	job_id TEXT PRIMARY KEY REFERENCES work_items(job_id),
	worker_outcome TEXT NOT NULL,
	outcome TEXT,
	output TEXT
);
`
	_, err := d.conn.Exec(schema)
	if err != nil {
		return fmt.Errorf("workdb: migrate: %w", err)
	}

	return nil
}

// SetConfig persists cfg, a generic map of the session's configuration, so a
// resumed run replays the same plan. It overwrites any prior config.
func (d *DB) SetConfig(cfg map[string]any) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("workdb: marshal config: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	_, err = d.conn.Exec(
		`INSERT INTO config (id, payload) VALUES (0, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`, string(payload))
	if err != nil {
		return fmt.Errorf("workdb: set config: %w", err)
	}

	return nil
}

// GetConfig retrieves the persisted session configuration. It fails if
// SetConfig was never called.
func (d *DB) GetConfig() (map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var payload string
	err := d.conn.QueryRow(`SELECT payload FROM config WHERE id = 0`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workdb: no config has been set for this session")
	}
	if err != nil {
		return nil, fmt.Errorf("workdb: get config: %w", err)
	}

	var cfg map[string]any
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, fmt.Errorf("workdb: unmarshal config: %w", err)
	}

	return cfg, nil
}

// AddWorkItem appends a planned mutation. A duplicate JobID is an error.
func (d *DB) AddWorkItem(item WorkItem) error {
	if err := item.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(
		`INSERT INTO work_items
			(job_id, module_path, operator_name, occurrence,
			 start_line, start_col, end_line, end_col, diff)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.JobID, item.ModulePath, item.OperatorName, item.Occurrence,
		item.StartPos.Line, item.StartPos.Column, item.EndPos.Line, item.EndPos.Column, item.Diff)
	if err != nil {
		return fmt.Errorf("workdb: add work item %s: %w", item.JobID, err)
	}

	return nil
}

// SetResult upserts the WorkResult for jobID. It fails if no WorkItem with
// that JobID exists.
func (d *DB) SetResult(jobID string, result WorkResult) error {
	if err := result.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var exists int
	err := d.conn.QueryRow(`SELECT 1 FROM work_items WHERE job_id = ?`, jobID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("workdb: no such job_id: %s", jobID)
	}
	if err != nil {
		return fmt.Errorf("workdb: set result: %w", err)
	}

	_, err = d.conn.Exec(
		`INSERT INTO work_results (job_id, worker_outcome, outcome, output)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET
			worker_outcome = excluded.worker_outcome,
			outcome = excluded.outcome,
			output = excluded.output`,
		jobID, string(result.WorkerOutcome), string(result.Outcome), result.Output)
	if err != nil {
		return fmt.Errorf("workdb: set result %s: %w", jobID, err)
	}

	return nil
}

// Clear wipes both the work plan and every recorded result. Only legal
// before execution starts.
func (d *DB) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.conn.Exec(`DELETE FROM work_results`); err != nil {
		return fmt.Errorf("workdb: clear results: %w", err)
	}
	if _, err := d.conn.Exec(`DELETE FROM work_items`); err != nil {
		return fmt.Errorf("workdb: clear work items: %w", err)
	}

	return nil
}

// WorkItems returns every planned mutation, regardless of whether a result
// has been recorded for it.
func (d *DB) WorkItems() ([]WorkItem, error) {
	return d.queryItems(`SELECT job_id, module_path, operator_name, occurrence,
		start_line, start_col, end_line, end_col, diff FROM work_items`)
}

// PendingWorkItems returns work items with no recorded result: plan minus
// completed.
func (d *DB) PendingWorkItems() ([]WorkItem, error) {
	return d.queryItems(`SELECT i.job_id, i.module_path, i.operator_name, i.occurrence,
		i.start_line, i.start_col, i.end_line, i.end_col, i.diff
		FROM work_items i LEFT JOIN work_results r ON i.job_id = r.job_id
		WHERE r.job_id IS NULL`)
}

// CompletedWorkItems returns work items with a recorded result.
func (d *DB) CompletedWorkItems() ([]WorkItem, error) {
	return d.queryItems(`SELECT i.job_id, i.module_path, i.operator_name, i.occurrence,
		i.start_line, i.start_col, i.end_line, i.end_col, i.diff
		FROM work_items i INNER JOIN work_results r ON i.job_id = r.job_id`)
}

func (d *DB) queryItems(query string) ([]WorkItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("workdb: query work items: %w", err)
	}
	defer rows.Close()

	var items []WorkItem
	for rows.Next() {
		var it WorkItem
		var diff sql.NullString
		if err := rows.Scan(&it.JobID, &it.ModulePath, &it.OperatorName, &it.Occurrence,
			&it.StartPos.Line, &it.StartPos.Column, &it.EndPos.Line, &it.EndPos.Column, &diff); err != nil {
			return nil, fmt.Errorf("workdb: scan work item: %w", err)
		}
		it.Diff = diff.String
		items = append(items, it)
	}

	return items, rows.Err()
}

// Result returns the recorded WorkResult for jobID, if any.
func (d *DB) Result(jobID string) (WorkResult, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var r WorkResult
	var outcome, output sql.NullString
	err := d.conn.QueryRow(
		`SELECT worker_outcome, outcome, output FROM work_results WHERE job_id = ?`, jobID,
	).Scan(&r.WorkerOutcome, &outcome, &output)
	if err == sql.ErrNoRows {
		return WorkResult{}, false, nil
	}
	if err != nil {
		return WorkResult{}, false, fmt.Errorf("workdb: result %s: %w", jobID, err)
	}
	r.Outcome = Outcome(outcome.String)
	r.Output = output.String

	return r, true, nil
}

// Results returns every recorded (JobID, WorkResult) pair. Result arrival
// order during execution is not guaranteed, and neither is this iteration
// order.
func (d *DB) Results() (map[string]WorkResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.conn.Query(`SELECT job_id, worker_outcome, outcome, output FROM work_results`)
	if err != nil {
		return nil, fmt.Errorf("workdb: results: %w", err)
	}
	defer rows.Close()

	out := make(map[string]WorkResult)
	for rows.Next() {
		var jobID string
		var r WorkResult
		var outcome, output sql.NullString
		if err := rows.Scan(&jobID, &r.WorkerOutcome, &outcome, &output); err != nil {
			return nil, fmt.Errorf("workdb: scan result: %w", err)
		}
		r.Outcome = Outcome(outcome.String)
		r.Output = output.String
		out[jobID] = r
	}

	return out, rows.Err()
}

// NumWorkItems returns the number of planned mutations.
func (d *DB) NumWorkItems() (int, error) {
	return d.count(`SELECT COUNT(*) FROM work_items`)
}

// NumResults returns the number of recorded results.
func (d *DB) NumResults() (int, error) {
	return d.count(`SELECT COUNT(*) FROM work_results`)
}

func (d *DB) count(query string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var n int
	if err := d.conn.QueryRow(query).Scan(&n); err != nil {
		return 0, fmt.Errorf("workdb: count: %w", err)
	}

	return n, nil
}
