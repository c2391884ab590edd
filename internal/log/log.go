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

// Package log provides the process-wide logger used to report progress and
// mutant outcomes to the terminal.
package log

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/mutantkin/mutantkin/internal/mutator"
)

var (
	fgRed     = color.New(color.FgRed).SprintFunc()
	fgGreen   = color.New(color.FgGreen).SprintFunc()
	fgHiBlack = color.New(color.FgHiBlack).SprintFunc()
)

type log struct {
	stdout io.Writer
	stderr io.Writer
}

var mutex = &sync.Mutex{}
var instance *log

// Init initializes the logger with separate writers for informational and
// error output. The initialized instance is a singleton; if one of the
// logging functions is called before Init, it is a silent no-op.
func Init(stdout, stderr io.Writer) {
	if stdout == nil || stderr == nil {
		return
	}
	mutex.Lock()
	defer mutex.Unlock()
	if instance == nil {
		instance = &log{stdout: stdout, stderr: stderr}
	}
}

// Reset removes the current log instance.
func Reset() {
	mutex.Lock()
	defer mutex.Unlock()
	instance = nil
}

// Infof logs an information using format, to stdout.
func Infof(f string, args ...any) {
	if instance == nil {
		return
	}
	_, _ = fmt.Fprintf(instance.stdout, f, args...)
}

// Infoln logs an information line, to stdout.
func Infoln(a any) {
	if instance == nil {
		return
	}
	_, _ = fmt.Fprintln(instance.stdout, a)
}

// Errorf logs an error using format, to stderr.
func Errorf(f string, args ...any) {
	if instance == nil {
		return
	}
	msg := fmt.Sprintf(f, args...)
	_, _ = fmt.Fprintf(instance.stderr, "%s: %s", fgRed("ERROR"), msg)
}

// Errorln logs an error line, to stderr.
func Errorln(a any) {
	if instance == nil {
		return
	}
	_, _ = fmt.Fprintf(instance.stderr, "%s: %s\n", fgRed("ERROR"), a)
}

// Mutant logs a mutator.Mutator, reporting its Status, Type and position.
func Mutant(m mutator.Mutator) {
	if instance == nil {
		return
	}
	status := m.Status().String()
	switch m.Status() {
	case mutator.Killed, mutator.Runnable:
		status = fgGreen(m.Status())
	case mutator.Lived:
		status = fgRed(m.Status())
	case mutator.NotCovered, mutator.Skipped:
		status = fgHiBlack(m.Status())
	}
	_, _ = fmt.Fprintf(instance.stdout, "%s%s %s at %s\n", padding(m.Status()), status, m.Type(), m.Position())
}

func padding(s mutator.Status) string {
	var pad string
	padLen := 12 - len(s.String())
	for i := 0; i < padLen; i++ {
		pad += " "
	}

	return pad
}
