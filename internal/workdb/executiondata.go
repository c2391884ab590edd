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
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// ExecutionData is the transfer payload handed to a Worker: the job it
// belongs to, which file to replace, and the full post-mutation source of
// that file. A nil *ExecutionData (as opposed to a zero value) signals a
// dry-run: run the test command against unmutated code to validate the
// baseline.
type ExecutionData struct {
	JobID    string
	Filename string
	NewCode  string
}

// CompressNewCode gzip-compresses NewCode for wire transfer, matching the
// prototype's own choice of transport compression.
func (e ExecutionData) CompressNewCode() ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(e.NewCode)); err != nil {
		return nil, fmt.Errorf("workdb: compress new_code: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("workdb: compress new_code: %w", err)
	}

	return buf.Bytes(), nil
}

// DecompressNewCode reverses CompressNewCode.
func DecompressNewCode(data []byte) (string, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("workdb: decompress new_code: %w", err)
	}
	defer gr.Close()

	out, err := io.ReadAll(gr)
	if err != nil {
		return "", fmt.Errorf("workdb: decompress new_code: %w", err)
	}

	return string(out), nil
}
