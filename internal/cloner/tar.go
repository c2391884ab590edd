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
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// TarballCloner extracts a pre-computed gzipped tarball of the project,
// built once on the dispatcher side, avoiding a per-worker repository scan.
// The ssh ExecutionEngine ships a PrepareTarball payload to each remote host
// once, but unpacks it there with the tar command; it does not use
// TarballCloner.
type TarballCloner struct {
	Data []byte
}

// NewTarballCloner wraps an already-prepared tarball payload.
func NewTarballCloner(data []byte) *TarballCloner {
	return &TarballCloner{Data: data}
}

// Clone extracts the tarball into destPath.
func (t *TarballCloner) Clone(destPath string) error {
	if err := os.MkdirAll(destPath, 0o755); err != nil {
		return fmt.Errorf("cloner: mkdir %s: %w", destPath, err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(t.Data))
	if err != nil {
		return fmt.Errorf("cloner: gzip reader: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("cloner: tar read: %w", err)
		}

		target := filepath.Join(destPath, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(destPath)+string(os.PathSeparator)) {
			return fmt.Errorf("cloner: tar entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			//nolint:gosec // target is validated above to stay under destPath
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			//nolint:gosec // tar archives produced by PrepareTarball are size-bounded by the source tree
			_, err = io.Copy(f, tr)
			closeErr := f.Close()
			if err != nil {
				return err
			}
			if closeErr != nil {
				return closeErr
			}
		}
	}
}

// PrepareTarball walks srcDir and produces a gzipped tarball of every file
// whose path relative to srcDir does not match one of excludePatterns, for
// later extraction by a TarballCloner or on a remote host.
func PrepareTarball(srcDir string, excludePatterns []string) ([]byte, error) {
	exclude := make([]*regexp.Regexp, 0, len(excludePatterns))
	for _, p := range excludePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("cloner: invalid exclude pattern %q: %w", p, err)
		}
		exclude = append(exclude, re)
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil || rel == "." {
			return err
		}
		for _, re := range exclude {
			if re.MatchString(rel) {
				if info.IsDir() {
					return filepath.SkipDir
				}

				return nil
			}
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		//nolint:gosec // path is derived from filepath.Walk over srcDir, not user input
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tw, f)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("cloner: prepare tarball: %w", err)
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
