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

package sshengine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/mutantkin/mutantkin/internal/log"
	"github.com/mutantkin/mutantkin/internal/workdb"
)

// SSHDialer is the production HostDialer. It opens a control connection to
// a "user@host:port" target, transfers a pre-built project tarball once,
// and starts local sub-worker processes on the remote host. The number of
// sub-workers is decided once per Dial by spawnCount, from the host's CPU
// count, MaxLoadFactor and its one-minute load average; the host's CPU
// utilisation is not read, and the load is not measured again between
// spawns. Each sub-worker is a `mutantkin remote-worker` process
// framed with newline-delimited JSON over its stdin/stdout, the idiomatic
// Go substitute for the prototype's mitogen-style RPC bootstrap.
type SSHDialer struct {
	// KeyFile is the path to the private key used to authenticate.
	KeyFile string
	// Tarball is the project payload built once on the dispatcher side
	// (see cloner.PrepareTarball) and unpacked on every host dialed.
	Tarball []byte
	// RemoteDir is the directory the tarball is unpacked into and the
	// sub-worker processes are started from.
	RemoteDir string
	// MaxLoadFactor scales the host's CPU count in spawnCount's estimate
	// (10 when unset). Whatever its value, at most twice the CPU count of
	// sub-workers are started.
	MaxLoadFactor float64
	// RemoteBinary is the path to the mutantkin binary on the remote host.
	RemoteBinary string
	// DialTimeout bounds the initial TCP+handshake.
	DialTimeout time.Duration
}

// Dial connects to host ("user@host:port" or "user@host"), unpacks the
// tarball, and starts as many sub-workers as spawnCount returns.
func (s *SSHDialer) Dial(ctx context.Context, host string) ([]RemoteRunner, error) {
	user, addr, err := splitHost(host)
	if err != nil {
		return nil, err
	}

	signer, err := s.loadSigner()
	if err != nil {
		return nil, err
	}

	clientCfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // host key pinning is a deployment concern, out of scope for the engine
		Timeout:         s.dialTimeout(),
	}

	dialer := net.Dialer{Timeout: s.dialTimeout()}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sshengine: dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("sshengine: handshake %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	if err := s.unpackTarball(client); err != nil {
		_ = client.Close()

		return nil, err
	}

	count, err := s.spawnCount(client)
	if err != nil {
		log.Errorf("sshengine: %s: could not measure load, defaulting to one sub-worker: %v\n", host, err)
		count = 1
	}

	runners := make([]RemoteRunner, 0, count)
	for i := 0; i < count; i++ {
		r, err := s.startSubWorker(client, host)
		if err != nil {
			log.Errorf("sshengine: %s: failed to start sub-worker %d: %v\n", host, i, err)

			break
		}
		runners = append(runners, r)
	}

	if len(runners) == 0 {
		_ = client.Close()

		return nil, fmt.Errorf("sshengine: %s: no sub-worker could be started", host)
	}

	return runners, nil
}

func (s *SSHDialer) dialTimeout() time.Duration {
	if s.DialTimeout <= 0 {
		return 30 * time.Second
	}

	return s.DialTimeout
}

func (s *SSHDialer) loadSigner() (ssh.Signer, error) {
	key, err := os.ReadFile(s.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("sshengine: read key file %s: %w", s.KeyFile, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("sshengine: parse key file %s: %w", s.KeyFile, err)
	}

	return signer, nil
}

func (s *SSHDialer) unpackTarball(client *ssh.Client) error {
	sess, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("sshengine: open session: %w", err)
	}
	defer sess.Close()

	sess.Stdin = bytes.NewReader(s.Tarball)
	cmd := fmt.Sprintf("mkdir -p %s && tar xzf - -C %s", shellQuote(s.RemoteDir), shellQuote(s.RemoteDir))
	if err := sess.Run(cmd); err != nil {
		return fmt.Errorf("sshengine: unpack tarball: %w", err)
	}

	return nil
}

// spawnCount estimates how many sub-workers can be started: the host's CPU
// count scaled by MaxLoadFactor, minus its current load average, kept
// between 1 and twice the CPU count.
func (s *SSHDialer) spawnCount(client *ssh.Client) (int, error) {
	sess, err := client.NewSession()
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	out, err := sess.Output("nproc && cat /proc/loadavg")
	if err != nil {
		return 0, err
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return 1, nil
	}
	cpus, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || cpus <= 0 {
		cpus = 1
	}
	fields := strings.Fields(lines[1])
	load := 0.0
	if len(fields) > 0 {
		load, _ = strconv.ParseFloat(fields[0], 64)
	}

	factor := s.MaxLoadFactor
	if factor <= 0 {
		factor = 10
	}

	headroom := float64(cpus)*factor - load
	count := int(headroom)
	if count < 1 {
		count = 1
	}
	if count > cpus*2 {
		count = cpus * 2
	}

	return count, nil
}

func (s *SSHDialer) startSubWorker(client *ssh.Client, host string) (RemoteRunner, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, err
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		_ = sess.Close()

		return nil, err
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()

		return nil, err
	}

	binary := s.RemoteBinary
	if binary == "" {
		binary = "mutantkin"
	}
	cmd := fmt.Sprintf("cd %s && %s remote-worker", shellQuote(s.RemoteDir), shellQuote(binary))
	if err := sess.Start(cmd); err != nil {
		_ = sess.Close()

		return nil, err
	}

	return &jsonFramedRunner{
		host:    host,
		session: sess,
		enc:     json.NewEncoder(stdin),
		dec:     json.NewDecoder(bufio.NewReader(stdout)),
		stdin:   stdin,
	}, nil
}

func splitHost(host string) (user, addr string, err error) {
	at := strings.Index(host, "@")
	if at < 0 {
		return "", "", fmt.Errorf("sshengine: host %q must be of the form user@host[:port]", host)
	}
	user = host[:at]
	addr = host[at+1:]
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}

	return user, addr, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// jsonFramedRunner is a RemoteRunner speaking newline-delimited JSON over an
// SSH session's stdin/stdout, matching internal/remoteworker's protocol.
type jsonFramedRunner struct {
	host    string
	session *ssh.Session
	enc     *json.Encoder
	dec     *json.Decoder
	stdin   io.WriteCloser
}

func (j *jsonFramedRunner) Host() string { return j.host }

func (j *jsonFramedRunner) Run(_ context.Context, data *workdb.ExecutionData) (workdb.WorkResult, error) {
	if err := j.enc.Encode(data); err != nil {
		return workdb.WorkResult{}, fmt.Errorf("sshengine: send execution data: %w", err)
	}

	var result workdb.WorkResult
	if err := j.dec.Decode(&result); err != nil {
		return workdb.WorkResult{}, fmt.Errorf("sshengine: receive work result: %w", err)
	}

	return result, nil
}

func (j *jsonFramedRunner) Close() error {
	_ = j.stdin.Close()

	return j.session.Close()
}
