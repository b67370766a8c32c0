// Package remote executes commands on the workstation over ssh, with
// file transfer and git helpers layered on top. The transport is
// stateless: every call is one ssh invocation.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Default timeouts for the transport.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultCommandTimeout = 120 * time.Second
)

// Result carries the outcome of a remote invocation. A ReturnCode of -1
// means the transport itself failed (timeout, unreachable, auth); the
// sync engine treats that as "offline".
type Result struct {
	ReturnCode int
	Stdout     string
	Stderr     string
}

// Ok reports whether the command exited zero.
func (r Result) Ok() bool {
	return r.ReturnCode == 0
}

// CommandRunner spawns the ssh client process. Swappable for tests.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, exitCode int, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	code := 0
	if err != nil {
		code = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
			err = nil
		}
	}
	return stdout.String(), stderr.String(), code, err
}

// Transport runs commands on one workstation host.
type Transport struct {
	// Host is the ssh destination, e.g. "dev@mac.local"
	Host string

	// ConnectTimeout bounds connection establishment (default 10s)
	ConnectTimeout time.Duration

	// CommandTimeout bounds each whole invocation (default 120s)
	CommandTimeout time.Duration

	runner CommandRunner
}

// New creates a transport for the given ssh destination.
func New(host string) *Transport {
	return &Transport{
		Host:           host,
		ConnectTimeout: DefaultConnectTimeout,
		CommandTimeout: DefaultCommandTimeout,
		runner:         execRunner{},
	}
}

// SetRunner replaces the process runner. Intended for tests.
func (t *Transport) SetRunner(r CommandRunner) {
	t.runner = r
}

func (t *Transport) sshArgs() []string {
	timeout := t.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return []string{
		"-o", "ConnectTimeout=" + strconv.Itoa(int(timeout.Seconds())),
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		t.Host,
	}
}

// RunOptions modify Run behavior.
type RunOptions struct {
	// Cwd changes directory before the command
	Cwd string

	// Env is exported before the command
	Env map[string]string

	// Timeout overrides the transport's command timeout
	Timeout time.Duration
}

// Run executes argv on the workstation. When neither Cwd nor Env is set,
// the argv is passed quoted verbatim; otherwise it is wrapped in a shell
// invocation that performs cd, then export, then the command, joined by
// &&. Transport failures yield ReturnCode -1 and a descriptive stderr;
// there are no retries at this layer.
func (t *Transport) Run(ctx context.Context, argv []string, opts RunOptions) Result {
	if len(argv) == 0 {
		return Result{ReturnCode: -1, Stderr: "empty command"}
	}

	var remoteCmd string
	if opts.Cwd == "" && len(opts.Env) == 0 {
		remoteCmd = quoteJoin(argv)
	} else {
		var parts []string
		if opts.Cwd != "" {
			parts = append(parts, "cd "+Quote(opts.Cwd))
		}
		keys := make([]string, 0, len(opts.Env))
		for k := range opts.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, "export "+k+"="+Quote(opts.Env[k]))
		}
		parts = append(parts, quoteJoin(argv))
		remoteCmd = "sh -c " + Quote(strings.Join(parts, " && "))
	}

	return t.runRaw(ctx, remoteCmd, opts.Timeout)
}

// RunShell executes a raw shell snippet on the workstation. Callers are
// responsible for quoting any user-supplied components with Quote.
func (t *Transport) RunShell(ctx context.Context, command string, timeout time.Duration) Result {
	return t.runRaw(ctx, command, timeout)
}

func (t *Transport) runRaw(ctx context.Context, remoteCmd string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = t.CommandTimeout
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(t.sshArgs(), remoteCmd)
	stdout, stderr, code, err := t.runner.Run(ctx, "ssh", args...)

	if ctx.Err() == context.DeadlineExceeded {
		return Result{
			ReturnCode: -1,
			Stdout:     stdout,
			Stderr:     fmt.Sprintf("ssh to %s timed out after %s", t.Host, timeout),
		}
	}
	if err != nil {
		return Result{ReturnCode: -1, Stdout: stdout, Stderr: err.Error()}
	}
	return Result{ReturnCode: code, Stdout: stdout, Stderr: stderr}
}

// Argv returns the full local ssh invocation ("ssh", options, host,
// command) for callers that need to stream the remote command's output
// instead of collecting it, such as the executor's child spawns.
func (t *Transport) Argv(remoteCmd string) []string {
	return append(append([]string{"ssh"}, t.sshArgs()...), remoteCmd)
}

// ReadFile reads a remote file's contents.
func (t *Transport) ReadFile(ctx context.Context, remotePath string) ([]byte, error) {
	res := t.Run(ctx, []string{"cat", remotePath}, RunOptions{})
	if !res.Ok() {
		return nil, fmt.Errorf("read %s: %s", remotePath, strings.TrimSpace(res.Stderr))
	}
	return []byte(res.Stdout), nil
}

// WriteFile writes data to a remote path, creating the parent directory.
// The payload is base64-encoded and decoded remotely so arbitrary content
// never traverses the quoting layer.
func (t *Transport) WriteFile(ctx context.Context, remotePath string, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	parent := path.Dir(remotePath)
	cmd := fmt.Sprintf("mkdir -p %s && echo %s | base64 -d > %s",
		Quote(parent), Quote(encoded), Quote(remotePath))
	res := t.RunShell(ctx, cmd, 0)
	if !res.Ok() {
		return fmt.Errorf("write %s: %s", remotePath, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// FileKind selects the remote file test for Exists.
type FileKind string

const (
	KindAny  FileKind = "any"
	KindFile FileKind = "file"
	KindDir  FileKind = "dir"
)

// Exists runs a remote file test.
func (t *Transport) Exists(ctx context.Context, remotePath string, kind FileKind) bool {
	flag := "-e"
	switch kind {
	case KindFile:
		flag = "-f"
	case KindDir:
		flag = "-d"
	}
	return t.Run(ctx, []string{"test", flag, remotePath}, RunOptions{}).Ok()
}

// Reachable probes the host with a tiny no-op command under the given
// deadline. A timeout is indistinguishable from "unreachable".
func (t *Transport) Reachable(ctx context.Context, timeout time.Duration) bool {
	return t.Run(ctx, []string{"true"}, RunOptions{Timeout: timeout}).Ok()
}

// quoteJoin shell-quotes each element and joins with spaces.
func quoteJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}

// Quote wraps s in single quotes, escaping embedded single quotes. Every
// user-supplied component of a remote command must pass through here
// exactly once before concatenation.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'`$\\&|;<>(){}[]*?~#!") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
