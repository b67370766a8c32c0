package executor

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/W1ndR1dr/flowforge/internal/remote"
)

// Process is a spawned assistant child. Output carries stdout with
// stderr merged in.
type Process interface {
	Output() io.Reader
	Wait() error
	Kill() error
}

// SpawnFunc starts the assistant for one execution. Swappable for tests.
type SpawnFunc func(ctx context.Context, p Project, workDir, prompt string) (Process, error)

type osProcess struct {
	cmd *exec.Cmd
	out *os.File
}

func (p *osProcess) Output() io.Reader { return p.out }

func (p *osProcess) Wait() error {
	err := p.cmd.Wait()
	p.out.Close()
	return err
}

func (p *osProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Spawn starts the assistant with the default spawner. Callers outside
// the executor use it for one-off children like chat turns.
func Spawn(ctx context.Context, p Project, workDir, prompt string) (Process, error) {
	return spawnProcess(ctx, p, workDir, prompt)
}

// spawnProcess starts the configured assistant command. Local projects
// run the child directly with its working directory set; remote projects
// wrap the invocation in ssh with cd performed by the remote shell.
func spawnProcess(ctx context.Context, p Project, workDir, prompt string) (Process, error) {
	cfg := p.Config.Project

	var cmd *exec.Cmd
	if p.Transport != nil {
		parts := []string{"cd " + remote.Quote(workDir)}
		argv := append([]string{cfg.ClaudeCommand}, cfg.ClaudeFlags...)
		argv = append(argv, "-p", prompt)
		quoted := make([]string, len(argv))
		for i, a := range argv {
			quoted[i] = remote.Quote(a)
		}
		parts = append(parts, strings.Join(quoted, " "))
		remoteCmd := "sh -c " + remote.Quote(strings.Join(parts, " && "))
		sshArgv := p.Transport.Argv(remoteCmd)
		cmd = exec.CommandContext(ctx, sshArgv[0], sshArgv[1:]...)
	} else {
		args := append([]string{}, cfg.ClaudeFlags...)
		args = append(args, "-p", prompt)
		cmd = exec.CommandContext(ctx, cfg.ClaudeCommand, args...)
		cmd.Dir = workDir
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, err
	}
	// The child holds the write end; closing ours makes the read end
	// return EOF when the child exits.
	pw.Close()

	return &osProcess{cmd: cmd, out: pr}, nil
}
