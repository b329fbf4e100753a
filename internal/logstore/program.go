package logstore

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// ProgramSink pipes formatted log lines to an external program's stdin
// instead of (or alongside) a LogFile, matching the original log_program
// directive: every appended entry becomes one line on the child's stdin.
// The child is started lazily on the first Write and restarted once if it
// exits; a second failure (counted over the sink's lifetime, a successful
// write does not reset the count) gives up silently rather than retrying
// forever against a broken command.
type ProgramSink struct {
	mu       sync.Mutex
	command  string
	args     []string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	failures int
}

// NewProgramSink prepares a sink that will exec command with args on first
// use.
func NewProgramSink(command string, args ...string) *ProgramSink {
	return &ProgramSink{command: command, args: args}
}

// Write sends one already-formatted log line (no trailing newline) to the
// child process, starting it if necessary.
func (p *ProgramSink) Write(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failures >= 2 {
		return fmt.Errorf("logstore: log_program %s: gave up after repeated failures", p.command)
	}
	if p.stdin == nil {
		if err := p.startLocked(); err != nil {
			p.failures++
			return err
		}
	}
	if _, err := io.WriteString(p.stdin, line+"\n"); err != nil {
		p.stdin = nil
		p.cmd = nil
		p.failures++
		return fmt.Errorf("logstore: log_program write: %w", err)
	}
	return nil
}

func (p *ProgramSink) startLocked() error {
	cmd := exec.Command(p.command, p.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("logstore: log_program stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("logstore: log_program start %s: %w", p.command, err)
	}
	p.cmd = cmd
	p.stdin = stdin
	return nil
}

// Close stops feeding the child process and waits for it to exit, reaping
// it the way a SIGCHLD handler would for a fire-and-forget child.
func (p *ProgramSink) Close() error {
	p.mu.Lock()
	cmd, stdin := p.cmd, p.stdin
	p.cmd, p.stdin = nil, nil
	p.mu.Unlock()

	if stdin != nil {
		stdin.Close()
	}
	if cmd != nil {
		return cmd.Wait()
	}
	return nil
}
