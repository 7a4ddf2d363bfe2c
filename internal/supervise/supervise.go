// Package supervise launches parse-and-export runs as child processes and
// reports on them without blocking.
package supervise

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ParseRequest names the archived title list and where its exports go
type ParseRequest struct {
	InputPath string
	CSVPath   string
	XMLPath   string
}

// Process is a launched run
type Process interface {
	PID() int
	// Poll reports the exit code once the run has finished; it never blocks.
	Poll() (exitCode int, done bool)
	// Stderr is the captured error stream, available once done.
	Stderr() string
}

// Launcher starts runs
type Launcher interface {
	Launch(req ParseRequest) (Process, error)
}

// ExitError describes a run that finished unsuccessfully
type ExitError struct {
	PID      int
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("parse run %d failed (cmd=%s exit=%d)", e.PID, e.Command, e.ExitCode)
	}
	return fmt.Sprintf("parse run %d failed (cmd=%s exit=%d): %s", e.PID, e.Command, e.ExitCode, msg)
}

// ExecLauncher runs `<Command> <BaseArgs...> parse --file ... --csv ... --xml ...`
type ExecLauncher struct {
	Command  string
	BaseArgs []string
}

// NewExecLauncher runs command, or this executable when command is empty.
// configPath is forwarded so runs read the same settings as the daemon.
func NewExecLauncher(command, configPath string) (*ExecLauncher, error) {
	if command == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate squire executable: %w", err)
		}
		command = self
	}

	var base []string
	if configPath != "" {
		base = append(base, "--config", configPath)
	}
	return &ExecLauncher{Command: command, BaseArgs: base}, nil
}

// Args returns the full argument list for req
func (l *ExecLauncher) Args(req ParseRequest) []string {
	args := append([]string(nil), l.BaseArgs...)
	args = append(args, "parse", "--file", req.InputPath)
	if req.CSVPath != "" {
		args = append(args, "--csv", "--output-file-csv", req.CSVPath)
	}
	if req.XMLPath != "" {
		args = append(args, "--xml", "--output-file-xml", req.XMLPath)
	}
	return args
}

// Launch starts the run and returns immediately. The run is not tied to any
// context so it outlives a daemon shutdown.
func (l *ExecLauncher) Launch(req ParseRequest) (Process, error) {
	cmd := exec.Command(l.Command, l.Args(req)...)
	p := &execProcess{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", l.Command, err)
	}

	go p.wait()
	return p, nil
}

type execProcess struct {
	cmd      *exec.Cmd
	stderr   bytes.Buffer
	exitCode int
	done     chan struct{}
}

func (p *execProcess) wait() {
	defer close(p.done)

	err := p.cmd.Wait()
	if err == nil {
		return
	}

	p.exitCode = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		p.exitCode = exitErr.ExitCode()
	}
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Poll() (int, bool) {
	select {
	case <-p.done:
		return p.exitCode, true
	default:
		return 0, false
	}
}

func (p *execProcess) Stderr() string {
	select {
	case <-p.done:
		return p.stderr.String()
	default:
		return ""
	}
}

// Failure builds the ExitError for a finished process, nil on success
func Failure(p Process, command string) error {
	code, done := p.Poll()
	if !done || code == 0 {
		return nil
	}
	return &ExitError{PID: p.PID(), Command: command, ExitCode: code, Stderr: p.Stderr()}
}
