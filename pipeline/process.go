package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// converterInput is the JSON request written to converter stdin.
type converterInput struct {
	Import converterImport `json:"import"`
	Export converterExport `json:"export"`
}

type converterImport struct {
	Module string `json:"module"`
	File   string `json:"file"`
}

type converterExport struct {
	Module            string `json:"module"`
	Hostname          string `json:"hostname"`
	Port              string `json:"port"`
	ZookeeperHostname string `json:"zookeeper_hostname"`
	ZookeeperPort     string `json:"zookeeper_port"`
	DatabaseID        string `json:"database_id"`
}

// processResult is the outcome of a converter process.
type processResult struct {
	// ExitCode is the process exit code.
	ExitCode int
	// Stderr is the captured (bounded) stderr output.
	Stderr []byte
}

// maxStderrBytes bounds how much converter stderr is kept for diagnostics.
const maxStderrBytes = 64 * 1024

// converterProcess manages one converter process lifecycle.
type converterProcess struct {
	path    string
	args    []string
	workDir string
	env     []string

	cmd    *exec.Cmd
	stdout io.ReadCloser

	stderrDone chan struct{}
	stderrMu   sync.Mutex
	stderrBuf  []byte
}

func newConverterProcess(cfg ProcessConfig) *converterProcess {
	return &converterProcess{
		path:    cfg.Path,
		args:    cfg.Args,
		workDir: cfg.WorkDir,
		env:     cfg.Env,
	}
}

// Start launches the converter, writes the request to stdin and closes it.
// Stdout carries IPC frames. Stderr is drained in the background.
func (p *converterProcess) Start(ctx context.Context, input converterInput) error {
	p.cmd = exec.CommandContext(ctx, p.path, p.args...)
	p.cmd.Dir = p.workDir
	if len(p.env) > 0 {
		p.cmd.Env = append(os.Environ(), p.env...)
	}

	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	p.stdout = stdout

	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start converter: %w", err)
	}

	p.stderrDone = make(chan struct{})
	go p.drainStderr(stderr)

	if err := json.NewEncoder(stdin).Encode(input); err != nil {
		_ = p.Kill()
		return fmt.Errorf("failed to write input: %w", err)
	}
	if err := stdin.Close(); err != nil {
		_ = p.Kill()
		return fmt.Errorf("failed to close stdin: %w", err)
	}

	return nil
}

func (p *converterProcess) drainStderr(r io.Reader) {
	defer close(p.stderrDone)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			p.stderrMu.Lock()
			p.stderrBuf = append(p.stderrBuf, buf[:n]...)
			if over := len(p.stderrBuf) - maxStderrBytes; over > 0 {
				p.stderrBuf = p.stderrBuf[over:]
			}
			p.stderrMu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// Stdout returns the reader for IPC frames.
func (p *converterProcess) Stdout() io.Reader {
	return p.stdout
}

// Wait reaps the process. Callers must finish reading Stdout first:
// exec.Cmd.Wait closes the pipe.
func (p *converterProcess) Wait() (*processResult, error) {
	if p.cmd == nil {
		return nil, errors.New("converter not started")
	}

	<-p.stderrDone
	err := p.cmd.Wait()

	p.stderrMu.Lock()
	result := &processResult{Stderr: append([]byte(nil), p.stderrBuf...)}
	p.stderrMu.Unlock()

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("converter wait failed: %w", err)
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			result.ExitCode = status.ExitStatus()
		} else {
			result.ExitCode = -1
		}
	}

	return result, nil
}

// Kill terminates the converter process.
func (p *converterProcess) Kill() error {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

func trimStderr(b []byte) string {
	return strings.TrimSpace(string(b))
}
