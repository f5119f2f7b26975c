package infrastructure

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"time"
)

// toolProcess is a launched external download tool
type toolProcess interface {
	// Exited reports without blocking whether the process has terminated
	Exited() bool

	// Wait blocks until the process exits and returns its exit code.
	// If ctx is cancelled first the process is terminated and ctx.Err() returned.
	Wait(ctx context.Context) (int, error)

	// Terminate asks the process to stop, killing it after the grace period
	Terminate()
}

// execProcess wraps an exec.Cmd that is reaped by its own goroutine
type execProcess struct {
	cmd   *exec.Cmd
	grace time.Duration
	done  chan struct{}
	err   error
}

// startExecProcess launches binary without waiting for it.
// Both stdout and stderr of the process go to output.
func startExecProcess(binary string, args []string, output io.Writer, grace time.Duration) (toolProcess, error) {
	cmd := exec.Command(binary, args...)
	cmd.Stdout = output
	cmd.Stderr = output
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{
		cmd:   cmd,
		grace: grace,
		done:  make(chan struct{}),
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *execProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *execProcess) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.done:
		return p.exitCode()
	case <-ctx.Done():
		p.Terminate()
		<-p.done
		code, _ := p.exitCode()
		return code, ctx.Err()
	}
}

func (p *execProcess) Terminate() {
	if p.Exited() {
		return
	}
	terminateProcess(p.cmd, p.grace, p.done)
}

// exitCode must only be called after done is closed
func (p *execProcess) exitCode() (int, error) {
	if p.err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(p.err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, p.err
}

// probeTool runs binary with a harmless flag. Any exit status means the
// binary could be started; only a failure to start is an error.
func probeTool(ctx context.Context, binary string) error {
	cmd := exec.CommandContext(ctx, binary, "-h")
	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
