package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/Sannainmf/GmshApp-Hexera/internal/logx"
)

const (
	defaultTailBytes = 64 << 10
	defaultGrace     = 2 * time.Second
)

// ErrTimeout reports that the engine exceeded its invocation timeout and was killed.
var ErrTimeout = errors.New("engine timed out")

// Outcome is what a finished (or killed) engine process left behind.
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// Output interleaves both streams in arrival order.
	Output   string
	Duration time.Duration
}

type RunnerOptions struct {
	// TerminationGrace is the delay between SIGTERM and SIGKILL.
	TerminationGrace time.Duration
	// TailBytes bounds each captured stream.
	TailBytes int
}

// Runner executes Invocations in their own process group.
type Runner struct {
	grace     time.Duration
	tailBytes int
}

func NewRunner(opts RunnerOptions) *Runner {
	if opts.TerminationGrace <= 0 {
		opts.TerminationGrace = defaultGrace
	}
	if opts.TailBytes <= 0 {
		opts.TailBytes = defaultTailBytes
	}
	return &Runner{grace: opts.TerminationGrace, tailBytes: opts.TailBytes}
}

// Run starts inv and waits for it. A non-zero exit is not an error: callers
// inspect Outcome.ExitCode. Errors are reserved for spawn failures, ErrTimeout
// and caller cancellation. live, when non-nil, receives output as it arrives.
func (r *Runner) Run(ctx context.Context, inv Invocation, live io.Writer) (*Outcome, error) {
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	logger := logx.Component(ctx, "engine")

	cmd := exec.Command(inv.Program, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = r.grace

	outTail := newTailBuffer(r.tailBytes)
	errTail := newTailBuffer(r.tailBytes)
	combinedTail := newTailBuffer(r.tailBytes)
	combined := &lockedWriter{w: combinedTail}
	stdoutSinks := []io.Writer{outTail, combined}
	stderrSinks := []io.Writer{errTail, combined}
	if live != nil {
		lw := &lockedWriter{w: live}
		stdoutSinks = append(stdoutSinks, lw)
		stderrSinks = append(stderrSinks, lw)
	}
	cmd.Stdout = io.MultiWriter(stdoutSinks...)
	cmd.Stderr = io.MultiWriter(stderrSinks...)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	logger.Debug("engine started", "cmd", inv.String(), "dir", inv.Dir, "pid", cmd.Process.Pid, "timeout", inv.Timeout.String())

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeout <-chan time.Time
	if inv.Timeout > 0 {
		timer := time.NewTimer(inv.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var runErr error
	select {
	case waitErr := <-done:
		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) {
			runErr = fmt.Errorf("failed to wait for engine: %w", waitErr)
		}
	case <-timeout:
		r.terminate(cmd.Process.Pid, done)
		runErr = fmt.Errorf("%w after %s", ErrTimeout, inv.Timeout)
	case <-ctx.Done():
		r.terminate(cmd.Process.Pid, done)
		runErr = fmt.Errorf("engine canceled: %w", ctx.Err())
	}

	out := &Outcome{
		ExitCode: -1,
		Stdout:   outTail.String(),
		Stderr:   errTail.String(),
		Output:   combinedTail.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	logger.Info("engine finished",
		"cmd", inv.String(),
		"exit_code", out.ExitCode,
		"duration_ms", out.Duration.Milliseconds(),
		"error", errString(runErr),
	)
	return out, runErr
}

// terminate sends SIGTERM to the process group, escalates to SIGKILL after the
// grace period and waits for the process to be reaped.
func (r *Runner) terminate(pid int, done <-chan error) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	grace := time.NewTimer(r.grace)
	defer grace.Stop()
	select {
	case <-done:
		return
	case <-grace.C:
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	<-done
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
